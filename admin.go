package main

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/opsfocus/checks_backend/models"
)

func listLocationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var name *string
		if raw := strings.TrimSpace(c.Query("name")); raw != "" {
			name = &raw
		}
		locations, err := models.GetLocations(c.Request.Context(), name)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": locations})
	}
}

func createLocationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewLocation
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		location, err := models.CreateLocation(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": location})
	}
}

func updateLocationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewLocation
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		location, err := models.UpdateLocation(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": location})
	}
}

func toggleActiveLocationHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var req toggleActiveRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		location, err := models.ToggleActiveLocation(c.Request.Context(), id, *req.IsActive)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": location})
	}
}

func listUsersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		locationId, err := optionalQueryInt(c, "location_id")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		var role *models.UserRole
		if raw := strings.TrimSpace(c.Query("role")); raw != "" {
			r := models.UserRole(strings.ToUpper(raw))
			role = &r
		}
		users, err := models.GetUsers(c.Request.Context(), locationId, role)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": users})
	}
}

func createUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var input models.NewUser
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		user, err := models.CreateUser(c.Request.Context(), &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": user})
	}
}

func updateUserHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathId(c)
		if !ok {
			return
		}
		var input models.NewUser
		if err := c.ShouldBindJSON(&input); err != nil {
			respondBindError(c, err)
			return
		}
		user, err := models.UpdateUser(c.Request.Context(), id, &input)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": user})
	}
}

// allLocationsHandler and allUsersHandler back the dropdown pickers with the
// cached slim projections rather than the full admin rows, so location-bound
// roles can resolve names without the admin-only listings.
func allLocationsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		locations, err := models.ListAllLocation(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": locations})
	}
}

func allUsersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		users, err := models.ListAllUser(c.Request.Context())
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": users})
	}
}

func listHistoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := optionalQueryInt(c, "limit")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		referenceId, err := optionalQueryInt(c, "reference_id")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		userId, err := optionalQueryInt(c, "user_id")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		var after, referenceType, actionType *string
		if raw := strings.TrimSpace(c.Query("after")); raw != "" {
			after = &raw
		}
		if raw := strings.TrimSpace(c.Query("reference_type")); raw != "" {
			referenceType = &raw
		}
		if raw := strings.TrimSpace(c.Query("action_type")); raw != "" {
			actionType = &raw
		}
		connection, err := models.PaginateHistory(c.Request.Context(), limit, after, referenceType, referenceId, userId, actionType)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": connection})
	}
}

type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func loginHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		info, err := models.Login(c.Request.Context(), req.Username, req.Password)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": info})
	}
}

type changePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// changePasswordHandler lets any session change its own password; there is
// no admin override here on purpose.
func changePasswordHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req changePasswordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			respondBindError(c, err)
			return
		}
		user, err := models.ChangePassword(c.Request.Context(), req.OldPassword, req.NewPassword)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"data": user})
	}
}
