package models

import (
	"fmt"

	"gorm.io/gorm"
)

func (r *CheckRun) AfterCreate(tx *gorm.DB) (err error) {

	description := fmt.Sprintf("Run for %s created with %d checks.",
		r.ScheduledDate.Format("2006-01-02"), len(r.Items))
	if r.RunType != CheckRunTypeScheduled {
		description = fmt.Sprintf("%s run for %s created with %d checks.",
			r.RunType, r.ScheduledDate.Format("2006-01-02"), len(r.Items))
	}

	if err := SaveHistoryCreate(tx, r.ID, r, description); err != nil {
		return err
	}
	return nil
}

func (a *CheckAssignment) AfterCreate(tx *gorm.DB) (err error) {

	description := fmt.Sprintf("Issued %s check link for run #%d to user #%d.",
		a.Channel, a.RunId, a.RecipientId)
	if err := SaveHistoryCreate(tx, a.ID, a, description); err != nil {
		return err
	}
	return nil
}

func (r *CheckResponse) AfterCreate(tx *gorm.DB) (err error) {

	description := fmt.Sprintf("Recorded %s for run item #%d.", r.Status, r.RunItemId)
	if r.CompletedByName != "" {
		description = fmt.Sprintf("%s recorded %s for run item #%d.", r.CompletedByName, r.Status, r.RunItemId)
	}
	if err := SaveHistoryCreate(tx, r.ID, r, description); err != nil {
		return err
	}
	return nil
}

func (r *CheckResponse) BeforeUpdate(tx *gorm.DB) (err error) {
	description := "Response overridden."
	if tx.Statement.Changed("Status") {
		newStatus := tx.Statement.Dest.(map[string]interface{})["Status"].(ResponseStatus)
		description = fmt.Sprintf("Response overridden from %s to %s.", r.Status, newStatus)
	}
	if err := SaveHistoryUpdate(tx, r.ID, r, description); err != nil {
		return err
	}
	return nil
}

func (a *CorrectiveAction) AfterCreate(tx *gorm.DB) (err error) {

	description := fmt.Sprintf("Opened corrective action for %q due %s.",
		a.Title, a.DueAt.Format("2006-01-02"))
	if a.CurrentStatus == CorrectiveActionStatusResolved {
		description = fmt.Sprintf("Corrective action for %q resolved during the session.", a.Title)
	}
	if err := SaveHistoryCreate(tx, a.ID, a, description); err != nil {
		return err
	}
	return nil
}

func (a *CorrectiveAction) BeforeUpdate(tx *gorm.DB) (err error) {
	description := "Corrective action updated."
	if tx.Statement.Changed("CurrentStatus") {
		newStatus := tx.Statement.Dest.(map[string]interface{})["CurrentStatus"].(CorrectiveActionStatus)
		description = fmt.Sprintf("Corrective action moved from %s to %s.", a.CurrentStatus, newStatus)
	}
	if err := SaveHistoryUpdate(tx, a.ID, a, description); err != nil {
		return err
	}
	return nil
}

func (t *CheckTemplate) AfterCreate(tx *gorm.DB) (err error) {

	description := fmt.Sprintf("Created check template %q.", t.Title)
	if t.Version > 1 {
		description = fmt.Sprintf("Created version %d of check template %q.", t.Version, t.Title)
	}
	if err := SaveHistoryCreate(tx, t.ID, t, description); err != nil {
		return err
	}
	return nil
}

func (t *CheckTemplate) BeforeUpdate(tx *gorm.DB) (err error) {
	if err := SaveHistoryUpdate(tx, t.ID, t, "Updated check template "+t.Title); err != nil {
		return err
	}
	return nil
}

func (t *CheckTemplate) AfterDelete(tx *gorm.DB) (err error) {
	if err := SaveHistoryDelete(tx, t.ID, t, "Deleted check template "+t.Title); err != nil {
		return err
	}
	return nil
}

func (l *Location) AfterCreate(tx *gorm.DB) (err error) {
	if err := SaveHistoryCreate(tx, l.ID, l, "Created location "+l.Name); err != nil {
		return err
	}
	return nil
}

func (l *Location) BeforeUpdate(tx *gorm.DB) (err error) {
	if err := SaveHistoryUpdate(tx, l.ID, l, "Updated location "+l.Name); err != nil {
		return err
	}
	return nil
}

func (l *Location) AfterDelete(tx *gorm.DB) (err error) {
	if err := SaveHistoryDelete(tx, l.ID, l, "Deleted location "+l.Name); err != nil {
		return err
	}
	return nil
}

func (u *User) AfterCreate(tx *gorm.DB) (err error) {
	clean := *u
	clean.Password = ""
	return createHistory(tx, "REGISTER", u.ID, "users", nil, &clean, "registered user "+u.Username)
}

func (u *User) BeforeUpdate(tx *gorm.DB) (err error) {
	clean := *u
	clean.Password = ""
	if err := SaveHistoryUpdate(tx, u.ID, &clean, "Updated user "+u.Username); err != nil {
		return err
	}
	return nil
}

func (u *User) AfterDelete(tx *gorm.DB) (err error) {
	clean := *u
	clean.Password = ""
	if err := SaveHistoryDelete(tx, u.ID, &clean, "Deleted user "+u.Username); err != nil {
		return err
	}
	return nil
}
