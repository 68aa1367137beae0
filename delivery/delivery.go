package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"
)

// MagicLinkMessage is the send request for one issued assignment. The link
// is plaintext here and nowhere else on the wire; the client never logs it.
type MagicLinkMessage struct {
	BusinessId    string    `json:"business_id"`
	AssignmentId  int       `json:"assignment_id"`
	Channel       string    `json:"channel"`
	RecipientName string    `json:"recipient_name"`
	Email         string    `json:"email,omitempty"`
	Phone         string    `json:"phone,omitempty"`
	LocationName  string    `json:"location_name"`
	LinkUrl       string    `json:"link_url"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// ActionNoticeMessage tells an assignee a failed check opened a corrective
// action against them.
type ActionNoticeMessage struct {
	BusinessId     string    `json:"business_id"`
	ActionId       int       `json:"action_id"`
	AssigneeName   string    `json:"assignee_name"`
	Email          string    `json:"email,omitempty"`
	LocationName   string    `json:"location_name"`
	Title          string    `json:"title"`
	Severity       string    `json:"severity"`
	DueAt          time.Time `json:"due_at"`
	BeforePhotoUrl string    `json:"before_photo_url,omitempty"`
}

type deliveryClient struct {
	baseURL   string
	apiKey    string
	apiKeyHdr string
	http      *http.Client
}

var (
	clientOnce    sync.Once
	defaultClient *deliveryClient
)

func getClient() *deliveryClient {
	clientOnce.Do(func() {
		baseURL := strings.TrimSpace(os.Getenv("DELIVERY_API_BASE_URL"))
		if baseURL == "" {
			log.Println("DELIVERY_API_BASE_URL not set, outbound messages will be skipped")
			return
		}
		apiKeyHeader := strings.TrimSpace(os.Getenv("DELIVERY_API_KEY_HEADER"))
		if apiKeyHeader == "" {
			apiKeyHeader = "X-API-Key"
		}
		defaultClient = &deliveryClient{
			baseURL:   strings.TrimRight(baseURL, "/"),
			apiKey:    strings.TrimSpace(os.Getenv("DELIVERY_API_KEY")),
			apiKeyHdr: apiKeyHeader,
			http:      &http.Client{Timeout: 30 * time.Second},
		}
	})
	return defaultClient
}

// SendMagicLink hands the link to the delivery provider. Without a
// configured provider the send is a no-op success so local environments
// still move assignments to SENT.
func SendMagicLink(ctx context.Context, msg *MagicLinkMessage) error {
	return post(ctx, "/v1/messages/magic-link", msg)
}

// SendActionNotice notifies the assignee of a newly opened action.
func SendActionNotice(ctx context.Context, msg *ActionNoticeMessage) error {
	return post(ctx, "/v1/messages/action-notice", msg)
}

func post(ctx context.Context, path string, payload interface{}) error {
	c := getClient()
	if c == nil {
		return nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	if c.apiKey != "" {
		req.Header.Set(c.apiKeyHdr, c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("delivery api error %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return nil
}
