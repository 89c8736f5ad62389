// Package sharedsvc is the HTTP client for the platform's shared service,
// which owns the user store (credential validation) and the central audit
// log. Inkwell holds no user data of its own.
package sharedsvc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/inkwell-sys/inkwell/internal/audit"
	"github.com/inkwell-sys/inkwell/internal/config"
)

// ErrInvalidCredential means the shared service examined the credential
// and rejected it. This is a definitive answer, not an outage.
var ErrInvalidCredential = errors.New("credential rejected by shared service")

// Credential is what a caller presents to authenticate: a basic-auth pair
// or an opaque bearer token.
type Credential struct {
	Username string
	Password string
	Token    string
}

// Empty reports whether no credential material is present.
func (c Credential) Empty() bool {
	return c.Username == "" && c.Token == ""
}

// Identity is the shared service's answer for a valid credential.
type Identity struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
}

// Client talks to the shared service.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a shared service client.
func NewClient(cfg config.SharedConfig) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// ValidateCredential checks a credential against the shared user store.
// Returns ErrInvalidCredential for a definitive rejection; any other error
// means the answer is unknown (network trouble, shared service down).
func (c *Client) ValidateCredential(ctx context.Context, cred Credential) (Identity, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/login", nil)
	if err != nil {
		return Identity{}, fmt.Errorf("build login request: %w", err)
	}
	if cred.Token != "" {
		req.Header.Set("Authorization", "Bearer "+cred.Token)
	} else {
		req.SetBasicAuth(cred.Username, cred.Password)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return Identity{}, fmt.Errorf("shared service login: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		var ident Identity
		if err := json.NewDecoder(resp.Body).Decode(&ident); err != nil {
			return Identity{}, fmt.Errorf("decode login response: %w", err)
		}
		if ident.UserID == "" {
			ident.UserID = cred.Username
		}
		if ident.Username == "" {
			ident.Username = cred.Username
		}
		return ident, nil

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Identity{}, ErrInvalidCredential

	default:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Identity{}, fmt.Errorf("shared service login returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
}

// SubmitAuditRecord posts a record to the central audit log. Implements
// audit.Submitter.
func (c *Client) SubmitAuditRecord(ctx context.Context, rec audit.Record) error {
	body, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal audit record: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/logs", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build audit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("submit audit record: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("audit submission returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}

// Verify interface implementation at compile time.
var _ audit.Submitter = (*Client)(nil)
