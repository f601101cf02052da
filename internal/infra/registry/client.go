package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"spot/internal/domain/entity"
	"spot/internal/domain/repository"

	"github.com/pkg/errors"
)

const defaultClientTimeout = 20 * time.Second

// Client talks to the subscription registry over HTTP. The admin endpoints
// require the bearer token; Register and Unregister do not.
type Client struct {
	baseURL    string
	adminToken string
	httpClient *http.Client
}

// RegisterResult is the registry's reply to a successful registration.
type RegisterResult struct {
	ID   string `json:"id"`
	Zone string `json:"zone"`
}

// NewClient builds a registry client. An explicit timeout keeps a hung
// registry from stalling callers indefinitely.
func NewClient(baseURL, adminToken string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}

	return &Client{
		baseURL:    baseURL,
		adminToken: adminToken,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Register stores a subscription under a zone and returns the assigned id.
func (c *Client) Register(ctx context.Context, sub entity.Subscription, zone string) (RegisterResult, error) {
	body, err := json.Marshal(map[string]any{
		"subscription": sub,
		"zone":         zone,
	})
	if err != nil {
		return RegisterResult{}, errors.Wrap(err, "marshal register request")
	}

	var result RegisterResult
	if err := c.do(ctx, http.MethodPost, "/subscribe", body, false, http.StatusCreated, &result); err != nil {
		return RegisterResult{}, err
	}

	return result, nil
}

// Unregister removes a subscription. Deleting an unknown id succeeds.
func (c *Client) Unregister(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/subscribe/"+url.PathEscape(id), nil, false, http.StatusNoContent, nil)
}

// ListSubscriptions returns every subscription registered under a zone.
func (c *Client) ListSubscriptions(ctx context.Context, zone string) ([]entity.Subscription, error) {
	var subs []entity.Subscription
	path := "/admin/subs?zone=" + url.QueryEscape(zone)
	if err := c.do(ctx, http.MethodGet, path, nil, true, http.StatusOK, &subs); err != nil {
		return nil, err
	}

	return subs, nil
}

// GetCursor reads the per-zone announcement cursor. A zone that was never
// announced reports repository.ErrNotFound.
func (c *Client) GetCursor(ctx context.Context, zone string) (string, error) {
	var cursor entity.ZoneCursor
	if err := c.do(ctx, http.MethodGet, "/admin/ts/"+url.PathEscape(zone), nil, true, http.StatusOK, &cursor); err != nil {
		return "", err
	}

	return cursor.Timestamp, nil
}

// PutCursor replaces the per-zone announcement cursor.
func (c *Client) PutCursor(ctx context.Context, zone, timestamp string) error {
	body, err := json.Marshal(map[string]string{"timestamp": timestamp})
	if err != nil {
		return errors.Wrap(err, "marshal cursor request")
	}

	return c.do(ctx, http.MethodPut, "/admin/ts/"+url.PathEscape(zone), body, true, http.StatusOK, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, admin bool, wantStatus int, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return errors.Wrapf(err, "build %s %s request", method, path)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if admin {
		req.Header.Set("Authorization", "Bearer "+c.adminToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return errors.Wrapf(repository.ErrNotFound, "%s %s", method, path)
	}
	if resp.StatusCode != wantStatus {
		return errors.Errorf("%s %s: %s", method, path, readErrorKind(resp))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return errors.Wrapf(err, "decode %s %s response", method, path)
		}
	}

	return nil
}

// readErrorKind extracts the machine-readable error tag from a failure body.
func readErrorKind(resp *http.Response) string {
	var body struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4<<10)).Decode(&body); err != nil || body.Error == "" {
		return fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}
	if body.Detail != "" {
		return fmt.Sprintf("%s (%s)", body.Error, body.Detail)
	}

	return body.Error
}
