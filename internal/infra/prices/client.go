// Package prices reads the published day-ahead price tree.
package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/pkg/errors"
)

const defaultTimeout = 20 * time.Second

// ErrNoTimestamp is returned when the latest feed holds no usable records.
var ErrNoTimestamp = errors.New("no valid timestamp in latest feed")

// ErrFeedNotFound is returned when the zone has no published latest feed.
var ErrFeedNotFound = errors.New("latest feed not found")

// Client fetches the newest published timestamp for a zone. Requests carry an
// explicit timeout so a hung fetch cannot stall the poll cycle indefinitely.
type Client struct {
	httpClient *http.Client
}

// NewClient builds a price feed client; timeout <= 0 uses the default.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{httpClient: &http.Client{Timeout: timeout}}
}

// LatestTimestamp fetches {origin}/electricity/{zone}/latest/index.json and
// returns the lexicographically greatest timestamp. ISO-8601 strings sort
// correctly lexicographically, which this relies on deliberately.
func (c *Client) LatestTimestamp(ctx context.Context, origin, zone string) (string, error) {
	url := fmt.Sprintf("%s/electricity/%s/latest/index.json", origin, zone)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", errors.Wrap(err, "build latest request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, "fetch latest feed")
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", errors.Wrapf(ErrFeedNotFound, "zone %s", zone)
	}
	if resp.StatusCode != http.StatusOK {
		return "", errors.Errorf("latest feed returned status %d", resp.StatusCode)
	}

	var records []struct {
		Timestamp string `json:"timestamp"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return "", errors.Wrap(err, "decode latest feed")
	}

	best := ""
	for _, record := range records {
		if record.Timestamp > best {
			best = record.Timestamp
		}
	}
	if best == "" {
		return "", ErrNoTimestamp
	}

	return best, nil
}
