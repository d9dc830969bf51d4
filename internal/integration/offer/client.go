// Package offer talks to the offer catalogue that owns internship capacity.
package offer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	appErrors "github.com/noah-isme/internship-lifecycle-api/pkg/errors"
)

// Client queries remaining positions of an offer over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a client. A zero timeout defaults to five seconds.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

type positionsResponse struct {
	Data struct {
		RemainingPositions *int `json:"remaining_positions"`
	} `json:"data"`
}

// RemainingPositions returns open positions for the offer. Transport failures,
// timeouts and 5xx answers map to DependencyUnavailable; an unknown offer maps to NotFound.
func (c *Client) RemainingPositions(ctx context.Context, offerID string) (int, error) {
	if c.baseURL == "" {
		return 0, appErrors.Clone(appErrors.ErrDependencyUnavailable, "offer service is not configured")
	}
	endpoint := fmt.Sprintf("%s/offers/%s/capacity", c.baseURL, url.PathEscape(offerID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "build offer request")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, appErrors.WrapAs(err, appErrors.ErrDependencyUnavailable, "offer service unreachable")
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return 0, appErrors.Clonef(appErrors.ErrNotFound, "offer %s not found", offerID)
	case resp.StatusCode >= 500:
		return 0, appErrors.Clonef(appErrors.ErrDependencyUnavailable, "offer service returned %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return 0, appErrors.Clonef(appErrors.ErrDependencyUnavailable, "unexpected offer service status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return 0, appErrors.WrapAs(err, appErrors.ErrDependencyUnavailable, "read offer response")
	}
	var payload positionsResponse
	if err := json.Unmarshal(body, &payload); err != nil || payload.Data.RemainingPositions == nil {
		return 0, appErrors.Clone(appErrors.ErrDependencyUnavailable, "malformed offer capacity response")
	}
	if *payload.Data.RemainingPositions < 0 {
		return 0, nil
	}
	return *payload.Data.RemainingPositions, nil
}
