package racemap

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/racemap/mylaps-forwarder/internal/constants"
	"github.com/racemap/mylaps-forwarder/internal/models"
	http_utils "github.com/racemap/mylaps-forwarder/pkg/httpUtils"
)

// StatusError is returned when the timing input API answers with anything but 200.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("racemap: unexpected status %d: %s", e.StatusCode, e.Body)
}

// Client submits timing reads to the Racemap timing input API.
// It keeps no per-call state and is safe for concurrent use.
type Client struct {
	endpoint   string
	token      string
	httpClient *http.Client
}

// NewClient creates a Client for the API at host authenticated with token.
func NewClient(host, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = constants.DefaultUpstreamTimeout
	}
	return &Client{
		endpoint:   strings.TrimRight(host, "/") + constants.TimingInputPath,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// SendTimingReads posts reads as one JSON array.
func (c *Client) SendTimingReads(ctx context.Context, reads []models.TimingRead) error {
	if reads == nil {
		reads = []models.TimingRead{}
	}
	status, body, err := http_utils.PostJSON(ctx, c.httpClient, c.endpoint,
		map[string]string{constants.APITokenHeader: c.token}, reads)
	if err != nil {
		return fmt.Errorf("racemap: failed to send %d timing reads: %w", len(reads), err)
	}
	if status != http.StatusOK {
		return &StatusError{StatusCode: status, Body: string(body)}
	}
	return nil
}

// CheckAvailability posts an empty batch, which validates both reachability and the token.
func (c *Client) CheckAvailability(ctx context.Context) error {
	return c.SendTimingReads(ctx, []models.TimingRead{})
}

// Publish implements the read sink used by the dispatcher.
func (c *Client) Publish(ctx context.Context, reads []models.TimingRead) error {
	return c.SendTimingReads(ctx, reads)
}
