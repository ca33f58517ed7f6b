package homeassistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/emmatufvesson/relAI/internal/models"
)

const DefaultTimeout = 10 * time.Second

var (
	ErrMissingToken  = errors.New("HA_TOKEN is missing")
	ErrPublishFailed = errors.New("state publish failed")
)

// StatusError is a non-2xx answer from the states API
type StatusError struct {
	EntityID string
	Status   string
	Body     string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("set %s: bad status: %s, error: %s", e.EntityID, e.Status, e.Body)
}

func (e *StatusError) Unwrap() error {
	return ErrPublishFailed
}

// Client writes entity states through the Home Assistant REST API
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func New(baseURL, token string, timeout time.Duration) (*Client, error) {
	if token == "" {
		return nil, ErrMissingToken
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}, nil
}

type statePayload struct {
	State      string         `json:"state"`
	Attributes map[string]any `json:"attributes"`
}

// SetState upserts one entity
func (c *Client) SetState(ctx context.Context, entityID, state string, attrs map[string]any) error {
	if attrs == nil {
		attrs = map[string]any{}
	}
	body, err := json.Marshal(statePayload{State: state, Attributes: attrs})
	if err != nil {
		return fmt.Errorf("%w: marshal %s: %v", ErrPublishFailed, entityID, err)
	}

	endpoint := c.baseURL + "/api/states/" + url.PathEscape(entityID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: create request: %v", ErrPublishFailed, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: set %s: %v", ErrPublishFailed, entityID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{EntityID: entityID, Status: resp.Status, Body: strings.TrimSpace(string(b))}
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	return nil
}

// PublishBatch sends every metric of the batch, each with the batch's shared attributes.
// A failing metric does not stop the others; all failures are returned together.
func (c *Client) PublishBatch(ctx context.Context, batch models.PublishBatch) error {
	var result *multierror.Error
	for _, m := range batch.Metrics {
		if err := c.SetState(ctx, m.EntityID, m.State, batch.Attributes); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}
