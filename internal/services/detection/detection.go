package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/emmatufvesson/relAI/internal/models"
)

// DefaultTimeout bounds a single inference request
const DefaultTimeout = 10 * time.Second

var ErrInferenceFailed = errors.New("inference request failed")

type Client struct {
	URL  string
	http *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		URL:  strings.TrimRight(baseURL, "/"),
		http: &http.Client{Timeout: timeout},
	}
}

// Infer uploads the JPEG at path to /infer and decodes the detections
func (c *Client) Infer(ctx context.Context, path string) (*models.InferenceResponse, error) {
	imageData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read frame: %v", ErrInferenceFailed, err)
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filepath.Base(path)))
	h.Set("Content-Type", "image/jpeg")

	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("%w: create form part: %v", ErrInferenceFailed, err)
	}
	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("%w: write image data: %v", ErrInferenceFailed, err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("%w: close writer: %v", ErrInferenceFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL+"/infer", &buf)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrInferenceFailed, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInferenceFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: bad status: %s, error: %s", ErrInferenceFailed, resp.Status, strings.TrimSpace(string(bodyBytes)))
	}

	var out models.InferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrInferenceFailed, err)
	}

	return &out, nil
}

// Health is the inference server's /health body
type Health struct {
	OK    bool   `json:"ok"`
	Model string `json:"model"`
}

// Health queries GET /health
func (c *Client) Health(ctx context.Context) (*Health, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL+"/health", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bad status: %s", resp.Status)
	}

	var h Health
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return nil, fmt.Errorf("decode health: %w", err)
	}
	return &h, nil
}
