package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/tswimming/swimschool-api/pkg/config"
)

// ImageHostClient uploads images to the external image host and returns
// permanent public URLs. The wire format follows the imgbb-style upload API:
// multipart POST with an "image" part, JSON response carrying success flag
// and the hosted URL.
type ImageHostClient struct {
	uploadURL string
	apiKey    string
	client    *http.Client
}

// NewImageHostClient constructs a client from configuration.
func NewImageHostClient(cfg config.ImageHostConfig) *ImageHostClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ImageHostClient{
		uploadURL: cfg.UploadURL,
		apiKey:    cfg.APIKey,
		client:    &http.Client{Timeout: timeout},
	}
}

type imageHostResponse struct {
	Success bool `json:"success"`
	Data    struct {
		URL string `json:"url"`
	} `json:"data"`
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Upload sends the image bytes and returns the hosted URL. Any failure is
// returned to the caller; the enclosing operation must abort rather than
// persist a record without its evidence.
func (c *ImageHostClient) Upload(ctx context.Context, filename string, r io.Reader) (string, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("image", filename)
	if err != nil {
		return "", fmt.Errorf("prepare upload form: %w", err)
	}
	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("buffer upload image: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finalize upload form: %w", err)
	}

	endpoint := c.uploadURL
	if c.apiKey != "" {
		endpoint = fmt.Sprintf("%s?key=%s", c.uploadURL, url.QueryEscape(c.apiKey))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return "", fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	var parsed imageHostResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if !parsed.Success || parsed.Data.URL == "" {
		msg := parsed.Error.Message
		if msg == "" {
			msg = fmt.Sprintf("upload rejected with status %d", resp.StatusCode)
		}
		return "", fmt.Errorf("image host: %s", msg)
	}

	return parsed.Data.URL, nil
}
