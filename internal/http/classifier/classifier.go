// Package classifier calls the road-image classification model.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/bwise1/safestreet/internal/metrics"
	"github.com/bwise1/safestreet/internal/model"
	"github.com/pkg/errors"
)

const serviceName = "classifier"

type Client struct {
	URL        string
	HTTPClient *http.Client
}

func NewClient(url string, timeout time.Duration) *Client {
	return &Client{
		URL:        url,
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

type classifyResponse struct {
	IsRoadImage *bool `json:"is_road_image"`
}

// IsRoadImage reports whether the classifier considers image a road photo.
// Any transport failure, non-2xx status or malformed body is an error.
func (c *Client) IsRoadImage(ctx context.Context, image []byte) (bool, error) {
	body, contentType, err := imageForm(image)
	if err != nil {
		return false, errors.Wrap(err, "build classifier form")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, body)
	if err != nil {
		return false, errors.Wrap(err, "create classifier request")
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		metrics.RecordExternalCall(serviceName, false)
		return false, &model.TransportError{Service: serviceName, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		metrics.RecordExternalCall(serviceName, false)
		return false, &model.TransportError{Service: serviceName, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.RecordExternalCall(serviceName, false)
		return false, &model.TransportError{
			Service:    serviceName,
			StatusCode: resp.StatusCode,
			Detail:     detail(raw),
		}
	}

	var out classifyResponse
	if err := json.Unmarshal(raw, &out); err != nil || out.IsRoadImage == nil {
		metrics.RecordExternalCall(serviceName, false)
		return false, &model.TransportError{
			Service:    serviceName,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("malformed response: %s", strings.TrimSpace(string(raw))),
		}
	}

	metrics.RecordExternalCall(serviceName, true)
	return *out.IsRoadImage, nil
}

func imageForm(image []byte) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image.jpg"`)
	h.Set("Content-Type", "image/jpeg")
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(image); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// detail extracts a FastAPI style {"detail": "..."} message, falling back
// to the raw body.
func detail(raw []byte) string {
	var body struct {
		Detail interface{} `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if s, ok := body.Detail.(string); ok && s != "" {
			return s
		}
	}
	return strings.TrimSpace(string(raw))
}
