// Package detector hands stored uploads to the damage detection model.
package detector

import (
	"bytes"
	"context"
	"encoding/json"
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

const serviceName = "detector"

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

// Detect sends image with the id it was stored under. The response body of
// a successful call is not interpreted; the detector reports its result
// through the detection callback.
func (c *Client) Detect(ctx context.Context, image []byte, originalImageID string) error {
	body, contentType, err := detectForm(image, originalImageID)
	if err != nil {
		return errors.Wrap(err, "build detector form")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, body)
	if err != nil {
		return errors.Wrap(err, "create detector request")
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		metrics.RecordExternalCall(serviceName, false)
		return &model.TransportError{Service: serviceName, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.RecordExternalCall(serviceName, false)
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		return &model.TransportError{
			Service:    serviceName,
			StatusCode: resp.StatusCode,
			Detail:     detail(raw),
		}
	}

	_, _ = io.Copy(io.Discard, resp.Body)
	metrics.RecordExternalCall(serviceName, true)
	return nil
}

func detectForm(image []byte, originalImageID string) (io.Reader, string, error) {
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
	if err := w.WriteField("original_image_id", originalImageID); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

// detail returns the "detail" field of an error body when it is a string.
// Other bodies carry no detail.
func detail(raw []byte) string {
	var body struct {
		Detail interface{} `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err != nil {
		return ""
	}
	if s, ok := body.Detail.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}
