package stadiamaps

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bwise1/safestreet/internal/metrics"
	"github.com/bwise1/safestreet/internal/model"
	"github.com/google/go-querystring/query"
	"github.com/pkg/errors"
)

const (
	defaultStadiaBaseURL = "https://api.stadiamaps.com"
	serviceName          = "geocoder"
)

// Client handles communication with the Stadia Maps API.
type Client struct {
	BaseURL    *url.URL
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new Stadia Maps API client with the given timeout.
func NewClient(apiKey string, timeout time.Duration) *Client {
	baseURL, _ := url.Parse(defaultStadiaBaseURL)
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				IdleConnTimeout:     30 * time.Second,
				TLSHandshakeTimeout: 5 * time.Second,
			},
		},
	}
}

// GeocodeQuery represents parameters for geocoding requests.
type GeocodeQuery struct {
	Text     string   `url:"text,omitempty"`
	PointLat *float64 `url:"point.lat,omitempty"`
	PointLon *float64 `url:"point.lon,omitempty"`
	Size     *int     `url:"size,omitempty"`
	Layers   []string `url:"layers,omitempty,comma"` // e.g., "address", "street"
}

// GeoJSONFeatureCollection is the response structure for geocoding APIs.
type GeoJSONFeatureCollection struct {
	Type     string `json:"type"` // "FeatureCollection"
	Features []struct {
		Type     string `json:"type"` // "Feature"
		Geometry *struct {
			Type        string    `json:"type"`        // "Point"
			Coordinates []float64 `json:"coordinates"` // [lon, lat]
		} `json:"geometry"`
		Properties map[string]interface{} `json:"properties"` // street, locality, region, country, ...
	} `json:"features"`
}

// buildURL constructs the API URL with query parameters.
func (c *Client) buildURL(endpoint string, queryParams interface{}) (string, error) {
	rel, err := url.Parse(endpoint)
	if err != nil {
		return "", errors.Wrap(err, "parse endpoint")
	}
	u := c.BaseURL.ResolveReference(rel)

	q := u.Query()
	q.Set("api_key", c.APIKey)

	if queryParams != nil {
		v, err := query.Values(queryParams)
		if err != nil {
			return "", errors.Wrap(err, "encode query parameters")
		}
		for k, vals := range v {
			for _, val := range vals {
				q.Add(k, val)
			}
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Reverse performs reverse geocoding.
// Endpoint: /geocoding/v1/reverse
func (c *Client) Reverse(ctx context.Context, lat, lon float64, params *GeocodeQuery) (*GeoJSONFeatureCollection, error) {
	if params == nil {
		params = &GeocodeQuery{}
	}
	params.PointLat = &lat
	params.PointLon = &lon

	reqURL, err := c.buildURL("/geocoding/v1/reverse", params)
	if err != nil {
		return nil, errors.Wrap(err, "build reverse geocode URL")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create reverse geocode request")
	}

	var result GeoJSONFeatureCollection
	if err := c.do(req, &result); err != nil {
		return nil, errors.Wrap(err, "execute reverse geocode request")
	}
	return &result, nil
}

// Search performs forward geocoding.
// Endpoint: /geocoding/v1/search
func (c *Client) Search(ctx context.Context, text string, params *GeocodeQuery) (*GeoJSONFeatureCollection, error) {
	if params == nil {
		params = &GeocodeQuery{}
	}
	params.Text = text

	reqURL, err := c.buildURL("/geocoding/v1/search", params)
	if err != nil {
		return nil, errors.Wrap(err, "build search URL")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "create search request")
	}

	var result GeoJSONFeatureCollection
	if err := c.do(req, &result); err != nil {
		return nil, errors.Wrap(err, "execute search request")
	}
	return &result, nil
}

// ForwardGeocode returns the coordinates of the best match for a typed
// address, or model.ErrAddressNotFound.
func (c *Client) ForwardGeocode(ctx context.Context, address string) (float64, float64, error) {
	size := 1
	result, err := c.Search(ctx, address, &GeocodeQuery{Size: &size})
	if err != nil {
		return 0, 0, err
	}

	for _, feature := range result.Features {
		if feature.Geometry == nil || len(feature.Geometry.Coordinates) < 2 {
			continue
		}
		lon, lat := feature.Geometry.Coordinates[0], feature.Geometry.Coordinates[1]
		return lat, lon, nil
	}
	return 0, 0, model.ErrAddressNotFound
}

// ReverseGeocode returns the address candidates for a point, best match first.
func (c *Client) ReverseGeocode(ctx context.Context, lat, lon float64) ([]model.Address, error) {
	size := 5
	result, err := c.Reverse(ctx, lat, lon, &GeocodeQuery{Size: &size})
	if err != nil {
		return nil, err
	}

	addresses := make([]model.Address, 0, len(result.Features))
	for _, feature := range result.Features {
		props := feature.Properties
		addresses = append(addresses, model.Address{
			Street:  street(props),
			City:    firstString(props, "locality", "localadmin", "county"),
			Region:  firstString(props, "region"),
			Country: firstString(props, "country"),
		})
	}
	return addresses, nil
}

func street(props map[string]interface{}) string {
	name := firstString(props, "street")
	if name == "" {
		return ""
	}
	if number := firstString(props, "housenumber"); number != "" {
		return number + " " + name
	}
	return name
}

func firstString(props map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if v, ok := props[key].(string); ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// do executes HTTP requests and decodes JSON responses.
func (c *Client) do(req *http.Request, v interface{}) error {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		metrics.RecordExternalCall(serviceName, false)
		return &model.TransportError{Service: serviceName, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.RecordExternalCall(serviceName, false)
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &model.TransportError{
			Service:    serviceName,
			StatusCode: resp.StatusCode,
			Detail:     strings.TrimSpace(string(bodyBytes)),
		}
	}
	metrics.RecordExternalCall(serviceName, true)

	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return errors.Wrap(err, "decode response")
		}
	}
	return nil
}
