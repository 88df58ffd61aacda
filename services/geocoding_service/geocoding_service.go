// services/geocoding_service
package geocoding_service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/joy095/dispatch/logger"
	"github.com/joy095/dispatch/utils/geo"
)

const DefaultBaseURL = "https://maps.googleapis.com/maps/api/geocode/json"

// ErrNoResults means the provider knows no place for the address.
var ErrNoResults = errors.New("no geocoding results")

// Result is the first match for an address.
type Result struct {
	Point            geo.Point `json:"point"`
	FormattedAddress string    `json:"formattedAddress"`
	PlaceID          string    `json:"placeId,omitempty"`
}

// Provider resolves free-text addresses.
type Provider interface {
	Geocode(ctx context.Context, address string) (*Result, error)
}

// Client talks to the Google Geocoding API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	MaxRetries uint64
}

func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL:    baseURL,
		APIKey:     apiKey,
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		MaxRetries: 2,
	}
}

type geocodeResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		FormattedAddress string `json:"formatted_address"`
		PlaceID          string `json:"place_id"`
		Geometry         struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
}

// Geocode returns the first result. Server errors and rate limiting are
// retried with backoff; anything else fails immediately.
func (c *Client) Geocode(ctx context.Context, address string) (*Result, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, fmt.Errorf("address is required")
	}

	q := url.Values{}
	q.Set("address", address)
	q.Set("key", c.APIKey)
	endpoint := c.BaseURL + "?" + q.Encode()

	var body geocodeResponse
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
		}
		resp, err := c.HTTPClient.Do(req)
		if err != nil {
			return fmt.Errorf("failed to call geocoder: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("geocoder returned %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("geocoder returned %d", resp.StatusCode))
		}
		body = geocodeResponse{}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode geocoder response: %w", err))
		}
		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	policy := backoff.WithContext(backoff.WithMaxRetries(b, c.MaxRetries), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		logger.ErrorLogger.Errorf("Geocoding %q failed: %v", address, err)
		return nil, fmt.Errorf("geocoding failed: %w", err)
	}

	switch body.Status {
	case "OK":
	case "ZERO_RESULTS":
		return nil, ErrNoResults
	default:
		return nil, fmt.Errorf("geocoding failed: %s %s", body.Status, body.ErrorMessage)
	}
	if len(body.Results) == 0 {
		return nil, ErrNoResults
	}

	first := body.Results[0]
	point := geo.Point{Lon: first.Geometry.Location.Lng, Lat: first.Geometry.Location.Lat}
	if !point.Valid() {
		return nil, fmt.Errorf("geocoder returned invalid coordinates %v", point.Coordinates())
	}
	logger.DebugLogger.Debugf("Geocoded %q to %v", address, point.Coordinates())
	return &Result{Point: point, FormattedAddress: first.FormattedAddress, PlaceID: first.PlaceID}, nil
}
