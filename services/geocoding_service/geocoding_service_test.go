package geocoding_service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joy095/dispatch/logger"
)

func init() {
	logger.Silence()
}

const okBody = `{"status":"OK","results":[{"formatted_address":"Park Street, Kolkata","place_id":"abc","geometry":{"location":{"lat":22.5526,"lng":88.3527}}}]}`

func TestGeocodeReturnsFirstResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Park Street", r.URL.Query().Get("address"))
		assert.Equal(t, "secret", r.URL.Query().Get("key"))
		_, _ = w.Write([]byte(okBody))
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL, "secret").Geocode(context.Background(), "  Park Street ")
	require.NoError(t, err)
	assert.Equal(t, "Park Street, Kolkata", res.FormattedAddress)
	assert.Equal(t, "abc", res.PlaceID)
	assert.InDelta(t, 88.3527, res.Point.Lon, 1e-9)
	assert.InDelta(t, 22.5526, res.Point.Lat, 1e-9)
}

func TestGeocodeZeroResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ZERO_RESULTS","results":[]}`))
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "k").Geocode(context.Background(), "nowhere")
	assert.True(t, errors.Is(err, ErrNoResults))
}

func TestGeocodeRetriesServerErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(okBody))
	}))
	defer srv.Close()

	res, err := NewClient(srv.URL, "k").Geocode(context.Background(), "Park Street")
	require.NoError(t, err)
	assert.Equal(t, "abc", res.PlaceID)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestGeocodeDoesNotRetryClientErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL, "k").Geocode(context.Background(), "Park Street")
	require.Error(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestGeocodeRequiresAddress(t *testing.T) {
	_, err := NewClient("", "k").Geocode(context.Background(), "   ")
	assert.Error(t, err)
}
