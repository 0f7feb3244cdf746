package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFoldASCII(t *testing.T) {
	assert.Equal(t, "Avenida Millan 2500, Montevideo", FoldASCII("Avenida Millán 2500, Montevideo"))
	assert.Equal(t, "Sao Paulo", FoldASCII("São Paulo"))
	assert.Equal(t, "", FoldASCII("  東京 "))
}

func TestGeocode(t *testing.T) {
	var gotQuery, gotAgent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		gotQuery = r.URL.Query().Get("q")
		gotAgent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"name":"Avenida Millán","display_name":"Avenida Millán, Montevideo","lat":"-34.8655","lon":"-56.2013"}]`))
	}))
	defer srv.Close()

	g := New(Config{URL: srv.URL, UserAgent: "test-agent", RatePerSec: 100})
	place, err := g.Geocode(context.Background(), "Avenida Millán")
	require.NoError(t, err)
	assert.Equal(t, "Avenida Millan", gotQuery)
	assert.Equal(t, "test-agent", gotAgent)
	assert.Equal(t, "Avenida Millán", place.Name)
	assert.InDelta(t, -34.8655, place.Latitude, 1e-9)
	assert.InDelta(t, -56.2013, place.Longitude, 1e-9)
}

func TestGeocodeErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		want    error
	}{
		{
			name:    "no results",
			handler: func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`[]`)) },
			want:    ErrNotFound,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "overloaded", http.StatusServiceUnavailable)
			},
			want: ErrService,
		},
		{
			name:    "garbage body",
			handler: func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`<html>`)) },
			want:    ErrService,
		},
		{
			name:    "bad coordinates",
			handler: func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`[{"lat":"north","lon":"1"}]`)) },
			want:    ErrService,
		},
		{
			name: "slow service",
			handler: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(2 * time.Second):
				}
			},
			want: ErrTimeout,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()
			g := New(Config{URL: srv.URL, Timeout: 100 * time.Millisecond, RatePerSec: 100})
			_, err := g.Geocode(context.Background(), "Calle Falsa 123")
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestGeocodeEmptyAddress(t *testing.T) {
	g := New(Config{URL: "http://127.0.0.1:0"})
	_, err := g.Geocode(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyAddress)
}
