package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bastiangx/streetmatch/internal/metrics"
	"github.com/bastiangx/streetmatch/pkg/geocode"
	"github.com/bastiangx/streetmatch/pkg/match"
	"github.com/bastiangx/streetmatch/pkg/model"
)

type fakeMatcher struct {
	verdict match.Verdict
	err     error
	gotFB   *int
	updates int
}

func (f *fakeMatcher) Compare(_ context.Context, name1, name2 string, feedback *int) (match.Verdict, error) {
	f.gotFB = feedback
	if name1 == "" || name2 == "" {
		return match.Verdict{}, fmt.Errorf("%w: name1 and name2 are required", match.ErrInvalidInput)
	}
	v := f.verdict
	v.Name1, v.Name2 = name1, name2
	if feedback != nil && f.err == nil {
		f.updates++
	}
	return v, f.err
}

func (f *fakeMatcher) Info() match.Info {
	return match.Info{Kind: model.KindLinear, Policy: "levenshtein", Dim: 9, VocabularySize: 7, Updates: f.updates}
}

type fakeGeocoder struct {
	place geocode.Place
	err   error
}

func (f fakeGeocoder) Geocode(context.Context, string) (geocode.Place, error) {
	return f.place, f.err
}

func setupTestServer(t *testing.T, m Matcher, geo geocode.Geocoder) *Server {
	t.Helper()
	srv, err := NewServer(m, geo, metrics.New(), nil)
	require.NoError(t, err)
	return srv
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Echo().ServeHTTP(rec, req)
	return rec
}

func TestNewServer(t *testing.T) {
	_, err := NewServer(nil, nil, nil, nil)
	assert.Error(t, err)

	srv, err := NewServer(&fakeMatcher{}, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "localhost", srv.config.Host)
	assert.Equal(t, 5000, srv.config.Port)
}

func TestHandleHealth(t *testing.T) {
	srv := setupTestServer(t, &fakeMatcher{}, nil)
	rec := do(t, srv, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestHandleInfo(t *testing.T) {
	srv := setupTestServer(t, &fakeMatcher{}, nil)
	rec := do(t, srv, http.MethodGet, "/api/info", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp InfoResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, InfoResponse{Classifier: "linear", Policy: "levenshtein", Dimension: 9, VocabularySize: 7}, resp)
}

func TestHandleCompare(t *testing.T) {
	m := &fakeMatcher{verdict: match.Verdict{
		Label: model.Exact, Predicted: model.Similar,
		EditDistance: 0, Similarity: 1, Cosine: 1, Confidence: 1.73,
	}}
	srv := setupTestServer(t, m, nil)

	t.Run("verdict", func(t *testing.T) {
		rec := do(t, srv, http.MethodPost, "/compare", `{"name1":"Main Rd","name2":"main rd"}`)
		require.Equal(t, http.StatusOK, rec.Code)

		var resp CompareResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, CompareResponse{
			Name1: "Main Rd", Name2: "main rd",
			Label: "Exact", Predicted: "Similar",
			EditDistance: 0, Similarity: 1, Cosine: 1, Confidence: 1.73,
		}, resp)
		assert.Nil(t, m.gotFB)
	})

	t.Run("feedback is forwarded", func(t *testing.T) {
		rec := do(t, srv, http.MethodPost, "/compare", `{"name1":"a","name2":"b","feedback":1}`)
		require.Equal(t, http.StatusOK, rec.Code)
		require.NotNil(t, m.gotFB)
		assert.Equal(t, 1, *m.gotFB)
	})

	t.Run("missing name", func(t *testing.T) {
		rec := do(t, srv, http.MethodPost, "/compare", `{"name1":"Main Rd"}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("invalid json", func(t *testing.T) {
		rec := do(t, srv, http.MethodPost, "/compare", `{"name1":`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("metrics", func(t *testing.T) {
		rec := do(t, srv, http.MethodGet, "/metrics", "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `streetmatch_compare_total{label="Exact",transport="http"} 2`)
		assert.Contains(t, rec.Body.String(), `streetmatch_feedback_total{label="Similar",status="ok"} 1`)
	})
}

func TestHandleCompareErrors(t *testing.T) {
	t.Run("persistence failure keeps verdict", func(t *testing.T) {
		m := &fakeMatcher{
			verdict: match.Verdict{Label: model.Different, Predicted: model.Similar, EditDistance: 8, Similarity: 0.58},
			err:     fmt.Errorf("%w: disk full", match.ErrPersistence),
		}
		srv := setupTestServer(t, m, nil)
		rec := do(t, srv, http.MethodPost, "/compare", `{"name1":"18 de julio","name2":"Avenida 18 de julio","feedback":1}`)
		require.Equal(t, http.StatusInternalServerError, rec.Code)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Contains(t, resp.Error, "disk full")
		require.NotNil(t, resp.Result)
		assert.Equal(t, "Different", resp.Result.Label)
		assert.Equal(t, 0.58, resp.Result.Similarity)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		m := &fakeMatcher{err: fmt.Errorf("%w: got 3 features, want 9", match.ErrDimensionMismatch)}
		srv := setupTestServer(t, m, nil)
		rec := do(t, srv, http.MethodPost, "/compare", `{"name1":"a","name2":"b"}`)
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
	})

	t.Run("invalid feedback", func(t *testing.T) {
		m := &fakeMatcher{err: fmt.Errorf("%w: feedback 5", match.ErrInvalidInput)}
		srv := setupTestServer(t, m, nil)
		rec := do(t, srv, http.MethodPost, "/compare", `{"name1":"a","name2":"b","feedback":5}`)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleGeolocate(t *testing.T) {
	tests := []struct {
		name   string
		geo    geocode.Geocoder
		status int
	}{
		{"found", fakeGeocoder{place: geocode.Place{Name: "Avenida Millán", Latitude: -34.86, Longitude: -56.2}}, http.StatusOK},
		{"empty", fakeGeocoder{err: geocode.ErrEmptyAddress}, http.StatusBadRequest},
		{"not found", fakeGeocoder{err: fmt.Errorf("%w: x", geocode.ErrNotFound)}, http.StatusNotFound},
		{"timeout", fakeGeocoder{err: fmt.Errorf("%w: slow", geocode.ErrTimeout)}, http.StatusGatewayTimeout},
		{"service", fakeGeocoder{err: fmt.Errorf("%w: 503", geocode.ErrService)}, http.StatusBadGateway},
		{"disabled", nil, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := setupTestServer(t, &fakeMatcher{}, tt.geo)
			rec := do(t, srv, http.MethodPost, "/geolocate", `{"address":"Avenida Millán"}`)
			assert.Equal(t, tt.status, rec.Code)
			if tt.status == http.StatusOK {
				var place geocode.Place
				require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &place))
				assert.Equal(t, "Avenida Millán", place.Name)
			}
		})
	}
}
