package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/bastiangx/streetmatch/pkg/geocode"
	"github.com/bastiangx/streetmatch/pkg/match"
	"github.com/bastiangx/streetmatch/pkg/model"
)

// CompareRequest is the request body for POST /compare.
type CompareRequest struct {
	Name1    string `json:"name1"`
	Name2    string `json:"name2"`
	Feedback *int   `json:"feedback,omitempty"`
}

// CompareResponse is the response body for POST /compare.
type CompareResponse struct {
	Name1        string  `json:"name1"`
	Name2        string  `json:"name2"`
	Label        string  `json:"label"`
	Predicted    string  `json:"predicted"`
	EditDistance int     `json:"edit_distance"`
	Similarity   float64 `json:"similarity"`
	Cosine       float64 `json:"cosine"`
	Confidence   float64 `json:"confidence"`
}

// ErrorResponse is returned when feedback was applied but not saved. The
// verdict is still attached.
type ErrorResponse struct {
	Error  string           `json:"error"`
	Result *CompareResponse `json:"result,omitempty"`
}

// GeolocateRequest is the request body for POST /geolocate.
type GeolocateRequest struct {
	Address string `json:"address"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// InfoResponse is the response body for GET /api/info.
type InfoResponse struct {
	Classifier     string `json:"classifier"`
	Policy         string `json:"policy"`
	Dimension      int    `json:"dimension"`
	VocabularySize int    `json:"vocabulary_size"`
	Updates        int    `json:"updates"`
}

func newCompareResponse(v match.Verdict) CompareResponse {
	return CompareResponse{
		Name1:        v.Name1,
		Name2:        v.Name2,
		Label:        v.Label.String(),
		Predicted:    v.Predicted.String(),
		EditDistance: v.EditDistance,
		Similarity:   v.Similarity,
		Cosine:       v.Cosine,
		Confidence:   v.Confidence,
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleInfo(c echo.Context) error {
	info := s.matcher.Info()
	return c.JSON(http.StatusOK, InfoResponse{
		Classifier:     info.Kind,
		Policy:         info.Policy,
		Dimension:      info.Dim,
		VocabularySize: info.VocabularySize,
		Updates:        info.Updates,
	})
}

func (s *Server) handleCompare(c echo.Context) error {
	start := time.Now()
	var req CompareRequest
	if err := c.Bind(&req); err != nil {
		s.log.Warn("invalid compare request", "err", err)
		s.metrics.ObserveCompare(transport, "", "invalid_input", time.Since(start))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	v, err := s.matcher.Compare(c.Request().Context(), req.Name1, req.Name2, req.Feedback)
	elapsed := time.Since(start)
	if req.Feedback != nil {
		s.observeFeedback(*req.Feedback, err)
	}

	switch {
	case err == nil:
		s.metrics.ObserveCompare(transport, v.Label.String(), "", elapsed)
		return c.JSON(http.StatusOK, newCompareResponse(v))
	case errors.Is(err, match.ErrInvalidInput):
		s.metrics.ObserveCompare(transport, "", "invalid_input", elapsed)
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, match.ErrPersistence):
		s.metrics.ObserveCompare(transport, v.Label.String(), "persistence", elapsed)
		res := newCompareResponse(v)
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Result: &res})
	default:
		s.log.Error("compare failed", "name1", req.Name1, "name2", req.Name2, "err", err)
		s.metrics.ObserveCompare(transport, "", "internal", elapsed)
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) observeFeedback(label int, err error) {
	name := "invalid"
	if l := model.Label(label); l.Valid() {
		name = l.String()
	}
	status := "ok"
	switch {
	case errors.Is(err, match.ErrPersistence):
		status = "not_saved"
	case err != nil:
		status = "rejected"
	}
	s.metrics.ObserveFeedback(name, status, s.matcher.Info().Updates)
}

func (s *Server) handleGeolocate(c echo.Context) error {
	if s.geo == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "geocoding is disabled")
	}
	var req GeolocateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	place, err := s.geo.Geocode(c.Request().Context(), req.Address)
	if err != nil {
		status, result := geocodeStatus(err)
		s.metrics.ObserveGeocode(result)
		if status >= http.StatusInternalServerError {
			s.log.Warn("geocode failed", "address", req.Address, "err", err)
		}
		return echo.NewHTTPError(status, err.Error())
	}
	s.metrics.ObserveGeocode("ok")
	return c.JSON(http.StatusOK, place)
}

// geocodeStatus maps a geocoder error to its HTTP status and metric label.
func geocodeStatus(err error) (int, string) {
	kind := geocode.Kind(err)
	switch kind {
	case "invalid_input":
		return http.StatusBadRequest, kind
	case "not_found":
		return http.StatusNotFound, kind
	case "timeout":
		return http.StatusGatewayTimeout, kind
	case "service_error":
		return http.StatusBadGateway, kind
	default:
		return http.StatusInternalServerError, kind
	}
}
