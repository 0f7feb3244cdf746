package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/bastiangx/streetmatch/internal/metrics"
	"github.com/bastiangx/streetmatch/pkg/geocode"
	"github.com/bastiangx/streetmatch/pkg/match"
	"github.com/bastiangx/streetmatch/pkg/model"
)

const transport = "ipc"

// Matcher is the part of *match.Engine the server needs.
type Matcher interface {
	Compare(ctx context.Context, name1, name2 string, feedback *int) (match.Verdict, error)
	Update(ctx context.Context, name1, name2 string, label int) error
	Info() match.Info
}

// Server handles msgpack IPC over a reader and writer pair.
type Server struct {
	matcher Matcher
	geo     geocode.Geocoder
	metrics *metrics.Metrics
	dec     *msgpack.Decoder
	enc     *msgpack.Encoder
	w       *bufio.Writer
	handled int
}

// NewServer creates a server using stdin/stdout. geo and mx may be nil.
func NewServer(m Matcher, geo geocode.Geocoder, mx *metrics.Metrics) *Server {
	return NewServerWithIO(m, geo, mx, os.Stdin, os.Stdout)
}

// NewServerWithIO creates a server on arbitrary streams.
func NewServerWithIO(m Matcher, geo geocode.Geocoder, mx *metrics.Metrics, r io.Reader, w io.Writer) *Server {
	bw := bufio.NewWriter(w)
	return &Server{
		matcher: m,
		geo:     geo,
		metrics: mx,
		dec:     msgpack.NewDecoder(bufio.NewReader(r)),
		enc:     msgpack.NewEncoder(bw),
		w:       bw,
	}
}

// Start signals readiness, then serves requests until the input ends or ctx
// is cancelled. A malformed message ends the stream since msgpack cannot
// resynchronize after it.
func (s *Server) Start(ctx context.Context) error {
	log.Debug("Starting IPC server.")
	if err := s.send(StatusResponse{Status: "ready"}); err != nil {
		return err
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}
		var req Request
		if err := s.dec.Decode(&req); err != nil {
			if errors.Is(err, io.EOF) {
				log.Debugf("Input closed after %d requests", s.handled)
				return nil
			}
			log.Errorf("Decoding request: %v", err)
			s.sendError("", "invalid msgpack request", http.StatusBadRequest)
			return fmt.Errorf("decode request: %w", err)
		}
		s.handled++
		if err := s.handleRequest(ctx, req); err != nil {
			return err
		}
	}
}

// handleRequest dispatches on the action. Only write failures are returned.
// A panic in a handler is answered with a 500 instead of ending the process.
func (s *Server) handleRequest(ctx context.Context, req Request) (err error) {
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("Panic handling %q request %s: %v", req.Action, req.ID, r)
			err = s.sendError(req.ID, "internal error", http.StatusInternalServerError)
		}
	}()

	switch req.Action {
	case "compare", "":
		return s.handleCompare(ctx, req)
	case "feedback":
		return s.handleFeedback(ctx, req)
	case "health":
		return s.send(StatusResponse{ID: req.ID, Status: "ok"})
	case "info":
		info := s.matcher.Info()
		return s.send(InfoResponse{
			ID:             req.ID,
			Classifier:     info.Kind,
			Policy:         info.Policy,
			Dimension:      info.Dim,
			VocabularySize: info.VocabularySize,
			Updates:        info.Updates,
		})
	case "geolocate":
		return s.handleGeolocate(ctx, req)
	default:
		return s.sendError(req.ID, fmt.Sprintf("Unknown action: %s", req.Action), http.StatusBadRequest)
	}
}

func (s *Server) handleCompare(ctx context.Context, req Request) error {
	start := time.Now()
	v, err := s.matcher.Compare(ctx, req.Name1, req.Name2, req.Feedback)
	elapsed := time.Since(start)

	if req.Feedback != nil && (err == nil || errors.Is(err, match.ErrPersistence)) {
		status := "ok"
		if err != nil {
			status = "not_saved"
		}
		s.metrics.ObserveFeedback(model.Label(*req.Feedback).String(), status, s.matcher.Info().Updates)
	}

	resp := CompareResponse{
		ID:           req.ID,
		Label:        v.Label.String(),
		Predicted:    v.Predicted.String(),
		EditDistance: v.EditDistance,
		Similarity:   v.Similarity,
		Cosine:       v.Cosine,
		Confidence:   v.Confidence,
		TimeTaken:    elapsed.Microseconds(),
	}
	switch {
	case err == nil:
		s.metrics.ObserveCompare(transport, resp.Label, "", elapsed)
		return s.send(resp)
	case errors.Is(err, match.ErrPersistence):
		s.metrics.ObserveCompare(transport, resp.Label, "persistence", elapsed)
		resp.Error = err.Error()
		return s.send(resp)
	case errors.Is(err, match.ErrInvalidInput):
		s.metrics.ObserveCompare(transport, "", "invalid_input", elapsed)
		return s.sendError(req.ID, err.Error(), http.StatusBadRequest)
	default:
		log.Errorf("Compare %q + %q: %v", req.Name1, req.Name2, err)
		s.metrics.ObserveCompare(transport, "", "internal", elapsed)
		return s.sendError(req.ID, err.Error(), http.StatusInternalServerError)
	}
}

// handleFeedback applies a label without computing a verdict.
func (s *Server) handleFeedback(ctx context.Context, req Request) error {
	if req.Feedback == nil {
		return s.sendError(req.ID, "feedback requires fb", http.StatusBadRequest)
	}
	label := *req.Feedback
	err := s.matcher.Update(ctx, req.Name1, req.Name2, label)
	name := "invalid"
	if l := model.Label(label); l.Valid() {
		name = l.String()
	}
	switch {
	case err == nil:
		s.metrics.ObserveFeedback(name, "ok", s.matcher.Info().Updates)
		return s.send(StatusResponse{ID: req.ID, Status: "ok"})
	case errors.Is(err, match.ErrPersistence):
		s.metrics.ObserveFeedback(name, "not_saved", s.matcher.Info().Updates)
		return s.sendError(req.ID, err.Error(), http.StatusInternalServerError)
	case errors.Is(err, match.ErrInvalidInput):
		s.metrics.ObserveFeedback(name, "rejected", s.matcher.Info().Updates)
		return s.sendError(req.ID, err.Error(), http.StatusBadRequest)
	default:
		log.Errorf("Feedback %q + %q: %v", req.Name1, req.Name2, err)
		return s.sendError(req.ID, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) handleGeolocate(ctx context.Context, req Request) error {
	if s.geo == nil {
		return s.sendError(req.ID, "geocoding is disabled", http.StatusServiceUnavailable)
	}
	place, err := s.geo.Geocode(ctx, req.Address)
	if err != nil {
		code := http.StatusInternalServerError
		switch {
		case errors.Is(err, geocode.ErrEmptyAddress):
			code = http.StatusBadRequest
		case errors.Is(err, geocode.ErrNotFound):
			code = http.StatusNotFound
		case errors.Is(err, geocode.ErrTimeout):
			code = http.StatusGatewayTimeout
		case errors.Is(err, geocode.ErrService):
			code = http.StatusBadGateway
		}
		s.metrics.ObserveGeocode(geocode.Kind(err))
		return s.sendError(req.ID, err.Error(), code)
	}
	s.metrics.ObserveGeocode("ok")
	return s.send(GeolocateResponse{ID: req.ID, Name: place.Name, Latitude: place.Latitude, Longitude: place.Longitude})
}

// send encodes one response and flushes it.
func (s *Server) send(response any) error {
	if err := s.enc.Encode(response); err != nil {
		log.Errorf("Encoding response: %v", err)
		return fmt.Errorf("encode response: %w", err)
	}
	if err := s.w.Flush(); err != nil {
		return fmt.Errorf("write response: %w", err)
	}
	return nil
}

// sendError sends an error response
func (s *Server) sendError(id, message string, code int) error {
	return s.send(ErrorResponse{ID: id, Error: message, Code: code})
}
