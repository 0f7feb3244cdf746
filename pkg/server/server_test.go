package server

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/bastiangx/streetmatch/internal/metrics"
	"github.com/bastiangx/streetmatch/pkg/geocode"
	"github.com/bastiangx/streetmatch/pkg/match"
	"github.com/bastiangx/streetmatch/pkg/store"
	"github.com/bastiangx/streetmatch/pkg/training"
)

func testEngine(t *testing.T) *match.Engine {
	t.Helper()
	seed, err := training.LoadSeed("")
	require.NoError(t, err)
	e, _, err := match.Open(match.Options{
		Store: store.NewFileStore(filepath.Join(t.TempDir(), "model")),
		Seed:  seed,
	})
	require.NoError(t, err)
	return e
}

type stubGeocoder struct{}

func (stubGeocoder) Geocode(_ context.Context, address string) (geocode.Place, error) {
	if address == "nowhere" {
		return geocode.Place{}, geocode.ErrNotFound
	}
	return geocode.Place{Name: address, Latitude: -34.9, Longitude: -56.16}, nil
}

// roundTrip encodes requests, runs the server until EOF and returns the raw
// response decoder.
func roundTrip(t *testing.T, m Matcher, reqs ...any) *msgpack.Decoder {
	t.Helper()
	var in, out bytes.Buffer
	enc := msgpack.NewEncoder(&in)
	for _, r := range reqs {
		require.NoError(t, enc.Encode(r))
	}
	srv := NewServerWithIO(m, stubGeocoder{}, metrics.New(), &in, &out)
	require.NoError(t, srv.Start(context.Background()))

	dec := msgpack.NewDecoder(&out)
	var ready StatusResponse
	require.NoError(t, dec.Decode(&ready))
	assert.Equal(t, "ready", ready.Status)
	return dec
}

func intp(v int) *int { return &v }

func TestCompare(t *testing.T) {
	dec := roundTrip(t, testEngine(t),
		Request{ID: "r1", Action: "compare", Name1: "Main Rd", Name2: "main rd"},
		Request{ID: "r2", Name1: "18 de julio", Name2: "Avenida 18 de julio"},
	)

	var r1 CompareResponse
	require.NoError(t, dec.Decode(&r1))
	assert.Equal(t, "r1", r1.ID)
	assert.Equal(t, "Exact", r1.Label)
	assert.Equal(t, 1.0, r1.Similarity)
	assert.Empty(t, r1.Error)

	var r2 CompareResponse
	require.NoError(t, dec.Decode(&r2))
	assert.Equal(t, "r2", r2.ID)
	assert.Equal(t, "Different", r2.Label)
	assert.Equal(t, 8, r2.EditDistance)
	assert.Equal(t, 0.58, r2.Similarity)
}

func TestFeedback(t *testing.T) {
	e := testEngine(t)
	dec := roundTrip(t, e,
		Request{ID: "f1", Action: "compare", Name1: "Cno Lecoq", Name2: "Lecoq", Feedback: intp(2)},
		Request{ID: "f2", Action: "compare", Name1: "Cno Lecoq", Name2: "Lecoq", Feedback: intp(5)},
		Request{ID: "i1", Action: "info"},
	)

	var f1 CompareResponse
	require.NoError(t, dec.Decode(&f1))
	assert.Equal(t, "f1", f1.ID)
	assert.Empty(t, f1.Error)

	var f2 ErrorResponse
	require.NoError(t, dec.Decode(&f2))
	assert.Equal(t, "f2", f2.ID)
	assert.Equal(t, 400, f2.Code)

	var info InfoResponse
	require.NoError(t, dec.Decode(&info))
	assert.Equal(t, 1, info.Updates)
	assert.Equal(t, "linear", info.Classifier)
	assert.Equal(t, info.VocabularySize+2, info.Dimension)
}

func TestOtherActions(t *testing.T) {
	dec := roundTrip(t, testEngine(t),
		Request{ID: "h1", Action: "health"},
		Request{ID: "g1", Action: "geolocate", Address: "Avenida Millan"},
		Request{ID: "g2", Action: "geolocate", Address: "nowhere"},
		Request{ID: "x1", Action: "dance"},
		Request{ID: "c1", Action: "compare", Name1: "", Name2: "Lecoq"},
	)

	var h StatusResponse
	require.NoError(t, dec.Decode(&h))
	assert.Equal(t, StatusResponse{ID: "h1", Status: "ok"}, h)

	var g1 GeolocateResponse
	require.NoError(t, dec.Decode(&g1))
	assert.Equal(t, "Avenida Millan", g1.Name)
	assert.InDelta(t, -34.9, g1.Latitude, 1e-9)

	for _, want := range []ErrorResponse{
		{ID: "g2", Code: 404},
		{ID: "x1", Code: 400},
		{ID: "c1", Code: 400},
	} {
		var got ErrorResponse
		require.NoError(t, dec.Decode(&got))
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, want.Code, got.Code)
		assert.NotEmpty(t, got.Error)
	}
}

func TestMalformedInput(t *testing.T) {
	var out bytes.Buffer
	in := bytes.NewBuffer([]byte{0xc1})
	srv := NewServerWithIO(testEngine(t), nil, nil, in, &out)
	assert.Error(t, srv.Start(context.Background()))

	dec := msgpack.NewDecoder(&out)
	var ready StatusResponse
	require.NoError(t, dec.Decode(&ready))
	var bad ErrorResponse
	require.NoError(t, dec.Decode(&bad))
	assert.Equal(t, 400, bad.Code)
}

func TestFeedbackAction(t *testing.T) {
	dec := roundTrip(t, testEngine(t),
		Request{ID: "f1", Action: "feedback", Name1: "Cno Lecoq", Name2: "Camino Lecoq", Feedback: intp(1)},
		Request{ID: "f2", Action: "feedback", Name1: "Cno Lecoq", Name2: "Camino Lecoq", Feedback: intp(3)},
		Request{ID: "f3", Action: "feedback", Name1: "Cno Lecoq", Name2: "Camino Lecoq"},
		Request{ID: "i1", Action: "info"},
	)

	var ok StatusResponse
	require.NoError(t, dec.Decode(&ok))
	assert.Equal(t, StatusResponse{ID: "f1", Status: "ok"}, ok)

	for _, id := range []string{"f2", "f3"} {
		var got ErrorResponse
		require.NoError(t, dec.Decode(&got))
		assert.Equal(t, id, got.ID)
		assert.Equal(t, 400, got.Code)
	}

	var info InfoResponse
	require.NoError(t, dec.Decode(&info))
	assert.Equal(t, 1, info.Updates, "rejected feedback must not update")
}

type panickyMatcher struct{ Matcher }

func (panickyMatcher) Compare(context.Context, string, string, *int) (match.Verdict, error) {
	panic("index out of range")
}

func TestHandlerPanicAnswers500(t *testing.T) {
	dec := roundTrip(t, panickyMatcher{Matcher: testEngine(t)},
		Request{ID: "p1", Action: "compare", Name1: "a", Name2: "b"},
		Request{ID: "h1", Action: "health"},
	)

	var got ErrorResponse
	require.NoError(t, dec.Decode(&got))
	assert.Equal(t, "p1", got.ID)
	assert.Equal(t, 500, got.Code)

	var h StatusResponse
	require.NoError(t, dec.Decode(&h))
	assert.Equal(t, "ok", h.Status, "the server keeps serving after a panic")
}
