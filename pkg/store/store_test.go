package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bastiangx/streetmatch/pkg/features"
	"github.com/bastiangx/streetmatch/pkg/model"
)

func testSnapshot(t *testing.T) Snapshot {
	t.Helper()
	vocab := features.FitVocabulary([]string{"main road", "oak lane"}, features.VocabOptions{})
	clf, err := model.New(model.KindLinear, model.DefaultOptions())
	require.NoError(t, err)
	dim := vocab.Len() + features.NumericFeatures
	x1 := make([]float64, dim)
	x2 := make([]float64, dim)
	x1[dim-1] = 1
	x2[dim-2] = 7
	require.NoError(t, clf.Fit([]model.Sample{{X: x1, Y: model.Exact}, {X: x2, Y: model.Different}}))
	return Snapshot{Vocabulary: vocab.State(), Model: clf.State()}
}

func TestFileStoreRoundTrip(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "model"))
	_, err := s.Load()
	assert.ErrorIs(t, err, ErrNotFound)

	snap := testSnapshot(t)
	require.NoError(t, s.Save(snap))

	got, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, snap.Vocabulary, got.Vocabulary)
	assert.Equal(t, snap.Model.Kind, got.Model.Kind)
	assert.Equal(t, snap.Model.Dim, got.Model.Dim)

	_, err = model.Restore(got.Model)
	require.NoError(t, err)
	_, err = features.RestoreVocabulary(got.Vocabulary)
	require.NoError(t, err)

	entries, err := os.ReadDir(s.Dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "no temp files left behind")
}

func TestFileStoreMissingArtifact(t *testing.T) {
	s := NewFileStore(t.TempDir())
	require.NoError(t, s.Save(testSnapshot(t)))
	require.NoError(t, os.Remove(filepath.Join(s.Dir, ModelFile)))
	_, err := s.Load()
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreCorrupt(t *testing.T) {
	s := NewFileStore(t.TempDir())
	require.NoError(t, s.Save(testSnapshot(t)))
	require.NoError(t, os.WriteFile(filepath.Join(s.Dir, VocabularyFile), []byte("not msgpack"), 0o644))
	_, err := s.Load()
	assert.ErrorIs(t, err, ErrCorrupt)
}

func TestFileStoreSaveFailure(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	s := NewFileStore(filepath.Join(blocker, "model"))
	assert.Error(t, s.Save(testSnapshot(t)))
}

func TestJournal(t *testing.T) {
	ctx := context.Background()
	j, err := OpenJournal(filepath.Join(t.TempDir(), "journal", "feedback.db"))
	require.NoError(t, err)
	defer j.Close()

	first, err := j.Record(ctx, Event{Name1: "Main Rd", Name2: "Main Road", Predicted: model.Similar, Label: model.Exact})
	require.NoError(t, err)
	assert.NotEmpty(t, first.ID)
	assert.False(t, first.CreatedAt.IsZero())

	_, err = j.Record(ctx, Event{Name1: "Oak", Name2: "Elm", Predicted: model.Similar, Label: model.Different})
	require.NoError(t, err)

	_, err = j.Record(ctx, Event{Name1: "a", Name2: "b", Label: model.Label(4)})
	assert.ErrorIs(t, err, model.ErrInvalidLabel)

	n, err := j.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	events, err := j.Events(ctx)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, first.ID, events[0].ID)
	assert.Equal(t, model.Exact, events[0].Label)
	assert.Equal(t, model.Similar, events[0].Predicted)

	examples, err := j.Examples(ctx)
	require.NoError(t, err)
	require.Len(t, examples, 2)
	assert.Equal(t, "Oak", examples[1].Name1)
	assert.Equal(t, model.Different, examples[1].Label)
}
