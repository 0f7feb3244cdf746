// Package store persists the live model and journals caller feedback.
//
// The model is kept as two msgpack artifacts in one directory:
// vocabulary.msgpack and model.msgpack. Both are written with a temp file
// and rename, so a crash mid-save never leaves a half written artifact.
package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/bastiangx/streetmatch/internal/utils"
	"github.com/bastiangx/streetmatch/pkg/features"
	"github.com/bastiangx/streetmatch/pkg/model"
)

const (
	VocabularyFile = "vocabulary.msgpack"
	ModelFile      = "model.msgpack"

	formatVersion = 1
)

var (
	// ErrNotFound means no persisted model exists yet.
	ErrNotFound = errors.New("no persisted model")
	// ErrCorrupt means an artifact exists but cannot be decoded.
	ErrCorrupt = errors.New("persisted model is corrupt")
)

// Snapshot is the unit of persistence: a fitted vocabulary and the
// classifier trained on it.
type Snapshot struct {
	Vocabulary features.VocabularyState
	Model      model.State
}

type vocabFile struct {
	Version int                      `msgpack:"v"`
	SavedAt time.Time                `msgpack:"at"`
	State   features.VocabularyState `msgpack:"state"`
}

type modelFile struct {
	Version int         `msgpack:"v"`
	SavedAt time.Time   `msgpack:"at"`
	State   model.State `msgpack:"state"`
}

// FileStore keeps the artifacts under Dir.
type FileStore struct {
	Dir string
}

// NewFileStore returns a store rooted at dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{Dir: dir}
}

// Load reads both artifacts. It returns ErrNotFound when either is missing.
func (s *FileStore) Load() (*Snapshot, error) {
	var vf vocabFile
	if err := s.read(VocabularyFile, &vf); err != nil {
		return nil, err
	}
	var mf modelFile
	if err := s.read(ModelFile, &mf); err != nil {
		return nil, err
	}
	if vf.Version != formatVersion || mf.Version != formatVersion {
		return nil, fmt.Errorf("%w: format version %d/%d, want %d", ErrCorrupt, vf.Version, mf.Version, formatVersion)
	}
	log.Debugf("Loaded model from %s (saved %s, %d updates)", s.Dir, mf.SavedAt.Format(time.RFC3339), mf.State.Updates)
	return &Snapshot{Vocabulary: vf.State, Model: mf.State}, nil
}

// Save writes the vocabulary first and the model second.
func (s *FileStore) Save(snap Snapshot) error {
	if err := utils.EnsureDir(s.Dir); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	now := time.Now().UTC()
	if err := s.write(VocabularyFile, vocabFile{Version: formatVersion, SavedAt: now, State: snap.Vocabulary}); err != nil {
		return err
	}
	return s.write(ModelFile, modelFile{Version: formatVersion, SavedAt: now, State: snap.Model})
}

func (s *FileStore) read(name string, v any) error {
	path := filepath.Join(s.Dir, name)
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := msgpack.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}
	return nil
}

func (s *FileStore) write(name string, v any) error {
	data, err := msgpack.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	return utils.WriteFileAtomic(filepath.Join(s.Dir, name), data, 0o644)
}
