package datasets

import (
	"bytes"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Noofbiz/contourgraph/internal/snapgob"
	lru "github.com/hashicorp/golang-lru"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// SampleExt is the extension of persisted samples.
const SampleExt = ".gob"

// FilteredExt marks keys whose sample was dropped by a pre-filter.
const FilteredExt = ".filtered"

// DefaultCacheSize is the number of encoded samples kept in memory.
const DefaultCacheSize = 256

// Store persists GraphSamples as one file per (sequence, frame) in Dir.
// Samples are immutable once written, so their encoded bytes are cached.
type Store struct {
	Fs  afero.Fs
	Dir string

	cache *lru.Cache
}

// NewStore creates the processed directory if needed. cacheSize <= 0 uses
// FilteredExt marks keys whose sample was dropped by a pre-filter.
const FilteredExt = ".filtered"

// DefaultCacheSize.
func NewStore(fs afero.Fs, dir string, cacheSize int) (*Store, error) {
	if err := fs.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "mkdir %s", dir)
	}
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, errors.Wrap(err, "create sample cache")
	}
	return &Store{Fs: fs, Dir: dir, cache: cache}, nil
}

// Key returns the file name of the sample for (sequence, frame).
func Key(sequence, frame string) string {
	return sequence + "_" + frame + SampleExt
}

// Path returns the full path of key.
func (s *Store) Path(key string) string {
	return filepath.Join(s.Dir, key)
}

// Has reports whether key has been persisted.
func (s *Store) Has(key string) (bool, error) {
	_, err := s.Fs.Stat(s.Path(key))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, errors.Wrapf(err, "stat %s", key)
}

// Save writes sample under key and returns the size written.
func (s *Store) Save(key string, sample *GraphSample) (int64, error) {
	n, err := snapgob.Save(s.Fs, s.Path(key), sample)
	if err != nil {
		return 0, err
	}
	s.cache.Remove(key)
	if err := s.Fs.Remove(s.Path(key) + FilteredExt); err != nil && !os.IsNotExist(err) {
		return n, errors.Wrapf(err, "unmark %s", key)
	}
	return n, nil
}

// MarkFiltered records that key was built and deliberately not stored.
func (s *Store) MarkFiltered(key string) error {
	return errors.Wrapf(afero.WriteFile(s.Fs, s.Path(key)+FilteredExt, nil, 0644), "mark %s", key)
}

// Filtered reports whether key was marked by MarkFiltered.
func (s *Store) Filtered(key string) (bool, error) {
	ok, err := afero.Exists(s.Fs, s.Path(key)+FilteredExt)
	return ok, errors.Wrapf(err, "stat %s", key)
}

// Load decodes the sample stored under key. The cache holds the encoded
// bytes, so every call returns a fresh copy.
func (s *Store) Load(key string) (*GraphSample, error) {
	var data []byte
	if v, ok := s.cache.Get(key); ok {
		data = v.([]byte)
	} else {
		b, err := afero.ReadFile(s.Fs, s.Path(key))
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", key)
		}
		data = b
		s.cache.Add(key, data)
	}
	var sample GraphSample
	if err := snapgob.Decode(bytes.NewReader(data), &sample); err != nil {
		return nil, errors.Wrapf(err, "load %s", key)
	}
	return &sample, nil
}

// Keys lists all persisted keys, sorted.
func (s *Store) Keys() ([]string, error) {
	infos, err := afero.ReadDir(s.Fs, s.Dir)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", s.Dir)
	}
	var keys []string
	for _, info := range infos {
		if !info.IsDir() && strings.HasSuffix(info.Name(), SampleExt) {
			keys = append(keys, info.Name())
		}
	}
	sort.Strings(keys)
	return keys, nil
}
