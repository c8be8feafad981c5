/*
	Package file is a snapshot store backed by a single CBOR file.

	Replace writes the whole snapshot to a temporary file next to the
	target and renames it into place, so a crash mid-write leaves the
	previous snapshot intact.
*/
package file

import (
	"bufio"
	"os"
	"path/filepath"
	"reflect"
	"sync"

	"github.com/ugorji/go/codec"

	"go.polydawn.net/cohort/def"
	"go.polydawn.net/cohort/snapshot"
)

var _ snapshot.Store = &Store{}

type Store struct {
	mu   sync.Mutex
	path string
}

func New(path string) *Store {
	return &Store{path: path}
}

func handle() *codec.CborHandle {
	h := &codec.CborHandle{}
	h.MapType = reflect.TypeOf(map[string]interface{}(nil))
	return h
}

type snapshotFile struct {
	Version  int                 `json:"version"`
	Projects []def.ProjectRecord `json:"projects"`
}

const version = 1

func (s *Store) Load() ([]def.ProjectRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, err := os.Open(s.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, def.StoreError.Wrap(err)
	}
	defer f.Close()
	var snap snapshotFile
	if err := codec.NewDecoder(bufio.NewReader(f), handle()).Decode(&snap); err != nil {
		return nil, def.StoreError.New("could not read snapshot %s: %s", s.path, err)
	}
	if snap.Version != version {
		return nil, def.StoreError.New("snapshot %s has version %d; expected %d", s.path, snap.Version, version)
	}
	return snap.Projects, nil
}

func (s *Store) Replace(records []def.ProjectRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return def.StoreError.Wrap(err)
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-")
	if err != nil {
		return def.StoreError.Wrap(err)
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	err = codec.NewEncoder(w, handle()).Encode(snapshotFile{Version: version, Projects: records})
	if err == nil {
		err = w.Flush()
	}
	if err == nil {
		err = tmp.Sync()
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return def.StoreError.Wrap(err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return def.StoreError.Wrap(err)
	}
	return nil
}
