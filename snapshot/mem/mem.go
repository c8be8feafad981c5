package mem

import (
	"sync"

	"go.polydawn.net/cohort/def"
	"go.polydawn.net/cohort/snapshot"
)

var _ snapshot.Store = &Store{}

// In-memory snapshot store.  Records are deep-copied going in and out.
type Store struct {
	mu       sync.Mutex
	records  []def.ProjectRecord
	replaces int
	fail     error
}

func New() *Store {
	return &Store{}
}

func (s *Store) Load() ([]def.ProjectRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyRecords(s.records), nil
}

func (s *Store) Replace(records []def.ProjectRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return def.StoreError.Wrap(s.fail)
	}
	s.records = copyRecords(records)
	s.replaces++
	return nil
}

// How many times the store has been replaced.
func (s *Store) Replaces() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replaces
}

// Make every following Replace fail with the error, or succeed again given nil.
func (s *Store) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

func copyRecords(records []def.ProjectRecord) []def.ProjectRecord {
	if records == nil {
		return nil
	}
	out := make([]def.ProjectRecord, len(records))
	for i, rec := range records {
		if rec.CompletedJobs != nil {
			jobs := make([]*def.Job, len(rec.CompletedJobs))
			for j, job := range rec.CompletedJobs {
				jobs[j] = job.Clone()
			}
			rec.CompletedJobs = jobs
		}
		if rec.Network != nil {
			rec.Network = rec.Network.Clone()
		}
		rec.History = append([]def.EpochScore(nil), rec.History...)
		out[i] = rec
	}
	return out
}
