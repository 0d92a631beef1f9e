package api

import (
	"cmp"
	"slices"
	"strings"
	"sync"
	"time"
)

// MergeStore keeps merge records for the lifetime of the server.
type MergeStore struct {
	mu     sync.Mutex
	merges map[string]*MergeRecord
}

func NewMergeStore() *MergeStore {
	return &MergeStore{merges: make(map[string]*MergeRecord)}
}

func (s *MergeStore) Create(req MergeRequest, now time.Time) MergeRecord {
	rec := &MergeRecord{
		ID:        newMergeID(),
		Object:    "merge",
		Status:    StatusRunning,
		CreatedAt: now.Unix(),
		ModelA:    req.ModelA,
		ModelB:    req.ModelB,
		Output:    req.Output,
	}
	s.mu.Lock()
	s.merges[rec.ID] = rec
	s.mu.Unlock()
	return *rec
}

// Finish records the outcome of id and returns the updated record.
func (s *MergeStore) Finish(id string, res *MergeResult, err error, now time.Time) (MergeRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.merges[id]
	if !ok {
		return MergeRecord{}, false
	}
	rec.CompletedAt = unixPtr(now)
	if err != nil {
		rec.Status = StatusFailed
		rec.Error = &ErrorBody{Message: err.Error(), Type: errorType(err)}
		return *rec, true
	}
	rec.Status = StatusCompleted
	rec.Report = &res.Report
	rec.Output = res.Output
	return *rec, true
}

func (s *MergeStore) Get(id string) (MergeRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.merges[id]
	if !ok {
		return MergeRecord{}, false
	}
	return *rec, true
}

// List returns records newest first.
func (s *MergeStore) List() []MergeRecord {
	s.mu.Lock()
	out := make([]MergeRecord, 0, len(s.merges))
	for _, rec := range s.merges {
		out = append(out, *rec)
	}
	s.mu.Unlock()
	sortRecords(out)
	return out
}

func sortRecords(recs []MergeRecord) {
	slices.SortFunc(recs, func(a, b MergeRecord) int {
		if c := cmp.Compare(b.CreatedAt, a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
