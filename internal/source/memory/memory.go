package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sort"
	"sync"

	"hdbdash/internal/core"
	"hdbdash/internal/source"
)

// Store serves resale records held in memory. It stands in for the
// datastore API when running offline or in tests.
type Store struct {
	mu      sync.RWMutex
	records []core.Record
	calls   int
}

var _ source.Fetcher = (*Store)(nil)

func New(records []core.Record) *Store {
	return &Store{records: slices.Clone(records)}
}

// NewFromFiles loads every *.json file under base. Each file holds a
// datastore_search response body, the same shape the live API returns.
// Files are read in name order.
func NewFromFiles(base string) (*Store, error) {
	paths, err := filepath.Glob(filepath.Join(base, "*.json"))
	if err != nil {
		return nil, fmt.Errorf("glob fixtures: %w", err)
	}
	sort.Strings(paths)

	var all []core.Record
	for _, p := range paths {
		recs, err := readFixture(p)
		if err != nil {
			return nil, err
		}
		all = append(all, recs...)
	}
	return &Store{records: all}, nil
}

func readFixture(path string) ([]core.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open fixture: %w", err)
	}
	defer f.Close()

	recs, err := source.DecodeRecords(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return recs, nil
}

// Add appends records to the store.
func (s *Store) Add(records ...core.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
}

// Fetch returns up to limit records whose town and flat type match the
// non-empty fields of filter. limit <= 0 means no limit.
func (s *Store) Fetch(ctx context.Context, filter core.Filter, limit int) (core.Dataset, error) {
	if err := ctx.Err(); err != nil {
		return core.Dataset{}, err
	}

	s.mu.Lock()
	s.calls++
	s.mu.Unlock()

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := core.Dataset{Town: filter.Town, FlatType: filter.FlatType, Records: []core.Record{}}
	for _, r := range s.records {
		if filter.Town != "" && r.Town != filter.Town {
			continue
		}
		if filter.FlatType != "" && r.FlatType != filter.FlatType {
			continue
		}
		out.Records = append(out.Records, r)
		if limit > 0 && len(out.Records) == limit {
			break
		}
	}
	return out, nil
}

// Len returns the number of records held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Calls reports how many times Fetch has been invoked.
func (s *Store) Calls() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.calls
}
