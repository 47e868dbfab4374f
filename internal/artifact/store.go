package artifact

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/specialistvlad/buildgridgo/internal/nodeid"
	"github.com/specialistvlad/buildgridgo/internal/plan"
)

var (
	// ErrMissing reports an artifact whose path does not exist after its
	// stage succeeded, or a copy rule naming an artifact never recorded.
	ErrMissing = errors.New("artifact missing")
	// ErrDuplicate reports a second record for the same address.
	ErrDuplicate = errors.New("artifact already recorded")
)

// Record is a materialized artifact.
type Record struct {
	Address  nodeid.Address
	Artifact plan.Artifact
	// HostPath is where the artifact lives on the build host.
	HostPath string
	Listing  Listing
}

// Store is a write-once, thread-safe artifact index.
type Store struct {
	records sync.Map // Key: address string, Value: *Record
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{}
}

// Put records an artifact. Recording the same address twice is an error.
func (s *Store) Put(rec *Record) error {
	if _, loaded := s.records.LoadOrStore(rec.Address.String(), rec); loaded {
		return fmt.Errorf("%w: %s", ErrDuplicate, rec.Address)
	}
	return nil
}

// Get returns the record for an address.
func (s *Store) Get(addr nodeid.Address) (*Record, error) {
	v, ok := s.records.Load(addr.String())
	if !ok {
		return nil, fmt.Errorf("%w: %s was never recorded", ErrMissing, addr)
	}
	return v.(*Record), nil
}

// All returns every record ordered by address.
func (s *Store) All() []*Record {
	var out []*Record
	s.records.Range(func(_, v any) bool {
		out = append(out, v.(*Record))
		return true
	})
	sort.Slice(out, func(i, j int) bool { return nodeid.Less(out[i].Address, out[j].Address) })
	return out
}
