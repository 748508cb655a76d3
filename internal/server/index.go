package server

import (
	"sync"
	"time"

	"github.com/blackwell-systems/tapkeeper/internal/formula"
	"github.com/blackwell-systems/tapkeeper/internal/lint"
	"github.com/blackwell-systems/tapkeeper/internal/tap"
)

// index is the in-memory view of the tap served by the API.
type index struct {
	mu          sync.RWMutex
	descriptors []*formula.Descriptor
	byName      map[string]*formula.Descriptor
	report      *lint.Report
	loadErrors  []*tap.LoadError
	loadedAt    time.Time
}

func (ix *index) set(t *tap.Tap, report *lint.Report) {
	byName := make(map[string]*formula.Descriptor, len(t.Descriptors))
	for _, d := range t.Descriptors {
		byName[d.Name] = d
	}
	for _, p := range t.Packages() {
		if _, ok := byName[p.Name]; !ok {
			byName[p.Name] = p.Current()
		}
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.descriptors = t.Descriptors
	ix.byName = byName
	ix.report = report
	ix.loadErrors = t.Errors
	ix.loadedAt = time.Now()
}

func (ix *index) list() []*formula.Descriptor {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.descriptors
}

func (ix *index) get(name string) (*formula.Descriptor, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	d, ok := ix.byName[name]
	return d, ok
}

func (ix *index) lint() (*lint.Report, []*tap.LoadError) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.report, ix.loadErrors
}

func (ix *index) stats() (int, time.Time) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.descriptors), ix.loadedAt
}
