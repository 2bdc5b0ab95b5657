package location

import (
	"context"
	"sync"
)

// ReportedProvider holds the most recent fix pushed by the host. The
// scheduler polls it; staleness is judged downstream against the fix
// timestamp, so an abandoned provider naturally goes quiet.
type ReportedProvider struct {
	mu   sync.Mutex
	fix  Fix
	seen bool
}

// NewReportedProvider constructs an empty provider.
func NewReportedProvider() *ReportedProvider {
	return &ReportedProvider{}
}

// Report records a fix. Invalid fixes are dropped.
func (p *ReportedProvider) Report(fix Fix) {
	if p == nil || !fix.Valid() {
		return
	}
	p.mu.Lock()
	p.fix = fix
	p.seen = true
	p.mu.Unlock()
}

// CurrentFix returns the last reported fix, or ErrNoFix.
func (p *ReportedProvider) CurrentFix(_ context.Context) (Fix, error) {
	if p == nil {
		return Fix{}, ErrNoFix
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.seen {
		return Fix{}, ErrNoFix
	}
	return p.fix, nil
}
