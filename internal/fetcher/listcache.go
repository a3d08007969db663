package fetcher

import (
	"sync"
	"time"

	"etf-tracker/internal/models"
)

// instrumentList is the process-wide cache of the provider's bulk "all
// instruments" response. It lives in memory only, carries its own short TTL,
// and keeps serving the last successful copy when a refresh attempt fails.
// The mutex guards the (rows, fetchedAt) pair against torn reads when batch
// fallback workers race a refresh.
type instrumentList struct {
	mu        sync.Mutex
	ttl       time.Duration
	byCode    map[string]models.Instrument
	fetchedAt time.Time
	now       func() time.Time
}

func newInstrumentList(ttl time.Duration, now func() time.Time) *instrumentList {
	if now == nil {
		now = time.Now
	}
	return &instrumentList{ttl: ttl, now: now}
}

// fresh reports whether the cached copy is within its TTL.
func (l *instrumentList) fresh() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.freshLocked()
}

func (l *instrumentList) freshLocked() bool {
	return l.byCode != nil && l.now().Sub(l.fetchedAt) < l.ttl
}

// replace installs a new bulk copy.
func (l *instrumentList) replace(instruments []models.Instrument) {
	byCode := make(map[string]models.Instrument, len(instruments))
	for _, inst := range instruments {
		byCode[inst.Code] = inst
	}
	l.mu.Lock()
	l.byCode = byCode
	l.fetchedAt = l.now()
	l.mu.Unlock()
}

// hasCopy reports whether any copy, fresh or stale, is held.
func (l *instrumentList) hasCopy() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.byCode != nil
}

// lookup returns the row for code from the cached copy, if any copy exists
// at all. Freshness is the caller's concern; a stale copy is still served
// as a fallback after a failed refresh.
func (l *instrumentList) lookup(code string) (models.Instrument, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	inst, ok := l.byCode[code]
	return inst, ok
}

// invalidate drops the cached copy entirely.
func (l *instrumentList) invalidate() {
	l.mu.Lock()
	l.byCode = nil
	l.fetchedAt = time.Time{}
	l.mu.Unlock()
}

// ListStatus describes the bulk list cache for observability.
type ListStatus struct {
	Cached    bool      `json:"cached"`
	FetchedAt time.Time `json:"fetched_at,omitempty"`
	AgeHours  float64   `json:"age_hours,omitempty"`
	Size      int       `json:"size"`
	Expired   bool      `json:"expired"`
}

func (l *instrumentList) status() ListStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	st := ListStatus{
		Cached: l.byCode != nil,
		Size:   len(l.byCode),
	}
	if st.Cached {
		st.FetchedAt = l.fetchedAt
		st.AgeHours = l.now().Sub(l.fetchedAt).Hours()
		st.Expired = !l.freshLocked()
	}
	return st
}
