// Package admission tracks how many browser-backed jobs are in flight and
// grants or refuses new ones against a fixed ceiling.
package admission

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/dxywop/cf-clearance-scraper/internal/metrics"
)

var (
	// ErrNotReady means the backing browser pool has not come up.
	ErrNotReady = errors.New("backing browser pool is not ready")
	// ErrLimitReached means every slot is taken.
	ErrLimitReached = errors.New("admission limit reached")
)

// Readiness reports whether the backing pool can accept work.
type Readiness interface {
	Ready() bool
}

// ReadinessFunc adapts a function to Readiness.
type ReadinessFunc func() bool

// Ready calls f.
func (f ReadinessFunc) Ready() bool { return f() }

// AlwaysReady is used when no backing pool is launched.
var AlwaysReady Readiness = ReadinessFunc(func() bool { return true })

// Accountant is a counting semaphore with a readiness gate. The zero value is
// not usable; construct with New.
type Accountant struct {
	limit    int64
	inFlight atomic.Int64
	ready    Readiness
}

// New creates an Accountant admitting at most limit concurrent jobs. A nil
// readiness is treated as AlwaysReady.
func New(limit int, ready Readiness) *Accountant {
	if ready == nil {
		ready = AlwaysReady
	}
	return &Accountant{limit: int64(limit), ready: ready}
}

// Admit grants a slot. Readiness is checked before capacity so a missing pool
// is never reported as a full one. Denials have no side effects.
func (a *Accountant) Admit() (*Slot, error) {
	if !a.ready.Ready() {
		metrics.ObserveAdmission(metrics.AdmissionNotReady)
		return nil, ErrNotReady
	}
	for {
		cur := a.inFlight.Load()
		if cur >= a.limit {
			metrics.ObserveAdmission(metrics.AdmissionLimitReached)
			return nil, ErrLimitReached
		}
		if a.inFlight.CompareAndSwap(cur, cur+1) {
			break
		}
	}
	metrics.ObserveAdmission(metrics.AdmissionGranted)
	metrics.IncInFlight()
	return &Slot{acct: a}, nil
}

// InFlight returns the number of currently held slots.
func (a *Accountant) InFlight() int {
	return int(a.inFlight.Load())
}

// Limit returns the configured ceiling.
func (a *Accountant) Limit() int {
	return int(a.limit)
}

// Ready exposes the readiness gate for probes.
func (a *Accountant) Ready() bool {
	return a.ready.Ready()
}

func (a *Accountant) release() {
	a.inFlight.Add(-1)
	metrics.DecInFlight()
}

// Slot is one occupied unit of capacity.
type Slot struct {
	once sync.Once
	acct *Accountant
}

// Release returns the slot. Only the first call has an effect.
func (s *Slot) Release() {
	if s == nil || s.acct == nil {
		return
	}
	s.once.Do(s.acct.release)
}
