// Package poll holds the pieces shared by the client reconcilers: request
// sequencing for overlapping polls and timer cleanup.
package poll

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Tracker numbers requests in issue order. A response is accepted only if no
// later-issued response has been accepted already, so a slow response can
// never overwrite a newer one.
type Tracker struct {
	mu      sync.Mutex
	issued  uint64
	applied uint64
}

// Next returns the sequence number for a request about to be sent.
func (t *Tracker) Next() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.issued++
	return t.issued
}

// Accept reports whether the response to request seq may be applied and, if
// so, records it as the newest applied.
func (t *Tracker) Accept(seq uint64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if seq <= t.applied || seq > t.issued {
		return false
	}
	t.applied = seq
	return true
}

// Applied returns the sequence number of the newest accepted response.
func (t *Tracker) Applied() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.applied
}

// StopTimer stops t and drains its channel if it already fired. A nil timer is ignored.
func StopTimer(t clockwork.Timer) {
	if t == nil {
		return
	}
	if !t.Stop() {
		select {
		case <-t.Chan():
		default:
		}
	}
}

// TimerChan returns t's channel, or nil (blocks forever in select) when t is nil.
func TimerChan(t clockwork.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.Chan()
}
