// Package call implements the phone screen's state synchronization: a
// single-writer reconciler that merges snapshots from the push event
// channel and the polling fallback into one authoritative DisplayState,
// and a command dispatcher that never mutates that state directly.
package call

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/librescoot/librefsm"

	"github.com/CharlesBrocato/car-stereo-system/internal/callfsm"
	"github.com/CharlesBrocato/car-stereo-system/internal/logger"
	"github.com/CharlesBrocato/car-stereo-system/internal/types"
)

// Recorder receives finished calls for the call history.
type Recorder interface {
	Record(rec types.CallRecord)
}

// Listener receives a DisplayState copy after every change.
type Listener func(types.DisplayState)

// Reconciler owns the displayed phone state. All writes flow through
// Apply, ReportPollFailure and ForceIdle; everything else reads copies.
type Reconciler struct {
	logger  *logger.Logger
	machine *librefsm.Machine

	heldPolicy string
	recorder   Recorder

	// applyMu serializes snapshot application (single-writer discipline).
	applyMu sync.Mutex

	// mu protects display and the timer bookkeeping below.
	mu        sync.RWMutex
	display   types.DisplayState
	lastSeq   uint64
	callStart time.Time
	pausedAt  time.Time
	paused    bool
	timerStop chan struct{}

	// Call classification for the history. The caller identity is
	// stashed while the call runs: the terminating idle snapshot carries
	// empty caller fields, so the record cannot read them off display.
	origin       types.CallRecordType
	answered     bool
	recordName   string
	recordNumber string

	listenerMu sync.RWMutex
	listeners  []Listener

	wg sync.WaitGroup
}

var _ callfsm.Actions = (*Reconciler)(nil)

// NewReconciler builds the reconciler and its state machine.
// heldPolicy is config.HeldTimerContinue or config.HeldTimerPause.
func NewReconciler(l *logger.Logger, heldPolicy string, recorder Recorder) (*Reconciler, error) {
	r := &Reconciler{
		logger:     l.WithTag("reconciler"),
		heldPolicy: heldPolicy,
		recorder:   recorder,
		display: types.DisplayState{
			State: types.StateIdle,
		},
	}

	machine, err := callfsm.NewDefinition(r).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build call FSM: %w", err)
	}
	r.machine = machine
	return r, nil
}

// Start runs the state machine. The context bounds its lifetime.
func (r *Reconciler) Start(ctx context.Context) error {
	return r.machine.Start(ctx)
}

// Close stops the call timer and waits for its goroutine.
func (r *Reconciler) Close() {
	r.mu.Lock()
	r.stopTimerLocked()
	r.mu.Unlock()
	r.wg.Wait()
}

// Subscribe registers a listener for display changes.
func (r *Reconciler) Subscribe(fn Listener) {
	r.listenerMu.Lock()
	r.listeners = append(r.listeners, fn)
	r.listenerMu.Unlock()
}

// Display returns a copy of the current display state.
func (r *Reconciler) Display() types.DisplayState {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.display
}

// Apply merges one snapshot. Snapshots are applied in arrival order;
// one whose receipt sequence is not newer than the last applied one is
// discarded (a stale poll result must not regress a newer push update).
func (r *Reconciler) Apply(snap types.CallSnapshot) {
	r.applyMu.Lock()
	defer r.applyMu.Unlock()
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Errorf("Panic applying snapshot seq %d: %v", snap.Seq, rec)
		}
	}()

	r.mu.Lock()
	if snap.Seq != 0 && snap.Seq <= r.lastSeq {
		r.mu.Unlock()
		r.logger.Debugf("Discarding stale snapshot seq %d (last applied %d)", snap.Seq, r.lastSeq)
		return
	}
	if snap.Seq != 0 {
		r.lastSeq = snap.Seq
		r.display.Seq = snap.Seq
	}

	r.display.Connected = snap.Connected
	r.display.DeviceName = snap.DeviceName
	r.display.CallerName = snap.CallerName
	r.display.CallerID = snap.CallerID
	if snap.RecentCalls != nil {
		// nil means "no update", not "empty".
		r.display.RecentCalls = snap.RecentCalls
	}

	target := snap.CallState.Normalize()
	if !snap.Connected {
		// The connection dropping ends any displayed call.
		target = types.StateIdle
	}

	// Caller identity can arrive mid-call (name resolution after the
	// first ring) without a state transition; keep the stash current.
	if target != types.StateIdle {
		if snap.CallerName != "" {
			r.recordName = snap.CallerName
		}
		if snap.CallerID != "" {
			r.recordNumber = snap.CallerID
		}
	}
	current := r.display.State
	r.mu.Unlock()

	if target != current {
		if err := r.machine.SendSync(librefsm.Event{ID: eventFor(target)}); err != nil {
			r.logger.Errorf("State transition to %s failed: %v", target, err)
		}
	}

	r.notify()
}

// ReportPollFailure marks the connection indicator disconnected after a
// hard poll failure. It never touches call state: a transient failure
// mid-call must not hang up the displayed call.
func (r *Reconciler) ReportPollFailure(err error) {
	r.logger.Warnf("Poll failed, assuming disconnected: %v", err)
	r.mu.Lock()
	r.display.Connected = false
	r.mu.Unlock()
	r.notify()
}

// ForceIdle optimistically hides the call UI. It is the one bounded
// exception to the snapshot-driven model, invoked only after a confirmed
// hangup; the next snapshot confirms or corrects it. The last-applied
// sequence is untouched so no snapshot gets discarded because of it.
func (r *Reconciler) ForceIdle() {
	r.applyMu.Lock()
	defer r.applyMu.Unlock()

	r.mu.RLock()
	current := r.display.State
	r.mu.RUnlock()
	if current == types.StateIdle {
		return
	}
	if err := r.machine.SendSync(librefsm.Event{ID: callfsm.EvIdle}); err != nil {
		r.logger.Errorf("Forced idle transition failed: %v", err)
	}
	r.notify()
}

// SetRecentCalls replaces the recent-calls list (startup load).
func (r *Reconciler) SetRecentCalls(calls []types.CallRecord) {
	r.mu.Lock()
	r.display.RecentCalls = calls
	r.mu.Unlock()
	r.notify()
}

func eventFor(s types.NormalizedState) librefsm.EventID {
	switch s {
	case types.StateIncoming:
		return callfsm.EvIncoming
	case types.StateActive:
		return callfsm.EvActive
	case types.StateOutgoing:
		return callfsm.EvOutgoing
	case types.StateHeld:
		return callfsm.EvHeld
	default:
		return callfsm.EvIdle
	}
}

func (r *Reconciler) notify() {
	state := r.Display()

	r.listenerMu.RLock()
	listeners := make([]Listener, len(r.listeners))
	copy(listeners, r.listeners)
	r.listenerMu.RUnlock()

	for _, fn := range listeners {
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Errorf("Listener panic: %v", rec)
				}
			}()
			fn(state)
		}()
	}
}
