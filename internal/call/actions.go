package call

import (
	"time"

	"github.com/librescoot/librefsm"

	"github.com/CharlesBrocato/car-stereo-system/internal/config"
	"github.com/CharlesBrocato/car-stereo-system/internal/types"
)

// FSM entry/exit actions. These are the only place the call timer and
// ring indication start or stop.

func (r *Reconciler) EnterIdle(c *librefsm.Context) error {
	r.logger.Debugf("FSM: EnterIdle")

	r.mu.Lock()
	r.display.State = types.StateIdle
	r.display.CallVisible = false
	r.display.ShowAnswer = false
	r.display.ShowHangup = false
	r.display.Ringing = false
	r.stopTimerLocked()
	r.display.DurationSecs = 0
	r.display.CallDuration = 0

	origin := r.origin
	answered := r.answered
	name := r.recordName
	number := r.recordNumber
	r.origin = ""
	r.answered = false
	r.recordName = ""
	r.recordNumber = ""
	r.mu.Unlock()

	r.recordFinishedCall(origin, answered, name, number)
	return nil
}

func (r *Reconciler) EnterIncoming(c *librefsm.Context) error {
	r.logger.Debugf("FSM: EnterIncoming")

	r.mu.Lock()
	r.display.State = types.StateIncoming
	r.display.CallVisible = true
	r.display.ShowAnswer = true
	r.display.ShowHangup = true
	r.display.Ringing = true
	r.stopTimerLocked()
	r.display.DurationSecs = 0
	r.display.CallDuration = 0
	r.origin = types.RecordIncoming
	r.answered = false
	r.recordName = r.display.CallerName
	r.recordNumber = r.display.CallerID
	r.mu.Unlock()
	return nil
}

func (r *Reconciler) ExitIncoming(c *librefsm.Context) error {
	r.mu.Lock()
	r.display.Ringing = false
	r.mu.Unlock()
	return nil
}

func (r *Reconciler) EnterActive(c *librefsm.Context) error {
	r.logger.Debugf("FSM: EnterActive")

	r.mu.Lock()
	r.display.State = types.StateActive
	r.display.CallVisible = true
	r.display.ShowAnswer = false
	r.display.ShowHangup = true
	r.display.Ringing = false
	if r.origin == "" {
		// Joined a call already in progress (e.g. service restart).
		r.origin = types.RecordIncoming
		r.recordName = r.display.CallerName
		r.recordNumber = r.display.CallerID
	}
	r.answered = true
	r.startTimerLocked()
	r.mu.Unlock()
	return nil
}

func (r *Reconciler) ExitActive(c *librefsm.Context) error {
	// Timer handling belongs to the destination state: Held decides per
	// policy, everything else stops it on entry.
	return nil
}

func (r *Reconciler) EnterOutgoing(c *librefsm.Context) error {
	r.logger.Debugf("FSM: EnterOutgoing")

	r.mu.Lock()
	r.display.State = types.StateOutgoing
	r.display.CallVisible = true
	r.display.ShowAnswer = false
	r.display.ShowHangup = true
	r.display.Ringing = false
	r.stopTimerLocked()
	r.display.DurationSecs = 0
	r.display.CallDuration = 0
	r.origin = types.RecordOutgoing
	r.answered = false
	r.recordName = r.display.CallerName
	r.recordNumber = r.display.CallerID
	r.mu.Unlock()
	return nil
}

func (r *Reconciler) EnterHeld(c *librefsm.Context) error {
	r.logger.Debugf("FSM: EnterHeld (policy %s)", r.heldPolicy)

	r.mu.Lock()
	r.display.State = types.StateHeld
	r.display.CallVisible = true
	r.display.ShowAnswer = false
	r.display.ShowHangup = true
	r.display.Ringing = false
	if r.heldPolicy == config.HeldTimerPause {
		r.pauseTimerLocked()
	}
	// With the continue policy the timer just keeps running.
	r.mu.Unlock()
	return nil
}

func (r *Reconciler) ExitHeld(c *librefsm.Context) error {
	// A paused timer resumes in EnterActive; entry into any other state
	// stops it there.
	return nil
}

func (r *Reconciler) recordFinishedCall(origin types.CallRecordType, answered bool, name, number string) {
	if origin == "" || r.recorder == nil {
		return
	}
	typ := origin
	if origin == types.RecordIncoming && !answered {
		typ = types.RecordMissed
	}
	r.recorder.Record(types.CallRecord{
		Type:   typ,
		Name:   name,
		Number: number,
		Time:   time.Now().Format("Jan 2 15:04"),
	})
}
