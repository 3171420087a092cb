package callfsm

import (
	"github.com/librescoot/librefsm"
)

// NewDefinition creates the phone call FSM definition. Transitions exist
// only between distinct normalized states: re-applying the state the
// machine is already in is a no-op by construction, which keeps entry
// side effects (timer start, ring indication) idempotent across repeated
// snapshots.
func NewDefinition(actions Actions) *librefsm.Definition {
	return librefsm.NewDefinition().
		State(StateIdle,
			librefsm.WithOnEnter(actions.EnterIdle),
		).
		State(StateIncoming,
			librefsm.WithOnEnter(actions.EnterIncoming),
			librefsm.WithOnExit(actions.ExitIncoming),
		).
		State(StateActive,
			librefsm.WithOnEnter(actions.EnterActive),
			librefsm.WithOnExit(actions.ExitActive),
		).
		State(StateOutgoing,
			librefsm.WithOnEnter(actions.EnterOutgoing),
		).
		State(StateHeld,
			librefsm.WithOnEnter(actions.EnterHeld),
			librefsm.WithOnExit(actions.ExitHeld),
		).

		// From Idle
		Transition(StateIdle, EvIncoming, StateIncoming).
		Transition(StateIdle, EvActive, StateActive).
		Transition(StateIdle, EvOutgoing, StateOutgoing).
		Transition(StateIdle, EvHeld, StateHeld).

		// From Incoming
		Transition(StateIncoming, EvIdle, StateIdle).
		Transition(StateIncoming, EvActive, StateActive).
		Transition(StateIncoming, EvOutgoing, StateOutgoing).
		Transition(StateIncoming, EvHeld, StateHeld).

		// From Active
		Transition(StateActive, EvIdle, StateIdle).
		Transition(StateActive, EvIncoming, StateIncoming).
		Transition(StateActive, EvOutgoing, StateOutgoing).
		Transition(StateActive, EvHeld, StateHeld).

		// From Outgoing
		Transition(StateOutgoing, EvIdle, StateIdle).
		Transition(StateOutgoing, EvIncoming, StateIncoming).
		Transition(StateOutgoing, EvActive, StateActive).
		Transition(StateOutgoing, EvHeld, StateHeld).

		// From Held
		Transition(StateHeld, EvIdle, StateIdle).
		Transition(StateHeld, EvIncoming, StateIncoming).
		Transition(StateHeld, EvActive, StateActive).
		Transition(StateHeld, EvOutgoing, StateOutgoing).

		// Initial state
		Initial(StateIdle)
}
