package callfsm

import "github.com/librescoot/librefsm"

// Normalized call states
const (
	StateIdle     librefsm.StateID = "idle"
	StateIncoming librefsm.StateID = "incoming"
	StateActive   librefsm.StateID = "active"
	StateOutgoing librefsm.StateID = "outgoing"
	StateHeld     librefsm.StateID = "held"
)

// Snapshot-driven events, one per normalized state. The reconciler sends
// the event matching the normalized state of the latest snapshot; identical
// consecutive states send nothing, so entry actions never replay.
const (
	EvIdle     librefsm.EventID = "snapshot-idle"
	EvIncoming librefsm.EventID = "snapshot-incoming"
	EvActive   librefsm.EventID = "snapshot-active"
	EvOutgoing librefsm.EventID = "snapshot-outgoing"
	EvHeld     librefsm.EventID = "snapshot-held"
)
