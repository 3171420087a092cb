package types

import "time"

// CallState is the raw call state string as reported by the backend
// (oFono vocabulary plus the synonyms older builds emit).
type CallState string

const (
	CallIdle     CallState = "idle"
	CallIncoming CallState = "incoming"
	CallRinging  CallState = "ringing"
	CallWaiting  CallState = "waiting"
	CallActive   CallState = "active"
	CallTalking  CallState = "talking"
	CallOutgoing CallState = "outgoing"
	CallDialing  CallState = "dialing"
	CallAlerting CallState = "alerting"
	CallHeld     CallState = "held"
)

// NormalizedState is the reduced five-value enumeration that drives the
// phone UI. Backend synonym values collapse onto these.
type NormalizedState string

const (
	StateIdle     NormalizedState = "idle"
	StateIncoming NormalizedState = "incoming"
	StateActive   NormalizedState = "active"
	StateOutgoing NormalizedState = "outgoing"
	StateHeld     NormalizedState = "held"
)

// Normalize collapses a raw call state to its normalized value.
// Unknown or empty states map to idle.
func (s CallState) Normalize() NormalizedState {
	switch s {
	case CallIncoming, CallRinging, CallWaiting:
		return StateIncoming
	case CallActive, CallTalking:
		return StateActive
	case CallOutgoing, CallDialing, CallAlerting:
		return StateOutgoing
	case CallHeld:
		return StateHeld
	default:
		return StateIdle
	}
}

// CallRecordType classifies an entry in the call history.
type CallRecordType string

const (
	RecordIncoming CallRecordType = "incoming"
	RecordOutgoing CallRecordType = "outgoing"
	RecordMissed   CallRecordType = "missed"
)

// CallRecord is one entry of the recent-calls list. Immutable once
// received; ordering is most-recent-first.
type CallRecord struct {
	Type   CallRecordType `json:"type"`
	Name   string         `json:"name,omitempty"`
	Number string         `json:"number,omitempty"`
	Time   string         `json:"time"`
}

// CallSnapshot is the backend's complete view of connection and call
// activity at a point in time. Each snapshot supersedes all prior ones.
//
// RecentCalls is a "no update" sentinel when nil: existing recent-call
// state is left untouched. An empty non-nil slice means "no calls".
//
// Seq is a local monotonic receipt sequence stamped when the snapshot
// arrived, not transmitted by the backend. The reconciler discards
// snapshots applied out of order relative to the last-applied one.
type CallSnapshot struct {
	Connected     bool         `json:"connected"`
	DeviceName    string       `json:"device_name,omitempty"`
	DeviceAddress string       `json:"device,omitempty"`
	CallState     CallState    `json:"call_state"`
	CallerName    string       `json:"caller_name,omitempty"`
	CallerID      string       `json:"caller_id,omitempty"`
	RecentCalls   []CallRecord `json:"recent_calls,omitempty"`
	Seq           uint64       `json:"-"`
}

// DisplayState is the single authoritative UI view of the phone screen.
// It is a pure function of the latest applied CallSnapshot plus the two
// locally-owned fields (DialBuffer, call timer); only the reconciler
// writes it.
type DisplayState struct {
	Connected  bool   `json:"connected"`
	DeviceName string `json:"device_name,omitempty"`

	State      NormalizedState `json:"call_state"`
	CallerName string          `json:"caller_name,omitempty"`
	CallerID   string          `json:"caller_id,omitempty"`

	CallVisible bool `json:"call_visible"`
	ShowAnswer  bool `json:"show_answer"`
	ShowHangup  bool `json:"show_hangup"`
	Ringing     bool `json:"ringing"`

	// CallStart is zero unless a call timer is running.
	CallStart    time.Time     `json:"-"`
	CallDuration time.Duration `json:"-"`
	// DurationSecs mirrors CallDuration for the wire.
	DurationSecs int `json:"duration_secs"`

	DialBuffer  string       `json:"dial_buffer"`
	RecentCalls []CallRecord `json:"recent_calls,omitempty"`

	Seq uint64 `json:"seq"`
}

// CommandResult is the uniform outcome shape of phone, music, bluetooth
// and CarPlay commands.
type CommandResult struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// TrackInfo describes the currently playing song.
type TrackInfo struct {
	Title    string `json:"title,omitempty"`
	Artist   string `json:"artist,omitempty"`
	Album    string `json:"album,omitempty"`
	Elapsed  int    `json:"elapsed_secs"`
	Duration int    `json:"duration_secs"`
}

// SensorData is one reading from the sensor board.
type SensorData struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Pressure    float64 `json:"pressure"`
}

// BluetoothDevice is one discovered or connected device.
type BluetoothDevice struct {
	Address string `json:"address"`
	Name    string `json:"name"`
	Paired  bool   `json:"paired"`
}
