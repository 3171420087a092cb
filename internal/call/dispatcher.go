package call

import (
	"strings"

	"github.com/CharlesBrocato/car-stereo-system/internal/logger"
	"github.com/CharlesBrocato/car-stereo-system/internal/types"
)

// Commander is the command surface of the phone link, decoupled from the
// snapshot path: the dispatcher fires these and waits for the next
// snapshot to reflect any state change.
type Commander interface {
	Answer() error
	Hangup() error
	Dial(number string) error
	SendTone(digit string) error
}

// Dispatcher sends user-initiated call commands. It never mutates the
// displayed call state on success; the one exception is the optimistic
// call-box clear after a confirmed hangup.
type Dispatcher struct {
	logger *logger.Logger
	link   Commander
	rec    *Reconciler
}

func NewDispatcher(l *logger.Logger, link Commander, rec *Reconciler) *Dispatcher {
	return &Dispatcher{
		logger: l.WithTag("dispatcher"),
		link:   link,
		rec:    rec,
	}
}

// Answer accepts the incoming call.
func (d *Dispatcher) Answer() types.CommandResult {
	if err := d.link.Answer(); err != nil {
		d.logger.Errorf("Failed to answer call: %v", err)
		return types.CommandResult{Success: false, Message: err.Error()}
	}
	return types.CommandResult{Success: true}
}

// Hangup ends the call. On confirmed success the call box is hidden
// immediately; the next snapshot confirms or corrects that.
func (d *Dispatcher) Hangup() types.CommandResult {
	if err := d.link.Hangup(); err != nil {
		d.logger.Errorf("Failed to hang up: %v", err)
		return types.CommandResult{Success: false, Message: err.Error()}
	}
	d.rec.ForceIdle()
	return types.CommandResult{Success: true}
}

// Dial places a call. An empty number (after trimming) is a no-op; the
// dial buffer is cleared only on success.
func (d *Dispatcher) Dial(number string) types.CommandResult {
	if strings.TrimSpace(number) == "" {
		return types.CommandResult{Success: false, Message: "no number provided"}
	}
	if err := d.link.Dial(number); err != nil {
		d.logger.Errorf("Failed to dial %q: %v", number, err)
		return types.CommandResult{Success: false, Message: err.Error()}
	}
	d.rec.ClearDialBuffer()
	return types.CommandResult{Success: true}
}

// SendDigit sends a DTMF tone during an active call and echoes the digit
// locally right away. The tone itself is fire-and-forget: a lost tone is
// not worth blocking the UI over.
func (d *Dispatcher) SendDigit(digit string) types.CommandResult {
	if d.rec.Display().State != types.StateActive {
		return types.CommandResult{Success: false, Message: "no active call"}
	}

	d.rec.AppendDigit(digit)

	if err := d.link.SendTone(digit); err != nil {
		d.logger.Warnf("DTMF tone %q failed: %v", digit, err)
	}
	return types.CommandResult{Success: true}
}
