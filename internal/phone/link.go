package phone

import (
	"context"
	"sync/atomic"

	"github.com/CharlesBrocato/car-stereo-system/internal/types"
)

// Link is the boundary to the phone status source (BlueZ/oFono). It
// delivers state two ways, deliberately redundant: a push channel of
// snapshots emitted as D-Bus signals arrive, and an on-demand Poll of the
// same shape. Commands travel the other direction and never report state:
// a command's success is confirmed by the next snapshot, not assumed.
type Link interface {
	Start() error
	Stop()

	// Snapshots is the push event channel. Each snapshot carries a
	// receipt sequence stamped at arrival.
	Snapshots() <-chan types.CallSnapshot

	// Poll rebuilds the current status synchronously. A non-nil error is
	// a hard poll failure ("assume disconnected" for the indicator only).
	Poll(ctx context.Context) (types.CallSnapshot, error)

	// Call control commands.
	Answer() error
	Hangup() error
	Dial(number string) error
	SendTone(digit string) error
}

// Sequence issues monotonically increasing receipt sequence numbers.
// Push and poll snapshots share one counter so the reconciler can discard
// a stale poll result that arrives after a newer push snapshot.
type Sequence struct {
	n atomic.Uint64
}

func (s *Sequence) Next() uint64 {
	return s.n.Add(1)
}
