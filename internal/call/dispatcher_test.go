package call

import (
	"errors"
	"io"
	"log"
	"testing"

	"github.com/CharlesBrocato/car-stereo-system/internal/config"
	"github.com/CharlesBrocato/car-stereo-system/internal/logger"
	"github.com/CharlesBrocato/car-stereo-system/internal/types"
)

type mockCommander struct {
	answerErr error
	hangupErr error
	dialErr   error
	toneErr   error

	answered int
	hungUp   int
	dialed   []string
	tones    []string
}

func (m *mockCommander) Answer() error { m.answered++; return m.answerErr }
func (m *mockCommander) Hangup() error { m.hungUp++; return m.hangupErr }

func (m *mockCommander) Dial(number string) error {
	m.dialed = append(m.dialed, number)
	return m.dialErr
}

func (m *mockCommander) SendTone(digit string) error {
	m.tones = append(m.tones, digit)
	return m.toneErr
}

func newDispatcherFixture(t *testing.T) (*Dispatcher, *mockCommander, *Reconciler) {
	t.Helper()
	r := newTestReconciler(t, config.HeldTimerContinue, nil)
	link := &mockCommander{}
	l := logger.NewLogger(log.New(io.Discard, "", 0), logger.LogLevelNone)
	return NewDispatcher(l, link, r), link, r
}

func TestDialEmptyNumberIsNoOp(t *testing.T) {
	d, link, _ := newDispatcherFixture(t)

	for _, number := range []string{"", "   ", "\t"} {
		res := d.Dial(number)
		if res.Success {
			t.Errorf("Dial(%q) should fail", number)
		}
	}
	if len(link.dialed) != 0 {
		t.Errorf("empty numbers reached the link: %v", link.dialed)
	}
}

func TestDialClearsBufferOnSuccess(t *testing.T) {
	d, link, r := newDispatcherFixture(t)

	r.AppendDigit("5")
	r.AppendDigit("5")
	r.AppendDigit("5")

	res := d.Dial(r.DialBufferValue())
	if !res.Success {
		t.Fatalf("dial failed: %s", res.Message)
	}
	if len(link.dialed) != 1 || link.dialed[0] != "555" {
		t.Errorf("wrong number dialed: %v", link.dialed)
	}
	if got := r.DialBufferValue(); got != "" {
		t.Errorf("buffer not cleared after successful dial: %q", got)
	}
}

func TestDialKeepsBufferOnFailure(t *testing.T) {
	d, link, r := newDispatcherFixture(t)
	link.dialErr = errors.New("no route")

	r.AppendDigit("5")
	r.AppendDigit("5")

	res := d.Dial(r.DialBufferValue())
	if res.Success {
		t.Fatal("dial should have failed")
	}
	if got := r.DialBufferValue(); got != "55" {
		t.Errorf("failed dial cleared the buffer: %q", got)
	}
}

func TestHangupHidesCallImmediately(t *testing.T) {
	d, _, r := newDispatcherFixture(t)

	r.Apply(snapshot(1, "active"))

	res := d.Hangup()
	if !res.Success {
		t.Fatalf("hangup failed: %s", res.Message)
	}
	if got := r.Display(); got.CallVisible || got.State != types.StateIdle {
		t.Errorf("call box still visible after confirmed hangup: %+v", got)
	}
}

func TestHangupFailureKeepsCall(t *testing.T) {
	d, link, r := newDispatcherFixture(t)
	link.hangupErr = errors.New("dbus timeout")

	r.Apply(snapshot(1, "active"))

	res := d.Hangup()
	if res.Success {
		t.Fatal("hangup should have failed")
	}
	if got := r.Display(); !got.CallVisible || got.State != types.StateActive {
		t.Errorf("failed hangup cleared the call: %+v", got)
	}
}

func TestSendDigitRequiresActiveCall(t *testing.T) {
	d, link, r := newDispatcherFixture(t)

	if res := d.SendDigit("1"); res.Success {
		t.Error("DTMF accepted while idle")
	}

	r.Apply(snapshot(1, "incoming"))
	if res := d.SendDigit("1"); res.Success {
		t.Error("DTMF accepted while ringing")
	}
	if len(link.tones) != 0 {
		t.Errorf("tones sent outside an active call: %v", link.tones)
	}

	r.Apply(snapshot(2, "active"))
	if res := d.SendDigit("1"); !res.Success {
		t.Errorf("DTMF rejected during active call: %s", res.Message)
	}
	if len(link.tones) != 1 || link.tones[0] != "1" {
		t.Errorf("wrong tones sent: %v", link.tones)
	}
	if got := r.DialBufferValue(); got != "1" {
		t.Errorf("digit not echoed locally: %q", got)
	}
}

func TestSendDigitToneFailureStillEchoes(t *testing.T) {
	d, link, r := newDispatcherFixture(t)
	link.toneErr = errors.New("modem busy")

	r.Apply(snapshot(1, "active"))

	if res := d.SendDigit("9"); !res.Success {
		t.Error("tone send failure should not fail the command")
	}
	if got := r.DialBufferValue(); got != "9" {
		t.Errorf("digit not echoed after tone failure: %q", got)
	}
}

func TestAnswerSurfacesError(t *testing.T) {
	d, link, _ := newDispatcherFixture(t)
	link.answerErr = errors.New("no incoming call")

	res := d.Answer()
	if res.Success {
		t.Fatal("answer should have failed")
	}
	if res.Message == "" {
		t.Error("failure message missing")
	}
	if link.answered != 1 {
		t.Errorf("answer called %d times", link.answered)
	}
}
