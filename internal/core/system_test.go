package core

import (
	"io"
	"log"
	"path/filepath"
	"testing"
	"time"

	"github.com/CharlesBrocato/car-stereo-system/internal/config"
	"github.com/CharlesBrocato/car-stereo-system/internal/logger"
	"github.com/CharlesBrocato/car-stereo-system/internal/types"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.HTTP.Listen = "127.0.0.1:0"
	cfg.HTTP.StaticDir = ""
	cfg.Phone.CallLogPath = filepath.Join(t.TempDir(), "calls.db")
	cfg.Redis.Enabled = false
	cfg.Sense.Simulate = true
	cfg.Hardware.Enabled = false
	cfg.CarPlay.EngineDir = t.TempDir()
	cfg.CarPlay.KeyPipePath = filepath.Join(t.TempDir(), "pipe")
	return cfg
}

// Startup must survive every optional backend being absent: no D-Bus,
// no MPD, no Redis, no GPIO. Only the HTTP listener is load-bearing.
func TestStartupDegradesWithoutBackends(t *testing.T) {
	l := logger.NewLogger(log.New(io.Discard, "", 0), logger.LogLevelNone)
	h := NewHeadUnit(testConfig(t), l)

	if err := h.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer h.Shutdown()

	d := h.rec.Display()
	if d.Connected {
		t.Error("phone should start disconnected")
	}
	if d.State != types.StateIdle {
		t.Errorf("phone should start idle, got %s", d.State)
	}

	// The simulated sensor board should produce a reading quickly.
	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, ok := h.sampler.Latest(); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("sensor sampler never produced a reading")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestPhoneFacadeDisplay(t *testing.T) {
	l := logger.NewLogger(log.New(io.Discard, "", 0), logger.LogLevelNone)
	h := NewHeadUnit(testConfig(t), l)
	if err := h.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer h.Shutdown()

	ph := &phoneFacade{Dispatcher: h.dispatcher, rec: h.rec}
	d := ph.Display()
	if d.State != types.StateIdle {
		t.Errorf("unexpected display state: %s", d.State)
	}
}

func TestIPCCommandValidation(t *testing.T) {
	l := logger.NewLogger(log.New(io.Discard, "", 0), logger.LogLevelNone)
	h := NewHeadUnit(testConfig(t), l)
	if err := h.Start(); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer h.Shutdown()

	if err := h.handlePhoneCommand("reboot"); err == nil {
		t.Error("unknown phone command accepted")
	}
	if err := h.handleCarPlayCommand("explode"); err == nil {
		t.Error("unknown carplay command accepted")
	}
	// Engine is not built in the test tree, so start must fail cleanly.
	if err := h.handleCarPlayCommand("start"); err == nil {
		t.Error("carplay start succeeded without a built engine")
	}
}
