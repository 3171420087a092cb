package carplay

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/CharlesBrocato/car-stereo-system/internal/config"
	"github.com/CharlesBrocato/car-stereo-system/internal/logger"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()

	dir := t.TempDir()
	l := logger.NewLogger(log.New(io.Discard, "", 0), logger.LogLevelNone)
	m := NewManager(l, config.CarPlayConfig{
		EngineDir:   dir,
		KeyPipePath: filepath.Join(dir, "pipe"),
		Width:       800,
		Height:      480,
	})
	t.Cleanup(m.Close)
	return m
}

func TestStartRefusesWhenNotBuilt(t *testing.T) {
	m := newTestManager(t)

	if m.Built() {
		t.Fatal("fresh temp dir reported as built")
	}
	if err := m.Start(true); err == nil {
		t.Fatal("Start should fail without the engine binary")
	}

	st := m.Status()
	if st.Running {
		t.Error("status reports running after failed start")
	}
	if st.Error == "" {
		t.Error("status error not set after failed start")
	}
}

func TestBuildWatchTracksBinary(t *testing.T) {
	m := newTestManager(t)

	exe := m.executablePath()
	if err := os.WriteFile(exe, []byte("#!/bin/sh\n"), 0755); err != nil {
		t.Fatalf("write executable: %v", err)
	}

	waitFor(t, func() bool { return m.Built() }, "built flag after binary appears")

	if err := os.Remove(exe); err != nil {
		t.Fatalf("remove executable: %v", err)
	}
	waitFor(t, func() bool { return !m.Built() }, "built flag cleared after binary removed")
}

func TestWriteSettingsContainsDisplayConfig(t *testing.T) {
	m := newTestManager(t)

	if err := m.writeSettings(true); err != nil {
		t.Fatalf("writeSettings failed: %v", err)
	}

	data, err := os.ReadFile(m.settingsPath())
	if err != nil {
		t.Fatalf("read settings: %v", err)
	}
	s := string(data)

	for _, want := range []string{
		"width = 800",
		"height = 480",
		"fullscreen = true",
		"key-pipe-path = " + m.cfg.KeyPipePath,
	} {
		if !strings.Contains(s, want) {
			t.Errorf("settings missing %q", want)
		}
	}
}

func TestSendKeyValidation(t *testing.T) {
	m := newTestManager(t)

	if err := m.SendKey("volume_up"); err == nil {
		t.Error("unknown key accepted")
	}

	// Known key but no pipe yet.
	if err := m.SendKey("home"); err == nil {
		t.Error("SendKey succeeded without a pipe")
	}
}

func TestSendKeyWritesCodes(t *testing.T) {
	m := newTestManager(t)

	// A regular file stands in for the fifo; open/write semantics are the
	// same for this test.
	if err := os.WriteFile(m.cfg.KeyPipePath, nil, 0666); err != nil {
		t.Fatalf("create pipe stand-in: %v", err)
	}

	if err := m.SendKey("select"); err != nil {
		t.Fatalf("SendKey failed: %v", err)
	}

	data, err := os.ReadFile(m.cfg.KeyPipePath)
	if err != nil {
		t.Fatalf("read pipe stand-in: %v", err)
	}
	if len(data) != 2 || data[0] != 104 || data[1] != 105 {
		t.Errorf("select should send down+up, got %v", data)
	}
}

func TestStopWhenNotRunning(t *testing.T) {
	m := newTestManager(t)

	if err := m.Stop(); err != nil {
		t.Errorf("stopping a stopped engine failed: %v", err)
	}
	if st := m.Status(); st.Status != "stopped" {
		t.Errorf("expected stopped status, got %q", st.Status)
	}
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
