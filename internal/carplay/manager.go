// Package carplay controls the FastCarPlay receiver process: lifecycle,
// named-pipe key injection and dongle detection. The receiver itself is
// an external binary; this package only supervises it.
package carplay

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/CharlesBrocato/car-stereo-system/internal/config"
	"github.com/CharlesBrocato/car-stereo-system/internal/logger"
)

// FastCarPlay key-pipe codes.
var keyCodes = map[string]byte{
	"left":        100,
	"right":       101,
	"select_down": 104,
	"select_up":   105,
	"select":      104, // followed by select_up
	"back":        106,
	"home":        200,
}

// Carlinkit USB vendor id prefixes as they appear in lsusb output.
var dongleIDs = []string{"1314:", "1234:", "154b:"}

// Status is the CarPlay state reported to the UI.
type Status struct {
	Running         bool   `json:"running"`
	Built           bool   `json:"built"`
	Status          string `json:"status"`
	ConnectedDevice string `json:"connected_device,omitempty"`
	DongleDetected  bool   `json:"dongle_detected"`
	Error           string `json:"error,omitempty"`
}

// Manager supervises the FastCarPlay engine process.
type Manager struct {
	logger *logger.Logger
	cfg    config.CarPlayConfig

	mu        sync.Mutex
	cmd       *exec.Cmd
	exited    chan error
	running   bool
	lastState string
	connected string
	lastErr   string
	built     bool

	watcher *buildWatcher
}

func NewManager(l *logger.Logger, cfg config.CarPlayConfig) *Manager {
	m := &Manager{
		logger:    l.WithTag("carplay"),
		cfg:       cfg,
		lastState: "stopped",
	}
	m.built = fileExists(m.executablePath())

	w, err := newBuildWatcher(m.logger, filepath.Join(cfg.EngineDir, "out"), m.setBuilt)
	if err != nil {
		// No watch means Built() falls back to a stat per status call.
		m.logger.Warnf("Engine build watch unavailable: %v", err)
	} else {
		m.watcher = w
	}
	return m
}

func (m *Manager) executablePath() string {
	return filepath.Join(m.cfg.EngineDir, "out", "app")
}

func (m *Manager) settingsPath() string {
	return filepath.Join(m.cfg.EngineDir, "conf", "settings.txt")
}

func (m *Manager) setBuilt(built bool) {
	m.mu.Lock()
	m.built = built
	m.mu.Unlock()
}

// Built reports whether the engine executable exists.
func (m *Manager) Built() bool {
	if m.watcher == nil {
		return fileExists(m.executablePath())
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.built
}

// DongleDetected scans lsusb output for known Carlinkit vendor ids.
func (m *Manager) DongleDetected() bool {
	out, err := exec.Command("lsusb").Output()
	if err != nil {
		m.logger.Debugf("lsusb failed: %v", err)
		return false
	}
	s := string(out)
	for _, id := range dongleIDs {
		if strings.Contains(s, id) {
			return true
		}
	}
	return false
}

// Status returns the current engine state.
func (m *Manager) Status() Status {
	m.mu.Lock()
	st := Status{
		Running:         m.running,
		Status:          m.lastState,
		ConnectedDevice: m.connected,
		Error:           m.lastErr,
	}
	m.mu.Unlock()

	st.Built = m.Built()
	st.DongleDetected = m.DongleDetected()
	return st
}

// Start launches the engine. Already-running is success, not an error.
func (m *Manager) Start(fullscreen bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return nil
	}
	if !fileExists(m.executablePath()) {
		m.lastErr = "engine not built"
		return fmt.Errorf("engine executable missing at %s", m.executablePath())
	}

	if err := m.writeSettings(fullscreen); err != nil {
		m.lastErr = err.Error()
		return err
	}
	if err := ensurePipe(m.cfg.KeyPipePath); err != nil {
		m.logger.Warnf("Key pipe setup failed: %v", err)
	}

	cmd := exec.Command(m.executablePath(), m.settingsPath())
	cmd.Dir = m.cfg.EngineDir
	cmd.Env = os.Environ()
	if os.Getenv("DISPLAY") == "" {
		cmd.Env = append(cmd.Env, "DISPLAY=:0")
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		m.lastErr = err.Error()
		return fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		m.lastErr = err.Error()
		return fmt.Errorf("start engine: %w", err)
	}

	exited := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		exited <- err
		m.reapOnExit(cmd, err)
	}()

	// Catch immediate startup deaths before declaring success.
	select {
	case err := <-exited:
		m.lastErr = "engine terminated during startup"
		return fmt.Errorf("engine terminated during startup: %v", err)
	case <-time.After(500 * time.Millisecond):
	}

	m.cmd = cmd
	m.exited = exited
	m.running = true
	m.lastState = "running"
	m.lastErr = ""

	go m.monitorOutput(stdout)

	m.logger.Infof("Engine started (pid %d)", cmd.Process.Pid)
	return nil
}

// Stop terminates the engine: SIGTERM, a 3 second grace period, then
// SIGKILL. Stopping a stopped engine is a no-op.
func (m *Manager) Stop() error {
	m.mu.Lock()
	cmd := m.cmd
	exited := m.exited
	m.cmd = nil
	m.exited = nil
	m.running = false
	m.lastState = "stopped"
	m.connected = ""
	m.mu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}

	if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
		m.logger.Debugf("SIGTERM failed: %v", err)
	}

	select {
	case <-exited:
	case <-time.After(3 * time.Second):
		m.logger.Warnf("Engine ignored SIGTERM, killing")
		cmd.Process.Kill()
		<-exited
	}

	m.logger.Infof("Engine stopped")
	return nil
}

// Restart stops the engine, waits a moment for the dongle to settle,
// and starts it again.
func (m *Manager) Restart(fullscreen bool) error {
	if err := m.Stop(); err != nil {
		return err
	}
	time.Sleep(time.Second)
	return m.Start(fullscreen)
}

// SendKey writes a key code into the engine's named pipe. "select"
// sends the down and up codes back to back.
func (m *Manager) SendKey(key string) error {
	key = strings.ToLower(key)
	code, ok := keyCodes[key]
	if !ok {
		return fmt.Errorf("unknown key %q", key)
	}
	if !fileExists(m.cfg.KeyPipePath) {
		return fmt.Errorf("key pipe not available")
	}

	f, err := os.OpenFile(m.cfg.KeyPipePath, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("open key pipe: %w", err)
	}
	defer f.Close()

	buf := []byte{code}
	if key == "select" {
		buf = append(buf, keyCodes["select_up"])
	}
	if _, err := f.Write(buf); err != nil {
		return fmt.Errorf("write key pipe: %w", err)
	}
	return nil
}

// Close stops the engine and the build watcher.
func (m *Manager) Close() {
	m.Stop()
	if m.watcher != nil {
		m.watcher.close()
	}
}

// monitorOutput tracks the engine's connection state from its stdout.
func (m *Manager) monitorOutput(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		m.logger.Debugf("engine: %s", line)

		m.mu.Lock()
		switch {
		case strings.Contains(line, "Connected"):
			m.lastState = "connected"
			m.connected = "CarPlay/Android Auto"
		case strings.Contains(line, "Disconnected"):
			m.lastState = "waiting"
			m.connected = ""
		case strings.Contains(line, "Error"):
			m.lastErr = line
		}
		m.mu.Unlock()
	}
}

// reapOnExit clears the running flag when the engine dies on its own.
func (m *Manager) reapOnExit(cmd *exec.Cmd, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cmd != cmd {
		// Stop() already took ownership of this process.
		return
	}
	m.cmd = nil
	m.running = false
	m.lastState = "stopped"
	m.connected = ""
	if err != nil {
		m.lastErr = err.Error()
		m.logger.Warnf("Engine exited: %v", err)
	} else {
		m.logger.Infof("Engine exited")
	}
}

func (m *Manager) writeSettings(fullscreen bool) error {
	if err := os.MkdirAll(filepath.Dir(m.settingsPath()), 0755); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}

	fs := "false"
	if fullscreen {
		fs = "true"
	}

	settings := fmt.Sprintf(`# FastCarPlay settings, generated at startup

width = %d
height = %d
source-fps = 30
fps = 30
fullscreen = %s
cursor = false

encryption = false
autoconnect = true
weak-charge = true
left-hand-drive = true
night-mode = 2

wifi-5 = true
bluetooth-audio = false
mic-type = 1

android-dpi = 140
android-resolution = 1
android-media-delay = 300

font-size = 24
vsync = false
hw-decode = true
fast-render-scale = true
video-buffer-size = 32
audio-buffer-size = 32
audio-buffer-wait = 2
audio-buffer-wait-call = 8
audio-fade = 0.3

key-pipe-path = %s

logging = false
`, m.cfg.Width, m.cfg.Height, fs, m.cfg.KeyPipePath)

	if err := os.WriteFile(m.settingsPath(), []byte(settings), 0644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

func ensurePipe(path string) error {
	if fileExists(path) {
		return nil
	}
	if err := unix.Mkfifo(path, 0666); err != nil {
		return fmt.Errorf("mkfifo %s: %w", path, err)
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
