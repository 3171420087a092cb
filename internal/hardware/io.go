// Package hardware reads the vehicle GPIO lines: ignition sense,
// illumination (headlights on means night mode) and the reverse gear
// input. All three are inputs with edge-event callbacks.
package hardware

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"

	"github.com/CharlesBrocato/car-stereo-system/internal/config"
	"github.com/CharlesBrocato/car-stereo-system/internal/logger"
)

// Channel names for the vehicle inputs.
const (
	ChannelIgnition     = "ignition"
	ChannelIllumination = "illumination"
	ChannelReverse      = "reverse"
)

// InputCallback receives edge events. value is the new line level.
type InputCallback func(channel string, value bool)

// VehicleIO owns the GPIO chip and the three vehicle input lines.
type VehicleIO struct {
	logger *logger.Logger
	cfg    config.HardwareConfig

	mu        sync.RWMutex
	chip      *gpiocdev.Chip
	lines     map[string]*gpiocdev.Line
	states    map[string]bool
	callbacks map[string][]InputCallback
}

func NewVehicleIO(l *logger.Logger, cfg config.HardwareConfig) *VehicleIO {
	return &VehicleIO{
		logger:    l.WithTag("hardware"),
		cfg:       cfg,
		lines:     make(map[string]*gpiocdev.Line),
		states:    make(map[string]bool),
		callbacks: make(map[string][]InputCallback),
	}
}

// Initialize opens the chip and requests all vehicle lines with edge
// detection. Initial levels are read so state is valid immediately.
func (v *VehicleIO) Initialize() error {
	chip, err := gpiocdev.NewChip(v.cfg.Chip)
	if err != nil {
		return fmt.Errorf("failed to open GPIO chip %s: %w", v.cfg.Chip, err)
	}
	v.chip = chip

	inputs := map[string]int{
		ChannelIgnition:     v.cfg.IgnitionLine,
		ChannelIllumination: v.cfg.IlluminationLine,
		ChannelReverse:      v.cfg.ReverseLine,
	}

	for channel, offset := range inputs {
		ch := channel
		line, err := chip.RequestLine(offset,
			gpiocdev.AsInput,
			gpiocdev.WithBothEdges,
			gpiocdev.WithConsumer("headunit"),
			gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
				v.handleEdge(ch, evt.Type == gpiocdev.LineEventRisingEdge)
			}))
		if err != nil {
			v.Cleanup()
			return fmt.Errorf("failed to request GPIO line %d (%s): %w", offset, channel, err)
		}
		v.lines[channel] = line

		val, err := line.Value()
		if err != nil {
			v.logger.Warnf("Initial read of %s failed: %v", channel, err)
		}
		v.mu.Lock()
		v.states[channel] = val != 0
		v.mu.Unlock()

		v.logger.Infof("Configured input %s: chip=%s line=%d value=%v",
			channel, v.cfg.Chip, offset, val != 0)
	}
	return nil
}

func (v *VehicleIO) handleEdge(channel string, value bool) {
	v.mu.Lock()
	if v.states[channel] == value {
		v.mu.Unlock()
		return
	}
	v.states[channel] = value
	callbacks := append([]InputCallback(nil), v.callbacks[channel]...)
	v.mu.Unlock()

	v.logger.Infof("Input %s changed to %v", channel, value)
	for _, cb := range callbacks {
		cb(channel, value)
	}
}

// RegisterCallback adds a listener for one channel's edge events.
func (v *VehicleIO) RegisterCallback(channel string, cb InputCallback) {
	v.mu.Lock()
	v.callbacks[channel] = append(v.callbacks[channel], cb)
	v.mu.Unlock()
}

// Read returns the current level of a channel.
func (v *VehicleIO) Read(channel string) (bool, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	value, ok := v.states[channel]
	if !ok {
		return false, fmt.Errorf("unknown input channel: %s", channel)
	}
	return value, nil
}

// NightMode reports whether the headlights are on.
func (v *VehicleIO) NightMode() bool {
	on, _ := v.Read(ChannelIllumination)
	return on
}

// Cleanup releases all lines and the chip.
func (v *VehicleIO) Cleanup() {
	v.mu.Lock()
	defer v.mu.Unlock()

	for channel, line := range v.lines {
		line.Close()
		v.logger.Debugf("Closed GPIO line for %s", channel)
	}
	v.lines = make(map[string]*gpiocdev.Line)

	if v.chip != nil {
		v.chip.Close()
		v.chip = nil
	}
	v.logger.Infof("Hardware released")
}
