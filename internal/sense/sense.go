// Package sense reads the optional cabin sensor board and feeds the
// readings into the status surface.
package sense

import (
	"context"
	"sync"
	"time"

	"github.com/CharlesBrocato/car-stereo-system/internal/config"
	"github.com/CharlesBrocato/car-stereo-system/internal/logger"
	"github.com/CharlesBrocato/car-stereo-system/internal/types"
)

// Sensors is one sensor board driver.
type Sensors interface {
	Read() (types.SensorData, error)
	Close() error
}

// New picks the driver per configuration.
func New(l *logger.Logger, cfg config.SenseConfig) (Sensors, error) {
	if cfg.Simulate {
		return NewSimulated(), nil
	}
	return NewBoard(cfg.I2CBus)
}

// Sampler periodically reads the board and keeps the latest value.
type Sampler struct {
	logger   *logger.Logger
	sensors  Sensors
	interval time.Duration

	mu     sync.RWMutex
	latest types.SensorData
	ok     bool
}

func NewSampler(l *logger.Logger, sensors Sensors, interval time.Duration) *Sampler {
	return &Sampler{
		logger:   l.WithTag("sense"),
		sensors:  sensors,
		interval: interval,
	}
}

// Run samples until the context is cancelled. Read failures keep the
// previous value; the board may be mid-measurement.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.sample()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sample()
		}
	}
}

func (s *Sampler) sample() {
	data, err := s.sensors.Read()
	if err != nil {
		s.logger.Debugf("Sensor read failed: %v", err)
		return
	}
	s.mu.Lock()
	s.latest = data
	s.ok = true
	s.mu.Unlock()
}

// Latest returns the most recent reading; ok is false before the first
// successful sample.
func (s *Sampler) Latest() (types.SensorData, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest, s.ok
}
