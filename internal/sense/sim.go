package sense

import (
	"math"
	"time"

	"github.com/CharlesBrocato/car-stereo-system/internal/types"
)

// Simulated produces plausible cabin readings for development machines
// without the sensor board.
type Simulated struct {
	start time.Time
}

func NewSimulated() *Simulated {
	return &Simulated{start: time.Now()}
}

func (s *Simulated) Read() (types.SensorData, error) {
	t := time.Since(s.start).Seconds()
	return types.SensorData{
		Temperature: 21.5 + 2*math.Sin(t/60),
		Humidity:    45 + 5*math.Sin(t/90),
		Pressure:    1013.25 + math.Sin(t/120),
	}, nil
}

func (s *Simulated) Close() error { return nil }
