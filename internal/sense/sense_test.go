package sense

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/CharlesBrocato/car-stereo-system/internal/logger"
	"github.com/CharlesBrocato/car-stereo-system/internal/types"
)

type fixedSensors struct {
	data types.SensorData
	err  error
}

func (f *fixedSensors) Read() (types.SensorData, error) { return f.data, f.err }
func (f *fixedSensors) Close() error                    { return nil }

func TestSimulatedReadsInRange(t *testing.T) {
	s := NewSimulated()
	defer s.Close()

	data, err := s.Read()
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if data.Temperature < 15 || data.Temperature > 30 {
		t.Errorf("implausible temperature %f", data.Temperature)
	}
	if data.Humidity < 30 || data.Humidity > 60 {
		t.Errorf("implausible humidity %f", data.Humidity)
	}
	if data.Pressure < 1000 || data.Pressure > 1030 {
		t.Errorf("implausible pressure %f", data.Pressure)
	}
}

func TestSamplerKeepsLatest(t *testing.T) {
	l := logger.NewLogger(log.New(io.Discard, "", 0), logger.LogLevelNone)
	sensors := &fixedSensors{data: types.SensorData{Temperature: 22.5, Humidity: 40}}
	s := NewSampler(l, sensors, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	deadline := time.Now().Add(time.Second)
	for {
		if data, ok := s.Latest(); ok {
			if data.Temperature != 22.5 {
				t.Errorf("wrong reading: %+v", data)
			}
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("sampler never produced a reading")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSamplerIgnoresFailedReads(t *testing.T) {
	l := logger.NewLogger(log.New(io.Discard, "", 0), logger.LogLevelNone)
	sensors := &fixedSensors{err: context.DeadlineExceeded}
	s := NewSampler(l, sensors, 10*time.Millisecond)

	s.sample()
	if _, ok := s.Latest(); ok {
		t.Error("failed read produced a value")
	}

	sensors.err = nil
	sensors.data = types.SensorData{Temperature: 19}
	s.sample()
	data, ok := s.Latest()
	if !ok || data.Temperature != 19 {
		t.Errorf("recovery read not kept: %+v ok=%v", data, ok)
	}
}
