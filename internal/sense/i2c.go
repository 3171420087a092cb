package sense

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	"github.com/CharlesBrocato/car-stereo-system/internal/types"
)

const (
	aht20Addr = 0x38

	cmdInitialize = 0xBE
	cmdTrigger    = 0xAC
	statusBusy    = 0x80
	statusCalib   = 0x08

	lps25hAddr     = 0x5C
	lps25hWhoAmI   = 0x0F
	lps25hIdentity = 0xBD
	lps25hCtrlReg1 = 0x20
	lps25hPressXL  = 0x28
	// Register auto-increment for multi-byte reads.
	lps25hAutoInc = 0x80
)

// Board reads the cabin sensor stack over one I2C bus: an AHT20 for
// temperature/humidity and an optional LPS25H barometer. A missing
// barometer leaves Pressure at zero.
type Board struct {
	bus  i2c.BusCloser
	aht  *i2c.Dev
	baro *i2c.Dev
}

func NewBoard(busName string) (*Board, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("host init: %w", err)
	}

	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", busName, err)
	}

	b := &Board{
		bus: bus,
		aht: &i2c.Dev{Bus: bus, Addr: aht20Addr},
	}
	if err := b.initAHT20(); err != nil {
		bus.Close()
		return nil, err
	}
	b.initBarometer()
	return b, nil
}

func (b *Board) initAHT20() error {
	var status [1]byte
	if err := b.aht.Tx(nil, status[:]); err != nil {
		return fmt.Errorf("sensor status read: %w", err)
	}
	if status[0]&statusCalib != 0 {
		return nil
	}
	if err := b.aht.Tx([]byte{cmdInitialize, 0x08, 0x00}, nil); err != nil {
		return fmt.Errorf("sensor initialize: %w", err)
	}
	time.Sleep(10 * time.Millisecond)
	return nil
}

// initBarometer probes the LPS25H. Absence is not an error: boards
// without it just report no pressure.
func (b *Board) initBarometer() {
	dev := &i2c.Dev{Bus: b.bus, Addr: lps25hAddr}

	var id [1]byte
	if err := dev.Tx([]byte{lps25hWhoAmI}, id[:]); err != nil || id[0] != lps25hIdentity {
		return
	}
	// Power on, 1 Hz output rate.
	if err := dev.Tx([]byte{lps25hCtrlReg1, 0x90}, nil); err != nil {
		return
	}
	b.baro = dev
}

func (b *Board) Read() (types.SensorData, error) {
	if err := b.aht.Tx([]byte{cmdTrigger, 0x33, 0x00}, nil); err != nil {
		return types.SensorData{}, fmt.Errorf("trigger measurement: %w", err)
	}
	time.Sleep(80 * time.Millisecond)

	var buf [7]byte
	if err := b.aht.Tx(nil, buf[:]); err != nil {
		return types.SensorData{}, fmt.Errorf("read measurement: %w", err)
	}
	if buf[0]&statusBusy != 0 {
		return types.SensorData{}, fmt.Errorf("sensor busy")
	}

	rawHum := uint32(buf[1])<<12 | uint32(buf[2])<<4 | uint32(buf[3])>>4
	rawTemp := uint32(buf[3]&0x0F)<<16 | uint32(buf[4])<<8 | uint32(buf[5])

	data := types.SensorData{
		Humidity:    float64(rawHum) / (1 << 20) * 100,
		Temperature: float64(rawTemp)/(1<<20)*200 - 50,
	}
	data.Pressure = b.readPressure()
	return data, nil
}

// readPressure returns hPa, or zero without a working barometer.
func (b *Board) readPressure() float64 {
	if b.baro == nil {
		return 0
	}
	var raw [3]byte
	if err := b.baro.Tx([]byte{lps25hPressXL | lps25hAutoInc}, raw[:]); err != nil {
		return 0
	}
	counts := int32(raw[0]) | int32(raw[1])<<8 | int32(raw[2])<<16
	return float64(counts) / 4096
}

func (b *Board) Close() error {
	if b.bus != nil {
		return b.bus.Close()
	}
	return nil
}
