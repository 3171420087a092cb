// Package bluetooth exposes device discovery and connection over BlueZ.
// Pairing itself is left to the OS agent; this package only discovers,
// connects and disconnects.
package bluetooth

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/CharlesBrocato/car-stereo-system/internal/logger"
	"github.com/CharlesBrocato/car-stereo-system/internal/types"
)

const (
	bluezService = "org.bluez"
	adapterIface = "org.bluez.Adapter1"
	deviceIface  = "org.bluez.Device1"
	objMgrIface  = "org.freedesktop.DBus.ObjectManager"

	defaultAdapter = dbus.ObjectPath("/org/bluez/hci0")
	scanDuration   = 8 * time.Second
)

// Manager talks to BlueZ on the system bus.
type Manager struct {
	logger *logger.Logger
	conn   *dbus.Conn
}

func NewManager(l *logger.Logger) *Manager {
	return &Manager{logger: l.WithTag("bluetooth")}
}

// Start connects to the system bus.
func (m *Manager) Start() error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return fmt.Errorf("failed to connect to system bus: %w", err)
	}
	m.conn = conn
	return nil
}

// Scan runs discovery for a fixed window and returns all known devices,
// freshly discovered and previously paired alike.
func (m *Manager) Scan(ctx context.Context) ([]types.BluetoothDevice, error) {
	if m.conn == nil {
		return nil, fmt.Errorf("bluetooth not started")
	}

	adapter := m.conn.Object(bluezService, defaultAdapter)
	if call := adapter.CallWithContext(ctx, adapterIface+".StartDiscovery", 0); call.Err != nil {
		// Discovery may already be running; list what BlueZ has anyway.
		m.logger.Debugf("StartDiscovery: %v", call.Err)
	} else {
		select {
		case <-time.After(scanDuration):
		case <-ctx.Done():
		}
		if call := adapter.Call(adapterIface+".StopDiscovery", 0); call.Err != nil {
			m.logger.Debugf("StopDiscovery: %v", call.Err)
		}
	}

	return m.Devices(ctx)
}

// Devices lists the devices BlueZ currently knows about.
func (m *Manager) Devices(ctx context.Context) ([]types.BluetoothDevice, error) {
	if m.conn == nil {
		return nil, fmt.Errorf("bluetooth not started")
	}

	var objs map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	call := m.conn.Object(bluezService, "/").CallWithContext(
		ctx, objMgrIface+".GetManagedObjects", 0)
	if err := call.Store(&objs); err != nil {
		return nil, fmt.Errorf("bluez query failed: %w", err)
	}

	devices := make([]types.BluetoothDevice, 0, len(objs))
	for _, ifaces := range objs {
		props, ok := ifaces[deviceIface]
		if !ok {
			continue
		}
		var d types.BluetoothDevice
		if s, ok := props["Address"].Value().(string); ok {
			d.Address = s
		}
		if s, ok := props["Name"].Value().(string); ok {
			d.Name = s
		}
		if p, ok := props["Paired"].Value().(bool); ok {
			d.Paired = p
		}
		if d.Address == "" {
			continue
		}
		devices = append(devices, d)
	}
	return devices, nil
}

// Connect connects the device with the given address.
func (m *Manager) Connect(ctx context.Context, address string) error {
	path, err := m.devicePath(ctx, address)
	if err != nil {
		return err
	}
	call := m.conn.Object(bluezService, path).CallWithContext(ctx, deviceIface+".Connect", 0)
	if call.Err != nil {
		return fmt.Errorf("connect %s failed: %w", address, call.Err)
	}
	m.logger.Infof("Connected %s", address)
	return nil
}

// Disconnect disconnects the device with the given address.
func (m *Manager) Disconnect(ctx context.Context, address string) error {
	path, err := m.devicePath(ctx, address)
	if err != nil {
		return err
	}
	call := m.conn.Object(bluezService, path).CallWithContext(ctx, deviceIface+".Disconnect", 0)
	if call.Err != nil {
		return fmt.Errorf("disconnect %s failed: %w", address, call.Err)
	}
	m.logger.Infof("Disconnected %s", address)
	return nil
}

// devicePath maps a device address to its BlueZ object path. BlueZ
// encodes the address into the path with colons as underscores.
func (m *Manager) devicePath(ctx context.Context, address string) (dbus.ObjectPath, error) {
	if m.conn == nil {
		return "", fmt.Errorf("bluetooth not started")
	}
	address = strings.ToUpper(strings.TrimSpace(address))
	if address == "" {
		return "", fmt.Errorf("no device address provided")
	}

	path := dbus.ObjectPath(fmt.Sprintf("%s/dev_%s",
		defaultAdapter, strings.ReplaceAll(address, ":", "_")))

	// Verify the device exists before calling into it.
	var paired dbus.Variant
	call := m.conn.Object(bluezService, path).CallWithContext(
		ctx, "org.freedesktop.DBus.Properties.Get", 0, deviceIface, "Paired")
	if err := call.Store(&paired); err != nil {
		return "", fmt.Errorf("unknown device %s: %w", address, err)
	}
	return path, nil
}
