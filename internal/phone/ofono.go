package phone

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/CharlesBrocato/car-stereo-system/internal/logger"
	"github.com/CharlesBrocato/car-stereo-system/internal/types"
)

const (
	bluezService   = "org.bluez"
	ofonoService   = "org.ofono"
	deviceIface    = "org.bluez.Device1"
	voiceCallIface = "org.ofono.VoiceCall"
	vcmIface       = "org.ofono.VoiceCallManager"
	propsIface     = "org.freedesktop.DBus.Properties"
	objMgrIface    = "org.freedesktop.DBus.ObjectManager"
)

// oFono reports call states in its own vocabulary; mapCallState folds
// them onto the wire vocabulary before normalization.
func mapCallState(s string) types.CallState {
	switch s {
	case "incoming":
		return types.CallIncoming
	case "waiting":
		return types.CallWaiting
	case "dialing":
		return types.CallDialing
	case "alerting":
		return types.CallAlerting
	case "active":
		return types.CallActive
	case "held":
		return types.CallHeld
	case "disconnected", "":
		return types.CallIdle
	default:
		return types.CallState(s)
	}
}

// OfonoLink implements Link on the system bus, listening to BlueZ device
// connection changes and oFono voice call signals.
type OfonoLink struct {
	logger *logger.Logger
	seq    *Sequence

	conn      *dbus.Conn
	signals   chan *dbus.Signal
	snapshots chan types.CallSnapshot

	mu            sync.RWMutex
	connected     bool
	deviceName    string
	deviceAddress string
	callPath      dbus.ObjectPath
	callState     types.CallState
	callerName    string
	callerID      string

	stop chan struct{}
	wg   sync.WaitGroup
}

func NewOfonoLink(l *logger.Logger, seq *Sequence) *OfonoLink {
	return &OfonoLink{
		logger:    l.WithTag("phone"),
		seq:       seq,
		snapshots: make(chan types.CallSnapshot, 16),
		stop:      make(chan struct{}),
	}
}

// Start connects to the system bus and registers signal matches. The
// event channel relies on D-Bus's own delivery; a bus blip is never
// treated as a phone disconnect.
func (o *OfonoLink) Start() error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return fmt.Errorf("failed to connect to system bus: %w", err)
	}
	o.conn = conn

	matches := [][]dbus.MatchOption{
		{
			dbus.WithMatchInterface(propsIface),
			dbus.WithMatchMember("PropertiesChanged"),
		},
		{
			dbus.WithMatchInterface(vcmIface),
			dbus.WithMatchMember("CallAdded"),
		},
		{
			dbus.WithMatchInterface(vcmIface),
			dbus.WithMatchMember("CallRemoved"),
		},
	}
	for _, m := range matches {
		if err := conn.AddMatchSignal(m...); err != nil {
			return fmt.Errorf("failed to add signal match: %w", err)
		}
	}

	o.signals = make(chan *dbus.Signal, 32)
	conn.Signal(o.signals)

	o.wg.Add(1)
	go o.signalLoop()

	o.logger.Infof("D-Bus listeners registered")
	return nil
}

// Stop tears down the signal subscription. Safe to call once.
func (o *OfonoLink) Stop() {
	close(o.stop)
	if o.conn != nil {
		o.conn.RemoveSignal(o.signals)
	}
	o.wg.Wait()
	o.logger.Infof("Phone link stopped")
}

func (o *OfonoLink) Snapshots() <-chan types.CallSnapshot {
	return o.snapshots
}

func (o *OfonoLink) signalLoop() {
	defer o.wg.Done()

	for {
		select {
		case <-o.stop:
			return
		case sig, ok := <-o.signals:
			if !ok {
				o.logger.Warnf("Signal channel closed")
				return
			}
			o.handleSignal(sig)
		}
	}
}

// handleSignal dispatches one D-Bus signal. Malformed bodies are logged
// and discarded; a panic here must never take the service down.
func (o *OfonoLink) handleSignal(sig *dbus.Signal) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Errorf("Panic handling signal %s: %v", sig.Name, r)
		}
	}()

	switch sig.Name {
	case propsIface + ".PropertiesChanged":
		o.handlePropertiesChanged(sig)
	case vcmIface + ".CallAdded":
		o.handleCallAdded(sig)
	case vcmIface + ".CallRemoved":
		o.handleCallRemoved(sig)
	}
}

func (o *OfonoLink) handlePropertiesChanged(sig *dbus.Signal) {
	if len(sig.Body) < 2 {
		o.logger.Warnf("Malformed PropertiesChanged signal, discarding")
		return
	}
	iface, ok := sig.Body[0].(string)
	if !ok {
		o.logger.Warnf("Malformed PropertiesChanged interface, discarding")
		return
	}
	changed, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		o.logger.Warnf("Malformed PropertiesChanged body, discarding")
		return
	}

	switch iface {
	case voiceCallIface:
		o.mu.Lock()
		if v, ok := changed["State"]; ok {
			if s, ok := v.Value().(string); ok {
				o.callState = mapCallState(s)
				o.callPath = sig.Path
			}
		}
		if v, ok := changed["LineIdentification"]; ok {
			if s, ok := v.Value().(string); ok {
				o.callerID = s
			}
		}
		if v, ok := changed["Name"]; ok {
			if s, ok := v.Value().(string); ok {
				o.callerName = s
			}
		}
		o.mu.Unlock()
		o.emit()

	case deviceIface:
		v, ok := changed["Connected"]
		if !ok {
			return
		}
		connected, ok := v.Value().(bool)
		if !ok {
			return
		}
		if connected {
			o.onDeviceConnected(sig.Path)
		} else {
			o.onDeviceDisconnected()
		}
	}
}

func (o *OfonoLink) handleCallAdded(sig *dbus.Signal) {
	if len(sig.Body) < 2 {
		o.logger.Warnf("Malformed CallAdded signal, discarding")
		return
	}
	path, ok := sig.Body[0].(dbus.ObjectPath)
	if !ok {
		o.logger.Warnf("Malformed CallAdded path, discarding")
		return
	}
	props, ok := sig.Body[1].(map[string]dbus.Variant)
	if !ok {
		o.logger.Warnf("Malformed CallAdded properties, discarding")
		return
	}

	o.mu.Lock()
	o.callPath = path
	if v, ok := props["State"]; ok {
		if s, ok := v.Value().(string); ok {
			o.callState = mapCallState(s)
		}
	}
	if v, ok := props["LineIdentification"]; ok {
		if s, ok := v.Value().(string); ok {
			o.callerID = s
		}
	}
	if v, ok := props["Name"]; ok {
		if s, ok := v.Value().(string); ok {
			o.callerName = s
		}
	}
	state := o.callState
	caller := o.callerID
	o.mu.Unlock()

	o.logger.Infof("Call event: %s from %s", state, caller)
	o.emit()
}

func (o *OfonoLink) handleCallRemoved(sig *dbus.Signal) {
	o.mu.Lock()
	o.callPath = ""
	o.callState = types.CallIdle
	o.callerID = ""
	o.callerName = ""
	o.mu.Unlock()

	o.logger.Infof("Call ended")
	o.emit()
}

func (o *OfonoLink) onDeviceConnected(path dbus.ObjectPath) {
	device := o.conn.Object(bluezService, path)

	var addr, name dbus.Variant
	if err := device.Call(propsIface+".Get", 0, deviceIface, "Address").Store(&addr); err != nil {
		o.logger.Errorf("Failed to read device address: %v", err)
		return
	}
	// Name is optional on some devices; ignore the error.
	_ = device.Call(propsIface+".Get", 0, deviceIface, "Name").Store(&name)

	o.mu.Lock()
	o.connected = true
	if s, ok := addr.Value().(string); ok {
		o.deviceAddress = s
	}
	if s, ok := name.Value().(string); ok {
		o.deviceName = s
	}
	deviceName := o.deviceName
	o.mu.Unlock()

	o.logger.Infof("Phone connected: %s", deviceName)
	o.emit()
}

func (o *OfonoLink) onDeviceDisconnected() {
	o.mu.Lock()
	o.connected = false
	o.deviceName = ""
	o.deviceAddress = ""
	o.callPath = ""
	o.callState = types.CallIdle
	o.callerID = ""
	o.callerName = ""
	o.mu.Unlock()

	o.logger.Infof("Phone disconnected")
	o.emit()
}

// emit stamps the current view with a receipt sequence and pushes it on
// the snapshot channel. A full channel drops the snapshot: the poll
// fallback guarantees progress.
func (o *OfonoLink) emit() {
	snap := o.snapshot()
	snap.Seq = o.seq.Next()
	select {
	case o.snapshots <- snap:
	default:
		o.logger.Warnf("Snapshot channel full, dropping seq %d", snap.Seq)
	}
}

func (o *OfonoLink) snapshot() types.CallSnapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return types.CallSnapshot{
		Connected:     o.connected,
		DeviceName:    o.deviceName,
		DeviceAddress: o.deviceAddress,
		CallState:     o.callState,
		CallerName:    o.callerName,
		CallerID:      o.callerID,
	}
}

// Poll rebuilds the status from BlueZ and oFono object trees. It runs on
// its own alongside the event channel; a hard failure here means "assume
// disconnected" for the connection indicator only.
func (o *OfonoLink) Poll(ctx context.Context) (types.CallSnapshot, error) {
	if o.conn == nil {
		return types.CallSnapshot{}, fmt.Errorf("phone link not started")
	}

	var objs map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	call := o.conn.Object(bluezService, "/").CallWithContext(
		ctx, objMgrIface+".GetManagedObjects", 0)
	if err := call.Store(&objs); err != nil {
		return types.CallSnapshot{}, fmt.Errorf("bluez poll failed: %w", err)
	}

	connected := false
	var devName, devAddr string
	for _, ifaces := range objs {
		props, ok := ifaces[deviceIface]
		if !ok {
			continue
		}
		if c, ok := props["Connected"].Value().(bool); !ok || !c {
			continue
		}
		connected = true
		if s, ok := props["Address"].Value().(string); ok {
			devAddr = s
		}
		if s, ok := props["Name"].Value().(string); ok {
			devName = s
		}
		break
	}

	o.mu.Lock()
	o.connected = connected
	o.deviceAddress = devAddr
	o.deviceName = devName
	if !connected {
		o.callPath = ""
		o.callState = types.CallIdle
		o.callerID = ""
		o.callerName = ""
	}
	o.mu.Unlock()

	// Call state comes from oFono; a missing oFono is not a poll failure,
	// the phone may simply expose no modem yet.
	if connected {
		o.pollCalls(ctx)
	}

	snap := o.snapshot()
	snap.Seq = o.seq.Next()
	return snap, nil
}

func (o *OfonoLink) pollCalls(ctx context.Context) {
	modem, err := o.firstModem(ctx)
	if err != nil {
		o.logger.Debugf("No oFono modem: %v", err)
		return
	}

	var calls []struct {
		Path  dbus.ObjectPath
		Props map[string]dbus.Variant
	}
	call := o.conn.Object(ofonoService, modem).CallWithContext(
		ctx, vcmIface+".GetCalls", 0)
	if err := call.Store(&calls); err != nil {
		o.logger.Debugf("GetCalls failed: %v", err)
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if len(calls) == 0 {
		o.callPath = ""
		o.callState = types.CallIdle
		o.callerID = ""
		o.callerName = ""
		return
	}
	c := calls[0]
	o.callPath = c.Path
	if v, ok := c.Props["State"]; ok {
		if s, ok := v.Value().(string); ok {
			o.callState = mapCallState(s)
		}
	}
	if v, ok := c.Props["LineIdentification"]; ok {
		if s, ok := v.Value().(string); ok {
			o.callerID = s
		}
	}
	if v, ok := c.Props["Name"]; ok {
		if s, ok := v.Value().(string); ok {
			o.callerName = s
		}
	}
}

func (o *OfonoLink) firstModem(ctx context.Context) (dbus.ObjectPath, error) {
	if o.conn == nil {
		return "", fmt.Errorf("phone link not started")
	}
	var modems []struct {
		Path  dbus.ObjectPath
		Props map[string]dbus.Variant
	}
	call := o.conn.Object(ofonoService, "/").CallWithContext(
		ctx, "org.ofono.Manager.GetModems", 0)
	if err := call.Store(&modems); err != nil {
		return "", err
	}
	if len(modems) == 0 {
		return "", fmt.Errorf("no modems")
	}
	return modems[0].Path, nil
}

// Answer accepts the current incoming call.
func (o *OfonoLink) Answer() error {
	path := o.currentCallPath()
	if path == "" {
		return fmt.Errorf("no call to answer")
	}
	call := o.conn.Object(ofonoService, path).Call(voiceCallIface+".Answer", 0)
	if call.Err != nil {
		return fmt.Errorf("answer failed: %w", call.Err)
	}
	return nil
}

// Hangup ends the current call; with no tracked call path it falls back
// to HangupAll on the voice call manager.
func (o *OfonoLink) Hangup() error {
	if path := o.currentCallPath(); path != "" {
		call := o.conn.Object(ofonoService, path).Call(voiceCallIface+".Hangup", 0)
		if call.Err != nil {
			return fmt.Errorf("hangup failed: %w", call.Err)
		}
		return nil
	}

	modem, err := o.firstModem(context.Background())
	if err != nil {
		return fmt.Errorf("no phone service available: %w", err)
	}
	call := o.conn.Object(ofonoService, modem).Call(vcmIface+".HangupAll", 0)
	if call.Err != nil {
		return fmt.Errorf("hangup failed: %w", call.Err)
	}
	return nil
}

// Dial places an outgoing call. The number is cleaned to digits plus
// + * # before dialing.
func (o *OfonoLink) Dial(number string) error {
	cleaned := CleanNumber(number)
	if cleaned == "" {
		return fmt.Errorf("no number provided")
	}

	modem, err := o.firstModem(context.Background())
	if err != nil {
		return fmt.Errorf("no phone service available: %w", err)
	}
	call := o.conn.Object(ofonoService, modem).Call(vcmIface+".Dial", 0, cleaned, "")
	if call.Err != nil {
		return fmt.Errorf("dial failed: %w", call.Err)
	}
	return nil
}

// SendTone sends one DTMF digit into the active call.
func (o *OfonoLink) SendTone(digit string) error {
	modem, err := o.firstModem(context.Background())
	if err != nil {
		return fmt.Errorf("no phone service available: %w", err)
	}
	call := o.conn.Object(ofonoService, modem).Call(vcmIface+".SendTones", 0, digit)
	if call.Err != nil {
		return fmt.Errorf("send tone failed: %w", call.Err)
	}
	return nil
}

func (o *OfonoLink) currentCallPath() dbus.ObjectPath {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.callPath
}

// CleanNumber strips everything except digits, +, * and #.
func CleanNumber(number string) string {
	var b strings.Builder
	for _, r := range number {
		if (r >= '0' && r <= '9') || r == '+' || r == '*' || r == '#' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
