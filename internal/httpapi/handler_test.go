package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CharlesBrocato/car-stereo-system/internal/carplay"
	"github.com/CharlesBrocato/car-stereo-system/internal/config"
	"github.com/CharlesBrocato/car-stereo-system/internal/logger"
	"github.com/CharlesBrocato/car-stereo-system/internal/maps"
	"github.com/CharlesBrocato/car-stereo-system/internal/music"
	"github.com/CharlesBrocato/car-stereo-system/internal/types"
)

type mockPhone struct {
	display types.DisplayState
	dialed  string
	digits  []string
	hungUp  bool
}

func (m *mockPhone) Display() types.DisplayState { return m.display }
func (m *mockPhone) Answer() types.CommandResult { return types.CommandResult{Success: true} }
func (m *mockPhone) Hangup() types.CommandResult {
	m.hungUp = true
	return types.CommandResult{Success: true}
}
func (m *mockPhone) Dial(number string) types.CommandResult {
	m.dialed = number
	return types.CommandResult{Success: true}
}
func (m *mockPhone) SendDigit(digit string) types.CommandResult {
	m.digits = append(m.digits, digit)
	return types.CommandResult{Success: true, Message: digit}
}

type mockHistory struct {
	calls []types.CallRecord
	err   error
	limit int
}

func (m *mockHistory) Recent(limit int) ([]types.CallRecord, error) {
	m.limit = limit
	return m.calls, m.err
}

type mockCarPlay struct {
	status  carplay.Status
	started bool
	stopped bool
	keys    []string
	keyErr  error
}

func (m *mockCarPlay) Status() carplay.Status { return m.status }
func (m *mockCarPlay) Start(fullscreen bool) error {
	m.started = true
	return nil
}
func (m *mockCarPlay) Stop() error { m.stopped = true; return nil }
func (m *mockCarPlay) Restart(fullscreen bool) error {
	m.stopped = true
	m.started = true
	return nil
}
func (m *mockCarPlay) SendKey(key string) error {
	m.keys = append(m.keys, key)
	return m.keyErr
}

type mockMusic struct {
	status  music.Status
	playing bool
	volume  int
}

func (m *mockMusic) Status() music.Status { return m.status }
func (m *mockMusic) Play() error          { m.playing = true; return nil }
func (m *mockMusic) Pause() error         { m.playing = false; return nil }
func (m *mockMusic) Stop() error          { m.playing = false; return nil }
func (m *mockMusic) Next() error          { return nil }
func (m *mockMusic) Previous() error      { return nil }
func (m *mockMusic) SetVolume(volume int) error {
	m.volume = volume
	return nil
}

type mockBluetooth struct {
	devices      []types.BluetoothDevice
	connected    string
	disconnected string
}

func (m *mockBluetooth) Scan(ctx context.Context) ([]types.BluetoothDevice, error) {
	return m.devices, nil
}
func (m *mockBluetooth) Connect(ctx context.Context, address string) error {
	m.connected = address
	return nil
}
func (m *mockBluetooth) Disconnect(ctx context.Context, address string) error {
	m.disconnected = address
	return nil
}

type mockRoutes struct {
	route *maps.Route
	err   error
}

func (m *mockRoutes) Route(ctx context.Context, origin, destination maps.Coordinate) (*maps.Route, error) {
	if m.err != nil {
		return nil, m.err
	}
	r := *m.route
	r.Origin = origin
	r.Destination = destination
	return &r, nil
}

type mockSensors struct {
	data types.SensorData
	ok   bool
}

func (m *mockSensors) Latest() (types.SensorData, bool) { return m.data, m.ok }

type fixture struct {
	server    *Server
	phone     *mockPhone
	history   *mockHistory
	carplay   *mockCarPlay
	music     *mockMusic
	bluetooth *mockBluetooth
	routes    *mockRoutes
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	l := logger.NewLogger(log.New(io.Discard, "", 0), logger.LogLevelNone)
	f := &fixture{
		phone:     &mockPhone{display: types.DisplayState{Connected: true, State: types.StateIdle}},
		history:   &mockHistory{},
		carplay:   &mockCarPlay{status: carplay.Status{Built: true}},
		music:     &mockMusic{status: music.Status{Available: true, State: "stop"}},
		bluetooth: &mockBluetooth{},
		routes:    &mockRoutes{route: &maps.Route{DistanceM: 1200, DurationSec: 180}},
	}
	f.server = NewServer(l, config.HTTPConfig{Listen: ":0"},
		f.phone, f.history, 20, f.carplay, f.music, f.bluetooth, f.routes,
		&mockSensors{data: types.SensorData{Temperature: 21}, ok: true})
	return f
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	}
	return rec, decoded
}

func TestStatusAggregates(t *testing.T) {
	f := newFixture(t)
	rec, resp := doJSON(t, f.server.Router(), http.MethodGet, "/api/status", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, resp["ok"])
	assert.Contains(t, resp, "music")
	assert.Contains(t, resp, "carplay")
	assert.Contains(t, resp, "sensors")
	assert.Contains(t, resp, "phone")
}

func TestMusicCommands(t *testing.T) {
	f := newFixture(t)
	router := f.server.Router()

	rec, resp := doJSON(t, router, http.MethodPost, "/api/music/play", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, resp["success"])
	assert.True(t, f.music.playing)

	doJSON(t, router, http.MethodPost, "/api/music/pause", "")
	assert.False(t, f.music.playing)

	rec, resp = doJSON(t, router, http.MethodPost, "/api/music/volume", `{"volume": 65}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, 65, f.music.volume)
}

func TestMusicVolumeRejectsBadBody(t *testing.T) {
	f := newFixture(t)
	rec, resp := doJSON(t, f.server.Router(), http.MethodPost, "/api/music/volume", "not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, resp["success"])
}

func TestBluetoothScanAndConnect(t *testing.T) {
	f := newFixture(t)
	f.bluetooth.devices = []types.BluetoothDevice{
		{Address: "AA:BB:CC:DD:EE:FF", Name: "Pixel", Paired: true},
	}
	router := f.server.Router()

	rec, resp := doJSON(t, router, http.MethodPost, "/api/bluetooth/scan", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, resp["success"])
	devices, ok := resp["devices"].([]interface{})
	require.True(t, ok)
	require.Len(t, devices, 1)

	rec, resp = doJSON(t, router, http.MethodPost, "/api/bluetooth/connect",
		`{"address": "AA:BB:CC:DD:EE:FF"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", f.bluetooth.connected)

	rec, _ = doJSON(t, router, http.MethodPost, "/api/bluetooth/connect", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMapRoute(t *testing.T) {
	f := newFixture(t)
	rec, resp := doJSON(t, f.server.Router(), http.MethodPost, "/api/map/route",
		`{"origin": "52.52,13.405", "destination": "52.50,13.39"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, resp["success"])
	route, ok := resp["route"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, 1200.0, route["distance_m"])
}

func TestMapRouteRejectsBadCoordinates(t *testing.T) {
	f := newFixture(t)
	rec, resp := doJSON(t, f.server.Router(), http.MethodPost, "/api/map/route",
		`{"origin": "not-a-coordinate", "destination": "52.50,13.39"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, resp["success"])
}

func TestCarPlayEndpoints(t *testing.T) {
	f := newFixture(t)
	router := f.server.Router()

	rec, resp := doJSON(t, router, http.MethodGet, "/api/carplay/status", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, resp["built"])

	doJSON(t, router, http.MethodPost, "/api/carplay/start", "")
	assert.True(t, f.carplay.started)

	doJSON(t, router, http.MethodPost, "/api/carplay/stop", "")
	assert.True(t, f.carplay.stopped)

	rec, resp = doJSON(t, router, http.MethodPost, "/api/carplay/key", `{"key": "select"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, []string{"select"}, f.carplay.keys)

	rec, _ = doJSON(t, router, http.MethodPost, "/api/carplay/key", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPhoneStatus(t *testing.T) {
	f := newFixture(t)
	f.phone.display = types.DisplayState{
		Connected:  true,
		State:      types.StateActive,
		CallerName: "Alice",
	}

	rec, resp := doJSON(t, f.server.Router(), http.MethodGet, "/api/phone/status", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "active", resp["call_state"])
	assert.Equal(t, "Alice", resp["caller_name"])
}

func TestPhoneCommands(t *testing.T) {
	f := newFixture(t)
	router := f.server.Router()

	rec, resp := doJSON(t, router, http.MethodPost, "/api/phone/dial", `{"number": "5551234"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, "5551234", f.phone.dialed)

	doJSON(t, router, http.MethodPost, "/api/phone/hangup", "")
	assert.True(t, f.phone.hungUp)

	rec, resp = doJSON(t, router, http.MethodPost, "/api/phone/dtmf", `{"digit": "5"}`)
	assert.Equal(t, true, resp["success"])
	assert.Equal(t, []string{"5"}, f.phone.digits)

	rec, _ = doJSON(t, router, http.MethodPost, "/api/phone/dtmf", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPhoneRecent(t *testing.T) {
	f := newFixture(t)
	f.history.calls = []types.CallRecord{
		{Type: types.RecordMissed, Name: "Bob", Number: "555", Time: "Aug 25 10:00"},
	}

	rec, resp := doJSON(t, f.server.Router(), http.MethodGet, "/api/phone/recent", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, resp["ok"])
	calls, ok := resp["calls"].([]interface{})
	require.True(t, ok)
	require.Len(t, calls, 1)
	assert.Equal(t, 20, f.history.limit)
}

func TestPhoneRecentStoreError(t *testing.T) {
	f := newFixture(t)
	f.history.err = io.ErrUnexpectedEOF

	rec, resp := doJSON(t, f.server.Router(), http.MethodGet, "/api/phone/recent", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, resp["ok"])
	assert.NotNil(t, resp["calls"])
}

func TestPhoneEventsStreamsUpdates(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.server.Router())
	defer srv.Close()

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/phone/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	first := readEvent(t, reader)
	assert.Equal(t, "idle", first["call_state"])

	// The broker needs the subscriber registered before publishing.
	deadline := time.Now().Add(time.Second)
	for f.server.broker.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	f.server.PublishPhoneState(types.DisplayState{
		Connected: true,
		State:     types.StateIncoming,
		Ringing:   true,
	})
	second := readEvent(t, reader)
	assert.Equal(t, "incoming", second["call_state"])
	assert.Equal(t, true, second["ringing"])
}

func readEvent(t *testing.T, reader *bufio.Reader) map[string]interface{} {
	t.Helper()
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		if strings.HasPrefix(line, "data: ") {
			var decoded map[string]interface{}
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &decoded))
			return decoded
		}
	}
}

func TestNilCollaboratorsReportUnavailable(t *testing.T) {
	l := logger.NewLogger(log.New(io.Discard, "", 0), logger.LogLevelNone)
	s := NewServer(l, config.HTTPConfig{}, nil, nil, 20, nil, nil, nil, nil, nil)
	router := s.Router()

	for _, path := range []string{
		"/api/music/play", "/api/bluetooth/scan", "/api/map/route",
		"/api/carplay/start", "/api/phone/answer",
	} {
		rec, _ := doJSON(t, router, http.MethodPost, path, `{"origin":"1,1","destination":"2,2"}`)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}
