// Package httpapi is the browser-facing HTTP surface: JSON command
// endpoints plus an SSE stream carrying phone display updates.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/CharlesBrocato/car-stereo-system/internal/carplay"
	"github.com/CharlesBrocato/car-stereo-system/internal/config"
	"github.com/CharlesBrocato/car-stereo-system/internal/logger"
	"github.com/CharlesBrocato/car-stereo-system/internal/maps"
	"github.com/CharlesBrocato/car-stereo-system/internal/music"
	"github.com/CharlesBrocato/car-stereo-system/internal/types"
)

// PhoneService is the phone screen surface: current display state plus
// the user commands.
type PhoneService interface {
	Display() types.DisplayState
	Answer() types.CommandResult
	Hangup() types.CommandResult
	Dial(number string) types.CommandResult
	SendDigit(digit string) types.CommandResult
}

// CallHistory lists recent calls.
type CallHistory interface {
	Recent(limit int) ([]types.CallRecord, error)
}

// CarPlayService controls the receiver engine.
type CarPlayService interface {
	Status() carplay.Status
	Start(fullscreen bool) error
	Stop() error
	Restart(fullscreen bool) error
	SendKey(key string) error
}

// MusicService controls MPD playback.
type MusicService interface {
	Status() music.Status
	Play() error
	Pause() error
	Stop() error
	Next() error
	Previous() error
	SetVolume(volume int) error
}

// BluetoothService exposes device discovery and connection.
type BluetoothService interface {
	Scan(ctx context.Context) ([]types.BluetoothDevice, error)
	Connect(ctx context.Context, address string) error
	Disconnect(ctx context.Context, address string) error
}

// RouteService resolves driving routes.
type RouteService interface {
	Route(ctx context.Context, origin, destination maps.Coordinate) (*maps.Route, error)
}

// SensorSource provides the latest cabin reading, if any.
type SensorSource interface {
	Latest() (types.SensorData, bool)
}

// Server holds the route handlers and their collaborators. Any
// collaborator may be nil; its endpoints then report unavailable.
type Server struct {
	logger *logger.Logger
	cfg    config.HTTPConfig

	phone     PhoneService
	history   CallHistory
	historyN  int
	carplay   CarPlayService
	music     MusicService
	bluetooth BluetoothService
	routes    RouteService
	sensors   SensorSource

	broker *Broker
}

func NewServer(l *logger.Logger, cfg config.HTTPConfig, phone PhoneService, history CallHistory, recentLimit int,
	cp CarPlayService, mu MusicService, bt BluetoothService, rt RouteService, sn SensorSource) *Server {
	return &Server{
		logger:    l.WithTag("http"),
		cfg:       cfg,
		phone:     phone,
		history:   history,
		historyN:  recentLimit,
		carplay:   cp,
		music:     mu,
		bluetooth: bt,
		routes:    rt,
		sensors:   sn,
		broker:    NewBroker(l),
	}
}

// PublishPhoneState forwards a display update to the SSE stream.
// Intended as a reconciler listener.
func (s *Server) PublishPhoneState(d types.DisplayState) {
	s.broker.Publish(d)
}

// Router builds the full route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	api.HandleFunc("/music/play", s.musicCommand(func() error { return s.music.Play() })).Methods(http.MethodPost)
	api.HandleFunc("/music/pause", s.musicCommand(func() error { return s.music.Pause() })).Methods(http.MethodPost)
	api.HandleFunc("/music/stop", s.musicCommand(func() error { return s.music.Stop() })).Methods(http.MethodPost)
	api.HandleFunc("/music/next", s.musicCommand(func() error { return s.music.Next() })).Methods(http.MethodPost)
	api.HandleFunc("/music/previous", s.musicCommand(func() error { return s.music.Previous() })).Methods(http.MethodPost)
	api.HandleFunc("/music/volume", s.handleMusicVolume).Methods(http.MethodPost)

	api.HandleFunc("/bluetooth/scan", s.handleBluetoothScan).Methods(http.MethodPost)
	api.HandleFunc("/bluetooth/connect", s.handleBluetoothConnect).Methods(http.MethodPost)
	api.HandleFunc("/bluetooth/disconnect", s.handleBluetoothDisconnect).Methods(http.MethodPost)

	api.HandleFunc("/map/route", s.handleMapRoute).Methods(http.MethodPost)

	api.HandleFunc("/carplay/status", s.handleCarPlayStatus).Methods(http.MethodGet)
	api.HandleFunc("/carplay/start", s.handleCarPlayStart).Methods(http.MethodPost)
	api.HandleFunc("/carplay/stop", s.handleCarPlayStop).Methods(http.MethodPost)
	api.HandleFunc("/carplay/restart", s.handleCarPlayRestart).Methods(http.MethodPost)
	api.HandleFunc("/carplay/key", s.handleCarPlayKey).Methods(http.MethodPost)

	api.HandleFunc("/phone/status", s.handlePhoneStatus).Methods(http.MethodGet)
	api.HandleFunc("/phone/events", s.handlePhoneEvents).Methods(http.MethodGet)
	api.HandleFunc("/phone/recent", s.handlePhoneRecent).Methods(http.MethodGet)
	api.HandleFunc("/phone/answer", s.phoneCommand(func() types.CommandResult { return s.phone.Answer() })).Methods(http.MethodPost)
	api.HandleFunc("/phone/hangup", s.phoneCommand(func() types.CommandResult { return s.phone.Hangup() })).Methods(http.MethodPost)
	api.HandleFunc("/phone/dial", s.handlePhoneDial).Methods(http.MethodPost)
	api.HandleFunc("/phone/dtmf", s.handlePhoneDTMF).Methods(http.MethodPost)

	if s.cfg.StaticDir != "" {
		r.PathPrefix("/").Handler(http.FileServer(http.Dir(s.cfg.StaticDir)))
	}
	return r
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{"ok": true}
	if s.music != nil {
		resp["music"] = s.music.Status()
	}
	if s.carplay != nil {
		resp["carplay"] = s.carplay.Status()
	}
	if s.sensors != nil {
		if data, ok := s.sensors.Latest(); ok {
			resp["sensors"] = data
		}
	}
	if s.phone != nil {
		resp["phone"] = s.phone.Display()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) musicCommand(fn func() error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.music == nil {
			writeJSON(w, http.StatusServiceUnavailable, types.CommandResult{Success: false, Message: "music unavailable"})
			return
		}
		if err := fn(); err != nil {
			s.logger.Warnf("Music command failed: %v", err)
			writeJSON(w, http.StatusOK, types.CommandResult{Success: false, Message: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, types.CommandResult{Success: true})
	}
}

func (s *Server) handleMusicVolume(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Volume int `json:"volume"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, types.CommandResult{Success: false, Message: "invalid request body"})
		return
	}
	s.musicCommand(func() error { return s.music.SetVolume(req.Volume) })(w, r)
}

func (s *Server) handleBluetoothScan(w http.ResponseWriter, r *http.Request) {
	if s.bluetooth == nil {
		writeJSON(w, http.StatusServiceUnavailable, types.CommandResult{Success: false, Message: "bluetooth unavailable"})
		return
	}
	devices, err := s.bluetooth.Scan(r.Context())
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": false, "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "devices": devices})
}

func (s *Server) handleBluetoothConnect(w http.ResponseWriter, r *http.Request) {
	s.bluetoothAddressCommand(w, r, func(ctx context.Context, addr string) error {
		return s.bluetooth.Connect(ctx, addr)
	})
}

func (s *Server) handleBluetoothDisconnect(w http.ResponseWriter, r *http.Request) {
	s.bluetoothAddressCommand(w, r, func(ctx context.Context, addr string) error {
		return s.bluetooth.Disconnect(ctx, addr)
	})
}

func (s *Server) bluetoothAddressCommand(w http.ResponseWriter, r *http.Request, fn func(context.Context, string) error) {
	if s.bluetooth == nil {
		writeJSON(w, http.StatusServiceUnavailable, types.CommandResult{Success: false, Message: "bluetooth unavailable"})
		return
	}
	var req struct {
		Address string `json:"address"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Address == "" {
		writeJSON(w, http.StatusBadRequest, types.CommandResult{Success: false, Message: "address required"})
		return
	}
	if err := fn(r.Context(), req.Address); err != nil {
		writeJSON(w, http.StatusOK, types.CommandResult{Success: false, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, types.CommandResult{Success: true})
}

func (s *Server) handleMapRoute(w http.ResponseWriter, r *http.Request) {
	if s.routes == nil {
		writeJSON(w, http.StatusServiceUnavailable, types.CommandResult{Success: false, Message: "routing unavailable"})
		return
	}
	var req struct {
		Origin      string `json:"origin"`
		Destination string `json:"destination"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, types.CommandResult{Success: false, Message: "invalid request body"})
		return
	}
	origin, err := maps.ParseCoordinate(req.Origin)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, types.CommandResult{Success: false, Message: err.Error()})
		return
	}
	destination, err := maps.ParseCoordinate(req.Destination)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, types.CommandResult{Success: false, Message: err.Error()})
		return
	}

	route, err := s.routes.Route(r.Context(), origin, destination)
	if err != nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"success": false, "message": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "route": route})
}

func (s *Server) handleCarPlayStatus(w http.ResponseWriter, r *http.Request) {
	if s.carplay == nil {
		writeJSON(w, http.StatusServiceUnavailable, types.CommandResult{Success: false, Message: "carplay unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, s.carplay.Status())
}

func (s *Server) handleCarPlayStart(w http.ResponseWriter, r *http.Request) {
	s.carplayCommand(w, func() error { return s.carplay.Start(true) })
}

func (s *Server) handleCarPlayStop(w http.ResponseWriter, r *http.Request) {
	s.carplayCommand(w, func() error { return s.carplay.Stop() })
}

func (s *Server) handleCarPlayRestart(w http.ResponseWriter, r *http.Request) {
	s.carplayCommand(w, func() error { return s.carplay.Restart(true) })
}

func (s *Server) carplayCommand(w http.ResponseWriter, fn func() error) {
	if s.carplay == nil {
		writeJSON(w, http.StatusServiceUnavailable, types.CommandResult{Success: false, Message: "carplay unavailable"})
		return
	}
	if err := fn(); err != nil {
		writeJSON(w, http.StatusOK, types.CommandResult{Success: false, Message: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, types.CommandResult{Success: true})
}

func (s *Server) handleCarPlayKey(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Key string `json:"key"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Key == "" {
		writeJSON(w, http.StatusBadRequest, types.CommandResult{Success: false, Message: "key required"})
		return
	}
	s.carplayCommand(w, func() error { return s.carplay.SendKey(req.Key) })
}

func (s *Server) handlePhoneStatus(w http.ResponseWriter, r *http.Request) {
	if s.phone == nil {
		writeJSON(w, http.StatusServiceUnavailable, types.CommandResult{Success: false, Message: "phone unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, s.phone.Display())
}

func (s *Server) handlePhoneEvents(w http.ResponseWriter, r *http.Request) {
	if s.phone == nil {
		http.Error(w, "phone unavailable", http.StatusServiceUnavailable)
		return
	}
	s.broker.serve(w, r, s.phone.Display())
}

func (s *Server) handlePhoneRecent(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": false, "calls": []types.CallRecord{}})
		return
	}
	calls, err := s.history.Recent(s.historyN)
	if err != nil {
		s.logger.Errorf("Failed to read call history: %v", err)
		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": false, "calls": []types.CallRecord{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "calls": calls})
}

func (s *Server) phoneCommand(fn func() types.CommandResult) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.phone == nil {
			writeJSON(w, http.StatusServiceUnavailable, types.CommandResult{Success: false, Message: "phone unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, fn())
	}
}

func (s *Server) handlePhoneDial(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Number string `json:"number"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, types.CommandResult{Success: false, Message: "invalid request body"})
		return
	}
	s.phoneCommand(func() types.CommandResult { return s.phone.Dial(req.Number) })(w, r)
}

func (s *Server) handlePhoneDTMF(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Digit string `json:"digit"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Digit == "" {
		writeJSON(w, http.StatusBadRequest, types.CommandResult{Success: false, Message: "digit required"})
		return
	}
	s.phoneCommand(func() types.CommandResult { return s.phone.SendDigit(req.Digit) })(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
