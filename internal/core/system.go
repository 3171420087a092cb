// Package core wires the head unit together: phone stack, media,
// CarPlay, routing, sensors, vehicle GPIO, Redis IPC and the HTTP UI.
package core

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/CharlesBrocato/car-stereo-system/internal/bluetooth"
	"github.com/CharlesBrocato/car-stereo-system/internal/call"
	"github.com/CharlesBrocato/car-stereo-system/internal/calllog"
	"github.com/CharlesBrocato/car-stereo-system/internal/carplay"
	"github.com/CharlesBrocato/car-stereo-system/internal/config"
	"github.com/CharlesBrocato/car-stereo-system/internal/hardware"
	"github.com/CharlesBrocato/car-stereo-system/internal/httpapi"
	"github.com/CharlesBrocato/car-stereo-system/internal/logger"
	"github.com/CharlesBrocato/car-stereo-system/internal/maps"
	"github.com/CharlesBrocato/car-stereo-system/internal/messaging"
	"github.com/CharlesBrocato/car-stereo-system/internal/music"
	"github.com/CharlesBrocato/car-stereo-system/internal/phone"
	"github.com/CharlesBrocato/car-stereo-system/internal/sense"
	"github.com/CharlesBrocato/car-stereo-system/internal/types"
)

// phoneFacade joins the command dispatcher and the reconciler's display
// into the single phone surface the HTTP layer consumes.
type phoneFacade struct {
	*call.Dispatcher
	rec *call.Reconciler
}

func (p *phoneFacade) Display() types.DisplayState { return p.rec.Display() }

// HeadUnit owns every subsystem and their lifecycles.
type HeadUnit struct {
	cfg    *config.Config
	logger *logger.Logger

	link       phone.Link
	rec        *call.Reconciler
	dispatcher *call.Dispatcher
	loop       *call.Loop
	store      *calllog.Store

	carplay   *carplay.Manager
	music     *music.Player
	bluetooth *bluetooth.Manager
	router    *maps.Router
	sensors   sense.Sensors
	sampler   *sense.Sampler
	vehicleIO *hardware.VehicleIO
	redis     *messaging.RedisClient

	api     *httpapi.Server
	httpSrv *http.Server

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewHeadUnit(cfg *config.Config, l *logger.Logger) *HeadUnit {
	ctx, cancel := context.WithCancel(context.Background())
	return &HeadUnit{
		cfg:    cfg,
		logger: l.WithTag("core"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Start brings subsystems up in dependency order. The phone backend,
// Redis and the sensor board being unavailable degrades the respective
// feature instead of failing startup; only the HTTP listener is fatal.
func (h *HeadUnit) Start() error {
	h.logger.Infof("Starting head unit")

	// Call history first: the reconciler records finished calls into it.
	store, err := calllog.Open(h.logger, h.cfg.Phone.CallLogPath)
	if err != nil {
		h.logger.Warnf("Call history unavailable: %v", err)
	} else {
		h.store = store
	}

	var recorder call.Recorder
	if h.store != nil {
		recorder = h.store
	}
	rec, err := call.NewReconciler(h.logger, h.cfg.Phone.HeldTimerPolicy, recorder)
	if err != nil {
		return fmt.Errorf("failed to build call reconciler: %w", err)
	}
	h.rec = rec
	if err := h.rec.Start(h.ctx); err != nil {
		return fmt.Errorf("failed to start call reconciler: %w", err)
	}

	if h.store != nil {
		if calls, err := h.store.Recent(h.cfg.Phone.RecentCallsLimit); err != nil {
			h.logger.Warnf("Failed to preload recent calls: %v", err)
		} else {
			h.rec.SetRecentCalls(calls)
		}
	}

	// Phone backend. oFono being down is a degraded state, not fatal:
	// the poll loop keeps probing and flips the connection indicator.
	seq := &phone.Sequence{}
	link := phone.NewOfonoLink(h.logger, seq)
	if err := link.Start(); err != nil {
		h.logger.Warnf("Phone backend unavailable: %v", err)
	}
	h.link = link
	h.dispatcher = call.NewDispatcher(h.logger, link, h.rec)

	h.loop = call.NewLoop(h.logger, h.link, h.rec, h.cfg.PollInterval())
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.loop.Run(h.ctx)
	}()

	h.carplay = carplay.NewManager(h.logger, h.cfg.CarPlay)
	h.music = music.NewPlayer(h.logger, h.cfg.Music)
	h.router = maps.NewRouter(h.logger, h.cfg.Maps)

	h.bluetooth = bluetooth.NewManager(h.logger)
	if err := h.bluetooth.Start(); err != nil {
		h.logger.Warnf("Bluetooth unavailable: %v", err)
		h.bluetooth = nil
	}

	sensors, err := sense.New(h.logger, h.cfg.Sense)
	if err != nil {
		h.logger.Warnf("Sensor board unavailable: %v", err)
	} else {
		h.sensors = sensors
		h.sampler = sense.NewSampler(h.logger, sensors,
			time.Duration(h.cfg.Sense.SampleIntervalSec)*time.Second)
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			h.sampler.Run(h.ctx)
		}()
	}

	if h.cfg.Hardware.Enabled {
		h.vehicleIO = hardware.NewVehicleIO(h.logger, h.cfg.Hardware)
		if err := h.vehicleIO.Initialize(); err != nil {
			h.logger.Warnf("Vehicle GPIO unavailable: %v", err)
			h.vehicleIO = nil
		}
	}

	if h.cfg.Redis.Enabled {
		h.redis = messaging.NewRedisClient(h.cfg.Redis.Host, h.cfg.Redis.Port,
			h.logger, messaging.Callbacks{
				PhoneCommandCallback:   h.handlePhoneCommand,
				CarPlayCommandCallback: h.handleCarPlayCommand,
			})
		h.redis.Connect()
		h.redis.StartListening()

		h.rec.Subscribe(h.redis.PublishPhoneState)
		h.wg.Add(1)
		go func() {
			defer h.wg.Done()
			h.publishTrackLoop()
		}()
		if h.vehicleIO != nil {
			h.redis.PublishNightMode(h.vehicleIO.NightMode())
			h.vehicleIO.RegisterCallback(hardware.ChannelIllumination,
				func(channel string, value bool) {
					h.redis.PublishNightMode(value)
				})
		}
	}

	return h.startHTTP()
}

func (h *HeadUnit) startHTTP() error {
	ph := &phoneFacade{Dispatcher: h.dispatcher, rec: h.rec}
	var history httpapi.CallHistory
	if h.store != nil {
		history = h.store
	}
	var bt httpapi.BluetoothService
	if h.bluetooth != nil {
		bt = h.bluetooth
	}
	var sn httpapi.SensorSource
	if h.sampler != nil {
		sn = h.sampler
	}

	h.api = httpapi.NewServer(h.logger, h.cfg.HTTP, ph, history,
		h.cfg.Phone.RecentCallsLimit, h.carplay, h.music, bt, h.router, sn)
	h.rec.Subscribe(h.api.PublishPhoneState)

	h.httpSrv = &http.Server{
		Addr:    h.cfg.HTTP.Listen,
		Handler: h.api.Router(),
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.logger.Infof("HTTP server listening on %s", h.cfg.HTTP.Listen)
		if err := h.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Errorf("HTTP server failed: %v", err)
		}
	}()
	return nil
}

// publishTrackLoop mirrors the now-playing line to Redis so other
// on-car services can show it. Only changes are published.
func (h *HeadUnit) publishTrackLoop() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	var last string
	for {
		select {
		case <-h.ctx.Done():
			return
		case <-ticker.C:
			if !h.redis.Enabled() {
				continue
			}
			line := music.TrackLine(h.music.Status())
			if line == last {
				continue
			}
			last = line
			h.redis.PublishTrack(line)
		}
	}
}

func (h *HeadUnit) handlePhoneCommand(cmd string) error {
	var result types.CommandResult
	switch cmd {
	case "answer":
		result = h.dispatcher.Answer()
	case "hangup":
		result = h.dispatcher.Hangup()
	default:
		return fmt.Errorf("unknown phone command: %s", cmd)
	}
	if !result.Success {
		return fmt.Errorf("phone command %s failed: %s", cmd, result.Message)
	}
	return nil
}

func (h *HeadUnit) handleCarPlayCommand(cmd string) error {
	var err error
	switch cmd {
	case "start":
		err = h.carplay.Start(true)
	case "stop":
		err = h.carplay.Stop()
	case "restart":
		err = h.carplay.Restart(true)
	default:
		return fmt.Errorf("unknown carplay command: %s", cmd)
	}
	if err == nil && h.redis != nil {
		h.redis.PublishCarPlayStatus(h.carplay.Status().Status)
	}
	return err
}

// Shutdown stops subsystems in reverse dependency order.
func (h *HeadUnit) Shutdown() {
	h.logger.Infof("Shutting down head unit")
	h.cancel()

	if h.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := h.httpSrv.Shutdown(ctx); err != nil {
			h.logger.Warnf("HTTP shutdown: %v", err)
		}
		cancel()
	}
	if h.redis != nil {
		if err := h.redis.Close(); err != nil {
			h.logger.Warnf("Redis close: %v", err)
		}
	}
	if h.vehicleIO != nil {
		h.vehicleIO.Cleanup()
	}
	if h.carplay != nil {
		h.carplay.Close()
	}
	if h.link != nil {
		h.link.Stop()
	}
	if h.rec != nil {
		h.rec.Close()
	}
	if h.sensors != nil {
		h.sensors.Close()
	}
	if h.store != nil {
		if err := h.store.Close(); err != nil {
			h.logger.Warnf("Call history close: %v", err)
		}
	}

	h.wg.Wait()
	h.logger.Infof("Head unit stopped")
}
