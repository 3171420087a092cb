// Package messaging bridges the head unit to other on-car services over
// Redis: state goes out as hash fields with change notifications, and
// commands come in over BRPOP lists.
package messaging

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/CharlesBrocato/car-stereo-system/internal/logger"
	"github.com/CharlesBrocato/car-stereo-system/internal/types"
)

const (
	stateHash    = "headunit"
	phoneList    = "headunit:phone"
	carplayList  = "headunit:carplay"
	stateChannel = "headunit"
)

// Callbacks receive commands pushed by other services.
type Callbacks struct {
	PhoneCommandCallback   func(string) error // "answer", "hangup"
	CarPlayCommandCallback func(string) error // "start", "stop", "restart"
}

// RedisClient publishes head-unit state and listens for commands. Redis
// being unreachable disables the bridge instead of failing the service.
type RedisClient struct {
	client    *redis.Client
	callbacks Callbacks
	logger    *logger.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	mu      sync.RWMutex
	enabled bool
}

func NewRedisClient(host string, port int, l *logger.Logger, callbacks Callbacks) *RedisClient {
	ctx, cancel := context.WithCancel(context.Background())
	return &RedisClient{
		client: redis.NewClient(&redis.Options{
			Addr: fmt.Sprintf("%s:%d", host, port),
			DB:   0,
		}),
		callbacks: callbacks,
		logger:    l.WithTag("redis"),
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Connect pings Redis. Failure logs and leaves the bridge disabled.
func (r *RedisClient) Connect() {
	if err := r.client.Ping(r.ctx).Err(); err != nil {
		r.logger.Warnf("Redis unavailable at %s, IPC bridge disabled: %v",
			r.client.Options().Addr, err)
		return
	}
	r.mu.Lock()
	r.enabled = true
	r.mu.Unlock()
	r.logger.Infof("Connected to Redis at %s", r.client.Options().Addr)
}

// Enabled reports whether the bridge is live.
func (r *RedisClient) Enabled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.enabled
}

// StartListening starts the command list listeners.
func (r *RedisClient) StartListening() {
	if !r.Enabled() {
		return
	}
	r.wg.Add(2)
	go r.listCommandListener(phoneList, r.handlePhoneCommand)
	go r.listCommandListener(carplayList, r.handleCarPlayCommand)
}

func (r *RedisClient) listCommandListener(key string, handler func(string) error) {
	defer r.wg.Done()
	r.logger.Infof("Starting list command listener for %s", key)

	for {
		select {
		case <-r.ctx.Done():
			r.logger.Infof("Context cancelled, exiting %s listener", key)
			return
		default:
			// Short BRPOP timeout so context cancellation is noticed.
			result, err := r.client.BRPop(r.ctx, 5*time.Second, key).Result()
			if err != nil {
				if err == redis.Nil {
					continue
				}
				if err == context.Canceled {
					return
				}
				r.logger.Warnf("Error reading from %s list: %v", key, err)
				continue
			}
			if len(result) >= 2 { // BRPOP returns [key, value]
				value := result[1]
				r.logger.Debugf("Received command from %s: %s", key, value)
				if err := handler(value); err != nil {
					r.logger.Warnf("Error handling %s command: %v", key, err)
				}
			}
		}
	}
}

func (r *RedisClient) handlePhoneCommand(value string) error {
	if r.callbacks.PhoneCommandCallback == nil {
		return nil
	}
	switch value {
	case "answer", "hangup":
		return r.callbacks.PhoneCommandCallback(value)
	default:
		return fmt.Errorf("invalid phone command: %s", value)
	}
}

func (r *RedisClient) handleCarPlayCommand(value string) error {
	if r.callbacks.CarPlayCommandCallback == nil {
		return nil
	}
	switch value {
	case "start", "stop", "restart":
		return r.callbacks.CarPlayCommandCallback(value)
	default:
		return fmt.Errorf("invalid carplay command: %s", value)
	}
}

// publishHashSet atomically updates a hash field and publishes the field
// name as a change notification.
func (r *RedisClient) publishHashSet(field string, value interface{}) error {
	if !r.Enabled() {
		return nil
	}
	pipe := r.client.Pipeline()
	pipe.HSet(r.ctx, stateHash, field, value)
	pipe.Publish(r.ctx, stateChannel, field)
	_, err := pipe.Exec(r.ctx)
	return err
}

// PublishPhoneState mirrors the displayed phone state for other on-car
// services (e.g. an instrument cluster muting music on an active call).
func (r *RedisClient) PublishPhoneState(d types.DisplayState) {
	if !r.Enabled() {
		return
	}
	connected := "false"
	if d.Connected {
		connected = "true"
	}

	pipe := r.client.Pipeline()
	pipe.HSet(r.ctx, stateHash, "phone:state", string(d.State))
	pipe.HSet(r.ctx, stateHash, "phone:connected", connected)
	pipe.Publish(r.ctx, stateChannel, "phone:state")
	if _, err := pipe.Exec(r.ctx); err != nil {
		r.logger.Warnf("Failed to publish phone state: %v", err)
	}
}

// PublishTrack publishes the now-playing line.
func (r *RedisClient) PublishTrack(track string) {
	if err := r.publishHashSet("music:track", track); err != nil {
		r.logger.Warnf("Failed to publish track: %v", err)
	}
}

// PublishCarPlayStatus publishes the engine status string.
func (r *RedisClient) PublishCarPlayStatus(status string) {
	if err := r.publishHashSet("carplay:status", status); err != nil {
		r.logger.Warnf("Failed to publish carplay status: %v", err)
	}
}

// PublishNightMode publishes the illumination-driven night mode flag.
func (r *RedisClient) PublishNightMode(on bool) {
	value := "off"
	if on {
		value = "on"
	}
	if err := r.publishHashSet("night-mode", value); err != nil {
		r.logger.Warnf("Failed to publish night mode: %v", err)
	}
}

func (r *RedisClient) Close() error {
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		r.logger.Warnf("Timeout waiting for Redis listeners to finish")
	}

	return r.client.Close()
}
