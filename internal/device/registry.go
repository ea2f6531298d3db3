package device

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Factory builds a session for one device family. Implementations wire a
// family-specific transport and codec; the registry never knows protocol
// details.
type Factory func(cfg Config, opts SessionOptions) (*Session, error)

// RegistryOptions carries the optional collaborators for a registry.
type RegistryOptions struct {
	Logger  Logger
	Metrics Metrics

	// DisconnectTimeout bounds Shutdown. Default: 10s.
	DisconnectTimeout time.Duration
}

// Registry owns the session for every registered device. It dispatches
// session events to subscribers, connects enabled devices on registration,
// and tears everything down within a bounded window on Shutdown.
type Registry struct {
	logger            Logger
	metrics           Metrics
	disconnectTimeout time.Duration

	mu        sync.Mutex
	factories map[string]Factory
	sessions  map[string]*Session
	order     []string
	subs      map[int]func(Event)
	nextSub   int
	closed    bool

	shutdownOnce sync.Once
}

// NewRegistry builds an empty registry. Families must be registered with
// RegisterFamily before devices of that family can be added.
func NewRegistry(opts RegistryOptions) *Registry {
	if opts.DisconnectTimeout <= 0 {
		opts.DisconnectTimeout = 10 * time.Second
	}
	return &Registry{
		logger:            opts.Logger,
		metrics:           opts.Metrics,
		disconnectTimeout: opts.DisconnectTimeout,
		factories:         make(map[string]Factory),
		sessions:          make(map[string]*Session),
		subs:              make(map[int]func(Event)),
	}
}

// RegisterFamily installs the session factory for a device family.
// Registering the same family twice replaces the factory.
func (r *Registry) RegisterFamily(family string, f Factory) {
	r.mu.Lock()
	r.factories[family] = f
	r.mu.Unlock()
}

// Families lists the registered device families.
func (r *Registry) Families() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.factories))
	for f := range r.factories {
		out = append(out, f)
	}
	return out
}

// Register validates the config, builds a session through the family
// factory, and announces it. Enabled devices are connected asynchronously;
// registration itself never blocks on the network. Configuration problems
// (bad config, unknown family, duplicate id) are reported synchronously.
func (r *Registry) Register(cfg Config) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	factory, ok := r.factories[cfg.Family]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFamily, cfg.Family)
	}
	if _, exists := r.sessions[cfg.ID]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrDeviceExists, cfg.ID)
	}
	r.mu.Unlock()

	session, err := factory(cfg, SessionOptions{Logger: r.logger, Metrics: r.metrics})
	if err != nil {
		return nil, fmt.Errorf("building session for %q: %w", cfg.ID, err)
	}
	session.SetOnEvent(r.dispatch)

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRegistryClosed
	}
	if _, exists := r.sessions[cfg.ID]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrDeviceExists, cfg.ID)
	}
	r.sessions[cfg.ID] = session
	r.order = append(r.order, cfg.ID)
	r.mu.Unlock()

	r.logInfo("device registered", "device_id", cfg.ID, "family", cfg.Family, "enabled", cfg.Enabled)
	r.dispatch(Event{
		Kind:      EventRegistered,
		DeviceID:  cfg.ID,
		Snapshot:  session.Snapshot(),
		Timestamp: time.Now(),
	})

	if cfg.Enabled {
		go func() {
			_ = session.Connect(context.Background())
		}()
	}
	return session, nil
}

// Unregister disconnects and removes a device. Returns false if the id is
// unknown.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	session, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
		for i, oid := range r.order {
			if oid == id {
				r.order = append(r.order[:i], r.order[i+1:]...)
				break
			}
		}
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	_ = session.Disconnect()
	r.logInfo("device unregistered", "device_id", id)
	return true
}

// Get returns the session for a device id.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[id]
	return s, ok
}

// All returns every session in registration order.
func (r *Registry) All() []*Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Session, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.sessions[id])
	}
	return out
}

// Snapshots returns the state of every device in registration order.
func (r *Registry) Snapshots() []StateSnapshot {
	sessions := r.All()
	out := make([]StateSnapshot, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.Snapshot())
	}
	return out
}

// ConnectAll connects every registered device concurrently. One device
// failing never prevents the others from connecting; per-device failures
// are collected and returned keyed by device id.
func (r *Registry) ConnectAll(ctx context.Context) map[string]error {
	sessions := r.All()

	var wg sync.WaitGroup
	var mu sync.Mutex
	errs := make(map[string]error)
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			if err := s.Connect(ctx); err != nil {
				mu.Lock()
				errs[s.ID()] = err
				mu.Unlock()
			}
		}(s)
	}
	wg.Wait()
	return errs
}

// DisconnectAll disconnects every registered device concurrently, bounded
// by the context. Devices that do not finish before the deadline are
// abandoned; their errors are not collected.
func (r *Registry) DisconnectAll(ctx context.Context) map[string]error {
	sessions := r.All()

	var wg sync.WaitGroup
	var mu sync.Mutex
	errs := make(map[string]error)
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			if err := s.Disconnect(); err != nil {
				mu.Lock()
				errs[s.ID()] = err
				mu.Unlock()
			}
		}(s)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		r.logWarn("disconnect window expired", "error", ctx.Err())
	}

	mu.Lock()
	defer mu.Unlock()
	out := make(map[string]error, len(errs))
	for k, v := range errs {
		out[k] = v
	}
	return out
}

// Subscribe installs an event callback for every device. The returned
// function removes the subscription. Callbacks run on the emitting
// session's goroutine and must not block.
func (r *Registry) Subscribe(fn func(Event)) func() {
	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = fn
	r.mu.Unlock()

	return func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}
}

// Shutdown disconnects all devices within the configured window, drops
// every session and subscriber, and refuses further registrations.
// Idempotent.
func (r *Registry) Shutdown() {
	r.shutdownOnce.Do(func() {
		r.mu.Lock()
		r.closed = true
		r.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), r.disconnectTimeout)
		defer cancel()
		errs := r.DisconnectAll(ctx)
		for id, err := range errs {
			r.logWarn("disconnect failed during shutdown", "device_id", id, "error", err)
		}

		r.mu.Lock()
		count := len(r.order)
		r.sessions = make(map[string]*Session)
		r.order = nil
		r.subs = make(map[int]func(Event))
		r.mu.Unlock()

		r.logInfo("registry shut down", "devices", count)
	})
}

// dispatch fans one event out to every subscriber.
func (r *Registry) dispatch(ev Event) {
	r.mu.Lock()
	fns := make([]func(Event), 0, len(r.subs))
	for _, fn := range r.subs {
		fns = append(fns, fn)
	}
	r.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

func (r *Registry) logInfo(msg string, kv ...any) {
	if r.logger != nil {
		r.logger.Info(msg, kv...)
	}
}

func (r *Registry) logWarn(msg string, kv ...any) {
	if r.logger != nil {
		r.logger.Warn(msg, kv...)
	}
}
