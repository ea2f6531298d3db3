package state

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/miras-broadcast/miras-core/internal/device"
)

// SystemState is one immutable view of everything the core knows: device
// snapshots, the active project, and the connected client count. Values
// handed out by the aggregator are deep copies; holders may keep and
// mutate them freely.
type SystemState struct {
	Devices          map[string]device.StateSnapshot `json:"devices"`
	ActiveProject    *string                         `json:"activeProject"`
	ConnectedClients int                             `json:"connectedClients"`
	LastUpdate       time.Time                       `json:"lastUpdate"`
}

// Aggregator folds device events, project changes, and client arrivals
// into a single SystemState. Every contributing change rebuilds the
// snapshot and swaps it in atomically, then fans it out to subscribers.
type Aggregator struct {
	current atomic.Pointer[SystemState]

	mu            sync.Mutex
	devices       map[string]device.StateSnapshot
	activeProject *string
	clients       map[string]bool
	subs          map[int]func(SystemState)
	nextSub       int
}

// New returns an aggregator with an empty initial state.
func New() *Aggregator {
	a := &Aggregator{
		devices: make(map[string]device.StateSnapshot),
		clients: make(map[string]bool),
		subs:    make(map[int]func(SystemState)),
	}
	a.current.Store(&SystemState{
		Devices:    map[string]device.StateSnapshot{},
		LastUpdate: time.Now(),
	})
	return a
}

// HandleEvent folds one device event into the state. Wire it directly
// into a registry subscription:
//
//	registry.Subscribe(aggregator.HandleEvent)
func (a *Aggregator) HandleEvent(ev device.Event) {
	a.ObserveDevice(ev.Snapshot)
}

// ObserveDevice records the latest snapshot for one device.
func (a *Aggregator) ObserveDevice(snap device.StateSnapshot) {
	a.mu.Lock()
	a.devices[snap.ID] = snap
	a.rebuildLocked()
}

// RemoveDevice drops a device from the state.
func (a *Aggregator) RemoveDevice(id string) {
	a.mu.Lock()
	if _, ok := a.devices[id]; !ok {
		a.mu.Unlock()
		return
	}
	delete(a.devices, id)
	a.rebuildLocked()
}

// SetActiveProject records which project is loaded. Nil means none.
func (a *Aggregator) SetActiveProject(id *string) {
	a.mu.Lock()
	if id != nil {
		v := *id
		a.activeProject = &v
	} else {
		a.activeProject = nil
	}
	a.rebuildLocked()
}

// ClientConnected counts one client connection. The id must be unique per
// connection; reconnecting clients get a fresh id.
func (a *Aggregator) ClientConnected(id string) {
	a.mu.Lock()
	if a.clients[id] {
		a.mu.Unlock()
		return
	}
	a.clients[id] = true
	a.rebuildLocked()
}

// ClientDisconnected removes one client connection. Unknown or repeated
// ids are ignored so a double disconnect can never drive the count
// negative.
func (a *Aggregator) ClientDisconnected(id string) {
	a.mu.Lock()
	if !a.clients[id] {
		a.mu.Unlock()
		return
	}
	delete(a.clients, id)
	a.rebuildLocked()
}

// State returns a deep copy of the current system state.
func (a *Aggregator) State() SystemState {
	return copyState(a.current.Load())
}

// Subscribe registers a callback invoked with a fresh state copy after
// every change. The returned function removes the subscription. Callbacks
// run on the mutating goroutine and must not block.
func (a *Aggregator) Subscribe(fn func(SystemState)) func() {
	a.mu.Lock()
	id := a.nextSub
	a.nextSub++
	a.subs[id] = fn
	a.mu.Unlock()

	return func() {
		a.mu.Lock()
		delete(a.subs, id)
		a.mu.Unlock()
	}
}

// rebuildLocked swaps in a new snapshot and notifies subscribers. Takes
// ownership of the caller's lock and releases it before fan-out so
// subscribers can call back into the aggregator.
func (a *Aggregator) rebuildLocked() {
	next := &SystemState{
		Devices:          make(map[string]device.StateSnapshot, len(a.devices)),
		ConnectedClients: len(a.clients),
		LastUpdate:       time.Now(),
	}
	for id, snap := range a.devices {
		next.Devices[id] = copySnapshot(snap)
	}
	if a.activeProject != nil {
		v := *a.activeProject
		next.ActiveProject = &v
	}
	a.current.Store(next)

	fns := make([]func(SystemState), 0, len(a.subs))
	for _, fn := range a.subs {
		fns = append(fns, fn)
	}
	a.mu.Unlock()

	for _, fn := range fns {
		fn(copyState(next))
	}
}

func copyState(s *SystemState) SystemState {
	out := SystemState{
		Devices:          make(map[string]device.StateSnapshot, len(s.Devices)),
		ConnectedClients: s.ConnectedClients,
		LastUpdate:       s.LastUpdate,
	}
	for id, snap := range s.Devices {
		out.Devices[id] = copySnapshot(snap)
	}
	if s.ActiveProject != nil {
		v := *s.ActiveProject
		out.ActiveProject = &v
	}
	return out
}

func copySnapshot(snap device.StateSnapshot) device.StateSnapshot {
	if snap.State != nil {
		state := make(map[string]any, len(snap.State))
		for k, v := range snap.State {
			state[k] = v
		}
		snap.State = state
	}
	if snap.LastConnectedAt != nil {
		t := *snap.LastConnectedAt
		snap.LastConnectedAt = &t
	}
	return snap
}
