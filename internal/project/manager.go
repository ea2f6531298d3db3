package project

import (
	"context"
	"fmt"
	"sync"

	"github.com/miras-broadcast/miras-core/internal/state"
)

// Logger is the optional structured logging interface for this package.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Manager owns the active project. At most one project is loaded at a
// time; loading another replaces it. The active project id is pushed into
// the state aggregator on every change.
type Manager struct {
	repo       *Repository
	aggregator *state.Aggregator
	logger     Logger

	mu     sync.Mutex
	active *Project
}

// NewManager builds a manager. The aggregator may be nil in tests.
func NewManager(repo *Repository, aggregator *state.Aggregator, logger Logger) *Manager {
	return &Manager{repo: repo, aggregator: aggregator, logger: logger}
}

// Create makes a new empty project. It does not load it.
func (m *Manager) Create(ctx context.Context, name string) (*Project, error) {
	p, err := m.repo.Create(ctx, name)
	if err != nil {
		return nil, err
	}
	m.logInfo("project created", "project_id", p.ID, "name", p.Name)
	return p, nil
}

// List returns summaries of every stored project.
func (m *Manager) List(ctx context.Context) ([]Summary, error) {
	return m.repo.List(ctx)
}

// Get loads one project from storage without activating it.
func (m *Manager) Get(ctx context.Context, id string) (*Project, error) {
	return m.repo.Get(ctx, id)
}

// Load activates a project, replacing any previously active one.
func (m *Manager) Load(ctx context.Context, id string) (*Project, error) {
	p, err := m.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.active = p
	m.mu.Unlock()

	if m.aggregator != nil {
		m.aggregator.SetActiveProject(&p.ID)
	}
	m.logInfo("project loaded", "project_id", p.ID, "name", p.Name)
	return copyProject(p), nil
}

// Close deactivates the active project. A no-op when none is loaded.
func (m *Manager) Close() {
	m.mu.Lock()
	had := m.active != nil
	m.active = nil
	m.mu.Unlock()

	if had {
		if m.aggregator != nil {
			m.aggregator.SetActiveProject(nil)
		}
		m.logInfo("project closed")
	}
}

// Active returns a copy of the active project, or false when none is
// loaded.
func (m *Manager) Active() (*Project, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil, false
	}
	return copyProject(m.active), true
}

// Save persists a project. If it is the active one, the in-memory copy is
// refreshed so subsequent item lookups see the new grid.
func (m *Manager) Save(ctx context.Context, p *Project) error {
	if err := m.repo.Save(ctx, p); err != nil {
		return err
	}

	m.mu.Lock()
	if m.active != nil && m.active.ID == p.ID {
		m.active = copyProject(p)
	}
	m.mu.Unlock()
	m.logInfo("project saved", "project_id", p.ID)
	return nil
}

// Delete removes a project from storage, closing it first if active.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	wasActive := m.active != nil && m.active.ID == id
	if wasActive {
		m.active = nil
	}
	m.mu.Unlock()

	if wasActive && m.aggregator != nil {
		m.aggregator.SetActiveProject(nil)
	}
	return m.repo.Delete(ctx, id)
}

// Item finds one item in the active project's grid by id.
func (m *Manager) Item(itemID string) (Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return Item{}, ErrNoActiveProject
	}
	for _, ev := range m.active.Events {
		for _, item := range ev.Items {
			if item.ID == itemID {
				return item, nil
			}
		}
	}
	return Item{}, fmt.Errorf("%w: %q", ErrItemNotFound, itemID)
}

func (m *Manager) logInfo(msg string, kv ...any) {
	if m.logger != nil {
		m.logger.Info(msg, kv...)
	}
}

// copyProject deep-copies a project so callers never share grid slices
// with the manager.
func copyProject(p *Project) *Project {
	out := *p
	out.Events = make([]Event, len(p.Events))
	for i, ev := range p.Events {
		copied := ev
		copied.Items = append([]Item(nil), ev.Items...)
		out.Events[i] = copied
	}
	return &out
}
