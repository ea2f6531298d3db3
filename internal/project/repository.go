package project

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/miras-broadcast/miras-core/internal/infrastructure/database"
)

// Repository persists projects in SQLite. The grid (events and items) is
// written as a whole on Save: simpler than diffing and safe inside one
// transaction at this data size.
type Repository struct {
	db *database.DB
}

// NewRepository wraps a database handle.
func NewRepository(db *database.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts an empty project and returns it.
func (r *Repository) Create(ctx context.Context, name string) (*Project, error) {
	now := time.Now().UTC()
	p := &Project{
		ID:        uuid.NewString(),
		Name:      name,
		CreatedAt: now,
		UpdatedAt: now,
	}

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO projects (id, name, created_at, updated_at) VALUES (?, ?, ?, ?)",
		p.ID, p.Name, p.CreatedAt.Format(time.RFC3339), p.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return nil, fmt.Errorf("inserting project: %w", err)
	}
	return p, nil
}

// Get loads one project with its full grid.
func (r *Repository) Get(ctx context.Context, id string) (*Project, error) {
	var p Project
	var createdAt, updatedAt string
	err := r.db.QueryRowContext(ctx,
		"SELECT id, name, created_at, updated_at FROM projects WHERE id = ?", id,
	).Scan(&p.ID, &p.Name, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("querying project: %w", err)
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	if err := r.loadGrid(ctx, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// List returns summaries of every project, newest first.
func (r *Repository) List(ctx context.Context) ([]Summary, error) {
	rows, err := r.db.DB.QueryContext(ctx,
		"SELECT id, name, created_at, updated_at FROM projects ORDER BY created_at DESC",
	)
	if err != nil {
		return nil, fmt.Errorf("querying projects: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var s Summary
		var createdAt, updatedAt string
		if err := rows.Scan(&s.ID, &s.Name, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning project row: %w", err)
		}
		s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		s.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating projects: %w", err)
	}
	return out, nil
}

// Save replaces a project's name and entire grid in one transaction.
// Events and items without ids are assigned fresh ones.
func (r *Repository) Save(ctx context.Context, p *Project) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck // Rollback is no-op after commit

	p.UpdatedAt = time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		"UPDATE projects SET name = ?, updated_at = ? WHERE id = ?",
		p.Name, p.UpdatedAt.Format(time.RFC3339), p.ID,
	)
	if err != nil {
		return fmt.Errorf("updating project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %q", ErrNotFound, p.ID)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM events WHERE project_id = ?", p.ID); err != nil {
		return fmt.Errorf("clearing events: %w", err)
	}

	for ei := range p.Events {
		ev := &p.Events[ei]
		if ev.ID == "" {
			ev.ID = uuid.NewString()
		}
		ev.Position = ei
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO events (id, project_id, name, position) VALUES (?, ?, ?, ?)",
			ev.ID, p.ID, ev.Name, ev.Position,
		); err != nil {
			return fmt.Errorf("inserting event %q: %w", ev.Name, err)
		}

		for ii := range ev.Items {
			item := &ev.Items[ii]
			if item.ID == "" {
				item.ID = uuid.NewString()
			}
			item.Position = ii
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO items (id, event_id, position, device_id, channel, layer, clip, loop, transition)
				 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				item.ID, ev.ID, item.Position, item.DeviceID,
				item.Channel, item.Layer, item.Clip, boolToInt(item.Loop), item.Transition,
			); err != nil {
				return fmt.Errorf("inserting item %q: %w", item.Clip, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing project save: %w", err)
	}
	return nil
}

// Delete removes a project and, via cascades, its grid.
func (r *Repository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM projects WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting project: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return nil
}

// loadGrid attaches the events and items of one project.
func (r *Repository) loadGrid(ctx context.Context, p *Project) error {
	rows, err := r.db.DB.QueryContext(ctx,
		"SELECT id, name, position FROM events WHERE project_id = ? ORDER BY position", p.ID,
	)
	if err != nil {
		return fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ev Event
		if err := rows.Scan(&ev.ID, &ev.Name, &ev.Position); err != nil {
			return fmt.Errorf("scanning event row: %w", err)
		}
		p.Events = append(p.Events, ev)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating events: %w", err)
	}

	for ei := range p.Events {
		if err := r.loadItems(ctx, &p.Events[ei]); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) loadItems(ctx context.Context, ev *Event) error {
	rows, err := r.db.DB.QueryContext(ctx,
		`SELECT id, position, device_id, channel, layer, clip, loop, transition
		 FROM items WHERE event_id = ? ORDER BY position`, ev.ID,
	)
	if err != nil {
		return fmt.Errorf("querying items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item Item
		var loop int
		if err := rows.Scan(&item.ID, &item.Position, &item.DeviceID,
			&item.Channel, &item.Layer, &item.Clip, &loop, &item.Transition); err != nil {
			return fmt.Errorf("scanning item row: %w", err)
		}
		item.Loop = loop != 0
		ev.Items = append(ev.Items, item)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating items: %w", err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
