// Package registry persists launchpad metadata: the human-facing token
// record (name, symbol, description, image) and the optional chat-agent
// profile attached to a token. The trading state itself lives in the
// engine; the registry only stores what the engine does not care about.
package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no record exists for the given id.
var ErrNotFound = errors.New("registry: not found")

// TokenMeta is the display metadata for one launched token.
type TokenMeta struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Symbol      string    `json:"symbol"`
	Description string    `json:"description,omitempty"`
	ImageURI    string    `json:"imageUri,omitempty"`
	Creator     string    `json:"creator"`
	CreatedAt   time.Time `json:"createdAt"`
}

// AgentMeta is the chat-agent profile attached to a token.
type AgentMeta struct {
	TokenID      string `json:"tokenId"`
	DisplayName  string `json:"displayName"`
	Greeting     string `json:"greeting,omitempty"`
	SystemPrompt string `json:"systemPrompt,omitempty"`
}

// Registry is a SQLite-backed metadata store.
type Registry struct {
	db *sql.DB
}

// Open opens (or creates) the registry database at path. Use ":memory:"
// for an ephemeral registry.
func Open(path string) (*Registry, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	r := &Registry{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return r, nil
}

func (r *Registry) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tokens (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		symbol TEXT NOT NULL,
		description TEXT,
		image_uri TEXT,
		creator TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS agents (
		token_id TEXT PRIMARY KEY REFERENCES tokens(id) ON DELETE CASCADE,
		display_name TEXT NOT NULL,
		greeting TEXT,
		system_prompt TEXT
	);
	`
	_, err := r.db.Exec(schema)
	return err
}

// SaveToken inserts or replaces a token record.
func (r *Registry) SaveToken(ctx context.Context, meta TokenMeta) error {
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tokens (id, name, symbol, description, image_uri, creator, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			symbol = excluded.symbol,
			description = excluded.description,
			image_uri = excluded.image_uri`,
		meta.ID, meta.Name, meta.Symbol, meta.Description, meta.ImageURI, meta.Creator, meta.CreatedAt,
	)
	return err
}

// Token returns the metadata record for id.
func (r *Registry) Token(ctx context.Context, id string) (*TokenMeta, error) {
	var m TokenMeta
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, symbol, description, image_uri, creator, created_at
		 FROM tokens WHERE id = ?`, id,
	).Scan(&m.ID, &m.Name, &m.Symbol, &m.Description, &m.ImageURI, &m.Creator, &m.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: token %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Tokens lists all token records, newest first.
func (r *Registry) Tokens(ctx context.Context) ([]*TokenMeta, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, symbol, description, image_uri, creator, created_at
		 FROM tokens ORDER BY created_at DESC, id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*TokenMeta
	for rows.Next() {
		var m TokenMeta
		if err := rows.Scan(&m.ID, &m.Name, &m.Symbol, &m.Description, &m.ImageURI, &m.Creator, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// DeleteToken removes a token record and its agent profile.
func (r *Registry) DeleteToken(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM tokens WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: token %s", ErrNotFound, id)
	}
	// Cascades are not on by default in SQLite; delete explicitly.
	_, err = r.db.ExecContext(ctx, `DELETE FROM agents WHERE token_id = ?`, id)
	return err
}

// SaveAgent inserts or replaces a token's agent profile.
func (r *Registry) SaveAgent(ctx context.Context, meta AgentMeta) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO agents (token_id, display_name, greeting, system_prompt)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(token_id) DO UPDATE SET
			display_name = excluded.display_name,
			greeting = excluded.greeting,
			system_prompt = excluded.system_prompt`,
		meta.TokenID, meta.DisplayName, meta.Greeting, meta.SystemPrompt,
	)
	return err
}

// Agent returns the agent profile for a token.
func (r *Registry) Agent(ctx context.Context, tokenID string) (*AgentMeta, error) {
	var m AgentMeta
	err := r.db.QueryRowContext(ctx,
		`SELECT token_id, display_name, greeting, system_prompt
		 FROM agents WHERE token_id = ?`, tokenID,
	).Scan(&m.TokenID, &m.DisplayName, &m.Greeting, &m.SystemPrompt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: agent for %s", ErrNotFound, tokenID)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// Close closes the database.
func (r *Registry) Close() error {
	return r.db.Close()
}
