// Package world holds mutable game state (locations, entities, their stats)
// and exposes it to the model through deterministic tools.
package world

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// SchemaDDL defines the world state tables. Stats and tags are stored as
// JSON documents so scenario content can carry arbitrary fields without
// migrations.
const SchemaDDL = `
CREATE TABLE IF NOT EXISTS locations (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    description TEXT NOT NULL DEFAULT '',
    stats TEXT NOT NULL DEFAULT '{}',
    tags TEXT NOT NULL DEFAULT '[]'
);

CREATE TABLE IF NOT EXISTS entities (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    kind TEXT NOT NULL,
    location_id TEXT REFERENCES locations(id),
    description TEXT NOT NULL DEFAULT '',
    stats TEXT NOT NULL DEFAULT '{}',
    tags TEXT NOT NULL DEFAULT '[]',
    hidden INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_entities_location ON entities (location_id);
`

// Entity kinds.
const (
	KindPlayer    = "player"
	KindCharacter = "character"
	KindItem      = "item"
)

// Location is one place in the world.
type Location struct {
	ID          string
	Name        string
	Description string
	Stats       string // JSON object
	Tags        []string
}

// Entity is a player, character, or item, optionally placed at a location.
type Entity struct {
	ID          string
	Name        string
	Kind        string
	LocationID  string
	Description string
	Stats       string // JSON object
	Tags        []string
	Hidden      bool
}

// Snapshot is the read-only view of an actor's surroundings handed to the
// prompt layer. Hidden entities are excluded; their existence reaches the
// model only through the secret context section.
type Snapshot struct {
	Location     string
	Description  string
	LocationTags []string
	Present      []string
	ActorStats   string // JSON object
}

// Store persists world state.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, SchemaDDL); err != nil {
		return fmt.Errorf("migrate world schema: %w", err)
	}
	return nil
}

// UpsertLocation creates or replaces a location by name.
func (s *Store) UpsertLocation(ctx context.Context, loc Location) error {
	if loc.Stats == "" {
		loc.Stats = "{}"
	}
	tags, err := json.Marshal(emptyIfNil(loc.Tags))
	if err != nil {
		return fmt.Errorf("marshal location tags: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO locations (id, name, description, stats, tags) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET description = excluded.description,
		     stats = excluded.stats, tags = excluded.tags`,
		loc.ID, loc.Name, loc.Description, loc.Stats, string(tags))
	if err != nil {
		return fmt.Errorf("upsert location %q: %w", loc.Name, err)
	}
	return nil
}

// UpsertEntity creates or replaces an entity by name.
func (s *Store) UpsertEntity(ctx context.Context, e Entity) error {
	if e.Stats == "" {
		e.Stats = "{}"
	}
	tags, err := json.Marshal(emptyIfNil(e.Tags))
	if err != nil {
		return fmt.Errorf("marshal entity tags: %w", err)
	}
	var loc any
	if e.LocationID != "" {
		loc = e.LocationID
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO entities (id, name, kind, location_id, description, stats, tags, hidden)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET kind = excluded.kind,
		     location_id = excluded.location_id, description = excluded.description,
		     stats = excluded.stats, tags = excluded.tags, hidden = excluded.hidden`,
		e.ID, e.Name, e.Kind, loc, e.Description, e.Stats, string(tags), boolToInt(e.Hidden))
	if err != nil {
		return fmt.Errorf("upsert entity %q: %w", e.Name, err)
	}
	return nil
}

// EntityByName returns the named entity, case-insensitively.
func (s *Store) EntityByName(ctx context.Context, name string) (Entity, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, kind, COALESCE(location_id, ''), description, stats, tags, hidden
		 FROM entities WHERE name = ? COLLATE NOCASE`, name)
	return scanEntity(row)
}

// LocationByName returns the named location, case-insensitively.
func (s *Store) LocationByName(ctx context.Context, name string) (Location, error) {
	var loc Location
	var tags string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, description, stats, tags FROM locations WHERE name = ? COLLATE NOCASE`,
		name).Scan(&loc.ID, &loc.Name, &loc.Description, &loc.Stats, &tags)
	if err == sql.ErrNoRows {
		return Location{}, fmt.Errorf("location %q not found", name)
	}
	if err != nil {
		return Location{}, fmt.Errorf("query location %q: %w", name, err)
	}
	loc.Tags = parseTags(tags)
	return loc, nil
}

// VisibleAt returns the non-hidden entities at a location.
func (s *Store) VisibleAt(ctx context.Context, locationID string) ([]Entity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, kind, COALESCE(location_id, ''), description, stats, tags, hidden
		 FROM entities WHERE location_id = ? AND hidden = 0 ORDER BY name`, locationID)
	if err != nil {
		return nil, fmt.Errorf("query entities at %s: %w", locationID, err)
	}
	defer rows.Close()

	var out []Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// MoveEntity places the named entity at the named destination.
func (s *Store) MoveEntity(ctx context.Context, entityName, destination string) error {
	loc, err := s.LocationByName(ctx, destination)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE entities SET location_id = ? WHERE name = ? COLLATE NOCASE`, loc.ID, entityName)
	if err != nil {
		return fmt.Errorf("move entity %q: %w", entityName, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("entity %q not found", entityName)
	}
	return nil
}

// EntityStat reads one value from an entity's stats document using a gjson
// path ("hp", "skills.stealth", ...).
func (s *Store) EntityStat(ctx context.Context, entityName, path string) (gjson.Result, error) {
	e, err := s.EntityByName(ctx, entityName)
	if err != nil {
		return gjson.Result{}, err
	}
	return gjson.Get(e.Stats, path), nil
}

// SetEntityStat writes one value into an entity's stats document.
func (s *Store) SetEntityStat(ctx context.Context, entityName, path string, value any) error {
	e, err := s.EntityByName(ctx, entityName)
	if err != nil {
		return err
	}
	updated, err := sjson.Set(e.Stats, path, value)
	if err != nil {
		return fmt.Errorf("set stat %s on %q: %w", path, entityName, err)
	}
	_, err = s.db.ExecContext(ctx, `UPDATE entities SET stats = ? WHERE id = ?`, updated, e.ID)
	if err != nil {
		return fmt.Errorf("persist stats for %q: %w", entityName, err)
	}
	return nil
}

// Snapshot assembles the actor's current view of the world.
func (s *Store) Snapshot(ctx context.Context, actorName string) (Snapshot, error) {
	actor, err := s.EntityByName(ctx, actorName)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{ActorStats: actor.Stats}
	if actor.LocationID == "" {
		return snap, nil
	}

	var tags string
	err = s.db.QueryRowContext(ctx,
		`SELECT name, description, tags FROM locations WHERE id = ?`, actor.LocationID).
		Scan(&snap.Location, &snap.Description, &tags)
	if err != nil {
		return Snapshot{}, fmt.Errorf("query actor location: %w", err)
	}
	snap.LocationTags = parseTags(tags)

	visible, err := s.VisibleAt(ctx, actor.LocationID)
	if err != nil {
		return Snapshot{}, err
	}
	for _, e := range visible {
		if strings.EqualFold(e.Name, actorName) {
			continue
		}
		snap.Present = append(snap.Present, fmt.Sprintf("%s (%s)", e.Name, e.Kind))
	}
	return snap, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (Entity, error) {
	var e Entity
	var tags string
	var hidden int
	err := row.Scan(&e.ID, &e.Name, &e.Kind, &e.LocationID, &e.Description, &e.Stats, &tags, &hidden)
	if err == sql.ErrNoRows {
		return Entity{}, fmt.Errorf("entity not found")
	}
	if err != nil {
		return Entity{}, fmt.Errorf("scan entity: %w", err)
	}
	e.Tags = parseTags(tags)
	e.Hidden = hidden != 0
	return e, nil
}

func parseTags(raw string) []string {
	var tags []string
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return nil
	}
	return tags
}

func emptyIfNil(tags []string) []string {
	if tags == nil {
		return []string{}
	}
	return tags
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
