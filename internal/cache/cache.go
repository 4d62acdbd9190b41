// Package cache persists the entity partitions and the provenance file IDs
// of a scope in SQLite so an unchanged project can be restored without
// parsing. Entries are keyed by the fingerprint of the files a load reads.
package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/jward/modelsync/internal/graph"
	"github.com/jward/modelsync/internal/provenance"
	"github.com/jward/modelsync/internal/reconcile"
)

const (
	fingerprintKey = "fingerprint"
	shadowedKey    = "shadowed"
)

// Cache is the SQLite snapshot cache.
type Cache struct {
	db *sql.DB
}

// Open opens a SQLite database at dbPath with WAL mode enabled and creates
// the tables if needed.
func Open(dbPath string) (*Cache, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping cache: %w", err)
	}
	c := &Cache{db: db}
	if err := c.Migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

// Close closes the underlying database connection.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Migrate creates the tables. Idempotent.
func (c *Cache) Migrate() error {
	if _, err := c.db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS metadata (
  key             TEXT PRIMARY KEY,
  value           TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS entities (
  partition       TEXT NOT NULL,
  ordinal         INTEGER NOT NULL,
  parent_ordinal  INTEGER,
  kind            TEXT NOT NULL,
  variant         TEXT NOT NULL DEFAULT '',
  source          TEXT NOT NULL,
  data            TEXT NOT NULL,
  PRIMARY KEY (partition, ordinal)
);

CREATE TABLE IF NOT EXISTS file_ids (
  dir             TEXT NOT NULL,
  id              INTEGER NOT NULL,
  name            TEXT NOT NULL,
  PRIMARY KEY (dir, id)
);
`

// GetMetadata returns the value stored under key.
func (c *Cache) GetMetadata(key string) (string, bool, error) {
	var v string
	err := c.db.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get metadata %q: %w", key, err)
	}
	return v, true, nil
}

// SetMetadata stores value under key.
func (c *Cache) SetMetadata(key, value string) error {
	_, err := c.db.Exec(`INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("set metadata %q: %w", key, err)
	}
	return nil
}

// Fingerprint returns the fingerprint of the stored entry, if any.
func (c *Cache) Fingerprint() (string, bool, error) {
	return c.GetMetadata(fingerprintKey)
}

// Entry is one cached scope.
type Entry struct {
	State reconcile.State
	Files []provenance.Entry
	// Shadowed lists the files whose entity lost its symbolic ID to another
	// file when the partitions were built.
	Shadowed []reconcile.Shadow
}

// Index rebuilds the provenance index of the entry.
func (e Entry) Index() *provenance.Index {
	return provenance.Restore(e.Files)
}

var partitions = []string{"main", "unloaded", "orphan"}

func partitionsOf(st reconcile.State) []*graph.Snapshot {
	return []*graph.Snapshot{st.Main, st.Unloaded, st.Orphan}
}

// Save replaces the stored entry within a single transaction.
func (c *Cache) Save(fingerprint string, entry Entry) error {
	shadowed, err := json.Marshal(entry.Shadowed)
	if err != nil {
		return fmt.Errorf("save cache: shadowed files: %w", err)
	}

	tx, err := c.db.Begin()
	if err != nil {
		return fmt.Errorf("save cache: begin: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"entities", "file_ids"} {
		if _, err := tx.Exec(`DELETE FROM ` + table); err != nil {
			return fmt.Errorf("save cache: clear %s: %w", table, err)
		}
	}

	insert, err := tx.Prepare(`INSERT INTO entities
		(partition, ordinal, parent_ordinal, kind, variant, source, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("save cache: prepare: %w", err)
	}
	defer insert.Close()

	for i, snap := range partitionsOf(entry.State) {
		name := partitions[i]
		if snap == nil {
			continue
		}
		err := walk(snap, func(ordinal int, parent *int, e graph.Entity) error {
			variant, raw, err := graph.EncodeData(e.Data)
			if err != nil {
				return err
			}
			src, err := json.Marshal(e.Source)
			if err != nil {
				return err
			}
			_, err = insert.Exec(name, ordinal, parent, e.Kind().String(), variant, string(src), string(raw))
			return err
		})
		if err != nil {
			return fmt.Errorf("save cache: %s partition: %w", name, err)
		}
	}

	for _, f := range entry.Files {
		if _, err := tx.Exec(`INSERT INTO file_ids (dir, id, name) VALUES (?, ?, ?)`, f.Dir, f.ID, f.Name); err != nil {
			return fmt.Errorf("save cache: file %s/%s: %w", f.Dir, f.Name, err)
		}
	}
	for _, kv := range [][2]string{{shadowedKey, string(shadowed)}, {fingerprintKey, fingerprint}} {
		if _, err := tx.Exec(`INSERT INTO metadata (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, kv[0], kv[1]); err != nil {
			return fmt.Errorf("save cache: %s: %w", kv[0], err)
		}
	}
	return tx.Commit()
}

// walk visits the entities of snap parents first, roots in ID order and
// children in their stored order. Ordinals are assigned in visit order.
func walk(snap *graph.Snapshot, fn func(ordinal int, parent *int, e graph.Entity) error) error {
	next := 0
	var visit func(id graph.EntityID, parent *int) error
	visit = func(id graph.EntityID, parent *int) error {
		e, _ := snap.Get(id)
		ordinal := next
		next++
		if err := fn(ordinal, parent, e); err != nil {
			return err
		}
		for _, child := range snap.Children(id) {
			if err := visit(child, &ordinal); err != nil {
				return err
			}
		}
		return nil
	}
	for _, e := range graph.Roots(snap) {
		if err := visit(e.ID, nil); err != nil {
			return err
		}
	}
	return nil
}

// Load returns the stored entry if its fingerprint equals fingerprint.
func (c *Cache) Load(fingerprint string) (Entry, bool, error) {
	stored, ok, err := c.Fingerprint()
	if err != nil || !ok || stored != fingerprint {
		return Entry{}, false, err
	}

	var entry Entry
	builders := []*graph.Builder{graph.New(), graph.New(), graph.New()}
	for i, name := range partitions {
		if err := c.loadPartition(name, builders[i]); err != nil {
			return Entry{}, false, err
		}
	}
	entry.State = reconcile.State{
		Main:     builders[0].Freeze(),
		Unloaded: builders[1].Freeze(),
		Orphan:   builders[2].Freeze(),
	}

	rows, err := c.db.Query(`SELECT dir, id, name FROM file_ids ORDER BY dir, id`)
	if err != nil {
		return Entry{}, false, fmt.Errorf("load cache: file ids: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var f provenance.Entry
		if err := rows.Scan(&f.Dir, &f.ID, &f.Name); err != nil {
			return Entry{}, false, fmt.Errorf("load cache: scan file id: %w", err)
		}
		entry.Files = append(entry.Files, f)
	}
	if err := rows.Err(); err != nil {
		return Entry{}, false, fmt.Errorf("load cache: file ids: %w", err)
	}

	raw, ok, err := c.GetMetadata(shadowedKey)
	if err != nil {
		return Entry{}, false, fmt.Errorf("load cache: %w", err)
	}
	if ok {
		if err := json.Unmarshal([]byte(raw), &entry.Shadowed); err != nil {
			return Entry{}, false, fmt.Errorf("load cache: shadowed files: %w", err)
		}
	}
	return entry, true, nil
}

func (c *Cache) loadPartition(name string, b *graph.Builder) error {
	rows, err := c.db.Query(`SELECT ordinal, parent_ordinal, kind, variant, source, data
		FROM entities WHERE partition = ? ORDER BY ordinal`, name)
	if err != nil {
		return fmt.Errorf("load cache: %s partition: %w", name, err)
	}
	defer rows.Close()

	ids := make(map[int]graph.EntityID)
	for rows.Next() {
		var (
			ordinal           int
			parent            sql.NullInt64
			kindName, variant string
			src, raw          string
		)
		if err := rows.Scan(&ordinal, &parent, &kindName, &variant, &src, &raw); err != nil {
			return fmt.Errorf("load cache: scan entity: %w", err)
		}
		kind, err := graph.ParseKind(kindName)
		if err != nil {
			return fmt.Errorf("load cache: %w", err)
		}
		data, err := graph.DecodeData(kind, variant, []byte(raw))
		if err != nil {
			return fmt.Errorf("load cache: %w", err)
		}
		var source graph.EntitySource
		if err := json.Unmarshal([]byte(src), &source); err != nil {
			return fmt.Errorf("load cache: source: %w", err)
		}
		var parentID graph.EntityID
		if parent.Valid {
			p, ok := ids[int(parent.Int64)]
			if !ok {
				return fmt.Errorf("load cache: entity %d: parent %d not stored before it", ordinal, parent.Int64)
			}
			parentID = p
		}
		id, err := b.Add(parentID, source, data)
		if err != nil {
			return fmt.Errorf("load cache: entity %d: %w", ordinal, err)
		}
		ids[ordinal] = id
	}
	return rows.Err()
}
