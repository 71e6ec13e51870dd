package state

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// CellRecord is the persisted form of a dirty cell info. Non-dirty
// cell infos are never written; they regenerate from the world seed.
type CellRecord struct {
	Cell      uint64
	Faction   uint8
	TechLevel uint8
}

// Store persists dirty cell records and full session snapshots.
type Store struct {
	conn *sql.DB
	seed int64
}

// OpenStore opens (or creates) the session database at path.
func OpenStore(path string, worldSeed int64) (*Store, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	s := &Store{conn: conn, seed: worldSeed}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS cell_infos (
			world_seed INTEGER NOT NULL,
			cell_id    INTEGER NOT NULL,
			faction    INTEGER NOT NULL,
			tech_level INTEGER NOT NULL,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (world_seed, cell_id)
		)`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			world_seed INTEGER NOT NULL,
			frame      INTEGER NOT NULL,
			data       BLOB NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, stmt := range schema {
		if _, err := s.conn.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// SaveCell upserts a dirty cell record.
func (s *Store) SaveCell(rec CellRecord) error {
	_, err := s.conn.Exec(
		`INSERT INTO cell_infos (world_seed, cell_id, faction, tech_level)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(world_seed, cell_id) DO UPDATE SET
		   faction = excluded.faction,
		   tech_level = excluded.tech_level,
		   updated_at = CURRENT_TIMESTAMP`,
		s.seed, int64(rec.Cell), rec.Faction, rec.TechLevel)
	if err != nil {
		return fmt.Errorf("save cell %d: %w", rec.Cell, err)
	}
	return nil
}

// LoadCell fetches the persisted record for a cell. The second return
// is false when no deviation was ever recorded for it.
func (s *Store) LoadCell(cell uint64) (CellRecord, bool, error) {
	row := s.conn.QueryRow(
		`SELECT faction, tech_level FROM cell_infos
		 WHERE world_seed = ? AND cell_id = ?`,
		s.seed, int64(cell))
	var rec CellRecord
	rec.Cell = cell
	err := row.Scan(&rec.Faction, &rec.TechLevel)
	if err == sql.ErrNoRows {
		return CellRecord{}, false, nil
	}
	if err != nil {
		return CellRecord{}, false, fmt.Errorf("load cell %d: %w", cell, err)
	}
	return rec, true, nil
}

// SaveSnapshot stores a packetized session snapshot.
func (s *Store) SaveSnapshot(frame int64, data []byte) error {
	_, err := s.conn.Exec(
		`INSERT INTO snapshots (world_seed, frame, data) VALUES (?, ?, ?)`,
		s.seed, frame, data)
	if err != nil {
		return fmt.Errorf("save snapshot at frame %d: %w", frame, err)
	}
	return nil
}

// LoadLatestSnapshot returns the newest snapshot for this world seed.
func (s *Store) LoadLatestSnapshot() (frame int64, data []byte, err error) {
	row := s.conn.QueryRow(
		`SELECT frame, data FROM snapshots
		 WHERE world_seed = ? ORDER BY id DESC LIMIT 1`,
		s.seed)
	if err := row.Scan(&frame, &data); err != nil {
		if err == sql.ErrNoRows {
			return 0, nil, nil
		}
		return 0, nil, fmt.Errorf("load snapshot: %w", err)
	}
	return frame, data, nil
}
