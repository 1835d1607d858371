package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// ListLocations returns the full verified-locations/organizers store.
// The resolver loads it once per run; nothing is cached across runs.
func (db *DB) ListLocations() ([]Location, error) {
	rows, err := db.conn.Query(
		`SELECT id, name, aliases, lat, lon, kind, verified, notes, created_at, updated_at
		FROM locations ORDER BY name`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var locations []Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, err
		}
		locations = append(locations, *l)
	}
	return locations, rows.Err()
}

// GetLocationByName returns a location by exact name, or nil.
func (db *DB) GetLocationByName(name string) (*Location, error) {
	rows, err := db.conn.Query(
		`SELECT id, name, aliases, lat, lon, kind, verified, notes, created_at, updated_at
		FROM locations WHERE name = ?`, name,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanLocation(rows)
}

// InsertLocationCandidate writes a new unverified location for later
// editorial promotion. Returns the ID, or 0 when the name already exists.
func (db *DB) InsertLocationCandidate(name string, lat, lon *float64, kind string) (int64, error) {
	if kind == "" {
		kind = "location"
	}
	res, err := db.conn.Exec(
		"INSERT INTO locations (name, lat, lon, kind, verified) VALUES (?, ?, ?, ?, 0)",
		name, lat, lon, kind,
	)
	if err != nil {
		// Concurrent workers race on the same venue name; losing the
		// race is fine, anything else is not.
		if strings.Contains(err.Error(), "UNIQUE constraint") {
			return 0, nil
		}
		return 0, fmt.Errorf("inserting location %q: %w", name, err)
	}
	return res.LastInsertId()
}

// VerifyLocation promotes a candidate: sets coordinates, aliases and the
// verified flag.
func (db *DB) VerifyLocation(id int64, lat, lon float64, aliases []string) error {
	data, err := json.Marshal(aliases)
	if err != nil {
		return fmt.Errorf("encoding aliases: %w", err)
	}
	res, err := db.conn.Exec(
		`UPDATE locations SET lat = ?, lon = ?, aliases = ?, verified = 1,
			updated_at = datetime('now') WHERE id = ?`,
		lat, lon, string(data), id,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("location %d not found", id)
	}
	return nil
}

// UpdateLocationNotes replaces the free-text notes of a location.
func (db *DB) UpdateLocationNotes(id int64, notes string) error {
	_, err := db.conn.Exec(
		"UPDATE locations SET notes = ?, updated_at = datetime('now') WHERE id = ?",
		notes, id,
	)
	return err
}

func scanLocation(rows *sql.Rows) (*Location, error) {
	var l Location
	var aliases string
	var verified int
	if err := rows.Scan(&l.ID, &l.Name, &aliases, &l.Lat, &l.Lon, &l.Kind,
		&verified, &l.Notes, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	l.Verified = verified != 0
	if aliases != "" {
		if err := json.Unmarshal([]byte(aliases), &l.Aliases); err != nil {
			// Tolerate hand-edited alias columns
			l.Aliases = nil
		}
	}
	return &l, nil
}
