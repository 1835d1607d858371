package database

import "database/sql"

// Migration represents a single schema migration step.
type Migration struct {
	Version     int
	Description string
	Up          func(tx *sql.Tx) error
}

// migrations is the ordered list of all schema migrations.
// Append new migrations to the end with incrementing Version numbers.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
CREATE TABLE IF NOT EXISTS events (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    description TEXT DEFAULT '',
    location_name TEXT DEFAULT '',
    lat REAL,
    lon REAL,
    location_confidence TEXT NOT NULL DEFAULT 'unknown'
        CHECK(location_confidence IN ('high', 'medium', 'low', 'unknown')),
    needs_review INTEGER DEFAULT 0,
    start_time TEXT,
    end_time TEXT,
    url TEXT DEFAULT '',
    source TEXT NOT NULL,
    category TEXT DEFAULT 'other',
    category_confidence REAL DEFAULT 0,
    category_method TEXT DEFAULT 'default'
        CHECK(category_method IN ('ai', 'keyword', 'default')),
    state TEXT NOT NULL DEFAULT 'pending'
        CHECK(state IN ('pending', 'published', 'rejected', 'archived')),
    notes TEXT DEFAULT '',
    created_at TEXT DEFAULT (datetime('now')),
    updated_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS event_history (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    event_id TEXT NOT NULL REFERENCES events(id),
    ts TEXT DEFAULT (datetime('now')),
    actor TEXT NOT NULL,
    from_state TEXT NOT NULL,
    to_state TEXT NOT NULL,
    reason TEXT
);

CREATE TABLE IF NOT EXISTS locations (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT UNIQUE NOT NULL,
    aliases TEXT DEFAULT '[]',
    lat REAL,
    lon REAL,
    kind TEXT NOT NULL DEFAULT 'location' CHECK(kind IN ('location', 'organizer')),
    verified INTEGER DEFAULT 0,
    notes TEXT DEFAULT '',
    created_at TEXT DEFAULT (datetime('now')),
    updated_at TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS run_reports (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    ran_at TEXT DEFAULT (datetime('now')),
    sources_attempted INTEGER DEFAULT 0,
    sources_succeeded INTEGER DEFAULT 0,
    events_found INTEGER DEFAULT 0,
    events_new INTEGER DEFAULT 0,
    duplicates INTEGER DEFAULT 0,
    source_errors TEXT DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_events_state ON events(state);
CREATE INDEX IF NOT EXISTS idx_events_source ON events(source);
CREATE INDEX IF NOT EXISTS idx_events_start ON events(start_time);
CREATE INDEX IF NOT EXISTS idx_history_event ON event_history(event_id);
CREATE INDEX IF NOT EXISTS idx_locations_name ON locations(name);
`)
			return err
		},
	},
}

// latestVersion returns the highest migration version number.
func latestVersion() int {
	if len(migrations) == 0 {
		return 0
	}
	return migrations[len(migrations)-1].Version
}
