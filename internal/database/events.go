package database

import (
	"database/sql"
	"fmt"
)

const eventColumns = `id, title, description, location_name, lat, lon,
	location_confidence, needs_review, start_time, end_time, url, source,
	category, category_confidence, category_method, state, notes,
	created_at, updated_at`

// InsertEvent inserts a new event in the pending state and records the
// ingestion history entry. The caller is responsible for having checked
// that no event with this ID exists.
func (db *DB) InsertEvent(e *Event) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO events (id, title, description, location_name, lat, lon,
			location_confidence, needs_review, start_time, end_time, url, source,
			category, category_confidence, category_method, state, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Title, e.Description, e.LocationName, e.Lat, e.Lon,
		e.LocationConfidence, boolToInt(e.NeedsReview), e.StartTime, e.EndTime,
		e.URL, e.Source, e.Category, e.CategoryConfidence, e.CategoryMethod,
		StatePending, e.Notes,
	)
	if err != nil {
		return fmt.Errorf("inserting event %s: %w", e.ID, err)
	}

	_, err = tx.Exec(
		`INSERT INTO event_history (event_id, actor, from_state, to_state) VALUES (?, 'scraper', '', ?)`,
		e.ID, StatePending,
	)
	if err != nil {
		return fmt.Errorf("recording ingestion of %s: %w", e.ID, err)
	}

	return tx.Commit()
}

// GetEvent returns a single event by ID, or nil if it does not exist.
func (db *DB) GetEvent(id string) (*Event, error) {
	row := db.conn.QueryRow("SELECT "+eventColumns+" FROM events WHERE id = ?", id)
	e, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// UpdateEvent writes back all mutable fields of an event (used after a
// fill-missing merge). State is not touched here; use TransitionEvent.
func (db *DB) UpdateEvent(e *Event) error {
	_, err := db.conn.Exec(
		`UPDATE events SET title = ?, description = ?, location_name = ?,
			lat = ?, lon = ?, location_confidence = ?, needs_review = ?,
			start_time = ?, end_time = ?, url = ?, category = ?,
			category_confidence = ?, category_method = ?, notes = ?,
			updated_at = datetime('now')
		WHERE id = ?`,
		e.Title, e.Description, e.LocationName, e.Lat, e.Lon,
		e.LocationConfidence, boolToInt(e.NeedsReview), e.StartTime, e.EndTime,
		e.URL, e.Category, e.CategoryConfidence, e.CategoryMethod, e.Notes, e.ID,
	)
	return err
}

// ListEventsByState returns all events in the given state, newest first.
func (db *DB) ListEventsByState(state string) ([]Event, error) {
	rows, err := db.conn.Query(
		"SELECT "+eventColumns+" FROM events WHERE state = ? ORDER BY created_at DESC, id",
		state,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListPublishedEnded returns published events whose end time (or start
// time, when no end time is known) lies before the given RFC3339 instant.
// These are the candidates for the nightly archive sweep.
func (db *DB) ListPublishedEnded(now string) ([]Event, error) {
	rows, err := db.conn.Query(
		`SELECT `+eventColumns+` FROM events
		WHERE state = ?
		AND ((end_time IS NOT NULL AND end_time < ?)
			OR (end_time IS NULL AND start_time IS NOT NULL AND start_time < ?))
		ORDER BY start_time`,
		StatePublished, now, now,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanEvents(rows)
}

// TransitionEvent atomically moves an event from one state to another and
// appends the history entry. It fails without side effects when the event
// is missing or not in the expected state.
func (db *DB) TransitionEvent(id, from, to, actor string, reason *string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		"UPDATE events SET state = ?, updated_at = datetime('now') WHERE id = ? AND state = ?",
		to, id, from,
	)
	if err != nil {
		return fmt.Errorf("transitioning %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		cur, getErr := db.GetEvent(id)
		if getErr == nil && cur == nil {
			return fmt.Errorf("event %s not found", id)
		}
		if getErr == nil {
			return fmt.Errorf("event %s is %s, not %s", id, cur.State, from)
		}
		return fmt.Errorf("event %s not in state %s", id, from)
	}

	_, err = tx.Exec(
		"INSERT INTO event_history (event_id, actor, from_state, to_state, reason) VALUES (?, ?, ?, ?, ?)",
		id, actor, from, to, reason,
	)
	if err != nil {
		return fmt.Errorf("recording transition of %s: %w", id, err)
	}

	return tx.Commit()
}

// GetHistory returns the transition history of an event, oldest first.
func (db *DB) GetHistory(eventID string) ([]HistoryEntry, error) {
	rows, err := db.conn.Query(
		`SELECT id, event_id, ts, actor, from_state, to_state, reason
		FROM event_history WHERE event_id = ? ORDER BY id`, eventID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []HistoryEntry
	for rows.Next() {
		var h HistoryEntry
		if err := rows.Scan(&h.ID, &h.EventID, &h.Timestamp, &h.Actor,
			&h.FromState, &h.ToState, &h.Reason); err != nil {
			return nil, err
		}
		entries = append(entries, h)
	}
	return entries, rows.Err()
}

func scanEvents(rows *sql.Rows) ([]Event, error) {
	var events []Event
	for rows.Next() {
		var e Event
		var review int
		if err := rows.Scan(&e.ID, &e.Title, &e.Description, &e.LocationName,
			&e.Lat, &e.Lon, &e.LocationConfidence, &review, &e.StartTime,
			&e.EndTime, &e.URL, &e.Source, &e.Category, &e.CategoryConfidence,
			&e.CategoryMethod, &e.State, &e.Notes, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, err
		}
		e.NeedsReview = review != 0
		events = append(events, e)
	}
	return events, rows.Err()
}

func scanEvent(row *sql.Row) (*Event, error) {
	var e Event
	var review int
	if err := row.Scan(&e.ID, &e.Title, &e.Description, &e.LocationName,
		&e.Lat, &e.Lon, &e.LocationConfidence, &review, &e.StartTime,
		&e.EndTime, &e.URL, &e.Source, &e.Category, &e.CategoryConfidence,
		&e.CategoryMethod, &e.State, &e.Notes, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return nil, err
	}
	e.NeedsReview = review != 0
	return &e, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
