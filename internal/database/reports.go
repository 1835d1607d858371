package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
)

// InsertRunReport persists the summary of a scrape invocation.
func (db *DB) InsertRunReport(r *RunReport) (int64, error) {
	errs := r.SourceErrors
	if errs == nil {
		errs = map[string]string{}
	}
	data, err := json.Marshal(errs)
	if err != nil {
		return 0, fmt.Errorf("encoding source errors: %w", err)
	}

	res, err := db.conn.Exec(
		`INSERT INTO run_reports (sources_attempted, sources_succeeded,
			events_found, events_new, duplicates, source_errors)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.SourcesAttempted, r.SourcesSucceeded, r.EventsFound, r.EventsNew,
		r.Duplicates, string(data),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetLastRunReport returns the most recent run report, or nil.
func (db *DB) GetLastRunReport() (*RunReport, error) {
	row := db.conn.QueryRow(
		`SELECT id, ran_at, sources_attempted, sources_succeeded,
			events_found, events_new, duplicates, source_errors
		FROM run_reports ORDER BY id DESC LIMIT 1`,
	)

	var r RunReport
	var errs string
	err := row.Scan(&r.ID, &r.RanAt, &r.SourcesAttempted, &r.SourcesSucceeded,
		&r.EventsFound, &r.EventsNew, &r.Duplicates, &errs)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(errs), &r.SourceErrors); err != nil {
		r.SourceErrors = nil
	}
	return &r, nil
}
