package queue

import (
	"fmt"
	"path/filepath"
	"time"

	"eventpipe/internal/database"
)

// ArchiveActor marks automatic archival transitions in the history so
// they are distinguishable from editorial decisions.
const ArchiveActor = "system:archiver"

// legalTransitions is the complete state machine. Anything not listed
// is rejected, in particular published->pending and rejected->published.
var legalTransitions = map[string][]string{
	database.StatePending:   {database.StatePublished, database.StateRejected},
	database.StatePublished: {database.StateArchived},
	database.StateRejected:  {database.StatePending},
	database.StateArchived:  {},
}

// BulkResult reports a bulk transition. Failures are per event; one bad
// event never aborts the rest.
type BulkResult struct {
	Transitioned []string
	Failed       map[string]error
}

// Queue wraps the event store with the curation state machine.
type Queue struct {
	db *database.DB
}

func New(db *database.DB) *Queue {
	return &Queue{db: db}
}

// Publish moves a pending event to published.
func (q *Queue) Publish(id, actor string) error {
	return q.transition(id, database.StatePublished, actor, nil)
}

// Reject moves a pending event to rejected. The reason is mandatory and
// lands in the history entry.
func (q *Queue) Reject(id, actor, reason string) error {
	if reason == "" {
		return fmt.Errorf("rejecting %s: a reason is required", id)
	}
	return q.transition(id, database.StateRejected, actor, &reason)
}

// Restore moves a rejected event back to pending. This is the only way
// a rejected event re-enters the queue.
func (q *Queue) Restore(id, actor string) error {
	return q.transition(id, database.StatePending, actor, nil)
}

// transition looks up the event, validates the move against the state
// machine, and applies it atomically.
func (q *Queue) transition(id, to, actor string, reason *string) error {
	e, err := q.db.GetEvent(id)
	if err != nil {
		return err
	}
	if e == nil {
		return fmt.Errorf("event %s not found", id)
	}
	if !Allowed(e.State, to) {
		return fmt.Errorf("event %s: transition %s -> %s is not allowed", id, e.State, to)
	}
	return q.db.TransitionEvent(id, e.State, to, actor, reason)
}

// Allowed reports whether the state machine permits from -> to.
func Allowed(from, to string) bool {
	for _, t := range legalTransitions[from] {
		if t == to {
			return true
		}
	}
	return false
}

// PublishMatching publishes every pending event matching the glob
// pattern. Patterns match the event ID or the source-qualified form
// "<source>_<id>", so operators can sweep a whole source without
// knowing hash IDs. Events are processed independently; the result
// lists both successes and per-event failures.
func (q *Queue) PublishMatching(pattern, actor string) (*BulkResult, error) {
	return q.bulk(pattern, func(id string) error {
		return q.Publish(id, actor)
	})
}

// RejectMatching rejects every pending event matching the glob pattern
// (ID or source-qualified, like PublishMatching), all with the same
// reason.
func (q *Queue) RejectMatching(pattern, actor, reason string) (*BulkResult, error) {
	return q.bulk(pattern, func(id string) error {
		return q.Reject(id, actor, reason)
	})
}

func (q *Queue) bulk(pattern string, apply func(id string) error) (*BulkResult, error) {
	if _, err := filepath.Match(pattern, ""); err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}

	pending, err := q.db.ListEventsByState(database.StatePending)
	if err != nil {
		return nil, err
	}

	result := &BulkResult{Failed: make(map[string]error)}
	for _, e := range pending {
		ok, _ := filepath.Match(pattern, e.ID)
		if !ok {
			ok, _ = filepath.Match(pattern, e.Source+"_"+e.ID)
		}
		if !ok {
			continue
		}
		if err := apply(e.ID); err != nil {
			result.Failed[e.ID] = err
			continue
		}
		result.Transitioned = append(result.Transitioned, e.ID)
	}
	return result, nil
}

// ArchiveEnded moves published events whose end time (or start time,
// when no end is known) lies in the past to archived. Returns the IDs
// archived.
func (q *Queue) ArchiveEnded(now time.Time) ([]string, error) {
	ended, err := q.db.ListPublishedEnded(now.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}

	var archived []string
	for _, e := range ended {
		err := q.db.TransitionEvent(e.ID, database.StatePublished, database.StateArchived, ArchiveActor, nil)
		if err != nil {
			return archived, fmt.Errorf("archiving %s: %w", e.ID, err)
		}
		archived = append(archived, e.ID)
	}
	return archived, nil
}
