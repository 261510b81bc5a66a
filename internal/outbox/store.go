package outbox

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/isdelr/chirp-be/internal/models"
)

// Enqueue records an event inside tx. The caller commits it together with the
// change it describes.
func Enqueue(ctx context.Context, tx *sql.Tx, typ models.EventType, actorID, subjectID string) (models.Event, error) {
	createdAt := time.Now().UTC()
	ev := models.Event{
		ID:            uuid.New().String(),
		Type:          typ,
		ActorID:       actorID,
		SubjectID:     subjectID,
		Status:        models.EventPending,
		CreatedAt:     createdAt,
		NextAttemptAt: createdAt,
	}
	_, err := tx.ExecContext(ctx,
		"INSERT INTO outbox_events(id, type, actor_id, subject_id, status, attempts, created_at, next_attempt_at) VALUES(?, ?, ?, ?, ?, 0, ?, ?)",
		ev.ID, string(ev.Type), ev.ActorID, ev.SubjectID, string(ev.Status), ev.CreatedAt, ev.NextAttemptAt,
	)
	if err != nil {
		return models.Event{}, fmt.Errorf("failed to enqueue %s event: %w", typ, err)
	}
	return ev, nil
}

// pendingEvents returns up to limit pending events that are due at now,
// oldest first.
func pendingEvents(ctx context.Context, db *sql.DB, now time.Time, limit int) ([]models.Event, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, type, actor_id, subject_id, status, attempts, last_error, created_at, next_attempt_at
		FROM outbox_events
		WHERE status = ? AND next_attempt_at <= ?
		ORDER BY created_at, rowid
		LIMIT ?`, string(models.EventPending), now.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query outbox: %w", err)
	}
	defer rows.Close()

	var events []models.Event
	for rows.Next() {
		var ev models.Event
		err := rows.Scan(&ev.ID, &ev.Type, &ev.ActorID, &ev.SubjectID, &ev.Status, &ev.Attempts, &ev.LastError, &ev.CreatedAt, &ev.NextAttemptAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func markDone(ctx context.Context, db *sql.DB, id string, now time.Time) error {
	_, err := db.ExecContext(ctx,
		"UPDATE outbox_events SET status = ?, attempts = attempts + 1, last_error = NULL, processed_at = ? WHERE id = ?",
		string(models.EventDone), now.UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to mark event %s done: %w", id, err)
	}
	return nil
}

// markAttemptFailed records a failed attempt and returns the resulting status:
// still pending until nextAttempt while attempts remain, failed once
// maxAttempts is reached.
func markAttemptFailed(ctx context.Context, db *sql.DB, ev models.Event, cause error, maxAttempts int, nextAttempt time.Time) (models.EventStatus, error) {
	status := models.EventPending
	if ev.Attempts+1 >= maxAttempts {
		status = models.EventFailed
	}
	_, err := db.ExecContext(ctx,
		"UPDATE outbox_events SET status = ?, attempts = attempts + 1, last_error = ?, next_attempt_at = ? WHERE id = ?",
		string(status), cause.Error(), nextAttempt.UTC(), ev.ID,
	)
	if err != nil {
		return status, fmt.Errorf("failed to record attempt for event %s: %w", ev.ID, err)
	}
	return status, nil
}

// GetEvent loads one event by id.
func GetEvent(ctx context.Context, db *sql.DB, id string) (models.Event, error) {
	var ev models.Event
	err := db.QueryRowContext(ctx, `
		SELECT id, type, actor_id, subject_id, status, attempts, last_error, created_at, next_attempt_at, processed_at
		FROM outbox_events WHERE id = ?`, id,
	).Scan(&ev.ID, &ev.Type, &ev.ActorID, &ev.SubjectID, &ev.Status, &ev.Attempts, &ev.LastError, &ev.CreatedAt, &ev.NextAttemptAt, &ev.ProcessedAt)
	if err != nil {
		return models.Event{}, fmt.Errorf("failed to get event %s: %w", id, err)
	}
	return ev, nil
}
