// Package postgres implements PostgreSQL persistence for the assessment engine.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/eduhub/assessment-engine/internal/domain/progress"
	"github.com/eduhub/assessment-engine/internal/domain/schedule"
	"github.com/eduhub/assessment-engine/internal/domain/shared"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS REPOSITORY IMPLEMENTATION
// Link and MarkMissed are compare-and-set UPDATEs: the WHERE clause encodes
// the required source state, RowsAffected tells the caller whether the
// transition was applied or lost to a concurrent writer.
// ══════════════════════════════════════════════════════════════════════════════

// ProgressRepository implements progress.Repository for PostgreSQL.
type ProgressRepository struct {
	conn *Connection
}

// NewProgressRepository creates a new ProgressRepository.
func NewProgressRepository(conn *Connection) *ProgressRepository {
	return &ProgressRepository{conn: conn}
}

const progressColumns = `
	id, student_id, lesson_topic_id, subject_id, subject_name,
	period_sequence, total_periods, scheduled_date, category,
	window_start, window_end, grace_end, terminal,
	linked_submission_id, completed_at, incomplete_reason,
	auto_marked_incomplete_at, score, created_at, updated_at
`

// ─────────────────────────────────────────────────────────────────────────────
// Reads
// ─────────────────────────────────────────────────────────────────────────────

// Create inserts a new progress record.
func (r *ProgressRepository) Create(ctx context.Context, rec *progress.Record) error {
	query := `
		INSERT INTO progress_records (
			id, student_id, lesson_topic_id, subject_id, subject_name,
			period_sequence, total_periods, scheduled_date, category,
			window_start, window_end, grace_end, terminal,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`

	_, err := r.conn.Exec(ctx, query,
		rec.ID,
		string(rec.StudentID),
		string(rec.LessonTopicID),
		string(rec.SubjectID),
		rec.SubjectName,
		rec.PeriodSequence,
		rec.TotalPeriodsInSequence,
		rec.ScheduledDate,
		string(rec.Category),
		rec.WindowStart,
		rec.WindowEnd,
		rec.GraceEnd,
		string(rec.Terminal),
		rec.CreatedAt,
		rec.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return progress.ErrRecordAlreadyExists
		}
		return fmt.Errorf("failed to create progress record: %w", err)
	}

	return nil
}

// GetByID returns a progress record by ID.
func (r *ProgressRepository) GetByID(ctx context.Context, id string) (*progress.Record, error) {
	query := `SELECT ` + progressColumns + ` FROM progress_records WHERE id = $1`

	row := r.conn.QueryRow(ctx, query, id)
	return scanProgressRecord(row)
}

// GetByKey returns a progress record by its unique key.
func (r *ProgressRepository) GetByKey(ctx context.Context, key progress.Key) (*progress.Record, error) {
	query := `
		SELECT ` + progressColumns + `
		FROM progress_records
		WHERE student_id = $1 AND lesson_topic_id = $2 AND period_sequence = $3
	`

	row := r.conn.QueryRow(ctx, query,
		string(key.StudentID), string(key.LessonTopicID), key.PeriodSequence)
	return scanProgressRecord(row)
}

// FindByStudentAndTopic returns all records of a student for a topic,
// ordered by period sequence.
func (r *ProgressRepository) FindByStudentAndTopic(ctx context.Context, studentID shared.StudentID, topicID shared.LessonTopicID) ([]*progress.Record, error) {
	query := `
		SELECT ` + progressColumns + `
		FROM progress_records
		WHERE student_id = $1 AND lesson_topic_id = $2
		ORDER BY period_sequence
	`

	rows, err := r.conn.Query(ctx, query, string(studentID), string(topicID))
	if err != nil {
		return nil, fmt.Errorf("failed to query records by topic: %w", err)
	}
	defer rows.Close()

	return scanProgressRecords(rows)
}

// FindByStudentBetween returns records of a student with scheduled date
// in [from, to), ordered by date and period sequence.
func (r *ProgressRepository) FindByStudentBetween(ctx context.Context, studentID shared.StudentID, from, to time.Time) ([]*progress.Record, error) {
	query := `
		SELECT ` + progressColumns + `
		FROM progress_records
		WHERE student_id = $1 AND scheduled_date >= $2 AND scheduled_date < $3
		ORDER BY scheduled_date, period_sequence
	`

	rows, err := r.conn.Query(ctx, query, string(studentID), from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query records by date range: %w", err)
	}
	defer rows.Close()

	return scanProgressRecords(rows)
}

// FindUnlinkedByStudent returns open records of a student without a linked
// submission, ordered by scheduled date.
func (r *ProgressRepository) FindUnlinkedByStudent(ctx context.Context, studentID shared.StudentID) ([]*progress.Record, error) {
	query := `
		SELECT ` + progressColumns + `
		FROM progress_records
		WHERE student_id = $1
		  AND terminal = 'NONE'
		  AND linked_submission_id IS NULL
		  AND incomplete_reason IS NULL
		ORDER BY scheduled_date, period_sequence
	`

	rows, err := r.conn.Query(ctx, query, string(studentID))
	if err != nil {
		return nil, fmt.Errorf("failed to query unlinked records: %w", err)
	}
	defer rows.Close()

	return scanProgressRecords(rows)
}

// FindExpired returns up to limit open records whose grace period lapsed
// before cutoff, oldest first.
func (r *ProgressRepository) FindExpired(ctx context.Context, cutoff time.Time, limit int) ([]*progress.Record, error) {
	query := `
		SELECT ` + progressColumns + `
		FROM progress_records
		WHERE terminal = 'NONE'
		  AND linked_submission_id IS NULL
		  AND incomplete_reason IS NULL
		  AND grace_end < $1
		ORDER BY grace_end
		LIMIT $2
	`

	rows, err := r.conn.Query(ctx, query, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query expired records: %w", err)
	}
	defer rows.Close()

	return scanProgressRecords(rows)
}

// ─────────────────────────────────────────────────────────────────────────────
// Conditional transitions
// ─────────────────────────────────────────────────────────────────────────────

// LinkSubmission atomically links a submission to a record. The update
// applies only while the record has no link and no incomplete reason;
// applied=false means a concurrent writer got there first.
func (r *ProgressRepository) LinkSubmission(ctx context.Context, recordID string, submissionID shared.SubmissionID, completedAt time.Time, score *shared.Score, now time.Time) (bool, error) {
	query := `
		UPDATE progress_records
		SET linked_submission_id = $2,
		    completed_at = $3,
		    score = $4,
		    terminal = 'COMPLETED',
		    updated_at = $5
		WHERE id = $1
		  AND linked_submission_id IS NULL
		  AND incomplete_reason IS NULL
	`

	var scoreVal *float64
	if score != nil {
		v := float64(*score)
		scoreVal = &v
	}

	tag, err := r.conn.Exec(ctx, query,
		recordID, string(submissionID), completedAt.UTC(), scoreVal, now.UTC())
	if err != nil {
		// The partial unique index on linked_submission_id guards the
		// one-record-per-submission invariant across records.
		if IsUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to link submission: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// MarkMissed atomically marks a record missed. The update applies only
// while the record is still open; applied=false means it was completed
// or already marked by a concurrent writer.
func (r *ProgressRepository) MarkMissed(ctx context.Context, recordID string, reason progress.IncompleteReason, markedAt time.Time) (bool, error) {
	query := `
		UPDATE progress_records
		SET incomplete_reason = $2,
		    auto_marked_incomplete_at = $3,
		    terminal = 'MISSED',
		    updated_at = $3
		WHERE id = $1
		  AND terminal = 'NONE'
		  AND linked_submission_id IS NULL
		  AND incomplete_reason IS NULL
	`

	tag, err := r.conn.Exec(ctx, query, recordID, string(reason), markedAt.UTC())
	if err != nil {
		return false, fmt.Errorf("failed to mark record missed: %w", err)
	}

	return tag.RowsAffected() == 1, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Maintenance
// ─────────────────────────────────────────────────────────────────────────────

// DeleteOpenByStudentBetween removes open records of a student with
// scheduled date in [from, to). Terminal records survive: schedule
// regeneration never erases completion or miss history.
func (r *ProgressRepository) DeleteOpenByStudentBetween(ctx context.Context, studentID shared.StudentID, from, to time.Time) (int64, error) {
	query := `
		DELETE FROM progress_records
		WHERE student_id = $1
		  AND scheduled_date >= $2 AND scheduled_date < $3
		  AND terminal = 'NONE'
		  AND linked_submission_id IS NULL
		  AND incomplete_reason IS NULL
	`

	tag, err := r.conn.Exec(ctx, query, string(studentID), from, to)
	if err != nil {
		return 0, fmt.Errorf("failed to delete open records: %w", err)
	}

	return tag.RowsAffected(), nil
}

// CountByTerminal returns the number of records in each terminal state.
func (r *ProgressRepository) CountByTerminal(ctx context.Context) (map[progress.Terminal]int64, error) {
	query := `SELECT terminal, COUNT(*) FROM progress_records GROUP BY terminal`

	rows, err := r.conn.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}
	defer rows.Close()

	counts := make(map[progress.Terminal]int64)
	for rows.Next() {
		var terminal string
		var count int64
		if err := rows.Scan(&terminal, &count); err != nil {
			return nil, fmt.Errorf("failed to scan count row: %w", err)
		}
		counts[progress.Terminal(terminal)] = count
	}

	return counts, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Scanning
// ─────────────────────────────────────────────────────────────────────────────

func scanProgressRecord(row pgx.Row) (*progress.Record, error) {
	var (
		rec              progress.Record
		studentID        string
		topicID          string
		subjectID        string
		category         string
		terminal         string
		linkedSubmission *string
		incompleteReason *string
		score            *float64
	)

	err := row.Scan(
		&rec.ID,
		&studentID,
		&topicID,
		&subjectID,
		&rec.SubjectName,
		&rec.PeriodSequence,
		&rec.TotalPeriodsInSequence,
		&rec.ScheduledDate,
		&category,
		&rec.WindowStart,
		&rec.WindowEnd,
		&rec.GraceEnd,
		&terminal,
		&linkedSubmission,
		&rec.CompletedAt,
		&incompleteReason,
		&rec.AutoMarkedIncompleteAt,
		&score,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		if IsNoRows(err) {
			return nil, progress.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to scan progress record: %w", err)
	}

	rec.StudentID = shared.StudentID(studentID)
	rec.LessonTopicID = shared.LessonTopicID(topicID)
	rec.SubjectID = shared.SubjectID(subjectID)
	rec.Category = schedule.StudentCategory(category)
	rec.Terminal = progress.Terminal(terminal)
	rec.ScheduledDate = rec.ScheduledDate.UTC()

	if linkedSubmission != nil {
		id := shared.SubmissionID(*linkedSubmission)
		rec.LinkedSubmissionID = &id
	}
	if incompleteReason != nil {
		reason := progress.IncompleteReason(*incompleteReason)
		rec.IncompleteReason = &reason
	}
	if score != nil {
		s := shared.Score(*score)
		rec.Score = &s
	}

	return &rec, nil
}

func scanProgressRecords(rows pgx.Rows) ([]*progress.Record, error) {
	var records []*progress.Record
	for rows.Next() {
		rec, err := scanProgressRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
