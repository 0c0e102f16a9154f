package postgres

import (
	"context"
	"fmt"

	"github.com/eduhub/assessment-engine/internal/domain/assessment"
	"github.com/eduhub/assessment-engine/internal/domain/shared"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// SUBMISSION SOURCE IMPLEMENTATION
// The assessment_submissions table is owned by the assessment module; the
// engine only reads it. There is no migration for it here, the schema is
// provisioned by the owning service.
// ══════════════════════════════════════════════════════════════════════════════

// SubmissionSource implements assessment.SubmissionSource for PostgreSQL.
type SubmissionSource struct {
	conn *Connection
}

// NewSubmissionSource creates a new SubmissionSource.
func NewSubmissionSource(conn *Connection) *SubmissionSource {
	return &SubmissionSource{conn: conn}
}

const submissionColumns = `
	s.id, s.student_id, s.lesson_topic_id, s.submitted_at, s.score
`

// GetByID returns a submission by ID.
func (r *SubmissionSource) GetByID(ctx context.Context, id shared.SubmissionID) (assessment.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM assessment_submissions s WHERE s.id = $1`

	row := r.conn.QueryRow(ctx, query, string(id))
	return scanSubmission(row)
}

// FindUnprocessed returns up to limit submissions not yet linked to any
// progress record, oldest first. The anti-join against the partial index on
// linked_submission_id keeps the pass incremental.
func (r *SubmissionSource) FindUnprocessed(ctx context.Context, limit int) ([]assessment.Submission, error) {
	query := `
		SELECT ` + submissionColumns + `
		FROM assessment_submissions s
		WHERE NOT EXISTS (
			SELECT 1 FROM progress_records p
			WHERE p.linked_submission_id = s.id
		)
		ORDER BY s.submitted_at
		LIMIT $1
	`

	rows, err := r.conn.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query unprocessed submissions: %w", err)
	}
	defer rows.Close()

	return scanSubmissions(rows)
}

// FindByStudent returns up to limit submissions of a student, oldest first.
func (r *SubmissionSource) FindByStudent(ctx context.Context, studentID shared.StudentID, limit int) ([]assessment.Submission, error) {
	query := `
		SELECT ` + submissionColumns + `
		FROM assessment_submissions s
		WHERE s.student_id = $1
		ORDER BY s.submitted_at
		LIMIT $2
	`

	rows, err := r.conn.Query(ctx, query, string(studentID), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query submissions by student: %w", err)
	}
	defer rows.Close()

	return scanSubmissions(rows)
}

func scanSubmission(row pgx.Row) (assessment.Submission, error) {
	var (
		sub       assessment.Submission
		id        string
		studentID string
		topicID   string
		score     *float64
	)

	err := row.Scan(&id, &studentID, &topicID, &sub.SubmittedAt, &score)
	if err != nil {
		if IsNoRows(err) {
			return assessment.Submission{}, assessment.ErrSubmissionNotFound
		}
		return assessment.Submission{}, fmt.Errorf("failed to scan submission: %w", err)
	}

	sub.ID = shared.SubmissionID(id)
	sub.StudentID = shared.StudentID(studentID)
	sub.LessonTopicID = shared.LessonTopicID(topicID)
	if score != nil {
		s := shared.Score(*score)
		sub.Score = &s
	}

	return sub, nil
}

func scanSubmissions(rows pgx.Rows) ([]assessment.Submission, error) {
	var subs []assessment.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}
