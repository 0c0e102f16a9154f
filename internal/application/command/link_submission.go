// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eduhub/assessment-engine/internal/domain/assessment"
	"github.com/eduhub/assessment-engine/internal/domain/progress"
	"github.com/eduhub/assessment-engine/internal/domain/shared"
	"github.com/eduhub/assessment-engine/pkg/clock"
	"github.com/eduhub/assessment-engine/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// LINK SUBMISSION COMMAND
// Links a completed submission to the progress record of the matching
// scheduled period. Matching picks the open record of the same topic whose
// scheduled date is nearest to the submission time. The link is applied as
// a conditional write: a record links at most one submission, ever.
// ══════════════════════════════════════════════════════════════════════════════

// LinkOutcome classifies what happened to a single submission.
type LinkOutcome string

const (
	// OutcomeLinked - the submission was linked to a record.
	OutcomeLinked LinkOutcome = "linked"

	// OutcomeAlreadyLinked - the record already carries this submission
	// (idempotent replay, treated as success).
	OutcomeAlreadyLinked LinkOutcome = "already_linked"

	// OutcomeNoMatch - no open progress record matches the submission.
	OutcomeNoMatch LinkOutcome = "no_match"

	// OutcomeConflict - the matched record was taken by a different
	// submission or marked missed before our write landed.
	OutcomeConflict LinkOutcome = "conflict"
)

// LinkSubmissionCommand identifies a submission to link.
type LinkSubmissionCommand struct {
	// SubmissionID is the submission to process.
	SubmissionID string

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c LinkSubmissionCommand) Validate() error {
	if c.SubmissionID == "" {
		return errors.New("link_submission: submission_id is required")
	}
	return nil
}

// LinkSubmissionResult describes the outcome for one submission.
type LinkSubmissionResult struct {
	// Outcome classifies the result.
	Outcome LinkOutcome

	// SubmissionID is the processed submission.
	SubmissionID shared.SubmissionID

	// RecordID is the matched progress record, if any.
	RecordID string

	// Ambiguous reports that several records shared the nearest date and
	// the lowest period sequence was chosen.
	Ambiguous bool

	// LinkedAt is when the link was applied.
	LinkedAt time.Time

	// Events contains domain events generated.
	Events []shared.Event
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// LinkSubmissionHandler handles LinkSubmissionCommand.
type LinkSubmissionHandler struct {
	progressRepo   progress.Repository
	submissions    assessment.SubmissionSource
	eventPublisher shared.EventPublisher
	clock          clock.Clock
	log            *logger.Logger
}

// NewLinkSubmissionHandler creates a new LinkSubmissionHandler.
func NewLinkSubmissionHandler(
	progressRepo progress.Repository,
	submissions assessment.SubmissionSource,
	eventPublisher shared.EventPublisher,
	clk clock.Clock,
	log *logger.Logger,
) *LinkSubmissionHandler {
	if clk == nil {
		clk = clock.System{}
	}
	return &LinkSubmissionHandler{
		progressRepo:   progressRepo,
		submissions:    submissions,
		eventPublisher: eventPublisher,
		clock:          clk,
		log:            log.Named("link_submission"),
	}
}

// Handle links one submission to its matching progress record.
func (h *LinkSubmissionHandler) Handle(ctx context.Context, cmd LinkSubmissionCommand) (*LinkSubmissionResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	sub, err := h.submissions.GetByID(ctx, shared.SubmissionID(cmd.SubmissionID))
	if err != nil {
		return nil, fmt.Errorf("link_submission: get submission: %w", err)
	}
	if err := sub.Validate(); err != nil {
		return nil, fmt.Errorf("link_submission: %w", err)
	}

	return h.link(ctx, sub)
}

// link runs matching and the conditional write for a validated submission.
func (h *LinkSubmissionHandler) link(ctx context.Context, sub assessment.Submission) (*LinkSubmissionResult, error) {
	now := h.clock.Now()

	records, err := h.progressRepo.FindByStudentAndTopic(ctx, sub.StudentID, sub.LessonTopicID)
	if err != nil {
		return nil, fmt.Errorf("link_submission: find records: %w", err)
	}

	// Idempotent replay: the submission may already be linked somewhere.
	for _, r := range records {
		if r.LinkedTo(sub.ID) {
			return &LinkSubmissionResult{
				Outcome:      OutcomeAlreadyLinked,
				SubmissionID: sub.ID,
				RecordID:     r.ID,
			}, nil
		}
	}

	match := progress.NearestOpen(records, sub.SubmittedAt)
	if match.Record == nil {
		h.log.Warn("no open record matches submission",
			logger.SubmissionID(sub.ID.String()),
			logger.StudentID(sub.StudentID.String()),
			logger.TopicID(sub.LessonTopicID.String()),
		)
		return &LinkSubmissionResult{
			Outcome:      OutcomeNoMatch,
			SubmissionID: sub.ID,
		}, nil
	}
	if match.Ambiguous {
		// Several records at the nearest distance from the submission:
		// the lowest sequence wins, and the choice is recorded for audit.
		h.log.Warn("ambiguous match resolved to lowest period",
			logger.SubmissionID(sub.ID.String()),
			logger.ProgressID(match.Record.ID),
			logger.Period(match.Record.PeriodSequence),
			logger.Int("candidates", match.Candidates),
		)
	}

	applied, err := h.progressRepo.LinkSubmission(ctx, match.Record.ID, sub.ID, sub.SubmittedAt, sub.Score, now)
	if err != nil {
		return nil, fmt.Errorf("link_submission: conditional write: %w", err)
	}
	if !applied {
		// Lost the race: re-read to classify.
		return h.classifyLost(ctx, match.Record.ID, sub.ID)
	}

	// Replay the transition on the in-memory copy to produce the event.
	event, err := match.Record.Link(sub.ID, sub.SubmittedAt, sub.Score, now)
	if err != nil {
		return nil, fmt.Errorf("link_submission: transition replay: %w", err)
	}

	if h.eventPublisher != nil {
		if pubErr := h.eventPublisher.Publish(*event); pubErr != nil {
			h.log.Error("failed to publish linked event", logger.Err(pubErr))
		}
	}

	h.log.Info("submission linked",
		logger.SubmissionID(sub.ID.String()),
		logger.ProgressID(match.Record.ID),
		logger.Period(match.Record.PeriodSequence),
	)

	return &LinkSubmissionResult{
		Outcome:      OutcomeLinked,
		SubmissionID: sub.ID,
		RecordID:     match.Record.ID,
		Ambiguous:    match.Ambiguous,
		LinkedAt:     now,
		Events:       []shared.Event{*event},
	}, nil
}

// classifyLost re-reads a record after a rejected conditional write.
func (h *LinkSubmissionHandler) classifyLost(ctx context.Context, recordID string, submissionID shared.SubmissionID) (*LinkSubmissionResult, error) {
	current, err := h.progressRepo.GetByID(ctx, recordID)
	if err != nil {
		return nil, fmt.Errorf("link_submission: re-read after race: %w", err)
	}

	if current.LinkedTo(submissionID) {
		return &LinkSubmissionResult{
			Outcome:      OutcomeAlreadyLinked,
			SubmissionID: submissionID,
			RecordID:     recordID,
		}, nil
	}

	h.log.Warn("link rejected, record already terminal",
		logger.SubmissionID(submissionID.String()),
		logger.ProgressID(recordID),
		logger.String("terminal", string(current.Terminal)),
	)
	return &LinkSubmissionResult{
		Outcome:      OutcomeConflict,
		SubmissionID: submissionID,
		RecordID:     recordID,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// BATCH LINKING
// Processes all unlinked submissions with per-item error isolation:
// one failing submission never aborts the batch. Safe to re-run.
// ══════════════════════════════════════════════════════════════════════════════

// LinkAllCommand requests a batch linking pass.
type LinkAllCommand struct {
	// Limit caps the number of submissions per pass (0 = default).
	Limit int

	// CorrelationID for tracing.
	CorrelationID string
}

// DefaultLinkBatchLimit caps one batch pass.
const DefaultLinkBatchLimit = 500

// LinkBatchResult aggregates per-submission outcomes of a batch pass.
type LinkBatchResult struct {
	// Processed is the number of submissions examined.
	Processed int

	// Linked is the number of newly linked submissions.
	Linked int

	// AlreadyLinked counts idempotent replays.
	AlreadyLinked int

	// NoMatch counts submissions with no matching open record.
	NoMatch int

	// Conflicts counts lost conditional writes.
	Conflicts int

	// Errors maps submission ID to its processing error.
	Errors map[string]error

	// StartedAt and FinishedAt bound the pass.
	StartedAt  time.Time
	FinishedAt time.Time
}

// Failed reports the number of errored submissions.
func (r *LinkBatchResult) Failed() int {
	return len(r.Errors)
}

// LinkAllHandler handles LinkAllCommand.
type LinkAllHandler struct {
	linker      *LinkSubmissionHandler
	submissions assessment.SubmissionSource
	clock       clock.Clock
	log         *logger.Logger
}

// NewLinkAllHandler creates a new LinkAllHandler.
func NewLinkAllHandler(
	linker *LinkSubmissionHandler,
	submissions assessment.SubmissionSource,
	clk clock.Clock,
	log *logger.Logger,
) *LinkAllHandler {
	if clk == nil {
		clk = clock.System{}
	}
	return &LinkAllHandler{
		linker:      linker,
		submissions: submissions,
		clock:       clk,
		log:         log.Named("link_all"),
	}
}

// Handle links every unprocessed submission, isolating per-item failures.
func (h *LinkAllHandler) Handle(ctx context.Context, cmd LinkAllCommand) (*LinkBatchResult, error) {
	limit := cmd.Limit
	if limit <= 0 {
		limit = DefaultLinkBatchLimit
	}

	subs, err := h.submissions.FindUnprocessed(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("link_all: find unprocessed: %w", err)
	}

	result := h.linkBatch(ctx, subs)

	h.log.Info("batch linking finished",
		logger.Int("processed", result.Processed),
		logger.Int("linked", result.Linked),
		logger.Int("already_linked", result.AlreadyLinked),
		logger.Int("no_match", result.NoMatch),
		logger.Int("conflicts", result.Conflicts),
		logger.Int("failed", result.Failed()),
	)

	return result, nil
}

// HandleForStudent re-runs matching for one student's submissions.
// Used by the manual relink endpoint after schedule corrections.
func (h *LinkAllHandler) HandleForStudent(ctx context.Context, studentID shared.StudentID, limit int) (*LinkBatchResult, error) {
	if studentID.IsEmpty() {
		return nil, errors.New("link_all: student_id is required")
	}
	if limit <= 0 {
		limit = DefaultLinkBatchLimit
	}

	subs, err := h.submissions.FindByStudent(ctx, studentID, limit)
	if err != nil {
		return nil, fmt.Errorf("link_all: find by student: %w", err)
	}

	return h.linkBatch(ctx, subs), nil
}

func (h *LinkAllHandler) linkBatch(ctx context.Context, subs []assessment.Submission) *LinkBatchResult {
	result := &LinkBatchResult{
		Errors:    make(map[string]error),
		StartedAt: h.clock.Now(),
	}

	for _, sub := range subs {
		// A cancelled batch stops between items, never mid-write.
		if err := ctx.Err(); err != nil {
			result.Errors["batch"] = err
			break
		}

		result.Processed++

		if err := sub.Validate(); err != nil {
			result.Errors[sub.ID.String()] = err
			continue
		}

		itemResult, err := h.linker.link(ctx, sub)
		if err != nil {
			h.log.Error("submission failed, continuing batch",
				logger.SubmissionID(sub.ID.String()),
				logger.Err(err),
			)
			result.Errors[sub.ID.String()] = err
			continue
		}

		switch itemResult.Outcome {
		case OutcomeLinked:
			result.Linked++
		case OutcomeAlreadyLinked:
			result.AlreadyLinked++
		case OutcomeNoMatch:
			result.NoMatch++
		case OutcomeConflict:
			result.Conflicts++
		}
	}

	result.FinishedAt = h.clock.Now()
	return result
}
