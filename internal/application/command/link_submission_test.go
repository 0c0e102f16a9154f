package command

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduhub/assessment-engine/internal/domain/assessment"
	"github.com/eduhub/assessment-engine/internal/domain/progress"
	"github.com/eduhub/assessment-engine/internal/domain/schedule"
	"github.com/eduhub/assessment-engine/internal/domain/shared"
	"github.com/eduhub/assessment-engine/internal/infrastructure/persistence/memory"
	"github.com/eduhub/assessment-engine/pkg/clock"
	"github.com/eduhub/assessment-engine/pkg/logger"
)

const (
	studentA    = shared.StudentID("5f1c9d2a-3b4e-4c5d-8e9f-0a1b2c3d4e5f")
	topicMath   = shared.LessonTopicID("7a2b3c4d-5e6f-4a8b-9c0d-1e2f3a4b5c6d")
	subjectMath = shared.SubjectID("9c0d1e2f-3a4b-4c6d-8e0f-2a3b4c5d6e7f")
	subOne      = shared.SubmissionID("1b2c3d4e-5f6a-4b8c-9d0e-1f2a3b4c5d6e")
	subTwo      = shared.SubmissionID("2c3d4e5f-6a7b-4c8d-9e0f-2a3b4c5d6e7f")
)

// capturingPublisher collects published events for assertions.
type capturingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *capturingPublisher) Publish(event shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturingPublisher) Types() []shared.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	types := make([]shared.EventType, 0, len(p.events))
	for _, e := range p.events {
		types = append(types, e.EventType())
	}
	return types
}

func seedRecord(t *testing.T, repo *memory.ProgressRepository, periodSeq int, date time.Time) *progress.Record {
	t.Helper()

	slot := schedule.Slot{
		StudentID:              studentA,
		LessonTopicID:          topicMath,
		SubjectID:              subjectMath,
		SubjectName:            "Mathematics",
		PeriodSequence:         periodSeq,
		TotalPeriodsInSequence: 3,
		ScheduledDate:          date,
		StartTime:              schedule.TimeOfDay{Hour: 9, Minute: 0},
		EndTime:                schedule.TimeOfDay{Hour: 9, Minute: 45},
		Category:               schedule.CategorySchool,
	}
	window, err := schedule.NewCalculator(30 * time.Minute).Compute(slot)
	require.NoError(t, err)

	rec := progress.NewRecord(slot, window, date)
	require.NoError(t, repo.Create(context.Background(), rec))
	return rec
}

func submission(id shared.SubmissionID, submittedAt time.Time) assessment.Submission {
	return assessment.Submission{
		ID:            id,
		StudentID:     studentA,
		LessonTopicID: topicMath,
		SubmittedAt:   submittedAt,
	}
}

func TestLinkSubmission_Links(t *testing.T) {
	repo := memory.NewProgressRepository()
	source := memory.NewSubmissionSource()
	pub := &capturingPublisher{}
	clk := clock.NewFake(time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC))

	jan10 := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	rec := seedRecord(t, repo, 1, jan10)
	source.Add(submission(subOne, jan10.Add(9*time.Hour+20*time.Minute)))

	h := NewLinkSubmissionHandler(repo, source, pub, clk, logger.Default())

	result, err := h.Handle(context.Background(), LinkSubmissionCommand{SubmissionID: subOne.String()})
	require.NoError(t, err)
	assert.Equal(t, OutcomeLinked, result.Outcome)
	assert.Equal(t, rec.ID, result.RecordID)

	stored, err := repo.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.True(t, stored.LinkedTo(subOne))
	assert.Equal(t, progress.TerminalCompleted, stored.Terminal)

	assert.Contains(t, pub.Types(), shared.EventSubmissionLinked)
}

func TestLinkSubmission_IdempotentReplay(t *testing.T) {
	repo := memory.NewProgressRepository()
	source := memory.NewSubmissionSource()
	clk := clock.NewFake(time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC))

	jan10 := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	seedRecord(t, repo, 1, jan10)
	source.Add(submission(subOne, jan10.Add(9*time.Hour)))

	h := NewLinkSubmissionHandler(repo, source, &capturingPublisher{}, clk, logger.Default())

	first, err := h.Handle(context.Background(), LinkSubmissionCommand{SubmissionID: subOne.String()})
	require.NoError(t, err)
	assert.Equal(t, OutcomeLinked, first.Outcome)

	second, err := h.Handle(context.Background(), LinkSubmissionCommand{SubmissionID: subOne.String()})
	require.NoError(t, err)
	assert.Equal(t, OutcomeAlreadyLinked, second.Outcome)
	assert.Equal(t, first.RecordID, second.RecordID)
}

func TestLinkSubmission_NoMatch(t *testing.T) {
	repo := memory.NewProgressRepository()
	source := memory.NewSubmissionSource()
	clk := clock.NewFake(time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC))

	source.Add(submission(subOne, clk.Now()))

	h := NewLinkSubmissionHandler(repo, source, &capturingPublisher{}, clk, logger.Default())

	result, err := h.Handle(context.Background(), LinkSubmissionCommand{SubmissionID: subOne.String()})
	require.NoError(t, err)
	assert.Equal(t, OutcomeNoMatch, result.Outcome)
}

func TestLinkSubmission_NearestDateWins(t *testing.T) {
	repo := memory.NewProgressRepository()
	source := memory.NewSubmissionSource()
	clk := clock.NewFake(time.Date(2024, 1, 11, 16, 0, 0, 0, time.UTC))

	jan10 := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	jan17 := time.Date(2024, 1, 17, 0, 0, 0, 0, time.UTC)
	recNear := seedRecord(t, repo, 1, jan10)
	seedRecord(t, repo, 2, jan17)

	source.Add(submission(subOne, time.Date(2024, 1, 11, 15, 0, 0, 0, time.UTC)))

	h := NewLinkSubmissionHandler(repo, source, &capturingPublisher{}, clk, logger.Default())

	result, err := h.Handle(context.Background(), LinkSubmissionCommand{SubmissionID: subOne.String()})
	require.NoError(t, err)
	assert.Equal(t, OutcomeLinked, result.Outcome)
	assert.Equal(t, recNear.ID, result.RecordID)
}

func TestLinkSubmission_ConcurrentLinksExactlyOneWins(t *testing.T) {
	repo := memory.NewProgressRepository()
	source := memory.NewSubmissionSource()
	clk := clock.NewFake(time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC))

	jan10 := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	rec := seedRecord(t, repo, 1, jan10)
	source.Add(submission(subOne, jan10.Add(9*time.Hour)))
	source.Add(submission(subTwo, jan10.Add(9*time.Hour+5*time.Minute)))

	h := NewLinkSubmissionHandler(repo, source, &capturingPublisher{}, clk, logger.Default())

	var wg sync.WaitGroup
	results := make([]*LinkSubmissionResult, 2)
	errs := make([]error, 2)
	for i, id := range []shared.SubmissionID{subOne, subTwo} {
		wg.Add(1)
		go func(i int, id shared.SubmissionID) {
			defer wg.Done()
			results[i], errs[i] = h.Handle(context.Background(), LinkSubmissionCommand{SubmissionID: id.String()})
		}(i, id)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	linked := 0
	conflicts := 0
	for _, r := range results {
		switch r.Outcome {
		case OutcomeLinked:
			linked++
		case OutcomeConflict, OutcomeNoMatch:
			conflicts++
		}
	}
	assert.Equal(t, 1, linked, "ровно одна сдача выигрывает запись")
	assert.Equal(t, 1, conflicts)

	stored, err := repo.GetByID(context.Background(), rec.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LinkedSubmissionID)
}

func TestLinkAll_BatchIsolatesFailures(t *testing.T) {
	repo := memory.NewProgressRepository()
	source := memory.NewSubmissionSource()
	clk := clock.NewFake(time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC))

	jan10 := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	seedRecord(t, repo, 1, jan10)

	source.Add(submission(subOne, jan10.Add(9*time.Hour)))
	// Невалидная сдача: нет темы - остальные всё равно обрабатываются.
	source.Add(assessment.Submission{
		ID:          subTwo,
		StudentID:   studentA,
		SubmittedAt: jan10.Add(10 * time.Hour),
	})

	linker := NewLinkSubmissionHandler(repo, source, &capturingPublisher{}, clk, logger.Default())
	h := NewLinkAllHandler(linker, source, clk, logger.Default())

	result, err := h.Handle(context.Background(), LinkAllCommand{})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.Linked)
	assert.Equal(t, 1, result.Failed())
	assert.Contains(t, result.Errors, subTwo.String())
}

func TestLinkAll_RerunIsIdempotent(t *testing.T) {
	repo := memory.NewProgressRepository()
	source := memory.NewSubmissionSource()
	clk := clock.NewFake(time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC))

	jan10 := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	seedRecord(t, repo, 1, jan10)
	source.Add(submission(subOne, jan10.Add(9*time.Hour)))

	linker := NewLinkSubmissionHandler(repo, source, &capturingPublisher{}, clk, logger.Default())
	h := NewLinkAllHandler(linker, source, clk, logger.Default())

	first, err := h.Handle(context.Background(), LinkAllCommand{})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Linked)

	second, err := h.Handle(context.Background(), LinkAllCommand{})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Linked)
	assert.Equal(t, 1, second.AlreadyLinked)
	assert.Equal(t, 0, second.Failed())
}

func TestLinkAll_StopsBetweenItemsOnCancel(t *testing.T) {
	repo := memory.NewProgressRepository()
	source := memory.NewSubmissionSource()
	clk := clock.NewFake(time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC))

	jan10 := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	seedRecord(t, repo, 1, jan10)
	source.Add(submission(subOne, jan10.Add(9*time.Hour)))

	linker := NewLinkSubmissionHandler(repo, source, &capturingPublisher{}, clk, logger.Default())
	h := NewLinkAllHandler(linker, source, clk, logger.Default())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := h.Handle(ctx, LinkAllCommand{})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Linked)
	assert.Contains(t, result.Errors, "batch")
}
