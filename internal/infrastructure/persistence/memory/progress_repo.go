// Package memory provides in-memory repository implementations.
// Used by tests and single-process development mode; the conditional
// write semantics mirror the postgres implementation exactly.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/eduhub/assessment-engine/internal/domain/progress"
	"github.com/eduhub/assessment-engine/internal/domain/shared"
)

// ProgressRepository is an in-memory implementation of progress.Repository.
type ProgressRepository struct {
	mu      sync.RWMutex
	byID    map[string]*progress.Record
	byKey   map[progress.Key]string
	ordered []string
}

// NewProgressRepository creates an empty in-memory repository.
func NewProgressRepository() *ProgressRepository {
	return &ProgressRepository{
		byID:  make(map[string]*progress.Record),
		byKey: make(map[progress.Key]string),
	}
}

// Create implements progress.Repository.
func (r *ProgressRepository) Create(_ context.Context, record *progress.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := record.Key()
	if _, exists := r.byKey[key]; exists {
		return progress.ErrRecordAlreadyExists
	}
	if _, exists := r.byID[record.ID]; exists {
		return progress.ErrRecordAlreadyExists
	}

	clone := cloneRecord(record)
	r.byID[record.ID] = clone
	r.byKey[key] = record.ID
	r.ordered = append(r.ordered, record.ID)
	return nil
}

// GetByID implements progress.Repository.
func (r *ProgressRepository) GetByID(_ context.Context, id string) (*progress.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.byID[id]
	if !ok {
		return nil, progress.ErrRecordNotFound
	}
	return cloneRecord(rec), nil
}

// GetByKey implements progress.Repository.
func (r *ProgressRepository) GetByKey(_ context.Context, key progress.Key) (*progress.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byKey[key]
	if !ok {
		return nil, progress.ErrRecordNotFound
	}
	return cloneRecord(r.byID[id]), nil
}

// FindByStudentAndTopic implements progress.Repository.
func (r *ProgressRepository) FindByStudentAndTopic(_ context.Context, studentID shared.StudentID, topicID shared.LessonTopicID) ([]*progress.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*progress.Record
	for _, id := range r.ordered {
		rec := r.byID[id]
		if rec.StudentID == studentID && rec.LessonTopicID == topicID {
			out = append(out, cloneRecord(rec))
		}
	}
	progress.SortBySequence(out)
	return out, nil
}

// FindByStudentBetween implements progress.Repository.
func (r *ProgressRepository) FindByStudentBetween(_ context.Context, studentID shared.StudentID, from, to time.Time) ([]*progress.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*progress.Record
	for _, id := range r.ordered {
		rec := r.byID[id]
		if rec.StudentID != studentID {
			continue
		}
		if rec.ScheduledDate.Before(from) || !rec.ScheduledDate.Before(to) {
			continue
		}
		out = append(out, cloneRecord(rec))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledDate.Equal(out[j].ScheduledDate) {
			return out[i].ScheduledDate.Before(out[j].ScheduledDate)
		}
		return out[i].PeriodSequence < out[j].PeriodSequence
	})
	return out, nil
}

// FindUnlinkedByStudent implements progress.Repository.
func (r *ProgressRepository) FindUnlinkedByStudent(_ context.Context, studentID shared.StudentID) ([]*progress.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*progress.Record
	for _, id := range r.ordered {
		rec := r.byID[id]
		if rec.StudentID == studentID && rec.Open() {
			out = append(out, cloneRecord(rec))
		}
	}
	return out, nil
}

// FindExpired implements progress.Repository.
func (r *ProgressRepository) FindExpired(_ context.Context, cutoff time.Time, limit int) ([]*progress.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*progress.Record
	for _, id := range r.ordered {
		rec := r.byID[id]
		if rec.Open() && rec.GraceEnd.Before(cutoff) {
			out = append(out, cloneRecord(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].GraceEnd.Before(out[j].GraceEnd)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// LinkSubmission implements progress.Repository.
// The write applies only when the record is still open, matching the
// conditional UPDATE of the postgres repository.
func (r *ProgressRepository) LinkSubmission(_ context.Context, recordID string, submissionID shared.SubmissionID, completedAt time.Time, score *shared.Score, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byID[recordID]
	if !ok {
		return false, progress.ErrRecordNotFound
	}
	if rec.LinkedSubmissionID != nil || rec.IncompleteReason != nil {
		return false, nil
	}

	sub := submissionID
	at := completedAt.UTC()
	rec.LinkedSubmissionID = &sub
	rec.CompletedAt = &at
	rec.Score = score
	rec.Terminal = progress.TerminalCompleted
	rec.UpdatedAt = now.UTC()
	return true, nil
}

// MarkMissed implements progress.Repository.
func (r *ProgressRepository) MarkMissed(_ context.Context, recordID string, reason progress.IncompleteReason, markedAt time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byID[recordID]
	if !ok {
		return false, progress.ErrRecordNotFound
	}
	if rec.LinkedSubmissionID != nil || rec.IncompleteReason != nil {
		return false, nil
	}

	at := markedAt.UTC()
	rec.IncompleteReason = &reason
	rec.AutoMarkedIncompleteAt = &at
	rec.Terminal = progress.TerminalMissed
	rec.UpdatedAt = at
	return true, nil
}

// DeleteOpenByStudentBetween implements progress.Repository.
func (r *ProgressRepository) DeleteOpenByStudentBetween(_ context.Context, studentID shared.StudentID, from, to time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int64
	kept := r.ordered[:0]
	for _, id := range r.ordered {
		rec := r.byID[id]
		drop := rec.StudentID == studentID &&
			rec.Open() &&
			!rec.ScheduledDate.Before(from) && rec.ScheduledDate.Before(to)
		if drop {
			delete(r.byID, id)
			delete(r.byKey, rec.Key())
			removed++
			continue
		}
		kept = append(kept, id)
	}
	r.ordered = kept
	return removed, nil
}

// CountByTerminal implements progress.Repository.
func (r *ProgressRepository) CountByTerminal(_ context.Context) (map[progress.Terminal]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[progress.Terminal]int64, 3)
	for _, rec := range r.byID {
		counts[rec.Terminal]++
	}
	return counts, nil
}

// cloneRecord copies a record so callers never share repository state.
func cloneRecord(rec *progress.Record) *progress.Record {
	clone := *rec
	if rec.LinkedSubmissionID != nil {
		v := *rec.LinkedSubmissionID
		clone.LinkedSubmissionID = &v
	}
	if rec.CompletedAt != nil {
		v := *rec.CompletedAt
		clone.CompletedAt = &v
	}
	if rec.IncompleteReason != nil {
		v := *rec.IncompleteReason
		clone.IncompleteReason = &v
	}
	if rec.AutoMarkedIncompleteAt != nil {
		v := *rec.AutoMarkedIncompleteAt
		clone.AutoMarkedIncompleteAt = &v
	}
	if rec.Score != nil {
		v := *rec.Score
		clone.Score = &v
	}
	return &clone
}
