package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/eduhub/assessment-engine/internal/domain/assessment"
	"github.com/eduhub/assessment-engine/internal/domain/shared"
)

// SubmissionSource is an in-memory assessment.SubmissionSource.
// Tests and development mode seed it directly; MarkProcessed removes a
// submission from the unprocessed feed after a successful link.
type SubmissionSource struct {
	mu        sync.RWMutex
	byID      map[shared.SubmissionID]assessment.Submission
	processed map[shared.SubmissionID]bool
	followUps map[followUpKey]bool
}

type followUpKey struct {
	topicID  shared.LessonTopicID
	sequence int
}

// NewSubmissionSource creates an empty in-memory source.
func NewSubmissionSource() *SubmissionSource {
	return &SubmissionSource{
		byID:      make(map[shared.SubmissionID]assessment.Submission),
		processed: make(map[shared.SubmissionID]bool),
		followUps: make(map[followUpKey]bool),
	}
}

// Add seeds a submission.
func (s *SubmissionSource) Add(sub assessment.Submission) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byID[sub.ID] = sub
}

// MarkProcessed removes a submission from the unprocessed feed.
func (s *SubmissionSource) MarkProcessed(id shared.SubmissionID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed[id] = true
}

// SetFollowUp seeds the follow-up flag for a topic period.
func (s *SubmissionSource) SetFollowUp(topicID shared.LessonTopicID, periodSequence int, exists bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.followUps[followUpKey{topicID, periodSequence}] = exists
}

// GetByID implements assessment.SubmissionSource.
func (s *SubmissionSource) GetByID(_ context.Context, id shared.SubmissionID) (assessment.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.byID[id]
	if !ok {
		return assessment.Submission{}, assessment.ErrSubmissionNotFound
	}
	return sub, nil
}

// FindUnprocessed implements assessment.SubmissionSource.
func (s *SubmissionSource) FindUnprocessed(_ context.Context, limit int) ([]assessment.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []assessment.Submission
	for id, sub := range s.byID {
		if !s.processed[id] {
			out = append(out, sub)
		}
	}
	sortSubmissions(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// FindByStudent implements assessment.SubmissionSource.
func (s *SubmissionSource) FindByStudent(_ context.Context, studentID shared.StudentID, limit int) ([]assessment.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []assessment.Submission
	for _, sub := range s.byID {
		if sub.StudentID == studentID {
			out = append(out, sub)
		}
	}
	sortSubmissions(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// FollowUpExists implements assessment.FollowUpProvider.
func (s *SubmissionSource) FollowUpExists(_ context.Context, topicID shared.LessonTopicID, periodSequence int) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.followUps[followUpKey{topicID, periodSequence}], nil
}

func sortSubmissions(subs []assessment.Submission) {
	sort.Slice(subs, func(i, j int) bool {
		if !subs[i].SubmittedAt.Equal(subs[j].SubmittedAt) {
			return subs[i].SubmittedAt.Before(subs[j].SubmittedAt)
		}
		return subs[i].ID < subs[j].ID
	})
}
