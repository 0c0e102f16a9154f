// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"fmt"
	"regexp"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// UUID validation regex (simple version).
var uuidRegex = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)

// StudentID represents a unique student identifier (UUID format).
type StudentID string

// IsValid checks if the student ID is a valid UUID.
func (s StudentID) IsValid() bool {
	return uuidRegex.MatchString(string(s))
}

// String returns the string representation.
func (s StudentID) String() string {
	return string(s)
}

// IsEmpty checks if the ID is empty.
func (s StudentID) IsEmpty() bool {
	return s == ""
}

// NewStudentID creates a new StudentID with validation.
func NewStudentID(id string) (StudentID, error) {
	sid := StudentID(strings.ToLower(strings.TrimSpace(id)))
	if !sid.IsValid() {
		return "", NewDomainError("shared", "NewStudentID", ErrInvalidID, "invalid student ID format")
	}
	return sid, nil
}

// LessonTopicID represents a unique lesson topic identifier (UUID format).
type LessonTopicID string

// IsValid checks if the lesson topic ID is a valid UUID.
func (t LessonTopicID) IsValid() bool {
	return uuidRegex.MatchString(string(t))
}

// String returns the string representation.
func (t LessonTopicID) String() string {
	return string(t)
}

// IsEmpty checks if the ID is empty.
func (t LessonTopicID) IsEmpty() bool {
	return t == ""
}

// NewLessonTopicID creates a new LessonTopicID with validation.
func NewLessonTopicID(id string) (LessonTopicID, error) {
	tid := LessonTopicID(strings.ToLower(strings.TrimSpace(id)))
	if !tid.IsValid() {
		return "", NewDomainError("shared", "NewLessonTopicID", ErrInvalidID, "invalid lesson topic ID format")
	}
	return tid, nil
}

// SubjectID represents a unique subject identifier (UUID format).
type SubjectID string

// IsValid checks if the subject ID is a valid UUID.
func (s SubjectID) IsValid() bool {
	return uuidRegex.MatchString(string(s))
}

// String returns the string representation.
func (s SubjectID) String() string {
	return string(s)
}

// SubmissionID represents a unique assessment submission identifier (UUID format).
type SubmissionID string

// IsValid checks if the submission ID is a valid UUID.
func (s SubmissionID) IsValid() bool {
	return uuidRegex.MatchString(string(s))
}

// String returns the string representation.
func (s SubmissionID) String() string {
	return string(s)
}

// IsEmpty checks if the ID is empty.
func (s SubmissionID) IsEmpty() bool {
	return s == ""
}

// ═══════════════════════════════════════════════════════════════════════════
// Score Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Score represents an assessment score in percent.
type Score float64

const (
	// Score boundaries
	MinScore Score = 0
	MaxScore Score = 100
)

// IsValid checks if the score is within valid range.
func (s Score) IsValid() bool {
	return s >= MinScore && s <= MaxScore
}

// Float64 returns the underlying float64 value.
func (s Score) Float64() float64 {
	return float64(s)
}

// String returns the score formatted with two decimals.
func (s Score) String() string {
	return fmt.Sprintf("%.2f", float64(s))
}

// NewScore creates a new Score with validation.
func NewScore(value float64) (Score, error) {
	s := Score(value)
	if !s.IsValid() {
		return 0, NewDomainError("shared", "NewScore", ErrInvalidInput, "score must be between 0 and 100")
	}
	return s, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Pagination
// ═══════════════════════════════════════════════════════════════════════════

// ListOptions carries pagination parameters for repository queries.
type ListOptions struct {
	Limit  int
	Offset int
}

// Normalize applies defaults and caps to the options.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 50
	}
	if o.Limit > 500 {
		o.Limit = 500
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}
