// Package authoring implements the assessment-authoring service client.
// The engine asks the authoring service two things: whether a teacher has
// issued the follow-up assessment of a period, and who teaches a subject.
// Both answers are advisory, so the client degrades instead of failing:
// follow-up checks fail safe to "not issued yet" when the service is down.
package authoring

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/eduhub/assessment-engine/internal/domain/shared"
	"github.com/eduhub/assessment-engine/pkg/circuitbreaker"
	"github.com/eduhub/assessment-engine/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// ClientConfig contains configuration for the authoring service client.
type ClientConfig struct {
	// BaseURL is the authoring service base URL.
	BaseURL string

	// APIKey authenticates the engine against the authoring service.
	APIKey string

	// Timeout is the HTTP request timeout.
	Timeout time.Duration

	// TeacherCacheTTL bounds how long subject-to-teacher lookups are
	// reused. The directory changes rarely; an hour of staleness only
	// delays which teacher gets notified.
	TeacherCacheTTL time.Duration

	// Logger for structured logging.
	Logger *slog.Logger
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig(baseURL string) ClientConfig {
	return ClientConfig{
		BaseURL:         baseURL,
		Timeout:         10 * time.Second,
		TeacherCacheTTL: time.Hour,
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// Client is the authoring service HTTP client. It implements
// assessment.FollowUpProvider and the event handlers' TeacherDirectory.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	logger     *slog.Logger
	breaker    *circuitbreaker.CircuitBreaker
	retryPol   retry.Policy

	teacherMu    sync.RWMutex
	teacherCache map[shared.SubjectID]teacherEntry
}

type teacherEntry struct {
	teacherID string
	fetchedAt time.Time
}

// NewClient creates a new authoring service client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.TeacherCacheTTL <= 0 {
		config.TeacherCacheTTL = time.Hour
	}

	logger := config.Logger.With("component", "authoring_client")

	breakerConfig := circuitbreaker.AuthoringConfig(
		func(name string, from, to circuitbreaker.State) {
			logger.Warn("circuit state changed",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	)
	// A 404 is an answer, not an outage.
	breakerConfig.IsFailure = func(err error) bool {
		return !errors.Is(err, ErrNotFound)
	}
	breaker := circuitbreaker.New(breakerConfig)

	return &Client{
		config:       config,
		httpClient:   &http.Client{Timeout: config.Timeout},
		logger:       logger,
		breaker:      breaker,
		retryPol:     retry.HTTPPolicy(),
		teacherCache: make(map[shared.SubjectID]teacherEntry),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// FOLLOW-UP CHECKS
// ══════════════════════════════════════════════════════════════════════════════

// followUpDTO is the authoring service's follow-up response.
type followUpDTO struct {
	Exists   bool       `json:"exists"`
	IssuedAt *time.Time `json:"issued_at,omitempty"`
}

// FollowUpExists reports whether the teacher has issued the assessment of
// period periodSequence for topic topicID.
//
// Degraded mode: when the authoring service is unreachable or the breaker
// is open, the check returns (false, nil). A period that stays "waiting
// for teacher" a little longer is harmless; a period unlocked without its
// assessment is not.
func (c *Client) FollowUpExists(ctx context.Context, topicID shared.LessonTopicID, periodSequence int) (bool, error) {
	path := fmt.Sprintf("/api/v1/topics/%s/periods/%d/follow-up",
		url.PathEscape(topicID.String()), periodSequence)

	var dto followUpDTO
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retryPol.Do(ctx, func(ctx context.Context) error {
			return c.doRequest(ctx, http.MethodGet, path, &dto)
		})
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// The topic or period is unknown to the authoring service,
			// which means no follow-up was issued.
			return false, nil
		}
		c.logger.Warn("follow-up check degraded to not-issued",
			"topic_id", topicID.String(),
			"period", periodSequence,
			"error", err,
		)
		return false, nil
	}

	return dto.Exists, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// TEACHER DIRECTORY
// ══════════════════════════════════════════════════════════════════════════════

// teacherDTO is the authoring service's subject-teacher response.
type teacherDTO struct {
	TeacherID string `json:"teacher_id"`
	FullName  string `json:"full_name,omitempty"`
}

// TeacherForSubject returns the identifier of the teacher who owns a
// subject. Lookups are cached for TeacherCacheTTL. Unlike follow-up
// checks, errors propagate: the caller decides whether a notification
// can be skipped.
func (c *Client) TeacherForSubject(ctx context.Context, subjectID shared.SubjectID) (string, error) {
	c.teacherMu.RLock()
	entry, ok := c.teacherCache[subjectID]
	c.teacherMu.RUnlock()
	if ok && time.Since(entry.fetchedAt) < c.config.TeacherCacheTTL {
		return entry.teacherID, nil
	}

	path := fmt.Sprintf("/api/v1/subjects/%s/teacher", url.PathEscape(subjectID.String()))

	var dto teacherDTO
	err := c.breaker.Execute(ctx, func(ctx context.Context) error {
		return c.retryPol.Do(ctx, func(ctx context.Context) error {
			return c.doRequest(ctx, http.MethodGet, path, &dto)
		})
	})
	if err != nil {
		// A stale entry beats no entry when the service is down.
		if ok {
			c.logger.Warn("serving stale teacher entry",
				"subject_id", subjectID.String(),
				"age", time.Since(entry.fetchedAt).String(),
			)
			return entry.teacherID, nil
		}
		return "", fmt.Errorf("teacher for subject %s: %w", subjectID, err)
	}
	if dto.TeacherID == "" {
		return "", fmt.Errorf("teacher for subject %s: empty teacher_id", subjectID)
	}

	c.teacherMu.Lock()
	c.teacherCache[subjectID] = teacherEntry{teacherID: dto.TeacherID, fetchedAt: time.Now()}
	c.teacherMu.Unlock()

	return dto.TeacherID, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSPORT
// ══════════════════════════════════════════════════════════════════════════════

// Errors returned by the transport layer.
var (
	// ErrNotFound - the resource does not exist on the authoring service.
	ErrNotFound = errors.New("authoring: not found")

	// ErrUnauthorized - the API key was rejected.
	ErrUnauthorized = errors.New("authoring: unauthorized")
)

// doRequest performs a single HTTP request and decodes the JSON response.
func (c *Client) doRequest(ctx context.Context, method, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, nil)
	if err != nil {
		return retry.Permanent(fmt.Errorf("create request: %w", err))
	}

	req.Header.Set("Accept", "application/json")
	if c.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return retry.Retryable(fmt.Errorf("http request: %w", err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return retry.Retryable(fmt.Errorf("read response: %w", err))
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return retry.Permanent(ErrNotFound)
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return retry.Permanent(ErrUnauthorized)
	case resp.StatusCode >= 500:
		return retry.Retryable(fmt.Errorf("authoring: status %d", resp.StatusCode))
	case resp.StatusCode >= 400:
		return retry.Permanent(fmt.Errorf("authoring: status %d: %s", resp.StatusCode, string(body)))
	}

	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return retry.Permanent(fmt.Errorf("unmarshal response: %w", err))
		}
	}

	return nil
}

// IsHealthy checks if the authoring service is reachable.
func (c *Client) IsHealthy(ctx context.Context) bool {
	return c.doRequest(ctx, http.MethodGet, "/health", nil) == nil
}

// BreakerState exposes the circuit state for health reporting.
func (c *Client) BreakerState() circuitbreaker.State {
	return c.breaker.State()
}
