package authoring

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduhub/assessment-engine/internal/domain/shared"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	config := DefaultClientConfig(server.URL)
	config.Timeout = 2 * time.Second
	return NewClient(config), server
}

func TestFollowUpExists_IssuedPeriod(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/topics/topic-1/periods/2/follow-up", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"exists": true, "issued_at": "2026-03-10T09:00:00Z"}`))
	}))

	exists, err := client.FollowUpExists(context.Background(), shared.LessonTopicID("topic-1"), 2)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestFollowUpExists_UnknownTopicMeansNotIssued(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))

	exists, err := client.FollowUpExists(context.Background(), shared.LessonTopicID("ghost"), 1)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestFollowUpExists_FailsSafeWhenServiceDown(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close() // connection refused from here on

	config := DefaultClientConfig(server.URL)
	config.Timeout = time.Second
	client := NewClient(config)

	exists, err := client.FollowUpExists(context.Background(), shared.LessonTopicID("topic-1"), 1)
	require.NoError(t, err)
	assert.False(t, exists, "an unreachable authoring service must read as not-issued")
}

func TestTeacherForSubject_CachesLookups(t *testing.T) {
	var hits atomic.Int64
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"teacher_id": "teacher-7"}`))
	}))

	for i := 0; i < 3; i++ {
		teacherID, err := client.TeacherForSubject(context.Background(), shared.SubjectID("math"))
		require.NoError(t, err)
		assert.Equal(t, "teacher-7", teacherID)
	}

	assert.Equal(t, int64(1), hits.Load())
}

func TestTeacherForSubject_ServesStaleOnFailure(t *testing.T) {
	var fail atomic.Bool
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"teacher_id": "teacher-7"}`))
	}))

	// Prime the cache, then expire it and break the server.
	_, err := client.TeacherForSubject(context.Background(), shared.SubjectID("math"))
	require.NoError(t, err)

	client.config.TeacherCacheTTL = time.Nanosecond
	time.Sleep(time.Millisecond)
	fail.Store(true)

	teacherID, err := client.TeacherForSubject(context.Background(), shared.SubjectID("math"))
	require.NoError(t, err)
	assert.Equal(t, "teacher-7", teacherID)
}

func TestTeacherForSubject_ErrorWithoutCache(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := client.TeacherForSubject(context.Background(), shared.SubjectID("math"))
	assert.Error(t, err)
}
