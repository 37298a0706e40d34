package email

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"risehigh-xp-service/internal/domain"
)

func TestDispatchChallengeEmailPostsPayload(t *testing.T) {
	var (
		gotAuth string
		got     map[string]any
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(srv.URL, "service-key", time.Second)
	err := d.DispatchChallengeEmail(context.Background(), domain.ChallengeEmail{
		Record:        domain.Challenge{ID: "c1", Title: "Build a CLI", Status: domain.ChallengeClosed},
		OldRecord:     domain.Challenge{ID: "c1", Title: "Build a CLI", Status: domain.ChallengeOpen},
		ManualTrigger: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer service-key", gotAuth)
	assert.Equal(t, true, got["manual_trigger"])
	record := got["record"].(map[string]any)
	assert.Equal(t, "closed", record["status"])
	old := got["old_record"].(map[string]any)
	assert.Equal(t, "open", old["status"])
}

func TestDispatchChallengeEmailReportsFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	d := NewHTTPDispatcher(srv.URL, "", time.Second)
	err := d.DispatchChallengeEmail(context.Background(), domain.ChallengeEmail{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Contains(t, err.Error(), "quota exceeded")
}

func TestDispatchChallengeEmailHonoursContext(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	d := NewHTTPDispatcher(srv.URL, "", 5*time.Second)

	start := time.Now()
	err := d.DispatchChallengeEmail(ctx, domain.ChallengeEmail{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 2*time.Second)
}
