package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"risehigh-xp-service/internal/app"
	"risehigh-xp-service/internal/domain"
	"risehigh-xp-service/internal/infra/memory"
	"risehigh-xp-service/internal/logger"
	"risehigh-xp-service/internal/metrics"
)

func intPtr(v int) *int { return &v }

type testEnv struct {
	store   *memory.Store
	lock    *memory.RunLock
	service *app.ClosingService
	server  *httptest.Server
}

func newTestEnv(t *testing.T, secret string) testEnv {
	t.Helper()
	store := memory.NewStore()
	store.PutChallenge(domain.Challenge{ID: "c1", Title: "Build a REST API", Status: domain.ChallengeOpen}, "go")
	store.PutSubmission(domain.Submission{ID: "sub-1", StudentID: "s1", ChallengeID: "c1", Rating: intPtr(10), Position: intPtr(1), Status: domain.SubmissionWinner})
	store.PutSubmission(domain.Submission{ID: "sub-2", StudentID: "s2", ChallengeID: "c1", Rating: intPtr(6), Status: domain.SubmissionSubmitted})

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	feed := app.NewFeed()
	lock := memory.NewRunLock()
	service := app.NewClosingService(app.Dependencies{
		Challenges:    store,
		Skills:        store,
		Submissions:   store,
		Progressions:  store,
		Notifications: store,
		Lock:          lock,
		Feed:          feed,
		Metrics:       m,
		Logger:        logger.Discard(),
	})
	server := httptest.NewServer(NewRouter(RouterConfig{
		Service:       service,
		Feed:          feed,
		Metrics:       m,
		Gatherer:      reg,
		Logger:        logger.Discard(),
		WebhookSecret: secret,
	}))
	t.Cleanup(server.Close)
	return testEnv{store: store, lock: lock, service: service, server: server}
}

func (e testEnv) post(t *testing.T, path, body, token string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, e.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func (e testEnv) get(t *testing.T, path string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(e.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp
}

func TestChallengeStatusHook(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		status    int
		processed float64
		ignored   bool
	}{
		{name: "flat shape", body: `{"challenge_id":"c1","old_status":"open","new_status":"closed"}`, status: http.StatusOK, processed: 2},
		{name: "webhook shape", body: `{"record":{"id":"c1","status":"closed"},"old_record":{"id":"c1","status":"open"}}`, status: http.StatusOK, processed: 2},
		{name: "manual trigger", body: `{"challenge_id":"c1","new_status":"closed","manual_trigger":true}`, status: http.StatusOK, processed: 2},
		{name: "not a close", body: `{"challenge_id":"c1","old_status":"draft","new_status":"open"}`, status: http.StatusOK, ignored: true},
		{name: "unknown status", body: `{"challenge_id":"c1","old_status":"open","new_status":"finished"}`, status: http.StatusBadRequest},
		{name: "missing id", body: `{"new_status":"closed"}`, status: http.StatusBadRequest},
		{name: "malformed", body: `{"challenge_id":`, status: http.StatusBadRequest},
		{name: "unknown challenge", body: `{"challenge_id":"nope","old_status":"open","new_status":"closed"}`, status: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, "")
			resp, body := env.post(t, "/hooks/challenge-status", tt.body, "")
			require.Equal(t, tt.status, resp.StatusCode, "body: %v", body)
			if tt.status != http.StatusOK {
				assert.NotEmpty(t, body["error"])
				return
			}
			if tt.ignored {
				assert.Equal(t, true, body["ignored"])
				return
			}
			assert.Equal(t, tt.processed, body["processed"])
		})
	}
}

func TestChallengeStatusHookConflict(t *testing.T) {
	env := newTestEnv(t, "")
	ok, err := env.lock.Acquire(context.Background(), "challenge:c1")
	require.NoError(t, err)
	require.True(t, ok)

	resp, body := env.post(t, "/hooks/challenge-status", `{"challenge_id":"c1","old_status":"open","new_status":"closed"}`, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, domain.ErrClosingInProgress.Error(), body["error"])
}

func TestSubmissionRatedHook(t *testing.T) {
	env := newTestEnv(t, "")

	resp, body := env.post(t, "/hooks/submission-rated", `{"submission_id":"sub-2"}`, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["deferred"])
	assert.Equal(t, float64(0), body["processed"])

	env.store.PutChallenge(domain.Challenge{ID: "c1", Title: "Build a REST API", Status: domain.ChallengeClosed}, "go")
	resp, body = env.post(t, "/hooks/submission-rated", `{"submission_id":"sub-2"}`, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["processed"])
	assert.Nil(t, body["deferred"])

	resp, _ = env.post(t, "/hooks/submission-rated", `{"submission_id":"missing"}`, "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = env.post(t, "/hooks/submission-rated", `{}`, "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestWebhookTokenRequired(t *testing.T) {
	const secret = "hook-secret"
	env := newTestEnv(t, secret)
	body := `{"challenge_id":"c1","old_status":"open","new_status":"closed"}`

	resp, _ := env.post(t, "/hooks/challenge-status", body, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	forged, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"role": "service"}).SignedString([]byte("other-secret"))
	require.NoError(t, err)
	resp, _ = env.post(t, "/hooks/challenge-status", body, forged)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": time.Now().Add(-time.Hour).Unix()}).SignedString([]byte(secret))
	require.NoError(t, err)
	resp, _ = env.post(t, "/hooks/challenge-status", body, expired)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	valid, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"role": "service", "exp": time.Now().Add(time.Hour).Unix()}).SignedString([]byte(secret))
	require.NoError(t, err)
	resp, _ = env.post(t, "/hooks/challenge-status", body, valid)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// read endpoints stay open
	assert.Equal(t, http.StatusOK, env.get(t, "/healthz", nil).StatusCode)
}

func TestStudentReadEndpoints(t *testing.T) {
	env := newTestEnv(t, "")
	_, err := env.service.CloseChallenge(context.Background(), "c1", false)
	require.NoError(t, err)

	var view app.ProgressionView
	resp := env.get(t, "/students/s1/progression", &view)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, view.Profile.Level)
	assert.Equal(t, 50, view.Profile.XP)
	require.Len(t, view.Skills, 1)
	assert.Equal(t, "go", view.Skills[0].SkillID)

	var summary app.SubmissionSummary
	resp = env.get(t, "/students/s1/submissions/sub-1/xp", &summary)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, summary.Awarded)
	assert.Equal(t, 150, summary.ProfileXP)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t, "")
	env.get(t, "/healthz", nil)

	resp, err := http.Get(env.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "risehigh_http_request_duration_seconds")
	assert.Contains(t, string(raw), `route="/healthz"`)
}

func TestWebSocketStreamsXP(t *testing.T) {
	env := newTestEnv(t, "")

	u := "ws" + env.server.URL[len("http"):] + "/ws?userId=s1"
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	defer conn.Close()

	typ, payload := readNext(t, conn)
	require.Equal(t, "subscribed", typ)
	assert.Equal(t, "s1", payload["student_id"])

	_, err = env.service.CloseChallenge(context.Background(), "c1", false)
	require.NoError(t, err)

	seen := map[string]bool{}
	for i := 0; i < 2; i++ {
		typ, payload := readNext(t, conn)
		require.Equal(t, "xp", typ)
		assert.Equal(t, "s1", payload["student_id"])
		seen[payload["event_type"].(string)] = true
	}
	assert.Equal(t, map[string]bool{"student_xp": true, "new_skill": true}, seen)

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "summary", "payload": map[string]any{"submissionId": "sub-1"}}))
	typ, payload = readNext(t, conn)
	require.Equal(t, "summary", typ)
	assert.Equal(t, float64(150), payload["profile_xp"])

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "dance"}))
	typ, _ = readNext(t, conn)
	assert.Equal(t, "error", typ)
}

func TestWebSocketRequiresUser(t *testing.T) {
	env := newTestEnv(t, "")
	resp := env.get(t, "/ws", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func readNext(t *testing.T, conn *websocket.Conn) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	require.NoError(t, conn.ReadJSON(&msg))
	return msg.Type, msg.Payload
}
