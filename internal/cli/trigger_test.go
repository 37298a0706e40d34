package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"risehigh-xp-service/internal/app"
	"risehigh-xp-service/internal/domain"
	"risehigh-xp-service/internal/infra/sqlite"
)

func intPtr(v int) *int { return &v }

func writeSQLiteConfig(t *testing.T) (configFile, dbPath string) {
	t.Helper()
	for _, key := range []string{"POSTGRES_URL", "SQLITE_PATH", "REDIS_ADDR", "EMAIL_URL"} {
		t.Setenv(key, "")
	}
	dir := t.TempDir()
	dbPath = filepath.Join(dir, "data", "xp.db")
	configFile = filepath.Join(dir, "config.yaml")
	cfg := "log:\n  level: error\nsqlite:\n  path: " + dbPath + "\n"
	require.NoError(t, os.WriteFile(configFile, []byte(cfg), 0o644))
	return configFile, dbPath
}

func seedSQLite(t *testing.T, dbPath string) {
	t.Helper()
	ctx := context.Background()
	st, err := sqlite.Open(dbPath)
	require.NoError(t, err)
	defer st.Close()

	require.NoError(t, st.UpsertChallenge(ctx, domain.Challenge{ID: "c1", Title: "Build a CLI", Status: domain.ChallengeOpen}, "go"))
	require.NoError(t, st.UpsertSubmission(ctx, domain.Submission{ID: "sub-1", StudentID: "s1", ChallengeID: "c1", Rating: intPtr(8), Status: domain.SubmissionSubmitted}))
	require.NoError(t, st.UpsertSubmission(ctx, domain.Submission{ID: "sub-2", StudentID: "s2", ChallengeID: "c1", Rating: intPtr(5), Status: domain.SubmissionSubmitted}))
}

func runCLI(t *testing.T, args ...string) (app.RunResult, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		return app.RunResult{}, err
	}
	var result app.RunResult
	require.NoError(t, json.Unmarshal(out.Bytes(), &result))
	return result, nil
}

func TestCloseChallengeCommand(t *testing.T) {
	configFile, dbPath := writeSQLiteConfig(t)
	seedSQLite(t, dbPath)

	result, err := runCLI(t, "--config", configFile, "close-challenge", "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 4, result.Events)

	again, err := runCLI(t, "--config", configFile, "close-challenge", "c1")
	require.NoError(t, err)
	assert.Equal(t, 0, again.Processed)
	assert.Equal(t, 2, again.AlreadyAwarded)
}

func TestAwardSubmissionCommand(t *testing.T) {
	configFile, dbPath := writeSQLiteConfig(t)
	seedSQLite(t, dbPath)

	result, err := runCLI(t, "--config", configFile, "award-submission", "sub-2")
	require.NoError(t, err)
	assert.True(t, result.Deferred, "challenge is still open")
	assert.Equal(t, 0, result.Processed)

	st, err := sqlite.Open(dbPath)
	require.NoError(t, err)
	require.NoError(t, st.UpsertChallenge(context.Background(), domain.Challenge{ID: "c1", Title: "Build a CLI", Status: domain.ChallengeClosed}, "go"))
	require.NoError(t, st.Close())

	result, err = runCLI(t, "--config", configFile, "award-submission", "sub-2")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, "c1", result.ChallengeID)

	_, err = runCLI(t, "--config", configFile, "award-submission", "missing")
	require.ErrorIs(t, err, domain.ErrSubmissionNotFound)
}

func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestConfigPathFromDotEnv(t *testing.T) {
	configFile, dbPath := writeSQLiteConfig(t)
	seedSQLite(t, dbPath)
	t.Setenv("CONFIG_PATH", "")
	require.NoError(t, os.Unsetenv("CONFIG_PATH"))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CONFIG_PATH="+configFile+"\n"), 0o644))
	chdir(t, dir)

	result, err := runCLI(t, "close-challenge", "c1")
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)
}

func TestEnvFlagsDoNotOverrideExplicitFlags(t *testing.T) {
	t.Setenv("PORT", "9191")
	t.Setenv("CONFIG_PATH", "/etc/xp/config.yaml")

	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags(nil))
	applyEnvFlags(cmd)
	assert.Equal(t, "9191", port)
	assert.Equal(t, "/etc/xp/config.yaml", configPath)

	cmd = newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--port", "7000", "--config", "local.yaml"}))
	applyEnvFlags(cmd)
	assert.Equal(t, "7000", port)
	assert.Equal(t, "local.yaml", configPath)
}
