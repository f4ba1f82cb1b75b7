package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
	"github.com/stretchr/testify/require"

	"github.com/kuitang/checkers-replay/internal/fakesite"
	"github.com/kuitang/checkers-replay/internal/obs"
	"github.com/kuitang/checkers-replay/internal/s3client"
)

// clearEnv unsets every variable the harness reads so the host
// environment cannot leak into a test.
func clearEnv(t *testing.T) {
	for _, key := range []string{
		"HOST_URL", "FIXTURE_PATH", "SCENARIO_ID", "STATE_PATH", "BROWSER_ENGINE",
		"HEADLESS", "CDP_URL", "ASSERT_TIMEOUT", "POLL_INTERVAL", "PROMPT_SETTLE",
		"PROBE_TIMEOUT", "ARTIFACTS_DIR", "ARTIFACTS_BUCKET", "AWS_ENDPOINT_URL_S3",
		"AWS_REGION", "AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
	restore := obs.SetOutputForTests(&bytes.Buffer{})
	t.Cleanup(restore)
}

func downURL(t *testing.T) string {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()
	return url
}

func singleRunDir(t *testing.T, root string) string {
	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	return filepath.Join(root, entries[0].Name())
}

func TestRun_Help(t *testing.T) {
	clearEnv(t)
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-h"}, &stdout, &stderr)
	require.Equal(t, exitOK, code)
	require.Contains(t, stderr.String(), "-scenario")
}

func TestRun_BadConfig(t *testing.T) {
	clearEnv(t)
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-host", "not a url", "-engine", "lynx"}, &stdout, &stderr)
	require.Equal(t, exitUsage, code)
	require.Contains(t, stderr.String(), "HOST_URL")
	require.Contains(t, stderr.String(), "BROWSER_ENGINE")

	code = run(context.Background(), []string{"-bogus"}, &stdout, &stderr)
	require.Equal(t, exitUsage, code)
}

func TestRun_SiteDownSkips(t *testing.T) {
	clearEnv(t)
	t.Setenv("PROBE_TIMEOUT", "1s")
	root := t.TempDir()

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-host", downURL(t), "-artifacts", root}, &stdout, &stderr)
	require.Equal(t, exitOK, code)
	require.Contains(t, stdout.String(), "single-capture: skipped")

	data, err := os.ReadFile(filepath.Join(singleRunDir(t, root), "report.json"))
	require.NoError(t, err)
	var report struct {
		Status     string `json:"status"`
		SkipReason string `json:"skipReason"`
	}
	require.NoError(t, json.Unmarshal(data, &report))
	require.Equal(t, "skipped", report.Status)
	require.Contains(t, report.SkipReason, "is down")
}

func TestRun_MalformedFixtureFails(t *testing.T) {
	clearEnv(t)
	srv := httptest.NewServer(fakesite.New(nil).Handler())
	defer srv.Close()
	fixturePath := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(fixturePath, []byte("scenarios:\n  - scenarioId: x\n    moves: []\n"), 0o644))
	root := t.TempDir()

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-host", srv.URL + "/", "-fixture", fixturePath, "-artifacts", root}, &stdout, &stderr)
	require.Equal(t, exitFailed, code)
	require.Contains(t, stdout.String(), "no moves")
}

func TestRun_UploadsArtifacts(t *testing.T) {
	clearEnv(t)
	backend := s3mem.New()
	require.NoError(t, backend.CreateBucket("replays"))
	s3srv := httptest.NewServer(gofakes3.New(backend).Server())
	defer s3srv.Close()

	t.Setenv("ARTIFACTS_BUCKET", "replays")
	t.Setenv("AWS_ENDPOINT_URL_S3", s3srv.URL)
	t.Setenv("AWS_REGION", "us-east-1")
	t.Setenv("AWS_ACCESS_KEY_ID", "test-key")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test-secret")
	t.Setenv("PROBE_TIMEOUT", "1s")
	root := t.TempDir()

	var stdout, stderr bytes.Buffer
	code := run(context.Background(), []string{"-host", downURL(t), "-artifacts", root}, &stdout, &stderr)
	require.Equal(t, exitOK, code)
	runID := filepath.Base(singleRunDir(t, root))

	client, err := s3client.New(context.Background(), s3client.Config{
		Endpoint:        s3srv.URL,
		Region:          "us-east-1",
		AccessKeyID:     "test-key",
		SecretAccessKey: "test-secret",
		BucketName:      "replays",
		UsePathStyle:    true,
	})
	require.NoError(t, err)
	body, err := client.GetObject(context.Background(), runID+"/report.json")
	require.NoError(t, err)
	require.Contains(t, string(body), `"status": "skipped"`)
}
