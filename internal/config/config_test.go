package config

import (
	"bytes"
	"errors"
	"flag"
	"strings"
	"testing"
	"time"

	"github.com/kuitang/checkers-replay/internal/browser"
	"pgregory.net/rapid"
)

func validTestConfig() Config {
	return Config{
		HostURL:       DefaultHostURL,
		FixturePath:   DefaultFixturePath,
		ScenarioID:    DefaultScenarioID,
		StatePath:     DefaultStatePath,
		Engine:        browser.EnginePlaywright,
		Headless:      true,
		AssertTimeout: 5 * time.Second,
		PollInterval:  100 * time.Millisecond,
		ProbeTimeout:  10 * time.Second,
		ArtifactsDir:  "artifacts",
	}
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"HOST_URL", "FIXTURE_PATH", "SCENARIO_ID", "STATE_PATH", "BROWSER_ENGINE",
		"HEADLESS", "CDP_URL", "ASSERT_TIMEOUT", "POLL_INTERVAL", "PROMPT_SETTLE",
		"PROBE_TIMEOUT", "ARTIFACTS_DIR", "ARTIFACTS_BUCKET", "AWS_ENDPOINT_URL_S3",
		"AWS_REGION", "AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY", "LOG_LEVEL",
	} {
		t.Setenv(key, "")
	}
}

func TestValidate_DefaultsPass(t *testing.T) {
	t.Parallel()
	cfg := validTestConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected valid config, got error: %v", err)
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig(nil)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.HostURL != DefaultHostURL {
		t.Fatalf("HostURL = %q, want %q", cfg.HostURL, DefaultHostURL)
	}
	if cfg.Engine != browser.EnginePlaywright || !cfg.Headless {
		t.Fatalf("unexpected browser defaults: engine=%q headless=%v", cfg.Engine, cfg.Headless)
	}
	if cfg.UploadEnabled() {
		t.Fatal("upload must be disabled without ARTIFACTS_BUCKET")
	}
}

func TestLoadConfig_HostURLFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOST_URL", "http://127.0.0.1:9999/game/checkers/")

	cfg, err := LoadConfig(nil)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.HostURL != "http://127.0.0.1:9999/game/checkers/" {
		t.Fatalf("HOST_URL not honored: %q", cfg.HostURL)
	}
}

func TestLoadConfig_FlagsOverrideEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOST_URL", "http://env.example/")
	t.Setenv("BROWSER_ENGINE", "rod")

	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	f, err := ParseFlags(fs, []string{"--host", "http://flag.example/", "--engine", "ChromeDP", "--scenario", "invalid-move"})
	if err != nil {
		t.Fatalf("ParseFlags failed: %v", err)
	}
	cfg, err := LoadConfig(f)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.HostURL != "http://flag.example/" {
		t.Fatalf("flag did not override HOST_URL: %q", cfg.HostURL)
	}
	if cfg.Engine != browser.EngineChromedp {
		t.Fatalf("engine = %q, want chromedp", cfg.Engine)
	}
	if cfg.ScenarioID != "invalid-move" {
		t.Fatalf("scenario = %q", cfg.ScenarioID)
	}
}

func TestValidate_CollectsAllProblems(t *testing.T) {
	t.Parallel()
	cfg := validTestConfig()
	cfg.HostURL = "ftp://nowhere"
	cfg.Engine = "lynx"
	cfg.AssertTimeout = 0
	cfg.ArtifactsBucket = "runs"
	cfg.AWSAccessKeyID = "only-half"

	err := cfg.Validate()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	msg := err.Error()
	for _, expected := range []string{"HOST_URL", "BROWSER_ENGINE", "ASSERT_TIMEOUT", "AWS_SECRET_ACCESS_KEY"} {
		if !strings.Contains(msg, expected) {
			t.Fatalf("expected validation error to mention %q, got: %v", expected, err)
		}
	}
}

func testValidate_PollIntervalBoundedByTimeout(t *rapid.T) {
	cfg := validTestConfig()
	timeout := time.Duration(rapid.Int64Range(1, 10_000).Draw(t, "timeout_ms")) * time.Millisecond
	poll := time.Duration(rapid.Int64Range(1, 10_000).Draw(t, "poll_ms")) * time.Millisecond
	cfg.AssertTimeout = timeout
	cfg.PollInterval = poll

	err := cfg.Validate()
	if poll > timeout && err == nil {
		t.Fatalf("expected error for poll %v > timeout %v", poll, timeout)
	}
	if poll <= timeout && err != nil {
		t.Fatalf("unexpected error for poll %v <= timeout %v: %v", poll, timeout, err)
	}
}

func TestValidate_PollIntervalBoundedByTimeout(t *testing.T) {
	t.Parallel()
	rapid.Check(t, testValidate_PollIntervalBoundedByTimeout)
}

func TestHelperParsers_DefaultOnBadInput(t *testing.T) {
	t.Setenv("CFG_TEST_BOOL", "not-a-bool")
	t.Setenv("CFG_TEST_DUR", "not-a-duration")
	if got := parseBoolOrDefault("CFG_TEST_BOOL", true); got != true {
		t.Fatalf("parseBoolOrDefault fallback mismatch: got=%v want=true", got)
	}
	if got := parseDurationOrDefault("CFG_TEST_DUR", 2*time.Minute); got != 2*time.Minute {
		t.Fatalf("parseDurationOrDefault fallback mismatch: got=%v want=%v", got, 2*time.Minute)
	}
}

func TestGetEnvOrDefault_TrimsWhitespace(t *testing.T) {
	t.Setenv("CFG_TEST_STR", "   value   ")
	if got := getEnvOrDefault("CFG_TEST_STR", "fallback"); got != "value" {
		t.Fatalf("getEnvOrDefault trim mismatch: got=%q want=%q", got, "value")
	}
}

func TestPrintSummary_MentionsBucket(t *testing.T) {
	t.Parallel()
	cfg := validTestConfig()
	cfg.ArtifactsBucket = "runs"
	var buf bytes.Buffer
	cfg.PrintSummary(&buf)
	if !strings.Contains(buf.String(), "s3://runs") {
		t.Fatalf("summary missing bucket: %s", buf.String())
	}
}
