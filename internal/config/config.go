// Package config provides configuration for the checkers replay harness.
// It loads configuration from CLI flags and environment variables, validates
// it, and provides defaults that target the public game page.
//
// CLI flags override the matching environment variables; everything else
// (timeouts, artifact upload credentials) comes from the environment only.
package config

import (
	"flag"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kuitang/checkers-replay/internal/browser"
)

const (
	// DefaultHostURL is the public checkers page used when HOST_URL is unset.
	DefaultHostURL = "https://www.gamesforthebrain.com/game/checkers/"

	DefaultFixturePath = "testdata/checkers-moves.json"
	DefaultScenarioID  = "single-capture"
	DefaultStatePath   = "state.json"

	defaultAWSRegion = "auto"
)

// Config holds all harness configuration.
type Config struct {
	// Target
	HostURL     string
	FixturePath string
	ScenarioID  string
	StatePath   string // storage-state file written before navigation

	// Browser
	Engine   browser.Engine
	Headless bool
	CDPURL   string // remote debugging endpoint; empty launches a local browser

	// Waiting
	AssertTimeout time.Duration // upper bound for each polling assertion
	PollInterval  time.Duration
	PromptSettle  time.Duration // pause before polling for the idle prompt
	ProbeTimeout  time.Duration // reachability probe timeout

	// Artifacts
	ArtifactsDir       string
	ArtifactsBucket    string // ARTIFACTS_BUCKET; empty disables upload
	AWSEndpointS3      string // AWS_ENDPOINT_URL_S3
	AWSRegion          string // AWS_REGION
	AWSAccessKeyID     string // AWS_ACCESS_KEY_ID
	AWSSecretAccessKey string // AWS_SECRET_ACCESS_KEY

	LogLevel string
}

// Flags holds CLI flag values. Empty strings mean "not given".
type Flags struct {
	Host         string
	Fixture      string
	Scenario     string
	Engine       string
	ArtifactsDir string
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// RegisterFlags registers the harness flags on fs.
func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{}
	fs.StringVar(&f.Host, "host", "", "Target game URL (overrides HOST_URL)")
	fs.StringVar(&f.Fixture, "fixture", "", "Scenario fixture file, .json or .yaml (overrides FIXTURE_PATH)")
	fs.StringVar(&f.Scenario, "scenario", "", "Scenario id to replay (overrides SCENARIO_ID)")
	fs.StringVar(&f.Engine, "engine", "", "Browser engine: playwright, chromedp or rod (overrides BROWSER_ENGINE)")
	fs.StringVar(&f.ArtifactsDir, "artifacts", "", "Directory for run artifacts (overrides ARTIFACTS_DIR)")
	return f
}

// ParseFlags registers and parses the harness flags on fs.
func ParseFlags(fs *flag.FlagSet, args []string) (*Flags, error) {
	f := RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return f, nil
}

// LoadConfig loads configuration from environment variables and CLI flag values.
func LoadConfig(f *Flags) (*Config, error) {
	if f == nil {
		f = &Flags{}
	}
	cfg := &Config{}

	cfg.HostURL = firstNonEmpty(f.Host, getEnvOrDefault("HOST_URL", DefaultHostURL))
	cfg.FixturePath = firstNonEmpty(f.Fixture, getEnvOrDefault("FIXTURE_PATH", DefaultFixturePath))
	cfg.ScenarioID = firstNonEmpty(f.Scenario, getEnvOrDefault("SCENARIO_ID", DefaultScenarioID))
	cfg.StatePath = getEnvOrDefault("STATE_PATH", DefaultStatePath)

	cfg.Engine = browser.Engine(strings.ToLower(firstNonEmpty(f.Engine, getEnvOrDefault("BROWSER_ENGINE", string(browser.EnginePlaywright)))))
	cfg.Headless = parseBoolOrDefault("HEADLESS", true)
	cfg.CDPURL = getEnvOrDefault("CDP_URL", "")

	cfg.AssertTimeout = parseDurationOrDefault("ASSERT_TIMEOUT", 5*time.Second)
	cfg.PollInterval = parseDurationOrDefault("POLL_INTERVAL", 100*time.Millisecond)
	cfg.PromptSettle = parseDurationOrDefault("PROMPT_SETTLE", 0)
	cfg.ProbeTimeout = parseDurationOrDefault("PROBE_TIMEOUT", 10*time.Second)

	cfg.ArtifactsDir = firstNonEmpty(f.ArtifactsDir, getEnvOrDefault("ARTIFACTS_DIR", "artifacts"))
	cfg.ArtifactsBucket = getEnvOrDefault("ARTIFACTS_BUCKET", "")
	cfg.AWSEndpointS3 = getEnvOrDefault("AWS_ENDPOINT_URL_S3", "")
	cfg.AWSRegion = getEnvOrDefault("AWS_REGION", defaultAWSRegion)
	cfg.AWSAccessKeyID = getEnvOrDefault("AWS_ACCESS_KEY_ID", "")
	cfg.AWSSecretAccessKey = getEnvOrDefault("AWS_SECRET_ACCESS_KEY", "")

	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []string

	if u, err := url.Parse(c.HostURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Sprintf("HOST_URL must be an absolute http(s) URL, got %q", c.HostURL))
	}
	if c.FixturePath == "" {
		errs = append(errs, "FIXTURE_PATH must not be empty")
	}
	if c.ScenarioID == "" {
		errs = append(errs, "SCENARIO_ID must not be empty")
	}
	if !c.Engine.Valid() {
		errs = append(errs, fmt.Sprintf("BROWSER_ENGINE must be one of %v, got %q", browser.Engines(), c.Engine))
	}

	if c.AssertTimeout <= 0 {
		errs = append(errs, "ASSERT_TIMEOUT must be positive")
	}
	if c.PollInterval <= 0 {
		errs = append(errs, "POLL_INTERVAL must be positive")
	} else if c.AssertTimeout > 0 && c.PollInterval > c.AssertTimeout {
		errs = append(errs, "POLL_INTERVAL must not exceed ASSERT_TIMEOUT")
	}
	if c.PromptSettle < 0 {
		errs = append(errs, "PROMPT_SETTLE must not be negative")
	}
	if c.ProbeTimeout <= 0 {
		errs = append(errs, "PROBE_TIMEOUT must be positive")
	}

	// Upload: credentials must come as a pair
	if c.ArtifactsBucket != "" && (c.AWSAccessKeyID == "") != (c.AWSSecretAccessKey == "") {
		errs = append(errs, "AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY must be set together")
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// UploadEnabled reports whether artifacts are mirrored to object storage.
func (c *Config) UploadEnabled() bool {
	return c.ArtifactsBucket != ""
}

// PrintSummary prints a human-readable summary of the configuration.
func (c *Config) PrintSummary(w io.Writer) {
	fmt.Fprintln(w, "checkers-replay")
	fmt.Fprintf(w, "  Target:    %s\n", c.HostURL)
	fmt.Fprintf(w, "  Fixture:   %s (scenario %s)\n", c.FixturePath, c.ScenarioID)
	if c.CDPURL != "" {
		fmt.Fprintf(w, "  Browser:   %s (remote %s)\n", c.Engine, c.CDPURL)
	} else {
		fmt.Fprintf(w, "  Browser:   %s (headless=%t)\n", c.Engine, c.Headless)
	}
	if c.UploadEnabled() {
		fmt.Fprintf(w, "  Artifacts: %s, mirrored to s3://%s\n", c.ArtifactsDir, c.ArtifactsBucket)
	} else {
		fmt.Fprintf(w, "  Artifacts: %s\n", c.ArtifactsDir)
	}
}

// Helper functions for parsing environment variables

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
