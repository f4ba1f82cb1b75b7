// checkers-replay drives the checkers page through a recorded scenario and
// reports whether the board behaved as the fixture expects.
//
// Exit status is 0 when the run passed or was skipped, 1 when it failed and
// 2 on a configuration error.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/kuitang/checkers-replay/internal/artifacts"
	"github.com/kuitang/checkers-replay/internal/browser"
	"github.com/kuitang/checkers-replay/internal/checkers"
	"github.com/kuitang/checkers-replay/internal/config"
	"github.com/kuitang/checkers-replay/internal/errs"
	"github.com/kuitang/checkers-replay/internal/fixture"
	"github.com/kuitang/checkers-replay/internal/obs"
	"github.com/kuitang/checkers-replay/internal/runner"
	"github.com/kuitang/checkers-replay/internal/s3client"
)

const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("checkers-replay", flag.ContinueOnError)
	fs.SetOutput(stderr)
	flags, err := config.ParseFlags(fs, args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	cfg, err := config.LoadConfig(flags)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitUsage
	}

	obs.Init()
	if !obs.SetLevel(cfg.LogLevel) {
		obs.Pkg("main").Warn("unknown LOG_LEVEL, keeping info", "level", cfg.LogLevel)
	}
	cfg.PrintSummary(stdout)

	runID := uuid.NewString()
	ctx = obs.WithRun(ctx, runID)
	log := obs.From(ctx)

	art, err := artifacts.NewRun(cfg.ArtifactsDir, runID)
	if err != nil {
		log.Error("cannot create artifact directory", "error", err)
		return exitFailed
	}

	report, sc := replay(ctx, cfg, art)
	if err := art.WriteReport(report, sc); err != nil {
		log.Error("cannot write report", "error", err)
	}
	if cfg.UploadEnabled() {
		upload(ctx, cfg, art)
	}

	fmt.Fprintf(stdout, "%s: %s (run %s, artifacts in %s)\n", report.ScenarioID, report.Status, runID, art.Dir())
	switch report.Status {
	case runner.StatusFailed:
		fmt.Fprintln(stdout, report.Error)
		return exitFailed
	case runner.StatusSkipped:
		fmt.Fprintln(stdout, "skipped:", report.SkipReason)
	}
	return exitOK
}

// replay runs the layout check and the configured scenario. It always
// returns a report; the scenario is nil when none was loaded.
func replay(ctx context.Context, cfg *config.Config, art *artifacts.Run) (*runner.Report, *fixture.Scenario) {
	log := obs.From(ctx)

	statePath := cfg.StatePath
	if statePath == config.DefaultStatePath {
		statePath = art.StatePath()
	}
	suite, err := runner.NewSuite(ctx, runner.SuiteOptions{
		HostURL:      cfg.HostURL,
		FixturePath:  cfg.FixturePath,
		StatePath:    statePath,
		ProbeTimeout: cfg.ProbeTimeout,
	})
	if err != nil {
		return runner.FailedReport(ctx, cfg.ScenarioID, cfg.HostURL, err), nil
	}
	sc, err := suite.Scenario(cfg.ScenarioID)
	if err != nil {
		if errs.IsSkip(err) {
			return runner.SkippedReport(ctx, cfg.ScenarioID, cfg.HostURL, err), nil
		}
		return runner.FailedReport(ctx, cfg.ScenarioID, cfg.HostURL, err), nil
	}

	d, err := browser.Open(ctx, browser.Options{
		Engine:   cfg.Engine,
		Headless: cfg.Headless,
		CDPURL:   cfg.CDPURL,
		Logger:   obs.Pkg("browser"),
	})
	if err != nil {
		return runner.FailedReport(ctx, sc.ScenarioID, cfg.HostURL, fmt.Errorf("start browser: %w", err)), sc
	}
	defer func() {
		if err := d.Close(); err != nil {
			log.Warn("browser close failed", "error", err)
		}
	}()

	page, err := suite.Open(ctx, d, checkers.Options{
		Timeout:      cfg.AssertTimeout,
		Interval:     cfg.PollInterval,
		PromptSettle: cfg.PromptSettle,
	})
	if err != nil {
		screenshot(ctx, d, art)
		if errs.IsSkip(err) {
			return runner.SkippedReport(ctx, sc.ScenarioID, cfg.HostURL, err), sc
		}
		return runner.FailedReport(ctx, sc.ScenarioID, cfg.HostURL, err), sc
	}

	r := runner.New(page, cfg.HostURL)
	if err := r.VerifyLayout(ctx); err != nil {
		screenshot(ctx, d, art)
		return runner.FailedReport(ctx, sc.ScenarioID, cfg.HostURL, err), sc
	}

	report, err := r.Run(ctx, sc)
	if err != nil && report.Failed() {
		screenshot(ctx, d, art)
	}
	return report, sc
}

func screenshot(ctx context.Context, d browser.Driver, art *artifacts.Run) {
	png, err := d.Screenshot(ctx)
	if err == nil {
		err = art.WriteScreenshot(png)
	}
	if err != nil {
		obs.From(ctx).Warn("failure screenshot not saved", "error", err)
	}
}

func upload(ctx context.Context, cfg *config.Config, art *artifacts.Run) {
	log := obs.From(ctx)
	client, err := s3client.New(ctx, s3client.Config{
		Endpoint:        cfg.AWSEndpointS3,
		Region:          cfg.AWSRegion,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
		BucketName:      cfg.ArtifactsBucket,
		UsePathStyle:    cfg.AWSEndpointS3 != "",
	})
	if err != nil {
		log.Error("artifact upload disabled", "error", err)
		return
	}
	keys, err := art.Upload(ctx, client)
	if err != nil {
		log.Error("artifact upload failed", "error", err)
		return
	}
	if len(keys) > 0 {
		log.Info("artifacts mirrored", "location", client.URI(art.ID()+"/"))
	}
}
