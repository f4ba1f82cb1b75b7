package runner

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kuitang/checkers-replay/internal/browser"
	"github.com/kuitang/checkers-replay/internal/checkers"
	"github.com/kuitang/checkers-replay/internal/errs"
	"github.com/kuitang/checkers-replay/internal/fixture"
	"github.com/kuitang/checkers-replay/internal/obs"
)

var logger = obs.Pkg("runner")

const defaultProbeTimeout = 10 * time.Second

// SuiteOptions configures NewSuite.
type SuiteOptions struct {
	HostURL      string
	FixturePath  string
	StatePath    string
	ProbeTimeout time.Duration
	// Client is used for the reachability probe. Defaults to a client with
	// ProbeTimeout as its timeout.
	Client *http.Client
}

// Suite is the state shared by every test of a run: the target URL, the
// loaded fixture and, when the run cannot proceed, the reason to skip.
// It is built once and passed to each test.
type Suite struct {
	HostURL   string
	StatePath string
	Fixture   *fixture.Set

	skip error
}

// NewSuite probes the target site and, when it is up, loads the fixture.
// An unreachable site or a missing fixture does not fail: the suite
// records a skip reason instead. A malformed fixture is an error.
func NewSuite(ctx context.Context, opts SuiteOptions) (*Suite, error) {
	s := &Suite{HostURL: opts.HostURL, StatePath: opts.StatePath}
	log := obs.From(ctx)

	if err := Probe(ctx, opts.Client, opts.HostURL, opts.ProbeTimeout); err != nil {
		s.skip = err
		log.Info("website is down, skipping", "host", opts.HostURL, "error", err.Error())
		return s, nil
	}

	set, err := fixture.Load(opts.FixturePath)
	if err != nil {
		if errs.IsSkip(err) {
			s.skip = err
			log.Info("no scenario data available, skipping", "path", opts.FixturePath)
			return s, nil
		}
		return nil, err
	}
	s.Fixture = set
	log.Info("suite ready", "host", opts.HostURL, "scenarios", len(set.Scenarios))
	return s, nil
}

// Probe reports whether url answers a GET with a 2xx status. Any failure is
// coded errs.Unavailable.
func Probe(ctx context.Context, client *http.Client, url string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = defaultProbeTimeout
	}
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errs.Wrap(errs.Unavailable, "build probe request", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return errs.Wrap(errs.Unavailable, "website "+url+" is down", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errs.Newf(errs.Unavailable, "website %s is down: status %d", url, resp.StatusCode)
	}
	return nil
}

// SkipReason returns why dependent work should be skipped, or "".
func (s *Suite) SkipReason() string {
	if s.skip == nil {
		return ""
	}
	return errs.MessageOf(s.skip)
}

// Err returns the skip cause, or nil when the suite is runnable.
func (s *Suite) Err() error {
	return s.skip
}

// Scenario returns the named scenario. When the suite is skipped, or the
// scenario is missing, the error satisfies errs.IsSkip.
func (s *Suite) Scenario(id string) (*fixture.Scenario, error) {
	if s.skip != nil {
		return nil, s.skip
	}
	return s.Fixture.Find(id)
}

// Open prepares a fresh page for one test: it saves the browser storage
// state, navigates to the target and waits for the page title.
func (s *Suite) Open(ctx context.Context, d browser.Driver, opts checkers.Options) (*checkers.Page, error) {
	if s.StatePath != "" {
		if _, err := browser.SaveStorageState(ctx, d, s.StatePath); err != nil {
			return nil, fmt.Errorf("persist session: %w", err)
		}
	}
	page := checkers.New(d, opts)
	if err := page.Open(ctx, s.HostURL); err != nil {
		return nil, errs.Wrap(errs.Unavailable, "open "+s.HostURL, err)
	}
	if err := page.ExpectTitle(ctx, checkers.PageTitle); err != nil {
		return nil, err
	}
	logger.Debug("page opened", "host", s.HostURL)
	return page, nil
}
