// Package browser holds end-to-end tests that drive a real browser against
// the checkers page. They run against HOST_URL when it is set and against a
// local fakesite server otherwise. Every test skips in -short mode and when
// no browser can be started.
package browser

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/playwright-community/playwright-go"

	drv "github.com/kuitang/checkers-replay/internal/browser"
	"github.com/kuitang/checkers-replay/internal/checkers"
	"github.com/kuitang/checkers-replay/internal/fakesite"
	"github.com/kuitang/checkers-replay/internal/runner"
)

const (
	// Upper bound for every polling assertion in this package.
	browserMaxTimeoutMS = 5000
	browserMaxTimeout   = 5 * time.Second
)

var (
	envMu     sync.Mutex
	sharedEnv *Env
)

// Env is the environment shared by every browser test: the target URL and
// a lazily launched Chromium.
type Env struct {
	BaseURL string
	Local   bool // BaseURL is the in-process fakesite

	server *httptest.Server

	pw        *playwright.Playwright
	browser   playwright.Browser
	browserMu sync.Mutex
}

// SetupEnv returns the shared environment, starting it on first use.
func SetupEnv(t *testing.T) *Env {
	t.Helper()
	if testing.Short() {
		t.Skip("browser tests skipped in -short mode")
	}

	envMu.Lock()
	defer envMu.Unlock()
	if sharedEnv != nil {
		return sharedEnv
	}

	env := &Env{}
	if host := strings.TrimSpace(os.Getenv("HOST_URL")); host != "" {
		env.BaseURL = host
	} else {
		env.server = httptest.NewServer(fakesite.New(fakesite.SingleCaptureScript()).Handler())
		env.BaseURL = env.server.URL + "/"
		env.Local = true
	}
	sharedEnv = env
	return env
}

func cleanupEnv() {
	envMu.Lock()
	defer envMu.Unlock()
	if sharedEnv == nil {
		return
	}
	if sharedEnv.browser != nil {
		_ = sharedEnv.browser.Close()
	}
	if sharedEnv.pw != nil {
		_ = sharedEnv.pw.Stop()
	}
	if sharedEnv.server != nil {
		sharedEnv.server.Close()
	}
	sharedEnv = nil
}

func TestMain(m *testing.M) {
	code := m.Run()
	cleanupEnv()
	os.Exit(code)
}

func repositoryRoot() string {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		panic("Failed to resolve repository root for test utilities")
	}
	return filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
}

// Suite builds the run suite for the environment. It skips the test when
// the target is down or the fixture is missing.
func (env *Env) Suite(t *testing.T, statePath string) *runner.Suite {
	t.Helper()
	suite, err := runner.NewSuite(context.Background(), runner.SuiteOptions{
		HostURL:      env.BaseURL,
		FixturePath:  filepath.Join(repositoryRoot(), "testdata", "checkers-moves.json"),
		StatePath:    statePath,
		ProbeTimeout: browserMaxTimeout,
	})
	if err != nil {
		t.Fatalf("Failed to build suite: %v", err)
	}
	if reason := suite.SkipReason(); reason != "" {
		t.Skip(reason)
	}
	return suite
}

// InitBrowser starts Playwright and launches Chromium. Skips the test if not available.
func (env *Env) InitBrowser(t *testing.T) {
	t.Helper()

	env.browserMu.Lock()
	defer env.browserMu.Unlock()

	if env.browser != nil {
		return
	}

	pw, err := playwright.Run()
	if err != nil {
		t.Skip("Playwright not available:", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
	})
	if err != nil {
		_ = pw.Stop()
		t.Skip("Could not launch browser:", err)
	}
	env.pw = pw
	env.browser = browser
}

// NewDriver opens a page in a fresh browser context of the shared browser.
// The context is closed when the test ends.
func (env *Env) NewDriver(t *testing.T) drv.Driver {
	t.Helper()
	env.InitBrowser(t)

	bctx, err := env.browser.NewContext()
	if err != nil {
		t.Fatalf("could not create browser context: %v", err)
	}
	bctx.SetDefaultTimeout(browserMaxTimeoutMS)
	bctx.SetDefaultNavigationTimeout(browserMaxTimeoutMS)
	t.Cleanup(func() { _ = bctx.Close() })

	page, err := bctx.NewPage()
	if err != nil {
		t.Fatalf("could not create page: %v", err)
	}
	return drv.WrapPlaywrightPage(page)
}

// OpenEngine launches a standalone browser through engine. Skips the test
// if the engine cannot start.
func OpenEngine(t *testing.T, engine drv.Engine) drv.Driver {
	t.Helper()
	d, err := drv.Open(context.Background(), drv.Options{
		Engine:   engine,
		Headless: true,
		Timeout:  browserMaxTimeout,
	})
	if err != nil {
		t.Skipf("%s not available: %v", engine, err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

// PageOptions are the polling options used by every browser test.
func PageOptions() checkers.Options {
	return checkers.Options{Timeout: browserMaxTimeout, Interval: 50 * time.Millisecond}
}
