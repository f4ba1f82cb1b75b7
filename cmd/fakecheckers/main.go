// fakecheckers serves a local stand-in for the checkers page. The opponent
// answers with the scripted replies the checked-in fixture was recorded
// against, so checkers-replay can run without the public site:
//
//	go run ./cmd/fakecheckers -addr :8090 &
//	HOST_URL=http://localhost:8090/ go run ./cmd/checkers-replay
package main

import (
	"context"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kuitang/checkers-replay/internal/fakesite"
	"github.com/kuitang/checkers-replay/internal/obs"
)

func main() {
	addr := flag.String("addr", envOr("FAKECHECKERS_ADDR", ":8090"), "Listen address")
	flag.Parse()

	obs.Init()
	obs.SetLevel(envOr("LOG_LEVEL", "info"))
	log := obs.Pkg("fakecheckers")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ln, err := net.Listen("tcp", *addr)
	if err != nil {
		log.Error("listen failed", "addr", *addr, "error", err)
		os.Exit(1)
	}
	if err := serve(ctx, ln, fakesite.New(fakesite.SingleCaptureScript()).Handler()); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// serve runs h on ln until ctx is done, then shuts down gracefully.
func serve(ctx context.Context, ln net.Listener, h http.Handler) error {
	log := obs.Pkg("fakecheckers")
	server := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "url", "http://"+ln.Addr().String()+"/")
		errCh <- server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	log.Info("shut down")
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
