package main

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kuitang/checkers-replay/internal/checkers"
	"github.com/kuitang/checkers-replay/internal/fakesite"
)

func TestServe_ServesUntilCanceled(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, ln, fakesite.New(fakesite.SingleCaptureScript()).Handler()) }()

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get("http://" + ln.Addr().String() + "/")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(body), checkers.PageTitle)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
}

func TestEnvOr(t *testing.T) {
	t.Setenv("FAKECHECKERS_ADDR", "")
	require.Equal(t, ":8090", envOr("FAKECHECKERS_ADDR", ":8090"))
	t.Setenv("FAKECHECKERS_ADDR", ":9999")
	require.Equal(t, ":9999", envOr("FAKECHECKERS_ADDR", ":8090"))
}
