package main

import (
	"context"
	"io"
	"log/slog"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"tycoon/internal/ads"
	"tycoon/internal/api"
	cl "tycoon/internal/cli"
	"tycoon/internal/config"
	"tycoon/internal/engine"
	"tycoon/internal/save"
)

type countingBackend struct {
	mu   sync.Mutex
	puts int
}

func (b *countingBackend) Put(context.Context, string, []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.puts++
	return nil
}

func (b *countingBackend) Get(context.Context, string) ([]byte, error) {
	return nil, save.ErrNotFound
}

func (b *countingBackend) Name() string {
	return "counting"
}

func (b *countingBackend) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.puts
}

func setupProfile(t *testing.T) (*countingBackend, string) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	backend := httptest.NewServer(api.New(config.APIConfig{LogCapacity: 20, ECPMCapacity: 20, RequestTimeout: time.Second}, logger).Handler())
	t.Cleanup(backend.Close)

	t.Setenv("TYCOON_HOME", t.TempDir())
	t.Setenv("TYCOON_LOCAL_BACKEND", "file")
	t.Setenv("TYCOON_REMOTE_DATABASE_URL", "")
	t.Setenv("TYCOON_API_BASE_URL", backend.URL)

	remote := &countingBackend{}
	prev := openEngine
	openEngine = func(ctx context.Context, cfg config.GameConfig) (*engine.Engine, error) {
		return engine.Open(ctx, cfg, logger, engine.WithRemote(remote))
	}
	t.Cleanup(func() { openEngine = prev })
	return remote, backend.URL
}

func execute(t *testing.T, cmd *cobra.Command, args ...string) {
	t.Helper()
	cmd.SetArgs(args)
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	if err := cmd.ExecuteContext(context.Background()); err != nil {
		t.Fatalf("%s %v: %v", cmd.Name(), args, err)
	}
}

func TestCommandsSaveOnce(t *testing.T) {
	remote, _ := setupProfile(t)

	execute(t, newSaveCmd())
	if got := remote.count(); got != 1 {
		t.Fatalf("save command wrote %d times", got)
	}
	execute(t, newClickCmd(), "3")
	if got := remote.count(); got != 2 {
		t.Fatalf("click command wrote %d times in total", got)
	}
	execute(t, newResetCmd(), "-y")
	if got := remote.count(); got != 3 {
		t.Fatalf("reset command wrote %d times in total", got)
	}
}

func TestBackendReadCommands(t *testing.T) {
	_, url := setupProfile(t)
	entry := ads.ECPMEntry{SDK: "admob", Value: 8.25, Source: "double_click"}
	if err := cl.NewClient(url).Post(context.Background(), "/api/ecpm-history", entry); err != nil {
		t.Fatalf("seed ecpm: %v", err)
	}
	execute(t, newECPMCmd())
	execute(t, newLogsCmd(), "-n", "5")
}
