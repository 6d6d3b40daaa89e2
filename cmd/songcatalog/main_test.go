package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"songcatalog/internal/config"
	"songcatalog/internal/persistence"
	"songcatalog/pkg/domain"
)

func TestCLIRejectsUnknownFlag(t *testing.T) {
	var stderr bytes.Buffer
	if code := cli(context.Background(), []string{"-nope"}, &stderr); code != 2 {
		t.Fatalf("expected exit code 2, got %d", code)
	}
}

func TestCLIRejectsInvalidEnv(t *testing.T) {
	t.Setenv("SONGCATALOG_SHUTDOWN_TIMEOUT", "soon")
	var stderr bytes.Buffer
	if code := cli(context.Background(), nil, &stderr); code != 2 {
		t.Fatalf("expected exit code 2, got %d", code)
	}
	if !strings.Contains(stderr.String(), "SONGCATALOG_SHUTDOWN_TIMEOUT") {
		t.Fatalf("expected env error on stderr, got %q", stderr.String())
	}
}

func TestCLIUnknownDriverFails(t *testing.T) {
	var stderr bytes.Buffer
	if code := cli(context.Background(), []string{"-driver", "tape", "-addr", "127.0.0.1:0"}, &stderr); code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
	if !strings.Contains(stderr.String(), "unknown storage driver") {
		t.Fatalf("expected driver error in log, got %q", stderr.String())
	}
}

func TestRunPersistsCatalogAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "songs.json")
	cfg, err := config.Load(func(string) string { return "" })
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	cfg.Addr = "127.0.0.1:0"
	cfg.ShutdownTimeout = 5 * time.Second
	cfg.Storage = persistence.Config{Driver: persistence.DriverFile, FilePath: path}
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))

	serve := func(fn func(base string)) {
		ctx, cancel := context.WithCancel(context.Background())
		addrs := make(chan net.Addr, 1)
		done := make(chan error, 1)
		go func() { done <- run(ctx, cfg, logger, func(a net.Addr) { addrs <- a }) }()
		select {
		case addr := <-addrs:
			fn("http://" + addr.String())
		case err := <-done:
			t.Fatalf("run exited early: %v", err)
		case <-time.After(10 * time.Second):
			t.Fatalf("server did not start")
		}
		cancel()
		if err := <-done; err != nil {
			t.Fatalf("run: %v", err)
		}
	}

	serve(func(base string) {
		resp, err := http.Post(base+"/api/v1/songs", "application/json", strings.NewReader(`{"title":"Heroes","artist":"David Bowie","genre":"Rock"}`))
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("unexpected status %d", resp.StatusCode)
		}
		resp, err = http.Post(base+"/api/v1/songs/1/play", "application/json", nil)
		if err != nil {
			t.Fatalf("play: %v", err)
		}
		_ = resp.Body.Close()
	})

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read persisted file: %v", err)
	}
	var saved []domain.Song
	if err := json.Unmarshal(raw, &saved); err != nil {
		t.Fatalf("decode persisted file: %v", err)
	}
	if len(saved) != 1 || saved[0].PlayCount != 1 {
		t.Fatalf("unexpected persisted catalog %+v", saved)
	}

	serve(func(base string) {
		resp, err := http.Post(base+"/api/v1/songs", "application/json", strings.NewReader(`{"title":"Low","artist":"David Bowie","genre":"Rock"}`))
		if err != nil {
			t.Fatalf("post: %v", err)
		}
		defer func() { _ = resp.Body.Close() }()
		var song domain.Song
		if err := json.NewDecoder(resp.Body).Decode(&song); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if song.ID != 2 {
			t.Fatalf("expected id to resume at 2, got %d", song.ID)
		}
	})
}

func TestRunStartsEmptyOnCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "songs.json")
	if err := os.WriteFile(path, []byte("not json"), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}
	var logs bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	cfg := config.Config{
		Addr:            "127.0.0.1:0",
		ShutdownTimeout: time.Second,
		Storage:         persistence.Config{Driver: persistence.DriverFile, FilePath: path},
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := run(ctx, cfg, logger, nil); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(logs.String(), "persistence load failed") {
		t.Fatalf("expected load failure to be logged, got %s", logs.String())
	}
	raw, _ := os.ReadFile(path)
	if strings.TrimSpace(string(raw)) != "[]" {
		t.Fatalf("expected empty catalog to be saved, got %q", raw)
	}
}

func TestRunWiresOptionalObservability(t *testing.T) {
	var traces, logs bytes.Buffer
	prev := traceOutput
	traceOutput = &traces
	t.Cleanup(func() { traceOutput = prev })

	logger := slog.New(slog.NewJSONHandler(&logs, nil))
	cfg := config.Config{
		Addr:            "127.0.0.1:0",
		ShutdownTimeout: 5 * time.Second,
		Storage:         persistence.Config{Driver: persistence.DriverMemory},
		TraceJSON:       true,
		AuditLog:        true,
		ExpvarMetrics:   true,
	}
	ctx, cancel := context.WithCancel(context.Background())
	addrs := make(chan net.Addr, 1)
	done := make(chan error, 1)
	go func() { done <- run(ctx, cfg, logger, func(a net.Addr) { addrs <- a }) }()

	var base string
	select {
	case addr := <-addrs:
		base = "http://" + addr.String()
	case err := <-done:
		t.Fatalf("run exited early: %v", err)
	case <-time.After(10 * time.Second):
		t.Fatalf("server did not start")
	}

	resp, err := http.Post(base+"/api/v1/songs", "application/json", strings.NewReader(`{"title":"Heroes","artist":"David Bowie","genre":"Rock"}`))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	_ = resp.Body.Close()
	resp, err = http.Get(base + "/debug/vars")
	if err != nil {
		t.Fatalf("debug vars: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected /debug/vars to be served, got %d", resp.StatusCode)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.Contains(traces.String(), `"operation":"insert_song"`) {
		t.Fatalf("expected insert span in trace output, got %q", traces.String())
	}
	if !strings.Contains(logs.String(), `"msg":"audit"`) {
		t.Fatalf("expected audit entry in logs, got %s", logs.String())
	}
}
