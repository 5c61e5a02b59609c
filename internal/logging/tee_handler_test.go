package logging

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
)

func TestFanoutHandlerCollapses(t *testing.T) {
	if _, ok := newFanoutHandler(nil, nil).(NoopHandler); !ok {
		t.Fatal("expected NoopHandler when every handler is nil")
	}
	inner := slog.NewJSONHandler(&bytes.Buffer{}, nil)
	if h := newFanoutHandler(nil, inner); h != inner {
		t.Fatalf("expected single handler to be returned unwrapped, got %T", h)
	}
}

func TestFanoutHandlerRespectsPerHandlerLevel(t *testing.T) {
	var info, warn bytes.Buffer
	h := newFanoutHandler(
		slog.NewJSONHandler(&info, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewJSONHandler(&warn, &slog.HandlerOptions{Level: slog.LevelWarn}),
	)
	if h.Enabled(context.Background(), slog.LevelDebug) {
		t.Fatal("debug should be disabled for both handlers")
	}

	logger := slog.New(h).With(slog.String("library", "Movies"))
	logger.Info("info line")

	if !bytes.Contains(info.Bytes(), []byte(`"library":"Movies"`)) {
		t.Fatalf("expected attrs in info handler, got %q", info.String())
	}
	if warn.Len() != 0 {
		t.Fatalf("expected warn handler to skip info record, got %q", warn.String())
	}
}
