// Copyright 2026 © The Agora Authors
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/sdk/trace"

	kerrors "github.com/jllopis/agora/pkg/errors"
)

func TestInit(t *testing.T) {
	shutdown, err := Init("test-service", "v0.0.1")
	if err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	if shutdown == nil {
		t.Fatal("Shutdown function should not be nil")
	}

	if err := shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}
}

func TestInitWithConfigErrors(t *testing.T) {
	if _, err := InitWithConfig("svc", "v1", Config{Exporter: ExporterOTLP}); !kerrors.HasCode(err, kerrors.CodeConfig) {
		t.Fatalf("expected config error for otlp without endpoint, got %v", err)
	}
	if _, err := InitWithConfig("svc", "v1", Config{Exporter: "zipkin"}); !kerrors.HasCode(err, kerrors.CodeConfig) {
		t.Fatalf("expected config error for unknown exporter, got %v", err)
	}
	shutdown, err := InitWithConfig("svc", "v1", Config{Exporter: ExporterNone})
	if err != nil {
		t.Fatalf("none exporter: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("none shutdown: %v", err)
	}
}

func TestLoggerAddsTraceIDs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, "debug", "json")

	tp := trace.NewTracerProvider()
	defer func() { _ = tp.Shutdown(context.Background()) }()
	ctx, span := tp.Tracer("test").Start(context.Background(), "op")
	logger.InfoContext(ctx, "inside span")
	span.End()

	out := buf.String()
	if !strings.Contains(out, `"trace_id"`) || !strings.Contains(out, `"span_id"`) {
		t.Fatalf("expected trace ids in %s", out)
	}

	buf.Reset()
	logger.Info("no span")
	if strings.Contains(buf.String(), "trace_id") {
		t.Fatalf("unexpected trace id without span: %s", buf.String())
	}
}

func TestParseLogLevel(t *testing.T) {
	tests := map[string]string{
		"debug":   "DEBUG",
		"WARNING": "WARN",
		"error":   "ERROR",
		"":        "INFO",
		"bogus":   "INFO",
	}
	for in, want := range tests {
		if got := parseLogLevel(in).String(); got != want {
			t.Errorf("parseLogLevel(%q) = %s, want %s", in, got, want)
		}
	}
}
