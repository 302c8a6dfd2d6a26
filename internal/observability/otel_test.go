package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/tbourn/cbo-bro-backend/internal/config"
)

func preserveOTelGlobals(t *testing.T) {
	t.Helper()
	prevTP := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
}

func enabledCfg(name string, insecure bool) config.OTELConfig {
	return config.OTELConfig{
		Enabled:     true,
		Insecure:    insecure,
		Endpoint:    "localhost:4317",
		ServiceName: name,
		SampleRatio: 1.0,
		Environment: "test",
	}
}

func TestSetupOTel_Disabled_NoOp(t *testing.T) {
	preserveOTelGlobals(t)
	prev := otel.GetTracerProvider()

	shutdown, err := SetupOTel(context.Background(), config.OTELConfig{Enabled: false}, "v0.0.0")
	if err != nil || shutdown == nil {
		t.Fatalf("shutdown=%v err=%v", shutdown, err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("no-op shutdown returned error: %v", err)
	}
	if otel.GetTracerProvider() != prev {
		t.Fatalf("disabled tracing must not replace the provider")
	}
}

func TestSetupOTel_InstallsProvider(t *testing.T) {
	for _, insecure := range []bool{true, false} {
		preserveOTelGlobals(t)

		shutdown, err := SetupOTel(context.Background(), enabledCfg("cbo-bro", insecure), "v1.2.3")
		if err != nil {
			t.Fatalf("insecure=%v: %v", insecure, err)
		}
		if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
			t.Fatalf("expected *sdktrace.TracerProvider")
		}
		_, span := otel.Tracer("test").Start(context.Background(), "span")
		span.End()

		ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
		_ = shutdown(ctx)
		cancel()
	}
}

func TestSetupOTel_ErrorsLeaveGlobalsIntact(t *testing.T) {
	preserveOTelGlobals(t)

	origExp, origRes := newOTLPExporterFn, newServiceResourceFn
	t.Cleanup(func() { newOTLPExporterFn, newServiceResourceFn = origExp, origRes })

	prevTP := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()

	newOTLPExporterFn = func(context.Context, otlptrace.Client) (*otlptrace.Exporter, error) {
		return nil, errors.New("boom-exporter")
	}
	if _, err := SetupOTel(context.Background(), enabledCfg("svc", true), "v0"); err == nil {
		t.Fatalf("expected exporter error")
	}

	newOTLPExporterFn = origExp
	newServiceResourceFn = func(context.Context, config.OTELConfig, string) (*resource.Resource, error) {
		return nil, errors.New("boom-resource")
	}
	if _, err := SetupOTel(context.Background(), enabledCfg("svc", true), "v0"); err == nil {
		t.Fatalf("expected resource error")
	}

	if otel.GetTracerProvider() != prevTP || otel.GetTextMapPropagator() != prevProp {
		t.Fatalf("globals changed on failure")
	}
}

func TestClampRatio(t *testing.T) {
	cases := map[float64]float64{-1: 0, 0: 0, 0.25: 0.25, 1: 1, 3: 1}
	for in, want := range cases {
		if got := clampRatio(in); got != want {
			t.Fatalf("clampRatio(%v)=%v want %v", in, got, want)
		}
	}
	if n := len(exporterOptions(enabledCfg("svc", true))); n != 2 {
		t.Fatalf("expected endpoint + transport options, got %d", n)
	}
}
