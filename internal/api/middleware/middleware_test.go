package middleware

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

type hijackRecorder struct {
	*httptest.ResponseRecorder
	hijacked bool
}

func (h *hijackRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h.hijacked = true
	return nil, nil, nil
}

func TestLogger_RecordsStatus(t *testing.T) {
	var seen *statusRecorder
	h := Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = w.(*statusRecorder)
		w.WriteHeader(http.StatusTeapot)
		w.Write([]byte("short and stout"))
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusTeapot)
	}
	if seen.status != http.StatusTeapot || seen.written != len("short and stout") {
		t.Errorf("captured status=%d bytes=%d", seen.status, seen.written)
	}
	if seen.upgraded {
		t.Error("plain request marked as upgraded")
	}
}

func TestStatusRecorder_Hijack(t *testing.T) {
	inner := &hijackRecorder{ResponseRecorder: httptest.NewRecorder()}
	rec := newStatusRecorder(inner)

	if _, _, err := rec.Hijack(); err != nil {
		t.Fatalf("Hijack() error = %v", err)
	}
	if !inner.hijacked {
		t.Error("underlying writer was not hijacked")
	}
	if rec.status != http.StatusSwitchingProtocols || !rec.upgraded {
		t.Errorf("status = %d upgraded = %v, want 101 true", rec.status, rec.upgraded)
	}
}

func TestStatusRecorder_HijackUnsupported(t *testing.T) {
	rec := newStatusRecorder(httptest.NewRecorder())
	if _, _, err := rec.Hijack(); err == nil {
		t.Error("Hijack() on a non-hijacker should fail")
	}
	if rec.Unwrap() == nil {
		t.Error("Unwrap() = nil")
	}
}

func TestRoutePattern(t *testing.T) {
	var got string
	r := chi.NewRouter()
	r.Get("/tasks/{taskID}", func(w http.ResponseWriter, req *http.Request) {
		got = routePattern(req)
	})
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/tasks/t-42", nil))
	if got != "/tasks/{taskID}" {
		t.Errorf("routePattern() = %q, want /tasks/{taskID}", got)
	}

	bare := httptest.NewRequest(http.MethodGet, "/unrouted", nil)
	if p := routePattern(bare); p != "/unrouted" {
		t.Errorf("routePattern() without chi = %q, want /unrouted", p)
	}
}

func TestTelemetry_SpanNamedByRoute(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	otel.SetTracerProvider(tp)
	t.Cleanup(func() { tp.Shutdown(context.Background()) })

	r := chi.NewRouter()
	r.Use(Telemetry)
	r.Get("/runplans/{runPlanID}", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/runplans/rp-1", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}

	spans := sr.Ended()
	if len(spans) != 1 {
		t.Fatalf("ended spans = %d, want 1", len(spans))
	}
	span := spans[0]
	if span.Name() != "GET /runplans/{runPlanID}" {
		t.Errorf("span name = %q", span.Name())
	}
	if span.Status().Code != codes.Error {
		t.Errorf("span status = %v, want Error", span.Status().Code)
	}
	found := false
	for _, kv := range span.Attributes() {
		if kv.Key == attribute.Key("http.route") && kv.Value.AsString() == "/runplans/{runPlanID}" {
			found = true
		}
	}
	if !found {
		t.Errorf("http.route attribute missing: %v", span.Attributes())
	}
}
