package usecase

import (
	"testing"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestLoginAndAuthenticateEmitSpans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	// The package tracer delegates to whatever global provider is installed.
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))

	f := newAuthFixture(t, technician())
	if _, err := f.login("correct-horse"); err != nil {
		t.Fatalf("Login returned error: %v", err)
	}
	if _, err := f.svc.Authenticate(t.Context(), "not-a-token"); err == nil {
		t.Fatal("expected invalid token")
	}

	byName := map[string]sdktrace.ReadOnlySpan{}
	for _, span := range recorder.Ended() {
		byName[span.Name()] = span
	}
	for _, name := range []string{"AuthService.Login", "AuditService.Record", "AuthService.Authenticate"} {
		if _, ok := byName[name]; !ok {
			t.Fatalf("expected span %q, got %d spans", name, len(recorder.Ended()))
		}
	}
	if got := byName["AuthService.Authenticate"].Status().Code; got != codes.Error {
		t.Fatalf("expected error status on rejected token, got %v", got)
	}
}
