package usecase

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracer resolves against the global provider, which is a no-op until
// telemetry.NewTracerProvider installs the SDK.
var tracer = otel.Tracer("github.com/arklim/labsys-access/internal/usecase")

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
