package imagegen

import (
	"go.opentelemetry.io/otel"
)

const scopeName = "github.com/hurricanerix/vizzy/internal/imagegen"

var (
	tracer = otel.Tracer(scopeName)
	meter  = otel.Meter(scopeName)
)
