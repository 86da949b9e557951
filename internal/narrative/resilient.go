package narrative

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/hurricanerix/vizzy/internal/logging"
)

var tracer = otel.Tracer("github.com/hurricanerix/vizzy/internal/narrative")

// DefaultTimeout bounds a single remote outline request.
const DefaultTimeout = 30 * time.Second

// Story is an outline plus whether it came from the fallback template
// after the configured generator failed.
type Story struct {
	Outline
	Degraded bool
}

// Resilient runs a Generator and falls back to a Template on any failure,
// including panics, timeouts and empty outlines.
type Resilient struct {
	gen      Generator
	fallback *Template
	timeout  time.Duration
	logger   *logging.Logger
}

// NewResilient wraps gen. A nil gen uses the fallback directly and is
// never reported as degraded.
func NewResilient(gen Generator, fallback *Template, timeout time.Duration, logger *logging.Logger) *Resilient {
	if fallback == nil {
		fallback = NewTemplate(nil)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Resilient{gen: gen, fallback: fallback, timeout: timeout, logger: logger}
}

// Tell returns an outline for topic. It never fails for a non-empty topic.
func (r *Resilient) Tell(ctx context.Context, topic, mood string) Story {
	ctx, span := tracer.Start(ctx, "narrative outline")
	defer span.End()

	if r.gen != nil {
		o, err := r.generate(ctx, topic, mood)
		if err == nil {
			span.SetAttributes(attribute.Int("narrative.scenes", len(o.Scenes)))
			return Story{Outline: o}
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Warn("narrative generator failed, using template: %v", err)
	}

	o, err := r.fallback.Generate(ctx, topic, mood)
	if err == nil {
		o, err = o.Clean(topic)
	}
	if err != nil {
		// Empty topic: still hand back something drawable.
		o = Outline{Title: Title(mood + " story"), Scenes: []string{
			fmt.Sprintf("In a %s setting, our story begins.", mood),
			fmt.Sprintf("The journey continues as the %s atmosphere deepens.", mood),
			fmt.Sprintf("In a %s conclusion, everything comes together beautifully.", mood),
		}}
	}
	span.SetAttributes(attribute.Bool("narrative.degraded", r.gen != nil))
	return Story{Outline: o, Degraded: r.gen != nil}
}

func (r *Resilient) generate(ctx context.Context, topic, mood string) (o Outline, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("narrative generator panic: %v", rec)
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	o, err = r.gen.Generate(ctx, topic, mood)
	if err != nil {
		return Outline{}, err
	}
	return o.Clean(topic)
}
