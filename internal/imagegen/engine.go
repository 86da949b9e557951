package imagegen

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"

	"github.com/hurricanerix/vizzy/internal/logging"
)

// Default policies.
var (
	DefaultPrimaryPolicy   = RetryPolicy{MaxAttempts: 3, Backoff: 5 * time.Second, Timeout: 120 * time.Second}
	DefaultSecondaryPolicy = Single(120 * time.Second)
)

// EngineConfig wires an Engine. Primary and Secondary may be nil to skip
// the tier. Synth is required.
type EngineConfig struct {
	Primary         Backend
	Secondary       Backend
	PrimaryPolicy   RetryPolicy
	SecondaryPolicy RetryPolicy
	Synth           Synthesizer
	Clock           Clock
	Logger          *logging.Logger
}

// Engine runs the tiered acquisition chain.
type Engine struct {
	primary         Backend
	secondary       Backend
	primaryPolicy   RetryPolicy
	secondaryPolicy RetryPolicy
	synth           Synthesizer
	clock           Clock
	logger          *logging.Logger
	tierCounter     metric.Int64Counter
}

// NewEngine creates an Engine. Zero policies take the defaults.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.PrimaryPolicy.MaxAttempts == 0 {
		cfg.PrimaryPolicy = DefaultPrimaryPolicy
	}
	if cfg.SecondaryPolicy.MaxAttempts == 0 {
		cfg.SecondaryPolicy = DefaultSecondaryPolicy
	}
	if cfg.Clock == nil {
		cfg.Clock = SystemClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}

	counter, err := meter.Int64Counter("vizzy.imagegen.acquisitions",
		metric.WithDescription("Image acquisitions by producing tier"))
	if err != nil {
		cfg.Logger.Warn("failed to create tier counter: %v", err)
	}

	return &Engine{
		primary:         cfg.Primary,
		secondary:       cfg.Secondary,
		primaryPolicy:   cfg.PrimaryPolicy,
		secondaryPolicy: cfg.SecondaryPolicy,
		synth:           cfg.Synth,
		clock:           cfg.Clock,
		logger:          cfg.Logger,
		tierCounter:     counter,
	}
}

// Acquire returns images for req, trying each tier in order until one
// produces at least one image. Remote failures are logged and absorbed.
// Short results are padded with placeholders up to req.Count. Only when
// both local tiers fail does the outcome carry no images, with Tier set
// to TierNone.
func (e *Engine) Acquire(ctx context.Context, req Request) Outcome {
	ctx, span := tracer.Start(ctx, "acquire images")
	defer span.End()

	if req.Count < 1 {
		req.Count = 1
	}
	start := e.clock.Now()

	out := e.acquire(ctx, req)
	out.Elapsed = e.clock.Now().Sub(start)

	span.SetAttributes(
		attribute.String("imagegen.tier", out.Tier.String()),
		attribute.Int("imagegen.images", len(out.Images)),
		attribute.Int("imagegen.padded", out.Padded),
	)
	if !out.OK() {
		span.SetStatus(codes.Error, "no tier produced an image")
	}
	if e.tierCounter != nil {
		e.tierCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("tier", out.Tier.String())))
	}

	e.logger.Info("acquired %d image(s) via %s tier in %v", len(out.Images), out.Tier, out.Elapsed)
	return out
}

func (e *Engine) acquire(ctx context.Context, req Request) Outcome {
	remote := []struct {
		tier    Tier
		backend Backend
		policy  RetryPolicy
	}{
		{TierPrimary, e.primary, e.primaryPolicy},
		{TierSecondary, e.secondary, e.secondaryPolicy},
	}

	for _, r := range remote {
		if r.backend == nil {
			continue
		}
		images, err := e.callRemote(ctx, r.tier, r.backend, r.policy, req)
		if err != nil {
			e.logger.Warn("%s tier failed: %v", r.tier, err)
			continue
		}
		return e.pad(Outcome{Images: images, Tier: r.tier}, req)
	}

	for _, tier := range []Tier{TierPlaceholder, TierEmergency} {
		images := e.synthesize(tier, req.Prompt, 0, req.Count)
		if len(images) == 0 {
			continue
		}
		return e.pad(Outcome{Images: images, Tier: tier}, req)
	}

	return Outcome{Tier: TierNone}
}

func (e *Engine) callRemote(ctx context.Context, tier Tier, b Backend, p RetryPolicy, req Request) (images [][]byte, err error) {
	ctx, span := tracer.Start(ctx, tier.String()+" tier")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	return Do(ctx, p, e.clock, func(ctx context.Context) (out [][]byte, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("backend panic: %v", r)
			}
		}()

		out, err = b.Generate(ctx, req)
		if err != nil {
			return nil, err
		}
		out = nonEmpty(out)
		if len(out) == 0 {
			return nil, ErrNoImages
		}
		if len(out) > req.Count {
			out = out[:req.Count]
		}
		return out, nil
	})
}

// synthesize renders up to n images with the local tier, starting at
// index offset. Images that fail to render are skipped.
func (e *Engine) synthesize(tier Tier, prompt string, offset, n int) [][]byte {
	images := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		img, err := e.render(tier, prompt, offset+i)
		if err != nil {
			e.logger.Error("%s synthesis failed: %v", tier, err)
			continue
		}
		images = append(images, img)
	}
	return images
}

func (e *Engine) render(tier Tier, prompt string, index int) (img []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if e.synth == nil {
		return nil, fmt.Errorf("no synthesizer configured")
	}
	if tier == TierPlaceholder {
		img, err = e.synth.Placeholder(prompt, index)
	} else {
		img, err = e.synth.Emergency(prompt, index)
	}
	if err == nil && len(img) == 0 {
		err = ErrNoImages
	}
	return img, err
}

// pad fills o up to req.Count with placeholders, falling back to
// emergency images if placeholders fail.
func (e *Engine) pad(o Outcome, req Request) Outcome {
	missing := req.Count - len(o.Images)
	if missing <= 0 {
		return o
	}

	extra := e.synthesize(TierPlaceholder, req.Prompt, len(o.Images), missing)
	if len(extra) < missing {
		extra = append(extra, e.synthesize(TierEmergency, req.Prompt, len(o.Images)+len(extra), missing-len(extra))...)
	}
	o.Images = append(o.Images, extra...)
	o.Padded = len(extra)
	return o
}

func nonEmpty(images [][]byte) [][]byte {
	out := images[:0:0]
	for _, img := range images {
		if len(img) > 0 {
			out = append(out, img)
		}
	}
	return out
}
