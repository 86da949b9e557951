// Package chat is the request orchestrator: it takes one chat message and
// turns it into a question, an image answer or an illustrated story.
//
// # Turn flow
//
// A turn runs in three phases. First, inside the user's critical section,
// the message is classified against the stored state and the decision is
// recorded: a pending clarification is stored, answered or re-asked, and
// the mood, event, history and mode are remembered. The lock is released
// before anything slow happens. Second, the prompt is built and images are
// acquired; story scenes are acquired concurrently with bounded
// parallelism and reassembled by index. Third, the state is updated again
// briefly to record what the bot answered.
//
// Image acquisition never fails for upstream reasons. The only fatal
// outcome is local image synthesis failing, reported as an ErrorAnswer
// together with ErrSynthesisFailed.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/hurricanerix/vizzy/internal/clarify"
	"github.com/hurricanerix/vizzy/internal/conversation"
	"github.com/hurricanerix/vizzy/internal/imagegen"
	"github.com/hurricanerix/vizzy/internal/logging"
	"github.com/hurricanerix/vizzy/internal/mood"
	"github.com/hurricanerix/vizzy/internal/narrative"
	"github.com/hurricanerix/vizzy/internal/prompt"
	"github.com/hurricanerix/vizzy/internal/random"
	"github.com/hurricanerix/vizzy/internal/slogan"
)

var tracer = otel.Tracer("github.com/hurricanerix/vizzy/internal/chat")

// MaxMessageBytes is the longest accepted message.
const MaxMessageBytes = 10 * 1024

// DefaultStoryParallelism is how many story scenes are acquired at once.
const DefaultStoryParallelism = 3

// synthesisFailedText is shown when no image could be produced at all.
const synthesisFailedText = "Sorry, I couldn't create an image this time. Please try again."

var (
	// ErrEmptyMessage is returned for a blank message.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrMessageTooLong is returned for messages over MaxMessageBytes.
	ErrMessageTooLong = fmt.Errorf("message exceeds %d bytes", MaxMessageBytes)
	// ErrEmptyUserID is returned when no user is given.
	ErrEmptyUserID = errors.New("user id is required")
	// ErrSynthesisFailed is returned with an ErrorAnswer when even the
	// local tiers produced no image.
	ErrSynthesisFailed = errors.New("image synthesis failed")
	// ErrMissingDependency is returned by New for an incomplete Config.
	ErrMissingDependency = errors.New("missing dependency")
)

// Acquirer runs the tiered image acquisition chain.
type Acquirer interface {
	Acquire(ctx context.Context, req imagegen.Request) imagegen.Outcome
}

// Narrator produces story outlines and never fails.
type Narrator interface {
	Tell(ctx context.Context, topic, mood string) narrative.Story
}

// Request is one inbound chat message.
type Request struct {
	UserID  string
	Message string
	Mode    prompt.Mode
}

// Config wires an Orchestrator. Store, Builder and Engine are required.
type Config struct {
	Store      conversation.Store
	Classifier *clarify.Classifier
	Builder    *prompt.Builder
	Engine     Acquirer
	Narrator   Narrator
	Reasoner   *Reasoner

	// StoryParallelism bounds concurrent scene acquisitions.
	StoryParallelism int

	Now    func() time.Time
	Logger *logging.Logger
}

// Orchestrator handles chat turns.
type Orchestrator struct {
	store       conversation.Store
	classifier  *clarify.Classifier
	builder     *prompt.Builder
	engine      Acquirer
	narrator    Narrator
	reasoner    *Reasoner
	parallelism int
	now         func() time.Time
	logger      *logging.Logger
}

// New creates an Orchestrator, filling optional dependencies with
// defaults.
func New(cfg Config) (*Orchestrator, error) {
	switch {
	case cfg.Store == nil:
		return nil, fmt.Errorf("%w: store", ErrMissingDependency)
	case cfg.Builder == nil:
		return nil, fmt.Errorf("%w: prompt builder", ErrMissingDependency)
	case cfg.Engine == nil:
		return nil, fmt.Errorf("%w: image engine", ErrMissingDependency)
	}

	if cfg.Logger == nil {
		cfg.Logger = logging.Nop()
	}
	if cfg.Classifier == nil {
		cfg.Classifier = clarify.New(clarify.DefaultMaxReasks)
	}
	if cfg.Narrator == nil {
		cfg.Narrator = narrative.NewResilient(nil, nil, 0, cfg.Logger)
	}
	if cfg.Reasoner == nil {
		cfg.Reasoner = NewReasoner(random.New(0))
	}
	if cfg.StoryParallelism < 1 {
		cfg.StoryParallelism = DefaultStoryParallelism
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Orchestrator{
		store:       cfg.Store,
		classifier:  cfg.Classifier,
		builder:     cfg.Builder,
		engine:      cfg.Engine,
		narrator:    cfg.Narrator,
		reasoner:    cfg.Reasoner,
		parallelism: cfg.StoryParallelism,
		now:         cfg.Now,
		logger:      cfg.Logger,
	}, nil
}

// turn is what the first phase hands to the rest of the pipeline.
type turn struct {
	decision clarify.Decision
	mood     mood.Result
	event    string
	favorite string
}

// HandleMessage runs one turn for req.UserID.
//
// Validation failures return an error and no Result. A local synthesis
// failure returns an *ErrorAnswer together with ErrSynthesisFailed. Every
// other turn returns a Result and a nil error.
func (o *Orchestrator) HandleMessage(ctx context.Context, req Request) (res Result, err error) {
	ctx, span := tracer.Start(ctx, "handle message")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		if res != nil {
			span.SetAttributes(attribute.String("chat.result", res.Type()))
		}
		span.End()
	}()

	message := strings.TrimSpace(req.Message)
	switch {
	case req.UserID == "":
		return nil, ErrEmptyUserID
	case message == "":
		return nil, ErrEmptyMessage
	case len(message) > MaxMessageBytes:
		return nil, ErrMessageTooLong
	case !req.Mode.Valid():
		return nil, fmt.Errorf("%w: %v", prompt.ErrUnknownMode, req.Mode)
	}
	span.SetAttributes(attribute.String("chat.mode", req.Mode.String()))

	logger := o.logger.With("user", req.UserID, "mode", req.Mode.String())
	start := o.now()

	t, err := o.classify(ctx, req.UserID, message, req.Mode)
	if err != nil {
		return nil, fmt.Errorf("failed to update conversation state: %w", err)
	}
	span.SetAttributes(attribute.String("chat.decision", t.decision.Kind.String()))

	if t.decision.Kind == clarify.Vague {
		logger.Info("asking clarifying question: %s", t.decision.Reason)
		q := t.decision.Question
		return &QuestionAnswer{Text: q.Text, Suggestions: q.Suggestions}, nil
	}

	if req.Mode == prompt.ModeStory {
		res, err = o.story(ctx, t, start)
	} else {
		res, err = o.image(ctx, req.Mode, t, start)
	}

	action := conversation.ActionImage
	switch {
	case errors.Is(err, ErrSynthesisFailed):
		action = conversation.ActionError
		logger.Error("no image could be produced for the turn")
	case err != nil:
		return nil, err
	case req.Mode == prompt.ModeStory:
		action = conversation.ActionStory
	}

	o.finish(ctx, req.UserID, action, logger)
	return res, err
}

// Reset forgets everything about userID.
func (o *Orchestrator) Reset(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrEmptyUserID
	}
	return o.store.Delete(ctx, userID)
}

// classify runs the first phase inside the user's critical section. fn may
// run more than once on stores with optimistic concurrency, so it derives
// everything from the state it is given.
func (o *Orchestrator) classify(ctx context.Context, userID, message string, mode prompt.Mode) (turn, error) {
	var t turn
	_, err := o.store.Update(ctx, userID, func(st *conversation.UserTurnState) error {
		now := o.now()

		d := o.classifier.Classify(message, *st)
		d.Apply(st, now)
		st.AddMessage(message)
		st.LastUpdatedAt = now

		t = turn{decision: d}
		if d.Kind == clarify.Vague {
			return nil
		}

		m := d.Mood
		if d.Kind != clarify.Resolution {
			m = mood.Extract(d.Message)
			switch {
			case m.Found:
				st.RememberedMood = m.Label()
			case st.RememberedMood != "":
				m = mood.FromLabel(st.RememberedMood)
			}
		}
		if event := mood.DetectEvent(d.Message); event != "" {
			st.LastEvent = event
		}
		st.LastMode = mode.String()

		t.mood = m
		t.event = st.LastEvent
		t.favorite = st.FavoriteStyle()
		return nil
	})
	return t, err
}

// finish records the bot's answer. It runs even if ctx was cancelled so
// the turn is never left half recorded.
func (o *Orchestrator) finish(ctx context.Context, userID, action string, logger *logging.Logger) {
	_, err := o.store.Update(context.WithoutCancel(ctx), userID, func(st *conversation.UserTurnState) error {
		st.LastBotAction = action
		st.LastUpdatedAt = o.now()
		return nil
	})
	if err != nil {
		logger.Warn("failed to record bot action: %v", err)
	}
}

func (o *Orchestrator) input(t turn) prompt.Input {
	return prompt.Input{
		Message:       t.decision.Message,
		Mood:          t.mood,
		Event:         t.event,
		FavoriteStyle: t.favorite,
	}
}

func (o *Orchestrator) image(ctx context.Context, mode prompt.Mode, t turn, start time.Time) (Result, error) {
	in := o.input(t)
	if mode == prompt.ModePoster {
		in.Slogan, _ = slogan.Extract(t.decision.Message)
	}

	plan, err := o.builder.Build(mode, in)
	if err != nil {
		return nil, fmt.Errorf("failed to build prompt: %w", err)
	}

	out := o.engine.Acquire(ctx, plan.Requests[0])
	if !out.OK() {
		return &ErrorAnswer{Text: synthesisFailedText}, ErrSynthesisFailed
	}

	return &ImageAnswer{
		Images:     out.Images,
		Reasoning:  o.reasoner.Explain(mode, t.decision.Message, t.mood.Label()),
		PromptUsed: plan.Prompt(),
		Mode:       mode,
		Style:      plan.Style,
		Slogan:     plan.Slogan,
		Metadata: Metadata{
			GenerationTime: o.now().Sub(start),
			Mood:           t.mood.Label(),
			Mode:           mode,
			Tier:           out.Tier,
			Padded:         out.Padded,
		},
	}, nil
}

func (o *Orchestrator) story(ctx context.Context, t turn, start time.Time) (Result, error) {
	told := o.narrator.Tell(ctx, t.decision.Message, t.mood.Label())

	in := o.input(t)
	in.Scenes = told.Scenes
	plan, err := o.builder.Build(prompt.ModeStory, in)
	if err != nil {
		return nil, fmt.Errorf("failed to build prompt: %w", err)
	}

	outcomes := make([]imagegen.Outcome, len(plan.Requests))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.parallelism)
	for i, r := range plan.Requests {
		g.Go(func() error {
			outcomes[i] = o.engine.Acquire(gctx, r)
			return nil
		})
	}
	_ = g.Wait()

	answer := &StoryAnswer{
		Title:  told.Title,
		Scenes: make([]Scene, len(outcomes)),
		Style:  plan.Style,
		Metadata: Metadata{
			Mood:     t.mood.Label(),
			Mode:     prompt.ModeStory,
			Degraded: told.Degraded,
		},
	}
	for i, out := range outcomes {
		if !out.OK() {
			return &ErrorAnswer{Text: synthesisFailedText}, ErrSynthesisFailed
		}
		answer.Scenes[i] = Scene{
			Number:      i + 1,
			Description: told.Scenes[i],
			Image:       out.Images[0],
			Tier:        out.Tier,
		}
		answer.Metadata.Tier = max(answer.Metadata.Tier, out.Tier)
		answer.Metadata.Padded += out.Padded
	}

	answer.Reasoning = o.reasoner.Explain(prompt.ModeStory, t.decision.Message, t.mood.Label())
	if told.Degraded {
		answer.Reasoning += " " + improvisedNote
	}
	answer.Metadata.GenerationTime = o.now().Sub(start)
	return answer, nil
}
