package provider

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/hurricanerix/vizzy/internal/client"
	"github.com/hurricanerix/vizzy/internal/imagegen"
	"github.com/hurricanerix/vizzy/internal/protocol"
)

// Worker sends requests to a self-hosted image worker over a persistent
// socket. The connection is dialed on first use and redialed after the
// worker drops it.
type Worker struct {
	network string
	address string

	mu   sync.Mutex
	conn *client.Conn
}

// NewWorker creates a provider for the worker at rawURL, which must be a
// unix:// or tcp:// address. It does not dial.
func NewWorker(rawURL string) (*Worker, error) {
	network, address, err := client.ParseAddress(rawURL)
	if err != nil {
		return nil, err
	}
	return &Worker{network: network, address: address}, nil
}

// Generate asks the worker for req.Count images in one round trip.
func (w *Worker) Generate(ctx context.Context, req imagegen.Request) ([][]byte, error) {
	ctx, span := tracer.Start(ctx, "worker generate")
	defer span.End()
	span.SetAttributes(attribute.String("worker.address", w.address))

	conn, err := w.connection(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := conn.Generate(ctx, protocol.GenerateRequest{
		Width:          uint32(max(req.Width, 0)),
		Height:         uint32(max(req.Height, 0)),
		Steps:          uint32(max(req.Steps, 0)),
		Guidance:       float32(math.Min(req.Guidance, math.MaxFloat32)),
		Count:          uint32(min(max(req.Count, 1), int(protocol.MaxCount))),
		Prompt:         req.Prompt,
		NegativePrompt: req.NegativePrompt,
	})
	if err != nil {
		return nil, w.classify(err)
	}
	if len(resp.Images) == 0 {
		return nil, imagegen.ErrNoImages
	}
	span.SetAttributes(attribute.Int("worker.generation_ms", int(resp.GenerationTime)))
	return normalize(resp.Images)
}

// Close closes the worker connection, if any.
func (w *Worker) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return nil
	}
	err := w.conn.Close()
	w.conn = nil
	return err
}

// connection returns the live connection, dialing if there is none or the
// previous one was dropped.
func (w *Worker) connection(ctx context.Context) (*client.Conn, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.conn != nil {
		select {
		case <-w.conn.Done():
			w.conn.Close()
			w.conn = nil
		default:
			return w.conn, nil
		}
	}

	conn, err := client.Dial(ctx, w.network, w.address)
	if err != nil {
		return nil, w.classify(err)
	}
	w.conn = conn
	return conn, nil
}

// classify maps worker and transport errors onto provider sentinels.
func (w *Worker) classify(err error) error {
	var workerErr *protocol.ErrorResponse
	switch {
	case errors.Is(err, context.Canceled):
		return context.Canceled
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, client.ErrConnectionTimeout),
		errors.Is(err, client.ErrReadTimeout):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case errors.As(err, &workerErr):
		return fmt.Errorf("%w: %v", ErrRequestFailed, err)
	case errors.Is(err, client.ErrWorkerNotRunning),
		errors.Is(err, client.ErrWorkerNotAccepting),
		errors.Is(err, client.ErrConnectionClosed):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	case errors.Is(err, protocol.ErrInvalidDimensions),
		errors.Is(err, protocol.ErrInvalidSteps),
		errors.Is(err, protocol.ErrInvalidGuidance),
		errors.Is(err, protocol.ErrInvalidPrompt):
		return fmt.Errorf("%w: %v", ErrRequestFailed, err)
	default:
		return fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
}
