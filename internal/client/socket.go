// Package client provides connectivity to a self-hosted image worker.
//
// A Conn is a persistent, multiplexed connection: many goroutines can call
// Generate concurrently, every request carries a fresh request ID, and a
// background reader routes each response back to its caller.
//
// Typical usage:
//
//	network, addr, err := client.ParseAddress("unix:///run/vizzy/worker.sock")
//	if err != nil {
//	    return err
//	}
//	conn, err := client.Dial(ctx, network, addr)
//	if err != nil {
//	    return err
//	}
//	defer conn.Close()
//
//	resp, err := conn.Generate(ctx, protocol.GenerateRequest{...})
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/hurricanerix/vizzy/internal/protocol"
)

const (
	// connectTimeout is the maximum time to wait for a connection to establish
	connectTimeout = 5 * time.Second
	// readTimeout bounds a request whose context has no deadline
	readTimeout = 2 * time.Minute
)

var (
	// ErrInvalidAddress is returned for worker addresses that are not
	// unix:// or tcp:// URLs
	ErrInvalidAddress = errors.New("invalid worker address")
	// ErrWorkerNotRunning is returned when the socket file doesn't exist
	ErrWorkerNotRunning = errors.New("image worker not running (socket not found)")
	// ErrWorkerNotAccepting is returned when the connection is refused
	ErrWorkerNotAccepting = errors.New("image worker not accepting connections")
	// ErrConnectionTimeout is returned when the connection attempt times out
	ErrConnectionTimeout = errors.New("image worker connection timeout")
	// ErrReadTimeout is returned when no response arrives in time
	ErrReadTimeout = errors.New("image worker read timeout")
	// ErrConnectionClosed is returned when the worker closes the connection
	ErrConnectionClosed = errors.New("image worker closed connection")
	// ErrReaderDead is returned when the response reader goroutine has stopped
	ErrReaderDead = errors.New("response reader goroutine has stopped")
	// ErrMismatchedResponse is returned when a response carries another request's ID
	ErrMismatchedResponse = errors.New("response does not match request")
)

// ParseAddress splits a worker URL into a network and address suitable
// for net.Dial. Supported forms are unix:///path/to.sock and tcp://host:port.
func ParseAddress(raw string) (network, address string, err error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidAddress, err)
	}
	switch u.Scheme {
	case "unix":
		if u.Path == "" {
			return "", "", fmt.Errorf("%w: unix address needs a socket path", ErrInvalidAddress)
		}
		return "unix", u.Path, nil
	case "tcp":
		if u.Host == "" || u.Port() == "" {
			return "", "", fmt.Errorf("%w: tcp address needs host:port", ErrInvalidAddress)
		}
		return "tcp", u.Host, nil
	default:
		return "", "", fmt.Errorf("%w: scheme must be unix or tcp, got %q", ErrInvalidAddress, u.Scheme)
	}
}

// Conn is a multiplexed connection to an image worker.
type Conn struct {
	conn   net.Conn
	nextID atomic.Uint64

	writeMu sync.Mutex

	mu              sync.Mutex
	pendingRequests map[uint64]chan []byte // Maps request ID to response channel
	readerDone      chan struct{}          // Closed under mu once the connection has failed
	readerErr       error                  // Error from response reader (if any)

	readerExited chan struct{} // Closed when the response reader goroutine returns
}

// Dial connects to the worker and starts the response reader.
//
// CALLER MUST call Close() on the returned Conn to stop the background
// goroutine and release resources.
//
// Returns ErrWorkerNotRunning if the socket file doesn't exist.
// Returns ErrWorkerNotAccepting if the worker refuses the connection.
// Returns ErrConnectionTimeout if the connection attempt times out.
func Dial(ctx context.Context, network, address string) (*Conn, error) {
	dialer := &net.Dialer{Timeout: connectTimeout}
	conn, err := dialer.DialContext(ctx, network, address)
	if err != nil {
		return nil, classifyDialError(err)
	}
	return newConn(conn), nil
}

func newConn(conn net.Conn) *Conn {
	c := &Conn{
		conn:            conn,
		pendingRequests: make(map[uint64]chan []byte),
		readerDone:      make(chan struct{}),
		readerExited:    make(chan struct{}),
	}
	go c.responseReader()
	return c
}

// Close closes the connection and waits for the response reader to exit.
func (c *Conn) Close() error {
	err := c.conn.Close()
	<-c.readerExited
	return err
}

// Done is closed once the connection can no longer be used.
func (c *Conn) Done() <-chan struct{} {
	return c.readerDone
}

// Generate sends req with a fresh request ID and waits for the worker's
// answer. A worker error response is returned as a *protocol.ErrorResponse.
func (c *Conn) Generate(ctx context.Context, req protocol.GenerateRequest) (*protocol.GenerateResponse, error) {
	req.RequestID = c.nextID.Add(1)

	msg, err := protocol.EncodeGenerateRequest(&req)
	if err != nil {
		return nil, err
	}

	raw, err := c.Send(ctx, msg)
	if err != nil {
		return nil, err
	}

	decoded, err := protocol.DecodeResponse(raw)
	if err != nil {
		return nil, err
	}
	switch resp := decoded.(type) {
	case *protocol.GenerateResponse:
		if resp.RequestID != req.RequestID {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrMismatchedResponse, resp.RequestID, req.RequestID)
		}
		return resp, nil
	case *protocol.ErrorResponse:
		return nil, resp
	default:
		return nil, fmt.Errorf("%w: %T", protocol.ErrUnexpectedType, decoded)
	}
}

// Send writes an encoded request and waits for the response carrying the
// same request ID. Multiple goroutines can call Send concurrently.
func (c *Conn) Send(ctx context.Context, request []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	requestID, ok := protocol.RequestID(request)
	if !ok {
		return nil, fmt.Errorf("request too short: %d bytes", len(request))
	}

	// Create response channel for this request
	responseCh := make(chan []byte, 1)

	c.mu.Lock()
	select {
	case <-c.readerDone:
		err := c.readerErr
		c.mu.Unlock()
		if err != nil {
			return nil, err
		}
		return nil, ErrReaderDead
	default:
	}
	c.pendingRequests[requestID] = responseCh
	c.mu.Unlock()

	c.writeMu.Lock()
	_, err := c.conn.Write(request)
	c.writeMu.Unlock()
	if err != nil {
		c.forget(requestID)
		return nil, fmt.Errorf("failed to write request: %w", err)
	}

	timeout := readTimeout
	if deadline, ok := ctx.Deadline(); ok {
		timeout = time.Until(deadline)
		if timeout <= 0 {
			c.forget(requestID)
			return nil, ctx.Err()
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		c.forget(requestID)
		return nil, ctx.Err()

	case <-timer.C:
		c.forget(requestID)
		return nil, ErrReadTimeout

	case response, ok := <-responseCh:
		if !ok {
			// Channel closed by response reader due to error
			c.mu.Lock()
			err := c.readerErr
			c.mu.Unlock()
			if err != nil {
				return nil, err
			}
			return nil, ErrConnectionClosed
		}
		return response, nil
	}
}

func (c *Conn) forget(requestID uint64) {
	c.mu.Lock()
	delete(c.pendingRequests, requestID)
	c.mu.Unlock()
}

// responseReader reads responses and routes them to pending requests until
// the connection fails.
func (c *Conn) responseReader() {
	defer close(c.readerExited)

	for {
		response, err := protocol.ReadMessage(c.conn)
		if err != nil {
			c.fail(classifyReadError(err))
			return
		}

		requestID, ok := protocol.RequestID(response)
		if !ok {
			// Too short to carry a request ID; nobody is waiting for it.
			continue
		}

		c.mu.Lock()
		ch, ok := c.pendingRequests[requestID]
		if ok {
			delete(c.pendingRequests, requestID)
		}
		c.mu.Unlock()

		// Late responses after a timeout have no receiver and are dropped.
		if ok {
			ch <- response
		}
	}
}

// fail records err, wakes every pending request and marks the connection
// done. Done is closed while mu is held so Send never registers a request
// after the last waiter was woken. Only the first call has any effect.
func (c *Conn) fail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.readerDone:
		return
	default:
	}
	c.readerErr = err
	for _, ch := range c.pendingRequests {
		close(ch)
	}
	c.pendingRequests = make(map[uint64]chan []byte)
	close(c.readerDone)
}

// classifyDialError converts low-level dial errors into user-friendly errors
func classifyDialError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrConnectionTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrConnectionTimeout
	}

	if errors.Is(err, syscall.ENOENT) {
		return ErrWorkerNotRunning
	}
	if errors.Is(err, syscall.ECONNREFUSED) {
		return ErrWorkerNotAccepting
	}

	return fmt.Errorf("failed to connect to image worker: %w", err)
}

// classifyReadError converts low-level read errors into user-friendly errors
func classifyReadError(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed) {
		return ErrConnectionClosed
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return ErrConnectionClosed
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrReadTimeout
	}

	return fmt.Errorf("failed to read from image worker: %w", err)
}
