package client

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/hurricanerix/vizzy/internal/protocol"
)

// serveWorker answers requests read from conn. Each request is handled on
// its own goroutine so slow requests can finish out of order.
func serveWorker(t *testing.T, conn net.Conn, handle func(*protocol.GenerateRequest) []byte) {
	t.Helper()
	var writeMu sync.Mutex
	go func() {
		for {
			msg, err := protocol.ReadMessage(conn)
			if err != nil {
				return
			}
			req, err := protocol.DecodeRequest(msg)
			if err != nil {
				id, _ := protocol.RequestID(msg)
				reply, _ := protocol.EncodeError(&protocol.ErrorResponse{
					RequestID: id, Status: protocol.StatusBadRequest, Code: protocol.ErrCodeInvalidPrompt, Message: err.Error(),
				})
				writeMu.Lock()
				conn.Write(reply)
				writeMu.Unlock()
				continue
			}
			go func() {
				reply := handle(req)
				if reply == nil {
					return
				}
				writeMu.Lock()
				conn.Write(reply)
				writeMu.Unlock()
			}()
		}
	}()
}

// echoImages replies with one image per requested count naming the prompt.
func echoImages(req *protocol.GenerateRequest) []byte {
	resp := &protocol.GenerateResponse{RequestID: req.RequestID, GenerationTime: 12}
	for i := range req.Count {
		resp.Images = append(resp.Images, []byte(fmt.Sprintf("%s#%d", req.Prompt, i)))
	}
	data, _ := protocol.EncodeGenerateResponse(resp)
	return data
}

func testRequest(prompt string) protocol.GenerateRequest {
	return protocol.GenerateRequest{Width: 512, Height: 512, Steps: 20, Guidance: 7, Count: 2, Prompt: prompt}
}

// pipeConn returns a client Conn wired to a fake worker over net.Pipe.
func pipeConn(t *testing.T, handle func(*protocol.GenerateRequest) []byte) *Conn {
	t.Helper()
	clientSide, workerSide := net.Pipe()
	serveWorker(t, workerSide, handle)
	c := newConn(clientSide)
	t.Cleanup(func() {
		c.Close()
		workerSide.Close()
	})
	return c
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		raw         string
		wantNetwork string
		wantAddr    string
		wantErr     bool
	}{
		{"unix:///run/vizzy/worker.sock", "unix", "/run/vizzy/worker.sock", false},
		{"tcp://gpu-box:7070", "tcp", "gpu-box:7070", false},
		{"tcp://127.0.0.1:7070", "tcp", "127.0.0.1:7070", false},
		{"tcp://gpu-box", "", "", true},
		{"unix://", "", "", true},
		{"http://gpu-box:7070", "", "", true},
		{"/run/vizzy/worker.sock", "", "", true},
		{"://", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			network, addr, err := ParseAddress(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidAddress) {
					t.Errorf("ParseAddress() error = %v, want ErrInvalidAddress", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseAddress() error = %v", err)
			}
			if network != tt.wantNetwork || addr != tt.wantAddr {
				t.Errorf("ParseAddress() = %q, %q, want %q, %q", network, addr, tt.wantNetwork, tt.wantAddr)
			}
		})
	}
}

func TestConn_Generate(t *testing.T) {
	c := pipeConn(t, echoImages)
	resp, err := c.Generate(context.Background(), testRequest("a red fox"))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(resp.Images) != 2 {
		t.Fatalf("got %d images, want 2", len(resp.Images))
	}
	if string(resp.Images[1]) != "a red fox#1" {
		t.Errorf("Images[1] = %q", resp.Images[1])
	}
	if resp.GenerationTime != 12 {
		t.Errorf("GenerationTime = %d, want 12", resp.GenerationTime)
	}
}

func TestConn_GenerateConcurrent(t *testing.T) {
	// Later requests answer first so responses arrive out of order.
	c := pipeConn(t, func(req *protocol.GenerateRequest) []byte {
		time.Sleep(time.Duration(10-req.RequestID) * 5 * time.Millisecond)
		return echoImages(req)
	})

	const n = 8
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			prompt := fmt.Sprintf("prompt %d", i)
			resp, err := c.Generate(context.Background(), testRequest(prompt))
			if err != nil {
				errs <- err
				return
			}
			if got := string(resp.Images[0]); got != prompt+"#0" {
				errs <- fmt.Errorf("request %q got %q", prompt, got)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}

func TestConn_WorkerError(t *testing.T) {
	c := pipeConn(t, func(req *protocol.GenerateRequest) []byte {
		data, _ := protocol.EncodeError(&protocol.ErrorResponse{
			RequestID: req.RequestID, Status: protocol.StatusServiceUnavailable, Code: protocol.ErrCodeBusy, Message: "queue full",
		})
		return data
	})

	_, err := c.Generate(context.Background(), testRequest("a cat"))
	if !errors.Is(err, protocol.ErrBusy) {
		t.Fatalf("Generate() error = %v, want ErrBusy", err)
	}
	var workerErr *protocol.ErrorResponse
	if !errors.As(err, &workerErr) || workerErr.Message != "queue full" {
		t.Errorf("error = %#v, want worker message", err)
	}
}

func TestConn_InvalidRequest(t *testing.T) {
	c := pipeConn(t, echoImages)
	req := testRequest("a cat")
	req.Count = 0
	if _, err := c.Generate(context.Background(), req); !errors.Is(err, protocol.ErrInvalidCount) {
		t.Errorf("Generate() error = %v, want ErrInvalidCount", err)
	}
}

func TestConn_ContextDeadline(t *testing.T) {
	// The worker never answers.
	c := pipeConn(t, func(*protocol.GenerateRequest) []byte { return nil })

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := c.Generate(ctx, testRequest("a cat")); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Generate() error = %v, want DeadlineExceeded", err)
	}

	c.mu.Lock()
	pending := len(c.pendingRequests)
	c.mu.Unlock()
	if pending != 0 {
		t.Errorf("%d requests still pending after timeout", pending)
	}

	cancelled, stop := context.WithCancel(context.Background())
	stop()
	if _, err := c.Generate(cancelled, testRequest("a cat")); !errors.Is(err, context.Canceled) {
		t.Errorf("Generate(cancelled) error = %v, want Canceled", err)
	}
}

func TestConn_WorkerDisconnects(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	clientSide, workerSide := net.Pipe()
	c := newConn(clientSide)
	defer c.Close()

	go func() {
		// Read the request, then hang up without answering.
		protocol.ReadMessage(workerSide)
		workerSide.Close()
	}()

	_, err := c.Generate(context.Background(), testRequest("a cat"))
	if !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("Generate() error = %v, want ErrConnectionClosed", err)
	}

	select {
	case <-c.Done():
	case <-time.After(time.Second):
		t.Fatal("Done() not closed after disconnect")
	}

	if _, err := c.Generate(context.Background(), testRequest("again")); !errors.Is(err, ErrConnectionClosed) {
		t.Errorf("Generate() after disconnect error = %v, want ErrConnectionClosed", err)
	}
}

func TestConn_FailedConnectionRejectsNewRequests(t *testing.T) {
	clientSide, workerSide := net.Pipe()
	defer workerSide.Close()
	c := newConn(clientSide)
	defer c.Close()

	// The reader is still running when the connection is marked failed.
	c.fail(ErrConnectionClosed)

	select {
	case <-c.Done():
	default:
		t.Fatal("Done() still open after fail")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	start := time.Now()
	_, err := c.Generate(ctx, testRequest("too late"))
	if !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("Generate() error = %v, want ErrConnectionClosed", err)
	}
	if elapsed := time.Since(start); elapsed > 100*time.Millisecond {
		t.Errorf("Generate() took %v, want an immediate failure", elapsed)
	}

	c.mu.Lock()
	pending := len(c.pendingRequests)
	c.mu.Unlock()
	if pending != 0 {
		t.Errorf("%d requests registered on a failed connection", pending)
	}

	// A second failure from the exiting reader is a no-op.
	c.fail(ErrReaderDead)
	c.mu.Lock()
	got := c.readerErr
	c.mu.Unlock()
	if !errors.Is(got, ErrConnectionClosed) {
		t.Errorf("readerErr = %v, want first error kept", got)
	}
}

func TestDial_Unix(t *testing.T) {
	dir, err := os.MkdirTemp("", "vz")
	if err != nil {
		t.Fatal(err)
	}
	defer os.RemoveAll(dir)
	path := filepath.Join(dir, "w.sock")

	if _, err := Dial(context.Background(), "unix", path); !errors.Is(err, ErrWorkerNotRunning) {
		t.Errorf("Dial(missing socket) error = %v, want ErrWorkerNotRunning", err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatal(err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		serveWorker(t, conn, echoImages)
	}()

	c, err := Dial(context.Background(), "unix", path)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer c.Close()

	resp, err := c.Generate(context.Background(), testRequest("a unix fox"))
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(resp.Images) != 2 {
		t.Errorf("got %d images, want 2", len(resp.Images))
	}
}

func TestDial_Refused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	if _, err := Dial(context.Background(), "tcp", addr); !errors.Is(err, ErrWorkerNotAccepting) {
		t.Errorf("Dial() error = %v, want ErrWorkerNotAccepting", err)
	}
}
