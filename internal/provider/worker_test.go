package provider

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hurricanerix/vizzy/internal/client"
	"github.com/hurricanerix/vizzy/internal/imagegen"
	"github.com/hurricanerix/vizzy/internal/protocol"
)

// fakeWorker accepts connections on a loopback port and answers every
// request with reply. Connections are closed after closeAfter replies when
// closeAfter is positive.
type fakeWorker struct {
	ln         net.Listener
	reply      func(*protocol.GenerateRequest) []byte
	closeAfter int

	mu       sync.Mutex
	requests []protocol.GenerateRequest
	accepted atomic.Int32
}

func startFakeWorker(t *testing.T, reply func(*protocol.GenerateRequest) []byte) *fakeWorker {
	t.Helper()
	return startClosingWorker(t, reply, 0)
}

func startClosingWorker(t *testing.T, reply func(*protocol.GenerateRequest) []byte, closeAfter int) *fakeWorker {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	fw := &fakeWorker{ln: ln, reply: reply, closeAfter: closeAfter}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			fw.accepted.Add(1)
			go fw.serve(conn)
		}
	}()
	return fw
}

func (fw *fakeWorker) url() string { return "tcp://" + fw.ln.Addr().String() }

func (fw *fakeWorker) serve(conn net.Conn) {
	defer conn.Close()
	served := 0
	for {
		msg, err := protocol.ReadMessage(conn)
		if err != nil {
			return
		}
		req, err := protocol.DecodeRequest(msg)
		if err != nil {
			return
		}
		fw.mu.Lock()
		fw.requests = append(fw.requests, *req)
		fw.mu.Unlock()

		if _, err := conn.Write(fw.reply(req)); err != nil {
			return
		}
		served++
		if fw.closeAfter > 0 && served >= fw.closeAfter {
			return
		}
	}
}

func (fw *fakeWorker) lastRequest() protocol.GenerateRequest {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.requests[len(fw.requests)-1]
}

func imagesReply(t *testing.T) func(*protocol.GenerateRequest) []byte {
	img := pngBytes(t, 96, 64)
	return func(req *protocol.GenerateRequest) []byte {
		resp := &protocol.GenerateResponse{RequestID: req.RequestID, GenerationTime: 900}
		for range req.Count {
			resp.Images = append(resp.Images, img)
		}
		data, _ := protocol.EncodeGenerateResponse(resp)
		return data
	}
}

func TestNewWorker_InvalidAddress(t *testing.T) {
	_, err := NewWorker("http://gpu-box:7070")
	assert.ErrorIs(t, err, client.ErrInvalidAddress)
}

func TestWorker_Generate(t *testing.T) {
	fw := startFakeWorker(t, imagesReply(t))
	w, err := NewWorker(fw.url())
	require.NoError(t, err)
	defer w.Close()

	images, err := w.Generate(context.Background(), testRequest)
	require.NoError(t, err)
	require.Len(t, images, 2)
	width, height := decodeSize(t, images[0])
	assert.Equal(t, 96, width)
	assert.Equal(t, 64, height)

	got := fw.lastRequest()
	assert.Equal(t, "a red fox", got.Prompt)
	assert.Equal(t, "blurry", got.NegativePrompt)
	assert.Equal(t, uint32(768), got.Width)
	assert.Equal(t, uint32(30), got.Steps)
	assert.InDelta(t, 7.5, got.Guidance, 0.001)
	assert.Equal(t, uint32(2), got.Count)

	// The connection is reused.
	_, err = w.Generate(context.Background(), testRequest)
	require.NoError(t, err)
	assert.Equal(t, int32(1), fw.accepted.Load())
}

func TestWorker_CountIsCapped(t *testing.T) {
	fw := startFakeWorker(t, imagesReply(t))
	w, err := NewWorker(fw.url())
	require.NoError(t, err)
	defer w.Close()

	req := testRequest
	req.Count = 9
	images, err := w.Generate(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, images, int(protocol.MaxCount))
}

func TestWorker_Failures(t *testing.T) {
	tests := []struct {
		name    string
		reply   func(*protocol.GenerateRequest) []byte
		wantErr error
	}{
		{
			name: "worker busy",
			reply: func(req *protocol.GenerateRequest) []byte {
				data, _ := protocol.EncodeError(&protocol.ErrorResponse{
					RequestID: req.RequestID, Status: protocol.StatusServiceUnavailable, Code: protocol.ErrCodeBusy, Message: "queue full",
				})
				return data
			},
			wantErr: ErrRequestFailed,
		},
		{
			name: "no images",
			reply: func(req *protocol.GenerateRequest) []byte {
				data, _ := protocol.EncodeGenerateResponse(&protocol.GenerateResponse{RequestID: req.RequestID})
				return data
			},
			wantErr: imagegen.ErrNoImages,
		},
		{
			name: "undecodable image",
			reply: func(req *protocol.GenerateRequest) []byte {
				data, _ := protocol.EncodeGenerateResponse(&protocol.GenerateResponse{
					RequestID: req.RequestID, Images: [][]byte{[]byte("not an image")},
				})
				return data
			},
			wantErr: ErrBadResponse,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fw := startFakeWorker(t, tt.reply)
			w, err := NewWorker(fw.url())
			require.NoError(t, err)
			defer w.Close()

			_, err = w.Generate(context.Background(), testRequest)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestWorker_InvalidParameters(t *testing.T) {
	fw := startFakeWorker(t, imagesReply(t))
	w, err := NewWorker(fw.url())
	require.NoError(t, err)
	defer w.Close()

	req := testRequest
	req.Width = 770
	_, err = w.Generate(context.Background(), req)
	assert.ErrorIs(t, err, ErrRequestFailed)
}

func TestWorker_Unavailable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	w, err := NewWorker("tcp://" + addr)
	require.NoError(t, err)
	defer w.Close()

	_, err = w.Generate(context.Background(), testRequest)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestWorker_Timeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	fw := startFakeWorker(t, func(req *protocol.GenerateRequest) []byte {
		<-block
		return nil
	})
	w, err := NewWorker(fw.url())
	require.NoError(t, err)
	defer w.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = w.Generate(ctx, testRequest)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestWorker_Redials(t *testing.T) {
	fw := startClosingWorker(t, imagesReply(t), 1)
	w, err := NewWorker(fw.url())
	require.NoError(t, err)
	defer w.Close()

	_, err = w.Generate(context.Background(), testRequest)
	require.NoError(t, err)

	w.mu.Lock()
	done := w.conn.Done()
	w.mu.Unlock()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("connection not closed by worker")
	}

	_, err = w.Generate(context.Background(), testRequest)
	require.NoError(t, err)
	assert.Equal(t, int32(2), fw.accepted.Load())
}
