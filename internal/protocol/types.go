// Package protocol implements the binary framing spoken between vizzy and a
// self-hosted image worker.
//
// Every message starts with a 16-byte big-endian header followed by a
// payload whose first eight bytes are the request ID. Responses echo the
// request ID so many requests can share one connection.
package protocol

import (
	"errors"
	"fmt"
)

// Protocol version constants
const (
	ProtocolVersion1    uint16 = 0x0001
	MinSupportedVersion uint16 = ProtocolVersion1
	MaxSupportedVersion uint16 = ProtocolVersion1
	MagicNumber         uint32 = 0x56495A5A       // "VIZZ"
	MaxMessageSize      uint32 = 32 * 1024 * 1024 // 32 MB
	HeaderSize                 = 16
)

// Message type constants
const (
	MsgGenerateRequest  uint16 = 0x0001
	MsgGenerateResponse uint16 = 0x0002
	MsgError            uint16 = 0x00FF
)

// Status codes (HTTP-like)
const (
	StatusOK                  uint32 = 200
	StatusBadRequest          uint32 = 400
	StatusInternalServerError uint32 = 500
	StatusServiceUnavailable  uint32 = 503
)

// Error codes
const (
	ErrCodeNone              uint32 = 0
	ErrCodeInvalidPrompt     uint32 = 1
	ErrCodeInvalidDimensions uint32 = 2
	ErrCodeInvalidSteps      uint32 = 3
	ErrCodeInvalidGuidance   uint32 = 4
	ErrCodeInvalidCount      uint32 = 5
	ErrCodeOutOfMemory       uint32 = 6
	ErrCodeBusy              uint32 = 7
	ErrCodeInternal          uint32 = 99
)

// Sentinel errors
var (
	ErrInvalidMagic       = errors.New("invalid magic number")
	ErrUnsupportedVersion = errors.New("unsupported protocol version")
	ErrInvalidPrompt      = errors.New("invalid prompt")
	ErrInvalidDimensions  = errors.New("invalid dimensions")
	ErrInvalidSteps       = errors.New("invalid steps")
	ErrInvalidGuidance    = errors.New("invalid guidance scale")
	ErrInvalidCount       = errors.New("invalid image count")
	ErrOutOfMemory        = errors.New("worker out of memory")
	ErrBusy               = errors.New("worker busy")
	ErrInternal           = errors.New("worker internal error")
	ErrMessageTooLarge    = errors.New("message too large")
	ErrTruncated          = errors.New("truncated message")
	ErrUnexpectedType     = errors.New("unexpected message type")
)

// Generation bounds enforced on both sides of the wire.
const (
	MinDimension   uint32  = 64
	MaxDimension   uint32  = 2048
	DimensionAlign uint32  = 8
	MinSteps       uint32  = 1
	MaxSteps       uint32  = 150
	MinGuidance    float32 = 0.0
	MaxGuidance    float32 = 30.0
	MinCount       uint32  = 1
	MaxCount       uint32  = 4
	MaxPromptLen   uint32  = 4096
)

// Header is the common 16-byte header present in every message.
type Header struct {
	Magic      uint32 // 0x56495A5A ("VIZZ")
	Version    uint16
	MsgType    uint16
	PayloadLen uint32 // Length of data following header
	Reserved   uint32 // Must be 0
}

// GenerateRequest asks the worker for Count images of one prompt.
type GenerateRequest struct {
	RequestID uint64
	Width     uint32
	Height    uint32
	Steps     uint32
	Guidance  float32
	Seed      uint64 // 0 lets the worker pick
	Count     uint32

	Prompt         string
	NegativePrompt string
}

// GenerateResponse carries encoded images in request order.
type GenerateResponse struct {
	RequestID      uint64
	GenerationTime uint32 // Milliseconds elapsed on the worker
	Images         [][]byte
}

// ErrorResponse reports a failed request.
type ErrorResponse struct {
	RequestID uint64 // 0 if the request could not be parsed
	Status    uint32
	Code      uint32
	Message   string
}

// Error implements error.
func (e *ErrorResponse) Error() string {
	return fmt.Sprintf("worker error %d (status %d): %s", e.Code, e.Status, e.Message)
}

// Unwrap maps the error code to its sentinel so callers can use errors.Is.
func (e *ErrorResponse) Unwrap() error {
	switch e.Code {
	case ErrCodeInvalidPrompt:
		return ErrInvalidPrompt
	case ErrCodeInvalidDimensions:
		return ErrInvalidDimensions
	case ErrCodeInvalidSteps:
		return ErrInvalidSteps
	case ErrCodeInvalidGuidance:
		return ErrInvalidGuidance
	case ErrCodeInvalidCount:
		return ErrInvalidCount
	case ErrCodeOutOfMemory:
		return ErrOutOfMemory
	case ErrCodeBusy:
		return ErrBusy
	default:
		return ErrInternal
	}
}

// requestFixed is the fixed-size part of a generate request payload.
type requestFixed struct {
	RequestID   uint64
	Width       uint32
	Height      uint32
	Steps       uint32
	Guidance    float32
	Seed        uint64
	Count       uint32
	PromptLen   uint32
	NegativeLen uint32
}

// responseFixed is the fixed-size part of a generate response payload.
type responseFixed struct {
	RequestID      uint64
	Status         uint32
	GenerationTime uint32
	ImageCount     uint32
}

// errorFixed is the fixed-size part of an error payload.
type errorFixed struct {
	RequestID uint64
	Status    uint32
	Code      uint32
	MsgLen    uint16
}

const (
	requestFixedSize  = 44
	responseFixedSize = 20
	errorFixedSize    = 18
)
