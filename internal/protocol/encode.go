package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
)

// EncodeGenerateRequest encodes req after validating it.
func EncodeGenerateRequest(req *GenerateRequest) ([]byte, error) {
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}

	payloadLen := uint32(requestFixedSize + len(req.Prompt) + len(req.NegativePrompt))
	if err := checkSize(payloadLen); err != nil {
		return nil, err
	}

	buf := new(bytes.Buffer)
	buf.Grow(HeaderSize + int(payloadLen))
	writeHeader(buf, MsgGenerateRequest, payloadLen)

	binary.Write(buf, binary.BigEndian, requestFixed{
		RequestID:   req.RequestID,
		Width:       req.Width,
		Height:      req.Height,
		Steps:       req.Steps,
		Guidance:    req.Guidance,
		Seed:        req.Seed,
		Count:       req.Count,
		PromptLen:   uint32(len(req.Prompt)),
		NegativeLen: uint32(len(req.NegativePrompt)),
	})
	buf.WriteString(req.Prompt)
	buf.WriteString(req.NegativePrompt)

	return buf.Bytes(), nil
}

// EncodeGenerateResponse encodes a successful response.
func EncodeGenerateResponse(resp *GenerateResponse) ([]byte, error) {
	if resp == nil {
		return nil, fmt.Errorf("response is nil")
	}

	size := responseFixedSize
	for _, img := range resp.Images {
		size += 4 + len(img)
	}
	payloadLen := uint32(size)
	if uint64(size) > uint64(MaxMessageSize) {
		return nil, fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrMessageTooLarge, size, MaxMessageSize)
	}

	buf := new(bytes.Buffer)
	buf.Grow(HeaderSize + size)
	writeHeader(buf, MsgGenerateResponse, payloadLen)

	binary.Write(buf, binary.BigEndian, responseFixed{
		RequestID:      resp.RequestID,
		Status:         StatusOK,
		GenerationTime: resp.GenerationTime,
		ImageCount:     uint32(len(resp.Images)),
	})
	for _, img := range resp.Images {
		binary.Write(buf, binary.BigEndian, uint32(len(img)))
		buf.Write(img)
	}

	return buf.Bytes(), nil
}

// EncodeError encodes an error response. Messages longer than the length
// field allows are truncated.
func EncodeError(resp *ErrorResponse) ([]byte, error) {
	if resp == nil {
		return nil, fmt.Errorf("response is nil")
	}
	if resp.Status != StatusBadRequest && resp.Status != StatusInternalServerError && resp.Status != StatusServiceUnavailable {
		return nil, fmt.Errorf("invalid status for ERROR: %d", resp.Status)
	}

	msg := resp.Message
	if len(msg) > math.MaxUint16 {
		msg = msg[:math.MaxUint16]
	}
	payloadLen := uint32(errorFixedSize + len(msg))

	buf := new(bytes.Buffer)
	writeHeader(buf, MsgError, payloadLen)
	binary.Write(buf, binary.BigEndian, errorFixed{
		RequestID: resp.RequestID,
		Status:    resp.Status,
		Code:      resp.Code,
		MsgLen:    uint16(len(msg)),
	})
	buf.WriteString(msg)

	return buf.Bytes(), nil
}

// ValidateRequest checks every generation parameter against the protocol
// bounds.
func ValidateRequest(req *GenerateRequest) error {
	if req == nil {
		return fmt.Errorf("request is nil")
	}

	// Validate dimensions
	if req.Width < MinDimension || req.Width > MaxDimension || req.Width%DimensionAlign != 0 {
		return fmt.Errorf("%w: width %d (must be %d-%d, multiple of %d)", ErrInvalidDimensions, req.Width, MinDimension, MaxDimension, DimensionAlign)
	}
	if req.Height < MinDimension || req.Height > MaxDimension || req.Height%DimensionAlign != 0 {
		return fmt.Errorf("%w: height %d (must be %d-%d, multiple of %d)", ErrInvalidDimensions, req.Height, MinDimension, MaxDimension, DimensionAlign)
	}

	// Validate steps
	if req.Steps < MinSteps || req.Steps > MaxSteps {
		return fmt.Errorf("%w: steps %d not in range [%d, %d]", ErrInvalidSteps, req.Steps, MinSteps, MaxSteps)
	}

	// Validate guidance
	g := float64(req.Guidance)
	if math.IsNaN(g) || math.IsInf(g, 0) {
		return fmt.Errorf("%w: guidance is not finite", ErrInvalidGuidance)
	}
	if req.Guidance < MinGuidance || req.Guidance > MaxGuidance {
		return fmt.Errorf("%w: guidance %.2f not in range [%.1f, %.1f]", ErrInvalidGuidance, req.Guidance, MinGuidance, MaxGuidance)
	}

	// Validate count
	if req.Count < MinCount || req.Count > MaxCount {
		return fmt.Errorf("%w: count %d not in range [%d, %d]", ErrInvalidCount, req.Count, MinCount, MaxCount)
	}

	// Validate prompts
	if len(req.Prompt) == 0 {
		return fmt.Errorf("%w: prompt is empty", ErrInvalidPrompt)
	}
	if uint32(len(req.Prompt)) > MaxPromptLen {
		return fmt.Errorf("%w: prompt length %d exceeds maximum %d", ErrInvalidPrompt, len(req.Prompt), MaxPromptLen)
	}
	if uint32(len(req.NegativePrompt)) > MaxPromptLen {
		return fmt.Errorf("%w: negative prompt length %d exceeds maximum %d", ErrInvalidPrompt, len(req.NegativePrompt), MaxPromptLen)
	}

	return nil
}

func writeHeader(buf *bytes.Buffer, msgType uint16, payloadLen uint32) {
	binary.Write(buf, binary.BigEndian, Header{
		Magic:      MagicNumber,
		Version:    ProtocolVersion1,
		MsgType:    msgType,
		PayloadLen: payloadLen,
	})
}

func checkSize(payloadLen uint32) error {
	if total := uint64(HeaderSize) + uint64(payloadLen); total > uint64(MaxMessageSize) {
		return fmt.Errorf("%w: %d bytes exceeds limit of %d", ErrMessageTooLarge, total, MaxMessageSize)
	}
	return nil
}
