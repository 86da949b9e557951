package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// ReadMessage reads one complete message (header and payload) from r.
// The header is validated before the payload is allocated.
func ReadMessage(r io.Reader) ([]byte, error) {
	header := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	h, err := DecodeHeader(header)
	if err != nil {
		return nil, err
	}

	msg := make([]byte, HeaderSize+int(h.PayloadLen))
	copy(msg, header)
	if _, err := io.ReadFull(r, msg[HeaderSize:]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return msg, nil
}

// DecodeHeader decodes and validates the common header at the start of data.
func DecodeHeader(data []byte) (Header, error) {
	if len(data) < HeaderSize {
		return Header{}, fmt.Errorf("%w: header needs %d bytes, got %d", ErrTruncated, HeaderSize, len(data))
	}

	var h Header
	if err := binary.Read(bytes.NewReader(data[:HeaderSize]), binary.BigEndian, &h); err != nil {
		return Header{}, fmt.Errorf("failed to read header: %w", err)
	}

	if h.Magic != MagicNumber {
		return Header{}, fmt.Errorf("%w: got 0x%08X, expected 0x%08X", ErrInvalidMagic, h.Magic, MagicNumber)
	}
	if h.Version < MinSupportedVersion || h.Version > MaxSupportedVersion {
		return Header{}, fmt.Errorf("%w: got 0x%04X, supported range 0x%04X-0x%04X",
			ErrUnsupportedVersion, h.Version, MinSupportedVersion, MaxSupportedVersion)
	}
	if h.PayloadLen > MaxMessageSize-HeaderSize {
		return Header{}, fmt.Errorf("%w: payload_len %d exceeds max %d", ErrMessageTooLarge, h.PayloadLen, MaxMessageSize-HeaderSize)
	}
	return h, nil
}

// RequestID returns the request ID of an encoded message.
func RequestID(msg []byte) (uint64, bool) {
	if len(msg) < HeaderSize+8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(msg[HeaderSize : HeaderSize+8]), true
}

// DecodeRequest decodes a generate request. It is used by workers and
// tests; vizzy itself only sends requests.
func DecodeRequest(data []byte) (*GenerateRequest, error) {
	h, payload, err := split(data)
	if err != nil {
		return nil, err
	}
	if h.MsgType != MsgGenerateRequest {
		return nil, fmt.Errorf("%w: 0x%04X (expected REQUEST)", ErrUnexpectedType, h.MsgType)
	}
	if len(payload) < requestFixedSize {
		return nil, fmt.Errorf("%w: request payload needs %d bytes, got %d", ErrTruncated, requestFixedSize, len(payload))
	}

	buf := bytes.NewReader(payload)
	var f requestFixed
	if err := binary.Read(buf, binary.BigEndian, &f); err != nil {
		return nil, fmt.Errorf("failed to read request fields: %w", err)
	}
	if f.PromptLen > MaxPromptLen || f.NegativeLen > MaxPromptLen {
		return nil, fmt.Errorf("%w: prompt lengths %d/%d exceed maximum %d", ErrInvalidPrompt, f.PromptLen, f.NegativeLen, MaxPromptLen)
	}
	if uint64(buf.Len()) < uint64(f.PromptLen)+uint64(f.NegativeLen) {
		return nil, fmt.Errorf("%w: prompt data needs %d bytes, got %d", ErrTruncated, f.PromptLen+f.NegativeLen, buf.Len())
	}

	text := make([]byte, f.PromptLen+f.NegativeLen)
	if _, err := io.ReadFull(buf, text); err != nil {
		return nil, fmt.Errorf("failed to read prompt data: %w", err)
	}

	req := &GenerateRequest{
		RequestID:      f.RequestID,
		Width:          f.Width,
		Height:         f.Height,
		Steps:          f.Steps,
		Guidance:       f.Guidance,
		Seed:           f.Seed,
		Count:          f.Count,
		Prompt:         string(text[:f.PromptLen]),
		NegativePrompt: string(text[f.PromptLen:]),
	}
	if err := ValidateRequest(req); err != nil {
		return nil, err
	}
	return req, nil
}

// DecodeResponse decodes a response message. It returns either a
// *GenerateResponse or an *ErrorResponse depending on the message type.
func DecodeResponse(data []byte) (interface{}, error) {
	h, payload, err := split(data)
	if err != nil {
		return nil, err
	}

	switch h.MsgType {
	case MsgGenerateResponse:
		return decodeGenerateResponse(payload)
	case MsgError:
		return decodeErrorResponse(payload)
	default:
		return nil, fmt.Errorf("%w: 0x%04X (expected RESPONSE or ERROR)", ErrUnexpectedType, h.MsgType)
	}
}

// split validates the header and returns the exact payload.
func split(data []byte) (Header, []byte, error) {
	h, err := DecodeHeader(data)
	if err != nil {
		return Header{}, nil, err
	}
	end := HeaderSize + int(h.PayloadLen)
	if len(data) < end {
		return Header{}, nil, fmt.Errorf("%w: got %d bytes, expected %d", ErrTruncated, len(data), end)
	}
	return h, data[HeaderSize:end], nil
}

// decodeGenerateResponse decodes a MSG_GENERATE_RESPONSE payload.
// Payload structure:
//   - request_id (8 bytes)
//   - status (4 bytes)
//   - generation_time (4 bytes)
//   - image_count (4 bytes)
//   - image_count times: image_len (4 bytes), image_data (variable)
func decodeGenerateResponse(payload []byte) (*GenerateResponse, error) {
	if len(payload) < responseFixedSize {
		return nil, fmt.Errorf("%w: response payload needs %d bytes, got %d", ErrTruncated, responseFixedSize, len(payload))
	}

	buf := bytes.NewReader(payload)
	var f responseFixed
	if err := binary.Read(buf, binary.BigEndian, &f); err != nil {
		return nil, fmt.Errorf("failed to read response fields: %w", err)
	}
	if f.Status != StatusOK {
		return nil, fmt.Errorf("invalid status for GENERATE_RESPONSE: got %d, expected %d", f.Status, StatusOK)
	}
	if f.ImageCount > MaxCount {
		return nil, fmt.Errorf("%w: %d images exceeds maximum %d", ErrInvalidCount, f.ImageCount, MaxCount)
	}

	resp := &GenerateResponse{
		RequestID:      f.RequestID,
		GenerationTime: f.GenerationTime,
		Images:         make([][]byte, 0, f.ImageCount),
	}
	for i := uint32(0); i < f.ImageCount; i++ {
		var n uint32
		if err := binary.Read(buf, binary.BigEndian, &n); err != nil {
			return nil, fmt.Errorf("%w: image %d length: %v", ErrTruncated, i, err)
		}
		if uint64(n) > uint64(buf.Len()) {
			return nil, fmt.Errorf("%w: image %d needs %d bytes, got %d", ErrTruncated, i, n, buf.Len())
		}
		img := make([]byte, n)
		if _, err := io.ReadFull(buf, img); err != nil {
			return nil, fmt.Errorf("failed to read image %d: %w", i, err)
		}
		resp.Images = append(resp.Images, img)
	}

	return resp, nil
}

// decodeErrorResponse decodes a MSG_ERROR payload.
// Payload structure:
//   - request_id (8 bytes)
//   - status (4 bytes)
//   - error_code (4 bytes)
//   - error_msg_len (2 bytes)
//   - error_msg (variable, UTF-8)
func decodeErrorResponse(payload []byte) (*ErrorResponse, error) {
	if len(payload) < errorFixedSize {
		return nil, fmt.Errorf("%w: error payload needs %d bytes, got %d", ErrTruncated, errorFixedSize, len(payload))
	}

	buf := bytes.NewReader(payload)
	var f errorFixed
	if err := binary.Read(buf, binary.BigEndian, &f); err != nil {
		return nil, fmt.Errorf("failed to read error fields: %w", err)
	}
	if f.Status != StatusBadRequest && f.Status != StatusInternalServerError && f.Status != StatusServiceUnavailable {
		return nil, fmt.Errorf("invalid status for ERROR: got %d", f.Status)
	}
	if int(f.MsgLen) > buf.Len() {
		return nil, fmt.Errorf("%w: error message needs %d bytes, got %d", ErrTruncated, f.MsgLen, buf.Len())
	}

	msg := make([]byte, f.MsgLen)
	if _, err := io.ReadFull(buf, msg); err != nil {
		return nil, fmt.Errorf("failed to read error message: %w", err)
	}

	return &ErrorResponse{
		RequestID: f.RequestID,
		Status:    f.Status,
		Code:      f.Code,
		Message:   string(msg),
	}, nil
}
