package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"syscall"
	"time"

	"github.com/invopop/jsonschema"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hurricanerix/vizzy/internal/logging"
	"github.com/hurricanerix/vizzy/internal/narrative"
)

// Sentinel errors for ollama client operations
var (
	// ErrNotRunning is returned when ollama is not running at the configured endpoint
	ErrNotRunning = errors.New("ollama not running")
	// ErrModelNotFound is returned when the requested model is not available
	ErrModelNotFound = errors.New("model not available in ollama")
	// ErrConnectionTimeout is returned when the connection times out
	ErrConnectionTimeout = errors.New("ollama connection timeout")
	// ErrRequestFailed is returned when an API request fails
	ErrRequestFailed = errors.New("ollama request failed")
	// ErrConnectionFailed is returned when connection fails for unknown reasons
	ErrConnectionFailed = errors.New("ollama connection failed")
	// ErrResponseTooLarge is returned when a reply exceeds maxResponseSize
	ErrResponseTooLarge = errors.New("ollama response too large")
)

// Maximum response size to prevent unbounded memory usage (1 MB)
const maxResponseSize = 1024 * 1024

// outlineSchema is the JSON schema sent as the chat format for outlines.
var outlineSchema = mustOutlineSchema()

func mustOutlineSchema() json.RawMessage {
	reflector := jsonschema.Reflector{DoNotReference: true}
	schema := reflector.Reflect(&narrative.Outline{})
	// The top-level $schema keyword is not accepted by every ollama version.
	schema.Version = ""
	data, err := schema.MarshalJSON()
	if err != nil {
		panic(fmt.Sprintf("ollama: outline schema: %v", err))
	}
	return data
}

// Client provides methods to communicate with the ollama API.
type Client struct {
	endpoint   string
	model      string
	httpClient *http.Client
	logger     *logging.Logger
}

// NewClient creates a new ollama client with default settings.
// The client connects to http://localhost:11434 with a 60-second timeout.
func NewClient() *Client {
	return NewClientWithConfig(DefaultEndpoint, DefaultModel, time.Duration(DefaultTimeout)*time.Second, nil)
}

// NewClientWithConfig creates a new ollama client with custom configuration.
// Parameters:
//   - endpoint: Ollama API endpoint URL (e.g., "http://localhost:11434")
//   - model: Model name (e.g., "llama3.1:8b")
//   - timeout: HTTP timeout for tag lookups
//   - logger: may be nil
func NewClientWithConfig(endpoint, model string, timeout time.Duration, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Client{
		endpoint: endpoint,
		model:    model,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}
}

// Connect verifies that ollama is reachable and the required model is available.
// It makes a GET request to /api/tags to check connectivity and model availability.
//
// Returns ErrNotRunning if ollama is not reachable.
// Returns ErrModelNotFound if the configured model is not available.
// Returns ErrConnectionTimeout if the connection times out.
func (c *Client) Connect(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+EndpointTags, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.wrapTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: unexpected status %d", ErrRequestFailed, resp.StatusCode)
	}

	var tagsResp TagsResponse
	if err := json.NewDecoder(resp.Body).Decode(&tagsResp); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	for _, model := range tagsResp.Models {
		if model.Name == c.model {
			return nil
		}
	}
	return fmt.Errorf("%w: %s (pull with: ollama pull %s)", ErrModelNotFound, c.model, c.model)
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.model
}

// Endpoint returns the configured endpoint URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Chat sends messages to /api/chat and returns the full reply text.
// When format is non-nil it is sent as the JSON schema the reply must
// follow.
//
// The request has no client timeout; ctx bounds its lifetime.
//
// Returns ErrNotRunning if ollama is not reachable.
// Returns an error if messages is empty or roles are out of order.
func (c *Client) Chat(ctx context.Context, messages []Message, format json.RawMessage) (string, error) {
	if len(messages) == 0 {
		return "", errors.New("messages cannot be empty")
	}

	// Only the first message may be a system prompt.
	for i, msg := range messages {
		switch msg.Role {
		case RoleSystem:
			if i != 0 {
				return "", errors.New("system message must be first in conversation")
			}
		case RoleUser, RoleAssistant:
		default:
			return "", fmt.Errorf("invalid message role: %q", msg.Role)
		}
	}

	body, err := json.Marshal(ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   true,
		Format:   format,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+EndpointChat, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	// Streams can outlive the tag lookup timeout; ctx governs instead.
	streamClient := &http.Client{Transport: c.httpClient.Transport}
	resp, err := streamClient.Do(req)
	if err != nil {
		return "", c.wrapTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, readErr := io.ReadAll(io.LimitReader(resp.Body, 1024))
		if readErr != nil {
			return "", fmt.Errorf("%w: status %d (failed to read error: %v)", ErrRequestFailed, resp.StatusCode, readErr)
		}
		return "", fmt.Errorf("%w: status %d: %s", ErrRequestFailed, resp.StatusCode, string(errBody))
	}

	return c.readStream(resp.Body)
}

// Generate asks the model for a story outline. It satisfies
// narrative.Generator.
func (c *Client) Generate(ctx context.Context, topic, mood string) (narrative.Outline, error) {
	reply, err := c.Chat(ctx, []Message{
		{Role: RoleSystem, Content: narrative.Instructions},
		{Role: RoleUser, Content: narrative.UserPrompt(topic, mood)},
	}, outlineSchema)
	if err != nil {
		return narrative.Outline{}, err
	}
	return narrative.ParseOutline(reply)
}

// readStream concatenates the message content of a newline-delimited JSON
// stream until a chunk reports done.
func (c *Client) readStream(body io.Reader) (string, error) {
	scanner := bufio.NewScanner(body)
	var full bytes.Buffer

	chunks := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		chunks++

		var chatResp ChatResponse
		if err := json.Unmarshal(line, &chatResp); err != nil {
			return "", fmt.Errorf("failed to parse response: %w", err)
		}

		full.WriteString(chatResp.Message.Content)
		if full.Len() > maxResponseSize {
			return "", fmt.Errorf("%w (>%d bytes)", ErrResponseTooLarge, maxResponseSize)
		}

		if chatResp.Done {
			break
		}
	}

	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("stream read error: %w", err)
	}

	c.logger.Debug("ollama reply: %d chunk(s), %d bytes", chunks, full.Len())
	return full.String(), nil
}

func (c *Client) wrapTransportError(err error) error {
	classified := c.classifyError(err)
	if errors.Is(classified, ErrNotRunning) {
		return fmt.Errorf("%w at %s (start with: ollama serve)", ErrNotRunning, c.endpoint)
	}
	return classified
}

// classifyError converts low-level HTTP errors into user-friendly errors.
func (c *Client) classifyError(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrConnectionTimeout
	}

	if errors.Is(err, context.Canceled) {
		return context.Canceled
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrConnectionTimeout
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if opErr.Err != nil && errors.Is(opErr.Err, syscall.ECONNREFUSED) {
			return ErrNotRunning
		}
	}

	var syscallErr syscall.Errno
	if errors.As(err, &syscallErr) && syscallErr == syscall.ECONNREFUSED {
		return ErrNotRunning
	}

	// DNS errors, TLS errors, etc.
	return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
}
