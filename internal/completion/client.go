// Package completion is the adapter between the pipeline and the external
// chat-completion service.
//
// One call to Complete is exactly one outbound POST: the trailing window of
// the conversation goes out with temperature pinned to 0, and the first
// choice's message content comes back. There is no retry, no backoff, and
// no caching; failures surface to the caller as typed errors.
package completion

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/squadworks/squad/pkg/models"
)

// MaxWindow is the hard cap on messages sent per request.
const MaxWindow = 5

// DefaultEndpoint is the chat-completions endpoint used when none is configured.
const DefaultEndpoint = "https://api.euron.one/api/v1/euri/chat/completions"

var tracer = otel.Tracer("squad/completion")

// Options configures a Client.
type Options struct {
	Endpoint string
	APIKey   string
	// Window caps the outgoing message list. Values outside 1..MaxWindow
	// fall back to MaxWindow.
	Window int
}

// Client sends chat-completion requests over HTTPS.
type Client struct {
	http     *resty.Client
	endpoint string
	apiKey   string
	window   int
}

// NewClient creates a completion client. The API key is not checked here;
// a missing key surfaces as a TransportError on the first call.
func NewClient(opts Options) *Client {
	endpoint := opts.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	window := opts.Window
	if window <= 0 || window > MaxWindow {
		window = MaxWindow
	}

	httpClient := resty.New().
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetRetryCount(0)

	return &Client{
		http:     httpClient,
		endpoint: endpoint,
		apiKey:   opts.APIKey,
		window:   window,
	}
}

// ── Wire Format ─────────────────────────────────────────────

// PayloadMessage is a message reduced to its wire fields.
type PayloadMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Payload is the outbound request body.
type Payload struct {
	Model       string           `json:"model"`
	Messages    []PayloadMessage `json:"messages"`
	MaxTokens   int              `json:"max_tokens"`
	Temperature float64          `json:"temperature"`
}

type wireResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message *struct {
			Content *string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// BuildPayload converts a request into the outbound wire body: the last
// window messages in original order, each reduced to role and content with
// a missing role defaulting to "user". Temperature is always 0.
func BuildPayload(req models.GenerationRequest, window int) Payload {
	tail := req.Messages.Tail(window)
	msgs := make([]PayloadMessage, 0, len(tail))
	for _, m := range tail {
		role := string(m.Role)
		if role == "" {
			role = string(models.RoleUser)
		}
		msgs = append(msgs, PayloadMessage{Role: role, Content: m.Content})
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = models.DefaultMaxTokens
	}

	return Payload{
		Model:       req.Model,
		Messages:    msgs,
		MaxTokens:   maxTokens,
		Temperature: 0,
	}
}

// ── Complete ────────────────────────────────────────────────

// Complete sends req and returns the normalized reply.
func (c *Client) Complete(ctx context.Context, req models.GenerationRequest) (*models.GenerationReply, error) {
	if len(req.Messages) == 0 {
		return nil, ErrEmptyHistory
	}

	payload := BuildPayload(req, c.window)

	ctx, span := tracer.Start(ctx, "completion.Complete",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("squad.agent", req.Agent),
			attribute.String("gen_ai.request.model", payload.Model),
			attribute.Int("gen_ai.request.max_tokens", payload.MaxTokens),
			attribute.Int("squad.window", len(payload.Messages)),
		),
	)
	defer span.End()

	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(c.apiKey).
		SetBody(payload).
		Post(c.endpoint)
	latency := time.Since(start)

	if err != nil {
		terr := &TransportError{Err: err}
		span.RecordError(terr)
		span.SetStatus(codes.Error, "transport failure")
		return nil, terr
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode()))
	if !resp.IsSuccess() {
		terr := &TransportError{StatusCode: resp.StatusCode(), Body: string(resp.Body())}
		span.RecordError(terr)
		span.SetStatus(codes.Error, resp.Status())
		return nil, terr
	}

	content, model, err := decodeReply(resp.Body())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "malformed reply")
		return nil, err
	}
	if model == "" {
		model = payload.Model
	}

	log.Debug().
		Str("agent", req.Agent).
		Str("model", model).
		Int("messages", len(payload.Messages)).
		Dur("latency", latency).
		Int("content_chars", len(content)).
		Msg("Completion received")

	return &models.GenerationReply{
		Content:   content,
		Model:     model,
		LatencyMs: latency.Milliseconds(),
	}, nil
}

// decodeReply extracts the first choice's message content.
func decodeReply(body []byte) (content, model string, err error) {
	var wr wireResponse
	if err := json.Unmarshal(body, &wr); err != nil {
		return "", "", &MalformedReplyError{Reason: "decode body", Err: err}
	}
	if len(wr.Choices) == 0 {
		return "", "", &MalformedReplyError{Reason: "no choices"}
	}
	first := wr.Choices[0]
	if first.Message == nil || first.Message.Content == nil {
		return "", "", &MalformedReplyError{Reason: "first choice has no message content"}
	}
	return *first.Message.Content, wr.Model, nil
}
