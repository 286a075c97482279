package llm

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"image"
	"image/color"
	"image/png"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	echoHistoryWindow = 4
	echoPreviewRunes  = 80
	echoImageSide     = 64
)

// Notices that open every echo reply.
const (
	NoticeNotConfigured = "Demo mode: no completion provider is configured."
	NoticeUnavailable   = "The completion provider could not be reached. This reply comes from the local responder."
)

// EchoClient is the deterministic local responder used when no provider is
// configured or reachable. It never fails on its own.
type EchoClient struct {
	models []string
	notice string
}

// NewEchoClient creates a fallback responder that accepts the given models.
// With no models it accepts DefaultChatModels.
func NewEchoClient(models ...string) *EchoClient {
	if len(models) == 0 {
		models = DefaultChatModels
	}
	return &EchoClient{models: models, notice: NoticeNotConfigured}
}

// WithNotice returns a copy of c whose replies open with notice.
func (c *EchoClient) WithNotice(notice string) *EchoClient {
	out := *c
	out.notice = notice
	return &out
}

// Name returns the provider name.
func (c *EchoClient) Name() string {
	return "echo"
}

// Models returns the models this responder stands in for.
func (c *EchoClient) Models() []string {
	return c.models
}

// Complete renders the templated reply in one piece.
func (c *EchoClient) Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	start := time.Now()
	content := EchoReply(c.notice, req.Messages)
	return c.response(req, content, start), nil
}

// CompleteStream emits the templated reply word by word.
func (c *EchoClient) CompleteStream(ctx context.Context, req *CompletionRequest, callback StreamCallback) (*CompletionResponse, error) {
	start := time.Now()
	content := EchoReply(c.notice, req.Messages)

	var sent strings.Builder
	for i, chunk := range strings.SplitAfter(content, " ") {
		if err := ctx.Err(); err != nil {
			return partial(sent.String(), c.modelFor(req), start), err
		}
		sent.WriteString(chunk)
		if err := callback(chunk, i); err != nil {
			return partial(sent.String(), c.modelFor(req), start), err
		}
	}

	return c.response(req, content, start), nil
}

// GenerateImage renders a flat swatch whose colour is derived from the prompt.
func (c *EchoClient) GenerateImage(ctx context.Context, req *ImageRequest) ([]byte, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, &GenerationFailedError{Reason: "empty prompt"}
	}

	h := fnv.New32a()
	h.Write([]byte(req.Prompt))
	sum := h.Sum32()
	fill := color.RGBA{R: uint8(sum >> 16), G: uint8(sum >> 8), B: uint8(sum), A: 0xff}

	img := image.NewRGBA(image.Rect(0, 0, echoImageSide, echoImageSide))
	for y := 0; y < echoImageSide; y++ {
		for x := 0; x < echoImageSide; x++ {
			img.Set(x, y, fill)
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, &GenerationFailedError{Reason: err.Error()}
	}
	return buf.Bytes(), nil
}

func (c *EchoClient) response(req *CompletionRequest, content string, start time.Time) *CompletionResponse {
	return &CompletionResponse{
		Content:    content,
		Model:      c.modelFor(req),
		TokensIn:   estimateMessages(req.Messages),
		TokensOut:  EstimateTokens(content),
		StopReason: "stop",
		LatencyMs:  time.Since(start).Milliseconds(),
		Fallback:   true,
	}
}

func (c *EchoClient) modelFor(req *CompletionRequest) string {
	return modelOrDefault(req.Model, c.Name())
}

// EchoReply builds the fallback reply: notice, the latest prompt and a short
// window of the history that preceded it.
func EchoReply(notice string, history []ChatMessage) string {
	if len(history) == 0 {
		return notice + " Send a message to get started."
	}

	last := history[len(history)-1]
	earlier := history[:len(history)-1]
	if len(earlier) > echoHistoryWindow {
		earlier = earlier[len(earlier)-echoHistoryWindow:]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\nYou said: %q", notice, last.Content)
	if len(earlier) > 0 {
		b.WriteString("\n\nRecent context:")
		for _, m := range earlier {
			fmt.Fprintf(&b, "\n- %s: %s", m.Role, preview(m.Content, echoPreviewRunes))
		}
	}
	return b.String()
}

func preview(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
