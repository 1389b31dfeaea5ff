package intent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const systemPrompt = `You are a JSON-only parser for ticket booking requests.
Respond ONLY with a valid JSON object and nothing else.

Output format:
{
  "intent": "book" | "list" | "unknown",
  "event": string | null,
  "tickets": number | null
}

Examples:
"Book two tickets for Jazz Night." -> {"intent":"book","event":"Jazz Night","tickets":2}
"Show me the events." -> {"intent":"list","event":null,"tickets":null}
"Hey" -> {"intent":"unknown","event":null,"tickets":null}`

// OpenAIConfig configures an OpenAI-compatible chat completions endpoint.
type OpenAIConfig struct {
	APIKey string
	// BaseURL is the API root, e.g. https://api.openai.com/v1.
	BaseURL string
	Model   string
	Timeout time.Duration
	// HTTPClient overrides the default client (tests).
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// OpenAI parses text with a chat completions model. When the key is missing
// or the call or its reply is unusable it falls back to the deterministic
// parser, so Parse only fails when ctx is done.
type OpenAI struct {
	httpClient *http.Client
	apiKey     string
	endpoint   string
	model      string
	fallback   Parser
	logger     *slog.Logger
}

var (
	_ Parser    = (*OpenAI)(nil)
	_ Assistant = (*OpenAI)(nil)
)

// NewOpenAI returns a client for cfg. An empty APIKey is allowed: Parse then
// uses the keyword parser and Chat answers that the assistant is unavailable.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &OpenAI{
		httpClient: client,
		apiKey:     cfg.APIKey,
		endpoint:   strings.TrimRight(cfg.BaseURL, "/") + "/chat/completions",
		model:      cfg.Model,
		fallback:   Fallback{},
		logger:     logger,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message ChatMessage `json:"message"`
	} `json:"choices"`
}

// modelIntent mirrors the JSON the prompt asks for; event and tickets may
// be null.
type modelIntent struct {
	Intent  string   `json:"intent"`
	Event   *string  `json:"event"`
	Tickets *float64 `json:"tickets"`
}

// Parse asks the model to classify text. It returns an error only when ctx
// is done; every other failure falls back to the keyword parser.
func (p *OpenAI) Parse(ctx context.Context, text string) (Intent, error) {
	if strings.TrimSpace(text) == "" {
		return Unknown, nil
	}
	if p.apiKey == "" {
		p.logger.Debug("no language model API key, using fallback parser")
		return p.fallback.Parse(ctx, text)
	}

	in, err := p.complete(ctx, text)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Intent{}, fmt.Errorf("intent/openai: %w", ctxErr)
		}
		p.logger.Warn("language model parse failed, using fallback parser", "error", err)
		return p.fallback.Parse(ctx, text)
	}
	return in, nil
}

func (p *OpenAI) complete(ctx context.Context, text string) (Intent, error) {
	content, err := p.send(ctx, chatRequest{
		Model: p.model,
		Messages: []ChatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: RoleUser, Content: fmt.Sprintf("User input: %q", text)},
		},
		MaxTokens:   150,
		Temperature: 0,
	})
	if err != nil {
		return Intent{}, err
	}
	return parseModelReply(content)
}

// send posts one chat completions request and returns the first choice.
func (p *OpenAI) send(ctx context.Context, chat chatRequest) (string, error) {
	body, err := json.Marshal(chat)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if len(decoded.Choices) == 0 {
		return "", errors.New("response has no choices")
	}
	return decoded.Choices[0].Message.Content, nil
}

// parseModelReply extracts the outermost JSON object from the reply; models
// sometimes wrap it in prose or code fences.
func parseModelReply(raw string) (Intent, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end < start {
		return Intent{}, fmt.Errorf("no JSON object in reply %q", raw)
	}

	var m modelIntent
	if err := json.Unmarshal([]byte(raw[start:end+1]), &m); err != nil {
		return Intent{}, fmt.Errorf("parsing reply: %w", err)
	}

	in := Intent{Kind: Kind(m.Intent)}
	if m.Event != nil {
		in.Event = strings.TrimSpace(*m.Event)
	}
	if m.Tickets != nil {
		in.Tickets = count(int(*m.Tickets))
	}
	return normalize(in), nil
}
