// Package ai wraps a chat-completion service used as the last resort in the
// resolution cascades. The model answers in free text with no schema
// guarantee, so every response is parsed defensively and results are always
// tagged as low confidence by the caller.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/serendibstay/georesolve/pkg/core"
	"github.com/serendibstay/georesolve/pkg/geo"
	"github.com/serendibstay/georesolve/pkg/upstream"
)

const (
	// DefaultBaseURL is the Perplexity-compatible completion endpoint.
	DefaultBaseURL = "https://api.perplexity.ai"

	// DefaultModel is an online model able to actually visit a short URL.
	DefaultModel = "sonar"

	maxResponseBytes = 1 << 20
)

var (
	// urlPattern pulls a URL out of free text in case the model added
	// commentary despite instructions.
	urlPattern = regexp.MustCompile(`https?://[^\s"'<>]+`)

	// coordPattern matches "lat, lng" decimal pairs in free text.
	coordPattern = regexp.MustCompile(`(-?\d{1,2}\.\d+)[,\s]+(-?\d{1,3}\.\d+)`)
)

// Client calls a chat-completion API.
type Client struct {
	logger  *slog.Logger
	baseURL string
	apiKey  string
	model   string
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the completion endpoint. Used in tests.
func WithBaseURL(u string) Option {
	return func(c *Client) {
		c.baseURL = u
		upstream.SetCompletionEndpoint(u)
	}
}

// WithModel overrides the model name.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// NewClient creates a completion client. An empty API key yields a disabled
// client; callers must check Enabled before use.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		logger:  slog.Default(),
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		model:   DefaultModel,
	}
	upstream.SetCompletionEndpoint(c.baseURL)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Enabled reports whether the client has credentials to make requests.
func (c *Client) Enabled() bool {
	return c != nil && c.apiKey != ""
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// complete sends one system+user exchange and returns the raw text answer.
func (c *Client) complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	if !c.Enabled() {
		return "", core.NewError(core.ErrServiceUnavailable, "completion service not configured").
			WithGuidance("Set the completion API key to enable AI fallbacks.")
	}

	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: 0.2,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", core.NewError(core.ErrInternalError, "failed to encode completion request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", core.NewError(core.ErrInternalError, "failed to create completion request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := upstream.MonitoredDoRequest(ctx, req, "chat_completion")
	if err != nil {
		c.logger.Error("completion request failed", "error", err)
		return "", core.NewError(core.ErrNetworkError, "completion service unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", core.ServiceError("completion", resp.StatusCode,
			fmt.Sprintf("chat completion returned status %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", core.NewError(core.ErrNetworkError, "failed to read completion response")
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", core.NewError(core.ErrParseError, "invalid completion response")
	}
	if len(parsed.Choices) == 0 {
		return "", core.NewError(core.ErrNoResults, "completion returned no choices")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

// ExpandShortURL asks the model to visit a short URL and report the final
// destination. The answer is free text; a URL is extracted defensively and
// the input URL itself is never accepted as an answer.
func (c *Client) ExpandShortURL(ctx context.Context, shortURL string) (string, error) {
	system := "You are a URL expander. When given a short URL, you need to access it and return the FULL expanded URL. Only return the URL, nothing else."
	user := fmt.Sprintf(`Please expand this short map URL and return ONLY the full URL (nothing else, no explanation):

%s

Important:
- Visit the URL and get the final destination
- Return ONLY the full URL starting with https://
- The URL should contain coordinates like @6.0135,80.2410 or similar
- Do not add any explanation, just the URL`, shortURL)

	answer, err := c.complete(ctx, system, user, 500)
	if err != nil {
		return "", err
	}

	match := urlPattern.FindString(answer)
	if match == "" {
		return "", core.NewError(core.ErrNoResults, "completion did not contain a URL")
	}
	match = strings.TrimRight(match, ".,;)")
	if match == shortURL {
		return "", core.NewError(core.ErrNoResults, "completion echoed the short URL back")
	}

	c.logger.Debug("model expanded short url", "short_url", shortURL, "expanded_url", match)
	return match, nil
}

// DecodePlusCode asks the model for the coordinates of a plus code given
// surrounding place-name context. Used only when the code is too short for
// deterministic recovery.
func (c *Client) DecodePlusCode(ctx context.Context, code, placeName string) (geo.Location, error) {
	system := "You are a geocoding assistant. Answer with decimal latitude and longitude only, in the form lat,lng. No explanation."
	user := fmt.Sprintf(`What location does the plus code %q near %q refer to?

Important:
- Answer ONLY with the decimal coordinates in the form 6.0135,80.2410
- Do not add any explanation`, code, placeName)

	answer, err := c.complete(ctx, system, user, 200)
	if err != nil {
		return geo.Location{}, err
	}

	m := coordPattern.FindStringSubmatch(answer)
	if m == nil {
		return geo.Location{}, core.NewError(core.ErrNoResults, "completion did not contain coordinates")
	}
	lat, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return geo.Location{}, core.NewError(core.ErrParseError, "invalid latitude in completion")
	}
	lng, err := strconv.ParseFloat(m[2], 64)
	if err != nil {
		return geo.Location{}, core.NewError(core.ErrParseError, "invalid longitude in completion")
	}
	if err := geo.ValidateCoords(lat, lng); err != nil {
		return geo.Location{}, core.NewError(core.ErrParseError, "out of range coordinates in completion")
	}

	c.logger.Debug("model decoded plus code", "code", code, "place", placeName, "lat", lat, "lng", lng)
	return geo.Location{Latitude: lat, Longitude: lng}, nil
}
