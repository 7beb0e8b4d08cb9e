package infra

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"joke-relay/relay/domain"
)

const (
	DefaultGeminiEndpoint   = "https://generativelanguage.googleapis.com/"
	DefaultGeminiAPIVersion = "v1beta"
	DefaultGeminiModel      = "gemini-2.0-flash"
)

// GeminiTranslator traduz piadas usando generateContent via SDK genai.
//
// Resposta sem texto é falha "soft" ("", nil). Erro de rede, status não-2xx
// ou JSON inválido viram erro. Não há retry: o pipeline descarta o item.
// A chave vai no header x-goog-api-key, nunca na URL.
type GeminiTranslator struct {
	model      string
	endpoint   string
	apiVersion string
	targetLang string
	timeout    time.Duration
	client     *http.Client
	genai      *genai.Client
	logger     *slog.Logger
}

var _ domain.Translator = (*GeminiTranslator)(nil)

type GeminiOption func(*GeminiTranslator)

func WithGeminiModel(model string) GeminiOption {
	return func(g *GeminiTranslator) {
		if model != "" {
			g.model = model
		}
	}
}

// WithGeminiEndpoint troca a base URL (sem a versão da API).
func WithGeminiEndpoint(endpoint string) GeminiOption {
	return func(g *GeminiTranslator) {
		if endpoint != "" {
			g.endpoint = strings.TrimRight(endpoint, "/") + "/"
		}
	}
}

func WithGeminiAPIVersion(version string) GeminiOption {
	return func(g *GeminiTranslator) {
		if version != "" {
			g.apiVersion = version
		}
	}
}

func WithTargetLanguage(lang string) GeminiOption {
	return func(g *GeminiTranslator) {
		if lang != "" {
			g.targetLang = lang
		}
	}
}

// WithHTTPTimeout limita cada chamada; é o único limite para uma chamada travada.
// Aplicado sobre uma cópia do client, o client recebido não é alterado.
func WithHTTPTimeout(d time.Duration) GeminiOption {
	return func(g *GeminiTranslator) {
		if d > 0 {
			g.timeout = d
		}
	}
}

func WithHTTPClient(c *http.Client) GeminiOption {
	return func(g *GeminiTranslator) {
		if c != nil {
			g.client = c
		}
	}
}

func WithTranslatorLogger(l *slog.Logger) GeminiOption {
	return func(g *GeminiTranslator) {
		if l != nil {
			g.logger = l
		}
	}
}

func NewGeminiTranslator(ctx context.Context, apiKey string, opts ...GeminiOption) (*GeminiTranslator, error) {
	g := &GeminiTranslator{
		model:      DefaultGeminiModel,
		endpoint:   DefaultGeminiEndpoint,
		apiVersion: DefaultGeminiAPIVersion,
		targetLang: "German",
		timeout:    30 * time.Second,
		client:     http.DefaultClient,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}

	hc := *g.client
	hc.Timeout = g.timeout
	g.client = &hc

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:     apiKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: g.client,
		HTTPOptions: genai.HTTPOptions{
			BaseURL:    g.endpoint,
			APIVersion: g.apiVersion,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	g.genai = client
	return g, nil
}

func (g *GeminiTranslator) prompt(text string) string {
	return fmt.Sprintf("Translate the following English joke to %s. Only return the translated joke text, nothing else, no explanations needed:\n\nJoke: %q\n\nTranslated Joke:", g.targetLang, text)
}

func (g *GeminiTranslator) Translate(ctx context.Context, payload string) (string, error) {
	if strings.TrimSpace(payload) == "" {
		g.logger.Warn("translate called with empty text")
		return "", nil
	}

	resp, err := g.genai.Models.GenerateContent(ctx, g.model, genai.Text(g.prompt(payload)), nil)
	if err != nil {
		if code, ok := apiStatus(err); ok {
			return "", fmt.Errorf("gemini: %w: %d: %w", domain.ErrTranslatorStatus, code, err)
		}
		return "", fmt.Errorf("gemini: request failed: %w", err)
	}

	translated := firstText(resp)
	if translated == "" {
		reason := "empty response"
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			reason = string(resp.PromptFeedback.BlockReason)
		}
		g.logger.Warn("no translated text in gemini response", slog.String("reason", reason))
		return "", nil
	}

	g.logger.Debug("joke translated", slog.String("original", payload), slog.String("translated", translated))
	return translated, nil
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	c := resp.Candidates[0]
	if c == nil || c.Content == nil || len(c.Content.Parts) == 0 || c.Content.Parts[0] == nil {
		return ""
	}
	return strings.TrimSpace(c.Content.Parts[0].Text)
}

// apiStatus extrai o status HTTP de um erro da API.
func apiStatus(err error) (int, bool) {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code, true
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return apiErrPtr.Code, true
	}
	return 0, false
}
