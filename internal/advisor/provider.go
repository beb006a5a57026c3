package advisor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/velora/optionsim/internal/config"
	"github.com/velora/optionsim/internal/domain"
)

// Supported provider names.
const (
	ProviderMock     = "mock"
	ProviderOpenAI   = "openai"
	ProviderDeepSeek = "deepseek"
	ProviderGemini   = "gemini"
)

// Advisor dispatches prediction requests to the configured provider.
type Advisor struct {
	market MarketData
	cfg    *config.AdvisorConfig
	http   *http.Client

	randMu sync.Mutex
	rand   *rand.Rand
}

// New creates an Advisor backed by the given market data source.
func New(market MarketData, cfg *config.Config) *Advisor {
	return &Advisor{
		market: market,
		cfg:    &cfg.Advisor,
		http:   &http.Client{Timeout: cfg.Advisor.RequestTimeout},
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// DefaultConfig builds the provider record seeded on first boot from the
// environment defaults.
func DefaultConfig(cfg *config.Config) *domain.AdvisorConfig {
	return &domain.AdvisorConfig{
		Provider:  cfg.Advisor.Provider,
		APIKey:    cfg.Advisor.APIKey,
		Model:     cfg.Advisor.Model,
		Threshold: cfg.Advisor.Threshold,
	}
}

// RequestPrediction produces a directional call for the snapshot using the
// user-supplied provider configuration.  The mock provider never fails; HTTP
// providers return a domain.ErrProvider-wrapped error on any transport
// failure or non-2xx status, and are never retried.
func (a *Advisor) RequestPrediction(ctx context.Context, snap *domain.IndicatorSnapshot, pcfg *domain.AdvisorConfig) (*domain.Prediction, error) {
	// Without an API key only the local mock can serve.
	provider := pcfg.Provider
	if provider == "" || pcfg.APIKey == "" {
		provider = ProviderMock
	}

	switch provider {
	case ProviderMock:
		return a.mockPrediction(snap), nil
	case ProviderOpenAI:
		return a.chatCompletion(ctx, a.cfg.OpenAIURL, snap, pcfg)
	case ProviderDeepSeek:
		return a.chatCompletion(ctx, a.cfg.DeepSeekURL, snap, pcfg)
	case ProviderGemini:
		return a.geminiGenerate(ctx, snap, pcfg)
	default:
		return nil, fmt.Errorf("advisor.RequestPrediction: unsupported provider %q: %w", provider, domain.ErrProvider)
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Mock provider
// ──────────────────────────────────────────────────────────────────────────────

// mockPrediction returns a uniformly random direction with a confidence in
// [50,90) and a templated rationale.  Used whenever no API key is configured.
func (a *Advisor) mockPrediction(snap *domain.IndicatorSnapshot) *domain.Prediction {
	a.randMu.Lock()
	up := a.rand.Intn(2) == 0
	confidence := 50 + a.rand.Intn(40)
	a.randMu.Unlock()

	direction := domain.PredictDown
	verdict := "downward pressure"
	if up {
		direction = domain.PredictUp
		verdict = "upward momentum"
	}

	return &domain.Prediction{
		Direction:  direction,
		Confidence: confidence,
		Rationale: fmt.Sprintf(
			"Simulated analysis of %s at %.2f suggests short-term %s. Configure a provider API key for a real model call.",
			snap.Symbol, snap.CurrentPrice, verdict),
		GeneratedAt: time.Now().UTC(),
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// OpenAI-compatible providers (OpenAI, DeepSeek)
// ──────────────────────────────────────────────────────────────────────────────

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// chatCompletion posts the prompt to a chat-completions endpoint with Bearer
// authentication.  OpenAI and DeepSeek share this wire shape.
func (a *Advisor) chatCompletion(ctx context.Context, baseURL string, snap *domain.IndicatorSnapshot, pcfg *domain.AdvisorConfig) (*domain.Prediction, error) {
	reqBody := chatRequest{
		Model:    pcfg.Model,
		Messages: []chatMessage{{Role: "user", Content: buildPrompt(snap)}},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("advisor.chatCompletion: marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("advisor.chatCompletion: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+pcfg.APIKey)

	body, err := a.doProviderRequest(req)
	if err != nil {
		return nil, err
	}

	var resp chatResponse
	if err = json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("advisor.chatCompletion: parse: %w: %v", domain.ErrProvider, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("advisor.chatCompletion: empty choices: %w", domain.ErrProvider)
	}
	return parseReply(resp.Choices[0].Message.Content), nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Gemini provider
// ──────────────────────────────────────────────────────────────────────────────

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []geminiPart `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

// geminiGenerate posts the prompt to the Gemini generateContent endpoint.
// Gemini authenticates with an x-goog-api-key header and uses a
// contents/parts payload instead of chat messages.
func (a *Advisor) geminiGenerate(ctx context.Context, snap *domain.IndicatorSnapshot, pcfg *domain.AdvisorConfig) (*domain.Prediction, error) {
	reqBody := geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: buildPrompt(snap)}}}},
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("advisor.geminiGenerate: marshal: %w", err)
	}

	url := fmt.Sprintf("%s/v1beta/models/%s:generateContent", a.cfg.GeminiURL, pcfg.Model)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("advisor.geminiGenerate: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", pcfg.APIKey)

	body, err := a.doProviderRequest(req)
	if err != nil {
		return nil, err
	}

	var resp geminiResponse
	if err = json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("advisor.geminiGenerate: parse: %w: %v", domain.ErrProvider, err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("advisor.geminiGenerate: empty candidates: %w", domain.ErrProvider)
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		text.WriteString(part.Text)
	}
	return parseReply(text.String()), nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Shared HTTP plumbing
// ──────────────────────────────────────────────────────────────────────────────

// doProviderRequest executes the request and returns the body, mapping any
// transport failure or non-2xx status to domain.ErrProvider.
func (a *Advisor) doProviderRequest(req *http.Request) ([]byte, error) {
	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("advisor: %w: %v", domain.ErrProvider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("advisor: read body: %w: %v", domain.ErrProvider, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("advisor: status %d: %w", resp.StatusCode, domain.ErrProvider)
	}
	return body, nil
}

// buildPrompt renders the snapshot into a natural-language prompt that asks
// the model to answer with the line markers parseReply scans for.
func buildPrompt(snap *domain.IndicatorSnapshot) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are a technical analyst for short-term binary options.\n")
	fmt.Fprintf(&b, "Instrument: %s, timeframe %s, current price %.4f.\n\n", snap.Symbol, snap.Timeframe, snap.CurrentPrice)
	fmt.Fprintf(&b, "Indicator readings:\n")

	writeOpt := func(name string, v *float64) {
		if v != nil {
			fmt.Fprintf(&b, "- %s: %.4f\n", name, *v)
		}
	}
	writeOpt("SMA(5)", snap.SMAShort)
	writeOpt("SMA(20)", snap.SMALong)
	writeOpt("EMA(12)", snap.EMA)
	writeOpt("RSI(14)", snap.RSI)
	if snap.MACD != nil {
		fmt.Fprintf(&b, "- MACD: %.4f signal %.4f hist %.4f\n", snap.MACD.MACD, snap.MACD.Signal, snap.MACD.Histogram)
	}
	if snap.Bollinger != nil {
		fmt.Fprintf(&b, "- Bollinger(20,2): upper %.4f middle %.4f lower %.4f %%B %.3f\n",
			snap.Bollinger.Upper, snap.Bollinger.Middle, snap.Bollinger.Lower, snap.Bollinger.PercentB)
	}
	if snap.KDJ != nil {
		fmt.Fprintf(&b, "- KDJ(9): K %.2f D %.2f J %.2f\n", snap.KDJ.K, snap.KDJ.D, snap.KDJ.J)
	}
	writeOpt("ATR(14)", snap.ATR)
	fmt.Fprintf(&b, "- Order-book bid pressure: %.3f\n", snap.BidPressure)
	fmt.Fprintf(&b, "- Funding rate: %.6f\n\n", snap.FundingRate)

	b.WriteString("Call the likely price direction over the next few minutes.\n")
	b.WriteString("Answer in exactly this plain-text format, one item per line:\n")
	b.WriteString("direction: up or down\n")
	b.WriteString("confidence: an integer 0-100\n")
	b.WriteString("analysis: one or two sentences of reasoning\n")
	return b.String()
}
