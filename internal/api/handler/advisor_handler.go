package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/velora/optionsim/internal/advisor"
	"github.com/velora/optionsim/internal/config"
	"github.com/velora/optionsim/internal/domain"
	"github.com/velora/optionsim/internal/store"
)

// AdvisorHandler serves prediction configuration and analysis endpoints.
type AdvisorHandler struct {
	advisor *advisor.Advisor
	store   *store.Store
	cfg     *config.Config
}

// NewAdvisorHandler creates an AdvisorHandler.
func NewAdvisorHandler(a *advisor.Advisor, s *store.Store, cfg *config.Config) *AdvisorHandler {
	return &AdvisorHandler{advisor: a, store: s, cfg: cfg}
}

// loadConfig returns the persisted provider configuration, falling back to
// environment defaults when nothing has been saved yet.
func (h *AdvisorHandler) loadConfig(c *gin.Context) (*domain.AdvisorConfig, error) {
	pcfg, err := h.store.LoadAdvisorConfig(c.Request.Context())
	if err != nil {
		return nil, err
	}
	if pcfg == nil {
		pcfg = &domain.AdvisorConfig{
			Provider:  h.cfg.Advisor.Provider,
			Model:     h.cfg.Advisor.Model,
			Threshold: h.cfg.Advisor.Threshold,
		}
	}
	return pcfg, nil
}

// GetConfig godoc
// GET /api/advisor/config
// The API key itself is never echoed back, only whether one is set.
func (h *AdvisorHandler) GetConfig(c *gin.Context) {
	pcfg, err := h.loadConfig(c)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not load advisor config")
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"provider":    pcfg.Provider,
		"model":       pcfg.Model,
		"threshold":   pcfg.Threshold,
		"has_api_key": pcfg.APIKey != "",
	})
}

// UpdateConfig godoc
// PUT /api/advisor/config
// Body: {"provider":"openai","api_key":"sk-...","model":"gpt-4o-mini","threshold":60}
// An empty api_key keeps the previously stored key.
func (h *AdvisorHandler) UpdateConfig(c *gin.Context) {
	var body struct {
		Provider  string `json:"provider"  binding:"required"`
		APIKey    string `json:"api_key"`
		Model     string `json:"model"`
		Threshold *int   `json:"threshold"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	switch body.Provider {
	case advisor.ProviderMock, advisor.ProviderOpenAI, advisor.ProviderDeepSeek, advisor.ProviderGemini:
	default:
		respondError(c, http.StatusBadRequest, "ERR_INVALID_PROVIDER", "provider must be mock, openai, deepseek, or gemini")
		return
	}

	current, err := h.loadConfig(c)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not load advisor config")
		return
	}

	pcfg := &domain.AdvisorConfig{
		Provider:  body.Provider,
		APIKey:    current.APIKey,
		Model:     current.Model,
		Threshold: current.Threshold,
	}
	if body.APIKey != "" {
		pcfg.APIKey = body.APIKey
	}
	if body.Model != "" {
		pcfg.Model = body.Model
	}
	if body.Threshold != nil {
		if *body.Threshold < 0 || *body.Threshold > 100 {
			respondError(c, http.StatusBadRequest, "ERR_INVALID_THRESHOLD", "threshold must be between 0 and 100")
			return
		}
		pcfg.Threshold = *body.Threshold
	}

	if err := h.store.SaveAdvisorConfig(c.Request.Context(), pcfg); err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not save advisor config")
		return
	}
	respondSuccess(c, http.StatusOK, gin.H{
		"provider":    pcfg.Provider,
		"model":       pcfg.Model,
		"threshold":   pcfg.Threshold,
		"has_api_key": pcfg.APIKey != "",
	})
}

// Analyze godoc
// POST /api/advisor/analyze
// Builds an indicator snapshot from live market data and asks the configured
// provider for a directional call.
func (h *AdvisorHandler) Analyze(c *gin.Context) {
	pcfg, err := h.loadConfig(c)
	if err != nil {
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not load advisor config")
		return
	}

	snap, err := h.advisor.BuildSnapshot(c.Request.Context(), h.cfg.Trading.Symbol, "1m")
	if err != nil {
		respondError(c, http.StatusServiceUnavailable, "ERR_FEED", "market data unavailable for analysis")
		return
	}

	prediction, err := h.advisor.RequestPrediction(c.Request.Context(), snap, pcfg)
	if err != nil {
		if errors.Is(err, domain.ErrProvider) {
			respondError(c, http.StatusBadGateway, "ERR_PROVIDER", "prediction provider request failed")
			return
		}
		respondError(c, http.StatusInternalServerError, "ERR_INTERNAL", "could not produce prediction")
		return
	}

	respondSuccess(c, http.StatusOK, gin.H{
		"prediction": prediction,
		"snapshot":   snap,
		"actionable": prediction.Confidence >= pcfg.Threshold,
	})
}
