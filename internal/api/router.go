// Package api wires the Gin HTTP surface of the simulator.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/velora/optionsim/internal/advisor"
	"github.com/velora/optionsim/internal/api/handler"
	"github.com/velora/optionsim/internal/api/middleware"
	"github.com/velora/optionsim/internal/config"
	"github.com/velora/optionsim/internal/ledger"
	"github.com/velora/optionsim/internal/market"
	"github.com/velora/optionsim/internal/store"
	"github.com/velora/optionsim/internal/ws"
)

// RouterDeps bundles every dependency needed to build the router.
// Populated once in main() and passed to SetupRouter.
type RouterDeps struct {
	Ledger  *ledger.Ledger
	Feed    *market.Client
	Cache   *market.CandleCache
	Advisor *advisor.Advisor
	Store   *store.Store
	Hub     *ws.Hub
	Cfg     *config.Config
}

// SetupRouter creates and configures the main Gin engine with all routes,
// middleware, CORS, and rate limiting rules.
func SetupRouter(deps RouterDeps) *gin.Engine {
	if deps.Cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Logger())
	r.Use(gin.Recovery())

	// ── CORS ─────────────────────────────────────────────────────────────────
	r.Use(corsMiddleware(deps.Cfg))

	// ── Health check ─────────────────────────────────────────────────────────
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// ── Handlers ─────────────────────────────────────────────────────────────
	marketH := handler.NewMarketHandler(deps.Ledger, deps.Feed, deps.Cache, deps.Cfg)
	orderH := handler.NewOrderHandler(deps.Ledger, deps.Hub)
	accountH := handler.NewAccountHandler(deps.Ledger, deps.Cfg)
	historyH := handler.NewHistoryHandler(deps.Ledger, deps.Cfg)
	advisorH := handler.NewAdvisorHandler(deps.Advisor, deps.Store, deps.Cfg)

	// ── Rate limiters ─────────────────────────────────────────────────────────
	orderRL := middleware.RateLimit(30)  // order placement and mutations
	advisorRL := middleware.RateLimit(5) // analysis hits upstream providers

	api := r.Group("/api")
	{
		// ── Market data (read-only) ──────────────────────────────────────────
		mk := api.Group("/market")
		{
			mk.GET("/price", marketH.GetPrice)
			mk.GET("/klines", marketH.GetKlines)
		}

		// ── Orders & positions ───────────────────────────────────────────────
		api.POST("/orders", orderRL, orderH.PlaceOrder)
		api.GET("/positions", orderH.ListPositions)
		api.GET("/positions/export", historyH.Export)
		api.POST("/positions/import", orderRL, historyH.Import)

		// ── Account ──────────────────────────────────────────────────────────
		api.GET("/account", accountH.GetAccount)
		api.GET("/stats", accountH.GetStats)
		api.POST("/account/reset", orderRL, accountH.Reset)

		// ── Advisor ──────────────────────────────────────────────────────────
		adv := api.Group("/advisor")
		{
			adv.GET("/config", advisorH.GetConfig)
			adv.PUT("/config", orderRL, advisorH.UpdateConfig)
			adv.POST("/analyze", advisorRL, advisorH.Analyze)
		}
	}

	// ── WebSocket ─────────────────────────────────────────────────────────────
	if deps.Hub != nil {
		r.GET("/ws", func(c *gin.Context) {
			deps.Hub.ServeWs(c.Writer, c.Request)
		})
	}

	return r
}

// ── CORS helper ───────────────────────────────────────────────────────────────

// corsMiddleware returns a gin middleware that sets appropriate CORS headers.
// In DEBUG mode all origins are allowed; in production only configured origins.
func corsMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		if !cfg.IsProd() {
			c.Header("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			for _, o := range cfg.Server.AllowedOrigins {
				if o == "*" || o == origin {
					c.Header("Access-Control-Allow-Origin", origin)
					break
				}
			}
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
