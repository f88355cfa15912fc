package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	cronHandler "github.com/kevin07696/gateway-sync/internal/handlers/cron"
	controlHandler "github.com/kevin07696/gateway-sync/internal/handlers/control"
	webhookHandler "github.com/kevin07696/gateway-sync/internal/handlers/webhook"
	"github.com/kevin07696/gateway-sync/internal/middleware"
	httpmw "github.com/kevin07696/gateway-sync/pkg/middleware"
	"github.com/kevin07696/gateway-sync/pkg/resilience"
)

// routerDeps holds the handlers and guards mounted on the public listener
type routerDeps struct {
	webhooks    *webhookHandler.Handler
	control     *controlHandler.Handler
	cron        *cronHandler.SweeperHandler
	tokens      middleware.TokenValidator
	limiter     *httpmw.RateLimiter
	timeouts    *resilience.TimeoutConfig
	cronSecret  string
	development bool
}

// newRouter builds the public HTTP surface:
//   - /webhooks/* gateway callbacks, rate limited per client IP
//   - /cron/*     sweeper triggers behind the cron secret
//   - everything else is the control API behind operator bearer tokens
func newRouter(deps routerDeps, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(
		chimw.RequestID,
		chimw.RealIP,
		httpmw.RequestLogger(logger),
		httpmw.Recoverer(logger),
		middleware.NewSecurityHeaders(deps.development).Middleware,
	)

	r.Route("/webhooks", func(r chi.Router) {
		r.Use(deps.limiter.Middleware, httpmw.Timeout(deps.timeouts))
		deps.webhooks.Routes(r)
	})

	// Sweeps carry their own deadline.
	r.Route("/cron", func(r chi.Router) {
		r.Use(middleware.CronAuth(deps.cronSecret, logger))
		deps.cron.Routes(r)
	})

	r.Group(func(r chi.Router) {
		r.Use(httpmw.Timeout(deps.timeouts), middleware.BearerAuth(deps.tokens, logger))
		deps.control.Routes(r)
	})

	return r
}
