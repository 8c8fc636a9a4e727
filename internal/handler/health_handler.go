package handler

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// HealthSource reports dependency health and rate limiter degradation.
type HealthSource interface {
	HealthCheck(ctx context.Context) map[string]error
	DegradedCount() int64
	RateLimitBackend() string
}

type HealthHandler struct {
	responder
	source  HealthSource
	timeout time.Duration
}

func NewHealthHandler(source HealthSource, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{responder: responder{logger: logger}, source: source, timeout: 5 * time.Second}
}

type rateLimitHealth struct {
	Backend          string `json:"backend"`
	DegradedRequests int64  `json:"degraded_requests"`
}

type healthResponse struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Checks    map[string]string `json:"checks"`
	RateLimit rateLimitHealth   `json:"rate_limit"`
}

// Health reports dependency status
// @Summary Health check
// @Tags health
// @Produce json
// @Success 200 {object} healthResponse
// @Failure 503 {object} healthResponse
// @Router /health [get]
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	failures := h.source.HealthCheck(ctx)
	out := healthResponse{
		Status:  "healthy",
		Service: "workflow-dashboard",
		Checks:  make(map[string]string, len(failures)),
		RateLimit: rateLimitHealth{
			Backend:          h.source.RateLimitBackend(),
			DegradedRequests: h.source.DegradedCount(),
		},
	}

	status := http.StatusOK
	for name, err := range failures {
		out.Checks[name] = err.Error()
		out.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusOK && out.RateLimit.DegradedRequests > 0 {
		out.Status = "degraded"
	}

	h.respondWithJSON(w, status, out)
}
