package api

import (
	"net/http"
	"time"

	"github.com/rykyfilipe/efactura-engine/services"
	"github.com/rykyfilipe/efactura-engine/utils"
	"gorm.io/gorm"
)

type HealthHandler struct {
	db                *gorm.DB
	submissionService *services.SubmissionService
	metrics           *utils.MetricsCollector
	startedAt         time.Time
}

func CreateHealthHandler(db *gorm.DB, submissionService *services.SubmissionService, metrics *utils.MetricsCollector) *HealthHandler {
	return &HealthHandler{
		db:                db,
		submissionService: submissionService,
		metrics:           metrics,
		startedAt:         time.Now(),
	}
}

type healthResponse struct {
	Status    string            `json:"status"`
	UptimeSec int64             `json:"uptime_seconds"`
	Checks    map[string]string `json:"checks"`
}

// HandleHealth reports the database and the authority's reachability. A
// degraded authority does not fail the endpoint: the engine itself is still
// serving, submissions just queue up as failures.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{
		"database":  "ok",
		"authority": "ok",
	}
	status := "ok"
	code := http.StatusOK

	sqlDB, err := h.db.DB()
	if err != nil || sqlDB.PingContext(r.Context()) != nil {
		checks["database"] = "unavailable"
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	}

	if !h.submissionService.AuthorityAvailable(r.Context()) {
		checks["authority"] = "unavailable"
		if status == "ok" {
			status = "degraded"
		}
	}

	writeJSON(w, code, healthResponse{
		Status:    status,
		UptimeSec: int64(time.Since(h.startedAt).Seconds()),
		Checks:    checks,
	})
}

func (h *HealthHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.metrics.Snapshot())
}
