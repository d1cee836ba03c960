package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"ChainWatch/internal/domain/models"
	drepo "ChainWatch/internal/domain/repository"
	icache "ChainWatch/internal/service/cache"
	"ChainWatch/internal/service/metrics"
	xhttp "ChainWatch/pkg/http"
	xlogger "ChainWatch/pkg/logger"
	"ChainWatch/pkg/util"
)

const anomaliesCacheTTL = 60 * time.Second

// AnomaliesHandler serves the read-side API over stored detection results.
type AnomaliesHandler struct {
	logger    *xlogger.Logger
	anomalies drepo.AnomalyStore
	runs      drepo.RunStore
	snapshots drepo.SnapshotStore
	cache     icache.BytesCache
}

func NewAnomaliesHandler(logger *xlogger.Logger, anomalies drepo.AnomalyStore, runs drepo.RunStore, snapshots drepo.SnapshotStore) *AnomaliesHandler {
	metrics.Register()
	return &AnomaliesHandler{logger: logger, anomalies: anomalies, runs: runs, snapshots: snapshots}
}

// SetCache injects a response cache for the anomalies endpoint.
func (h *AnomaliesHandler) SetCache(c icache.BytesCache) { h.cache = c }

func (h *AnomaliesHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/anomalies", h.Anomalies)
	g.GET("/runs", h.Runs)
	g.GET("/runs/latest", h.LatestRun)
	g.GET("/snapshot", h.Snapshot)
	e.GET("/healthz", h.Health)
}

type signalDTO struct {
	Rule     string  `json:"rule"`
	Observed float64 `json:"observed"`
	Baseline float64 `json:"baseline"`
	Ratio    float64 `json:"ratio"`
	Note     string  `json:"note,omitempty"`
}

type anomalyDTO struct {
	Symbol           string      `json:"symbol"`
	Date             string      `json:"date"`
	Tier             string      `json:"tier"`
	CompositeScore   float64     `json:"composite_score"`
	RuleTriggered    bool        `json:"rule_triggered"`
	CompositeFlagged bool        `json:"composite_flagged"`
	Notes            string      `json:"notes,omitempty"`
	Signals          []signalDTO `json:"signals,omitempty"`
}

type runDTO struct {
	RunDate         string         `json:"run_date"`
	StartedAt       time.Time      `json:"started_at"`
	FinishedAt      time.Time      `json:"finished_at"`
	Attempted       int            `json:"attempted"`
	Succeeded       int            `json:"succeeded"`
	Failed          int            `json:"failed"`
	FailedByReason  map[string]int `json:"failed_by_reason,omitempty"`
	AnomaliesByTier map[string]int `json:"anomalies_by_tier,omitempty"`
	SkippedBaseline int            `json:"skipped_baseline"`
}

type contractDTO struct {
	ContractSymbol string  `json:"contract_symbol"`
	Expiration     string  `json:"expiration"`
	Strike         float64 `json:"strike"`
	Type           string  `json:"type"`
	LastPrice      float64 `json:"last_price"`
	Bid            float64 `json:"bid"`
	Ask            float64 `json:"ask"`
	Volume         int64   `json:"volume"`
	OpenInterest   int64   `json:"open_interest"`
	ImpliedVol     float64 `json:"implied_vol,omitempty"`
}

type snapshotDTO struct {
	Symbol          string        `json:"symbol"`
	Date            string        `json:"date"`
	Provider        string        `json:"provider"`
	UnderlyingPrice float64       `json:"underlying_price"`
	Contracts       []contractDTO `json:"contracts"`
}

func (h *AnomaliesHandler) Anomalies(c echo.Context) error {
	start := time.Now()
	endpoint := "anomalies"
	defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.AnomaliesRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	date := util.ParseDateDefault(req.Date, util.Today())

	cacheKey := fmt.Sprintf("anomalies:%s:%s:%d", date.Format("2006-01-02"), req.Tier, req.Limit)
	if h.cache != nil {
		if b, ok, err := h.cache.GetBytes(cacheKey); err == nil && ok {
			h.logger.Debug("anomalies cache_hit", xlogger.String("key", cacheKey))
			return c.JSONBlob(http.StatusOK, b)
		}
	}

	recs, err := h.anomalies.ListByDate(c.Request().Context(), date, models.RiskTier(req.Tier), req.Limit)
	if err != nil {
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
		h.logger.Error("list anomalies failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}

	out := make([]anomalyDTO, 0, len(recs))
	for _, r := range recs {
		out = append(out, toAnomalyDTO(r))
	}

	if h.cache != nil {
		b, err := json.Marshal(xhttp.APIResponse{
			Status:  http.StatusOK,
			Message: http.StatusText(http.StatusOK),
			Data:    &xhttp.ListDataResponse{Rows: out, Total: int64(len(out))},
		})
		if err == nil {
			_ = h.cache.SetBytes(cacheKey, b, anomaliesCacheTTL)
			return c.JSONBlob(http.StatusOK, b)
		}
	}
	return xhttp.ListResponse(c, out, int64(len(out)))
}

func (h *AnomaliesHandler) Runs(c echo.Context) error {
	start := time.Now()
	endpoint := "runs"
	defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.RunsRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	sums, err := h.runs.ListSummaries(c.Request().Context(), req.Limit)
	if err != nil {
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
		h.logger.Error("list runs failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}

	out := make([]runDTO, 0, len(sums))
	for _, s := range sums {
		out = append(out, toRunDTO(s))
	}
	return xhttp.ListResponse(c, out, int64(len(out)))
}

// LatestRun returns the most recent run summary.
func (h *AnomaliesHandler) LatestRun(c echo.Context) error {
	start := time.Now()
	endpoint := "runs_latest"
	defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	sums, err := h.runs.ListSummaries(c.Request().Context(), 1)
	if err != nil {
		metrics.APIErrors.WithLabelValues(endpoint).Inc()
		h.logger.Error("latest run lookup failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, err)
	}
	if len(sums) == 0 {
		return xhttp.NotFoundResponse(c, "no runs recorded")
	}
	return xhttp.SuccessResponse(c, toRunDTO(sums[0]))
}

func (h *AnomaliesHandler) Snapshot(c echo.Context) error {
	start := time.Now()
	endpoint := "snapshot"
	defer func() { metrics.APILatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds()) }()

	req := &models.SnapshotRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	date := util.ParseDateDefault(req.Date, util.Today())

	snap, err := h.snapshots.GetSnapshot(c.Request().Context(), req.Symbol, date)
	if err != nil {
		h.logger.Error("get snapshot failed",
			xlogger.String("symbol", req.Symbol),
			xlogger.Error(err))
		return xhttp.NotFoundResponse(c, "snapshot not found")
	}
	return xhttp.SuccessResponse(c, toSnapshotDTO(snap))
}

func (h *AnomaliesHandler) Health(c echo.Context) error {
	if err := h.snapshots.Health(c.Request().Context()); err != nil {
		h.logger.Error("health check failed", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.NewAppError("ERR_UNHEALTHY", "", "storage unavailable", 503).WithError(err))
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

func toAnomalyDTO(r *models.AnomalyRecord) anomalyDTO {
	signals := make([]signalDTO, 0, len(r.Signals))
	for _, s := range r.Signals {
		signals = append(signals, signalDTO{
			Rule:     s.Rule,
			Observed: s.Observed,
			Baseline: s.Baseline,
			Ratio:    s.Ratio,
			Note:     s.Note,
		})
	}
	return anomalyDTO{
		Symbol:           r.Symbol,
		Date:             r.SnapshotDate.Format("2006-01-02"),
		Tier:             string(r.Tier),
		CompositeScore:   r.CompositeScore,
		RuleTriggered:    r.RuleTriggered,
		CompositeFlagged: r.CompositeFlagged,
		Notes:            r.Notes,
		Signals:          signals,
	}
}

func toRunDTO(s *models.RunSummary) runDTO {
	byTier := make(map[string]int, len(s.AnomaliesByTier))
	for tier, n := range s.AnomaliesByTier {
		byTier[string(tier)] = n
	}
	return runDTO{
		RunDate:         s.RunDate.Format("2006-01-02"),
		StartedAt:       s.StartedAt,
		FinishedAt:      s.FinishedAt,
		Attempted:       s.Attempted,
		Succeeded:       s.Succeeded,
		Failed:          s.Failed,
		FailedByReason:  s.FailedByReason,
		AnomaliesByTier: byTier,
		SkippedBaseline: s.SkippedBaseline,
	}
}

func toSnapshotDTO(snap *models.ChainSnapshot) snapshotDTO {
	contracts := make([]contractDTO, 0, len(snap.Contracts))
	for _, c := range snap.Contracts {
		contracts = append(contracts, contractDTO{
			ContractSymbol: c.ContractSymbol,
			Expiration:     c.Expiration.Format("2006-01-02"),
			Strike:         c.Strike,
			Type:           string(c.Type),
			LastPrice:      c.LastPrice,
			Bid:            c.Bid,
			Ask:            c.Ask,
			Volume:         c.Volume,
			OpenInterest:   c.OpenInterest,
			ImpliedVol:     c.ImpliedVol,
		})
	}
	return snapshotDTO{
		Symbol:          snap.Symbol,
		Date:            snap.SnapshotDate.Format("2006-01-02"),
		Provider:        snap.Provider,
		UnderlyingPrice: snap.UnderlyingPrice,
		Contracts:       contracts,
	}
}
