package handler

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi"
	"go.uber.org/zap"

	"eth_stats_api/internal/errors"
	"eth_stats_api/internal/usecase"
	"eth_stats_api/pkg/metrics"
)

const (
	defaultSnapshotLimit = 30
	maxSnapshotLimit     = 1000
)

type Handler struct {
	statsUseCase *usecase.StatsUseCase
}

func NewHandler(stats *usecase.StatsUseCase) *Handler {
	return &Handler{statsUseCase: stats}
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/ethereum", h.getEthereum)
	r.Get("/ethereum/snapshots", h.getSnapshots)
}

func (h *Handler) getEthereum(w http.ResponseWriter, r *http.Request) {
	record, err := h.statsUseCase.Execute(r.Context())
	if err != nil {
		h.writeError(w, "ethereum", err)
		return
	}
	metrics.StatsRequests.WithLabelValues("ethereum", strconv.Itoa(http.StatusOK)).Inc()
	writeJSON(w, record)
}

func (h *Handler) getSnapshots(w http.ResponseWriter, r *http.Request) {
	limit := defaultSnapshotLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > maxSnapshotLimit {
			zap.L().Debug("invalid limit param", zap.String("limit", raw))
			h.writeError(w, "snapshots", errors.ErrInvalidLimit)
			return
		}
		limit = v
	}

	snaps, err := h.statsUseCase.Snapshots(r.Context(), limit)
	if err != nil {
		h.writeError(w, "snapshots", err)
		return
	}
	metrics.StatsRequests.WithLabelValues("snapshots", strconv.Itoa(http.StatusOK)).Inc()
	writeJSON(w, snaps)
}

func (h *Handler) writeError(w http.ResponseWriter, route string, err error) {
	var he errors.HTTPError
	if stderrors.As(err, &he) {
		metrics.StatsRequests.WithLabelValues(route, strconv.Itoa(he.StatusCode())).Inc()
		writeErrorJSON(w, he.StatusCode(), he.Error())
		return
	}
	zap.L().Error("unexpected stats error", zap.String("route", route), zap.Error(err))
	metrics.StatsRequests.WithLabelValues(route, strconv.Itoa(http.StatusInternalServerError)).Inc()
	writeErrorJSON(w, http.StatusInternalServerError, "internal error")
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("failed to write JSON response", zap.Error(err))
	}
}

func writeErrorJSON(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(struct {
		Error string `json:"error"`
	}{Error: msg}); err != nil {
		zap.L().Error("failed to write JSON error response", zap.Error(err))
	}
}
