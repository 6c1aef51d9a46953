// Package api exposes HTTP handlers for the accrual engine.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/TuNa-eTech/ErgoLifeApp/internal/auth"
	"github.com/TuNa-eTech/ErgoLifeApp/internal/domain"
	"github.com/TuNa-eTech/ErgoLifeApp/internal/persistence"
)

const maxBodyBytes = 1 << 16

// Handler coordinates HTTP requests with the domain service.
type Handler struct {
	service *domain.Service
	logger  *zap.Logger
}

// NewHandler builds a Handler.
func NewHandler(service *domain.Service, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{service: service, logger: logger.Named("api")}
}

// RegisterRoutes wires endpoints to the mux. limitWrites, when non-nil, wraps
// the endpoints that change wallet state.
func (h *Handler) RegisterRoutes(mux *http.ServeMux, limitWrites func(http.Handler) http.Handler) {
	if limitWrites == nil {
		limitWrites = func(next http.Handler) http.Handler { return next }
	}
	mux.Handle("POST /v1/activities", limitWrites(h.requireScope(h.logActivity, auth.ScopeActivitiesWrite)))
	mux.Handle("GET /v1/activities", h.requireScope(h.listActivities, auth.ScopeActivitiesRead, auth.ScopeActivitiesWrite))
	mux.Handle("GET /v1/activities/leaderboard", h.requireScope(h.leaderboard, auth.ScopeActivitiesRead, auth.ScopeActivitiesWrite))
	mux.Handle("GET /v1/activities/stats", h.requireScope(h.stats, auth.ScopeActivitiesRead, auth.ScopeActivitiesWrite))
	mux.Handle("GET /v1/me", h.requireScope(h.profile, auth.ScopeActivitiesRead, auth.ScopeActivitiesWrite))
	mux.Handle("POST /v1/me/streak-freezes", limitWrites(h.requireScope(h.purchaseStreakFreeze, auth.ScopeWalletWrite)))
	mux.HandleFunc("GET /healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type authedHandler func(w http.ResponseWriter, r *http.Request, userID string)

// requireScope admits requests whose claims carry any of scopes.
func (h *Handler) requireScope(next authedHandler, scopes ...string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, ok := auth.FromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		for _, scope := range scopes {
			if claims.HasScope(scope) {
				next(w, r, claims.Subject)
				return
			}
		}
		writeError(w, http.StatusForbidden, "forbidden", "scope "+scopes[0]+" required")
	})
}

func (h *Handler) logActivity(w http.ResponseWriter, r *http.Request, userID string) {
	var req LogActivityRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	result, err := h.service.LogActivity(r.Context(), domain.LogActivityInput{
		UserID:               userID,
		TaskName:             req.TaskName,
		DurationSeconds:      req.DurationSeconds,
		Intensity:            req.Intensity,
		CompletionPercentage: req.CompletionPercentage,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLogActivityResponse(result))
}

func (h *Handler) listActivities(w http.ResponseWriter, r *http.Request, userID string) {
	query := r.URL.Query()

	from, err := parseBound(query.Get("from"), false)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "from must be RFC3339 or YYYY-MM-DD")
		return
	}
	to, err := parseBound(query.Get("to"), true)
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "to must be RFC3339 or YYYY-MM-DD")
		return
	}

	limit := 0
	if raw := query.Get("limit"); raw != "" {
		parsed, convErr := strconv.Atoi(raw)
		if convErr != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "validation_failed", "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	cursor, err := persistence.DecodeCursor(query.Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	page, err := h.service.ListActivities(r.Context(), userID, domain.ActivityFilter{From: from, To: to}, cursor, limit)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	items := make([]ActivityView, 0, len(page.Items))
	for _, activity := range page.Items {
		items = append(items, toActivityView(activity))
	}
	writeJSON(w, http.StatusOK, ListActivitiesResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(page.NextCursor),
		Summary:    toSummaryView(page.Summary),
	})
}

func (h *Handler) leaderboard(w http.ResponseWriter, r *http.Request, userID string) {
	board, err := h.service.Leaderboard(r.Context(), userID, r.URL.Query().Get("week"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	resp := LeaderboardResponse{
		Week:      board.Week.Label,
		WeekStart: board.Week.Start,
		WeekEnd:   board.Week.End,
		Rankings:  make([]LeaderboardEntryView, 0, len(board.Rankings)),
	}
	for _, entry := range board.Rankings {
		resp.Rankings = append(resp.Rankings, LeaderboardEntryView{
			Rank:          entry.Rank,
			User:          MemberView{ID: entry.UserID, DisplayName: entry.DisplayName},
			WeeklyPoints:  entry.WeeklyPoints,
			ActivityCount: entry.ActivityCount,
			IsCurrentUser: entry.UserID == userID,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request, userID string) {
	period, err := domain.ParseStatsPeriod(r.URL.Query().Get("period"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	stats, err := h.service.Stats(r.Context(), userID, period)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	resp := StatsResponse{
		Period:            string(stats.Period),
		TotalPoints:       stats.Summary.TotalPoints,
		TotalActivities:   stats.Summary.ActivityCount,
		TotalDuration:     stats.Summary.TotalDuration,
		EstimatedCalories: stats.EstimatedCalories,
		TopTasks:          make([]TaskTotalView, 0, len(stats.TopTasks)),
		Streak:            StreakSummaryView{Current: stats.CurrentStreak, Longest: stats.LongestStreak},
	}
	for _, task := range stats.TopTasks {
		resp.TopTasks = append(resp.TopTasks, TaskTotalView{TaskName: task.TaskName, Count: task.Count, TotalPoints: task.TotalPoints})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) profile(w http.ResponseWriter, r *http.Request, userID string) {
	state, err := h.service.Profile(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toProfileView(*state))
}

func (h *Handler) purchaseStreakFreeze(w http.ResponseWriter, r *http.Request, userID string) {
	purchase, err := h.service.PurchaseStreakFreeze(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FreezePurchaseResponse{
		Cost:              domain.StreakFreezeCost,
		WalletBalance:     purchase.WalletBalance,
		StreakFreezeCount: purchase.FreezeCount,
	})
}

// writeDomainError maps the domain error taxonomy to HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var validation *domain.ValidationError
	var txErr *domain.TransactionError
	switch {
	case errors.As(err, &validation):
		writeError(w, http.StatusBadRequest, "validation_failed", validation.Error())
	case errors.Is(err, domain.ErrNotInHouse):
		writeError(w, http.StatusForbidden, "forbidden", err.Error())
	case errors.Is(err, domain.ErrMaxFreezeReached):
		writeError(w, http.StatusForbidden, "max_freeze_reached", err.Error())
	case errors.Is(err, domain.ErrInsufficientPoints):
		writeError(w, http.StatusForbidden, "insufficient_points", err.Error())
	case errors.Is(err, domain.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.As(err, &txErr):
		h.logger.Warn("transient store failure", zap.String("op", txErr.Op), zap.Error(txErr.Err))
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, "transient_error", "temporarily unavailable, retry the request")
	default:
		h.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "server_error", "internal error")
	}
}

// parseBound accepts RFC3339 or a bare date. A bare upper bound covers the whole day.
func parseBound(raw string, upper bool) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	day, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, err
	}
	if upper {
		return day.AddDate(0, 0, 1).Add(-time.Microsecond), nil
	}
	return day, nil
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
