// handlers_history.go - Analysis history and trend reporting handlers
package api

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/swingai/backend/internal/history"
)

// HistoryReader is the query surface of the history store.
type HistoryReader interface {
	Recent(limit int) ([]history.Entry, error)
	MonthlyStats() ([]history.MonthlyStat, error)
	ScoreTrend(days int) ([]history.TrendPoint, error)
}

// HandleHistoryRecent returns the most recent recorded analyses.
func (h *Handler) HandleHistoryRecent(c echo.Context) error {
	if h.history == nil {
		return NewInternalError("history not configured", nil)
	}

	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit < 1 || limit > 100 {
		limit = 20
	}

	entries, err := h.history.Recent(limit)
	if err != nil {
		return NewInternalError("failed to query history", err)
	}
	return c.JSON(http.StatusOK, entries)
}

// HandleHistoryMonthly returns per-month analysis counts and averages.
func (h *Handler) HandleHistoryMonthly(c echo.Context) error {
	if h.history == nil {
		return NewInternalError("history not configured", nil)
	}

	stats, err := h.history.MonthlyStats()
	if err != nil {
		return NewInternalError("failed to query monthly stats", err)
	}
	if stats == nil {
		stats = []history.MonthlyStat{}
	}
	return c.JSON(http.StatusOK, stats)
}

// HandleHistoryTrend returns the per-day average overall score for the
// last N days (default 30).
func (h *Handler) HandleHistoryTrend(c echo.Context) error {
	if h.history == nil {
		return NewInternalError("history not configured", nil)
	}

	days, _ := strconv.Atoi(c.QueryParam("days"))
	if days < 1 || days > 365 {
		days = 30
	}

	points, err := h.history.ScoreTrend(days)
	if err != nil {
		return NewInternalError("failed to query score trend", err)
	}
	if points == nil {
		points = []history.TrendPoint{}
	}
	return c.JSON(http.StatusOK, points)
}
