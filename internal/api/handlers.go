package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/charles-chenzz/TradeVoyage/internal/domain"
	"github.com/charles-chenzz/TradeVoyage/internal/stats"
	"github.com/charles-chenzz/TradeVoyage/internal/store"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	// Check database
	if err := s.repo.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "error",
			"error":  "database unreachable",
		})
		return
	}

	// Check NATS
	if s.nc != nil && !s.nc.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "error",
			"error":  "NATS disconnected",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.repo.ListAccounts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list accounts")
		return
	}
	writeJSON(w, http.StatusOK, accounts)
}

func (s *Server) handleListPositions(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")
	status := r.URL.Query().Get("status")
	if status == "" {
		status = "all"
	}

	if status != "open" && status != "closed" && status != "all" {
		writeError(w, http.StatusBadRequest, "invalid status: must be open, closed, or all")
		return
	}

	positions, err := s.repo.ListPositions(r.Context(), accountID, status)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list positions")
		return
	}
	writeJSON(w, http.StatusOK, positions)
}

// StatsResponse bundles the aggregates the charting layer consumes.
type StatsResponse struct {
	Summary stats.Summary         `json:"summary"`
	Monthly []stats.MonthlyBucket `json:"monthly"`
	Equity  []stats.EquityPoint   `json:"equity"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")

	exists, err := s.repo.AccountExists(r.Context(), accountID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check account")
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}

	positions, err := s.repo.ListPositions(r.Context(), accountID, "all")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list positions")
		return
	}

	// Optional mark prices for open exposure: ?mark=BTCUSDT:67000.5,...
	marks, err := parseMarks(r.URL.Query().Get("mark"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp := StatsResponse{
		Summary: stats.Summarize(positions),
		Monthly: stats.MonthlyBuckets(positions),
		Equity:  stats.EquityCurve(positions, marks, time.Now().UTC()),
	}
	writeJSON(w, http.StatusOK, resp)
}

func parseMarks(raw string) (map[string]domain.Amount, error) {
	if raw == "" {
		return nil, nil
	}
	marks := make(map[string]domain.Amount)
	for _, pair := range strings.Split(raw, ",") {
		sym, val, ok := strings.Cut(pair, ":")
		if !ok {
			return nil, &markError{pair}
		}
		price, err := domain.ParseAmount(val)
		if err != nil || price <= 0 {
			return nil, &markError{pair}
		}
		marks[sym] = price
	}
	return marks, nil
}

type markError struct{ pair string }

func (e *markError) Error() string {
	return "invalid mark price: " + e.pair + " (want SYMBOL:price)"
}

func (s *Server) handleWarnings(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")

	report, err := s.repo.LastRunReport(r.Context(), accountID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load run report")
		return
	}
	if report == nil {
		writeError(w, http.StatusNotFound, "account has no rebuild runs")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")

	exists, err := s.repo.AccountExists(r.Context(), accountID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to check account")
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, "account not found")
		return
	}

	if err := s.rebuilder.Rebuild(r.Context(), accountID); err != nil {
		writeError(w, http.StatusInternalServerError, "rebuild failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "rebuilt"})
}

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")
	q := r.URL.Query()

	filter := store.ExecutionFilter{
		Symbol:   q.Get("symbol"),
		Side:     q.Get("side"),
		ExecType: q.Get("exec_type"),
		Cursor:   q.Get("cursor"),
	}

	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	if startStr := q.Get("start"); startStr != "" {
		t, err := time.Parse(time.RFC3339, startStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid start time")
			return
		}
		filter.Start = &t
	}

	if endStr := q.Get("end"); endStr != "" {
		t, err := time.Parse(time.RFC3339, endStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid end time")
			return
		}
		filter.End = &t
	}

	result, err := s.repo.ListExecutions(r.Context(), accountID, filter)
	if err != nil {
		if strings.Contains(err.Error(), "invalid cursor") {
			writeError(w, http.StatusBadRequest, "invalid cursor")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to list executions")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")
	q := r.URL.Query()

	filter := store.OrderFilter{
		Status: q.Get("status"),
		Symbol: q.Get("symbol"),
		Cursor: q.Get("cursor"),
	}

	if limitStr := q.Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	result, err := s.repo.ListOrders(r.Context(), accountID, filter)
	if err != nil {
		if strings.Contains(err.Error(), "invalid cursor") {
			writeError(w, http.StatusBadRequest, "invalid cursor")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to list orders")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListWallet(w http.ResponseWriter, r *http.Request) {
	accountID := chi.URLParam(r, "accountId")

	entries, err := s.repo.ListWalletTransactions(r.Context(), accountID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list wallet transactions")
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
