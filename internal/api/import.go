package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/charles-chenzz/TradeVoyage/internal/ingest"
)

// ImportRequest is the request body for POST /api/v1/import. Historical
// CSV/API dumps arrive here after the exchange adapter normalized them.
type ImportRequest struct {
	Executions         []ingest.ExecutionEvent `json:"executions"`
	Orders             []ingest.OrderEvent     `json:"orders,omitempty"`
	WalletTransactions []ingest.WalletEvent    `json:"wallet_transactions,omitempty"`
}

// ImportResult holds the result of a single record import.
type ImportResult struct {
	ID     string `json:"id"`
	Status string `json:"status"` // "inserted", "duplicate", "error"
	Error  string `json:"error,omitempty"`
}

// ImportResponse is the response body for POST /api/v1/import.
type ImportResponse struct {
	Total      int            `json:"total"`
	Inserted   int            `json:"inserted"`
	Duplicates int            `json:"duplicates"`
	Errors     int            `json:"errors"`
	Results    []ImportResult `json:"results"`
}

const maxImportRecords = 1000

// sortExecutionEvents orders validated events chronologically with exec
// id as the tie break. Timestamps are parsed rather than compared as
// strings so mixed zone offsets still sort by instant.
func sortExecutionEvents(events []ingest.ExecutionEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		ti, _ := time.Parse(time.RFC3339, events[i].Timestamp)
		tj, _ := time.Parse(time.RFC3339, events[j].Timestamp)
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}
		return events[i].ExecID < events[j].ExecID
	})
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req ImportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %v", err))
		return
	}

	total := len(req.Executions) + len(req.Orders) + len(req.WalletTransactions)
	if total == 0 {
		writeError(w, http.StatusBadRequest, "import request is empty")
		return
	}
	if total > maxImportRecords {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("too many records: max %d per request", maxImportRecords))
		return
	}

	// Validate everything up front before inserting anything
	for i, event := range req.Executions {
		if err := event.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("executions[%d] (%s): %v", i, event.ExecID, err))
			return
		}
	}
	for i, event := range req.Orders {
		if err := event.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("orders[%d] (%s): %v", i, event.OrderID, err))
			return
		}
	}
	for i, event := range req.WalletTransactions {
		if err := event.Validate(); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("wallet_transactions[%d] (%s): %v", i, event.TxID, err))
			return
		}
	}

	// Sort executions by timestamp so partial failures leave a prefix,
	// not holes, in the history.
	sortExecutionEvents(req.Executions)

	ctx := r.Context()
	resp := ImportResponse{
		Total:   total,
		Results: make([]ImportResult, 0, total),
	}

	// Accounts whose positions must be recomputed after the import
	affectedAccounts := make(map[string]bool)

	for _, event := range req.Executions {
		result := ImportResult{ID: event.ExecID}

		exec, err := event.ToDomain()
		if err != nil {
			result.Status = "error"
			result.Error = err.Error()
			resp.Errors++
			resp.Results = append(resp.Results, result)
			continue
		}

		if _, err := s.repo.GetOrCreateAccount(ctx, exec.AccountID, exec.Exchange); err != nil {
			result.Status = "error"
			result.Error = fmt.Sprintf("account setup failed: %v", err)
			resp.Errors++
			resp.Results = append(resp.Results, result)
			continue
		}

		inserted, err := s.repo.InsertExecution(ctx, exec)
		if err != nil {
			result.Status = "error"
			result.Error = err.Error()
			resp.Errors++
			resp.Results = append(resp.Results, result)
			continue
		}

		if inserted {
			result.Status = "inserted"
			resp.Inserted++
			affectedAccounts[exec.AccountID] = true
		} else {
			result.Status = "duplicate"
			resp.Duplicates++
		}
		resp.Results = append(resp.Results, result)
	}

	for _, event := range req.Orders {
		result := ImportResult{ID: event.OrderID}

		order, err := event.ToDomain()
		if err == nil {
			_, aerr := s.repo.GetOrCreateAccount(ctx, order.AccountID, order.Exchange)
			if aerr == nil {
				err = s.repo.UpsertOrder(ctx, order)
			} else {
				err = aerr
			}
		}
		if err != nil {
			result.Status = "error"
			result.Error = err.Error()
			resp.Errors++
		} else {
			result.Status = "inserted"
			resp.Inserted++
		}
		resp.Results = append(resp.Results, result)
	}

	for _, event := range req.WalletTransactions {
		result := ImportResult{ID: event.TxID}

		tx, err := event.ToDomain()
		var inserted bool
		if err == nil {
			_, aerr := s.repo.GetOrCreateAccount(ctx, tx.AccountID, tx.Exchange)
			if aerr == nil {
				inserted, err = s.repo.InsertWalletTransaction(ctx, tx)
			} else {
				err = aerr
			}
		}
		switch {
		case err != nil:
			result.Status = "error"
			result.Error = err.Error()
			resp.Errors++
		case inserted:
			result.Status = "inserted"
			resp.Inserted++
		default:
			result.Status = "duplicate"
			resp.Duplicates++
		}
		resp.Results = append(resp.Results, result)
	}

	// Recompute positions for affected accounts synchronously so the
	// importer reads back a consistent projection.
	for accountID := range affectedAccounts {
		if err := s.rebuilder.Rebuild(ctx, accountID); err != nil {
			log.Error().Err(err).Str("account_id", accountID).
				Msg("failed to rebuild positions after import")
		}
	}

	status := http.StatusOK
	if resp.Errors > 0 && resp.Inserted == 0 {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, resp)
}
