package http

import (
	"errors"
	"net/http"

	"billbuddy/internal/core"
	applog "billbuddy/internal/log"
)

func (s *Server) handleCurrencies(w http.ResponseWriter, r *http.Request) {
	type currency struct {
		Code   string `json:"code"`
		Symbol string `json:"symbol"`
	}
	codes := core.SupportedCurrencies()
	out := make([]currency, 0, len(codes))
	for _, c := range codes {
		out = append(out, currency{Code: string(c), Symbol: c.Symbol()})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"default":    string(s.defaultCurrency),
		"currencies": out,
	})
}

func (s *Server) handleListExpenses(w http.ResponseWriter, r *http.Request) {
	list, err := s.svc.ListExpenses(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]expenseResponse, 0, len(list))
	for _, e := range list {
		out = append(out, toExpenseResponse(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"expenses": out, "count": len(out)})
}

func (s *Server) handleCreateExpense(w http.ResponseWriter, r *http.Request) {
	in, err := decodeExpense(r, s.defaultCurrency)
	if errors.Is(err, errRequestShape) {
		writeError(w, r, err)
		return
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err := in.Validate(); err != nil {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Expense rejected",
			applog.FieldOperation, applog.OpCreate, applog.FieldError, err)
		writeError(w, r, err)
		return
	}

	e, err := s.svc.CreateExpense(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toExpenseResponse(e))
}

func (s *Server) handleGetExpense(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	e, err := s.svc.GetExpense(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseResponse(e))
}

func (s *Server) handleUpdateExpense(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	in, err := decodeExpense(r, s.defaultCurrency)
	if errors.Is(err, errRequestShape) {
		writeError(w, r, err)
		return
	}
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if err := in.Validate(); err != nil {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Expense update rejected",
			applog.FieldOperation, applog.OpUpdate, applog.FieldExpenseID, id, applog.FieldError, err)
		writeError(w, r, err)
		return
	}

	e, err := s.svc.UpdateExpense(r.Context(), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toExpenseResponse(e))
}

// handleDeleteExpense removes one expense. The caller must pass confirm=true.
func (s *Server) handleDeleteExpense(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if !confirmed(r) {
		writeJSON(w, http.StatusPreconditionRequired, errorResponse{Error: "deletion must be confirmed with confirm=true"})
		return
	}
	if err := s.svc.DeleteExpense(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleResetExpenses wipes the whole table. The caller must pass confirm=true.
func (s *Server) handleResetExpenses(w http.ResponseWriter, r *http.Request) {
	if !confirmed(r) {
		writeJSON(w, http.StatusPreconditionRequired, errorResponse{Error: "reset must be confirmed with confirm=true"})
		return
	}
	n, err := s.svc.ResetExpenses(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": n})
}
