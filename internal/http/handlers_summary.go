package http

import (
	"net/http"
	"time"
)

// Placeholders shown when a period has no expenses.
const (
	emptyDaily   = "0.00"
	emptyPeriods = "N/A"
)

func (s *Server) handleDailyTotal(w http.ResponseWriter, r *http.Request) {
	totals, err := s.svc.DailyTotal(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTotalsResponse(totals, emptyDaily))
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := s.svc.Summary(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]totalsResponse{
		"weekly":  toTotalsResponse(sum.Weekly, emptyPeriods),
		"monthly": toTotalsResponse(sum.Monthly, emptyPeriods),
		"yearly":  toTotalsResponse(sum.Yearly, emptyPeriods),
	})
}

// handleRangeTotal sums an arbitrary closed interval given as start and end
// query parameters.
func (s *Server) handleRangeTotal(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("start") == "" || q.Get("end") == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "start and end are required"})
		return
	}

	var start, end time.Time
	var err error
	if start, err = parseBound(q.Get("start"), s.loc, false); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if end, err = parseBound(q.Get("end"), s.loc, true); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	totals, err := s.svc.SumByCurrency(r.Context(), start, end)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTotalsResponse(totals, emptyPeriods))
}
