package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"billbuddy/internal/core"
	applog "billbuddy/internal/log"
)

const maxBodyBytes = 1 << 16

var validate = validator.New(validator.WithRequiredStructEnabled())

// expenseRequest is the body of create and update calls. Amount may be sent
// as a JSON number or string; it is validated as text either way. Field
// presence is checked by core.ExpenseInput.Validate so the error kinds stay
// the same for every caller.
type expenseRequest struct {
	Description string     `json:"description" validate:"max=200"`
	Amount      flexAmount `json:"amount" validate:"max=32"`
	Category    string     `json:"category" validate:"max=100"`
	Currency    string     `json:"currency" validate:"omitempty,len=3,alpha"`
}

// errRequestShape marks a body that decoded but broke a field constraint.
var errRequestShape = errors.New("invalid request")

type flexAmount string

func (a *flexAmount) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*a = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*a = flexAmount(s)
		return nil
	}
	*a = flexAmount(b)
	return nil
}

type expenseResponse struct {
	ID            int64  `json:"id"`
	Date          string `json:"date"`
	Description   string `json:"description"`
	Amount        string `json:"amount"`
	AmountDisplay string `json:"amount_display"`
	Category      string `json:"category"`
	Currency      string `json:"currency"`
}

func toExpenseResponse(e core.Expense) expenseResponse {
	return expenseResponse{
		ID:            e.ID,
		Date:          core.FormatDate(e.Date),
		Description:   e.Description,
		Amount:        e.Amount.String(),
		AmountDisplay: e.Currency.Symbol() + core.FormatAmount(e.Amount),
		Category:      e.Category,
		Currency:      string(e.Currency),
	}
}

// totalsResponse carries both raw sums and the line the shell displays.
type totalsResponse struct {
	Totals  map[string]string `json:"totals"`
	Display string            `json:"display"`
}

func toTotalsResponse(t core.Totals, empty string) totalsResponse {
	out := totalsResponse{Totals: make(map[string]string, len(t)), Display: t.Format()}
	for c, v := range t {
		out.Totals[string(c)] = v.StringFixed(2)
	}
	if out.Display == "" {
		out.Display = empty
	}
	return out
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the store's error kinds onto status codes.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	msg := "internal error"

	switch {
	case errors.Is(err, core.ErrNotFound):
		status, msg = http.StatusNotFound, "expense not found"
	case errors.Is(err, core.ErrInvalidAmount):
		status, msg = http.StatusUnprocessableEntity, "invalid amount"
	case errors.Is(err, core.ErrEmptyDescription),
		errors.Is(err, core.ErrEmptyAmount),
		errors.Is(err, core.ErrEmptyCategory),
		errors.Is(err, core.ErrUnsupportedCurrency):
		status, msg = http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, errRequestShape):
		status, msg = http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, core.ErrStorageUnavailable),
		errors.Is(err, core.ErrStorageRead),
		errors.Is(err, core.ErrStorageWrite):
		msg = "storage error"
	}

	if status >= 500 {
		applog.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed", applog.FieldError, err)
	}
	writeJSON(w, status, errorResponse{Error: msg})
}

func decodeExpense(r *http.Request, defaultCurrency core.Currency) (core.ExpenseInput, error) {
	var req expenseRequest
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return core.ExpenseInput{}, fmt.Errorf("decode body: %w", err)
	}
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return core.ExpenseInput{}, fmt.Errorf("%w: %s fails %s=%s", errRequestShape, strings.ToLower(f.Field()), f.Tag(), f.Param())
		}
		return core.ExpenseInput{}, fmt.Errorf("%w: %w", errRequestShape, err)
	}

	in := core.ExpenseInput{
		Description: sanitizeInput(req.Description),
		Amount:      strings.TrimSpace(string(req.Amount)),
		Category:    sanitizeInput(req.Category),
		Currency:    core.Currency(strings.ToUpper(strings.TrimSpace(req.Currency))),
	}
	if in.Currency == "" {
		in.Currency = defaultCurrency
	}
	return in, nil
}

func parseID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid expense id %q", chi.URLParam(r, "id"))
	}
	return id, nil
}

// parseBound reads "YYYY-MM-DD HH:MM:SS" or "YYYY-MM-DD". A bare date is
// widened to the start or end of that day.
func parseBound(v string, loc *time.Location, endOfDay bool) (time.Time, error) {
	v = strings.TrimSpace(v)
	if t, err := core.ParseDate(v, loc); err == nil {
		return t, nil
	}
	t, err := time.ParseInLocation("2006-01-02", v, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q", v)
	}
	if endOfDay {
		return core.Day(t).End, nil
	}
	return t, nil
}

func confirmed(r *http.Request) bool {
	ok, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	return ok
}

// sanitizeInput removes control characters and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
