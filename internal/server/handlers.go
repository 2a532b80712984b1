package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"bilancio/internal/auth"
	"bilancio/internal/core"
	"bilancio/internal/ledger"
)

type HealthResponse struct {
	Status string `json:"status"`
}

// Health reports liveness.
func Health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

type BudgetHandler struct {
	svc *ledger.Service
}

func NewBudgetHandler(svc *ledger.Service) *BudgetHandler {
	return &BudgetHandler{svc: svc}
}

type InitializeRequest struct {
	// IncomeCents is the income in cents; Income is the same value as a
	// decimal string ("1234.56"). Exactly one should be set.
	IncomeCents int64  `json:"income_cents"`
	Income      string `json:"income"`
}

type AddSubDivisionRequest struct {
	Category    string `json:"category" validate:"required"`
	Name        string `json:"name" validate:"required"`
	AmountCents int64  `json:"amount_cents"`
	Amount      string `json:"amount"`
}

type SpendSubDivisionRequest struct {
	Category    string `json:"category" validate:"required"`
	Name        string `json:"name" validate:"required"`
	AmountCents int64  `json:"amount_cents"`
	Amount      string `json:"amount"`
}

type SpendCategoryRequest struct {
	Category    string `json:"category" validate:"required"`
	AmountCents int64  `json:"amount_cents"`
	Amount      string `json:"amount"`
}

type SpendGeneralRequest struct {
	AmountCents int64  `json:"amount_cents"`
	Amount      string `json:"amount"`
}

type StrictModeRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

type SummaryResponse struct {
	TotalIncomeCents       int64  `json:"total_income_cents"`
	TotalIncome            string `json:"total_income"`
	DailyLimitCents        int64  `json:"daily_limit_cents"`
	DailyLimit             string `json:"daily_limit"`
	NeedsAllocationCents   int64  `json:"needs_allocation_cents"`
	WantsAllocationCents   int64  `json:"wants_allocation_cents"`
	SavingsAllocationCents int64  `json:"savings_allocation_cents"`
}

type SubDivisionResponse struct {
	Name              string `json:"name"`
	AllocationCents   int64  `json:"allocation_cents"`
	SpentCents        int64  `json:"spent_cents"`
	RemainingCents    int64  `json:"remaining_cents"`
	PercentOfCategory int64  `json:"percent_of_category"`
}

type TransactionResponse struct {
	ID          string    `json:"id"`
	Category    string    `json:"category"`
	SubDivision string    `json:"sub_division,omitempty"`
	AmountCents int64     `json:"amount_cents"`
	Amount      string    `json:"amount"`
	Timestamp   time.Time `json:"timestamp"`
}

// Initialize creates (or, policy permitting, resets) the caller's budget.
func (h *BudgetHandler) Initialize(c echo.Context) error {
	identity, ok := auth.IdentityFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var req InitializeRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid payload")
	}

	income, err := resolveAmount(req.IncomeCents, req.Income)
	if err != nil {
		return badRequest(c, "invalid income")
	}

	summary, err := h.svc.InitializeBudget(c.Request().Context(), identity, income)
	if err != nil {
		return mapLedgerError(c, err)
	}

	return c.JSON(http.StatusCreated, toSummaryResponse(summary))
}

// Summary returns the caller's allocation overview.
func (h *BudgetHandler) Summary(c echo.Context) error {
	identity, ok := auth.IdentityFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	summary, err := h.svc.BudgetSummary(c.Request().Context(), identity)
	if err != nil {
		return mapLedgerError(c, err)
	}

	return c.JSON(http.StatusOK, toSummaryResponse(summary))
}

// AddSubDivision creates a named bucket inside a category.
func (h *BudgetHandler) AddSubDivision(c echo.Context) error {
	identity, ok := auth.IdentityFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var req AddSubDivisionRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(c, "validation failed")
	}

	amount, err := resolveAmount(req.AmountCents, req.Amount)
	if err != nil {
		return badRequest(c, "invalid amount")
	}

	sd, err := h.svc.AddSubDivision(c.Request().Context(), identity, req.Category, req.Name, amount)
	if err != nil {
		return mapLedgerError(c, err)
	}

	return c.JSON(http.StatusCreated, toSubDivisionResponse(sd))
}

// ListSubDivisions lists a category's sub-divisions in insertion order.
func (h *BudgetHandler) ListSubDivisions(c echo.Context) error {
	identity, ok := auth.IdentityFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	category := c.QueryParam("category")
	if category == "" {
		return badRequest(c, "category query parameter is required")
	}

	subs, err := h.svc.SubDivisions(c.Request().Context(), identity, category)
	if err != nil {
		return mapLedgerError(c, err)
	}

	response := make([]SubDivisionResponse, 0, len(subs))
	for _, sd := range subs {
		response = append(response, toSubDivisionResponse(sd))
	}

	return c.JSON(http.StatusOK, map[string][]SubDivisionResponse{"sub_divisions": response})
}

// SpendFromSubDivision records a spend against a named bucket.
func (h *BudgetHandler) SpendFromSubDivision(c echo.Context) error {
	identity, ok := auth.IdentityFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var req SpendSubDivisionRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(c, "validation failed")
	}

	amount, err := resolveAmount(req.AmountCents, req.Amount)
	if err != nil {
		return badRequest(c, "invalid amount")
	}

	tx, err := h.svc.SpendFromSubDivision(c.Request().Context(), identity, req.Category, req.Name, amount)
	if err != nil {
		return mapLedgerError(c, err)
	}

	return c.JSON(http.StatusCreated, toTransactionResponse(tx))
}

// SpendFromCategory records a spend against a category's unallocated pool.
func (h *BudgetHandler) SpendFromCategory(c echo.Context) error {
	identity, ok := auth.IdentityFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var req SpendCategoryRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(c, "validation failed")
	}

	amount, err := resolveAmount(req.AmountCents, req.Amount)
	if err != nil {
		return badRequest(c, "invalid amount")
	}

	tx, err := h.svc.SpendFromCategory(c.Request().Context(), identity, req.Category, amount)
	if err != nil {
		return mapLedgerError(c, err)
	}

	return c.JSON(http.StatusCreated, toTransactionResponse(tx))
}

// SpendFromGeneral records a spend apportioned across all categories.
func (h *BudgetHandler) SpendFromGeneral(c echo.Context) error {
	identity, ok := auth.IdentityFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var req SpendGeneralRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid payload")
	}

	amount, err := resolveAmount(req.AmountCents, req.Amount)
	if err != nil {
		return badRequest(c, "invalid amount")
	}

	tx, err := h.svc.SpendFromGeneral(c.Request().Context(), identity, amount)
	if err != nil {
		return mapLedgerError(c, err)
	}

	return c.JSON(http.StatusCreated, toTransactionResponse(tx))
}

// SetStrictMode flips daily-limit enforcement.
func (h *BudgetHandler) SetStrictMode(c echo.Context) error {
	identity, ok := auth.IdentityFromContext(c)
	if !ok {
		return unauthorized(c)
	}

	var req StrictModeRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return badRequest(c, "validation failed")
	}

	if err := h.svc.ToggleStrictMode(c.Request().Context(), identity, *req.Enabled); err != nil {
		return mapLedgerError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]bool{"enabled": *req.Enabled})
}

// resolveAmount picks the decimal string when present, the cents field
// otherwise.
func resolveAmount(cents int64, decimal string) (int64, error) {
	if decimal != "" {
		return core.ParseDecimalToCents(decimal)
	}
	return cents, nil
}

func toSummaryResponse(s core.Summary) SummaryResponse {
	return SummaryResponse{
		TotalIncomeCents:       s.TotalIncome,
		TotalIncome:            core.FormatCents(s.TotalIncome),
		DailyLimitCents:        s.DailyLimit,
		DailyLimit:             core.FormatCents(s.DailyLimit),
		NeedsAllocationCents:   s.NeedsAllocation,
		WantsAllocationCents:   s.WantsAllocation,
		SavingsAllocationCents: s.SavingsAllocation,
	}
}

func toSubDivisionResponse(sd core.SubDivision) SubDivisionResponse {
	return SubDivisionResponse{
		Name:              sd.Name,
		AllocationCents:   sd.Allocation,
		SpentCents:        sd.Spent,
		RemainingCents:    sd.Allocation - sd.Spent,
		PercentOfCategory: sd.PercentOfCategory,
	}
}

func toTransactionResponse(tx ledger.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:          tx.ID.String(),
		Category:    tx.Category,
		SubDivision: tx.SubDivision,
		AmountCents: tx.AmountCents,
		Amount:      core.FormatCents(tx.AmountCents),
		Timestamp:   tx.Timestamp,
	}
}

func mapLedgerError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, core.ErrBudgetNotFound):
		return notFound(c, "budget not found")
	case errors.Is(err, core.ErrSubDivisionNotFound):
		return notFound(c, "sub-division not found")
	case errors.Is(err, core.ErrInsufficientFunds),
		errors.Is(err, core.ErrDailyLimitExceeded):
		return unprocessable(c, err.Error())
	case errors.Is(err, core.ErrBudgetExists):
		return conflict(c, err.Error())
	case errors.Is(err, core.ErrInvalidAmount),
		errors.Is(err, core.ErrInvalidCategory),
		errors.Is(err, core.ErrZeroAllocation),
		errors.Is(err, core.ErrExceedsCategoryBudget),
		errors.Is(err, core.ErrEmptyName),
		errors.Is(err, core.ErrDuplicateName):
		return badRequest(c, err.Error())
	default:
		return serverError(c)
	}
}

func badRequest(c echo.Context, message string) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"error": message})
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing identity"})
}

func notFound(c echo.Context, message string) error {
	return c.JSON(http.StatusNotFound, map[string]string{"error": message})
}

func conflict(c echo.Context, message string) error {
	return c.JSON(http.StatusConflict, map[string]string{"error": message})
}

func unprocessable(c echo.Context, message string) error {
	return c.JSON(http.StatusUnprocessableEntity, map[string]string{"error": message})
}

func serverError(c echo.Context) error {
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal server error"})
}
