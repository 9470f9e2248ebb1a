package api

import (
	"strconv"

	"github.com/promokit/billing-engine/internal/models"
	"github.com/promokit/billing-engine/internal/services/credits"
	"github.com/promokit/billing-engine/internal/services/ledger"
	"github.com/gofiber/fiber/v2"
)

type CreditsHandler struct {
	creditsService *credits.Service
	store          *ledger.Store
	cfg            *models.BillingConfig
}

func NewCreditsHandler(creditsService *credits.Service, store *ledger.Store, cfg *models.BillingConfig) *CreditsHandler {
	return &CreditsHandler{
		creditsService: creditsService,
		store:          store,
		cfg:            cfg,
	}
}

// GetBalanceResponse represents the response for balance queries
type GetBalanceResponse struct {
	AccountID      string `json:"account_id"`
	PaidBalance    int64  `json:"paid_balance"`
	FreeBalance    int64  `json:"free_balance"`
	TotalPurchased int64  `json:"total_purchased"`
	TotalSpent     int64  `json:"total_spent"`
}

// GetBalance retrieves the current balances for an account, provisioning it
// (with the signup bonus) on first sight.
func (h *CreditsHandler) GetBalance(c *fiber.Ctx) error {
	accountID := c.Params("account_id")
	if accountID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "account_id is required",
		})
	}

	account, err := h.store.EnsureAccount(c.Context(), accountID, h.cfg.Bonus())
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(GetBalanceResponse{
		AccountID:      account.AccountID,
		PaidBalance:    account.PaidBalance,
		FreeBalance:    account.FreeBalance,
		TotalPurchased: account.TotalPurchased,
		TotalSpent:     account.TotalSpent,
	})
}

// CheckCreditsRequest represents the request body for affordability checks
type CheckCreditsRequest struct {
	Amount int64             `json:"amount"`
	Pool   models.CreditPool `json:"pool,omitempty"`
}

// CheckCreditsResponse represents the response for affordability checks
type CheckCreditsResponse struct {
	Affordable     bool  `json:"affordable"`
	CurrentBalance int64 `json:"current_balance"`
	RequiredAmount int64 `json:"required_amount"`
	Shortfall      int64 `json:"shortfall,omitempty"`
}

// CheckCredits checks whether an account can afford an amount
func (h *CreditsHandler) CheckCredits(c *fiber.Ctx) error {
	accountID := c.Params("account_id")

	var req CheckCreditsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if req.Amount < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "amount must not be negative",
		})
	}

	pool := req.Pool
	if pool == "" {
		pool = models.PoolPaid
	}

	balance, err := h.store.GetBalance(c.Context(), accountID, pool)
	if err != nil {
		return errorJSON(c, err)
	}

	response := CheckCreditsResponse{
		Affordable:     balance >= req.Amount,
		CurrentBalance: balance,
		RequiredAmount: req.Amount,
	}
	if !response.Affordable {
		response.Shortfall = req.Amount - balance
	}

	return c.JSON(response)
}

// MutateCreditsRequest represents the request body for charges and credits
type MutateCreditsRequest struct {
	Amount      int64  `json:"amount"`
	Purpose     string `json:"purpose,omitempty"`
	Description string `json:"description,omitempty"`
}

// Charge deducts from the paid pool
func (h *CreditsHandler) Charge(c *fiber.Ctx) error {
	accountID := c.Params("account_id")

	var req MutateCreditsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	entry, err := h.creditsService.Charge(c.Context(), accountID, req.Amount, req.Description)
	if err != nil {
		return errorJSON(c, err)
	}
	if entry == nil {
		// Zero or negative amounts are no-ops with no ledger entry.
		return c.JSON(fiber.Map{"charged": false})
	}

	return c.JSON(entry)
}

// Credit adds to the paid pool
func (h *CreditsHandler) Credit(c *fiber.Ctx) error {
	accountID := c.Params("account_id")

	var req MutateCreditsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	entry, err := h.creditsService.Add(c.Context(), accountID, req.Amount, req.Description)
	if err != nil {
		return errorJSON(c, err)
	}
	if entry == nil {
		return c.JSON(fiber.Map{"credited": false})
	}

	return c.JSON(entry)
}

// CreditFree adds to the free pool, locked to a purpose
func (h *CreditsHandler) CreditFree(c *fiber.Ctx) error {
	accountID := c.Params("account_id")

	var req MutateCreditsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	if req.Purpose == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "purpose is required for free credits",
		})
	}

	entry, err := h.creditsService.AddFree(c.Context(), accountID, req.Amount, req.Purpose, req.Description)
	if err != nil {
		return errorJSON(c, err)
	}
	if entry == nil {
		return c.JSON(fiber.Map{"credited": false})
	}

	return c.JSON(entry)
}

// ChargeDualPool deducts free credits first, then the paid pool
func (h *CreditsHandler) ChargeDualPool(c *fiber.Ctx) error {
	accountID := c.Params("account_id")

	var req MutateCreditsRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	entries, err := h.creditsService.DeductDualPool(c.Context(), accountID, req.Amount, req.Purpose, req.Description)
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(fiber.Map{
		"entries": entries,
	})
}

// GetTransactionHistoryResponse represents the transaction history page
type GetTransactionHistoryResponse struct {
	Transactions []models.LedgerEntry `json:"transactions"`
	Total        int                  `json:"total"`
	Limit        int                  `json:"limit"`
	Offset       int                  `json:"offset"`
}

// GetTransactionHistory retrieves ledger entries for an account
func (h *CreditsHandler) GetTransactionHistory(c *fiber.Ctx) error {
	accountID := c.Params("account_id")
	if accountID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "account_id is required",
		})
	}

	limit := 20
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	offset := 0
	if offsetStr := c.Query("offset"); offsetStr != "" {
		if o, err := strconv.Atoi(offsetStr); err == nil && o >= 0 {
			offset = o
		}
	}

	transactions, err := h.store.GetTransactionHistory(c.Context(), accountID, limit, offset)
	if err != nil {
		return errorJSON(c, err)
	}

	return c.JSON(GetTransactionHistoryResponse{
		Transactions: transactions,
		Total:        len(transactions),
		Limit:        limit,
		Offset:       offset,
	})
}
