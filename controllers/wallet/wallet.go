package wallet

import (
	"marketpay/helpers"
	"marketpay/middlewares"
	"marketpay/models"
	"marketpay/services/ledger"
	"marketpay/services/settlement"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Controller struct {
	Svc    *settlement.Service
	Ledger *ledger.Ledger
	V      *validator.Validate
	Log    *zap.Logger
}

// TopupRequest amounts are satang and must be whole baht.
type TopupRequest struct {
	Amount int64 `json:"amount" validate:"required,gt=0"`
}

type BankRequest struct {
	BankName      string `json:"bank_name" validate:"required,max=64"`
	AccountNumber string `json:"account_number" validate:"required,numeric,min=6,max=20"`
	AccountName   string `json:"account_name" validate:"required,max=128"`
}

type WithdrawRequest struct {
	Amount int64 `json:"amount" validate:"required,gt=0"`
}

// GET /wallet/balance
func (h *Controller) Balance(c *fiber.Ctx) error {
	actor := middlewares.ActorFrom(c)
	balance, err := h.Ledger.BalanceOf(c.UserContext(), actor.UserID)
	if err != nil {
		h.Log.Error("balance lookup failed", zap.String("user_id", actor.UserID), zap.Error(err))
		return helpers.JSONFromError(c, err)
	}
	return helpers.JSONSuccess(c, "BALANCE_RETRIEVED", fiber.Map{
		"user_id": actor.UserID,
		"balance": balance,
	})
}

// GET /wallet/transactions?limit=50
func (h *Controller) Transactions(c *fiber.Ctx) error {
	actor := middlewares.ActorFrom(c)
	entries, err := h.Ledger.Transactions(c.UserContext(), actor.UserID, c.QueryInt("limit", 50))
	if err != nil {
		h.Log.Error("transaction history failed", zap.String("user_id", actor.UserID), zap.Error(err))
		return helpers.JSONFromError(c, err)
	}
	return helpers.JSONSuccess(c, "TRANSACTIONS_RETRIEVED", entries)
}

// POST /wallet/topup
func (h *Controller) Topup(c *fiber.Ctx) error {
	var req TopupRequest
	if err := c.BodyParser(&req); err != nil {
		return helpers.JSONError(c, "INVALID_JSON")
	}
	if err := h.V.Struct(req); err != nil {
		return helpers.JSONError(c, "VALID_AMOUNT_REQUIRED")
	}

	actor := middlewares.ActorFrom(c)
	pay, err := h.Svc.CreateTopup(c.UserContext(), actor.UserID, req.Amount)
	if err != nil {
		h.Log.Error("create topup failed", zap.String("user_id", actor.UserID), zap.Error(err))
		return helpers.JSONFromError(c, err)
	}
	return helpers.JSONStatus(c, fiber.StatusCreated, "PAYMENT_REQUEST_CREATED", pay)
}

// POST /wallet/bank
func (h *Controller) LinkBank(c *fiber.Ctx) error {
	var req BankRequest
	if err := c.BodyParser(&req); err != nil {
		return helpers.JSONError(c, "INVALID_JSON")
	}
	if err := h.V.Struct(req); err != nil {
		return helpers.JSONError(c, "BANK_DETAILS_REQUIRED")
	}

	actor := middlewares.ActorFrom(c)
	acct, err := h.Svc.LinkBankAccount(c.UserContext(), actor.UserID, models.BankDetails{
		BankName:      req.BankName,
		AccountNumber: req.AccountNumber,
		AccountName:   req.AccountName,
	})
	if err != nil {
		return helpers.JSONFromError(c, err)
	}
	return helpers.JSONSuccess(c, "BANK_ACCOUNT_LINKED", acct)
}

// POST /wallet/withdraw
func (h *Controller) Withdraw(c *fiber.Ctx) error {
	var req WithdrawRequest
	if err := c.BodyParser(&req); err != nil {
		return helpers.JSONError(c, "INVALID_JSON")
	}
	if err := h.V.Struct(req); err != nil {
		return helpers.JSONError(c, "VALID_AMOUNT_REQUIRED")
	}

	actor := middlewares.ActorFrom(c)
	wr, err := h.Svc.RequestWithdrawal(c.UserContext(), actor.UserID, req.Amount)
	if err != nil {
		h.Log.Warn("withdrawal request refused", zap.String("user_id", actor.UserID), zap.Int64("amount", req.Amount), zap.Error(err))
		return helpers.JSONFromError(c, err)
	}
	return helpers.JSONStatus(c, fiber.StatusCreated, "WITHDRAWAL_REQUESTED", wr)
}
