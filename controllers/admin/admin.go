package admin

import (
	"errors"

	"marketpay/helpers"
	"marketpay/middlewares"
	"marketpay/services/errs"
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

type ResolveRequest struct {
	Resolution  string `json:"resolution" validate:"required"`
	RefundBuyer bool   `json:"refund_buyer"`
}

type ReviewRequest struct {
	Note string `json:"note" validate:"max=255"`
}

// POST /admin/disputes/:id/investigate
func (h *Controller) InvestigateDispute(c *fiber.Ctx) error {
	id, ok := helpers.ParamID(c, "id")
	if !ok {
		return helpers.JSONError(c, "INVALID_DISPUTE_ID")
	}
	d, err := h.Svc.MarkInvestigating(c.UserContext(), middlewares.ActorFrom(c), id)
	if err != nil {
		return helpers.JSONFromError(c, err)
	}
	return helpers.JSONSuccess(c, "DISPUTE_INVESTIGATING", d)
}

// POST /admin/disputes/:id/resolve
func (h *Controller) ResolveDispute(c *fiber.Ctx) error {
	id, ok := helpers.ParamID(c, "id")
	if !ok {
		return helpers.JSONError(c, "INVALID_DISPUTE_ID")
	}
	var req ResolveRequest
	if err := c.BodyParser(&req); err != nil {
		return helpers.JSONError(c, "INVALID_JSON")
	}
	if err := h.V.Struct(req); err != nil {
		return helpers.JSONError(c, "RESOLUTION_REQUIRED")
	}

	actor := middlewares.ActorFrom(c)
	d, err := h.Svc.ResolveDispute(c.UserContext(), actor, id, req.Resolution, req.RefundBuyer)
	if err != nil {
		h.Log.Warn("resolve dispute failed", zap.Uint("dispute_id", id), zap.String("admin", actor.UserID), zap.Error(err))
		return helpers.JSONFromError(c, err)
	}
	return helpers.JSONSuccess(c, "DISPUTE_RESOLVED", d)
}

// POST /admin/disputes/:id/close
func (h *Controller) CloseDispute(c *fiber.Ctx) error {
	id, ok := helpers.ParamID(c, "id")
	if !ok {
		return helpers.JSONError(c, "INVALID_DISPUTE_ID")
	}
	d, err := h.Svc.CloseDispute(c.UserContext(), middlewares.ActorFrom(c), id)
	if err != nil {
		return helpers.JSONFromError(c, err)
	}
	return helpers.JSONSuccess(c, "DISPUTE_CLOSED", d)
}

func (h *Controller) review(c *fiber.Ctx, message string, do func(actor settlement.Actor, id uint, note string) (any, error)) error {
	id, ok := helpers.ParamID(c, "id")
	if !ok {
		return helpers.JSONError(c, "INVALID_WITHDRAWAL_ID")
	}
	var req ReviewRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return helpers.JSONError(c, "INVALID_JSON")
		}
	}
	if err := h.V.Struct(req); err != nil {
		return helpers.JSONError(c, "NOTE_TOO_LONG")
	}

	actor := middlewares.ActorFrom(c)
	out, err := do(actor, id, req.Note)
	if err != nil {
		h.Log.Warn("withdrawal review failed", zap.Uint("withdrawal_id", id), zap.String("admin", actor.UserID), zap.Error(err))
		return helpers.JSONFromError(c, err)
	}
	return helpers.JSONSuccess(c, message, out)
}

// POST /admin/withdrawals/:id/approve
func (h *Controller) ApproveWithdrawal(c *fiber.Ctx) error {
	return h.review(c, "WITHDRAWAL_APPROVED", func(a settlement.Actor, id uint, note string) (any, error) {
		return h.Svc.ApproveWithdrawal(c.UserContext(), a, id, note)
	})
}

// POST /admin/withdrawals/:id/reject
func (h *Controller) RejectWithdrawal(c *fiber.Ctx) error {
	return h.review(c, "WITHDRAWAL_REJECTED", func(a settlement.Actor, id uint, note string) (any, error) {
		return h.Svc.RejectWithdrawal(c.UserContext(), a, id, note)
	})
}

// POST /admin/withdrawals/:id/complete
func (h *Controller) CompleteWithdrawal(c *fiber.Ctx) error {
	return h.review(c, "WITHDRAWAL_COMPLETED", func(a settlement.Actor, id uint, note string) (any, error) {
		return h.Svc.CompleteWithdrawal(c.UserContext(), a, id, note)
	})
}

// GET /admin/wallets/:user/reconcile
func (h *Controller) Reconcile(c *fiber.Ctx) error {
	userID := c.Params("user")
	rec, err := h.Ledger.Reconcile(c.UserContext(), userID)
	if errors.Is(err, errs.ErrLedgerDiverged) {
		return helpers.JSONStatus(c, fiber.StatusConflict, "LEDGER_DIVERGED", rec)
	}
	if err != nil {
		return helpers.JSONFromError(c, err)
	}
	return helpers.JSONSuccess(c, "LEDGER_RECONCILED", rec)
}
