package payment

import (
	"marketpay/helpers"
	"marketpay/services/settlement"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Controller struct {
	Svc *settlement.Service
	V   *validator.Validate
	Log *zap.Logger
}

// VerifyRequest is the bank's notification of an incoming transfer. Amount is the
// transferred value in baht and may be sent as a JSON number or string.
type VerifyRequest struct {
	RefNumber string          `json:"ref_number" validate:"required,max=64"`
	Amount    decimal.Decimal `json:"amount"`
}

// POST /payments/verify
func (h *Controller) Verify(c *fiber.Ctx) error {
	requestID := uuid.NewString()

	var req VerifyRequest
	if err := c.BodyParser(&req); err != nil {
		return helpers.JSONError(c, "INVALID_JSON")
	}
	if err := h.V.Struct(req); err != nil || !req.Amount.IsPositive() {
		return helpers.JSONError(c, "REF_NUMBER_AND_AMOUNT_REQUIRED")
	}

	res, err := h.Svc.VerifyPayment(c.UserContext(), req.RefNumber, req.Amount)
	if err != nil {
		log := h.Log.Warn
		if status, _ := helpers.ErrorStatus(err); status >= fiber.StatusInternalServerError {
			log = h.Log.Error
		}
		log("payment verification rejected",
			zap.String("request_id", requestID),
			zap.String("ref_number", req.RefNumber),
			zap.String("amount", req.Amount.String()),
			zap.Error(err),
		)
		return helpers.JSONFromError(c, err)
	}

	h.Log.Info("payment verified",
		zap.String("request_id", requestID),
		zap.String("ref_number", req.RefNumber),
		zap.Uint("transaction_id", res.Transaction.ID),
	)
	return helpers.JSONSuccess(c, "PAYMENT_VERIFIED", res)
}
