package helpers

import (
	"errors"

	"marketpay/services/errs"

	"github.com/gofiber/fiber/v2"
)

func JSONSuccess(c *fiber.Ctx, message string, data any) error {
	return JSONStatus(c, fiber.StatusOK, message, data)
}

func JSONError(c *fiber.Ctx, message string) error {
	return JSONStatus(c, fiber.StatusBadRequest, message, nil)
}

func JSONStatus(c *fiber.Ctx, status int, message string, data any) error {
	return c.Status(status).JSON(fiber.Map{
		"success": status < fiber.StatusBadRequest,
		"message": message,
		"data":    data,
	})
}

var errorCodes = []struct {
	err    error
	status int
	code   string
}{
	{errs.ErrInvalidInput, fiber.StatusBadRequest, "INVALID_INPUT"},
	{errs.ErrInsufficientBalance, fiber.StatusPaymentRequired, "INSUFFICIENT_BALANCE"},
	{errs.ErrInsufficientStock, fiber.StatusConflict, "INSUFFICIENT_STOCK"},
	{errs.ErrInvalidTransition, fiber.StatusConflict, "INVALID_STATUS_TRANSITION"},
	{errs.ErrAmountMismatch, fiber.StatusUnprocessableEntity, "AMOUNT_MISMATCH"},
	{errs.ErrAlreadyVerified, fiber.StatusConflict, "ALREADY_VERIFIED"},
	{errs.ErrRequestExpired, fiber.StatusGone, "PAYMENT_EXPIRED"},
	{errs.ErrDisputeAlreadyOpen, fiber.StatusConflict, "DISPUTE_ALREADY_OPEN"},
	{errs.ErrNotOwner, fiber.StatusForbidden, "NOT_OWNER"},
	{errs.ErrForbidden, fiber.StatusForbidden, "FORBIDDEN"},
	{errs.ErrNotFound, fiber.StatusNotFound, "NOT_FOUND"},
	{errs.ErrNoBankAccount, fiber.StatusUnprocessableEntity, "NO_BANK_ACCOUNT"},
	{errs.ErrLedgerDiverged, fiber.StatusConflict, "LEDGER_DIVERGED"},
	{errs.ErrConflict, fiber.StatusConflict, "CONCURRENT_UPDATE"},
}

// ErrorStatus maps a service error to its HTTP status and message code.
func ErrorStatus(err error) (int, string) {
	for _, e := range errorCodes {
		if errors.Is(err, e.err) {
			return e.status, e.code
		}
	}
	return fiber.StatusInternalServerError, "INTERNAL_ERROR"
}

func JSONFromError(c *fiber.Ctx, err error) error {
	status, code := ErrorStatus(err)
	return JSONStatus(c, status, code, nil)
}
