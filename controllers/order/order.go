package order

import (
	"marketpay/helpers"
	"marketpay/middlewares"
	"marketpay/models"
	"marketpay/services/settlement"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type Controller struct {
	Svc *settlement.Service
	V   *validator.Validate
	Log *zap.Logger
}

// CheckoutRequest buys the listed items, or the whole cart when Items is empty.
type CheckoutRequest struct {
	Items         []settlement.CheckoutLine `json:"items" validate:"omitempty,dive"`
	Shipping      models.ShippingAddress    `json:"shipping"`
	PaymentMethod models.PaymentMethod      `json:"payment_method" validate:"omitempty,oneof=wallet qr"`
}

type CancelRequest struct {
	Reason string `json:"reason" validate:"max=255"`
}

// POST /orders/checkout
func (h *Controller) Checkout(c *fiber.Ctx) error {
	var req CheckoutRequest
	if err := c.BodyParser(&req); err != nil {
		return helpers.JSONError(c, "INVALID_JSON")
	}
	if err := h.V.Struct(req); err != nil {
		return helpers.JSONError(c, "INVALID_CHECKOUT_REQUEST")
	}

	actor := middlewares.ActorFrom(c)
	ctx := c.UserContext()

	var (
		results []*settlement.CheckoutResult
		err     error
	)
	if len(req.Items) > 0 {
		var res *settlement.CheckoutResult
		res, err = h.Svc.PlaceOrder(ctx, settlement.CheckoutInput{
			BuyerID:  actor.UserID,
			Lines:    req.Items,
			Shipping: req.Shipping,
			Method:   req.PaymentMethod,
		})
		if res != nil {
			results = append(results, res)
		}
	} else {
		results, err = h.Svc.CheckoutCart(ctx, actor.UserID, req.Shipping, req.PaymentMethod)
	}
	if err != nil {
		h.Log.Warn("checkout failed", zap.String("buyer_id", actor.UserID), zap.Int("orders_placed", len(results)), zap.Error(err))
		status, code := helpers.ErrorStatus(err)
		return helpers.JSONStatus(c, status, code, results)
	}
	return helpers.JSONStatus(c, fiber.StatusCreated, "ORDER_PLACED", results)
}

// GET /orders/:id
func (h *Controller) Get(c *fiber.Ctx) error {
	id, ok := helpers.ParamID(c, "id")
	if !ok {
		return helpers.JSONError(c, "INVALID_ORDER_ID")
	}
	o, err := h.Svc.GetOrder(c.UserContext(), middlewares.ActorFrom(c), id)
	if err != nil {
		return helpers.JSONFromError(c, err)
	}
	return helpers.JSONSuccess(c, "ORDER_RETRIEVED", o)
}

// POST /orders/:id/processing
func (h *Controller) Processing(c *fiber.Ctx) error {
	id, ok := helpers.ParamID(c, "id")
	if !ok {
		return helpers.JSONError(c, "INVALID_ORDER_ID")
	}
	o, err := h.Svc.MarkProcessing(c.UserContext(), middlewares.ActorFrom(c), id)
	if err != nil {
		return helpers.JSONFromError(c, err)
	}
	return helpers.JSONSuccess(c, "ORDER_PROCESSING", o)
}

// POST /orders/:id/ship
func (h *Controller) Ship(c *fiber.Ctx) error {
	id, ok := helpers.ParamID(c, "id")
	if !ok {
		return helpers.JSONError(c, "INVALID_ORDER_ID")
	}
	var req settlement.ShipInput
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return helpers.JSONError(c, "INVALID_JSON")
		}
	}

	actor := middlewares.ActorFrom(c)
	o, err := h.Svc.MarkShipped(c.UserContext(), actor, id, req)
	if err != nil {
		h.Log.Warn("mark shipped failed", zap.Uint("order_id", id), zap.String("seller_id", actor.UserID), zap.Error(err))
		return helpers.JSONFromError(c, err)
	}
	return helpers.JSONSuccess(c, "ORDER_SHIPPED", o)
}

// GET /orders/:id/shipping-quote?carrier=...
func (h *Controller) Quote(c *fiber.Ctx) error {
	id, ok := helpers.ParamID(c, "id")
	if !ok {
		return helpers.JSONError(c, "INVALID_ORDER_ID")
	}
	q, err := h.Svc.QuoteShipping(c.UserContext(), middlewares.ActorFrom(c), id, c.Query("carrier"))
	if err != nil {
		return helpers.JSONFromError(c, err)
	}
	return helpers.JSONSuccess(c, "SHIPPING_QUOTED", q)
}

// POST /orders/:id/confirm
func (h *Controller) Confirm(c *fiber.Ctx) error {
	id, ok := helpers.ParamID(c, "id")
	if !ok {
		return helpers.JSONError(c, "INVALID_ORDER_ID")
	}
	o, err := h.Svc.ConfirmDelivery(c.UserContext(), middlewares.ActorFrom(c), id)
	if err != nil {
		return helpers.JSONFromError(c, err)
	}
	return helpers.JSONSuccess(c, "DELIVERY_CONFIRMED", o)
}

// POST /orders/:id/cancel
func (h *Controller) Cancel(c *fiber.Ctx) error {
	id, ok := helpers.ParamID(c, "id")
	if !ok {
		return helpers.JSONError(c, "INVALID_ORDER_ID")
	}
	var req CancelRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return helpers.JSONError(c, "INVALID_JSON")
		}
	}
	if err := h.V.Struct(req); err != nil {
		return helpers.JSONError(c, "REASON_TOO_LONG")
	}
	o, err := h.Svc.CancelOrder(c.UserContext(), middlewares.ActorFrom(c), id, req.Reason)
	if err != nil {
		return helpers.JSONFromError(c, err)
	}
	return helpers.JSONSuccess(c, "ORDER_CANCELLED", o)
}

// POST /orders/:id/dispute
func (h *Controller) Dispute(c *fiber.Ctx) error {
	id, ok := helpers.ParamID(c, "id")
	if !ok {
		return helpers.JSONError(c, "INVALID_ORDER_ID")
	}
	var req settlement.DisputeInput
	if err := c.BodyParser(&req); err != nil {
		return helpers.JSONError(c, "INVALID_JSON")
	}
	if err := h.V.Struct(req); err != nil {
		return helpers.JSONError(c, "REASON_REQUIRED")
	}
	d, err := h.Svc.OpenDispute(c.UserContext(), middlewares.ActorFrom(c), id, req)
	if err != nil {
		return helpers.JSONFromError(c, err)
	}
	return helpers.JSONStatus(c, fiber.StatusCreated, "DISPUTE_OPENED", d)
}
