package routes

import (
	"marketpay/controllers/admin"
	"marketpay/controllers/order"
	"marketpay/controllers/payment"
	"marketpay/controllers/wallet"
	"marketpay/middlewares"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Handlers struct {
	Wallet        *wallet.Controller
	Order         *order.Controller
	Payment       *payment.Controller
	Admin         *admin.Controller
	WebhookSecret string
}

func Setup(app *fiber.App, h Handlers) {
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	app.Post("/payments/verify", middlewares.WebhookSecret(h.WebhookSecret), h.Payment.Verify)

	walletroutes := app.Group("/wallet", middlewares.Identity)
	walletroutes.Get("/balance", h.Wallet.Balance)
	walletroutes.Get("/transactions", h.Wallet.Transactions)
	walletroutes.Post("/topup", h.Wallet.Topup)
	walletroutes.Post("/bank", h.Wallet.LinkBank)
	walletroutes.Post("/withdraw", h.Wallet.Withdraw)

	orderroutes := app.Group("/orders", middlewares.Identity)
	orderroutes.Post("/checkout", h.Order.Checkout)
	orderroutes.Get("/:id", h.Order.Get)
	orderroutes.Post("/:id/processing", h.Order.Processing)
	orderroutes.Get("/:id/shipping-quote", h.Order.Quote)
	orderroutes.Post("/:id/ship", h.Order.Ship)
	orderroutes.Post("/:id/confirm", h.Order.Confirm)
	orderroutes.Post("/:id/cancel", h.Order.Cancel)
	orderroutes.Post("/:id/dispute", h.Order.Dispute)

	adminroutes := app.Group("/admin", middlewares.Identity, middlewares.AdminOnly)
	adminroutes.Post("/disputes/:id/investigate", h.Admin.InvestigateDispute)
	adminroutes.Post("/disputes/:id/resolve", h.Admin.ResolveDispute)
	adminroutes.Post("/disputes/:id/close", h.Admin.CloseDispute)
	adminroutes.Post("/withdrawals/:id/approve", h.Admin.ApproveWithdrawal)
	adminroutes.Post("/withdrawals/:id/reject", h.Admin.RejectWithdrawal)
	adminroutes.Post("/withdrawals/:id/complete", h.Admin.CompleteWithdrawal)
	adminroutes.Get("/wallets/:user/reconcile", h.Admin.Reconcile)
}
