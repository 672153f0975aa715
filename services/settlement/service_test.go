package settlement

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"marketpay/database/dbtest"
	"marketpay/models"
	"marketpay/providers"
	"marketpay/services/commission"
	"marketpay/services/errs"
	"marketpay/services/ledger"
	"marketpay/services/notify"
	"marketpay/services/refmatch"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type fixture struct {
	svc    *Service
	db     *gorm.DB
	ledger *ledger.Ledger
	events *notify.Recorder
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.New(t)
	l := ledger.New(db, zap.NewNop(), 0)
	events := notify.NewRecorder(256)
	svc := New(Deps{
		DB:       db,
		Ledger:   l,
		Rates:    commission.NewResolver(db, decimal.NewFromInt(5)),
		Matcher:  refmatch.NewMatcher(rand.NewSource(42)),
		Renderer: providers.URLRenderer{BaseURL: "https://qr.example.test/render?size=300"},
		Notifier: events,
	}, Settings{
		PlatformUserID: "platform",
		PromptPayPhone: "0812345678",
	})
	return &fixture{svc: svc, db: db, ledger: l, events: events}
}

func (f *fixture) category(t *testing.T, rate string) models.Category {
	t.Helper()
	c := models.Category{Name: "cat-" + rate + "-" + t.Name(), CommissionRate: decimal.RequireFromString(rate)}
	require.NoError(t, f.db.Create(&c).Error)
	return c
}

func (f *fixture) product(t *testing.T, seller string, categoryID uint, price, stock int64) models.Product {
	t.Helper()
	p := models.Product{SellerID: seller, CategoryID: categoryID, Name: fmt.Sprintf("item-%d", price), Price: price, Stock: stock, IsActive: true}
	require.NoError(t, f.db.Create(&p).Error)
	return p
}

func (f *fixture) fund(t *testing.T, user string, amount int64) {
	t.Helper()
	_, err := f.ledger.Post(context.Background(), ledger.Posting{UserID: user, Kind: models.KindTopup, Amount: amount})
	require.NoError(t, err)
}

func (f *fixture) balance(t *testing.T, user string) int64 {
	t.Helper()
	b, err := f.ledger.BalanceOf(context.Background(), user)
	require.NoError(t, err)
	return b
}

func (f *fixture) stock(t *testing.T, productID uint) int64 {
	t.Helper()
	var p models.Product
	require.NoError(t, f.db.First(&p, productID).Error)
	return p.Stock
}

func (f *fixture) reconciled(t *testing.T, users ...string) {
	t.Helper()
	for _, u := range users {
		rec, err := f.ledger.Reconcile(context.Background(), u)
		require.NoError(t, err, u)
		require.Equal(t, rec.Balance, rec.AppliedSum, u)
	}
}

func (f *fixture) walletOrder(t *testing.T, buyer string, p models.Product, qty int64) *models.Order {
	t.Helper()
	res, err := f.svc.PlaceOrder(context.Background(), CheckoutInput{
		BuyerID:  buyer,
		Lines:    []CheckoutLine{{ProductID: p.ID, Quantity: qty}},
		Shipping: shipping(),
	})
	require.NoError(t, err)
	return res.Order
}

func shipping() models.ShippingAddress {
	return models.ShippingAddress{
		RecipientName: "Somchai",
		Phone:         "0899999999",
		AddressLine:   "99 Sukhumvit Rd",
		Province:      "Bangkok",
		PostalCode:    "10110",
	}
}

func eventTypes(events []notify.Event) []string {
	out := make([]string, 0, len(events))
	for _, ev := range events {
		out = append(out, ev.Type)
	}
	return out
}

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from, to models.OrderStatus
		ok       bool
	}{
		{models.OrderPendingPayment, models.OrderPaid, true},
		{models.OrderPendingPayment, models.OrderShipped, false},
		{models.OrderPaid, models.OrderShipped, true},
		{models.OrderProcessing, models.OrderDisputed, true},
		{models.OrderShipped, models.OrderCancelled, false},
		{models.OrderDisputed, models.OrderRefunded, true},
		{models.OrderDelivered, models.OrderDisputed, false},
		{models.OrderRefunded, models.OrderDelivered, false},
		{models.OrderCancelled, models.OrderPaid, false},
	}
	for _, c := range cases {
		require.Equal(t, c.ok, CanTransition(c.from, c.to), "%s -> %s", c.from, c.to)
	}
}

func TestGetOrderVisibility(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "seller", 0, 100, 5)
	f.fund(t, "buyer", 100)
	order := f.walletOrder(t, "buyer", p, 1)

	ctx := context.Background()
	for _, a := range []Actor{{UserID: "buyer"}, {UserID: "seller"}, {UserID: "ops", Admin: true}} {
		got, err := f.svc.GetOrder(ctx, a, order.ID)
		require.NoError(t, err)
		require.Len(t, got.Items, 1)
	}
	_, err := f.svc.GetOrder(ctx, Actor{UserID: "stranger"}, order.ID)
	require.ErrorIs(t, err, errs.ErrNotOwner)
	_, err = f.svc.GetOrder(ctx, Actor{UserID: "buyer"}, 9999)
	require.ErrorIs(t, err, errs.ErrNotFound)
}
