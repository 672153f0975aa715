package settlement

import (
	"context"
	"errors"
	"sync"
	"testing"

	"marketpay/models"
	"marketpay/services/errs"
	"marketpay/services/notify"
	"marketpay/services/qrpay"

	"github.com/stretchr/testify/require"
)

func TestWalletCheckoutToDelivery(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cat := f.category(t, "5")
	p := f.product(t, "seller", cat.ID, 3000, 4)
	f.fund(t, "buyer", 10000)
	require.NoError(t, f.db.Create(&models.CartItem{BuyerID: "buyer", ProductID: p.ID, Quantity: 1}).Error)

	res, err := f.svc.PlaceOrder(ctx, CheckoutInput{
		BuyerID:  "buyer",
		Lines:    []CheckoutLine{{ProductID: p.ID, Quantity: 1}},
		Shipping: shipping(),
		Method:   models.PayByWallet,
	})
	require.NoError(t, err)
	require.Nil(t, res.Payment)

	order := res.Order
	require.Equal(t, models.OrderPaid, order.Status)
	require.Equal(t, int64(3000), order.TotalAmount)
	require.Equal(t, int64(150), order.CommissionAmount)
	require.Equal(t, int64(2850), order.SellerAmount)
	require.Equal(t, "5", order.CommissionRate.String())
	require.NotNil(t, order.PaidAt)
	require.Regexp(t, `^ORD\d{6}-[0-9A-F]{8}$`, order.OrderNumber)

	require.Equal(t, int64(7000), f.balance(t, "buyer"))
	require.Equal(t, int64(3), f.stock(t, p.ID))

	var cart int64
	require.NoError(t, f.db.Model(&models.CartItem{}).Where("buyer_id = ?", "buyer").Count(&cart).Error)
	require.Zero(t, cart)

	_, err = f.svc.MarkProcessing(ctx, Actor{UserID: "seller"}, order.ID)
	require.NoError(t, err)
	shipped, err := f.svc.MarkShipped(ctx, Actor{UserID: "seller"}, order.ID, ShipInput{Carrier: "Kerry", TrackingNumber: "KE123"})
	require.NoError(t, err)
	require.Equal(t, "kerry", shipped.Carrier)
	require.Equal(t, "KE123", shipped.TrackingNumber)

	_, err = f.svc.ConfirmDelivery(ctx, Actor{UserID: "seller"}, order.ID)
	require.ErrorIs(t, err, errs.ErrNotOwner)

	delivered, err := f.svc.ConfirmDelivery(ctx, Actor{UserID: "buyer"}, order.ID)
	require.NoError(t, err)
	require.Equal(t, models.OrderDelivered, delivered.Status)
	require.NotNil(t, delivered.ConfirmedAt)

	require.Equal(t, int64(2850), f.balance(t, "seller"))
	require.Equal(t, int64(150), f.balance(t, "platform"))
	require.Equal(t, int64(7000), f.balance(t, "buyer"))

	_, err = f.svc.ConfirmDelivery(ctx, Actor{UserID: "buyer"}, order.ID)
	require.ErrorIs(t, err, errs.ErrInvalidTransition)
	require.Equal(t, int64(2850), f.balance(t, "seller"))

	f.reconciled(t, "buyer", "seller", "platform")
	require.Equal(t, []string{notify.EventOrderPaid, notify.EventOrderShipped, notify.EventOrderDelivered}, eventTypes(f.events.Drain()))
}

func TestWalletCheckoutInsufficientBalanceChangesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "seller", 0, 3000, 2)
	f.fund(t, "buyer", 2999)

	_, err := f.svc.PlaceOrder(ctx, CheckoutInput{
		BuyerID:  "buyer",
		Lines:    []CheckoutLine{{ProductID: p.ID, Quantity: 1}},
		Shipping: shipping(),
	})
	require.ErrorIs(t, err, errs.ErrInsufficientBalance)

	var orders, entries int64
	require.NoError(t, f.db.Model(&models.Order{}).Count(&orders).Error)
	require.NoError(t, f.db.Model(&models.Transaction{}).Where("user_id = ?", "buyer").Count(&entries).Error)
	require.Zero(t, orders)
	require.Equal(t, int64(1), entries)
	require.Equal(t, int64(2), f.stock(t, p.ID))
	require.Equal(t, int64(2999), f.balance(t, "buyer"))
}

func TestCheckoutValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.product(t, "seller-a", 0, 100, 1)
	b := f.product(t, "seller-b", 0, 200, 1)
	f.fund(t, "buyer", 10000)

	cases := []struct {
		name string
		in   CheckoutInput
		want error
	}{
		{"no lines", CheckoutInput{BuyerID: "buyer"}, errs.ErrInvalidInput},
		{"zero quantity", CheckoutInput{BuyerID: "buyer", Lines: []CheckoutLine{{ProductID: a.ID}}}, errs.ErrInvalidInput},
		{"unknown product", CheckoutInput{BuyerID: "buyer", Lines: []CheckoutLine{{ProductID: 9999, Quantity: 1}}}, errs.ErrNotFound},
		{"two sellers", CheckoutInput{BuyerID: "buyer", Lines: []CheckoutLine{{ProductID: a.ID, Quantity: 1}, {ProductID: b.ID, Quantity: 1}}}, errs.ErrInvalidInput},
		{"own product", CheckoutInput{BuyerID: "seller-a", Lines: []CheckoutLine{{ProductID: a.ID, Quantity: 1}}}, errs.ErrInvalidInput},
		{"merged lines exceed stock", CheckoutInput{BuyerID: "buyer", Lines: []CheckoutLine{{ProductID: a.ID, Quantity: 1}, {ProductID: a.ID, Quantity: 1}}}, errs.ErrInsufficientStock},
		{"bad method", CheckoutInput{BuyerID: "buyer", Method: "cash", Lines: []CheckoutLine{{ProductID: a.ID, Quantity: 1}}}, errs.ErrInvalidInput},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := f.svc.PlaceOrder(ctx, c.in)
			require.ErrorIs(t, err, c.want)
		})
	}
	require.Equal(t, int64(10000), f.balance(t, "buyer"))
}

func TestCheckoutPerLineCommission(t *testing.T) {
	f := newFixture(t)
	electronics := f.category(t, "7.5")
	books := f.category(t, "3")
	phone := f.product(t, "seller", electronics.ID, 1000, 5)
	novel := f.product(t, "seller", books.ID, 333, 5)
	f.fund(t, "buyer", 10000)

	res, err := f.svc.PlaceOrder(context.Background(), CheckoutInput{
		BuyerID:  "buyer",
		Lines:    []CheckoutLine{{ProductID: phone.ID, Quantity: 1}, {ProductID: novel.ID, Quantity: 2}},
		Shipping: shipping(),
	})
	require.NoError(t, err)

	// 1000 * 7.5% = 75, 666 * 3% = 19.98 -> 20
	order := res.Order
	require.Equal(t, int64(1666), order.TotalAmount)
	require.Equal(t, int64(95), order.CommissionAmount)
	require.Equal(t, order.TotalAmount, order.CommissionAmount+order.SellerAmount)
	require.Len(t, order.Items, 2)
}

func TestCheckoutCartOneOrderPerSeller(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a1 := f.product(t, "seller-a", 0, 100, 5)
	a2 := f.product(t, "seller-a", 0, 250, 5)
	b := f.product(t, "seller-b", 0, 400, 5)
	f.fund(t, "buyer", 5000)

	for _, line := range []models.CartItem{
		{BuyerID: "buyer", ProductID: a1.ID, Quantity: 2},
		{BuyerID: "buyer", ProductID: b.ID, Quantity: 1},
		{BuyerID: "buyer", ProductID: a2.ID, Quantity: 1},
	} {
		require.NoError(t, f.db.Create(&line).Error)
	}

	results, err := f.svc.CheckoutCart(ctx, "buyer", shipping(), models.PayByWallet)
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.Equal(t, "seller-a", results[0].Order.SellerID)
	require.Equal(t, int64(450), results[0].Order.TotalAmount)
	require.Equal(t, "seller-b", results[1].Order.SellerID)
	require.Equal(t, int64(400), results[1].Order.TotalAmount)
	require.Equal(t, int64(4150), f.balance(t, "buyer"))

	_, err = f.svc.CheckoutCart(ctx, "buyer", shipping(), models.PayByWallet)
	require.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestConcurrentCheckoutsNeverOverdraw(t *testing.T) {
	f := newFixture(t)
	p := f.product(t, "seller", 0, 3000, 100)
	f.fund(t, "buyer", 10000)

	const attempts = 6
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, poor int
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.PlaceOrder(context.Background(), CheckoutInput{
				BuyerID:  "buyer",
				Lines:    []CheckoutLine{{ProductID: p.ID, Quantity: 1}},
				Shipping: shipping(),
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, errs.ErrInsufficientBalance):
				poor++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, 3, ok)
	require.Equal(t, attempts-3, poor)
	require.Equal(t, int64(1000), f.balance(t, "buyer"))
	require.Equal(t, int64(97), f.stock(t, p.ID))
	f.reconciled(t, "buyer")
}

func TestQRCheckoutIsFundedOnVerify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "seller", 0, 1200, 3)

	res, err := f.svc.PlaceOrder(ctx, CheckoutInput{
		BuyerID:  "buyer",
		Lines:    []CheckoutLine{{ProductID: p.ID, Quantity: 1}},
		Shipping: shipping(),
		Method:   models.PayByQR,
	})
	require.NoError(t, err)
	require.Equal(t, models.OrderPendingPayment, res.Order.Status)
	require.NotNil(t, res.Payment)
	require.Equal(t, int64(3), f.stock(t, p.ID))

	pay := res.Payment
	require.Equal(t, res.Order.ID, *pay.OrderID)
	require.Equal(t, int64(1200), pay.Amount)
	require.NoError(t, qrpay.Validate(pay.QRPayload))
	require.Contains(t, pay.QRPayload, pay.RefNumber)
	require.Contains(t, pay.QRPayload, "54"+"07"+pay.PayableAmount.StringFixed(2))
	require.Contains(t, pay.ImageURL, "data=")
	require.Equal(t, "12", pay.PayableAmount.Floor().String())

	verified, err := f.svc.VerifyPayment(ctx, pay.RefNumber, pay.PayableAmount)
	require.NoError(t, err)
	require.Equal(t, models.TxCompleted, verified.Transaction.Status)
	require.NotNil(t, verified.Order)
	require.Equal(t, models.OrderPaid, verified.Order.Status)

	require.Zero(t, f.balance(t, "buyer"))
	require.Equal(t, int64(2), f.stock(t, p.ID))
	f.reconciled(t, "buyer")

	_, err = f.svc.VerifyPayment(ctx, pay.RefNumber, pay.PayableAmount)
	require.ErrorIs(t, err, errs.ErrAlreadyVerified)
	require.Zero(t, f.balance(t, "buyer"))
}

func TestQRCheckoutRoundsSatangPriceUpToWholeBaht(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "seller", 0, 9950, 1)

	res, err := f.svc.PlaceOrder(ctx, CheckoutInput{
		BuyerID:  "buyer",
		Lines:    []CheckoutLine{{ProductID: p.ID, Quantity: 1}},
		Shipping: shipping(),
		Method:   models.PayByQR,
	})
	require.NoError(t, err)
	require.Equal(t, int64(9950), res.Order.TotalAmount)
	require.Equal(t, int64(10000), res.Payment.Amount)
	require.Equal(t, "100", res.Payment.PayableAmount.Floor().String())

	verified, err := f.svc.VerifyPayment(ctx, res.Payment.RefNumber, res.Payment.PayableAmount)
	require.NoError(t, err)
	require.Equal(t, models.OrderPaid, verified.Order.Status)
	require.Equal(t, int64(50), f.balance(t, "buyer"))
	f.reconciled(t, "buyer")
}

func TestQROrderThatCannotBeFilledIsCancelledAndCreditKept(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.product(t, "seller", 0, 500, 1)

	res, err := f.svc.PlaceOrder(ctx, CheckoutInput{
		BuyerID:  "qr-buyer",
		Lines:    []CheckoutLine{{ProductID: p.ID, Quantity: 1}},
		Shipping: shipping(),
		Method:   models.PayByQR,
	})
	require.NoError(t, err)

	f.fund(t, "fast-buyer", 500)
	f.walletOrder(t, "fast-buyer", p, 1)
	require.Zero(t, f.stock(t, p.ID))

	verified, err := f.svc.VerifyPayment(ctx, res.Payment.RefNumber, res.Payment.PayableAmount)
	require.NoError(t, err)
	require.Equal(t, models.OrderCancelled, verified.Order.Status)
	require.Equal(t, int64(500), f.balance(t, "qr-buyer"))
	require.Zero(t, f.stock(t, p.ID))

	var purchases int64
	require.NoError(t, f.db.Model(&models.Transaction{}).
		Where("user_id = ? AND kind = ?", "qr-buyer", models.KindPurchase).
		Count(&purchases).Error)
	require.Zero(t, purchases)
	f.reconciled(t, "qr-buyer", "fast-buyer")
}
