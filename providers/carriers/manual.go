package carriers

import (
	"context"
	"fmt"
	"strings"

	"marketpay/providers"

	"github.com/google/uuid"
)

// Manual issues in-house tracking numbers for sellers who ship on their own.
type Manual struct{}

// Quote is always zero: the seller arranges and pays for the delivery.
func (Manual) Quote(_ context.Context, req providers.LabelRequest) (int64, error) {
	if req.OrderNumber == "" {
		return 0, fmt.Errorf("order number required")
	}
	return 0, nil
}

func (Manual) CreateLabel(_ context.Context, req providers.LabelRequest) (*providers.Label, error) {
	if req.OrderNumber == "" {
		return nil, fmt.Errorf("order number required")
	}
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:10])
	return &providers.Label{Carrier: "manual", TrackingNumber: "MP" + suffix}, nil
}

func init() {
	providers.RegisterCarrier("manual", Manual{})
}
