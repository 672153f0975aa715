package providers

import (
	"context"
	"strings"
	"sync"
)

type LabelRequest struct {
	OrderNumber   string `json:"order_number"`
	SellerID      string `json:"seller_id"`
	RecipientName string `json:"recipient_name"`
	Phone         string `json:"phone"`
	AddressLine   string `json:"address_line"`
	Province      string `json:"province"`
	PostalCode    string `json:"postal_code"`
	Items         int64  `json:"items"`
}

type Label struct {
	Carrier        string `json:"carrier"`
	TrackingNumber string `json:"tracking_number"`
	LabelURL       string `json:"label_url,omitempty"`
}

// Carrier quotes and books shipments with a delivery company. Quotes are satang and
// informational: shipping is settled between seller and carrier, outside the order total.
type Carrier interface {
	Quote(ctx context.Context, req LabelRequest) (int64, error)
	CreateLabel(ctx context.Context, req LabelRequest) (*Label, error)
}

var (
	carriersMu sync.RWMutex
	carriers   = map[string]Carrier{}
)

func RegisterCarrier(name string, c Carrier) {
	carriersMu.Lock()
	defer carriersMu.Unlock()
	carriers[strings.ToLower(name)] = c
}

func GetCarrier(name string) Carrier {
	carriersMu.RLock()
	defer carriersMu.RUnlock()
	return carriers[strings.ToLower(name)]
}
