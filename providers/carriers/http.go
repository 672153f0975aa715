package carriers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"marketpay/providers"

	"go.uber.org/zap"
)

// HTTPCarrier quotes and books labels through a carrier's JSON API.
type HTTPCarrier struct {
	Name   string
	ApiURL string
	ApiKey string
	Client *http.Client
	Logger *zap.Logger
}

func NewHTTPCarrier(name, apiURL, apiKey string, logger *zap.Logger) *HTTPCarrier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPCarrier{
		Name:   name,
		ApiURL: apiURL,
		ApiKey: apiKey,
		Client: &http.Client{Timeout: 15 * time.Second},
		Logger: logger,
	}
}

type quoteResponse struct {
	Fee int64 `json:"fee"`
}

// Quote asks the carrier for its fee in satang.
func (p *HTTPCarrier) Quote(ctx context.Context, req providers.LabelRequest) (int64, error) {
	var q quoteResponse
	if err := p.post(ctx, "/quotes", "quote", req, &q); err != nil {
		return 0, err
	}
	if q.Fee < 0 {
		return 0, fmt.Errorf("%s quoted negative fee %d", p.Name, q.Fee)
	}
	return q.Fee, nil
}

func (p *HTTPCarrier) CreateLabel(ctx context.Context, req providers.LabelRequest) (*providers.Label, error) {
	var label providers.Label
	if err := p.post(ctx, "/labels", "label", req, &label); err != nil {
		return nil, err
	}
	if label.TrackingNumber == "" {
		return nil, fmt.Errorf("%s returned no tracking number", p.Name)
	}
	label.Carrier = p.Name
	return &label, nil
}

func (p *HTTPCarrier) post(ctx context.Context, path, what string, req providers.LabelRequest, out any) error {
	start := time.Now()

	body, err := json.Marshal(req)
	if err != nil {
		return err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.ApiURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.ApiKey)

	resp, err := p.Client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%s %s request: %w", p.Name, what, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	p.Logger.Info("carrier "+what+" response",
		zap.String("carrier", p.Name),
		zap.String("order_number", req.OrderNumber),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)),
	)
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("%s %s request: status %d: %s", p.Name, what, resp.StatusCode, string(raw))
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s %s decode: %w", p.Name, what, err)
	}
	return nil
}
