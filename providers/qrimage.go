package providers

import "net/url"

// QRRenderer turns a payload into something a client can display.
type QRRenderer interface {
	ImageURL(payload string) string
}

// URLRenderer points at an external QR image service that takes the payload as a query
// parameter, e.g. https://api.qrserver.com/v1/create-qr-code/?size=300x300&data=...
type URLRenderer struct {
	BaseURL string
}

func (r URLRenderer) ImageURL(payload string) string {
	if r.BaseURL == "" {
		return ""
	}
	u, err := url.Parse(r.BaseURL)
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set("data", payload)
	u.RawQuery = q.Encode()
	return u.String()
}
