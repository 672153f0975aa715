// Package qrpay builds the bank-transfer QR payload for the shared static receiving account.
//
// The payload is a flat tag-length-value string: every field is a 2-digit id, a 2-digit
// zero-padded length and the value. The last field is the CRC-16/CCITT-FALSE checksum of
// everything before it, including the checksum's own id and length ("6304").
package qrpay

import (
	"fmt"
	"strings"

	"marketpay/services/errs"

	"github.com/shopspring/decimal"
)

const (
	idVersion          = "00"
	idInitiationMethod = "01"
	idMerchantAccount  = "29"
	idCurrency         = "53"
	idAmount           = "54"
	idCountry          = "58"
	idAdditionalData   = "62"
	idChecksum         = "63"

	subIDApplication = "00"
	subIDPhone       = "01"
	subIDNationalID  = "02"
	subIDReference1  = "01"
	subIDReference2  = "02"

	payloadVersion  = "01"
	staticMethod    = "12"
	applicationID   = "A000000677010111"
	currencyTHB     = "764"
	countryTH       = "TH"
	phoneCountry    = "66"
	checksumHeader  = idChecksum + "04"
	maxFieldLength  = 99
	amountPrecision = 2
)

// Input is what the payload encodes. Exactly one of Phone or NationalID must be set;
// when both are given the phone number wins.
type Input struct {
	Phone      string
	NationalID string
	Amount     decimal.NullDecimal
	Reference1 string
	Reference2 string
}

// Build returns the checksummed payload. Identical inputs always yield identical output.
func Build(in Input) (string, error) {
	account, err := merchantAccount(in)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fields := [][2]string{
		{idVersion, payloadVersion},
		{idInitiationMethod, staticMethod},
		{idMerchantAccount, account},
		{idCurrency, currencyTHB},
	}
	if in.Amount.Valid {
		if !in.Amount.Decimal.IsPositive() {
			return "", fmt.Errorf("%w: amount must be positive, got %s", errs.ErrInvalidInput, in.Amount.Decimal)
		}
		fields = append(fields, [2]string{idAmount, in.Amount.Decimal.StringFixed(amountPrecision)})
	}
	fields = append(fields, [2]string{idCountry, countryTH})

	if in.Reference1 != "" || in.Reference2 != "" {
		var add strings.Builder
		for _, ref := range [][2]string{{subIDReference1, in.Reference1}, {subIDReference2, in.Reference2}} {
			if ref[1] == "" {
				continue
			}
			if !isPrintableASCII(ref[1]) {
				return "", fmt.Errorf("%w: reference %q must be printable ASCII", errs.ErrInvalidInput, ref[1])
			}
			if err := writeTag(&add, ref[0], ref[1]); err != nil {
				return "", err
			}
		}
		fields = append(fields, [2]string{idAdditionalData, add.String()})
	}

	for _, f := range fields {
		if err := writeTag(&b, f[0], f[1]); err != nil {
			return "", err
		}
	}

	b.WriteString(checksumHeader)
	body := b.String()
	return body + fmt.Sprintf("%04X", CRC16(body)), nil
}

// Validate checks the trailing checksum of a payload produced by Build.
func Validate(payload string) error {
	if len(payload) < len(checksumHeader)+4 {
		return fmt.Errorf("%w: payload too short", errs.ErrInvalidInput)
	}
	body, sum := payload[:len(payload)-4], payload[len(payload)-4:]
	if !strings.HasSuffix(body, checksumHeader) {
		return fmt.Errorf("%w: missing checksum tag", errs.ErrInvalidInput)
	}
	if want := fmt.Sprintf("%04X", CRC16(body)); want != sum {
		return fmt.Errorf("%w: checksum %s, want %s", errs.ErrInvalidInput, sum, want)
	}
	return nil
}

func merchantAccount(in Input) (string, error) {
	var b strings.Builder
	if err := writeTag(&b, subIDApplication, applicationID); err != nil {
		return "", err
	}

	phone := stripSeparators(in.Phone)
	nationalID := stripSeparators(in.NationalID)
	for _, v := range []string{phone, nationalID} {
		if !isDigits(v) {
			return "", fmt.Errorf("%w: account identifier %q must be numeric", errs.ErrInvalidInput, v)
		}
	}
	switch {
	case phone != "":
		if err := writeTag(&b, subIDPhone, NormalizePhone(phone)); err != nil {
			return "", err
		}
	case nationalID != "":
		if err := writeTag(&b, subIDNationalID, nationalID); err != nil {
			return "", err
		}
	default:
		return "", fmt.Errorf("%w: phone number or national id required", errs.ErrInvalidInput)
	}
	return b.String(), nil
}

// NormalizePhone converts a local number to international form: one leading "0"
// is dropped and the country code is prefixed.
func NormalizePhone(phone string) string {
	return phoneCountry + strings.TrimPrefix(phone, "0")
}

func writeTag(b *strings.Builder, id, value string) error {
	if len(value) > maxFieldLength {
		return fmt.Errorf("%w: field %s longer than %d", errs.ErrInvalidInput, id, maxFieldLength)
	}
	b.WriteString(id)
	fmt.Fprintf(b, "%02d", len(value))
	b.WriteString(value)
	return nil
}

func stripSeparators(s string) string {
	return strings.NewReplacer("-", "", " ", "").Replace(s)
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func isPrintableASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] > 0x7e {
			return false
		}
	}
	return true
}
