package qrpay

import (
	"errors"
	"testing"

	"marketpay/services/errs"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func amount(s string) decimal.NullDecimal {
	return decimal.NewNullDecimal(decimal.RequireFromString(s))
}

func TestCRC16GoldenVectors(t *testing.T) {
	cases := map[string]uint16{
		"":          0xFFFF,
		"A":         0xB915,
		"123456789": 0x29B1,
	}
	for in, want := range cases {
		require.Equalf(t, want, CRC16(in), "crc of %q", in)
	}
}

func TestBuildGoldenPayloads(t *testing.T) {
	cases := []struct {
		name string
		in   Input
		want string
	}{
		{
			name: "phone without amount",
			in:   Input{Phone: "0812345678"},
			want: "00020101021229350016A00000067701011101116681234567853037645802TH6304184C",
		},
		{
			name: "phone with amount",
			in:   Input{Phone: "081-234-5678", Amount: amount("1000.37")},
			want: "00020101021229350016A000000677010111011166812345678530376454071000.375802TH6304BD04",
		},
		{
			name: "national id with references",
			in: Input{
				NationalID: "1234567890123",
				Amount:     amount("250.5"),
				Reference1: "T1A2B3C4.07",
				Reference2: "ORD-1",
			},
			want: "00020101021229370016A0000006770101110213123456789012353037645406250.505802TH62240111T1A2B3C4.070205ORD-163041B1D",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Build(tc.in)
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
			require.NoError(t, Validate(got))

			again, err := Build(tc.in)
			require.NoError(t, err)
			require.Equal(t, got, again)
		})
	}
}

func TestBuildRejectsBadInput(t *testing.T) {
	cases := map[string]Input{
		"no identifier":   {},
		"zero amount":     {Phone: "0812345678", Amount: amount("0")},
		"negative amount": {Phone: "0812345678", Amount: amount("-5")},
		"letters in id":   {NationalID: "12AB"},
		"non ascii ref":   {Phone: "0812345678", Reference1: "ชำระ"},
	}
	for name, in := range cases {
		_, err := Build(in)
		require.Truef(t, errors.Is(err, errs.ErrInvalidInput), "%s: got %v", name, err)
	}
}

func TestNormalizePhone(t *testing.T) {
	require.Equal(t, "66812345678", NormalizePhone("0812345678"))
	require.Equal(t, "66812345678", NormalizePhone("812345678"))
	require.Equal(t, "6608", NormalizePhone("008"))
}

func TestValidateDetectsTampering(t *testing.T) {
	payload, err := Build(Input{Phone: "0812345678", Amount: amount("99.01")})
	require.NoError(t, err)

	tampered := payload[:len(payload)-10] + "9" + payload[len(payload)-9:]
	require.Error(t, Validate(tampered))
	require.Error(t, Validate("6304"))
}
