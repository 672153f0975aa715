package refmatch

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestGenerateReferenceFormat(t *testing.T) {
	m := NewMatcher(rand.NewSource(1))
	for i := 0; i < 500; i++ {
		ref := m.GenerateReference("T8F3A")
		require.Len(t, ref, len("T8F3A")+3)
		d, ok := Suffix(ref)
		require.True(t, ok, ref)
		require.GreaterOrEqual(t, d, 0)
		require.Less(t, d, 100)
	}
}

func TestVerifyRoundTrip(t *testing.T) {
	m := NewMatcher(rand.NewSource(42))
	base := decimal.NewFromInt(1000)
	for i := 0; i < 200; i++ {
		ref := m.GenerateReference("ORD1")
		payable, err := BuildPayableAmount(base, ref)
		require.NoError(t, err)
		require.True(t, Verify(payable, ref), "%s %s", payable, ref)
		require.True(t, payable.Floor().Equal(base))
	}
}

func TestVerifyRejectsAlteredSuffix(t *testing.T) {
	payable, err := BuildPayableAmount(decimal.NewFromInt(1000), "ABC.07")
	require.NoError(t, err)
	require.Equal(t, "1000.07", payable.StringFixed(2))

	require.False(t, Verify(payable, "ABC.08"))
	require.False(t, Verify(decimal.RequireFromString("1000.70"), "ABC.07"))
	require.False(t, Verify(decimal.RequireFromString("1000"), "ABC.07"))
	require.True(t, Verify(decimal.RequireFromString("1000"), "ABC.00"))
}

func TestVerifyIsTotal(t *testing.T) {
	require.False(t, Verify(decimal.RequireFromString("10.07"), "no-suffix"))
	require.False(t, Verify(decimal.RequireFromString("10.07"), "X.7"))
	require.False(t, Verify(decimal.RequireFromString("10.07"), "X.x7"))
	require.False(t, Verify(decimal.RequireFromString("-10.07"), "X.07"))
	require.False(t, Verify(decimal.RequireFromString("10.07"), ""))

	_, err := BuildPayableAmount(decimal.NewFromInt(1), "bad")
	require.Error(t, err)
	_, err = BuildPayableAmount(decimal.NewFromInt(1), "X.+5")
	require.Error(t, err)
}

func TestSuffixAcceptsOnlyTwoDigits(t *testing.T) {
	for ref, want := range map[string]int{"T1.00": 0, "T1.07": 7, "T1.99": 99, "A.B.42": 42} {
		d, ok := Suffix(ref)
		require.True(t, ok, ref)
		require.Equal(t, want, d, ref)
	}
	for _, ref := range []string{"T1.+5", "T1.-5", "T1. 5", "T1.5", "T1.123", "T1.", "T1"} {
		_, ok := Suffix(ref)
		require.False(t, ok, ref)
	}
	require.False(t, Verify(decimal.RequireFromString("10.05"), "X.+5"))
}
