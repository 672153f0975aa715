// Package refmatch tells apart payments arriving on the shared static account by a
// two-digit reference hidden in the satang part of the amount.
//
// A match is a heuristic, not proof of payment: two pending requests for the same whole
// amount collide with probability 1/100. Callers must also check that the referenced
// transaction is still pending and that its request has not expired.
package refmatch

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const suffixSpace = 100

var hundred = decimal.NewFromInt(100)

type Matcher struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func NewMatcher(src rand.Source) *Matcher {
	if src == nil {
		src = rand.NewSource(time.Now().UnixNano())
	}
	return &Matcher{rnd: rand.New(src)}
}

// GenerateReference returns "{primaryID}.{dd}" with dd drawn uniformly from 00..99.
func (m *Matcher) GenerateReference(primaryID string) string {
	m.mu.Lock()
	d := m.rnd.Intn(suffixSpace)
	m.mu.Unlock()
	return fmt.Sprintf("%s.%02d", primaryID, d)
}

// Suffix extracts the two-digit suffix of a reference.
func Suffix(reference string) (int, bool) {
	i := strings.LastIndexByte(reference, '.')
	if i < 0 || len(reference)-i-1 != 2 {
		return 0, false
	}
	hi, lo := reference[i+1], reference[i+2]
	if hi < '0' || hi > '9' || lo < '0' || lo > '9' {
		return 0, false
	}
	return int(hi-'0')*10 + int(lo-'0'), true
}

// BuildPayableAmount adds the reference suffix to base as satang.
func BuildPayableAmount(base decimal.Decimal, reference string) (decimal.Decimal, error) {
	d, ok := Suffix(reference)
	if !ok {
		return decimal.Zero, fmt.Errorf("malformed reference %q", reference)
	}
	return base.Add(decimal.NewFromInt(int64(d)).Div(hundred)), nil
}

// Verify reports whether the satang of observed equal the reference suffix.
// It never fails; malformed input simply does not match.
func Verify(observed decimal.Decimal, reference string) bool {
	d, ok := Suffix(reference)
	if !ok || observed.IsNegative() {
		return false
	}
	fraction := observed.Sub(observed.Floor())
	return fraction.Mul(hundred).Round(0).IntPart() == int64(d)
}
