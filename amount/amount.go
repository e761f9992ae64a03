package amount

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Scale is the number of raw units per whole token or carbon credit.
// All ledger and staking arithmetic is done on raw hundredths so that
// results are exact and reproducible; there is no floating point
// anywhere in the money path.
const Scale = 100

// Amount is a 2-decimal fixed-point quantity of reward tokens or
// carbon credits, stored as raw hundredths.
type Amount int64

// New returns an Amount of the given number of whole units.
func New(whole int64) Amount {
	return Amount(whole * Scale)
}

// FromRaw wraps an already-scaled raw value.
func FromRaw(raw int64) Amount {
	return Amount(raw)
}

// FromString parses "110.25" style input from the API layer. At most
// two decimal places are accepted; extra precision is an error rather
// than silently truncated.
func FromString(s string) (Amount, error) {

	whole := s
	frac := ""

	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}

	if len(frac) > 2 {
		return 0, errors.Errorf("too many decimal places in amount %q", s)
	}

	// Right-pad the fraction to exactly two digits
	for len(frac) < 2 {
		frac += "0"
	}

	w, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "cannot parse amount %q", s)
	}

	f, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "cannot parse amount %q", s)
	}

	if w < 0 || strings.HasPrefix(whole, "-") {
		return 0, errors.Errorf("negative amount %q", s)
	}

	return Amount(w*Scale + f), nil
}

func (a Amount) Raw() int64 {
	return int64(a)
}

func (a Amount) Add(b Amount) Amount {
	return a + b
}

func (a Amount) Sub(b Amount) Amount {
	return a - b
}

// MulRate multiplies by a whole-number conversion rate, keeping the
// 2-decimal scale.
func (a Amount) MulRate(rate uint64) Amount {
	return Amount(int64(a) * int64(rate))
}

// Percent returns pct% of a, truncated toward zero.
func (a Amount) Percent(pct int64) Amount {
	return Amount(int64(a) * pct / 100)
}

func (a Amount) IsZero() bool {
	return a == 0
}

func (a Amount) String() string {
	raw := int64(a)
	sign := ""
	if raw < 0 {
		sign = "-"
		raw = -raw
	}

	return fmt.Sprintf("%s%d.%02d", sign, raw/Scale, raw%Scale)
}
