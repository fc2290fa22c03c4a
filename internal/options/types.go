package options

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// OptionType is the right of an option contract
type OptionType string

const (
	OptionTypeCall OptionType = "CALL"
	OptionTypePut  OptionType = "PUT"
)

// ExpiryBucket groups contracts by days to expiry
type ExpiryBucket string

const (
	ExpiryShortTerm ExpiryBucket = "shortTerm"
	ExpiryWeekly    ExpiryBucket = "weekly"
	ExpiryMonthly   ExpiryBucket = "monthly"
	ExpiryQuarterly ExpiryBucket = "quarterly"
)

// Valid reports whether b is a known bucket
func (b ExpiryBucket) Valid() bool {
	switch b {
	case ExpiryShortTerm, ExpiryWeekly, ExpiryMonthly, ExpiryQuarterly:
		return true
	}
	return false
}

// Contract is one quoted option on one simulated day
type Contract struct {
	ID           string
	Strike       decimal.Decimal
	Expiration   time.Time
	Type         OptionType
	Premium      decimal.Decimal
	ImpliedVol   float64
	OpenInterest int64
	Volume       int64
	Delta        float64
	Gamma        float64
	Theta        float64
	Vega         float64
}

// ContractKey identifies the same contract across daily chains.
// Strike is kept as a canonical string so the key is comparable.
type ContractKey struct {
	Strike     string
	Type       OptionType
	Expiration string
}

// KeyOf builds the matching key for a strike, type and expiration date
func KeyOf(strike decimal.Decimal, typ OptionType, expiration time.Time) ContractKey {
	return ContractKey{
		Strike:     strike.StringFixed(2),
		Type:       typ,
		Expiration: expiration.Format(time.DateOnly),
	}
}

// Key returns the matching key of c
func (c Contract) Key() ContractKey {
	return KeyOf(c.Strike, c.Type, c.Expiration)
}

// String renders the key like an OCC-style symbol
func (k ContractKey) String() string {
	return fmt.Sprintf("%s-%s-%s", k.Expiration, k.Type, k.Strike)
}

// Chain is the set of contracts quoted on one day
type Chain []Contract

// Index builds a key lookup for the chain
func (c Chain) Index() map[ContractKey]Contract {
	index := make(map[ContractKey]Contract, len(c))
	for _, contract := range c {
		index[contract.Key()] = contract
	}
	return index
}

// DaysToExpiry counts whole calendar days between asOf and expiration
func DaysToExpiry(asOf, expiration time.Time) int {
	a := time.Date(asOf.Year(), asOf.Month(), asOf.Day(), 0, 0, 0, 0, time.UTC)
	e := time.Date(expiration.Year(), expiration.Month(), expiration.Day(), 0, 0, 0, 0, time.UTC)
	return int(e.Sub(a).Hours() / 24)
}

// ExpiryBucketFor classifies days to expiry: <=7 shortTerm, (7,21] weekly, >21 monthly
func ExpiryBucketFor(daysToExpiry int) ExpiryBucket {
	switch {
	case daysToExpiry <= 7:
		return ExpiryShortTerm
	case daysToExpiry <= 21:
		return ExpiryWeekly
	default:
		return ExpiryMonthly
	}
}

// MatchesPreference reports whether a contract with daysToExpiry fits any preferred bucket.
// Quarterly accepts contracts more than 63 days out.
func MatchesPreference(daysToExpiry int, preferences []ExpiryBucket) bool {
	bucket := ExpiryBucketFor(daysToExpiry)
	for _, pref := range preferences {
		if pref == bucket {
			return true
		}
		if pref == ExpiryQuarterly && daysToExpiry > 63 {
			return true
		}
	}
	return false
}
