package processor

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"congressflow/models"

	"github.com/shopspring/decimal"
)

// ErrRejected marks provider rows that carry no usable disclosure. The
// caller drops them and continues.
var ErrRejected = errors.New("record rejected")

// Options controls normalization behavior for one run.
type Options struct {
	// ProcessDate guards against future-dated filings; rows reported
	// after this date are unusable.
	ProcessDate time.Time
	// MaxAmountDefaultsToAmount fills the maximum bound with the exact
	// amount when the provider reported a single value.
	MaxAmountDefaultsToAmount bool
}

// Disclosure couples a cleaned ticker with its canonical record.
type Disclosure struct {
	Ticker string
	Record models.CanonicalRecord
}

// Normalize converts one raw provider row into its canonical form. It is
// a pure transformation: every rejection rule is applied in order and the
// raw row is never mutated.
func Normalize(raw models.RawDisclosure, opts Options) (Disclosure, error) {
	direction := models.ParseDirection(raw.Transaction)
	if direction == models.DirectionHold {
		return Disclosure{}, fmt.Errorf("%w: ambiguous transaction %q", ErrRejected, raw.Transaction)
	}

	if strings.TrimSpace(raw.ReportDate) == "" {
		return Disclosure{}, fmt.Errorf("%w: missing report date", ErrRejected)
	}
	reportDate, err := parseProviderDate(raw.ReportDate)
	if err != nil {
		return Disclosure{}, fmt.Errorf("%w: unparseable report date %q", ErrRejected, raw.ReportDate)
	}
	if !opts.ProcessDate.IsZero() && reportDate.After(opts.ProcessDate) {
		return Disclosure{}, fmt.Errorf("%w: report date %s is in the future", ErrRejected, raw.ReportDate)
	}

	if !isStockType(raw.TickerType) {
		return Disclosure{}, fmt.Errorf("%w: non-equity ticker type %q", ErrRejected, raw.TickerType)
	}

	ticker := CleanTicker(raw.Ticker)
	if ticker == "" {
		return Disclosure{}, fmt.Errorf("%w: empty ticker", ErrRejected)
	}

	transactionDate, err := parseProviderDate(raw.TransactionDate)
	if err != nil {
		return Disclosure{}, fmt.Errorf("%w: unparseable transaction date %q", ErrRejected, raw.TransactionDate)
	}

	amount, maxAmount, err := parseTradeSize(raw.Range, raw.Amount, opts.MaxAmountDefaultsToAmount)
	if err != nil {
		return Disclosure{}, fmt.Errorf("%w: %v", ErrRejected, err)
	}

	district := ""
	if raw.District != nil {
		district = strings.TrimSpace(*raw.District)
	}

	record := models.CanonicalRecord{
		ReportDate:      reportDate,
		TransactionDate: transactionDate,
		Representative:  strings.TrimSpace(raw.Representative),
		Direction:       direction,
		Amount:          amount,
		MaximumAmount:   maxAmount,
		Chamber:         models.ParseChamber(raw.House),
		Party:           models.ExpandParty(raw.Party),
		District:        district,
		State:           strings.TrimSpace(raw.State),
	}

	return Disclosure{Ticker: ticker, Record: record}, nil
}

// isStockType keeps only common-stock rows. A present type that is
// neither Stock nor ST marks a non-equity instrument.
func isStockType(tickerType string) bool {
	t := strings.TrimSpace(tickerType)
	return t == "" || strings.EqualFold(t, "stock") || strings.EqualFold(t, "st")
}

// CleanTicker normalizes a provider ticker: uppercase, defunct suffix
// stripped, embedded spaces and pipes removed, dashes mapped to dots.
func CleanTicker(s string) string {
	t := strings.ToUpper(strings.TrimSpace(s))
	t = strings.ReplaceAll(t, "- DEFUNCT", "")
	t = strings.ReplaceAll(t, "-DEFUNCT", "")
	t = strings.ReplaceAll(t, " ", "")
	t = strings.ReplaceAll(t, "|", "")
	t = strings.ReplaceAll(t, "-", ".")
	return t
}

var providerDateLayouts = []string{
	"2006-01-02",
	"2006-01-02T15:04:05",
	"01/02/2006",
}

func parseProviderDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range providerDateLayouts {
		if d, err := time.Parse(layout, s); err == nil {
			return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// parseTradeSize derives both amount bounds from the free-text size
// description. A "-" marks a low/high range; otherwise the description
// (or the dedicated amount field of the older schema) is a single value.
func parseTradeSize(sizeDesc, amountField string, defaultMax bool) (decimal.NullDecimal, decimal.NullDecimal, error) {
	var none decimal.NullDecimal

	desc := cleanNumber(sizeDesc)
	if desc != "" {
		if strings.Contains(desc, "-") {
			parts := strings.SplitN(desc, "-", 2)
			low, err := decimal.NewFromString(parts[0])
			if err != nil {
				return none, none, fmt.Errorf("unparseable range lower bound %q", sizeDesc)
			}
			high, err := decimal.NewFromString(parts[1])
			if err != nil {
				return none, none, fmt.Errorf("unparseable range upper bound %q", sizeDesc)
			}
			if low.GreaterThan(high) {
				low, high = high, low
			}
			return decimal.NewNullDecimal(low), decimal.NewNullDecimal(high), nil
		}
		v, err := decimal.NewFromString(desc)
		if err != nil {
			return none, none, fmt.Errorf("unparseable trade size %q", sizeDesc)
		}
		return singleValue(v, defaultMax)
	}

	if amt := cleanNumber(amountField); amt != "" {
		v, err := decimal.NewFromString(amt)
		if err != nil {
			return none, none, fmt.Errorf("unparseable amount %q", amountField)
		}
		return singleValue(v, defaultMax)
	}

	return none, none, nil
}

func singleValue(v decimal.Decimal, defaultMax bool) (decimal.NullDecimal, decimal.NullDecimal, error) {
	amount := decimal.NewNullDecimal(v)
	if defaultMax {
		return amount, decimal.NewNullDecimal(v), nil
	}
	return amount, decimal.NullDecimal{}, nil
}

func cleanNumber(s string) string {
	s = strings.ReplaceAll(s, "$", "")
	s = strings.ReplaceAll(s, ",", "")
	s = strings.ReplaceAll(s, " ", "")
	return strings.TrimSpace(s)
}
