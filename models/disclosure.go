package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DateKeyFormat is the compact date layout used in output lines and
// universe file names.
const DateKeyFormat = "20060102"

// Direction classifies a disclosed transaction. Exchange-style filings
// carry no acquire/dispose signal and classify as Hold.
type Direction string

const (
	DirectionBuy  Direction = "Buy"
	DirectionSell Direction = "Sell"
	DirectionHold Direction = "Hold"
)

// ParseDirection maps a provider transaction description onto a direction
// using a case-insensitive prefix match.
func ParseDirection(s string) Direction {
	s = strings.ToLower(strings.TrimSpace(s))
	switch {
	case strings.HasPrefix(s, "purchase"), strings.HasPrefix(s, "buy"):
		return DirectionBuy
	case strings.HasPrefix(s, "sale"), strings.HasPrefix(s, "sell"):
		return DirectionSell
	default:
		return DirectionHold
	}
}

// Chamber identifies the congressional chamber of the filer.
type Chamber string

const (
	ChamberHouse  Chamber = "House"
	ChamberSenate Chamber = "Senate"
)

// ParseChamber maps provider chamber descriptions, which appear both as
// chamber names and as member titles.
func ParseChamber(s string) Chamber {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "senate", "senator":
		return ChamberSenate
	default:
		return ChamberHouse
	}
}

// ExpandParty maps single-letter party codes to full names. Unknown values
// pass through untouched.
func ExpandParty(s string) string {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "R":
		return "Republican"
	case "D":
		return "Democratic"
	case "I":
		return "Independent"
	default:
		return strings.TrimSpace(s)
	}
}

// RawDisclosure is one provider-reported trade event as decoded from the
// API payload. It is never mutated after decoding.
type RawDisclosure struct {
	Ticker          string  `json:"Ticker"`
	TickerType      string  `json:"TickerType"`
	Representative  string  `json:"Representative"`
	Transaction     string  `json:"Transaction"`
	Range           string  `json:"Range"`
	Amount          string  `json:"Amount"`
	ReportDate      string  `json:"ReportDate"`
	TransactionDate string  `json:"TransactionDate"`
	House           string  `json:"House"`
	Party           string  `json:"Party"`
	District        *string `json:"District"`
	State           string  `json:"State"`
}

// CanonicalRecord is the normalized, persisted form of a disclosure.
// Amount is the lower bound of a reported range (or the exact amount);
// MaximumAmount is the upper bound when a range was reported. When both
// are present Amount <= MaximumAmount.
type CanonicalRecord struct {
	ReportDate      time.Time
	TransactionDate time.Time
	Representative  string
	Direction       Direction
	Amount          decimal.NullDecimal
	MaximumAmount   decimal.NullDecimal
	Chamber         Chamber
	Party           string
	District        string
	State           string
}

// Schema selects the persisted line layout.
type Schema int

const (
	// SchemaBasic is the older layout:
	// reportDate,transactionDate,representative,direction,amount,chamber
	SchemaBasic Schema = iota
	// SchemaExtended adds maximumAmount,party,district,state.
	SchemaExtended
)

// ParseSchema maps a configuration value onto a Schema.
func ParseSchema(s string) Schema {
	if strings.EqualFold(s, "basic") {
		return SchemaBasic
	}
	return SchemaExtended
}

// escapeField keeps the flattened comma-separated line parseable. The
// representative field legitimately contains commas ("Gardner, Cory").
func escapeField(s string) string {
	return strings.ReplaceAll(s, ",", ";")
}

func renderAmount(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.String()
}

// trailingFields renders everything after the leading report date.
func (r CanonicalRecord) trailingFields(schema Schema) []string {
	fields := []string{
		r.TransactionDate.Format(DateKeyFormat),
		escapeField(r.Representative),
		string(r.Direction),
		renderAmount(r.Amount),
	}
	if schema == SchemaExtended {
		fields = append(fields,
			renderAmount(r.MaximumAmount),
			string(r.Chamber),
			r.Party,
			escapeField(r.District),
			escapeField(r.State),
		)
	} else {
		fields = append(fields, string(r.Chamber))
	}
	return fields
}

// HistoryLine renders the per-security history file line for the record.
func (r CanonicalRecord) HistoryLine(schema Schema) string {
	fields := append([]string{r.ReportDate.Format(DateKeyFormat)}, r.trailingFields(schema)...)
	return strings.Join(fields, ",")
}

// SecurityIdentity is a point-in-time identifier resolved for a ticker.
// ListedDate is the identifier's embedded listing-start date, used for the
// universe viability check.
type SecurityIdentity struct {
	ID         string
	Ticker     string
	ListedDate time.Time
}

// UniverseEntry is one line of a per-date universe file.
type UniverseEntry struct {
	Identity SecurityIdentity
	Ticker   string
	Record   CanonicalRecord
}

// Line renders the universe file line: identifier, ticker, then the
// history trailing fields. The universe file name already keys the
// report date.
func (u UniverseEntry) Line(schema Schema) string {
	fields := append([]string{u.Identity.ID, u.Ticker}, u.Record.trailingFields(schema)...)
	return strings.Join(fields, ",")
}
