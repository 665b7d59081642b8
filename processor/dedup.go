package processor

import (
	"congressflow/models"
)

// identityKey is everything that identifies a logical disclosure except
// the monetary bounds. Re-filed duplicates differ only in amount, which
// the provider reports too unreliably to distinguish on.
type identityKey struct {
	ticker          string
	transactionDate string
	representative  string
	direction       models.Direction
	chamber         models.Chamber
	party           string
	district        string
	state           string
}

func keyOf(d Disclosure) identityKey {
	return identityKey{
		ticker:          d.Ticker,
		transactionDate: d.Record.TransactionDate.Format(models.DateKeyFormat),
		representative:  d.Record.Representative,
		direction:       d.Record.Direction,
		chamber:         d.Record.Chamber,
		party:           d.Record.Party,
		district:        d.Record.District,
		state:           d.Record.State,
	}
}

// Dedup collapses rows within one report-date batch that repeat the same
// logical disclosure. The first occurrence wins.
func Dedup(rows []Disclosure) []Disclosure {
	seen := make(map[identityKey]struct{}, len(rows))
	out := make([]Disclosure, 0, len(rows))
	for _, d := range rows {
		k := keyOf(d)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, d)
	}
	return out
}
