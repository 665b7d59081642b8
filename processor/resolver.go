package processor

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"congressflow/models"
)

type listing struct {
	id        string
	startDate time.Time
}

// FileResolver serves point-in-time identifiers from a local listings
// file. Each line maps a ticker to an identifier and its listing-start
// date: "TICKER,identifier,yyyyMMdd". The table is loaded once; lookups
// are read-only afterwards.
type FileResolver struct {
	listings map[string][]listing
}

func NewFileResolver(path string) (*FileResolver, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open listings file: %w", err)
	}
	defer f.Close()

	listings := make(map[string][]listing)
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.Split(line, ",")
		if len(parts) != 3 {
			return nil, fmt.Errorf("listings file line %d: expected 3 fields, got %d", lineNo, len(parts))
		}
		startDate, err := time.Parse(models.DateKeyFormat, strings.TrimSpace(parts[2]))
		if err != nil {
			return nil, fmt.Errorf("listings file line %d: bad date: %w", lineNo, err)
		}
		ticker := strings.ToUpper(strings.TrimSpace(parts[0]))
		listings[ticker] = append(listings[ticker], listing{
			id:        strings.TrimSpace(parts[1]),
			startDate: startDate,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read listings file: %w", err)
	}

	for _, rows := range listings {
		sort.Slice(rows, func(i, j int) bool { return rows[i].startDate.Before(rows[j].startDate) })
	}

	return &FileResolver{listings: listings}, nil
}

// Resolve returns the identity in effect as of the given date: the
// latest listing whose start date is on or before asOf. The embedded
// listing date is always the entity's first listing so the viability
// check is stable across symbol changes.
func (r *FileResolver) Resolve(ticker string, asOf time.Time) (models.SecurityIdentity, error) {
	rows, ok := r.listings[strings.ToUpper(ticker)]
	if !ok {
		return models.SecurityIdentity{}, fmt.Errorf("ticker %s is not mapped", ticker)
	}
	for i := len(rows) - 1; i >= 0; i-- {
		if !rows[i].startDate.After(asOf) {
			return models.SecurityIdentity{
				ID:         rows[i].id,
				Ticker:     ticker,
				ListedDate: rows[0].startDate,
			}, nil
		}
	}
	return models.SecurityIdentity{}, fmt.Errorf("ticker %s has no listing on or before %s", ticker, asOf.Format(models.DateKeyFormat))
}
