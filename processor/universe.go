package processor

import (
	"sync"
	"time"

	"congressflow/logger"
	"congressflow/models"
)

// SecurityResolver resolves a ticker to its point-in-time security
// identifier as of a given date. It is an external collaborator; the
// returned identity embeds the security's listing-start date.
type SecurityResolver interface {
	Resolve(ticker string, asOf time.Time) (models.SecurityIdentity, error)
}

// ResolverFunc adapts a function to the SecurityResolver interface.
type ResolverFunc func(ticker string, asOf time.Time) (models.SecurityIdentity, error)

func (f ResolverFunc) Resolve(ticker string, asOf time.Time) (models.SecurityIdentity, error) {
	return f(ticker, asOf)
}

// UniverseIndexer turns accepted disclosures into universe entries. A
// ticker whose resolved listing date predates the viability floor is not
// mappable to a real listing and stays out of the universe for the whole
// run; its per-security history is unaffected. Safe for concurrent use.
type UniverseIndexer struct {
	resolver SecurityResolver
	floor    time.Time
	log      *logger.Log

	mu       sync.Mutex
	excluded map[string]struct{}
}

func NewUniverseIndexer(resolver SecurityResolver, floor time.Time) *UniverseIndexer {
	return &UniverseIndexer{
		resolver: resolver,
		floor:    floor,
		log:      logger.GetLogger(),
		excluded: make(map[string]struct{}),
	}
}

// Index resolves the disclosure's ticker as of its report date. The
// second return value reports whether the entry belongs in the universe.
func (u *UniverseIndexer) Index(d Disclosure) (models.UniverseEntry, bool) {
	log := u.log.WithComponent("universe_indexer").WithFields(logger.Fields{"ticker": d.Ticker})

	u.mu.Lock()
	_, out := u.excluded[d.Ticker]
	u.mu.Unlock()
	if out {
		return models.UniverseEntry{}, false
	}

	identity, err := u.resolver.Resolve(d.Ticker, d.Record.ReportDate)
	if err != nil {
		log.WithError(err).Debug("ticker not resolvable, skipping universe entry")
		return models.UniverseEntry{}, false
	}

	if identity.ListedDate.Before(u.floor) {
		u.mu.Lock()
		u.excluded[d.Ticker] = struct{}{}
		u.mu.Unlock()
		log.WithFields(logger.Fields{
			"listed_date": identity.ListedDate.Format(models.DateKeyFormat),
			"floor":       u.floor.Format(models.DateKeyFormat),
		}).Warn("listing date predates viability floor, excluding ticker from universe")
		return models.UniverseEntry{}, false
	}

	return models.UniverseEntry{
		Identity: identity,
		Ticker:   d.Ticker,
		Record:   d.Record,
	}, true
}
