package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	appconfig "congressflow/config"
	"congressflow/logger"
	"congressflow/models"
	"congressflow/processor"
	"congressflow/reader/quiver"
	"congressflow/writer"
)

// Fetcher is the provider surface the pipeline consumes. The quiver
// client satisfies it; tests substitute a stub.
type Fetcher interface {
	Companies(ctx context.Context) ([]quiver.Company, error)
	CongressTrading(ctx context.Context, ticker string) ([]models.RawDisclosure, error)
	BulkCongressTrading(ctx context.Context) ([]models.RawDisclosure, error)
}

// Pipeline drives one ingestion run end to end: fetch, normalize,
// deduplicate, index, merge to disk.
type Pipeline struct {
	config  *appconfig.Config
	fetcher Fetcher
	indexer *processor.UniverseIndexer
	log     *logger.Log
	runID   string
	schema  models.Schema
	opts    processor.Options
}

// New builds a pipeline. indexer may be nil when the universe output is
// disabled.
func New(cfg *appconfig.Config, fetcher Fetcher, indexer *processor.UniverseIndexer) *Pipeline {
	return &Pipeline{
		config:  cfg,
		fetcher: fetcher,
		indexer: indexer,
		log:     logger.GetLogger(),
		runID:   uuid.New().String(),
		schema:  models.ParseSchema(cfg.Output.Schema),
		opts: processor.Options{
			ProcessDate:               cfg.ProcessDate(),
			MaxAmountDefaultsToAmount: cfg.Output.MaxAmountDefaultsToAmount,
		},
	}
}

// Run executes one ingestion in the configured mode and logs a coverage
// summary when it finishes.
func (p *Pipeline) Run(ctx context.Context) error {
	log := p.log.WithComponent("pipeline").WithFields(logger.Fields{
		"run_id": p.runID,
		"mode":   p.config.Ingest.Mode,
	})
	log.Info("starting ingestion run")

	started := time.Now()
	var summary coverage
	var err error
	switch p.config.Ingest.Mode {
	case "bulk":
		summary, err = p.runBulk(ctx)
	default:
		summary, err = p.runTickers(ctx)
	}
	if err != nil {
		return err
	}

	fields := logger.Fields{
		"tickers_written": summary.tickersWritten,
		"elapsed":         time.Since(started).Round(time.Millisecond).String(),
	}
	if !summary.earliestReport.IsZero() {
		fields["earliest_report_date"] = summary.earliestReport.Format(models.DateKeyFormat)
	}
	log.WithFields(fields).Info("ingestion run complete")
	return nil
}

type coverage struct {
	tickersWritten int
	earliestReport time.Time
}

func (c *coverage) observe(reportDate time.Time) {
	if c.earliestReport.IsZero() || reportDate.Before(c.earliestReport) {
		c.earliestReport = reportDate
	}
}

func (p *Pipeline) historyPath(ticker string) string {
	return filepath.Join(p.config.Output.DataDir, strings.ToLower(ticker)+".csv")
}

func (p *Pipeline) universePath(dateKey string) string {
	return filepath.Join(p.config.Output.UniverseDir, dateKey+".csv")
}

// runTickers walks the provider's company directory and ingests each
// ticker's full history. Tickers are processed in fixed-size batches; a
// failing ticker is logged and skipped so it cannot sink the run.
func (p *Pipeline) runTickers(ctx context.Context) (coverage, error) {
	log := p.log.WithComponent("pipeline").WithFields(logger.Fields{"run_id": p.runID})

	companies, err := p.fetcher.Companies(ctx)
	if err != nil {
		return coverage{}, fmt.Errorf("failed to fetch company directory: %w", err)
	}
	if len(companies) == 0 {
		log.Warn("company directory is empty, nothing to ingest")
		return coverage{}, nil
	}

	// The directory occasionally repeats tickers.
	seen := make(map[string]struct{}, len(companies))
	tickers := make([]string, 0, len(companies))
	for _, company := range companies {
		ticker := strings.ToUpper(strings.TrimSpace(company.Ticker))
		if ticker == "" {
			continue
		}
		if _, dup := seen[ticker]; dup {
			continue
		}
		seen[ticker] = struct{}{}
		tickers = append(tickers, ticker)
	}
	log.WithFields(logger.Fields{"companies": len(companies), "tickers": len(tickers)}).Info("company directory fetched")

	batchSize := p.config.Ingest.MaxWorkers
	if batchSize < 1 {
		batchSize = 1
	}

	var summary coverage
	var mu sync.Mutex

	for start := 0; start < len(tickers); start += batchSize {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		end := start + batchSize
		if end > len(tickers) {
			end = len(tickers)
		}

		var wg sync.WaitGroup
		for _, ticker := range tickers[start:end] {
			wg.Add(1)
			go func(ticker string) {
				defer wg.Done()
				earliest, ok := p.ingestTicker(ctx, ticker)
				if !ok {
					return
				}
				mu.Lock()
				summary.tickersWritten++
				summary.observe(earliest)
				mu.Unlock()
			}(ticker)
		}
		wg.Wait()
	}

	return summary, nil
}

// ingestTicker fetches, normalizes and merges one ticker's history.
// Returns the earliest report date written and whether anything was.
func (p *Pipeline) ingestTicker(ctx context.Context, ticker string) (time.Time, bool) {
	log := p.log.WithComponent("pipeline").WithFields(logger.Fields{
		"run_id": p.runID,
		"ticker": ticker,
	})

	raw, err := p.fetcher.CongressTrading(ctx, ticker)
	if err != nil {
		log.WithError(err).Error("ticker fetch failed, skipping")
		return time.Time{}, false
	}
	if len(raw) == 0 {
		return time.Time{}, false
	}

	byDate := p.groupAndDedup(raw)
	if len(byDate) == 0 {
		return time.Time{}, false
	}

	var lines []string
	var earliest time.Time
	for _, batch := range byDate {
		for _, d := range batch.rows {
			lines = append(lines, d.Record.HistoryLine(p.schema))
			if earliest.IsZero() || d.Record.ReportDate.Before(earliest) {
				earliest = d.Record.ReportDate
			}
		}
	}

	if err := writer.MergeAppend(p.historyPath(ticker), lines, writer.SortByDate); err != nil {
		log.WithError(err).Error("history merge failed, skipping ticker")
		return time.Time{}, false
	}
	log.WithFields(logger.Fields{"rows": len(lines)}).Debug("ticker history merged")
	return earliest, true
}

type dateBatch struct {
	dateKey string
	date    time.Time
	rows    []processor.Disclosure
}

// groupAndDedup normalizes raw rows, groups the survivors by report
// date and deduplicates within each date. Batches come back in
// ascending date order.
func (p *Pipeline) groupAndDedup(raw []models.RawDisclosure) []dateBatch {
	grouped := make(map[string]*dateBatch)
	var rejected int
	for _, row := range raw {
		d, err := processor.Normalize(row, p.opts)
		if err != nil {
			rejected++
			continue
		}
		key := d.Record.ReportDate.Format(models.DateKeyFormat)
		batch, ok := grouped[key]
		if !ok {
			batch = &dateBatch{dateKey: key, date: d.Record.ReportDate}
			grouped[key] = batch
		}
		batch.rows = append(batch.rows, d)
	}
	logger.IncrementRejected(rejected)

	out := make([]dateBatch, 0, len(grouped))
	var accepted int
	for _, batch := range grouped {
		batch.rows = processor.Dedup(batch.rows)
		accepted += len(batch.rows)
		out = append(out, *batch)
	}
	logger.IncrementAccepted(accepted)
	sort.Slice(out, func(i, j int) bool { return out[i].date.Before(out[j].date) })
	return out
}

type dateResult struct {
	batch         dateBatch
	universeLines []string
}

// runBulk ingests the whole feed in one call, then processes report
// dates concurrently. Workers only resolve and render; a single consumer
// owns every file write, so no path is touched from two goroutines.
func (p *Pipeline) runBulk(ctx context.Context) (coverage, error) {
	log := p.log.WithComponent("pipeline").WithFields(logger.Fields{"run_id": p.runID})

	raw, err := p.fetcher.BulkCongressTrading(ctx)
	if err != nil {
		return coverage{}, fmt.Errorf("failed to fetch bulk feed: %w", err)
	}
	if len(raw) == 0 {
		log.Warn("bulk feed is empty, nothing to ingest")
		return coverage{}, nil
	}

	batches := p.groupAndDedup(raw)
	log.WithFields(logger.Fields{
		"raw_rows":     len(raw),
		"report_dates": len(batches),
	}).Info("bulk feed normalized")

	workers := p.config.Ingest.MaxWorkers
	if workers < 1 {
		workers = 1
	}

	jobs := make(chan dateBatch)
	results := make(chan dateResult)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range jobs {
				results <- dateResult{batch: batch, universeLines: p.renderUniverse(batch)}
			}
		}()
	}
	go func() {
		defer close(jobs)
		for _, batch := range batches {
			select {
			case jobs <- batch:
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wg.Wait()
		close(results)
	}()

	historyByTicker := make(map[string][]string)
	var summary coverage
	for res := range results {
		if len(res.universeLines) > 0 {
			if err := writer.MergeAppend(p.universePath(res.batch.dateKey), res.universeLines, writer.SortLexical); err != nil {
				return summary, fmt.Errorf("failed to write universe for %s: %w", res.batch.dateKey, err)
			}
		}
		for _, d := range res.batch.rows {
			historyByTicker[d.Ticker] = append(historyByTicker[d.Ticker], d.Record.HistoryLine(p.schema))
		}
		summary.observe(res.batch.date)
	}
	if err := ctx.Err(); err != nil {
		return summary, err
	}

	tickers := make([]string, 0, len(historyByTicker))
	for ticker := range historyByTicker {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)
	for _, ticker := range tickers {
		if err := writer.MergeAppend(p.historyPath(ticker), historyByTicker[ticker], writer.SortByDate); err != nil {
			return summary, fmt.Errorf("failed to merge history for %s: %w", ticker, err)
		}
		summary.tickersWritten++
	}

	return summary, nil
}

// renderUniverse maps one date batch onto its universe lines. Disabled
// or unresolvable entries render nothing.
func (p *Pipeline) renderUniverse(batch dateBatch) []string {
	if p.indexer == nil {
		return nil
	}
	var lines []string
	for _, d := range batch.rows {
		entry, ok := p.indexer.Index(d)
		if !ok {
			continue
		}
		lines = append(lines, entry.Line(p.schema))
	}
	return lines
}
