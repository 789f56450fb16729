package statements

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"fundmate/models"
	"fundmate/observability"
	"fundmate/options"
)

// ExtractedPosition is one holding as read off a statement page.
type ExtractedPosition struct {
	StockCode      string          `json:"stock_code"`
	Holding        decimal.Decimal `json:"holding"`
	RawDescription string          `json:"raw_description"`
	BrokerPrice    decimal.Decimal `json:"broker_price"`
	PriceCurrency  string          `json:"price_currency"`
	Multiplier     int64           `json:"multiplier"`
}

// ExtractedStatement is the structured content of one broker statement
// document.
type ExtractedStatement struct {
	BrokerName        string                     `json:"broker_name"`
	AccountID         string                     `json:"account_id"`
	StatementDate     string                     `json:"statement_date"`
	Cash              map[string]decimal.Decimal `json:"cash"`
	CashTotal         decimal.Decimal            `json:"cash_total"`
	CashTotalCurrency string                     `json:"cash_total_currency"`
	USDTotal          decimal.Decimal            `json:"usd_total"`
	Positions         []ExtractedPosition        `json:"positions"`
}

// DocumentExtractor reads statement page images and returns their
// structured content. The model-backed implementation lives in services.
type DocumentExtractor interface {
	ExtractStatement(ctx context.Context, broker string, pages [][]byte) (*ExtractedStatement, error)
}

// StatementProcessor turns a folder of broker statement images into
// per-broker results. Directory layout is one subdirectory per broker,
// optionally with a per-date folder inside, holding page images.
type StatementProcessor struct {
	extractor  DocumentExtractor
	registry   *options.Registry
	maxWorkers int
}

func NewStatementProcessor(extractor DocumentExtractor, registry *options.Registry, maxWorkers int) *StatementProcessor {
	if maxWorkers <= 0 {
		maxWorkers = 4
	}
	return &StatementProcessor{extractor: extractor, registry: registry, maxWorkers: maxWorkers}
}

// ProcessFolder extracts every broker's statement concurrently with a
// semaphore limit. A broker whose extraction fails is logged and skipped
// so one bad statement cannot sink the rest of the batch; persisted runs
// record which brokers made it in. Only context cancellation aborts.
func (sp *StatementProcessor) ProcessFolder(ctx context.Context, dir, date string) ([]*models.ProcessedResult, error) {
	brokers, err := listBrokerDirs(dir)
	if err != nil {
		return nil, err
	}
	if len(brokers) == 0 {
		return nil, fmt.Errorf("no broker directories under %s", dir)
	}

	type extractResult struct {
		index  int
		result *models.ProcessedResult
		err    error
	}

	results := make(chan extractResult, len(brokers))
	sem := make(chan struct{}, sp.maxWorkers)
	var wg sync.WaitGroup

	for i, broker := range brokers {
		wg.Add(1)
		go func(idx int, broker string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				results <- extractResult{index: idx, err: ctx.Err()}
				return
			}

			r, err := sp.processBroker(ctx, dir, broker, date)
			results <- extractResult{index: idx, result: r, err: err}
		}(i, broker)
	}

	wg.Wait()
	close(results)

	ordered := make([]*models.ProcessedResult, len(brokers))
	failed := 0
	for res := range results {
		if res.err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			failed++
			observability.Error("broker extraction failed, skipping broker",
				"broker", brokers[res.index], "error", res.err)
			continue
		}
		ordered[res.index] = res.result
	}
	if failed > 0 {
		observability.Warn("statement batch completed with failures",
			"brokers", len(brokers), "failed", failed)
	}

	out := make([]*models.ProcessedResult, 0, len(ordered))
	for _, r := range ordered {
		if r != nil {
			out = append(out, r)
		}
	}
	return out, nil
}

func (sp *StatementProcessor) processBroker(ctx context.Context, dir, broker, date string) (*models.ProcessedResult, error) {
	searchDir := filepath.Join(dir, broker)
	if date != "" {
		if dated := filepath.Join(searchDir, date); dirExists(dated) {
			searchDir = dated
		}
	}

	pages, err := loadPageImages(searchDir)
	if err != nil {
		return nil, err
	}
	if len(pages) == 0 {
		observability.Info("no statement pages for broker", "broker", broker)
		return nil, nil
	}

	observability.GetMetrics().RecordExtractionRequest(broker)
	timer := observability.GetMetrics().NewTimer()
	extracted, err := sp.extractor.ExtractStatement(ctx, broker, pages)
	if err != nil {
		timer.ObserveExtraction(broker, "error")
		observability.GetMetrics().RecordExtractionError(broker, "extraction_failed")
		return nil, err
	}
	timer.ObserveExtraction(broker, "success")

	observability.Info("extracted broker statement",
		"broker", broker, "pages", len(pages), "positions", len(extracted.Positions))
	return sp.toResult(broker, date, extracted)
}

// toResult converts extracted content into a reconciled result, parsing
// every stock code through the registry.
func (sp *StatementProcessor) toResult(broker, date string, ex *ExtractedStatement) (*models.ProcessedResult, error) {
	r := models.NewProcessedResult(strings.ToUpper(broker))
	r.AccountID = ex.AccountID
	r.StatementDate = date
	if ex.StatementDate != "" {
		r.StatementDate = ex.StatementDate
	}
	for currency, amount := range ex.Cash {
		r.AddCash(currency, amount)
	}
	r.CashTotal = ex.CashTotal
	r.CashTotalCurrency = ex.CashTotalCurrency
	r.USDTotal = ex.USDTotal

	for _, ep := range ex.Positions {
		pos, err := models.NewPosition(sp.registry, ep.StockCode, ep.Holding, r.BrokerName, models.ContextBase)
		if err != nil {
			return nil, fmt.Errorf("position %q: %w", ep.StockCode, err)
		}
		pos.RawDescription = ep.RawDescription
		pos.BrokerPrice = ep.BrokerPrice
		pos.PriceCurrency = ep.PriceCurrency
		if ep.Multiplier > 0 {
			pos.Multiplier = ep.Multiplier
		}
		r.Positions = append(r.Positions, pos)
	}
	return r, nil
}

func listBrokerDirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading statement directory %s: %w", dir, err)
	}
	var brokers []string
	for _, e := range entries {
		if e.IsDir() && !strings.EqualFold(e.Name(), "temp") {
			brokers = append(brokers, e.Name())
		}
	}
	sort.Strings(brokers)
	return brokers, nil
}

func loadPageImages(dir string) ([][]byte, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".png", ".jpg", ".jpeg":
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	pages := make([][]byte, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("reading page %s: %w", name, err)
		}
		pages = append(pages, data)
	}
	return pages, nil
}
