// Package statements turns broker files into portfolio inputs: trade
// confirmation spreadsheets become transactions, position workbooks and
// extracted statement documents become per-broker results.
package statements

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"fundmate/models"
	"fundmate/observability"
	"fundmate/options"
)

// tcRequiredColumns must all be present in a trade confirmation sheet.
// Anything else in the file is ignored.
var tcRequiredColumns = []string{
	"Trade Date", "Stock Code", "BUY/SELL", "Quantity",
	"Avg. Price", "Amount (USD)", "Broker", "Currency",
}

var tcFilenameRe = regexp.MustCompile(`^TC-(\d{4}-\d{2}-\d{2})-`)

// TradeConfirmationParser reads standardized TC-{YYYY-MM-DD}-*.xlsx files
// and produces normalized transactions. Option codes are standardized to
// OCC form at parse time so the transaction engine only ever sees
// canonical codes.
type TradeConfirmationParser struct {
	resolver *options.HKATSResolver
}

func NewTradeConfirmationParser(resolver *options.HKATSResolver) *TradeConfirmationParser {
	return &TradeConfirmationParser{resolver: resolver}
}

// ParseFolder parses every TC file under folder and keeps transactions
// with trade dates in (baseDate, targetDate]. An empty result is an
// error: an update run with no fills means the folder or the range is
// wrong, and applying nothing would silently reproduce the base date.
func (p *TradeConfirmationParser) ParseFolder(ctx context.Context, folder, baseDate, targetDate string) ([]*models.Transaction, error) {
	matches, err := filepath.Glob(filepath.Join(folder, "TC-*.xlsx"))
	if err != nil {
		return nil, fmt.Errorf("scanning trade confirmation folder %s: %w", folder, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("no trade confirmation files in %s (expected TC-YYYY-MM-DD-*.xlsx)", folder)
	}
	sort.Strings(matches)

	var all []*models.Transaction
	for _, path := range matches {
		if _, err := ExtractTCDate(filepath.Base(path)); err != nil {
			return nil, err
		}
		txns, err := p.ParseFile(ctx, path)
		if err != nil {
			return nil, err
		}
		observability.Info("parsed trade confirmation file",
			"file", filepath.Base(path), "transactions", len(txns))
		all = append(all, txns...)
	}

	filtered := make([]*models.Transaction, 0, len(all))
	for _, txn := range all {
		if txn.Date > baseDate && txn.Date <= targetDate {
			filtered = append(filtered, txn)
		}
	}
	observability.Info("filtered transactions by trade date",
		"kept", len(filtered), "total", len(all),
		"base_date", baseDate, "target_date", targetDate)

	if len(filtered) == 0 {
		return nil, fmt.Errorf(
			"no transactions in range (%s, %s]: check the folder, the dates, and that base date precedes target date",
			baseDate, targetDate)
	}
	return filtered, nil
}

// ExtractTCDate pulls the file date out of a standardized TC filename.
func ExtractTCDate(filename string) (string, error) {
	m := tcFilenameRe.FindStringSubmatch(filename)
	if m == nil {
		return "", fmt.Errorf("invalid trade confirmation filename %q (expected TC-YYYY-MM-DD-*.xlsx)", filename)
	}
	return m[1], nil
}

// ParseFile parses one trade confirmation workbook.
func (p *TradeConfirmationParser) ParseFile(ctx context.Context, path string) ([]*models.Transaction, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening trade confirmation %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("reading sheet %q of %s: %w", sheet, filepath.Base(path), err)
	}
	return p.parseRows(ctx, filepath.Base(path), rows)
}

func (p *TradeConfirmationParser) parseRows(ctx context.Context, filename string, rows [][]string) ([]*models.Transaction, error) {
	headerIdx, cols := findHeader(rows)
	if headerIdx < 0 {
		return nil, fmt.Errorf("no header row with %q found in %s", "Trade Date", filename)
	}

	var missing []string
	for _, col := range tcRequiredColumns {
		if _, ok := cols[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf(
			"invalid trade confirmation file %s: missing required columns %v (found %v)",
			filename, missing, headerNames(rows[headerIdx]))
	}

	var txns []*models.Transaction
	for i := headerIdx + 1; i < len(rows); i++ {
		row := rows[i]
		stockCode := strings.TrimSpace(cell(row, cols["Stock Code"]))
		if stockCode == "" {
			continue
		}

		txn, err := p.parseRow(ctx, row, cols, stockCode)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", filename, i+1, err)
		}
		txns = append(txns, txn)
	}
	return txns, nil
}

func (p *TradeConfirmationParser) parseRow(ctx context.Context, row []string, cols map[string]int, stockCode string) (*models.Transaction, error) {
	date, err := normalizeTradeDate(cell(row, cols["Trade Date"]))
	if err != nil {
		return nil, err
	}

	stockCode = cleanStockCode(stockCode)
	stockCode, err = options.Standardize(ctx, stockCode, p.resolver)
	if err != nil {
		return nil, err
	}

	quantity, err := parseDecimal(cell(row, cols["Quantity"]))
	if err != nil {
		return nil, fmt.Errorf("quantity for %s: %w", stockCode, err)
	}
	avgPrice, err := parseDecimal(cell(row, cols["Avg. Price"]))
	if err != nil {
		return nil, fmt.Errorf("avg price for %s: %w", stockCode, err)
	}
	amount, err := parseDecimal(cell(row, cols["Amount (USD)"]))
	if err != nil {
		return nil, fmt.Errorf("amount for %s: %w", stockCode, err)
	}

	market := ""
	if idx, ok := cols["Market/Exchange"]; ok {
		market = strings.TrimSpace(cell(row, idx))
	}

	return &models.Transaction{
		Date:      date,
		Broker:    strings.TrimSpace(cell(row, cols["Broker"])),
		StockCode: stockCode,
		Direction: normalizeTCDirection(cell(row, cols["BUY/SELL"])),
		Quantity:  quantity,
		AvgPrice:  avgPrice,
		AmountUSD: amount.Abs(), // US files sign amounts, Asia files do not
		Currency:  strings.TrimSpace(cell(row, cols["Currency"])),
		Market:    market,
	}, nil
}

// findHeader locates the row carrying "Trade Date". Some broker exports
// put a title row (or blank row) above the real header.
func findHeader(rows [][]string) (int, map[string]int) {
	for i, row := range rows {
		for _, c := range row {
			if strings.TrimSpace(c) == "Trade Date" {
				cols := make(map[string]int, len(row))
				for k, name := range row {
					if n := strings.TrimSpace(name); n != "" {
						cols[n] = k
					}
				}
				return i, cols
			}
		}
	}
	return -1, nil
}

func headerNames(row []string) []string {
	names := make([]string, 0, len(row))
	for _, c := range row {
		if n := strings.TrimSpace(c); n != "" {
			names = append(names, n)
		}
	}
	return names
}

func cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

// cleanStockCode strips Bloomberg decorations: the " Equity" suffix
// always, and a trailing " US" only when the code is a plain stock (US
// option long forms need it for parsing).
func cleanStockCode(code string) string {
	code = strings.ReplaceAll(code, " Equity", "")
	code = strings.TrimSpace(code)
	if strings.HasSuffix(code, " US") && !looksLikeOption(code) {
		code = strings.TrimSpace(code[:len(code)-3])
	}
	return code
}

var (
	tcDateRe   = regexp.MustCompile(`\d{2}/\d{2}/\d{2}`)
	tcStrikeRe = regexp.MustCompile(`\s+[CP]\d+`)
)

func looksLikeOption(code string) bool {
	upper := strings.ToUpper(code)
	return tcDateRe.MatchString(code) ||
		strings.Contains(upper, "PUT") ||
		strings.Contains(upper, "CALL") ||
		tcStrikeRe.MatchString(code)
}

// normalizeTCDirection collapses spacing so "BUY COVER" and "SELL SHORT"
// become single tokens.
func normalizeTCDirection(s string) string {
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(s)), " ", "")
}

// normalizeTradeDate accepts the date spellings Excel exports produce and
// returns YYYY-MM-DD.
func normalizeTradeDate(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", fmt.Errorf("empty trade date")
	}
	for _, layout := range []string{"2006-01-02", "01/02/2006", "01-02-06", "1/2/06", "02/01/2006 15:04:05", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	// Excel serial date numbers survive GetRows as plain integers.
	if serial, err := strconv.ParseFloat(s, 64); err == nil && serial > 20000 && serial < 80000 {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return "", fmt.Errorf("unrecognized trade date %q", s)
}

func parseDecimal(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty numeric cell")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid number %q", s)
	}
	return d, nil
}

// walkExcelFiles collects .xls/.xlsx paths under dir, skipping temp
// upload folders.
func walkExcelFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if strings.EqualFold(d.Name(), "temp") {
				return filepath.SkipDir
			}
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".xls", ".xlsx":
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}
