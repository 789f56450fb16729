package statements

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"fundmate/models"
	"fundmate/observability"
	"fundmate/options"
)

// excelPosition is one row pulled from a prime-broker position workbook
// before conversion into a portfolio position.
type excelPosition struct {
	Account       string
	Description   string
	Quantity      decimal.Decimal
	Strike        string
	ExpiryDate    string
	OptionType    string
	BuySell       string
	Underlyer     string
	BrokerPrice   decimal.Decimal
	PriceCurrency string
}

// ExcelPositionParser reads the option position workbooks that MS and GS
// deliver alongside PDF statements. Each broker has a fixed sheet layout;
// rows are read until the first empty description.
type ExcelPositionParser struct {
	registry *options.Registry
}

func NewExcelPositionParser(registry *options.Registry) *ExcelPositionParser {
	return &ExcelPositionParser{registry: registry}
}

// ParseDirectory walks dir expecting one subdirectory per broker
// (MS/, GS/, optionally with a date folder inside) and returns one result
// per broker that had any positions. Unknown broker directories are
// skipped with a warning rather than failing the run.
func (p *ExcelPositionParser) ParseDirectory(dir, date string) ([]*models.ProcessedResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			observability.Warn("excel position directory does not exist", "dir", dir)
			return nil, nil
		}
		return nil, fmt.Errorf("reading excel directory %s: %w", dir, err)
	}

	var results []*models.ProcessedResult
	for _, entry := range entries {
		if !entry.IsDir() || strings.EqualFold(entry.Name(), "temp") {
			continue
		}
		broker := strings.ToUpper(entry.Name())

		searchDir := filepath.Join(dir, entry.Name())
		if date != "" {
			if dated := filepath.Join(searchDir, date); dirExists(dated) {
				searchDir = dated
			}
		}
		files, err := walkExcelFiles(searchDir)
		if err != nil {
			return nil, err
		}
		if len(files) == 0 {
			observability.Info("no excel files for broker", "broker", broker)
			continue
		}

		result := models.NewProcessedResult(broker)
		result.StatementDate = date
		for _, file := range files {
			rows, err := p.parseFile(broker, file)
			if err != nil {
				return nil, err
			}
			for _, ep := range rows {
				pos, err := p.toPosition(broker, ep)
				if err != nil {
					return nil, fmt.Errorf("%s: %w", filepath.Base(file), err)
				}
				if result.AccountID == "" {
					result.AccountID = ep.Account
				}
				result.Positions = append(result.Positions, pos)
			}
			observability.Info("parsed excel position file",
				"broker", broker, "file", filepath.Base(file), "positions", len(rows))
		}
		if len(result.Positions) > 0 {
			results = append(results, result)
		}
	}
	return results, nil
}

func (p *ExcelPositionParser) parseFile(broker, path string) ([]excelPosition, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", filepath.Base(path), err)
	}
	defer f.Close()

	switch broker {
	case "MS":
		return parseMSSheet(f, filepath.Base(path))
	case "GS":
		return parseGSSheet(f, filepath.Base(path))
	default:
		observability.Warn("unknown excel broker layout, skipping file",
			"broker", broker, "file", filepath.Base(path))
		return nil, nil
	}
}

// parseMSSheet reads the Morgan Stanley layout: sheet "Equity-T1",
// header on row 11, data from row 12 until the description column runs
// out. Column positions are fixed by the broker's export.
func parseMSSheet(f *excelize.File, name string) ([]excelPosition, error) {
	rows, err := f.GetRows("Equity-T1")
	if err != nil {
		return nil, fmt.Errorf("sheet Equity-T1 missing in %s: %w", name, err)
	}

	var positions []excelPosition
	for i := 11; i < len(rows); i++ {
		row := rows[i]
		desc := strings.TrimSpace(cell(row, 5))
		if desc == "" {
			break
		}
		qty, err := parseDecimal(cell(row, 11))
		if err != nil {
			qty = decimal.Zero
		}
		price, _ := parseDecimal(cell(row, 14))
		positions = append(positions, excelPosition{
			Account:       strings.TrimSpace(cell(row, 1)),
			Description:   desc,
			Quantity:      qty,
			Strike:        strings.TrimSpace(cell(row, 7)),
			ExpiryDate:    strings.TrimSpace(cell(row, 6)),
			OptionType:    expandOptionType(cell(row, 10)),
			BuySell:       expandBuySell(cell(row, 8)),
			Underlyer:     underlyerFromOTC(desc),
			BrokerPrice:   price,
			PriceCurrency: strings.TrimSpace(cell(row, 13)),
		})
	}
	return positions, nil
}

// parseGSSheet reads the Goldman layout: first sheet, header on row 7,
// data from row 9 until account or description runs out.
func parseGSSheet(f *excelize.File, name string) ([]excelPosition, error) {
	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("reading first sheet of %s: %w", name, err)
	}

	var positions []excelPosition
	for i := 8; i < len(rows); i++ {
		row := rows[i]
		account := strings.TrimSpace(cell(row, 0))
		desc := strings.TrimSpace(cell(row, 4))
		if account == "" || desc == "" {
			break
		}
		qty, err := parseDecimal(cell(row, 8))
		if err != nil {
			qty = decimal.Zero
		}
		price, _ := parseDecimal(cell(row, 22))
		positions = append(positions, excelPosition{
			Account:       account,
			Description:   desc,
			Quantity:      qty,
			Strike:        strings.TrimSpace(cell(row, 14)),
			ExpiryDate:    strings.TrimSpace(cell(row, 13)),
			OptionType:    strings.TrimSpace(cell(row, 6)),
			BuySell:       strings.TrimSpace(cell(row, 3)),
			Underlyer:     strings.TrimSpace(cell(row, 9)),
			PriceCurrency: strings.TrimSpace(cell(row, 5)),
			BrokerPrice:   price,
		})
	}
	return positions, nil
}

// toPosition converts a workbook row into a portfolio position. When the
// row carries enough structure the stock code becomes the IB-style
// "UNDERLYER DDMMMYY STRIKE C/P" symbol; otherwise the raw description
// stands in.
func (p *ExcelPositionParser) toPosition(broker string, ep excelPosition) (*models.Position, error) {
	stockCode := ep.Description
	if sym, ok := formatOptionSymbol(ep); ok {
		stockCode = sym
	}

	holding := ep.Quantity
	if strings.EqualFold(ep.BuySell, "Sell") && holding.IsPositive() {
		holding = holding.Neg()
	}

	pos, err := models.NewPosition(p.registry, stockCode, holding, broker, models.ContextBase)
	if err != nil {
		return nil, err
	}
	pos.RawDescription = ep.Description
	pos.BrokerPrice = ep.BrokerPrice
	pos.PriceCurrency = ep.PriceCurrency
	return pos, nil
}

// formatOptionSymbol builds "TSLA 18JUN26 800 C" from a structured row.
func formatOptionSymbol(ep excelPosition) (string, bool) {
	if ep.Underlyer == "" || ep.ExpiryDate == "" || ep.Strike == "" || ep.OptionType == "" {
		return "", false
	}
	var t time.Time
	var err error
	for _, layout := range []string{"2006-01-02", "01/02/2006", "2006-01-02 15:04:05"} {
		if t, err = time.Parse(layout, ep.ExpiryDate); err == nil {
			break
		}
	}
	if err != nil {
		return "", false
	}
	strike, err := decimal.NewFromString(strings.ReplaceAll(ep.Strike, ",", ""))
	if err != nil {
		return "", false
	}
	cp := "P"
	if strings.HasPrefix(strings.ToUpper(ep.OptionType), "C") {
		cp = "C"
	}
	return fmt.Sprintf("%s %02d%s%02d %s %s",
		ep.Underlyer, t.Day(), strings.ToUpper(t.Format("Jan")), t.Year()%100,
		strike.String(), cp), true
}

func expandOptionType(s string) string {
	switch strings.TrimSpace(s) {
	case "C":
		return "Call"
	case "P":
		return "Put"
	default:
		return strings.TrimSpace(s)
	}
}

func expandBuySell(s string) string {
	switch strings.TrimSpace(s) {
	case "B":
		return "Buy"
	case "S":
		return "Sell"
	default:
		return strings.TrimSpace(s)
	}
}

// underlyerFromOTC pulls the numeric ticker out of OTC descriptions like
// "CALL OTC-1810 1.0@60.0 EXP 08/26/2026 XIAOMI-W (EURO)".
func underlyerFromOTC(description string) string {
	idx := strings.Index(description, "OTC-")
	if idx < 0 {
		return ""
	}
	rest := description[idx+len("OTC-"):]
	if end := strings.IndexByte(rest, ' '); end >= 0 {
		return rest[:end]
	}
	return rest
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
