package statements

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"fundmate/options"
)

func TestFormatOptionSymbol(t *testing.T) {
	tests := []struct {
		name string
		ep   excelPosition
		want string
		ok   bool
	}{
		{
			name: "full structure",
			ep: excelPosition{
				Underlyer:  "TSLA",
				ExpiryDate: "2026-06-18",
				Strike:     "800",
				OptionType: "Call",
			},
			want: "TSLA 18JUN26 800 C",
			ok:   true,
		},
		{
			name: "us date format put",
			ep: excelPosition{
				Underlyer:  "SBET",
				ExpiryDate: "01/16/2026",
				Strike:     "41",
				OptionType: "Put",
			},
			want: "SBET 16JAN26 41 P",
			ok:   true,
		},
		{
			name: "missing strike falls back",
			ep:   excelPosition{Underlyer: "TSLA", ExpiryDate: "2026-06-18", OptionType: "Call"},
			ok:   false,
		},
		{
			name: "unusable date falls back",
			ep:   excelPosition{Underlyer: "TSLA", ExpiryDate: "June 18th", Strike: "800", OptionType: "Call"},
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := formatOptionSymbol(tt.ep)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if ok && got != tt.want {
				t.Errorf("symbol = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUnderlyerFromOTC(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"CALL OTC-1810 1.0@60.0 EXP 08/26/2026 XIAOMI-W (EURO)", "1810"},
		{"PUT OTC-0700", "0700"},
		{"APPLE INC", ""},
	}
	for _, tt := range tests {
		if got := underlyerFromOTC(tt.in); got != tt.want {
			t.Errorf("underlyerFromOTC(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseDirectoryMSLayout(t *testing.T) {
	root := t.TempDir()
	msDir := filepath.Join(root, "MS")
	if err := os.MkdirAll(msDir, 0o755); err != nil {
		t.Fatal(err)
	}

	f := excelize.NewFile()
	sheet := "Equity-T1"
	idx, err := f.NewSheet(sheet)
	if err != nil {
		t.Fatal(err)
	}
	f.SetActiveSheet(idx)

	// Header on row 11, data from row 12 (1-based), per the MS export.
	set := func(row, col int, value interface{}) {
		cellRef, err := excelize.CoordinatesToCellName(col+1, row+1)
		if err != nil {
			t.Fatal(err)
		}
		if err := f.SetCellValue(sheet, cellRef, value); err != nil {
			t.Fatal(err)
		}
	}
	set(10, 5, "Und Description")
	set(11, 1, "ACC-1")
	set(11, 5, "CALL OTC-1810 1.0@60.0 EXP 08/26/2026 XIAOMI-W (EURO)")
	set(11, 8, "S")
	set(11, 10, "C")
	set(11, 11, "1,000")
	set(11, 13, "HKD")
	set(11, 14, "2.5")

	path := filepath.Join(msDir, "positions.xlsx")
	if err := f.SaveAs(path); err != nil {
		t.Fatal(err)
	}
	f.Close()

	parser := NewExcelPositionParser(options.NewRegistry())
	results, err := parser.ParseDirectory(root, "")
	if err != nil {
		t.Fatalf("ParseDirectory: %v", err)
	}
	if len(results) != 1 || results[0].BrokerName != "MS" {
		t.Fatalf("results = %+v, want one MS result", results)
	}

	pos := results[0].Positions[0]
	// Sell rows carry negative holdings.
	if !pos.Holding.Equal(decimal.NewFromInt(-1000)) {
		t.Errorf("holding = %s, want -1000", pos.Holding)
	}
	if !pos.BrokerPrice.Equal(decimal.NewFromFloat(2.5)) || pos.PriceCurrency != "HKD" {
		t.Errorf("price = %s %s, want 2.5 HKD", pos.BrokerPrice, pos.PriceCurrency)
	}
	if results[0].AccountID != "ACC-1" {
		t.Errorf("account = %q, want ACC-1", results[0].AccountID)
	}
}

func TestParseDirectoryMissingIsNotFatal(t *testing.T) {
	parser := NewExcelPositionParser(options.NewRegistry())
	results, err := parser.ParseDirectory(filepath.Join(t.TempDir(), "nope"), "")
	if err != nil {
		t.Fatalf("ParseDirectory on missing dir: %v", err)
	}
	if results != nil {
		t.Errorf("results = %+v, want nil", results)
	}
}
