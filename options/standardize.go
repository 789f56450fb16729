package options

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"fundmate/observability"
)

var (
	suffixRe     = regexp.MustCompile(`(?i)\s+(Equity|Option)$`)
	occLooseRe   = regexp.MustCompile(`^[A-Z0-9]+\d{6}[CP]\d{5}$`)
	tcOptionRe   = regexp.MustCompile(`^(?:[A-Z]{2}\s+)?([A-Z0-9]+)\s+([A-Z0-9]{2})\s+(\d{2})/(\d{2})/(\d{2})\s+([CP])(\d+)$`)
	datePatternRe = regexp.MustCompile(`\d{2}/\d{2}/\d{2}`)
)

// Standardize normalizes a trade-confirmation stock code to the canonical
// form positions use: options become OCC codes, plain tickers pass through.
//
//	SBET US 01/16/26 P41      ->  SBET260116P41000
//	2628 HK 06/29/26 C20      ->  CLI260629C20000 (via resolver)
//	GS 3690 HK 05/28/27 C180  ->  resolver(3690) + 270528C18000
//	AAPL, 1263 HK             ->  unchanged (stocks)
//
// Trade-confirmation files are operator-curated, so a code that carries a
// date pattern but matches no known option grammar is a data problem and
// fails loudly rather than passing through as an opaque identifier.
func Standardize(ctx context.Context, stockCode string, resolver *HKATSResolver) (string, error) {
	if stockCode == "" {
		return stockCode, nil
	}

	code := strings.TrimSpace(suffixRe.ReplaceAllString(stockCode, ""))

	// Already canonical OCC.
	if occLooseRe.MatchString(code) {
		return code, nil
	}

	if m := tcOptionRe.FindStringSubmatch(code); m != nil {
		ticker, market := m[1], strings.ToUpper(m[2])
		mm, dd, yy := m[3], m[4], m[5]
		cp := m[6]
		strike, _ := strconv.Atoi(m[7])

		// Numeric HK underlyings trade under HKATS letter codes.
		if isAllDigits(ticker) && (market == "HK" || market == "C1") {
			if resolver == nil {
				return "", fmt.Errorf("HK numeric code %q requires a resolver to standardize %q", ticker, stockCode)
			}
			resolved, err := resolver.Resolve(ctx, ticker)
			if err != nil {
				return "", err
			}
			ticker = resolved
		}

		occ := fmt.Sprintf("%s%s%s%s%s%05d", ticker, yy, mm, dd, cp, strike*1000)
		observability.Info("standardized trade-confirmation option code",
			"market", market, "from", stockCode, "to", occ)
		return occ, nil
	}

	// No date pattern means a plain stock ticker like "1263 HK" or "AAPL".
	if !datePatternRe.MatchString(code) {
		return code, nil
	}

	return "", fmt.Errorf(
		"unrecognized option format in trade confirmation: %q\n"+
			"expected formats:\n"+
			"  - '[PREFIX] TICKER MARKET MM/DD/YY C/P STRIKE' (e.g. 'SBET US 01/16/26 P41', '2628 HK 06/29/26 C20')\n"+
			"  - OCC 'TICKER + 6 digits + C/P + 5 digits' (e.g. 'SBET260116P41000')\n"+
			"fix the trade confirmation file before processing", stockCode)
}
