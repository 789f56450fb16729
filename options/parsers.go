package options

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"fundmate/observability"
)

var monthAbbrev = map[string]time.Month{
	"JAN": time.January, "FEB": time.February, "MAR": time.March,
	"APR": time.April, "MAY": time.May, "JUN": time.June,
	"JUL": time.July, "AUG": time.August, "SEP": time.September,
	"OCT": time.October, "NOV": time.November, "DEC": time.December,
}

// expiry builds a calendar date and rejects impossible ones, so a parser
// that claimed a code structurally can still fail and yield to the next.
func expiry(year int, month, day int) (time.Time, error) {
	m := time.Month(month)
	d := time.Date(year, m, day, 0, 0, 0, 0, time.UTC)
	if d.Year() != year || d.Month() != m || d.Day() != day {
		return time.Time{}, fmt.Errorf("invalid expiry date %04d-%02d-%02d", year, month, day)
	}
	return d, nil
}

// OTCParser claims any code carrying OTC markers. OTC contracts are kept
// as-is: they are broker-specific and not safely decomposable, so only the
// currency is inferred (HKD when the embedded OTC-#### ticker is numeric).
//
// Examples:
//
//	CALL OTC-0388 1.0@350.0 EXP 09/21/2026 HKEX (EURO)
//	3690.HK 180 28May27 CE OTC
type OTCParser struct{}

var otcTickerRe = regexp.MustCompile(`OTC-(\d{4})`)

func (*OTCParser) Name() string { return "otc" }

func (*OTCParser) CanParse(code string) bool {
	upper := strings.ToUpper(code)
	for _, kw := range []string{"OTC", "EURO", "AMERICAN"} {
		if strings.Contains(upper, kw) {
			return true
		}
	}
	return false
}

func (*OTCParser) Parse(code string) (ParsedOption, error) {
	currency := "USD"
	if otcTickerRe.MatchString(code) {
		// A purely numeric OTC ticker is an HK underlying.
		currency = "HKD"
	}
	return ParsedOption{
		Format:       FormatOTC,
		OriginalCode: code,
		Multiplier:   1, // broker-supplied multiplier expected downstream
		Currency:     currency,
	}, nil
}

// USOCCParser parses the OCC clearing format:
// TICKER(1-4 letters) + YYMMDD + C/P + strike*1000 in 5 digits.
//
// Example: SBET260116P41000 is a SBET 2026-01-16 41.00 PUT.
type USOCCParser struct{}

var occRe = regexp.MustCompile(`^([A-Z]{1,4})(\d{2})(\d{2})(\d{2})([CP])(\d{5})$`)

func (*USOCCParser) Name() string { return "us_occ" }

func (*USOCCParser) CanParse(code string) bool {
	return occRe.MatchString(code)
}

func (*USOCCParser) Parse(code string) (ParsedOption, error) {
	m := occRe.FindStringSubmatch(code)
	if m == nil {
		return ParsedOption{}, fmt.Errorf("invalid OCC format: %s", code)
	}
	yy, _ := strconv.Atoi(m[2])
	mm, _ := strconv.Atoi(m[3])
	dd, _ := strconv.Atoi(m[4])
	exp, err := expiry(2000+yy, mm, dd)
	if err != nil {
		return ParsedOption{}, err
	}
	strikeInt, _ := strconv.Atoi(m[6])
	optType := Call
	if m[5] == "P" {
		optType = Put
	}
	return ParsedOption{
		Format:       FormatUSOCC,
		OriginalCode: code,
		Underlying:   m[1],
		ExpiryDate:   exp,
		Strike:       float64(strikeInt) / 1000.0,
		OptionType:   optType,
		Multiplier:   100,
		Currency:     "USD",
	}, nil
}

// HKHKATSParser parses the two textual surface forms of HKATS letter-code
// contracts:
//
//	CLI 260629 20.00 CALL
//	(CLI.HK 20260629 CALL 20.0)
type HKHKATSParser struct{}

var (
	hkatsShortRe = regexp.MustCompile(`^([A-Z]{3})\s+(\d{6})\s+(\d+\.?\d*)\s+(CALL|PUT)$`)
	hkatsParenRe = regexp.MustCompile(`^\(([A-Z]{3})\.HK\s+(\d{8})\s+(CALL|PUT)\s+(\d+\.?\d*)\)$`)
)

func (*HKHKATSParser) Name() string { return "hk_hkats" }

func (*HKHKATSParser) CanParse(code string) bool {
	upper := strings.ToUpper(code)
	return hkatsShortRe.MatchString(upper) || hkatsParenRe.MatchString(upper)
}

func (p *HKHKATSParser) Parse(code string) (ParsedOption, error) {
	upper := strings.ToUpper(code)

	if m := hkatsShortRe.FindStringSubmatch(upper); m != nil {
		yy, _ := strconv.Atoi(m[2][:2])
		mm, _ := strconv.Atoi(m[2][2:4])
		dd, _ := strconv.Atoi(m[2][4:6])
		exp, err := expiry(2000+yy, mm, dd)
		if err != nil {
			return ParsedOption{}, err
		}
		return p.result(code, m[1], exp, m[3], m[4])
	}

	if m := hkatsParenRe.FindStringSubmatch(upper); m != nil {
		exp, err := time.ParseInLocation("20060102", m[2], time.UTC)
		if err != nil {
			return ParsedOption{}, fmt.Errorf("invalid HKATS expiry %q: %w", m[2], err)
		}
		return p.result(code, m[1], exp, m[4], m[3])
	}

	return ParsedOption{}, fmt.Errorf("cannot parse HKATS format: %s", code)
}

func (*HKHKATSParser) result(code, hkats string, exp time.Time, strike, optType string) (ParsedOption, error) {
	strikeF, err := strconv.ParseFloat(strike, 64)
	if err != nil {
		return ParsedOption{}, fmt.Errorf("invalid HKATS strike %q: %w", strike, err)
	}
	ot, err := OptionTypeFromString(optType)
	if err != nil {
		return ParsedOption{}, err
	}
	return ParsedOption{
		Format:        FormatHKHKATS,
		OriginalCode:  code,
		Underlying:    hkats,
		ExpiryDate:    exp,
		Strike:        strikeF,
		OptionType:    ot,
		Multiplier:    1000,
		Currency:      "HKD",
		HKATSResolved: true,
	}, nil
}

// USLongFormParser converts the trade-confirmation long form to OCC:
//
//	SBET US 01/16/26 P41   ->  SBET260116P41000
//	AMZN US 06/18/26 C300  ->  AMZN260618C30000
type USLongFormParser struct{}

var usLongRe = regexp.MustCompile(`^([A-Z]+)\s+US\s+(\d{2})/(\d{2})/(\d{2})\s+([CP])(\d+\.?\d*)$`)

func (*USLongFormParser) Name() string { return "us_long" }

func (*USLongFormParser) CanParse(code string) bool {
	return usLongRe.MatchString(strings.ToUpper(code))
}

func (*USLongFormParser) Parse(code string) (ParsedOption, error) {
	m := usLongRe.FindStringSubmatch(strings.ToUpper(code))
	if m == nil {
		return ParsedOption{}, fmt.Errorf("invalid US long format: %s", code)
	}
	mm, _ := strconv.Atoi(m[2])
	dd, _ := strconv.Atoi(m[3])
	yy, _ := strconv.Atoi(m[4])
	exp, err := expiry(2000+yy, mm, dd)
	if err != nil {
		return ParsedOption{}, err
	}
	strikeF, _ := strconv.ParseFloat(m[6], 64)
	optType := Call
	if m[5] == "P" {
		optType = Put
	}
	return ParsedOption{
		Format:       FormatUSOCC,
		OriginalCode: code,
		Underlying:   m[1],
		ExpiryDate:   exp,
		Strike:       strikeF,
		OptionType:   optType,
		Multiplier:   100,
		Currency:     "USD",
	}, nil
}

// USIBParser parses the IB statement surface form for US options, a
// letter ticker followed by a DDMMMYY expiry, the strike, and C/P:
//
//	TSLA 18JUN26 800 C
//	AMZN 18JUN26 300 C
//
// The result is normalized to the OCC representation with the standard
// contract multiplier of 100.
type USIBParser struct{}

var usIBRe = regexp.MustCompile(`^([A-Z]{1,5})\s+(\d{2})([A-Z]{3})(\d{2})\s+(\d+\.?\d*)\s+([CP])$`)

func (*USIBParser) Name() string { return "us_ib" }

func (*USIBParser) CanParse(code string) bool {
	return usIBRe.MatchString(strings.ToUpper(code))
}

func (*USIBParser) Parse(code string) (ParsedOption, error) {
	m := usIBRe.FindStringSubmatch(strings.ToUpper(code))
	if m == nil {
		return ParsedOption{}, fmt.Errorf("invalid US IB format: %s", code)
	}
	month, ok := monthAbbrev[m[3]]
	if !ok {
		return ParsedOption{}, fmt.Errorf("unknown month %q in %s", m[3], code)
	}
	dd, _ := strconv.Atoi(m[2])
	yy, _ := strconv.Atoi(m[4])
	exp, err := expiry(2000+yy, int(month), dd)
	if err != nil {
		return ParsedOption{}, err
	}
	strikeF, _ := strconv.ParseFloat(m[5], 64)
	optType := Call
	if m[6] == "P" {
		optType = Put
	}
	return ParsedOption{
		Format:       FormatUSOCC,
		OriginalCode: code,
		Underlying:   m[1],
		ExpiryDate:   exp,
		Strike:       strikeF,
		OptionType:   optType,
		Multiplier:   100,
		Currency:     "USD",
	}, nil
}

// HKNumericParser parses HK options quoted against the numeric stock code
// rather than the HKATS letter code, in either of two surface forms:
//
//	2628 HK 06/29/26 C20   (trade-confirmation form; C1 for China Connect)
//	2318 29SEP25 55 C      (IB statement form)
//
// The numeric code is resolved to its HKATS letter code through the
// injected resolver. Resolution is best-effort: when the quote service has
// no option chain for the code, the numeric code itself stands in as the
// underlying and HKATSResolved stays false. Downstream matching tolerates
// unresolved codes.
type HKNumericParser struct {
	resolver *HKATSResolver

	mu    sync.Mutex
	cache map[string]string // (numeric, expiry, strike, type) -> underlying
}

var (
	hkNumericTCRe = regexp.MustCompile(`^(\d{4})\s+(HK|C1)\s+(\d{2})/(\d{2})/(\d{2})\s+([CP])(\d+\.?\d*)$`)
	hkNumericIBRe = regexp.MustCompile(`^(\d{4})\s+(\d{2})([A-Z]{3})(\d{2})\s+(\d+\.?\d*)\s+([CP])$`)
)

// NewHKNumericParser builds the parser around a resolver. The resolver may
// be nil, in which case resolution is skipped and the numeric code is kept.
func NewHKNumericParser(resolver *HKATSResolver) *HKNumericParser {
	return &HKNumericParser{resolver: resolver, cache: make(map[string]string)}
}

func (*HKNumericParser) Name() string { return "hk_numeric" }

func (*HKNumericParser) CanParse(code string) bool {
	upper := strings.ToUpper(code)
	return hkNumericTCRe.MatchString(upper) || hkNumericIBRe.MatchString(upper)
}

func (p *HKNumericParser) Parse(code string) (ParsedOption, error) {
	upper := strings.ToUpper(code)

	if m := hkNumericTCRe.FindStringSubmatch(upper); m != nil {
		mm, _ := strconv.Atoi(m[3])
		dd, _ := strconv.Atoi(m[4])
		yy, _ := strconv.Atoi(m[5])
		exp, err := expiry(2000+yy, mm, dd)
		if err != nil {
			return ParsedOption{}, err
		}
		strikeF, _ := strconv.ParseFloat(m[7], 64)
		optType := Call
		if m[6] == "P" {
			optType = Put
		}
		return p.result(code, m[1], exp, strikeF, optType)
	}

	if m := hkNumericIBRe.FindStringSubmatch(upper); m != nil {
		month, ok := monthAbbrev[m[3]]
		if !ok {
			return ParsedOption{}, fmt.Errorf("unknown month %q in %s", m[3], code)
		}
		dd, _ := strconv.Atoi(m[2])
		yy, _ := strconv.Atoi(m[4])
		exp, err := expiry(2000+yy, int(month), dd)
		if err != nil {
			return ParsedOption{}, err
		}
		strikeF, _ := strconv.ParseFloat(m[5], 64)
		optType := Call
		if m[6] == "P" {
			optType = Put
		}
		return p.result(code, m[1], exp, strikeF, optType)
	}

	return ParsedOption{}, fmt.Errorf("cannot parse HK numeric format: %s", code)
}

func (p *HKNumericParser) result(code, numeric string, exp time.Time, strike float64, optType OptionType) (ParsedOption, error) {
	underlying, resolved, err := p.resolve(numeric, exp, strike, optType)
	if err != nil {
		return ParsedOption{}, err
	}
	return ParsedOption{
		Format:        FormatHKHKATS,
		OriginalCode:  code,
		Underlying:    underlying,
		ExpiryDate:    exp,
		Strike:        strike,
		OptionType:    optType,
		Multiplier:    1000,
		Currency:      "HKD",
		HKNumericCode: numeric,
		HKATSResolved: resolved,
	}, nil
}

// resolve caches by the full contract tuple so repeated trade-confirmation
// lines for one contract hit the quote service once at most. A transport
// failure propagates; "no option chain" degrades to the numeric code.
func (p *HKNumericParser) resolve(numeric string, exp time.Time, strike float64, optType OptionType) (string, bool, error) {
	if p.resolver == nil {
		observability.Debug("no resolver configured, keeping numeric HK code", "code", numeric)
		return numeric, false, nil
	}

	key := fmt.Sprintf("%s_%s_%g_%s", numeric, exp.Format("2006-01-02"), strike, optType)
	p.mu.Lock()
	if cached, ok := p.cache[key]; ok {
		p.mu.Unlock()
		return cached, !isAllDigits(cached), nil
	}
	p.mu.Unlock()

	hkats, err := p.resolver.Resolve(context.Background(), numeric)
	if err != nil {
		return "", false, err
	}

	p.mu.Lock()
	p.cache[key] = hkats
	p.mu.Unlock()

	return hkats, !isAllDigits(hkats), nil
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
