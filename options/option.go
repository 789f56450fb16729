// Package options parses broker option contract codes across the formats
// seen on real statements (US OCC, HK HKATS, OTC, trade-confirmation long
// forms) and normalizes them to a single canonical representation.
package options

import (
	"fmt"
	"strings"
	"time"
)

// Format identifies which grammar a code was parsed under.
type Format string

const (
	FormatUSOCC       Format = "US_OCC"
	FormatHKHKATS     Format = "HK_HKATS"
	FormatOTC         Format = "OTC"
	FormatUnparseable Format = "UNPARSEABLE"
)

// OptionType is CALL or PUT.
type OptionType string

const (
	Call OptionType = "CALL"
	Put  OptionType = "PUT"
)

// OptionTypeFromString accepts full words or single letters, case-insensitive.
func OptionTypeFromString(s string) (OptionType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CALL", "C":
		return Call, nil
	case "PUT", "P":
		return Put, nil
	default:
		return "", fmt.Errorf("invalid option type %q: expected CALL/C or PUT/P", s)
	}
}

// ParsedOption is the unified output of every parser. It is a pure value:
// never mutated after creation.
type ParsedOption struct {
	Format       Format
	OriginalCode string

	// Core option fields. Zero values for non-options and OTC codes.
	Underlying string
	ExpiryDate time.Time
	Strike     float64
	OptionType OptionType

	// Market attributes.
	Multiplier int64
	Currency   string

	// HK-specific fields.
	HKNumericCode string
	HKATSResolved bool
}

// IsOption reports whether the code parsed under any option grammar.
// UNPARSEABLE codes are opaque equity-like identifiers, not options.
func (p ParsedOption) IsOption() bool {
	return p.Format != "" && p.Format != FormatUnparseable
}

// OCCCode reconstructs the canonical OCC representation for a standard
// option: TICKER + YYMMDD + C/P + strike*1000 zero-padded to 5 digits.
// Round-trips with the US OCC parser.
func (p ParsedOption) OCCCode() string {
	cp := "C"
	if p.OptionType == Put {
		cp = "P"
	}
	return fmt.Sprintf("%s%02d%02d%02d%s%05d",
		p.Underlying,
		p.ExpiryDate.Year()%100, int(p.ExpiryDate.Month()), p.ExpiryDate.Day(),
		cp,
		int(p.Strike*1000+0.5))
}

// unparseable is the sentinel result when no parser claims a code.
func unparseable(code string) ParsedOption {
	return ParsedOption{Format: FormatUnparseable, OriginalCode: code, Multiplier: 1, Currency: "USD"}
}
