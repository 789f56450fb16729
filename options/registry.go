package options

import (
	"fundmate/observability"
)

// Parser is one format-specific option code parser. CanParse is a cheap
// structural check; Parse may still fail on a claimed code (for example an
// impossible calendar date), in which case the registry moves on to the
// next candidate.
type Parser interface {
	// Name labels the parser in logs.
	Name() string
	CanParse(code string) bool
	Parse(code string) (ParsedOption, error)
}

// Registry dispatches a raw code to an ordered list of parsers. Order is
// part of the contract: OTC detection runs before the structural grammars
// because OTC strings can incidentally look like standardized formats, and
// canonical formats run before the convertible long forms.
type Registry struct {
	parsers []Parser
}

// NewRegistry returns a registry with the default parser chain. The HK
// numeric parser is not part of the default chain: it needs an external
// resolver, so callers that can supply one (the trade-confirmation
// workflow) register it explicitly via WithHKNumeric.
func NewRegistry() *Registry {
	r := &Registry{}
	r.Register(&OTCParser{})
	r.Register(&USOCCParser{})
	r.Register(&HKHKATSParser{})
	r.Register(&USLongFormParser{})
	r.Register(&USIBParser{})
	return r
}

// Register appends a parser to the chain. Order matters.
func (r *Registry) Register(p Parser) {
	r.parsers = append(r.parsers, p)
}

// WithHKNumeric registers the HK numeric parser backed by the given
// resolver and returns the registry for chaining.
func (r *Registry) WithHKNumeric(resolver *HKATSResolver) *Registry {
	r.Register(NewHKNumericParser(resolver))
	return r
}

// Parse tries every registered parser in order and returns the first
// successful result. A code no parser claims yields the UNPARSEABLE
// sentinel, not an error: callers treat it as an opaque equity-like
// identifier. The only error Parse returns is a resolver transport
// failure, which cannot be papered over with a guess.
func (r *Registry) Parse(code string) (ParsedOption, error) {
	for _, p := range r.parsers {
		if !p.CanParse(code) {
			continue
		}
		parsed, err := p.Parse(code)
		if err != nil {
			if IsUnreachable(err) {
				return ParsedOption{}, err
			}
			observability.Warn("option parser failed, trying next",
				"parser", p.Name(), "code", code, "error", err)
			observability.GetMetrics().RecordOptionParseFailure(p.Name())
			continue
		}
		observability.GetMetrics().RecordOptionParse(string(parsed.Format))
		return parsed, nil
	}
	return unparseable(code), nil
}
