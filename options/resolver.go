package options

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"fundmate/observability"
)

// ErrNoOptionChain is returned by an OptionChainSource when the quote
// service is reachable but carries no option chain for the underlying.
// This is the degraded (non-fatal) resolution path.
var ErrNoOptionChain = errors.New("no option chain for underlying")

// UnreachableError wraps a transport-level failure talking to the quote
// service. Unlike an empty chain, an unreachable service makes resolution
// impossible, so this error always propagates.
type UnreachableError struct {
	Err error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("quote service unreachable: %v", e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// IsUnreachable reports whether err stems from an unreachable quote service.
func IsUnreachable(err error) bool {
	var ue *UnreachableError
	return errors.As(err, &ue)
}

// OptionChainSource is the external dependency of the resolver: it returns
// the symbol of the first contract in the option chain for an underlying
// (for example "HK.CLI260629C20000" for "HK.02628"), ErrNoOptionChain when
// the chain is empty, or a transport error.
type OptionChainSource interface {
	GetOptionChain(ctx context.Context, underlying string) (string, error)
}

// HKATSResolver maps numeric Hong Kong stock codes to their HKATS option
// letter codes (2628 -> CLI). The mapping is a stable business fact, so
// successful resolutions are cached for the process lifetime. The cache is
// mutex-guarded; the reconciliation flow is single-threaded today but the
// resolver must stay safe if shared.
type HKATSResolver struct {
	source OptionChainSource

	mu    sync.Mutex
	cache map[string]string // zero-padded numeric -> HKATS letters
}

var hkatsPrefixRe = regexp.MustCompile(`^HK\.([A-Z]+)`)

// NewHKATSResolver builds a resolver around the given chain source.
func NewHKATSResolver(source OptionChainSource) *HKATSResolver {
	return &HKATSResolver{source: source, cache: make(map[string]string)}
}

// Resolve maps a numeric HK code (bare digits or "HK."-prefixed) to its
// HKATS letter code. When the quote service has no chain for the code the
// normalized numeric string itself is returned so processing can continue;
// callers detect the degraded case by checking for an all-digit result.
// A transport failure returns an *UnreachableError.
func (r *HKATSResolver) Resolve(ctx context.Context, numericCode string) (string, error) {
	if strings.TrimSpace(numericCode) == "" {
		return "", fmt.Errorf("empty HK numeric code cannot be resolved")
	}

	code := strings.ToUpper(strings.TrimSpace(numericCode))
	code = strings.TrimPrefix(code, "HK.")
	if !isAllDigits(code) {
		return "", fmt.Errorf("expected HK numeric code (digits only), got %q", numericCode)
	}

	n, err := strconv.Atoi(code)
	if err != nil {
		return "", fmt.Errorf("invalid HK numeric code %q: %w", numericCode, err)
	}
	key := fmt.Sprintf("%05d", n)

	r.mu.Lock()
	if hkats, ok := r.cache[key]; ok {
		r.mu.Unlock()
		observability.GetMetrics().RecordResolverCacheHit()
		return hkats, nil
	}
	r.mu.Unlock()

	contract, err := r.source.GetOptionChain(ctx, "HK."+key)
	if errors.Is(err, ErrNoOptionChain) {
		observability.Warn("no option chain for HK code, keeping numeric code",
			"code", numericCode)
		observability.GetMetrics().RecordResolverLookup("no_chain")
		return degradedFallback(code), nil
	}
	if err != nil {
		observability.GetMetrics().RecordResolverLookup("unreachable")
		return "", &UnreachableError{Err: err}
	}

	m := hkatsPrefixRe.FindStringSubmatch(contract)
	if m == nil {
		return "", fmt.Errorf("unexpected option chain symbol %q for %q", contract, numericCode)
	}

	hkats := m[1]
	r.mu.Lock()
	r.cache[key] = hkats
	r.mu.Unlock()

	observability.Info("resolved HK numeric code via option chain",
		"numeric", key, "hkats", hkats)
	observability.GetMetrics().RecordResolverLookup("resolved")
	return hkats, nil
}

// degradedFallback strips leading zeros so the fallback matches the form
// trade confirmations quote numeric codes in.
func degradedFallback(code string) string {
	trimmed := strings.TrimLeft(code, "0")
	if trimmed == "" {
		return "0"
	}
	return trimmed
}
