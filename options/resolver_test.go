package options

import (
	"context"
	"errors"
	"testing"
)

type fakeChainSource struct {
	chains map[string]string
	err    error
	calls  int
}

func (s *fakeChainSource) GetOptionChain(_ context.Context, underlying string) (string, error) {
	s.calls++
	if s.err != nil {
		return "", s.err
	}
	contract, ok := s.chains[underlying]
	if !ok {
		return "", ErrNoOptionChain
	}
	return contract, nil
}

func TestResolverNormalizesAndCaches(t *testing.T) {
	source := &fakeChainSource{chains: map[string]string{
		"HK.02628": "HK.CLI260629C20000",
	}}
	r := NewHKATSResolver(source)

	// All spellings of the same code share one cache entry.
	for _, code := range []string{"2628", "02628", "HK.02628", " 2628 "} {
		got, err := r.Resolve(context.Background(), code)
		if err != nil {
			t.Fatalf("Resolve(%q): %v", code, err)
		}
		if got != "CLI" {
			t.Errorf("Resolve(%q) = %q, want CLI", code, got)
		}
	}
	if source.calls != 1 {
		t.Errorf("chain source calls = %d, want 1", source.calls)
	}
}

func TestResolverDegradesOnEmptyChain(t *testing.T) {
	source := &fakeChainSource{chains: map[string]string{}}
	r := NewHKATSResolver(source)

	got, err := r.Resolve(context.Background(), "0700")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != "700" {
		t.Errorf("degraded result = %q, want leading zeros stripped (700)", got)
	}

	// Degraded results are not cached; the next call retries the source.
	if _, err := r.Resolve(context.Background(), "0700"); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if source.calls != 2 {
		t.Errorf("chain source calls = %d, want 2 (no caching of fallbacks)", source.calls)
	}
}

func TestResolverPropagatesTransportFailure(t *testing.T) {
	source := &fakeChainSource{err: errors.New("connection refused")}
	r := NewHKATSResolver(source)

	_, err := r.Resolve(context.Background(), "2628")
	if err == nil {
		t.Fatal("expected transport error")
	}
	if !IsUnreachable(err) {
		t.Errorf("IsUnreachable(%v) = false, want true", err)
	}
}

func TestResolverRejectsNonNumericInput(t *testing.T) {
	r := NewHKATSResolver(&fakeChainSource{})

	for _, code := range []string{"", "CLI", "26A8"} {
		if _, err := r.Resolve(context.Background(), code); err == nil {
			t.Errorf("Resolve(%q): expected error", code)
		}
	}
}

func TestRegistryPropagatesUnreachableResolver(t *testing.T) {
	source := &fakeChainSource{err: errors.New("dial tcp: timeout")}
	reg := NewRegistry().WithHKNumeric(NewHKATSResolver(source))

	_, err := reg.Parse("2628 HK 06/29/26 C20")
	if err == nil {
		t.Fatal("expected unreachable error to surface through the registry")
	}
	if !IsUnreachable(err) {
		t.Errorf("IsUnreachable(%v) = false, want true", err)
	}
}
