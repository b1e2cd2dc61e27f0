// Package snapshot compares values against golden files.
//
// Values are reduced to deterministic JSON (sorted keys, normalized
// strings, stable number formatting) before comparison, so a snapshot
// never churns because a map iterated in a different order. Volatile
// fields (generated IDs, timestamps) are scrubbed by redactors before
// encoding.
//
// Golden files live in testdata/golden with a .golden suffix and are
// regenerated with:
//
//	go test ./... -update
package snapshot

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sebdah/goldie/v2"

	"github.com/qakit/qakit/internal/canonical"
)

type config struct {
	dir       string
	suffix    string
	redactors []Redactor
}

// Option configures snapshot assertions.
type Option func(*config)

// WithDir overrides the golden fixture directory (default testdata/golden).
func WithDir(dir string) Option {
	return func(c *config) { c.dir = dir }
}

// WithRedactor adds redactors applied before encoding.
func WithRedactor(redactors ...Redactor) Option {
	return func(c *config) { c.redactors = append(c.redactors, redactors...) }
}

func newConfig(opts []Option) *config {
	c := &config{dir: "testdata/golden", suffix: ".golden"}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Assert encodes v deterministically and compares it against the golden
// file for name. Run tests with -update to (re)generate golden files.
func Assert(t *testing.T, name string, v any, opts ...Option) {
	t.Helper()

	c := newConfig(opts)
	data, err := Encode(v, c.redactors...)
	if err != nil {
		t.Fatalf("snapshot %s: %v", name, err)
	}

	g := goldie.New(t,
		goldie.WithFixtureDir(c.dir),
		goldie.WithNameSuffix(c.suffix),
	)
	g.Assert(t, name, data)
}

// Encode applies redactors and produces the canonical snapshot bytes.
func Encode(v any, redactors ...Redactor) ([]byte, error) {
	plain, err := canonical.ToPlain(v)
	if err != nil {
		return nil, fmt.Errorf("normalize value: %w", err)
	}
	for _, r := range redactors {
		plain = r.Redact(plain)
	}
	data, err := canonical.Marshal(plain)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}
	return data, nil
}

// Compare encodes both values and returns a diff, empty when they match.
// Programmatic counterpart to Assert for callers outside a test context.
func Compare(expected, actual any, redactors ...Redactor) (string, error) {
	expBytes, err := Encode(expected, redactors...)
	if err != nil {
		return "", fmt.Errorf("expected value: %w", err)
	}
	actBytes, err := Encode(actual, redactors...)
	if err != nil {
		return "", fmt.Errorf("actual value: %w", err)
	}
	if string(expBytes) == string(actBytes) {
		return "", nil
	}

	// Diff the normalized structures rather than raw JSON strings; go-cmp
	// output pinpoints the differing field.
	expPlain, _ := canonical.ToPlain(expected)
	actPlain, _ := canonical.ToPlain(actual)
	for _, r := range redactors {
		expPlain = r.Redact(expPlain)
		actPlain = r.Redact(actPlain)
	}
	return cmp.Diff(expPlain, actPlain), nil
}
