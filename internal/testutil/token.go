package testutil

import "github.com/google/uuid"

// TokenGenerator produces run tokens that correlate everything a scenario
// run touched: trace events, mock server request records, broker messages.
type TokenGenerator interface {
	Generate() string
}

// FixedTokenGenerator always returns the same token.
//
// Golden-file comparison needs the token embedded in traces to be stable
// across runs. The token is typically set in the scenario YAML:
//
//	run_token: "run-00000000-0000-0000-0000-000000000001"
//
// If token is empty, Generate returns "run-default".
type FixedTokenGenerator struct {
	token string
}

// NewFixedTokenGenerator creates a generator with the given fixed token.
func NewFixedTokenGenerator(token string) *FixedTokenGenerator {
	if token == "" {
		token = "run-default"
	}
	return &FixedTokenGenerator{token: token}
}

// Generate returns the fixed token.
func (g *FixedTokenGenerator) Generate() string {
	return g.token
}

// UUIDTokenGenerator returns a fresh UUID per call. Used outside golden
// comparison, where uniqueness matters more than stability.
type UUIDTokenGenerator struct{}

// Generate returns a new random UUID string.
func (UUIDTokenGenerator) Generate() string {
	return uuid.NewString()
}
