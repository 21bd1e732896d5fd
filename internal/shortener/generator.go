package shortener

import (
	"context"
	"fmt"
	"regexp"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/tinylink/tinylink/internal/database"
)

const (
	// maxAttemptsPerLength bounds the retries at each code length before
	// escalating to a longer one.
	maxAttemptsPerLength = 10
	// maxLengthEscalation is how many extra characters the generator is
	// willing to add to keep the collision probability bounded as the
	// namespace fills.
	maxLengthEscalation = 3
)

var codePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{3,50}$`)

// ValidShortCode reports whether a code is well-formed: 3-50 characters from
// [A-Za-z0-9_-].
func ValidShortCode(code string) bool {
	return codePattern.MatchString(code)
}

// UniquenessOracle answers whether a short code is already taken. The
// persistent store is the implementation.
type UniquenessOracle interface {
	CodeExists(ctx context.Context, shortCode string) (bool, error)
}

// Generator produces unique short codes. It is purely generate-and-check:
// the record insert belongs to the caller, and the store's unique constraint
// resolves the race between the check and the insert.
type Generator struct {
	oracle     UniquenessOracle
	alphabet   string
	codeLength int
}

func NewGenerator(oracle UniquenessOracle, alphabet string, codeLength int) *Generator {
	return &Generator{
		oracle:     oracle,
		alphabet:   alphabet,
		codeLength: codeLength,
	}
}

// ValidateCustomCode checks a caller-supplied code for format and
// availability.
func (g *Generator) ValidateCustomCode(ctx context.Context, code string) error {
	const op = "shortener.Generator.ValidateCustomCode"

	if !ValidShortCode(code) {
		return fmt.Errorf("%s: %w", op, ErrInvalidShortCode)
	}

	exists, err := g.oracle.CodeExists(ctx, code)
	if err != nil {
		return fmt.Errorf("%s: failed to check code: %w", op, err)
	}
	if exists {
		return fmt.Errorf("%s: %w", op, database.ErrShortCodeExists)
	}

	return nil
}

// Generate draws random codes from the configured alphabet until an unused
// one is found. It retries at the default length, then escalates one
// character at a time up to three extra, each length with its own retry
// budget. Exhausting every level fails with ErrGenerationExhausted.
func (g *Generator) Generate(ctx context.Context) (string, error) {
	const op = "shortener.Generator.Generate"

	for length := g.codeLength; length <= g.codeLength+maxLengthEscalation; length++ {
		for attempt := 0; attempt < maxAttemptsPerLength; attempt++ {
			code, err := gonanoid.Generate(g.alphabet, length)
			if err != nil {
				return "", fmt.Errorf("%s: failed to generate code: %w", op, err)
			}

			exists, err := g.oracle.CodeExists(ctx, code)
			if err != nil {
				return "", fmt.Errorf("%s: failed to check code: %w", op, err)
			}
			if !exists {
				return code, nil
			}
		}
	}

	return "", fmt.Errorf("%s: %w", op, ErrGenerationExhausted)
}
