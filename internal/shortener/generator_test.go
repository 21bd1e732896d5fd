package shortener

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/tinylink/tinylink/internal/database"
)

const testAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

type MockOracle struct {
	mock.Mock
}

func (o *MockOracle) CodeExists(ctx context.Context, shortCode string) (bool, error) {
	args := o.Called(ctx, shortCode)
	return args.Bool(0), args.Error(1)
}

func TestValidShortCode(t *testing.T) {
	valid := []string{"abc", "my-link", "my_link", "Abc123", strings.Repeat("a", 50)}
	for _, code := range valid {
		assert.True(t, ValidShortCode(code), code)
	}

	invalid := []string{"", "ab", strings.Repeat("a", 51), "bad code", "bad!", "ünïcode"}
	for _, code := range invalid {
		assert.False(t, ValidShortCode(code), code)
	}
}

func TestGenerator_ValidateCustomCode(t *testing.T) {
	t.Run("invalid format", func(t *testing.T) {
		oracle := new(MockOracle)
		gen := NewGenerator(oracle, testAlphabet, 7)

		err := gen.ValidateCustomCode(context.Background(), "ab")

		assert.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidShortCode)
		oracle.AssertNotCalled(t, "CodeExists")
	})

	t.Run("code taken", func(t *testing.T) {
		oracle := new(MockOracle)
		oracle.On("CodeExists", mock.Anything, "taken").Once().Return(true, nil)
		gen := NewGenerator(oracle, testAlphabet, 7)

		err := gen.ValidateCustomCode(context.Background(), "taken")

		assert.Error(t, err)
		assert.ErrorIs(t, err, database.ErrShortCodeExists)
		oracle.AssertExpectations(t)
	})

	t.Run("success", func(t *testing.T) {
		oracle := new(MockOracle)
		oracle.On("CodeExists", mock.Anything, "my-link").Once().Return(false, nil)
		gen := NewGenerator(oracle, testAlphabet, 7)

		err := gen.ValidateCustomCode(context.Background(), "my-link")

		assert.NoError(t, err)
		oracle.AssertExpectations(t)
	})
}

func TestGenerator_Generate(t *testing.T) {
	t.Run("first attempt free", func(t *testing.T) {
		oracle := new(MockOracle)
		oracle.On("CodeExists", mock.Anything, mock.Anything).Once().Return(false, nil)
		gen := NewGenerator(oracle, testAlphabet, 7)

		code, err := gen.Generate(context.Background())

		assert.NoError(t, err)
		assert.Len(t, code, 7)
		for _, c := range code {
			assert.Contains(t, testAlphabet, string(c))
		}
		oracle.AssertExpectations(t)
	})

	t.Run("escalates length under collision pressure", func(t *testing.T) {
		oracle := new(MockOracle)
		oracle.On("CodeExists", mock.Anything, mock.MatchedBy(func(code string) bool {
			return len(code) == 4
		})).Times(maxAttemptsPerLength).Return(true, nil)
		oracle.On("CodeExists", mock.Anything, mock.MatchedBy(func(code string) bool {
			return len(code) == 5
		})).Once().Return(false, nil)
		gen := NewGenerator(oracle, testAlphabet, 4)

		code, err := gen.Generate(context.Background())

		assert.NoError(t, err)
		assert.Len(t, code, 5)
		oracle.AssertExpectations(t)
	})

	t.Run("exhausted after every escalation level", func(t *testing.T) {
		oracle := new(MockOracle)
		oracle.On("CodeExists", mock.Anything, mock.Anything).
			Times(maxAttemptsPerLength * (maxLengthEscalation + 1)).
			Return(true, nil)
		gen := NewGenerator(oracle, testAlphabet, 4)

		code, err := gen.Generate(context.Background())

		assert.Error(t, err)
		assert.ErrorIs(t, err, ErrGenerationExhausted)
		assert.Empty(t, code)
		oracle.AssertExpectations(t)
	})

	t.Run("oracle error", func(t *testing.T) {
		oracle := new(MockOracle)
		oracle.On("CodeExists", mock.Anything, mock.Anything).Once().Return(false, errUnknown)
		gen := NewGenerator(oracle, testAlphabet, 7)

		code, err := gen.Generate(context.Background())

		assert.Error(t, err)
		assert.ErrorIs(t, err, errUnknown)
		assert.Empty(t, code)
		oracle.AssertExpectations(t)
	})
}
