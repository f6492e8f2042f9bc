package services

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mathscrap/mathscrap-backend/internal/logger"
)

func newValidator(t *testing.T) ValidatorService {
	t.Helper()
	log, err := logger.New("development")
	require.NoError(t, err)
	v, err := NewValidatorService(log)
	require.NoError(t, err)
	return v
}

func TestValidateSimplifies(t *testing.T) {
	v := newValidator(t)

	res := v.Validate("x^2+1")
	require.True(t, res.Valid)
	require.Equal(t, "x^2+1", res.Simplified)
	require.Equal(t, "x^2+1", res.OriginalLatex)
	require.Empty(t, res.Error)
}

func TestValidateSolvesLinearEquation(t *testing.T) {
	v := newValidator(t)

	res := v.Validate("2x+3=7")
	require.True(t, res.Valid)
	require.Equal(t, "x = 2", res.Simplified)
}

func TestValidateLatexCommands(t *testing.T) {
	v := newValidator(t)

	res := v.Validate(`\frac{x+1}{2}`)
	require.True(t, res.Valid)
	require.NotEmpty(t, res.Simplified)
}

func TestValidateEmptyExpression(t *testing.T) {
	v := newValidator(t)

	res := v.Validate("  ")
	require.False(t, res.Valid)
	require.Equal(t, "empty expression", res.Error)
}

func TestValidateUnparseable(t *testing.T) {
	v := newValidator(t)

	res := v.Validate("2+")
	require.False(t, res.Valid)
	require.NotEmpty(t, res.Error)
	require.Equal(t, "2+", res.OriginalLatex)
}
