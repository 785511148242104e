package xerrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
)

func TestDeriveMatchesSentinel(t *testing.T) {
	err := Derive(ErrDimensionMismatch, "operator has %d rows, mesher %d", 10, 12)

	assert.True(t, errors.Is(err, ErrDimensionMismatch))
	assert.False(t, errors.Is(err, ErrInvalidArgument))
	assert.Equal(t, "operator has 10 rows, mesher 12", err.Detail)
	assert.Empty(t, ErrDimensionMismatch.Detail, "sentinel must not be mutated")
	assert.NotEmpty(t, err.Stack)
}

func TestClassification(t *testing.T) {
	wrapped := fmt.Errorf("rollback: %w", Derive(ErrNonFinite, "nan at t=%g", 0.5))

	assert.True(t, IsNumerical(wrapped))
	assert.False(t, IsConfiguration(wrapped))
	assert.True(t, IsConfiguration(ErrNotPositiveSemiDefinite))
	assert.True(t, IsUnsupported(ErrInvalidProcess))
	assert.False(t, IsUnsupported(errors.New("plain")))
}

func TestProtocolMapping(t *testing.T) {
	cases := []struct {
		err  *Error
		http int
		grpc codes.Code
	}{
		{ErrInvalidArgument, http.StatusBadRequest, codes.InvalidArgument},
		{ErrUnsupportedExercise, http.StatusUnprocessableEntity, codes.FailedPrecondition},
		{ErrSingularSystem, http.StatusInternalServerError, codes.Internal},
		{ErrDeadline, http.StatusGatewayTimeout, codes.DeadlineExceeded},
	}
	for _, c := range cases {
		assert.Equal(t, c.http, c.err.HTTPStatus(), c.err.Message)
		assert.Equal(t, c.grpc, c.err.GRPCCode(), c.err.Message)
	}
	assert.Equal(t, codes.DeadlineExceeded, ErrDeadline.ToGRPCStatus().Code())
}

func TestWrapKeepsTypedErrors(t *testing.T) {
	assert.Nil(t, Wrap(nil, ErrInternal, "x"))

	typed := Derive(ErrInvalidOptionType, "got %q", "straddle")
	assert.Same(t, typed, Wrap(fmt.Errorf("ctx: %w", typed), ErrInternal, "ignored"))

	plain := WrapInternal(errors.New("disk full"), "write cache")
	require.NotNil(t, plain)
	assert.Equal(t, ErrInternal, plain.Type)
	assert.Contains(t, plain.Error(), "disk full")
}

func TestFromError(t *testing.T) {
	_, ok := FromError(nil)
	assert.False(t, ok)
	e, ok := FromError(fmt.Errorf("outer: %w", ErrNotSquare))
	require.True(t, ok)
	assert.Equal(t, 400103, e.Code)
}

func TestDeriveCauseKeepsBoth(t *testing.T) {
	root := errors.New("toml: line 3")
	err := DeriveCause(ErrInvalidArgument, root, "read %s", "config.toml")

	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.ErrorIs(t, err, root)
	assert.Contains(t, err.Error(), "read config.toml")
	assert.Equal(t, "Unknown", ErrorType(99).String())
}
