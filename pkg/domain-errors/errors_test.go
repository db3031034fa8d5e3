package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(cause, CodeInternal, "failed to save entry")

	require.Error(t, err)
	assert.ErrorIs(t, err, cause)
	assert.True(t, HasCode(err, CodeInternal))
	assert.Equal(t, "failed to save entry: disk full", err.Error())
	assert.NoError(t, Wrap(nil, CodeInternal, "nothing"))
}

func TestGetCodeThroughFmtWrapping(t *testing.T) {
	err := fmt.Errorf("submit vote: %w", New(CodeInvalidSignature, "signer is not an active oracle"))
	assert.Equal(t, CodeInvalidSignature, GetCode(err))
	assert.Equal(t, CodeInternal, GetCode(errors.New("plain")))
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		code Code
		want Kind
	}{
		{CodeForbidden, KindAuthorization},
		{CodeUnauthorized, KindAuthorization},
		{CodeValidation, KindValidation},
		{CodeInvariantViolation, KindValidation},
		{CodeNotFound, KindState},
		{CodeInvalidState, KindState},
		{CodeConflict, KindState},
		{CodeInvalidSignature, KindSignature},
		{CodeInternal, KindInternal},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(New(tt.code, "x")))
		})
	}
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindInternal, KindOf(errors.New("untyped")))
}
