package bus

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, KindNone},
		{"plain error", errors.New("boom"), KindFault},
		{"sentinel cancel", ErrCancelled, KindCancelled},
		{"wrapped sentinel", fmt.Errorf("stop: %w", ErrCancelled), KindCancelled},
		{"Cancelled helper", Cancelled(errors.New("user abort")), KindCancelled},
		{"Cancelled nil", Cancelled(nil), KindCancelled},
		{"context canceled", context.Canceled, KindCancelled},
		{"deadline", context.DeadlineExceeded, KindCancelled},
		{"panic with string", &PanicError{Value: "bad"}, KindFault},
		{"panic with context error", &PanicError{Value: context.Canceled}, KindCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestCancelledKeepsCause(t *testing.T) {
	cause := errors.New("user abort")
	err := Cancelled(cause)

	assert.ErrorIs(t, err, cause)
	assert.ErrorIs(t, err, ErrCancelled)
	assert.Equal(t, "cancelled: user abort", err.Error())
}

func TestErrorKindString(t *testing.T) {
	assert.Equal(t, "NONE", KindNone.String())
	assert.Equal(t, "CANCELLED", KindCancelled.String())
	assert.Equal(t, "FAULT", KindFault.String())
	assert.Equal(t, "UNKNOWN", ErrorKind(42).String())
}

func TestPanicErrorMessage(t *testing.T) {
	err := &PanicError{Value: 42}
	assert.Equal(t, "handler panic: 42", err.Error())
	assert.Nil(t, err.Unwrap())
}
