package domain_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jhoicas/ecf-dgii/internal/domain"
)

func TestError_IsKindAndCause(t *testing.T) {
	cause := errors.New("EOF")
	err := fmt.Errorf("enviar: %w", domain.NewError(domain.ErrSubmissionRejected, "submit", "RNC no autorizado", cause))

	assert.ErrorIs(t, err, domain.ErrSubmissionRejected)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, domain.ErrCredentialRejected)
	assert.Equal(t, "RNC no autorizado", domain.RawMessage(err))
	assert.Equal(t, "submit", domain.StepOf(err))
	assert.Contains(t, err.Error(), "RNC no autorizado")
}

func TestIsRecoverable(t *testing.T) {
	assert.True(t, domain.IsRecoverable(domain.NewError(domain.ErrTransient, "track", "", nil)))
	assert.True(t, domain.IsRecoverable(domain.ErrAuthUnavailable))
	assert.False(t, domain.IsRecoverable(domain.ErrCredentialRejected))
	assert.False(t, domain.IsRecoverable(domain.ErrSequenceExhausted))
	assert.Empty(t, domain.RawMessage(errors.New("plano")))
}
