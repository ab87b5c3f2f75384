package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDepositStatusIsTerminal(t *testing.T) {
	assert.False(t, DepositStatusPending.IsTerminal())
	assert.True(t, DepositStatusSuccess.IsTerminal())
	assert.True(t, DepositStatusFailed.IsTerminal())
	assert.True(t, DepositStatusCanceled.IsTerminal())
}

func TestParsePaymentMethod(t *testing.T) {
	m, ok := ParsePaymentMethod("BCA")
	assert.True(t, ok)
	assert.Equal(t, PaymentMethodBCA, m)

	_, ok = ParsePaymentMethod("Bitcoin")
	assert.False(t, ok)

	// Регистр значим: каналы оплаты хранятся в каноническом виде.
	_, ok = ParsePaymentMethod("bca")
	assert.False(t, ok)
}

func TestDecisionTerminalStatus(t *testing.T) {
	assert.Equal(t, DepositStatusSuccess, DecisionApprove.TerminalStatus())
	assert.Equal(t, DepositStatusFailed, DecisionReject.TerminalStatus())
	assert.Equal(t, DepositStatusCanceled, DecisionCancel.TerminalStatus())
}

func TestParseDepositDecision(t *testing.T) {
	d, ok := ParseDepositDecision("approve")
	assert.True(t, ok)
	assert.Equal(t, DecisionApprove, d)

	_, ok = ParseDepositDecision("maybe")
	assert.False(t, ok)
}
