package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyTxError(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		insufficient bool
	}{
		{"funds", errors.New("execution reverted: Insufficient funds for gas * price + value"), true},
		{"erc20", errors.New("ERC20: transfer amount exceeds balance"), true},
		{"other", errors.New("user rejected the request"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			txErr := ClassifyTxError(ActionSwap, tt.err)
			require.NotNil(t, txErr)
			assert.Equal(t, tt.insufficient, errors.Is(txErr, ErrInsufficientBalance))
			assert.Contains(t, txErr.Error(), "swap")
		})
	}

	assert.Nil(t, ClassifyTxError(ActionSend, nil))
}

func TestStatusText(t *testing.T) {
	assert.Equal(t, "Swap pending", StatusText(ActionSwap, TxPending))
	assert.Equal(t, "Approval confirmed", StatusText(ActionApprove, TxConfirmed))
	assert.Equal(t, "Unwrap failed", StatusText(ActionUnwrap, TxFailed))
	assert.Equal(t, "action(42)", ActionKind(42).String())
}

func TestHasValue(t *testing.T) {
	assert.False(t, HasValue(nil))
	assert.False(t, HasValue([]PortfolioDataPoint{{Value: 0}, {Value: 0}}))
	assert.True(t, HasValue([]PortfolioDataPoint{{Value: 0}, {Value: 0.5}}))
}
