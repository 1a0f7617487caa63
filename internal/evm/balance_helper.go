package evm

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// balanceHelperABI is the read-only balance helper contract interface.
const balanceHelperABI = `[
	{"type":"function","name":"balanceOf","stateMutability":"view",
	 "inputs":[{"name":"account","type":"address"},{"name":"token","type":"address"}],
	 "outputs":[{"name":"","type":"uint256"}]},
	{"type":"function","name":"batchBalanceOf","stateMutability":"view",
	 "inputs":[{"name":"account","type":"address"},{"name":"tokens","type":"address[]"}],
	 "outputs":[{"name":"","type":"uint256[]"}]}
]`

// BalanceHelperABI is the parsed balance helper ABI.
var BalanceHelperABI = mustParseABI(balanceHelperABI)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("parse abi: %v", err))
	}
	return parsed
}

// Caller performs eth_call at a block.
type Caller interface {
	CallAt(ctx context.Context, to common.Address, data []byte, block *uint64) ([]byte, error)
}

// BalanceHelper reads token balances through the on-chain helper contract.
type BalanceHelper struct {
	caller  Caller
	address common.Address
}

// NewBalanceHelper creates a helper bound to the contract at address.
func NewBalanceHelper(caller Caller, address common.Address) *BalanceHelper {
	return &BalanceHelper{caller: caller, address: address}
}

// BalanceOf returns one token balance of account at block.
func (h *BalanceHelper) BalanceOf(ctx context.Context, account, token common.Address, block *uint64) (*big.Int, error) {
	data, err := BalanceHelperABI.Pack("balanceOf", account, token)
	if err != nil {
		return nil, fmt.Errorf("pack balanceOf: %w", err)
	}
	out, err := h.caller.CallAt(ctx, h.address, data, block)
	if err != nil {
		return nil, fmt.Errorf("balanceOf call: %w", err)
	}
	values, err := BalanceHelperABI.Unpack("balanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("unpack balanceOf: %w", err)
	}
	bal, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unpack balanceOf: unexpected type %T", values[0])
	}
	return bal, nil
}

// BatchBalanceOf returns balances of account for every token at block, in
// token order.
func (h *BalanceHelper) BatchBalanceOf(ctx context.Context, account common.Address, tokens []common.Address, block *uint64) ([]*big.Int, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	data, err := BalanceHelperABI.Pack("batchBalanceOf", account, tokens)
	if err != nil {
		return nil, fmt.Errorf("pack batchBalanceOf: %w", err)
	}
	out, err := h.caller.CallAt(ctx, h.address, data, block)
	if err != nil {
		return nil, fmt.Errorf("batchBalanceOf call: %w", err)
	}
	values, err := BalanceHelperABI.Unpack("batchBalanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("unpack batchBalanceOf: %w", err)
	}
	balances, ok := values[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("unpack batchBalanceOf: unexpected type %T", values[0])
	}
	if len(balances) != len(tokens) {
		return nil, fmt.Errorf("batchBalanceOf: got %d balances for %d tokens", len(balances), len(tokens))
	}
	return balances, nil
}
