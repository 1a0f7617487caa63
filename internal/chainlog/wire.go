package chainlog

import (
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// rpcLog is the JSON-RPC log object carried by eth_subscription
// notifications. Only address, topics and data are mandatory.
type rpcLog struct {
	Address         *common.Address `json:"address"`
	Topics          []common.Hash   `json:"topics"`
	Data            *hexutil.Bytes  `json:"data"`
	BlockNumber     *hexutil.Uint64 `json:"blockNumber"`
	TransactionHash *common.Hash    `json:"transactionHash"`
	LogIndex        *hexutil.Uint   `json:"logIndex"`
	Removed         bool            `json:"removed"`
}

// ParseLog decodes a JSON-RPC log object. Bad hex or missing mandatory
// fields yield ErrMalformedLog.
func ParseLog(raw json.RawMessage) (types.Log, error) {
	var rl rpcLog
	if err := json.Unmarshal(raw, &rl); err != nil {
		return types.Log{}, fmt.Errorf("%w: %v", ErrMalformedLog, err)
	}
	if rl.Address == nil || rl.Data == nil {
		return types.Log{}, fmt.Errorf("%w: missing address or data", ErrMalformedLog)
	}

	log := types.Log{
		Address: *rl.Address,
		Topics:  rl.Topics,
		Data:    *rl.Data,
		Removed: rl.Removed,
	}
	if rl.BlockNumber != nil {
		log.BlockNumber = uint64(*rl.BlockNumber)
	}
	if rl.TransactionHash != nil {
		log.TxHash = *rl.TransactionHash
	}
	if rl.LogIndex != nil {
		log.Index = uint(*rl.LogIndex)
	}
	return log, nil
}
