// Package chainlog decodes launchpad router and market event logs into
// domain deltas. All functions are pure.
package chainlog

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"launchpad-terminal/internal/domain"
)

// ErrMalformedLog is returned for any payload that cannot be decoded.
// Callers drop the event and continue.
var ErrMalformedLog = errors.New("malformed log")

const (
	wordSize = 32
	// updateWords is the number of packed words in a market update payload.
	updateWords = 4
	// createdStrings is the number of dynamic strings in a creation payload:
	// name, symbol, metadata URI.
	createdStrings = 3
)

var (
	wad     = new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil))
	lowMask = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
)

// EventKind identifies which decoder applies to a log.
type EventKind int

// Event kinds
const (
	EventUnknown EventKind = iota
	EventMarketCreated
	EventMarketUpdate
)

// Topics holds the protocol topic hashes of the two consumed events.
type Topics struct {
	MarketCreated common.Hash
	MarketUpdate  common.Hash
}

// Classify selects the decoder for log by its first topic.
func (t Topics) Classify(log types.Log) EventKind {
	if len(log.Topics) == 0 {
		return EventUnknown
	}
	switch log.Topics[0] {
	case t.MarketCreated:
		return EventMarketCreated
	case t.MarketUpdate:
		return EventMarketUpdate
	}
	return EventUnknown
}

// DecodeMarketCreated decodes a router creation event. Market and token
// addresses are the low 20 bytes of topics[1] and topics[2]; data holds
// three ABI-encoded dynamic strings.
func DecodeMarketCreated(log types.Log) (domain.MarketCreated, error) {
	if len(log.Topics) < 3 {
		return domain.MarketCreated{}, fmt.Errorf("%w: market created: want 3 topics, got %d", ErrMalformedLog, len(log.Topics))
	}

	var fields [createdStrings]string
	for i := range fields {
		s, err := readString(log.Data, i)
		if err != nil {
			return domain.MarketCreated{}, fmt.Errorf("market created string %d: %w", i, err)
		}
		fields[i] = s
	}

	return domain.MarketCreated{
		MarketAddress: TopicAddress(log.Topics[1]),
		TokenAddress:  TopicAddress(log.Topics[2]),
		Name:          fields[0],
		Symbol:        fields[1],
		MetadataCID:   fields[2],
	}, nil
}

// DecodeMarketUpdate decodes a market update event. The payload is exactly
// four words: amountIn<<128|amountOut, isBuy, price (1e18 fixed point),
// buyCount<<128|sellCount.
func DecodeMarketUpdate(log types.Log) (domain.MarketUpdate, error) {
	if len(log.Data) != updateWords*wordSize {
		return domain.MarketUpdate{}, fmt.Errorf("%w: market update: want %d bytes, got %d", ErrMalformedLog, updateWords*wordSize, len(log.Data))
	}

	amountIn, amountOut := splitPacked(word(log.Data, 0))
	isBuy := word(log.Data, 1).Sign() != 0
	price := word(log.Data, 2)
	buys, sells := splitPacked(word(log.Data, 3))

	if !buys.IsInt64() || !sells.IsInt64() {
		return domain.MarketUpdate{}, fmt.Errorf("%w: market update: trade counts overflow", ErrMalformedLog)
	}

	u := domain.MarketUpdate{
		MarketAddress: strings.ToLower(log.Address.Hex()),
		AmountIn:      WeiToFloat(amountIn),
		AmountOut:     WeiToFloat(amountOut),
		IsBuy:         isBuy,
		Price:         WeiToFloat(price),
		BuyCount:      buys.Int64(),
		SellCount:     sells.Int64(),
	}
	if isBuy {
		u.VolumeDelta = u.AmountIn
	} else {
		u.VolumeDelta = u.AmountOut
	}
	return u, nil
}

// TopicAddress returns the lowercase hex address in the low 20 bytes of a
// left-padded topic.
func TopicAddress(topic common.Hash) string {
	return strings.ToLower(common.BytesToAddress(topic.Bytes()).Hex())
}

// WeiToFloat converts a 1e18 fixed-point integer to float64.
func WeiToFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(v), wad).Float64()
	return f
}

// word returns the i-th 32-byte word of data. Bounds are checked by callers.
func word(data []byte, i int) *big.Int {
	return new(big.Int).SetBytes(data[i*wordSize : (i+1)*wordSize])
}

// splitPacked splits a word into its high and low 128-bit halves.
func splitPacked(w *big.Int) (hi, lo *big.Int) {
	hi = new(big.Int).Rsh(w, 128)
	lo = new(big.Int).And(w, lowMask)
	return hi, lo
}

// readString reads the dynamic string whose offset sits in head slot i.
func readString(data []byte, slot int) (string, error) {
	offset, err := readUint(data, slot*wordSize)
	if err != nil {
		return "", err
	}
	length, err := readUint(data, offset)
	if err != nil {
		return "", err
	}
	start := offset + wordSize
	if length > len(data)-start {
		return "", fmt.Errorf("%w: string length %d at offset %d exceeds data (%d bytes)", ErrMalformedLog, length, offset, len(data))
	}
	return string(data[start : start+length]), nil
}

// readUint reads a 32-byte big-endian word at pos as a non-negative int
// that is usable as a slice index into data.
func readUint(data []byte, pos int) (int, error) {
	if pos < 0 || pos > len(data)-wordSize {
		return 0, fmt.Errorf("%w: word at %d past end of data (%d bytes)", ErrMalformedLog, pos, len(data))
	}
	v := new(big.Int).SetBytes(data[pos : pos+wordSize])
	if !v.IsInt64() || v.Int64() > int64(len(data)) {
		return 0, fmt.Errorf("%w: value %s at %d out of range", ErrMalformedLog, v, pos)
	}
	return int(v.Int64()), nil
}
