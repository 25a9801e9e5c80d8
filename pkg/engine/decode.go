package engine

import (
	"fmt"
	"math/big"
	"strings"

	gethabi "github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/lynx-network/lynx-indexer/pkg/sink"
)

// selectEvents returns the ABI events to index. An empty selection means every non-anonymous event.
func selectEvents(contract gethabi.ABI, names []string) (map[common.Hash]gethabi.Event, error) {
	out := map[common.Hash]gethabi.Event{}
	if len(names) == 0 {
		for _, ev := range contract.Events {
			if !ev.Anonymous {
				out[ev.ID] = ev
			}
		}
		return out, nil
	}
	for _, name := range names {
		ev, ok := contract.Events[name]
		if !ok {
			return nil, fmt.Errorf("event %q not found in ABI", name)
		}
		if ev.Anonymous {
			return nil, fmt.Errorf("event %q is anonymous and cannot be filtered by topic", name)
		}
		out[ev.ID] = ev
	}
	return out, nil
}

// decodeLog turns a raw log into an Event. ok is false for logs whose topic0 is not selected.
func decodeLog(events map[common.Hash]gethabi.Event, chainID uint64, lg types.Log) (ev sink.Event, ok bool, err error) {
	if len(lg.Topics) == 0 {
		return sink.Event{}, false, nil
	}
	abiEvent, ok := events[lg.Topics[0]]
	if !ok {
		return sink.Event{}, false, nil
	}

	args := map[string]any{}
	if err := abiEvent.Inputs.UnpackIntoMap(args, lg.Data); err != nil {
		return sink.Event{}, false, fmt.Errorf("unpack %s data at %s:%d: %w", abiEvent.Name, lg.TxHash.Hex(), lg.Index, err)
	}
	var indexed gethabi.Arguments
	for _, in := range abiEvent.Inputs {
		if in.Indexed {
			indexed = append(indexed, in)
		}
	}
	if err := gethabi.ParseTopicsIntoMap(args, indexed, lg.Topics[1:]); err != nil {
		return sink.Event{}, false, fmt.Errorf("unpack %s topics at %s:%d: %w", abiEvent.Name, lg.TxHash.Hex(), lg.Index, err)
	}
	for k, v := range args {
		args[k] = normalize(v)
	}

	return sink.Event{
		ChainID:     chainID,
		Contract:    strings.ToLower(lg.Address.Hex()),
		Name:        abiEvent.Name,
		Signature:   abiEvent.Sig,
		BlockNumber: lg.BlockNumber,
		BlockHash:   lg.BlockHash.Hex(),
		TxHash:      lg.TxHash.Hex(),
		TxIndex:     lg.TxIndex,
		LogIndex:    lg.Index,
		Removed:     lg.Removed,
		Args:        args,
	}, true, nil
}

// normalize converts ABI values into JSON-friendly forms. Integers become decimal strings
// so 256-bit values survive consumers that parse numbers as float64.
func normalize(v any) any {
	switch t := v.(type) {
	case *big.Int:
		return t.String()
	case common.Address:
		return t.Hex()
	case common.Hash:
		return t.Hex()
	case [32]byte:
		return hexutil.Encode(t[:])
	case []byte:
		return hexutil.Encode(t)
	case uint8, uint16, uint32, uint64, int8, int16, int32, int64:
		return fmt.Sprint(t)
	default:
		return v
	}
}
