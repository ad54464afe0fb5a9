package chain

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/nspcc-dev/neo-go/pkg/util"
)

// =============================================================================
// Stack Item Parsers
// =============================================================================

// ParseArray extracts the elements of an Array or Struct item.
func ParseArray(item StackItem) ([]StackItem, error) {
	if item.Type != "Array" && item.Type != "Struct" {
		return nil, fmt.Errorf("expected Array or Struct, got %s", item.Type)
	}

	var items []StackItem
	if err := json.Unmarshal(item.Value, &items); err != nil {
		return nil, fmt.Errorf("unmarshal array: %w", err)
	}
	return items, nil
}

// ParseByteArray decodes a ByteString or Buffer item. RPC nodes encode
// their contents as base64.
func ParseByteArray(item StackItem) ([]byte, error) {
	switch item.Type {
	case "ByteString", "Buffer":
		var value string
		if err := json.Unmarshal(item.Value, &value); err != nil {
			return nil, err
		}
		return base64.StdEncoding.DecodeString(value)
	case "Null", "Any":
		return nil, nil
	}
	return nil, fmt.Errorf("unexpected type for bytes: %s", item.Type)
}

// ParseHash160 decodes a script hash item. A Null item (minting or
// burning side of a transfer) yields the zero hash.
func ParseHash160(item StackItem) (util.Uint160, error) {
	b, err := ParseByteArray(item)
	if err != nil {
		return util.Uint160{}, err
	}
	if b == nil {
		return util.Uint160{}, nil
	}
	return util.Uint160DecodeBytesBE(b)
}

func ParseInteger(item StackItem) (*big.Int, error) {
	if item.Type != "Integer" {
		return nil, fmt.Errorf("unexpected type for integer: %s", item.Type)
	}
	var value string
	if err := json.Unmarshal(item.Value, &value); err != nil {
		return nil, err
	}
	n, ok := new(big.Int).SetString(value, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", value)
	}
	return n, nil
}
