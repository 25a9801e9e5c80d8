// Package abi loads contract interface descriptions (ABI JSON documents).
package abi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	gethabi "github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/lynx-network/lynx-indexer/pkg/utils"
)

var (
	// ErrNotFound is returned when the ABI path does not exist.
	ErrNotFound = errors.New("ABI file not found")
	// ErrMalformed is returned when the ABI file is not valid JSON.
	ErrMalformed = errors.New("ABI file is not valid JSON")
)

// Description is a loaded interface description. Raw is the document as read;
// Value is the same document decoded into plain Go values.
type Description struct {
	Raw   json.RawMessage
	Value any
}

// Exists reports whether an ABI file is present at path.
func Exists(path string) bool {
	return utils.FileExists(path)
}

// Load reads and decodes the ABI at path.
func Load(path string) (Description, error) {
	if !Exists(path) {
		return Description{}, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Description{}, fmt.Errorf("read ABI %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes an in-memory ABI document.
func Parse(raw []byte) (Description, error) {
	raw = bytes.TrimSpace(raw)
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return Description{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return Description{Raw: json.RawMessage(raw), Value: v}, nil
}

// Contract interprets the description as an Ethereum contract ABI.
// Hardhat/Truffle artifacts that wrap the array under "abi" are unwrapped.
func (d Description) Contract() (gethabi.ABI, error) {
	raw := d.Raw
	if obj, ok := d.Value.(map[string]any); ok {
		inner, ok := obj["abi"]
		if !ok {
			return gethabi.ABI{}, errors.New("ABI document is an object without an \"abi\" field")
		}
		b, err := json.Marshal(inner)
		if err != nil {
			return gethabi.ABI{}, err
		}
		raw = b
	}
	parsed, err := gethabi.JSON(bytes.NewReader(raw))
	if err != nil {
		return gethabi.ABI{}, fmt.Errorf("parse contract ABI: %w", err)
	}
	return parsed, nil
}

// MarshalJSON emits the original document.
func (d Description) MarshalJSON() ([]byte, error) {
	if len(d.Raw) == 0 {
		return []byte("null"), nil
	}
	return d.Raw, nil
}
