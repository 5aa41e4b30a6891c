package p2p

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// wireVersion is bumped whenever FillWire changes incompatibly.
const wireVersion = 1

func init() {
	gob.Register(FillWire{})
}

// FillWire is the gossip message for one fill instruction.
type FillWire struct {
	Version uint8
	Fill    []byte // JSON trader.FillPayload, the same bytes the settlement layer takes
}

func encodeFill(fillJSON []byte) ([]byte, error) {
	return gobEncode(FillWire{Version: wireVersion, Fill: fillJSON})
}

func decodeFill(b []byte) ([]byte, error) {
	var w FillWire
	if err := gobDecode(b, &w); err != nil {
		return nil, err
	}
	if w.Version != wireVersion {
		return nil, fmt.Errorf("unsupported wire version %d", w.Version)
	}
	return w.Fill, nil
}

func gobEncode(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
func gobDecode(b []byte, v any) error {
	return gob.NewDecoder(bytes.NewReader(b)).Decode(v)
}
