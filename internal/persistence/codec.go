package persistence

import (
	"bytes"
	"encoding/gob"
)

// encodeState serializes a state snapshot using encoding/gob. Callers must
// ensure the state type is gob-encodable.
func encodeState[S any](state S) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&state); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeState deserializes a state snapshot produced by encodeState.
func decodeState[S any](data []byte) (S, error) {
	var state S
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&state); err != nil {
		return state, err
	}
	return state, nil
}
