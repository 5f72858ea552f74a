package command

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/fxamacker/cbor/v2"
)

// Codec is the serialize/deserialize boundary for command and ack payloads.
type Codec interface {
	// Name returns the payload format name ("json" or "cbor").
	Name() string

	// Decode parses a payload into a generic document. The top level must be a map.
	Decode(payload []byte) (map[string]any, error)

	// EncodeAck serializes an acknowledgment.
	EncodeAck(ack Ack) ([]byte, error)
}

// NewCodec returns the codec for a payload format name.
func NewCodec(format string) (Codec, error) {
	switch strings.ToLower(format) {
	case "", "json":
		return JSONCodec{}, nil
	case "cbor":
		return NewCBORCodec()
	default:
		return nil, fmt.Errorf("unknown payload format %q", format)
	}
}

// ackWire is the on-the-wire acknowledgment. CommandID is a string, or the
// number 0 for the decode failure envelope.
type ackWire struct {
	CommandID any    `json:"commandId" cbor:"commandId"`
	Status    string `json:"status" cbor:"status"`
}

func toWire(ack Ack) ackWire {
	w := ackWire{CommandID: ack.CommandID, Status: string(ack.Status)}
	if ack.DecodeFailed {
		w.CommandID = 0
		w.Status = string(StatusFailed)
	}
	return w
}

// JSONCodec encodes payloads as JSON. Numbers decode as json.Number so
// command ids are echoed exactly as sent.
type JSONCodec struct{}

// Name returns "json".
func (JSONCodec) Name() string { return "json" }

// Decode parses a JSON object.
func (JSONCodec) Decode(payload []byte) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: payload is not an object", ErrDecode)
	}
	if dec.More() {
		return nil, fmt.Errorf("%w: trailing data after object", ErrDecode)
	}
	return doc, nil
}

// EncodeAck serializes ack as JSON.
func (JSONCodec) EncodeAck(ack Ack) ([]byte, error) {
	return json.Marshal(toWire(ack))
}

// CBORCodec encodes payloads as CBOR maps keyed by text strings.
type CBORCodec struct {
	enc cbor.EncMode
	dec cbor.DecMode
}

// NewCBORCodec creates a codec with canonical encoding.
func NewCBORCodec() (*CBORCodec, error) {
	enc, err := cbor.EncOptions{
		Sort:        cbor.SortCanonical,
		IndefLength: cbor.IndefLengthForbidden,
	}.EncMode()
	if err != nil {
		return nil, fmt.Errorf("cbor enc mode: %w", err)
	}
	dec, err := cbor.DecOptions{
		DefaultMapType: reflect.TypeOf(map[string]any(nil)),
		IndefLength:    cbor.IndefLengthForbidden,
	}.DecMode()
	if err != nil {
		return nil, fmt.Errorf("cbor dec mode: %w", err)
	}
	return &CBORCodec{enc: enc, dec: dec}, nil
}

// Name returns "cbor".
func (c *CBORCodec) Name() string { return "cbor" }

// Decode parses a CBOR map.
func (c *CBORCodec) Decode(payload []byte) (map[string]any, error) {
	var doc map[string]any
	if err := c.dec.Unmarshal(payload, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if doc == nil {
		return nil, fmt.Errorf("%w: payload is not a map", ErrDecode)
	}
	return doc, nil
}

// EncodeAck serializes ack as CBOR.
func (c *CBORCodec) EncodeAck(ack Ack) ([]byte, error) {
	return c.enc.Marshal(toWire(ack))
}
