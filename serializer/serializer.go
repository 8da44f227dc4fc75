// Package serializer converts work item payloads to and from bytes.
package serializer

import (
	"encoding/json"
	"fmt"
)

// Serializer encodes and decodes values.
type Serializer interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error

	// Name returns the format identifier ("json", "msgpack").
	Name() string
}

// Format names.
const (
	NameJSON    = "json"
	NameMsgpack = "msgpack"
)

// ByName returns the serializer for name. Unknown names return an error.
func ByName(name string) (Serializer, error) {
	switch name {
	case NameJSON, "":
		return JSON{}, nil
	case NameMsgpack:
		return Msgpack{}, nil
	default:
		return nil, fmt.Errorf("foundatio/serializer: unknown format %q", name)
	}
}

// Default is the serializer used when none is configured.
var Default Serializer = JSON{}

// JSON uses encoding/json.
type JSON struct{}

func (JSON) Marshal(v any) ([]byte, error)      { return json.Marshal(v) }
func (JSON) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }
func (JSON) Name() string                       { return NameJSON }

// Msgpack uses MessagePack with json struct tags so payloads keep the same
// field names in both formats.
type Msgpack struct{}

func (Msgpack) Marshal(v any) ([]byte, error)      { return marshalMsgpack(v) }
func (Msgpack) Unmarshal(data []byte, v any) error { return unmarshalMsgpack(data, v) }

func (Msgpack) Name() string { return NameMsgpack }
