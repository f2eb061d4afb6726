package types

import (
	"encoding/json"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// wireValue is the on-the-wire shape for Value, used by both the BSON codec
// (WAL records and table .dat rows, SPEC_FULL.md §11) and the JSON codec
// (catalog.json column defaults).
type wireValue struct {
	Kind    Kind    `bson:"k" json:"k"`
	Integer int64   `bson:"i,omitempty" json:"i,omitempty"`
	Float   float64 `bson:"f,omitempty" json:"f,omitempty"`
	Str     string  `bson:"s,omitempty" json:"s,omitempty"`
	Boolean bool    `bson:"b,omitempty" json:"b,omitempty"`
	Json    string  `bson:"j,omitempty" json:"j,omitempty"`
}

func (v Value) toWire() wireValue {
	return wireValue{
		Kind:    v.kind,
		Integer: v.integer,
		Float:   v.float,
		Str:     v.str,
		Boolean: v.boolean,
		Json:    v.json,
	}
}

func (w wireValue) toValue() Value {
	return Value{
		kind:    w.Kind,
		integer: w.Integer,
		float:   w.Float,
		str:     w.Str,
		boolean: w.Boolean,
		json:    w.Json,
	}
}

// MarshalBSONValue implements bson.ValueMarshaler so Value can be embedded
// directly in BSON documents (WAL payloads, table .dat rows).
func (v Value) MarshalBSONValue() (byte, []byte, error) {
	return bson.MarshalValue(v.toWire())
}

// UnmarshalBSONValue implements bson.ValueUnmarshaler.
func (v *Value) UnmarshalBSONValue(bsonType byte, data []byte) error {
	var w wireValue
	raw := bson.RawValue{Type: bson.Type(bsonType), Value: data}
	if err := raw.Unmarshal(&w); err != nil {
		return fmt.Errorf("unmarshal value: %w", err)
	}
	*v = w.toValue()
	return nil
}

// MarshalJSON implements json.Marshaler for catalog.json column defaults.
func (v Value) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.toWire())
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*v = w.toValue()
	return nil
}
