package api

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Marshal encodes a message as JSON.
func Marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

// Unmarshal decodes a JSON message.
func Unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}

// ToStruct converts a message into its wire form.
func ToStruct(v interface{}) (*structpb.Struct, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "encode message")
	}
	return BytesToStruct(b)
}

// BytesToStruct converts an already-encoded JSON object into its wire form.
func BytesToStruct(b []byte) (*structpb.Struct, error) {
	s := &structpb.Struct{}
	if err := protojson.Unmarshal(b, s); err != nil {
		return nil, errors.Wrap(err, "decode message object")
	}
	return s, nil
}

// FromStruct decodes a wire message into v.
func FromStruct(s *structpb.Struct, v interface{}) error {
	if s == nil {
		return errors.New("nil message")
	}
	b, err := protojson.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "encode message object")
	}
	if err := json.Unmarshal(b, v); err != nil {
		return errors.Wrap(err, "decode message")
	}
	return nil
}
