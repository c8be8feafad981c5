package transport

import (
	"reflect"

	"github.com/ugorji/go/codec"
)

/*
	The wire codec: JSON, with numbers in untyped fields decoded as
	float64 and objects as string-keyed maps, the way a browser would
	have sent them.
*/
var Codec = newCodec()

func newCodec() *codec.JsonHandle {
	h := &codec.JsonHandle{}
	h.MapType = reflect.TypeOf(map[string]interface{}(nil))
	h.PreferFloat = true
	return h
}

func Encode(v interface{}) ([]byte, error) {
	var b []byte
	if err := codec.NewEncoderBytes(&b, Codec).Encode(v); err != nil {
		return nil, CodecError.Wrap(err)
	}
	return b, nil
}

func Decode(b []byte, into interface{}) error {
	if err := codec.NewDecoderBytes(b, Codec).Decode(into); err != nil {
		return CodecError.Wrap(err)
	}
	return nil
}
