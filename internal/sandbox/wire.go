package sandbox

import (
	"encoding/json"
	"fmt"

	"indexer-engine/internal/scalar"
)

// wireValue is the JSON form of a scalar.Value crossing the sandbox
// boundary via ff_put_object/ff_put_many_to_many_record. The handler
// module serializes its column values this way; this type is the host
// side's half of that informal wire contract (spec.md §4.4: "these
// callbacks read UTF-8/byte arguments out of sandbox memory").
type wireValue struct {
	Tag   scalar.Tag  `json:"tag"`
	Null  bool        `json:"null,omitempty"`
	Bytes []byte      `json:"bytes,omitempty"`
	Int   int64       `json:"int,omitempty"`
	Uint  uint64      `json:"uint,omitempty"`
	Bool  bool        `json:"bool,omitempty"`
	Str   string      `json:"str,omitempty"`
	Array []wireValue `json:"array,omitempty"`
}

func (w wireValue) toScalar() (scalar.Value, error) {
	if w.Null {
		return scalar.Null(w.Tag), nil
	}

	switch w.Tag {
	case scalar.TagBytes4, scalar.TagBytes8, scalar.TagBytes32, scalar.TagBytes64,
		scalar.TagAddress, scalar.TagAssetID, scalar.TagContractID, scalar.TagBlockID,
		scalar.TagTxID, scalar.TagNonce, scalar.TagMessageID, scalar.TagSalt,
		scalar.TagSignature, scalar.TagUID, scalar.TagBlob:
		return scalar.Value{Tag: w.Tag, Payload: w.Bytes}, nil

	case scalar.TagInt1, scalar.TagInt4, scalar.TagInt8, scalar.TagInt16:
		return scalar.Value{Tag: w.Tag, Payload: w.Int}, nil

	case scalar.TagUInt1, scalar.TagUInt4, scalar.TagUInt8, scalar.TagUInt16,
		scalar.TagUnixTime, scalar.TagTai64:
		return scalar.Value{Tag: w.Tag, Payload: w.Uint}, nil

	case scalar.TagBoolean:
		return scalar.Value{Tag: w.Tag, Payload: w.Bool}, nil

	case scalar.TagHexString, scalar.TagJSON, scalar.TagVirtual,
		scalar.TagCharField, scalar.TagEnumName:
		return scalar.Value{Tag: w.Tag, Payload: w.Str}, nil

	case scalar.TagArray:
		elems := make([]scalar.Value, len(w.Array))
		for i, we := range w.Array {
			v, err := we.toScalar()
			if err != nil {
				return scalar.Value{}, err
			}
			elems[i] = v
		}
		return scalar.Array(elems), nil

	default:
		return scalar.Value{}, fmt.Errorf("sandbox: unrecognized wire tag %v", w.Tag)
	}
}

// putObjectCall is the ff_put_object wire payload: a type id plus its
// column values (spec.md §4.3 put_object(type_id, columns)).
type putObjectCall struct {
	TypeID  uint64      `json:"type_id"`
	Columns []wireValue `json:"columns"`
}

// putManyToManyCall is the ff_put_many_to_many_record wire payload.
type putManyToManyCall struct {
	Table   string      `json:"table"`
	Columns []wireValue `json:"columns"`
}

func decodeColumns(wv []wireValue) ([]scalar.Value, error) {
	out := make([]scalar.Value, len(wv))
	for i, w := range wv {
		v, err := w.toScalar()
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func decodePutObjectCall(raw []byte) (putObjectCall, error) {
	var call putObjectCall
	if err := json.Unmarshal(raw, &call); err != nil {
		return putObjectCall{}, fmt.Errorf("sandbox: decode ff_put_object call: %w", err)
	}
	return call, nil
}

func decodePutManyToManyCall(raw []byte) (putManyToManyCall, error) {
	var call putManyToManyCall
	if err := json.Unmarshal(raw, &call); err != nil {
		return putManyToManyCall{}, fmt.Errorf("sandbox: decode ff_put_many_to_many_record call: %w", err)
	}
	return call, nil
}
