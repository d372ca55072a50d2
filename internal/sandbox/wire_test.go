package sandbox

import (
	"encoding/json"
	"testing"

	"indexer-engine/internal/scalar"
)

func TestDecodePutObjectCall(t *testing.T) {
	raw, err := json.Marshal(putObjectCall{
		TypeID: 7,
		Columns: []wireValue{
			{Tag: scalar.TagUInt4, Uint: 42},
			{Tag: scalar.TagBlockID, Bytes: make([]byte, 32)},
			{Tag: scalar.TagHexString, Null: true},
		},
	})
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}

	call, err := decodePutObjectCall(raw)
	if err != nil {
		t.Fatalf("decodePutObjectCall failed: %v", err)
	}
	if call.TypeID != 7 || len(call.Columns) != 3 {
		t.Fatalf("unexpected call: %+v", call)
	}

	columns, err := decodeColumns(call.Columns)
	if err != nil {
		t.Fatalf("decodeColumns failed: %v", err)
	}
	if columns[0].Payload.(uint64) != 42 {
		t.Fatalf("expected uint column 42, got %v", columns[0].Payload)
	}
	if columns[2].Payload != nil {
		t.Fatalf("expected null column, got %v", columns[2].Payload)
	}
}

func TestDecodePutManyToManyCall(t *testing.T) {
	raw, err := json.Marshal(putManyToManyCall{
		Table: "pool_members",
		Columns: []wireValue{
			{Tag: scalar.TagUID, Bytes: make([]byte, 32)},
		},
	})
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	call, err := decodePutManyToManyCall(raw)
	if err != nil {
		t.Fatalf("decodePutManyToManyCall failed: %v", err)
	}
	if call.Table != "pool_members" || len(call.Columns) != 1 {
		t.Fatalf("unexpected call: %+v", call)
	}
}

func TestWireValueArrayRoundTrip(t *testing.T) {
	wv := wireValue{
		Tag: scalar.TagArray,
		Array: []wireValue{
			{Tag: scalar.TagUInt1, Uint: 1},
			{Tag: scalar.TagUInt1, Uint: 2},
		},
	}
	v, err := wv.toScalar()
	if err != nil {
		t.Fatalf("toScalar failed: %v", err)
	}
	elems, ok := v.Payload.([]scalar.Value)
	if !ok || len(elems) != 2 {
		t.Fatalf("unexpected array payload: %+v", v.Payload)
	}
}

func TestWireValueUnrecognizedTagFails(t *testing.T) {
	wv := wireValue{Tag: scalar.Tag(9999)}
	if _, err := wv.toScalar(); err == nil {
		t.Fatal("expected error for unrecognized tag")
	}
}

func TestDecodePutObjectCallInvalidJSON(t *testing.T) {
	if _, err := decodePutObjectCall([]byte("not json")); err == nil {
		t.Fatal("expected decode error")
	}
}
