// Package scalar implements the column encoder: it turns a tagged scalar
// value from the blockchain's narrow type taxonomy into the SQL-literal
// fragment a handler-generated INSERT statement concatenates.
package scalar

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
)

// Tag discriminates the scalar variants the encoder accepts. It is a closed
// set mirroring the blockchain's scalar taxonomy (spec.md §3); encoding
// dispatches on Tag alone, never on payload shape.
type Tag int

const (
	TagUnknown Tag = iota

	// fixed-width byte strings
	TagBytes4
	TagBytes8
	TagBytes32
	TagBytes64

	// tagged hashes — all render identically to a lower-hex string, the
	// tag only selects which column family they belong to.
	TagAddress
	TagAssetID
	TagContractID
	TagBlockID
	TagTxID
	TagNonce
	TagMessageID
	TagSalt
	TagSignature
	TagHexString

	// numeric
	TagInt1
	TagInt4
	TagInt8
	TagInt16
	TagUInt1
	TagUInt4
	TagUInt8
	TagUInt16

	// time
	TagTai64
	TagUnixTime

	TagBoolean
	TagBlob
	TagJSON
	TagVirtual
	TagCharField
	TagEnumName

	// Identity is a discriminated address-or-contract 32-byte value. Which
	// variant it carries only selects provenance; the rendered fragment is
	// identical either way (spec.md §4.1).
	TagIdentity

	// TagUID is the required unique-id variant. It never takes the null
	// form on write (spec.md §3 invariants); encoding a null UID is a
	// programming error, not a recoverable condition.
	TagUID

	// TagArray wraps a homogeneous slice of Values sharing one element Tag.
	TagArray
)

// IdentityKind distinguishes the two Identity provenances. Both render the
// same 32-byte hex fragment; the kind exists only for the caller's benefit.
type IdentityKind int

const (
	IdentityAddress IdentityKind = iota
	IdentityContract
)

// MaxArrayLength is the encoder's hard cap on array element count
// (spec.md §8: "An array of exactly MAX_ARRAY_LENGTH − 1 elements encodes;
// at MAX_ARRAY_LENGTH or above, encoding fails"). It matches the array
// bound carried by the source schema compiler (see
// original_source/packages/fuel-indexer-schema/src/lib.rs).
const MaxArrayLength = 65536

// Value is the encoder's input: a tagged scalar with an optional payload.
// A nil Payload means SQL NULL, except for TagUID where it is a fatal
// programming error (see Fragment).
type Value struct {
	Tag     Tag
	Payload any
}

// Array constructs a TagArray value. Elements must all share one Tag;
// that invariant is checked inside Fragment, not here, matching spec.md's
// "Array encoding requires all elements to share the same variant tag".
func Array(elems []Value) Value {
	return Value{Tag: TagArray, Payload: elems}
}

// Null returns a Value of the given tag carrying no payload.
func Null(tag Tag) Value {
	return Value{Tag: tag, Payload: nil}
}

// NonNullIDError is panicked by Fragment when a TagUID value carries a nil
// payload — the type system upstream (the schema compiler) is expected to
// have already forbidden this; if it reaches here it is a programming
// error, not a data error.
type NonNullIDError struct{}

func (NonNullIDError) Error() string { return "ID cannot be null" }

// ArrayTooLongError is returned (not panicked) when an array exceeds
// MaxArrayLength; this is a data-shape error a caller can legitimately hit.
type ArrayTooLongError struct{ Len int }

func (e ArrayTooLongError) Error() string {
	return fmt.Sprintf("scalar: array of length %d exceeds MAX_ARRAY_LENGTH (%d)", e.Len, MaxArrayLength)
}

// MixedArrayTagError is returned when array elements do not share one Tag.
type MixedArrayTagError struct {
	Want, Got Tag
}

func (e MixedArrayTagError) Error() string {
	return fmt.Sprintf("scalar: mixed array element tags: want %v got %v", e.Want, e.Got)
}

// Fragment renders v as a SQL-literal substring suitable for concatenation
// into an INSERT's VALUES list. It panics with NonNullIDError for a null
// TagUID value — every other error path returns an error instead.
func (v Value) Fragment() (string, error) {
	if v.Tag == TagUID && v.Payload == nil {
		panic(NonNullIDError{})
	}
	if v.Payload == nil {
		return "NULL", nil
	}

	switch v.Tag {
	case TagBytes4, TagBytes8, TagBytes32, TagBytes64,
		TagAddress, TagAssetID, TagContractID, TagBlockID, TagTxID,
		TagNonce, TagMessageID, TagSalt, TagSignature, TagUID:
		b, ok := v.Payload.([]byte)
		if !ok {
			return "", fmt.Errorf("scalar: tag %v expects []byte payload, got %T", v.Tag, v.Payload)
		}
		return quoteHex(b), nil

	case TagIdentity:
		id, ok := v.Payload.(Identity)
		if !ok {
			return "", fmt.Errorf("scalar: TagIdentity expects Identity payload, got %T", v.Payload)
		}
		return quoteHex(id.Inner[:]), nil

	case TagHexString:
		s, ok := v.Payload.(string)
		if !ok {
			return "", fmt.Errorf("scalar: TagHexString expects string payload, got %T", v.Payload)
		}
		return "'" + strings.ToLower(strings.TrimPrefix(s, "0x")) + "'", nil

	case TagInt1, TagInt4, TagInt8, TagInt16:
		n, ok := toInt64(v.Payload)
		if !ok {
			return "", fmt.Errorf("scalar: tag %v expects a signed integer payload, got %T", v.Tag, v.Payload)
		}
		return strconv.FormatInt(n, 10), nil

	case TagUInt1, TagUInt4, TagUInt8, TagUInt16, TagUnixTime:
		n, ok := toUint64(v.Payload)
		if !ok {
			return "", fmt.Errorf("scalar: tag %v expects an unsigned integer payload, got %T", v.Tag, v.Payload)
		}
		return strconv.FormatUint(n, 10), nil

	case TagBoolean:
		b, ok := v.Payload.(bool)
		if !ok {
			return "", fmt.Errorf("scalar: TagBoolean expects bool payload, got %T", v.Payload)
		}
		if b {
			return "true", nil
		}
		return "false", nil

	case TagTai64:
		n, ok := toUint64(v.Payload)
		if !ok {
			return "", fmt.Errorf("scalar: TagTai64 expects an unsigned integer payload, got %T", v.Payload)
		}
		var buf [8]byte
		binary.BigEndian.PutUint64(buf[:], n)
		return quoteHex(buf[:]), nil

	case TagBlob:
		b, ok := v.Payload.([]byte)
		if !ok {
			return "", fmt.Errorf("scalar: TagBlob expects []byte payload, got %T", v.Payload)
		}
		return quoteHex(b), nil

	case TagJSON, TagVirtual:
		s, ok := v.Payload.(string)
		if !ok {
			return "", fmt.Errorf("scalar: tag %v expects string (pre-validated JSON) payload, got %T", v.Tag, v.Payload)
		}
		return "'" + s + "'", nil

	case TagCharField, TagEnumName:
		s, ok := v.Payload.(string)
		if !ok {
			return "", fmt.Errorf("scalar: tag %v expects string payload, got %T", v.Tag, v.Payload)
		}
		return "'" + escapeSingleQuotes(s) + "'", nil

	case TagArray:
		elems, ok := v.Payload.([]Value)
		if !ok {
			return "", fmt.Errorf("scalar: TagArray expects []Value payload, got %T", v.Payload)
		}
		return fragmentArray(elems)

	default:
		return "", fmt.Errorf("scalar: unsupported tag %v", v.Tag)
	}
}

// Identity is the payload for TagIdentity: a 32-byte value tagged with
// which of the two provenances (address or contract) produced it.
type Identity struct {
	Kind  IdentityKind
	Inner [32]byte
}

func fragmentArray(elems []Value) (string, error) {
	if len(elems) == 0 {
		// Empty-as-null-with-inner-required-elements: the schema author
		// is expected to model an empty array as SQL NULL (spec.md §4.1).
		return "NULL", nil
	}
	if len(elems) >= MaxArrayLength {
		return "", ArrayTooLongError{Len: len(elems)}
	}

	want := elems[0].Tag
	parts := make([]string, len(elems))
	for i, e := range elems {
		if e.Tag != want {
			return "", MixedArrayTagError{Want: want, Got: e.Tag}
		}
		frag, err := e.Fragment()
		if err != nil {
			return "", err
		}
		parts[i] = frag
	}

	out := "ARRAY [" + strings.Join(parts, ",") + "]"
	if want == TagJSON || want == TagVirtual {
		out += "::json[]"
	}
	return out, nil
}

func quoteHex(b []byte) string {
	return "'" + hex.EncodeToString(b) + "'"
}

func escapeSingleQuotes(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}

func toUint64(v any) (uint64, bool) {
	switch n := v.(type) {
	case uint:
		return uint64(n), true
	case uint8:
		return uint64(n), true
	case uint16:
		return uint64(n), true
	case uint32:
		return uint64(n), true
	case uint64:
		return n, true
	}
	return 0, false
}
