package task

import (
	"bytes"
	"encoding/binary"
	"errors"
	"sort"
)

// ArgKind tags a Arg as either an inline literal or a reference to another
// task's result. This replaces the source system's runtime type check
// (detecting a task reference by isinstance) with an explicit tagged sum,
// since a systems-language payload has no dynamic type to inspect once it
// has been through the wire encoding.
type ArgKind uint8

const (
	ArgLiteral ArgKind = iota
	ArgRef
)

// Arg is a tagged union: either an inline byte literal, or a reference to
// the eventual result of another task. Exactly one of Literal/Ref is
// meaningful, selected by Kind.
type Arg struct {
	Kind    ArgKind
	Literal []byte
	Ref     string
}

// Lit wraps an already-encoded literal payload.
func Lit(b []byte) Arg { return Arg{Kind: ArgLiteral, Literal: b} }

// RefArg builds a reference to the result of taskID.
func RefArg(taskID string) Arg { return Arg{Kind: ArgRef, Ref: taskID} }

const payloadVersion byte = 1

var ErrUnknownPayloadVersion = errors.New("task: unknown payload encoding version")

// EncodeArg renders a into the versioned wire form: a leading version byte,
// a kind byte, then either a length-prefixed literal or a length-prefixed
// reference id. Explicit versioning lets a future encoding change reject
// payloads it does not understand instead of silently misreading them,
// unlike the source's native object pickling.
func EncodeArg(a Arg) []byte {
	var buf bytes.Buffer
	buf.WriteByte(payloadVersion)
	buf.WriteByte(byte(a.Kind))
	switch a.Kind {
	case ArgRef:
		writeLP(&buf, []byte(a.Ref))
	default:
		writeLP(&buf, a.Literal)
	}
	return buf.Bytes()
}

// DecodeArg reverses EncodeArg, rejecting any version it does not
// recognize.
func DecodeArg(data []byte) (Arg, error) {
	if len(data) < 2 {
		return Arg{}, ErrUnknownPayloadVersion
	}
	if data[0] != payloadVersion {
		return Arg{}, ErrUnknownPayloadVersion
	}
	kind := ArgKind(data[1])
	body, _, err := readLP(data[2:])
	if err != nil {
		return Arg{}, err
	}
	switch kind {
	case ArgRef:
		return Arg{Kind: ArgRef, Ref: string(body)}, nil
	case ArgLiteral:
		return Arg{Kind: ArgLiteral, Literal: body}, nil
	default:
		return Arg{}, ErrUnknownPayloadVersion
	}
}

func writeLP(buf *bytes.Buffer, b []byte) {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	buf.Write(lenBuf[:])
	buf.Write(b)
}

func readLP(data []byte) (body []byte, rest []byte, err error) {
	if len(data) < 4 {
		return nil, nil, ErrUnknownPayloadVersion
	}
	n := binary.BigEndian.Uint32(data[:4])
	data = data[4:]
	if uint32(len(data)) < n {
		return nil, nil, ErrUnknownPayloadVersion
	}
	return data[:n], data[n:], nil
}

// CanonicalEncode produces the deterministic byte stream hashed into a
// task's identity: the app reference, the positional args in order, then
// the keyword args sorted by key. Kwargs are sorted because Go map
// iteration order is randomized and task identity must be stable across
// processes.
func CanonicalEncode(appRef string, args []Arg, kwargs map[string]Arg) []byte {
	var buf bytes.Buffer
	writeLP(&buf, []byte(appRef))

	var argCountBuf [4]byte
	binary.BigEndian.PutUint32(argCountBuf[:], uint32(len(args)))
	buf.Write(argCountBuf[:])
	for _, a := range args {
		buf.Write(EncodeArg(a))
	}

	keys := make([]string, 0, len(kwargs))
	for k := range kwargs {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var kwCountBuf [4]byte
	binary.BigEndian.PutUint32(kwCountBuf[:], uint32(len(keys)))
	buf.Write(kwCountBuf[:])
	for _, k := range keys {
		writeLP(&buf, []byte(k))
		buf.Write(EncodeArg(kwargs[k]))
	}
	return buf.Bytes()
}
