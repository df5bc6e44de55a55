// Package wireproto implements the RFC-3 PROTO framed message codec: a
// fixed 20-byte header, an ordered frame list (routes, topic, payload),
// routing-stack manipulation, and type/topic matching. Encoding and
// decoding follow the same encode-to-bytes/decode-from-bytes shape
// used for on-disk records elsewhere in this module, reworked around a
// bespoke binary header instead of JSON since bit-exact framing is the
// whole point of this codec.
package wireproto

import (
	"encoding/binary"
	"strings"

	"github.com/flux-framework/flux-core-go/pkg/ferror"
)

const (
	magicByte   byte = 0x8e
	versionByte byte = 0x01
	ProtoLen         = 20
)

// Type discriminates the four message kinds. The wire values below are
// bit-exact with the RFC-3 test vector (a REQUEST encodes as type byte
// 0x02, a RESPONSE as 0x01).
type Type byte

const (
	TypeResponse Type = 0x01
	TypeRequest  Type = 0x02
	TypeEvent    Type = 0x03
	TypeControl  Type = 0x04
)

func (t Type) String() string {
	switch t {
	case TypeRequest:
		return "request"
	case TypeResponse:
		return "response"
	case TypeEvent:
		return "event"
	case TypeControl:
		return "control"
	default:
		return "unknown"
	}
}

// Flags is the bitmask carried in the PROTO header.
type Flags byte

const (
	FlagTopic      Flags = 0x01
	FlagPayload    Flags = 0x02
	FlagNoResponse Flags = 0x04
	FlagRoute      Flags = 0x08
	FlagUpstream   Flags = 0x10
	FlagPrivate    Flags = 0x20
	FlagStreaming  Flags = 0x40
	FlagUser1      Flags = 0x80
)

func (f Flags) has(bit Flags) bool { return f&bit != 0 }
func (f Flags) set(bit Flags) Flags { return f | bit }
func (f Flags) clear(bit Flags) Flags { return f &^ bit }

var flagNames = []struct {
	bit  Flags
	name string
}{
	{FlagTopic, "topic"},
	{FlagPayload, "payload"},
	{FlagNoResponse, "noresponse"},
	{FlagRoute, "route"},
	{FlagUpstream, "upstream"},
	{FlagPrivate, "private"},
	{FlagStreaming, "streaming"},
	{FlagUser1, "user1"},
}

// String renders the set flag bits, '|'-separated, for debug output.
func (f Flags) String() string {
	var set []string
	for _, n := range flagNames {
		if f.has(n.bit) {
			set = append(set, n.name)
		}
	}
	return strings.Join(set, "|")
}

// NodeIDAny is the wildcard request nodeid (aux1 = 0xFFFFFFFF).
const NodeIDAny uint32 = 0xFFFFFFFF

// proto is the decoded fixed-size header.
type proto struct {
	typ      Type
	flags    Flags
	userid   uint32
	rolemask uint32
	aux1     uint32
	aux2     uint32
}

func encodeProto(p proto) []byte {
	b := make([]byte, ProtoLen)
	b[0] = magicByte
	b[1] = versionByte
	b[2] = byte(p.typ)
	b[3] = byte(p.flags)
	binary.BigEndian.PutUint32(b[4:8], p.userid)
	binary.BigEndian.PutUint32(b[8:12], p.rolemask)
	binary.BigEndian.PutUint32(b[12:16], p.aux1)
	binary.BigEndian.PutUint32(b[16:20], p.aux2)
	return b
}

func decodeProto(b []byte) (proto, error) {
	if len(b) != ProtoLen {
		return proto{}, ferror.New(ferror.Proto, "proto frame length %d != %d", len(b), ProtoLen)
	}
	if b[0] != magicByte || b[1] != versionByte {
		return proto{}, ferror.New(ferror.Proto, "bad magic/version %#x/%#x", b[0], b[1])
	}
	return proto{
		typ:      Type(b[2]),
		flags:    Flags(b[3]),
		userid:   binary.BigEndian.Uint32(b[4:8]),
		rolemask: binary.BigEndian.Uint32(b[8:12]),
		aux1:     binary.BigEndian.Uint32(b[12:16]),
		aux2:     binary.BigEndian.Uint32(b[16:20]),
	}, nil
}
