package wireproto

import (
	"github.com/flux-framework/flux-core-go/pkg/ferror"
)

// Encode renders m as an ordered list of frames: zero or more route
// frames, an empty delimiter frame if routing is enabled, an optional
// topic frame, an optional payload frame, and a final fixed-size PROTO
// frame — the RFC-3 on-the-wire order.
func (m *Message) Encode() ([][]byte, error) {
	var frames [][]byte

	if m.routes.enabled {
		for _, r := range m.routes.routes {
			frames = append(frames, []byte(r))
		}
		frames = append(frames, []byte{})
	}
	if m.flags.has(FlagTopic) {
		frames = append(frames, []byte(m.topic))
	}
	if m.flags.has(FlagPayload) {
		frames = append(frames, m.payloadRaw)
	}

	frames = append(frames, encodeProto(proto{
		typ:      m.typ,
		flags:    m.flags,
		userid:   m.cred.Userid,
		rolemask: m.cred.Rolemask,
		aux1:     m.aux1,
		aux2:     m.aux2,
	}))
	return frames, nil
}

// Decode parses an ordered frame list produced by Encode back into a
// Message. The last frame must be a valid PROTO header; its flags
// determine how many of the preceding frames are route/topic/payload.
func Decode(frames [][]byte) (*Message, error) {
	if len(frames) == 0 {
		return nil, ferror.New(ferror.Proto, "no frames")
	}
	last := len(frames) - 1
	hdr, err := decodeProto(frames[last])
	if err != nil {
		return nil, err
	}
	rest := frames[:last]

	m := New(hdr.typ)
	m.flags = hdr.flags
	m.cred = Credentials{Userid: hdr.userid, Rolemask: hdr.rolemask}
	m.aux1, m.aux2 = hdr.aux1, hdr.aux2

	if hdr.flags.has(FlagRoute) {
		m.EnableRouting()
		delim := -1
		for i, f := range rest {
			if len(f) == 0 {
				delim = i
				break
			}
		}
		if delim < 0 {
			return nil, ferror.New(ferror.Proto, "ROUTE flag set but no delimiter frame found")
		}
		for _, f := range rest[:delim] {
			m.routes.routes = append(m.routes.routes, string(f))
		}
		rest = rest[delim+1:]
	}

	if hdr.flags.has(FlagTopic) {
		if len(rest) == 0 {
			return nil, ferror.New(ferror.Proto, "TOPIC flag set but topic frame missing")
		}
		m.topic = string(rest[0])
		rest = rest[1:]
	}

	if hdr.flags.has(FlagPayload) {
		if len(rest) == 0 {
			return nil, ferror.New(ferror.Proto, "PAYLOAD flag set but payload frame missing")
		}
		m.payloadRaw = rest[0]
		rest = rest[1:]
	}

	if len(rest) != 0 {
		return nil, ferror.New(ferror.Proto, "%d unexpected trailing frame(s)", len(rest))
	}
	return m, nil
}
