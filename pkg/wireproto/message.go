package wireproto

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/flux-framework/flux-core-go/pkg/ferror"
)

// auxSlot is a named auxiliary value with an optional destructor, the
// way the original's message aux-hashtable attaches arbitrary data to a
// message for the lifetime of its handler.
type auxSlot struct {
	value interface{}
	free  func(interface{})
}

// Message is the in-memory, framed, typed message exchanged between
// nodes. The zero value is not valid; construct with New.
type Message struct {
	mu sync.Mutex

	typ    Type
	flags  Flags
	cred   Credentials
	aux1   uint32
	aux2   uint32
	routes routeList
	topic  string
	payloadRaw []byte

	refcount int
	aux      map[string]auxSlot

	lastPackErr   string
	lastUnpackErr string
}

// New creates an empty message of the given type with refcount 1.
func New(typ Type) *Message {
	return &Message{typ: typ, refcount: 1, aux: make(map[string]auxSlot)}
}

// ReplaceFrom overwrites m's fields with other's, field by field,
// without copying m's mutex. Used by transports that decode into a
// pre-existing *Message (e.g. a gRPC codec's Unmarshal, which receives
// a destination value it cannot replace wholesale).
func (m *Message) ReplaceFrom(other *Message) {
	m.typ = other.typ
	m.flags = other.flags
	m.cred = other.cred
	m.aux1 = other.aux1
	m.aux2 = other.aux2
	m.routes = other.routes
	m.topic = other.topic
	m.payloadRaw = other.payloadRaw
	m.refcount = other.refcount
	m.aux = other.aux
	m.lastPackErr = other.lastPackErr
	m.lastUnpackErr = other.lastUnpackErr
}

// Type returns the message's discriminator.
func (m *Message) Type() Type { return m.typ }

// Flags returns the current flag set.
func (m *Message) Flags() Flags { return m.flags }

// Credentials returns the (userid, rolemask) pair.
func (m *Message) Credentials() Credentials { return m.cred }

// SetCredentials sets the (userid, rolemask) pair.
func (m *Message) SetCredentials(c Credentials) { m.cred = c }

// setStreamingNoResponse sets or clears STREAMING, clearing NORESPONSE
// when setting it to keep the two mutually exclusive.
func (m *Message) setStreamingNoResponse(streaming bool) {
	if streaming {
		m.flags = m.flags.set(FlagStreaming).clear(FlagNoResponse)
	} else {
		m.flags = m.flags.clear(FlagStreaming)
	}
}

// SetFlag sets or clears an arbitrary flag bit, enforcing that
// STREAMING and NORESPONSE remain mutually exclusive.
func (m *Message) SetFlag(bit Flags, on bool) {
	if bit == FlagStreaming && on {
		m.setStreamingNoResponse(true)
		return
	}
	if bit == FlagNoResponse && on {
		m.flags = m.flags.set(FlagNoResponse).clear(FlagStreaming)
		return
	}
	if on {
		m.flags = m.flags.set(bit)
	} else {
		m.flags = m.flags.clear(bit)
	}
}

// HasFlag reports whether bit is set.
func (m *Message) HasFlag(bit Flags) bool { return m.flags.has(bit) }

// --- type-discriminated aux fields ---

// SetRequest sets the request-typed aux fields (nodeid, matchtag).
func (m *Message) SetRequest(nodeid, matchtag uint32) {
	m.aux1, m.aux2 = nodeid, matchtag
}

// Request returns (nodeid, matchtag) for a REQUEST message.
func (m *Message) Request() (nodeid, matchtag uint32) { return m.aux1, m.aux2 }

// SetResponse sets the response-typed aux fields (errnum, matchtag).
func (m *Message) SetResponse(errnum, matchtag uint32) {
	m.aux1, m.aux2 = errnum, matchtag
}

// Response returns (errnum, matchtag) for a RESPONSE message.
func (m *Message) Response() (errnum, matchtag uint32) { return m.aux1, m.aux2 }

// SetEvent sets the event-typed aux field (sequence).
func (m *Message) SetEvent(sequence uint32) { m.aux1, m.aux2 = sequence, 0 }

// Event returns the sequence number for an EVENT message.
func (m *Message) Event() (sequence uint32) { return m.aux1 }

// SetControl sets the control-typed aux fields (ctrlType, ctrlStatus).
func (m *Message) SetControl(ctrlType, ctrlStatus uint32) {
	m.aux1, m.aux2 = ctrlType, ctrlStatus
}

// Control returns (ctrlType, ctrlStatus) for a CONTROL message.
func (m *Message) Control() (ctrlType, ctrlStatus uint32) { return m.aux1, m.aux2 }

// --- topic ---

// SetTopic sets the topic string and the TOPIC flag.
func (m *Message) SetTopic(topic string) {
	m.topic = topic
	m.flags = m.flags.set(FlagTopic)
}

// Topic returns the topic string and whether one is set.
func (m *Message) Topic() (string, bool) {
	if !m.flags.has(FlagTopic) {
		return "", false
	}
	return m.topic, true
}

// --- payload: raw view ---

// SetPayload sets the raw payload bytes and the PAYLOAD flag.
func (m *Message) SetPayload(data []byte) {
	m.payloadRaw = data
	m.flags = m.flags.set(FlagPayload)
}

// Payload returns the raw payload bytes and whether one is set.
func (m *Message) Payload() ([]byte, bool) {
	if !m.flags.has(FlagPayload) {
		return nil, false
	}
	return m.payloadRaw, true
}

// ClearPayload removes the payload and the PAYLOAD flag.
func (m *Message) ClearPayload() {
	m.payloadRaw = nil
	m.flags = m.flags.clear(FlagPayload)
}

// --- payload: JSON dictionary view over the same bytes ---

// SetJSON encodes v (which must marshal to a JSON object) as the
// payload. A non-object value fails with INVAL.
func (m *Message) SetJSON(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return ferror.Wrap(ferror.Inval, err, "marshal json payload")
	}
	if !isJSONObject(data) {
		return ferror.New(ferror.Inval, "json payload must be an object")
	}
	m.SetPayload(data)
	return nil
}

// GetJSON decodes the payload into out, which must be a pointer to a
// JSON-object-shaped value.
func (m *Message) GetJSON(out interface{}) error {
	data, ok := m.Payload()
	if !ok {
		return ferror.New(ferror.Inval, "no payload set")
	}
	if err := json.Unmarshal(data, out); err != nil {
		return ferror.Wrap(ferror.Inval, err, "unmarshal json payload")
	}
	return nil
}

func isJSONObject(data []byte) bool {
	var raw json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return false
	}
	trimmed := bytesTrimLeadingSpace(raw)
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func bytesTrimLeadingSpace(b []byte) []byte {
	i := 0
	for i < len(b) && (b[i] == ' ' || b[i] == '\t' || b[i] == '\n' || b[i] == '\r') {
		i++
	}
	return b[i:]
}

// Pack encodes fields as a JSON-object payload, the way the original's
// pack/unpack format helper names fields by string key. Format mismatch
// (non-marshalable value) is recorded via LastPackError and returned as
// PROTO.
func (m *Message) Pack(fields map[string]interface{}) error {
	data, err := json.Marshal(fields)
	if err != nil {
		m.lastPackErr = err.Error()
		return ferror.Wrap(ferror.Proto, err, "pack fields")
	}
	m.SetPayload(data)
	return nil
}

// Unpack decodes the payload's named fields into out. Missing fields or
// a type mismatch are recorded via LastUnpackError and returned as
// PROTO.
func (m *Message) Unpack(out map[string]interface{}) error {
	data, ok := m.Payload()
	if !ok {
		m.lastUnpackErr = "no payload set"
		return ferror.New(ferror.Proto, "no payload set")
	}
	decoded := map[string]interface{}{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		m.lastUnpackErr = err.Error()
		return ferror.Wrap(ferror.Proto, err, "unpack fields")
	}
	for k := range out {
		v, present := decoded[k]
		if !present {
			m.lastUnpackErr = "missing field " + k
			return ferror.New(ferror.Proto, "missing field %q", k)
		}
		out[k] = v
	}
	return nil
}

// LastPackError returns the error message from the most recent failed
// Pack call, for diagnostics.
func (m *Message) LastPackError() string { return m.lastPackErr }

// LastUnpackError returns the error message from the most recent
// failed Unpack call, for diagnostics.
func (m *Message) LastUnpackError() string { return m.lastUnpackErr }

// --- aux named slots ---

// Aux attaches a named value to the message; if free is non-nil it is
// invoked when the message is destroyed or the slot is overwritten.
func (m *Message) Aux(name string, value interface{}, free func(interface{})) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.aux[name]; ok && old.free != nil {
		old.free(old.value)
	}
	m.aux[name] = auxSlot{value: value, free: free}
}

// AuxGet retrieves a previously attached named value.
func (m *Message) AuxGet(name string) (interface{}, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	slot, ok := m.aux[name]
	if !ok {
		return nil, false
	}
	return slot.value, true
}

// --- refcounting and copy ---

// Incref increments the message's reference count and returns it so
// multiple handlers can share one instance.
func (m *Message) Incref() *Message {
	m.mu.Lock()
	m.refcount++
	m.mu.Unlock()
	return m
}

// Decref decrements the reference count, running aux destructors once
// it reaches zero.
func (m *Message) Decref() {
	m.mu.Lock()
	m.refcount--
	destroy := m.refcount <= 0
	var aux map[string]auxSlot
	if destroy {
		aux = m.aux
		m.aux = nil
	}
	m.mu.Unlock()
	if destroy {
		for _, slot := range aux {
			if slot.free != nil {
				slot.free(slot.value)
			}
		}
	}
}

// Destroy is equivalent to Decref of the message's last owner.
func (m *Message) Destroy() { m.Decref() }

// DebugString renders a single-line, human-readable summary of m: its
// type, flags, route stack, topic, payload size, and aux fields. This
// is the detail surfaced by pkg/transport's debug_level-gated
// diagnostic logging, not something logged unconditionally.
func (m *Message) DebugString() string {
	s := m.typ.String()
	if flags := m.flags.String(); flags != "" {
		s += " flags=" + flags
	}
	if route := m.RouteString(); route != "" {
		s += " route=" + route
	}
	if topic, ok := m.Topic(); ok {
		s += " topic=" + topic
	}
	if payload, ok := m.Payload(); ok {
		s += fmt.Sprintf(" payload=%dB", len(payload))
	}
	s += fmt.Sprintf(" aux=(%d,%d)", m.aux1, m.aux2)
	return s
}

// Copy produces a deep copy of m, optionally omitting the payload.
func (m *Message) Copy(withPayload bool) *Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := New(m.typ)
	cp.flags = m.flags
	cp.cred = m.cred
	cp.aux1, cp.aux2 = m.aux1, m.aux2
	cp.topic = m.topic
	cp.routes.enabled = m.routes.enabled
	cp.routes.routes = append([]string(nil), m.routes.routes...)
	if withPayload && m.flags.has(FlagPayload) {
		cp.payloadRaw = append([]byte(nil), m.payloadRaw...)
	} else {
		cp.flags = cp.flags.clear(FlagPayload)
	}
	return cp
}
