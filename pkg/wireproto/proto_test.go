package wireproto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProtoEncodeMatchesTestVector(t *testing.T) {
	want := []byte{
		0x8e, 0x01, 0x02, 0x0b,
		0x00, 0x00, 0x00, 0x64,
		0x00, 0x00, 0x00, 0x01,
		0xff, 0xff, 0xff, 0xff,
		0x00, 0x00, 0x00, 0x00,
	}

	m := New(TypeRequest)
	m.SetCredentials(Credentials{Userid: 100, Rolemask: RoleOwner})
	m.SetFlag(FlagTopic, true)
	m.SetFlag(FlagPayload, true)
	m.EnableRouting()
	require.NoError(t, m.RoutePush("r1"))
	m.SetRequest(NodeIDAny, 0)

	got := encodeProto(proto{
		typ:      m.typ,
		flags:    m.flags,
		userid:   m.cred.Userid,
		rolemask: m.cred.Rolemask,
		aux1:     m.aux1,
		aux2:     m.aux2,
	})
	assert.Equal(t, want, got)
}

func TestProtoDecodeRecoversFields(t *testing.T) {
	wire := []byte{
		0x8e, 0x01, 0x02, 0x0b,
		0x00, 0x00, 0x00, 0x64,
		0x00, 0x00, 0x00, 0x01,
		0xff, 0xff, 0xff, 0xff,
		0x00, 0x00, 0x00, 0x00,
	}
	p, err := decodeProto(wire)
	require.NoError(t, err)
	assert.Equal(t, TypeRequest, p.typ)
	assert.Equal(t, Flags(0x0b), p.flags)
	assert.Equal(t, uint32(100), p.userid)
	assert.Equal(t, RoleOwner, p.rolemask)
	assert.Equal(t, NodeIDAny, p.aux1)
	assert.Equal(t, uint32(0), p.aux2)

	assert.True(t, p.flags.has(FlagTopic))
	assert.True(t, p.flags.has(FlagPayload))
	assert.True(t, p.flags.has(FlagRoute))
	assert.False(t, p.flags.has(FlagNoResponse))
}

func TestProtoDecodeRejectsBadMagic(t *testing.T) {
	wire := make([]byte, ProtoLen)
	_, err := decodeProto(wire)
	require.Error(t, err)
}

func TestRouteManipulationScenario(t *testing.T) {
	m := New(TypeRequest)
	m.EnableRouting()

	require.NoError(t, m.RoutePush("sender"))
	first, ok := m.RouteFirst()
	require.True(t, ok)
	last, ok := m.RouteLast()
	require.True(t, ok)
	assert.Equal(t, "sender", first)
	assert.Equal(t, "sender", last)
	assert.Equal(t, 1, m.RouteCount())
	assert.Equal(t, "sender", m.RouteString())

	require.NoError(t, m.RouteAppend("router"))
	first, _ = m.RouteFirst()
	last, _ = m.RouteLast()
	assert.Equal(t, "sender", first)
	assert.Equal(t, "router", last)
	assert.Equal(t, "sender!router", m.RouteString())

	require.NoError(t, m.RouteDeleteLast())
	assert.Equal(t, 1, m.RouteCount())
	last, _ = m.RouteLast()
	assert.Equal(t, "sender", last)
}

func TestRouteMutatorsRequireEnableRouting(t *testing.T) {
	m := New(TypeRequest)
	err := m.RoutePush("x")
	require.Error(t, err)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	m := New(TypeRequest)
	m.SetCredentials(Credentials{Userid: 42, Rolemask: RoleUser})
	m.EnableRouting()
	require.NoError(t, m.RoutePush("b"))
	require.NoError(t, m.RoutePush("a"))
	m.SetTopic("kvs.commit")
	m.SetPayload([]byte(`{"key":"a.b"}`))
	m.SetRequest(7, 3)

	frames, err := m.Encode()
	require.NoError(t, err)

	got, err := Decode(frames)
	require.NoError(t, err)
	assert.Equal(t, m.typ, got.typ)
	assert.Equal(t, m.cred, got.cred)
	assert.Equal(t, []string{"a", "b"}, got.routes.routes)
	topic, ok := got.Topic()
	require.True(t, ok)
	assert.Equal(t, "kvs.commit", topic)
	payload, ok := got.Payload()
	require.True(t, ok)
	assert.Equal(t, `{"key":"a.b"}`, string(payload))
	nodeid, matchtag := got.Request()
	assert.Equal(t, uint32(7), nodeid)
	assert.Equal(t, uint32(3), matchtag)
}

func TestEncodeDecodeRoundTripNoRouteNoTopicNoPayload(t *testing.T) {
	m := New(TypeEvent)
	m.SetEvent(99)
	frames, err := m.Encode()
	require.NoError(t, err)
	assert.Len(t, frames, 1)

	got, err := Decode(frames)
	require.NoError(t, err)
	assert.Equal(t, uint32(99), got.Event())
}

func TestDecodeRejectsMissingDelimiter(t *testing.T) {
	hdr := encodeProto(proto{typ: TypeRequest, flags: FlagRoute})
	_, err := Decode([][]byte{[]byte("only-route"), hdr})
	require.Error(t, err)
}

func TestMatchtagPoolReusesFreedTags(t *testing.T) {
	p := NewMatchtagPool(2)
	t1, err := p.Alloc()
	require.NoError(t, err)
	t2, err := p.Alloc()
	require.NoError(t, err)
	assert.NotEqual(t, t1, t2)

	_, err = p.Alloc()
	require.Error(t, err, "pool exhausted")

	p.Free(t1)
	t3, err := p.Alloc()
	require.NoError(t, err)
	assert.Equal(t, t1, t3)
	assert.Equal(t, 2, p.InFlight())
}

func TestGlobMatchTopic(t *testing.T) {
	assert.True(t, globMatch("kvs.*", "kvs.commit"))
	assert.True(t, globMatch("kvs.?ommit", "kvs.commit"))
	assert.False(t, globMatch("kvs.commit", "kvs.fence"))
	assert.True(t, globMatch("kvs.[cf]*", "kvs.fence"))
	assert.True(t, globMatch("*", "anything.at.all"))
}

func TestMatchMatchesTypeTopicAndMatchtag(t *testing.T) {
	m := New(TypeResponse)
	m.SetTopic("kvs.commit")
	m.SetResponse(0, 5)

	match := Match{Topic: "kvs.*", Matchtag: 5}
	assert.True(t, match.Matches(m))

	miss := Match{Topic: "kvs.*", Matchtag: 6}
	assert.False(t, miss.Matches(m))
}
