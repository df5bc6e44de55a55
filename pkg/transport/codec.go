// Package transport carries wireproto.Message frames over gRPC. Rather
// than defining a .proto request/response type, it registers a custom
// grpc/encoding.Codec that marshals a Message through its own RFC-3
// PROTO framing, length-prefixing each frame for the wire. The service
// shape follows an ordinary generated gRPC service, generalized from a
// typed protobuf message to one carrying an already-framed payload.
package transport

import (
	"encoding/binary"
	"fmt"

	"google.golang.org/grpc/encoding"

	"github.com/flux-framework/flux-core-go/pkg/ferror"
	"github.com/flux-framework/flux-core-go/pkg/wireproto"
)

// CodecName is registered with grpc/encoding and selected via the
// "fluxmsg" content-subtype on every RPC made against Service.
const CodecName = "fluxmsg"

type frameCodec struct{}

func (frameCodec) Name() string { return CodecName }

func (frameCodec) Marshal(v interface{}) ([]byte, error) {
	msg, ok := v.(*wireproto.Message)
	if !ok {
		return nil, fmt.Errorf("fluxmsg codec: cannot marshal %T", v)
	}
	frames, err := msg.Encode()
	if err != nil {
		return nil, err
	}
	return joinFrames(frames), nil
}

func (frameCodec) Unmarshal(data []byte, v interface{}) error {
	msg, ok := v.(*wireproto.Message)
	if !ok {
		return fmt.Errorf("fluxmsg codec: cannot unmarshal into %T", v)
	}
	frames, err := splitFrames(data)
	if err != nil {
		return err
	}
	decoded, err := wireproto.Decode(frames)
	if err != nil {
		return err
	}
	msg.ReplaceFrom(decoded)
	return nil
}

func init() {
	encoding.RegisterCodec(frameCodec{})
}

func joinFrames(frames [][]byte) []byte {
	var out []byte
	for _, f := range frames {
		var lenBuf [4]byte
		binary.BigEndian.PutUint32(lenBuf[:], uint32(len(f)))
		out = append(out, lenBuf[:]...)
		out = append(out, f...)
	}
	return out
}

func splitFrames(data []byte) ([][]byte, error) {
	var frames [][]byte
	for len(data) > 0 {
		if len(data) < 4 {
			return nil, ferror.New(ferror.Proto, "fluxmsg codec: truncated frame length prefix")
		}
		n := binary.BigEndian.Uint32(data[:4])
		data = data[4:]
		if uint64(len(data)) < uint64(n) {
			return nil, ferror.New(ferror.Proto, "fluxmsg codec: truncated frame body")
		}
		frames = append(frames, data[:n])
		data = data[n:]
	}
	return frames, nil
}
