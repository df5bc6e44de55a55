package bootstrap

import (
	"encoding/binary"
	"io"

	"github.com/flux-framework/flux-core-go/pkg/ferror"
)

// SessionParams fixes the COBO-style handshake identifiers for one
// bootstrap session.
type SessionParams struct {
	ServiceID uint32
	SessionID uint32
	AcceptID  uint32
}

func writeU32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readU32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// ServerHandshake performs the server side of the four-u32 exchange:
// reads (service-id, session-id) from conn, verifies session-id, writes
// (service-id, accept-id), then reads the client's final ack. A
// session-id mismatch causes the connection to be closed (by the
// caller, on the returned error) without assigning a rank.
func ServerHandshake(conn io.ReadWriter, params SessionParams) error {
	gotService, err := readU32(conn)
	if err != nil {
		return ferror.Wrap(ferror.Proto, err, "read client service-id")
	}
	gotSession, err := readU32(conn)
	if err != nil {
		return ferror.Wrap(ferror.Proto, err, "read client session-id")
	}
	if gotService != params.ServiceID {
		return ferror.New(ferror.Proto, "service-id mismatch: got %d want %d", gotService, params.ServiceID)
	}
	if gotSession != params.SessionID {
		return ferror.New(ferror.Proto, "session-id mismatch: got %d want %d", gotSession, params.SessionID)
	}
	if err := writeU32(conn, params.ServiceID); err != nil {
		return ferror.Wrap(ferror.Proto, err, "write service-id")
	}
	if err := writeU32(conn, params.AcceptID); err != nil {
		return ferror.Wrap(ferror.Proto, err, "write accept-id")
	}
	ack, err := readU32(conn)
	if err != nil {
		return ferror.Wrap(ferror.Proto, err, "read client ack")
	}
	if ack != ackMagic {
		return ferror.New(ferror.Proto, "bad ack value %d", ack)
	}
	if currentDebugLevel() >= 2 {
		bootstrapLog.Debug().Uint32("accept_id", params.AcceptID).Uint32("session_id", params.SessionID).Msg("server handshake completed")
	}
	return nil
}

// ackMagic is the fixed value written for the handshake's final ack.
const ackMagic uint32 = 0x1

// ClientHandshake performs the client side: writes (service-id,
// session-id), reads back (service-id, accept-id) and verifies both,
// then writes the final ack.
func ClientHandshake(conn io.ReadWriter, params SessionParams) error {
	if err := writeU32(conn, params.ServiceID); err != nil {
		return ferror.Wrap(ferror.Proto, err, "write service-id")
	}
	if err := writeU32(conn, params.SessionID); err != nil {
		return ferror.Wrap(ferror.Proto, err, "write session-id")
	}
	gotService, err := readU32(conn)
	if err != nil {
		return ferror.Wrap(ferror.Proto, err, "read server service-id")
	}
	gotAccept, err := readU32(conn)
	if err != nil {
		return ferror.Wrap(ferror.Proto, err, "read server accept-id")
	}
	if gotService != params.ServiceID {
		return ferror.New(ferror.Proto, "service-id mismatch: got %d want %d", gotService, params.ServiceID)
	}
	if gotAccept != params.AcceptID {
		return ferror.New(ferror.Proto, "accept-id mismatch: got %d want %d", gotAccept, params.AcceptID)
	}
	if currentDebugLevel() >= 2 {
		bootstrapLog.Debug().Uint32("accept_id", params.AcceptID).Uint32("session_id", params.SessionID).Msg("client handshake completed")
	}
	return writeU32(conn, ackMagic)
}
