package transport

import (
	"context"
	"io"
	"sync/atomic"

	"google.golang.org/grpc"

	"github.com/flux-framework/flux-core-go/pkg/log"
	"github.com/flux-framework/flux-core-go/pkg/wireproto"
)

// MaxMatchtag bounds the per-connection matchtag space handed out to
// requests on this Service's Exchange stream.
const MaxMatchtag = 1 << 16

var transportLog = log.WithComponent("transport")

// Handler processes one inbound Message and returns the Message to
// send back, or nil to send nothing. An error is surfaced to the peer
// as a gRPC status via ToStatus and ends the stream.
type Handler func(ctx context.Context, msg *wireproto.Message) (*wireproto.Message, error)

// Service implements a single bidirectional-streaming gRPC method,
// "Exchange", whose request and response messages are both
// wireproto.Message carried through the fluxmsg codec rather than a
// .proto-generated type — the wire format is already fully specified
// by wireproto, so the gRPC layer's only job is framing and transport.
type Service struct {
	handle     Handler
	debugLevel int32
	matchtags  *wireproto.MatchtagPool
}

// NewService wraps handle as a gRPC streaming service. Each inbound
// request is assigned a matchtag from a bounded pool for the duration
// of its handler call, stamped into both the request and its reply, so
// request/response pairing has a concrete matchtag source instead of
// every message carrying MatchtagAny.
func NewService(handle Handler) *Service {
	return &Service{handle: handle, matchtags: wireproto.NewMatchtagPool(MaxMatchtag)}
}

// SetDebugLevel sets the per-message diagnostic verbosity: 0 logs
// nothing extra, >=1 logs a DebugString rendering of every message this
// Service receives or sends.
func (s *Service) SetDebugLevel(n int) {
	atomic.StoreInt32(&s.debugLevel, int32(n))
}

func (s *Service) logMsg(msg *wireproto.Message, what string) {
	if atomic.LoadInt32(&s.debugLevel) >= 1 {
		transportLog.Debug().Str("msg", msg.DebugString()).Msg(what)
	}
}

func (s *Service) exchange(stream grpc.ServerStream) error {
	for {
		msg := wireproto.New(wireproto.TypeRequest)
		if err := stream.RecvMsg(msg); err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}

		tag, err := s.matchtags.Alloc()
		if err != nil {
			return ToStatus(err).Err()
		}
		if msg.Type() == wireproto.TypeRequest {
			nodeid, _ := msg.Request()
			msg.SetRequest(nodeid, tag)
		}
		s.logMsg(msg, "transport received message")

		reply, err := s.handle(stream.Context(), msg)
		s.matchtags.Free(tag)
		if err != nil {
			transportLog.Debug().Err(err).Msg("transport handler returned error")
			return ToStatus(err).Err()
		}
		if reply == nil {
			continue
		}
		if reply.Type() == wireproto.TypeResponse {
			errnum, _ := reply.Response()
			reply.SetResponse(errnum, tag)
		}
		s.logMsg(reply, "transport sending reply")
		if err := stream.SendMsg(reply); err != nil {
			return err
		}
	}
}

func exchangeHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(*Service).exchange(stream)
}

// ServiceDesc is the hand-written gRPC service descriptor for Service,
// analogous to what protoc-gen-go-grpc would emit for a service with
// one bidi-streaming RPC, but without a generated stub since the
// "message type" carried is the RFC-3 PROTO frame itself.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "fluxcore.Transport",
	HandlerType: (*any)(nil),
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Exchange",
			Handler:       exchangeHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "fluxcore/transport.proto",
}

// Register attaches Service to a grpc.Server.
func Register(s *grpc.Server, impl *Service) {
	s.RegisterService(&ServiceDesc, impl)
}

// ExchangeClient is the client-side handle for the Exchange stream.
type ExchangeClient interface {
	Send(*wireproto.Message) error
	Recv() (*wireproto.Message, error)
	grpc.ClientStream
}

type exchangeClient struct {
	grpc.ClientStream
}

func (c *exchangeClient) Send(msg *wireproto.Message) error {
	return c.ClientStream.SendMsg(msg)
}

func (c *exchangeClient) Recv() (*wireproto.Message, error) {
	msg := wireproto.New(wireproto.TypeResponse)
	if err := c.ClientStream.RecvMsg(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// NewExchangeClient opens the Exchange stream against conn.
func NewExchangeClient(ctx context.Context, conn grpc.ClientConnInterface) (ExchangeClient, error) {
	stream, err := conn.NewStream(ctx, &ServiceDesc.Streams[0], "/fluxcore.Transport/Exchange", grpc.CallContentSubtype(CodecName))
	if err != nil {
		return nil, err
	}
	return &exchangeClient{ClientStream: stream}, nil
}
