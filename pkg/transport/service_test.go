package transport

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"github.com/flux-framework/flux-core-go/pkg/ferror"
	"github.com/flux-framework/flux-core-go/pkg/wireproto"
)

func dialer(lis *bufconn.Listener) func(context.Context, string) (net.Conn, error) {
	return func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}
}

func TestExchangeRoundTripsMessageOverGRPC(t *testing.T) {
	lis := bufconn.Listen(1024 * 1024)
	t.Cleanup(func() { lis.Close() })

	grpcServer := grpc.NewServer()
	svc := NewService(func(_ context.Context, msg *wireproto.Message) (*wireproto.Message, error) {
		reply := wireproto.New(wireproto.TypeResponse)
		topic, _ := msg.Topic()
		reply.SetTopic(topic)
		return reply, nil
	})
	Register(grpcServer, svc)
	go grpcServer.Serve(lis)
	t.Cleanup(grpcServer.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(dialer(lis)),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	stream, err := NewExchangeClient(context.Background(), conn)
	require.NoError(t, err)

	req := wireproto.New(wireproto.TypeRequest)
	req.SetTopic("kvs.get")
	require.NoError(t, stream.Send(req))

	reply, err := stream.Recv()
	require.NoError(t, err)
	topic, ok := reply.Topic()
	require.True(t, ok)
	assert.Equal(t, "kvs.get", topic)
}

func TestToStatusMapsFerrorKindToGRPCCode(t *testing.T) {
	err := ferror.New(ferror.NotFound, "blobref %s not found", "sha256-deadbeef")
	st := ToStatus(err)
	assert.Equal(t, codes.NotFound, st.Code())
}
