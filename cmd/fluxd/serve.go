package main

import (
	"context"
	"net"
	"net/http"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/flux-framework/flux-core-go/pkg/ferror"
	"github.com/flux-framework/flux-core-go/pkg/kvs/cache"
	"github.com/flux-framework/flux-core-go/pkg/log"
	"github.com/flux-framework/flux-core-go/pkg/metrics"
	"github.com/flux-framework/flux-core-go/pkg/node"
	"github.com/flux-framework/flux-core-go/pkg/reactor"
	"github.com/flux-framework/flux-core-go/pkg/transport"
	"github.com/flux-framework/flux-core-go/pkg/wireproto"
)

var (
	serveGRPCAddr    string
	serveMetricsAddr string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gRPC transport service and Prometheus metrics endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := node.New(cfg)
		if err != nil {
			return err
		}
		defer n.Close()

		reactor.SetDebugLevel(cfg.DebugLevel)

		serveLog := log.WithComponent("serve")

		lis, err := net.Listen("tcp", serveGRPCAddr)
		if err != nil {
			return err
		}
		grpcServer := grpc.NewServer()
		svc := transport.NewService(handleKVSMessage(n))
		svc.SetDebugLevel(cfg.DebugLevel)
		transport.Register(grpcServer, svc)

		go func() {
			http.Handle("/metrics", metrics.Handler())
			serveLog.Info().Str("addr", serveMetricsAddr).Msg("serving metrics")
			_ = http.ListenAndServe(serveMetricsAddr, nil)
		}()

		serveLog.Info().Str("addr", serveGRPCAddr).Msg("serving fluxcore transport")
		return grpcServer.Serve(lis)
	},
}

// handleKVSMessage dispatches an inbound request message by topic:
// "kvs.get" reads its payload as a blobref and replies with the blob,
// "kvs.put" stores the payload and replies with its blobref.
func handleKVSMessage(n *node.Node) transport.Handler {
	return func(ctx context.Context, msg *wireproto.Message) (*wireproto.Message, error) {
		topic, ok := msg.Topic()
		if !ok {
			return nil, ferror.New(ferror.Inval, "request message has no topic")
		}
		switch topic {
		case "kvs.get":
			ref, ok := msg.Payload()
			if !ok {
				return nil, ferror.New(ferror.Inval, "kvs.get requires a payload naming the blobref")
			}
			data, err := n.Store.Get(string(ref))
			if err != nil {
				return nil, err
			}
			reply := wireproto.New(wireproto.TypeResponse)
			reply.SetTopic("kvs.get")
			reply.SetPayload(data)
			return reply, nil
		case "kvs.put":
			data, ok := msg.Payload()
			if !ok {
				return nil, ferror.New(ferror.Inval, "kvs.put requires a payload")
			}
			ref, err := hashAndStore(n, data)
			if err != nil {
				return nil, err
			}
			reply := wireproto.New(wireproto.TypeResponse)
			reply.SetTopic("kvs.put")
			reply.SetPayload([]byte(ref))
			return reply, nil
		default:
			return nil, ferror.New(ferror.Unsupported, "unknown topic %q", topic)
		}
	}
}

func hashAndStore(n *node.Node, data []byte) (string, error) {
	ref, err := cache.Hash(n.HashAlgo, data)
	if err != nil {
		return "", err
	}
	if err := n.Store.Put(ref, data); err != nil {
		return "", err
	}
	return ref, nil
}

func init() {
	serveCmd.Flags().StringVar(&serveGRPCAddr, "grpc-addr", ":8060", "gRPC transport listen address")
	serveCmd.Flags().StringVar(&serveMetricsAddr, "metrics-addr", ":9090", "Prometheus metrics listen address")
}
