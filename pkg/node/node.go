// Package node wires the Cache, Fence Manager, Commit Engine, and
// Bootstrap Tree into one explicit context object rather than
// package-level singletons for per-node state (unlike pkg/log's
// intentionally-global logger).
package node

import (
	"io"
	"sort"
	"strconv"

	"github.com/google/uuid"

	"github.com/flux-framework/flux-core-go/pkg/bootstrap"
	"github.com/flux-framework/flux-core-go/pkg/config"
	"github.com/flux-framework/flux-core-go/pkg/events"
	"github.com/flux-framework/flux-core-go/pkg/ferror"
	"github.com/flux-framework/flux-core-go/pkg/hostlist"
	"github.com/flux-framework/flux-core-go/pkg/kvs/cache"
	"github.com/flux-framework/flux-core-go/pkg/kvs/commit"
	"github.com/flux-framework/flux-core-go/pkg/kvs/fence"
	"github.com/flux-framework/flux-core-go/pkg/kvs/treeobj"
	"github.com/flux-framework/flux-core-go/pkg/log"
	"github.com/flux-framework/flux-core-go/pkg/metrics"
)

// Node holds one process's KVS and bootstrap state. It carries no
// package-level state of its own; every field is constructed by New
// and owned by the caller.
type Node struct {
	Config   config.Config
	Cache    *cache.Cache
	Store    cache.ContentStore
	Fences   *fence.Manager
	Events   *events.Broker
	HashAlgo cache.HashAlgo

	Topology *bootstrap.Topology // nil until Bootstrap succeeds
	Edges    *bootstrap.Edges    // nil until Bootstrap succeeds

	epoch int64
}

var nodeLog = log.WithComponent("node")

// New constructs a Node backed by a BoltContentStore rooted at
// cfg.DataDir, with an empty in-memory Cache and Fence Manager, and an
// events Broker started and ready to publish.
func New(cfg config.Config) (*Node, error) {
	store, err := cache.NewBoltContentStore(cfg.DataDir)
	if err != nil {
		return nil, ferror.Wrap(ferror.Fatal, err, "open content store at %s", cfg.DataDir)
	}

	broker := events.NewBroker()
	broker.Start()

	commit.SetDebugLevel(cfg.DebugLevel)

	sharedCache := cache.New()
	n := &Node{
		Config:   cfg,
		Cache:    sharedCache,
		Store:    store,
		Fences:   fence.NewManager(sharedCache, cache.HashSHA256),
		Events:   broker,
		HashAlgo: cache.HashSHA256,
	}
	return n, nil
}

// Close stops the node's event broker and releases its content store.
func (n *Node) Close() error {
	n.Events.Stop()
	if closer, ok := n.Store.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// Bootstrap runs the COBO-style rendezvous for rank within an
// nprocs-sized tree and populates n.Topology and n.Edges. hosts
// resolves rank to hostname; ports is the candidate port list every
// rank listens/dials on; sessionID ties together one bootstrap run so
// a stray connection from a previous run is rejected during the
// handshake.
func (n *Node) Bootstrap(hosts hostlist.HostList, ports []int, rank int, sessionID uint32) error {
	bootstrap.SetDebugLevel(n.Config.DebugLevel)
	timer := metrics.NewTimer()
	nprocs := hosts.Count()
	topo := bootstrap.NewTopology(rank, nprocs)
	n.Topology = topo

	edges := &bootstrap.Edges{Topology: topo, Children: make(map[int]io.ReadWriter)}

	children := append([]int(nil), topo.Children...)
	sort.Ints(children)

	if len(children) > 0 {
		myHost, _ := hosts.Nth(rank)
		ln, _, err := bootstrap.ListenFirstAvailable(myHost, ports)
		if err != nil {
			return err
		}
		defer ln.Close()
		for _, child := range children {
			conn, err := ln.Accept()
			if err != nil {
				return ferror.Wrap(ferror.Fatal, err, "accept child connection")
			}
			params := bootstrap.SessionParams{ServiceID: 1, SessionID: sessionID, AcceptID: uint32(child)}
			if err := bootstrap.ServerHandshake(conn, params); err != nil {
				conn.Close()
				return err
			}
			edges.Children[child] = conn
		}
	}

	if topo.HasParent {
		parentHost, _ := hosts.Nth(topo.ParentRank)
		cfg := n.Config.BootstrapConnectConfig()
		metrics.BootstrapConnectAttemptsTotal.Inc()
		conn, err := bootstrap.DialWithBackoff(parentHost, ports, cfg)
		if err != nil {
			return err
		}
		params := bootstrap.SessionParams{ServiceID: 1, SessionID: sessionID, AcceptID: uint32(rank)}
		if err := bootstrap.ClientHandshake(conn, params); err != nil {
			conn.Close()
			return err
		}
		edges.Parent = conn
	}

	n.Edges = edges
	timer.ObserveDuration(metrics.BootstrapHandshakeDuration)
	n.Events.Publish(&events.Event{Type: events.TypeBootstrapRankAssigned, Subject: "rank-" + strconv.Itoa(rank)})
	nodeLog.Info().Int("rank", rank).Int("nprocs", nprocs).Msg("bootstrap rank assigned")
	return nil
}

// NextEpoch returns a monotonically increasing epoch value for use as
// the Cache's last-use timestamp and Commit's Process(epoch) argument.
func (n *Node) NextEpoch() int64 {
	n.epoch++
	return n.epoch
}

// NewFenceName mints a fresh fence name when the caller has none of
// its own.
func NewFenceName() string {
	return uuid.NewString()
}

// Commit submits ops against rootRef as a standalone (non-fenced)
// commit and drives it through every stall until it finishes or fails,
// returning the commit (whose Newroot is set once finished).
func (n *Node) Commit(rootRef string, ops []commit.Op) (*commit.Commit, error) {
	c := commit.New(NewFenceName(), n.Cache, n.HashAlgo, rootRef, ops)
	timer := metrics.NewTimer()
	for {
		result, err := c.Process(n.NextEpoch())
		if err != nil {
			timer.ObserveDuration(metrics.CommitDuration)
			n.Events.Publish(&events.Event{Type: events.TypeCommitFinished, Subject: c.Name, Err: err})
			return c, err
		}
		switch result {
		case commit.ResultFinished:
			timer.ObserveDuration(metrics.CommitDuration)
			n.Events.Publish(&events.Event{Type: events.TypeCommitFinished, Subject: c.Name})
			return c, nil
		case commit.ResultLoadMissingRefs:
			metrics.CommitStallsTotal.Inc()
			if err := n.loadMissing(c.MissingRefs()); err != nil {
				return c, err
			}
		case commit.ResultDirtyCacheEntries:
			metrics.CommitStallsTotal.Inc()
			if err := n.flushDirty(c.DirtyRefs()); err != nil {
				return c, err
			}
		case commit.ResultError:
			timer.ObserveDuration(metrics.CommitDuration)
			errnum, _ := c.Errnum()
			return c, ferror.New(ferror.Fatal, "commit %s aborted with errnum %d", c.Name, errnum)
		}
	}
}

func (n *Node) loadMissing(refs []string) error {
	for _, ref := range refs {
		data, err := n.Store.Get(ref)
		if err != nil {
			return err
		}
		entry := n.Cache.LookupOrCreate(ref, n.NextEpoch())
		if !entry.IsValid() {
			if err := entry.SetValid(data); err != nil {
				return err
			}
		}
	}
	return nil
}

func (n *Node) flushDirty(refs []string) error {
	for _, ref := range refs {
		entry, ok := n.Cache.Lookup(ref, n.NextEpoch())
		if !ok {
			continue
		}
		data, ok := entry.Bytes()
		if !ok {
			continue
		}
		if err := n.Store.Put(ref, data); err != nil {
			return err
		}
		entry.ClearDirty()
	}
	return nil
}

// RootObject is a convenience for tests and the CLI: wraps an empty
// directory tree object as a commit's initial root.
func RootObject() *treeobj.Object {
	return treeobj.NewDir()
}
