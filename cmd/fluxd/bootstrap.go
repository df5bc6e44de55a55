package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/flux-framework/flux-core-go/pkg/hostlist"
	"github.com/flux-framework/flux-core-go/pkg/node"
)

var (
	bootstrapRank    int
	bootstrapHosts   string
	bootstrapPorts   string
	bootstrapSession uint32
)

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Run the COBO-style rendezvous and print this rank's assigned tree position",
	RunE: func(cmd *cobra.Command, args []string) error {
		hosts, err := hostlist.Parse(bootstrapHosts)
		if err != nil {
			return err
		}
		ports, err := parsePorts(bootstrapPorts)
		if err != nil {
			return err
		}

		n, err := node.New(cfg)
		if err != nil {
			return err
		}
		defer n.Close()

		if err := n.Bootstrap(hosts, ports, bootstrapRank, bootstrapSession); err != nil {
			return err
		}

		fmt.Printf("rank=%d nprocs=%d parent=%v children=%v\n",
			n.Topology.Rank, n.Topology.Nprocs, n.Topology.ParentRank, n.Topology.Children)
		return nil
	},
}

func parsePorts(spec string) ([]int, error) {
	fields := strings.Split(spec, ",")
	ports := make([]int, 0, len(fields))
	for _, f := range fields {
		p, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			return nil, fmt.Errorf("invalid port %q: %w", f, err)
		}
		ports = append(ports, p)
	}
	return ports, nil
}

func init() {
	bootstrapCmd.Flags().IntVar(&bootstrapRank, "rank", 0, "This process's rank within the tree")
	bootstrapCmd.Flags().StringVar(&bootstrapHosts, "hosts", "", "Hostlist expression covering every rank, e.g. host[0-7]")
	bootstrapCmd.Flags().StringVar(&bootstrapPorts, "ports", "8050,8051,8052", "Comma-separated candidate port list")
	bootstrapCmd.Flags().Uint32Var(&bootstrapSession, "session", 1, "Bootstrap session id shared by every rank in this run")
}
