package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/flux-framework/flux-core-go/pkg/kvs/cache"
	"github.com/flux-framework/flux-core-go/pkg/kvs/commit"
	"github.com/flux-framework/flux-core-go/pkg/kvs/treeobj"
	"github.com/flux-framework/flux-core-go/pkg/node"
)

var kvsCmd = &cobra.Command{
	Use:   "kvs",
	Short: "Interact with the KVS content store and commit engine",
}

var kvsPutCmd = &cobra.Command{
	Use:   "put <value>",
	Short: "Store a raw value blob and print its content-addressed reference",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := node.New(cfg)
		if err != nil {
			return err
		}
		defer n.Close()

		ref, err := cache.Hash(n.HashAlgo, []byte(args[0]))
		if err != nil {
			return err
		}
		if err := n.Store.Put(ref, []byte(args[0])); err != nil {
			return err
		}
		fmt.Println(ref)
		return nil
	},
}

var kvsGetCmd = &cobra.Command{
	Use:   "get <ref>",
	Short: "Fetch a blob by its content-addressed reference",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := node.New(cfg)
		if err != nil {
			return err
		}
		defer n.Close()

		data, err := n.Store.Get(args[0])
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	},
}

var kvsCommitCmd = &cobra.Command{
	Use:   "commit <root-ref> <key> <value>",
	Short: "Submit a single-key write against an existing root and print the new root",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		rootRef, key, value := args[0], args[1], args[2]

		n, err := node.New(cfg)
		if err != nil {
			return err
		}
		defer n.Close()

		rootData, err := n.Store.Get(rootRef)
		if err != nil {
			return err
		}
		entry := n.Cache.LookupOrCreate(rootRef, n.NextEpoch())
		if !entry.IsValid() {
			if err := entry.SetValid(rootData); err != nil {
				return err
			}
		}

		c, err := n.Commit(rootRef, []commit.Op{{Key: key, Value: treeobj.NewVal([]byte(value))}})
		if err != nil {
			return err
		}
		newroot, _ := c.Newroot()
		fmt.Println(newroot)
		return nil
	},
}

func init() {
	kvsCmd.AddCommand(kvsPutCmd, kvsGetCmd, kvsCommitCmd)
}
