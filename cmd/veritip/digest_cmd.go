package main

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"

	"veritip/internal/infra/hashtree"
)

func runDigest(args []string) int {
	fs := flag.NewFlagSet("digest", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var treePath string
	fs.StringVar(&treePath, "tree", "", "hash tree file (raw CBOR)")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if treePath == "" {
		fmt.Fprintln(os.Stderr, "digest requires --tree")
		return 1
	}

	data, err := os.ReadFile(treePath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read tree: %v\n", err)
		return 1
	}
	node, err := hashtree.Decode(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "decode tree: %v\n", err)
		return 1
	}
	digest := hashtree.Digest(node)
	fmt.Println(hex.EncodeToString(digest[:]))
	return 0
}
