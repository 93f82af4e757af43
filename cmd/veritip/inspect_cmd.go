package main

import (
	"encoding/hex"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"unicode/utf8"

	"veritip/internal/infra/hashtree"
)

type inspectNode struct {
	Kind   string       `json:"kind"`
	Label  string       `json:"label,omitempty"`
	Value  string       `json:"value,omitempty"`
	Digest string       `json:"digest,omitempty"`
	Left   *inspectNode `json:"left,omitempty"`
	Right  *inspectNode `json:"right,omitempty"`
	Tree   *inspectNode `json:"tree,omitempty"`
}

func runInspect(args []string) int {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var treePath string
	var outPath string
	fs.StringVar(&treePath, "tree", "", "hash tree file (raw CBOR)")
	fs.StringVar(&outPath, "out", "", "output path (default stdout)")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if treePath == "" {
		fmt.Fprintln(os.Stderr, "inspect requires --tree")
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

	doc := struct {
		RootDigest string       `json:"root_digest"`
		Tree       *inspectNode `json:"tree"`
	}{
		RootDigest: hex.EncodeToString(digest[:]),
		Tree:       describe(node),
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode output: %v\n", err)
		return 1
	}
	if err := writeOutput(outPath, out); err != nil {
		fmt.Fprintf(os.Stderr, "write output: %v\n", err)
		return 1
	}
	return 0
}

func describe(node hashtree.Node) *inspectNode {
	switch n := node.(type) {
	case hashtree.Empty:
		return &inspectNode{Kind: "empty"}
	case hashtree.Fork:
		return &inspectNode{
			Kind:  "fork",
			Left:  describe(n.Left),
			Right: describe(n.Right),
		}
	case hashtree.Labeled:
		return &inspectNode{
			Kind:  "labeled",
			Label: renderBytes(n.Label),
			Tree:  describe(n.Tree),
		}
	case hashtree.Leaf:
		return &inspectNode{Kind: "leaf", Value: renderBytes(n.Value)}
	case hashtree.Pruned:
		return &inspectNode{Kind: "pruned", Digest: hex.EncodeToString(n.Digest[:])}
	default:
		return nil
	}
}

func renderBytes(value []byte) string {
	if utf8.Valid(value) && isPrintable(value) {
		return string(value)
	}
	return "0x" + hex.EncodeToString(value)
}

func isPrintable(value []byte) bool {
	for _, b := range value {
		if b < 0x20 || b > 0x7E {
			return false
		}
	}
	return len(value) > 0
}
