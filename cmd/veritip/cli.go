package main

import (
	"fmt"
	"os"
	"path/filepath"
)

func main() {
	os.Exit(run(os.Args))
}

func run(args []string) int {
	if len(args) < 2 {
		usage(args)
		return 1
	}

	switch args[1] {
	case "verify":
		return runVerify(args[2:])
	case "digest":
		return runDigest(args[2:])
	case "inspect":
		return runInspect(args[2:])
	}

	usage(args)
	return 1
}

func usage(args []string) {
	name := "veritip"
	if len(args) > 0 && args[0] != "" {
		name = filepath.Base(args[0])
	}
	fmt.Fprintf(os.Stderr, "usage:\n")
	fmt.Fprintf(os.Stderr, "  %s verify (--cert <file> --tree <file> | --ledger <url>) (--root-key-hex <hex>|--root-key-base64 <b64>) --service-id-hex <hex> [--label <name>]... [--max-skew-seconds <n>] [--out <file>]\n", name)
	fmt.Fprintf(os.Stderr, "  %s digest --tree <file>\n", name)
	fmt.Fprintf(os.Stderr, "  %s inspect --tree <file> [--out <file>]\n", name)
}
