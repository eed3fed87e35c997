// Package main provides the operator CLI for an offerdex node: catalog
// search and inspection, signed publishing, CSV import/export, and
// access token minting.
package main

import (
	"fmt"
	"os"
)

// Version can be overridden at build time.
var Version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "search":
		err = runSearch(args)
	case "get":
		err = runGet(args)
	case "list":
		err = runList(args)
	case "publish":
		err = runPublish(args)
	case "withdraw":
		err = runWithdraw(args)
	case "import":
		err = runImport(args)
	case "export":
		err = runExport(args)
	case "stats":
		err = runStats(args)
	case "token":
		err = runToken(args)
	case "keygen":
		err = runKeygen(args)
	case "version":
		fmt.Printf("offerdex-search version %s\n", Version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Offerdex operator CLI")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  offerdex-search <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  search     Search the catalog")
	fmt.Println("  get        Fetch one offering by provider and key")
	fmt.Println("  list       List a provider's offerings")
	fmt.Println("  publish    Sign a catalog CSV and publish it")
	fmt.Println("  withdraw   Withdraw one offering or a whole catalog")
	fmt.Println("  import     Import a catalog CSV without a signature")
	fmt.Println("  export     Export the catalog as CSV")
	fmt.Println("  stats      Show node statistics")
	fmt.Println("  token      Mint an operator bearer token")
	fmt.Println("  keygen     Generate a provider signing key")
	fmt.Println("  version    Show version information")
	fmt.Println("  help       Show this help message")
	fmt.Println()
	fmt.Println("The node address defaults to $OFFERDEX_ADDR, the bearer token")
	fmt.Println("to $OFFERDEX_TOKEN. Run 'offerdex-search <command> --help' for")
	fmt.Println("command flags.")
}

func defaultAddr() string {
	if addr := os.Getenv("OFFERDEX_ADDR"); addr != "" {
		return addr
	}
	return "http://localhost:8080"
}

func defaultToken() string {
	return os.Getenv("OFFERDEX_TOKEN")
}
