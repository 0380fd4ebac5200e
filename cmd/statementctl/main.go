// statementctl runs the statement pipeline from a terminal.
//
// Usage:
//
//	statementctl process <file.pdf> [--user=<id>] [--email=<address>]
//	statementctl run <operation> <document-id>
//	statementctl select-pages <document-id>
//	statementctl validate <document-id>
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
