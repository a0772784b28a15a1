// Package main provides the decertify-admin CLI for inspecting certificate records.
package main

import (
	"os"

	"github.com/pawanM12/deCertify/cmd/decertify-admin/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
