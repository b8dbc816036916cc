// Package main is the entry point for the ETL process.
package main

import (
	"os"

	"github.com/whois-cat/ETL/cmd/etl/app"
)

func main() {
	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
