// taxo is the CLI for the healthcare profession taxonomy platform:
// it ingests Master and customer taxonomy sources into the Bronze and
// Silver layers, runs the rule-based mapping engine, and projects
// approved mappings into Gold.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
