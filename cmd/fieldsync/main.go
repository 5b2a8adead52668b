// fieldsync is the offline-first sync engine for the FieldAxis mobile
// field-sales companion. It maintains a local SQLite cache of leads,
// customers, and quotations, pulled from the FieldAxis CRM API.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
