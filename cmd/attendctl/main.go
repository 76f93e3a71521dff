// Command attendctl is the operator CLI: training, live capture, enrollment
// and reports against the same stores the API uses.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
