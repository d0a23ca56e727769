// Command incidentctl is the operator CLI for the incident service: it seeds
// the delivery channel with synthetic reports and manages stored records.
package main

import (
	"os"
)

func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
