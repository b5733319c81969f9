// Package main provides the booking-admin CLI tool for managing orders on a
// running booking server.
package main

import (
	"os"

	"github.com/sirosfoundation/go-booking-backend/cmd/booking-admin/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
