// Package cmd contains all CLI commands for booking-admin.
package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/sirosfoundation/go-booking-backend/pkg/client"
)

var (
	// Global flags
	serverURL string
	output    string
	timeout   time.Duration
)

// session is an open channel plus the order snapshot received on connect
type session struct {
	*client.Client
	orders []json.RawMessage
}

// connect opens a channel and reads the initial order snapshot
func connect(ctx context.Context) (*session, error) {
	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c, err := client.Dial(dialCtx, serverURL)
	if err != nil {
		return nil, err
	}
	orders, err := c.LoadOrders(timeout)
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("failed to load orders: %w", err)
	}
	return &session{Client: c, orders: orders}, nil
}

// printJSON formats and prints JSON output
func printJSON(w io.Writer, data []byte) error {
	var formatted bytes.Buffer
	if err := json.Indent(&formatted, data, "", "  "); err != nil {
		// If it's not valid JSON, just print as-is
		_, err = fmt.Fprintln(w, string(data))
		return err
	}
	_, err := fmt.Fprintln(w, formatted.String())
	return err
}

// printTable prints data in a simple table format
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	for i, h := range headers {
		fmt.Fprintf(w, "%-*s  ", widths[i], h)
	}
	fmt.Fprintln(w)

	for i := range headers {
		fmt.Fprintf(w, "%s  ", strings.Repeat("-", widths[i]))
	}
	fmt.Fprintln(w)

	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) {
				fmt.Fprintf(w, "%-*s  ", widths[i], cell)
			}
		}
		fmt.Fprintln(w)
	}
}

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "booking-admin",
	Short: "CLI tool for managing bookings",
	Long: `booking-admin talks to a running booking server over its real-time
channel, the same way the admin page does.

It provides commands for:
  - Orders: list, confirm, update payment status, watch live updates
  - Users: register and check credentials

Examples:
  # List all orders
  booking-admin orders list

  # Confirm order 1
  booking-admin orders confirm 1

  # Mark the deposit of order 1 as paid
  booking-admin orders pay 1 --deposit

Environment Variables:
  BOOKING_ADMIN_URL  Channel URL of the server (default: ws://localhost:3001/socket)`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "url", "u", getEnvOrDefault("BOOKING_ADMIN_URL", "ws://localhost:3001/socket"), "Server channel URL")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format: table, json")
	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 5*time.Second, "How long to wait for the server")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
