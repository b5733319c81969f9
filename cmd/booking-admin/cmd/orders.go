package cmd

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sirosfoundation/go-booking-backend/internal/domain"
	"github.com/sirosfoundation/go-booking-backend/pkg/client"
	"github.com/sirosfoundation/go-booking-backend/pkg/protocol"
)

var ordersCmd = &cobra.Command{
	Use:   "orders",
	Short: "Manage orders",
	Long:  `Commands for listing, confirming and tracking payment of orders.`,
}

// parseOrderArg reads an id the way it appears in a booking: JSON when the
// argument is valid JSON (1, "abc"), otherwise a plain string.
func parseOrderArg(arg string) (domain.OrderID, error) {
	if json.Valid([]byte(arg)) {
		return domain.ParseOrderID(json.RawMessage(arg))
	}
	raw, err := json.Marshal(arg)
	if err != nil {
		return "", err
	}
	return domain.ParseOrderID(raw)
}

func flagText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "-"
	}
	return string(raw)
}

var ordersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all orders",
	Long:  `List every order in the order it was booked.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		w := cmd.OutOrStdout()
		if output == "json" {
			data, err := json.Marshal(s.orders)
			if err != nil {
				return err
			}
			return printJSON(w, data)
		}

		if len(s.orders) == 0 {
			fmt.Fprintln(w, "No orders found.")
			return nil
		}

		headers := []string{"ID", "USER", "STATUS", "DEPOSIT", "FULL"}
		rows := make([][]string, 0, len(s.orders))
		for _, raw := range s.orders {
			var o domain.Order
			if err := json.Unmarshal(raw, &o); err != nil {
				rows = append(rows, []string{"?", "?", string(raw), "-", "-"})
				continue
			}
			status := "-"
			if o.Status != nil {
				status = *o.Status
			}
			flags := o.PaymentStatus()
			rows = append(rows, []string{o.ID.String(), string(o.UserID), status, flagText(flags.DepositPaid), flagText(flags.FullPaid)})
		}
		printTable(w, headers, rows)
		return nil
	},
}

var ordersConfirmCmd = &cobra.Command{
	Use:   "confirm <id>",
	Short: "Confirm an order",
	Long: `Confirm an order. The server does not answer for unknown ids, so a
missing confirmation within --timeout is reported as not found.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseOrderArg(args[0])
		if err != nil {
			return fmt.Errorf("invalid order id: %w", err)
		}

		s, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.Emit(protocol.EventConfirmOrder, id); err != nil {
			return err
		}
		if _, err := awaitOrder(s.Client, protocol.EventOrderConfirmed, id); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Order %s confirmed.\n", id)
		return nil
	},
}

var (
	payDeposit bool
	payFull    bool
)

var ordersPayCmd = &cobra.Command{
	Use:   "pay <id>",
	Short: "Update the payment status of an order",
	Long: `Update the payment flags of an order. Only the flags given on the
command line are changed; --deposit=false clears a flag.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseOrderArg(args[0])
		if err != nil {
			return fmt.Errorf("invalid order id: %w", err)
		}

		update := domain.PaymentUpdate{OrderID: id}
		if cmd.Flags().Changed("deposit") {
			update.DepositPaid = domain.BoolFlag(payDeposit)
		}
		if cmd.Flags().Changed("full") {
			update.FullPaid = domain.BoolFlag(payFull)
		}
		if update.DepositPaid == nil && update.FullPaid == nil {
			return fmt.Errorf("at least one of --deposit or --full is required")
		}

		s, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.Emit(protocol.EventUpdatePaymentStatus, update); err != nil {
			return err
		}
		env, err := awaitOrder(s.Client, protocol.EventPaymentStatusUpdated, id)
		if err != nil {
			return err
		}

		if output == "json" {
			return printJSON(cmd.OutOrStdout(), env.Data)
		}
		var status domain.PaymentStatus
		if err := env.DecodeData(&status); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Order %s: deposit %s, full %s\n",
			id, flagText(status.DepositPaid), flagText(status.FullPaid))
		return nil
	},
}

var ordersWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print order events as they happen",
	Long:  `Print the current orders, then every order event until interrupted.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		w := cmd.OutOrStdout()
		fmt.Fprintf(w, "%d orders loaded, watching for updates...\n", len(s.orders))

		go func() {
			<-cmd.Context().Done()
			_ = s.Close()
		}()

		for {
			env, err := s.Next(0)
			if err != nil {
				if cmd.Context().Err() != nil {
					return nil
				}
				return err
			}
			fmt.Fprintf(w, "%s %s\n", env.Event, string(env.Data))
		}
	},
}

// awaitOrder waits for event about id. Events about other orders, from
// other admins, are skipped.
func awaitOrder(c *client.Client, event protocol.Event, id domain.OrderID) (*protocol.Envelope, error) {
	for {
		env, err := c.Expect(timeout, event)
		if err != nil {
			if errors.Is(err, client.ErrTimeout) {
				return nil, fmt.Errorf("order %s not found", id)
			}
			return nil, err
		}

		var got domain.OrderID
		if event == protocol.EventPaymentStatusUpdated {
			var status domain.PaymentStatus
			if err := env.DecodeData(&status); err != nil {
				continue
			}
			got = status.OrderID
		} else if err := env.DecodeData(&got); err != nil {
			continue
		}
		if got == id {
			return env, nil
		}
	}
}

func init() {
	rootCmd.AddCommand(ordersCmd)
	ordersCmd.AddCommand(ordersListCmd)
	ordersCmd.AddCommand(ordersConfirmCmd)
	ordersCmd.AddCommand(ordersPayCmd)
	ordersCmd.AddCommand(ordersWatchCmd)

	ordersPayCmd.Flags().BoolVar(&payDeposit, "deposit", false, "Deposit paid")
	ordersPayCmd.Flags().BoolVar(&payFull, "full", false, "Fully paid")
}
