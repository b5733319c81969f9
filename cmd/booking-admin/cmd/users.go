package cmd

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/sirosfoundation/go-booking-backend/internal/domain"
	"github.com/sirosfoundation/go-booking-backend/pkg/protocol"
)

var usersCmd = &cobra.Command{
	Use:   "users",
	Short: "Manage customer accounts",
	Long:  `Commands for registering customers and checking their credentials.`,
}

var (
	userName     string
	userEmail    string
	userPassword string
)

// reply waits for the success or error answer to a user event
func reply(s *session, success, failure protocol.Event) (*domain.Profile, error) {
	env, err := s.Expect(timeout, success, failure)
	if err != nil {
		return nil, err
	}
	if env.Event == failure {
		var msg string
		if err := env.DecodeData(&msg); err != nil {
			msg = string(env.Data)
		}
		return nil, errors.New(msg)
	}
	var profile domain.Profile
	if err := env.DecodeData(&profile); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &profile, nil
}

func printProfile(cmd *cobra.Command, profile *domain.Profile) {
	printTable(cmd.OutOrStdout(), []string{"ID", "NAME", "EMAIL"}, [][]string{
		{strconv.FormatInt(profile.ID, 10), profile.Name, profile.Email},
	})
}

var usersRegisterCmd = &cobra.Command{
	Use:   "register",
	Short: "Register a customer",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if userEmail == "" {
			return fmt.Errorf("--email is required")
		}

		s, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.Emit(protocol.EventRegister, domain.Registration{
			Name:     userName,
			Email:    userEmail,
			Password: userPassword,
		}); err != nil {
			return err
		}
		profile, err := reply(s, protocol.EventRegisterSuccess, protocol.EventRegisterError)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "User '%s' registered with id %d.\n", profile.Email, profile.ID)
		return nil
	},
}

var usersLoginCmd = &cobra.Command{
	Use:   "login",
	Short: "Check a customer's credentials",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if userEmail == "" {
			return fmt.Errorf("--email is required")
		}

		s, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		if err := s.Emit(protocol.EventLogin, domain.Credentials{
			Email:    userEmail,
			Password: userPassword,
		}); err != nil {
			return err
		}
		profile, err := reply(s, protocol.EventLoginSuccess, protocol.EventLoginError)
		if err != nil {
			return err
		}

		printProfile(cmd, profile)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(usersCmd)
	usersCmd.AddCommand(usersRegisterCmd)
	usersCmd.AddCommand(usersLoginCmd)

	for _, c := range []*cobra.Command{usersRegisterCmd, usersLoginCmd} {
		c.Flags().StringVar(&userEmail, "email", "", "Email address (required)")
		c.Flags().StringVar(&userPassword, "password", "", "Password")
	}
	usersRegisterCmd.Flags().StringVar(&userName, "name", "", "Display name")
}
