package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"ticket-wallet/auth"
	"ticket-wallet/model"
	"ticket-wallet/service"
	"ticket-wallet/store"
)

func newLoginCmd(flags *globalFlags) *cobra.Command {
	var (
		username string
		password string
		remember bool
	)
	c := &cobra.Command{
		Use:   "login",
		Short: "Sign in and store the session on this device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), flags, func(ctx context.Context, a *app) error {
				prefs, _ := store.LoadPreferences()
				var err error
				if username == "" {
					username, err = promptValue("Username", prefs.SavedUsername, false)
					if err != nil {
						return err
					}
				}
				if password == "" {
					password, err = promptValue("Password", "", true)
					if err != nil {
						return err
					}
				}

				if err := a.auth.LoginWithPassword(ctx, username, password); err != nil {
					return userError(err)
				}
				if !cmd.Flags().Changed("remember") {
					remember = prefs.RememberMe
				}
				if err := store.RememberUsername(username, remember); err != nil {
					a.logger.Warn("preferences not saved", "error", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s (%s)\n", strings.TrimSpace(username), a.auth.State().Role)
				return nil
			})
		},
	}
	c.Flags().StringVarP(&username, "username", "u", "", "account username")
	c.Flags().StringVarP(&password, "password", "p", "", "account password (prompted when omitted)")
	c.Flags().BoolVar(&remember, "remember", false, "prefill this username next time")
	return c
}

func newLogoutCmd(flags *globalFlags) *cobra.Command {
	var forget bool
	c := &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), flags, func(ctx context.Context, a *app) error {
				err := a.auth.Logout(ctx)
				if forget {
					if prefErr := store.ForgetUsername(); prefErr != nil {
						a.logger.Warn("preferences not cleared", "error", prefErr)
					}
				}
				if err != nil {
					return fmt.Errorf("logged out, but the stored session could not be removed: %w", err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
				return nil
			})
		},
	}
	c.Flags().BoolVar(&forget, "forget", false, "also forget the remembered username")
	return c
}

func newRegisterCmd(flags *globalFlags) *cobra.Command {
	var reg model.Registration
	c := &cobra.Command{
		Use:   "register",
		Short: "Create an account and sign in",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), flags, func(ctx context.Context, a *app) error {
				fields := []struct {
					label  string
					value  *string
					secret bool
				}{
					{label: "Username", value: &reg.Username},
					{label: "Email", value: &reg.Email},
					{label: "Password", value: &reg.Password, secret: true},
					{label: "First name", value: &reg.FirstName},
					{label: "Last name", value: &reg.LastName},
				}
				for _, field := range fields {
					if *field.value != "" {
						continue
					}
					value, err := promptValue(field.label, "", field.secret)
					if err != nil {
						return err
					}
					*field.value = value
				}

				if err := a.auth.Register(ctx, reg); err != nil {
					return userError(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Account created, logged in as %s\n", reg.Username)
				return nil
			})
		},
	}
	c.Flags().StringVarP(&reg.Username, "username", "u", "", "username")
	c.Flags().StringVar(&reg.Email, "email", "", "email address")
	c.Flags().StringVarP(&reg.Password, "password", "p", "", "password (prompted when omitted)")
	c.Flags().StringVar(&reg.FirstName, "first-name", "", "first name")
	c.Flags().StringVar(&reg.LastName, "last-name", "", "last name")
	return c
}

func newWhoamiCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(cmd.Context(), flags, func(ctx context.Context, a *app) error {
				out := cmd.OutOrStdout()
				state := a.auth.State()
				if !state.IsLoggedIn {
					fmt.Fprintln(out, "Not logged in")
					return nil
				}
				fmt.Fprintf(out, "Role: %s\n", state.Role)
				if claims, ok := a.auth.Claims(); ok {
					if claims.Subject != "" {
						fmt.Fprintf(out, "User: %s\n", claims.Subject)
					}
					if !claims.ExpiresAt.IsZero() {
						status := "valid"
						if a.auth.TokenExpired() {
							status = "expired"
						}
						fmt.Fprintf(out, "Expires: %s (%s)\n", claims.ExpiresAt.Local().Format(time.RFC3339), status)
					}
				}
				return nil
			})
		},
	}
}

func promptValue(label string, defaultValue string, secret bool) (string, error) {
	prompt := promptui.Prompt{
		Label:   label,
		Default: defaultValue,
		Validate: func(input string) error {
			if strings.TrimSpace(input) == "" {
				return errors.New(strings.ToLower(label) + " is required")
			}
			return nil
		},
	}
	if secret {
		prompt.Mask = '*'
	}
	value, err := prompt.Run()
	if err != nil {
		return "", fmt.Errorf("%s: %w", strings.ToLower(label), err)
	}
	return value, nil
}

// userError turns auth and API failures into the one-line message shown
// to the user, keeping the original error for errors.Is/As.
func userError(err error) error {
	var validation *auth.ValidationError
	var registration *auth.RegistrationError
	switch {
	case errors.As(err, &validation), errors.As(err, &registration):
		return err
	case errors.Is(err, auth.ErrBusy):
		return err
	}
	return &displayError{message: service.Message(err), err: err}
}

type displayError struct {
	message string
	err     error
}

func (e *displayError) Error() string { return e.message }

func (e *displayError) Unwrap() error { return e.err }
