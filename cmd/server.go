package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"ticket-wallet/devserver"
	"ticket-wallet/logging"
	"ticket-wallet/service"
)

func newHealthCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the API is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.Close()

			started := time.Now()
			if err := a.client.CheckHealth(cmd.Context()); err != nil {
				return &displayError{message: fmt.Sprintf("%s is unreachable: %s", a.client.BaseURL(), service.Message(err)), err: err}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is reachable (%s)\n", a.client.BaseURL(), time.Since(started).Round(time.Millisecond))
			return nil
		},
	}
}

func newDevServerCmd(flags *globalFlags) *cobra.Command {
	var (
		addr     string
		username string
		password string
		role     string
		count    int
		pageSize int
		secret   string
	)
	c := &cobra.Command{
		Use:   "devserver",
		Short: "Run an in-memory ticketing API for local development",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := logging.ParseLevel(flags.logLevel)
			if err != nil {
				return err
			}
			logger := slog.New(logging.NewHandler(os.Stderr, "text", level))

			srv := devserver.New(devserver.Config{Secret: secret, PageSize: pageSize, Logger: logger})
			if err := srv.AddUser(username, password, role, count); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() { errCh <- srv.Start(addr) }()
			fmt.Fprintf(cmd.OutOrStdout(), "Dev API on %s, sign in as %s / %s\n", addr, username, password)

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return <-errCh
		},
	}
	c.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	c.Flags().StringVar(&username, "user", "demo", "seeded account username")
	c.Flags().StringVar(&password, "password", "demo123", "seeded account password")
	c.Flags().StringVar(&role, "role", "user", "seeded account role")
	c.Flags().IntVar(&count, "tickets", 45, "number of seeded tickets")
	c.Flags().IntVar(&pageSize, "page-size", 20, "tickets per page")
	c.Flags().StringVar(&secret, "secret", "", "HMAC secret for issued tokens")
	return c
}
