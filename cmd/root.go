package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"ticket-wallet/tui"
)

type Build struct {
	Name    string
	Version string
	Commit  string
}

func (b Build) String() string {
	out := fmt.Sprintf("%s %s", b.Name, b.Version)
	if b.Commit != "none" && b.Commit != "" {
		out += fmt.Sprintf(" (%s)", b.Commit)
	}
	return out
}

type globalFlags struct {
	configPath string
	apiURL     string
	storage    string
	logLevel   string
	logStderr  bool
	ephemeral  bool
}

func bindGlobalFlags(fs *pflag.FlagSet, g *globalFlags) {
	fs.StringVar(&g.configPath, "config", "", "path to a config.yaml (default: user config dir)")
	fs.StringVar(&g.apiURL, "api-url", "", "ticketing API base URL")
	fs.StringVar(&g.storage, "storage", "", "session storage backend: sqlite, redis or memory")
	fs.StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn or error")
	fs.BoolVar(&g.logStderr, "log-stderr", false, "write logs to stderr instead of the log file")
	fs.BoolVar(&g.ephemeral, "ephemeral", false, "keep the session in memory for this run only")
}

func NewRootCommand(build Build) *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:           build.Name,
		Short:         "Your event tickets, from the terminal",
		Long:          `Sign in to your ticketing account, browse purchased tickets and show their QR codes.`,
		Version:       build.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := bootstrap(cmd.Context(), flags)
			if err != nil {
				return err
			}
			defer a.Close()
			return tui.Run(tui.Options{
				Auth:    a.auth,
				Tickets: a.tickets,
				Sort:    a.cfg.SortDirection(),
				Logger:  a.logger,
			})
		},
	}
	root.SetVersionTemplate(build.String() + "\n")
	bindGlobalFlags(root.PersistentFlags(), flags)

	root.AddCommand(
		newLoginCmd(flags),
		newLogoutCmd(flags),
		newRegisterCmd(flags),
		newWhoamiCmd(flags),
		newTicketsCmd(flags),
		newTicketCmd(flags),
		newHealthCmd(flags),
		newDevServerCmd(flags),
		newVersionCmd(build),
	)
	return root
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, build Build) int {
	if err := NewRootCommand(build).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

func newVersionCmd(build Build) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), build.String())
		},
	}
}
