// Package cli provides the command-line interface for pgtunnel.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"pgtunnel/internal/appconfig"
	"pgtunnel/internal/doctor"
	"pgtunnel/internal/events"
	"pgtunnel/internal/logx"
	"pgtunnel/internal/wrap"
)

var errStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))

// Execute runs the CLI and returns the process exit code. Interrupt signals
// cancel the command context so tunnels are torn down before exit.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	code := 0
	root := NewRootCommand(&code)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, errStyle.Render("Error: "+err.Error()))
		if code == 0 {
			code = wrap.CodeOf(err)
		}
	}
	return code
}

// NewRootCommand creates the root cobra command. Exit codes from wrapped
// invocations are written through exitCode because they must survive cobra's
// error handling unchanged.
func NewRootCommand(exitCode *int) *cobra.Command {
	root := &cobra.Command{
		Use:           "pgtunnel",
		Short:         "PostgreSQL dump tools with transparent SSH tunnels",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newWrapCmd(exitCode, "dump", "pg_dump", "Run pg_dump, tunneling the connection when a rule matches"),
		newWrapCmd(exitCode, "dumpall", "pg_dumpall", "Run pg_dumpall, tunneling the connection when a rule matches"),
		newDoctorCmd(exitCode),
		newEventsCmd(),
	)
	return root
}

func newWrapCmd(exitCode *int, name, tool, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name + " [--ssh-tunnel URL] [--dsn ALIAS] [-v] [" + tool + " options...]",
		Short: short,
		Long: short + `.

Wrapper-owned flags:
  --ssh-tunnel URL   explicit SSH tunnel (e.g. ssh://user@bastion:2222); wins over configured rules
  --dsn ALIAS        DSN alias matched against dsn_ssh_tunnels rules
  -v, --verbose      show tunnel debug output

Every other argument is passed to ` + tool + ` verbatim.`,
		// The wrapped tool's flags must pass through untouched, so cobra
		// must not parse anything here.
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, rest := extractWrapperFlags(args)
			if w.help {
				return cmd.Help()
			}

			logger := logx.New(w.verbose)
			slog.SetDefault(logger)

			cfg := appconfig.LoadOrEmpty(logger)
			code, err := wrap.Run(cmd.Context(), wrap.Options{
				Tool:      tool,
				Args:      rest,
				TunnelURL: w.tunnelURL,
				DSNAlias:  w.dsnAlias,
				Config:    cfg,
				Logger:    logger,
				Journal:   events.NewStore(),
			})
			*exitCode = code
			if err != nil {
				fmt.Fprintln(os.Stderr, errStyle.Render(err.Error()))
			}
			return nil
		},
	}
}

func newDoctorCmd(exitCode *int) *cobra.Command {
	var jsonOut bool
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose the local pgtunnel environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			report := doctor.Run()
			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(report)
			}
			if len(report.Issues) == 0 {
				fmt.Println("no issues found")
				return nil
			}
			fmt.Printf("%-8s %-14s %-28s %s\n", "SEV", "CHECK", "TARGET", "MESSAGE")
			for _, is := range report.Issues {
				fmt.Printf("%-8s %-14s %-28s %s\n", is.Severity, is.Check, is.Target, is.Message)
				if is.Recommendation != "" {
					fmt.Printf("%-8s %-14s %-28s ↳ %s\n", "", "", "", is.Recommendation)
				}
			}
			for _, is := range report.Issues {
				if is.Severity == doctor.SeverityHigh {
					*exitCode = 1
					break
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	return cmd
}

func newEventsCmd() *cobra.Command {
	var (
		tool    string
		since   time.Duration
		limit   int
		jsonOut bool
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Show recent tunnel lifecycle events",
		RunE: func(cmd *cobra.Command, args []string) error {
			q := events.Query{Tool: tool, Limit: limit}
			if since > 0 {
				q.Since = time.Now().Add(-since)
			}
			evts, err := events.NewStore().Read(q)
			if err != nil {
				return err
			}
			if jsonOut {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(evts)
			}
			if len(evts) == 0 {
				fmt.Println("no events recorded")
				return nil
			}
			for _, e := range evts {
				fmt.Printf("%s  %-15s %-10s %s", e.Timestamp.Local().Format(time.DateTime), e.EventType, e.Tool, e.Tunnel)
				if e.LocalPort != 0 {
					fmt.Printf(" local=%d", e.LocalPort)
				}
				if e.Message != "" {
					fmt.Printf("  %s", e.Message)
				}
				fmt.Println()
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tool, "tool", "", "only events for this wrapped tool")
	cmd.Flags().DurationVar(&since, "since", 0, "only events newer than this (e.g. 24h)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "show at most this many events")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "output JSON")
	return cmd
}

type wrapperFlags struct {
	tunnelURL string
	dsnAlias  string
	verbose   bool
	help      bool
}

// extractWrapperFlags consumes the three wrapper-owned flags in either
// spelling and returns every remaining token untouched, in order. A leading
// --help or -h with no further arguments asks for the wrapper's own help;
// anywhere else "-h" is the wrapped tool's host flag and passes through.
func extractWrapperFlags(args []string) (wrapperFlags, []string) {
	var w wrapperFlags
	rest := make([]string, 0, len(args))

	if len(args) == 1 && (args[0] == "--help" || args[0] == "-h") {
		w.help = true
		return w, nil
	}

	for i := 0; i < len(args); i++ {
		tok := args[i]
		switch {
		case tok == "--ssh-tunnel" && i+1 < len(args):
			w.tunnelURL = args[i+1]
			i++
		case strings.HasPrefix(tok, "--ssh-tunnel="):
			w.tunnelURL = tok[len("--ssh-tunnel="):]
		case tok == "--dsn" && i+1 < len(args):
			w.dsnAlias = args[i+1]
			i++
		case strings.HasPrefix(tok, "--dsn="):
			w.dsnAlias = tok[len("--dsn="):]
		case tok == "-v" || tok == "--verbose":
			w.verbose = true
		default:
			rest = append(rest, tok)
		}
	}
	return w, rest
}
