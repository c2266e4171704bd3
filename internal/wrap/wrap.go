// Package wrap composes argument parsing, rule resolution, tunnel lifecycle
// and wrapped-tool execution around a single invocation. Data flows one way:
// raw tokens, parsed target, resolved rule, started endpoint, rewritten
// tokens, child exit code.
package wrap

import (
	"context"
	"errors"
	"log/slog"

	"pgtunnel/internal/appconfig"
	"pgtunnel/internal/connargs"
	"pgtunnel/internal/events"
	"pgtunnel/internal/pgexec"
	"pgtunnel/internal/rules"
	"pgtunnel/internal/tunnel"
)

// Options describes one wrapped invocation.
type Options struct {
	// Tool is the wrapped executable name, e.g. "pg_dump".
	Tool string
	// Args are the pass-through tokens for the tool.
	Args []string
	// TunnelURL is the explicit override; it wins over every configured rule.
	TunnelURL string
	// DSNAlias, when set, is matched against the alias rules.
	DSNAlias string

	Config appconfig.Config
	Logger *slog.Logger

	// Forwarder overrides the SSH forwarding capability, for tests.
	Forwarder tunnel.Forwarder
	// Runner overrides wrapped-tool execution, for tests.
	Runner func(ctx context.Context, path string, args []string) (int, error)
	// Finder overrides wrapped-tool location, for tests.
	Finder func(name string) string
	// Journal receives tunnel lifecycle events; nil disables journaling.
	Journal *events.Store
}

// Run performs one wrapped invocation and returns the process exit code.
// The tunnel endpoint, when one is started, lives exactly as long as the
// child process: its release is deferred here and runs on every exit path,
// including interruption.
func Run(ctx context.Context, opts Options) (code int, err error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	runner := opts.Runner
	if runner == nil {
		runner = pgexec.Run
	}
	finder := opts.Finder
	if finder == nil {
		finder = pgexec.Find
	}

	defHost, defPort, err := connargs.Defaults()
	if err != nil {
		return ExitSetupFailure, &ExitError{Code: ExitSetupFailure, Err: err}
	}
	target, err := connargs.Parse(opts.Args, defHost, defPort)
	if err != nil {
		return ExitSetupFailure, &ExitError{Code: ExitSetupFailure, Err: err}
	}
	logger.Debug("parsed connection target",
		"host", target.Host, "port", target.Port,
		"host_explicit", target.HostExplicit, "port_explicit", target.PortExplicit)

	resolver := &rules.Resolver{
		OverrideURL: opts.TunnelURL,
		HostRules:   opts.Config.HostRules(),
		AliasRules:  opts.Config.AliasRules(),
		Logger:      logger,
	}
	tunnelURL, tunneled := resolver.Resolve(target.Host, opts.DSNAlias)

	toolPath := finder(opts.Tool)
	logger.Debug("wrapped tool resolved", "tool", opts.Tool, "path", toolPath)

	if !tunneled {
		logger.Debug("no tunnel rule matched, connecting directly",
			"host", target.Host, "dsn", opts.DSNAlias)
		return finish(ctx, runner, toolPath, opts.Args)
	}

	lc := tunnel.NewLifecycle(forwarder(opts), tunnel.Options{
		AllowAgent: opts.Config.AgentAllowed(),
	}, logger)

	endpoint, err := lc.Start(ctx, tunnelURL, target)
	if err != nil {
		journal(opts, logger, events.Event{
			EventType:  events.TypeTunnelFailed,
			Tool:       opts.Tool,
			Tunnel:     tunnel.Redact(tunnelURL),
			RemoteHost: target.Host,
			RemotePort: target.Port,
			Message:    err.Error(),
		})
		return ExitSetupFailure, &ExitError{Code: ExitSetupFailure, Message: "SSH tunnel error", Err: err}
	}
	// The scoped release: runs on every return below, then records the stop.
	defer func() {
		lc.Stop()
		journal(opts, logger, events.Event{
			EventType: events.TypeTunnelStopped,
			Tool:      opts.Tool,
			Tunnel:    tunnel.Redact(tunnelURL),
			LocalPort: endpoint.LocalBindPort,
		})
	}()

	journal(opts, logger, events.Event{
		EventType:  events.TypeTunnelStarted,
		Tool:       opts.Tool,
		Tunnel:     tunnel.Redact(tunnelURL),
		RemoteHost: target.Host,
		RemotePort: target.Port,
		LocalPort:  endpoint.LocalBindPort,
	})
	logger.Debug("ssh tunnel active",
		"remote_host", target.Host, "remote_port", target.Port,
		"local_host", endpoint.LocalBindHost, "local_port", endpoint.LocalBindPort)

	rewritten := connargs.Rewrite(opts.Args, target, endpoint.LocalBindHost, endpoint.LocalBindPort)
	return finish(ctx, runner, toolPath, rewritten)
}

func finish(ctx context.Context, runner func(context.Context, string, []string) (int, error), path string, args []string) (int, error) {
	code, err := runner(ctx, path, args)
	if ctx.Err() != nil {
		return ExitInterrupt, nil
	}
	if err != nil {
		if errors.Is(err, pgexec.ErrExecutableNotFound) {
			return ExitSetupFailure, &ExitError{Code: ExitSetupFailure, Err: err}
		}
		return ExitSetupFailure, &ExitError{Code: ExitSetupFailure, Message: "could not run " + path, Err: err}
	}
	return code, nil
}

func forwarder(opts Options) tunnel.Forwarder {
	if opts.Forwarder != nil {
		return opts.Forwarder
	}
	return &tunnel.SSHForwarder{Logger: opts.Logger}
}

func journal(opts Options, logger *slog.Logger, evt events.Event) {
	if opts.Journal == nil {
		return
	}
	if err := opts.Journal.Append(evt); err != nil {
		logger.Debug("could not journal tunnel event", "error", err)
	}
}
