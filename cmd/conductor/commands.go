package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/fatih/color"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"conductor/internal/adapter/tool"
	"conductor/internal/domain"
	"conductor/internal/infra/config"
	"conductor/internal/infra/tracer"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	var (
		agentID      string
		printMetrics bool
		plain        bool
	)
	cmd := &cobra.Command{
		Use:   "run [flags] prompt...",
		Short: "Run one agent turn and print the answer",
		Long: `Run one agent turn. Without --agent, a leading @agent mention picks the
agent and anything else goes to the default agent. A prompt of "-" is read
from stdin.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prompt, err := readPrompt(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cfg, log, closeLog, err := loadRuntime(opts)
			if err != nil {
				return err
			}
			defer closeLog()

			shutdownTracer, err := tracer.Setup(ctx, cfg.Tracer)
			if err != nil {
				return fmt.Errorf("tracer: %w", err)
			}
			defer func() { _ = shutdownTracer(context.WithoutCancel(ctx)) }()

			app, err := buildApp(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer app.Close()

			if cfg.Metrics.Addr != "" {
				go func() {
					if err := app.Metrics.Serve(ctx, cfg.Metrics.Addr, cfg.Metrics.Path, log); err != nil {
						log.Error("metrics endpoint failed", "error", err)
					}
				}()
			}

			resp, err := app.Ask(ctx, agentID, prompt)
			if err != nil {
				return err
			}
			writeResponse(cmd.OutOrStdout(), resp, plain)

			if printMetrics {
				return writeMetrics(cmd.ErrOrStderr(), app)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&agentID, "agent", "a", "", "agent id (default: @mention or agents.default)")
	cmd.Flags().BoolVar(&printMetrics, "metrics", false, "print collected metrics to stderr after the turn")
	cmd.Flags().BoolVar(&plain, "plain", false, "print the answer without markdown rendering or color")
	cmd.PreRun = func(*cobra.Command, []string) {
		if plain {
			color.NoColor = true
		}
	}
	return cmd
}

func readPrompt(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 && args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read prompt: %w", err)
		}
		args = []string{string(data)}
	}
	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt == "" {
		return "", errors.New("prompt is empty")
	}
	return prompt, nil
}

func writeMetrics(w io.Writer, app *App) error {
	families, err := app.Metrics.Registry().Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}

// withApp loads config and builds the app for the listing commands.
func withApp(cmd *cobra.Command, opts *rootOptions, fn func(*App) error) error {
	cfg, log, closeLog, err := loadRuntime(opts)
	if err != nil {
		return err
	}
	defer closeLog()

	app, err := buildApp(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer app.Close()
	return fn(app)
}

func newAgentsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List the registered agents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(app *App) error {
				writeAgents(cmd.OutOrStdout(), app.Agents.List(), app.Agents.DefaultID())
				return nil
			})
		},
	}
}

func writeAgents(w io.Writer, agents []domain.AgentConfig, defaultID string) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, color.CyanString("ID")+"\t"+color.CyanString("ROLE")+"\t"+
		color.CyanString("STRATEGY")+"\t"+color.CyanString("TOOLS"))
	for _, a := range agents {
		id := a.ID
		if id == defaultID {
			id += color.HiBlackString(" (default)")
		}
		strategy := string(a.Strategy)
		if a.Model != "" {
			strategy += " " + a.Model
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", id, a.Role, strategy, describeTools(a.Tools))
	}
	_ = tw.Flush()
}

func newToolsCmd(opts *rootOptions) *cobra.Command {
	var category string
	cmd := &cobra.Command{
		Use:   "tools",
		Short: "List the registered tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if category != "" && tool.CategoryTools(category) == nil {
				return fmt.Errorf("unknown category %q (want one of: %s)",
					category, strings.Join(tool.AllCategories(), ", "))
			}
			return withApp(cmd, opts, func(app *App) error {
				tools := app.Tools.Registry.List()
				if category != "" {
					tools = app.Tools.Registry.ListByCategory(category)
				}
				writeTools(cmd.OutOrStdout(), tools)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&category, "category", "c", "", "only list tools in this category")
	return cmd
}

func writeTools(w io.Writer, tools []domain.Tool) {
	if len(tools) == 0 {
		fmt.Fprintln(w, "no tools registered")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, color.CyanString("NAME")+"\t"+color.CyanString("DESCRIPTION"))
	for _, t := range tools {
		fmt.Fprintf(tw, "%s\t%s\n", t.Name(), t.Description())
	}
	_ = tw.Flush()
}

func newModelsCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "Show the pricing catalog and where each model is routed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, opts, func(app *App) error {
				writeModels(cmd.OutOrStdout(), app)
				return nil
			})
		},
	}
}

func writeModels(w io.Writer, app *App) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, strings.Join([]string{
		color.CyanString("MODEL"), color.CyanString("PROVIDER"),
		color.CyanString("IN $/1M"), color.CyanString("OUT $/1M"),
		color.CyanString("COMPLEXITY"), color.CyanString("ROUTE"),
	}, "\t"))
	for _, p := range app.Selector.Catalog() {
		levels := make([]string, len(p.Complexities))
		for i, c := range p.Complexities {
			levels[i] = c.String()
			if app.Selector.DefaultFor(c) == p.Model {
				levels[i] += "*"
			}
		}
		route := color.RedString("unavailable")
		if provider, err := app.LLM.Router.Route(p.Model); err == nil {
			route = provider.Name()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			p.Model, p.Provider, p.Input.String(), p.Output.String(), strings.Join(levels, ","), route)
	}
	_ = tw.Flush()
	fmt.Fprintln(w, color.HiBlackString("* default model for that complexity"))
}

func newEncryptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt value",
		Short: "Encrypt a secret for use in the config file",
		Long:  "Encrypt a secret with CONDUCTOR_CONFIG_KEY and print it as an enc: value.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			passphrase := os.Getenv("CONDUCTOR_CONFIG_KEY")
			if passphrase == "" {
				return errors.New("CONDUCTOR_CONFIG_KEY is not set")
			}
			enc, err := config.EncryptValue(args[0], passphrase)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "enc:"+enc)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "conductor "+version)
		},
	}
}
