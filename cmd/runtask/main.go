package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/pengelbrecht/runtask/internal/api"
	"github.com/pengelbrecht/runtask/internal/config"
	"github.com/pengelbrecht/runtask/internal/logger"
	"github.com/pengelbrecht/runtask/internal/update"
)

var version = "dev"

// Set up by the root command before any subcommand runs.
var (
	cfg          *config.Config
	appLog       *logger.Logger
	client       *api.Client
	updateNotice string
)

var rootCmd = &cobra.Command{
	Use:   "runtask",
	Short: "Run tools on a task runner and follow their output",
	Long: `runtask is a terminal client for a task-runner service. Pick a tool, submit
its input, and follow the task's output until it finishes. Companion commands
browse the task history and manage stored files.`,
	Version:           version,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if updateNotice != "" {
			fmt.Fprintln(cmd.ErrOrStderr(), updateNotice)
		}
		if appLog != nil {
			_ = appLog.Sync()
		}
	},
}

// setup loads configuration and builds the logger and API client.
func setup(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("config")
	c, err := config.Load(path, cmd.Flags())
	if err != nil {
		return err
	}
	cfg = c

	logCfg := cfg.Logger
	if usesTUI(cmd) && isDefaultOutput(logCfg.OutputPaths) {
		// Log lines on stderr would tear the alternate screen.
		if dir := config.Dir(); dir != "" && os.MkdirAll(dir, 0755) == nil {
			logFile := filepath.Join(dir, "runtask.log")
			logCfg.OutputPaths = []string{logFile}
			logCfg.ErrorOutputPaths = []string{logFile}
		}
	}
	appLog, err = logger.New(logCfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	client, err = api.NewClient(api.Config{
		BaseURL:         cfg.API.BaseURL,
		Token:           cfg.API.Token,
		Timeout:         cfg.API.Timeout,
		RequestIDHeader: cfg.API.RequestIDHeader,
		UserAgent:       "runtask/" + version,
		Logger:          appLog.Zap(),
	})
	if err != nil {
		return err
	}

	if cfg.Update.Check && cmd != upgradeCmd && cmd != versionCmd {
		updateNotice = update.CheckPeriodically(cmd.Context(), version, appLog.Zap())
	}
	return nil
}

// usesTUI reports whether cmd will take over the terminal.
func usesTUI(cmd *cobra.Command) bool {
	f := cmd.Flags().Lookup("headless")
	if f == nil {
		return false
	}
	headless, _ := cmd.Flags().GetBool("headless")
	jsonl, _ := cmd.Flags().GetBool("jsonl")
	detach, _ := cmd.Flags().GetBool("detach")
	return !headless && !jsonl && !detach
}

func isDefaultOutput(paths []string) bool {
	return len(paths) == 0 || (len(paths) == 1 && paths[0] == "stderr")
}

// colorEnabled reports whether ANSI emphasis should reach w.
func colorEnabled(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the runtask version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "runtask %s\n", version)
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Config file (default $XDG_CONFIG_HOME/runtask/config.yaml)")
	pf.String("api", config.DefaultBaseURL, "Task runner base URL")
	pf.String("token", "", "Bearer token sent with every request")
	pf.String("log-level", "warn", "Log level (debug, info, warn, error)")
	pf.Duration("interval", config.DefaultPollInterval, "Delay between output polls")
	pf.String("host", "", "Host substituted into task output (default: host of --api)")

	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(rerunCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(filesCmd)
	rootCmd.AddCommand(upgradeCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
