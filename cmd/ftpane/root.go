package main

import (
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/quocson95/ftpane/pkg/logging"
	"github.com/quocson95/ftpane/pkg/session"
	"github.com/quocson95/ftpane/pkg/tui"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// options are the global flags
type options struct {
	host    string
	port    int
	timeout time.Duration
	user    string
	debug   bool
	logFile string
}

func (o *options) sessionConfig() (session.Config, error) {
	cfg := session.DefaultConfig()
	cfg.Port = o.port
	cfg.Timeout = o.timeout
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "ftpane [host]",
		Short: "Dual-pane FTP browser",
		Long: `ftpane browses a local directory and an FTP server side by side and
copies single files between them. Data connections are always active mode.

Without a subcommand it starts the terminal UI; get and put copy one file
from the command line.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				opts.host = args[0]
			}
			return runTUI(opts)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.host, "host", os.Getenv("FTPANE_HOST"), "FTP host or ftp:// URL (env FTPANE_HOST)")
	flags.IntVarP(&opts.port, "port", "p", session.DefaultPort, "FTP control port")
	flags.DurationVar(&opts.timeout, "timeout", 10*time.Second, "connect, reply and data timeout")
	flags.StringVarP(&opts.user, "user", "u", os.Getenv("FTPANE_USER"), "login name (env FTPANE_USER)")
	flags.BoolVar(&opts.debug, "debug", false, "log debug messages")
	flags.StringVar(&opts.logFile, "log-file", "", "log file (default ~/.ftpane/debug.log in the UI)")

	rootCmd.AddCommand(newGetCmd(opts), newPutCmd(opts))
	return rootCmd
}

func runTUI(opts *options) error {
	cfg, err := opts.sessionConfig()
	if err != nil {
		return err
	}

	// The alt screen owns the terminal, so logs only go to a file.
	logFile := opts.logFile
	if logFile == "" {
		if logFile, err = logging.DefaultLogFile(); err != nil {
			return fmt.Errorf("failed to get home directory: %w", err)
		}
	}
	log, closer, err := logging.New(logging.Options{Debug: opts.debug, File: logFile})
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer closer.Close()

	manager := session.NewManager(cfg, log)
	app := tui.NewAppModel(manager, opts.host, opts.user, log)

	log.Info().Msg("starting ui")
	p := tea.NewProgram(app, tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		log.Error().Err(err).Msg("ui exited with error")
		return err
	}
	return nil
}

// cliLogger logs to stderr only in debug mode so progress bars stay
// readable, plus the log file when one is given.
func cliLogger(opts *options) (zerolog.Logger, func(), error) {
	lo := logging.Options{Debug: opts.debug, File: opts.logFile}
	if opts.debug {
		lo.Console = os.Stderr
	}
	log, closer, err := logging.New(lo)
	if err != nil {
		return zerolog.Nop(), func() {}, err
	}
	return log, func() { closer.Close() }, nil
}
