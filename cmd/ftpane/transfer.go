package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/quocson95/ftpane/pkg/session"
	"github.com/quocson95/ftpane/pkg/transfer"
	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func newGetCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get REMOTE [LOCAL]",
		Short: "Download one file",
		Long: `Download REMOTE into LOCAL. REMOTE may be relative to the login
directory. LOCAL defaults to the file name in the current directory.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, done, err := cliLogger(opts)
			if err != nil {
				return err
			}
			defer done()

			m, err := dial(cmd.Context(), opts, log)
			if err != nil {
				return err
			}
			defer m.Close()

			remote := m.Remote()
			src := remote.Join(args[0])
			if path.IsAbs(args[0]) {
				src = path.Clean(args[0])
			}
			dst := path.Base(src)
			if len(args) == 2 {
				dst = args[1]
			}
			if info, err := os.Stat(dst); err == nil && info.IsDir() {
				dst = filepath.Join(dst, path.Base(src))
			}

			size, err := remoteSize(m, src)
			if err != nil {
				return err
			}
			task, err := m.StartDownload(src, dst, size)
			if err != nil {
				return err
			}
			return watch(task, "⬇ "+path.Base(src))
		},
	}
}

func newPutCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "put LOCAL [REMOTE]",
		Short: "Upload one file",
		Long: `Upload LOCAL to REMOTE. REMOTE defaults to the file name in the login
directory; a relative REMOTE is resolved against it.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := os.Stat(args[0])
			if err != nil {
				return err
			}
			if info.IsDir() {
				return fmt.Errorf("%s is a directory; only single files are transferred", args[0])
			}

			log, done, err := cliLogger(opts)
			if err != nil {
				return err
			}
			defer done()

			m, err := dial(cmd.Context(), opts, log)
			if err != nil {
				return err
			}
			defer m.Close()

			dst := filepath.Base(args[0])
			if len(args) == 2 {
				dst = args[1]
			}
			if !path.IsAbs(dst) {
				dst = m.Remote().Join(dst)
			}

			task, err := m.StartUpload(args[0], dst, info.Size())
			if err != nil {
				return err
			}
			return watch(task, "⬆ "+filepath.Base(args[0]))
		},
	}
}

// dial connects and logs in using flags, env and a password prompt
func dial(ctx context.Context, opts *options, log zerolog.Logger) (*session.Manager, error) {
	if opts.host == "" {
		return nil, errors.New("no host given; use --host or FTPANE_HOST")
	}
	cfg, err := opts.sessionConfig()
	if err != nil {
		return nil, err
	}
	user := opts.user
	if user == "" {
		user = "anonymous"
	}
	password, err := readPassword(user)
	if err != nil {
		return nil, err
	}

	m := session.NewManager(cfg, log)
	if err := m.Connect(ctx, opts.host); err != nil {
		return nil, err
	}
	if err := m.Login(user, password); err != nil && !m.IsConnected() {
		m.Close()
		return nil, err
	}
	return m, nil
}

// readPassword takes FTPANE_PASSWORD if set and prompts otherwise
func readPassword(user string) (string, error) {
	if pw, ok := os.LookupEnv("FTPANE_PASSWORD"); ok {
		return pw, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		if user == "anonymous" {
			return "anonymous@", nil
		}
		return "", errors.New("no password: set FTPANE_PASSWORD or run from a terminal")
	}
	fmt.Fprintf(os.Stderr, "Password for %s: ", user)
	pw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(pw), nil
}

// remoteSize looks p up in its parent listing; -1 when it is not listed
func remoteSize(m *session.Manager, p string) (int64, error) {
	remote := m.Remote()
	if _, err := remote.Goto(path.Dir(p)); err != nil {
		return 0, err
	}
	name := path.Base(p)
	for _, e := range remote.Entries() {
		if e.Name != name {
			continue
		}
		if e.IsDir() {
			return 0, fmt.Errorf("%s is a directory; only single files are transferred", p)
		}
		return e.SizeBytes, nil
	}
	return -1, nil
}

// watch renders a task's events as a progress bar until it finishes
func watch(task *transfer.Task, description string) error {
	bar := progressbar.NewOptions64(task.Total(),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowBytes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(os.Stderr)
		}),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetRenderBlankState(true),
	)

	for ev := range task.Events() {
		switch ev.Status {
		case transfer.Running:
			bar.Set64(ev.Transferred)
		case transfer.Done:
			if ev.Total >= 0 {
				bar.ChangeMax64(ev.Total)
			}
			bar.Set64(ev.Transferred)
			bar.Finish()
		case transfer.Failed:
			bar.Exit()
			fmt.Fprintln(os.Stderr)
			return ev.Err
		}
	}
	return nil
}
