package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"myvc/internal/app"
	"myvc/internal/config"
)

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// Global flags.
var (
	flagDirectory string
	flagVerbose   bool
	flagServer    string
	flagPort      int
)

// loadConfig reads the user config, falling back to defaults when none has
// been written yet.
func loadConfig() (*config.Config, map[string]string, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadOrDefault(defaults["config_path"], app.DefaultAuthor(), defaults["base_dir"])
	if err != nil {
		return nil, nil, fmt.Errorf("reading config: %w", err)
	}
	if cfg.Author == "" {
		cfg.Author = app.DefaultAuthor()
	}
	return cfg, defaults, nil
}

// newApp reads the config and creates an App for the selected project. The
// caller must call Close.
func newApp(ctx context.Context, command, parameters string) (*app.App, error) {
	cfg, _, err := loadConfig()
	if err != nil {
		return nil, err
	}

	a, err := app.New(ctx, cfg, app.Options{
		Root:       flagDirectory,
		Command:    command,
		Parameters: parameters,
		Verbose:    flagVerbose,
		Server:     flagServer,
		Port:       flagPort,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}
	return a, nil
}

// withApp runs fn against a new App and records failure in the command
// journal before closing it.
func withApp(cmd *cobra.Command, parameters string, fn func(ctx context.Context, a *app.App) error) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, cmd.Name(), parameters)
	if err != nil {
		return err
	}
	err = fn(ctx, a)
	if err != nil {
		a.Fail()
	}
	if cerr := a.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// readPassphrase prompts on the terminal without echo.
func readPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(b), nil
}

const timeLayout = "2006-01-02 15:04:05"

var rootCmd = &cobra.Command{
	Use:          "myvc",
	Short:        "Real-time collaborative version control",
	SilenceUsage: true,
}

// init command
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a project in the current directory",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		root := flagDirectory
		if root == "" {
			root = "."
		}
		abs, err := app.InitProject(root)
		if err != nil {
			return err
		}
		if err := withApp(cmd, abs, func(_ context.Context, a *app.App) error {
			return a.Journal()
		}); err != nil {
			return err
		}
		fmt.Printf("Initialized empty myvc project in %s\n", abs)
		return nil
	},
}

// watch command
var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the project and record changes until interrupted",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "", func(ctx context.Context, a *app.App) error {
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			fmt.Printf("Watching %s (Ctrl-C to stop)\n", a.Root())
			if err := a.Watch(ctx); err != nil {
				return err
			}
			fmt.Println("Stopped.")
			return nil
		})
	},
}

// commit command
var commitCmd = &cobra.Command{
	Use:   "commit MESSAGE",
	Short: "Record a checkpoint",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		message := strings.Join(args, " ")
		return withApp(cmd, message, func(_ context.Context, a *app.App) error {
			cp, err := a.Commit(message)
			if err != nil {
				return err
			}
			fmt.Printf("Checkpoint %s (%d operations)\n", cp.ID, len(cp.Operations))
			return nil
		})
	},
}

// status command
var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show project status",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "", func(ctx context.Context, a *app.App) error {
			st, err := a.Status(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("Project:     %s\n", st.Root)
			fmt.Printf("Operations:  %d\n", st.Operations)
			fmt.Printf("Undelivered: %d\n", st.Pending)
			fmt.Printf("Snapshots:   %d\n", st.Snapshots)
			if cp := st.LastCheckpoint; cp != nil {
				fmt.Printf("Checkpoint:  %s  %s  %q\n", cp.ID, cp.Time().Format(timeLayout), cp.Message)
			} else {
				fmt.Println("Checkpoint:  none")
			}
			fmt.Printf("Transport:   %s\n", st.Transport)
			return nil
		})
	},
}

// log command
var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show recorded operations, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return withApp(cmd, "", func(_ context.Context, a *app.App) error {
			records, err := a.Log(limit)
			if err != nil {
				return err
			}
			if len(records) == 0 {
				fmt.Println("No operations recorded.")
				return nil
			}
			for _, r := range records {
				op := r.Operation
				fmt.Printf("%s  %-10s  %-11s  %s:%d  %s\n",
					r.Entry.Time().Format(timeLayout),
					op.Author,
					op.Kind,
					op.Path,
					op.Line,
					summarize(op.Text),
				)
			}
			return nil
		})
	},
}

func summarize(text string) string {
	text = strings.ReplaceAll(text, "\n", `\n`)
	if len(text) > 60 {
		return text[:57] + "..."
	}
	return text
}

// snapshot command
var snapshotCmd = &cobra.Command{
	Use:   "snapshot PATH",
	Short: "Store the full content of a file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, args[0], func(_ context.Context, a *app.App) error {
			id, err := a.Snapshot(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Snapshot %s\n", id)
			return nil
		})
	},
}

// snapshots command
var snapshotsCmd = &cobra.Command{
	Use:   "snapshots",
	Short: "List stored snapshots",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "", func(_ context.Context, a *app.App) error {
			snaps, err := a.Snapshots()
			if err != nil {
				return err
			}
			if len(snaps) == 0 {
				fmt.Println("No snapshots.")
				return nil
			}
			for _, s := range snaps {
				lock := ""
				if s.Encrypted {
					lock = "  [encrypted]"
				}
				fmt.Printf("%s  %s  %6d  %s%s\n", s.ID, time.Unix(0, s.Timestamp).Format(timeLayout), s.Size, s.Path, lock)
			}
			return nil
		})
	},
}

// restore command
var restoreCmd = &cobra.Command{
	Use:   "restore SNAPSHOT_ID",
	Short: "Restore a file from a snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, _ := cmd.Flags().GetString("out")
		id := args[0]
		return withApp(cmd, id, func(_ context.Context, a *app.App) error {
			if a.SnapshotEncrypted(id) {
				pass, err := readPassphrase("Passphrase: ")
				if err != nil {
					return err
				}
				if err := a.Unlock(pass); err != nil {
					return err
				}
			}
			written, err := a.Restore(id, out)
			if err != nil {
				return err
			}
			fmt.Printf("Restored %s\n", written)
			return nil
		})
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View command history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")
		return withApp(cmd, "", func(_ context.Context, a *app.App) error {
			runs, err := a.History(limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("No commands recorded.")
				return nil
			}
			for _, r := range runs {
				duration := ""
				if r.FinishedAt.Valid {
					d := r.FinishedAt.Time.Sub(r.StartedAt)
					duration = d.Truncate(time.Millisecond).String()
				}
				fmt.Printf("#%d  %-10s  %s  %-8s  %-10s  %s\n",
					r.ID,
					r.Command,
					r.StartedAt.Format(timeLayout),
					r.Status,
					duration,
					r.Parameters,
				)
			}
			return nil
		})
	},
}

// push command
var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Upload checkpoints and the operation log to the vault",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withApp(cmd, "", func(_ context.Context, a *app.App) error {
			res, err := a.Push()
			if err != nil {
				return err
			}
			fmt.Printf("Pushed %s to vault %s: %d checkpoint bundle(s)", a.ProjectID(), a.VaultName(), res.Bundles)
			if !res.CheckpointsSent && !res.LogSent {
				fmt.Print(", already up to date")
			}
			fmt.Println()
			return nil
		})
	},
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(app.DefaultAuthor(), defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Author:   %s\n", cfg.Author)
		fmt.Printf("Base Dir: %s\n", cfg.BaseDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, defaults, err := loadConfig()
		if err != nil {
			return err
		}

		fmt.Printf("# Configuration from %s\n\n", defaults["config_path"])
		return (&config.Manager{}).Write(os.Stdout, cfg)
	},
}

var configKeygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate the snapshot encryption key pair",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig()
		if err != nil {
			return err
		}

		pass, err := readPassphrase("New passphrase: ")
		if err != nil {
			return err
		}
		confirm, err := readPassphrase("Repeat passphrase: ")
		if err != nil {
			return err
		}
		if pass != confirm {
			return errors.New("passphrases do not match")
		}

		if err := app.Keygen(cfg.Encryption, pass); err != nil {
			return fmt.Errorf("generating keys: %w", err)
		}
		fmt.Printf("Public key:  %s\n", cfg.Encryption.PublicKeyPath)
		fmt.Printf("Private key: %s\n", cfg.Encryption.PrivateKeyPath)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagDirectory, "directory", "d", "", "Project directory (default: current directory)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Log debug output to stderr")
	rootCmd.PersistentFlags().StringVarP(&flagServer, "server", "s", "", fmt.Sprintf("Collaboration server host (default %s)", config.DefaultServer))
	rootCmd.PersistentFlags().IntVarP(&flagPort, "port", "p", 0, fmt.Sprintf("Collaboration server port (default %d)", config.DefaultPort))

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configKeygenCmd)

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(commitCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(logCmd)
	logCmd.Flags().IntP("limit", "n", 0, "Maximum number of operations to show (0 = all)")
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(snapshotsCmd)
	rootCmd.AddCommand(restoreCmd)
	restoreCmd.Flags().StringP("out", "o", "", "Write the content here instead of the original file")
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of commands to show")
	rootCmd.AddCommand(pushCmd)
}
