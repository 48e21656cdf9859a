package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"dt-go/internal/app"
	"dt-go/internal/config"
	"dt-go/internal/dt"
	"dt-go/internal/secrets"
	"dt-go/internal/vault"

	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	hostStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#3FB950"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func readConfig() (*config.Config, error) {
	paths, err := app.DefaultPaths()
	if err != nil {
		return nil, fmt.Errorf("resolving paths: %w", err)
	}

	cfg, err := config.ReadFromFile(paths.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return cfg, nil
}

// newApp reads the config and creates a DTApp. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "deploy", "history").
func newApp(cmd *cobra.Command, deployment, operation string) (*app.DTApp, error) {
	cfg, err := readConfig()
	if err != nil {
		return nil, err
	}

	verbose, _ := cmd.Flags().GetBool("verbose")
	a, err := app.NewDTApp(cmd.Context(), cfg, app.Options{
		Deployment:     deployment,
		Operation:      operation,
		Verbose:        verbose,
		Prompter:       app.NewTerminalPrompter(),
		PasswordPrompt: app.AskPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

var rootCmd = &cobra.Command{
	Use:           "dt",
	Short:         "Versioned release deployments over ssh",
	SilenceUsage:  true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := app.DefaultPaths()
		if err != nil {
			return fmt.Errorf("failed to resolve paths: %w", err)
		}

		cfg := config.NewConfig(paths.BaseDir)

		if err := config.Init(paths.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", paths.ConfigPath)
		fmt.Printf("Base Dir: %s\n", paths.BaseDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := app.DefaultPaths()
		if err != nil {
			return fmt.Errorf("failed to resolve paths: %w", err)
		}

		cfg, err := config.ReadFromFile(paths.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", paths.ConfigPath)
		fmt.Printf("Log Dir:  %s\n", cfg.LogDir)
		fmt.Printf("History:  %s %s\n", cfg.History.Type, cfg.History.DataDir)
		fmt.Printf("Archive:  %s %s\n", cfg.Archive.Type, cfg.Archive.Name)
		fmt.Println()
		for _, d := range cfg.Deployments {
			d.ApplyDefaults()
			fmt.Printf("%s  %s  %s\n", hostStyle.Render(d.Name), d.Strategy, d.RemoteDir)
			for _, t := range d.TargetConfigs() {
				fmt.Printf("  %s %s\n", t.Host(), dimStyle.Render(t.Transport))
			}
		}
		return nil
	},
}

var configVaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Manage the history archive",
}

var configVaultCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify the history archive is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}
		v, err := vault.NewVaultFromConfig(cmd.Context(), cfg.Archive)
		if err != nil {
			return err
		}
		if v == nil {
			fmt.Println("No archive configured.")
			return nil
		}
		if err := v.ValidateSetup(); err != nil {
			return err
		}
		fmt.Println(okStyle.Render("Archive is reachable."))
		return nil
	},
}

// secrets command
var secretsCmd = &cobra.Command{
	Use:   "secrets",
	Short: "Manage encrypted target passwords",
}

var secretsInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the age identity used for password_age values",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}
		recipient, err := secrets.NewAgeSecrets(cfg.Secrets).Setup()
		if err != nil {
			return err
		}
		fmt.Printf("Identity written to %s\n", cfg.Secrets.IdentityPath)
		fmt.Printf("Recipient: %s\n", recipient)
		return nil
	},
}

var secretsEncryptCmd = &cobra.Command{
	Use:   "encrypt [PASSWORD]",
	Short: "Encrypt a password for use as password_age",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}

		var plaintext string
		if len(args) > 0 {
			plaintext = args[0]
		} else {
			fd := int(os.Stdin.Fd())
			if !term.IsTerminal(fd) {
				return fmt.Errorf("pass the password as an argument or run in a terminal")
			}
			fmt.Fprint(os.Stderr, "password: ")
			b, err := term.ReadPassword(fd)
			fmt.Fprintln(os.Stderr)
			if err != nil {
				return fmt.Errorf("reading password: %w", err)
			}
			plaintext = string(b)
		}

		armored, err := secrets.NewAgeSecrets(cfg.Secrets).Encrypt(plaintext)
		if err != nil {
			return err
		}
		fmt.Print(armored)
		return nil
	},
}

// targetCommand builds a command that runs one MultiTarget operation on
// the named deployment and prints one line per target.
func targetCommand(use, short, operation string, run func(*app.DTApp, context.Context) ([]dt.TargetResult, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use + " DEPLOYMENT",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, args[0], operation)
			if err != nil {
				return err
			}
			defer a.Close()

			results, err := run(a, cmd.Context())
			printResults(results)
			return err
		},
	}
}

var deployCmd = targetCommand("deploy", "Build and release to every target", dt.OpDeploy, (*app.DTApp).Deploy)
var rollbackCmd = targetCommand("rollback", "Point every target at its previous release", dt.OpRollback, (*app.DTApp).Rollback)
var pruneCmd = targetCommand("prune", "Remove untracked releases and pick one release to remove", dt.OpPrune, (*app.DTApp).Prune)
var indexCmd = targetCommand("generate-index", "Rewrite the branch index page", dt.OpGenerateIndex, (*app.DTApp).GenerateIndex)

var listCmd = &cobra.Command{
	Use:   "list DEPLOYMENT",
	Short: "List the tracked releases on every target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd, args[0], dt.OpList)
		if err != nil {
			return err
		}
		defer a.Close()

		results, err := a.List(cmd.Context())
		for _, r := range results {
			fmt.Println(hostStyle.Render(r.Host))
			if r.Err != nil {
				fmt.Printf("  %s\n", failStyle.Render(r.Err.Error()))
				continue
			}
			if len(r.Releases) == 0 {
				fmt.Println(dimStyle.Render("  no releases"))
			}
			for _, rel := range r.Releases {
				fmt.Printf("  %s\n", dt.FormatReleaseLine(rel))
			}
		}
		return err
	},
}

func printResults(results []dt.TargetResult) {
	for _, r := range results {
		status := okStyle.Render("ok")
		detail := r.Release
		if r.Err != nil {
			status = failStyle.Render("failed")
			detail = errorDetail(r.Err)
		}
		fmt.Printf("%s  %s  %s  %s\n", hostStyle.Render(r.Host), status, detail, dimStyle.Render(r.Duration.Truncate(time.Millisecond).String()))
	}
}

// errorDetail strips the "op on host:" prefix already shown on the line.
func errorDetail(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, ": "); i >= 0 {
		return msg[i+2:]
	}
	return msg
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View deployment history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd, "", "history")
		if err != nil {
			return err
		}
		defer a.Close()

		runs, err := a.History(limit)
		if err != nil {
			return err
		}

		if len(runs) == 0 {
			fmt.Println("No deployments recorded.")
			return nil
		}

		for _, r := range runs {
			duration := ""
			if r.FinishedAt != nil {
				duration = r.FinishedAt.Sub(r.StartedAt).Truncate(time.Millisecond).String()
			}
			status := okStyle.Render(fmt.Sprintf("%-8s", r.Status))
			if r.Status != dt.StatusSuccess {
				status = failStyle.Render(fmt.Sprintf("%-8s", r.Status))
			}
			fmt.Printf("#%d  %-15s  %-15s  %s  %s  %s\n",
				r.ID,
				r.Deployment,
				r.Operation,
				r.StartedAt.Format("2006-01-02 15:04:05"),
				status,
				duration,
			)
		}
		return nil
	},
}

var historyShowCmd = &cobra.Command{
	Use:   "show RUN_ID",
	Short: "View the per-target results of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid run id %q", args[0])
		}

		a, err := newApp(cmd, "", "history")
		if err != nil {
			return err
		}
		defer a.Close()

		records, err := a.RunResults(id)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Println("No results recorded for this run.")
			return nil
		}
		for _, r := range records {
			status := okStyle.Render("ok")
			detail := r.Release
			if r.Error != "" {
				status = failStyle.Render("failed")
				detail = r.Error
			}
			fmt.Printf("%s  %s  %s  %s\n", hostStyle.Render(r.Host), status, detail, dimStyle.Render(r.Duration.String()))
		}
		return nil
	},
}

var historyRestoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Replace the local history with the archived copy",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := readConfig()
		if err != nil {
			return err
		}
		version, err := app.RestoreHistory(cmd.Context(), cfg, nil)
		if err != nil {
			return err
		}
		fmt.Printf("Restored history version %d into %s\n", version, filepath.Clean(cfg.History.DataDir))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Print debug output")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configCmd.AddCommand(configVaultCmd)
	configVaultCmd.AddCommand(configVaultCheckCmd)

	// secrets subcommands
	secretsCmd.AddCommand(secretsInitCmd)
	secretsCmd.AddCommand(secretsEncryptCmd)

	// history subcommands
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyRestoreCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of runs to show")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(secretsCmd)
	rootCmd.AddCommand(deployCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(pruneCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(historyCmd)
}
