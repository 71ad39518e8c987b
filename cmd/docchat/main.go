package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"docchat/internal/app"
	"docchat/internal/config"
	"docchat/internal/ui"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var verbose bool

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates a DocChatApp. The caller must defer app.Close().
// command identifies the CLI command being run (e.g. "upload", "ask").
func newApp(ctx context.Context, command string) (*app.DocChatApp, error) {
	paths, err := app.ResolvePaths()
	if err != nil {
		return nil, fmt.Errorf("resolving paths: %w", err)
	}

	cfg, err := config.ReadFromFile(paths.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewDocChatApp(ctx, cfg, command, app.Options{Verbose: verbose})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// withApp runs fn against a fresh DocChatApp and records its outcome in the log.
func withApp(cmd *cobra.Command, command string, fn func(ctx context.Context, a *app.DocChatApp) error) error {
	ctx := cmd.Context()
	a, err := newApp(ctx, command)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := fn(ctx, a); err != nil {
		a.Fail(err)
		return err
	}
	return nil
}

func stdoutIsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// markdown returns a renderer sized to the terminal.
func markdown() *ui.Markdown {
	width := 80
	if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil && w > 20 {
		width = w - 2
	}
	return ui.NewMarkdown(width, stdoutIsTerminal())
}

var rootCmd = &cobra.Command{
	Use:          "docchat",
	Short:        "Chat with your documents",
	SilenceUsage: true,
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
		backendURL, _ := cmd.Flags().GetString("backend")
		identityType, _ := cmd.Flags().GetString("identity")
		apiKey, _ := cmd.Flags().GetString("api-key")

		paths, err := app.ResolvePaths()
		if err != nil {
			return fmt.Errorf("failed to resolve paths: %w", err)
		}

		cfg := config.NewConfig(paths.BaseDir, backendURL)
		switch identityType {
		case "rest":
			cfg.Identity.APIKey = apiKey
		case "memory":
			cfg.Identity = config.IdentityConfig{Type: "memory", Secret: uuid.New().String()}
		default:
			return fmt.Errorf("unknown identity type: %q", identityType)
		}

		if err := app.InitConfig(paths.ConfigPath, cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", paths.ConfigPath)
		fmt.Printf("Base Dir: %s\n", cfg.BaseDir)
		fmt.Printf("Backend:  %s\n", cfg.Backend.URL)
		if identityType == "rest" && apiKey == "" {
			fmt.Println("Set identity.api_key before signing in.")
		}
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		paths, err := app.ResolvePaths()
		if err != nil {
			return fmt.Errorf("failed to resolve paths: %w", err)
		}

		cfg, err := config.ReadFromFile(paths.ConfigPath)
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", paths.ConfigPath)
		fmt.Printf("Base Dir: %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:  %s\n", cfg.LogDir)
		fmt.Printf("Backend:  %s\n", cfg.Backend.URL)
		fmt.Printf("Identity: %s\n", cfg.Identity.Type)
		fmt.Printf("Database: %s\n", cfg.Database.Type)
		fmt.Printf("Staging:  %s\n", cfg.Staging.Type)
		var vaults []string
		for _, v := range cfg.Vaults {
			vaults = append(vaults, fmt.Sprintf("%s (%s)", v.Name, v.Type))
		}
		fmt.Printf("Vaults:   %s\n", strings.Join(vaults, ", "))
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Also write log output to stderr")

	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	configInitCmd.Flags().String("backend", "http://localhost:8000", "Backend base URL")
	configInitCmd.Flags().String("identity", "rest", "Identity provider: rest or memory")
	configInitCmd.Flags().String("api-key", "", "Identity provider API key")

	// auth commands
	rootCmd.AddCommand(loginCmd)
	loginCmd.Flags().StringP("email", "e", "", "Account email")
	rootCmd.AddCommand(signupCmd)
	signupCmd.Flags().StringP("email", "e", "", "Account email")
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)

	// documents
	rootCmd.AddCommand(uploadCmd)
	uploadCmd.Flags().BoolP("folder", "f", false, "Upload directories as one folder batch")
	uploadCmd.Flags().BoolP("yes", "y", false, "Skip files that already exist without asking")
	uploadCmd.Flags().Bool("no-progress", false, "Do not subscribe to backend progress")
	rootCmd.AddCommand(docsCmd)
	docsCmd.AddCommand(docsListCmd)
	docsCmd.AddCommand(docsDeleteCmd)
	docsCmd.AddCommand(docsActivityCmd)
	rootCmd.AddCommand(profileCmd)
	profileCmd.Flags().IntP("recent", "n", 10, "Number of recent activities to show")

	// search and chat
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().Bool("expand", false, "Show full chunk content")
	searchCmd.Flags().String("author", "", "Only match documents by this author")
	searchCmd.Flags().String("title", "", "Only match documents with this title")
	searchCmd.Flags().IntP("limit", "n", 5, "Maximum number of results")
	rootCmd.AddCommand(askCmd)
	askCmd.Flags().Bool("save", false, "Save the exchange to chat history")
	askCmd.Flags().Int("chunks", 0, "Context chunks to retrieve (default 5)")
	rootCmd.AddCommand(chatCmd)
	chatCmd.Flags().Int("chunks", 0, "Context chunks to retrieve (default 5)")

	// history
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyListCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyRenameCmd)
	historyCmd.AddCommand(historyDeleteCmd)
	historyCmd.AddCommand(historyExportCmd)

	// settings
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.AddCommand(modelsListCmd)
	modelsCmd.AddCommand(modelsSetEmbeddingCmd)
	modelsCmd.AddCommand(modelsSetInferenceCmd)

	rootCmd.AddCommand(configCmd)
}
