// orbictl - admin CLI for the ORBI daemon's data directory
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/orbi-bot/orbi/internal/config"
	"github.com/orbi-bot/orbi/internal/extension"
	"github.com/orbi-bot/orbi/internal/memory"
	"github.com/orbi-bot/orbi/internal/requests"
)

var dataDir string

func main() {
	rootCmd := &cobra.Command{
		Use:   "orbictl",
		Short: "ORBI - Your robot companion",
		Long: `orbictl manages an ORBI robot's data directory directly.

Use it to inspect extensions, roll back broken versions, manage
memories, and store API credentials. The daemon picks changes up
the next time it reloads.`,
	}

	home, _ := os.UserHomeDir()
	defaultDataDir := filepath.Join(home, ".orbi")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", defaultDataDir, "data directory")

	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(extCmd())
	rootCmd.AddCommand(memoryCmd())
	rootCmd.AddCommand(requestsCmd())
	rootCmd.AddCommand(secretsCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadRegistry(cfg *config.Config) (*extension.Registry, error) {
	reg := extension.NewRegistry(cfg.ExtensionsDir(), extension.APIDeps{Config: cfg})
	if _, err := reg.Discover(); err != nil {
		return nil, fmt.Errorf("extension discovery failed: %w", err)
	}
	return reg, nil
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show robot status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load(dataDir)
			reg, err := loadRegistry(cfg)
			if err != nil {
				return err
			}
			mem := memory.NewStore(dataDir, cfg.Limits.MaxMemories)

			fmt.Printf("🤖 Robot: %s\n", cfg.RobotName())
			if name := cfg.ChildName(); name != "" {
				fmt.Printf("👧 Child: %s\n", name)
			}
			fmt.Printf("📁 Data: %s\n", cfg.DataDir)
			fmt.Printf("🧩 Extensions: %d (%d enabled)\n", len(reg.All()), len(reg.Enabled()))
			fmt.Printf("🧠 Memories: %d/%d\n", mem.Count(), cfg.Limits.MaxMemories)

			if cfg.Claude.APIKey != "" {
				fmt.Println("✅ Claude API key set")
			} else {
				fmt.Println("⚠️  Claude API key not set (run 'orbictl secrets set claude')")
			}
			if cfg.GitHubToken() != "" {
				fmt.Println("✅ GitHub token set")
			} else {
				fmt.Println("⚠️  GitHub token not set - extension requests disabled")
			}
			return nil
		},
	}
}

func extCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ext",
		Short: "Extension operations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List installed extensions",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load(dataDir)
			reg, err := loadRegistry(cfg)
			if err != nil {
				return err
			}
			for _, ext := range reg.All() {
				state := "enabled"
				if !ext.Enabled {
					state = "disabled"
				}
				fmt.Printf("%-20s %-10s %-8s v%s - %s\n", ext.ID, ext.Category, state, ext.Version, ext.Name)
			}
			return nil
		},
	})

	cmd.AddCommand(toggleCmd("enable", true))
	cmd.AddCommand(toggleCmd("disable", false))

	cmd.AddCommand(&cobra.Command{
		Use:   "delete [extension-id]",
		Short: "Delete an extension (backups are kept)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load(dataDir)
			reg, err := loadRegistry(cfg)
			if err != nil {
				return err
			}
			if err := reg.Delete(args[0]); err != nil {
				return err
			}
			fmt.Printf("🗑️  Deleted %s\n", args[0])
			return nil
		},
	})

	backupCmd := &cobra.Command{
		Use:   "backup [extension-id]",
		Short: "Snapshot an extension's current files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load(dataDir)
			description, _ := cmd.Flags().GetString("description")
			vs := extension.NewVersionStore(cfg.ExtensionsDir())
			versionID, err := vs.Backup(args[0], description)
			if err != nil {
				return err
			}
			fmt.Printf("💾 Backed up %s as version %s\n", args[0], versionID)
			return nil
		},
	}
	backupCmd.Flags().String("description", "Manual backup", "what this snapshot captures")
	cmd.AddCommand(backupCmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "rollback [extension-id] [version-id]",
		Short: "Restore an extension to a saved version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load(dataDir)
			vs := extension.NewVersionStore(cfg.ExtensionsDir())
			if err := vs.Restore(args[0], args[1]); err != nil {
				return err
			}
			fmt.Printf("⏪ Restored %s to version %s\n", args[0], args[1])
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "versions [extension-id]",
		Short: "List saved versions of an extension",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load(dataDir)
			vs := extension.NewVersionStore(cfg.ExtensionsDir())
			versions := vs.List(args[0])
			if len(versions) == 0 {
				fmt.Println("No saved versions.")
				return nil
			}
			for _, v := range versions {
				marker := " "
				if v.IsCurrent {
					marker = "*"
				}
				fmt.Printf("%s %-20s %-8s %-14s %s\n", marker, v.VersionID, v.Status, extension.TimeAgo(v.CreatedAt), v.Description)
			}
			return nil
		},
	})

	return cmd
}

func toggleCmd(use string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [extension-id]",
		Short: strings.ToUpper(use[:1]) + use[1:] + " an extension",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load(dataDir)
			reg, err := loadRegistry(cfg)
			if err != nil {
				return err
			}
			if err := reg.SetEnabled(args[0], enabled); err != nil {
				return err
			}
			fmt.Printf("✅ %s %sd\n", args[0], use)
			return nil
		},
	}
}

func memoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Memory operations",
	}

	openStore := func() (*memory.Store, *config.Config) {
		cfg := config.Load(dataDir)
		return memory.NewStore(dataDir, cfg.Limits.MaxMemories), cfg
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List everything the robot remembers",
		RunE: func(cmd *cobra.Command, args []string) error {
			mem, _ := openStore()
			entries := mem.All()
			if len(entries) == 0 {
				fmt.Println("No memories yet.")
				return nil
			}
			for _, e := range entries {
				fmt.Printf("- %s  (%s)\n", e.Fact, e.CreatedAt.Format("2006-01-02"))
			}
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "add [fact]",
		Short: "Store a memory",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mem, _ := openStore()
			saved, err := mem.Save(strings.Join(args, " "))
			if err != nil {
				return err
			}
			if !saved {
				fmt.Println("Already remembered.")
				return nil
			}
			fmt.Println("✅ Memory stored successfully!")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "forget [topic]",
		Short: "Forget the first memory matching a topic",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mem, _ := openStore()
			deleted, found, err := mem.Forget(strings.Join(args, " "))
			if err != nil {
				return err
			}
			if !found {
				fmt.Println("No matching memory.")
				return nil
			}
			fmt.Printf("🧹 Forgot: %s\n", deleted)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Forget everything",
		RunE: func(cmd *cobra.Command, args []string) error {
			mem, _ := openStore()
			if err := mem.Clear(); err != nil {
				return err
			}
			fmt.Println("🧹 All memories cleared")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Memory usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			mem, cfg := openStore()
			fmt.Printf("Memories: %d/%d\n", mem.Count(), cfg.Limits.MaxMemories)
			return nil
		},
	})

	return cmd
}

func requestsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "requests",
		Short: "List logged extension requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load(dataDir)
			log := requests.NewLog(requests.Config{
				DataDir:       cfg.DataDir,
				ExtensionsDir: cfg.ExtensionsDir(),
			})
			all := log.All()
			if len(all) == 0 {
				fmt.Println("No extension requests yet.")
				return nil
			}
			for _, r := range all {
				fmt.Printf("#%-5d %-12s %s\n", r.IssueNumber, r.Status, r.Title)
			}
			return nil
		},
	}
}

func secretsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage stored credentials",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "set [claude|github]",
		Short: "Store a credential (prompted, not echoed)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			which := args[0]
			if which != "claude" && which != "github" {
				return fmt.Errorf("unknown secret %q (want claude or github)", which)
			}

			fmt.Printf("Enter %s credential: ", which)
			value, err := term.ReadPassword(int(os.Stdin.Fd()))
			if err != nil {
				return fmt.Errorf("failed to read credential: %w", err)
			}
			fmt.Println()
			if len(value) == 0 {
				return fmt.Errorf("empty credential")
			}

			cfg := config.Load(dataDir)
			secrets := cfg.LoadSecrets()
			switch which {
			case "claude":
				secrets.AnthropicAPIKey = string(value)
			case "github":
				secrets.GitHubToken = string(value)
			}
			if err := cfg.SaveSecrets(secrets); err != nil {
				return err
			}
			fmt.Println("✅ Credential stored")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove all stored credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load(dataDir)
			if err := cfg.SaveSecrets(config.Secrets{}); err != nil {
				return err
			}
			fmt.Println("🧹 Credentials cleared")
			return nil
		},
	})

	return cmd
}
