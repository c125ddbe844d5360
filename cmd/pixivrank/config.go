package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"pixivrank/pkg/config"
	"pixivrank/pkg/ui"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `Create, inspect and check the pixivrank configuration file.

Values are applied in this order, later ones winning:
  defaults, configuration file, .env files, PIXIVRANK_* variables, flags`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with the default values",
	Example: `  pixivrank config init
  pixivrank config init --config ~/.pixivrank.toml`,
	Run: runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Run:   runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration for errors",
	Run:   runConfigValidate,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigInit(cmd *cobra.Command, args []string) {
	configPath := configFile
	if configPath == "" {
		configPath = "pixivrank.yaml"
	}

	if _, err := os.Stat(configPath); err == nil {
		ui.PrintError("Configuration file already exists", configPath)
		os.Exit(1)
	}

	if err := config.DefaultConfig().Save(configPath); err != nil {
		ui.PrintError("Failed to create configuration file", err.Error())
		os.Exit(1)
	}

	ui.PrintSuccess("Configuration file created: " + configPath)
	fmt.Println("\nNext steps:")
	fmt.Println("1. Store your pixiv cookie with 'pixivrank auth login'")
	fmt.Println("2. Add your tags under filter in " + configPath)
	fmt.Println("3. Run 'pixivrank config validate' to check the configuration")
	fmt.Println("4. Start downloading with 'pixivrank download'")
}

func runConfigShow(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}

	display := *cfg
	display.Pixiv.Cookie = maskCookie(display.Pixiv.Cookie)

	data, err := yaml.Marshal(&display)
	if err != nil {
		ui.PrintError("Failed to format configuration", err.Error())
		os.Exit(1)
	}

	ui.PrintHighlight("Current Configuration")
	fmt.Println()
	fmt.Print(string(data))

	if configFile != "" {
		fmt.Printf("\nConfiguration file: %s\n", configFile)
	}
}

func runConfigValidate(cmd *cobra.Command, args []string) {
	if configFile != "" {
		ui.PrintInfo("Validating configuration", configFile)
	}

	// Load runs Validate
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		ui.PrintError("Configuration validation failed", err.Error())
		os.Exit(1)
	}

	var warnings []string
	if cfg.Pixiv.Cookie == "" {
		if _, err := os.Stat(cfg.Pixiv.CookieFile); err != nil {
			warnings = append(warnings, "no cookie configured and "+cfg.Pixiv.CookieFile+" does not exist")
		}
	}
	if !cfg.Filter.RuleSet().Summary().Active() {
		warnings = append(warnings, "no filter rules, every ranked work will be downloaded")
	}
	if cfg.Logging.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Logging.File), 0755); err != nil {
			warnings = append(warnings, fmt.Sprintf("cannot create log directory: %v", err))
		}
	}

	if len(warnings) > 0 {
		ui.PrintWarning("Configuration warnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
		fmt.Println()
	}

	ui.PrintSuccess("Configuration is valid")

	fmt.Println("\nConfiguration summary:")
	fmt.Printf("  Ranking: %s/%s, %d pages\n", cfg.Ranking.Mode, cfg.Ranking.Content, cfg.Ranking.Pages)
	fmt.Printf("  Output directory: %s\n", cfg.Output.BaseDirectory)
	fmt.Printf("  Cache directory: %s\n", cfg.Cache.Directory)
	fmt.Printf("  Workers: %d\n", cfg.Download.Workers)
	fmt.Printf("  Request interval: %s\n", cfg.Scheduler.Interval)
	fmt.Printf("  Log level: %s\n", cfg.Logging.Level)
}

func maskCookie(c string) string {
	switch {
	case c == "":
		return ""
	case len(c) <= 8:
		return "***"
	default:
		return c[:4] + "..." + c[len(c)-4:]
	}
}
