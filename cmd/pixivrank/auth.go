package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"pixivrank/pkg/auth"
	"pixivrank/pkg/config"
	"pixivrank/pkg/ui"
)

var loginFromFile string

// authCmd represents the auth command
var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Manage pixiv cookies",
	Long: `Manage stored pixiv cookies.

Cookies are stored using:
  - System keychain (when available)
  - Encrypted file protected by PIXIVRANK_PASSPHRASE
  - Environment variables (PIXIVRANK_COOKIE)

The cookie is a full login session. Never share it.`,
}

var loginCmd = &cobra.Command{
	Use:   "login [name]",
	Short: "Store a pixiv cookie",
	Long: `Store the Cookie header of a logged-in browser session.

The value is read without echo. It must contain PHPSESSID for R-18
rankings and restricted works to be reachable.`,
	Example: `  # Interactive login
  pixivrank auth login

  # Import a cookie file or a browser cookie export
  pixivrank auth login main --from-file cookies.json`,
	Args: cobra.MaximumNArgs(1),
	Run:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout [name]",
	Short: "Remove stored cookies",
	Args:  cobra.MaximumNArgs(1),
	Run:   runLogout,
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored accounts",
	Run:   runList,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show which cookie a download would use",
	Run:   runStatus,
}

func init() {
	rootCmd.AddCommand(authCmd)
	authCmd.AddCommand(loginCmd)
	authCmd.AddCommand(logoutCmd)
	authCmd.AddCommand(listCmd)
	authCmd.AddCommand(statusCmd)

	loginCmd.Flags().StringVar(&loginFromFile, "from-file", "", "read the cookie from a file instead of the prompt")
}

func runLogin(cmd *cobra.Command, args []string) {
	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize credential manager", err.Error())
		os.Exit(1)
	}

	reader := bufio.NewReader(os.Stdin)

	name := "default"
	if len(args) > 0 {
		name = strings.TrimSpace(args[0])
	}

	if existing, _ := manager.Retrieve(name); existing != nil {
		fmt.Printf("Account '%s' already exists. Replace its cookie? (y/N): ", name)
		input, _ := reader.ReadString('\n')
		if !strings.HasPrefix(strings.ToLower(strings.TrimSpace(input)), "y") {
			return
		}
	}

	var cookie string
	if loginFromFile != "" {
		cookie, err = auth.LoadCookieFile(loginFromFile)
		if err != nil {
			ui.PrintError("Failed to read cookie file", err.Error())
			os.Exit(1)
		}
	} else {
		auth.WriteCookieGuide(os.Stdout)
		fmt.Print("Cookie header (hidden): ")
		raw, err := readSecret(reader)
		if err != nil {
			ui.PrintError("Failed to read cookie", err.Error())
			os.Exit(1)
		}
		if cookie, err = auth.ParseCookie(raw); err != nil {
			ui.PrintError("Invalid cookie", err.Error())
			os.Exit(1)
		}
	}

	if cookie == "" {
		ui.PrintError("Cookie is empty")
		os.Exit(1)
	}
	if !auth.HasSessionID(cookie) {
		ui.PrintWarning("Cookie has no "+auth.SessionCookie, "downloads will run logged out")
	}

	fmt.Print("User agent (Enter for default): ")
	agent, _ := reader.ReadString('\n')

	account := &auth.Account{
		Name:         name,
		Cookie:       cookie,
		UserAgent:    strings.TrimSpace(agent),
		LastModified: time.Now(),
	}
	if err := manager.Store(account); err != nil {
		ui.PrintError("Failed to store cookie", err.Error())
		os.Exit(1)
	}

	ui.PrintSuccess("Cookie stored for account: " + name)
}

func runLogout(cmd *cobra.Command, args []string) {
	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize credential manager", err.Error())
		os.Exit(1)
	}

	if len(args) > 0 {
		if err := manager.Delete(args[0]); err != nil {
			ui.PrintError("Failed to remove account", err.Error())
			os.Exit(1)
		}
		ui.PrintSuccess("Removed account: " + args[0])
		return
	}

	accounts, err := manager.List()
	if err != nil || len(accounts) == 0 {
		ui.PrintInfo("No stored accounts", "nothing to remove")
		return
	}

	fmt.Println("Stored accounts:")
	for i, account := range accounts {
		fmt.Printf("  %d. %s\n", i+1, account.Name)
	}
	fmt.Printf("  %d. all of them\n\n", len(accounts)+1)

	reader := bufio.NewReader(os.Stdin)
	fmt.Print("Choice: ")
	input, _ := reader.ReadString('\n')

	var choice int
	fmt.Sscanf(strings.TrimSpace(input), "%d", &choice)

	switch {
	case choice == len(accounts)+1:
		if err := manager.DeleteAll(); err != nil {
			ui.PrintError("Failed to remove accounts", err.Error())
			os.Exit(1)
		}
		ui.PrintSuccess("Removed all accounts")
	case choice >= 1 && choice <= len(accounts):
		name := accounts[choice-1].Name
		if err := manager.Delete(name); err != nil {
			ui.PrintError("Failed to remove account", err.Error())
			os.Exit(1)
		}
		ui.PrintSuccess("Removed account: " + name)
	default:
		ui.PrintError("Invalid choice")
		os.Exit(1)
	}
}

func runList(cmd *cobra.Command, args []string) {
	manager, err := auth.NewManager()
	if err != nil {
		ui.PrintError("Failed to initialize credential manager", err.Error())
		os.Exit(1)
	}

	accounts, err := manager.List()
	if err != nil || len(accounts) == 0 {
		ui.PrintInfo("No stored accounts", "use 'pixivrank auth login' to add one")
		return
	}

	ui.PrintHighlight("Stored accounts")
	for _, account := range accounts {
		safe := auth.SanitizeAccount(account)
		fmt.Printf("  %s\n", safe.Name)
		fmt.Printf("    cookie:   %s\n", safe.Cookie)
		if safe.UserAgent != "" {
			fmt.Printf("    agent:    %s\n", safe.UserAgent)
		}
		fmt.Printf("    modified: %s\n", safe.LastModified.Format("2006-01-02 15:04"))
	}
}

// runStatus repeats the lookup order of the download command
func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := config.Load(configFile, nil)
	if err != nil {
		ui.PrintError("Failed to load configuration", err.Error())
		os.Exit(1)
	}

	source, cookie := "", ""
	switch {
	case cfg.Pixiv.Cookie != "":
		source, cookie = "configuration or "+auth.EnvCookie, cfg.Pixiv.Cookie
	default:
		if c, err := auth.LoadCookieFile(cfg.Pixiv.CookieFile); err == nil && c != "" {
			source, cookie = cfg.Pixiv.CookieFile, c
			break
		}
		if manager, err := auth.NewManager(); err == nil {
			if account, err := manager.RetrieveDefault(); err == nil {
				source, cookie = "account "+account.Name, account.Cookie
			}
		}
	}

	if source == "" {
		ui.PrintWarning("No pixiv cookie configured", "downloads will run logged out")
		auth.WriteQuickGuide(os.Stdout)
		return
	}

	ui.PrintInfo("Cookie source", source)
	if auth.HasSessionID(cookie) {
		ui.PrintSuccess(auth.SessionCookie + " present")
	} else {
		ui.PrintWarning(auth.SessionCookie+" missing", "downloads will run logged out")
	}
}

// readSecret reads a line from stdin without echo when it is a terminal
func readSecret(reader *bufio.Reader) (string, error) {
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		secret, err := term.ReadPassword(fd)
		fmt.Println()
		if err == nil {
			return string(secret), nil
		}
	}

	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		return "", err
	}
	return strings.TrimSpace(input), nil
}
