package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
	"pixivrank/pkg/filter"
)

// Config holds all configuration options for a pixivrank run
type Config struct {
	Pixiv         PixivConfig        `yaml:"pixiv" toml:"pixiv" json:"pixiv"`
	Ranking       RankingConfig      `yaml:"ranking" toml:"ranking" json:"ranking"`
	Filter        FilterConfig       `yaml:"filter" toml:"filter" json:"filter"`
	Scheduler     SchedulerConfig    `yaml:"scheduler" toml:"scheduler" json:"scheduler"`
	Download      DownloadConfig     `yaml:"download" toml:"download" json:"download"`
	Cache         CacheConfig        `yaml:"cache" toml:"cache" json:"cache"`
	Output        OutputConfig       `yaml:"output" toml:"output" json:"output"`
	Notifications NotificationConfig `yaml:"notifications" toml:"notifications" json:"notifications"`
	Logging       LoggingConfig      `yaml:"logging" toml:"logging" json:"logging"`
}

// PixivConfig holds the pixiv session and HTTP settings
type PixivConfig struct {
	Cookie          string        `yaml:"cookie" toml:"cookie" json:"-"`
	CookieFile      string        `yaml:"cookie_file" toml:"cookie_file" json:"cookie_file"`
	UserAgent       string        `yaml:"user_agent" toml:"user_agent" json:"user_agent"`
	BaseURL         string        `yaml:"base_url" toml:"base_url" json:"base_url"`
	APITimeout      time.Duration `yaml:"api_timeout" toml:"api_timeout" json:"api_timeout"`
	DownloadTimeout time.Duration `yaml:"download_timeout" toml:"download_timeout" json:"download_timeout"`
}

// RankingConfig selects which listing to crawl
type RankingConfig struct {
	Mode    string `yaml:"mode" toml:"mode" json:"mode"`
	Content string `yaml:"content" toml:"content" json:"content"`
	Pages   int    `yaml:"pages" toml:"pages" json:"pages"`
	Date    string `yaml:"date" toml:"date" json:"date"`
	Month   string `yaml:"month" toml:"month" json:"month"`
	Year    string `yaml:"year" toml:"year" json:"year"`
}

// FilterConfig holds the textual filter rules
type FilterConfig struct {
	Tags        []string `yaml:"tags" toml:"tags" json:"tags"`
	Block       []string `yaml:"block" toml:"block" json:"block"`
	NoWord      []string `yaml:"noword" toml:"noword" json:"noword"`
	BlockGroups string   `yaml:"block_groups" toml:"block_groups" json:"block_groups"`
	Orientation string   `yaml:"orientation" toml:"orientation" json:"orientation"`
	Type        string   `yaml:"type" toml:"type" json:"type"`
	Max         int      `yaml:"max" toml:"max" json:"max"`
}

// SchedulerConfig holds request pacing settings
type SchedulerConfig struct {
	Interval         time.Duration `yaml:"interval" toml:"interval" json:"interval"`
	PauseThreshold   int           `yaml:"pause_threshold" toml:"pause_threshold" json:"pause_threshold"`
	PauseDuration    time.Duration `yaml:"pause_duration" toml:"pause_duration" json:"pause_duration"`
	PauseIncrement   time.Duration `yaml:"pause_increment" toml:"pause_increment" json:"pause_increment"`
	EscalationStep   int           `yaml:"escalation_step" toml:"escalation_step" json:"escalation_step"`
	BreakerThreshold int           `yaml:"breaker_threshold" toml:"breaker_threshold" json:"breaker_threshold"`
	QueueSize        int           `yaml:"queue_size" toml:"queue_size" json:"queue_size"`
}

// DownloadConfig holds download-specific configuration
type DownloadConfig struct {
	Workers       int           `yaml:"workers" toml:"workers" json:"workers"`
	SingleImage   bool          `yaml:"single_image" toml:"single_image" json:"single_image"`
	RetryAttempts int           `yaml:"retry_attempts" toml:"retry_attempts" json:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay" toml:"retry_delay" json:"retry_delay"`
	RetryFailed   bool          `yaml:"retry_failed" toml:"retry_failed" json:"retry_failed"`
	Ugoira        bool          `yaml:"ugoira" toml:"ugoira" json:"ugoira"`
}

// CacheConfig holds the listing cache settings
type CacheConfig struct {
	Directory      string        `yaml:"directory" toml:"directory" json:"directory"`
	LockStaleAfter time.Duration `yaml:"lock_stale_after" toml:"lock_stale_after" json:"lock_stale_after"`
	LockRetries    int           `yaml:"lock_retries" toml:"lock_retries" json:"lock_retries"`
	LockRetryDelay time.Duration `yaml:"lock_retry_delay" toml:"lock_retry_delay" json:"lock_retry_delay"`
}

// OutputConfig holds output directory configuration
type OutputConfig struct {
	BaseDirectory string `yaml:"base_directory" toml:"base_directory" json:"base_directory"`
	Checkpoint    bool   `yaml:"checkpoint" toml:"checkpoint" json:"checkpoint"`
}

// NotificationConfig holds notification preferences
type NotificationConfig struct {
	Enabled          bool   `yaml:"enabled" toml:"enabled" json:"enabled"`
	OnComplete       bool   `yaml:"on_complete" toml:"on_complete" json:"on_complete"`
	OnError          bool   `yaml:"on_error" toml:"on_error" json:"on_error"`
	OnRateLimit      bool   `yaml:"on_rate_limit" toml:"on_rate_limit" json:"on_rate_limit"`
	NotificationType string `yaml:"notification_type" toml:"notification_type" json:"notification_type"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level" json:"level"`
	File   string `yaml:"file" toml:"file" json:"file"`
	Format string `yaml:"format" toml:"format" json:"format"`
}

// DefaultUserAgent is sent when no user agent is configured
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// DefaultConfig returns a Config instance with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Pixiv: PixivConfig{
			CookieFile:      filepath.Join("cookie", "pixiv.txt"),
			UserAgent:       DefaultUserAgent,
			BaseURL:         "https://www.pixiv.net",
			APITimeout:      15 * time.Second,
			DownloadTimeout: 60 * time.Second,
		},
		Ranking: RankingConfig{
			Mode:    "daily",
			Content: "illust",
			Pages:   1,
		},
		Filter: FilterConfig{
			Orientation: "any",
			Type:        "all",
		},
		Scheduler: SchedulerConfig{
			Interval:         300 * time.Millisecond,
			PauseThreshold:   50,
			PauseDuration:    8 * time.Second,
			PauseIncrement:   300 * time.Millisecond,
			EscalationStep:   1000,
			BreakerThreshold: 3,
			QueueSize:        64,
		},
		Download: DownloadConfig{
			Workers:       2,
			RetryAttempts: 3,
			RetryDelay:    2 * time.Second,
			Ugoira:        true,
		},
		Cache: CacheConfig{
			Directory:      "cache",
			LockStaleAfter: 30 * time.Second,
			LockRetries:    5,
			LockRetryDelay: 200 * time.Millisecond,
		},
		Output: OutputConfig{
			BaseDirectory: "picture",
			Checkpoint:    true,
		},
		Notifications: NotificationConfig{
			Enabled:          true,
			OnComplete:       true,
			OnError:          true,
			OnRateLimit:      true,
			NotificationType: "terminal",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// LoadFromEnv loads configuration from PIXIVRANK_* environment variables
func (c *Config) LoadFromEnv() error {
	var errs []error

	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	setBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}

	setString("PIXIVRANK_COOKIE", &c.Pixiv.Cookie)
	setString("PIXIVRANK_COOKIE_FILE", &c.Pixiv.CookieFile)
	setString("PIXIVRANK_USER_AGENT", &c.Pixiv.UserAgent)
	setString("PIXIVRANK_BASE_URL", &c.Pixiv.BaseURL)
	setString("PIXIVRANK_MODE", &c.Ranking.Mode)
	setString("PIXIVRANK_CONTENT", &c.Ranking.Content)
	setInt("PIXIVRANK_PAGES", &c.Ranking.Pages)
	setInt("PIXIVRANK_MAX", &c.Filter.Max)
	setDuration("PIXIVRANK_INTERVAL", &c.Scheduler.Interval)
	setInt("PIXIVRANK_WORKERS", &c.Download.Workers)
	setBool("PIXIVRANK_RETRY_FAILED", &c.Download.RetryFailed)
	setBool("PIXIVRANK_SINGLE_IMAGE", &c.Download.SingleImage)
	setString("PIXIVRANK_CACHE_DIR", &c.Cache.Directory)
	setString("PIXIVRANK_OUTPUT_DIR", &c.Output.BaseDirectory)
	setBool("PIXIVRANK_NOTIFICATIONS_ENABLED", &c.Notifications.Enabled)
	setString("PIXIVRANK_LOG_LEVEL", &c.Logging.Level)
	setString("PIXIVRANK_LOG_FORMAT", &c.Logging.Format)
	setString("PIXIVRANK_LOG_FILE", &c.Logging.File)

	return errors.Join(errs...)
}

// LoadFromFile loads configuration from a YAML or TOML file, chosen by extension
func (c *Config) LoadFromFile(path string) error {
	if path == "" {
		path = c.findConfigFile()
		if path == "" {
			return nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), c); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	return nil
}

// findConfigFile searches for config file in standard locations
func (c *Config) findConfigFile() string {
	home := os.Getenv("HOME")
	locations := []string{
		".pixivrank.yaml",
		".pixivrank.yml",
		".pixivrank.toml",
		filepath.Join(home, ".config", "pixivrank", "config.yaml"),
		filepath.Join(home, ".config", "pixivrank", "config.yml"),
		filepath.Join(home, ".config", "pixivrank", "config.toml"),
	}

	for _, loc := range locations {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

var (
	dateRe  = regexp.MustCompile(`^\d{8}$`)
	monthRe = regexp.MustCompile(`^\d{6}$`)
	yearRe  = regexp.MustCompile(`^\d{4}$`)
)

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error

	if c.Pixiv.BaseURL == "" {
		errs = append(errs, errors.New("pixiv base URL is required"))
	}
	if c.Pixiv.APITimeout <= 0 || c.Pixiv.DownloadTimeout <= 0 {
		errs = append(errs, errors.New("pixiv timeouts must be positive"))
	}

	if c.Ranking.Mode == "" || c.Ranking.Content == "" {
		errs = append(errs, errors.New("ranking mode and content are required"))
	}
	if c.Ranking.Pages < 1 {
		errs = append(errs, errors.New("ranking pages must be at least 1"))
	}
	if c.Ranking.Date != "" {
		if _, err := time.Parse("20060102", c.Ranking.Date); err != nil || !dateRe.MatchString(c.Ranking.Date) {
			errs = append(errs, fmt.Errorf("invalid date %q, expected YYYYMMDD", c.Ranking.Date))
		}
	}
	if c.Ranking.Month != "" {
		if _, err := time.Parse("200601", c.Ranking.Month); err != nil || !monthRe.MatchString(c.Ranking.Month) {
			errs = append(errs, fmt.Errorf("invalid month %q, expected YYYYMM", c.Ranking.Month))
		}
	}
	if c.Ranking.Year != "" && !yearRe.MatchString(c.Ranking.Year) {
		errs = append(errs, fmt.Errorf("invalid year %q, expected YYYY", c.Ranking.Year))
	}

	if !filter.ValidOrientation(c.Filter.Orientation) {
		errs = append(errs, fmt.Errorf("invalid orientation %q", c.Filter.Orientation))
	}
	if !filter.ValidType(c.Filter.Type) {
		errs = append(errs, fmt.Errorf("invalid type %q", c.Filter.Type))
	}
	if strings.TrimSpace(c.Filter.BlockGroups) != "" {
		if groups, conditionals := filter.ParseBlockGroups(c.Filter.BlockGroups); len(groups)+len(conditionals) == 0 {
			errs = append(errs, fmt.Errorf("block groups %q contain no rule, expected e.g. [a,b] or [R-18,safe)", c.Filter.BlockGroups))
		}
	}
	if c.Filter.Max < 0 {
		errs = append(errs, errors.New("max cannot be negative"))
	}

	if c.Scheduler.Interval < 0 {
		errs = append(errs, errors.New("scheduler interval cannot be negative"))
	}
	if c.Scheduler.PauseThreshold <= 0 {
		errs = append(errs, errors.New("pause threshold must be positive"))
	}
	if c.Scheduler.EscalationStep <= 0 {
		errs = append(errs, errors.New("escalation step must be positive"))
	}
	if c.Scheduler.BreakerThreshold <= 0 {
		errs = append(errs, errors.New("breaker threshold must be positive"))
	}

	if c.Download.Workers <= 0 {
		errs = append(errs, errors.New("download workers must be positive"))
	}
	if c.Download.RetryAttempts < 1 {
		errs = append(errs, errors.New("retry attempts must be at least 1"))
	}

	if c.Cache.Directory == "" {
		errs = append(errs, errors.New("cache directory is required"))
	}
	if c.Cache.LockRetries < 1 {
		errs = append(errs, errors.New("cache lock retries must be at least 1"))
	}

	if c.Output.BaseDirectory == "" {
		errs = append(errs, errors.New("output directory is required"))
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		errs = append(errs, errors.New("invalid log level"))
	}
	validFormats := map[string]bool{"": true, "console": true, "pretty": true, "json": true}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		errs = append(errs, errors.New("invalid log format"))
	}

	validNotifTypes := map[string]bool{
		"terminal": true, "desktop": true, "none": true,
	}
	if !validNotifTypes[strings.ToLower(c.Notifications.NotificationType)] {
		errs = append(errs, errors.New("invalid notification type"))
	}

	return errors.Join(errs...)
}

// Save writes the configuration as YAML, or TOML for a .toml path
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	defer f.Close()

	if strings.ToLower(filepath.Ext(path)) == ".toml" {
		err = toml.NewEncoder(f).Encode(c)
	} else {
		enc := yaml.NewEncoder(f)
		enc.SetIndent(2)
		err = enc.Encode(c)
		if err == nil {
			err = enc.Close()
		}
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return nil
}

// MergeCommandLineFlags overlays values from flags that were explicitly set.
// Keys are the flag names of the download command.
func (c *Config) MergeCommandLineFlags(flags map[string]interface{}) {
	if v, ok := flags["cookie"].(string); ok && v != "" {
		c.Pixiv.Cookie = v
	}
	if v, ok := flags["mode"].(string); ok && v != "" {
		c.Ranking.Mode = v
	}
	if v, ok := flags["content"].(string); ok && v != "" {
		c.Ranking.Content = v
	}
	if v, ok := flags["pages"].(int); ok && v > 0 {
		c.Ranking.Pages = v
	}
	if v, ok := flags["date"].(string); ok && v != "" {
		c.Ranking.Date = v
	}
	if v, ok := flags["month"].(string); ok && v != "" {
		c.Ranking.Month = v
	}
	if v, ok := flags["year"].(string); ok && v != "" {
		c.Ranking.Year = v
	}
	if v, ok := flags["tag"].([]string); ok && len(v) > 0 {
		c.Filter.Tags = append(c.Filter.Tags, v...)
	}
	if v, ok := flags["block"].([]string); ok && len(v) > 0 {
		c.Filter.Block = append(c.Filter.Block, v...)
	}
	if v, ok := flags["noword"].([]string); ok && len(v) > 0 {
		c.Filter.NoWord = append(c.Filter.NoWord, v...)
	}
	if v, ok := flags["block-group"].(string); ok && v != "" {
		c.Filter.BlockGroups += v
	}
	if v, ok := flags["orientation"].(string); ok && v != "" {
		c.Filter.Orientation = v
	}
	if v, ok := flags["type"].(string); ok && v != "" {
		c.Filter.Type = v
	}
	if v, ok := flags["max"].(int); ok && v > 0 {
		c.Filter.Max = v
	}
	if v, ok := flags["interval"].(time.Duration); ok && v > 0 {
		c.Scheduler.Interval = v
	}
	if v, ok := flags["workers"].(int); ok && v > 0 {
		c.Download.Workers = v
	}
	if v, ok := flags["single-image"].(bool); ok {
		c.Download.SingleImage = v
	}
	if v, ok := flags["retry-failed"].(bool); ok {
		c.Download.RetryFailed = v
	}
	if v, ok := flags["output"].(string); ok && v != "" {
		c.Output.BaseDirectory = v
	}
	if v, ok := flags["cache-dir"].(string); ok && v != "" {
		c.Cache.Directory = v
	}
	if v, ok := flags["log-level"].(string); ok && v != "" {
		c.Logging.Level = v
	}
}

// RuleSet compiles the textual filter rules into an immutable filter.RuleSet
func (f FilterConfig) RuleSet() filter.RuleSet {
	groups, conditionals := filter.ParseBlockGroups(f.BlockGroups)
	return filter.RuleSet{
		Tags:         flatten(f.Tags),
		Block:        flatten(f.Block),
		NoWord:       flatten(f.NoWord),
		BlockGroups:  groups,
		Conditionals: conditionals,
		Orientation:  filter.Orientation(strings.ToLower(f.Orientation)),
		Type:         strings.ToLower(f.Type),
		Max:          f.Max,
	}
}

// flatten splits any comma separated entries so "a,b" and ["a","b"] agree
func flatten(values []string) []string {
	var out []string
	for _, v := range values {
		out = append(out, filter.SplitList(v)...)
	}
	return out
}

// Load loads configuration from all sources with proper precedence
// Precedence order: Command line flags > Environment variables > .env file > Config file > Defaults
func Load(configPath string, flags map[string]interface{}) (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join(os.Getenv("HOME"), ".pixivrank.env"))

	config := DefaultConfig()

	if err := config.LoadFromFile(configPath); err != nil {
		return nil, fmt.Errorf("failed to load config file: %w", err)
	}

	if err := config.LoadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	config.MergeCommandLineFlags(flags)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}
