package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pixivrank/pkg/filter"
)

func TestLoadFromFileYAML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "pixivrank.yaml")
	content := `
pixiv:
  user_agent: file_agent
  api_timeout: 20s
ranking:
  mode: monthly
  content: ugoira
  pages: 3
filter:
  tags: ["miku", "rin"]
  block_groups: "[a,b][R-18,safe)"
  orientation: desktop
scheduler:
  interval: 500ms
  pause_threshold: 40
download:
  retry_failed: true
logging:
  level: warn
  format: json
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(configPath))

	assert.Equal(t, "file_agent", cfg.Pixiv.UserAgent)
	assert.Equal(t, 20*time.Second, cfg.Pixiv.APITimeout)
	assert.Equal(t, "monthly", cfg.Ranking.Mode)
	assert.Equal(t, 3, cfg.Ranking.Pages)
	assert.Equal(t, []string{"miku", "rin"}, cfg.Filter.Tags)
	assert.Equal(t, 500*time.Millisecond, cfg.Scheduler.Interval)
	assert.Equal(t, 40, cfg.Scheduler.PauseThreshold)
	assert.True(t, cfg.Download.RetryFailed)
	assert.Equal(t, "json", cfg.Logging.Format)
	// untouched sections keep defaults
	assert.Equal(t, 8*time.Second, cfg.Scheduler.PauseDuration)
	assert.Equal(t, "cache", cfg.Cache.Directory)
}

func TestLoadFromFileTOML(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "pixivrank.toml")
	content := `
[ranking]
mode = "weekly"
pages = 2

[filter]
block = ["gore", "AI"]
type = "manga"

[cache]
directory = "/var/cache/pixivrank"
lock_stale_after = "45s"
`
	require.NoError(t, os.WriteFile(configPath, []byte(content), 0644))

	cfg := DefaultConfig()
	require.NoError(t, cfg.LoadFromFile(configPath))

	assert.Equal(t, "weekly", cfg.Ranking.Mode)
	assert.Equal(t, 2, cfg.Ranking.Pages)
	assert.Equal(t, []string{"gore", "AI"}, cfg.Filter.Block)
	assert.Equal(t, "manga", cfg.Filter.Type)
	assert.Equal(t, "/var/cache/pixivrank", cfg.Cache.Directory)
	assert.Equal(t, 45*time.Second, cfg.Cache.LockStaleAfter)
}

func TestLoadFromFileErrors(t *testing.T) {
	t.Run("missing file", func(t *testing.T) {
		err := DefaultConfig().LoadFromFile(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		p := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(p, []byte("ranking: [unclosed"), 0644))
		assert.Error(t, DefaultConfig().LoadFromFile(p))
	})

	t.Run("invalid toml", func(t *testing.T) {
		p := filepath.Join(t.TempDir(), "bad.toml")
		require.NoError(t, os.WriteFile(p, []byte("[ranking\nmode ="), 0644))
		assert.Error(t, DefaultConfig().LoadFromFile(p))
	})
}

func TestFindConfigFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".config", "pixivrank")
	require.NoError(t, os.MkdirAll(dir, 0755))
	want := filepath.Join(dir, "config.toml")
	require.NoError(t, os.WriteFile(want, []byte("[ranking]\nmode = \"daily\"\n"), 0644))

	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	defer os.Chdir(wd)

	assert.Equal(t, want, DefaultConfig().findConfigFile())
}

func TestLoadPrecedence(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte("ranking:\n  mode: weekly\n  pages: 2\nfilter:\n  max: 10\n"), 0644))

	t.Setenv("PIXIVRANK_MAX", "20")
	t.Setenv("PIXIVRANK_PAGES", "4")

	cfg, err := Load(configPath, map[string]interface{}{"pages": 6})
	require.NoError(t, err)

	assert.Equal(t, "weekly", cfg.Ranking.Mode, "file beats default")
	assert.Equal(t, 20, cfg.Filter.Max, "env beats file")
	assert.Equal(t, 6, cfg.Ranking.Pages, "flag beats env")
}

func TestLoadValidationAggregatesErrors(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	_, err := Load("", map[string]interface{}{"date": "yesterday", "orientation": "sideways"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid date")
	assert.Contains(t, err.Error(), "invalid orientation")
}

func TestRuleSet(t *testing.T) {
	fc := FilterConfig{
		Tags:        []string{"miku,rin", " len "},
		Block:       []string{"gore"},
		NoWord:      []string{"bl"},
		BlockGroups: "[A,B][R-18,safe)",
		Orientation: "Desktop",
		Type:        "Ugoira",
		Max:         5,
	}

	rs := fc.RuleSet()
	assert.Equal(t, []string{"miku", "rin", "len"}, rs.Tags)
	assert.Equal(t, [][]string{{"a", "b"}}, rs.BlockGroups)
	assert.Equal(t, []filter.ConditionalRule{{IfExists: "R-18", MustHave: "safe"}}, rs.Conditionals)
	assert.Equal(t, filter.OrientationDesktop, rs.Orientation)
	assert.Equal(t, "ugoira", rs.Type)
	assert.Equal(t, 5, rs.Max)
}
