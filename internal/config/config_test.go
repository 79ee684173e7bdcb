package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "subbot.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaultsAndOverrides(t *testing.T) {
	path := writeTempConfig(t, `
database:
  dsn: "postgres://localhost/subbot"
telegram:
  bot_token: "tg-token"
pixiv:
  refresh_token: "px-token"
scheduler:
  ranking_execution_hour: 11
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/subbot", cfg.Database.DSN)
	assert.Equal(t, 10, cfg.Database.MaxOpenConns)
	assert.Equal(t, 11, cfg.Scheduler.RankingExecutionHour)
	assert.Equal(t, 0, cfg.Scheduler.RankingExecutionMinute)
	assert.Equal(t, "original", cfg.Scheduler.ImageSize)
}

func TestLoadMissingRequiredFieldFails(t *testing.T) {
	path := writeTempConfig(t, `
telegram:
  bot_token: "tg-token"
pixiv:
  refresh_token: "px-token"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.dsn")
}

func TestValidateRejectsExhentaiWithoutCredentials(t *testing.T) {
	cfg := Default()
	cfg.Database.DSN = "postgres://x"
	cfg.Telegram.BotToken = "t"
	cfg.Pixiv.RefreshToken = "p"
	cfg.Ehentai.Enabled = true
	cfg.Ehentai.Source = "exhentai"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "credentials")
}

func TestValidateRejectsBadImageSize(t *testing.T) {
	cfg := Default()
	cfg.Database.DSN = "postgres://x"
	cfg.Telegram.BotToken = "t"
	cfg.Pixiv.RefreshToken = "p"
	cfg.Scheduler.ImageSize = "huge"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "image_size")
}
