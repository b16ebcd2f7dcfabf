package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Freeeeeet/coach_marketplace/internal/model"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DB_DSN", "postgres://localhost/marketplace")
	t.Setenv("ENV", "dev")
	t.Setenv("MAIL_USERNAME", "robot@example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Environment)
	assert.Equal(t, "@every 1m", cfg.SweeperSchedule)
	assert.Equal(t, 587, cfg.MailPort)
	assert.Equal(t, "robot@example.com", cfg.MailFrom)
	assert.True(t, cfg.MigrationsEnabled)
	assert.False(t, cfg.MailEnabled())
}

func TestLoadRequiresDSN(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DB_DSN", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRequiresSecretInProduction(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DB_DSN", "postgres://localhost/marketplace")
	t.Setenv("ENV", "prod")
	t.Setenv("SECRET_KEY", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestMailEnabled(t *testing.T) {
	cfg := &Config{MailServer: "smtp.example.com", MailUsername: "u", MailPassword: "p"}
	assert.True(t, cfg.MailEnabled())

	cfg.MailPassword = ""
	assert.False(t, cfg.MailEnabled())
}

func TestPolicyOverridesWorkingHours(t *testing.T) {
	path := filepath.Join(t.TempDir(), "policy.yaml")
	content := `
workingHours:
  monday: {start: "08:00", end: "12:00"}
  sunday: {}
meetingProviders: ["meet.example.com"]
maxBookingDays: 30
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	policy, err := LoadPolicy(path)
	require.NoError(t, err)

	hours, err := policy.Hours()
	require.NoError(t, err)

	assert.Equal(t, model.DayHours{Start: 8 * 60, End: 12 * 60}, hours[time.Monday])
	_, ok := hours.For(time.Sunday)
	assert.False(t, ok)
	assert.Equal(t, model.DayHours{Start: 9 * 60, End: 17 * 60}, hours[time.Tuesday])
	assert.Equal(t, []string{"meet.example.com"}, policy.Providers())
	assert.Equal(t, 30*24*time.Hour, policy.BookingHorizon())
}

func TestPolicyRejectsBadHours(t *testing.T) {
	p := Policy{WorkingHours: map[string]DayHours{"friday": {Start: "17:00", End: "09:00"}}}
	_, err := p.Hours()
	assert.Error(t, err)

	p = Policy{WorkingHours: map[string]DayHours{"funday": {Start: "09:00", End: "10:00"}}}
	_, err = p.Hours()
	assert.Error(t, err)
}

func TestDefaultPolicy(t *testing.T) {
	var p Policy
	assert.Equal(t, DefaultMeetingProviders, p.Providers())
	assert.Equal(t, 365*24*time.Hour, p.BookingHorizon())
}
