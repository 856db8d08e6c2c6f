package migration

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestVersionsArePairedAndOrdered(t *testing.T) {
	versions, err := Versions()
	require.NoError(t, err)
	require.NotEmpty(t, versions)

	for i, v := range versions {
		require.Equal(t, uint(i+1), v.Number)
		require.True(t, strings.HasSuffix(v.Up, ".up.sql"))
		require.True(t, strings.HasSuffix(v.Down, ".down.sql"))
	}
	require.Equal(t, "init", versions[0].Name)
}

func TestActiveRegistrationIndexIsPartial(t *testing.T) {
	body, err := embeddedMigrations.ReadFile("migrations/000001_init.up.sql")
	require.NoError(t, err)

	sql := string(body)
	require.Contains(t, sql, "ux_registrations_active_participant")
	require.Contains(t, sql, "WHERE status IN ('pending', 'confirmed', 'waitlisted')")
}

func TestCutDirection(t *testing.T) {
	base, dir, ok := cutDirection("000002_payment_compensations.down.sql")
	require.True(t, ok)
	require.Equal(t, "000002_payment_compensations", base)
	require.Equal(t, "down", dir)

	_, _, ok = cutDirection("README.md")
	require.False(t, ok)
}

func TestUpRequiresDatabase(t *testing.T) {
	_, err := NewRunner(nil).Up(nil)
	require.ErrorIs(t, err, ErrNoDatabase)
}

func TestMigrateLoggerVerbosityFollowsLevel(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := migrateLogger{zap.New(core)}
	require.True(t, l.Verbose())

	l.Printf("Start buffering 1/u init\n")
	require.Equal(t, "Start buffering 1/u init", logs.All()[0].Message)

	quiet, _ := observer.New(zapcore.InfoLevel)
	require.False(t, migrateLogger{zap.New(quiet)}.Verbose())
}
