//go:build integration

package config

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crimson-sun/rollcall/internal/testutil/containers"
)

func TestLoadSettings(t *testing.T) {
	ctx := context.Background()
	db := containers.NewPostgres(t)

	settings, err := LoadSettings(ctx, db)
	require.NoError(t, err, "missing table is not an error")
	assert.Empty(t, settings)

	_, err = db.ExecContext(ctx, `
		CREATE TABLE app_settings (key TEXT PRIMARY KEY, value TEXT);
		INSERT INTO app_settings (key, value) VALUES
			('EVENT_ID', 'ev-db'),
			('WEBINAR_NAME', 'Spring Launch'),
			('ADMIN_URL', 'https://app.example.com/admin'),
			('ABSENCE_THRESHOLD_MS', '9000'),
			('EMPTY', NULL);
	`)
	require.NoError(t, err)

	settings, err = LoadSettings(ctx, db)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"EVENT_ID":             "ev-db",
		"WEBINAR_NAME":         "Spring Launch",
		"ADMIN_URL":            "https://app.example.com/admin",
		"ABSENCE_THRESHOLD_MS": "9000",
		"EMPTY":                "",
	}, settings)

	cfg := validConfig()
	require.NoError(t, cfg.ApplySettings(settings))
	assert.Equal(t, "ev-db", cfg.Session.EventID)
	assert.Equal(t, 9*time.Second, cfg.Session.AbsenceThreshold)
	assert.Equal(t, "Spring Launch", cfg.Session.Name)
	assert.Equal(t, "https://app.example.com/admin", cfg.Provider.Extra["url"])
}
