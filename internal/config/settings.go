package config

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"
)

// undefinedTable is the Postgres SQLSTATE for a missing relation.
const undefinedTable = "42P01"

// LoadSettings reads every key/value row from the app_settings table. A
// missing table yields an empty map.
func LoadSettings(ctx context.Context, db *sql.DB) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, `SELECT key, value FROM app_settings`)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == undefinedTable {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("config: load settings: %w", err)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key string
		var value sql.NullString
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("config: scan setting: %w", err)
		}
		settings[strings.TrimSpace(key)] = value.String
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("config: load settings: %w", err)
	}
	return settings, nil
}

// ApplySettings overlays known keys from a settings map onto c. Unknown keys
// are ignored; malformed numbers are reported and leave the field unchanged.
// WEBINAR_NAME and ADMIN_URL are accepted as older spellings of SESSION_NAME
// and CDP_URL; when both are set the newer key wins.
func (c *Config) ApplySettings(settings map[string]string) error {
	var errs []error

	str := func(key string, dst *string) {
		if v := strings.TrimSpace(settings[key]); v != "" {
			*dst = v
		}
	}
	millis := func(key string, dst *time.Duration) {
		v := strings.TrimSpace(settings[key])
		if v == "" {
			return
		}
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("setting %s: %w", key, err))
			return
		}
		*dst = time.Duration(ms) * time.Millisecond
	}

	str("EVENT_ID", &c.Session.EventID)
	str("WEBINAR_NAME", &c.Session.Name)
	str("SESSION_NAME", &c.Session.Name)
	millis("ABSENCE_THRESHOLD_MS", &c.Session.AbsenceThreshold)
	millis("POLL_INTERVAL_MS", &c.Session.PollInterval)
	millis("SETTLE_DELAY_MS", &c.Scan.SettleDelay)
	if v := strings.TrimSpace(settings["SCAN_STEP_SIZE"]); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("setting SCAN_STEP_SIZE: %w", err))
		} else {
			c.Scan.StepSize = n
		}
	}
	for _, key := range []string{"ADMIN_URL", "CDP_URL"} {
		if v := strings.TrimSpace(settings[key]); v != "" {
			if c.Provider.Extra == nil {
				c.Provider.Extra = make(map[string]string)
			}
			c.Provider.Extra["url"] = v
		}
	}

	return errors.Join(errs...)
}
