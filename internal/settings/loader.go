package settings

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/stampdesk/stampdesk/internal/models"
	"github.com/stampdesk/stampdesk/internal/ratelimit"
)

// RefreshDBConfigSnapshot reloads all settings from the database and
// updates the in-memory snapshot.
//
// This runs at process startup; otherwise DBConfigValue() returns empty
// values until an update triggers a refresh.
func RefreshDBConfigSnapshot(ctx context.Context, conn *gorm.DB) error {
	if conn == nil {
		return errors.New("settings: nil db")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var rows []models.Setting
	if errFind := conn.WithContext(ctx).
		Select("key", "value", "updated_at").
		Order("key ASC").
		Find(&rows).Error; errFind != nil {
		return errFind
	}

	values := make(map[string]json.RawMessage, len(rows))
	maxUpdatedAt := time.Time{}
	for _, row := range rows {
		key := strings.TrimSpace(row.Key)
		if key == "" {
			continue
		}
		values[key] = json.RawMessage(row.Value)
		if rowUpdatedAt := row.UpdatedAt.UTC(); rowUpdatedAt.After(maxUpdatedAt) {
			maxUpdatedAt = rowUpdatedAt
		}
	}

	StoreDBConfig(maxUpdatedAt, values)
	return nil
}

// RateLimitOverrides decodes the per-operation rate limit overrides from
// the settings snapshot. Invalid entries are skipped.
func RateLimitOverrides() map[string]ratelimit.Policy {
	raw, ok := DBConfigValue(RateLimitOverridesKey)
	if !ok || len(raw) == 0 {
		return nil
	}

	var specs map[string]ratelimit.PolicySpec
	if errUnmarshal := json.Unmarshal(raw, &specs); errUnmarshal != nil {
		return nil
	}

	overrides := make(map[string]ratelimit.Policy, len(specs))
	for op, spec := range specs {
		if !spec.Valid() {
			continue
		}
		overrides[op] = spec.Policy()
	}
	if len(overrides) == 0 {
		return nil
	}
	return overrides
}
