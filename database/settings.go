package database

import (
	"context"
	"fmt"
	"time"

	"github.com/hmeierhoff/clearsearch/helper"
	loadSql "github.com/hmeierhoff/clearsearch/sql"
)

// SettingsDBHandlerFunctions defines the interface for setting database operations.
type SettingsDBHandlerFunctions interface {
	UpsertSetting(category, key, value string) error
	SelectSettingsByCategory(ctx context.Context, category string) (map[string]string, error)
	DeleteSetting(category, key string) error
}

// SettingsDBHandler handles runtime setting database operations. Settings are
// grouped by category; SelectSettingsByCategory is the loader behind the
// config cache tier.
type SettingsDBHandler struct {
	db *helper.Database
}

// NewSettingsDBHandler creates a new settings database handler.
// If force is true, it will reload the SQL functions even if they already exist.
func NewSettingsDBHandler(db *helper.Database, force bool) (*SettingsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}

	settingsDbHandler := &SettingsDBHandler{
		db: db,
	}

	err := loadSql.LoadSettingsSql(settingsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load settings sql", err)
	}

	err = settingsDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized SettingsDBHandler")

	return settingsDbHandler, nil
}

// CreateTable creates the 'settings' table in the database.
// If the table already exists, it does not create it again.
func (h *SettingsDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_settings();`)
	if err != nil {
		return helper.NewError("initializing settings table", err)
	}

	h.db.Logger.Info("Checked/created table settings")

	return nil
}

// UpsertSetting inserts or updates a single setting.
func (h *SettingsDBHandler) UpsertSetting(category, key, value string) error {
	row := h.db.Instance.QueryRow(
		`SELECT * FROM upsert_setting($1, $2, $3)`,
		category,
		key,
		value,
	)

	var storedCategory, storedKey, storedValue string
	var updatedAt time.Time
	err := row.Scan(&storedCategory, &storedKey, &storedValue, &updatedAt)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// SelectSettingsByCategory retrieves all settings of a category as a key/value map.
// An unknown category returns an empty map.
func (h *SettingsDBHandler) SelectSettingsByCategory(ctx context.Context, category string) (map[string]string, error) {
	rows, err := h.db.Instance.QueryContext(ctx,
		`SELECT * FROM select_settings_by_category($1)`,
		category,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	settings := map[string]string{}
	for rows.Next() {
		var key, value string
		err := rows.Scan(&key, &value)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}
		settings[key] = value
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return settings, nil
}

// DeleteSetting deletes a single setting.
func (h *SettingsDBHandler) DeleteSetting(category, key string) error {
	_, err := h.db.Instance.Exec(
		`SELECT delete_setting($1, $2)`,
		category,
		key,
	)
	if err != nil {
		return helper.NewError("exec", err)
	}
	return nil
}
