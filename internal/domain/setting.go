package domain

import "time"

// Setting keys persisted in the key-value store.
const (
	SettingTheme  = "theme"
	SettingAPIKey = "api_key"
)

// Theme values accepted for SettingTheme.
const (
	ThemeDark  = "dark"
	ThemeLight = "light"
)

// Setting is a single persisted key-value pair.
type Setting struct {
	Key       string    `gorm:"type:text;primaryKey" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for Setting.
func (Setting) TableName() string {
	return "settings"
}

// GenerationMode selects the model profile used for metadata generation.
type GenerationMode string

const (
	ModeQuality GenerationMode = "quality"
	ModeFast    GenerationMode = "fast"
)

// Valid reports whether m is a known mode.
func (m GenerationMode) Valid() bool {
	return m == ModeQuality || m == ModeFast
}
