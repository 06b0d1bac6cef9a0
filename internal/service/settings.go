package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/timmy/stockmeta/internal/domain"
	"github.com/timmy/stockmeta/internal/repository"
)

// ErrInvalidSetting is returned for rejected setting values.
var ErrInvalidSetting = errors.New("invalid setting value")

// Key sources reported by Session.
const (
	KeySourceSettings = "settings"
	KeySourceConfig   = "config"
)

// SessionInfo describes whether a usable API key is present.
type SessionInfo struct {
	Authenticated bool   `json:"authenticated"`
	KeySource     string `json:"key_source,omitempty"`
	Theme         string `json:"theme"`
}

// SettingsService reads and writes user preferences. A key stored in the
// settings table wins over the configured one.
type SettingsService struct {
	repo         *repository.SettingsRepository
	fallbackKey  string
	defaultTheme string
}

// NewSettingsService creates a settings service.
func NewSettingsService(repo *repository.SettingsRepository, fallbackKey, defaultTheme string) *SettingsService {
	if defaultTheme != domain.ThemeLight {
		defaultTheme = domain.ThemeDark
	}
	return &SettingsService{repo: repo, fallbackKey: fallbackKey, defaultTheme: defaultTheme}
}

// Theme returns the stored theme or the default.
func (s *SettingsService) Theme(ctx context.Context) (string, error) {
	v, ok, err := s.repo.Get(ctx, domain.SettingTheme)
	if err != nil {
		return "", fmt.Errorf("failed to load theme: %w", err)
	}
	if !ok || (v != domain.ThemeDark && v != domain.ThemeLight) {
		return s.defaultTheme, nil
	}
	return v, nil
}

// SetTheme stores theme, which must be dark or light.
func (s *SettingsService) SetTheme(ctx context.Context, theme string) error {
	if theme != domain.ThemeDark && theme != domain.ThemeLight {
		return fmt.Errorf("%w: theme must be %q or %q", ErrInvalidSetting, domain.ThemeDark, domain.ThemeLight)
	}
	return s.repo.Set(ctx, domain.SettingTheme, theme)
}

// APIKey returns the key used for model calls and where it came from.
// An empty key means the user has to enter one.
func (s *SettingsService) APIKey(ctx context.Context) (string, string, error) {
	v, ok, err := s.repo.Get(ctx, domain.SettingAPIKey)
	if err != nil {
		return "", "", fmt.Errorf("failed to load api key: %w", err)
	}
	if ok && strings.TrimSpace(v) != "" {
		return v, KeySourceSettings, nil
	}
	if s.fallbackKey != "" {
		return s.fallbackKey, KeySourceConfig, nil
	}
	return "", "", nil
}

// SetAPIKey stores key. Blank keys are rejected.
func (s *SettingsService) SetAPIKey(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%w: api key must not be empty", ErrInvalidSetting)
	}
	return s.repo.Set(ctx, domain.SettingAPIKey, key)
}

// ClearAPIKey forgets the stored key. A configured key still applies.
func (s *SettingsService) ClearAPIKey(ctx context.Context) error {
	return s.repo.Delete(ctx, domain.SettingAPIKey)
}

// Session reports the authentication state and current theme.
func (s *SettingsService) Session(ctx context.Context) (*SessionInfo, error) {
	key, source, err := s.APIKey(ctx)
	if err != nil {
		return nil, err
	}
	theme, err := s.Theme(ctx)
	if err != nil {
		return nil, err
	}
	return &SessionInfo{Authenticated: key != "", KeySource: source, Theme: theme}, nil
}
