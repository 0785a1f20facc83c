package app

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings represents configuration loaded from config.yaml.
// Field names match snake_case YAML keys. Durations are Go duration strings ("1.5s").
type Settings struct {
	APIBaseURL       string `yaml:"api_base_url"`
	DBPath           string `yaml:"db_path"`
	RequestTimeout   string `yaml:"request_timeout"`
	PollInterval     string `yaml:"poll_interval"`
	PollAttempts     int    `yaml:"poll_attempts"`
	NoticeTTL        string `yaml:"notice_ttl"`
	SuccessNoticeTTL string `yaml:"success_notice_ttl"`
	MatchPolicy      string `yaml:"match_policy"`
	RecordCapSeconds int    `yaml:"record_cap_seconds"`
	AudioDevice      string `yaml:"audio_device"`
}

// ClientSettings are effective runtime values used to build the client runtime.
type ClientSettings struct {
	APIBaseURL       string        `json:"api_base_url"`
	RequestTimeout   time.Duration `json:"request_timeout"`
	PollInterval     time.Duration `json:"poll_interval"`
	PollAttempts     int           `json:"poll_attempts"`
	NoticeTTL        time.Duration `json:"notice_ttl"`
	SuccessNoticeTTL time.Duration `json:"success_notice_ttl"`
	MatchPolicy      string        `json:"match_policy"`
	RecordCapSeconds int           `json:"record_cap_seconds"`
	AudioDevice      string        `json:"audio_device,omitempty"`
}

const (
	defaultAPIBaseURL       = "http://localhost:8080"
	defaultRequestTimeout   = 15 * time.Second
	defaultPollInterval     = 1500 * time.Millisecond
	defaultPollAttempts     = 10
	defaultNoticeTTL        = 3 * time.Second
	defaultSuccessNoticeTTL = 2500 * time.Millisecond
	defaultMatchPolicy      = "contains"
	defaultRecordCapSeconds = 60
)

// EffectiveClientSettings returns validated client settings with defaults.
// Precedence for the API base URL: --api override, FORGOTYET_API_BASE_URL, config.yaml, default.
// Invalid or missing config values fall back to safe defaults.
func EffectiveClientSettings() ClientSettings {
	cfg := ClientSettings{
		APIBaseURL:       defaultAPIBaseURL,
		RequestTimeout:   defaultRequestTimeout,
		PollInterval:     defaultPollInterval,
		PollAttempts:     defaultPollAttempts,
		NoticeTTL:        defaultNoticeTTL,
		SuccessNoticeTTL: defaultSuccessNoticeTTL,
		MatchPolicy:      defaultMatchPolicy,
		RecordCapSeconds: defaultRecordCapSeconds,
	}

	s, err := LoadSettings()
	if err == nil {
		if s.APIBaseURL != "" {
			cfg.APIBaseURL = s.APIBaseURL
		}
		cfg.RequestTimeout = positiveDuration(s.RequestTimeout, cfg.RequestTimeout)
		cfg.PollInterval = positiveDuration(s.PollInterval, cfg.PollInterval)
		cfg.NoticeTTL = positiveDuration(s.NoticeTTL, cfg.NoticeTTL)
		cfg.SuccessNoticeTTL = positiveDuration(s.SuccessNoticeTTL, cfg.SuccessNoticeTTL)
		if s.PollAttempts > 0 {
			cfg.PollAttempts = s.PollAttempts
		}
		switch strings.ToLower(s.MatchPolicy) {
		case "exact", "contains":
			cfg.MatchPolicy = strings.ToLower(s.MatchPolicy)
		}
		if s.RecordCapSeconds > 0 {
			cfg.RecordCapSeconds = s.RecordCapSeconds
		}
		cfg.AudioDevice = s.AudioDevice
	}

	if envURL := os.Getenv("FORGOTYET_API_BASE_URL"); envURL != "" {
		cfg.APIBaseURL = envURL
	}
	if override := getAPIBaseURLOverride(); override != "" {
		cfg.APIBaseURL = override
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")

	// The recording cap is a resource limit; config may lower it but never raise it.
	if cfg.RecordCapSeconds > defaultRecordCapSeconds {
		cfg.RecordCapSeconds = defaultRecordCapSeconds
	}
	if cfg.PollAttempts > 100 {
		cfg.PollAttempts = 100
	}
	return cfg
}

func positiveDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// settingsOnce, settings, settingsErr implement the sync.Once lazy-load singleton for config.
// The override mutexes guard process-wide values set from CLI flags (--db-path, --api).
//
//nolint:gochecknoglobals // sync.Once singleton + RWMutex override are intentional process-wide state
var (
	settingsOnce sync.Once
	settings     Settings
	settingsErr  error

	overrideMu         sync.RWMutex
	dbPathOverride     string
	apiBaseURLOverride string
)

// SetDBPathOverride sets a process-wide database path override.
// Intended for CLI flag support (e.g. --db-path).
func SetDBPathOverride(path string) {
	overrideMu.Lock()
	dbPathOverride = path
	overrideMu.Unlock()
}

func getDBPathOverride() string {
	overrideMu.RLock()
	v := dbPathOverride
	overrideMu.RUnlock()
	return v
}

// SetAPIBaseURLOverride sets a process-wide backend URL override (--api).
func SetAPIBaseURLOverride(url string) {
	overrideMu.Lock()
	apiBaseURLOverride = url
	overrideMu.Unlock()
}

func getAPIBaseURLOverride() string {
	overrideMu.RLock()
	v := apiBaseURLOverride
	overrideMu.RUnlock()
	return v
}

// LoadSettings loads configuration once using the documented lookup order.
// Lookup order (first found wins):
// 1) ~/.config/forgotyet/config.yaml
// 2) /etc/forgotyet/config.yaml
// 3) ./config.yaml (lowest priority)
// Environment variables are handled separately.
func LoadSettings() (Settings, error) {
	settingsOnce.Do(func() {
		settings = Settings{}

		dir, err := ConfigDir()
		if err != nil {
			settingsErr = err
			return
		}
		for _, p := range settingsPaths(dir) {
			s, err := loadSettingsFile(p)
			if err == nil {
				settings = s
				return
			}
			if !errors.Is(err, os.ErrNotExist) {
				settingsErr = err
				return
			}
		}
	})

	return settings, settingsErr
}

func settingsPaths(dir string) []string {
	return []string{
		filepath.Join(dir, "config.yaml"),
		filepath.Join(string(os.PathSeparator), "etc", "forgotyet", "config.yaml"),
		"config.yaml",
	}
}

func loadSettingsFile(path string) (Settings, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, err
	}

	var s Settings
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Settings{}, err
	}
	return s, nil
}
