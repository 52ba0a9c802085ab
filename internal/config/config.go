package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application shell.
type Config struct {
	// Application identity
	AppHost         string
	CustomScheme    string
	AuthSuccessPath string
	SessionPath     string
	TokenParam      string
	ErrorParam      string

	// Navigation policy
	IdentityHosts           []string
	ExternalizeForeignHosts bool
	NavigationRulesPath     string

	// Browser host
	CDPAddress   string
	CDPPort      int
	ProfileDir   string
	WindowSize   string
	WebDebugging bool

	// Control API and logging
	BindAddr string
	LogLevel string
	LogFile  string

	// Native capability adapters
	DataDir            string
	PlatformLevel      int
	LegacyStorageBelow int
	CaptureCommand     string
	PickerCommand      string
	OpenCommand        string
	ShareEndpoint      string
	AutoGrant          bool
}

var defaultIdentityHosts = []string{
	"accounts.google.com",
	"accounts.youtube.com",
	"appleid.apple.com",
	"login.microsoftonline.com",
	"login.live.com",
}

// Load reads configuration from environment variables and optional .env file.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("failed to load .env file", "error", err)
	}

	cfg := &Config{
		AppHost:                 strings.ToLower(getEnvOrDefault("NEARIL_APP_HOST", "nearil.com")),
		CustomScheme:            strings.ToLower(getEnvOrDefault("NEARIL_CUSTOM_SCHEME", "nearil")),
		AuthSuccessPath:         getEnvOrDefault("NEARIL_AUTH_SUCCESS_PATH", "/app_auth_complete"),
		SessionPath:             getEnvOrDefault("NEARIL_SESSION_PATH", "/app/auth_login"),
		TokenParam:              getEnvOrDefault("NEARIL_TOKEN_PARAM", "auth_token"),
		ErrorParam:              getEnvOrDefault("NEARIL_ERROR_PARAM", "error"),
		IdentityHosts:           getEnvListOrDefault("NEARIL_IDENTITY_HOSTS", defaultIdentityHosts),
		ExternalizeForeignHosts: getEnvBoolOrDefault("NEARIL_EXTERNALIZE_FOREIGN_HOSTS", false),
		NavigationRulesPath:     getEnvOrDefault("NEARIL_NAVIGATION_RULES", "./config/navigation.yaml"),
		CDPAddress:              getEnvOrDefault("CHROMIUM_CDP_ADDRESS", "127.0.0.1"),
		CDPPort:                 getEnvIntOrDefault("CHROMIUM_CDP_PORT", 9230),
		ProfileDir:              getEnvOrDefault("NEARIL_PROFILE_DIR", "./shell_data/profile"),
		WindowSize:              getEnvOrDefault("NEARIL_WINDOW_SIZE", "412,915"),
		WebDebugging:            getEnvBoolOrDefault("NEARIL_WEB_DEBUGGING", false),
		BindAddr:                getEnvOrDefault("NEARIL_BIND_ADDR", "127.0.0.1:8190"),
		LogLevel:                strings.ToLower(getEnvOrDefault("NEARIL_LOG_LEVEL", "info")),
		LogFile:                 getEnvOrDefault("NEARIL_LOG_FILE", "logs/nearil_shell.log"),
		DataDir:                 getEnvOrDefault("NEARIL_DATA_DIR", "./shell_data"),
		PlatformLevel:           getEnvIntOrDefault("NEARIL_PLATFORM_LEVEL", 34),
		LegacyStorageBelow:      getEnvIntOrDefault("NEARIL_LEGACY_STORAGE_BELOW", 29),
		CaptureCommand:          getEnvOrDefault("NEARIL_CAPTURE_COMMAND", ""),
		PickerCommand:           getEnvOrDefault("NEARIL_PICKER_COMMAND", "zenity --file-selection"),
		OpenCommand:             getEnvOrDefault("NEARIL_OPEN_COMMAND", ""),
		ShareEndpoint:           getEnvOrDefault("NEARIL_SHARE_ENDPOINT", ""),
		AutoGrant:               getEnvBoolOrDefault("NEARIL_AUTO_GRANT", false),
	}

	if !strings.HasPrefix(cfg.AuthSuccessPath, "/") {
		cfg.AuthSuccessPath = "/" + cfg.AuthSuccessPath
	}
	if !strings.HasPrefix(cfg.SessionPath, "/") {
		cfg.SessionPath = "/" + cfg.SessionPath
	}
	return cfg, nil
}

// Origin returns the canonical secure origin of the web application.
func (c *Config) Origin() string {
	return "https://" + c.AppHost
}

// StartURL returns the URL loaded when no deep link is pending.
func (c *Config) StartURL() string {
	return c.Origin() + "/"
}

// CDPURL returns the CDP HTTP endpoint used by the chromedp remote allocator.
func (c *Config) CDPURL() string {
	return "http://" + c.CDPAddress + ":" + strconv.Itoa(c.CDPPort)
}

func getEnvOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvIntOrDefault(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBoolOrDefault(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvListOrDefault splits a comma separated value, dropping blank entries.
func getEnvListOrDefault(key string, defaultVal []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return append([]string(nil), defaultVal...)
	}
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.ToLower(strings.TrimSpace(part)); part != "" {
			out = append(out, part)
		}
	}
	return out
}
