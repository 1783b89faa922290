package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultAPIKeyPath = "/run/secrets/api_keys/galmuri"
	APIKeyPathEnvVar  = "GALMURI_API_KEY_FILE"
	APIKeyEnvVar      = "GALMURI_API_KEY"
	ConfigPathEnvVar  = "GALMURI_CAPTURE"
	DefaultAPIURL     = "http://localhost:8000"
	DefaultBridgeAddr = "127.0.0.1:49600"
	DefaultHotkey     = "Ctrl+Shift+S"
	DefaultPlatform   = "MOBILE_APP"
)

type LoadOptions struct {
	APIKeyPathOverride string
	BridgeAddrOverride string
}

type Config struct {
	APIKey            string
	APIKeyPath        string
	APIURL            string
	UserID            string
	Platform          string
	EnableFileLogging bool
	Hotkey            string
	CaptureTimeout    time.Duration
	CaptureDisplay    int
	GrantTTL          time.Duration
	PermissionTries   int
	BridgeAddr        string
	WatchEnabled      bool
	WatchDirs         []string
	WatchWindow       time.Duration
	WatchMaxResults   int
	AutoUpload        bool
	CopyToClipboard   bool
}

func Load() (*Config, error) {
	return LoadWithOptions(LoadOptions{})
}

func LoadWithOptions(opts LoadOptions) (*Config, error) {
	// Load configuration from sources in priority order:
	// 1) .env in the application (executable) directory
	// 2) If not found, use GALMURI_CAPTURE env var as a path to a config file
	envPath := resolveEnvPath()
	dotenvValues := readDotenvValues(envPath)
	if envPath != "" {
		_ = godotenv.Load(envPath)
	}

	apiKeyPath := resolveAPIKeyPath(opts, dotenvValues)

	bridgeAddr := getEnvWithDefault("BRIDGE_ADDR", DefaultBridgeAddr)
	if override := strings.TrimSpace(opts.BridgeAddrOverride); override != "" {
		bridgeAddr = override
	}

	cfg := &Config{
		APIKey:            resolveAPIKey(apiKeyPath),
		APIKeyPath:        apiKeyPath,
		APIURL:            strings.TrimRight(getEnvWithDefault("GALMURI_API_URL", DefaultAPIURL), "/"),
		UserID:            strings.TrimSpace(os.Getenv("GALMURI_USER_ID")),
		Platform:          strings.ToUpper(getEnvWithDefault("GALMURI_PLATFORM", DefaultPlatform)),
		EnableFileLogging: getBool("ENABLE_FILE_LOGGING", false),
		Hotkey:            getEnvWithDefault("HOTKEY", DefaultHotkey),
		CaptureTimeout:    getSeconds("CAPTURE_TIMEOUT_SEC", 10),
		CaptureDisplay:    getInt("CAPTURE_DISPLAY", 0, 0),
		GrantTTL:          getSeconds("GRANT_TTL_SEC", 3600),
		PermissionTries:   getInt("PERMISSION_ATTEMPTS", 3, 1),
		BridgeAddr:        bridgeAddr,
		WatchEnabled:      getBool("WATCH_ENABLED", true),
		WatchDirs:         splitList(os.Getenv("WATCH_DIRS")),
		WatchWindow:       getSeconds("WATCH_WINDOW_SEC", 60),
		WatchMaxResults:   getInt("WATCH_MAX_RESULTS", 20, 1),
		AutoUpload:        getBool("AUTO_UPLOAD", false),
		CopyToClipboard:   getBool("COPY_TO_CLIPBOARD", false),
	}

	return cfg, nil
}

func resolveEnvPath() string {
	execPath, err := os.Executable()
	if err != nil {
		return ""
	}

	execDir := filepath.Dir(execPath)
	exeEnv := filepath.Join(execDir, ".env")
	if _, err := os.Stat(exeEnv); err == nil {
		return exeEnv
	}

	if alt := os.Getenv(ConfigPathEnvVar); alt != "" {
		if _, err := os.Stat(alt); err == nil {
			return alt
		}
	}

	return ""
}

func readDotenvValues(envPath string) map[string]string {
	if envPath == "" {
		return map[string]string{}
	}

	values, err := godotenv.Read(envPath)
	if err != nil {
		return map[string]string{}
	}

	return values
}

func resolveAPIKeyPath(opts LoadOptions, dotenvValues map[string]string) string {
	keyPath := DefaultAPIKeyPath

	if envPath := strings.TrimSpace(os.Getenv(APIKeyPathEnvVar)); envPath != "" {
		keyPath = envPath
	}

	if dotenvPath := strings.TrimSpace(dotenvValues[APIKeyPathEnvVar]); dotenvPath != "" {
		keyPath = dotenvPath
	}

	if overridePath := strings.TrimSpace(opts.APIKeyPathOverride); overridePath != "" {
		keyPath = overridePath
	}

	return keyPath
}

func resolveAPIKey(keyPath string) string {
	if data, err := os.ReadFile(keyPath); err == nil {
		if fileKey := strings.TrimSpace(string(data)); fileKey != "" {
			return fileKey
		}
	}

	return os.Getenv(APIKeyEnvVar)
}

func getEnvWithDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "true", "1", "yes", "on":
		return true
	case "false", "0", "no", "off":
		return false
	default:
		return def
	}
}

// getInt falls back to def for unparsable values or values below min.
func getInt(key string, def, min int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= min {
			return n
		}
	}
	return def
}

func getSeconds(key string, def int) time.Duration {
	return time.Duration(getInt(key, def, 1)) * time.Second
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == os.PathListSeparator }) {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
