package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pkg/errors"
	"github.com/slighter12/go-lib/database/postgres"
)

const defaultPath = "."

type Config struct {
	Env struct {
		Env         string `json:"env" yaml:"env"`
		ServiceName string `json:"serviceName" yaml:"serviceName"`
		Debug       bool   `json:"debug" yaml:"debug"`
		Log         Log    `json:"log" yaml:"log"`
	} `json:"env" yaml:"env"`

	HTTP struct {
		Port     int `json:"port" yaml:"port"`
		Timeouts struct {
			ReadTimeout       time.Duration `json:"readTimeout" yaml:"readTimeout"`
			ReadHeaderTimeout time.Duration `json:"readHeaderTimeout" yaml:"readHeaderTimeout"`
			WriteTimeout      time.Duration `json:"writeTimeout" yaml:"writeTimeout"`
			IdleTimeout       time.Duration `json:"idleTimeout" yaml:"idleTimeout"`
		} `json:"timeouts" yaml:"timeouts"`
	} `json:"http" yaml:"http"`

	Postgres *postgres.DBConn `json:"postgres" yaml:"postgres" mapstructure:"postgres"`

	// Registry configuration: CORS allow-list and the admin bearer secret.
	Registry *RegistryConfig `json:"registry" yaml:"registry"`

	// Watcher configuration for the background sync worker.
	Watcher *WatcherConfig `json:"watcher" yaml:"watcher"`

	// Push holds VAPID credentials for web push dispatch.
	Push *PushConfig `json:"push" yaml:"push"`

	// Zones lists the bidding zones the dispatch job processes by default.
	Zones []string `json:"zones" yaml:"zones"`
}

type Log struct {
	Pretty bool   `json:"pretty" yaml:"pretty"`
	Level  string `json:"level" yaml:"level"`
}

// RegistryConfig defines the subscription registry boundary.
type RegistryConfig struct {
	// AllowedOrigins is comma-separated; "*" allows every origin.
	AllowedOrigins string `json:"allowedOrigins" yaml:"allowedOrigins"`
	// AdminToken is the bearer secret guarding the /admin surface.
	AdminToken string `json:"adminToken" yaml:"adminToken"`
	// BaseURL is where clients (page controller, dispatch job) reach the registry.
	BaseURL string `json:"baseUrl" yaml:"baseUrl"`
}

// AllowedOriginList splits the comma-separated allow-list.
func (c *RegistryConfig) AllowedOriginList() []string {
	parts := strings.Split(c.AllowedOrigins, ",")
	origins := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}

	return origins
}

// WatcherConfig defines the background sync worker.
type WatcherConfig struct {
	Port int `json:"port" yaml:"port"`
	// StatePath is the durable WatchState file.
	StatePath string `json:"statePath" yaml:"statePath"`
	// DataOrigin and OriginPreset seed the data origin resolution.
	DataOrigin   string `json:"dataOrigin" yaml:"dataOrigin"`
	OriginPreset string `json:"originPreset" yaml:"originPreset"`
	// LocalOrigin is what an empty data origin ("same origin") resolves to.
	LocalOrigin string `json:"localOrigin" yaml:"localOrigin"`
	// PollPeriod and PollJitter shape fallback polling: each cycle waits
	// period plus a random slice of jitter.
	PollPeriod time.Duration `json:"pollPeriod" yaml:"pollPeriod"`
	PollJitter time.Duration `json:"pollJitter" yaml:"pollJitter"`
	// FetchTimeout bounds each latest-feed request.
	FetchTimeout time.Duration `json:"fetchTimeout" yaml:"fetchTimeout"`
}

// PushConfig defines web push dispatch credentials.
type PushConfig struct {
	VAPIDPublicKey  string `json:"vapidPublicKey" yaml:"vapidPublicKey"`
	VAPIDPrivateKey string `json:"vapidPrivateKey" yaml:"vapidPrivateKey"`
	Subject         string `json:"subject" yaml:"subject"`
	TTL             int    `json:"ttl" yaml:"ttl"`
}

// LoadWithEnv loads .yaml files through koanf.
func LoadWithEnv[T any](currEnv string, configPath ...string) (*T, error) {
	cfg := new(T)
	koanfInstance := koanf.New(".")

	// Build list of paths to search for config file
	searchPaths := []string{defaultPath}
	if len(configPath) != 0 {
		pwd, err := os.Getwd()
		if err != nil {
			return nil, errors.Wrap(err, "os.Getwd")
		}
		for _, path := range configPath {
			abs := filepath.Join(pwd, path)
			searchPaths = append(searchPaths, abs)
		}
	}

	// Try to find and load the config file
	var configFile string
	var found bool
	for _, path := range searchPaths {
		candidate := filepath.Join(path, currEnv+".yaml")
		if _, err := os.Stat(candidate); err == nil {
			configFile = candidate
			found = true

			break
		}
	}

	if !found {
		return nil, errors.Errorf("config file %s.yaml not found in any search path", currEnv)
	}

	// Load YAML config file
	if err := koanfInstance.Load(file.Provider(configFile), yaml.Parser()); err != nil {
		return nil, errors.Wrapf(err, "read %s config failed", currEnv)
	}

	existingConfigMap := koanfInstance.Raw()

	// Load environment variables
	if err := koanfInstance.Load(env.Provider(".", env.Opt{
		TransformFunc: func(k, v string) (string, any) {
			// Convert ENV_VAR_NAME to path and align each segment with existing YAML keys.
			// Example: REGISTRY_ADMINTOKEN -> registry.adminToken (not registry.admintoken)
			key := canonicalizeEnvKey(k, existingConfigMap)

			return key, v
		},
	}), nil); err != nil {
		return nil, errors.Wrap(err, "load env variables failed")
	}

	// Unmarshal into the config struct (case-insensitive to match env vars)
	if err := koanfInstance.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           cfg,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
			),
			MatchName: func(mapKey, fieldName string) bool {
				// Case-insensitive matching for env var overrides
				return strings.EqualFold(mapKey, fieldName)
			},
		},
	}); err != nil {
		return nil, errors.Wrapf(err, "unmarshal %s config failed", currEnv)
	}

	return cfg, nil
}

func New() (*Config, error) {
	cfg, err := LoadWithEnv[Config]("config", "config", "../config", "../../config")
	if err != nil {
		return nil, err
	}

	applyDefaults(cfg)

	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Registry == nil {
		cfg.Registry = &RegistryConfig{}
	}
	if cfg.Watcher == nil {
		cfg.Watcher = &WatcherConfig{}
	}
	if cfg.Watcher.PollPeriod <= 0 {
		cfg.Watcher.PollPeriod = 15 * time.Minute
	}
	if cfg.Watcher.PollJitter < 0 {
		cfg.Watcher.PollJitter = 0
	}
	if cfg.Watcher.StatePath == "" {
		cfg.Watcher.StatePath = "./data/watchstate.json"
	}
	if cfg.Push == nil {
		cfg.Push = &PushConfig{}
	}
	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 300
	}
}

func canonicalizeEnvKey(rawKey string, existing map[string]any) string {
	segments := strings.Split(strings.ToLower(rawKey), "_")
	canonical := make([]string, 0, len(segments))
	current := existing

	for _, segment := range segments {
		if segment == "" {
			continue
		}

		if matched, next, ok := findExistingSegment(current, segment); ok {
			canonical = append(canonical, matched)
			current = next
		} else {
			canonical = append(canonical, segment)
			current = nil
		}
	}

	return strings.Join(canonical, ".")
}

func findExistingSegment(current map[string]any, segment string) (matched string, next map[string]any, ok bool) {
	if len(current) == 0 {
		return "", nil, false
	}

	needle := normalizeToken(segment)
	for key, value := range current {
		if normalizeToken(key) != needle {
			continue
		}

		child, _ := value.(map[string]any)

		return key, child, true
	}

	return "", nil, false
}

func normalizeToken(s string) string {
	var normalized strings.Builder
	normalized.Grow(len(s))

	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			continue
		}
		normalized.WriteRune(unicode.ToLower(r))
	}

	return normalized.String()
}
