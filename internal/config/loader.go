package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// ConfigEnvVar overrides config discovery when set.
const ConfigEnvVar = "TICKROUTE_CONFIG"

// Load reads, interpolates and validates the configuration at configPath.
// A directory is accepted if it contains config.yaml. A .env file next to the
// config is loaded first; variables already set in the environment win.
func Load(configPath string) (*Config, error) {
	absPath, err := resolveConfigPath(configPath)
	if err != nil {
		return nil, err
	}

	if err := loadDotenv(filepath.Dir(absPath)); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", absPath, err)
	}
	cfg.SourcePath = absPath
	cfg.Hash = Fingerprint(data)

	return cfg, nil
}

// Parse decodes YAML on top of Defaults, applies defaults for omitted
// sections and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()

	// Apply environment variable interpolation
	interpolated := interpolateEnv(string(data))

	if err := yaml.Unmarshal([]byte(interpolated), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	cfg = applyConfigDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DiscoverConfigFile finds the config file by checking standard locations.
// Priority order: $TICKROUTE_CONFIG, ~/.config/tickroute/config.yaml, ./config.yaml
func DiscoverConfigFile() (string, error) {
	if path := os.Getenv(ConfigEnvVar); path != "" {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	if homeDir, err := os.UserHomeDir(); err == nil {
		userConfig := filepath.Join(homeDir, ".config", "tickroute", "config.yaml")
		if _, err := os.Stat(userConfig); err == nil {
			return userConfig, nil
		}
	}

	localConfig := "./config.yaml"
	if _, err := os.Stat(localConfig); err == nil {
		return localConfig, nil
	}

	return "", fmt.Errorf("no config found (checked: $%s, ~/.config/tickroute/config.yaml, ./config.yaml)", ConfigEnvVar)
}

func resolveConfigPath(configPath string) (string, error) {
	absPath, err := filepath.Abs(configPath)
	if err != nil {
		return "", fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		return "", fmt.Errorf("config file not found: %s\n"+
			"Hint: Check the path or run with --config flag", absPath)
	}

	if info.IsDir() {
		absPath = filepath.Join(absPath, "config.yaml")
		if _, err := os.Stat(absPath); err != nil {
			return "", fmt.Errorf("directory provided but config.yaml not found: %s", absPath)
		}
	}
	return absPath, nil
}

func loadDotenv(dir string) error {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// applyConfigDefaults fills sections that YAML explicitly emptied.
func applyConfigDefaults(cfg *Config) *Config {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	cfg.Service.LogLevel = strings.ToLower(cfg.Service.LogLevel)
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	cfg.Service.LogFormat = strings.ToLower(cfg.Service.LogFormat)
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}
	if cfg.State.LockPath == "" {
		cfg.State.LockPath = defaults.State.LockPath
	}
	if cfg.Timer.Name == "" {
		cfg.Timer.Name = defaults.Timer.Name
	}
	if cfg.Route.Name == "" {
		cfg.Route.Name = defaults.Route.Name
	}
	if cfg.Route.Observe == "" {
		cfg.Route.Observe = defaults.Route.Observe
	}
	if len(cfg.Route.Fields) == 0 {
		cfg.Route.Fields = DefaultFields()
	}

	return cfg
}

// interpolateEnv replaces ${VAR} with environment variable values.
// Undefined variables are left as-is (not expanded).
func interpolateEnv(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		if value, exists := os.LookupEnv(varName); exists {
			return value
		}
		// If not found, leave the placeholder (will fail validation if required)
		return match
	})
}

var structValidator = newStructValidator()

func newStructValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	// Report fields by their YAML names.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("yaml"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	_ = v.RegisterValidation("interval", func(fl validator.FieldLevel) bool {
		_, err := ParseInterval(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("delay", func(fl validator.FieldLevel) bool {
		_, err := parseDelay(fl.Field().String())
		return err == nil
	})
	return v
}

// validate performs struct-tag validation followed by cross-field checks.
func validate(cfg *Config) error {
	if err := structValidator.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return formatValidationErrors(verrs)
		}
		return err
	}

	period, err := cfg.Timer.Period()
	if err != nil {
		return fmt.Errorf("timer.every: %w", err)
	}
	timeout, err := cfg.Timer.TickTimeout()
	if err != nil {
		return fmt.Errorf("timer.timeout: %w", err)
	}
	if cfg.Timer.FixedRate && timeout >= period {
		return fmt.Errorf("timer.timeout (%s) must be shorter than timer.every (%s) for fixed-rate timers", timeout, period)
	}

	if envVarPattern.MatchString(cfg.Route.Observe) {
		return fmt.Errorf("route.observe: unresolved environment variable")
	}

	if cfg.API.Enabled {
		if cfg.API.Listen == "" {
			return fmt.Errorf("api.listen is required when api is enabled")
		}
		if cfg.API.Auth.APIKey == "" && len(cfg.API.Auth.Tokens) == 0 {
			return fmt.Errorf("api.auth: api_key or tokens required when api is enabled")
		}
		if envVarPattern.MatchString(cfg.API.Auth.APIKey) {
			matches := envVarPattern.FindStringSubmatch(cfg.API.Auth.APIKey)
			return fmt.Errorf("api.auth.api_key: environment variable ${%s} is not set", matches[1])
		}
		for i, tok := range cfg.API.Auth.Tokens {
			if envVarPattern.MatchString(tok.Token) {
				matches := envVarPattern.FindStringSubmatch(tok.Token)
				return fmt.Errorf("api.auth.tokens[%d].token: environment variable ${%s} is not set", i, matches[1])
			}
		}
	}

	return nil
}

func formatValidationErrors(verrs validator.ValidationErrors) error {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		// Namespace is "Config.timer.every"; drop the root type name.
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", field))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s must be one of: %s (got %q)", field, strings.ReplaceAll(fe.Param(), " ", ", "), fe.Value()))
		case "interval", "delay":
			msgs = append(msgs, fmt.Sprintf("%s: invalid interval %q", field, fe.Value()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed %q validation (got %v)", field, fe.Tag(), fe.Value()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

// Period returns the parsed timer period.
func (t TimerConfig) Period() (time.Duration, error) {
	return ParseInterval(t.Every)
}

// InitialDelay returns the delay before the first tick, defaulting to one period.
func (t TimerConfig) InitialDelay() (time.Duration, error) {
	if t.Delay == "" {
		return t.Period()
	}
	return parseDelay(t.Delay)
}

// TickTimeout returns the per-tick timeout, or 0 when unbounded.
func (t TimerConfig) TickTimeout() (time.Duration, error) {
	if t.Timeout == "" {
		return 0, nil
	}
	return ParseInterval(t.Timeout)
}

// ParseInterval converts a timer interval string to a duration.
// Accepts Go duration strings and the aliases secondly, minutely and hourly.
func ParseInterval(interval string) (time.Duration, error) {
	switch interval {
	case "secondly":
		return time.Second, nil
	case "minutely":
		return time.Minute, nil
	case "hourly":
		return time.Hour, nil
	}

	d, err := time.ParseDuration(interval)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q: %w", interval, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("interval must be positive: %q", interval)
	}
	return d, nil
}

// parseDelay is ParseInterval that also accepts zero.
func parseDelay(delay string) (time.Duration, error) {
	if d, err := time.ParseDuration(delay); err == nil {
		if d < 0 {
			return 0, fmt.Errorf("delay must not be negative: %q", delay)
		}
		return d, nil
	}
	return ParseInterval(delay)
}
