package config

// Config represents the complete tickroute configuration.
type Config struct {
	Service ServiceConfig `yaml:"service" json:"service"`
	State   StateConfig   `yaml:"state" json:"state"`
	Timer   TimerConfig   `yaml:"timer" json:"timer"`
	Route   RouteConfig   `yaml:"route" json:"route"`
	API     APIConfig     `yaml:"api,omitempty" json:"api,omitempty"`

	// SourcePath and Hash describe the file the config was loaded from.
	SourcePath string `yaml:"-" json:"-"`
	Hash       string `yaml:"-" json:"-"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name" json:"name" validate:"required"`
	LogLevel  string `yaml:"log_level" json:"log_level" validate:"oneof=debug info warn error"`
	LogFormat string `yaml:"log_format" json:"log_format" validate:"oneof=json text"`
}

// StateConfig defines process-local state settings.
type StateConfig struct {
	LockPath string `yaml:"lock_path" json:"lock_path" validate:"required"`
}

// TimerConfig defines when the route fires.
type TimerConfig struct {
	Name  string `yaml:"name" json:"name" validate:"required"`
	Every string `yaml:"every" json:"every" validate:"required,interval"` // e.g., "100ms", "5s", "minutely"
	// Delay before the first tick. Empty means one period.
	Delay       string `yaml:"delay,omitempty" json:"delay,omitempty" validate:"omitempty,delay"`
	FixedRate   bool   `yaml:"fixed_rate" json:"fixed_rate"`
	RepeatCount int    `yaml:"repeat_count,omitempty" json:"repeat_count,omitempty" validate:"gte=0"`
	// Timeout bounds a single tick's handler context. Empty means unbounded.
	Timeout string `yaml:"timeout,omitempty" json:"timeout,omitempty" validate:"omitempty,interval"`
}

// RouteConfig defines the payload built on each tick and the field logged from it.
type RouteConfig struct {
	Name string `yaml:"name" json:"name" validate:"required"`
	// Fields are payload field templates; {seq}, {id} and {at} are expanded per tick.
	Fields  map[string]string `yaml:"fields,omitempty" json:"fields,omitempty"`
	Observe string            `yaml:"observe" json:"observe" validate:"required"`
}

// APIConfig defines HTTP API server settings.
type APIConfig struct {
	Enabled bool          `yaml:"enabled" json:"enabled"`
	Listen  string        `yaml:"listen" json:"listen" validate:"omitempty,hostname_port"`
	Auth    APIAuthConfig `yaml:"auth" json:"auth"`
}

// APIAuthConfig defines API authentication settings.
type APIAuthConfig struct {
	// APIKey is the legacy single bearer token (admin/full access).
	// Prefer Tokens for scoped access.
	APIKey string     `yaml:"api_key" json:"api_key"`
	Tokens []APIToken `yaml:"tokens,omitempty" json:"tokens,omitempty" validate:"dive"`
}

// APIToken defines a bearer token and its scopes.
type APIToken struct {
	Token  string   `yaml:"token" json:"token" validate:"required"`
	Scopes []string `yaml:"scopes" json:"scopes"`
}

// Defaults returns a Config matching the stock timer route: a 100ms fixed-rate
// timer whose payload's fieldTwo is logged on every tick.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:      "tickroute",
			LogLevel:  "info",
			LogFormat: "json",
		},
		State: StateConfig{
			LockPath: "./data/tickroute.lock",
		},
		Timer: TimerConfig{
			Name:      "timer",
			Every:     "100ms",
			FixedRate: true,
		},
		Route: RouteConfig{
			Name:    "timer-route",
			Observe: DefaultObserveField,
		},
		API: APIConfig{
			Enabled: false,
			Listen:  "127.0.0.1:8080",
		},
	}
}

// DefaultObserveField is the payload field logged when none is configured.
const DefaultObserveField = "fieldTwo"

// DefaultFields returns the payload templates used when route.fields is empty.
func DefaultFields() map[string]string {
	return map[string]string{
		"fieldOne": "one-{seq}",
		"fieldTwo": "two-{seq}",
	}
}
