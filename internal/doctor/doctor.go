// Package doctor reports problems in a tickroute configuration that load-time
// validation lets through.
package doctor

import (
	"encoding/json"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"github.com/mattjoyce/tickroute/internal/auth"
	"github.com/mattjoyce/tickroute/internal/config"
)

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// minSanePeriod is the shortest period not flagged as suspicious.
const minSanePeriod = 10 * time.Millisecond

var placeholderRe = regexp.MustCompile(`\{([a-z]+)\}`)

// Doctor checks a loaded configuration.
type Doctor struct {
	cfg *config.Config
}

func New(cfg *config.Config) *Doctor {
	return &Doctor{cfg: cfg}
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateTimer(r)
	d.validateRoute(r)
	d.validateAPIConfig(r)
	d.validateTokenScopes(r)
	d.warnMissingEnvVars(r)
	d.warnDeprecatedSyntax(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) validateTimer(r *Result) {
	t := d.cfg.Timer
	period, err := t.Period()
	if err != nil {
		d.addError(r, "timer", "timer.every", fmt.Sprintf("invalid interval %q: %v", t.Every, err))
		return
	}
	if period < minSanePeriod {
		d.addWarning(r, "timer", "timer.every",
			fmt.Sprintf("period %s is very short (< %s); ticks are likely to queue", period, minSanePeriod))
	}

	timeout, err := t.TickTimeout()
	if err != nil {
		d.addError(r, "timer", "timer.timeout", fmt.Sprintf("invalid timeout %q: %v", t.Timeout, err))
		return
	}
	if t.FixedRate && timeout == 0 {
		d.addWarning(r, "timer", "timer.timeout",
			"no tick timeout on a fixed-rate timer; a stuck tick holds back every later tick")
	}
	if delay, err := t.InitialDelay(); err == nil && delay == 0 {
		d.addWarning(r, "timer", "timer.delay", "zero delay fires the first tick as soon as the timer is armed")
	}
}

func (d *Doctor) validateRoute(r *Result) {
	rc := d.cfg.Route
	if _, ok := rc.Fields[rc.Observe]; !ok {
		d.addWarning(r, "route", "route.observe",
			fmt.Sprintf("observed field %q is not in route.fields; every observation will log %q", rc.Observe, "<absent>"))
	}

	for name, tmpl := range rc.Fields {
		for _, m := range placeholderRe.FindAllStringSubmatch(tmpl, -1) {
			switch m[1] {
			case "seq", "id", "at":
			default:
				d.addWarning(r, "route", "route.fields."+name,
					fmt.Sprintf("unknown placeholder {%s} is left as-is", m[1]))
			}
		}
	}
}

func (d *Doctor) validateAPIConfig(r *Result) {
	if !d.cfg.API.Enabled {
		return
	}
	if d.cfg.API.Listen == "" {
		d.addError(r, "api", "api.listen", "api.listen is required when API is enabled")
		return
	}
	if d.cfg.API.Auth.APIKey == "" && len(d.cfg.API.Auth.Tokens) == 0 {
		d.addError(r, "api", "api.auth", "API enabled but no authentication configured")
	}

	host, _, err := net.SplitHostPort(d.cfg.API.Listen)
	if err != nil {
		d.addError(r, "api", "api.listen", fmt.Sprintf("invalid listen address %q: %v", d.cfg.API.Listen, err))
		return
	}
	if ip := net.ParseIP(host); host == "" || (ip != nil && !ip.IsLoopback()) {
		d.addWarning(r, "api", "api.listen",
			fmt.Sprintf("API listens on %q, reachable beyond this host", d.cfg.API.Listen))
	}
}

func (d *Doctor) validateTokenScopes(r *Result) {
	for i, token := range d.cfg.API.Auth.Tokens {
		if len(token.Scopes) == 0 {
			d.addWarning(r, "token_scopes", fmt.Sprintf("api.auth.tokens[%d].scopes", i),
				"token has no scopes and can only reach /healthz")
		}
		for j, scope := range token.Scopes {
			if !auth.KnownScope(scope) {
				d.addError(r, "token_scopes", fmt.Sprintf("api.auth.tokens[%d].scopes[%d]", i, j),
					fmt.Sprintf("unknown scope %q (expected *, status:ro, status:rw, events:ro or events:rw)", scope))
			}
		}
	}
}

// warnMissingEnvVars warns about token values that look like unresolved ${VAR} references.
func (d *Doctor) warnMissingEnvVars(r *Result) {
	for i, token := range d.cfg.API.Auth.Tokens {
		if strings.TrimSpace(token.Token) == "" {
			d.addWarning(r, "env_vars", fmt.Sprintf("api.auth.tokens[%d].token", i),
				"token value is empty (possibly unresolved environment variable)")
		}
	}
}

// warnDeprecatedSyntax warns about legacy config patterns.
func (d *Doctor) warnDeprecatedSyntax(r *Result) {
	if d.cfg.API.Auth.APIKey != "" && len(d.cfg.API.Auth.Tokens) > 0 {
		d.addWarning(r, "deprecated", "api.auth",
			"both api_key and tokens configured; prefer tokens array only")
	}
	if d.cfg.API.Auth.APIKey != "" && len(d.cfg.API.Auth.Tokens) == 0 {
		d.addWarning(r, "deprecated", "api.auth.api_key",
			"legacy api_key grants full access; migrate to tokens array with scopes")
	}
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid {
		fmt.Fprintf(&b, "Configuration valid (%d warning(s))\n", len(r.Warnings))
	} else {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		if e.Field != "" {
			fmt.Fprintf(&b, "  ERROR [%s] %s: %s\n", e.Category, e.Field, e.Message)
		} else {
			fmt.Fprintf(&b, "  ERROR [%s] %s\n", e.Category, e.Message)
		}
	}
	for _, w := range r.Warnings {
		if w.Field != "" {
			fmt.Fprintf(&b, "  WARN  [%s] %s: %s\n", w.Category, w.Field, w.Message)
		} else {
			fmt.Fprintf(&b, "  WARN  [%s] %s\n", w.Category, w.Message)
		}
	}

	return b.String()
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
