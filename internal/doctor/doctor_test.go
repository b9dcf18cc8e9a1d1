package doctor

import (
	"strings"
	"testing"

	"github.com/mattjoyce/tickroute/internal/config"
)

func validConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte("timer:\n  every: 100ms\n  timeout: 50ms\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return cfg
}

func TestValidate_ValidConfig(t *testing.T) {
	t.Parallel()
	r := New(validConfig(t)).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got errors: %v", r.Errors)
	}
	if len(r.Warnings) != 0 {
		t.Fatalf("expected no warnings, got: %v", r.Warnings)
	}
	if got := FormatHuman(r); got != "Configuration valid.\n" {
		t.Fatalf("FormatHuman = %q", got)
	}
}

func TestValidate_ShortPeriod(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Timer.Every = "1ms"
	cfg.Timer.Timeout = ""
	r := New(cfg).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got: %v", r.Errors)
	}
	assertHasWarning(t, r, "timer", "very short")
	assertHasWarning(t, r, "timer", "no tick timeout")
}

func TestValidate_InvalidPeriod(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Timer.Every = "soon"
	r := New(cfg).Validate()
	if r.Valid {
		t.Fatal("expected invalid")
	}
	assertHasError(t, r, "timer", "soon")
}

func TestValidate_ObservedFieldMissing(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Route.Observe = "fieldThree"
	r := New(cfg).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got: %v", r.Errors)
	}
	assertHasWarning(t, r, "route", "fieldThree")
}

func TestValidate_UnknownPlaceholder(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.Route.Fields["fieldTwo"] = "two-{seq}-{host}"
	r := New(cfg).Validate()
	assertHasWarning(t, r, "route", "{host}")
}

func TestValidate_APIWithoutAuth(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.API.Enabled = true
	cfg.API.Listen = "127.0.0.1:8080"
	r := New(cfg).Validate()
	if r.Valid {
		t.Fatal("expected invalid")
	}
	assertHasError(t, r, "api", "no authentication")
}

func TestValidate_APIPublicListen(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.API.Enabled = true
	cfg.API.Listen = ":8080"
	cfg.API.Auth.Tokens = []config.APIToken{{Token: "t", Scopes: []string{"status:ro"}}}
	r := New(cfg).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got: %v", r.Errors)
	}
	assertHasWarning(t, r, "api", "reachable beyond this host")
}

func TestValidate_TokenScopes(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.API.Enabled = true
	cfg.API.Listen = "localhost:8080"
	cfg.API.Auth.Tokens = []config.APIToken{
		{Token: "ok", Scopes: []string{"status:ro", "events:rw"}},
		{Token: "bad", Scopes: []string{"jobs:ro"}},
		{Token: "none"},
	}
	r := New(cfg).Validate()
	if r.Valid {
		t.Fatal("expected invalid")
	}
	assertHasError(t, r, "token_scopes", "jobs:ro")
	assertHasWarning(t, r, "token_scopes", "no scopes")
	if len(r.Errors) != 1 {
		t.Fatalf("expected exactly one error, got: %v", r.Errors)
	}
}

func TestValidate_EmptyTokenValue(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.API.Auth.Tokens = []config.APIToken{{Token: "  ", Scopes: []string{"*"}}}
	r := New(cfg).Validate()
	assertHasWarning(t, r, "env_vars", "empty")
}

func TestValidate_LegacyAPIKey(t *testing.T) {
	t.Parallel()
	cfg := validConfig(t)
	cfg.API.Enabled = true
	cfg.API.Listen = "127.0.0.1:8080"
	cfg.API.Auth.APIKey = "legacy"
	r := New(cfg).Validate()
	if !r.Valid {
		t.Fatalf("expected valid, got: %v", r.Errors)
	}
	assertHasWarning(t, r, "deprecated", "legacy api_key")

	out := FormatHuman(r)
	if !strings.Contains(out, "WARN  [deprecated] api.auth.api_key") {
		t.Fatalf("FormatHuman missing warning line: %s", out)
	}
}

func TestFormatJSON(t *testing.T) {
	t.Parallel()
	r := &Result{Valid: false, Errors: []Issue{{Category: "api", Field: "api.listen", Message: "required"}}}
	out, err := FormatJSON(r)
	if err != nil {
		t.Fatalf("FormatJSON: %v", err)
	}
	if !strings.Contains(out, `"valid": false`) || !strings.Contains(out, `"field": "api.listen"`) {
		t.Fatalf("unexpected JSON: %s", out)
	}
	if strings.Contains(out, "warnings") {
		t.Fatalf("empty warnings should be omitted: %s", out)
	}

	human := FormatHuman(r)
	if !strings.Contains(human, "Configuration invalid (1 error(s), 0 warning(s))") {
		t.Fatalf("unexpected report: %s", human)
	}
}

func assertHasError(t *testing.T, r *Result, category, substring string) {
	t.Helper()
	for _, e := range r.Errors {
		if e.Category == category && strings.Contains(e.Message, substring) {
			return
		}
	}
	t.Fatalf("expected error with category=%q containing %q, got: %v", category, substring, r.Errors)
}

func assertHasWarning(t *testing.T, r *Result, category, substring string) {
	t.Helper()
	for _, w := range r.Warnings {
		if w.Category == category && strings.Contains(w.Message, substring) {
			return
		}
	}
	t.Fatalf("expected warning with category=%q containing %q, got: %v", category, substring, r.Warnings)
}
