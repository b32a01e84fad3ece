package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"unicode/utf8"

	"dataloader/internal/datasource/file"
)

// IssueSeverity represents the severity of a configuration issue.
type IssueSeverity string

const (
	// SeverityError blocks the run.
	SeverityError IssueSeverity = "error"
	// SeverityWarning is reported but does not block.
	SeverityWarning IssueSeverity = "warning"
)

// Issue describes a single validation finding. Path names the setting
// (its flag name).
type Issue struct {
	Severity IssueSeverity
	Path     string
	Message  string
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s at %s: %s", i.Severity, i.Path, i.Message)
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	return slices.ContainsFunc(issues, func(i Issue) bool { return i.Severity == SeverityError })
}

// Validate checks c before any loading starts. drivers lists the registered
// storage kinds; a nil slice skips the driver check. It does not mutate c.
func Validate(c Config, drivers []string) []Issue {
	var issues []Issue
	add := func(sev IssueSeverity, path, format string, args ...any) {
		issues = append(issues, Issue{Severity: sev, Path: path, Message: fmt.Sprintf(format, args...)})
	}

	if strings.TrimSpace(c.Connection) == "" {
		add(SeverityError, "connection", "argument 'connection' is missing but is required")
	}

	switch {
	case strings.TrimSpace(c.BaseDir) == "":
		add(SeverityError, "baseDir", "argument 'baseDir' is missing but is required")
	default:
		fi, err := os.Stat(c.BaseDir)
		if err != nil || !fi.IsDir() {
			add(SeverityError, "baseDir", "argument 'baseDir' (%s) does not reference an actual directory", c.BaseDir)
		}
	}

	if drivers != nil && !slices.Contains(drivers, c.Driver) {
		add(SeverityError, "driver", "unknown driver %q; registered: %s", c.Driver, strings.Join(drivers, ", "))
	}

	if utf8.RuneCountInString(c.Comma) != 1 || c.Comma == "\n" || c.Comma == "\r" || c.Comma == "\"" {
		add(SeverityError, "comma", "delimiter %q must be a single character other than quote or newline", c.Comma)
	}

	if strings.TrimSpace(c.UpdateableDir) == "" {
		add(SeverityWarning, "updateable-dir", "empty name; using %q", file.DefaultUpdateableDir)
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		add(SeverityWarning, "log-level", "unknown level %q; using info", c.LogLevel)
	}

	switch strings.ToLower(c.LogFormat) {
	case "", "console", "json":
	default:
		add(SeverityError, "log-format", "unknown log format %q; want console or json", c.LogFormat)
	}

	switch c.MetricsBackend {
	case "", "none", "datadog":
	case "pushgateway":
		if strings.TrimSpace(c.PushgatewayURL) == "" {
			add(SeverityWarning, "pushgateway-url", "pushgateway backend without a URL; metrics will not be pushed")
		}
	default:
		add(SeverityWarning, "metrics", "unknown metrics backend %q; metrics disabled", c.MetricsBackend)
	}

	return issues
}
