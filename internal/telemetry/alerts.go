package telemetry

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/rescuedogs/aggregator/internal/config"
	"github.com/rescuedogs/aggregator/internal/metrics"
)

// sensitiveKeyPattern matches structured-log field names that must never be
// logged in full (spec §4.8): password, token, secret, key, auth, dsn,
// api_key, matched case-insensitively and as a substring so
// "db_password"/"apiKey"/"auth_token" are all caught.
var sensitiveKeyPattern = regexp.MustCompile(`(?i)(password|token|secret|key|auth|dsn)`)

const scrubbedValue = "***"

// Scrub walks fields (as produced by a log event's structured key/value
// pairs) and replaces the value of any key matching sensitiveKeyPattern,
// at any nesting depth, with a fixed placeholder. It never fails: a field
// whose value isn't a map or slice is passed through once its key is
// checked.
func Scrub(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = scrubValue(k, v)
	}
	return out
}

func scrubValue(key string, value any) any {
	if sensitiveKeyPattern.MatchString(key) {
		return scrubbedValue
	}
	switch v := value.(type) {
	case map[string]any:
		return Scrub(v)
	case []any:
		scrubbed := make([]any, len(v))
		for i, item := range v {
			if m, ok := item.(map[string]any); ok {
				scrubbed[i] = Scrub(m)
			} else {
				scrubbed[i] = item
			}
		}
		return scrubbed
	default:
		return value
	}
}

// ScrubString redacts any substring of s that looks like a key=value or
// key: value pair whose key matches sensitiveKeyPattern — used for
// scrubbing freeform error strings and DSNs that end up in log messages
// rather than structured fields.
func ScrubString(s string) string {
	kv := regexp.MustCompile(`(?i)(password|token|secret|key|auth|dsn)([=:]\s*)([^\s&,;]+)`)
	return kv.ReplaceAllString(s, "$1$2"+scrubbedValue)
}

// AlertSink emits the three canned operational alerts (spec §4.8), gated to
// production via config.Config.IsProduction — matching the teacher's
// tracing.go pattern of an environment-gated no-op rather than a separate
// build tag.
type AlertSink struct {
	logger     zerolog.Logger
	production bool
}

// NewAlertSink returns an AlertSink. In non-production environments every
// alert method logs at debug level and skips the Prometheus counter, so
// local/test runs don't pollute metrics or paging channels.
func NewAlertSink(cfg config.Config, logger zerolog.Logger) *AlertSink {
	return &AlertSink{logger: logger, production: cfg.IsProduction()}
}

// ZeroItemsFound fires when a scrape's collection phase returned zero raw
// listings for an organization that previously had animals on record (spec
// §4.3 zero-items guard, §4.8 canned alert #1).
func (a *AlertSink) ZeroItemsFound(organization string) {
	event := a.event("zero_items_found", organization)
	event.Msg("scrape collected zero items")
	if a.production {
		metrics.PartialFailureAlertsTotal.WithLabelValues(organization, "critical").Inc()
	}
}

// PartialFailure fires when the fraction of previously-seen animals not
// re-observed this scrape crosses the configured guard threshold (spec
// §4.3). Severity scales with how far past the threshold the missing
// fraction went: at or above 1.5× the threshold is "critical", otherwise
// "warning".
func (a *AlertSink) PartialFailure(organization string, missingFraction, threshold float64) {
	severity := "warning"
	if threshold > 0 && missingFraction >= threshold*1.5 {
		severity = "critical"
	}
	event := a.event("partial_failure", organization)
	event.Float64("missing_fraction", missingFraction).
		Float64("threshold", threshold).
		Str("severity", severity).
		Msg("partial failure guard tripped")
	if a.production {
		metrics.PartialFailureAlertsTotal.WithLabelValues(organization, severity).Inc()
	}
}

// EnrichmentFailureRateExceeded fires when the Standardization Engine's
// confidence score for a batch falls below its configured floor across more
// than the allowed fraction of animals (spec §4.8 canned alert #3).
func (a *AlertSink) EnrichmentFailureRateExceeded(organization string, failureRate float64) {
	event := a.event("enrichment_failure_rate_exceeded", organization)
	event.Float64("failure_rate", failureRate).Msg("standardization confidence below floor for too many animals")
}

func (a *AlertSink) event(alertName, organization string) *zerolog.Event {
	level := zerolog.WarnLevel
	if !a.production {
		level = zerolog.DebugLevel
	}
	return a.logger.WithLevel(level).
		Str("alert", alertName).
		Str("organization", organization)
}

// FormatDSNForLog returns a scrubbed, log-safe representation of a
// connection string: the userinfo is replaced with a placeholder, and the
// scheme and everything after the "@" (host, port, path) are kept.
func FormatDSNForLog(dsn string) string {
	if i := strings.Index(dsn, "://"); i >= 0 {
		rest := dsn[i+3:]
		if at := strings.LastIndex(rest, "@"); at >= 0 {
			return fmt.Sprintf("%s://%s%s", dsn[:i], scrubbedValue, rest[at:])
		}
	}
	return ScrubString(dsn)
}
