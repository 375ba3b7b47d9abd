// Package ratelimit implements the Rate-Limit Parser (C3): classifies an
// HTTP response as a rate-limit/quota/server-error condition and extracts
// the delay before retry is worth attempting again.
package ratelimit

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Reason is the classification produced for a rate-limited response.
type Reason string

const (
	ReasonQuotaExhausted    Reason = "quota_exhausted"
	ReasonRateLimitExceeded Reason = "rate_limit_exceeded"
	ReasonServerError       Reason = "server_error"
	ReasonUnknown           Reason = "unknown"
)

// Verdict is the parser's output: a classified rate-limit condition and
// how long to wait before retrying.
type Verdict struct {
	Reason      Reason
	RetryAfter  time.Duration
	IsRateLimit bool
}

// reasonDefaults are used when no extractor yields an explicit delay
// (spec.md §4.3).
var reasonDefaults = map[Reason]time.Duration{
	ReasonQuotaExhausted:    3_600_000 * time.Millisecond,
	ReasonRateLimitExceeded: 30_000 * time.Millisecond,
	ReasonServerError:       20_000 * time.Millisecond,
	ReasonUnknown:           60_000 * time.Millisecond,
}

const minRetryAfter = 2000 * time.Millisecond

// Parse implements spec.md §4.3: input (status, Retry-After header value,
// body text), output a Verdict or IsRateLimit=false ("not a rate-limit
// response").
func Parse(status int, retryAfterHeader string, body []byte) Verdict {
	reason, ok := classify(status, body)
	if !ok {
		return Verdict{}
	}

	delay, found := extractDelay(retryAfterHeader, body)
	if !found {
		delay = reasonDefaults[reason]
	}
	if delay < minRetryAfter {
		delay = minRetryAfter
	}

	return Verdict{Reason: reason, RetryAfter: delay, IsRateLimit: true}
}

func classify(status int, body []byte) (Reason, bool) {
	switch status {
	case 429:
		return classify429(body), true
	case 500, 503, 529:
		return ReasonServerError, true
	default:
		return "", false
	}
}

func classify429(body []byte) Reason {
	if len(body) > 0 {
		if detail := gjson.GetBytes(body, "error.details.0.reason"); detail.Exists() {
			switch detail.String() {
			case "QUOTA_EXHAUSTED":
				return ReasonQuotaExhausted
			case "RATE_LIMIT_EXCEEDED":
				return ReasonRateLimitExceeded
			}
		}
	}

	lower := strings.ToLower(string(body))
	switch {
	case strings.Contains(lower, "exhausted"), strings.Contains(lower, "quota"):
		return ReasonQuotaExhausted
	case strings.Contains(lower, "rate limit"), strings.Contains(lower, "too many requests"):
		return ReasonRateLimitExceeded
	default:
		return ReasonUnknown
	}
}

// extractDelay tries each extractor in spec order, first hit wins.
func extractDelay(retryAfterHeader string, body []byte) (time.Duration, bool) {
	if retryAfterHeader != "" {
		if secs, err := strconv.Atoi(strings.TrimSpace(retryAfterHeader)); err == nil {
			return time.Duration(secs) * time.Second, true
		}
	}

	if len(body) == 0 {
		return 0, false
	}

	if v := gjson.GetBytes(body, "error.details.#.metadata.quotaResetDelay"); v.IsArray() {
		for _, item := range v.Array() {
			if item.String() == "" {
				continue
			}
			if d, ok := parseDurationString(item.String()); ok {
				return d, true
			}
		}
	}

	if details := gjson.GetBytes(body, "error.details"); details.IsArray() {
		for _, d := range details.Array() {
			if strings.Contains(d.Get("@type").String(), "RetryInfo") {
				if retryDelay := d.Get("retryDelay"); retryDelay.Exists() {
					if dur, ok := parseDurationString(retryDelay.String()); ok {
						return dur, true
					}
				}
			}
		}
	}

	if v := gjson.GetBytes(body, "error.retry_after"); v.Exists() {
		return time.Duration(v.Float() * float64(time.Second)), true
	}

	return extractFromFreeText(string(body))
}

var freeTextPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)try again in (\d+)m\s*(\d+(?:\.\d+)?)s`),
	regexp.MustCompile(`(?i)try again in (\d+(?:\.\d+)?)s`),
	regexp.MustCompile(`(?i)quota will reset in (\d+) second`),
	regexp.MustCompile(`(?i)retry after (\d+) second`),
	regexp.MustCompile(`(?i)\(wait (\d+)s\)`),
}

func extractFromFreeText(text string) (time.Duration, bool) {
	// "try again in Nm Ms" has two capture groups; all others have one.
	if m := freeTextPatterns[0].FindStringSubmatch(text); m != nil {
		mins, _ := strconv.Atoi(m[1])
		secs, _ := strconv.ParseFloat(m[2], 64)
		total := time.Duration(mins)*time.Minute + roundUpSeconds(secs)
		return total, true
	}
	for _, re := range freeTextPatterns[1:] {
		if m := re.FindStringSubmatch(text); m != nil {
			secs, err := strconv.ParseFloat(m[1], 64)
			if err != nil {
				continue
			}
			return roundUpSeconds(secs), true
		}
	}
	return 0, false
}

func roundUpSeconds(secs float64) time.Duration {
	return time.Duration(math.Ceil(secs)) * time.Second
}

// durationStringRe matches a duration of shape (Hh)?(Mm)?(S(.S)?s)?(Nms)?
// (spec.md §4.3), any component optional.
var durationStringRe = regexp.MustCompile(`^(?:(\d+)h)?(?:(\d+)m)?(?:(\d+(?:\.\d+)?)s)?(?:(\d+)ms)?$`)

// parseDurationString parses spec.md §4.3's duration string shape,
// rounding fractional seconds up before summation.
func parseDurationString(s string) (time.Duration, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	m := durationStringRe.FindStringSubmatch(s)
	if m == nil || (m[1] == "" && m[2] == "" && m[3] == "" && m[4] == "") {
		return 0, false
	}

	var total time.Duration
	if m[1] != "" {
		h, _ := strconv.Atoi(m[1])
		total += time.Duration(h) * time.Hour
	}
	if m[2] != "" {
		mins, _ := strconv.Atoi(m[2])
		total += time.Duration(mins) * time.Minute
	}
	if m[3] != "" {
		secs, _ := strconv.ParseFloat(m[3], 64)
		total += roundUpSeconds(secs)
	}
	if m[4] != "" {
		ms, _ := strconv.Atoi(m[4])
		total += time.Duration(ms) * time.Millisecond
	}
	return total, true
}
