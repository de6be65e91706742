package ffmpeg

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strconv"
	"time"

	"github.com/jmylchreest/vidplay/internal/player"
)

// option is one demuxer dictionary entry.
type option struct {
	key   string
	value string
}

// managedOptions are derived from player settings and cannot be overridden
// through input_options.
var managedOptions = map[string]string{
	"rw_timeout":  "set from player.read_timeout",
	"stimeout":    "set from player.read_timeout",
	"buffer_size": "set from player.input_buffer",
	"user_agent":  "set from the application version",
}

// blockedOptions could widen what a source URL is allowed to reach.
var blockedOptions = map[string]string{
	"protocol_whitelist": "security setting should not be overridden",
	"protocol_blacklist": "security setting should not be overridden",
	"safe":               "security setting should not be overridden",
	"headers":            "could inject arbitrary HTTP headers",
	"cookies":            "could leak credentials into logs",
	"dump_separator":     "debugging option",
}

// warnOptions are accepted but interfere with pacing or stream selection.
var warnOptions = map[string]string{
	"fflags":                      "timestamp flags change frame pacing",
	"use_wallclock_as_timestamps": "replaces stream timestamps; seeking becomes unreliable",
	"probesize":                   "small values can hide the audio stream",
	"analyzeduration":             "small values can hide the audio stream",
	"reorder_queue_size":          "a zero queue can reorder frames",
}

var optionName = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// OptionsValidationResult is the outcome of ValidateInputOptions.
type OptionsValidationResult struct {
	Valid    bool     `json:"valid"`
	Warnings []string `json:"warnings,omitempty"`
	Errors   []string `json:"errors,omitempty"`
}

// ValidateInputOptions checks user supplied demuxer options.
func ValidateInputOptions(opts map[string]string) OptionsValidationResult {
	result := OptionsValidationResult{Valid: true}
	for _, key := range slices.Sorted(maps.Keys(opts)) {
		value := opts[key]
		switch {
		case !optionName.MatchString(key):
			result.Errors = append(result.Errors, fmt.Sprintf("%q is not a valid option name", key))
		case managedOptions[key] != "":
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", key, managedOptions[key]))
		case blockedOptions[key] != "":
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %s", key, blockedOptions[key]))
		case value == "":
			result.Errors = append(result.Errors, fmt.Sprintf("%s: empty value", key))
		case warnOptions[key] != "":
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: %s", key, warnOptions[key]))
		}
	}
	result.Valid = len(result.Errors) == 0
	return result
}

// inputOptions builds the dictionary passed to OpenInput. Managed entries
// come first; extra entries follow in key order and never replace them.
func inputOptions(o player.OpenOptions) []option {
	var out []option
	if o.ReadTimeout > 0 {
		us := micros(o.ReadTimeout)
		out = append(out, option{"rw_timeout", us}, option{"stimeout", us})
	}
	if o.InputBuffer > 0 {
		out = append(out, option{"buffer_size", strconv.Itoa(o.InputBuffer)})
	}
	if o.UserAgent != "" {
		out = append(out, option{"user_agent", o.UserAgent})
	}
	for _, key := range slices.Sorted(maps.Keys(o.Extra)) {
		if managedOptions[key] != "" || blockedOptions[key] != "" {
			continue
		}
		out = append(out, option{key, o.Extra[key]})
	}
	return out
}

func micros(d time.Duration) string {
	return strconv.FormatInt(d.Microseconds(), 10)
}
