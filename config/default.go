// Package config provides centralized management for application settings, defaults, and the Viper-based configuration engine.
package config

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"text/template"

	"github.com/reelfeed/reelfeed/color"
	"github.com/reelfeed/reelfeed/constant"
	"github.com/reelfeed/reelfeed/key"
	"github.com/reelfeed/reelfeed/style"
	"github.com/samber/lo"
	"github.com/spf13/viper"
)

// Field represents a configuration field definition.
type Field struct {
	Key         string
	Value       any
	Description string
}

// Pretty returns a colored string representation of the field for display.
func (f *Field) Pretty() string {
	var b strings.Builder
	lo.Must0(prettyTemplate.Execute(&b, f))
	return b.String()
}

// Env returns the environment variable name for this field.
func (f *Field) Env() string {
	env := strings.ToUpper(EnvKeyReplacer.Replace(f.Key))
	prefix := strings.ToUpper(constant.Reelfeed + "_")
	if strings.HasPrefix(env, prefix) {
		return env
	}
	return prefix + env
}

// MarshalJSON customizes JSON output to include current and default values.
func (f *Field) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Key         string `json:"key"`
		Value       any    `json:"value"`
		Default     any    `json:"default"`
		Description string `json:"description"`
		Type        string `json:"type"`
	}{
		Key:         f.Key,
		Value:       viper.Get(f.Key),
		Default:     f.Value,
		Description: f.Description,
		Type:        f.typeName(),
	})
}

// typeName returns the string representation of the field's underlying value type.
func (f *Field) typeName() string {
	switch f.Value.(type) {
	case string:
		return "string"
	case int:
		return "int"
	case bool:
		return "bool"
	case []string:
		return "[]string"
	case []int:
		return "[]int"
	default:
		return "unknown"
	}
}

// Default holds the map of all configuration fields.
var Default = make(map[string]Field)

// EnvExposed holds keys that are bound to environment variables.
var EnvExposed []string

func init() {
	// register validates and adds a new configuration field to the global registry.
	register := func(k string, v any, desc string) {
		if _, exists := Default[k]; exists {
			panic("Duplicate config key: " + k)
		}
		f := Field{Key: k, Value: v, Description: desc}
		Default[k] = f
		EnvExposed = append(EnvExposed, k)
	}

	register(key.CacheMemoryMaxBytes, 50*1024*1024, "Budget of the in-memory asset cache tier in bytes.\nLeast-recently-used entries are evicted when exceeded")
	register(key.CacheMemoryMaxEntries, 100, "Maximum entry count of the in-memory asset cache tier")
	register(key.CacheDiskEnable, true, "Persist fetched assets to the disk cache tier.\nThe disk tier survives restarts and can be removed at any time")
	register(key.CacheDiskTTLDays, 7, "Days before an untouched disk cache entry is garbage collected")
	register(key.NetworkProbeURL, "https://www.gstatic.com/generate_204", "URL probed periodically to classify network quality")
	register(key.NetworkProbeInterval, 15, "Seconds between network quality probes")
	register(key.NetworkConstrainedRTTMs, 750, "Round-trip threshold in milliseconds above which the path is classified as constrained")
	register(key.NetworkTLSFingerprint, false, "Use a browser TLS fingerprint for media fetches.\nHelps with CDNs that reject default Go clients")
	register(key.FetchTimeout, 10, "Per-request fetch timeout in seconds.\nTimed out fetches count as transient failures")
	register(key.FetchLowConcurrency, 2, "Maximum concurrent low-priority (speculative) fetches")
	register(key.PlaybackRetryDelay, 1, "Seconds to wait before the single automatic retry of a transient load failure")
	register(key.PlaybackTickInterval, 100, "Milliseconds between playback position ticks")
	register(key.PlaybackUpgradeDwell, 5, "Seconds of continuous playback required before a quality upgrade is attempted")
	register(key.PlaybackUpgradeEnabled, true, "Transparently re-fetch at a higher quality tier when network conditions improve")
	register(key.PrefetchPageSize, 10, "Number of items fetched per prefetch window")
	register(key.PrefetchThreshold, 2, "Distance from a loaded range boundary that triggers the next window prefetch")
	register(key.PrefetchMediaAhead, 3, "Number of media resources speculatively fetched per landed window")
	register(key.PrefetchRatePerSec, 4, "Upper bound of prefetch window fetches issued per second")
	register(key.HistorySaveProgress, true, "Persist watch progress to the localized history file")
	register(key.LogsWrite, false, "Write logs")
	register(key.LogsLevel, "info", "Available options are: (from less to most verbose)\npanic, fatal, error, warn, info, debug, trace")
	register(key.LogsJson, false, "Use json format for logs")
	register(key.CliColored, true, "Enable colored CLI output")
	register(key.CliVersionCheck, true, "Enable automatic version check")
	register(key.IconsVariant, "plain", "Icons variant.\nAvailable options are: emoji, plain, squares")
	register(key.MetricsEnable, false, "Register prometheus instrumentation for cache, fetch and playback internals")
}

var prettyTemplate = lo.Must(template.New("pretty").Funcs(template.FuncMap{
	"faint":    style.Faint,
	"bold":     style.Bold,
	"purple":   style.Fg(color.Purple),
	"blue":     style.Fg(color.Blue),
	"cyan":     style.Fg(color.Cyan),
	"value":    func(k string) any { return viper.Get(k) },
	"typename": func(v any) string { return reflect.TypeOf(v).String() },
	"hl": func(v any) string {
		switch value := v.(type) {
		case bool:
			b := strconv.FormatBool(value)
			if value {
				return style.Fg(color.Green)(b)
			}
			return style.Fg(color.Red)(b)
		case string:
			return style.Fg(color.Yellow)(value)
		default:
			return fmt.Sprint(value)
		}
	},
}).Parse(`{{ faint .Description }}
{{ blue "Key:" }}     {{ purple .Key }}
{{ blue "Env:" }}     {{ .Env }}
{{ blue "Value:" }}   {{ hl (value .Key) }}
{{ blue "Default:" }} {{ hl (.Value) }}
{{ blue "Type:" }}    {{ typename .Value }}`))
