package app

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

const defaultSource = "events.json"

type fileConfig struct {
	Source     string                `toml:"source"`
	TZ         string                `toml:"tz"`
	Output     string                `toml:"output"`
	Fields     string                `toml:"fields"`
	Profile    string                `toml:"profile"`
	TimeFormat string                `toml:"time_format"`
	Layout     layoutFileConfig      `toml:"layout"`
	Profiles   map[string]fileConfig `toml:"profiles"`
}

// layoutFileConfig uses pointers so an explicit zero (start_hour = 0) can
// override an earlier layer.
type layoutFileConfig struct {
	StartHour *int     `toml:"start_hour"`
	EndHour   *int     `toml:"end_hour"`
	RowHeight *float64 `toml:"row_height"`
	MinHeight *float64 `toml:"min_height"`
	WeekStart string   `toml:"week_start"`
	MultiDay  string   `toml:"multi_day"`
}

func resolveGlobalOptions(cmd *cobra.Command, defaults *globalOptions) (*globalOptions, error) {
	resolved := *defaults

	profile := firstNonEmpty(env("GRIDCAL_PROFILE"), defaults.Profile)
	if flagValueChanged(cmd, "profile") {
		profile = defaults.Profile
	}
	if profile == "" {
		profile = "default"
	}
	resolved.Profile = profile

	userPath := defaultUserConfigPath()
	projectPath := ".gridcal.toml"
	configPath := firstNonEmpty(env("GRIDCAL_CONFIG"), userPath)
	if flagValueChanged(cmd, "config") {
		configPath = defaults.Config
	}

	if cfg, ok := readConfigFile(userPath); ok {
		applyFileConfig(&resolved, cfg, profile)
	}
	if cfg, ok := readConfigFile(projectPath); ok {
		applyFileConfig(&resolved, cfg, profile)
	}
	if configPath != "" && configPath != userPath && configPath != projectPath {
		if cfg, ok := readConfigFile(configPath); ok {
			applyFileConfig(&resolved, cfg, profile)
		}
	}

	applyEnv(&resolved)
	applyFlags(cmd, &resolved, defaults)

	if resolved.Config == "" {
		resolved.Config = configPath
	}
	return &resolved, nil
}

func applyFileConfig(dst *globalOptions, cfg fileConfig, profile string) {
	if p, ok := cfg.Profiles[profile]; ok {
		cfg = mergeFileConfig(cfg, p)
	}
	if cfg.Source != "" {
		dst.Source = cfg.Source
	}
	if cfg.TZ != "" {
		dst.TZ = cfg.TZ
	}
	if cfg.Fields != "" {
		dst.Fields = cfg.Fields
	}
	if cfg.TimeFormat != "" {
		dst.TimeFormat = cfg.TimeFormat
	}
	if cfg.Output != "" {
		setOutputMode(dst, cfg.Output)
	}
	l := cfg.Layout
	if l.StartHour != nil {
		dst.StartHour = *l.StartHour
	}
	if l.EndHour != nil {
		dst.EndHour = *l.EndHour
	}
	if l.RowHeight != nil {
		dst.RowHeight = *l.RowHeight
	}
	if l.MinHeight != nil {
		dst.MinHeight = *l.MinHeight
	}
	if l.WeekStart != "" {
		dst.WeekStart = l.WeekStart
	}
	if l.MultiDay != "" {
		dst.MultiDay = l.MultiDay
	}
}

func mergeFileConfig(base, overlay fileConfig) fileConfig {
	if overlay.Source != "" {
		base.Source = overlay.Source
	}
	if overlay.TZ != "" {
		base.TZ = overlay.TZ
	}
	if overlay.Output != "" {
		base.Output = overlay.Output
	}
	if overlay.Fields != "" {
		base.Fields = overlay.Fields
	}
	if overlay.Profile != "" {
		base.Profile = overlay.Profile
	}
	if overlay.TimeFormat != "" {
		base.TimeFormat = overlay.TimeFormat
	}
	o := overlay.Layout
	if o.StartHour != nil {
		base.Layout.StartHour = o.StartHour
	}
	if o.EndHour != nil {
		base.Layout.EndHour = o.EndHour
	}
	if o.RowHeight != nil {
		base.Layout.RowHeight = o.RowHeight
	}
	if o.MinHeight != nil {
		base.Layout.MinHeight = o.MinHeight
	}
	if o.WeekStart != "" {
		base.Layout.WeekStart = o.WeekStart
	}
	if o.MultiDay != "" {
		base.Layout.MultiDay = o.MultiDay
	}
	return base
}

func setOutputMode(dst *globalOptions, mode string) {
	switch strings.ToLower(mode) {
	case "json":
		dst.JSON, dst.JSONL, dst.Plain = true, false, false
	case "jsonl":
		dst.JSON, dst.JSONL, dst.Plain = false, true, false
	case "plain":
		dst.JSON, dst.JSONL, dst.Plain = false, false, true
	}
}

func applyEnv(dst *globalOptions) {
	if v := env("GRIDCAL_SOURCE"); v != "" {
		dst.Source = v
	}
	if v := env("GRIDCAL_TIMEZONE"); v != "" {
		dst.TZ = v
	}
	if v := env("GRIDCAL_FIELDS"); v != "" {
		dst.Fields = v
	}
	if v := env("GRIDCAL_OUTPUT"); v != "" {
		setOutputMode(dst, v)
	}
	if v := env("GRIDCAL_TIME_FORMAT"); v != "" {
		dst.TimeFormat = v
	}
	if v := env("GRIDCAL_WEEK_START"); v != "" {
		dst.WeekStart = v
	}
	if n, err := strconv.Atoi(env("GRIDCAL_START_HOUR")); err == nil {
		dst.StartHour = n
	}
	if n, err := strconv.Atoi(env("GRIDCAL_END_HOUR")); err == nil {
		dst.EndHour = n
	}
	if f, err := strconv.ParseFloat(env("GRIDCAL_ROW_HEIGHT"), 64); err == nil {
		dst.RowHeight = f
	}
}

func applyFlags(cmd *cobra.Command, dst, fromFlags *globalOptions) {
	copyIfChanged(cmd, "json", func() { dst.JSON = fromFlags.JSON })
	copyIfChanged(cmd, "jsonl", func() { dst.JSONL = fromFlags.JSONL })
	copyIfChanged(cmd, "plain", func() { dst.Plain = fromFlags.Plain })
	copyIfChanged(cmd, "fields", func() { dst.Fields = fromFlags.Fields })
	copyIfChanged(cmd, "quiet", func() { dst.Quiet = fromFlags.Quiet })
	copyIfChanged(cmd, "verbose", func() { dst.Verbose = fromFlags.Verbose })
	copyIfChanged(cmd, "no-color", func() { dst.NoColor = fromFlags.NoColor })
	copyIfChanged(cmd, "strict", func() { dst.Strict = fromFlags.Strict })
	copyIfChanged(cmd, "profile", func() { dst.Profile = fromFlags.Profile })
	copyIfChanged(cmd, "config", func() { dst.Config = fromFlags.Config })
	copyIfChanged(cmd, "source", func() { dst.Source = fromFlags.Source })
	copyIfChanged(cmd, "tz", func() { dst.TZ = fromFlags.TZ })
	copyIfChanged(cmd, "timeout", func() { dst.Timeout = fromFlags.Timeout })
	copyIfChanged(cmd, "schema-version", func() { dst.SchemaVersion = fromFlags.SchemaVersion })
	copyIfChanged(cmd, "start-hour", func() { dst.StartHour = fromFlags.StartHour })
	copyIfChanged(cmd, "end-hour", func() { dst.EndHour = fromFlags.EndHour })
	copyIfChanged(cmd, "row-height", func() { dst.RowHeight = fromFlags.RowHeight })
	copyIfChanged(cmd, "min-height", func() { dst.MinHeight = fromFlags.MinHeight })
	copyIfChanged(cmd, "multi-day", func() { dst.MultiDay = fromFlags.MultiDay })

	// If exactly one output mode flag is explicitly set, it overrides env/config output mode.
	modeSet := 0
	if flagValueChanged(cmd, "json") && fromFlags.JSON {
		modeSet++
	}
	if flagValueChanged(cmd, "jsonl") && fromFlags.JSONL {
		modeSet++
	}
	if flagValueChanged(cmd, "plain") && fromFlags.Plain {
		modeSet++
	}
	if modeSet == 1 {
		if flagValueChanged(cmd, "json") && fromFlags.JSON {
			setOutputMode(dst, "json")
		}
		if flagValueChanged(cmd, "jsonl") && fromFlags.JSONL {
			setOutputMode(dst, "jsonl")
		}
		if flagValueChanged(cmd, "plain") && fromFlags.Plain {
			setOutputMode(dst, "plain")
		}
	}
}

func copyIfChanged(cmd *cobra.Command, name string, fn func()) {
	if flagValueChanged(cmd, name) {
		fn()
	}
}

func flagValueChanged(cmd *cobra.Command, name string) bool {
	if f := cmd.Flags().Lookup(name); f != nil && f.Changed {
		return true
	}
	if f := cmd.InheritedFlags().Lookup(name); f != nil && f.Changed {
		return true
	}
	return false
}

func readConfigFile(path string) (fileConfig, bool) {
	if strings.TrimSpace(path) == "" {
		return fileConfig{}, false
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, false
	}
	var cfg fileConfig
	if err := toml.Unmarshal(raw, &cfg); err != nil {
		return fileConfig{}, false
	}
	return cfg, true
}

func defaultUserConfigPath() string {
	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, "gridcal", "config.toml")
	}
	home := strings.TrimSpace(os.Getenv("HOME"))
	if home == "" {
		return ""
	}
	return filepath.Join(home, ".config", "gridcal", "config.toml")
}

func env(k string) string { return strings.TrimSpace(os.Getenv(k)) }

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}
