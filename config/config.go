package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/cyp0633/libschedule/schedule"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SCHEDULE_"

// Config is the top-level configuration of the schedule host.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen" json:"listen"`
	// BaseURL prefixes links written into feeds.
	BaseURL string `yaml:"base_url" json:"base_url"`
	// LogLevel is a zerolog level name.
	LogLevel string `yaml:"log_level" json:"log_level"`
	// CORSOrigins lists the origins allowed to call the API. Empty allows all.
	CORSOrigins []string `yaml:"cors_origins" json:"cors_origins"`

	// Timezone is the IANA zone rules are expanded in. Empty uses the zone
	// of each event's start.
	Timezone string `yaml:"timezone" json:"timezone"`

	// FirstDayOfWeek accepts 0, 1, "sunday" or "monday".
	FirstDayOfWeek string `yaml:"first_day_of_week" json:"first_day_of_week"`

	ShowCancelledOccurrences bool `yaml:"show_cancelled_occurrences" json:"show_cancelled_occurrences"`

	// PrevNextLimit bounds period navigation, in seconds.
	PrevNextLimit int64 `yaml:"prev_next_limit" json:"prev_next_limit"`

	OccurrenceCancelRedirect string `yaml:"occurrence_cancel_redirect" json:"occurrence_cancel_redirect"`
	EventNamePlaceholder     string `yaml:"event_name_placeholder" json:"event_name_placeholder"`
	UseFullCalendar          bool   `yaml:"use_fullcalendar" json:"use_fullcalendar"`
	FeedListLength           int    `yaml:"feed_list_length" json:"feed_list_length"`

	// DatabaseURL selects the postgres repository; empty keeps everything
	// in memory.
	DatabaseURL string `yaml:"database_url" json:"database_url"`

	// RedisAddr enables the occurrence cache when set.
	RedisAddr     string        `yaml:"redis_addr" json:"redis_addr"`
	RedisUsername string        `yaml:"redis_username" json:"redis_username"`
	RedisPassword string        `yaml:"redis_password" json:"redis_password"`
	CacheTTL      time.Duration `yaml:"cache_ttl" json:"cache_ttl"`

	// WarmCron is the cron spec of the cache warming job. Empty disables it.
	WarmCron string `yaml:"warm_cron" json:"warm_cron"`
}

// DefaultConfig returns an in-memory default configuration.
func DefaultConfig() *Config {
	return &Config{
		Listen:               "127.0.0.1:8080",
		LogLevel:             "info",
		CORSOrigins:          []string{},
		FirstDayOfWeek:       "sunday",
		PrevNextLimit:        int64(schedule.DefaultPrevNextLimit / time.Second),
		EventNamePlaceholder: "Event Name",
		FeedListLength:       10,
		CacheTTL:             10 * time.Minute,
		WarmCron:             "*/15 * * * *",
	}
}

// Normalize fills in missing or invalid values with defaults so partially
// filled configs still behave.
func (c *Config) Normalize() {
	d := DefaultConfig()
	if c.Listen == "" {
		c.Listen = d.Listen
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.CORSOrigins == nil {
		c.CORSOrigins = []string{}
	}

	switch strings.ToLower(strings.TrimSpace(c.FirstDayOfWeek)) {
	case "1", "monday":
		c.FirstDayOfWeek = "monday"
	default:
		// Unknown values fall back to sunday.
		c.FirstDayOfWeek = "sunday"
	}

	if c.PrevNextLimit <= 0 {
		c.PrevNextLimit = d.PrevNextLimit
	}
	if c.EventNamePlaceholder == "" {
		c.EventNamePlaceholder = d.EventNamePlaceholder
	}
	if c.FeedListLength <= 0 {
		c.FeedListLength = d.FeedListLength
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = d.CacheTTL
	}
}

// Load reads the YAML file at path, then applies the .env file next to it
// and SCHEDULE_* environment overrides, then normalizes.
//
// A missing file is not an error: the defaults are written to path so the
// next run finds them.
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("config path is empty")
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := Save(path, cfg); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, err
	default:
		cfg = &Config{}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	if err := loadDotEnv(filepath.Join(filepath.Dir(path), ".env")); err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	cfg.Normalize()
	return cfg, nil
}

// loadDotEnv exports the variables of file without overriding anything
// already set in the environment.
func loadDotEnv(file string) error {
	if _, err := os.Stat(file); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(file); err != nil {
		return fmt.Errorf("failed to load %s: %w", file, err)
	}
	return nil
}

// ApplyEnv overrides fields from SCHEDULE_* environment variables.
func (c *Config) ApplyEnv() error {
	strs := map[string]*string{
		"LISTEN":                     &c.Listen,
		"BASE_URL":                   &c.BaseURL,
		"LOG_LEVEL":                  &c.LogLevel,
		"TIMEZONE":                   &c.Timezone,
		"FIRST_DAY_OF_WEEK":          &c.FirstDayOfWeek,
		"OCCURRENCE_CANCEL_REDIRECT": &c.OccurrenceCancelRedirect,
		"EVENT_NAME_PLACEHOLDER":     &c.EventNamePlaceholder,
		"DATABASE_URL":               &c.DatabaseURL,
		"REDIS_ADDR":                 &c.RedisAddr,
		"REDIS_USERNAME":             &c.RedisUsername,
		"REDIS_PASSWORD":             &c.RedisPassword,
		"WARM_CRON":                  &c.WarmCron,
	}
	for key, field := range strs {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*field = v
		}
	}

	bools := map[string]*bool{
		"SHOW_CANCELLED_OCCURRENCES": &c.ShowCancelledOccurrences,
		"USE_FULLCALENDAR":           &c.UseFullCalendar,
	}
	for key, field := range bools {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
			}
			*field = b
		}
	}

	if v, ok := os.LookupEnv(EnvPrefix + "PREV_NEXT_LIMIT"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%sPREV_NEXT_LIMIT: %w", EnvPrefix, err)
		}
		c.PrevNextLimit = n
	}
	if v, ok := os.LookupEnv(EnvPrefix + "FEED_LIST_LENGTH"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sFEED_LIST_LENGTH: %w", EnvPrefix, err)
		}
		c.FeedListLength = n
	}
	if v, ok := os.LookupEnv(EnvPrefix + "CACHE_TTL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sCACHE_TTL: %w", EnvPrefix, err)
		}
		c.CacheTTL = d
	}
	if v, ok := os.LookupEnv(EnvPrefix + "CORS_ORIGINS"); ok {
		c.CORSOrigins = splitList(v)
	}
	return nil
}

func splitList(v string) []string {
	out := []string{}
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Options converts the configuration into engine options.
func (c *Config) Options() (schedule.Options, error) {
	opts := schedule.DefaultOptions()
	if c.FirstDayOfWeek == "monday" {
		opts.FirstDayOfWeek = 1
	}
	opts.ShowCancelledOccurrences = c.ShowCancelledOccurrences
	opts.PrevNextLimit = time.Duration(c.PrevNextLimit) * time.Second
	opts.OccurrenceCancelRedirect = c.OccurrenceCancelRedirect
	opts.EventNamePlaceholder = c.EventNamePlaceholder
	opts.UseFullCalendar = c.UseFullCalendar
	opts.FeedListLength = c.FeedListLength

	if c.Timezone != "" {
		loc, err := time.LoadLocation(c.Timezone)
		if err != nil {
			return opts, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
		}
		opts.Location = loc
	}
	return opts, nil
}

// Save writes cfg to path atomically with 0600 permissions.
func Save(path string, cfg *Config) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	if cfg == nil {
		return errors.New("config is nil")
	}
	cfg.Normalize()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".schedule-config-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
