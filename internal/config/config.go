// Package config loads settings from an optional YAML file and REPAIRDESK_*
// environment variables. Environment values win over the file.
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
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

const envPrefix = "REPAIRDESK_"

// DefaultFile is read when REPAIRDESK_CONFIG is unset and the file exists.
const DefaultFile = "repairdesk.yaml"

type SMTP struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

type Config struct {
	Addr     string `yaml:"addr"`
	DataDir  string `yaml:"data_dir"`
	ShopName string `yaml:"shop_name"`

	MasterLogSheet string `yaml:"master_log_sheet"`
	ScheduleSheet  string `yaml:"schedule_sheet"`
	CheckinSheet   string `yaml:"checkin_sheet"`
	IntakeSheet    string `yaml:"intake_sheet"`

	// CalendarName picks the entry of Calendars mirrored into the schedule.
	CalendarName string `yaml:"calendar_name"`
	// Calendars maps a calendar name to an iCalendar URL or file path.
	Calendars          map[string]string `yaml:"calendars"`
	LookaheadDays      int               `yaml:"lookahead_days"`
	SyncInterval       time.Duration     `yaml:"sync_interval"`
	WatchCalendarFiles bool              `yaml:"watch_calendar_files"`

	TimeZone          string `yaml:"time_zone"`
	DefaultTechnician string `yaml:"default_technician"`
	RequireJobID      bool   `yaml:"require_job_id"`

	SMTP        SMTP   `yaml:"smtp"`
	MailDropDir string `yaml:"mail_drop_dir"`

	Dashboard    bool   `yaml:"dashboard"`
	LogFile      string `yaml:"log_file"`
	LogMaxSizeMB int    `yaml:"log_max_size_mb"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Addr:              ":8080",
		DataDir:           filepath.Join("..", "..", "local-data"),
		ShopName:          "Pacific NW Computers",
		MasterLogSheet:    "Master Job Log",
		ScheduleSheet:     "Onsite Schedule",
		CheckinSheet:      "Check-In Form Responses",
		IntakeSheet:       "Intake Form Responses",
		CalendarName:      "Pacific NW Computers",
		Calendars:         map[string]string{},
		LookaheadDays:     14,
		TimeZone:          "America/Los_Angeles",
		DefaultTechnician: "Technician Name",
		MailDropDir:       "outbox",
		Dashboard:         true,
		LogMaxSizeMB:      50,
	}
}

// Load reads REPAIRDESK_CONFIG (or DefaultFile when present) and applies
// environment overrides.
func Load() (Config, error) {
	cfg := Defaults()

	path := os.Getenv(envPrefix + "CONFIG")
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	if err := loadFile(&cfg, path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			err = nil
		}
		if err != nil {
			return Config{}, err
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return Config{}, err
	}
	if cfg.Calendars == nil {
		cfg.Calendars = map[string]string{}
	}
	if _, err := cfg.Location(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Location resolves TimeZone.
func (c Config) Location() (*time.Location, error) {
	if c.TimeZone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("config: time zone %q: %w", c.TimeZone, err)
	}
	return loc, nil
}

// CalendarFiles returns the configured calendar sources that are local files.
func (c Config) CalendarFiles() []string {
	var out []string
	for _, src := range c.Calendars {
		if strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://") {
			continue
		}
		out = append(out, strings.TrimPrefix(src, "file://"))
	}
	return out
}

func loadFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	cfg.Addr = getenv("ADDR", cfg.Addr)
	cfg.DataDir = getenv("DATA_DIR", cfg.DataDir)
	cfg.ShopName = getenv("SHOP_NAME", cfg.ShopName)
	cfg.MasterLogSheet = getenv("MASTER_LOG_SHEET", cfg.MasterLogSheet)
	cfg.ScheduleSheet = getenv("SCHEDULE_SHEET", cfg.ScheduleSheet)
	cfg.CheckinSheet = getenv("CHECKIN_SHEET", cfg.CheckinSheet)
	cfg.IntakeSheet = getenv("INTAKE_SHEET", cfg.IntakeSheet)
	cfg.CalendarName = getenv("CALENDAR_NAME", cfg.CalendarName)
	cfg.TimeZone = getenv("TIME_ZONE", cfg.TimeZone)
	cfg.DefaultTechnician = getenv("TECHNICIAN", cfg.DefaultTechnician)
	cfg.SMTP.Host = getenv("SMTP_HOST", cfg.SMTP.Host)
	cfg.SMTP.Username = getenv("SMTP_USERNAME", cfg.SMTP.Username)
	cfg.SMTP.Password = getenv("SMTP_PASSWORD", cfg.SMTP.Password)
	cfg.SMTP.From = getenv("MAIL_FROM", cfg.SMTP.From)
	cfg.MailDropDir = getenv("MAIL_DROP_DIR", cfg.MailDropDir)
	cfg.LogFile = getenv("LOG_FILE", cfg.LogFile)

	for _, pair := range getenvCSV("CALENDARS", nil) {
		name, src, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return fmt.Errorf("config: %sCALENDARS entry %q is not name=source", envPrefix, pair)
		}
		if cfg.Calendars == nil {
			cfg.Calendars = map[string]string{}
		}
		cfg.Calendars[strings.TrimSpace(name)] = strings.TrimSpace(src)
	}

	var err error
	if cfg.LookaheadDays, err = getenvInt("LOOKAHEAD_DAYS", cfg.LookaheadDays); err != nil {
		return err
	}
	if cfg.SMTP.Port, err = getenvInt("SMTP_PORT", cfg.SMTP.Port); err != nil {
		return err
	}
	if cfg.LogMaxSizeMB, err = getenvInt("LOG_MAX_SIZE_MB", cfg.LogMaxSizeMB); err != nil {
		return err
	}
	if cfg.WatchCalendarFiles, err = getenvBool("WATCH_CALENDAR_FILES", cfg.WatchCalendarFiles); err != nil {
		return err
	}
	if cfg.RequireJobID, err = getenvBool("REQUIRE_JOB_ID", cfg.RequireJobID); err != nil {
		return err
	}
	if cfg.Dashboard, err = getenvBool("DASHBOARD", cfg.Dashboard); err != nil {
		return err
	}
	if raw := getenv("SYNC_INTERVAL", ""); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("config: %sSYNC_INTERVAL: %w", envPrefix, err)
		}
		cfg.SyncInterval = d
	}
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(envPrefix + key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) (int, error) {
	raw := getenv(key, "")
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("config: %s%s: %w", envPrefix, key, err)
	}
	return n, nil
}

func getenvBool(key string, fallback bool) (bool, error) {
	raw := getenv(key, "")
	if raw == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("config: %s%s: %w", envPrefix, key, err)
	}
	return b, nil
}

func getenvCSV(key string, fallback []string) []string {
	raw := getenv(key, "")
	if raw == "" {
		return fallback
	}
	values := splitCSV(raw)
	if len(values) == 0 {
		return fallback
	}
	return values
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
