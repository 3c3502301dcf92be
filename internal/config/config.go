package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type DaemonConfig struct {
	SocketPath          string `yaml:"socket_path"`
	MaxRecordingSeconds int    `yaml:"max_recording_seconds"`
	SampleRate          int    `yaml:"sample_rate"`
}

type ModelConfig struct {
	Name     string `yaml:"name"`
	Language string `yaml:"language"`
}

type AudioConfig struct {
	Mode    string `yaml:"mode"` // mock, exec
	Command string `yaml:"command"`
}

type STTConfig struct {
	Mode    string `yaml:"mode"` // mock, exec
	Command string `yaml:"command"`
}

type HistoryConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Path          string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
	MaxEntries    int    `yaml:"max_entries"`
}

type BusConfig struct {
	Enabled        bool     `yaml:"enabled"`
	Embedded       bool     `yaml:"embedded"`
	Port           int      `yaml:"port"`
	Servers        []string `yaml:"servers"`
	ConnectTimeout int      `yaml:"connect_timeout_ms"`
}

type TelemetryConfig struct {
	LogLevel      string `yaml:"log_level"`
	TraceExporter string `yaml:"trace_exporter"` // none, stdout, otlp
	OTLPEndpoint  string `yaml:"otlp_endpoint"`
	OTLPInsecure  bool   `yaml:"otlp_insecure"`
}

type HealthConfig struct {
	Enabled bool   `yaml:"enabled"`
	Bind    string `yaml:"bind"`
	Port    int    `yaml:"port"`
}

type Config struct {
	DaemonName string          `yaml:"daemon_name"`
	Daemon     DaemonConfig    `yaml:"daemon"`
	Model      ModelConfig     `yaml:"model"`
	Audio      AudioConfig     `yaml:"audio"`
	STT        STTConfig       `yaml:"stt"`
	History    HistoryConfig   `yaml:"history"`
	Bus        BusConfig       `yaml:"bus"`
	Telemetry  TelemetryConfig `yaml:"telemetry"`
	Health     HealthConfig    `yaml:"health"`
}

func Default() Config {
	return Config{
		DaemonName: "voxd",
		Daemon: DaemonConfig{
			SocketPath:          defaultSocketPath(),
			MaxRecordingSeconds: 30,
			SampleRate:          16000,
		},
		Model: ModelConfig{
			Name:     "ggml-base.bin",
			Language: "en",
		},
		Audio: AudioConfig{
			Mode:    "exec",
			Command: "arecord -q -f S16_LE -r 16000 -c 1 -t raw -",
		},
		STT: STTConfig{
			Mode: "mock",
		},
		History: HistoryConfig{
			Enabled:       true,
			Path:          defaultHistoryPath(),
			RetentionDays: 30,
			MaxEntries:    1000,
		},
		Bus: BusConfig{
			Enabled:        false,
			Embedded:       true,
			Port:           4222,
			Servers:        []string{"nats://localhost:4222"},
			ConnectTimeout: 2000,
		},
		Telemetry: TelemetryConfig{
			LogLevel:      "info",
			TraceExporter: "none",
			OTLPEndpoint:  "",
			OTLPInsecure:  true,
		},
		Health: HealthConfig{
			Enabled: false,
			Bind:    "127.0.0.1",
			Port:    9190,
		},
	}
}

func defaultSocketPath() string {
	if dir := os.Getenv("XDG_RUNTIME_DIR"); dir != "" {
		return filepath.Join(dir, "voxd.sock")
	}
	return "/tmp/voxd.sock"
}

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./voxd-history.db"
	}
	return filepath.Join(home, ".local", "share", "voxd", "history.db")
}

// Overrides carries command-line values. Zero values mean "not given".
type Overrides struct {
	Model               string
	Language            string
	SocketPath          string
	MaxRecordingSeconds int
}

// LoadOptions selects the config file sources. Empty SystemPath/UserPath
// fall back to the standard locations; ExplicitPath, when set, must exist.
type LoadOptions struct {
	ExplicitPath string
	UserPath     string
	SystemPath   string
	Overrides    Overrides
}

// Load merges configuration sources field by field, lowest precedence
// first: defaults, environment, system file, user file, explicit file,
// command-line overrides. A field absent from a higher-precedence source
// keeps the value set below it.
func Load(opts LoadOptions) (Config, error) {
	cfg := Default()
	applyEnvOverrides(&cfg)

	systemPath := opts.SystemPath
	if systemPath == "" {
		systemPath = "/etc/voxd/config.yaml"
	}
	userPath := opts.UserPath
	if userPath == "" {
		if home, err := os.UserHomeDir(); err == nil {
			userPath = filepath.Join(home, ".config", "voxd", "config.yaml")
		}
	}

	for _, path := range []string{systemPath, userPath} {
		if path == "" {
			continue
		}
		if err := mergeFile(&cfg, path, false); err != nil {
			return cfg, err
		}
	}
	if opts.ExplicitPath != "" {
		if err := mergeFile(&cfg, opts.ExplicitPath, true); err != nil {
			return cfg, err
		}
	}

	applyOverrides(&cfg, opts.Overrides)

	if err := validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// mergeFile unmarshals into the existing struct; yaml leaves fields that
// are absent from the document untouched, which gives the field-wise merge.
func mergeFile(cfg *Config, path string, required bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !required {
			return nil
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func applyOverrides(cfg *Config, o Overrides) {
	if o.Model != "" {
		cfg.Model.Name = o.Model
	}
	if o.Language != "" {
		cfg.Model.Language = o.Language
	}
	if o.SocketPath != "" {
		cfg.Daemon.SocketPath = o.SocketPath
	}
	if o.MaxRecordingSeconds > 0 {
		cfg.Daemon.MaxRecordingSeconds = o.MaxRecordingSeconds
	}
}

func applyEnvOverrides(cfg *Config) {
	overrideString(&cfg.DaemonName, "VOXD_DAEMON_NAME")
	overrideString(&cfg.Daemon.SocketPath, "VOXD_SOCKET_PATH")
	overrideInt(&cfg.Daemon.MaxRecordingSeconds, "VOXD_MAX_RECORDING_SECONDS")
	overrideInt(&cfg.Daemon.SampleRate, "VOXD_SAMPLE_RATE")
	overrideString(&cfg.Model.Name, "VOXD_MODEL")
	overrideString(&cfg.Model.Language, "VOXD_LANGUAGE")
	overrideString(&cfg.Audio.Mode, "VOXD_AUDIO_MODE")
	overrideString(&cfg.Audio.Command, "VOXD_AUDIO_COMMAND")
	overrideString(&cfg.STT.Mode, "VOXD_STT_MODE")
	overrideString(&cfg.STT.Command, "VOXD_STT_COMMAND")
	overrideBool(&cfg.History.Enabled, "VOXD_HISTORY_ENABLED")
	overrideString(&cfg.History.Path, "VOXD_HISTORY_PATH")
	overrideInt(&cfg.History.RetentionDays, "VOXD_HISTORY_RETENTION_DAYS")
	overrideInt(&cfg.History.MaxEntries, "VOXD_HISTORY_MAX_ENTRIES")
	overrideBool(&cfg.Bus.Enabled, "VOXD_BUS_ENABLED")
	overrideBool(&cfg.Bus.Embedded, "VOXD_BUS_EMBEDDED")
	overrideInt(&cfg.Bus.Port, "VOXD_BUS_PORT")
	overrideStringSlice(&cfg.Bus.Servers, "VOXD_BUS_SERVERS")
	overrideInt(&cfg.Bus.ConnectTimeout, "VOXD_BUS_CONNECT_TIMEOUT_MS")
	overrideString(&cfg.Telemetry.LogLevel, "VOXD_TELEMETRY_LOG_LEVEL")
	overrideString(&cfg.Telemetry.TraceExporter, "VOXD_TELEMETRY_TRACE_EXPORTER")
	overrideString(&cfg.Telemetry.OTLPEndpoint, "VOXD_TELEMETRY_OTLP_ENDPOINT")
	overrideBool(&cfg.Telemetry.OTLPInsecure, "VOXD_TELEMETRY_OTLP_INSECURE")
	overrideBool(&cfg.Health.Enabled, "VOXD_HEALTH_ENABLED")
	overrideString(&cfg.Health.Bind, "VOXD_HEALTH_BIND")
	overrideInt(&cfg.Health.Port, "VOXD_HEALTH_PORT")
}

func overrideString(target *string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok && strings.TrimSpace(value) != "" {
		*target = value
	}
}

func overrideInt(target *int, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.Atoi(value); err == nil {
			*target = parsed
		}
	}
}

func overrideBool(target *bool, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		if parsed, err := strconv.ParseBool(value); err == nil {
			*target = parsed
		}
	}
}

func overrideStringSlice(target *[]string, envKey string) {
	if value, ok := os.LookupEnv(envKey); ok {
		parts := strings.Split(value, ",")
		var trimmed []string
		for _, p := range parts {
			if s := strings.TrimSpace(p); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			*target = trimmed
		}
	}
}

func validate(cfg Config) error {
	if cfg.DaemonName == "" {
		return errors.New("daemon_name must not be empty")
	}
	if cfg.Daemon.SocketPath == "" {
		return errors.New("daemon.socket_path must not be empty")
	}
	if cfg.Daemon.MaxRecordingSeconds <= 0 {
		return errors.New("daemon.max_recording_seconds must be positive")
	}
	if cfg.Daemon.SampleRate <= 0 {
		return errors.New("daemon.sample_rate must be positive")
	}
	if cfg.Model.Name == "" {
		return errors.New("model.name must not be empty")
	}
	if cfg.Model.Language == "" {
		return errors.New("model.language must not be empty")
	}
	switch cfg.Audio.Mode {
	case "mock", "exec":
	default:
		return errors.New("audio.mode must be one of mock|exec")
	}
	if cfg.Audio.Mode == "exec" && cfg.Audio.Command == "" {
		return errors.New("audio.command must be set when mode=exec")
	}
	switch cfg.STT.Mode {
	case "mock", "exec":
	default:
		return errors.New("stt.mode must be one of mock|exec")
	}
	if cfg.STT.Mode == "exec" && cfg.STT.Command == "" {
		return errors.New("stt.command must be set when mode=exec")
	}
	if cfg.History.Enabled {
		if cfg.History.Path == "" {
			return errors.New("history.path must not be empty when history is enabled")
		}
		if cfg.History.RetentionDays < 0 {
			return errors.New("history.retention_days must be >= 0")
		}
		if cfg.History.MaxEntries < 0 {
			return errors.New("history.max_entries must be >= 0")
		}
	}
	if cfg.Bus.Enabled {
		if cfg.Bus.Embedded {
			if cfg.Bus.Port <= 0 || cfg.Bus.Port > 65535 {
				return errors.New("bus.port must be between 1 and 65535 when embedded mode is enabled")
			}
		} else if len(cfg.Bus.Servers) == 0 {
			return errors.New("bus.servers must not be empty when embedded mode is disabled")
		}
	}
	switch cfg.Telemetry.TraceExporter {
	case "none", "stdout":
	case "otlp":
		if cfg.Telemetry.OTLPEndpoint == "" {
			return errors.New("telemetry.otlp_endpoint must be set when trace_exporter=otlp")
		}
	default:
		return errors.New("telemetry.trace_exporter must be one of none|stdout|otlp")
	}
	if cfg.Health.Enabled {
		if cfg.Health.Port <= 0 || cfg.Health.Port > 65535 {
			return errors.New("health.port must be between 1 and 65535")
		}
	}
	return nil
}
