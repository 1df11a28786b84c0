// Package config loads the candlebot configuration from TOML or YAML and
// turns it into the constructor configs of the other packages.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"candlebot/internal/logger"
	"candlebot/internal/telemetry"
)

type Config struct {
	Mission    MissionConfig           `toml:"mission" yaml:"mission"`
	Actuator   ActuatorConfig          `toml:"actuator" yaml:"actuator"`
	Perception PerceptionConfig        `toml:"perception" yaml:"perception"`
	Override   OverrideConfig          `toml:"override" yaml:"override"`
	Simulate   SimulateConfig          `toml:"simulate" yaml:"simulate"`
	Journal    JournalConfig           `toml:"journal" yaml:"journal"`
	Store      StoreConfig             `toml:"store" yaml:"store"`
	Metrics    MetricsConfig           `toml:"metrics" yaml:"metrics"`
	Tracing    telemetry.TracingConfig `toml:"tracing" yaml:"tracing"`
	Logging    logger.Config           `toml:"logging" yaml:"logging"`
}

type MissionConfig struct {
	PollInterval     Duration      `toml:"poll_interval" yaml:"poll_interval" validate:"gt=0"`
	IdlePollInterval Duration      `toml:"idle_poll_interval" yaml:"idle_poll_interval" validate:"gt=0"`
	SafeStopDelay    Duration      `toml:"safe_stop_delay" yaml:"safe_stop_delay" validate:"gte=0"`
	// MaxAttempts of 0 retries an unconfirmed phase without limit.
	MaxAttempts      int           `toml:"max_attempts" yaml:"max_attempts" validate:"min=0,max=100"`
	FallbackTimeout  Duration      `toml:"fallback_timeout" yaml:"fallback_timeout" validate:"gt=0"`
	Backoff          BackoffConfig `toml:"backoff" yaml:"backoff"`
}

type BackoffConfig struct {
	Initial    Duration `toml:"initial" yaml:"initial" validate:"gte=0"`
	Max        Duration `toml:"max" yaml:"max" validate:"gte=0"`
	Multiplier float64  `toml:"multiplier" yaml:"multiplier" validate:"gte=1"`
}

type ActuatorConfig struct {
	Mode      string   `toml:"mode" yaml:"mode" validate:"oneof=shell simulate"`
	Place     string   `toml:"place" yaml:"place"`
	Activate  string   `toml:"activate" yaml:"activate"`
	Retract   string   `toml:"retract" yaml:"retract"`
	SafeStop  string   `toml:"safe_stop" yaml:"safe_stop"`
	Workdir   string   `toml:"workdir" yaml:"workdir"`
	WaitDelay Duration `toml:"wait_delay" yaml:"wait_delay" validate:"gte=0"`
}

type PerceptionConfig struct {
	Backend     string       `toml:"backend" yaml:"backend" validate:"oneof=gemini ollama simulate"`
	Model       string       `toml:"model" yaml:"model"`
	Temperature float32      `toml:"temperature" yaml:"temperature" validate:"gte=0,lte=2"`
	PromptFile  string       `toml:"prompt_file" yaml:"prompt_file"`
	Timeout     Duration     `toml:"timeout" yaml:"timeout" validate:"gte=0"`
	OllamaHost  string       `toml:"ollama_host" yaml:"ollama_host"`
	Camera      CameraConfig `toml:"camera" yaml:"camera"`

	// APIKey only ever comes from the environment.
	APIKey string `toml:"-" yaml:"-"`
}

type CameraConfig struct {
	// Command captures one frame. It may write the image to stdout or to
	// Output.
	Command string `toml:"command" yaml:"command"`
	Output  string `toml:"output" yaml:"output"`
	// File is read as-is on every sample when Command is empty.
	File string `toml:"file" yaml:"file"`
}

type OverrideConfig struct {
	Mode        string `toml:"mode" yaml:"mode" validate:"oneof=none keyboard file"`
	Keyword     string `toml:"keyword" yaml:"keyword"`
	TriggerFile string `toml:"trigger_file" yaml:"trigger_file"`
}

type SimulateConfig struct {
	TimeScale            float64  `toml:"time_scale" yaml:"time_scale" validate:"gt=0"`
	ActivateSuccessAfter Duration `toml:"activate_success_after" yaml:"activate_success_after" validate:"gte=0"`
	FailPhase            string   `toml:"fail_phase" yaml:"fail_phase" validate:"omitempty,oneof=place activate retract"`
}

type JournalConfig struct {
	Path    string `toml:"path" yaml:"path"`
	Samples bool   `toml:"samples" yaml:"samples"`
}

type StoreConfig struct {
	Path string `toml:"path" yaml:"path"`
}

type MetricsConfig struct {
	Listen string `toml:"listen" yaml:"listen" validate:"omitempty,hostname_port"`
}

// Default mirrors the timings of the reference robot: a 3 s perception poll
// and a 1 s safe stop.
func Default() Config {
	return Config{
		Mission: MissionConfig{
			PollInterval:     Duration(3 * time.Second),
			IdlePollInterval: Duration(3 * time.Second),
			SafeStopDelay:    Duration(time.Second),
			MaxAttempts:      3,
			FallbackTimeout:  Duration(30 * time.Second),
			Backoff: BackoffConfig{
				Initial:    Duration(time.Second),
				Max:        Duration(10 * time.Second),
				Multiplier: 2,
			},
		},
		Actuator: ActuatorConfig{
			Mode:      "shell",
			WaitDelay: Duration(2 * time.Second),
		},
		Perception: PerceptionConfig{
			Backend:     "gemini",
			Temperature: 0.5,
			Timeout:     Duration(30 * time.Second),
		},
		Override: OverrideConfig{Mode: "keyboard"},
		Simulate: SimulateConfig{
			TimeScale:            1,
			ActivateSuccessAfter: Duration(12 * time.Second),
		},
		Journal:  JournalConfig{Path: "candlebot-journal.ndjson"},
		Store:    StoreConfig{Path: "candlebot.db"},
		Tracing:  telemetry.TracingConfig{Exporter: "stdout"},
		Logging:  logger.Config{Level: "info", Format: "json", Output: logger.DefaultOutput},
	}
}

// Load reads path over the defaults, applies environment overrides, then
// the given overrides (command-line flags), and validates the result.
func Load(path string, overrides ...func(*Config)) (Config, error) {
	cfg, err := Read(path)
	if err != nil {
		return Config{}, err
	}
	for _, o := range overrides {
		o(&cfg)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Read is Load without overrides or validation, for commands that only
// need a few sections.
func Read(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	cfg.ApplyEnv()
	return cfg, nil
}

func decodeFile(path string, out *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), out); err != nil {
			return fmt.Errorf("config parse failed (%s): %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, out); err != nil {
			return fmt.Errorf("config parse failed (%s): %w", path, err)
		}
	default:
		return fmt.Errorf("config parse failed (%s): unsupported extension %q", path, filepath.Ext(path))
	}
	return nil
}

// ApplyEnv pulls secrets and host overrides from the environment.
func (c *Config) ApplyEnv() {
	if v := strings.TrimSpace(os.Getenv("GEMINI_API_KEY")); v != "" {
		c.Perception.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("OLLAMA_HOST")); v != "" {
		c.Perception.OllamaHost = v
	}
}

var validate = validator.New()

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	var errs []error
	if c.Actuator.Mode == "shell" {
		cmds := []struct{ name, line string }{
			{"place", c.Actuator.Place},
			{"activate", c.Actuator.Activate},
			{"retract", c.Actuator.Retract},
		}
		for _, cmd := range cmds {
			if strings.TrimSpace(cmd.line) == "" {
				errs = append(errs, fmt.Errorf("actuator.%s command is required in shell mode", cmd.name))
			}
		}
	}
	if (c.Actuator.Mode == "simulate") != (c.Perception.Backend == "simulate") {
		errs = append(errs, errors.New("actuator.mode and perception.backend must both be simulate or neither"))
	}
	if c.Perception.Backend != "simulate" && c.Perception.Camera.Command == "" && c.Perception.Camera.File == "" {
		errs = append(errs, errors.New("perception.camera needs a command or a file"))
	}
	if c.Override.Mode == "file" && strings.TrimSpace(c.Override.TriggerFile) == "" {
		errs = append(errs, errors.New("override.trigger_file is required in file mode"))
	}
	if c.Mission.Backoff.Max > 0 && c.Mission.Backoff.Max < c.Mission.Backoff.Initial {
		errs = append(errs, errors.New("mission.backoff.max must not be below mission.backoff.initial"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// UseSimulator switches actuation and perception to the built-in simulator.
func (c *Config) UseSimulator() {
	c.Actuator.Mode = "simulate"
	c.Perception.Backend = "simulate"
}
