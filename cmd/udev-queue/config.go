package main

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ydb-platform/udev-queue/internal/settle"
	"github.com/ydb-platform/udev-queue/internal/udev"
)

type configSource interface {
	String() string
	open() (io.Reader, func() error, error)
}

type fileConfigSource struct {
	path string
}

func (fcs *fileConfigSource) open() (io.Reader, func() error, error) {
	file, err := os.Open(fcs.path)
	if err != nil {
		return nil, nil, err
	}
	return file, file.Close, nil
}

func (fcs *fileConfigSource) String() string {
	return "file:" + fcs.path
}

type envConfigSource struct {
	variable string
}

func (ecs *envConfigSource) open() (io.Reader, func() error, error) {
	data := os.Getenv(ecs.variable)
	if data == "" {
		return nil, nil, fmt.Errorf("config: environment variable %s is not set", ecs.variable)
	}
	return strings.NewReader(data), func() error { return nil }, nil
}

func (ecs *envConfigSource) String() string {
	return "env:" + ecs.variable
}

type stdinConfigSource struct{}

func (scs *stdinConfigSource) open() (io.Reader, func() error, error) {
	return os.Stdin, func() error { return nil }, nil
}

func (scs *stdinConfigSource) String() string {
	return "stdin"
}

type ConfigFlag struct {
	configSource
}

func (cf *ConfigFlag) Set(value string) error {
	switch {
	case strings.HasPrefix(value, "file:"):
		cf.configSource = &fileConfigSource{path: strings.TrimPrefix(value, "file:")}
	case strings.HasPrefix(value, "env:"):
		cf.configSource = &envConfigSource{variable: strings.TrimPrefix(value, "env:")}
	case value == "stdin":
		cf.configSource = &stdinConfigSource{}
	default:
		return fmt.Errorf("invalid config source: %s", value)
	}

	return nil
}

func (cf *ConfigFlag) String() string {
	if cf.configSource == nil {
		return ""
	}
	return cf.configSource.String()
}

const defaultSettleTimeout = 120 * time.Second

type Config struct {
	Sysfs         string        `yaml:"sysfs"`
	Run           string        `yaml:"run"`
	SettleTimeout time.Duration `yaml:"settleTimeout"`
	PollInterval  time.Duration `yaml:"pollInterval"`
	Healthz       string        `yaml:"healthz,omitempty"` // listen address, empty disables
}

func defaultConfig() *Config {
	return &Config{
		Sysfs:         udev.DefaultSysfsRoot,
		Run:           udev.DefaultRunRoot,
		SettleTimeout: defaultSettleTimeout,
		PollInterval:  settle.DefaultInterval,
	}
}

func (c *Config) validate() error {
	var errs error
	if !path.IsAbs(c.Sysfs) {
		errs = errors.Join(errs, fmt.Errorf(".sysfs: %q must be an absolute path", c.Sysfs))
	}
	if !path.IsAbs(c.Run) {
		errs = errors.Join(errs, fmt.Errorf(".run: %q must be an absolute path", c.Run))
	}
	if c.SettleTimeout <= 0 {
		errs = errors.Join(errs, fmt.Errorf(".settleTimeout: %s must be positive", c.SettleTimeout))
	}
	if c.PollInterval <= 0 {
		errs = errors.Join(errs, fmt.Errorf(".pollInterval: %s must be positive", c.PollInterval))
	}
	if c.Healthz != "" {
		if _, _, err := net.SplitHostPort(c.Healthz); err != nil {
			errs = errors.Join(errs, fmt.Errorf(".healthz: %q must be a host:port address: %w", c.Healthz, err))
		}
	}
	return errs
}

// parseConfig decodes reader over the defaults. An empty document keeps
// every default.
func parseConfig(reader io.Reader) (*Config, error) {
	decoder := yaml.NewDecoder(reader)
	decoder.KnownFields(true)
	config := defaultConfig()
	if err := decoder.Decode(config); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func loadConfig(source configSource) (*Config, error) {
	if source == nil {
		return defaultConfig(), nil
	}
	reader, closer, err := source.open()
	if err != nil {
		return nil, fmt.Errorf("failed to open --config %q: %w", source.String(), err)
	}
	defer closer()

	config, err := parseConfig(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to parse --config %q: %w", source.String(), err)
	}
	return config, nil
}
