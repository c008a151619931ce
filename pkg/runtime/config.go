package runtime

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/robotalks/fable.go/pkg/dongle"
	fx "github.com/robotalks/fable.go/pkg/framework"
	"github.com/robotalks/fable.go/pkg/module"
)

// ModuleConfig describes a module attached at start.
type ModuleConfig struct {
	Serial  string `yaml:"serial"`
	Type    string `yaml:"type"`
	RadioID int    `yaml:"radio_id"`
}

// Config defines the runtime setup.
type Config struct {
	// Device is the serial device of the dongle, USB devices are
	// searched when empty.
	Device          string        `yaml:"device"`
	ReconnectPeriod time.Duration `yaml:"reconnect_period"`
	Interval        time.Duration `yaml:"interval"`
	ReplyTimeout    time.Duration `yaml:"reply_timeout"`
	Heartbeat       time.Duration `yaml:"heartbeat"`
	ExactWordDecode bool          `yaml:"exact_word_decode"`
	// TracePath records radio traffic into the file when set.
	TracePath string `yaml:"trace"`
	// Simulate replaces the dongle with the simulator.
	Simulate bool           `yaml:"simulate"`
	Modules  []ModuleConfig `yaml:"modules"`

	// ConfigFile is the YAML file loaded by NewRuntime.
	ConfigFile string `yaml:"-"`
}

var defaultConfig = Config{
	ReconnectPeriod: dongle.DefaultReconnectPeriod,
	Interval:        fx.DefaultInterval,
	ReplyTimeout:    module.DefaultReplyTimeout,
	Heartbeat:       module.DefaultHeartbeat,
}

func init() {
	if val := os.Getenv("FABLE_DEVICE"); val != "" {
		defaultConfig.Device = val
	}
	if val := os.Getenv("FABLE_CONFIG"); val != "" {
		defaultConfig.ConfigFile = val
	}
	if val := os.Getenv("FABLE_TRACE"); val != "" {
		defaultConfig.TracePath = val
	}
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Device, "device", defaultConfig.Device, "Serial device of the dongle, auto detected if empty.")
	flag.StringVar(&defaultConfig.ConfigFile, "config", defaultConfig.ConfigFile, "YAML configuration file.")
	flag.StringVar(&defaultConfig.TracePath, "trace", defaultConfig.TracePath, "Record radio traffic into the file.")
	flag.BoolVar(&defaultConfig.Simulate, "sim", defaultConfig.Simulate, "Use the simulated dongle.")
	flag.DurationVar(&defaultConfig.Interval, "interval", defaultConfig.Interval, "Sync loop interval.")
	flag.DurationVar(&defaultConfig.ReconnectPeriod, "reconnect", defaultConfig.ReconnectPeriod, "Dongle reconnect period.")
	flag.Var(moduleFlag{&defaultConfig}, "module", "Attach a module at start, as type:serial:radioID, repeatable.")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates the default configuration.
func NewConfig() *Config {
	conf := defaultConfig
	conf.Modules = append([]ModuleConfig(nil), defaultConfig.Modules...)
	return &conf
}

// Load merges the YAML file into the config. Values absent in the
// file are kept.
func (c *Config) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return c.Parse(data)
}

// Parse merges YAML content into the config.
func (c *Config) Parse(data []byte) error {
	fileConf := *c
	fileConf.Modules = nil
	if err := yaml.Unmarshal(data, &fileConf); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	fileConf.Modules = append(c.Modules, fileConf.Modules...)
	fileConf.ConfigFile = c.ConfigFile
	*c = fileConf
	return nil
}

// ModuleOptions are the options of attached modules.
func (c *Config) ModuleOptions() module.Options {
	opts := module.DefaultOptions()
	if c.ReplyTimeout > 0 {
		opts.ReplyTimeout = c.ReplyTimeout
	}
	if c.Heartbeat > 0 {
		opts.Heartbeat = c.Heartbeat
	}
	opts.ExactWordDecode = c.ExactWordDecode
	return opts
}

// ParseModule parses type:serial:radioID.
func ParseModule(s string) (ModuleConfig, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return ModuleConfig{}, fmt.Errorf("invalid module %q, expect type:serial:radioID", s)
	}
	rid, err := strconv.Atoi(parts[2])
	if err != nil {
		return ModuleConfig{}, fmt.Errorf("invalid radio ID in %q: %w", s, err)
	}
	return ModuleConfig{Type: parts[0], Serial: parts[1], RadioID: rid}, nil
}

type moduleFlag struct {
	conf *Config
}

func (f moduleFlag) String() string {
	if f.conf == nil {
		return ""
	}
	return fmt.Sprintf("%v", f.conf.Modules)
}

func (f moduleFlag) Set(s string) error {
	mc, err := ParseModule(s)
	if err != nil {
		return err
	}
	f.conf.Modules = append(f.conf.Modules, mc)
	return nil
}
