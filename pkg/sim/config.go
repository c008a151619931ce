package sim

import (
	"flag"
	"fmt"
	"strconv"
	"strings"

	m "github.com/robotalks/fable.go/pkg/module"
)

// Config defines the simulated setup.
type Config struct {
	// Modules lists simulated modules as type:serial:radioID, comma separated.
	Modules  string
	SerialID string
}

// Defaults
const (
	DefaultModules  = "joint:SJ01:1"
	DefaultSerialID = "SIMD"
)

var defaultConfig = Config{
	Modules:  DefaultModules,
	SerialID: DefaultSerialID,
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Modules, "sim-modules", defaultConfig.Modules, "Simulated modules, as type:serial:radioID separated by comma.")
	flag.StringVar(&defaultConfig.SerialID, "sim-dongle", defaultConfig.SerialID, "Serial ID of the simulated dongle.")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates the default configuration.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// World is a simulated dongle with its modules and physics.
type World struct {
	*Dongle
	Physics *Physics
}

// NewWorld creates the simulated world.
func (c *Config) NewWorld() (*World, error) {
	modules, err := ParseModules(c.Modules)
	if err != nil {
		return nil, err
	}
	d := NewDongle(c.SerialID, modules...)
	return &World{Dongle: d, Physics: NewPhysics(d)}, nil
}

// ParseModules parses a list of type:serial:radioID.
func ParseModules(s string) ([]*Module, error) {
	var modules []*Module
	for _, item := range strings.Split(s, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		parts := strings.Split(item, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("invalid simulated module %q, expect type:serial:radioID", item)
		}
		typ, err := m.ParseType(parts[0])
		if err != nil {
			return nil, err
		}
		if len(parts[1]) > m.SerialLength {
			return nil, fmt.Errorf("serial ID %q longer than %d", parts[1], m.SerialLength)
		}
		rid, err := strconv.ParseUint(parts[2], 10, 8)
		if err != nil {
			return nil, fmt.Errorf("invalid radio ID %q: %w", parts[2], err)
		}
		modules = append(modules, NewModule(typ, parts[1], byte(rid)))
	}
	return modules, nil
}
