// Package config loads the board description used by the w25q64 command.
//
// Example:
//
//	transport: periph
//	spi:
//	  device: /dev/spidev0.0
//	  speed_hz: 10000000
//	  mode: 0
//	  cs_pin: GPIO8
//	poll:
//	  limit: 0
//	  timeout: 60s
//	expect:
//	  manufacturer: 0xEF
//	  memory_type: 0x40
//	  capacity: 0x17
//	log_level: info
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	TransportPeriph = "periph"
	TransportSpidev = "spidev"
	TransportSim    = "sim"
)

type SPI struct {
	Device  string `yaml:"device"`
	SpeedHz uint32 `yaml:"speed_hz"`
	Mode    uint8  `yaml:"mode"`
	CSPin   string `yaml:"cs_pin"`

	/* MaxTransfer limits the payload of a single read frame, 0 for none */
	MaxTransfer int `yaml:"max_transfer"`
}

type Poll struct {
	Limit   int           `yaml:"limit"`
	Timeout time.Duration `yaml:"timeout"`
}

type Identity struct {
	Manufacturer uint8 `yaml:"manufacturer"`
	MemoryType   uint8 `yaml:"memory_type"`
	Capacity     uint8 `yaml:"capacity"`
}

type Sim struct {
	File      string `yaml:"file"`
	BusyPolls int    `yaml:"busy_polls"`
}

type Config struct {
	Transport  string        `yaml:"transport"`
	SPI        SPI           `yaml:"spi"`
	Poll       Poll          `yaml:"poll"`
	ResetDelay time.Duration `yaml:"reset_delay"`
	Expect     Identity      `yaml:"expect"`
	Sim        Sim           `yaml:"sim"`
	TraceFile  string        `yaml:"trace_file"`
	LogLevel   string        `yaml:"log_level"`
	LogFormat  string        `yaml:"log_format"`
}

func Default() Config {
	return Config{
		Transport: TransportSpidev,
		SPI: SPI{
			Device:  "/dev/spidev0.0",
			SpeedHz: 10000000,
		},
		ResetDelay: 30 * time.Microsecond,
		Expect: Identity{
			Manufacturer: 0xEF,
			MemoryType:   0x40,
			Capacity:     0x17,
		},
		Sim: Sim{
			BusyPolls: 1,
		},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Load reads a YAML file on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}

	return cfg, cfg.Validate()
}

func (c Config) Validate() error {
	switch c.Transport {
	case TransportPeriph:
		if c.SPI.CSPin == "" {
			return errors.New("periph transport needs spi.cs_pin")
		}
		fallthrough
	case TransportSpidev:
		if c.SPI.Device == "" {
			return errors.New("spi.device is required")
		}
	case TransportSim:
	default:
		return fmt.Errorf("unknown transport %q", c.Transport)
	}

	if c.SPI.Mode > 3 {
		return fmt.Errorf("invalid SPI mode %d", c.SPI.Mode)
	}
	if c.SPI.MaxTransfer < 0 || c.Poll.Limit < 0 || c.Poll.Timeout < 0 || c.ResetDelay < 0 {
		return errors.New("limits must not be negative")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}

	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.LogFormat)
	}

	return nil
}
