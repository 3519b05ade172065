package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/providers/structs"
	"github.com/spf13/pflag"

	yml "gopkg.in/yaml.v2"

	"github.com/kittennbfive/scdd/comm"
)

const (
	// DefaultDevice is the first USBTMC device node of the kernel driver
	DefaultDevice = "/dev/usbtmc0"

	// PipeFilename selects stdout as the output
	PipeFilename = "PIPE"
)

// USBConfig selects a device for the libusb transport
type USBConfig struct {
	VID uint16 `koanf:"vid" yaml:"vid"`
	PID uint16 `koanf:"pid" yaml:"pid"`
}

// SerialConfig holds the RS-232 line settings
type SerialConfig struct {
	Baud int `koanf:"baud" yaml:"baud"`
}

// LogConfig holds logging settings
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `koanf:"level" yaml:"level"`

	// Format is text or json
	Format string `koanf:"format" yaml:"format"`
}

// Config holds everything needed for one dump
type Config struct {
	// Device is the device node, serial port or host:port of the scope
	Device string `koanf:"device" yaml:"device"`

	// Transport is usbtmc, usb, serial or tcp
	Transport string `koanf:"transport" yaml:"transport"`

	// Channel is the analog channel to dump, 1-4
	Channel int `koanf:"channel" yaml:"channel"`

	// Filename is the output file.  Empty synthesizes a name, PIPE writes to stdout
	Filename string `koanf:"filename" yaml:"filename"`

	// RawFloat writes 4 byte floats instead of text
	RawFloat bool `koanf:"raw-float" yaml:"raw-float"`

	// Timeout bounds each read and write on transports that support it, 0 to disable
	Timeout time.Duration `koanf:"timeout" yaml:"timeout"`

	// Progress is spinner, log or none
	Progress string `koanf:"progress" yaml:"progress"`

	USB    USBConfig    `koanf:"usb" yaml:"usb"`
	Serial SerialConfig `koanf:"serial" yaml:"serial"`
	Log    LogConfig    `koanf:"log" yaml:"log"`
}

// DefaultConfig returns the configuration used when nothing is overridden
func DefaultConfig() Config {
	return Config{
		Device:    DefaultDevice,
		Transport: comm.KindUSBTMC,
		Channel:   1,
		Progress:  "spinner",
		USB:       USBConfig{VID: 0x1ab1, PID: 0x0515}, // Rigol MSO5000
		Serial:    SerialConfig{Baud: 115200},
		Log:       LogConfig{Level: "info", Format: "text"},
	}
}

// Comm returns the transport settings
func (c Config) Comm() comm.Config {
	return comm.Config{
		Kind:    c.Transport,
		Addr:    c.Device,
		Timeout: c.Timeout,
		Baud:    c.Serial.Baud,
		VID:     c.USB.VID,
		PID:     c.USB.PID,
	}
}

// flagKeys maps flags whose names differ from their config keys
var flagKeys = map[string]string{
	"log-level":  "log.level",
	"log-format": "log.format",
}

// loadConfig layers defaults, the config file at path, and any flags that were
// set on the command line.  A missing file is not an error.
func loadConfig(path string, flags *pflag.FlagSet) (Config, error) {
	k := koanf.New(".")
	var c Config
	if err := k.Load(structs.Provider(DefaultConfig(), "koanf"), nil); err != nil {
		return c, err
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !os.IsNotExist(err) && !strings.Contains(err.Error(), "no such") {
				return c, fmt.Errorf("error loading config: %w", err)
			}
		}
	}
	if flags != nil {
		cb := func(key string, value string) (string, interface{}) {
			if key == "config" {
				return "", nil
			}
			if mapped, ok := flagKeys[key]; ok {
				// koanf only knows the flag name, so an unset flag would
				// shadow the config file
				if f := flags.Lookup(key); f == nil || !f.Changed {
					return "", nil
				}
				key = mapped
			}
			return key, value
		}
		if err := k.Load(posflag.ProviderWithValue(flags, ".", k, cb), nil); err != nil {
			return c, err
		}
	}
	if err := k.Unmarshal("", &c); err != nil {
		return c, err
	}
	return c, nil
}

// writeConfig encodes c as YAML
func writeConfig(w io.Writer, c Config) error {
	return yml.NewEncoder(w).Encode(c)
}
