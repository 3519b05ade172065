// scdd dumps the full acquisition memory of one channel of a Rigol MSO5000
// series oscilloscope, converted to volts.
package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	// Version is the version number.  Typically injected via ldflags with git build
	Version = "0.1"

	// ConfigFileName is what it sounds like
	ConfigFileName = "scdd.yml"
)

const long = `scdd (scope data dumper) reads the RAW sample memory of one channel of a
Rigol MSO5000 series oscilloscope and writes it as voltages, one value per line
with two decimals, or as back-to-back 4 byte floats with --raw-float.

The scope must be stopped and the channel switched on.

Settings are taken from, in increasing priority, built-in defaults, the config
file (scdd.yml in the working directory unless --config is given) and flags.
Use "scdd mkconf" to write a config file holding the current settings.

If no filename is given one is made from the device name, channel and time.
Give PIPE as the filename to write to stdout.`

func newRootCmd() *cobra.Command {
	var cfgPath string
	dump := func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cfgPath, cmd.Flags())
		if err != nil {
			return err
		}
		log := setupLogger(cfg.Log, os.Stderr)
		fmt.Fprintf(os.Stderr, "This is scdd version %s - data dumper for Rigol MSO5000 series\n\n", Version)
		return newDumper(cfg, log).run()
	}
	root := &cobra.Command{
		Use:           "scdd",
		Short:         "scope data dumper for Rigol MSO5000 series",
		Long:          long,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          dump,
	}

	def := DefaultConfig()
	f := root.PersistentFlags()
	f.StringVar(&cfgPath, "config", ConfigFileName, "config file")
	f.String("device", def.Device, "device node, serial port or host:port of the scope")
	f.String("transport", def.Transport, "usbtmc, usb, serial or tcp")
	f.Int("channel", def.Channel, "channel to dump, 1-4")
	f.String("filename", def.Filename, "output file, PIPE for stdout")
	f.Bool("raw-float", def.RawFloat, "write raw 4 byte floats instead of text")
	f.Duration("timeout", def.Timeout, "bound on each read and write, 0 to block forever")
	f.String("progress", def.Progress, "spinner, log or none")
	f.String("log-level", def.Log.Level, "debug, info, warn or error")
	f.String("log-format", def.Log.Format, "text or json")

	root.AddCommand(
		&cobra.Command{
			Use:   "dump",
			Short: "dump one channel, the same as running scdd with no command",
			Args:  cobra.NoArgs,
			RunE:  dump,
		},
		&cobra.Command{
			Use:   "mkconf",
			Short: "write the effective configuration to the config file",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig(cfgPath, cmd.Flags())
				if err != nil {
					return err
				}
				fd, err := os.Create(cfgPath)
				if err != nil {
					return err
				}
				defer fd.Close()
				return writeConfig(fd, cfg)
			},
		},
		&cobra.Command{
			Use:   "conf",
			Short: "print the effective configuration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := loadConfig(cfgPath, cmd.Flags())
				if err != nil {
					return err
				}
				return writeConfig(cmd.OutOrStdout(), cfg)
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "print the version",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "scdd version %v\n", Version)
			},
		},
	)
	return root
}

func main() {
	err := newRootCmd().Execute()
	os.Exit(exitCode(logrus.StandardLogger(), err))
}
