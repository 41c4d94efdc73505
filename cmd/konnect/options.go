package main

import (
	"fmt"

	"github.com/cyberinferno/konnect/codec"
	"github.com/cyberinferno/konnect/config"
	"github.com/cyberinferno/konnect/logger"
	"github.com/spf13/cobra"
)

// commonOptions are the persistent flags shared by serve and dial.
type commonOptions struct {
	configPath string
	host       string
	port       int
	codec      string
	logLevel   string
	verbose    bool
}

func (o *commonOptions) bind(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.StringVarP(&o.configPath, "config", "c", "", "TOML configuration file")
	flags.StringVar(&o.host, "host", config.DefaultHost, "Host to bind or dial")
	flags.IntVarP(&o.port, "port", "p", config.DefaultPort, "Port to bind or dial")
	flags.StringVar(&o.codec, "codec", "bytes", fmt.Sprintf("Wire codec %v", codec.Names()))
	flags.StringVar(&o.logLevel, "log-level", "info", "Log level when --verbose is set")
	flags.BoolVarP(&o.verbose, "verbose", "v", false, "Enable engine logging")
}

// builder loads the configuration file, if any, and applies the flags the user
// set explicitly on top of it.
func (o *commonOptions) builder(cmd *cobra.Command) (*config.Builder, error) {
	b := config.NewBuilder(config.DefaultHost)
	if o.configPath != "" {
		loaded, err := config.LoadFile(o.configPath)
		if err != nil {
			return nil, err
		}
		b = loaded
	}

	flags := cmd.Flags()

	if o.configPath == "" || flags.Changed("host") {
		b.Host(o.host)
	}

	if o.configPath == "" || flags.Changed("port") {
		b.Port(o.port)
	}

	if o.configPath == "" || flags.Changed("codec") {
		c, err := codec.ByName(o.codec)
		if err != nil {
			return nil, err
		}
		b.Codec(c)
	}

	if o.verbose {
		level, err := logger.ParseLevel(o.logLevel)
		if err != nil {
			return nil, err
		}
		b.EnableLogging().Logger(logger.NewConsoleLogger(cmd.ErrOrStderr(), "konnect", level))
	}

	return b, nil
}
