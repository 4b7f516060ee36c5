package main

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"pbtcp/config"
	"pbtcp/registry"
)

const serviceName = "hello.Greeter"

type rootCommandeer struct {
	cmd           *cobra.Command
	logger        *zap.Logger
	debug         bool
	configPath    string
	etcdEndpoints string
	hostname      string
	port          int
}

func newRootCommandeer() *rootCommandeer {
	commandeer := &rootCommandeer{}

	cmd := &cobra.Command{
		Use:           "pbtcp-hello [command]",
		Short:         "Hello world over pbtcp",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return commandeer.initialize()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if commandeer.logger != nil {
				commandeer.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().BoolVar(&commandeer.debug, "debug", false, "Development logging at debug level")
	cmd.PersistentFlags().StringVarP(&commandeer.configPath, "config", "c", "", "YAML file with pbtcp.hostname and pbtcp.port")
	cmd.PersistentFlags().StringVar(&commandeer.etcdEndpoints, "etcd", "", "Comma separated etcd endpoints of the service registry")
	cmd.PersistentFlags().StringVar(&commandeer.hostname, "hostname", "", "Host name, overrides the config file")
	cmd.PersistentFlags().IntVarP(&commandeer.port, "port", "p", 0, "Port, overrides the config file")

	cmd.AddCommand(
		newServeCommandeer(commandeer).cmd,
		newCallCommandeer(commandeer).cmd,
	)

	commandeer.cmd = cmd
	return commandeer
}

func (rc *rootCommandeer) initialize() error {
	var err error
	if rc.debug {
		rc.logger, err = zap.NewDevelopment()
	} else {
		rc.logger, err = zap.NewProduction()
	}
	return errors.Wrap(err, "create logger")
}

// properties merges the config file, if any, with the command line flags.
func (rc *rootCommandeer) properties() (*config.ServiceProperties, error) {
	p := config.Default()
	if rc.configPath != "" {
		loaded, err := config.LoadFile(rc.configPath)
		if err != nil {
			return nil, err
		}
		p = *loaded
	}
	if rc.hostname != "" {
		p.Hostname = rc.hostname
	}
	if rc.port != 0 {
		p.Port = rc.port
	}
	return &p, p.Validate()
}

// registry connects to etcd, or returns nil when no endpoints were given.
func (rc *rootCommandeer) registry() (*registry.EtcdRegistry, error) {
	if rc.etcdEndpoints == "" {
		return nil, nil
	}
	return registry.NewEtcdRegistry(strings.Split(rc.etcdEndpoints, ","), rc.logger)
}
