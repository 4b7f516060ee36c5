package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"pbtcp/client"
	"pbtcp/internal/hello"
	"pbtcp/loadbalance"
)

type callCommandeer struct {
	cmd      *cobra.Command
	root     *rootCommandeer
	address  string
	balancer string
	timeout  time.Duration
}

func newCallCommandeer(root *rootCommandeer) *callCommandeer {
	commandeer := &callCommandeer{root: root}

	cmd := &cobra.Command{
		Use:   "call [name]",
		Short: "Greet name through the remote greeter",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := "World"
			if len(args) == 1 {
				name = args[0]
			}
			return commandeer.run(cmd.Context(), name)
		},
	}

	cmd.Flags().StringVarP(&commandeer.address, "address", "a", "", "Endpoint tcp://host:port, default from config")
	cmd.Flags().StringVar(&commandeer.balancer, "balancer", "roundrobin", "Endpoint selection with --etcd: roundrobin, random or hash:<key>")
	cmd.Flags().DurationVar(&commandeer.timeout, "timeout", 10*time.Second, "Call timeout")

	commandeer.cmd = cmd
	return commandeer
}

func (cc *callCommandeer) newBalancer() (loadbalance.Balancer, error) {
	switch cc.balancer {
	case "roundrobin":
		return &loadbalance.RoundRobinBalancer{}, nil
	case "random":
		return &loadbalance.WeightedRandomBalancer{}, nil
	}
	if key, ok := strings.CutPrefix(cc.balancer, "hash:"); ok && key != "" {
		return loadbalance.NewConsistentHashBalancer(key), nil
	}
	return nil, errors.Errorf("unknown balancer %q", cc.balancer)
}

// connect uses --address, the registry when --etcd is given, or the
// configured host and port.
func (cc *callCommandeer) connect(ctx context.Context) (*client.Client, error) {
	caps := []client.Capability{hello.Capability}
	opts := []client.Option{client.WithLogger(cc.root.logger)}

	if cc.address != "" {
		return client.New(cc.address, caps, opts...)
	}

	reg, err := cc.root.registry()
	if err != nil {
		return nil, err
	}
	if reg != nil {
		defer reg.Close()
		balancer, err := cc.newBalancer()
		if err != nil {
			return nil, err
		}
		return client.Discover(ctx, reg, balancer, serviceName, caps, opts...)
	}

	props, err := cc.root.properties()
	if err != nil {
		return nil, err
	}
	return client.New(props.Endpoint(), caps, opts...)
}

func (cc *callCommandeer) run(ctx context.Context, name string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, cc.timeout)
	defer cancel()

	c, err := cc.connect(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	greeter, err := client.As[hello.RemoteGreeter](c)
	if err != nil {
		return err
	}
	reply, err := greeter.SayHello(ctx, name)
	if err != nil {
		return err
	}
	fmt.Fprintln(cc.cmd.OutOrStdout(), reply)
	return nil
}
