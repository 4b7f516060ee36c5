// Package config reads the host and port a service is exported on from
// key/value properties or a YAML file.
//
//	pbtcp.hostname  string, default "localhost"
//	pbtcp.port      int, default 5556
package config

import (
	"fmt"
	"os"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"pbtcp/registry"
)

const (
	HostnameKey = "pbtcp.hostname"
	PortKey     = "pbtcp.port"

	DefaultHostname = "localhost"
	// DefaultPort is the deployment default. The server itself has none.
	DefaultPort     = 5556
)

// ServiceProperties are the connection properties of one service.
type ServiceProperties struct {
	Hostname string `mapstructure:"pbtcp.hostname"`
	Port     int    `mapstructure:"pbtcp.port"`
}

// Default returns the properties used for missing keys.
func Default() ServiceProperties {
	return ServiceProperties{Hostname: DefaultHostname, Port: DefaultPort}
}

// FromProperties decodes props over the defaults. Values are weakly typed,
// so a port given as "8080" is accepted. Other keys are ignored.
func FromProperties(props map[string]any) (*ServiceProperties, error) {
	p := Default()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &p,
	})
	if err != nil {
		return nil, errors.Wrap(err, "config: create decoder")
	}
	if err := decoder.Decode(props); err != nil {
		return nil, errors.Wrap(err, "config: decode properties")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Load parses YAML. Keys may be nested or dotted, both of these work:
//
//	pbtcp:
//	  port: 8080
//
//	pbtcp.port: 8080
func Load(data []byte) (*ServiceProperties, error) {
	var doc map[string]any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrap(err, "config: parse yaml")
	}
	props := make(map[string]any)
	flatten("", doc, props)
	return FromProperties(props)
}

// LoadFile reads and parses the YAML file at path.
func LoadFile(path string) (*ServiceProperties, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "config: read file")
	}
	return Load(data)
}

func flatten(prefix string, in map[string]any, out map[string]any) {
	for k, v := range in {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if nested, ok := v.(map[string]any); ok {
			flatten(key, nested, out)
			continue
		}
		out[key] = v
	}
}

// Validate checks the port range and that a hostname is set.
func (p *ServiceProperties) Validate() error {
	if p.Hostname == "" {
		return errors.Errorf("config: %s is empty", HostnameKey)
	}
	if p.Port < 0 || p.Port > 65535 {
		return errors.Errorf("config: %s %d out of range", PortKey, p.Port)
	}
	return nil
}

// Endpoint renders the endpoint identifier, tcp://host:port.
func (p *ServiceProperties) Endpoint() string {
	return registry.EndpointAddr(p.Hostname, p.Port)
}

// Properties is the inverse of FromProperties.
func (p *ServiceProperties) Properties() map[string]any {
	return map[string]any{
		HostnameKey: p.Hostname,
		PortKey:     p.Port,
	}
}

func (p *ServiceProperties) String() string {
	return fmt.Sprintf("%s:%d", p.Hostname, p.Port)
}
