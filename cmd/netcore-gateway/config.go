package main

import (
	"fmt"
	"net"
	"os"

	"gopkg.in/yaml.v3"
)

// Config describes a set of network interfaces and the routes between them,
// the static wiring an embedder would otherwise build up by hand by calling
// tcpip.NewNetworkInterface/Router.AddRoute directly.
type Config struct {
	Capture    string            `yaml:"capture"`
	Interfaces []InterfaceConfig `yaml:"interfaces"`
	Routes     []RouteConfig     `yaml:"routes"`
}

// InterfaceConfig names one NetworkInterface to create.
type InterfaceConfig struct {
	Name string `yaml:"name"`
	MAC  string `yaml:"mac"`
	IP   string `yaml:"ip"`
}

// RouteConfig names one Router.AddRoute entry, referring to interfaces by
// the Name given in InterfaceConfig rather than by index, since config-file
// authors shouldn't have to track attachment order.
type RouteConfig struct {
	Prefix       string `yaml:"prefix"`
	PrefixLength uint8  `yaml:"prefixLength"`
	NextHop      string `yaml:"nextHop"`
	Interface    string `yaml:"interface"`
}

func loadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.Interfaces) == 0 {
		return fmt.Errorf("config: at least one interface is required")
	}
	seen := make(map[string]bool, len(c.Interfaces))
	for _, iface := range c.Interfaces {
		if iface.Name == "" {
			return fmt.Errorf("config: interface with empty name")
		}
		if seen[iface.Name] {
			return fmt.Errorf("config: duplicate interface name %q", iface.Name)
		}
		seen[iface.Name] = true
		if _, err := net.ParseMAC(iface.MAC); err != nil {
			return fmt.Errorf("config: interface %q: %w", iface.Name, err)
		}
		if net.ParseIP(iface.IP) == nil {
			return fmt.Errorf("config: interface %q: invalid ip %q", iface.Name, iface.IP)
		}
	}
	for _, route := range c.Routes {
		if !seen[route.Interface] {
			return fmt.Errorf("config: route references unknown interface %q", route.Interface)
		}
		if net.ParseIP(route.Prefix) == nil {
			return fmt.Errorf("config: route prefix %q is not a valid ip", route.Prefix)
		}
		if route.PrefixLength > 32 {
			return fmt.Errorf("config: route prefix length %d exceeds 32", route.PrefixLength)
		}
		if route.NextHop != "" && net.ParseIP(route.NextHop) == nil {
			return fmt.Errorf("config: route next hop %q is not a valid ip", route.NextHop)
		}
	}
	return nil
}
