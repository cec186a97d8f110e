/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: material.go
Description: Crypto material registry and network endpoints given on the command line.
Material lines have the form name:cert:key[:DEFAULT].
*/

package scenario

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
)

// ErrInvalidCryptoMaterialLine is returned for material lines that are not name:cert:key[:DEFAULT]
var ErrInvalidCryptoMaterialLine = errors.New("invalid crypto material line")

// Material is a certificate and private key pair
type Material struct {
	Name string
	Cert string
	Key  string
}

// CryptoMaterial keeps named materials in insertion order
type CryptoMaterial struct {
	names    []string
	material map[string]Material
	def      string
}

// NewCryptoMaterial creates an empty registry
func NewCryptoMaterial() *CryptoMaterial {
	return &CryptoMaterial{material: make(map[string]Material)}
}

// Add registers one material line. Re-adding a name replaces its files.
func (c *CryptoMaterial) Add(line string) error {
	fields := strings.Split(line, ":")
	isDefault := false
	switch {
	case len(fields) == 3:
	case len(fields) == 4 && fields[3] == "DEFAULT":
		isDefault = true
	default:
		return fmt.Errorf("%w: %q", ErrInvalidCryptoMaterialLine, line)
	}

	name := fields[0]
	if _, known := c.material[name]; !known {
		c.names = append(c.names, name)
	}
	c.material[name] = Material{Name: name, Cert: fields[1], Key: fields[2]}
	if isDefault {
		c.def = name
	}
	return nil
}

// Names returns every material name in insertion order
func (c *CryptoMaterial) Names() []string {
	return append([]string(nil), c.names...)
}

// DefaultMaterial returns the material flagged DEFAULT, if any
func (c *CryptoMaterial) DefaultMaterial() (Material, bool) {
	if c.def == "" {
		return Material{}, false
	}
	return c.material[c.def], true
}

// Get returns the named material
func (c *CryptoMaterial) Get(name string) (Material, bool) {
	m, ok := c.material[name]
	return m, ok
}

// Len returns the number of materials
func (c *CryptoMaterial) Len() int {
	return len(c.names)
}

// Check verifies that every referenced certificate and key file is readable
func (c *CryptoMaterial) Check() error {
	var errs []error
	for _, name := range c.names {
		m := c.material[name]
		for _, path := range []string{m.Cert, m.Key} {
			if _, err := os.Stat(path); err != nil {
				errs = append(errs, fmt.Errorf("material %s: %w", name, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Endpoint is a host and port pair
type Endpoint struct {
	Host string
	Port int
}

// ParseEndpoint parses "host:port"
func ParseEndpoint(s string) (Endpoint, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		return Endpoint{}, fmt.Errorf("invalid endpoint %q: %w", s, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port < 0 || port > 65535 {
		return Endpoint{}, fmt.Errorf("invalid endpoint %q: bad port", s)
	}
	return Endpoint{Host: host, Port: port}, nil
}

// Check reports whether the host resolves
func (e Endpoint) Check(ctx context.Context) bool {
	if net.ParseIP(e.Host) != nil {
		return true
	}
	_, err := net.DefaultResolver.LookupHost(ctx, e.Host)
	return err == nil
}

func (e Endpoint) String() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}
