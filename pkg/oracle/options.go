/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: options.go
Description: Knowledge base options.
*/

package oracle

import (
	"fmt"
	"time"

	"github.com/kleascm/akaylee-tlsfsm/pkg/scenario"
)

// DefaultTimeout is the network timeout used when none is configured
const DefaultTimeout = time.Second

// Options configures a knowledge base
type Options struct {
	LocalEndpoint          scenario.Endpoint  `json:"local_endpoint"`
	TriggerEndpoint        *scenario.Endpoint `json:"trigger_endpoint,omitempty"`
	Timeout                time.Duration      `json:"timeout"`
	ExpectedMinimalTimeout time.Duration      `json:"expected_minimal_timeout"`
	Verbose                bool               `json:"verbose"`
}

// DefaultOptions listens on 127.0.0.1:4433 without a trigger
func DefaultOptions() Options {
	return Options{
		LocalEndpoint: scenario.Endpoint{Host: "127.0.0.1", Port: 4433},
		Timeout:       DefaultTimeout,
	}
}

// Validate checks the options for invalid values
func (o *Options) Validate() error {
	if o.LocalEndpoint.Host == "" {
		return fmt.Errorf("local endpoint host must not be empty")
	}
	if o.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if o.ExpectedMinimalTimeout < 0 {
		return fmt.Errorf("expected minimal timeout must not be negative")
	}
	if o.TriggerEndpoint != nil && o.TriggerEndpoint.Host == "" {
		return fmt.Errorf("trigger endpoint host must not be empty")
	}
	return nil
}

// AcceptTimeout is the timeout for the target to connect. Without a trigger the
// target is started by hand, so accepting waits indefinitely.
func (o *Options) AcceptTimeout() time.Duration {
	if o.TriggerEndpoint == nil {
		return 0
	}
	return o.Timeout
}
