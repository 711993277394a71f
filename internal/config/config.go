// Package config loads and validates the YAML build configuration.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Defaults applied to optional fields before validation.
const (
	DefaultSSHUsername = "admin"
	DefaultSSHTimeout  = 300
	DefaultSSHRetries  = 30
	DefaultPlatform    = PlatformLinux
)

// Platform selects the inbound remote-shell port opened on the temporary
// security group (22 for linux, 3389 for windows).
const (
	PlatformLinux   = "linux"
	PlatformWindows = "windows"
)

var ErrInvalidConfig = fmt.Errorf("invalid configuration")

// Config is the validated AMI build configuration.
type Config struct {
	AMIName            string            `yaml:"ami_name"`
	AMIDescription     string            `yaml:"ami_description"`
	Region             string            `yaml:"region"`
	SourceAMI          string            `yaml:"source_ami"`
	SubnetIDs          []string          `yaml:"subnet_ids"`
	InstanceTypes      []string          `yaml:"instance_types"`
	IAMInstanceProfile string            `yaml:"iam_instance_profile"`
	Tags               map[string]string `yaml:"tags"`
	SSHUsername        string            `yaml:"ssh_username"`
	SSHTimeout         int               `yaml:"ssh_timeout"`
	SSHRetries         int               `yaml:"ssh_retries"`
	Platform           string            `yaml:"platform"`
}

// Load reads, parses and validates the configuration file at 'path'.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading configuration file: %w", err)
	}
	return Parse(data)
}

// Parse parses and validates a raw YAML configuration document.
func Parse(data []byte) (Config, error) {
	cfg := Config{
		SSHUsername: DefaultSSHUsername,
		SSHTimeout:  DefaultSSHTimeout,
		SSHRetries:  DefaultSSHRetries,
		Platform:    DefaultPlatform,
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w: parsing YAML: %w", ErrInvalidConfig, err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	var missing []string
	if c.AMIName == "" {
		missing = append(missing, "ami_name")
	}
	if c.Region == "" {
		missing = append(missing, "region")
	}
	if c.SourceAMI == "" {
		missing = append(missing, "source_ami")
	}
	if len(c.SubnetIDs) == 0 {
		missing = append(missing, "subnet_ids")
	}
	if len(c.InstanceTypes) == 0 {
		missing = append(missing, "instance_types")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required fields: %s", strings.Join(missing, ", "))
	}
	if c.Platform != PlatformLinux && c.Platform != PlatformWindows {
		return fmt.Errorf("invalid platform %q, must be %q or %q", c.Platform, PlatformLinux, PlatformWindows)
	}
	if c.SSHTimeout <= 0 {
		return fmt.Errorf("ssh_timeout must be positive, got %d", c.SSHTimeout)
	}
	if c.SSHRetries <= 0 {
		return fmt.Errorf("ssh_retries must be positive, got %d", c.SSHRetries)
	}
	return nil
}
