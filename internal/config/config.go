package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v2"
)

const (
	ModeForward = "forward"
	ModeInspect = "inspect"
)

type Backend struct {
	BaseURL string `yaml:"baseUrl"`

	Auth struct {
		Header map[string]string `yaml:"header"`
		Basic  struct {
			Username string `yaml:"username"`
			Password string `yaml:"password"`
		} `yaml:"basic"`
		TLS struct {
			RootCertificates string `yaml:"rootCertificates"`
			Certificate      string `yaml:"certificate"`
			Key              string `yaml:"key"`
		} `yaml:"tls"`
	} `yaml:"auth"`
}

type Path struct {
	Path    string `yaml:"path"`
	Backend struct {
		Slug string `yaml:"slug"`
		Path string `yaml:"path"`
	} `yaml:"backend"`
	LogBackend string `yaml:"logBackend"`
	// Mode is forward (default) or inspect.
	Mode string `yaml:"mode"`
	// SummaryRewrite is a jq expression applied to the transaction summary.
	SummaryRewrite string `yaml:"summaryRewrite"`
	MaxFeatures    int    `yaml:"maxFeatures"`
	// Constraint is an ogc:Filter or fes:Filter document every inserted
	// feature has to satisfy.
	Constraint string `yaml:"constraint"`
}

type LogBackend struct {
	BaseURL string            `yaml:"baseUrl"`
	Headers map[string]string `yaml:"headers"`
}

type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

type Config struct {
	ListenAddress string `yaml:"listenAddress"`
	ListenTLS     struct {
		Certificate string `yaml:"certificate"`
		Key         string `yaml:"key"`
	} `yaml:"listenTls"`
	JwksURL     string                `yaml:"jwksUrl"`
	Schema      string                `yaml:"schema"`
	MetricsPath string                `yaml:"metricsPath"`
	MaxBodySize int64                 `yaml:"maxBodySize"`
	Logging     Logging               `yaml:"logging"`
	Paths       []Path                `yaml:"paths"`
	Backends    map[string]Backend    `yaml:"backends"`
	LogBackends map[string]LogBackend `yaml:"logBackends"`
}

// NewConfig returns a new decoded Config struct
func NewConfig(configPath string) (*Config, error) {
	// Create config structure
	config := &Config{}

	// Open config file
	file, err := os.Open(configPath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	// Init new YAML decode
	d := yaml.NewDecoder(file)

	// Start YAML decoding from file
	if err := d.Decode(&config); err != nil {
		return nil, err
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) validate() error {
	if c.ListenAddress == "" {
		c.ListenAddress = ":8080"
	}
	if c.MetricsPath == "" {
		c.MetricsPath = "/metrics"
	}
	if c.MaxBodySize == 0 {
		c.MaxBodySize = 64 << 20
	}

	for i := range c.Paths {
		path := &c.Paths[i]
		if path.Mode == "" {
			path.Mode = ModeForward
		}
		switch path.Mode {
		case ModeForward:
			if _, ok := c.Backends[path.Backend.Slug]; !ok {
				return errors.Errorf("path %s refers to unknown backend %q", path.Path, path.Backend.Slug)
			}
		case ModeInspect:
		default:
			return errors.Errorf("path %s has unknown mode %q", path.Path, path.Mode)
		}
		if path.LogBackend != "" {
			if _, ok := c.LogBackends[path.LogBackend]; !ok {
				return errors.Errorf("path %s refers to unknown log backend %q", path.Path, path.LogBackend)
			}
		}
	}
	return nil
}
