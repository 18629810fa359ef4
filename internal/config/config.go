package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AlexKimmel/bodygate/internal/body"
	"github.com/AlexKimmel/bodygate/internal/stream"
)

type Server struct {
	Addr           string `yaml:"addr"`
	ReadTimeoutMS  int    `yaml:"read_timeout_ms"`
	WriteTimeoutMS int    `yaml:"write_timeout_ms"`
	IdleTimeoutMS  int    `yaml:"idle_timeout_ms"`
	MaxBodyBytes   int64  `yaml:"max_body_bytes"`
}

type Observability struct {
	LogLevel       string `yaml:"log_level"`       // "debug","info","warn","error"
	PrometheusPath string `yaml:"prometheus_path"` // e.g. "/metrics"
}

type Body struct {
	Format   string `yaml:"format"`    // raw, string, form, json, yaml
	MaxBytes *int64 `yaml:"max_bytes"` // absent = unbounded
}

type Route struct {
	ID    string `yaml:"id"`
	Match struct {
		PathPrefix string   `yaml:"path_prefix"`
		Methods    []string `yaml:"methods"`
	} `yaml:"match"`
	Body Body `yaml:"body"`
}

type Root struct {
	Server        Server        `yaml:"server"`
	Observability Observability `yaml:"observability"`
	Routes        []Route       `yaml:"routes"`
}

func (s Server) ReadTimeout() time.Duration {
	if s.ReadTimeoutMS == 0 {
		return 5 * time.Second
	}
	return time.Duration(s.ReadTimeoutMS) * time.Millisecond
}

func (s Server) WriteTimeout() time.Duration {
	if s.WriteTimeoutMS == 0 {
		return 10 * time.Second
	}
	return time.Duration(s.WriteTimeoutMS) * time.Millisecond
}

func (s Server) IdleTimeout() time.Duration {
	if s.IdleTimeoutMS == 0 {
		return 60 * time.Second
	}
	return time.Duration(s.IdleTimeoutMS) * time.Millisecond
}

// MaxBody is the server wide body ceiling, 10MB unless configured.
func (s Server) MaxBody() stream.Limit {
	if s.MaxBodyBytes == 0 {
		return stream.MaxBytes(10 << 20)
	}
	return stream.MaxBytes(s.MaxBodyBytes)
}

func (b Body) Limit() stream.Limit {
	if b.MaxBytes == nil {
		return stream.Unlimited()
	}
	return stream.MaxBytes(*b.MaxBytes)
}

// BodyFormat is only valid after Load or Parse succeeded.
func (b Body) BodyFormat() body.Format {
	f, _ := body.ParseFormat(b.Format)
	return f
}

func Load(path string) (*Root, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(b)
}

// Parse decodes a YAML config, fills in defaults and validates it.
func Parse(b []byte) (*Root, error) {
	var cfg Root
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Observability.LogLevel == "" {
		cfg.Observability.LogLevel = "info"
	}
	if cfg.Observability.PrometheusPath == "" {
		cfg.Observability.PrometheusPath = "/metrics"
	}
	for i := range cfg.Routes {
		rt := &cfg.Routes[i]
		if rt.ID == "" {
			rt.ID = fmt.Sprintf("route-%d", i)
		}
		if len(rt.Match.Methods) == 0 {
			rt.Match.Methods = []string{"POST"}
		}
		for j, m := range rt.Match.Methods {
			rt.Match.Methods[j] = strings.ToUpper(strings.TrimSpace(m))
		}
		if rt.Body.Format == "" {
			rt.Body.Format = string(body.FormatRaw)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Root) validate() error {
	var errs []error

	if cfg.Server.MaxBodyBytes < 0 {
		errs = append(errs, fmt.Errorf("server.max_body_bytes: %w", cfg.Server.MaxBody().Validate()))
	}

	seen := make(map[string]struct{}, len(cfg.Routes))
	for i, rt := range cfg.Routes {
		if _, dup := seen[rt.ID]; dup {
			errs = append(errs, fmt.Errorf("routes[%d]: duplicate id %q", i, rt.ID))
		}
		seen[rt.ID] = struct{}{}

		if !strings.HasPrefix(rt.Match.PathPrefix, "/") {
			errs = append(errs, fmt.Errorf("routes[%d] %q: path_prefix must start with /", i, rt.ID))
		}
		if _, err := body.ParseFormat(rt.Body.Format); err != nil {
			errs = append(errs, fmt.Errorf("routes[%d] %q: %w", i, rt.ID, err))
		}
		if err := rt.Body.Limit().Validate(); err != nil {
			errs = append(errs, fmt.Errorf("routes[%d] %q: max_bytes: %w", i, rt.ID, err))
		}
	}

	return errors.Join(errs...)
}
