package observability

import (
	"strings"

	"github.com/smallbiznis/recurring/internal/config"
)

// Config is the slice of application config the logger, tracer and meter
// providers need.
type Config struct {
	ServiceName string
	Environment string
	Version     string

	LogLevel  string
	LogFormat string

	OtelEnabled          bool
	OtelExporterEndpoint string
	OtelExporterProtocol string
	OtelSamplingRatio    float64
}

var devEnvironments = map[string]bool{
	"dev":         true,
	"development": true,
	"local":       true,
	"test":        true,
}

func LoadConfig(cfg config.Config) Config {
	serviceName := strings.TrimSpace(cfg.AppName)
	if serviceName == "" {
		serviceName = "recurring"
	}
	return Config{
		ServiceName:          serviceName,
		Environment:          strings.TrimSpace(cfg.Environment),
		Version:              strings.TrimSpace(cfg.AppVersion),
		LogLevel:             cfg.LogLevel,
		LogFormat:            cfg.LogFormat,
		OtelEnabled:          cfg.OtelEnabled,
		OtelExporterEndpoint: cfg.OTLPEndpoint,
		OtelExporterProtocol: cfg.OTLPProtocol,
		OtelSamplingRatio:    cfg.OtelSamplingRatio,
	}
}

// Debug turns on stack traces and verbose gin output outside production.
func (c Config) Debug() bool {
	if strings.EqualFold(strings.TrimSpace(c.LogLevel), "debug") {
		return true
	}
	return devEnvironments[strings.ToLower(strings.TrimSpace(c.Environment))]
}
