package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestNewConfig(t *testing.T) {
	cfg, err := NewConfig(writeConfig(t, `
jwksUrl: https://login.example.com/keys
logging:
  level: debug
  format: console
paths:
  - path: /wfs/{workspace}
    backend:
      slug: geoserver
      path: /geoserver/{workspace}/wfs
    logBackend: loki
    maxFeatures: 100
  - path: /check
    mode: inspect
    summaryRewrite: .typeNames
backends:
  geoserver:
    baseUrl: https://geoserver.example.com
    auth:
      basic:
        username: proxy
        password: $GEOSERVER_PASSWORD
logBackends:
  loki:
    baseUrl: http://loki:3100/loki
    headers:
      X-Scope-OrgID: wfs
`))
	require.NoError(t, err)

	require.Equal(t, ":8080", cfg.ListenAddress)
	require.Equal(t, "/metrics", cfg.MetricsPath)
	require.Equal(t, int64(64<<20), cfg.MaxBodySize)
	require.Equal(t, "debug", cfg.Logging.Level)

	require.Len(t, cfg.Paths, 2)
	require.Equal(t, ModeForward, cfg.Paths[0].Mode)
	require.Equal(t, "/geoserver/{workspace}/wfs", cfg.Paths[0].Backend.Path)
	require.Equal(t, 100, cfg.Paths[0].MaxFeatures)
	require.Equal(t, ModeInspect, cfg.Paths[1].Mode)
	require.Equal(t, ".typeNames", cfg.Paths[1].SummaryRewrite)

	require.Equal(t, "$GEOSERVER_PASSWORD", cfg.Backends["geoserver"].Auth.Basic.Password)
	require.Equal(t, "wfs", cfg.LogBackends["loki"].Headers["X-Scope-OrgID"])
}

func TestNewConfigKeepsExplicitValues(t *testing.T) {
	cfg, err := NewConfig(writeConfig(t, `
listenAddress: 127.0.0.1:9000
metricsPath: /internal/metrics
maxBodySize: 1024
`))
	require.NoError(t, err)
	require.Equal(t, "127.0.0.1:9000", cfg.ListenAddress)
	require.Equal(t, "/internal/metrics", cfg.MetricsPath)
	require.Equal(t, int64(1024), cfg.MaxBodySize)
}

func TestNewConfigErrors(t *testing.T) {
	cases := map[string]string{
		"unknown backend": `
paths:
  - path: /wfs
    backend:
      slug: missing
`,
		"unknown mode": `
paths:
  - path: /wfs
    mode: rewrite
`,
		"unknown log backend": `
paths:
  - path: /wfs
    mode: inspect
    logBackend: missing
`,
		"malformed": `paths: [`,
	}
	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewConfig(writeConfig(t, content))
			require.Error(t, err)
		})
	}

	_, err := NewConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
