package main

import (
	"bytes"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ZentaChain/overlay-node/pkg/config"
	"github.com/ZentaChain/overlay-node/pkg/protocol"
	"github.com/ZentaChain/overlay-node/pkg/storage"
)

const testPeer = "0b0c7b2bc6b7f4cb0d2d41a5a0c2c2d3f0e4b9a1c3d5e7f90123456789abcdef"

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "overlay-node.yaml")
	content := fmt.Sprintf("identity_path: %s\nroutes_db: %s\npow_difficulty: 0\n%s",
		filepath.Join(dir, "identity.yaml"), filepath.Join(dir, "routes.db"), body)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func mustKey(t *testing.T, s string) protocol.PublicKey {
	t.Helper()
	k, err := protocol.ParsePublicKey(s)
	require.NoError(t, err)
	return k
}

func execute(args ...string) (string, error) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		level, format string
		wantErr       bool
	}{
		{level: "info", format: "text"},
		{level: "debug", format: "json"},
		{level: "warn", format: ""},
		{level: "loud", format: "text", wantErr: true},
		{level: "info", format: "xml", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.level+"/"+tt.format, func(t *testing.T) {
			var buf bytes.Buffer
			logger, err := newLogger(&buf, tt.level, tt.format)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			logger.Warn("hello")
			assert.Contains(t, buf.String(), "hello")
		})
	}
}

func TestLoadConfigAppliesFlags(t *testing.T) {
	path := writeConfig(t, "log_level: warn\n")

	cfg, err := loadConfig(&rootFlags{configPath: path})
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)

	cfg, err = loadConfig(&rootFlags{configPath: path, logLevel: "debug", logFormat: "json"})
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestIdentityCommands(t *testing.T) {
	path := writeConfig(t, "")

	out, err := execute("--config", path, "identity", "generate")
	require.NoError(t, err)
	assert.Contains(t, out, "Address:")

	_, err = execute("--config", path, "identity", "generate")
	assert.ErrorContains(t, err, "already exists")

	out, err = execute("--config", path, "identity", "show")
	require.NoError(t, err)
	address := strings.Fields(strings.SplitN(out, "Address:", 2)[1])[0]
	assert.Len(t, address, 64)

	_, err = execute("--config", path, "identity", "generate", "--force", "--difficulty", "1")
	require.NoError(t, err)
	out, err = execute("--config", path, "identity", "show")
	require.NoError(t, err)
	assert.NotContains(t, out, address, "a forced generate replaces the identity")
}

func TestRoutesCommands(t *testing.T) {
	path := writeConfig(t, "")

	out, err := execute("--config", path, "routes", "add", testPeer, "/ip4/192.0.2.1/udp/9000")
	require.NoError(t, err)
	assert.Contains(t, out, "192.0.2.1:9000")

	out, err = execute("--config", path, "routes", "list")
	require.NoError(t, err)
	assert.Contains(t, out, testPeer)
	assert.Contains(t, out, "/ip4/192.0.2.1/udp/9000")

	_, err = execute("--config", path, "routes", "add", "nope", "192.0.2.1:9000")
	assert.Error(t, err)

	_, err = execute("--config", path, "routes", "remove", testPeer)
	require.NoError(t, err)

	_, err = execute("--config", path, "routes", "remove", testPeer)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRoutesWithoutDatabase(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "overlay-node.yaml")
	require.NoError(t, os.WriteFile(path, []byte("routes_db: \"\"\n"), 0o600))

	_, err := execute("--config", path, "routes", "list")
	assert.ErrorContains(t, err, "routes_db")
}

func TestCollectRoutes(t *testing.T) {
	store, err := storage.NewRouteStore(filepath.Join(t.TempDir(), "routes.db"))
	require.NoError(t, err)
	defer store.Close()

	other := strings.Repeat("ab", 32)
	require.NoError(t, store.Put(storage.Route{
		Peer:     mustKey(t, other),
		Endpoint: netip.MustParseAddrPort("198.51.100.2:7000"),
	}))

	cfg := config.Default()
	cfg.StaticRoutes = []config.Route{{Peer: testPeer, Endpoint: "192.0.2.1:9000"}}

	routes, err := collectRoutes(cfg, store)
	require.NoError(t, err)
	require.Len(t, routes, 2)
	assert.Equal(t, testPeer, routes[0].Peer.String())
	assert.Equal(t, other, routes[1].Peer.String())

	routes, err = collectRoutes(cfg, nil)
	require.NoError(t, err)
	assert.Len(t, routes, 1)

	cfg.StaticRoutes = []config.Route{{Peer: testPeer, Endpoint: "nowhere"}}
	_, err = collectRoutes(cfg, nil)
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, err := execute("version")
	require.NoError(t, err)
	assert.Contains(t, out, "overlay-node dev")
}
