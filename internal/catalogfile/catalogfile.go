// Package catalogfile resolves the MCP server catalog a gateway process
// boots from: a custom path when one is configured and exists, otherwise
// the bundled default embedded at build time. Grounded on the original
// implementation's MCPParamsManager._load_servers_payload fallback chain.
package catalogfile

import (
	_ "embed"
	"fmt"
	"log/slog"
	"os"
)

//go:embed default_mcp_servers.json
var defaultCatalog []byte

// Resolve returns the catalog bytes to feed an mcpmgr.Loader. If path is
// non-empty and the file exists, its contents win; otherwise the bundled
// default is returned. A non-empty path that exists but cannot be read is
// a hard error — an operator who named a file expects it to be used.
func Resolve(path string, logger *slog.Logger) ([]byte, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			logger.Info("catalogfile: loading servers from custom path", "path", path)
			return data, nil
		case os.IsNotExist(err):
			logger.Warn("catalogfile: custom path does not exist, falling back to bundled defaults", "path", path)
		default:
			return nil, fmt.Errorf("catalogfile: reading %s: %w", path, err)
		}
	}
	logger.Info("catalogfile: using bundled default catalog")
	return defaultCatalog, nil
}

// Default returns the bundled default catalog bytes directly, bypassing
// any filesystem lookup.
func Default() []byte {
	return defaultCatalog
}
