// Package config loads the engine's startup configuration from YAML,
// mirroring pkg/logger.Config's yaml-tag style (SPEC_FULL §10.2).
package config

import (
	"fmt"
	"os"

	"github.com/gojodb/txcore/pkg/logger"
	"github.com/gojodb/txcore/pkg/telemetry"
	"gopkg.in/yaml.v3"
)

// StorageConfig sizes one paged file's on-disk layout and buffer pool.
type StorageConfig struct {
	// PageSize is the fixed page size in bytes for every heap and index
	// file (spec §6, typically 4096).
	PageSize int `yaml:"page_size"`
	// BufferPoolPages is the number of frames each file's buffer pool
	// manager holds.
	BufferPoolPages int `yaml:"buffer_pool_pages"`
}

// EngineConfig is the engine's full startup configuration: storage layout
// plus the ambient logging/telemetry config every subsystem shares.
type EngineConfig struct {
	Storage   StorageConfig    `yaml:"storage"`
	Logger    logger.Config    `yaml:"logger"`
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// Default returns a sane, ready-to-run configuration: 4KiB pages, a
// 256-frame buffer pool, console logging at info level, telemetry disabled.
func Default() EngineConfig {
	return EngineConfig{
		Storage: StorageConfig{
			PageSize:        4096,
			BufferPoolPages: 256,
		},
		Logger: logger.Config{
			Level:      "info",
			Format:     "console",
			OutputFile: "stdout",
		},
		Telemetry: telemetry.Config{
			Enabled: false,
		},
	}
}

// Load reads an EngineConfig from a YAML file at path, starting from
// Default() so any field the file omits keeps its default.
func Load(path string) (EngineConfig, error) {
	cfg := Default()
	buf, err := os.ReadFile(path)
	if err != nil {
		return EngineConfig{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return EngineConfig{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
