package config_test

import (
	"fmt"

	"github.com/ajitpratap0/fls/pkg/config"
)

// ExampleDefault shows the defaults applied before any file or flag.
func ExampleDefault() {
	cfg := config.Default()

	fmt.Println(cfg.Engine.Name)
	fmt.Println(cfg.Engine.Compression)
	fmt.Println(cfg.Engine.RowgroupSize())
	fmt.Println(cfg.Validate() == nil)

	// Output:
	// fls
	// zstd
	// 65536
	// true
}

// ExampleEngineConfig_Validate rejects a multi-byte delimiter.
func ExampleEngineConfig_Validate() {
	engine := config.DefaultEngineConfig()
	engine.Delimiter = "||"

	fmt.Println(engine.Validate())

	// Output:
	// config: delimiter must be a single byte, got "||"
}
