// Package config provides configuration management for the sandbox.
//
// Configuration loads from environment variables with sensible
// defaults; a YAML file can serve as the base layer for deployments
// that prefer files over env.
//
// Configuration Sections:
//   - Sandbox: CPU and memory ceilings (0 = unlimited)
//   - Logging: failure logging toggle, level, dev/prod encoding
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("cpu limit: %vs\n", cfg.Sandbox.CPUSeconds)
//
// Environment Variables:
//   - SANDBOX_CPU_SECONDS, SANDBOX_MEMORY_BYTES
//   - LOG_ERRORS, LOG_LEVEL, LOG_DEV
//
// SANDBOX_MEMORY_BYTES accepts raw byte counts or size-suffixed
// strings ("64M", "2G", "128K").
package config
