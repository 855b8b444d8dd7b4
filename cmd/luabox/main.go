package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/luabox/luabox/internal/config"
	"github.com/luabox/luabox/internal/logging"
	"github.com/luabox/luabox/internal/sandbox"
)

func main() {
	configPath := flag.String("config", "", "YAML config file")
	expr := flag.String("e", "", "Run the given chunk instead of a script file")
	cpu := flag.Float64("cpu", -1, "CPU limit in seconds (0 = unlimited)")
	mem := flag.String("mem", "", "Memory limit, bytes or size-suffixed (64M, 2G)")
	check := flag.Bool("check", false, "Syntax-check the script and exit")
	flag.Parse()

	if !sandbox.Available() {
		log.Fatal("embedded Lua engine is not available")
	}

	cfg := loadConfig(*configPath)
	if *cpu >= 0 {
		cfg.Sandbox.CPUSeconds = *cpu
	}
	if *mem != "" {
		cfg.Sandbox.MemoryBytes = config.ByteSize(config.ParseByteSize(*mem))
	}

	logger, err := logging.New(logging.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
	})
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	rt, err := sandbox.New(sandbox.Config{
		CPUSeconds:  cfg.Sandbox.CPUSeconds,
		MemoryBytes: int64(cfg.Sandbox.MemoryBytes),
		LogErrors:   cfg.Logging.Errors,
	}, sandbox.WithLogger(logger))
	if err != nil {
		log.Fatalf("Failed to create runtime: %v", err)
	}
	defer rt.Close()

	source := *expr
	if source == "" {
		if flag.NArg() < 1 {
			fmt.Fprintln(os.Stderr, "usage: luabox [flags] script.lua")
			flag.PrintDefaults()
			os.Exit(2)
		}
		data, err := os.ReadFile(flag.Arg(0))
		if err != nil {
			log.Fatalf("Failed to read script: %v", err)
		}
		source = string(data)
	}

	if *check {
		if !rt.Validate(source) {
			msg, _ := rt.LastErrorMessage()
			fmt.Fprintln(os.Stderr, msg)
			os.Exit(1)
		}
		return
	}

	result, err := rt.Execute(source)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if result != nil {
		fmt.Println(result)
	}
}

func loadConfig(path string) *config.Config {
	if path == "" {
		return config.LoadOrDefault()
	}
	cfg, err := config.LoadFile(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}
