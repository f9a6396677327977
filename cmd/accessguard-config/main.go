package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oarkflow/accessguard"
	"github.com/oarkflow/accessguard/stores"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	switch cmd {
	case "convert":
		handleConvert()
	case "validate":
		handleValidate()
	case "stats":
		handleStats()
	case "apply":
		handleApply()
	default:
		fmt.Printf("Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("accessguard-config - Configuration tool for accessguard")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  accessguard-config convert <input> <output>  - Convert between formats")
	fmt.Println("  accessguard-config validate <file>           - Validate configuration")
	fmt.Println("  accessguard-config stats <file>              - Show configuration statistics")
	fmt.Println("  accessguard-config apply <file>              - Apply configuration to engine")
	fmt.Println()
	fmt.Println("Supported formats: .yaml, .yml, .json")
}

func handleConvert() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: accessguard-config convert <input> <output>")
		os.Exit(1)
	}

	inputFile := os.Args[2]
	outputFile := os.Args[3]

	cfg, err := loadConfig(inputFile)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	if err := saveConfig(cfg, outputFile); err != nil {
		fmt.Printf("Error saving config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Converted %s -> %s\n", inputFile, outputFile)
}

func handleValidate() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: accessguard-config validate <file>")
		os.Exit(1)
	}

	filename := os.Args[2]
	cfg, err := loadConfig(filename)
	if err != nil {
		fmt.Printf("Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		for _, e := range errs {
			fmt.Printf("  %v\n", e)
		}
		os.Exit(1)
	}

	fmt.Printf("Configuration is valid\n")
	fmt.Printf("  Version: %d\n", cfg.Version)
	fmt.Printf("  Rule sets: %d\n", len(cfg.RuleSets))
	fmt.Printf("  Groups: %d\n", len(cfg.Groups))
	fmt.Printf("  View types: %d\n", len(cfg.ViewTypes))
}

func handleStats() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: accessguard-config stats <file>")
		os.Exit(1)
	}

	filename := os.Args[2]
	cfg, err := loadConfig(filename)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	stat, _ := os.Stat(filename)

	fmt.Println("Configuration Statistics")
	fmt.Println("========================")
	if stat != nil {
		fmt.Printf("File size: %d bytes\n", stat.Size())
	}
	fmt.Printf("Version: %d\n", cfg.Version)
	fmt.Println()

	fmt.Println("Components:")
	fmt.Printf("  Rule sets:         %d\n", len(cfg.RuleSets))
	fmt.Printf("  Groups:            %d\n", len(cfg.Groups))
	fmt.Printf("  View types:        %d\n", len(cfg.ViewTypes))
	fmt.Printf("  Model access:      %d\n", len(cfg.ModelAccess))
	fmt.Printf("  Field access:      %d\n", len(cfg.FieldAccess))
	fmt.Printf("  Field conditions:  %d\n", len(cfg.FieldConditions))
	fmt.Printf("  Domain access:     %d\n", len(cfg.DomainAccess))
	fmt.Printf("  Hide buttons/tabs: %d\n", len(cfg.HideButtonsTabs))
	fmt.Printf("  Search panel:      %d\n", len(cfg.SearchPanel))
	fmt.Printf("  Chatter:           %d\n", len(cfg.Chatter))
	fmt.Println()

	if len(cfg.RuleSets) > 0 {
		activeCount := 0
		loginDisabled := 0
		for _, rs := range cfg.RuleSets {
			if rs.Active {
				activeCount++
			}
			if rs.DisableLogin {
				loginDisabled++
			}
		}
		fmt.Println("Rule Set Details:")
		fmt.Printf("  Active:         %d\n", activeCount)
		fmt.Printf("  Login disabled: %d\n", loginDisabled)
		fmt.Println()
	}

	fmt.Println("Engine Configuration:")
	fmt.Printf("  Cache counters: %d\n", cfg.Engine.RistrettoNumCounter)
	fmt.Printf("  Cache max cost: %d\n", cfg.Engine.RistrettoMaxCost)
	fmt.Printf("  Cache buffer:   %d\n", cfg.Engine.RistrettoBuffer)
}

func handleApply() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: accessguard-config apply <file>")
		os.Exit(1)
	}

	filename := os.Args[2]
	cfg, err := loadConfig(filename)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	subRules := stores.NewMemorySubRuleStore()
	engine, err := accessguard.NewEngine(
		stores.NewMemoryRuleSetStore(subRules),
		subRules,
		stores.NewMemoryGroupStore(),
		stores.NewMemoryViewNodeStore(),
		stores.NewMemoryReferenceStore(),
	)
	if err != nil {
		fmt.Printf("Error building engine: %v\n", err)
		os.Exit(1)
	}
	defer engine.Close()

	ctx := context.Background()
	if err := engine.ApplyConfig(ctx, cfg); err != nil {
		fmt.Printf("Error applying config: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Configuration applied successfully\n")
	fmt.Printf("  Rule sets loaded: %d\n", len(cfg.RuleSets))
	fmt.Printf("  Groups loaded: %d\n", len(cfg.Groups))
}

func loadConfig(filename string) (*accessguard.Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(filename))

	switch ext {
	case ".yaml", ".yml":
		loader := accessguard.NewConfigLoader()
		return loader.LoadYAML(data)
	case ".json":
		loader := accessguard.NewConfigLoader()
		return loader.LoadJSON(data)
	default:
		return nil, fmt.Errorf("unsupported file format: %s", ext)
	}
}

func saveConfig(cfg *accessguard.Config, filename string) error {
	ext := strings.ToLower(filepath.Ext(filename))

	var data []byte
	var err error

	switch ext {
	case ".yaml", ".yml":
		data, err = cfg.ToYAML()
	case ".json":
		data, err = cfg.ToJSON()
	default:
		return fmt.Errorf("unsupported file format: %s", ext)
	}

	if err != nil {
		return err
	}

	return os.WriteFile(filename, data, 0644)
}
