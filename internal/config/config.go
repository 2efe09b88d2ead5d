package config

import (
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Project struct {
		// RootPath is the base directory against which non-relative
		// imports and re-exports resolve, regardless of where a file
		// sits on disk.
		RootPath string `yaml:"root_path"`
	} `yaml:"project"`
	Resolver struct {
		// MaxSteps bounds a single query's path expansions as a guard
		// against rule-table bugs. Zero means the default.
		MaxSteps int `yaml:"max_steps"`
	} `yaml:"resolver"`
}

func LoadConfig(path string) (*Config, error) {
	// 1. Load .env if exists
	_ = godotenv.Load()

	var cfg Config

	// 2. Load YAML config when present; a missing file just means defaults.
	if file, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(file, &cfg); err != nil {
			return nil, err
		}
	}

	// 3. Override with Environment Variables if present
	if root := os.Getenv("PYSCOPE_ROOT_PATH"); root != "" {
		cfg.Project.RootPath = root
	}

	return &cfg, nil
}
