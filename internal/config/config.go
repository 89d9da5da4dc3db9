package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/minimario/symlaunch/pkg/models"
)

// Defaults mirroring the reference CVRP-20 launch pair
const (
	DefaultPython  = "python"
	DefaultScript  = "run.py"
	DefaultStagger = 5 * time.Second
	DefaultLogDir  = "logs"
)

// Config holds launcher-level settings resolved from defaults, the config
// file, and SYMLAUNCH_* environment variables (in that order)
type Config struct {
	Python     string        `mapstructure:"python"`
	Script     string        `mapstructure:"script"`
	Stagger    time.Duration `mapstructure:"stagger"`
	LogDir     string        `mapstructure:"log_dir"`
	LogLevel   string        `mapstructure:"log_level"`
	LogJSON    bool          `mapstructure:"log_json"`
	StatusAddr string        `mapstructure:"status_addr"`
}

// Load resolves the launcher configuration. cfgFile may be empty, in which
// case $HOME/.symlaunch/config.yaml is used when present.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("python", DefaultPython)
	v.SetDefault("script", DefaultScript)
	v.SetDefault("stagger", DefaultStagger)
	v.SetDefault("log_dir", DefaultLogDir)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
	v.SetDefault("status_addr", "")

	v.SetEnvPrefix("SYMLAUNCH")
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", cfgFile, err)
		}
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".symlaunch"))
			v.SetConfigName("config")
			v.SetConfigType("yaml")
			// Missing default config is fine
			_ = v.ReadInConfig()
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}

// planFile is the YAML schema of a plan file. Stagger is a duration string
// ("5s"); launch entries reuse the models types directly.
type planFile struct {
	Python   string              `yaml:"python"`
	Script   string              `yaml:"script"`
	Stagger  string              `yaml:"stagger"`
	Launches []models.LaunchSpec `yaml:"launches"`
}

// LoadPlan reads a plan file and fills unset fields from cfg
func LoadPlan(path string, cfg *Config) (models.Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Plan{}, fmt.Errorf("failed to read plan %s: %w", path, err)
	}

	var pf planFile
	if err := yaml.Unmarshal(data, &pf); err != nil {
		return models.Plan{}, fmt.Errorf("failed to parse plan %s: %w", path, err)
	}

	plan := models.Plan{
		Python:   pf.Python,
		Script:   pf.Script,
		Stagger:  cfg.Stagger,
		Launches: pf.Launches,
	}
	if plan.Python == "" {
		plan.Python = cfg.Python
	}
	if plan.Script == "" {
		plan.Script = cfg.Script
	}
	if pf.Stagger != "" {
		d, err := time.ParseDuration(pf.Stagger)
		if err != nil {
			return models.Plan{}, fmt.Errorf("plan %s: bad stagger %q: %w", path, pf.Stagger, err)
		}
		plan.Stagger = d
	}

	if err := plan.Validate(); err != nil {
		return models.Plan{}, err
	}
	return plan, nil
}

// DefaultPlan returns the built-in CVRP-20 pair: a plain run on GPU 0 and
// an equivariance-supervised run on GPU 1, staggered so the first claims
// its device before the second starts.
func DefaultPlan(cfg *Config) models.Plan {
	base := models.TrainSpec{
		Problem:   "cvrp",
		GraphSize: 20,
		NAug:      2,
	}

	supervised := base
	supervised.SuperviseLambda = 0.1
	supervised.EquivariantSamples = 5

	return models.Plan{
		Python:  cfg.Python,
		Script:  cfg.Script,
		Stagger: cfg.Stagger,
		Launches: []models.LaunchSpec{
			{GPU: 0, Train: base},
			{GPU: 1, Train: supervised},
		},
	}
}
