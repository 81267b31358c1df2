package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// PipelineYAMLConfig represents the complete pipeline.yaml file structure.
type PipelineYAMLConfig struct {
	Queue        *QueueConfig       `yaml:"queue"`
	Retention    *RetentionConfig   `yaml:"retention"`
	Budget       *BudgetConfig      `yaml:"budget"`
	Lock         *LockConfig        `yaml:"lock"`
	Approval     *ApprovalConfig    `yaml:"approval"`
	Notify       *NotifyConfig      `yaml:"notify"`
	EventTaskMap EventTaskMapConfig `yaml:"event_task_map"`
	TaskDefaults TaskDefaultsConfig `yaml:"task_defaults"`
}

// Initialize loads, validates, and returns ready-to-use configuration. This
// is the primary entry point for configuration loading.
//
// Steps performed:
//  1. Load pipeline.yaml from configDir
//  2. Expand environment variables
//  3. Parse YAML into structs
//  4. Merge built-in defaults with user overrides
//  5. Validate all configuration
//  6. Return Config ready for use
func Initialize(ctx context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("initializing configuration")

	cfg, err := load(ctx, configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("configuration initialized",
		"event_types_mapped", stats.EventTypesMapped,
		"task_types", stats.TaskTypes)

	return cfg, nil
}

func load(_ context.Context, configDir string) (*Config, error) {
	loader := &configLoader{configDir: configDir}

	yamlCfg, err := loader.loadPipelineYAML()
	if err != nil {
		return nil, NewLoadError("pipeline.yaml", err)
	}

	queueCfg := DefaultQueueConfig()
	if yamlCfg.Queue != nil {
		if err := mergo.Merge(queueCfg, yamlCfg.Queue, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge queue config: %w", err)
		}
	}

	retentionCfg := DefaultRetentionConfig()
	if yamlCfg.Retention != nil {
		if err := mergo.Merge(retentionCfg, yamlCfg.Retention, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge retention config: %w", err)
		}
	}

	budgetCfg := DefaultBudgetConfig()
	if yamlCfg.Budget != nil {
		if err := mergo.Merge(budgetCfg, yamlCfg.Budget, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge budget config: %w", err)
		}
	}

	lockCfg := DefaultLockConfig()
	if yamlCfg.Lock != nil {
		if err := mergo.Merge(lockCfg, yamlCfg.Lock, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge lock config: %w", err)
		}
	}

	approvalCfg := DefaultApprovalConfig()
	if yamlCfg.Approval != nil {
		if err := mergo.Merge(approvalCfg, yamlCfg.Approval, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge approval config: %w", err)
		}
	}

	notifyCfg := DefaultNotifyConfig()
	if yamlCfg.Notify != nil {
		if err := mergo.Merge(notifyCfg, yamlCfg.Notify, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge notify config: %w", err)
		}
	}

	eventTaskMap := mergeEventTaskMap(DefaultEventTaskMap(), yamlCfg.EventTaskMap)
	taskDefaults := mergeTaskDefaults(DefaultTaskDefaults(), yamlCfg.TaskDefaults)

	return &Config{
		configDir:    configDir,
		Queue:        queueCfg,
		Retention:    retentionCfg,
		Budget:       budgetCfg,
		Lock:         lockCfg,
		Approval:     approvalCfg,
		Notify:       notifyCfg,
		EventTaskMap: eventTaskMap,
		TaskDefaults: taskDefaults,
	}, nil
}

func validate(cfg *Config) error {
	validator := NewValidator(cfg)
	return validator.ValidateAll()
}

type configLoader struct {
	configDir string
}

func (l *configLoader) loadYAML(filename string, target any) error {
	path := filepath.Join(l.configDir, filename)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrConfigNotFound, path)
		}
		return err
	}

	// Expand environment variables using {{.VAR}} template syntax. Parse and
	// execution errors pass the original data through unchanged, letting the
	// YAML parser report the clearer error.
	data = ExpandEnv(data)

	if err := yaml.Unmarshal(data, target); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}

	return nil
}

func (l *configLoader) loadPipelineYAML() (*PipelineYAMLConfig, error) {
	cfg := &PipelineYAMLConfig{
		EventTaskMap: make(EventTaskMapConfig),
		TaskDefaults: make(TaskDefaultsConfig),
	}

	if err := l.loadYAML("pipeline.yaml", cfg); err != nil {
		if errors.Is(err, ErrConfigNotFound) {
			return cfg, nil
		}
		return cfg, err
	}

	return cfg, nil
}
