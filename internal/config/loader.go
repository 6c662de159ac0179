package config

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"strel-optimizer/internal/optimizer"
)

// EnvPrefix prefixes every environment override, e.g. STRELOPT_DATASET_ROOT
const EnvPrefix = "STRELOPT"

// flagBindings maps viper keys to pflag names
var flagBindings = map[string]string{
	"dataset.root":               "dataset-root",
	"dataset.channel":            "channel",
	"engine.backend":             "backend",
	"engine.mask_policy":         "mask-policy",
	"evaluation.workers":         "workers",
	"evaluation.use_mask":        "use-mask",
	"evaluation.curve_order":     "curve-order",
	"enhance.mode":               "mode",
	"enhance.post_steps":         "post-steps",
	"optimizer.radius":           "radius",
	"optimizer.outer_iterations": "outer",
	"optimizer.inner_iterations": "inner",
	"optimizer.seed":             "seed",
	"optimizer.initial_shape":    "initial-shape",
	"output.dir":                 "output",
	"log.level":                  "log-level",
	"log.debug":                  "debug",
	"metrics.addr":               "metrics-addr",
}

func setDefaults(v *viper.Viper) {
	opt := optimizer.DefaultConfig()

	v.SetDefault("dataset.root", "data")
	v.SetDefault("dataset.image_dir", "training")
	v.SetDefault("dataset.groundtruth_dir", "training/groundtruth")
	v.SetDefault("dataset.mask_dir", "training/mask")
	v.SetDefault("dataset.image_pattern", "%d_training.pgm")
	v.SetDefault("dataset.groundtruth_pattern", "%d_manual1.pgm")
	v.SetDefault("dataset.mask_pattern", "%d_training_mask.pgm")
	v.SetDefault("dataset.first", 21)
	v.SetDefault("dataset.count", 20)
	v.SetDefault("dataset.channel", "luma")

	v.SetDefault("engine.backend", BackendNative)
	v.SetDefault("engine.mask_policy", "sentinel")

	v.SetDefault("evaluation.use_mask", true)
	v.SetDefault("evaluation.workers", 0)
	v.SetDefault("evaluation.curve_order", "roc")

	v.SetDefault("enhance.mode", "contrast")
	v.SetDefault("enhance.mask_morphology", false)
	v.SetDefault("enhance.post_steps", []string{})

	v.SetDefault("optimizer.radius", opt.Radius)
	v.SetDefault("optimizer.inner_iterations", opt.InnerIterations)
	v.SetDefault("optimizer.outer_iterations", opt.OuterIterations)
	v.SetDefault("optimizer.inner_change_percent", opt.InnerChangePercent)
	v.SetDefault("optimizer.outer_change_percent", opt.OuterChangePercent)
	v.SetDefault("optimizer.seed", opt.Seed)
	v.SetDefault("optimizer.initial_shape", "diamond")

	v.SetDefault("sweep.shapes", []string{"diamond", "disk"})
	v.SetDefault("sweep.radii", []int{2, 4, 6, 8})

	v.SetDefault("output.dir", "results")
	v.SetDefault("output.previews", true)
	v.SetDefault("output.plots", true)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.debug", false)

	v.SetDefault("metrics.addr", "")
}

// Load resolves the configuration with precedence flags > env > file >
// defaults and validates it. configFile and flagSet may be empty.
func Load(configFile string, flagSet *flag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", configFile, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flagSet != nil {
		for key, name := range flagBindings {
			if f := flagSet.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"file":    v.ConfigFileUsed(),
		"dataset": cfg.Dataset.Root,
		"backend": cfg.Engine.Backend,
	}).Debug("Configuration loaded")
	return cfg, nil
}
