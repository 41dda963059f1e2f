package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. RECIPE_MODEL_DIR
const EnvPrefix = "RECIPE"

// DefaultPath is read when Load is given no path; it may be absent
const DefaultPath = "configs/config.yaml"

// Load reads configuration in order: defaults, the YAML file at path, an
// optional config.<env>.yaml next to it, then RECIPE_* environment
// variables. ${VAR:default} placeholders in the files are expanded first.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	optional := path == ""
	if optional {
		path = DefaultPath
	}
	if err := loadConfigFile(v, path, optional); err != nil {
		return nil, err
	}

	env := os.Getenv(EnvPrefix + "_APP_ENV")
	if env == "" {
		env = v.GetString("app.env")
	}
	if env != "" {
		envFile := filepath.Join(filepath.Dir(path), fmt.Sprintf("config.%s.yaml", env))
		if err := loadConfigFile(v, envFile, true); err != nil {
			return nil, err
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func loadConfigFile(v *viper.Viper, path string, optional bool) error {
	content, err := os.ReadFile(path)
	if err != nil {
		if optional && os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	reader := strings.NewReader(expandEnv(string(content)))
	if v.ConfigFileUsed() == "" {
		if err := v.ReadConfig(reader); err != nil {
			return fmt.Errorf("failed to read processed config %s: %w", path, err)
		}
		v.SetConfigFile(path)
	} else {
		if err := v.MergeConfig(reader); err != nil {
			return fmt.Errorf("failed to merge processed config %s: %w", path, err)
		}
	}

	return nil
}

var placeholder = regexp.MustCompile(`\${(\w+)(:([^}]*))?}`)

// expandEnv replaces ${VAR} and ${VAR:default}; unknown variables without
// a default are left as written
func expandEnv(s string) string {
	return placeholder.ReplaceAllStringFunc(s, func(match string) string {
		sub := placeholder.FindStringSubmatch(match)
		if val, ok := os.LookupEnv(sub[1]); ok {
			return val
		}
		if sub[2] != "" {
			return sub[3]
		}
		return match
	})
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "recipe-gen")
	v.SetDefault("app.env", "development")

	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8501)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "10m")
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("model.dir", "./my_model_files")
	v.SetDefault("model.backend", "tensor")
	v.SetDefault("model.device", "auto")
	v.SetDefault("model.max_model_len", 1024)
	v.SetDefault("model.num_threads", 4)
	v.SetDefault("model.server_url", "")
	v.SetDefault("model.request_timeout", "5m")
	v.SetDefault("model.seed", 0)
	v.SetDefault("model.onnx_library", "")
	v.SetDefault("model.preload", true)
	v.SetDefault("model.prefix_cache.block_size", 8)
	v.SetDefault("model.prefix_cache.blocks", 256)
	v.SetDefault("model.prefix_cache.ttl", "30m")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}
