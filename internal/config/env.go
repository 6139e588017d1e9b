package config

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix selects environment overrides. Nested keys are separated by a
// double underscore: MEMOCARE_HTTP__JWT_SECRET sets http.jwt_secret.
// A variable that names no config key fails the load like an unknown file key.
const EnvPrefix = "MEMOCARE_"

// envKey maps an environment variable name to a config path.
func envKey(name string) string {
	rest := strings.TrimPrefix(name, EnvPrefix)
	if rest == "" {
		return ""
	}
	return strings.Join(strings.Split(strings.ToLower(rest), "__"), ".")
}

// unmarshal decodes the merged layers into Config. Env values arrive as
// strings; weak typing converts them and unknown keys are errors.
func unmarshal(k *koanf.Koanf) (*Config, error) {
	var cfg Config
	err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "json",
		DecoderConfig: &mapstructure.DecoderConfig{
			DecodeHook:       splitList,
			WeaklyTypedInput: true,
			ErrorUnused:      true,
			TagName:          "json",
			Result:           &cfg,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// splitList turns "a, b" into a list for slice fields.
func splitList(from, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to.Kind() != reflect.Slice {
		return data, nil
	}
	parts := strings.Split(fmt.Sprint(data), ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out, nil
}
