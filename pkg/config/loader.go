package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/Dacraezy1/autorig/pkg/errors"
	"github.com/Dacraezy1/autorig/pkg/paths"
)

//go:embed embedded/defaults.toml
var defaultSettings []byte

type rawBytesProvider struct{ bytes []byte }

func (r *rawBytesProvider) ReadBytes() ([]byte, error) { return r.bytes, nil }
func (r *rawBytesProvider) Read() (map[string]interface{}, error) {
	return nil, fmt.Errorf("not implemented")
}

// LoadSettings loads app-level tunables: embedded defaults overridden by
// AUTORIG_* environment variables (double underscore separates key levels,
// e.g. AUTORIG_GIT__MAX_PARALLEL=8).
func LoadSettings() (*Settings, error) {
	k := koanf.New(".")

	if err := k.Load(&rawBytesProvider{bytes: defaultSettings}, toml.Parser()); err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigLoad, "failed to load embedded defaults")
	}

	err := k.Load(env.Provider("AUTORIG_", ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, "AUTORIG_")), "__", ".")
	}), nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrConfigLoad, "failed to load environment overrides")
	}

	return &Settings{
		MaxParallel:       k.Int("git.max_parallel"),
		CommandTimeoutSec: k.Int("exec.command_timeout_sec"),
		GitTimeoutSec:     k.Int("git.timeout_sec"),
	}, nil
}

// LoadRig loads and validates a rig description from a YAML file. When
// profile is non-empty the named overlay from the profiles section is
// merged onto the base configuration before validation.
func LoadRig(path, profile string) (*Rig, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, errors.Wrapf(err, errors.ErrConfigLoad, "rig file not found: %s", path)
	}

	k := koanf.New(".")
	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		return nil, errors.Wrapf(err, errors.ErrConfigParse, "failed to parse %s", path)
	}

	if profile != "" {
		overlay := k.Get("profiles." + profile)
		overlayMap, ok := overlay.(map[string]interface{})
		if !ok {
			return nil, errors.Newf(errors.ErrConfigValid, "unknown profile: %s", profile)
		}
		if err := k.Load(confmap.Provider(overlayMap, "."), nil); err != nil {
			return nil, errors.Wrapf(err, errors.ErrConfigParse, "failed to merge profile %s", profile)
		}
	}

	var rig Rig
	if err := k.Unmarshal("", &rig); err != nil {
		return nil, errors.Wrapf(err, errors.ErrConfigParse, "failed to decode %s", path)
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, errors.ErrConfigLoad, "cannot resolve %s", path)
	}
	rig.Dir = filepath.Dir(abs)

	if err := rig.Validate(); err != nil {
		return nil, err
	}
	return &rig, nil
}

// DefaultRigFile returns the rig file path from AUTORIG_CONFIG or the
// conventional ~/.autorig.yaml location.
func DefaultRigFile() string {
	if p := os.Getenv(paths.EnvRigFile); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "autorig.yaml"
	}
	return home + string(os.PathSeparator) + ".autorig.yaml"
}
