package configutil

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/kelseyhightower/envconfig"
	"github.com/titanous/json5"
)

// ReadConfig reads a json5 configuration file, `name` should come with a file extension.
// It merges the following files, where higher number is more prioritized:
// 1. <name>.<ext>
// 2. <name>.local.<ext>
//
// os.ErrNotExist is returned when neither file exists.
func ReadConfig[T any](name string) (T, error) {
	var out T
	allNotFound := true

	ext := filepath.Ext(name)
	prefix := strings.TrimSuffix(name, ext)

	defaultFile, err := os.ReadFile(name)
	if err != nil && !os.IsNotExist(err) {
		return out, err
	}
	if len(defaultFile) > 0 {
		err = json5.Unmarshal(defaultFile, &out)
		if err != nil {
			return out, fmt.Errorf("parse %s: %w", name, err)
		}
		allNotFound = false
	}

	localFilepath := fmt.Sprintf("%s.local%s", prefix, ext)
	localFile, err := os.ReadFile(localFilepath)
	if err != nil && !os.IsNotExist(err) {
		return out, err
	}
	if len(localFile) > 0 {
		var override T
		err = json5.Unmarshal(localFile, &override)
		if err != nil {
			return out, fmt.Errorf("parse %s: %w", localFilepath, err)
		}
		err = mergo.Merge(&out, override, mergo.WithOverride)
		if err != nil {
			return out, err
		}
		slog.Info("merging config with local overrides", "local", localFilepath)
		allNotFound = false
	}

	if allNotFound {
		return out, os.ErrNotExist
	}

	return out, nil
}

// ReadOptional is ReadConfig, but a missing file yields the zero value instead of an error.
func ReadOptional[T any](name string) (T, error) {
	out, err := ReadConfig[T](name)
	if errors.Is(err, os.ErrNotExist) {
		return out, nil
	}
	return out, err
}

// OverlayEnv reads environment variables under prefix into a fresh T using envconfig
// tags and merges every non-zero field on top of base.
func OverlayEnv[T any](prefix string, base T) (T, error) {
	var env T
	err := envconfig.Process(prefix, &env)
	if err != nil {
		return base, fmt.Errorf("read env: %w", err)
	}
	err = mergo.Merge(&base, env, mergo.WithOverride)
	if err != nil {
		return base, err
	}
	return base, nil
}
