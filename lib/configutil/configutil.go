package configutil

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/titanous/json5"
)

// LayerPaths returns the files ReadConfig reads for a config name, lowest priority first.
// `runharvest.json5` yields `runharvest.json5` and `runharvest.local.json5`.
func LayerPaths(name string) []string {
	ext := filepath.Ext(name)
	prefix := strings.TrimSuffix(name, ext)
	return []string{
		name,
		fmt.Sprintf("%s.local%s", prefix, ext),
	}
}

func readLayer[T any](path string) (T, bool, error) {
	var out T
	buf, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return out, false, nil
	}
	if err != nil {
		return out, false, err
	}
	if len(strings.TrimSpace(string(buf))) == 0 {
		return out, false, nil
	}
	err = json5.Unmarshal(buf, &out)
	if err != nil {
		return out, false, fmt.Errorf("parse %s: %w", path, err)
	}
	return out, true, nil
}

// ReadConfig reads every layer of a configuration file, later layers override fields of
// earlier ones that they set. It returns an error wrapping fs.ErrNotExist when no layer exists.
func ReadConfig[T any](name string) (T, error) {
	var out T
	found := false

	for _, path := range LayerPaths(name) {
		layer, ok, err := readLayer[T](path)
		if err != nil {
			return out, err
		}
		if !ok {
			continue
		}
		if found {
			slog.Info("merging config with local overrides", "local", path)
		}
		err = mergo.Merge(&out, layer, mergo.WithOverride)
		if err != nil {
			return out, fmt.Errorf("merge %s: %w", path, err)
		}
		found = true
	}

	if !found {
		return out, fmt.Errorf("config %s: %w", name, fs.ErrNotExist)
	}
	return out, nil
}

// ReadRecursively is ReadConfig but it walks up from the working directory until the
// filesystem root looking for the first directory that has the config.
func ReadRecursively[T any](name string) (T, error) {
	var out T
	current, err := os.Getwd()
	if err != nil {
		return out, err
	}

	for {
		config, err := ReadConfig[T](filepath.Join(current, name))
		if err == nil {
			return config, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return out, err
		}
		parent := filepath.Dir(current)
		if parent == current {
			return out, fmt.Errorf("config %s: %w", name, fs.ErrNotExist)
		}
		current = parent
	}
}
