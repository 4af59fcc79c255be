package config

import (
	"os"
	"path/filepath"
	"strings"
)

// ExpandTilde turns a leading ~ or ~/ into the current user's home
// directory. ~user is left alone, as is any path when the home directory
// can't be determined.
func ExpandTilde(path string) string {
	switch {
	case path == "~":
		if home, err := os.UserHomeDir(); err == nil {
			return home
		}
	case strings.HasPrefix(path, "~/"):
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}

// expandPaths expands ~ in every local path of cfg and anchors the data
// files at dir, the directory of the config file.
func expandPaths(cfg *Config, dir string) {
	for _, p := range []*string{
		&cfg.SSH.KeyPrivate,
		&cfg.SSH.KeyPublic,
		&cfg.SSH.KnownHosts,
		&cfg.SSH.ConfigFile,
	} {
		*p = ExpandTilde(*p)
	}
	for _, p := range []*string{
		&cfg.Store.Path,
		&cfg.Index.Path,
		&cfg.Log.File,
	} {
		*p = resolveRelative(dir, ExpandTilde(*p))
	}
}

// configDir returns the directory containing the config file.
func configDir(configPath string) string {
	if configPath == "" {
		return ""
	}
	return filepath.Dir(configPath)
}

// resolveRelative anchors relative data paths at the config file's directory.
func resolveRelative(dir, path string) string {
	if path == "" || dir == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}
