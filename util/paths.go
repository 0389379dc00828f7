package util

import (
	"os"
	"path/filepath"
)

// GetConfigDir returns the per-user config directory for stegodon,
// creating it if necessary.
func GetConfigDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	dir := filepath.Join(base, Name)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return dir, nil
}

// ResolveFilePath looks for name in the current working directory first,
// falling back to the per-user config directory.
func ResolveFilePath(name string) string {
	if _, err := os.Stat(name); err == nil {
		return name
	}
	if dir, err := GetConfigDir(); err == nil {
		return filepath.Join(dir, name)
	}
	return name
}

// ResolveFilePathWithSubdir behaves like ResolveFilePath but looks inside
// subdir of the config directory (and of the working directory).
func ResolveFilePathWithSubdir(subdir string, name string) string {
	local := filepath.Join(subdir, name)
	if _, err := os.Stat(local); err == nil {
		return local
	}
	if dir, err := GetConfigDir(); err == nil {
		full := filepath.Join(dir, subdir)
		if err := os.MkdirAll(full, 0700); err == nil {
			return filepath.Join(full, name)
		}
	}
	return local
}
