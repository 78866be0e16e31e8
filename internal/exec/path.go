package exec

import (
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
)

// BinDirs returns the node_modules/.bin directory of dir and of every parent
// up to the filesystem root, nearest first.
func BinDirs(dir string) []string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}

	var dirs []string
	for {
		dirs = append(dirs, filepath.Join(abs, "node_modules", ".bin"))
		parent := filepath.Dir(abs)
		if parent == abs {
			break
		}
		abs = parent
	}
	return dirs
}

// AugmentPath prefixes path with the local binary directories of dir and the
// directory of the running executable.
func AugmentPath(dir, path string) string {
	parts := BinDirs(dir)
	if exe, err := os.Executable(); err == nil {
		parts = append(parts, filepath.Dir(exe))
	}
	if path != "" {
		parts = append(parts, path)
	}
	return strings.Join(parts, string(os.PathListSeparator))
}

// BuildEnv returns base with PATH augmented for dir and overrides applied.
// Existing keys keep their position; new override keys are appended sorted.
func BuildEnv(base []string, dir string, overrides map[string]string) []string {
	env := make([]string, 0, len(base)+len(overrides)+1)
	seen := make(map[string]bool, len(overrides))
	pathSet := false

	for _, kv := range base {
		key, value, _ := strings.Cut(kv, "=")
		if v, ok := overrides[key]; ok {
			value = v
			seen[key] = true
		}
		if isPathKey(key) {
			if pathSet {
				continue
			}
			value = AugmentPath(dir, value)
			pathSet = true
		}
		env = append(env, key+"="+value)
	}

	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		if !seen[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		value := overrides[k]
		if isPathKey(k) {
			if pathSet {
				continue
			}
			value = AugmentPath(dir, value)
			pathSet = true
		}
		env = append(env, k+"="+value)
	}

	if !pathSet {
		env = append(env, "PATH="+AugmentPath(dir, ""))
	}
	return env
}

func isPathKey(key string) bool {
	if runtime.GOOS == "windows" {
		return strings.EqualFold(key, "PATH")
	}
	return key == "PATH"
}
