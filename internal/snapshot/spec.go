package snapshot

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/Iron-Ham/stagectl/internal/errors"
)

// Info is the identity a package declares in its spec file.
type Info struct {
	Name    string
	Version string
}

var (
	defineRe = regexp.MustCompile(`^%(?:define|global)\s+(\w+)\s+(.*)$`)
	tagRe    = regexp.MustCompile(`^(?i)(name|version)\s*:\s*(.*)$`)
	macroRe  = regexp.MustCompile(`%\{\??(\w+)\}|%(\w+)`)
)

// ParseInfo reads the declared name and version of the package checked out
// in dir. <pkg>.spec is preferred; otherwise the first spec file by name is
// used. A directory without a spec file returns errors.ErrSnapshotNotFound.
func ParseInfo(dir, pkg string) (Info, error) {
	path, err := specFile(dir, pkg)
	if err != nil {
		return Info{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return Info{}, fmt.Errorf("open spec file: %w", err)
	}
	defer f.Close()

	macros := map[string]string{}
	var info Info
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if m := defineRe.FindStringSubmatch(line); m != nil {
			macros[m[1]] = expand(strings.TrimSpace(m[2]), macros)
			continue
		}
		m := tagRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		value := expand(strings.TrimSpace(m[2]), macros)
		switch strings.ToLower(m[1]) {
		case "name":
			if info.Name == "" {
				info.Name = value
				macros["name"] = value
			}
		case "version":
			if info.Version == "" {
				info.Version = value
				macros["version"] = value
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return Info{}, fmt.Errorf("read spec file: %w", err)
	}
	return info, nil
}

func specFile(dir, pkg string) (string, error) {
	preferred := filepath.Join(dir, pkg+".spec")
	if _, err := os.Stat(preferred); err == nil {
		return preferred, nil
	}
	matches, err := filepath.Glob(filepath.Join(dir, "*.spec"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", errors.NewNotFoundError("spec file", dir).WithCause(errors.ErrSnapshotNotFound)
	}
	sort.Strings(matches)
	return matches[0], nil
}

// Unknown macros are left as written.
func expand(s string, macros map[string]string) string {
	return macroRe.ReplaceAllStringFunc(s, func(m string) string {
		sub := macroRe.FindStringSubmatch(m)
		key := sub[1]
		if key == "" {
			key = sub[2]
		}
		if v, ok := macros[key]; ok {
			return v
		}
		if strings.HasPrefix(m, "%{?") {
			return ""
		}
		return m
	})
}
