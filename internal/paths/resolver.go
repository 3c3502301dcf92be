// Package paths resolves model asset names to filesystem locations.
package paths

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Resolver probes candidate model locations in a fixed precedence order:
// an explicit path is taken verbatim, then the user asset directory,
// then the system asset directory, then a development directory relative
// to the working directory. A name present in both the user and system
// directories resolves to the user entry.
type Resolver struct {
	UserDir   string
	SystemDir string
	DevDir    string
}

// NotFoundError reports every probed location so the user can see where
// the daemon looked. The resolver never creates or downloads anything.
type NotFoundError struct {
	Name   string
	Probed []string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("model %q not found, probed: %s", e.Name, strings.Join(e.Probed, ", "))
}

// NewResolver builds a resolver with the standard asset directories.
func NewResolver() *Resolver {
	userDir := ""
	if home, err := os.UserHomeDir(); err == nil {
		userDir = filepath.Join(home, ".local", "share", "voxd", "models")
	}
	return &Resolver{
		UserDir:   userDir,
		SystemDir: "/usr/share/voxd/models",
		DevDir:    "models",
	}
}

// ResolveModel maps a requested model name or path to an absolute path.
// A name that exists as given is returned verbatim; otherwise the asset
// directories are probed, trying both the literal file name and the
// whisper.cpp ggml-<name>.bin convention.
func (r *Resolver) ResolveModel(name string) (string, error) {
	if name == "" {
		return "", &NotFoundError{Name: name}
	}

	probed := make([]string, 0, 8)

	if _, err := os.Stat(name); err == nil {
		return filepath.Abs(name)
	}
	probed = append(probed, name)

	filenames := candidateFilenames(name)
	for _, dir := range []string{r.UserDir, r.SystemDir, r.DevDir} {
		if dir == "" {
			continue
		}
		for _, fn := range filenames {
			candidate := filepath.Join(dir, fn)
			if _, err := os.Stat(candidate); err == nil {
				return filepath.Abs(candidate)
			}
			probed = append(probed, candidate)
		}
	}

	return "", &NotFoundError{Name: name, Probed: probed}
}

// candidateFilenames returns the file names to probe for a model name.
// "base" probes base and ggml-base.bin; a path keeps only its last element.
func candidateFilenames(name string) []string {
	base := filepath.Base(name)
	names := []string{base}
	if !strings.HasPrefix(base, "ggml-") && !strings.HasSuffix(base, ".bin") {
		names = append(names, "ggml-"+base+".bin")
	}
	return names
}
