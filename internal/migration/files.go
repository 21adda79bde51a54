package migration

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"pipekit/internal/models"
)

// NativeMatcher decides which version files are scenes of a supported DCC
// and get their references relinked instead of being copied.
type NativeMatcher struct {
	dccs     []string
	patterns []string
}

// NewNativeMatcher matches versions whose created_with contains one of dccs
// (case insensitive) or whose path matches one of the doublestar patterns.
func NewNativeMatcher(dccs, patterns []string) (*NativeMatcher, error) {
	m := &NativeMatcher{}
	for _, dcc := range dccs {
		if dcc = strings.TrimSpace(dcc); dcc != "" {
			m.dccs = append(m.dccs, strings.ToLower(dcc))
		}
	}
	for _, p := range patterns {
		if p = strings.TrimSpace(p); p == "" {
			continue
		}
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid native file pattern %q", p)
		}
		m.patterns = append(m.patterns, p)
	}
	return m, nil
}

// Match reports whether v is a native scene.
func (m *NativeMatcher) Match(v *models.Version) bool {
	if m == nil {
		return false
	}
	createdWith := strings.ToLower(v.CreatedWith)
	for _, dcc := range m.dccs {
		if strings.Contains(createdWith, dcc) {
			return true
		}
	}
	for _, p := range m.patterns {
		if ok, _ := doublestar.Match(p, v.FullPath); ok {
			return true
		}
	}
	return false
}

// copyFile copies src to dst keeping the file mode and modification time.
// An existing dst is never overwritten.
func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	if err := os.Chmod(dst, info.Mode().Perm()); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
