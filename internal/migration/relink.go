package migration

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// SceneRelinker writes the scene at src to dst with every referenced path in
// refs replaced by its migrated counterpart.
type SceneRelinker interface {
	Relink(ctx context.Context, src, dst string, refs map[string]string) error
}

// TextRelinker relinks ASCII scenes by replacing path strings in the file
// contents.
type TextRelinker struct{}

// Relink implements SceneRelinker. All paths are replaced in a single pass,
// longer paths winning over their prefixes, so replaced text is never
// matched again. An existing dst is never overwritten.
func (TextRelinker) Relink(ctx context.Context, src, dst string, refs map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}

	olds := make([]string, 0, len(refs))
	for old := range refs {
		if old != "" {
			olds = append(olds, old)
		}
	}
	sort.Slice(olds, func(i, j int) bool {
		if len(olds[i]) != len(olds[j]) {
			return len(olds[i]) > len(olds[j])
		}
		return olds[i] < olds[j]
	})
	pairs := make([]string, 0, 2*len(olds))
	for _, old := range olds {
		pairs = append(pairs, old, refs[old])
	}
	relinked := strings.NewReplacer(pairs...).Replace(string(data))

	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_EXCL, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := out.WriteString(relinked); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}
