package migration

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipekit/internal/models"
)

func TestNativeMatcher(t *testing.T) {
	m, err := NewNativeMatcher([]string{"Maya", " ", "houdini"}, []string{"**/*.nk", ""})
	require.NoError(t, err)

	tests := []struct {
		name    string
		version models.Version
		want    bool
	}{
		{"maya with version", models.Version{CreatedWith: "Maya2024", FullPath: "TP/A/a.ma"}, true},
		{"lower case dcc", models.Version{CreatedWith: "houdini", FullPath: "TP/A/a.hip"}, true},
		{"pattern match", models.Version{CreatedWith: "Nuke", FullPath: "TP/Comp/Main/comp_v001.nk"}, true},
		{"no match", models.Version{CreatedWith: "Photoshop", FullPath: "TP/Tex/tex.psd"}, false},
		{"empty", models.Version{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Match(&tt.version))
		})
	}

	var none *NativeMatcher
	assert.False(t, none.Match(&models.Version{CreatedWith: "Maya"}))
}

func TestNativeMatcherInvalidPattern(t *testing.T) {
	_, err := NewNativeMatcher(nil, []string{"[a-"})
	assert.Error(t, err)
}

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.txt")
	dst := filepath.Join(dir, "nested", "deeper", "dst.txt")
	require.NoError(t, os.WriteFile(src, []byte("content"), 0600))

	require.NoError(t, copyFile(src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))

	srcInfo, err := os.Stat(src)
	require.NoError(t, err)
	dstInfo, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, srcInfo.Mode().Perm(), dstInfo.Mode().Perm())
	assert.True(t, srcInfo.ModTime().Equal(dstInfo.ModTime()))

	assert.Error(t, copyFile(filepath.Join(dir, "missing"), dst))

	require.NoError(t, os.WriteFile(src, []byte("newer"), 0600))
	assert.ErrorIs(t, copyFile(src, dst), os.ErrExist)
	data, err = os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))
	assert.Error(t, copyFile(src, src))
	data, err = os.ReadFile(src)
	require.NoError(t, err)
	assert.Equal(t, "newer", string(data))
}

func TestTextRelinker(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "scene.ma")
	dst := filepath.Join(dir, "out", "scene.ma")
	content := "file -r \"/repo/SRC/Hero/Model/Main/Model_Main_v001.ma\";\nfile -r \"/repo/SRC/Hero\";\n"
	require.NoError(t, os.WriteFile(src, []byte(content), 0644))

	refs := map[string]string{
		"/repo/SRC/Hero": "/repo/TGT/Hero",
		"/repo/SRC/Hero/Model/Main/Model_Main_v001.ma": "/repo/TGT/Library/Model/Main/Model_Main_v004.ma",
		"": "ignored",
	}
	require.NoError(t, TextRelinker{}.Relink(context.Background(), src, dst, refs))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t,
		"file -r \"/repo/TGT/Library/Model/Main/Model_Main_v004.ma\";\nfile -r \"/repo/TGT/Hero\";\n",
		string(data))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, TextRelinker{}.Relink(ctx, src, dst, refs), context.Canceled)

	assert.ErrorIs(t, TextRelinker{}.Relink(context.Background(), src, dst, refs), os.ErrExist)
}

func TestTextRelinkerReplacesOnce(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "scene.ma")
	dst := filepath.Join(dir, "out", "scene.ma")
	content := "file -r \"/repo/SRC/Hero/Main/Hero_Main_v001.ma\";\nfile -r \"SRC/Hero/Main/Hero_Main_v001.ma\";\n"
	require.NoError(t, os.WriteFile(src, []byte(content), 0644))

	refs := map[string]string{
		"/repo/SRC/Hero/Main/Hero_Main_v001.ma": "/repo/TGT/SRC/Hero/Main/Hero_Main_v001.ma",
		"SRC/Hero/Main/Hero_Main_v001.ma":       "TGT/SRC/Hero/Main/Hero_Main_v001.ma",
	}
	require.NoError(t, TextRelinker{}.Relink(context.Background(), src, dst, refs))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t,
		"file -r \"/repo/TGT/SRC/Hero/Main/Hero_Main_v001.ma\";\nfile -r \"TGT/SRC/Hero/Main/Hero_Main_v001.ma\";\n",
		string(data))
}

func TestFileIntegrityHookChecks(t *testing.T) {
	dir := t.TempDir()
	hook := FileIntegrityHook()
	v := &models.Version{ID: 3}

	full := filepath.Join(dir, "full.ma")
	require.NoError(t, os.WriteFile(full, []byte("x"), 0644))
	assert.NoError(t, hook(context.Background(), v, full))

	empty := filepath.Join(dir, "empty.ma")
	require.NoError(t, os.WriteFile(empty, nil, 0644))
	assert.ErrorContains(t, hook(context.Background(), v, empty), "empty")

	assert.ErrorIs(t, hook(context.Background(), v, filepath.Join(dir, "missing.ma")), os.ErrNotExist)
	assert.ErrorContains(t, hook(context.Background(), v, dir), "directory")
}

func TestRunHookRecoversPanics(t *testing.T) {
	err := runHook(context.Background(), func(context.Context, *models.Version, string) error {
		panic("exploded")
	}, &models.Version{}, "")
	assert.ErrorContains(t, err, "exploded")
}
