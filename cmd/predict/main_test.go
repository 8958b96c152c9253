package main

import (
	"bytes"
	"image"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	torch "github.com/wangkuiyi/gotorch"

	"traffic/config"
	"traffic/ml"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte{}, 0o644))
}

func TestExpand(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.png", "b.png", "c.jpg"} {
		touch(t, filepath.Join(dir, name))
	}

	files, err := expand([]string{filepath.Join(dir, "*.png") + ":" + filepath.Join(dir, "c.jpg")})
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "a.png"),
		filepath.Join(dir, "b.png"),
		filepath.Join(dir, "c.jpg"),
	}, files)
}

func TestExpandNoMatch(t *testing.T) {
	_, err := expand([]string{filepath.Join(t.TempDir(), "*.gif")})
	assert.ErrorContains(t, err, "no files match")
}

func TestExpandBadPattern(t *testing.T) {
	_, err := expand([]string{"[unclosed"})
	assert.ErrorContains(t, err, "bad pattern")
}

func TestPredictRequiresImages(t *testing.T) {
	cmd := newPredictCmd()
	cmd.SetArgs([]string{"--model", "m.gob"})
	cmd.SetOut(io.Discard)
	cmd.SetErr(io.Discard)
	assert.Error(t, cmd.Execute())
}

func TestPredictSavedModel(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.ImageWidth, cfg.ImageHeight = 16, 16
	cfg.NumCategories = 3
	cfg.Seed = 2

	c, err := ml.NewModel(cfg, torch.NewDevice("cpu"))
	require.NoError(t, err)
	modelFn := filepath.Join(dir, "model.gob")
	require.NoError(t, c.Save(modelFn))
	c.Release()

	imgFn := filepath.Join(dir, "sign.png")
	img := image.NewRGBA(image.Rect(0, 0, 40, 40))
	f, err := os.Create(imgFn)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())

	var out bytes.Buffer
	require.NoError(t, predict(&out, modelFn, []string{imgFn}))

	fields := strings.Split(strings.TrimSpace(out.String()), "\t")
	require.Len(t, fields, 3)
	assert.Equal(t, imgFn, fields[0])
	category, err := strconv.Atoi(fields[1])
	require.NoError(t, err)
	assert.GreaterOrEqual(t, category, 0)
	assert.Less(t, category, 3)
}
