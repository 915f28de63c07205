package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/lehigh-university-libraries/colmap2mesh/internal/colmap"
	"github.com/lehigh-university-libraries/colmap2mesh/internal/command"
	"github.com/lehigh-university-libraries/colmap2mesh/internal/config"
	"github.com/lehigh-university-libraries/colmap2mesh/internal/pipeline"
	"github.com/lehigh-university-libraries/colmap2mesh/internal/scene"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate keeps config lookups away from the developer's own files.
func isolate(t *testing.T) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, ".config"))
	t.Setenv(config.EnvConfigPath, "")
}

func writeScene(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	l := scene.Layout{Root: root}
	require.NoError(t, os.MkdirAll(l.ImagesDir(), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(l.ImagesDir(), "a.jpg"), []byte("photo"), 0644))

	rec := &colmap.Reconstruction{
		Cameras: []colmap.Camera{
			{ID: 1, Model: colmap.SimplePinhole, Width: 640, Height: 480, Params: []float64{800, 320, 240}},
			{ID: 2, Model: colmap.FOV, Width: 1000, Height: 500, Params: []float64{700, 705, 310, 245, 0.9}},
		},
		Images: []colmap.Image{{ID: 1, QVec: [4]float64{1, 0, 0, 0}, CameraID: 1, Name: "a.jpg"}},
	}
	require.NoError(t, rec.Write(l.SparseDir()))
	return root
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestCamerasCommand(t *testing.T) {
	isolate(t)
	dir := writeScene(t)
	export := filepath.Join(t.TempDir(), "cameras.parquet")

	out, err := execute(t, "cameras", "--scene_dir", dir, "--format", "yaml", "--export", export, "--log-level", "error")
	require.NoError(t, err)

	assert.Contains(t, out, "source_model: SIMPLE_PINHOLE")
	assert.Contains(t, out, "source_model: FOV")
	assert.Contains(t, out, "fy: 705")
	assert.NotContains(t, out, "approximate: true")
	assert.FileExists(t, export)
}

func TestCamerasCommandRejectsUnknownFormat(t *testing.T) {
	isolate(t)
	_, err := execute(t, "cameras", "--scene-dir", writeScene(t), "--format", "csv")
	assert.ErrorContains(t, err, `unknown format "csv"`)
}

func TestMeshCommandValidatesConfig(t *testing.T) {
	isolate(t)

	_, err := execute(t, "mesh", "--scene-dir", writeScene(t), "--max_face_area", "0")
	assert.ErrorContains(t, err, "max face area must be positive")

	_, err = execute(t, "mesh")
	assert.ErrorContains(t, err, "scene directory is required")
}

func TestMeshCommandReportsInvalidScene(t *testing.T) {
	isolate(t)
	dir := t.TempDir()

	_, err := execute(t, "mesh", "--scene-dir", dir)

	var vErr *scene.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, filepath.Join(dir, scene.ImagesDirName), vErr.Path)
}

func TestRunCheck(t *testing.T) {
	cfg := config.Default()
	cfg.SceneDir = writeScene(t)

	var out bytes.Buffer
	c := &cobra.Command{}
	c.SetOut(&out)

	lookPath := func(file string) (string, error) {
		if file == command.ToolTexture {
			return "", errors.New("not found")
		}
		return "/opt/openmvs/" + file, nil
	}
	err := runCheck(c, cfg, lookPath)

	var depErr *scene.DependencyError
	require.ErrorAs(t, err, &depErr)
	assert.Equal(t, []string{command.ToolTexture}, depErr.Missing)
	assert.Contains(t, out.String(), "Images:  1")
	assert.Contains(t, out.String(), "2 cameras")
	assert.Contains(t, out.String(), "/opt/openmvs/DensifyPointCloud")
	assert.Contains(t, out.String(), "not found")
	assert.NotContains(t, out.String(), "ready")

	out.Reset()
	require.NoError(t, runCheck(c, cfg, func(file string) (string, error) { return "/bin/" + file, nil }))
	assert.Contains(t, out.String(), "Scene is ready")
}

func TestRunCheckReportsPreviousRun(t *testing.T) {
	cfg := config.Default()
	cfg.SceneDir = writeScene(t)
	l := scene.Layout{Root: cfg.SceneDir}
	require.NoError(t, os.MkdirAll(l.MVSDir(), 0755))
	require.NoError(t, pipeline.WriteProgress(l.MVSPath(scene.ProgressFile), pipeline.NewProgressRecord(cfg)))

	var out bytes.Buffer
	c := &cobra.Command{}
	c.SetOut(&out)
	allFound := func(file string) (string, error) { return "/bin/" + file, nil }

	require.NoError(t, runCheck(c, cfg, allFound))
	assert.Contains(t, out.String(), "Previous: completed=true textured=true max_face_area=16 refine_scales=1")

	require.NoError(t, os.WriteFile(l.MVSPath(scene.ProgressFile), []byte("{"), 0644))
	err := runCheck(c, cfg, allFound)
	assert.ErrorContains(t, err, "failed to parse progress file")
}

func TestConfigInit(t *testing.T) {
	isolate(t)
	path := filepath.Join(t.TempDir(), "colmap2mesh.yaml")

	out, err := execute(t, "config", "init", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote "+path)

	_, err = execute(t, "config", "init", "--config", path)
	assert.ErrorContains(t, err, "already exists")

	_, err = execute(t, "config", "init", "--config", path, "--force")
	require.NoError(t, err)

	cfg, err := config.Load(path, config.Overrides{})
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}
