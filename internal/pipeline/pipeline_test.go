package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/lehigh-university-libraries/colmap2mesh/internal/colmap"
	"github.com/lehigh-university-libraries/colmap2mesh/internal/command"
	"github.com/lehigh-university-libraries/colmap2mesh/internal/config"
	"github.com/lehigh-university-libraries/colmap2mesh/internal/scene"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// toolOutputs lists the files each tool leaves in its working directory.
var toolOutputs = map[string][]string{
	command.ToolInterface:   {scene.SceneMVS},
	command.ToolDensify:     {scene.DenseMVS, scene.DensePLY},
	command.ToolReconstruct: {scene.MeshPLY},
	command.ToolRefine:      {scene.RefinedMVS, scene.RefinedPLY},
	command.ToolTexture:     {scene.TexturedMVS, scene.TexturedPLY},
}

// fakeExecutor records commands and creates the outputs a real tool would.
type fakeExecutor struct {
	t           *testing.T
	calls       []command.Command
	skipOutputs map[string]bool
	exitCodes   map[string]int
	err         error
}

func newFakeExecutor(t *testing.T) *fakeExecutor {
	return &fakeExecutor{t: t, skipOutputs: map[string]bool{}, exitCodes: map[string]int{}}
}

func (f *fakeExecutor) Run(ctx context.Context, cmd command.Command) (command.Result, error) {
	f.calls = append(f.calls, cmd)
	if f.err != nil {
		return command.Result{ExitCode: -1}, f.err
	}
	if !f.skipOutputs[cmd.Name] {
		for _, name := range toolOutputs[cmd.Name] {
			require.NoError(f.t, os.WriteFile(filepath.Join(cmd.Dir, name), []byte(name), 0644))
		}
	}
	return command.Result{
		ExitCode: f.exitCodes[cmd.Name],
		Output:   []byte(cmd.Name + ": processing\n" + cmd.Name + ": done\n"),
	}, nil
}

func (f *fakeExecutor) names() []string {
	names := make([]string, 0, len(f.calls))
	for _, c := range f.calls {
		names = append(names, c.Name)
	}
	return names
}

func allTools(file string) (string, error) {
	return "/usr/local/bin/" + file, nil
}

var fullChain = []string{
	command.ToolInterface,
	command.ToolDensify,
	command.ToolReconstruct,
	command.ToolRefine,
	command.ToolTexture,
}

// newScene creates a scene with two photos and a binary sparse model using
// the given cameras.
func newScene(t *testing.T, cams ...colmap.Camera) (config.Config, scene.Layout) {
	t.Helper()
	root := t.TempDir()
	l := scene.Layout{Root: root}

	require.NoError(t, os.MkdirAll(l.ImagesDir(), 0755))
	for _, name := range []string{"IMG_0001.JPG", "IMG_0002.png"} {
		require.NoError(t, os.WriteFile(filepath.Join(l.ImagesDir(), name), []byte("photo"), 0644))
	}

	if len(cams) == 0 {
		cams = []colmap.Camera{{ID: 1, Model: colmap.SimpleRadial, Width: 640, Height: 480, Params: []float64{800, 320, 240, 0.01}}}
	}
	rec := &colmap.Reconstruction{
		Cameras: cams,
		Images: []colmap.Image{
			{ID: 1, QVec: [4]float64{1, 0, 0, 0}, CameraID: cams[0].ID, Name: "IMG_0001.JPG"},
			{ID: 2, QVec: [4]float64{1, 0, 0, 0}, CameraID: cams[len(cams)-1].ID, Name: "IMG_0002.png"},
		},
		Points3D: []colmap.Point3D{{ID: 1, XYZ: [3]float64{0, 0, 1}, RGB: [3]uint8{10, 20, 30}}},
	}
	require.NoError(t, rec.Write(l.SparseDir()))

	cfg := config.Default()
	cfg.SceneDir = root
	return cfg, l
}

func TestRunFullPipeline(t *testing.T) {
	cfg, l := newScene(t)
	exe := newFakeExecutor(t)

	run, err := New(cfg, exe, allTools).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, fullChain, exe.names())
	assert.Equal(t, l.FinalMesh(true), run.FinalOutput)
	assert.False(t, run.Resumed)
	assert.Equal(t, 2, run.ImageCount)
	assert.Empty(t, run.Warnings)
	for _, name := range StageOrder {
		assert.Equal(t, StatusSucceeded, run.Status(name), name)
	}
	assert.NotEmpty(t, run.ID)

	convert := exe.calls[0]
	assert.Equal(t, l.MVSDir(), convert.Dir)
	assert.Equal(t, []string{
		"-i", l.DenseDir(),
		"-o", l.MVSPath(scene.SceneMVS),
		"--image-folder", l.DenseImagesDir(),
	}, convert.Args)

	refine := exe.calls[3]
	assert.Equal(t, []string{
		scene.DenseMVS, "-m", scene.MeshPLY, "-o", scene.RefinedMVS,
		"--scales", "1", "--max-face-area", "16",
	}, refine.Args)

	rec, err := ReadProgress(l.MVSPath(scene.ProgressFile))
	require.NoError(t, err)
	assert.Equal(t, ProgressRecord{
		Completed:    true,
		SceneDir:     cfg.SceneDir,
		MaxFaceArea:  16,
		RefineScales: "1",
		Textured:     true,
	}, rec)

	assert.NoDirExists(t, l.DenseDir(), "intermediate files are removed after success")
	assert.FileExists(t, filepath.Join(l.ImagesDir(), "IMG_0001.JPG"), "original images survive cleanup")
	assert.FileExists(t, filepath.Join(l.SparseDir(), colmap.CamerasBin))
}

func TestRunNoTexture(t *testing.T) {
	cfg, l := newScene(t)
	cfg.Mesh.NoTexture = true
	cfg.Mesh.MaxFaceArea = 32
	cfg.Mesh.RefineScales = "2"
	exe := newFakeExecutor(t)

	run, err := New(cfg, exe, allTools).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, fullChain[:4], exe.names())
	assert.Equal(t, l.MVSPath(scene.RefinedPLY), run.FinalOutput)
	assert.Equal(t, StatusSkipped, run.Status(StageTexture))
	assert.Contains(t, exe.calls[3].Args, "32")
	assert.Contains(t, exe.calls[3].Args, "2")

	rec, err := ReadProgress(l.MVSPath(scene.ProgressFile))
	require.NoError(t, err)
	assert.False(t, rec.Textured)
	assert.Equal(t, 32, rec.MaxFaceArea)
}

func TestRunSkipIfExistsIsIdempotent(t *testing.T) {
	cfg, l := newScene(t)
	require.NoError(t, func() error {
		_, err := New(cfg, newFakeExecutor(t), allTools).Run(context.Background())
		return err
	}())
	require.FileExists(t, l.FinalMesh(true))

	cfg.Run.SkipIfExists = true
	for i := 0; i < 2; i++ {
		exe := newFakeExecutor(t)
		lookups := 0
		lookPath := func(file string) (string, error) {
			lookups++
			return allTools(file)
		}

		run, err := New(cfg, exe, lookPath).Run(context.Background())
		require.NoError(t, err)
		assert.True(t, run.Resumed)
		assert.Empty(t, exe.calls)
		assert.Empty(t, run.Executed())
		assert.Zero(t, lookups, "resume check happens before validation")
	}
}

func TestRunSkipIfExistsWithoutOutputRuns(t *testing.T) {
	cfg, _ := newScene(t)
	cfg.Run.SkipIfExists = true
	exe := newFakeExecutor(t)

	run, err := New(cfg, exe, allTools).Run(context.Background())
	require.NoError(t, err)
	assert.False(t, run.Resumed)
	assert.Len(t, exe.calls, 5)
}

func TestRunSkipIfExistsChecksTextureSetting(t *testing.T) {
	cfg, l := newScene(t)
	require.NoError(t, os.MkdirAll(l.MVSDir(), 0755))
	require.NoError(t, os.WriteFile(l.MVSPath(scene.RefinedPLY), []byte("mesh"), 0644))

	cfg.Run.SkipIfExists = true
	assert.False(t, AlreadyDone(cfg, l), "textured run needs the textured mesh")

	cfg.Mesh.NoTexture = true
	assert.True(t, AlreadyDone(cfg, l))

	cfg.Run.SkipIfExists = false
	assert.False(t, AlreadyDone(cfg, l))
}

func TestRunDensifyMissingOutputStopsPipeline(t *testing.T) {
	for _, exitCode := range []int{0, 1} {
		cfg, l := newScene(t)
		exe := newFakeExecutor(t)
		exe.skipOutputs[command.ToolDensify] = true
		exe.exitCodes[command.ToolDensify] = exitCode

		run, err := New(cfg, exe, allTools).Run(context.Background())

		var stageErr *StageError
		require.ErrorAs(t, err, &stageErr)
		assert.Equal(t, StageDensify, stageErr.Stage)
		assert.Equal(t, "DensifyPointCloud scene.mvs", stageErr.CommandLine)
		assert.Contains(t, string(stageErr.Output), "DensifyPointCloud: done")

		assert.Equal(t, []string{command.ToolInterface, command.ToolDensify}, exe.names())
		assert.Equal(t, StatusFailed, run.Status(StageDensify))
		for _, later := range []string{StageReconstruct, StageRefine, StageTexture} {
			assert.Equal(t, StatusNotStarted, run.Status(later), later)
		}

		assert.NoFileExists(t, l.MVSPath(scene.ProgressFile))
		assert.DirExists(t, l.DenseDir(), "intermediate files are kept after a failure")
	}
}

func TestRunNonZeroExitFails(t *testing.T) {
	cfg, l := newScene(t)
	exe := newFakeExecutor(t)
	exe.exitCodes[command.ToolReconstruct] = 3

	_, err := New(cfg, exe, allTools).Run(context.Background())

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageReconstruct, stageErr.Stage)
	assert.Equal(t, 3, stageErr.ExitCode)
	assert.Contains(t, err.Error(), "exit status 3")
	assert.Contains(t, err.Error(), "ReconstructMesh: done")
	assert.Len(t, exe.calls, 3)
	assert.NoFileExists(t, l.MVSPath(scene.ProgressFile))
}

func TestRunCommandStartFailure(t *testing.T) {
	cfg, _ := newScene(t)
	exe := newFakeExecutor(t)
	exe.err = context.Canceled

	run, err := New(cfg, exe, allTools).Run(context.Background())

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageConvert, stageErr.Stage)
	assert.Equal(t, "interrupted", stageErr.Reason)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StatusSucceeded, run.Status(StagePrepare))
	assert.Equal(t, StatusFailed, run.Status(StageConvert))
}

func TestRunDependencyErrorListsAllMissing(t *testing.T) {
	cfg, _ := newScene(t)
	exe := newFakeExecutor(t)
	lookPath := func(file string) (string, error) {
		if file == command.ToolDensify || file == command.ToolTexture {
			return "", errors.New("not found")
		}
		return allTools(file)
	}

	_, err := New(cfg, exe, lookPath).Run(context.Background())

	var depErr *scene.DependencyError
	require.ErrorAs(t, err, &depErr)
	assert.Equal(t, []string{command.ToolDensify, command.ToolTexture}, depErr.Missing)
	assert.Empty(t, exe.calls)
}

func TestRunDependencyCheckUsesToolOverrides(t *testing.T) {
	cfg, _ := newScene(t)
	cfg.Tools = map[string]string{command.ToolInterface: "openmvs-wrapper InterfaceCOLMAP"}
	exe := newFakeExecutor(t)
	lookPath := func(file string) (string, error) {
		if file == command.ToolInterface {
			return "", errors.New("only reachable through the wrapper")
		}
		return allTools(file)
	}

	_, err := New(cfg, exe, lookPath).Run(context.Background())
	require.Error(t, err, "fake executor does not know the wrapper outputs")

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StageConvert, stageErr.Stage)
	assert.Equal(t, "openmvs-wrapper", exe.calls[0].Name)
	assert.Equal(t, command.ToolInterface, exe.calls[0].Args[0])
}

func TestRunValidationErrorBeforeAnyCommand(t *testing.T) {
	cfg, l := newScene(t)
	require.NoError(t, os.Remove(filepath.Join(l.SparseDir(), colmap.ImagesBin)))
	exe := newFakeExecutor(t)

	_, err := New(cfg, exe, allTools).Run(context.Background())

	var vErr *scene.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, filepath.Join(l.SparseDir(), colmap.ImagesBin), vErr.Path)
	assert.Empty(t, exe.calls)
	assert.NoDirExists(t, l.DenseDir())
}

// writeTextSparse replaces the binary sparse model with text tables.
func writeTextSparse(t *testing.T, l scene.Layout, cameras, images string) {
	t.Helper()
	for _, name := range colmap.BinaryTables {
		require.NoError(t, os.Remove(filepath.Join(l.SparseDir(), name)))
	}
	files := map[string]string{
		colmap.CamerasTxt:  cameras,
		colmap.ImagesTxt:   images,
		colmap.Points3DTxt: "1 0 0 1 10 20 30 0.5\n",
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(l.SparseDir(), name), []byte(content), 0644))
	}
}

func TestRunUnknownCameraModelCompletes(t *testing.T) {
	cfg, l := newScene(t)
	writeTextSparse(t, l,
		"# Camera list\n"+
			"1 EQUIRECTANGULAR 1000 500 0.5\n"+
			"2 OPENCV 640 480 700 705 310 245 0.01 -0.02 0 0\n",
		"1 1 0 0 0 0 0 0 1 IMG_0001.JPG\n\n"+
			"2 1 0 0 0 0 0 0 2 IMG_0002.png\n\n",
	)
	cfg.Run.KeepIntermediate = true
	exe := newFakeExecutor(t)

	run, err := New(cfg, exe, allTools).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, run.Warnings, 1)
	assert.Equal(t, uint32(1), run.Warnings[0].CameraID)
	assert.Equal(t, "EQUIRECTANGULAR", run.Warnings[0].Model)
	assert.Equal(t, fullChain, exe.names())

	normalized, err := colmap.Load(l.DenseSparseDir())
	require.NoError(t, err)
	require.Len(t, normalized.Cameras, 2)
	assert.Equal(t, colmap.Pinhole, normalized.Cameras[0].Model)
	assert.Equal(t, []float64{1000, 1000, 500, 250}, normalized.Cameras[0].Params)
	assert.Equal(t, []float64{700, 705, 310, 245}, normalized.Cameras[1].Params)

	original, err := colmap.Load(l.SparseDir())
	require.NoError(t, err)
	assert.Equal(t, "EQUIRECTANGULAR", original.Cameras[0].Name(), "input model is untouched")
	assert.NoFileExists(t, filepath.Join(l.SparseDir(), colmap.CamerasBin))

	target, err := os.Readlink(l.DenseImagesDir())
	require.NoError(t, err)
	assert.Equal(t, l.ImagesDir(), target)
	assert.FileExists(t, l.MVSPath(scene.ProgressFile))
}

func TestRunRecognizedModelsKeepCalibration(t *testing.T) {
	cfg, l := newScene(t,
		colmap.Camera{ID: 1, Model: colmap.Radial, Width: 640, Height: 480, Params: []float64{800, 320, 240, 0.01, 0.002}},
		colmap.Camera{ID: 2, Model: colmap.FOV, Width: 1000, Height: 500, Params: []float64{700, 705, 310, 245, 0.9}},
	)
	cfg.Run.KeepIntermediate = true

	run, err := New(cfg, newFakeExecutor(t), allTools).Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, run.Warnings)

	normalized, err := colmap.Load(l.DenseSparseDir())
	require.NoError(t, err)
	require.Len(t, normalized.Cameras, 2)
	assert.Equal(t, []float64{800, 800, 320, 240}, normalized.Cameras[0].Params)
	assert.Equal(t, []float64{700, 705, 310, 245}, normalized.Cameras[1].Params)
}

func TestRunMalformedSparseFailsInPrepare(t *testing.T) {
	cfg, l := newScene(t)
	require.NoError(t, os.WriteFile(filepath.Join(l.SparseDir(), colmap.Points3DBin), []byte{0xff, 0xff}, 0644))
	exe := newFakeExecutor(t)

	run, err := New(cfg, exe, allTools).Run(context.Background())

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, StagePrepare, stageErr.Stage)

	var loadErr *colmap.LoadError
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, filepath.Join(l.SparseDir(), colmap.Points3DBin), loadErr.Path)

	assert.Empty(t, exe.calls)
	assert.Equal(t, StatusFailed, run.Status(StagePrepare))
}

func TestRunReplacesStaleWorkingCopy(t *testing.T) {
	cfg, l := newScene(t)
	cfg.Run.KeepIntermediate = true

	// A leftover directory where the symlink goes, from an earlier attempt.
	require.NoError(t, os.MkdirAll(l.DenseImagesDir(), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(l.DenseImagesDir(), "stale.jpg"), nil, 0644))

	_, err := New(cfg, newFakeExecutor(t), allTools).Run(context.Background())
	require.NoError(t, err)

	info, err := os.Lstat(l.DenseImagesDir())
	require.NoError(t, err)
	assert.NotZero(t, info.Mode()&os.ModeSymlink)
	assert.NoFileExists(t, filepath.Join(l.ImagesDir(), "stale.jpg"))

	// A second run replaces the symlink itself.
	_, err = New(cfg, newFakeExecutor(t), allTools).Run(context.Background())
	require.NoError(t, err)
}

func TestRunCleanupFailureStillSucceeds(t *testing.T) {
	cfg, l := newScene(t)
	removeAll = func(string) error { return errors.New("device busy") }
	t.Cleanup(func() { removeAll = os.RemoveAll })

	run, err := New(cfg, newFakeExecutor(t), allTools).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StageOrder, run.Executed())
	assert.FileExists(t, l.MVSPath(scene.ProgressFile))
	assert.DirExists(t, l.DenseDir())
}
