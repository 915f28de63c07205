// Package scene describes the directory layout of a reconstruction scene and
// validates it before any external tool runs.
package scene

import (
	"fmt"
	"path/filepath"
)

// Artifact file names produced in the MVS directory.
const (
	SceneMVS         = "scene.mvs"
	DenseMVS         = "scene_dense.mvs"
	DensePLY         = "scene_dense.ply"
	MeshPLY          = "scene_dense_mesh.ply"
	RefinedMVS       = "scene_dense_mesh_refine.mvs"
	RefinedPLY       = "scene_dense_mesh_refine.ply"
	TexturedMVS      = "scene_dense_mesh_refine_texture.mvs"
	TexturedPLY      = "scene_dense_mesh_refine_texture.ply"
	ProgressFile     = "progress.json"
	TextureImageGlob = "scene_dense_mesh_refine_texture*.png"
)

// Directory names inside a scene.
const (
	ImagesDirName = "images"
	SparseDirName = "sparse"
	DenseDirName  = "dense"
	MeshDirName   = "mesh"
	MVSDirName    = "mvs"
)

// Layout resolves every path the pipeline reads or writes for one scene.
type Layout struct {
	Root string
}

// NewLayout returns the layout rooted at dir, made absolute.
func NewLayout(dir string) (Layout, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return Layout{}, fmt.Errorf("failed to resolve scene directory %s: %w", dir, err)
	}
	return Layout{Root: abs}, nil
}

// ImagesDir holds the input photos.
func (l Layout) ImagesDir() string { return filepath.Join(l.Root, ImagesDirName) }

// SparseDir holds the input sparse reconstruction.
func (l Layout) SparseDir() string { return filepath.Join(l.Root, SparseDirName) }

// DenseDir is the intermediate working copy removed by cleanup.
func (l Layout) DenseDir() string { return filepath.Join(l.Root, DenseDirName) }

// DenseImagesDir is the symlink to ImagesDir inside the working copy.
func (l Layout) DenseImagesDir() string { return filepath.Join(l.DenseDir(), ImagesDirName) }

// DenseSparseDir holds the normalized sparse model.
func (l Layout) DenseSparseDir() string { return filepath.Join(l.DenseDir(), SparseDirName) }

// MeshDir is the output root.
func (l Layout) MeshDir() string { return filepath.Join(l.Root, MeshDirName) }

// MVSDir holds the OpenMVS scene files and meshes.
func (l Layout) MVSDir() string { return filepath.Join(l.MeshDir(), MVSDirName) }

// MVSPath joins name onto MVSDir.
func (l Layout) MVSPath(name string) string { return filepath.Join(l.MVSDir(), name) }

// FinalMesh returns the last artifact of a run: the textured mesh, or the
// refined mesh when texturing is disabled.
func (l Layout) FinalMesh(textured bool) string {
	if textured {
		return l.MVSPath(TexturedPLY)
	}
	return l.MVSPath(RefinedPLY)
}
