package ghtree

import (
	"reflect"
	"testing"

	"github.com/jmgilman/go/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuild(t *testing.T) {
	t.Parallel()

	t.Run("builds hierarchical tree from flat listing", func(t *testing.T) {
		t.Parallel()

		entries := []TreeEntry{
			{Path: "ex01", Kind: KindDirectory, ContentID: "t1"},
			{Path: "ex01/CMakeLists.txt", Kind: KindFile, Size: 120, ContentID: "b1"},
			{Path: "ex01/src", Kind: KindDirectory, ContentID: "t2"},
			{Path: "ex01/src/main.cpp", Kind: KindFile, Size: 2048, ContentID: "b2"},
		}

		root, err := Build(entries)
		require.NoError(t, err)

		require.Len(t, root.Nodes, 1)
		ex01 := root.Child("ex01")
		require.NotNil(t, ex01)
		assert.True(t, ex01.IsDir())

		cmake := ex01.Child("CMakeLists.txt")
		require.NotNil(t, cmake)
		assert.Equal(t, KindFile, cmake.Kind)
		assert.Equal(t, int64(120), cmake.Size)
		assert.Equal(t, "b1", cmake.ContentID)

		src := ex01.Child("src")
		require.NotNil(t, src)
		assert.True(t, src.IsDir())

		main := src.Child("main.cpp")
		require.NotNil(t, main)
		assert.Equal(t, KindFile, main.Kind)

		assert.Equal(t, len(entries), root.Count())
	})

	t.Run("synthesizes implicit parent directories", func(t *testing.T) {
		t.Parallel()

		entries := []TreeEntry{
			{Path: "a/b/c", Kind: KindFile, ContentID: "b1"},
		}

		root, err := Build(entries)
		require.NoError(t, err)

		a := root.Child("a")
		require.NotNil(t, a)
		assert.True(t, a.IsDir())
		assert.Empty(t, a.ContentID)

		b := a.Child("b")
		require.NotNil(t, b)
		assert.True(t, b.IsDir())

		c := b.Child("c")
		require.NotNil(t, c)
		assert.Equal(t, KindFile, c.Kind)

		// One entry plus two synthesized directories.
		assert.Equal(t, 3, root.Count())
	})

	t.Run("explicit directory entry fills in synthesized node", func(t *testing.T) {
		t.Parallel()

		entries := []TreeEntry{
			{Path: "a/b", Kind: KindFile, ContentID: "b1"},
			{Path: "a", Kind: KindDirectory, ContentID: "t1"},
		}

		root, err := Build(entries)
		require.NoError(t, err)

		a := root.Child("a")
		require.NotNil(t, a)
		assert.True(t, a.IsDir())
		assert.Equal(t, "t1", a.ContentID)
	})

	t.Run("result is independent of input order", func(t *testing.T) {
		t.Parallel()

		entries := []TreeEntry{
			{Path: "src", Kind: KindDirectory, ContentID: "t1"},
			{Path: "src/lib.go", Kind: KindFile, ContentID: "b1"},
			{Path: "src/lib_test.go", Kind: KindFile, ContentID: "b2"},
			{Path: "docs/guide.md", Kind: KindFile, ContentID: "b3"},
			{Path: "README.md", Kind: KindFile, ContentID: "b4"},
		}

		permutations := [][]int{
			{0, 1, 2, 3, 4},
			{4, 3, 2, 1, 0},
			{2, 0, 4, 1, 3},
			{3, 4, 0, 2, 1},
		}

		var reference *TreeNode
		for _, perm := range permutations {
			shuffled := make([]TreeEntry, len(entries))
			for i, j := range perm {
				shuffled[i] = entries[j]
			}

			root, err := Build(shuffled)
			require.NoError(t, err)

			if reference == nil {
				reference = root
				continue
			}
			assert.True(t, reflect.DeepEqual(reference, root),
				"permutation %v produced a different tree", perm)
		}
	})

	t.Run("deterministic child ordering", func(t *testing.T) {
		t.Parallel()

		entries := []TreeEntry{
			{Path: "zeta", Kind: KindFile, ContentID: "b1"},
			{Path: "alpha", Kind: KindFile, ContentID: "b2"},
			{Path: "Makefile", Kind: KindFile, ContentID: "b3"},
		}

		root, err := Build(entries)
		require.NoError(t, err)

		var names []string
		for _, child := range root.Children() {
			names = append(names, child.Name)
		}
		assert.Equal(t, []string{"Makefile", "alpha", "zeta"}, names)
	})

	t.Run("empty entry set yields empty root", func(t *testing.T) {
		t.Parallel()

		root, err := Build(nil)
		require.NoError(t, err)
		assert.True(t, root.IsDir())
		assert.Zero(t, root.Count())
		assert.Nil(t, root.Children())
	})

	t.Run("rejects empty path", func(t *testing.T) {
		t.Parallel()

		_, err := Build([]TreeEntry{{Path: "", Kind: KindFile}})
		require.Error(t, err)
		assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
	})

	t.Run("rejects non-canonical paths", func(t *testing.T) {
		t.Parallel()

		for _, path := range []string{"a//b", "/a", "a/", "./a", "a/../b"} {
			_, err := Build([]TreeEntry{{Path: path, Kind: KindFile}})
			require.Error(t, err, "path %q", path)
			assert.Equal(t, errors.CodeInvalidInput, errors.GetCode(err))
		}
	})

	t.Run("rejects file used as parent directory", func(t *testing.T) {
		t.Parallel()

		entries := []TreeEntry{
			{Path: "a", Kind: KindFile, ContentID: "b1"},
			{Path: "a/b", Kind: KindFile, ContentID: "b2"},
		}

		_, err := Build(entries)
		require.Error(t, err)
		assert.Equal(t, errors.CodeConflict, errors.GetCode(err))

		path, ok := ConflictPath(err)
		require.True(t, ok)
		assert.Equal(t, "a", path)
	})

	t.Run("rejects file entry for established directory", func(t *testing.T) {
		t.Parallel()

		entries := []TreeEntry{
			{Path: "a/b", Kind: KindFile, ContentID: "b1"},
			{Path: "a", Kind: KindFile, ContentID: "b2"},
		}

		_, err := Build(entries)
		require.Error(t, err)
		assert.Equal(t, errors.CodeConflict, errors.GetCode(err))
	})

	t.Run("rejects duplicate entries", func(t *testing.T) {
		t.Parallel()

		entries := []TreeEntry{
			{Path: "a", Kind: KindFile, ContentID: "b1"},
			{Path: "a", Kind: KindFile, ContentID: "b1"},
		}

		_, err := Build(entries)
		require.Error(t, err)
		assert.Equal(t, errors.CodeConflict, errors.GetCode(err))
	})
}

func TestTreeNode_Lookup(t *testing.T) {
	t.Parallel()

	root, err := Build([]TreeEntry{
		{Path: "a/b/c.txt", Kind: KindFile, ContentID: "b1"},
		{Path: "a/d.txt", Kind: KindFile, ContentID: "b2"},
	})
	require.NoError(t, err)

	assert.NotNil(t, root.Lookup("a/b/c.txt"))
	assert.NotNil(t, root.Lookup("a/b"))
	assert.Nil(t, root.Lookup("a/missing"))
	assert.Nil(t, root.Lookup("a/b/c.txt/deeper"))
	assert.Same(t, root, root.Lookup(""))
}

func TestTreeNode_Walk(t *testing.T) {
	t.Parallel()

	root, err := Build([]TreeEntry{
		{Path: "b/y.txt", Kind: KindFile, ContentID: "b1"},
		{Path: "a/x.txt", Kind: KindFile, ContentID: "b2"},
	})
	require.NoError(t, err)

	var paths []string
	err = root.Walk(func(path string, node *TreeNode) error {
		paths = append(paths, path)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "a/x.txt", "b", "b/y.txt"}, paths)
}
