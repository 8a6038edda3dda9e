package merkle

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmptyTreeRoot(t *testing.T) {
	tree := NewTree()
	assert.Equal(t, EmptyRoot(), tree.Root())
	assert.Equal(t, 0, tree.LeafCount())
	assert.Equal(t, 0, tree.Height())

	_, err := tree.ProofFor(0)
	assert.ErrorIs(t, err, ErrInvalidIndex)
}

func TestSingleLeaf(t *testing.T) {
	tree := NewTree()
	root := tree.AddLeaf("commitment-a")
	require.NotEqual(t, EmptyRoot(), root)
	assert.Equal(t, hashHex("commitment-a"), root)

	proof, err := tree.ProofFor(0)
	require.NoError(t, err)
	assert.Empty(t, proof)
	assert.True(t, Verify("commitment-a", 0, proof, root))
}

func TestRootChangesOnAppend(t *testing.T) {
	tree := NewTree()
	roots := make(map[string]bool)
	for i := 0; i < 10; i++ {
		root := tree.AddLeaf(fmt.Sprintf("leaf-%d", i))
		assert.False(t, roots[root], "root repeated after append %d", i)
		roots[root] = true
	}
	assert.Equal(t, 10, tree.LeafCount())
}

func TestRebuildDeterminism(t *testing.T) {
	leaves := []string{"a", "b", "c", "d", "e"}

	first := NewTree(leaves...)
	second := NewTree()
	second.Rebuild(leaves)
	assert.Equal(t, first.Root(), second.Root())

	// Rebuilding twice from the same input yields the same root.
	second.Rebuild(leaves)
	assert.Equal(t, first.Root(), second.Root())

	// Incremental construction matches one-pass construction.
	incremental := NewTree()
	for _, leaf := range leaves {
		incremental.AddLeaf(leaf)
	}
	assert.Equal(t, first.Root(), incremental.Root())
}

func TestProofSoundness(t *testing.T) {
	for _, size := range []int{1, 2, 3, 4, 5, 7, 8, 9, 16, 33} {
		t.Run(fmt.Sprintf("size_%d", size), func(t *testing.T) {
			tree := NewTree()
			leaves := make([]string, size)
			for i := range leaves {
				leaves[i] = fmt.Sprintf("ballot-%d", i)
				tree.AddLeaf(leaves[i])
			}
			root := tree.Root()
			for i, leaf := range leaves {
				proof, err := tree.ProofFor(i)
				require.NoError(t, err)
				assert.True(t, Verify(leaf, i, proof, root),
					"valid proof rejected at index %d", i)
			}
		})
	}
}

func TestProofRejectsMutation(t *testing.T) {
	tree := NewTree()
	for i := 0; i < 9; i++ {
		tree.AddLeaf(fmt.Sprintf("ballot-%d", i))
	}
	root := tree.Root()

	proof, err := tree.ProofFor(4)
	require.NoError(t, err)

	// Mutated leaf.
	assert.False(t, Verify("ballot-4x", 4, proof, root))
	assert.False(t, Verify("Ballot-4", 4, proof, root))

	// Mutated proof entries.
	for i := range proof {
		tampered := make([]ProofStep, len(proof))
		copy(tampered, proof)
		bytes := []byte(tampered[i].Hash)
		bytes[0] ^= 1
		tampered[i].Hash = string(bytes)
		assert.False(t, Verify("ballot-4", 4, tampered, root),
			"tampered proof entry %d accepted", i)

		flipped := make([]ProofStep, len(proof))
		copy(flipped, proof)
		flipped[i].Left = !flipped[i].Left
		assert.False(t, Verify("ballot-4", 4, flipped, root),
			"flipped proof side %d accepted", i)
	}

	// Wrong root.
	assert.False(t, Verify("ballot-4", 4, proof, EmptyRoot()))
}

func TestProofSizeLogarithmic(t *testing.T) {
	tree := NewTree()
	for i := 0; i < 16; i++ {
		tree.AddLeaf(fmt.Sprintf("leaf-%d", i))
	}
	proof, err := tree.ProofFor(0)
	require.NoError(t, err)
	assert.Len(t, proof, 4)
	assert.Equal(t, 4, tree.Stats().ProofSize)
}

func TestOddLeafSelfPairing(t *testing.T) {
	// Three leaves: the odd tail node is hashed with itself. The proof
	// for the tail must reproduce that rule.
	tree := NewTree("a", "b", "c")
	root := tree.Root()

	proof, err := tree.ProofFor(2)
	require.NoError(t, err)
	assert.True(t, Verify("c", 2, proof, root))

	expected := hashHex(
		hashHex(hashHex("a")+hashHex("b")) + hashHex(hashHex("c")+hashHex("c")),
	)
	assert.Equal(t, expected, root)
}

func TestLeavesReturnsCopy(t *testing.T) {
	tree := NewTree("a", "b")
	leaves := tree.Leaves()
	leaves[0] = "mutated"
	assert.Equal(t, []string{"a", "b"}, tree.Leaves())
}
