// File: merkle/merkle.go
package merkle

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math"
)

// ErrInvalidIndex is returned for proof requests outside the leaf range.
var ErrInvalidIndex = errors.New("invalid leaf index")

// emptyRoot is the sentinel root of a tree with zero leaves: the digest
// over empty input. It can never collide with a real node because every
// level-0 node is the hash of a non-empty leaf string.
var emptyRoot = hashHex("")

// ProofStep is one element of an inclusion proof: a sibling digest and
// the side it sits on. Left=true means the sibling is the left child and
// the running hash is the right child.
type ProofStep struct {
	Hash string `json:"hash"`
	Left bool   `json:"left"`
}

// Tree is a binary hash tree over an ordered sequence of leaf strings
// (hex ballot commitments). Leaves are append-only; undo is modelled as a
// full Rebuild over the remaining ordered leaves. A node without a right
// sibling is paired with itself, both here and in Verify.
//
// Not internally locked; the owning service serializes access.
type Tree struct {
	leaves []string
	levels [][]string
}

func NewTree(leaves ...string) *Tree {
	t := &Tree{}
	if len(leaves) > 0 {
		t.Rebuild(leaves)
	}
	return t
}

func hashHex(data string) string {
	sum := sha256.Sum256([]byte(data))
	return hex.EncodeToString(sum[:])
}

// build recomputes every level bottom-up from the current leaf slice.
func (t *Tree) build() {
	if len(t.leaves) == 0 {
		t.levels = nil
		return
	}
	level := make([]string, len(t.leaves))
	for i, leaf := range t.leaves {
		level[i] = hashHex(leaf)
	}
	t.levels = [][]string{level}
	for len(level) > 1 {
		next := make([]string, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			left := level[i]
			right := left
			if i+1 < len(level) {
				right = level[i+1]
			}
			next = append(next, hashHex(left+right))
		}
		t.levels = append(t.levels, next)
		level = next
	}
}

// AddLeaf appends a commitment at the next index and returns the new root.
func (t *Tree) AddLeaf(leaf string) string {
	t.leaves = append(t.leaves, leaf)
	t.build()
	return t.Root()
}

// Rebuild reconstructs the tree in one pass from a full ordered leaf
// list. Idempotent: rebuilding twice from the same input yields the same
// root.
func (t *Tree) Rebuild(leaves []string) {
	t.leaves = make([]string, len(leaves))
	copy(t.leaves, leaves)
	t.build()
}

// Root returns the current root digest, or the empty-tree sentinel when
// no leaves have been added.
func (t *Tree) Root() string {
	if len(t.levels) == 0 {
		return emptyRoot
	}
	top := t.levels[len(t.levels)-1]
	return top[0]
}

// EmptyRoot returns the sentinel root of a zero-leaf tree.
func EmptyRoot() string {
	return emptyRoot
}

func (t *Tree) LeafCount() int {
	return len(t.leaves)
}

// Leaves returns a copy of the ordered leaf sequence.
func (t *Tree) Leaves() []string {
	out := make([]string, len(t.leaves))
	copy(out, t.leaves)
	return out
}

// Height returns the number of levels, 0 for an empty tree.
func (t *Tree) Height() int {
	return len(t.levels)
}

// ProofFor returns the ordered sibling path for the leaf at index. A
// single-leaf tree has an empty proof.
func (t *Tree) ProofFor(index int) ([]ProofStep, error) {
	if index < 0 || index >= len(t.leaves) {
		return nil, ErrInvalidIndex
	}
	proof := make([]ProofStep, 0, len(t.levels)-1)
	idx := index
	for level := 0; level < len(t.levels)-1; level++ {
		nodes := t.levels[level]
		sibling := idx ^ 1
		if sibling >= len(nodes) {
			// Odd tail: the node is paired with itself.
			sibling = idx
		}
		proof = append(proof, ProofStep{
			Hash: nodes[sibling],
			Left: idx%2 == 1,
		})
		idx /= 2
	}
	return proof, nil
}

// Verify recomputes the root from leaf and proof and compares it to root.
// Any single-byte change to the leaf or a proof entry makes this false.
func Verify(leaf string, index int, proof []ProofStep, root string) bool {
	if index < 0 {
		return false
	}
	current := hashHex(leaf)
	for _, step := range proof {
		if step.Left {
			current = hashHex(step.Hash + current)
		} else {
			current = hashHex(current + step.Hash)
		}
	}
	return current == root
}

// Stats describes the tree shape for the stats surface.
type Stats struct {
	LeafCount  int    `json:"leaf_count"`
	TreeHeight int    `json:"tree_height"`
	RootHash   string `json:"root_hash"`
	ProofSize  int    `json:"proof_size"`
}

func (t *Tree) Stats() Stats {
	proofSize := 0
	if n := len(t.leaves); n > 1 {
		proofSize = int(math.Ceil(math.Log2(float64(n))))
	}
	return Stats{
		LeafCount:  len(t.leaves),
		TreeHeight: len(t.levels),
		RootHash:   t.Root(),
		ProofSize:  proofSize,
	}
}
