package surfel

import (
	"encoding/json"
	"os"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"
)

// RootName is the name given to the root node of every tree.
const RootName = "Root"

// Tree owns a hierarchy of nodes over the blocks of one database and gives
// flat indexed access to them.
type Tree struct {
	database *Database
	nodes    []*Node
	root     *Node
}

// NewTree returns a tree holding only a root node.
func NewTree(database *Database) *Tree {
	t := &Tree{database: database}
	root := NewNode(RootName)
	root.tree = t
	root.treeIndex = 0
	t.root = root
	t.nodes = []*Node{root}
	if database != nil {
		database.tree = t
	}
	return t
}

// Database returns the database holding the tree's blocks.
func (t *Tree) Database() *Database {
	return t.database
}

// Root returns the root node.
func (t *Tree) Root() *Node {
	return t.root
}

// NNodes returns the number of nodes, root included.
func (t *Tree) NNodes() int {
	return len(t.nodes)
}

// Node returns the i-th node. Indices change when nodes are removed.
func (t *Tree) Node(i int) *Node {
	return t.nodes[i]
}

// FindNodeByName returns the first node with the given name.
func (t *Tree) FindNodeByName(name string) (*Node, bool) {
	return lo.Find(t.nodes, func(n *Node) bool { return n.name == name })
}

func (t *Tree) setDirty() {
	if t.database != nil {
		t.database.setDirty()
	}
}

// InsertNode adds a detached node as a child of parent.
func (t *Tree) InsertNode(node, parent *Node) {
	if node.tree != nil {
		panic(errors.Errorf("node %q already belongs to a tree", node.name))
	}
	if parent == nil || parent.tree != t {
		panic(errors.Errorf("parent of node %q is not in this tree", node.name))
	}
	node.tree = t
	node.treeIndex = len(t.nodes)
	node.parent = parent
	t.nodes = append(t.nodes, node)
	parent.parts = append(parent.parts, node)
	parent.invalidate(nodeSubtreeMask)
	t.setDirty()
}

// RemoveNode detaches a node without parts from the tree. The node keeps its
// blocks; the root cannot be removed.
func (t *Tree) RemoveNode(node *Node) {
	if node.tree != t {
		panic(errors.Errorf("node %q is not in this tree", node.name))
	}
	if node == t.root {
		panic(errors.New("cannot remove the root node"))
	}
	if len(node.parts) > 0 {
		panic(errors.Errorf("cannot remove node %q with %d parts", node.name, len(node.parts)))
	}
	node.parent.invalidate(nodeSubtreeMask)
	node.parent.parts = lo.Without(node.parent.parts, node)

	tail := t.nodes[len(t.nodes)-1]
	t.nodes[node.treeIndex] = tail
	tail.treeIndex = node.treeIndex
	t.nodes = t.nodes[:len(t.nodes)-1]

	node.tree = nil
	node.treeIndex = -1
	node.parent = nil
	t.setDirty()
}

// RemoveEmptyNodes removes every non-root node whose subtree holds no blocks
// and returns how many were removed.
func (t *Tree) RemoveEmptyNodes() int {
	var removed int
	var visit func(n *Node)
	visit = func(n *Node) {
		for _, p := range append([]*Node(nil), n.parts...) {
			visit(p)
		}
		if n != t.root && len(n.parts) == 0 && len(n.blocks) == 0 {
			t.RemoveNode(n)
			removed++
		}
	}
	visit(t.root)
	return removed
}

// Walk calls fn on every node in pre-order, starting at the root. Returning
// false from fn skips the node's subtree.
func (t *Tree) Walk(fn func(n *Node) bool) {
	var visit func(n *Node)
	visit = func(n *Node) {
		if !fn(n) {
			return
		}
		for _, p := range n.parts {
			visit(p)
		}
	}
	visit(t.root)
}

type nodeRecord struct {
	Name   string `json:"name"`
	Parent int    `json:"parent"`
	Blocks []int  `json:"blocks,omitempty"`
}

type treeRecord struct {
	Nodes []nodeRecord `json:"nodes"`
}

// WriteFile saves the node hierarchy and the database index of every block
// owned by each node. Nodes are written in pre-order so parents precede
// their parts.
func (t *Tree) WriteFile(filename string) (err error) {
	index := map[*Node]int{}
	var rec treeRecord
	t.Walk(func(n *Node) bool {
		index[n] = len(rec.Nodes)
		nr := nodeRecord{Name: n.name, Parent: -1}
		if n.parent != nil {
			nr.Parent = index[n.parent]
		}
		for _, b := range n.blocks {
			if b.database != t.database {
				err = errors.Errorf("block of node %q is not in the tree's database", n.name)
				return false
			}
			nr.Blocks = append(nr.Blocks, b.databaseIndex)
		}
		rec.Nodes = append(rec.Nodes, nr)
		return true
	})
	if err != nil {
		return err
	}

	//nolint:gosec
	f, err := os.Create(filename)
	if err != nil {
		return errors.Wrapf(err, "cannot create tree file %s", filename)
	}
	defer func() {
		err = multierr.Combine(err, f.Close())
	}()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(&rec)
}

// ReadTree loads a hierarchy written by Tree.WriteFile, attaching blocks of
// database by index.
func ReadTree(filename string, database *Database) (*Tree, error) {
	//nolint:gosec
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read tree file %s", filename)
	}
	var rec treeRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, errors.Wrapf(err, "cannot parse tree file %s", filename)
	}
	if len(rec.Nodes) == 0 || rec.Nodes[0].Parent != -1 {
		return nil, errors.Errorf("tree file %s has no root node", filename)
	}

	t := NewTree(database)
	nodes := make([]*Node, len(rec.Nodes))
	for i, nr := range rec.Nodes {
		var n *Node
		if i == 0 {
			n = t.root
			n.name = nr.Name
		} else {
			if nr.Parent < 0 || nr.Parent >= i {
				return nil, errors.Errorf("node %d of %s has invalid parent %d", i, filename, nr.Parent)
			}
			n = NewNode(nr.Name)
			t.InsertNode(n, nodes[nr.Parent])
		}
		for _, bi := range nr.Blocks {
			if database == nil || bi < 0 || bi >= database.NBlocks() {
				return nil, errors.Errorf("node %q of %s refers to missing block %d", nr.Name, filename, bi)
			}
			if b := database.Block(bi); b.Node() != nil {
				return nil, errors.Errorf("block %d of %s is already in node %q", bi, filename, b.Node().Name())
			}
			n.InsertBlock(database.Block(bi))
		}
		nodes[i] = n
	}
	return t, nil
}
