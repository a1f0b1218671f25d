// Package gatt holds the in-memory attribute tree of one connected peripheral:
// services, their characteristics, their descriptors and the latest value read
// for each characteristic and descriptor.
//
// A Tree only grows between two calls to Reset. Children keep the position they
// were appended at, so an index handed out for a node stays valid while more
// siblings are discovered.
package gatt

import (
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/srg/blescan/internal/bledb"
	"github.com/srg/blescan/internal/radio"
)

// Root is the parent id of services.
const Root = ""

// Kind is the GATT level of a node.
type Kind int

const (
	KindService Kind = iota + 1
	KindCharacteristic
	KindDescriptor
)

func (k Kind) String() string {
	switch k {
	case KindService:
		return "service"
	case KindCharacteristic:
		return "characteristic"
	case KindDescriptor:
		return "descriptor"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Column selects what DisplayValue renders.
type Column int

const (
	ColumnIdentifier Column = iota
	ColumnName
	ColumnValue
)

var (
	ErrNodeNotFound = errors.New("node not found")
	ErrWrongKind    = errors.New("wrong node kind")
)

// Node is one service, characteristic or descriptor.
type Node struct {
	ID     string
	UUID   string
	Kind   Kind
	Parent string
	// Value is nil until the first read completes. Services never carry one.
	Value []byte

	children []string
}

// ChildCount returns the number of direct children.
func (n Node) ChildCount() int {
	return len(n.children)
}

// Tree is not safe for concurrent use; the session manager owns the live tree
// and hands out clones.
type Tree struct {
	roots []string
	nodes map[string]*Node
}

func New() *Tree {
	return &Tree{nodes: make(map[string]*Node)}
}

// Reset empties the tree.
func (t *Tree) Reset() {
	t.roots = nil
	t.nodes = make(map[string]*Node)
}

// Len returns the total number of nodes.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// AddServices merges discovered services into the tree. Services already present
// keep their position and their subtree; new ones are appended in the given order.
// Returns the number of services added.
func (t *Tree) AddServices(services []radio.Attribute) int {
	added := 0
	for _, a := range services {
		if t.insert(Root, KindService, a) {
			t.roots = append(t.roots, a.ID)
			added++
		}
	}
	return added
}

// AppendCharacteristics appends characteristics under a service.
// Returns the number of characteristics added.
func (t *Tree) AppendCharacteristics(serviceID string, chars []radio.Attribute) (int, error) {
	return t.appendChildren(serviceID, KindService, KindCharacteristic, chars)
}

// AppendDescriptors appends descriptors under a characteristic.
// Returns the number of descriptors added.
func (t *Tree) AppendDescriptors(characteristicID string, descs []radio.Attribute) (int, error) {
	return t.appendChildren(characteristicID, KindCharacteristic, KindDescriptor, descs)
}

func (t *Tree) appendChildren(parentID string, parentKind, kind Kind, attrs []radio.Attribute) (int, error) {
	parent, ok := t.nodes[parentID]
	if !ok {
		return 0, fmt.Errorf("%s %q: %w", parentKind, parentID, ErrNodeNotFound)
	}
	if parent.Kind != parentKind {
		return 0, fmt.Errorf("%q is a %s, not a %s: %w", parentID, parent.Kind, parentKind, ErrWrongKind)
	}

	added := 0
	for _, a := range attrs {
		if t.insert(parentID, kind, a) {
			parent.children = append(parent.children, a.ID)
			added++
		}
	}
	return added, nil
}

// insert registers a node unless its id is already taken.
func (t *Tree) insert(parentID string, kind Kind, a radio.Attribute) bool {
	if _, exists := t.nodes[a.ID]; exists {
		return false
	}
	t.nodes[a.ID] = &Node{
		ID:     a.ID,
		UUID:   a.UUID,
		Kind:   kind,
		Parent: parentID,
	}
	return true
}

// SetValue stores the latest value read for a characteristic or descriptor.
func (t *Tree) SetValue(id string, value []byte) error {
	n, ok := t.nodes[id]
	if !ok {
		return fmt.Errorf("attribute %q: %w", id, ErrNodeNotFound)
	}
	if n.Kind == KindService {
		return fmt.Errorf("service %q has no value: %w", id, ErrWrongKind)
	}
	n.Value = append([]byte{}, value...)
	return nil
}

// ChildCount returns the number of children of parentID; Root yields the services.
// Unknown ids have no children.
func (t *Tree) ChildCount(parentID string) int {
	if parentID == Root {
		return len(t.roots)
	}
	if n, ok := t.nodes[parentID]; ok {
		return len(n.children)
	}
	return 0
}

// Child returns the child of parentID at index.
func (t *Tree) Child(parentID string, index int) (Node, bool) {
	ids := t.roots
	if parentID != Root {
		n, ok := t.nodes[parentID]
		if !ok {
			return Node{}, false
		}
		ids = n.children
	}
	if index < 0 || index >= len(ids) {
		return Node{}, false
	}
	return t.Node(ids[index])
}

// Node returns a copy of the node with the given id.
func (t *Tree) Node(id string) (Node, bool) {
	n, ok := t.nodes[id]
	if !ok {
		return Node{}, false
	}
	cp := *n
	cp.Value = cloneBytes(n.Value)
	cp.children = append([]string(nil), n.children...)
	return cp, true
}

// IsExpandable reports whether the node has at least one child.
func (t *Tree) IsExpandable(id string) bool {
	return t.ChildCount(id) > 0
}

// DisplayValue renders one column of a node: its UUID, its well-known name
// (falling back to the UUID) or its value as lowercase hex. Unknown ids render as "".
func (t *Tree) DisplayValue(id string, col Column) string {
	n, ok := t.nodes[id]
	if !ok {
		return ""
	}
	switch col {
	case ColumnName:
		if name := knownName(n); name != "" {
			return name
		}
		return n.UUID
	case ColumnValue:
		return hex.EncodeToString(n.Value)
	default:
		return n.UUID
	}
}

func knownName(n *Node) string {
	switch n.Kind {
	case KindService:
		return bledb.LookupService(n.UUID)
	case KindCharacteristic:
		return bledb.LookupCharacteristic(n.UUID)
	case KindDescriptor:
		return bledb.LookupDescriptor(n.UUID)
	}
	return ""
}

// Walk visits the tree depth-first in discovery order. Returning false from fn
// skips the node's subtree.
func (t *Tree) Walk(fn func(depth int, n Node) bool) {
	var visit func(ids []string, depth int)
	visit = func(ids []string, depth int) {
		for _, id := range ids {
			n, _ := t.Node(id)
			if fn(depth, n) {
				visit(n.children, depth+1)
			}
		}
	}
	visit(t.roots, 0)
}

// Clone returns a deep copy that can be handed to another goroutine.
func (t *Tree) Clone() *Tree {
	c := &Tree{
		roots: append([]string(nil), t.roots...),
		nodes: make(map[string]*Node, len(t.nodes)),
	}
	for id := range t.nodes {
		n, _ := t.Node(id)
		c.nodes[id] = &n
	}
	return c
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append([]byte{}, b...)
}
