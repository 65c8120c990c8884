package merkle

import "context"

// Storer persists and traverses nodes. Deduplication is automatic: a node
// whose hash is already stored is not written again.
type Storer interface {
	// Put stores a node and reports whether it was new.
	Put(ctx context.Context, node *Node) (bool, error)

	// Get retrieves a node by its hash. Returns ErrNotFound if the node doesn't exist.
	Get(ctx context.Context, hash string) (*Node, error)

	// Has checks if a node exists by its hash.
	Has(ctx context.Context, hash string) (bool, error)

	// Children returns the nodes whose parent is parentHash. Nil returns roots.
	Children(ctx context.Context, parentHash *string) ([]*Node, error)

	// List returns all nodes in insertion order.
	List(ctx context.Context) ([]*Node, error)

	// Leaves returns all nodes without children.
	Leaves(ctx context.Context) ([]*Node, error)

	// Close releases any resources.
	Close() error
}

// ErrNotFound is returned when a node doesn't exist in the store.
type ErrNotFound struct {
	Hash string
}

func (e ErrNotFound) Error() string {
	if e.Hash == "" {
		return "node not found"
	}

	return "node not found: " + e.Hash
}

// Ancestry returns the path from hash back to its root (node first, root last).
func Ancestry(ctx context.Context, s Storer, hash string) ([]*Node, error) {
	var path []*Node
	for next := &hash; next != nil; {
		node, err := s.Get(ctx, *next)
		if err != nil {
			return nil, err
		}
		path = append(path, node)
		next = node.ParentHash
	}
	return path, nil
}

// Lineage returns the path from the root down to hash (root first).
func Lineage(ctx context.Context, s Storer, hash string) ([]*Node, error) {
	path, err := Ancestry(ctx, s, hash)
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}
