// Package merkle is a content-addressed Merkle DAG of JSON documents.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Node is a single content-addressed node in the DAG.
type Node struct {
	// Hash is the content-addressed identifier (SHA-256, hex-encoded)
	Hash string `json:"hash"`

	// ParentHash links to the previous node. Nil for root nodes.
	ParentHash *string `json:"parent_hash"`

	// Content is the canonical JSON encoding of the node payload.
	Content json.RawMessage `json:"content"`
}

// NewNode encodes content and links it under parent. Identical content under
// the same parent always yields the same hash.
func NewNode(content any, parent *Node) (*Node, error) {
	data, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("encode node content: %w", err)
	}

	n := &Node{Content: data}
	if parent != nil {
		h := parent.Hash
		n.ParentHash = &h
	}
	n.Hash = n.computeHash()

	return n, nil
}

// Decode unmarshals the node content into v.
func (n *Node) Decode(v any) error {
	return json.Unmarshal(n.Content, v)
}

// Verify reports whether the hash matches the content and parent link.
func (n *Node) Verify() bool {
	return n.Hash == n.computeHash()
}

// Canonical reports whether Content is valid JSON in the form json.Marshal
// produces: compact with HTML characters escaped. Only canonical nodes keep
// their hash when re-encoded for transfer.
func (n *Node) Canonical() bool {
	var compact bytes.Buffer
	if err := json.Compact(&compact, n.Content); err != nil {
		return false
	}
	var escaped bytes.Buffer
	json.HTMLEscape(&escaped, compact.Bytes())

	return bytes.Equal(escaped.Bytes(), n.Content)
}

func (n *Node) computeHash() string {
	h := sha256.New()
	if n.ParentHash != nil {
		h.Write([]byte(*n.ParentHash))
	}
	// Separator keeps parent and content from running together
	h.Write([]byte{0})
	h.Write(n.Content)

	return hex.EncodeToString(h.Sum(nil))
}
