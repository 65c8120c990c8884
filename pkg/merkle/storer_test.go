package merkle_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/verity/pkg/merkle"
)

// chain builds root -> a -> b and a sibling branch root -> c.
func chain() (root, a, b, c *merkle.Node) {
	root, _ = merkle.NewNode("root", nil)
	a, _ = merkle.NewNode("a", root)
	b, _ = merkle.NewNode("b", a)
	c, _ = merkle.NewNode("c", root)
	return root, a, b, c
}

func hashes(nodes []*merkle.Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Hash
	}
	return out
}

func storerBehavior(newStorer func() merkle.Storer) {
	var (
		storer merkle.Storer
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		storer = newStorer()
	})

	AfterEach(func() {
		Expect(storer.Close()).To(Succeed())
	})

	Describe("Put and Get", func() {
		It("stores and retrieves a node", func() {
			node, _ := merkle.NewNode(map[string]string{"k": "v"}, nil)

			isNew, err := storer.Put(ctx, node)
			Expect(err).NotTo(HaveOccurred())
			Expect(isNew).To(BeTrue())

			got, err := storer.Get(ctx, node.Hash)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Hash).To(Equal(node.Hash))
			Expect(got.ParentHash).To(BeNil())
			Expect(string(got.Content)).To(Equal(string(node.Content)))
			Expect(got.Verify()).To(BeTrue())
		})

		It("deduplicates nodes by hash", func() {
			node, _ := merkle.NewNode("dup", nil)

			isNew, err := storer.Put(ctx, node)
			Expect(err).NotTo(HaveOccurred())
			Expect(isNew).To(BeTrue())

			isNew, err = storer.Put(ctx, node)
			Expect(err).NotTo(HaveOccurred())
			Expect(isNew).To(BeFalse())

			all, err := storer.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(all).To(HaveLen(1))
		})

		It("rejects a nil node", func() {
			_, err := storer.Put(ctx, nil)
			Expect(err).To(HaveOccurred())
		})

		It("returns ErrNotFound for unknown hashes", func() {
			_, err := storer.Get(ctx, "missing")

			var notFound merkle.ErrNotFound
			Expect(errors.As(err, &notFound)).To(BeTrue())
			Expect(notFound.Hash).To(Equal("missing"))
		})
	})

	Describe("Has", func() {
		It("reports presence", func() {
			node, _ := merkle.NewNode("x", nil)
			_, err := storer.Put(ctx, node)
			Expect(err).NotTo(HaveOccurred())

			Expect(storer.Has(ctx, node.Hash)).To(BeTrue())
			Expect(storer.Has(ctx, "nope")).To(BeFalse())
		})
	})

	Describe("traversal", func() {
		var root, a, b, c *merkle.Node

		BeforeEach(func() {
			root, a, b, c = chain()
			for _, n := range []*merkle.Node{root, a, b, c} {
				_, err := storer.Put(ctx, n)
				Expect(err).NotTo(HaveOccurred())
			}
		})

		It("lists nodes in insertion order", func() {
			all, err := storer.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(hashes(all)).To(Equal([]string{root.Hash, a.Hash, b.Hash, c.Hash}))
		})

		It("returns roots for a nil parent", func() {
			roots, err := storer.Children(ctx, nil)
			Expect(err).NotTo(HaveOccurred())
			Expect(hashes(roots)).To(Equal([]string{root.Hash}))
		})

		It("returns the direct children of a node", func() {
			children, err := storer.Children(ctx, &root.Hash)
			Expect(err).NotTo(HaveOccurred())
			Expect(hashes(children)).To(Equal([]string{a.Hash, c.Hash}))
		})

		It("returns nodes without children as leaves", func() {
			leaves, err := storer.Leaves(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(hashes(leaves)).To(Equal([]string{b.Hash, c.Hash}))
		})

		It("walks ancestry from a node back to its root", func() {
			path, err := merkle.Ancestry(ctx, storer, b.Hash)
			Expect(err).NotTo(HaveOccurred())
			Expect(hashes(path)).To(Equal([]string{b.Hash, a.Hash, root.Hash}))
		})

		It("walks lineage from the root down to a node", func() {
			path, err := merkle.Lineage(ctx, storer, b.Hash)
			Expect(err).NotTo(HaveOccurred())
			Expect(hashes(path)).To(Equal([]string{root.Hash, a.Hash, b.Hash}))
		})

		It("fails ancestry when a link is missing", func() {
			orphan, _ := merkle.NewNode("orphan", &merkle.Node{Hash: "gone"})
			_, err := storer.Put(ctx, orphan)
			Expect(err).NotTo(HaveOccurred())

			_, err = merkle.Ancestry(ctx, storer, orphan.Hash)
			Expect(errors.As(err, &merkle.ErrNotFound{})).To(BeTrue())
		})
	})
}

var _ = Describe("MemoryStorer", func() {
	storerBehavior(func() merkle.Storer { return merkle.NewMemoryStorer() })
})

var _ = Describe("SQLiteStorer", func() {
	storerBehavior(func() merkle.Storer {
		s, err := merkle.NewSQLiteStorer(":memory:")
		Expect(err).NotTo(HaveOccurred())
		return s
	})

	It("persists nodes to a database file", func() {
		dbPath := filepath.Join(GinkgoT().TempDir(), "verity.db")
		ctx := context.Background()

		s, err := merkle.NewSQLiteStorer(dbPath)
		Expect(err).NotTo(HaveOccurred())
		node, _ := merkle.NewNode("durable", nil)
		_, err = s.Put(ctx, node)
		Expect(err).NotTo(HaveOccurred())
		Expect(s.Close()).To(Succeed())

		_, err = os.Stat(dbPath)
		Expect(err).NotTo(HaveOccurred())

		reopened, err := merkle.NewSQLiteStorer(dbPath)
		Expect(err).NotTo(HaveOccurred())
		defer reopened.Close()

		got, err := reopened.Get(ctx, node.Hash)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.Verify()).To(BeTrue())
	})
})
