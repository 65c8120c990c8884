package pushcmder

import (
	"bytes"
	"context"
	"net"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	verityapi "github.com/papercomputeco/verity/api"
	"github.com/papercomputeco/verity/pkg/llm/llmtest"
	"github.com/papercomputeco/verity/pkg/merkle"
	"github.com/papercomputeco/verity/pkg/pipeline"
	"github.com/papercomputeco/verity/pkg/transcript"
)

var _ = Describe("Push Command", func() {
	var (
		ctx       context.Context
		localPath string
		out       *bytes.Buffer
	)

	BeforeEach(func() {
		ctx = context.Background()
		localPath = filepath.Join(GinkgoT().TempDir(), "local.db")
		out = &bytes.Buffer{}
	})

	makeNode := func(kind transcript.Kind, text string, parent *merkle.Node) *merkle.Node {
		node, err := merkle.NewNode(transcript.Entry{Kind: kind, Text: text}, parent)
		Expect(err).NotTo(HaveOccurred())
		return node
	}

	seed := func(nodes ...*merkle.Node) {
		local, err := merkle.NewSQLiteStorer(localPath)
		Expect(err).NotTo(HaveOccurred())
		defer local.Close()
		for _, n := range nodes {
			_, err := local.Put(ctx, n)
			Expect(err).NotTo(HaveOccurred())
		}
	}

	startServer := func() (string, *merkle.MemoryStorer) {
		serverStorer := merkle.NewMemoryStorer()
		logger := zap.NewNop()

		recorder, err := transcript.NewRecorder(serverStorer, logger)
		Expect(err).NotTo(HaveOccurred())
		p, err := pipeline.New(llmtest.New(), logger)
		Expect(err).NotTo(HaveOccurred())

		srv, err := verityapi.NewServer(verityapi.Config{ListenAddr: ":0"}, p, recorder, logger)
		Expect(err).NotTo(HaveOccurred())

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())

		go func() {
			_ = srv.RunWithListener(listener)
		}()
		DeferCleanup(func() { _ = srv.Shutdown(context.Background()) })

		return "http://" + listener.Addr().String(), serverStorer
	}

	push := func(addr string, extra ...string) error {
		cmd := NewPushCmd()
		cmd.SetArgs(append(append([]string{"--sqlite", localPath}, extra...), addr))
		cmd.SetOut(out)
		return cmd.ExecuteContext(ctx)
	}

	It("pushes local nodes to a remote server", func() {
		nodeA := makeNode(transcript.KindContext, "hello from push test", nil)
		nodeB := makeNode(transcript.KindQuestion, "hi back from push test", nodeA)
		seed(nodeA, nodeB)

		addr, serverStorer := startServer()

		Expect(push(addr)).To(Succeed())

		nodes, err := serverStorer.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(nodes).To(HaveLen(2))
		Expect(out.String()).To(ContainSubstring("Pushed 2 new nodes (0 already existed, 0 errors)"))
	})

	It("deduplicates on double push", func() {
		seed(makeNode(transcript.KindContext, "dedup push test", nil))

		addr, serverStorer := startServer()

		Expect(push(addr)).To(Succeed())
		Expect(push(addr)).To(Succeed())

		nodes, err := serverStorer.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(nodes).To(HaveLen(1))
	})

	It("sends nodes in batches", func() {
		root := makeNode(transcript.KindContext, "root", nil)
		nodes := []*merkle.Node{root}
		for _, q := range []string{"a", "b", "c", "d", "e"} {
			nodes = append(nodes, makeNode(transcript.KindQuestion, q, root))
		}
		seed(nodes...)

		addr, serverStorer := startServer()

		Expect(push(addr, "--batch-size", "2")).To(Succeed())

		stored, err := serverStorer.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(stored).To(HaveLen(6))
	})

	It("reports an empty database", func() {
		seed()

		Expect(push("http://127.0.0.1:1")).To(Succeed())
		Expect(out.String()).To(ContainSubstring("No local nodes to push."))
	})

	It("fails when the server is unreachable", func() {
		seed(makeNode(transcript.KindContext, "x", nil))

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		addr := "http://" + listener.Addr().String()
		listener.Close()

		Expect(push(addr)).To(MatchError(ContainSubstring("push failed")))
	})
})
