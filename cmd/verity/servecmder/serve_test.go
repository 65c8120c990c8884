package servecmder

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/verity/api"
	"github.com/papercomputeco/verity/cmd/verity/bootstrap"
	"github.com/papercomputeco/verity/pkg/backend"
	"github.com/papercomputeco/verity/pkg/llm"
	"github.com/papercomputeco/verity/pkg/llm/llmtest"
	"github.com/papercomputeco/verity/pkg/merkle"
)

var _ = Describe("Serve Command", func() {
	var (
		ctx    context.Context
		cancel context.CancelFunc
	)

	BeforeEach(func() {
		ctx, cancel = context.WithCancel(context.Background())
		DeferCleanup(cancel)

		original := bootstrap.NewBackend
		DeferCleanup(func() { bootstrap.NewBackend = original })
		bootstrap.NewBackend = func(context.Context, backend.Config, *zap.Logger) (llm.Backend, error) {
			return llmtest.New("The office opens at 9am.", `{"verdict":"approve","final_answer":"","reasons":[]}`), nil
		}
	})

	It("answers over HTTP, records transcripts and shuts down on cancel", func() {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		dbPath := filepath.Join(GinkgoT().TempDir(), "verity.db")

		cmder := &serveCommander{listener: listener, ready: make(chan struct{})}
		cmd := newServeCmd(cmder)
		cmd.SetArgs([]string{"--sqlite", dbPath})

		done := make(chan error, 1)
		go func() { done <- cmd.ExecuteContext(ctx) }()
		Eventually(cmder.ready).Should(BeClosed())

		addr := "http://" + listener.Addr().String()
		Eventually(func() (int, error) {
			resp, err := http.Get(addr + "/health")
			if err != nil {
				return 0, err
			}
			resp.Body.Close()
			return resp.StatusCode, nil
		}).Should(Equal(200))

		body, _ := json.Marshal(api.ChatRequest{Context: "The office opens at 9am.", Question: "When?"})
		resp, err := http.Post(addr+"/api/chat", "application/json", bytes.NewReader(body))
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(200))

		data, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		var chat api.ChatResponse
		Expect(json.Unmarshal(data, &chat)).To(Succeed())
		Expect(chat.FinalAnswer).To(Equal("The office opens at 9am."))
		Expect(chat.Transcript).NotTo(BeEmpty())

		cancel()
		Eventually(done, "5s").Should(Receive(BeNil()))

		storer, err := merkle.NewSQLiteStorer(dbPath)
		Expect(err).NotTo(HaveOccurred())
		defer storer.Close()
		Expect(storer.Has(context.Background(), chat.Transcript)).To(BeTrue())
	})
})
