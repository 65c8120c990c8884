package askcmder

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/verity/cmd/verity/bootstrap"
	"github.com/papercomputeco/verity/pkg/backend"
	"github.com/papercomputeco/verity/pkg/llm"
	"github.com/papercomputeco/verity/pkg/llm/llmtest"
	"github.com/papercomputeco/verity/pkg/merkle"
	"github.com/papercomputeco/verity/pkg/pipeline"
)

const approveJSON = `{"verdict":"approve","final_answer":"","reasons":["Stated in the context."]}`

var _ = Describe("Ask Command", func() {
	var (
		ctx     context.Context
		tmpDir  string
		scripts *llmtest.Backend
		stdout  *bytes.Buffer
		stderr  *bytes.Buffer
	)

	BeforeEach(func() {
		ctx = context.Background()
		tmpDir = GinkgoT().TempDir()
		stdout = &bytes.Buffer{}
		stderr = &bytes.Buffer{}

		original := bootstrap.NewBackend
		DeferCleanup(func() { bootstrap.NewBackend = original })
	})

	useBackend := func(b *llmtest.Backend) {
		scripts = b
		bootstrap.NewBackend = func(context.Context, backend.Config, *zap.Logger) (llm.Backend, error) {
			return b, nil
		}
	}

	writeContext := func(body string) string {
		path := filepath.Join(tmpDir, "context.txt")
		Expect(os.WriteFile(path, []byte(body), 0o600)).To(Succeed())
		return path
	}

	execute := func(stdin string, args ...string) error {
		cmd := NewAskCmd()
		cmd.SetArgs(args)
		cmd.SetIn(strings.NewReader(stdin))
		cmd.SetOut(stdout)
		cmd.SetErr(stderr)
		return cmd.ExecuteContext(ctx)
	}

	It("prints an approved draft verbatim", func() {
		useBackend(llmtest.New("The office opens at 9am.", approveJSON))
		path := writeContext("The office opens at 9am.")

		Expect(execute("", "--context-file", path, "When", "does", "it", "open?")).To(Succeed())

		Expect(stdout.String()).To(Equal("The office opens at 9am.\n"))
		reqs := scripts.Requests()
		Expect(reqs).To(HaveLen(2))
		Expect(reqs[0].UserPrompt()).To(Equal("When does it open?"))
	})

	It("reads a piped context from stdin", func() {
		useBackend(llmtest.New("Blue.", approveJSON))

		Expect(execute("The sky is blue.", "-q", "What colour is the sky?")).To(Succeed())

		Expect(stdout.String()).To(Equal("Blue.\n"))
		Expect(scripts.Requests()[0].SystemPrompt()).To(ContainSubstring("The sky is blue."))
	})

	It("prints the fallback when the validator output is unusable", func() {
		useBackend(llmtest.New("A guess.", "I think it's fine"))
		path := writeContext("kb")

		Expect(execute("", "-f", path, "--details", "q?")).To(Succeed())

		Expect(stdout.String()).To(Equal(pipeline.FallbackAnswer + "\n"))
		Expect(stderr.String()).To(ContainSubstring("verdict: revise"))
		Expect(stderr.String()).To(ContainSubstring("fail-closed"))
		Expect(stderr.String()).To(ContainSubstring("A guess."))
	})

	It("prints plain details when stderr is not a terminal", func() {
		useBackend(llmtest.New("Blue.", approveJSON))
		path := writeContext("The sky is blue.")

		Expect(execute("", "-f", path, "--details", "What colour?")).To(Succeed())

		Expect(stdout.String()).To(Equal("Blue.\n"))
		Expect(stderr.String()).To(HavePrefix("verdict: approve\n"))
		Expect(stderr.String()).To(ContainSubstring("  - Stated in the context.\n"))
		Expect(stderr.String()).To(ContainSubstring("raw validator output:\n" + approveJSON + "\n"))
		Expect(stderr.String()).NotTo(ContainSubstring("\x1b["))
	})

	It("applies model and temperature overrides", func() {
		useBackend(llmtest.New("d", approveJSON))
		path := writeContext("kb")

		Expect(execute("", "-f", path, "-m", "other", "-t", "0.8", "q?")).To(Succeed())

		reqs := scripts.Requests()
		Expect(reqs[0].Model).To(Equal("other"))
		t, _ := reqs[0].Temperature()
		Expect(t).To(Equal(0.8))
		t, _ = reqs[1].Temperature()
		Expect(t).To(Equal(pipeline.MaxValidatorTemperature))
	})

	It("rejects an out of range temperature", func() {
		useBackend(llmtest.New())
		path := writeContext("kb")

		Expect(execute("", "-f", path, "-t", "2", "q?")).To(MatchError(ContainSubstring("temperature")))
		Expect(scripts.Requests()).To(BeEmpty())
	})

	It("requires a question", func() {
		useBackend(llmtest.New())

		Expect(execute("kb")).To(MatchError(ContainSubstring("question is required")))
	})

	It("rejects an empty context without calling the backend", func() {
		useBackend(llmtest.New())

		err := execute("   \n", "q?")
		Expect(errors.Is(err, pipeline.ErrEmptyContext)).To(BeTrue())
		Expect(scripts.Requests()).To(BeEmpty())
	})

	It("surfaces transport failures", func() {
		useBackend(llmtest.NewWithReplies(llmtest.Reply{Err: errors.New("dial tcp: refused")}))
		path := writeContext("kb")

		err := execute("", "-f", path, "q?")
		var transportErr *pipeline.TransportError
		Expect(errors.As(err, &transportErr)).To(BeTrue())
		Expect(transportErr.Stage).To(Equal(pipeline.StageResponder))
		Expect(stdout.String()).To(BeEmpty())
	})

	It("records the transcript when --sqlite is given", func() {
		useBackend(llmtest.New("9am.", approveJSON))
		path := writeContext("The office opens at 9am.")
		dbPath := filepath.Join(tmpDir, "verity.db")

		Expect(execute("", "-f", path, "--sqlite", dbPath, "When?")).To(Succeed())

		storer, err := merkle.NewSQLiteStorer(dbPath)
		Expect(err).NotTo(HaveOccurred())
		defer storer.Close()

		nodes, err := storer.List(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(nodes).To(HaveLen(5))
	})
})
