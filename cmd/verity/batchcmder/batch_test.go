package batchcmder

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

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

// answering drafts "answer: <question>" and approves it, except that
// questions mentioning "unreachable" fail in transport and questions
// mentioning "unsupported" are revised.
func answering(calls *atomic.Int64) llmtest.Func {
	return func(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
		calls.Add(1)
		prompt := req.UserPrompt()
		if req.Format == llm.FormatText {
			if strings.Contains(prompt, "unreachable") {
				return nil, errors.New("connection refused")
			}
			return llmtest.Text("answer: " + prompt), nil
		}
		if strings.Contains(prompt, "unsupported") {
			return llmtest.Text(`{"verdict":"revise","final_answer":"","reasons":["Not in context."]}`), nil
		}
		return llmtest.Text(`{"verdict":"approve","final_answer":"","reasons":[]}`), nil
	}
}

var _ = Describe("Batch Command", func() {
	var (
		ctx    context.Context
		tmpDir string
		calls  atomic.Int64
		stdout *bytes.Buffer
	)

	BeforeEach(func() {
		ctx = context.Background()
		tmpDir = GinkgoT().TempDir()
		stdout = &bytes.Buffer{}
		calls.Store(0)

		original := bootstrap.NewBackend
		DeferCleanup(func() { bootstrap.NewBackend = original })
		bootstrap.NewBackend = func(context.Context, backend.Config, *zap.Logger) (llm.Backend, error) {
			return answering(&calls), nil
		}
	})

	execute := func(stdin string, args ...string) error {
		cmd := NewBatchCmd()
		cmd.SetArgs(args)
		cmd.SetIn(strings.NewReader(stdin))
		cmd.SetOut(stdout)
		cmd.SetErr(&bytes.Buffer{})
		return cmd.ExecuteContext(ctx)
	}

	outputs := func() []Output {
		var out []Output
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			var o Output
			Expect(json.Unmarshal(scanner.Bytes(), &o)).To(Succeed())
			out = append(out, o)
		}
		return out
	}

	It("answers every line in input order", func() {
		var input strings.Builder
		for i := 0; i < 20; i++ {
			input.WriteString(`{"id":"q` + string(rune('a'+i)) + `","context":"kb","question":"question ` + string(rune('a'+i)) + `"}` + "\n")
		}

		Expect(execute(input.String(), "--concurrency", "8")).To(Succeed())

		out := outputs()
		Expect(out).To(HaveLen(20))
		for i, o := range out {
			Expect(o.ID).To(Equal("q" + string(rune('a'+i))))
			Expect(o.Answer).To(Equal("answer: question " + string(rune('a'+i))))
			Expect(o.Verdict).To(Equal(pipeline.DecisionApprove))
			Expect(o.Error).To(BeEmpty())
		}
		Expect(calls.Load()).To(BeEquivalentTo(40))
	})

	It("reports per-item failures without stopping the batch", func() {
		input := strings.Join([]string{
			`{"id":"ok","context":"kb","question":"fine"}`,
			`{"id":"down","context":"kb","question":"unreachable host"}`,
			`{"id":"empty","context":"  ","question":"anything"}`,
			`not json`,
			`{"id":"hot","context":"kb","question":"q","temperature":3}`,
			`{"id":"rev","context":"kb","question":"unsupported claim"}`,
		}, "\n")

		Expect(execute(input)).To(Succeed())

		out := outputs()
		Expect(out).To(HaveLen(6))

		Expect(out[0].Answer).To(Equal("answer: fine"))

		Expect(out[1].ID).To(Equal("down"))
		Expect(out[1].Error).To(ContainSubstring("responder call failed"))
		Expect(out[1].Answer).To(BeEmpty())

		Expect(out[2].Error).To(Equal(pipeline.ErrEmptyContext.Error()))

		Expect(out[3].ID).NotTo(BeEmpty())
		Expect(out[3].Error).To(ContainSubstring("line 4: invalid JSON"))

		Expect(out[4].Error).To(ContainSubstring("temperature"))

		Expect(out[5].Verdict).To(Equal(pipeline.DecisionRevise))
		Expect(out[5].Answer).To(Equal(pipeline.FallbackAnswer))
		Expect(out[5].Reasons).To(Equal([]string{"Not in context."}))
	})

	It("uses a shared context file for items without context", func() {
		kb := filepath.Join(tmpDir, "kb.txt")
		Expect(os.WriteFile(kb, []byte("shared knowledge"), 0o600)).To(Succeed())

		Expect(execute(`{"question":"q1"}`+"\n", "--context-file", kb)).To(Succeed())

		out := outputs()
		Expect(out).To(HaveLen(1))
		Expect(out[0].ID).NotTo(BeEmpty())
		Expect(out[0].Error).To(BeEmpty())
		Expect(out[0].Answer).To(Equal("answer: q1"))
	})

	It("reads input from a file argument and records transcripts", func() {
		input := filepath.Join(tmpDir, "in.jsonl")
		Expect(os.WriteFile(input, []byte(`{"id":"a","context":"kb","question":"one"}`+"\n"+`{"id":"b","context":"kb","question":"two"}`+"\n"), 0o600)).To(Succeed())
		dbPath := filepath.Join(tmpDir, "verity.db")

		Expect(execute("", input, "--sqlite", dbPath)).To(Succeed())

		out := outputs()
		Expect(out).To(HaveLen(2))
		Expect(out[0].Transcript).NotTo(BeEmpty())
		Expect(out[1].Transcript).NotTo(BeEmpty())

		storer, err := merkle.NewSQLiteStorer(dbPath)
		Expect(err).NotTo(HaveOccurred())
		defer storer.Close()
		leaves, err := storer.Leaves(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(leaves).To(HaveLen(2))
	})

	It("rejects empty input and bad concurrency", func() {
		Expect(execute("\n\n")).To(MatchError(ContainSubstring("no questions")))
		Expect(execute(`{"question":"q"}`, "--concurrency", "0")).To(MatchError(ContainSubstring("concurrency")))
		Expect(calls.Load()).To(BeZero())
	})
})
