package pipeline_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/verity/pkg/llm"
	"github.com/papercomputeco/verity/pkg/llm/llmtest"
	"github.com/papercomputeco/verity/pkg/pipeline"
)

var _ = Describe("Validator", func() {
	var ctx context.Context

	BeforeEach(func() {
		ctx = context.Background()
	})

	It("requires a backend", func() {
		_, err := pipeline.NewValidator(nil, nil)
		Expect(err).To(HaveOccurred())
	})

	It("sends the question and draft in JSON mode under an auditor directive", func() {
		backend := llmtest.New(`{"verdict":"approve","final_answer":"","reasons":[]}`)
		v, err := pipeline.NewValidator(backend, nil)
		Expect(err).NotTo(HaveOccurred())

		_, err = v.Validate(ctx, "The sky is blue.", "What color is the sky?", "The sky is blue.", pipeline.Settings{Model: "m"})
		Expect(err).NotTo(HaveOccurred())

		req := backend.Requests()[0]
		Expect(req.Model).To(Equal("m"))
		Expect(req.Format).To(Equal(llm.FormatJSON))
		Expect(req.UserPrompt()).To(Equal("Question:\nWhat color is the sky?\n\nDraft Answer:\nThe sky is blue."))
		Expect(req.SystemPrompt()).To(ContainSubstring("The sky is blue."))
		Expect(req.SystemPrompt()).To(ContainSubstring(`"verdict"`))
		Expect(req.SystemPrompt()).To(ContainSubstring(pipeline.FallbackAnswer))
	})

	DescribeTable("clamps its temperature to 0.3",
		func(caller, used float64) {
			backend := llmtest.New(`{"verdict":"approve"}`)
			v, _ := pipeline.NewValidator(backend, nil)

			_, err := v.Validate(ctx, "c", "q", "d", pipeline.Settings{Temperature: caller})
			Expect(err).NotTo(HaveOccurred())

			t, ok := backend.Requests()[0].Temperature()
			Expect(ok).To(BeTrue())
			Expect(t).To(Equal(used))
		},
		Entry("cold caller", 0.1, 0.1),
		Entry("warm caller", 0.8, 0.3),
	)

	It("fails closed on a missing completion", func() {
		v, _ := pipeline.NewValidator(llmtest.NewWithReplies(llmtest.Reply{Missing: true}), nil)

		verdict, err := v.Validate(ctx, "c", "q", "d", pipeline.Settings{})
		Expect(err).NotTo(HaveOccurred())
		Expect(verdict.FailedClosed()).To(BeTrue())
		Expect(verdict.FinalAnswer()).To(Equal(pipeline.FallbackAnswer))
		Expect(verdict.RawOutput()).To(BeEmpty())
	})

	It("keeps the trimmed raw output", func() {
		v, _ := pipeline.NewValidator(llmtest.New("  Sure, I approve!\n"), nil)

		verdict, err := v.Validate(ctx, "c", "q", "d", pipeline.Settings{})
		Expect(err).NotTo(HaveOccurred())
		Expect(verdict.RawOutput()).To(Equal("Sure, I approve!"))
	})

	It("propagates backend failures as transport errors", func() {
		boom := errors.New("503 service unavailable")
		v, _ := pipeline.NewValidator(llmtest.NewWithReplies(llmtest.Reply{Err: boom}), nil)

		_, err := v.Validate(ctx, "c", "q", "d", pipeline.Settings{})
		Expect(err).To(MatchError(boom))

		var transportErr *pipeline.TransportError
		Expect(errors.As(err, &transportErr)).To(BeTrue())
		Expect(transportErr.Stage).To(Equal(pipeline.StageValidator))
	})
})
