package pipeline

import (
	"fmt"
	"strings"
)

func responderDirective(knowledge string) string {
	var sb strings.Builder
	sb.WriteString("You are the Responder. Answer ONLY from the Provided Context below.\n")
	sb.WriteString(fmt.Sprintf("- If the context does not fully support an answer, reply exactly: %q\n", FallbackAnswer))
	sb.WriteString("- Be concise and factual.\n")
	sb.WriteString("\nProvided Context:\n")
	sb.WriteString(strings.TrimSpace(knowledge))
	return sb.String()
}

func validatorDirective(knowledge string) string {
	var sb strings.Builder
	sb.WriteString("You are the Validator, an auditor. Check that the draft answer is FULLY supported by the Provided Context.\n")
	sb.WriteString("- If every part is supported, approve it.\n")
	sb.WriteString("- If any part is unsupported or speculative, write a corrected answer that uses ONLY the context.\n")
	sb.WriteString(fmt.Sprintf("- If no correct answer can be formed from the context, the final answer must be exactly: %q\n", FallbackAnswer))
	sb.WriteString("\nRespond with strict JSON only, exactly these fields:\n")
	sb.WriteString(`{"verdict": "approve" | "revise", "final_answer": string, "reasons": [string, ...]}`)
	sb.WriteString("\nDo not write anything outside the JSON object.\n")
	sb.WriteString("\nProvided Context:\n")
	sb.WriteString(strings.TrimSpace(knowledge))
	return sb.String()
}

func validatorPayload(question, draft string) string {
	return fmt.Sprintf("Question:\n%s\n\nDraft Answer:\n%s", strings.TrimSpace(question), strings.TrimSpace(draft))
}
