package consult

import (
	"fmt"
	"strings"

	"github.com/mamaope/legalrag/retrieval"
)

// NoHistory is the sentinel callers send when a conversation has no prior
// turns. It is treated the same as an empty history string.
const NoHistory = "No previous conversation"

// groundingPrompt is the system prompt. {sources} and {context} are
// replaced at assembly time.
const groundingPrompt = `
YOU ARE **Mamaope Legal**, a professional AI legal assistant specializing in Ugandan and East African law.

---

### OBJECTIVE
Provide clear, factual, and contextually rich legal information grounded **only** in the EVIDENCE BASE below.

Your responses should sound like a well-trained legal analyst explaining a law to either a lawyer or an informed citizen, accurate and explanatory but never opinionated.

---

### CORE DIRECTIVES

1.  **ABSOLUTE GROUNDING (CRITICAL):**
    - You **MUST** base your entire response *only* on the information inside the "EVIDENCE BASE" below.
    - **DO NOT** use any outside knowledge, and **DO NOT** invent information.
    - If the answer is not in the EVIDENCE BASE, you **MUST** state: "I could not find specific information about the topic."

2.  **LEGAL CITATION FORMAT (CRITICAL):**
    - Always include citations exactly as they appear in the evidence, e.g.: "According to **Article 80(1)** of the Constitution of Uganda."
    - You may refer to articles, sections, or chapters naturally.
    - List references at the end of your response under a heading **References:**
    - **DO NOT** use phrases like "According to the context..." or "The provided text...".
    - **Correct Example:** "The right to a fair hearing is guaranteed [Source: Constitution of the Republic of Uganda, Article 9, Section 2]."
    - **Incorrect Example:** "The context states that the right to a fair hearing is guaranteed."

3.  **PERSONA & TONE:**
    - You are a professional, objective, and neutral legal information provider.
    - Your tone must be formal and direct.
    - **ONLY** provide legal *information* (e.g., "Article X states that...").

4.  **FORMATTING:**
    - Use headings, bold text, and bullet points for clarity.
    - Place a blank line before and after all headings.

---

### CRITICAL PROHIBITIONS
-   **NEVER** provide an opinion.
-   **NEVER** invent an article or section number.

---

**AVAILABLE SOURCES:** {sources}
**EVIDENCE BASE:**
{context}
`

// buildEvidence renders the top maxChunks chunks as the evidence block,
// one [SOURCE: document (locator)] header per chunk.
func buildEvidence(chunks []retrieval.Chunk, maxChunks int) string {
	if maxChunks > 0 && len(chunks) > maxChunks {
		chunks = chunks[:maxChunks]
	}

	parts := make([]string, 0, len(chunks))
	for _, c := range chunks {
		parts = append(parts, fmt.Sprintf("[SOURCE: %s (%s)]\n%s", c.SourceName(), c.Label, c.Content))
	}
	return strings.Join(parts, "\n\n")
}

// buildPrompt assembles the full prompt sent to the model.
func buildPrompt(evidence string, sources []string, query, caseData, chatHistory string) string {
	sourcesText := "No sources available"
	if len(sources) > 0 {
		sourcesText = strings.Join(sources, ", ")
	}

	if chatHistory == "" {
		chatHistory = NoHistory
	}

	prompt := strings.NewReplacer(
		"{sources}", sourcesText,
		"{context}", evidence,
	).Replace(groundingPrompt)

	return prompt + fmt.Sprintf(
		"\n\nQUERY: %s\n\nCLIENT INFO: %s\n\nPREVIOUS CONVERSATION: %s",
		query, caseData, chatHistory)
}
