package query

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/codematrix/internal/metadata"
)

// systemPrompt frames every repository question.
const systemPrompt = `You are a senior software engineer and an expert in the codebase provided.
Answer the user's question based only on the following context.
If the answer is not in the context, say you don't know.
Be concise and provide code snippets from the context if they are relevant.`

func buildPrompt(repoID string, meta *metadata.RepoMetadata, chunks []string, req Request) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Repository: %s\n", repoID)
	b.WriteString(meta.Summary())
	b.WriteString("\n\nContext:\n")
	b.WriteString(strings.Join(chunks, "\n\n"))
	b.WriteString("\n\n")

	if req.FocusFile != "" {
		fmt.Fprintf(&b, "The user is currently viewing %s", req.FocusFile)
		if req.CursorPosition != nil {
			fmt.Fprintf(&b, " with the cursor at line %d", *req.CursorPosition)
		}
		b.WriteString(". Prefer context from that file when it is relevant.\n\n")
	}

	b.WriteString("Question:\n")
	b.WriteString(req.Question)
	b.WriteString("\n\nAnswer:")
	return b.String()
}

// Explanation levels accepted by Explain.
const (
	Level5YearOld  = "5-year-old"
	Level10YearOld = "10-year-old"
	LevelTeenager  = "teenager"
	LevelAdult     = "adult"
)

var levelInstructions = map[string]string{
	Level5YearOld:  "Explain this code like I'm a 5-year-old child. Use simple words and analogies.",
	Level10YearOld: "Explain this code like I'm a 10-year-old. Use simple terms but include basic programming concepts.",
	LevelTeenager:  "Explain this code like I'm a teenager learning programming. Include technical details but keep it accessible.",
	LevelAdult:     "Explain this code for an adult programmer. Include technical details and best practices.",
}

// NormalizeLevel maps unknown levels to LevelAdult.
func NormalizeLevel(level string) string {
	level = strings.ToLower(strings.TrimSpace(level))
	if _, ok := levelInstructions[level]; ok {
		return level
	}
	return LevelAdult
}

func buildExplainPrompt(code, level string) string {
	return fmt.Sprintf("%s\n\nCode to explain:\n```\n%s\n```\n\nPlease provide a clear, well-structured explanation.",
		levelInstructions[level], strings.TrimRight(code, "\n"))
}
