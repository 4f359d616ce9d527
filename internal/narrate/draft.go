package narrate

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/KaramelBytes/statloom-cli/internal/utils"
)

const systemPrompt = `You are a careful research assistant writing the Discussion section of a short technical report.
Use only the numbers given in the findings and results. Do not invent data, references or units.
Write 2 to 4 plain paragraphs of prose separated by blank lines. No headings, lists or tables.
State which differences are statistically significant and what they mean in practice, and note limitations such as small samples.`

// Input is what a draft is written from.
type Input struct {
	Title           string
	Findings        []string
	Results         string // Markdown rendering of the analysis sections
	Model           string
	MaxPromptTokens int
	MaxTokens       int
	Temperature     float64
}

// Discussion is a drafted section.
type Discussion struct {
	Paragraphs   []string
	PromptTokens int
	Truncated    bool
	Usage        Usage
}

// BuildPrompt assembles the chat messages. Results are cut to fit the prompt
// budget, which is also bounded by the model's context window when known.
func BuildPrompt(in Input) ([]Message, int, bool) {
	budget := in.MaxPromptTokens
	if budget <= 0 {
		budget = 12000
	}
	if mi, ok := LookupModel(in.Model); ok {
		budget = min(budget, mi.ContextTokens-in.MaxTokens-256)
	}

	var head strings.Builder
	if in.Title != "" {
		fmt.Fprintf(&head, "Report title: %s\n\n", in.Title)
	}
	head.WriteString("Key findings:\n")
	if len(in.Findings) == 0 {
		head.WriteString("- (no statistically significant findings)\n")
	}
	for _, f := range in.Findings {
		head.WriteString("- " + f + "\n")
	}
	head.WriteString("\nResults:\n")

	used := utils.CountTokens(systemPrompt) + utils.CountTokens(head.String())
	results := in.Results
	truncated := false
	if left := budget - used; utils.CountTokens(results) > left {
		results = utils.TruncateToTokenLimit(results, max(left, 0))
		truncated = true
	}
	user := head.String() + results
	return []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: user},
	}, used + utils.CountTokens(results), truncated
}

// Draft asks rt for a discussion of the findings.
func Draft(ctx context.Context, rt Runtime, in Input) (*Discussion, error) {
	if rt == nil {
		return nil, errors.New("no narrate runtime configured")
	}
	msgs, tokens, truncated := BuildPrompt(in)
	resp, err := rt.Generate(ctx, Request{
		Model:       in.Model,
		Messages:    msgs,
		MaxTokens:   in.MaxTokens,
		Temperature: in.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("draft discussion: %w", err)
	}
	paras := Paragraphs(resp.Text())
	if len(paras) == 0 {
		return nil, errors.New("draft discussion: model returned no text")
	}
	return &Discussion{Paragraphs: paras, PromptTokens: tokens, Truncated: truncated, Usage: resp.Usage}, nil
}

// Paragraphs splits model output on blank lines, dropping headings and
// joining wrapped lines.
func Paragraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	var out []string
	for _, block := range strings.Split(text, "\n\n") {
		var lines []string
		for _, l := range strings.Split(block, "\n") {
			l = strings.TrimSpace(l)
			if l == "" || strings.HasPrefix(l, "#") {
				continue
			}
			lines = append(lines, l)
		}
		if p := strings.Join(lines, " "); p != "" {
			out = append(out, p)
		}
	}
	return out
}
