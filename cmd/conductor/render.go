package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/fatih/color"

	"conductor/internal/domain"
)

const renderWidth = 100

// renderMarkdown formats an agent answer for the terminal. Plain output and
// renderer failures fall back to the raw text.
func renderMarkdown(content string, plain bool) string {
	if plain {
		return content + "\n"
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(renderWidth),
	)
	if err != nil {
		return content + "\n"
	}
	out, err := r.Render(content)
	if err != nil {
		return content + "\n"
	}
	return out
}

// footer summarizes a turn: agent, model, tokens, cost and the tools used.
func footer(resp *domain.AgentResponse) string {
	parts := []string{
		color.CyanString(resp.AgentID),
		resp.Model,
	}
	if resp.Usage != nil {
		parts = append(parts, fmt.Sprintf("%d tokens", resp.Usage.TotalTokens))
	}
	if resp.Cost != nil {
		parts = append(parts, color.GreenString("$%s", resp.Cost.TotalCost.StringFixed(6)))
	}
	parts = append(parts, fmt.Sprintf("%d iterations", resp.Iterations))

	line := strings.Join(parts, color.HiBlackString(" · "))
	if len(resp.ToolCalls) == 0 {
		return line
	}

	var tools []string
	for _, tc := range resp.ToolCalls {
		mark := color.GreenString("✓")
		if tc.Result == nil || !tc.Result.Success {
			mark = color.RedString("✗")
		}
		tools = append(tools, mark+" "+tc.Name)
	}
	return line + "\n" + color.HiBlackString("tools: ") + strings.Join(tools, ", ")
}

func writeResponse(w io.Writer, resp *domain.AgentResponse, plain bool) {
	fmt.Fprint(w, renderMarkdown(resp.Content, plain))
	fmt.Fprintln(w, footer(resp))
}
