package agent

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

const defaultPromptTemplate = `You are LMAgent, an AI coding assistant.

You have access to the following tools:
{tools}

When you need to take an action:
1. Think about what you need to do
2. Choose the appropriate tool
3. Call the tool with the required parameters
4. Observe the result
5. Continue or provide final answer

Be concise and efficient. Focus on solving the user's task.`

// DefaultSystemPrompt renders the stock prompt around a tool catalogue.
func DefaultSystemPrompt(catalogue string) string {
	return strings.Replace(defaultPromptTemplate, "{tools}", catalogue, 1)
}

// systemPrompt picks, in order: an explicit override, the configured prompt
// file under the project root, the default prompt.
func (r *Runtime) systemPrompt() string {
	if r.promptOverride != "" {
		return r.promptOverride
	}
	if p := r.cfg.SystemPromptPath; p != "" {
		if !filepath.IsAbs(p) {
			p = filepath.Join(r.projectRoot, p)
		}
		data, err := os.ReadFile(p)
		if err == nil {
			return string(data)
		}
		r.log.Warn("system prompt not readable, using default", zap.String("path", p), zap.Error(err))
	}
	return DefaultSystemPrompt(r.registry.Catalogue())
}
