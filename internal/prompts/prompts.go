package prompts

import (
	_ "embed"
	"fmt"
	"strings"
)

//go:embed system_r2sleuth.txt
var baseSystemPrompt string

// DefaultInstruction is used when the CLI receives no initial request.
const DefaultInstruction = "Analyze the main function logic."

// Base returns the built-in system prompt, which states the directive
// syntax the remote model must use.
func Base() string {
	return strings.TrimSpace(baseSystemPrompt)
}

// Combine joins the built-in prompt with an optional user-provided prompt.
func Combine(user string) string {
	base := Base()
	trimmed := strings.TrimSpace(user)
	if trimmed == "" {
		return base
	}
	return base + "\n\n" + trimmed
}

// InitialRequest formats the first user turn describing the target binary
// and the analysis instruction.
func InitialRequest(targetFile, instruction string) string {
	if strings.TrimSpace(instruction) == "" {
		instruction = DefaultInstruction
	}
	return fmt.Sprintf("Target: %s\nRequest: %s", targetFile, instruction)
}
