package providers

import (
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
)

// NoTextFound is returned by ExtractText when the response carries no text block
const NoTextFound = "No text response found"

// ExtractText returns the first text fragment of a Converse response.
// Missing structure at any level yields NoTextFound.
func ExtractText(out *bedrockruntime.ConverseOutput) string {
	if out == nil {
		return NoTextFound
	}
	msg, ok := out.Output.(*brtypes.ConverseOutputMemberMessage)
	if !ok || msg == nil {
		return NoTextFound
	}
	for _, block := range msg.Value.Content {
		if text, ok := block.(*brtypes.ContentBlockMemberText); ok && text != nil {
			return text.Value
		}
	}
	return NoTextFound
}

// preview truncates s to n runes for log output
func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
