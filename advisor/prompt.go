package advisor

import (
	"fmt"
	"strings"
)

// Number of earlier exchanges carried into the prompt.
const historyExchanges = 3

const defaultImageQuestion = "What do you see in this image? Are there any signs of disease or health issues?"

// Exchange is one earlier question and its answer.
type Exchange struct {
	User      string `json:"user" validate:"max=4000"`
	Assistant string `json:"assistant" validate:"max=20000"`
}

// VeterinaryPrompt wraps a text question in the assistant instructions. Only
// the last few complete exchanges of history are included.
func VeterinaryPrompt(question string, history []Exchange) string {
	var conversation strings.Builder
	recent := history[max(0, len(history)-historyExchanges):]
	for _, exchange := range recent {
		if exchange.User == "" || exchange.Assistant == "" {
			continue
		}
		fmt.Fprintf(&conversation, "User: %s\nAssistant: %s\n", exchange.User, exchange.Assistant)
	}

	preamble := ""
	if conversation.Len() > 0 {
		preamble = "\nPrevious conversation:\n" + conversation.String() + "\nCurrent question:\n"
	}

	return fmt.Sprintf(`You are a veterinary AI assistant. %sAnswer this question: %s

Provide:
- Accurate, practical advice
- Key symptoms or treatments
- When to see a vet
- Prevention tips if relevant

Keep response focused and helpful.`, preamble, question)
}

// ImagePrompt asks for an analysis of an attached animal photo.
func ImagePrompt(question string) string {
	if strings.TrimSpace(question) == "" {
		question = defaultImageQuestion
	}
	return fmt.Sprintf(`Analyze this animal image and answer: %s

Provide:
1. Animal type and visible condition
2. Any health concerns or disease signs
3. Recommendations
4. When to see a vet

Be specific but concise.`, question)
}
