package llm

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"litassist/internal/logging"
)

var (
	encodersMu sync.Mutex
	encoders   = map[string]*tiktoken.Tiktoken{}

	// loadEncoding is replaceable in tests to force the estimator path.
	loadEncoding = func(model string) (*tiktoken.Tiktoken, error) {
		if enc, err := tiktoken.EncodingForModel(model); err == nil {
			return enc, nil
		}
		return tiktoken.GetEncoding("cl100k_base")
	}
)

// CountTokens counts the tokens in text for the given model, used for
// document-inclusion budgeting and usage statistics. When no encoding can be
// loaded it falls back to a chars/4 estimate.
func CountTokens(model, text string) int {
	enc := encoderFor(model)
	if enc == nil {
		return estimateTokens(text)
	}
	return len(enc.Encode(text, nil, nil))
}

// CountMessagesTokens sums the content tokens of a conversation plus a small
// per-message framing overhead.
func CountMessagesTokens(model string, msgs []Message) int {
	total := 0
	for _, m := range msgs {
		total += CountTokens(model, m.Content) + 4
	}
	return total
}

func encoderFor(model string) *tiktoken.Tiktoken {
	encodersMu.Lock()
	defer encodersMu.Unlock()

	if enc, ok := encoders[model]; ok {
		return enc
	}
	enc, err := loadEncoding(model)
	if err != nil {
		logging.GatewayWarn("Token encoding unavailable for %s, using character estimate: %v", model, err)
		enc = nil
	}
	encoders[model] = enc
	return enc
}

func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}
