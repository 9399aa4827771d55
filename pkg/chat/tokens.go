package chat

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
	codecErr  error
)

// CountTokens approximates the token count of text with the cl100k_base
// encoding. Falls back to a bytes/4 estimate if the codec fails to load.
func CountTokens(text string) int {
	if text == "" {
		return 0
	}

	codecOnce.Do(func() {
		codec, codecErr = tokenizer.Get(tokenizer.Cl100kBase)
	})
	if codecErr != nil {
		return len(text) / 4
	}

	ids, _, err := codec.Encode(text)
	if err != nil {
		return len(text) / 4
	}
	return len(ids)
}
