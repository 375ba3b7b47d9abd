// Package usage estimates prompt/completion token counts for requests
// whose vendor response omits usage accounting, using the same codec the
// host's own OpenAI-compatible surface counts with.
package usage

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
	codecErr  error
)

func getCodec() (tokenizer.Codec, error) {
	codecOnce.Do(func() {
		codec, codecErr = tokenizer.Get(tokenizer.Cl100kBase)
	})
	return codec, codecErr
}

// Estimate returns the token count tiktoken's cl100k_base encoding assigns
// to text. Returns 0 on codec initialization failure rather than erroring —
// this is a best-effort estimate, never load-bearing for billing.
func Estimate(text string) int {
	if text == "" {
		return 0
	}
	enc, err := getCodec()
	if err != nil {
		return 0
	}
	ids, _, err := enc.Encode(text)
	if err != nil {
		return 0
	}
	return len(ids)
}

// EstimateAll sums Estimate across multiple text fragments (e.g. every
// message's content, every tool schema rendered to text).
func EstimateAll(fragments []string) int {
	total := 0
	for _, f := range fragments {
		total += Estimate(f)
	}
	return total
}
