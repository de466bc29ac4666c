package governor

import (
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tiktoken-go/tokenizer"
)

// TokenEstimator approximates how many tokens a text costs against a tokens-per-minute quota.
type TokenEstimator interface {
	Estimate(text string) int
}

type tiktokenEstimator struct {
	once  sync.Once
	codec tokenizer.Codec
}

// NewTokenEstimator returns an estimator backed by the cl100k_base encoding.
// If the codec cannot be loaded it counts one token per four bytes.
func NewTokenEstimator() TokenEstimator {
	return &tiktokenEstimator{}
}

func (e *tiktokenEstimator) Estimate(text string) int {
	e.once.Do(func() {
		codec, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			log.Warn().Err(err).Msg("could not load tokenizer, falling back to byte length")
			return
		}
		e.codec = codec
	})
	if e.codec != nil {
		ids, _, err := e.codec.Encode(text)
		if err == nil {
			return len(ids)
		}
	}
	return (len(text) + 3) / 4
}
