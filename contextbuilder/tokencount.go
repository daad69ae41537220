package contextbuilder

import (
	"log/slog"

	"github.com/pkoukk/tiktoken-go"
)

// TiktokenCounter returns a TokenCounter backed by a real BPE encoding for
// encoding (e.g. "cl100k_base"), falling back to the chars/4 heuristic if
// the encoding cannot be loaded (offline environments without the
// tiktoken-go bundled vocabulary data, for instance).
func TiktokenCounter(encoding string, log *slog.Logger) TokenCounter {
	if log == nil {
		log = slog.Default()
	}
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		log.Warn("contextbuilder: failed to load tiktoken encoding, falling back to chars/4 estimate", "encoding", encoding, "err", err)
		return roughTokens
	}
	return func(s string) int {
		return len(enc.Encode(s, nil, nil))
	}
}
