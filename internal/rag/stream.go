package rag

import (
	"context"
	"strings"
	"time"
)

// Streamer re-chunks a finished completion into paced token events. The
// delay between chunks is a typing-fluency device, not backpressure.
type Streamer struct {
	ChunkWords int
	Delay      time.Duration
}

func NewStreamer(chunkWords int, delay time.Duration) *Streamer {
	if chunkWords <= 0 {
		chunkWords = 5
	}
	return &Streamer{ChunkWords: chunkWords, Delay: delay}
}

// Stream splits the completion on whitespace, groups words into fixed-size
// chunks and emits them in order on the returned channel, pausing Delay
// between chunks. Each chunk carries a trailing space so that the trimmed
// concatenation of all chunks reproduces the completion. The channel is
// closed after the last chunk, or as soon as ctx is cancelled.
func (s *Streamer) Stream(ctx context.Context, completion string) <-chan string {
	out := make(chan string)

	go func() {
		defer close(out)

		words := strings.Fields(completion)
		for i := 0; i < len(words); i += s.ChunkWords {
			end := i + s.ChunkWords
			if end > len(words) {
				end = len(words)
			}
			chunk := strings.Join(words[i:end], " ") + " "

			select {
			case out <- chunk:
			case <-ctx.Done():
				return
			}

			if end == len(words) {
				return
			}
			select {
			case <-time.After(s.Delay):
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}
