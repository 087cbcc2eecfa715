// Package generate produces chapter summaries and quizzes from extracted text
// through a pluggable generative text provider.
package generate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"studyhub/portal/internal/platform/logger"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

type Mode string

const (
	ModeSummary Mode = "summary"
	ModeQuiz    Mode = "quiz"
)

const (
	DefaultChunkSize = 10000
	DefaultTimeout   = 2 * time.Minute
)

// Static fallbacks returned when generation fails for a whole call.
const (
	FallbackSummary = "Summary not available. The summary could not be generated for this document."
	FallbackQuiz    = `{"quiz":[{"question":"The quiz for this chapter could not be generated. Please check back later.","options":["OK","Retry"],"answer":"OK"}]}`
)

var errEmptyResponse = errors.New("provider returned empty text")

// Provider sends one prompt to a generative text service.
type Provider interface {
	Name() string
	Generate(ctx context.Context, prompt string) (string, error)
}

// Cache stores generated text per chunk. Implementations must report a miss
// as ok=false with a nil error.
type Cache interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
}

// Result is the outcome of one Generate call. Parts holds the per-chunk texts
// in chunk order. Degraded results carry the fallback and the failure reason.
type Result struct {
	Text     string
	Parts    []string
	Degraded bool
	Reason   string
}

type Options struct {
	ChunkSize int
	Timeout   time.Duration
	// Model is folded into cache keys so a model change invalidates cached text.
	Model string
}

type Generator struct {
	provider  Provider
	cache     Cache
	chunkSize int
	timeout   time.Duration
	model     string
	log       *logger.Logger
	sf        singleflight.Group
}

// NewGenerator wires a provider with an optional cache (nil disables caching).
func NewGenerator(provider Provider, cache Cache, opts Options, log *logger.Logger) *Generator {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Generator{
		provider:  provider,
		cache:     cache,
		chunkSize: opts.ChunkSize,
		timeout:   opts.Timeout,
		model:     opts.Model,
		log:       log,
	}
}

// Generate splits text into chunks, requests every chunk concurrently and joins
// the responses in chunk order. Any chunk failure replaces the whole result
// with the mode's fallback.
func (g *Generator) Generate(ctx context.Context, text string, mode Mode) Result {
	chunks := Chunk(text, g.chunkSize)

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	parts := make([]string, len(chunks))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		eg.Go(func() error {
			out, err := g.generateChunk(egCtx, mode, chunk)
			if err != nil {
				return fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
			}
			parts[i] = out
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		g.log.Warn("generation degraded to fallback",
			"provider", g.provider.Name(), "mode", mode, "chunks", len(chunks), "error", err)
		return fallback(mode, err.Error())
	}
	return Result{Text: strings.Join(parts, "\n\n"), Parts: parts}
}

func fallback(mode Mode, reason string) Result {
	text := FallbackSummary
	if mode == ModeQuiz {
		text = FallbackQuiz
	}
	return Result{Text: text, Parts: []string{text}, Degraded: true, Reason: reason}
}

func (g *Generator) generateChunk(ctx context.Context, mode Mode, chunk string) (string, error) {
	key := g.cacheKey(mode, chunk)
	if g.cache != nil {
		if cached, ok, err := g.cache.Get(ctx, key); err == nil && ok {
			return cached, nil
		} else if err != nil {
			g.log.Debug("generation cache read failed", "error", err)
		}
	}

	// The flight outlives any single caller: it runs detached with its own
	// timeout, and each caller stops waiting when its own context ends.
	flightCtx := context.WithoutCancel(ctx)
	ch := g.sf.DoChan(key, func() (interface{}, error) {
		fctx, cancel := context.WithTimeout(flightCtx, g.timeout)
		defer cancel()
		out, err := g.provider.Generate(fctx, buildPrompt(mode, chunk))
		if err != nil {
			return "", err
		}
		out = strings.TrimSpace(out)
		if out == "" {
			return "", errEmptyResponse
		}
		if g.cache != nil {
			if err := g.cache.Set(fctx, key, out); err != nil {
				g.log.Debug("generation cache write failed", "error", err)
			}
		}
		return out, nil
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (g *Generator) cacheKey(mode Mode, chunk string) string {
	sum := sha256.Sum256([]byte(g.provider.Name() + "|" + g.model + "|" + string(mode) + "|" + chunk))
	return "gen:" + hex.EncodeToString(sum[:])
}

// Chunk splits text into pieces of at most size runes. Empty text yields a
// single empty chunk so every call issues at least one request.
func Chunk(text string, size int) []string {
	if size <= 0 {
		size = DefaultChunkSize
	}
	runes := []rune(text)
	if len(runes) == 0 {
		return []string{""}
	}
	chunks := make([]string, 0, (len(runes)+size-1)/size)
	for start := 0; start < len(runes); start += size {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}

func buildPrompt(mode Mode, chunk string) string {
	if mode == ModeQuiz {
		return quizPrompt + chunk
	}
	return summaryPrompt + chunk
}

const summaryPrompt = `Summarize the following study material as concise revision notes.
Keep key definitions, formulas and facts. Use short paragraphs or bullet points.
Do not add information that is not in the text.

Material:
`

const quizPrompt = `Create multiple-choice questions that test understanding of the following study material.
Respond with JSON only, no commentary, in exactly this shape:
{"quiz":[{"question":"...","options":["...","...","...","..."],"answer":"..."}]}
Each question must have four options and the answer must be one of the options, copied exactly.

Material:
`
