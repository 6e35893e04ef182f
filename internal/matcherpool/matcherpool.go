// Package matcherpool dispatches mask computation for a batch of
// independent matchers across a worker pool, one goroutine per matcher,
// writing each result into its own disjoint slice of a single caller-owned
// buffer — the host-facing parallel mask computation described in spec.md
// §5.
//
// Concurrency is bounded with golang.org/x/sync/errgroup, the same module
// (golang.org/x/sync) the wider example corpus already reaches for when it
// needs a capped worker fan-out (bufbuild-protocompile's compiler uses its
// sibling semaphore package for exactly this kind of bounded concurrency);
// errgroup.Group is the narrower tool for "run N independent tasks, collect
// the first error, wait for the rest to finish."
package matcherpool

import (
	"context"
	"encoding/binary"
	"fmt"
	"runtime"
	"unsafe"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/dekarrin/llmask/internal/matcher"
)

// MaskBytes returns the packed-bitmask size in bytes for a vocabulary of
// vocabSize tokens: ceil(vocab_size/32) 32-bit words, four bytes each.
func MaskBytes(vocabSize int) int {
	words := (vocabSize + 31) / 32
	return words * 4
}

// ComputeMasks runs ComputeMask on every matcher in matchers concurrently,
// bounded to GOMAXPROCS workers, writing matcher i's packed bitmask into
// buf[i*maskBytes : (i+1)*maskBytes]. buf must be exactly
// len(matchers)*maskBytes long and 4-byte aligned; a violation of either is
// a caller bug and is reported as an error rather than risking a partial
// out-of-bounds write.
//
// A matcher whose ComputeMask call errors has that error returned (after
// every other matcher's goroutine has finished, win or lose); its slice of
// buf is left however ComputeMask's failed attempt left it. Callers that
// want a single failing matcher to not stall the others already get that
// for free — only ctx cancellation or a returned error interrupts the
// whole batch early, per errgroup.Group's semantics.
func ComputeMasks(ctx context.Context, matchers []*matcher.Matcher, maskBytes int, buf []byte) error {
	if buf == nil {
		return fmt.Errorf("matcherpool: buf must not be nil")
	}
	if len(buf)%4 != 0 {
		return fmt.Errorf("matcherpool: buf length %d is not 4-byte aligned", len(buf))
	}
	if len(buf) > 0 && uintptr(unsafe.Pointer(&buf[0]))%4 != 0 {
		return fmt.Errorf("matcherpool: buf is not 4-byte aligned in memory")
	}
	want := len(matchers) * maskBytes
	if len(buf) != want {
		return fmt.Errorf("matcherpool: buf is %d bytes, want %d (%d matchers * %d mask_bytes)", len(buf), want, len(matchers), maskBytes)
	}

	batchID := uuid.NewString()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, m := range matchers {
		i, m := i, m
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			set, err := m.ComputeMask()
			if err != nil {
				return fmt.Errorf("matcherpool: batch %s: matcher %d: %w", batchID, i, err)
			}
			dst := buf[i*maskBytes : (i+1)*maskBytes]
			writeWords(dst, set.Words())
			return nil
		})
	}

	return g.Wait()
}

// writeWords packs words as little-endian uint32s into dst, which must be
// exactly 4*len(words) bytes (any excess tail, from a vocab_size not a
// multiple of 32, is left zeroed — already the case since dst's backing buf
// is caller-allocated and matcherpool never reads it beforehand).
func writeWords(dst []byte, words []uint32) {
	for i, w := range words {
		binary.LittleEndian.PutUint32(dst[i*4:], w)
	}
}
