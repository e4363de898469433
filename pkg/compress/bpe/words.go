package bpe

import (
	"fmt"

	"github.com/jpfielding/bpe.go/pkg/compress/bitio"
)

// wordCoder is the symbol channel the significance traversal runs against.
// The same traversal drives encoding and decoding: encoders record v and
// return it, decoders ignore v and return the word read from the stream.
type wordCoder interface {
	Word(st stage, n int, v uint32) (uint32, error)
}

type pendingWord struct {
	st stage
	n  int
	v  uint32
}

// wordBuffer collects the words of one coding pass so the code option for
// each word length can be chosen before anything is written.
type wordBuffer struct {
	words []pendingWord
}

func (b *wordBuffer) Word(st stage, n int, v uint32) (uint32, error) {
	if n > 0 {
		b.words = append(b.words, pendingWord{st: st, n: n, v: v & ((1 << n) - 1)})
	}
	return v, nil
}

// flush writes the pass. Option ids precede the first word of each length.
func (b *wordBuffer) flush(w *bitio.Writer, mode Entropy) {
	var options [5]int
	if mode == EntropyCoded {
		for n := 2; n <= 4; n++ {
			var stages []stage
			var values []uint32
			for _, pw := range b.words {
				if pw.n == n {
					stages = append(stages, pw.st)
					values = append(values, pw.v)
				}
			}
			if len(values) > 0 {
				options[n] = bestOption(stages, n, values)
			}
		}
	}
	var signalled [5]bool
	for _, pw := range b.words {
		if pw.n == 1 || mode == EntropyRaw {
			w.WriteBits(pw.v, pw.n)
			continue
		}
		if !signalled[pw.n] {
			w.WriteBits(uint32(options[pw.n]), optionIDBits(pw.n))
			signalled[pw.n] = true
		}
		cw := encodeWord(pw.st, pw.n, options[pw.n], pw.v)
		w.WriteBits(cw.bits, cw.n)
	}
	b.words = b.words[:0]
}

// wordReader decodes the words of one coding pass
type wordReader struct {
	r       *bitio.Reader
	mode    Entropy
	options [5]int
}

func newWordReader(r *bitio.Reader, mode Entropy) *wordReader {
	wr := &wordReader{r: r, mode: mode}
	wr.reset()
	return wr
}

// reset forgets the option ids at a pass boundary
func (wr *wordReader) reset() {
	for i := range wr.options {
		wr.options[i] = -1
	}
}

func (wr *wordReader) Word(st stage, n int, _ uint32) (uint32, error) {
	if n == 0 {
		return 0, nil
	}
	if n == 1 || wr.mode == EntropyRaw {
		return wr.r.ReadBits(n)
	}
	if wr.options[n] < 0 {
		id, err := wr.r.ReadBits(optionIDBits(n))
		if err != nil {
			return 0, err
		}
		if int(id) != uncodedID(n) && int(id) >= numCodeOptions(n) {
			return 0, fmt.Errorf("%w: code option %d for %d-bit words", ErrProtocol, id, n)
		}
		wr.options[n] = int(id)
	}
	opt := wr.options[n]
	if opt == uncodedID(n) {
		return wr.r.ReadBits(n)
	}
	var cw codeword
	for cw.n < maxCodeLen(n, opt) {
		bit, err := wr.r.ReadBit()
		if err != nil {
			return 0, err
		}
		cw.bits = cw.bits<<1 | uint32(bit)
		cw.n++
		if word, ok := lookupCode(st, n, opt, cw); ok {
			return word, nil
		}
	}
	return 0, fmt.Errorf("%w: no codeword for %d-bit word", ErrProtocol, n)
}
