package packet

import (
	"errors"
	"io"
	"log/slog"

	"github.com/jpfielding/bpe.go/pkg/compress/bitio"
)

// errStop ends a walk early without reporting a failure
var errStop = errors.New("packet: stop walk")

func isEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

// Entry locates one packet payload relative to the start of the packets
type Entry struct {
	Key
	Offset int64 // first payload byte
	Length int   // declared payload length
	Avail  int   // payload bytes actually present
}

// Index maps packets to their payload positions
type Index struct {
	Order     ProgressionOrder
	Entries   []Entry
	Truncated bool // input ended before the traversal did
	byKey     map[Key]int
}

// Lookup returns the entry of a packet
func (ix *Index) Lookup(k Key) (Entry, bool) {
	i, ok := ix.byKey[k]
	if !ok {
		return Entry{}, false
	}
	return ix.Entries[i], true
}

// Size returns the bytes spanned by the indexed headers and payloads
func (ix *Index) Size() int64 {
	if len(ix.Entries) == 0 {
		return 0
	}
	last := ix.Entries[len(ix.Entries)-1]
	return last.Offset + int64(last.Avail)
}

// BuildIndex replays the traversal over r reading only headers. Running
// out of input stops indexing and returns what was collected; malformed
// headers are returned as ErrProtocol along with the partial index.
func BuildIndex(r io.Reader, order ProgressionOrder, s *Space) (*Index, error) {
	br := bitio.NewByteReader(r)
	ix := &Index{Order: order, byKey: make(map[Key]int)}
	err := Walk(order, s, func(k Key) error {
		n, err := ReadVBAS(br)
		if err != nil {
			if isEOF(err) {
				ix.Truncated = true
				return errStop
			}
			return err
		}
		e := Entry{Key: k, Offset: br.Offset(), Length: n}
		skipped, err := br.Skip(n)
		e.Avail = skipped
		ix.byKey[k] = len(ix.Entries)
		ix.Entries = append(ix.Entries, e)
		if err != nil {
			ix.Truncated = true
			return errStop
		}
		return nil
	})
	if errors.Is(err, errStop) {
		err = nil
	}
	if ix.Truncated {
		slog.Debug("packet index truncated",
			slog.String("order", order.String()),
			slog.Int("packets", len(ix.Entries)))
	}
	return ix, err
}
