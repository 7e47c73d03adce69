// Package wire implements the fixed on-wire layout of a pipeline Envelope,
// for components that persist messages to external stores. Kept separate
// from the root package since it is the one part of the core meant for
// on-disk/on-wire compatibility rather than in-process use.
package wire

import (
	"encoding/binary"
	"fmt"
	"time"

	pipeline "github.com/kalgorithm/flowrt"
)

// Size is the fixed encoded length of one envelope, in bytes: 4-byte
// sourceId, 4-byte sequenceId, 8-byte originatingTime, 8-byte creationTime.
const Size = 24

// reference is the epoch ticks are counted from.
var reference = time.Unix(0, 0).UTC()

// Envelope is the on-wire representation of a pipeline.Envelope. Field
// order and width are fixed for compatibility with existing stores; this
// layout does not change even as the in-process Envelope evolves.
type Envelope struct {
	SourceID        int32
	SequenceID      int32
	OriginatingTime time.Time
	CreationTime    time.Time
}

// FromPipeline converts an in-process Envelope into its wire form.
func FromPipeline(e pipeline.Envelope) Envelope {
	return Envelope{
		SourceID:        e.SourceID,
		SequenceID:      e.SequenceID,
		OriginatingTime: e.OriginatingTime,
		CreationTime:    e.CreationTime,
	}
}

// ToPipeline converts a wire Envelope back into its in-process form.
func (e Envelope) ToPipeline() pipeline.Envelope {
	return pipeline.Envelope{
		SourceID:        e.SourceID,
		SequenceID:      e.SequenceID,
		OriginatingTime: e.OriginatingTime,
		CreationTime:    e.CreationTime,
	}
}

// Encode writes e into a freshly allocated Size-byte little-endian buffer.
func Encode(e Envelope) []byte {
	buf := make([]byte, Size)
	PutEnvelope(buf, e)
	return buf
}

// PutEnvelope writes e into buf, which must be at least Size bytes long.
func PutEnvelope(buf []byte, e Envelope) {
	_ = buf[Size-1]
	binary.LittleEndian.PutUint32(buf[0:4], uint32(e.SourceID))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(e.SequenceID))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(ticksSince(e.OriginatingTime)))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(ticksSince(e.CreationTime)))
}

// Decode parses a Size-byte little-endian buffer into an Envelope.
func Decode(buf []byte) (Envelope, error) {
	if len(buf) < Size {
		return Envelope{}, fmt.Errorf("pipeline/wire: short buffer: need %d bytes, got %d", Size, len(buf))
	}
	return Envelope{
		SourceID:        int32(binary.LittleEndian.Uint32(buf[0:4])),
		SequenceID:      int32(binary.LittleEndian.Uint32(buf[4:8])),
		OriginatingTime: fromTicks(int64(binary.LittleEndian.Uint64(buf[8:16]))),
		CreationTime:    fromTicks(int64(binary.LittleEndian.Uint64(buf[16:24]))),
	}, nil
}

func ticksSince(t time.Time) int64 {
	return t.Sub(reference).Nanoseconds()
}

func fromTicks(ticks int64) time.Time {
	return reference.Add(time.Duration(ticks))
}
