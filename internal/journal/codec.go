package journal

import (
	"fmt"
	"time"

	flatbuffers "github.com/google/flatbuffers/go"

	"Mist/internal/ledger"
	"Mist/internal/types"
)

// buildEntry writes e as an OutcomeRecord table and returns its offset.
func buildEntry(builder *flatbuffers.Builder, e *Entry) flatbuffers.UOffsetT {
	idVec := builder.CreateByteVector(e.Intent[:])
	digest := builder.CreateString(e.TxDigest)
	detail := builder.CreateString(e.Detail)

	types.OutcomeRecordStart(builder)
	types.OutcomeRecordAddIntentId(builder, idVec)
	types.OutcomeRecordAddKind(builder, e.Kind)
	types.OutcomeRecordAddTerminal(builder, e.Terminal)
	types.OutcomeRecordAddAttempts(builder, e.Attempts)
	types.OutcomeRecordAddTxDigest(builder, digest)
	types.OutcomeRecordAddDetail(builder, detail)
	types.OutcomeRecordAddDiscovered(builder, e.Discovered)
	types.OutcomeRecordAddUpdatedMs(builder, uint64(e.UpdatedAt.UnixMilli()))

	return types.OutcomeRecordEnd(builder)
}

// encodeEntry serializes e as a standalone OutcomeRecord buffer.
func encodeEntry(e *Entry) []byte {
	builder := flatbuffers.NewBuilder(128 + len(e.Detail))
	builder.Finish(buildEntry(builder, e))

	return builder.FinishedBytes()
}

// decodeEntry parses a standalone OutcomeRecord buffer.
func decodeEntry(data []byte) (e *Entry, err error) {
	if len(data) < flatbuffers.SizeUOffsetT {
		return nil, fmt.Errorf("%w: %d bytes", ErrCorrupt, len(data))
	}

	// Malformed buffers make the generated accessors index out of range.
	defer func() {
		if r := recover(); r != nil {
			e, err = nil, fmt.Errorf("%w: %v", ErrCorrupt, r)
		}
	}()

	return entryFromRecord(types.GetRootAsOutcomeRecord(data, 0))
}

// entryFromRecord copies a record out of its buffer.
func entryFromRecord(rec *types.OutcomeRecord) (*Entry, error) {
	id := rec.IntentIdBytes()
	if len(id) != len(ledger.ObjectID{}) {
		return nil, fmt.Errorf("%w: intent id of %d bytes", ErrCorrupt, len(id))
	}

	return &Entry{
		Intent:     ledger.ObjectID(id),
		Kind:       rec.Kind(),
		Terminal:   rec.Terminal(),
		Attempts:   rec.Attempts(),
		TxDigest:   string(rec.TxDigest()),
		Detail:     string(rec.Detail()),
		Discovered: rec.Discovered(),
		UpdatedAt:  time.UnixMilli(int64(rec.UpdatedMs())),
	}, nil
}
