package journal

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"Mist/internal/ledger"
	"Mist/internal/types"
)

// exportVersion is the current export format version.
const exportVersion = 1

// ErrChecksum is returned when an export's checksum does not match its content.
var ErrChecksum = errors.New("journal export checksum mismatch")

// Snapshot is the decoded content of an export.
type Snapshot struct {
	Cursor  ledger.EventCursor // Cursor is the saved event cursor
	Entries []*Entry           // Entries are ordered by intent ID
}

// Export writes a zstd-compressed snapshot of the journal to w.
func (j *Journal) Export(w io.Writer) error {
	cursor, err := j.Cursor()
	if err != nil {
		return fmt.Errorf("read cursor:\n%w", err)
	}

	var entries []*Entry

	if err := j.Entries(func(e *Entry) error {
		entries = append(entries, e)
		return nil
	}); err != nil {
		return fmt.Errorf("collect entries:\n%w", err)
	}

	encoder, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return fmt.Errorf("create encoder:\n%w", err)
	}

	if _, err := encoder.Write(buildExport(cursor, entries)); err != nil {
		encoder.Close()
		return fmt.Errorf("compress export:\n%w", err)
	}

	return encoder.Close()
}

// buildExport creates the FlatBuffers export with checksum.
func buildExport(cursor ledger.EventCursor, entries []*Entry) []byte {
	checksum := computeChecksum(exportVersion, cursor, entries)

	builder := flatbuffers.NewBuilder(1024)

	offsets := make([]flatbuffers.UOffsetT, len(entries))
	for i, e := range entries {
		offsets[i] = buildEntry(builder, e)
	}

	types.JournalExportStartRecordsVector(builder, len(offsets))
	for i := len(offsets) - 1; i >= 0; i-- {
		builder.PrependUOffsetT(offsets[i])
	}
	records := builder.EndVector(len(offsets))

	cursorTx := builder.CreateString(cursor.TxDigest)
	cursorSeq := builder.CreateString(cursor.EventSeq)
	checksumVec := builder.CreateByteVector(checksum[:])

	types.JournalExportStart(builder)
	types.JournalExportAddVersion(builder, exportVersion)
	types.JournalExportAddCursorTx(builder, cursorTx)
	types.JournalExportAddCursorSeq(builder, cursorSeq)
	types.JournalExportAddRecords(builder, records)
	types.JournalExportAddChecksum(builder, checksumVec)
	builder.Finish(types.JournalExportEnd(builder))

	return builder.FinishedBytes()
}

// computeChecksum hashes the canonical export content.
func computeChecksum(version uint32, cursor ledger.EventCursor, entries []*Entry) [32]byte {
	hasher := blake3.New()

	var buf [8]byte

	binary.LittleEndian.PutUint32(buf[:4], version)
	hasher.Write(buf[:4])

	writeField := func(b []byte) {
		binary.LittleEndian.PutUint64(buf[:], uint64(len(b)))
		hasher.Write(buf[:])
		hasher.Write(b)
	}

	writeField([]byte(cursor.TxDigest))
	writeField([]byte(cursor.EventSeq))

	for _, e := range entries {
		writeField(encodeEntry(e))
	}

	var sum [32]byte
	copy(sum[:], hasher.Sum(nil))

	return sum
}

// ReadExport decompresses and verifies an export.
func ReadExport(data []byte) (snap *Snapshot, err error) {
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create decoder:\n%w", err)
	}
	defer decoder.Close()

	raw, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress export:\n%w", err)
	}

	if len(raw) < flatbuffers.SizeUOffsetT {
		return nil, fmt.Errorf("%w: export of %d bytes", ErrCorrupt, len(raw))
	}

	defer func() {
		if r := recover(); r != nil {
			snap, err = nil, fmt.Errorf("%w: %v", ErrCorrupt, r)
		}
	}()

	exp := types.GetRootAsJournalExport(raw, 0)

	if exp.Version() != exportVersion {
		return nil, fmt.Errorf("%w: unsupported export version %d", ErrCorrupt, exp.Version())
	}

	snap = &Snapshot{
		Cursor:  ledger.EventCursor{TxDigest: string(exp.CursorTx()), EventSeq: string(exp.CursorSeq())},
		Entries: make([]*Entry, 0, exp.RecordsLength()),
	}

	var rec types.OutcomeRecord

	for i := 0; i < exp.RecordsLength(); i++ {
		if !exp.Records(&rec, i) {
			return nil, fmt.Errorf("%w: record %d", ErrCorrupt, i)
		}

		e, err := entryFromRecord(&rec)
		if err != nil {
			return nil, err
		}

		snap.Entries = append(snap.Entries, e)
	}

	want := computeChecksum(exp.Version(), snap.Cursor, snap.Entries)
	if !bytes.Equal(exp.ChecksumBytes(), want[:]) {
		return nil, ErrChecksum
	}

	return snap, nil
}
