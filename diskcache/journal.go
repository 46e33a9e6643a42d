package diskcache

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// journalMagic and journalVersion identify the on-disk journal format.
// Bumping journalVersion is required before changing the string codec (see
// the modified-UTF-8 design note) or any field layout; a cache that reads a
// header with a different magic or version treats it as corruption.
const (
	journalMagic   uint64 = 0x814A4C450D0A1A0A
	journalVersion uint8  = 2
)

// opcode identifies the kind of a single journal record.
type opcode uint8

const (
	opClean  opcode = 1
	opDirty  opcode = 2
	opRemove opcode = 3
	opRead   opcode = 4
)

// errCorruptJournal wraps every journal parse failure: bad magic, bad
// version, a header/value_count mismatch, a missing record terminator, or a
// truncated record. Callers (Open) treat any error satisfying
// errors.Is(err, errCorruptJournal) as "wipe the directory and start fresh."
var errCorruptJournal = errors.New("diskcache: corrupt journal")

// errMalformedModifiedUTF8 is wrapped into errCorruptJournal by the record
// decoder whenever a string field fails to decode.
var errMalformedModifiedUTF8 = errors.New("diskcache: malformed modified-UTF-8 string")

// journalHeader is the fixed-size preamble at the start of every journal
// file.
type journalHeader struct {
	AppVersion int32
	ValueCount int32
}

// writeJournalHeader writes the header record: magic, version, app version,
// value count, and the trailing newline terminator, in that order.
func writeJournalHeader(w io.Writer, h journalHeader) error {
	buf := make([]byte, 0, 8+1+4+4+1)
	buf = binary.BigEndian.AppendUint64(buf, journalMagic)
	buf = append(buf, journalVersion)
	buf = binary.BigEndian.AppendUint32(buf, uint32(h.AppVersion))
	buf = binary.BigEndian.AppendUint32(buf, uint32(h.ValueCount))
	buf = append(buf, '\n')

	_, err := w.Write(buf)

	return err
}

// readJournalHeader reads and validates the header, returning
// errCorruptJournal wrapped with detail on any mismatch.
func readJournalHeader(r io.Reader, wantAppVersion, wantValueCount int32) (journalHeader, error) {
	buf := make([]byte, 8+1+4+4+1)

	if _, err := io.ReadFull(r, buf); err != nil {
		return journalHeader{}, fmt.Errorf("%w: header read: %w", errCorruptJournal, err)
	}

	magic := binary.BigEndian.Uint64(buf[0:8])
	if magic != journalMagic {
		return journalHeader{}, fmt.Errorf("%w: bad magic", errCorruptJournal)
	}

	version := buf[8]
	if version != journalVersion {
		return journalHeader{}, fmt.Errorf("%w: bad version %d", errCorruptJournal, version)
	}

	h := journalHeader{
		AppVersion: int32(binary.BigEndian.Uint32(buf[9:13])),
		ValueCount: int32(binary.BigEndian.Uint32(buf[13:17])),
	}

	if buf[17] != '\n' {
		return journalHeader{}, fmt.Errorf("%w: missing header terminator", errCorruptJournal)
	}

	if h.AppVersion != wantAppVersion || h.ValueCount != wantValueCount {
		return journalHeader{}, fmt.Errorf("%w: app_version/value_count mismatch", errCorruptJournal)
	}

	return h, nil
}

// journalRecord is one decoded record from the journal stream.
type journalRecord struct {
	Op      opcode
	Key     string
	Lengths []int64 // only populated for opClean
}

// writeString writes s as a length-prefixed modified-UTF-8 string: a
// big-endian uint16 byte length followed by the encoded bytes.
func writeString(w io.Writer, s string) error {
	encoded := encodeModifiedUTF8(s)
	if len(encoded) > 0xFFFF {
		return fmt.Errorf("%w: key too long (%d encoded bytes)", errCorruptJournal, len(encoded))
	}

	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(encoded)))

	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}

	_, err := w.Write(encoded)

	return err
}

// writeDirtyRecord appends a DIRTY record for key.
func writeDirtyRecord(w io.Writer, key string) error {
	if _, err := w.Write([]byte{byte(opDirty)}); err != nil {
		return err
	}

	if err := writeString(w, key); err != nil {
		return err
	}

	_, err := w.Write([]byte{'\n'})

	return err
}

// writeCleanRecord appends a CLEAN record for key with the given slot
// lengths.
func writeCleanRecord(w io.Writer, key string, lengths []int64) error {
	if _, err := w.Write([]byte{byte(opClean)}); err != nil {
		return err
	}

	if err := writeString(w, key); err != nil {
		return err
	}

	for _, n := range lengths {
		var buf [8]byte

		binary.BigEndian.PutUint64(buf[:], uint64(n))

		if _, err := w.Write(buf[:]); err != nil {
			return err
		}
	}

	_, err := w.Write([]byte{'\n'})

	return err
}

// writeRemoveRecord appends a REMOVE record for key.
func writeRemoveRecord(w io.Writer, key string) error {
	if _, err := w.Write([]byte{byte(opRemove)}); err != nil {
		return err
	}

	if err := writeString(w, key); err != nil {
		return err
	}

	_, err := w.Write([]byte{'\n'})

	return err
}

// writeReadRecord appends a READ record for key.
func writeReadRecord(w io.Writer, key string) error {
	if _, err := w.Write([]byte{byte(opRead)}); err != nil {
		return err
	}

	if err := writeString(w, key); err != nil {
		return err
	}

	_, err := w.Write([]byte{'\n'})

	return err
}

// readRecords decodes every record from r until EOF, calling fn for each one
// in order. It stops and returns errCorruptJournal-wrapped on the first
// malformed record (including a clean EOF in the middle of a record, which is
// indistinguishable from truncation at this layer).
func readRecords(r *bufio.Reader, valueCount int32, fn func(journalRecord) error) error {
	for {
		opByte, err := r.ReadByte()
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("%w: reading opcode: %w", errCorruptJournal, err)
		}

		rec, err := readRecord(r, opcode(opByte), valueCount)
		if err != nil {
			return err
		}

		if err := fn(rec); err != nil {
			return err
		}
	}
}

func readRecord(r *bufio.Reader, op opcode, valueCount int32) (journalRecord, error) {
	switch op {
	case opDirty, opRemove, opRead:
		key, err := readKeyAndTerminator(r)
		if err != nil {
			return journalRecord{}, err
		}

		return journalRecord{Op: op, Key: key}, nil

	case opClean:
		key, err := readString(r)
		if err != nil {
			return journalRecord{}, err
		}

		lengths := make([]int64, valueCount)
		lenBuf := make([]byte, 8)

		for i := range lengths {
			if _, err := io.ReadFull(r, lenBuf); err != nil {
				return journalRecord{}, fmt.Errorf("%w: reading length[%d]: %w", errCorruptJournal, i, err)
			}

			lengths[i] = int64(binary.BigEndian.Uint64(lenBuf))
		}

		if err := readTerminator(r); err != nil {
			return journalRecord{}, err
		}

		return journalRecord{Op: opClean, Key: key, Lengths: lengths}, nil

	default:
		return journalRecord{}, fmt.Errorf("%w: unknown opcode %d", errCorruptJournal, op)
	}
}

func readKeyAndTerminator(r *bufio.Reader) (string, error) {
	key, err := readString(r)
	if err != nil {
		return "", err
	}

	if err := readTerminator(r); err != nil {
		return "", err
	}

	return key, nil
}

func readString(r *bufio.Reader) (string, error) {
	var lenBuf [2]byte

	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return "", fmt.Errorf("%w: reading string length: %w", errCorruptJournal, err)
	}

	n := binary.BigEndian.Uint16(lenBuf[:])

	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", fmt.Errorf("%w: reading string body: %w", errCorruptJournal, err)
	}

	s, err := decodeModifiedUTF8(buf)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errCorruptJournal, err)
	}

	return s, nil
}

func readTerminator(r *bufio.Reader) error {
	b, err := r.ReadByte()
	if err != nil {
		return fmt.Errorf("%w: reading record terminator: %w", errCorruptJournal, err)
	}

	if b != '\n' {
		return fmt.Errorf("%w: missing record terminator", errCorruptJournal)
	}

	return nil
}
