// Package outbox stores trade events in pebble until they have been
// published downstream.
package outbox

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strconv"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/pkg/errors"
)

type State uint8

const (
	StateNew State = iota
	StateSent
	StateAcked
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "NEW"
	case StateSent:
		return "SENT"
	case StateAcked:
		return "ACKED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

var ErrNotFound = errors.New("outbox: record not found")

// Record is one event and its delivery state.
type Record struct {
	Seq         uint64
	State       State
	Retries     uint32
	LastAttempt int64
	Payload     []byte
}

// Entry is a new event to store.
// Parked reports whether a FAILED record has used up maxRetries attempts.
func (r Record) Parked(maxRetries uint32) bool {
	return r.State == StateFailed && maxRetries > 0 && r.Retries >= maxRetries
}

type Entry struct {
	Seq     uint64
	Payload []byte
}

// value layout: [state:1][retries:4][lastAttempt:8][payload]
const metaSize = 1 + 4 + 8

func encodeValue(r Record) []byte {
	buf := make([]byte, metaSize+len(r.Payload))
	buf[0] = byte(r.State)
	binary.BigEndian.PutUint32(buf[1:5], r.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(r.LastAttempt))
	copy(buf[metaSize:], r.Payload)
	return buf
}

// decodeValue copies, so the result outlives pebble's buffers.
func decodeValue(seq uint64, b []byte) (Record, error) {
	if len(b) < metaSize {
		return Record{}, errors.Errorf("outbox: record %d has %d bytes", seq, len(b))
	}
	return Record{
		Seq:         seq,
		State:       State(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Payload:     bytes.Clone(b[metaSize:]),
	}, nil
}

var (
	keyPrefix = []byte("trade/")
	keyUpper  = []byte("trade/~")

	// highest sequence ever stored; survives Delete
	lastSeqKey = []byte("meta/last_seq")
)

func keyFor(seq uint64) []byte {
	return []byte(fmt.Sprintf("trade/%020d", seq))
}

func parseKey(b []byte) (uint64, error) {
	return strconv.ParseUint(string(bytes.TrimPrefix(b, keyPrefix)), 10, 64)
}

type Outbox struct {
	db *pebble.DB
}

func Open(dir string) (*Outbox, error) {
	return OpenFS(dir, vfs.Default)
}

// OpenFS opens the outbox on fs; tests pass vfs.NewMem().
func OpenFS(dir string, fs vfs.FS) (*Outbox, error) {
	db, err := pebble.Open(dir, &pebble.Options{FS: fs})
	if err != nil {
		return nil, errors.Wrapf(err, "open outbox %s", dir)
	}
	return &Outbox{db: db}, nil
}

func (o *Outbox) Close() error {
	return o.db.Close()
}

// PutBatch stores entries as NEW in one synced batch.
func (o *Outbox) PutBatch(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	last, err := o.LastSeq()
	if err != nil {
		return err
	}

	b := o.db.NewBatch()
	defer b.Close()

	for _, e := range entries {
		v := encodeValue(Record{State: StateNew, Payload: e.Payload})
		if err := b.Set(keyFor(e.Seq), v, nil); err != nil {
			return errors.Wrapf(err, "outbox batch set %d", e.Seq)
		}
		last = max(last, e.Seq)
	}

	var meta [8]byte
	binary.BigEndian.PutUint64(meta[:], last)
	if err := b.Set(lastSeqKey, meta[:], nil); err != nil {
		return errors.Wrap(err, "outbox batch set last seq")
	}
	return errors.Wrap(b.Commit(pebble.Sync), "outbox commit")
}

func (o *Outbox) Get(seq uint64) (Record, error) {
	val, closer, err := o.db.Get(keyFor(seq))
	if err == pebble.ErrNotFound {
		return Record{}, errors.Wrapf(ErrNotFound, "seq %d", seq)
	}
	if err != nil {
		return Record{}, err
	}
	defer closer.Close()
	return decodeValue(seq, val)
}

// UpdateState records a delivery attempt, keeping the payload.
func (o *Outbox) UpdateState(seq uint64, state State, retries uint32) error {
	rec, err := o.Get(seq)
	if err != nil {
		return err
	}
	rec.State = state
	rec.Retries = retries
	rec.LastAttempt = time.Now().UnixNano()
	return o.db.Set(keyFor(seq), encodeValue(rec), pebble.Sync)
}

func (o *Outbox) Delete(seq uint64) error {
	return o.db.Delete(keyFor(seq), pebble.Sync)
}

// Scan visits every record in sequence order until fn returns false or
// an error.
func (o *Outbox) Scan(fn func(Record) (bool, error)) error {
	iter, err := o.db.NewIter(&pebble.IterOptions{
		LowerBound: keyPrefix,
		UpperBound: keyUpper,
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		seq, err := parseKey(iter.Key())
		if err != nil {
			return errors.Wrapf(err, "outbox key %q", iter.Key())
		}
		rec, err := decodeValue(seq, iter.Value())
		if err != nil {
			return err
		}
		more, err := fn(rec)
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	return iter.Error()
}

func (o *Outbox) ScanByState(state State, fn func(Record) error) error {
	return o.Scan(func(r Record) (bool, error) {
		if r.State != state {
			return true, nil
		}
		return true, fn(r)
	})
}

// ScanPending visits records not yet acknowledged, oldest first, at most
// limit of them (limit <= 0 means all). FAILED records with maxRetries or
// more attempts are parked and skipped without counting toward limit;
// maxRetries 0 parks nothing.
func (o *Outbox) ScanPending(limit int, maxRetries uint32, fn func(Record) error) error {
	n := 0
	return o.Scan(func(r Record) (bool, error) {
		if r.State == StateAcked || r.Parked(maxRetries) {
			return true, nil
		}
		if err := fn(r); err != nil {
			return false, err
		}
		n++
		return limit <= 0 || n < limit, nil
	})
}

// LastSeq returns the highest sequence ever stored, or 0 for a new
// outbox. Deleting records does not lower it.
func (o *Outbox) LastSeq() (uint64, error) {
	val, closer, err := o.db.Get(lastSeqKey)
	if err == pebble.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	defer closer.Close()
	if len(val) != 8 {
		return 0, errors.Errorf("outbox: bad last seq value of %d bytes", len(val))
	}
	return binary.BigEndian.Uint64(val), nil
}
