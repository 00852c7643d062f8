// Package journal is an append-only, segmented log of engine requests.
// Records carry a sequence number and are CRC framed; a journal is only
// read back by Replay, never at engine start-up.
package journal

import (
	"os"
	"sync"

	"github.com/pkg/errors"
)

var (
	ErrClosed       = errors.New("journal: closed")
	ErrNonMonotonic = errors.New("journal: non-monotonic sequence")
)

type Config struct {
	Dir         string
	SegmentSize int64
	// SyncEveryWrite fsyncs after each Append.
	SyncEveryWrite bool
}

type Journal struct {
	mu sync.Mutex

	dir     string
	segSize int64
	syncAll bool

	current *segment
	lastSeq uint64
	closed  bool
}

// Open prepares dir and starts a fresh segment after any existing ones.
// Earlier segments are left untouched.
func Open(cfg Config) (*Journal, error) {
	if cfg.SegmentSize <= 0 {
		return nil, errors.New("journal: segment size must be positive")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create journal dir %s", cfg.Dir)
	}

	segs, err := listSegments(cfg.Dir)
	if err != nil {
		return nil, err
	}

	var (
		next    int
		lastSeq uint64
	)
	if len(segs) > 0 {
		idx, _ := segmentIndex(segs[len(segs)-1])
		next = idx + 1
		// trailing segments may be empty
		for i := len(segs) - 1; i >= 0 && lastSeq == 0; i-- {
			if lastSeq, err = maxSeqInSegment(segs[i]); err != nil {
				return nil, err
			}
		}
	}

	seg, err := openSegment(cfg.Dir, next)
	if err != nil {
		return nil, err
	}

	return &Journal{
		dir:     cfg.Dir,
		segSize: cfg.SegmentSize,
		syncAll: cfg.SyncEveryWrite,
		current: seg,
		lastSeq: lastSeq,
	}, nil
}

func (j *Journal) Dir() string { return j.dir }

// LastSeq is the highest sequence written, including by earlier runs.
func (j *Journal) LastSeq() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.lastSeq
}

func (j *Journal) Append(r *Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.closed {
		return ErrClosed
	}
	if r.Seq <= j.lastSeq {
		return errors.Wrapf(ErrNonMonotonic, "seq %d after %d", r.Seq, j.lastSeq)
	}

	// a full segment is rotated before writing, so a failed rotation
	// leaves the record unwritten
	if j.current.offset >= j.segSize {
		if err := j.rotate(); err != nil {
			return err
		}
	}

	if err := j.current.append(encodeFrame(r)); err != nil {
		return errors.Wrap(err, "journal append")
	}
	j.lastSeq = r.Seq

	if j.syncAll {
		if err := j.current.sync(); err != nil {
			return errors.Wrap(err, "journal sync")
		}
	}
	return nil
}

// rotate switches to the next segment. On error the current segment stays
// open.
func (j *Journal) rotate() error {
	if err := j.current.sync(); err != nil {
		return errors.Wrap(err, "journal sync")
	}
	seg, err := openSegment(j.dir, j.current.index+1)
	if err != nil {
		return err
	}
	_ = j.current.close()
	j.current = seg
	return nil
}

func (j *Journal) Sync() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrClosed
	}
	return j.current.sync()
}

// TruncateBefore removes closed segments whose records all have a
// sequence <= seq.
func (j *Journal) TruncateBefore(seq uint64) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	segs, err := listSegments(j.dir)
	if err != nil {
		return err
	}
	for _, path := range segs {
		if idx, _ := segmentIndex(path); idx >= j.current.index {
			continue
		}
		max, err := maxSeqInSegment(path)
		if err != nil {
			return err
		}
		if max <= seq {
			if err := os.Remove(path); err != nil {
				return errors.Wrapf(err, "remove %s", path)
			}
		}
	}
	return nil
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	if err := j.current.sync(); err != nil {
		_ = j.current.close()
		return err
	}
	return j.current.close()
}
