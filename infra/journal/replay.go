package journal

import "github.com/pkg/errors"

type ReplayHandler func(*Record) error

// Replay feeds every record in dir to fn in sequence order and returns the
// last sequence seen.
func Replay(dir string, fn ReplayHandler) (lastSeq uint64, err error) {
	segs, err := listSegments(dir)
	if err != nil {
		return 0, err
	}

	for _, path := range segs {
		err := scanSegment(path, func(rec *Record) error {
			if rec.Seq <= lastSeq {
				return errors.Wrapf(ErrNonMonotonic, "seq %d after %d", rec.Seq, lastSeq)
			}
			lastSeq = rec.Seq
			return fn(rec)
		})
		if err != nil {
			return lastSeq, err
		}
	}
	return lastSeq, nil
}
