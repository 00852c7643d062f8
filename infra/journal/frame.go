package journal

import (
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/pkg/errors"
)

// Frame: [type:1][seq:8][time:8][len:4][payload][crc:4]
// The CRC covers header and payload.
const (
	headerSize = 1 + 8 + 8 + 4
	crcSize    = 4

	// a single record larger than this is treated as corruption
	maxPayload = 64 << 20
)

var ErrCorrupt = errors.New("journal: corrupt record")

func encodeFrame(r *Record) []byte {
	n := uint32(len(r.Data))
	buf := make([]byte, headerSize+int(n)+crcSize)

	buf[0] = byte(r.Type)
	binary.BigEndian.PutUint64(buf[1:9], r.Seq)
	binary.BigEndian.PutUint64(buf[9:17], uint64(r.Time))
	binary.BigEndian.PutUint32(buf[17:21], n)
	copy(buf[headerSize:], r.Data)

	sum := crc32.ChecksumIEEE(buf[:headerSize+int(n)])
	binary.BigEndian.PutUint32(buf[headerSize+int(n):], sum)
	return buf
}

// readFrame returns io.EOF at a clean end of stream and
// io.ErrUnexpectedEOF for a torn tail.
func readFrame(r io.Reader) (*Record, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}

	n := binary.BigEndian.Uint32(header[17:21])
	if n > maxPayload {
		return nil, errors.Wrapf(ErrCorrupt, "payload length %d", n)
	}

	body := make([]byte, int(n)+crcSize)
	if _, err := io.ReadFull(r, body); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}

	payload := body[:n]
	want := binary.BigEndian.Uint32(body[n:])
	h := crc32.NewIEEE()
	_, _ = h.Write(header)
	_, _ = h.Write(payload)
	if h.Sum32() != want {
		return nil, errors.Wrapf(ErrCorrupt, "crc mismatch at seq %d", binary.BigEndian.Uint64(header[1:9]))
	}

	return &Record{
		Type: RecordType(header[0]),
		Seq:  binary.BigEndian.Uint64(header[1:9]),
		Time: int64(binary.BigEndian.Uint64(header[9:17])),
		Data: payload,
	}, nil
}
