package journal

import "time"

type RecordType uint8

const (
	RecordPlace RecordType = iota + 1
	RecordDepth
)

func (t RecordType) String() string {
	switch t {
	case RecordPlace:
		return "PLACE"
	case RecordDepth:
		return "DEPTH"
	default:
		return "UNKNOWN"
	}
}

type Record struct {
	Type RecordType
	Seq  uint64
	Time int64
	Data []byte
}

func NewRecord(t RecordType, seq uint64, data []byte) *Record {
	return &Record{
		Type: t,
		Seq:  seq,
		Time: time.Now().UnixNano(),
		Data: data,
	}
}
