package core

import (
	"errors"
	"time"

	com "github.com/mus-format/common-go"
	"github.com/mus-format/mus-go/ord"
	slops "github.com/mus-format/mus-go/options/slice"
	"github.com/mus-format/mus-go/raw"
	"github.com/mus-format/mus-go/varint"
)

// ErrTruncatedRecord indicates a serialized record ended before all fields were read.
var ErrTruncatedRecord = errors.New("truncated record")

// Serializers for persisted records. Each satisfies mus.Serializer for its type.
var (
	IDMUS             = idSer{}
	SessionMUS        = sessionSer{}
	TurnMUS           = turnSer{}
	KnowledgeEntryMUS = knowledgeEntrySer{}
	CheckpointMUS     = checkpointSer{}
)

// Field helpers. Timestamps are stored as Unix microseconds.

func marshalTime(t time.Time, bs []byte) int {
	return varint.Int64.Marshal(t.UnixMicro(), bs)
}

func sizeTime(t time.Time) int {
	return varint.Int64.Size(t.UnixMicro())
}

func unmarshalTime(bs []byte) (time.Time, int, error) {
	micros, n, err := varint.Int64.Unmarshal(bs)
	if err != nil {
		return time.Time{}, n, err
	}
	return time.UnixMicro(micros).UTC(), n, nil
}

func unmarshalLen(bs []byte) (int, int, error) {
	l, n, err := varint.PositiveInt.Unmarshal(bs)
	if err == nil && (l < 0 || l > len(bs)-n) {
		err = ErrTruncatedRecord
	}
	return l, n, err
}

var (
	vectorMUS = ord.NewSliceSer[float32](raw.Float32)
	tagsMUS   = ord.NewSliceSer[string](ord.String)
)

// maxLen rejects slice lengths that cannot fit in the remaining bytes,
// each element taking at least elemSize of them.
func maxLen(remaining, elemSize int) com.Validator[int] {
	return com.ValidatorFn[int](func(l int) error {
		if l > remaining/elemSize {
			return ErrTruncatedRecord
		}
		return nil
	})
}

func unmarshalVector(bs []byte) ([]float32, int, error) {
	ser := ord.NewValidSliceSer[float32](raw.Float32,
		slops.WithLenValidator[float32](maxLen(len(bs), com.Num32RawSize)))
	v, n, err := ser.Unmarshal(bs)
	if len(v) == 0 {
		v = nil
	}
	return v, n, err
}

func unmarshalStrings(bs []byte) ([]string, int, error) {
	ser := ord.NewValidSliceSer[string](ord.String,
		slops.WithLenValidator[string](maxLen(len(bs), 1)))
	v, n, err := ser.Unmarshal(bs)
	if len(v) == 0 {
		v = nil
	}
	return v, n, err
}

// reader threads an offset and the first error through a sequence of field reads.
type reader struct {
	bs  []byte
	n   int
	err error
}

func (r *reader) string() string {
	if r.err != nil {
		return ""
	}
	s, n, err := ord.String.Unmarshal(r.bs[r.n:])
	r.n += n
	r.err = err
	return s
}

func (r *reader) uint64() uint64 {
	if r.err != nil {
		return 0
	}
	v, n, err := varint.Uint64.Unmarshal(r.bs[r.n:])
	r.n += n
	r.err = err
	return v
}

func (r *reader) int64() int64 {
	if r.err != nil {
		return 0
	}
	v, n, err := varint.Int64.Unmarshal(r.bs[r.n:])
	r.n += n
	r.err = err
	return v
}

func (r *reader) float() float64 {
	if r.err != nil {
		return 0
	}
	v, n, err := varint.Float64.Unmarshal(r.bs[r.n:])
	r.n += n
	r.err = err
	return v
}

func (r *reader) time() time.Time {
	if r.err != nil {
		return time.Time{}
	}
	v, n, err := unmarshalTime(r.bs[r.n:])
	r.n += n
	r.err = err
	return v
}

func (r *reader) len() int {
	if r.err != nil {
		return 0
	}
	v, n, err := unmarshalLen(r.bs[r.n:])
	r.n += n
	r.err = err
	return v
}

func (r *reader) vector() []float32 {
	if r.err != nil {
		return nil
	}
	v, n, err := unmarshalVector(r.bs[r.n:])
	r.n += n
	r.err = err
	return v
}

func (r *reader) strings() []string {
	if r.err != nil {
		return nil
	}
	v, n, err := unmarshalStrings(r.bs[r.n:])
	r.n += n
	r.err = err
	return v
}

// ID

type idSer struct{}

func (idSer) Marshal(v ID, bs []byte) int {
	return varint.Uint64.Marshal(uint64(v), bs)
}

func (idSer) Unmarshal(bs []byte) (ID, int, error) {
	v, n, err := varint.Uint64.Unmarshal(bs)
	return ID(v), n, err
}

func (idSer) Size(v ID) int {
	return varint.Uint64.Size(uint64(v))
}

func (s idSer) Skip(bs []byte) (int, error) {
	_, n, err := s.Unmarshal(bs)
	return n, err
}

// Session

type sessionSer struct{}

func (sessionSer) Marshal(v Session, bs []byte) (n int) {
	n = ord.String.Marshal(v.ID, bs)
	n += ord.String.Marshal(v.UserID, bs[n:])
	n += ord.String.Marshal(v.Title, bs[n:])
	n += marshalTime(v.CreatedAt, bs[n:])
	n += marshalTime(v.UpdatedAt, bs[n:])
	return
}

func (sessionSer) Unmarshal(bs []byte) (v Session, n int, err error) {
	r := &reader{bs: bs}
	v.ID = r.string()
	v.UserID = r.string()
	v.Title = r.string()
	v.CreatedAt = r.time()
	v.UpdatedAt = r.time()
	return v, r.n, r.err
}

func (sessionSer) Size(v Session) int {
	return ord.String.Size(v.ID) +
		ord.String.Size(v.UserID) +
		ord.String.Size(v.Title) +
		sizeTime(v.CreatedAt) +
		sizeTime(v.UpdatedAt)
}

func (s sessionSer) Skip(bs []byte) (int, error) {
	_, n, err := s.Unmarshal(bs)
	return n, err
}

// Turn

type turnSer struct{}

func (turnSer) Marshal(v Turn, bs []byte) (n int) {
	n = varint.Uint64.Marshal(uint64(v.ID), bs)
	n += ord.String.Marshal(v.SessionID, bs[n:])
	n += ord.String.Marshal(v.UserID, bs[n:])
	n += ord.String.Marshal(v.Message, bs[n:])
	n += ord.String.Marshal(v.Response, bs[n:])
	n += varint.PositiveInt.Marshal(len(v.Sources), bs[n:])
	for _, src := range v.Sources {
		n += ord.String.Marshal(src.Title, bs[n:])
		n += varint.Float64.Marshal(src.Score, bs[n:])
		n += varint.Int64.Marshal(int64(src.Kind), bs[n:])
	}
	n += marshalTime(v.CreatedAt, bs[n:])
	return
}

func (turnSer) Unmarshal(bs []byte) (v Turn, n int, err error) {
	r := &reader{bs: bs}
	v.ID = ID(r.uint64())
	v.SessionID = r.string()
	v.UserID = r.string()
	v.Message = r.string()
	v.Response = r.string()
	if count := r.len(); count > 0 && r.err == nil {
		if count > len(bs)-r.n {
			return v, r.n, ErrTruncatedRecord
		}
		v.Sources = make([]Source, count)
		for i := range v.Sources {
			v.Sources[i].Title = r.string()
			v.Sources[i].Score = r.float()
			v.Sources[i].Kind = SourceKind(r.int64())
		}
	}
	v.CreatedAt = r.time()
	return v, r.n, r.err
}

func (turnSer) Size(v Turn) int {
	size := varint.Uint64.Size(uint64(v.ID)) +
		ord.String.Size(v.SessionID) +
		ord.String.Size(v.UserID) +
		ord.String.Size(v.Message) +
		ord.String.Size(v.Response) +
		varint.PositiveInt.Size(len(v.Sources))
	for _, src := range v.Sources {
		size += ord.String.Size(src.Title) + varint.Float64.Size(src.Score) + varint.Int64.Size(int64(src.Kind))
	}
	return size + sizeTime(v.CreatedAt)
}

func (s turnSer) Skip(bs []byte) (int, error) {
	_, n, err := s.Unmarshal(bs)
	return n, err
}

// KnowledgeEntry

type knowledgeEntrySer struct{}

func (knowledgeEntrySer) Marshal(v KnowledgeEntry, bs []byte) (n int) {
	n = varint.Uint64.Marshal(uint64(v.Id), bs)
	n += ord.String.Marshal(v.Title, bs[n:])
	n += ord.String.Marshal(v.Content, bs[n:])
	n += ord.String.Marshal(v.Origin, bs[n:])
	n += tagsMUS.Marshal(v.Tags, bs[n:])
	n += ord.String.Marshal(string(v.Kind), bs[n:])
	n += vectorMUS.Marshal(v.Vector, bs[n:])
	n += marshalTime(v.InsertedAt, bs[n:])
	n += marshalTime(v.UpdatedAt, bs[n:])
	return
}

func (knowledgeEntrySer) Unmarshal(bs []byte) (v KnowledgeEntry, n int, err error) {
	r := &reader{bs: bs}
	v.Id = ID(r.uint64())
	v.Title = r.string()
	v.Content = r.string()
	v.Origin = r.string()
	v.Tags = r.strings()
	v.Kind = KnowledgeKind(r.string())
	v.Vector = r.vector()
	v.InsertedAt = r.time()
	v.UpdatedAt = r.time()
	return v, r.n, r.err
}

func (knowledgeEntrySer) Size(v KnowledgeEntry) int {
	return varint.Uint64.Size(uint64(v.Id)) +
		ord.String.Size(v.Title) +
		ord.String.Size(v.Content) +
		ord.String.Size(v.Origin) +
		tagsMUS.Size(v.Tags) +
		ord.String.Size(string(v.Kind)) +
		vectorMUS.Size(v.Vector) +
		sizeTime(v.InsertedAt) +
		sizeTime(v.UpdatedAt)
}

func (s knowledgeEntrySer) Skip(bs []byte) (int, error) {
	_, n, err := s.Unmarshal(bs)
	return n, err
}

// Checkpoint

type checkpointSer struct{}

func (checkpointSer) Marshal(v Checkpoint, bs []byte) (n int) {
	n = ord.String.Marshal(v.ProcessorType, bs)
	n += varint.Uint64.Marshal(uint64(v.LastID), bs[n:])
	n += marshalTime(v.UpdatedAt, bs[n:])
	return
}

func (checkpointSer) Unmarshal(bs []byte) (v Checkpoint, n int, err error) {
	r := &reader{bs: bs}
	v.ProcessorType = r.string()
	v.LastID = ID(r.uint64())
	v.UpdatedAt = r.time()
	return v, r.n, r.err
}

func (checkpointSer) Size(v Checkpoint) int {
	return ord.String.Size(v.ProcessorType) +
		varint.Uint64.Size(uint64(v.LastID)) +
		sizeTime(v.UpdatedAt)
}

func (s checkpointSer) Skip(bs []byte) (int, error) {
	_, n, err := s.Unmarshal(bs)
	return n, err
}
