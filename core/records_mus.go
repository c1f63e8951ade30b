package core

import (
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
)

// MUS serializers for persisted domain types. Timestamps are stored as
// unix microseconds, matching the precision of the store's index keys.
var (
	IDMUS          = idMUS{}
	JobStatusMUS   = jobStatusMUS{}
	MetadataMUS    = metadataMUS{}
	PipelineJobMUS = pipelineJobMUS{}
)

type idMUS struct{}

func (idMUS) Marshal(v ID, bs []byte) (n int) {
	return varint.Uint64.Marshal(uint64(v), bs)
}

func (idMUS) Unmarshal(bs []byte) (v ID, n int, err error) {
	u, n, err := varint.Uint64.Unmarshal(bs)
	return ID(u), n, err
}

func (idMUS) Size(v ID) (size int) {
	return varint.Uint64.Size(uint64(v))
}

func (idMUS) Skip(bs []byte) (n int, err error) {
	return varint.Uint64.Skip(bs)
}

type jobStatusMUS struct{}

func (jobStatusMUS) Marshal(v JobStatus, bs []byte) (n int) {
	return varint.Int.Marshal(int(v), bs)
}

func (jobStatusMUS) Unmarshal(bs []byte) (v JobStatus, n int, err error) {
	i, n, err := varint.Int.Unmarshal(bs)
	return JobStatus(i), n, err
}

func (jobStatusMUS) Size(v JobStatus) (size int) {
	return varint.Int.Size(int(v))
}

func (jobStatusMUS) Skip(bs []byte) (n int, err error) {
	return varint.Int.Skip(bs)
}

type timeMUS struct{}

func (timeMUS) Marshal(v time.Time, bs []byte) (n int) {
	return varint.Int64.Marshal(v.UnixMicro(), bs)
}

func (timeMUS) Unmarshal(bs []byte) (v time.Time, n int, err error) {
	us, n, err := varint.Int64.Unmarshal(bs)
	if err != nil {
		return
	}
	return time.UnixMicro(us).UTC(), n, nil
}

func (timeMUS) Size(v time.Time) (size int) {
	return varint.Int64.Size(v.UnixMicro())
}

// metadataMUS encodes a length-prefixed list of key/value pairs.
// Keys are written in no particular order.
type metadataMUS struct{}

func (metadataMUS) Marshal(v Metadata, bs []byte) (n int) {
	n = varint.PositiveInt.Marshal(len(v), bs)
	for k, val := range v {
		n += ord.String.Marshal(k, bs[n:])
		n += ord.String.Marshal(val, bs[n:])
	}
	return n
}

func (metadataMUS) Unmarshal(bs []byte) (v Metadata, n int, err error) {
	length, n, err := varint.PositiveInt.Unmarshal(bs)
	if err != nil {
		return
	}
	v = make(Metadata, length)
	var (
		k, val string
		n1     int
	)
	for range length {
		k, n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
		val, n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
		v[k] = val
	}
	return v, n, nil
}

func (metadataMUS) Size(v Metadata) (size int) {
	size = varint.PositiveInt.Size(len(v))
	for k, val := range v {
		size += ord.String.Size(k) + ord.String.Size(val)
	}
	return size
}

type pipelineJobMUS struct{}

func (pipelineJobMUS) Marshal(v PipelineJob, bs []byte) (n int) {
	n = IDMUS.Marshal(v.Id, bs)
	n += ord.String.Marshal(v.FileLocation, bs[n:])
	n += varint.Int64.Marshal(v.FileVersion, bs[n:])
	n += JobStatusMUS.Marshal(v.Status, bs[n:])
	n += ord.Bool.Marshal(v.Message != nil, bs[n:])
	if v.Message != nil {
		n += ord.String.Marshal(*v.Message, bs[n:])
	}
	n += timeMUS{}.Marshal(v.CreatedAt, bs[n:])
	n += timeMUS{}.Marshal(v.UpdatedAt, bs[n:])
	return n
}

func (pipelineJobMUS) Unmarshal(bs []byte) (v PipelineJob, n int, err error) {
	var n1 int
	v.Id, n, err = IDMUS.Unmarshal(bs)
	if err != nil {
		return
	}
	v.FileLocation, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.FileVersion, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.Status, n1, err = JobStatusMUS.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	hasMessage, n1, err := ord.Bool.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	if hasMessage {
		var msg string
		msg, n1, err = ord.String.Unmarshal(bs[n:])
		n += n1
		if err != nil {
			return
		}
		v.Message = &msg
	}
	v.CreatedAt, n1, err = timeMUS{}.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	v.UpdatedAt, n1, err = timeMUS{}.Unmarshal(bs[n:])
	n += n1
	return
}

func (pipelineJobMUS) Size(v PipelineJob) (size int) {
	size = IDMUS.Size(v.Id) +
		ord.String.Size(v.FileLocation) +
		varint.Int64.Size(v.FileVersion) +
		JobStatusMUS.Size(v.Status) +
		ord.Bool.Size(v.Message != nil)
	if v.Message != nil {
		size += ord.String.Size(*v.Message)
	}
	return size + timeMUS{}.Size(v.CreatedAt) + timeMUS{}.Size(v.UpdatedAt)
}
