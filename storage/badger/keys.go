package badger

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/poiesic/docingest/core"
)

// Key prefixes for different data types
const (
	jobRecordPrefix  = "pjob"
	jobVersionPrefix = "pjobv"
	jobStatusPrefix  = "pjobs"
	jobIDSeq         = "pjobseq"
)

// makeJobKey generates a key for a pipeline job by ID.
func makeJobKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", jobRecordPrefix, id))
}

// makePartialVersionKey generates the prefix shared by every version of a location.
// Format: prefix:location\x00
func makePartialVersionKey(fileLocation string) []byte {
	prefix := jobVersionPrefix + ":"
	buf := make([]byte, 0, len(prefix)+len(fileLocation)+1+8)
	buf = append(buf, prefix...)
	buf = append(buf, fileLocation...)
	return append(buf, 0)
}

// makeVersionKey generates the unique-constraint key for (location, version).
// Format: prefix:location\x00version
func makeVersionKey(fileLocation string, version int64) []byte {
	buf := makePartialVersionKey(fileLocation)
	// BigEndian so versions of one location sort numerically
	return binary.BigEndian.AppendUint64(buf, uint64(version))
}

// makeStatusKey generates a composite key for the (status, updatedAt) index.
// Format: prefix:status updatedAt id
func makeStatusKey(status core.JobStatus, updatedAt time.Time, id core.ID) []byte {
	buf := makePartialStatusKey(status)
	buf = binary.BigEndian.AppendUint64(buf, uint64(updatedAt.UnixMicro()))
	return binary.BigEndian.AppendUint64(buf, uint64(id))
}

// makePartialStatusKey generates a partial key for status queries.
func makePartialStatusKey(status core.JobStatus) []byte {
	prefix := jobStatusPrefix + ":"
	buf := make([]byte, 0, len(prefix)+1+16)
	buf = append(buf, prefix...)
	return append(buf, byte(status))
}
