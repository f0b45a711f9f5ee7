package badger

import (
	"encoding/binary"
	"fmt"

	"github.com/poiesic/dataroom/core"
)

// Key prefixes for different data types
const (
	chunkPrefix    = "chunk"
	chunkIDPrefix  = "chunkid"
	chunkDocPrefix = "chunkdoc"
	chunkSeq       = "chunkseq"
)

// taskSeparator ends the task component of a key. Task IDs never contain it.
const taskSeparator = 0x00

// makeTaskPrefix generates the prefix shared by every chunk of a task.
// Format: prefix:task\x00
func makeTaskPrefix(taskID string) []byte {
	buf := make([]byte, 0, len(chunkPrefix)+1+len(taskID)+1)
	buf = append(buf, chunkPrefix+":"...)
	buf = append(buf, taskID...)
	return append(buf, taskSeparator)
}

// makeChunkKey generates the primary key for a chunk.
// Format: prefix:task\x00seq
func makeChunkKey(taskID string, seq uint64) []byte {
	prefix := makeTaskPrefix(taskID)
	buf := make([]byte, len(prefix)+8)
	offset := copy(buf, prefix)
	// Write in BigEndian order so lexicographic sort follows insertion order
	binary.BigEndian.PutUint64(buf[offset:], seq)
	return buf
}

// taskFromChunkKey extracts the task ID from a primary chunk key.
func taskFromChunkKey(key []byte) (string, bool) {
	start := len(chunkPrefix) + 1
	end := len(key) - 9 // separator + 8 byte sequence
	if end < start || key[end] != taskSeparator {
		return "", false
	}
	return string(key[start:end]), true
}

// makeChunkIDKey generates the key mapping a chunk ID to its primary key.
func makeChunkIDKey(id core.ID) []byte {
	return []byte(fmt.Sprintf("%s:%d", chunkIDPrefix, id))
}

// makeChunkDocKey generates the key recording that a document has chunks in a task.
// Format: prefix:task\x00doc
func makeChunkDocKey(taskID, docID string) []byte {
	buf := make([]byte, 0, len(chunkDocPrefix)+1+len(taskID)+1+len(docID))
	buf = append(buf, chunkDocPrefix+":"...)
	buf = append(buf, taskID...)
	buf = append(buf, taskSeparator)
	return append(buf, docID...)
}

// makeTaskDocPrefix generates the prefix of every document key of a task.
func makeTaskDocPrefix(taskID string) []byte {
	return makeChunkDocKey(taskID, "")
}
