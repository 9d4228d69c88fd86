package badger

import (
	"encoding/binary"
	"time"

	"github.com/poiesic/kbassist/core"
)

// Key prefixes for different data types
const (
	sessionPrefix     = "sess:"
	userSessionPrefix = "sessu:"
	turnPrefix        = "turn:"
	turnIDSeq         = "turnseq"
	knowledgePrefix   = "kbent:"
	knowledgeHashPref = "kbhash:"
	knowledgeIDSeq    = "kbentseq"
	checkpointPrefix  = "chkpt:"
)

// keySeparator terminates variable-length components so one user's or
// session's keys never prefix another's.
const keySeparator = 0x00

// makeSessionKey generates a key for a session by ID.
func makeSessionKey(id string) []byte {
	return []byte(sessionPrefix + id)
}

// makeUserSessionPrefix generates the index prefix covering every session of a user.
// Format: prefix:userID\x00
func makeUserSessionPrefix(userID string) []byte {
	buf := make([]byte, 0, len(userSessionPrefix)+len(userID)+1)
	buf = append(buf, userSessionPrefix...)
	buf = append(buf, userID...)
	return append(buf, keySeparator)
}

// makeUserSessionKey generates a composite key for the per-user recency index.
// Format: prefix:userID\x00updatedAt:sessionID
func makeUserSessionKey(userID string, updatedAt time.Time, sessionID string) []byte {
	prefix := makeUserSessionPrefix(userID)
	buf := make([]byte, len(prefix)+8, len(prefix)+8+len(sessionID))
	offset := copy(buf, prefix)
	// Write in BigEndian order so lexicographic sort works correctly
	binary.BigEndian.PutUint64(buf[offset:], uint64(updatedAt.UnixMicro()))
	return append(buf, sessionID...)
}

// makeTurnPrefix generates the prefix covering every turn of a session.
// Format: prefix:sessionID\x00
func makeTurnPrefix(sessionID string) []byte {
	buf := make([]byte, 0, len(turnPrefix)+len(sessionID)+1)
	buf = append(buf, turnPrefix...)
	buf = append(buf, sessionID...)
	return append(buf, keySeparator)
}

// makeTurnKey generates a composite key for a turn.
// Format: prefix:sessionID\x00createdAt:turnID
func makeTurnKey(sessionID string, createdAt time.Time, id core.ID) []byte {
	prefix := makeTurnPrefix(sessionID)
	buf := make([]byte, len(prefix)+16)
	offset := copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(createdAt.UnixMicro()))
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makeKnowledgeKey generates a key for a knowledge entry.
// IDs are BigEndian so iteration follows insertion order.
func makeKnowledgeKey(id core.ID) []byte {
	buf := make([]byte, len(knowledgePrefix)+8)
	offset := copy(buf, knowledgePrefix)
	binary.BigEndian.PutUint64(buf[offset:], uint64(id))
	return buf
}

// makeKnowledgeHashKey generates a key for the content fingerprint index.
func makeKnowledgeHashKey(fingerprint string) []byte {
	return []byte(knowledgeHashPref + fingerprint)
}

// makeCheckpointKey generates a key for processor checkpoints.
func makeCheckpointKey(processorType string) []byte {
	return []byte(checkpointPrefix + processorType)
}

// seekLast returns a key that sorts after every key carrying prefix,
// for positioning reverse iterators.
func seekLast(prefix []byte) []byte {
	buf := make([]byte, len(prefix)+1)
	copy(buf, prefix)
	buf[len(prefix)] = 0xFF
	return buf
}
