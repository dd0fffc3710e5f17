package bucketing

import (
	"hash"
	"strings"
	"sync"
	"time"

	"github.com/spaolacci/murmur3"

	"lms-auth/internal/config"
)

// Manager assigns stable bucket numbers to subjects (email addresses).
// Buckets shard the OTP keyspace and serve as the partition component of
// the credential table key, so one hot subject prefix cannot dominate a
// partition.
type Manager struct {
	subjectBuckets int
	hasherPool     sync.Pool
}

func NewManager(cfg *config.Config) *Manager {
	m := &Manager{
		subjectBuckets: cfg.Bucketing.SubjectBuckets,
	}

	// Pool of hash functions to avoid allocation overhead
	m.hasherPool = sync.Pool{
		New: func() interface{} {
			return murmur3.New64()
		},
	}

	return m
}

// SubjectBucket returns a consistent bucket for a subject
// (0 to subjectBuckets-1). Subjects are case-folded first so the same
// email always lands in the same bucket.
func (m *Manager) SubjectBucket(subject string) int {
	return int(m.getHash(strings.ToLower(subject)) % uint64(m.subjectBuckets))
}

// TimeBucket returns the start of the window containing now, in Unix
// seconds, for windowed counters.
func (m *Manager) TimeBucket(windowSeconds int) int64 {
	return time.Now().Unix() / int64(windowSeconds) * int64(windowSeconds)
}

// SubjectBuckets returns the configured bucket count.
func (m *Manager) SubjectBuckets() int {
	return m.subjectBuckets
}

func (m *Manager) getHash(key string) uint64 {
	hasher := m.hasherPool.Get().(hash.Hash64)
	defer m.hasherPool.Put(hasher)

	hasher.Reset()
	hasher.Write([]byte(key))
	return hasher.Sum64()
}
