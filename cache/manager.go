package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/hmeierhoff/clearsearch/model"
)

// minAnswerLength gates result-cache writes: shorter answers are almost
// always refusals or fragments not worth serving again.
const minAnswerLength = 20

// refusalPhrases are generic negative answers that must not be cached.
var refusalPhrases = []string{
	"i don't know",
	"i do not know",
	"i cannot answer",
	"no relevant information",
	"no information available",
	"unable to find",
}

// ContextEntry is the payload of the context tier. It carries the security
// attributes it was stored under so reads can re-validate them against the
// current clearance.
type ContextEntry struct {
	Query           string
	Passages        []*model.PassageCandidate
	OrgLevel        model.SecurityLevel
	DepartmentLevel model.SecurityLevel
	DepartmentID    string
	StoredAt        time.Time
}

// ConfigLoader fetches a setting category on a config-cache miss.
type ConfigLoader func(ctx context.Context, category string) (map[string]string, error)

// Manager coordinates the three cache tiers.
type Manager struct {
	results  Store
	contexts Store
	configs  Store
	cfg      model.Config
	writer   *writer
	log      *slog.Logger
}

// NewManager wires the three tiers and starts the background writer.
func NewManager(results, contexts, configs Store, cfg model.Config, log *slog.Logger) *Manager {
	return &Manager{
		results:  results,
		contexts: contexts,
		configs:  configs,
		cfg:      cfg,
		writer:   newWriter(64, log),
		log:      log,
	}
}

// Close drains pending cache writes.
func (m *Manager) Close() {
	m.writer.close()
}

// ContextKey derives the context-tier key. It is a function of the query
// text and the user's security attributes: two users with different access
// never collide, two users with identical access share the entry.
func ContextKey(query string, user *model.UserClearance) string {
	h := sha256.Sum256([]byte(query))
	return fmt.Sprintf("ctx:%s:%d:%d:%s",
		hex.EncodeToString(h[:16]),
		user.OrgLevel,
		user.DepartmentLevel,
		user.DepartmentID,
	)
}

// GetContext returns the cached passage set for the query and user, if any.
// The entry's embedded security attributes are re-validated against the
// current clearance; a mismatch deletes the entry and reports a miss.
func (m *Manager) GetContext(query string, user *model.UserClearance) ([]*model.PassageCandidate, bool) {
	key := ContextKey(query, user)

	v, ok := m.contexts.Get(key)
	if !ok {
		return nil, false
	}

	entry, ok := v.(*ContextEntry)
	if !ok {
		m.contexts.Delete(key)
		return nil, false
	}

	if entry.OrgLevel != user.OrgLevel ||
		entry.DepartmentLevel != user.DepartmentLevel ||
		entry.DepartmentID != user.DepartmentID {
		m.log.Warn("context cache entry stored under different clearance, discarding",
			slog.String("user_id", user.UserID.String()))
		m.contexts.Delete(key)
		return nil, false
	}

	return entry.Passages, true
}

// PutContext schedules a context-tier write for a successful retrieval.
func (m *Manager) PutContext(query string, user *model.UserClearance, passages []*model.PassageCandidate) {
	entry := &ContextEntry{
		Query:           query,
		Passages:        passages,
		OrgLevel:        user.OrgLevel,
		DepartmentLevel: user.DepartmentLevel,
		DepartmentID:    user.DepartmentID,
		StoredAt:        time.Now(),
	}
	m.writer.enqueue(writeOp{
		store:   m.contexts,
		key:     ContextKey(query, user),
		payload: entry,
		ttl:     m.cfg.ContextCacheTTL,
	})
}

// ResultKey derives the result-tier key from the query embedding. The vector
// is quantised per dimension and hashed, so textually different but
// semantically close queries land in the same bucket. The key has no user
// component: the result tier is shared across users.
func ResultKey(embedding []float32) string {
	h := fnv.New64a()
	var buf [1]byte
	for _, v := range embedding {
		buf[0] = byte(int8(math.Round(float64(v) * 4)))
		_, _ = h.Write(buf[:])
	}
	var out [8]byte
	binary.BigEndian.PutUint64(out[:], h.Sum64())
	return "res:" + hex.EncodeToString(out[:])
}

// GetAnswer returns a previously generated answer for a semantically similar
// query, if one is cached.
func (m *Manager) GetAnswer(embedding []float32) (string, bool) {
	v, ok := m.results.Get(ResultKey(embedding))
	if !ok {
		return "", false
	}
	answer, ok := v.(string)
	return answer, ok
}

// PutAnswer schedules a result-tier write. Writes are gated: short answers
// and generic refusals are skipped so they cannot poison the shared cache.
func (m *Manager) PutAnswer(embedding []float32, answer string) {
	if !CacheableAnswer(answer) {
		m.log.Debug("skipping result cache write for non-cacheable answer")
		return
	}
	m.writer.enqueue(writeOp{
		store:   m.results,
		key:     ResultKey(embedding),
		payload: answer,
		ttl:     m.cfg.ResultCacheTTL,
	})
}

// CacheableAnswer reports whether an answer passes the result-tier write gate.
func CacheableAnswer(answer string) bool {
	trimmed := strings.TrimSpace(answer)
	if len(trimmed) < minAnswerLength {
		return false
	}
	lower := strings.ToLower(trimmed)
	for _, phrase := range refusalPhrases {
		if strings.Contains(lower, phrase) {
			return false
		}
	}
	return true
}

// GetSettings returns a setting category, loading it through the loader on a
// miss. Loaded values are cached synchronously for the config TTL.
func (m *Manager) GetSettings(ctx context.Context, category string, load ConfigLoader) (map[string]string, error) {
	key := "cfg:" + category

	if v, ok := m.configs.Get(key); ok {
		if settings, ok := v.(map[string]string); ok {
			return settings, nil
		}
		m.configs.Delete(key)
	}

	settings, err := load(ctx, category)
	if err != nil {
		return nil, err
	}

	if err := m.configs.Set(key, settings, m.cfg.ConfigCacheTTL); err != nil {
		m.log.Warn("config cache write failed", slog.String("category", category), slog.String("error", err.Error()))
	}

	return settings, nil
}

// InvalidateConfig drops a cached setting category after an admin update.
func (m *Manager) InvalidateConfig(category string) {
	m.configs.Delete("cfg:" + category)
}
