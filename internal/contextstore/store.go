// Package contextstore keeps owner-scoped text fragments with embeddings and
// answers similarity queries over them.
package contextstore

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"study-planner/internal/apperr"
	"study-planner/internal/embedding"
	"study-planner/internal/metrics"
	"study-planner/internal/model"
	"study-planner/internal/repository"
)

// DefaultTopK is the number of hits returned when the caller asks for none.
const DefaultTopK = 5

// Hit is one ranked query result. Lower distance means more relevant.
type Hit struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
	Distance float64        `json:"distance"`
}

// Relevance is 1 - distance.
func (h Hit) Relevance() float64 {
	return 1 - h.Distance
}

// Store is the context store backed by the context_entries table.
type Store struct {
	repo     *repository.ContextRepository
	embedder embedding.Embedder
	log      *zap.SugaredLogger
	now      func() time.Time
}

func New(repo *repository.ContextRepository, embedder embedding.Embedder, log *zap.SugaredLogger) *Store {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Store{repo: repo, embedder: embedder, log: log, now: time.Now}
}

// Add embeds text and stores it for owner. Metadata is merged with user_id and
// timestamp; the owner key always reflects owner. An empty id is generated,
// a supplied id overwrites any entry with that id.
func (s *Store) Add(ctx context.Context, owner uint, text string, metadata map[string]any, id string) (string, error) {
	if owner == 0 {
		return "", apperr.Validation("owner is required")
	}
	if strings.TrimSpace(text) == "" {
		return "", apperr.Validation("context text is empty")
	}

	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		metrics.ContextOperations.WithLabelValues("add", metrics.Outcome(false)).Inc()
		return "", fmt.Errorf("%w: embed: %w", apperr.ErrContextStore, err)
	}

	now := s.now()
	if id == "" {
		id = fmt.Sprintf("user_%d_%d", owner, now.UnixNano())
	}

	meta := mergeMetadata(owner, metadata, now)
	entry := &model.ContextEntry{
		ID:        id,
		UserID:    owner,
		Kind:      kindOf(meta),
		Text:      text,
		Embedding: embedding.Encode(vec),
		Metadata:  meta,
	}
	if err := s.repo.Upsert(ctx, entry); err != nil {
		metrics.ContextOperations.WithLabelValues("add", metrics.Outcome(false)).Inc()
		return "", fmt.Errorf("%w: %w", apperr.ErrContextStore, err)
	}
	metrics.ContextOperations.WithLabelValues("add", metrics.Outcome(true)).Inc()
	return id, nil
}

// Query returns at most topK of owner's entries matching filter, nearest first.
// Entries of other owners are never returned.
func (s *Store) Query(ctx context.Context, owner uint, text string, topK int, filter map[string]any) ([]Hit, error) {
	if owner == 0 {
		return nil, apperr.Validation("owner is required")
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		metrics.ContextOperations.WithLabelValues("query", metrics.Outcome(false)).Inc()
		return nil, fmt.Errorf("%w: embed: %w", apperr.ErrContextStore, err)
	}

	var hits []Hit
	if repository.VectorSQLEnabled() && len(withoutKind(filter)) == 0 {
		hits, err = s.querySQL(ctx, owner, vec, topK, filter)
	} else {
		hits, err = s.queryScan(ctx, owner, vec, filter)
	}
	if err != nil {
		metrics.ContextOperations.WithLabelValues("query", metrics.Outcome(false)).Inc()
		return nil, fmt.Errorf("%w: %w", apperr.ErrContextStore, err)
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	metrics.ContextOperations.WithLabelValues("query", metrics.Outcome(true)).Inc()
	return hits, nil
}

func (s *Store) queryScan(ctx context.Context, owner uint, vec []float32, filter map[string]any) ([]Hit, error) {
	entries, err := s.repo.ListByOwner(ctx, owner, "")
	if err != nil {
		return nil, err
	}
	hits := make([]Hit, 0, len(entries))
	for _, e := range entries {
		if !ownedBy(e, owner) || !matches(e.Metadata, filter) {
			continue
		}
		stored, err := embedding.Decode(e.Embedding)
		if err != nil {
			s.log.Warnw("skipping context entry with bad embedding", "id", e.ID, "error", err)
			continue
		}
		d, err := embedding.CosineDistance(vec, stored)
		if err != nil {
			s.log.Warnw("skipping context entry", "id", e.ID, "error", err)
			continue
		}
		hits = append(hits, Hit{ID: e.ID, Text: e.Text, Metadata: e.Metadata, Distance: d})
	}
	return hits, nil
}

func (s *Store) querySQL(ctx context.Context, owner uint, vec []float32, topK int, filter map[string]any) ([]Hit, error) {
	var kind model.ContextKind
	if k, ok := filter[model.MetaKind]; ok {
		kind = model.ContextKind(fmt.Sprint(k))
	}
	scored, err := s.repo.Nearest(ctx, owner, kind, embedding.Encode(vec), topK)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(scored))
	for i, sc := range scored {
		ids[i] = sc.ID
	}
	entries, err := s.repo.FindByIDs(ctx, owner, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]model.ContextEntry, len(entries))
	for _, e := range entries {
		byID[e.ID] = e
	}
	hits := make([]Hit, 0, len(scored))
	for _, sc := range scored {
		e, ok := byID[sc.ID]
		if !ok || !ownedBy(e, owner) {
			continue
		}
		hits = append(hits, Hit{ID: e.ID, Text: e.Text, Metadata: e.Metadata, Distance: sc.Distance})
	}
	return hits, nil
}

// Update replaces the text of an entry, re-embeds it and merges metadata.
// The stored owner is kept whatever metadata says.
//
// Update does not check who is asking; callers scope ids to their owner.
func (s *Store) Update(ctx context.Context, id, text string, metadata map[string]any) error {
	entry, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if text != "" {
		vec, err := s.embedder.Embed(ctx, text)
		if err != nil {
			return fmt.Errorf("%w: embed: %w", apperr.ErrContextStore, err)
		}
		entry.Text = text
		entry.Embedding = embedding.Encode(vec)
	}
	merged := make(map[string]any, len(entry.Metadata)+len(metadata))
	for k, v := range entry.Metadata {
		merged[k] = v
	}
	for k, v := range metadata {
		merged[k] = v
	}
	merged[model.MetaOwner] = ownerKey(entry.UserID)
	entry.Metadata = merged
	if kind := kindOf(merged); kind != "" {
		entry.Kind = kind
	}

	if err := s.repo.Save(ctx, entry); err != nil {
		return fmt.Errorf("%w: %w", apperr.ErrContextStore, err)
	}
	metrics.ContextOperations.WithLabelValues("update", metrics.Outcome(true)).Inc()
	return nil
}

// Delete removes an entry by id. Like Update it is not owner-checked.
func (s *Store) Delete(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	metrics.ContextOperations.WithLabelValues("delete", metrics.Outcome(true)).Inc()
	return nil
}

func ownerKey(owner uint) string {
	return strconv.FormatUint(uint64(owner), 10)
}

func mergeMetadata(owner uint, metadata map[string]any, now time.Time) map[string]any {
	meta := make(map[string]any, len(metadata)+2)
	meta[model.MetaTimestamp] = now.UTC().Format(time.RFC3339)
	for k, v := range metadata {
		meta[k] = v
	}
	meta[model.MetaOwner] = ownerKey(owner)
	return meta
}

func kindOf(meta map[string]any) model.ContextKind {
	switch k := fmt.Sprint(meta[model.MetaKind]); model.ContextKind(k) {
	case model.KindTask, model.KindPlan, model.KindDocument:
		return model.ContextKind(k)
	}
	return ""
}

func ownedBy(e model.ContextEntry, owner uint) bool {
	return e.UserID == owner && fmt.Sprint(e.Metadata[model.MetaOwner]) == ownerKey(owner)
}

// matches compares filter values with metadata by their string form, since
// metadata round-trips through JSON.
func matches(meta, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := meta[k]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func withoutKind(filter map[string]any) map[string]any {
	rest := make(map[string]any, len(filter))
	for k, v := range filter {
		if k != model.MetaKind {
			rest[k] = v
		}
	}
	return rest
}
