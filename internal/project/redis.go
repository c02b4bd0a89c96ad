package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/manash/clickgenius/pkg/models"
)

const projectIndexKey = "projects"

// RedisClient is the subset of *redis.Client the store uses.
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	SAdd(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SRem(ctx context.Context, key string, members ...interface{}) *redis.IntCmd
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	Close() error
}

// RedisStore keeps one JSON document per project plus a set of known IDs.
type RedisStore struct {
	rdb RedisClient
}

var _ Store = (*RedisStore)(nil)

type projectDoc struct {
	ID        string       `json:"id"`
	Name      string       `json:"name"`
	Mode      string       `json:"mode"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	Entries   []string     `json:"entries"`
	Cursor    int          `json:"cursor"`
	Messages  []messageDoc `json:"messages"`
}

type messageDoc struct {
	ID        string    `json:"id"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Image     string    `json:"image,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

func NewRedisStore(rdb RedisClient) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// DialRedis connects to addr and verifies the connection.
func DialRedis(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return rdb, nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}

func (s *RedisStore) Save(ctx context.Context, p *Project) error {
	raw, err := json.Marshal(toDoc(p))
	if err != nil {
		return fmt.Errorf("failed to marshal project %s: %w", p.ID, err)
	}
	if err := s.rdb.Set(ctx, projectKey(p.ID), raw, 0).Err(); err != nil {
		return fmt.Errorf("failed to save project %s: %w", p.ID, err)
	}
	if err := s.rdb.SAdd(ctx, projectIndexKey, p.ID).Err(); err != nil {
		return fmt.Errorf("failed to index project %s: %w", p.ID, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Project, error) {
	raw, err := s.rdb.Get(ctx, projectKey(id)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to get project %s: %w", id, err)
	}
	var doc projectDoc
	if err := json.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("failed to unmarshal project %s: %w", id, err)
	}
	return fromDoc(doc), nil
}

func (s *RedisStore) List(ctx context.Context) ([]Summary, error) {
	ids, err := s.rdb.SMembers(ctx, projectIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}

	summaries := make([]Summary, 0, len(ids))
	for _, id := range ids {
		p, err := s.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			// stale index entry
			continue
		}
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, p.Summary())
	}

	slices.SortFunc(summaries, func(a, b Summary) int {
		return b.UpdatedAt.Compare(a.UpdatedAt)
	})
	return summaries, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	n, err := s.rdb.Del(ctx, projectKey(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete project %s: %w", id, err)
	}
	if err := s.rdb.SRem(ctx, projectIndexKey, id).Err(); err != nil {
		return fmt.Errorf("failed to unindex project %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func projectKey(id string) string {
	return fmt.Sprintf("project_%s", id)
}

func toDoc(p *Project) projectDoc {
	doc := projectDoc{
		ID:        p.ID,
		Name:      p.Name,
		Mode:      string(p.Mode),
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
		Cursor:    p.Cursor,
		Entries:   make([]string, len(p.Entries)),
		Messages:  make([]messageDoc, len(p.Messages)),
	}
	for i, e := range p.Entries {
		doc.Entries[i] = string(e)
	}
	for i, m := range p.Messages {
		doc.Messages[i] = messageDoc{
			ID:        m.ID,
			Role:      string(m.Role),
			Text:      m.Text,
			Image:     string(m.Image),
			Timestamp: m.Timestamp,
		}
	}
	return doc
}

func fromDoc(doc projectDoc) *Project {
	p := &Project{
		ID:        doc.ID,
		Name:      doc.Name,
		Mode:      models.Mode(doc.Mode),
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
		Cursor:    doc.Cursor,
	}
	for _, e := range doc.Entries {
		p.Entries = append(p.Entries, models.ImageRef(e))
	}
	for _, m := range doc.Messages {
		p.Messages = append(p.Messages, models.Message{
			ID:        m.ID,
			Role:      models.Role(m.Role),
			Text:      m.Text,
			Image:     models.ImageRef(m.Image),
			Timestamp: m.Timestamp,
		})
	}
	return p
}

func (s *RedisStore) Shutdown() error {
	return s.Close()
}
