package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"docchat/internal/docchat"
	"docchat/internal/model"
)

const (
	redisKeyPrefix   = "docchat"
	redisTxAttempts  = 5
	redisPingTimeout = 3 * time.Second
)

// RedisStore implements docchat.Store on Redis. Documents live in a hash per
// owner; activities live in a sorted set scored by timestamp, trimmed to the
// newest activityCap entries. Every write
// publishes on a per-owner channel, so live queries see changes made by any
// process sharing the server.
type RedisStore struct {
	client      *redis.Client
	feed        *feed
	logger      docchat.Logger
	activityCap int
}

var _ docchat.Store = (*RedisStore)(nil)

// RedisOptions configures the connection for NewRedisStore.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int

	// ActivityCap bounds the activities kept per owner; <= 0 uses
	// docchat.DefaultActivityLimit.
	ActivityCap int
}

// NewRedisStore connects to Redis and verifies the server is reachable.
func NewRedisStore(ctx context.Context, opts RedisOptions, logger docchat.Logger) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  3 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis failed: %w", err)
	}

	return NewRedisStoreFromClient(client, opts.ActivityCap, logger), nil
}

// NewRedisStoreFromClient wraps an existing client. The store takes ownership
// of client and closes it in Close. activityCap <= 0 uses
// docchat.DefaultActivityLimit.
func NewRedisStoreFromClient(client *redis.Client, activityCap int, logger docchat.Logger) *RedisStore {
	if logger == nil {
		logger = docchat.NewNopLogger()
	}
	if activityCap <= 0 {
		activityCap = docchat.DefaultActivityLimit
	}
	return &RedisStore{client: client, feed: newFeed(), logger: logger, activityCap: activityCap}
}

// storedDocument is the hash value for one document. Seq breaks ties between
// equal upload times.
type storedDocument struct {
	Seq      int64           `json:"seq"`
	Document *model.Document `json:"document"`
}

func (s *RedisStore) CreateDocument(ctx context.Context, doc *model.Document) error {
	if err := validateDocument(doc); err != nil {
		return err
	}

	seq, err := s.client.Incr(ctx, s.seqKey(doc.OwnerID)).Result()
	if err != nil {
		return fmt.Errorf("redis incr document seq failed: %w", err)
	}
	stored := *doc
	stored.UploadedAt = doc.UploadedAt.UTC()
	payload, err := json.Marshal(storedDocument{Seq: seq, Document: &stored})
	if err != nil {
		return fmt.Errorf("marshal document failed: %w", err)
	}

	created, err := s.client.HSetNX(ctx, s.documentsKey(doc.OwnerID), doc.ID, payload).Result()
	if err != nil {
		return fmt.Errorf("redis create document failed: %w", err)
	}
	if !created {
		return fmt.Errorf("document %s already exists", doc.ID)
	}

	s.publish(ctx, documentsTopic(doc.OwnerID))
	return nil
}

func (s *RedisStore) GetDocument(ctx context.Context, ownerID, id string) (*model.Document, error) {
	raw, err := s.client.HGet(ctx, s.documentsKey(ownerID), id).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get document failed: %w", err)
	}

	var stored storedDocument
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		return nil, fmt.Errorf("unmarshal document %s failed: %w", id, err)
	}
	return stored.Document, nil
}

func (s *RedisStore) UpdateDocumentStatus(ctx context.Context, ownerID, id string, status model.DocumentStatus) error {
	key := s.documentsKey(ownerID)

	update := func(tx *redis.Tx) error {
		raw, err := tx.HGet(ctx, key, id).Result()
		if errors.Is(err, redis.Nil) {
			return fmt.Errorf("%s: %w", id, docchat.ErrDocumentNotFound)
		}
		if err != nil {
			return fmt.Errorf("redis get document failed: %w", err)
		}

		var stored storedDocument
		if err := json.Unmarshal([]byte(raw), &stored); err != nil {
			return fmt.Errorf("unmarshal document %s failed: %w", id, err)
		}
		if !stored.Document.Status.CanTransition(status) {
			return fmt.Errorf("%s -> %s: %w", stored.Document.Status, status, docchat.ErrInvalidTransition)
		}
		stored.Document.Status = status

		payload, err := json.Marshal(stored)
		if err != nil {
			return fmt.Errorf("marshal document failed: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, id, payload)
			return nil
		})
		return err
	}

	var err error
	for range redisTxAttempts {
		err = s.client.Watch(ctx, update, key)
		if !errors.Is(err, redis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		if errors.Is(err, redis.TxFailedErr) {
			return fmt.Errorf("document %s changed concurrently: %w", id, err)
		}
		return err
	}

	s.publish(ctx, documentsTopic(ownerID))
	return nil
}

func (s *RedisStore) ListDocuments(ctx context.Context, ownerID string) ([]*model.Document, error) {
	values, err := s.client.HVals(ctx, s.documentsKey(ownerID)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list documents failed: %w", err)
	}

	stored := make([]storedDocument, 0, len(values))
	for _, raw := range values {
		var d storedDocument
		if err := json.Unmarshal([]byte(raw), &d); err != nil {
			return nil, fmt.Errorf("unmarshal document failed: %w", err)
		}
		stored = append(stored, d)
	}
	sort.Slice(stored, func(i, j int) bool {
		a, b := stored[i], stored[j]
		if !a.Document.UploadedAt.Equal(b.Document.UploadedAt) {
			return a.Document.UploadedAt.After(b.Document.UploadedAt)
		}
		return a.Seq > b.Seq
	})

	docs := make([]*model.Document, len(stored))
	for i, d := range stored {
		docs[i] = d.Document
	}
	return docs, nil
}

func (s *RedisStore) AppendActivity(ctx context.Context, activity *model.Activity) error {
	if err := validateActivity(activity); err != nil {
		return err
	}

	seq, err := s.client.Incr(ctx, s.seqKey(activity.OwnerID)).Result()
	if err != nil {
		return fmt.Errorf("redis incr activity seq failed: %w", err)
	}
	stored := *activity
	stored.Timestamp = activity.Timestamp.UTC()
	payload, err := json.Marshal(&stored)
	if err != nil {
		return fmt.Errorf("marshal activity failed: %w", err)
	}

	// Members sharing a score sort lexically, so the zero-padded seq prefix
	// orders same-millisecond activities by insertion.
	member := fmt.Sprintf("%019d %s", seq, payload)
	key := s.activitiesKey(activity.OwnerID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{
			Score:  float64(stored.Timestamp.UnixMilli()),
			Member: member,
		})
		pipe.ZRemRangeByRank(ctx, key, 0, -int64(s.activityCap)-1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis append activity failed: %w", err)
	}

	s.publish(ctx, activitiesTopic(activity.OwnerID))
	return nil
}

func (s *RedisStore) ListActivities(ctx context.Context, ownerID string, limit int) ([]*model.Activity, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	members, err := s.client.ZRevRange(ctx, s.activitiesKey(ownerID), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis list activities failed: %w", err)
	}

	activities := make([]*model.Activity, 0, len(members))
	for _, member := range members {
		_, payload, ok := strings.Cut(member, " ")
		if !ok {
			return nil, fmt.Errorf("malformed activity entry %q", member)
		}
		var a model.Activity
		if err := json.Unmarshal([]byte(payload), &a); err != nil {
			return nil, fmt.Errorf("unmarshal activity failed: %w", err)
		}
		activities = append(activities, &a)
	}
	return activities, nil
}

func (s *RedisStore) WatchDocuments(ctx context.Context, ownerID string, fn func([]*model.Document)) (docchat.Unsubscribe, error) {
	topic := documentsTopic(ownerID)
	sub, cancel, err := s.subscribe(ctx, topic)
	if err != nil {
		return nil, err
	}
	return watch(ctx, sub, cancel, func(ctx context.Context) ([]*model.Document, error) {
		return s.ListDocuments(ctx, ownerID)
	}, fn, s.logger)
}

func (s *RedisStore) WatchActivities(ctx context.Context, ownerID string, limit int, fn func([]*model.Activity)) (docchat.Unsubscribe, error) {
	topic := activitiesTopic(ownerID)
	sub, cancel, err := s.subscribe(ctx, topic)
	if err != nil {
		return nil, err
	}
	return watch(ctx, sub, cancel, func(ctx context.Context) ([]*model.Activity, error) {
		return s.ListActivities(ctx, ownerID, limit)
	}, fn, s.logger)
}

// subscribe registers a local subscription and bridges the topic's Redis
// channel into it. The bridge ends when the subscription stops.
func (s *RedisStore) subscribe(ctx context.Context, topic string) (*subscription, func(), error) {
	pubsub := s.client.Subscribe(ctx, s.channel(topic))
	// Wait for the subscription to be confirmed so no publish is missed
	// between the initial snapshot and the first message.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, fmt.Errorf("redis subscribe %s failed: %w", topic, err)
	}

	sub, cancel := s.feed.subscribe(topic)
	messages := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-sub.done:
				return
			case _, ok := <-messages:
				if !ok {
					return
				}
				sub.notify()
			}
		}
	}()
	return sub, cancel, nil
}

func (s *RedisStore) publish(ctx context.Context, topic string) {
	if err := s.client.Publish(ctx, s.channel(topic), strconv.FormatInt(time.Now().UnixMilli(), 10)).Err(); err != nil {
		s.logger.Warn("redis publish failed", "topic", topic, "error", err)
	}
}

// Close ends all live queries and closes the client.
func (s *RedisStore) Close() error {
	s.feed.close()
	return s.client.Close()
}

func (s *RedisStore) documentsKey(ownerID string) string {
	return fmt.Sprintf("%s:docs:{%s}", redisKeyPrefix, ownerID)
}

func (s *RedisStore) activitiesKey(ownerID string) string {
	return fmt.Sprintf("%s:activities:{%s}", redisKeyPrefix, ownerID)
}

func (s *RedisStore) seqKey(ownerID string) string {
	return fmt.Sprintf("%s:seq:{%s}", redisKeyPrefix, ownerID)
}

func (s *RedisStore) channel(topic string) string {
	return redisKeyPrefix + ":" + topic
}
