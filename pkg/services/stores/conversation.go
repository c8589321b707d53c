package stores

import (
	"context"
	"time"

	"github.com/cupogo/andvari/models/oid"

	"github.com/liut/kaiwa/pkg/models/convo"
)

const (
	historyLifetimeS = time.Second * 86400
	historyMaxLength = 24
)

// Conversation history of one chat id and level
type Conversation interface {
	GetID() string
	AddHistory(ctx context.Context, turns ...convo.Turn) error
	ListHistory(ctx context.Context) (convo.Turns, error)
	ClearHistory(ctx context.Context) error
}

func NewConversation(rc RedisClient, id any, lv convo.Level) Conversation {
	cid := oid.Cast(id)
	if cid.IsZero() {
		cid = oid.NewID(oid.OtEvent)
	}
	return &conversation{id: cid, lv: convo.ParseLevel(string(lv)), rc: rc}
}

type conversation struct {
	id oid.OID
	lv convo.Level
	rc RedisClient
}

func (s *conversation) GetID() string {
	return s.id.String()
}

func (s *conversation) AddHistory(ctx context.Context, turns ...convo.Turn) error {
	if len(turns) == 0 {
		return nil
	}
	key := s.getKey()
	values := make([]any, 0, len(turns))
	for i := range turns {
		values = append(values, &turns[i])
	}
	res := s.rc.RPush(ctx, key, values...)
	err := res.Err()
	if err == nil {
		count, _ := res.Result()
		if err = s.rc.Expire(ctx, key, historyLifetimeS).Err(); err != nil {
			return err
		}
		if count > historyMaxLength {
			logger().Infow("history length overflow", "count", count)
			err = s.rc.LTrim(ctx, key, -historyMaxLength, -1).Err()
		}
	}
	if err != nil {
		logger().Infow("add history fail", "key", key, "err", err)
	}
	return err
}

func (s *conversation) ListHistory(ctx context.Context) (data convo.Turns, err error) {
	key := s.getKey()
	ss := s.rc.LRange(ctx, key, 0, -1)
	err = ss.ScanSlice(&data)
	return
}

func (s *conversation) ClearHistory(ctx context.Context) error {
	return s.rc.Del(ctx, s.getKey()).Err()
}

func (s *conversation) getKey() string {
	return "kaiwa-convs-" + s.lv.String() + "-" + s.GetID()
}
