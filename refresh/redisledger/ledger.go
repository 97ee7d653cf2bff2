// Package redisledger stores refresh-token records in Redis.
//
// Each record is one hash at <prefix>:<id> with fields sub, sid, iat, exp
// and used (unix milliseconds, "0" while unconsumed). Consumption runs as a
// single Lua script, so the check-and-mark is atomic inside Redis. Keys
// expire Retention after the token does; no sweeper is needed.
package redisledger

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/MrEthical07/sessionkit/refresh"
)

const (
	statusNotFound int64 = 0
	statusExpired  int64 = 1
	statusRedeemed int64 = 2
	statusReplayed int64 = 3
)

const putScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1], "sub", ARGV[1], "sid", ARGV[2], "iat", ARGV[3], "exp", ARGV[4], "used", "0")
redis.call("PEXPIREAT", KEYS[1], ARGV[5])
return 1
`

const consumeScript = `
local fields = redis.call("HMGET", KEYS[1], "sub", "sid", "iat", "exp", "used")
if not fields[1] then
  return {0}
end
if fields[5] ~= "0" then
  return {3}
end
local now_ms = tonumber(ARGV[1])
if tonumber(fields[4]) <= now_ms then
  return {1}
end
redis.call("HSET", KEYS[1], "used", ARGV[1])
return {2, fields[1], fields[2], fields[3], fields[4]}
`

var (
	putLua     = redis.NewScript(putScript)
	consumeLua = redis.NewScript(consumeScript)
)

// DefaultRetention keeps consumed and expired records long enough for
// replays to be reported as such.
const DefaultRetention = 24 * time.Hour

// Ledger implements refresh.Ledger on Redis.
type Ledger struct {
	redis     redis.UniversalClient
	prefix    string
	retention time.Duration
}

// New returns a Ledger using keys under prefix. A zero retention uses
// DefaultRetention.
func New(client redis.UniversalClient, prefix string, retention time.Duration) *Ledger {
	if prefix == "" {
		prefix = "srt"
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Ledger{redis: client, prefix: prefix, retention: retention}
}

func (l *Ledger) key(id string) string {
	return l.prefix + ":" + id
}

// Put stores rec. It fails with refresh.ErrDuplicate if the id exists.
func (l *Ledger) Put(ctx context.Context, rec refresh.Record) error {
	expireAt := rec.ExpiresAt.Add(l.retention).UnixMilli()

	created, err := putLua.Run(ctx, l.redis, []string{l.key(rec.ID)},
		strconv.FormatInt(rec.Subject, 10),
		rec.SessionID,
		rec.IssuedAt.UnixMilli(),
		rec.ExpiresAt.UnixMilli(),
		expireAt,
	).Int64()
	if err != nil {
		return unavailable("LEDGER_PUT_FAILED", rec.ID, err)
	}
	if created == 0 {
		return refresh.ErrDuplicate
	}
	return nil
}

// Get reads the record for id.
func (l *Ledger) Get(ctx context.Context, id string) (*refresh.Record, error) {
	values, err := l.redis.HMGet(ctx, l.key(id), "sub", "sid", "iat", "exp", "used").Result()
	if err != nil {
		return nil, unavailable("LEDGER_GET_FAILED", id, err)
	}
	if len(values) != 5 || values[0] == nil {
		return nil, refresh.ErrNotFound
	}

	fields := make([]string, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			return nil, corrupt(id, fmt.Errorf("field %d has type %T", i, v))
		}
		fields[i] = s
	}

	rec, err := parseRecord(id, fields[0], fields[1], fields[2], fields[3])
	if err != nil {
		return nil, corrupt(id, err)
	}
	used, err := strconv.ParseInt(fields[4], 10, 64)
	if err != nil {
		return nil, corrupt(id, err)
	}
	if used != 0 {
		rec.ConsumedAt = time.UnixMilli(used).UTC()
	}
	return rec, nil
}

// MarkConsumed atomically redeems id at now.
func (l *Ledger) MarkConsumed(ctx context.Context, id string, now time.Time) (*refresh.Record, error) {
	nowMS := now.UnixMilli()

	res, err := consumeLua.Run(ctx, l.redis, []string{l.key(id)}, nowMS).Slice()
	if err != nil {
		return nil, unavailable("LEDGER_CONSUME_FAILED", id, err)
	}
	if len(res) == 0 {
		return nil, corrupt(id, errors.New("empty script reply"))
	}
	status, ok := res[0].(int64)
	if !ok {
		return nil, corrupt(id, fmt.Errorf("status has type %T", res[0]))
	}

	switch status {
	case statusNotFound:
		return nil, refresh.ErrNotFound
	case statusExpired:
		return nil, refresh.ErrExpired
	case statusReplayed:
		return nil, refresh.ErrAlreadyConsumed
	case statusRedeemed:
	default:
		return nil, corrupt(id, fmt.Errorf("unknown status %d", status))
	}

	if len(res) != 5 {
		return nil, corrupt(id, fmt.Errorf("script reply has %d elements", len(res)))
	}
	fields := make([]string, 4)
	for i := range fields {
		s, ok := res[i+1].(string)
		if !ok {
			return nil, corrupt(id, fmt.Errorf("field %d has type %T", i, res[i+1]))
		}
		fields[i] = s
	}

	rec, err := parseRecord(id, fields[0], fields[1], fields[2], fields[3])
	if err != nil {
		return nil, corrupt(id, err)
	}
	rec.ConsumedAt = time.UnixMilli(nowMS).UTC()
	return rec, nil
}

func parseRecord(id, sub, sid, iat, exp string) (*refresh.Record, error) {
	subject, err := strconv.ParseInt(sub, 10, 64)
	if err != nil {
		return nil, err
	}
	issued, err := strconv.ParseInt(iat, 10, 64)
	if err != nil {
		return nil, err
	}
	expires, err := strconv.ParseInt(exp, 10, 64)
	if err != nil {
		return nil, err
	}
	return &refresh.Record{
		ID:        id,
		Subject:   subject,
		SessionID: sid,
		IssuedAt:  time.UnixMilli(issued).UTC(),
		ExpiresAt: time.UnixMilli(expires).UTC(),
	}, nil
}

func unavailable(code, id string, err error) error {
	return oops.Code(code).
		With("ledger", "redis").
		With("token_id", id).
		Wrap(fmt.Errorf("%w: %v", refresh.ErrUnavailable, err))
}

func corrupt(id string, err error) error {
	return oops.Code("LEDGER_RECORD_CORRUPT").
		With("ledger", "redis").
		With("token_id", id).
		Wrap(fmt.Errorf("%w: %v", refresh.ErrUnavailable, err))
}
