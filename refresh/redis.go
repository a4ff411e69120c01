package refresh

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	rotateStatusNotFound int64 = 0
	rotateStatusRotated  int64 = 1
	rotateStatusRevoked  int64 = 2
	rotateStatusExpired  int64 = 3
)

// revokeOwnerLua marks every live record in an owner's index as revoked and
// prunes ids whose record already expired out of Redis.
const revokeOwnerLua = `
local function revoke_owner(owner_key, rec_prefix)
  local revoked = 0
  local ids = redis.call("SMEMBERS", owner_key)
  for _, id in ipairs(ids) do
    local rec = rec_prefix .. id
    local state = redis.call("HGET", rec, "revoked")
    if not state then
      redis.call("SREM", owner_key, id)
    elseif state == "0" then
      redis.call("HSET", rec, "revoked", "1")
      revoked = revoked + 1
    end
  end
  return revoked
end
`

const createScript = `
redis.call("HSET", KEYS[1], "owner", ARGV[1], "iat", ARGV[2], "exp", ARGV[3], "revoked", "0", "replaced_by", "")
redis.call("PEXPIRE", KEYS[1], ARGV[4])
redis.call("SADD", KEYS[2], ARGV[5])
redis.call("PEXPIRE", KEYS[2], ARGV[4])
return 1
`

// rotateScript is the compare-and-swap. KEYS[1] is the presented record,
// KEYS[2] its successor.
const rotateScript = revokeOwnerLua + `
local fields = redis.call("HMGET", KEYS[1], "owner", "exp", "revoked", "replaced_by")
local owner = fields[1]
if not owner then
  return {0}
end
local owner_key = ARGV[2] .. owner

if fields[3] ~= "0" then
  local rotated = 0
  if fields[4] and fields[4] ~= "" then
    rotated = 1
  end
  return {2, owner, revoke_owner(owner_key, ARGV[1]), rotated}
end

local now = tonumber(ARGV[3])
if tonumber(fields[2]) <= now then
  return {3, owner}
end

redis.call("HSET", KEYS[1], "revoked", "1", "replaced_by", ARGV[4])
redis.call("HSET", KEYS[2], "owner", owner, "iat", ARGV[3], "exp", ARGV[5], "revoked", "0", "replaced_by", "")
redis.call("PEXPIRE", KEYS[2], ARGV[6])
redis.call("SADD", owner_key, ARGV[4])
redis.call("PEXPIRE", owner_key, ARGV[6])
return {1, owner}
`

const revokeScript = `
if redis.call("EXISTS", KEYS[1]) == 0 then
  return 0
end
redis.call("HSET", KEYS[1], "revoked", "1")
return 1
`

const revokeAllScript = revokeOwnerLua + `
return revoke_owner(KEYS[1], ARGV[1])
`

var (
	createLua    = redis.NewScript(createScript)
	rotateLua    = redis.NewScript(rotateScript)
	revokeLua    = redis.NewScript(revokeScript)
	revokeAllLua = redis.NewScript(revokeAllScript)
)

var _ Store = (*RedisStore)(nil)

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	// Prefix namespaces every key the store writes. Defaults to "ca".
	Prefix string
	TTL    time.Duration
	Now    func() time.Time
}

// RedisStore keeps records as hashes under <prefix>:rt:<id> with a per-owner
// index set under <prefix>:ro:<owner>. Scripts touch the owner index by name,
// so the store requires a single-shard deployment (standalone or sentinel).
type RedisStore struct {
	redis     redis.UniversalClient
	ttl       time.Duration
	now       func() time.Time
	recPrefix string
	ownPrefix string
}

// NewRedisStore returns a RedisStore using client.
func NewRedisStore(client redis.UniversalClient, cfg RedisConfig) *RedisStore {
	if cfg.Prefix == "" {
		cfg.Prefix = "ca"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &RedisStore{
		redis:     client,
		ttl:       cfg.TTL,
		now:       cfg.Now,
		recPrefix: cfg.Prefix + ":rt:",
		ownPrefix: cfg.Prefix + ":ro:",
	}
}

// Create issues a new token for ownerID.
func (s *RedisStore) Create(ctx context.Context, ownerID string) (*Issued, error) {
	if ownerID == "" {
		return nil, errors.New("refresh owner is required")
	}
	token, id, err := newToken()
	if err != nil {
		return nil, err
	}

	now := s.now()
	exp := now.Add(s.ttl)
	err = createLua.Run(ctx, s.redis,
		[]string{s.recPrefix + id, s.ownPrefix + ownerID},
		ownerID, millis(now), millis(exp), s.ttl.Milliseconds(), id,
	).Err()
	if err != nil {
		return nil, unavailable(err)
	}

	return &Issued{
		Token:   token,
		OwnerID: ownerID,
		Record:  Record{ID: id, OwnerID: ownerID, IssuedAt: now, ExpiresAt: exp},
	}, nil
}

// Rotate swaps token for a new one in a single script execution.
func (s *RedisStore) Rotate(ctx context.Context, token string) (*Issued, error) {
	id, err := recordID(token)
	if err != nil {
		return nil, err
	}
	next, nextID, err := newToken()
	if err != nil {
		return nil, err
	}

	now := s.now()
	exp := now.Add(s.ttl)
	res, err := rotateLua.Run(ctx, s.redis,
		[]string{s.recPrefix + id, s.recPrefix + nextID},
		s.recPrefix, s.ownPrefix, millis(now), nextID, millis(exp), s.ttl.Milliseconds(),
	).Slice()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(res) == 0 {
		return nil, unavailable(errors.New("empty rotate reply"))
	}

	status, _ := res[0].(int64)
	switch status {
	case rotateStatusNotFound:
		return nil, ErrNotFound
	case rotateStatusExpired:
		return nil, ErrExpired
	case rotateStatusRevoked:
		replay := &ReplayError{}
		if len(res) >= 4 {
			replay.OwnerID, _ = res[1].(string)
			n, _ := res[2].(int64)
			replay.Revoked = int(n)
			rotated, _ := res[3].(int64)
			replay.Rotated = rotated == 1
		}
		return nil, replay
	case rotateStatusRotated:
		owner, _ := res[1].(string)
		return &Issued{
			Token:   next,
			OwnerID: owner,
			Record:  Record{ID: nextID, OwnerID: owner, IssuedAt: now, ExpiresAt: exp},
		}, nil
	default:
		return nil, unavailable(fmt.Errorf("unexpected rotate status %d", status))
	}
}

// Revoke marks the record for token as revoked. Unknown tokens are a no-op.
func (s *RedisStore) Revoke(ctx context.Context, token string) error {
	id, err := recordID(token)
	if err != nil {
		return nil
	}
	if err := revokeLua.Run(ctx, s.redis, []string{s.recPrefix + id}).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// RevokeAll revokes every live record of ownerID and returns how many changed.
func (s *RedisStore) RevokeAll(ctx context.Context, ownerID string) (int, error) {
	n, err := revokeAllLua.Run(ctx, s.redis, []string{s.ownPrefix + ownerID}, s.recPrefix).Int64()
	if err != nil {
		return 0, unavailable(err)
	}
	return int(n), nil
}

// Lookup returns the stored record for token.
func (s *RedisStore) Lookup(ctx context.Context, token string) (*Record, error) {
	id, err := recordID(token)
	if err != nil {
		return nil, err
	}
	return s.lookupID(ctx, id)
}

func (s *RedisStore) lookupID(ctx context.Context, id string) (*Record, error) {
	fields, err := s.redis.HGetAll(ctx, s.recPrefix+id).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	if len(fields) == 0 {
		return nil, ErrNotFound
	}
	iat, err1 := strconv.ParseInt(fields["iat"], 10, 64)
	exp, err2 := strconv.ParseInt(fields["exp"], 10, 64)
	if err1 != nil || err2 != nil {
		return nil, unavailable(errors.New("corrupt refresh record"))
	}
	return &Record{
		ID:         id,
		OwnerID:    fields["owner"],
		IssuedAt:   time.UnixMilli(iat),
		ExpiresAt:  time.UnixMilli(exp),
		Revoked:    fields["revoked"] != "0",
		ReplacedBy: fields["replaced_by"],
	}, nil
}

// Ping checks that Redis answers.
func (s *RedisStore) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func millis(t time.Time) string {
	return strconv.FormatInt(t.UnixMilli(), 10)
}
