package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/radieske/bet-settlement/internal/settlement"
)

// DefaultKey é a chave compartilhada por todas as réplicas do settlement-worker
const DefaultKey = "settlement:cycle:lock"

// só apaga se o token ainda for o nosso (lock pode ter expirado e sido pego por outro)
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// renova o TTL só enquanto o token for o nosso
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

// Client é o recorte do redis.Client usado pelo lock
type Client interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	redis.Scripter
}

// RedisLock impede dois ciclos ao mesmo tempo entre processos.
// Enquanto o dono segura o lock, o TTL é renovado a cada ttl/3; se o processo
// morrer sem liberar, o lock expira e o próximo processo assume.
type RedisLock struct {
	rdb Client
	key string
	ttl time.Duration
}

func NewRedisLock(rdb Client, key string, ttl time.Duration) *RedisLock {
	if key == "" {
		key = DefaultKey
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &RedisLock{rdb: rdb, key: key, ttl: ttl}
}

// Acquire tenta SET NX; lock ocupado devolve settlement.ErrLockHeld
func (l *RedisLock) Acquire(ctx context.Context) (func(context.Context) error, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis setnx %s: %w", l.key, err)
	}
	if !ok {
		return nil, settlement.ErrLockHeld
	}

	renewCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	done := make(chan struct{})
	go l.keepAlive(renewCtx, token, done)

	var once sync.Once
	return func(ctx context.Context) error {
		var err error
		once.Do(func() {
			stop()
			<-done
			if rerr := releaseScript.Run(ctx, l.rdb, []string{l.key}, token).Err(); rerr != nil {
				err = fmt.Errorf("redis release %s: %w", l.key, rerr)
			}
		})
		return err
	}, nil
}

// keepAlive estende o TTL até o release; para se o lock deixou de ser nosso
func (l *RedisLock) keepAlive(ctx context.Context, token string, done chan<- struct{}) {
	defer close(done)
	t := time.NewTicker(l.ttl / 3)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := renewScript.Run(ctx, l.rdb, []string{l.key}, token, l.ttl.Milliseconds()).Int()
			if err == nil && n == 0 {
				return
			}
			// erro de rede: tenta de novo no próximo tick, o TTL ainda cobre
		}
	}
}
