package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fracreserve/banksim/internal/directory"
	"github.com/fracreserve/banksim/internal/domain/agent"
	"github.com/fracreserve/banksim/internal/domain/ident"
	"github.com/fracreserve/banksim/internal/engine"
	"github.com/fracreserve/banksim/internal/events"
	"github.com/fracreserve/banksim/internal/platform/logger"
	"github.com/fracreserve/banksim/internal/platform/metrics"
)

// fakeRedis is an in-memory RedisClient.
type fakeRedis struct {
	mu     sync.Mutex
	kv     map[string]string
	ttl    map[string]time.Duration
	hashes map[string]map[string]string
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		kv:     map[string]string{},
		ttl:    map[string]time.Duration{},
		hashes: map[string]map[string]string{},
	}
}

func (f *fakeRedis) Get(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.kv[key]
	if !ok {
		return "", ErrMiss
	}
	return v, nil
}

func (f *fakeRedis) Set(_ context.Context, key string, value interface{}, exp time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch v := value.(type) {
	case []byte:
		f.kv[key] = string(v)
	case string:
		f.kv[key] = v
	}
	f.ttl[key] = exp
	return nil
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.kv, k)
		delete(f.hashes, k)
	}
	return nil
}

func (f *fakeRedis) HGetAll(_ context.Context, key string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]string{}
	for k, v := range f.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (f *fakeRedis) HSet(_ context.Context, key string, values ...interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.hashes[key]
	if !ok {
		h = map[string]string{}
		f.hashes[key] = h
	}
	for i := 0; i+1 < len(values); i += 2 {
		h[values[i].(string)] = values[i+1].(string)
	}
	return nil
}

func (f *fakeRedis) HDel(_ context.Context, key string, fields ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, field := range fields {
		delete(f.hashes[key], field)
	}
	return nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestBankRoundTripAndKeys(t *testing.T) {
	rdb := newFakeRedis()
	c := NewAgentCache(rdb, 30*time.Second)
	ctx := context.Background()

	_, err := c.GetBank(ctx, 1)
	assert.ErrorIs(t, err, ErrMiss)

	view := agent.BankView{ID: 1, RegisteredID: 1, Name: "Bank1", Status: agent.StatusActive, Reserve: dec("10.5")}
	require.NoError(t, c.SetBank(ctx, view))

	assert.Contains(t, rdb.kv, "banksim:bank:1")
	assert.Equal(t, 30*time.Second, rdb.ttl["banksim:bank:1"])

	got, err := c.GetBank(ctx, 1)
	require.NoError(t, err)
	assert.True(t, got.Reserve.Equal(dec("10.5")))

	all, err := c.GetBanks(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Bank1", all[1].Name)

	require.NoError(t, c.DropBank(ctx, 1))
	all, err = c.GetBanks(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRefresherFollowsEngine(t *testing.T) {
	bus := events.NewBus()
	eng := engine.New(agent.NewDefaultFed(), directory.New(), engine.WithPublisher(bus))
	rdb := newFakeRedis()
	c := NewAgentCache(rdb, time.Minute)
	r := NewRefresher(c, eng, logger.NewNop(), metrics.New())

	feed, cancel := bus.Subscribe(64)
	defer cancel()

	bankID, err := eng.RegisterBank(agent.BankSpec{
		Mode: agent.BankModeBalances, Reserve: dec("100"), Deposit: dec("1000"), Equity: dec("50"),
	})
	require.NoError(t, err)
	hhID, err := eng.RegisterHousehold(agent.HouseholdSpec{Cash: decimal.NewNullDecimal(dec("500"))})
	require.NoError(t, err)
	_, err = eng.Deposit(dec("200"), hhID, bankID)
	require.NoError(t, err)

	ctx := context.Background()
	drain := func() {
		for {
			select {
			case ev := <-feed:
				r.Handle(ctx, ev)
			default:
				return
			}
		}
	}
	drain()

	b, err := c.GetBank(ctx, bankID)
	require.NoError(t, err)
	assert.True(t, b.Reserve.Equal(dec("300")))

	h, err := c.GetHousehold(ctx, hhID)
	require.NoError(t, err)
	assert.True(t, h.Cash.Equal(dec("300")))

	_, err = eng.HandleBankRun(bankID, dec("1"))
	require.NoError(t, err)
	drain()

	_, err = c.GetBank(ctx, bankID)
	assert.ErrorIs(t, err, ErrMiss, "failed bank is dropped")

	_, err = eng.ChangeReserveRatio(dec("0.2"))
	require.NoError(t, err)
	drain()
	fed, err := c.GetFed(ctx)
	require.NoError(t, err)
	assert.True(t, fed.ReserveRatio.Equal(dec("0.2")))
	assert.Equal(t, ident.Fed, fed.ID)
}

func TestRefresherLeavesFedForSingleAgentEvents(t *testing.T) {
	eng := engine.New(agent.NewDefaultFed(), directory.New())
	rdb := newFakeRedis()
	c := NewAgentCache(rdb, time.Minute)
	r := NewRefresher(c, eng, logger.NewNop(), metrics.New())
	ctx := context.Background()

	bankID, err := eng.RegisterBank(agent.BankSpec{
		Mode: agent.BankModeBalances, Reserve: dec("100"), Deposit: dec("100"), Equity: dec("100"),
	})
	require.NoError(t, err)

	for _, typ := range []events.EventType{
		events.EventTypeAgentRegistered,
		events.EventTypeBankRun,
		events.EventTypeBankruptcy,
	} {
		r.Handle(ctx, events.NewEvent(typ, bankID, 0, 0, nil))
	}
	assert.NotContains(t, rdb.kv, fedKey)
	_, err = c.GetBank(ctx, bankID)
	assert.NoError(t, err)

	r.Handle(ctx, events.NewEvent(events.EventTypeFedRepay, bankID, ident.Fed, 0, nil))
	assert.Contains(t, rdb.kv, fedKey)
}
