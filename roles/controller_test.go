package roles

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"flowboost/ledger"
	"flowboost/tier"
)

var errPlatform = errors.New("platform said no")

type memStore struct {
	mu      sync.Mutex
	records map[string]ledger.Record
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]ledger.Record)}
}

func (s *memStore) Put(record ledger.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[record.OwnerID] = record.Clone()
	return nil
}

func (s *memStore) Delete(ownerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, ownerID)
	return nil
}

func (s *memStore) ListAll() ([]ledger.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := make([]ledger.Record, 0, len(s.records))
	for _, record := range s.records {
		records = append(records, record.Clone())
	}
	return records, nil
}

type fakeRegistry struct {
	mu         sync.Mutex
	calls      []string
	roleSeq    int
	failCreate bool
	failGrant  bool
	failRevoke bool
	failDelete bool
	grantDelay time.Duration
}

func (r *fakeRegistry) record(call string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, call)
}

func (r *fakeRegistry) callsWithPrefix(prefix string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []string
	for _, call := range r.calls {
		if strings.HasPrefix(call, prefix) {
			matched = append(matched, call)
		}
	}
	return matched
}

func (r *fakeRegistry) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func (r *fakeRegistry) CreateRole(
	_ context.Context, ownerID, name string, color int,
) (string, error) {
	if r.failCreate {
		return "", errPlatform
	}
	r.mu.Lock()
	r.roleSeq++
	roleID := fmt.Sprintf("role-%v", r.roleSeq)
	r.mu.Unlock()
	r.record("create:" + name)
	return roleID, nil
}

func (r *fakeRegistry) RenameRole(_ context.Context, roleID, name string) error {
	r.record("rename:" + name)
	return nil
}

func (r *fakeRegistry) RecolorRole(_ context.Context, roleID string, color int) error {
	r.record(fmt.Sprintf("recolor:%06x", color))
	return nil
}

func (r *fakeRegistry) SetRoleIcon(_ context.Context, roleID, icon string) error {
	r.record("icon:" + icon)
	return nil
}

func (r *fakeRegistry) DeleteRole(_ context.Context, roleID string) error {
	if r.failDelete {
		return errPlatform
	}
	r.record("delete:" + roleID)
	return nil
}

func (r *fakeRegistry) GrantRole(_ context.Context, roleID, userID string) error {
	if r.grantDelay > 0 {
		time.Sleep(r.grantDelay)
	}
	if r.failGrant {
		return errPlatform
	}
	r.record("grant:" + userID)
	return nil
}

func (r *fakeRegistry) RevokeRole(_ context.Context, roleID, userID string) error {
	if r.failRevoke {
		return errPlatform
	}
	r.record("revoke:" + userID)
	return nil
}

func newTestController(t *testing.T, seed ...ledger.Record) (*Controller, *fakeRegistry, *ledger.Service) {
	t.Helper()

	store := newMemStore()
	for _, record := range seed {
		require.NoError(t, store.Put(record))
	}

	service, err := ledger.New(store, zap.NewNop())
	require.NoError(t, err)

	registry := &fakeRegistry{}
	controller := New(service, registry, tier.DefaultPolicy(), zap.NewNop())

	return controller, registry, service
}

func ctx() context.Context {
	return context.Background()
}

func TestCreate(t *testing.T) {
	t.Run("creates record with empty gift list", func(t *testing.T) {
		controller, registry, service := newTestController(t)

		require.NoError(t, controller.Create(ctx(), "alice", "Radiant", "#ff7700", 2))

		record, ok := service.Read("alice")
		require.True(t, ok)
		assert.Equal(t, "role-1", record.RoleID)
		assert.Empty(t, record.GiftedTo)
		assert.Equal(t, 2, record.Boosts)
		assert.Equal(t, []string{"create:Radiant"}, registry.calls)
	})

	t.Run("already owns makes zero platform calls", func(t *testing.T) {
		controller, registry, _ := newTestController(t, ledger.Record{
			OwnerID: "alice", RoleID: "role-9", Boosts: 1,
		})

		err := controller.Create(ctx(), "alice", "Radiant", "", 1)
		assert.ErrorIs(t, err, ErrAlreadyOwns)
		assert.Zero(t, registry.callCount())
	})

	t.Run("empty name", func(t *testing.T) {
		controller, registry, _ := newTestController(t)

		err := controller.Create(ctx(), "alice", "   ", "", 1)
		assert.ErrorIs(t, err, ErrInvalidName)
		assert.Zero(t, registry.callCount())
	})

	t.Run("malformed color", func(t *testing.T) {
		controller, registry, _ := newTestController(t)

		err := controller.Create(ctx(), "alice", "Radiant", "not-a-color", 1)
		assert.ErrorIs(t, err, ErrInvalidColor)
		assert.Zero(t, registry.callCount())
	})

	t.Run("platform failure leaves no record", func(t *testing.T) {
		controller, registry, service := newTestController(t)
		registry.failCreate = true

		err := controller.Create(ctx(), "alice", "Radiant", "", 1)
		require.Error(t, err)
		assert.False(t, IsUserError(err))

		_, ok := service.Read("alice")
		assert.False(t, ok)
	})
}

func TestGiftScenario(t *testing.T) {
	// Basic tier owner (quota 3), working through the full quota.
	controller, _, service := newTestController(t, ledger.Record{
		OwnerID: "owner", RoleID: "role-1", Boosts: 1,
	})

	require.NoError(t, controller.Gift(ctx(), "owner", "a"))

	record, _ := service.Read("owner")
	assert.Equal(t, []string{"a"}, record.GiftedTo)

	assert.ErrorIs(t, controller.Gift(ctx(), "owner", "a"), ErrAlreadyGifted)

	require.NoError(t, controller.Gift(ctx(), "owner", "b"))
	require.NoError(t, controller.Gift(ctx(), "owner", "c"))

	record, _ = service.Read("owner")
	assert.Equal(t, []string{"a", "b", "c"}, record.GiftedTo)

	assert.ErrorIs(t, controller.Gift(ctx(), "owner", "d"), ErrQuotaExceeded)

	record, _ = service.Read("owner")
	assert.Equal(t, []string{"a", "b", "c"}, record.GiftedTo, "failed gift must not change the list")
}

func TestGiftValidation(t *testing.T) {
	t.Run("no role owned", func(t *testing.T) {
		controller, _, _ := newTestController(t)
		assert.ErrorIs(t, controller.Gift(ctx(), "owner", "a"), ErrNoRoleOwned)
	})

	t.Run("self gift", func(t *testing.T) {
		controller, _, _ := newTestController(t, ledger.Record{
			OwnerID: "owner", RoleID: "role-1", Boosts: 1,
		})
		assert.ErrorIs(t, controller.Gift(ctx(), "owner", "owner"), ErrSelfGift)
	})

	t.Run("none tier has zero quota", func(t *testing.T) {
		controller, _, _ := newTestController(t, ledger.Record{
			OwnerID: "owner", RoleID: "role-1", Boosts: 0,
		})
		assert.ErrorIs(t, controller.Gift(ctx(), "owner", "a"), ErrQuotaExceeded)
	})

	t.Run("platform failure leaves ledger unchanged", func(t *testing.T) {
		controller, registry, service := newTestController(t, ledger.Record{
			OwnerID: "owner", RoleID: "role-1", Boosts: 1,
		})
		registry.failGrant = true

		err := controller.Gift(ctx(), "owner", "a")
		require.Error(t, err)
		assert.False(t, IsUserError(err))

		record, _ := service.Read("owner")
		assert.Empty(t, record.GiftedTo)
	})
}

func TestGiftRevokeRoundTrip(t *testing.T) {
	controller, _, service := newTestController(t, ledger.Record{
		OwnerID: "owner", RoleID: "role-1", GiftedTo: []string{"a"}, Boosts: 1,
	})

	require.NoError(t, controller.Gift(ctx(), "owner", "b"))
	require.NoError(t, controller.Revoke(ctx(), "owner", "b"))

	record, _ := service.Read("owner")
	assert.Equal(t, []string{"a"}, record.GiftedTo)
}

func TestRevoke(t *testing.T) {
	t.Run("not gifted", func(t *testing.T) {
		controller, _, _ := newTestController(t, ledger.Record{
			OwnerID: "owner", RoleID: "role-1", Boosts: 1,
		})
		assert.ErrorIs(t, controller.Revoke(ctx(), "owner", "b"), ErrNotGifted)
	})

	t.Run("no role owned", func(t *testing.T) {
		controller, _, _ := newTestController(t)
		assert.ErrorIs(t, controller.Revoke(ctx(), "owner", "b"), ErrNoRoleOwned)
	})

	t.Run("platform failure keeps recipient", func(t *testing.T) {
		controller, registry, service := newTestController(t, ledger.Record{
			OwnerID: "owner", RoleID: "role-1", GiftedTo: []string{"a"}, Boosts: 1,
		})
		registry.failRevoke = true

		require.Error(t, controller.Revoke(ctx(), "owner", "a"))

		record, _ := service.Read("owner")
		assert.Equal(t, []string{"a"}, record.GiftedTo)
	})
}

func TestAttributeMutations(t *testing.T) {
	seed := ledger.Record{OwnerID: "owner", RoleID: "role-1", Boosts: 1}

	t.Run("rename", func(t *testing.T) {
		controller, registry, _ := newTestController(t, seed)
		require.NoError(t, controller.Rename(ctx(), "owner", "Shiny"))
		assert.Equal(t, []string{"rename:Shiny"}, registry.calls)
	})

	t.Run("rename requires a role", func(t *testing.T) {
		controller, _, _ := newTestController(t)
		assert.ErrorIs(t, controller.Rename(ctx(), "owner", "Shiny"), ErrNoRoleOwned)
	})

	t.Run("recolor accepts bare and prefixed hex", func(t *testing.T) {
		controller, registry, _ := newTestController(t, seed)
		require.NoError(t, controller.Recolor(ctx(), "owner", "#ff7700"))
		require.NoError(t, controller.Recolor(ctx(), "owner", "00ff00"))
		assert.Equal(t, []string{"recolor:ff7700", "recolor:00ff00"}, registry.calls)
	})

	t.Run("recolor rejects junk", func(t *testing.T) {
		controller, _, _ := newTestController(t, seed)
		assert.ErrorIs(t, controller.Recolor(ctx(), "owner", "#ff77"), ErrInvalidColor)
		assert.ErrorIs(t, controller.Recolor(ctx(), "owner", "zzzzzz"), ErrInvalidColor)
	})

	t.Run("icon accepts urls and emoji", func(t *testing.T) {
		controller, _, _ := newTestController(t, seed)
		require.NoError(t, controller.SetIcon(ctx(), "owner", "https://example.com/icon.png"))
		require.NoError(t, controller.SetIcon(ctx(), "owner", "🔥"))
	})

	t.Run("icon rejects junk", func(t *testing.T) {
		controller, _, _ := newTestController(t, seed)
		assert.ErrorIs(t, controller.SetIcon(ctx(), "owner", ""), ErrInvalidIcon)
		assert.ErrorIs(t, controller.SetIcon(ctx(), "owner", "ftp://example.com/x"), ErrInvalidIcon)
	})
}

func TestDelete(t *testing.T) {
	t.Run("erases the record", func(t *testing.T) {
		controller, registry, service := newTestController(t, ledger.Record{
			OwnerID: "owner", RoleID: "role-1", GiftedTo: []string{"a", "b"}, Boosts: 1,
		})

		require.NoError(t, controller.Delete(ctx(), "owner"))

		_, ok := service.Read("owner")
		assert.False(t, ok)
		assert.Equal(t, []string{"delete:role-1"}, registry.calls)
	})

	t.Run("no role owned", func(t *testing.T) {
		controller, _, _ := newTestController(t)
		assert.ErrorIs(t, controller.Delete(ctx(), "owner"), ErrNoRoleOwned)
	})
}

func TestOnTierChange(t *testing.T) {
	gifts := func(n int) []string {
		out := make([]string, n)
		for i := range out {
			out[i] = fmt.Sprintf("g%v", i+1)
		}
		return out
	}

	t.Run("downgrade trims most recent gifts first", func(t *testing.T) {
		controller, registry, service := newTestController(t, ledger.Record{
			OwnerID: "owner", RoleID: "role-1", GiftedTo: gifts(10), Boosts: 2,
		})

		require.NoError(t, controller.OnTierChange(ctx(), "owner", 1))

		record, _ := service.Read("owner")
		assert.Equal(t, []string{"g1", "g2", "g3"}, record.GiftedTo)
		assert.Equal(t, 1, record.Boosts)

		revokes := registry.callsWithPrefix("revoke:")
		assert.Equal(t, []string{
			"revoke:g10", "revoke:g9", "revoke:g8", "revoke:g7",
			"revoke:g6", "revoke:g5", "revoke:g4",
		}, revokes)
	})

	t.Run("boost loss reclaims the role", func(t *testing.T) {
		controller, registry, service := newTestController(t, ledger.Record{
			OwnerID: "owner", RoleID: "role-1", GiftedTo: gifts(3), Boosts: 1,
		})

		require.NoError(t, controller.OnTierChange(ctx(), "owner", 0))

		_, ok := service.Read("owner")
		assert.False(t, ok)
		assert.Equal(t, []string{"delete:role-1"}, registry.calls)
	})

	t.Run("upgrade keeps gifts", func(t *testing.T) {
		controller, registry, service := newTestController(t, ledger.Record{
			OwnerID: "owner", RoleID: "role-1", GiftedTo: gifts(3), Boosts: 1,
		})

		require.NoError(t, controller.OnTierChange(ctx(), "owner", 2))

		record, _ := service.Read("owner")
		assert.Equal(t, gifts(3), record.GiftedTo)
		assert.Equal(t, 2, record.Boosts)
		assert.Empty(t, registry.callsWithPrefix("revoke:"))
	})

	t.Run("no record is a no-op", func(t *testing.T) {
		controller, registry, _ := newTestController(t)

		require.NoError(t, controller.OnTierChange(ctx(), "owner", 0))
		assert.Zero(t, registry.callCount())
	})

	t.Run("trim failure keeps old boost count for retry", func(t *testing.T) {
		controller, registry, service := newTestController(t, ledger.Record{
			OwnerID: "owner", RoleID: "role-1", GiftedTo: gifts(10), Boosts: 2,
		})
		registry.failRevoke = true

		require.Error(t, controller.OnTierChange(ctx(), "owner", 1))

		record, _ := service.Read("owner")
		assert.Equal(t, gifts(10), record.GiftedTo)
		assert.Equal(t, 2, record.Boosts, "stale boosts mark the downgrade as unfinished")
	})
}

func TestConcurrentGiftsRespectQuota(t *testing.T) {
	controller, registry, service := newTestController(t, ledger.Record{
		OwnerID: "owner", RoleID: "role-1", GiftedTo: []string{"a", "b"}, Boosts: 1,
	})
	registry.grantDelay = 5 * time.Millisecond

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for _, recipient := range []string{"x", "y"} {
		wg.Add(1)
		go func(recipient string) {
			defer wg.Done()
			results <- controller.Gift(ctx(), "owner", recipient)
		}(recipient)
	}
	wg.Wait()
	close(results)

	var successes, quotaFailures int
	for err := range results {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrQuotaExceeded):
			quotaFailures++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, quotaFailures)

	record, _ := service.Read("owner")
	assert.Len(t, record.GiftedTo, 3, "quota must never be exceeded")
}

func TestLookup(t *testing.T) {
	controller, _, _ := newTestController(t, ledger.Record{
		OwnerID: "owner", RoleID: "role-1", GiftedTo: []string{"a"}, Boosts: 2,
	})

	info, ok := controller.Lookup("owner")
	require.True(t, ok)
	assert.Equal(t, tier.Premium, info.Tier)
	assert.Equal(t, 10, info.Quota)
	assert.Equal(t, 9, info.Remaining)

	_, ok = controller.Lookup("nobody")
	assert.False(t, ok)
}
