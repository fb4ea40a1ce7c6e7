package reliability

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStorePenaltyGrowthAndCeiling(t *testing.T) {
	store := NewStore(StoreOptions{Step: 50, Ceiling: 120})

	store.OnFail("host.example.com")
	require.Equal(t, 50, store.Penalty("host.example.com"))

	store.OnFail("host.example.com")
	require.Equal(t, 100, store.Penalty("host.example.com"))

	// Saturates at the ceiling instead of growing unbounded
	store.OnFail("host.example.com")
	store.OnFail("host.example.com")
	require.Equal(t, 120, store.Penalty("host.example.com"))
}

func TestStoreRecovery(t *testing.T) {
	store := NewStore(DefaultStoreOpts)

	store.OnFail("host.example.com")
	store.OnFail("host.example.com")
	store.OnOK("host.example.com")
	require.Equal(t, DefaultStep, store.Penalty("host.example.com"))

	// Full recovery removes the entry entirely
	store.OnOK("host.example.com")
	require.Equal(t, 0, store.Penalty("host.example.com"))
	count, _, _ := store.Stats()
	require.Equal(t, 0, count)
}

func TestStoreOnOKWithoutPenaltyIsNoop(t *testing.T) {
	store := NewStore(DefaultStoreOpts)
	store.OnOK("host.example.com")
	require.Equal(t, 0, store.Penalty("host.example.com"))
	count, _, _ := store.Stats()
	require.Equal(t, 0, count)
}

func TestStoreEmptyHostIgnored(t *testing.T) {
	store := NewStore(DefaultStoreOpts)
	store.OnFail("")
	count, _, _ := store.Stats()
	require.Equal(t, 0, count)
}

func TestStoreClear(t *testing.T) {
	store := NewStore(DefaultStoreOpts)
	store.OnFail("a.example.com")
	store.OnFail("b.example.com")

	store.Clear("a.example.com")
	require.Equal(t, 0, store.Penalty("a.example.com"))
	require.Equal(t, DefaultStep, store.Penalty("b.example.com"))

	store.ClearAll()
	count, _, _ := store.Stats()
	require.Equal(t, 0, count)
}

func TestStoreSnapshotIsACopy(t *testing.T) {
	store := NewStore(DefaultStoreOpts)
	store.OnFail("host.example.com")

	snapshot := store.Snapshot()
	snapshot["host.example.com"] = 9999
	require.Equal(t, DefaultStep, store.Penalty("host.example.com"))
}

func TestStoreStats(t *testing.T) {
	store := NewStore(DefaultStoreOpts)
	store.OnFail("a.example.com")
	store.OnFail("b.example.com")
	store.OnFail("b.example.com")

	count, max, total := store.Stats()
	require.Equal(t, 2, count)
	require.Equal(t, 2*DefaultStep, max)
	require.Equal(t, 3*DefaultStep, total)
}

func TestStoreEviction(t *testing.T) {
	store := NewStore(StoreOptions{MaxEntries: 3})
	for i := 0; i < 5; i++ {
		store.OnFail("host" + strconv.Itoa(i) + ".example.com")
	}
	count, _, _ := store.Stats()
	require.Equal(t, 3, count)
}
