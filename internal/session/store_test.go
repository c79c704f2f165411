package session

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Redfern89/reaver-redfern89/internal/pin"
)

var target, _ = net.ParseMAC("aa:bb:cc:dd:ee:ff")

func newTestStore(t *testing.T, maxAge time.Duration, now time.Time) *Store {
	s := NewStore(t.TempDir(), maxAge)
	s.now = func() time.Time { return now }
	return s
}

func TestSaveRestore(t *testing.T) {
	now := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)
	s := newTestStore(t, 0, now)

	require.NoError(t, s.Save(target, Record{ESSID: "home", P1Index: 1234, P2Index: 56, KeyStatus: pin.Key2WIP}))
	assert.Equal(t, filepath.Join(s.Dir, "AABBCCDDEEFF.wpc"), s.Path(target))

	rec, ok, err := s.Restore(target)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "aa:bb:cc:dd:ee:ff", rec.Target)
	assert.Equal(t, "home", rec.ESSID)
	assert.Equal(t, 1234, rec.P1Index)
	assert.Equal(t, 56, rec.P2Index)
	assert.Equal(t, pin.Key2WIP, rec.KeyStatus)
	assert.True(t, now.Equal(rec.UpdatedAt))
	assert.Empty(t, rec.PIN)
}

func TestSaveIsIdempotent(t *testing.T) {
	s := newTestStore(t, 0, time.Unix(1000, 0))
	rec := Record{P1Index: 7, KeyStatus: pin.Key1WIP}
	require.NoError(t, s.Save(target, rec))
	first, err := os.ReadFile(s.Path(target))
	require.NoError(t, err)

	require.NoError(t, s.Save(target, rec))
	second, err := os.ReadFile(s.Path(target))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	entries, err := os.ReadDir(s.Dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files are left behind")
}

func TestFileFormat(t *testing.T) {
	s := newTestStore(t, 0, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	require.NoError(t, s.Save(target, Record{P1Index: 10000, P2Index: 999, KeyStatus: pin.KeyDone, PIN: "12345670"}))

	data, err := os.ReadFile(s.Path(target))
	require.NoError(t, err)
	assert.Contains(t, string(data), "key_status: KEY_DONE")
	assert.Contains(t, string(data), "pin: \"12345670\"")
	assert.Contains(t, string(data), "p1_index: 10000")
	assert.NotContains(t, string(data), "essid")
}

func TestResumeKeepsForcedOrder(t *testing.T) {
	s := newTestStore(t, 0, time.Now())

	// First half 1234 accepted by M5, one second half rejected.
	space := pin.NewSpace()
	require.NoError(t, space.ForceStatic("1234"))
	space.SetStatus(pin.Key2WIP)
	space.Advance()

	p1, p2 := space.Indices()
	p1Order, p2Order := space.Order()
	require.NoError(t, s.Save(target, Record{
		P1Index: p1, P2Index: p2, KeyStatus: space.Status(),
		P1Order: p1Order, P2Order: p2Order,
	}))

	rec, ok, err := s.Restore(target)
	require.NoError(t, err)
	require.True(t, ok)

	resumed := pin.NewSpace()
	require.NoError(t, resumed.SetOrder(rec.P1Order, rec.P2Order))
	require.NoError(t, resumed.Restore(rec.P1Index, rec.P2Index, rec.KeyStatus))

	c, err := resumed.Next()
	require.NoError(t, err)
	assert.Equal(t, 1234, c.P1(), "accepted first half survives the resume")
	assert.Equal(t, 1, c.P2())

	data, err := os.ReadFile(s.Path(target))
	require.NoError(t, err)
	assert.Contains(t, string(data), "p1_order: [1234, 0, 1,")
	assert.NotContains(t, string(data), "p2_order")
}

func TestRestoreMissing(t *testing.T) {
	s := newTestStore(t, 0, time.Now())
	_, ok, err := s.Restore(target)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRestoreStale(t *testing.T) {
	saved := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	s := newTestStore(t, 24*time.Hour, saved)
	require.NoError(t, s.Save(target, Record{P1Index: 3}))

	s.now = func() time.Time { return saved.Add(48 * time.Hour) }
	rec, ok, err := s.Restore(target)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 3, rec.P1Index, "stale record is still returned for reporting")

	s.now = func() time.Time { return saved.Add(time.Hour) }
	_, ok, err = s.Restore(target)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRestoreCorrupt(t *testing.T) {
	s := newTestStore(t, 0, time.Now())
	require.NoError(t, os.WriteFile(s.Path(target), []byte("p1_index: [oops"), 0o644))
	_, _, err := s.Restore(target)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(s.Path(target), []byte("p1_index: 20000\nkey_status: KEY1_WIP\n"), 0o644))
	_, _, err = s.Restore(target)
	assert.ErrorIs(t, err, pin.ErrIndexRange)

	require.NoError(t, os.WriteFile(s.Path(target), []byte("p2_order: [1, 0]\nkey_status: KEY1_WIP\n"), 0o644))
	_, _, err = s.Restore(target)
	assert.ErrorIs(t, err, pin.ErrIndexRange)

	require.NoError(t, os.WriteFile(s.Path(target), []byte("key_status: KEY9\n"), 0o644))
	_, _, err = s.Restore(target)
	assert.Error(t, err)
}

func TestRemove(t *testing.T) {
	s := newTestStore(t, 0, time.Now())
	require.NoError(t, s.Remove(target))
	require.NoError(t, s.Save(target, Record{}))
	require.NoError(t, s.Remove(target))
	_, ok, err := s.Restore(target)
	require.NoError(t, err)
	assert.False(t, ok)
}
