package throttle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBadgerStorage(t *testing.T) (*BadgerStorage, *fixedClock) {
	t.Helper()
	db, err := OpenBadger("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	clk := &fixedClock{t: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	st := NewBadgerStorage(db)
	st.now = clk.now
	return st, clk
}

func TestBadgerStorage_ThrottleScenario(t *testing.T) {
	st, _ := newBadgerStorage(t)
	g := NewGuard(st, scenarioOptions())
	ctx := context.Background()
	a := &fakeClient{id: "conn-a", addr: "10.0.0.1"}

	for i := 0; i < 10; i++ {
		require.NoError(t, g.Check(ctx, a, "start"))
	}
	err := g.Check(ctx, a, "start")
	var denied *DeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, 11, denied.TotalHits)
	assert.Equal(t, int64(30000), denied.TimeToBlockExpire)

	assert.NoError(t, g.Check(ctx, &fakeClient{id: "conn-b", addr: "10.0.0.2"}, "start"))
}

func TestBadgerStorage_WindowResets(t *testing.T) {
	st, clk := newBadgerStorage(t)
	ctx := context.Background()

	rec, err := st.Increment(ctx, "k", 10*time.Second, 5, time.Second, "default")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.TotalHits)

	clk.advance(11 * time.Second)
	rec, err = st.Increment(ctx, "k", 10*time.Second, 5, time.Second, "default")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.TotalHits)
	assert.Equal(t, 10*time.Second, rec.TimeToExpire)
}

func TestBadgerStorage_ConcurrentIncrements(t *testing.T) {
	st, _ := newBadgerStorage(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := st.Increment(ctx, "shared", time.Minute, 1000, time.Minute, "default")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rec, err := st.Increment(ctx, "shared", time.Minute, 1000, time.Minute, "default")
	require.NoError(t, err)
	assert.Equal(t, 9, rec.TotalHits)
}
