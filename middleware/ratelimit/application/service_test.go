package application

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"api-gateway/middleware/ratelimit/domain"
)

type fakeCounters struct {
	mu     sync.Mutex
	counts map[domain.Key]int64
	reset  time.Time
}

func newFakeCounters() *fakeCounters {
	return &fakeCounters{counts: make(map[domain.Key]int64)}
}

func (f *fakeCounters) Incr(k domain.Key) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[k]++
	return f.counts[k]
}

func (f *fakeCounters) clear() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for k := range f.counts {
		f.counts[k] = 0
	}
}

type clockedCounters struct {
	*fakeCounters
}

func (c clockedCounters) NextReset() time.Time { return c.reset }

func TestService_Decide_AllowsWhenNoStore(t *testing.T) {
	svc := Service{}
	dec := svc.Decide("k")
	assert.True(t, dec.Allowed)
	assert.Zero(t, dec.RetryAfter)
}

func TestService_Decide_AdmitsUpToMaxThenRejects(t *testing.T) {
	svc := Service{Counters: newFakeCounters(), Policy: domain.Policy{MaxRequests: 3, Window: time.Minute}}

	for i := 1; i <= 3; i++ {
		dec := svc.Decide("10.0.0.1")
		require.Truef(t, dec.Allowed, "request %d should be admitted", i)
		assert.Equal(t, int64(i), dec.Count)
		assert.Equal(t, int64(3-i), dec.Remaining)
	}
	for i := 4; i <= 6; i++ {
		dec := svc.Decide("10.0.0.1")
		require.Falsef(t, dec.Allowed, "request %d should be rejected", i)
		assert.Equal(t, int64(i), dec.Count, "rejected requests still count")
		assert.Zero(t, dec.Remaining)
	}
}

func TestService_Decide_AdmitsAgainAfterReset(t *testing.T) {
	counters := newFakeCounters()
	svc := Service{Counters: counters, Policy: domain.Policy{MaxRequests: 2, Window: time.Minute}}

	svc.Decide("k")
	svc.Decide("k")
	require.False(t, svc.Decide("k").Allowed)

	counters.clear()

	assert.True(t, svc.Decide("k").Allowed)
	assert.True(t, svc.Decide("k").Allowed)
	assert.False(t, svc.Decide("k").Allowed)
}

func TestService_Decide_KeysAreIsolated(t *testing.T) {
	svc := Service{Counters: newFakeCounters(), Policy: domain.Policy{MaxRequests: 1, Window: time.Minute}}

	require.True(t, svc.Decide("a").Allowed)
	require.False(t, svc.Decide("a").Allowed)
	assert.True(t, svc.Decide("b").Allowed)
}

func TestService_Decide_RetryAfterDefaultsToWindow(t *testing.T) {
	svc := Service{Counters: newFakeCounters(), Policy: domain.Policy{MaxRequests: 1, Window: 30 * time.Second}}

	svc.Decide("k")
	dec := svc.Decide("k")
	require.False(t, dec.Allowed)
	assert.Equal(t, 30*time.Second, dec.RetryAfter)
}

func TestService_Decide_RetryAfterUsesNextReset(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	counters := clockedCounters{newFakeCounters()}
	counters.reset = now.Add(2500 * time.Millisecond)

	svc := Service{Counters: counters, Policy: domain.Policy{MaxRequests: 1, Window: time.Minute}}
	svc.now = func() time.Time { return now }

	svc.Decide("k")
	dec := svc.Decide("k")
	require.False(t, dec.Allowed)
	assert.Equal(t, 3*time.Second, dec.RetryAfter, "rounded up to whole seconds")
}

func TestService_Decide_RetryAfterIsAtLeastOneSecond(t *testing.T) {
	now := time.Now()
	counters := clockedCounters{newFakeCounters()}
	counters.reset = now.Add(-time.Second)

	svc := Service{Counters: counters, Policy: domain.Policy{MaxRequests: 1, Window: time.Minute}}
	svc.now = func() time.Time { return now }

	svc.Decide("k")
	assert.Equal(t, time.Second, svc.Decide("k").RetryAfter)
}
