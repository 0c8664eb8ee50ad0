package watchdog

import (
	"math"
	"sync"
	"testing"
	"time"
)

type fakeTime struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeTime) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeTime) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func newFake() *fakeTime {
	return &fakeTime{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
}

func TestClock_Defaults(t *testing.T) {
	c := New()
	if c.Enabled() {
		t.Error("new clock should be disabled")
	}
	if c.Timeout() != DefaultTimeout {
		t.Errorf("Timeout() = %v, want %v", c.Timeout(), DefaultTimeout)
	}
	if c.Elapsed() != 0 {
		t.Errorf("Elapsed() before Reset = %v, want 0", c.Elapsed())
	}
}

func TestClock_Expires(t *testing.T) {
	ft := newFake()
	c := New(WithNow(ft.Now))
	c.Configure(true, 0.25)
	c.Reset()

	ft.Advance(200 * time.Millisecond)
	if c.Expired() {
		t.Error("expired before the budget elapsed")
	}

	ft.Advance(100 * time.Millisecond)
	if !c.Expired() {
		t.Error("not expired after the budget elapsed")
	}

	c.Reset()
	if c.Expired() {
		t.Error("Reset should restart the stopwatch")
	}
}

func TestClock_DisabledNeverExpires(t *testing.T) {
	ft := newFake()
	c := New(WithNow(ft.Now))
	c.Configure(false, 0.01)
	c.Reset()
	ft.Advance(time.Hour)

	if c.Expired() {
		t.Error("disabled clock expired")
	}
	if c.Elapsed() != time.Hour {
		t.Errorf("Elapsed() = %v, want 1h", c.Elapsed())
	}
}

func TestClock_ConfigureKeepsTimeout(t *testing.T) {
	c := New()
	c.Configure(true, 2)
	c.Configure(false, 0)
	if c.Timeout() != 2*time.Second {
		t.Errorf("Timeout() = %v, want 2s", c.Timeout())
	}
}

func TestClock_ConcurrentConfigure(t *testing.T) {
	c := New()
	c.Reset()
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(on bool) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c.Configure(on, 0.5)
				c.Expired()
			}
		}(i%2 == 0)
	}
	wg.Wait()
}

func TestClock_HugeTimeoutIsClamped(t *testing.T) {
	ft := newFake()
	c := New(WithNow(ft.Now))

	for _, secs := range []float64{1e12, math.Inf(1), math.MaxFloat64} {
		c.Configure(true, secs)
		if c.Timeout() != time.Duration(math.MaxInt64) {
			t.Errorf("Configure(%v) timeout = %v, want the largest duration", secs, c.Timeout())
		}
		c.Reset()
		ft.Advance(24 * time.Hour)
		if c.Expired() {
			t.Errorf("Configure(%v) expired after a day", secs)
		}
	}
}
