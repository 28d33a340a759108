package readiness

import "testing"

func TestBucketClock_BucketEndTs(t *testing.T) {
	clock := NewBucketClock(1000)

	cases := []struct {
		ts   int64
		want int64
	}{
		{ts: 0, want: 1000},
		{ts: 1, want: 1000},
		{ts: 999, want: 1000},
		{ts: 1000, want: 1000},
		{ts: 1001, want: 2000},
		{ts: 2000, want: 2000},
		{ts: -50, want: 1000},
	}

	for _, c := range cases {
		if got := clock.BucketEndTs(c.ts); got != c.want {
			t.Errorf("BucketEndTs(%d) = %d, want %d", c.ts, got, c.want)
		}
	}
}

func TestNewBucketClock_ClampsBucketMs(t *testing.T) {
	clock := NewBucketClock(10)
	if clock.bucketMs != 100 {
		t.Fatalf("expected bucketMs clamped to 100, got %d", clock.bucketMs)
	}
}
