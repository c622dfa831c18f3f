package core

import (
	"testing"

	"pgregory.net/rapid"
)

// TestRingPreservesFIFOUnderRandomInterleaving checks, for arbitrary
// interleavings of tryPush/pop within capacity, that values come out in the
// same order they went in -- the core correctness property the whole
// mailbox fabric leans on.
func TestRingPreservesFIFOUnderRandomInterleaving(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		capacity := rapid.IntRange(1, 16).Draw(rt, "capacity")
		r := newRing(capacity)

		var want []int
		var got []int
		next := 0

		steps := rapid.IntRange(1, 200).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			if rapid.Bool().Draw(rt, "doPush") && r.len() < r.capacity() {
				if !r.tryPush(frame{payload: next}) {
					rt.Fatalf("tryPush refused a frame with %d of %d slots used", r.len(), r.capacity())
				}
				want = append(want, next)
				next++
			} else if f, ok := r.pop(); ok {
				got = append(got, f.payload.(int))
			}
		}
		for {
			f, ok := r.pop()
			if !ok {
				break
			}
			got = append(got, f.payload.(int))
		}

		if len(got) != len(want) {
			rt.Fatalf("lost or duplicated frames: want %v got %v", want, got)
		}
		for i := range want {
			if want[i] != got[i] {
				rt.Fatalf("out of order at %d: want %v got %v", i, want, got)
			}
		}
	})
}

func TestNextPowerOfTwoProperties(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := rapid.IntRange(0, 10000).Draw(rt, "n")
		p := nextPowerOfTwo(n)

		if p < n || p < 2 {
			rt.Fatalf("nextPowerOfTwo(%d) = %d is too small", n, p)
		}
		if p&(p-1) != 0 {
			rt.Fatalf("nextPowerOfTwo(%d) = %d is not a power of two", n, p)
		}
	})
}
