package lru

import "time"

// SleepSample is the only state the adaptive-sleep computation carries
// across wakes: the previous (open-fd-count, wake-time) pair. Grounded on
// original_source/src/cache_inode/cache_inode_lru.c's lru_run_interval
// sleep computation.
type SleepSample struct {
	OpenFDs int64
	At      time.Time
}

// AdaptiveSleep computes the reclaimer's next sleep duration as a pure
// function of the current open-descriptor count, the previous sample, and
// the configured low/high watermarks. It is intentionally side-effect free
// so it can be unit tested without a running reclaimer goroutine.
//
// The result is clamped to base/10 as a lower bound.
func AdaptiveSleep(current SleepSample, prev SleepSample, lowat, hiwat int64, base time.Duration) time.Duration {
	minSleep := base / 10
	if minSleep <= 0 {
		minSleep = time.Millisecond
	}

	if current.OpenFDs < lowat {
		return base
	}

	span := hiwat - lowat
	if span <= 0 {
		span = 1
	}
	over := current.OpenFDs - lowat
	frac := float64(over) / float64(span)
	if frac > 1 {
		frac = 1
	}
	if frac < 0 {
		frac = 0
	}

	sleep := time.Duration(float64(base) * (1 - frac))

	elapsed := current.At.Sub(prev.At).Seconds()
	if elapsed > 0 {
		rate := float64(current.OpenFDs-prev.OpenFDs) / elapsed
		if rate > 0 {
			// Growing fast: shrink the sleep further, proportionally to
			// how many watermark-spans per second we're accumulating.
			speedFactor := 1.0 / (1.0 + rate/float64(span))
			sleep = time.Duration(float64(sleep) * speedFactor)
		}
	}

	if sleep < minSleep {
		sleep = minSleep
	}
	if sleep > base {
		sleep = base
	}
	return sleep
}
