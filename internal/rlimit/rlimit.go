// Package rlimit resolves the process's open-file-descriptor ceiling so
// the cache's fd_hwmark_percent/fd_lwmark_percent/fd_limit_percent options
// can be expressed as fractions of what the OS will actually allow,
// instead of a hand-picked absolute number that drifts from the process's
// real ulimit.
//
// Grounded on rclone-rclone/backend/local's *_unix.go files, which reach
// for golang.org/x/sys/unix for POSIX resource/attribute queries rather
// than shelling out or reimplementing the syscall by hand.
//
// © 2025 mdcache authors. MIT License.
package rlimit

import "golang.org/x/sys/unix"

// NoFile returns the process's current RLIMIT_NOFILE soft and hard limits.
func NoFile() (soft, hard uint64, err error) {
	var rl unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rl); err != nil {
		return 0, 0, err
	}
	return rl.Cur, rl.Max, nil
}

// Watermarks derives (hard, hi, lo) open-descriptor counts from the
// process's RLIMIT_NOFILE soft limit and the configured
// fd_hwmark_percent/fd_lwmark_percent/fd_limit_percent fractions. Falls
// back to fallbackSoft if the rlimit syscall fails (e.g. under a sandboxed
// test runner), so callers can remain deterministic in tests.
func Watermarks(hwmarkPct, lwmarkPct, limitPct float64, fallbackSoft uint64) (hard, hi, lo int64) {
	soft, _, err := NoFile()
	if err != nil || soft == 0 {
		soft = fallbackSoft
	}
	hard = int64(float64(soft) * limitPct)
	hi = int64(float64(soft) * hwmarkPct)
	lo = int64(float64(soft) * lwmarkPct)
	return
}
