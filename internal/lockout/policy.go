package lockout

import "time"

const (
	MaxAttempts = 5

	baseLockMinutes = 5
	backoffFactor   = 3
	maxLockMinutes  = 1440
)

// LockDuration is the lock window after the given number of consecutive
// failures: none below MaxAttempts, then 5 * 3^(attempts-4) minutes capped
// at one day.
func LockDuration(attempts int) time.Duration {
	if attempts < MaxAttempts {
		return 0
	}

	minutes := baseLockMinutes
	for i := 0; i < attempts-(MaxAttempts-1); i++ {
		minutes *= backoffFactor
		if minutes >= maxLockMinutes {
			minutes = maxLockMinutes
			break
		}
	}

	return time.Duration(minutes) * time.Minute
}
