package model

import "time"

// RetryBackoff is the wait before retry number attempts: 5 minutes
// doubled per attempt, capped at 24 hours.
func RetryBackoff(attempts int) time.Duration {
	if attempts > 9 {
		return 24 * time.Hour
	}
	retryMinutes := 5 * (1 << attempts) // 10, 20, 40, etc.
	if retryMinutes > 1440 {
		retryMinutes = 1440
	}
	return time.Duration(retryMinutes) * time.Minute
}
