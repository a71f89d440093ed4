package common

import (
	"context"
	"math/rand"
	"os"
	"strconv"
	"time"
)

//WaitForDuration waits for the given time duration (in seconds)
func WaitForDuration(duration int) {
	time.Sleep(time.Duration(duration) * time.Second)
}

// WaitForDurationCtx waits for the given number of seconds or until the
// context is cancelled, whichever comes first. Returns false on cancellation.
func WaitForDurationCtx(ctx context.Context, duration int) bool {
	timer := time.NewTimer(time.Duration(duration) * time.Second)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// GetRunID generate a random string
func GetRunID() string {
	var letterRunes = []rune("abcdefghijklmnopqrstuvwxyz")
	runID := make([]rune, 6)
	rand.Seed(time.Now().UnixNano())
	for i := range runID {
		runID[i] = letterRunes[rand.Intn(len(letterRunes))]
	}
	return string(runID)
}

// Getenv fetches the env with a fallback default
func Getenv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		value = defaultValue
	}
	return value
}

// GetenvInt fetches an integer env with a fallback default
func GetenvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}
