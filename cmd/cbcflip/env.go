package main

import (
	"os"
	"strconv"
	"time"
)

func env(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func envInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(v); err == nil { return i }
	}
	return def
}

// envDuration accepts Go durations ("250ms") or plain seconds ("0.1").
func envDuration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil { return d }
	if f, err := strconv.ParseFloat(v, 64); err == nil { return time.Duration(f * float64(time.Second)) }
	return def
}
