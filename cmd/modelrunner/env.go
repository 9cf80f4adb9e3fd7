package main

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// envName maps a flag name to its environment default, e.g.
// grpc-addr -> MODELRUNNER_GRPC_ADDR.
func envName(flag string) string {
	return "MODELRUNNER_" + strings.ToUpper(strings.ReplaceAll(flag, "-", "_"))
}

func envSet(flag string) bool {
	_, ok := os.LookupEnv(envName(flag))
	return ok
}

func envStr(flag, def string) string {
	if v, ok := os.LookupEnv(envName(flag)); ok {
		return v
	}
	return def
}

func envInt(flag string, def int) int {
	if n, err := strconv.Atoi(os.Getenv(envName(flag))); err == nil {
		return n
	}
	return def
}

func envBool(flag string, def bool) bool {
	if b, err := strconv.ParseBool(os.Getenv(envName(flag))); err == nil {
		return b
	}
	return def
}

func envDur(flag string, def time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(envName(flag))); err == nil {
		return d
	}
	return def
}

// splitCSV splits a comma-separated list, trimming blanks and dropping
// empty entries.
func splitCSV(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
