// Package ids generates the identifiers the socket abstraction attaches
// to sockets and group members: a boot-scoped prefix (hostname plus boot
// time) and an xid-based per-socket token. The boot-prefix derivation is
// adapted from the teacher package's uuid/uuid.go (which paired a
// /proc/uptime-derived boot time with the hostname to build a
// globally-unique socket cookie namespace); the per-socket token itself
// uses github.com/rs/xid, the same sortable-ID generator used elsewhere in
// the retrieval pack for connection/session identifiers.
package ids

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/xid"
)

var (
	bootPrefixOnce sync.Once
	bootPrefix     string
	bootPrefixErr  error
)

func timeToUnix(t time.Time) int64 {
	return int64(t.Sub(time.Date(1970, 1, 1, 0, 0, 0, 0, time.UTC)).Seconds())
}

func bootTimeWithRaceCondition() (int64, error) {
	procUptime, err := os.ReadFile("/proc/uptime")
	if err != nil {
		return -1, err
	}
	parts := strings.Split(string(procUptime), " ")
	if len(parts) != 2 {
		return -1, fmt.Errorf("ids: could not split /proc/uptime into two parts")
	}
	uptime, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return -1, fmt.Errorf("ids: could not parse /proc/uptime: %w", err)
	}
	return timeToUnix(time.Now().Add(-time.Duration(uptime * float64(time.Second)))), nil
}

// BootTime returns the approximate Unix time this host last booted, by
// repeatedly reading /proc/uptime until two consecutive reads agree - the
// same race-elimination loop the teacher package used, since a single read
// can straddle a one-second boundary between reading uptime and sampling
// the wall clock.
func BootTime() (int64, error) {
	var prev, curr int64
	curr, err := bootTimeWithRaceCondition()
	if err != nil {
		return 0, err
	}
	for prev != curr {
		prev = curr
		curr, err = bootTimeWithRaceCondition()
		if err != nil {
			return 0, err
		}
	}
	return curr, nil
}

// BootPrefix returns a cached string combining hostname and boot time,
// globally unique for the lifetime of this boot of this host. It is safe
// for concurrent use.
func BootPrefix() (string, error) {
	bootPrefixOnce.Do(func() {
		hostname, err := os.Hostname()
		if err != nil {
			bootPrefixErr = err
			return
		}
		bootTime, err := BootTime()
		if err != nil {
			bootPrefixErr = err
			return
		}
		bootPrefix = fmt.Sprintf("%s_%d", hostname, bootTime)
	})
	return bootPrefix, bootPrefixErr
}

// NewToken returns a new globally-unique, sortable token suitable for a
// socket id or a group-member token, per spec §3's "member has a token"
// invariant.
func NewToken() string {
	return xid.New().String()
}
