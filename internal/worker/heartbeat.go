/*
Copyright 2026 The kube-borg-backup authors.

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published
by the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/

package worker

import (
	"bufio"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-logr/logr"

	"github.com/backube/kube-borg-backup/internal/archiveengine"
)

const heartbeatInterval = 60 * time.Second

// procSample is a point-in-time reading of a process's /proc accounting,
// used to compute the deltas §4.8's heartbeat thread logs every 60s.
type procSample struct {
	utimeTicks, stimeTicks int64
	rssKB                  int64
	readBytes, writeBytes  int64
}

// StartHeartbeat spawns a goroutine that logs CPU-time delta, I/O bytes
// delta, and memory RSS of handle's process every 60s, stopping when the
// returned function is called. This is grounded on no single teacher file
// (the example pack has no process-diagnostics precedent) and reads
// /proc/{pid} directly since there is no ecosystem library in the corpus for
// this; see DESIGN.md for the stdlib justification.
func StartHeartbeat(log logr.Logger, handle *archiveengine.Handle) func() {
	stop := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(heartbeatInterval)
		defer ticker.Stop()

		pid := handle.Pid()
		prev, haveSample := readProcSample(pid)

		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				cur, ok := readProcSample(pid)
				if !ok {
					log.Info("heartbeat: process diagnostics unavailable", "pid", pid)
					continue
				}
				if haveSample {
					log.Info("heartbeat",
						"pid", pid,
						"cpuTicksDelta", (cur.utimeTicks+cur.stimeTicks)-(prev.utimeTicks+prev.stimeTicks),
						"readBytesDelta", cur.readBytes-prev.readBytes,
						"writeBytesDelta", cur.writeBytes-prev.writeBytes,
						"rssKB", cur.rssKB,
					)
				}
				prev, haveSample = cur, true
			}
		}
	}()

	return func() {
		close(stop)
		<-done
	}
}

func readProcSample(pid int) (procSample, bool) {
	if pid == 0 {
		return procSample{}, false
	}
	var s procSample
	ok := readProcStat(pid, &s)
	readProcIO(pid, &s)
	return s, ok
}

func readProcStat(pid int, s *procSample) bool {
	data, err := os.ReadFile("/proc/" + strconv.Itoa(pid) + "/stat")
	if err != nil {
		return false
	}
	// Fields after the process name (which may contain spaces/parens) start
	// after the last ')'.
	fields := strings.Fields(afterLastParen(string(data)))
	// utime is field 14, stime is field 15, rss (pages) is field 24, numbered
	// from 1 over the whole stat line; fields[0] here is field 3 (state).
	if len(fields) < 24 {
		return false
	}
	s.utimeTicks, _ = strconv.ParseInt(fields[11], 10, 64)
	s.stimeTicks, _ = strconv.ParseInt(fields[12], 10, 64)
	rssPages, _ := strconv.ParseInt(fields[21], 10, 64)
	s.rssKB = rssPages * int64(os.Getpagesize()) / 1024
	return true
}

func afterLastParen(stat string) string {
	i := strings.LastIndex(stat, ")")
	if i < 0 || i+2 > len(stat) {
		return stat
	}
	return stat[i+2:]
}

func readProcIO(pid int, s *procSample) {
	f, err := os.Open("/proc/" + strconv.Itoa(pid) + "/io")
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "read_bytes:"):
			s.readBytes = parseIOValue(line)
		case strings.HasPrefix(line, "write_bytes:"):
			s.writeBytes = parseIOValue(line)
		}
	}
}

func parseIOValue(line string) int64 {
	parts := strings.Fields(line)
	if len(parts) != 2 {
		return 0
	}
	v, _ := strconv.ParseInt(parts[1], 10, 64)
	return v
}
