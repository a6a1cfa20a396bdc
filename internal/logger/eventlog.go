// Package logger owns two distinct kinds of output: the exact protocol
// event log (b/d/decision lines, byte-for-byte per the wire contract) and
// logrus-backed diagnostic logging for everything else the node does.
package logger

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// EventLog queues protocol output lines and flushes them to a file in one
// buffered write per tick, grounded on logger.cpp's enqueueLine/writeLog
// swap-buffer-under-lock shape and the teacher's MsgLog append-to-file
// pattern in paxos/log.go.
type EventLog struct {
	mu    sync.Mutex
	queue []string

	fd  *os.File
	log logrus.FieldLogger
}

// NewEventLog opens path for append, creating the file if necessary. The
// parent directory is not created; it must already exist.
func NewEventLog(path string, log logrus.FieldLogger) (*EventLog, error) {
	fd, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("logger: open output file %q: %w", path, err)
	}
	return &EventLog{fd: fd, log: log}, nil
}

// LogBroadcast enqueues a URB broadcast event: "b <seq>".
func (e *EventLog) LogBroadcast(seq uint32) {
	e.enqueue(fmt.Sprintf("b %d", seq))
}

// LogDelivery enqueues a URB delivery event: "d <origin> <seq>".
func (e *EventLog) LogDelivery(origin uint64, seq uint32) {
	e.enqueue(fmt.Sprintf("d %d %d", origin, seq))
}

// LogDecision enqueues an LA decision event: the decided values, sorted
// ascending, space-separated, with no leading or trailing space.
func (e *EventLog) LogDecision(values []uint32) {
	sorted := append([]uint32(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	line := ""
	for i, v := range sorted {
		if i > 0 {
			line += " "
		}
		line += fmt.Sprintf("%d", v)
	}
	e.enqueue(line)
}

func (e *EventLog) enqueue(line string) {
	e.mu.Lock()
	e.queue = append(e.queue, line)
	e.mu.Unlock()
}

// Flush swaps out the queued lines and writes them to the file in a
// single buffered write, mirroring Logger::writeLog's swap-under-lock,
// write-outside-lock shape.
func (e *EventLog) Flush() error {
	e.mu.Lock()
	local := e.queue
	e.queue = nil
	e.mu.Unlock()

	if len(local) == 0 {
		return nil
	}

	w := bufio.NewWriter(e.fd)
	for _, line := range local {
		if _, err := w.WriteString(line); err != nil {
			e.log.WithError(err).Error("event log write failed")
			return err
		}
		if err := w.WriteByte('\n'); err != nil {
			e.log.WithError(err).Error("event log write failed")
			return err
		}
	}
	if err := w.Flush(); err != nil {
		e.log.WithError(err).Error("event log buffered flush failed")
		return err
	}
	return e.fd.Sync()
}

// Close flushes any remaining lines and closes the underlying file.
func (e *EventLog) Close() error {
	if err := e.Flush(); err != nil {
		return err
	}
	return e.fd.Close()
}
