package logs

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"
)

const (
	defaultPollInterval = 250 * time.Millisecond
	maxLineBytes        = 1024 * 1024
)

// TailOptions controls Tail.
type TailOptions struct {
	// Lines is how many trailing lines to emit first. Zero emits the whole file.
	Lines int
	// Follow keeps polling for appended lines until ctx is done.
	Follow bool
	Poll   time.Duration
}

// Tail emits the last lines of path and optionally follows it. Following stops
// without error when ctx is cancelled.
func Tail(ctx context.Context, path string, opts TailOptions, emit func(string) error) error {
	lines, offset, err := lastLines(path, opts.Lines)
	if err != nil {
		return err
	}
	for _, line := range lines {
		if err := emit(line); err != nil {
			return err
		}
	}
	if !opts.Follow {
		return nil
	}

	poll := opts.Poll
	if poll <= 0 {
		poll = defaultPollInterval
	}
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		var appended []string
		appended, offset, err = readFrom(path, offset)
		if err != nil {
			return err
		}
		for _, line := range appended {
			if err := emit(line); err != nil {
				return err
			}
		}
	}
}

// lastLines keeps a ring of the final limit lines and returns the end offset.
func lastLines(path string, limit int) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open run log: %w", err)
	}
	defer file.Close()

	scanner := newScanner(file)
	var ring []string
	next := 0
	for scanner.Scan() {
		line := scanner.Text()
		if limit <= 0 || len(ring) < limit {
			ring = append(ring, line)
			continue
		}
		ring[next] = line
		next = (next + 1) % limit
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("read run log: %w", err)
	}
	offset, err := file.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, 0, fmt.Errorf("determine run log offset: %w", err)
	}
	if next == 0 {
		return ring, offset, nil
	}
	ordered := make([]string, 0, len(ring))
	ordered = append(ordered, ring[next:]...)
	ordered = append(ordered, ring[:next]...)
	return ordered, offset, nil
}

// readFrom returns complete lines appended after offset. A trailing partial
// line is left for the next poll.
func readFrom(path string, offset int64) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, offset, fmt.Errorf("open run log: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, offset, fmt.Errorf("stat run log: %w", err)
	}
	if info.Size() < offset {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, fmt.Errorf("seek run log: %w", err)
	}

	reader := bufio.NewReader(file)
	var lines []string
	for {
		chunk, err := reader.ReadString('\n')
		if err == io.EOF {
			return lines, offset, nil
		}
		if err != nil {
			return nil, offset, fmt.Errorf("read run log: %w", err)
		}
		offset += int64(len(chunk))
		lines = append(lines, chunk[:len(chunk)-1])
	}
}

func newScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return scanner
}
