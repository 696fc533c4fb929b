package rundir

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

type record struct {
	seqnum  uint64
	devpath string
}

// eventLog is the replayed content of udevd's queue.bin: a start seqnum
// followed by (seqnum, devpath length, devpath) records in host byte order,
// where a zero-length devpath marks the seqnum as finished.
type eventLog struct {
	start   uint64
	last    uint64
	pending []record
}

func (l *eventLog) queued(start, end uint64) bool {
	for _, rec := range l.pending {
		if rec.seqnum >= start && rec.seqnum <= end {
			return true
		}
	}
	return false
}

func isTruncated(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

func parseEventLog(r io.Reader) (*eventLog, error) {
	br := bufio.NewReader(r)
	log := &eventLog{}
	if err := binary.Read(br, binary.NativeEndian, &log.start); err != nil {
		return nil, fmt.Errorf("reading start seqnum: %w", err)
	}
	log.last = log.start

	var (
		records []record
		done    []bool
		index   = make(map[uint64]int)
	)
	for {
		var (
			seqnum uint64
			length uint16
		)
		// udevd may be appending while we read; a partial tail record is
		// simply not there yet
		if err := binary.Read(br, binary.NativeEndian, &seqnum); err != nil {
			if isTruncated(err) {
				break
			}
			return nil, err
		}
		if err := binary.Read(br, binary.NativeEndian, &length); err != nil {
			if isTruncated(err) {
				break
			}
			return nil, err
		}

		if length == 0 {
			if i, found := index[seqnum]; found {
				done[i] = true
				delete(index, seqnum)
			}
			log.last = max(log.last, seqnum)
			continue
		}

		devpath := make([]byte, length)
		if _, err := io.ReadFull(br, devpath); err != nil {
			if isTruncated(err) {
				break
			}
			return nil, err
		}
		log.last = max(log.last, seqnum)
		index[seqnum] = len(records)
		records = append(records, record{seqnum: seqnum, devpath: string(devpath)})
		done = append(done, false)
	}

	for i, rec := range records {
		if !done[i] {
			log.pending = append(log.pending, rec)
		}
	}
	return log, nil
}
