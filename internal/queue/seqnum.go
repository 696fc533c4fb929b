package queue

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/ydb-platform/udev-queue/internal/native"
)

// ParseSequenceNumber parses a decimal sequence number. Values that do not
// fit into 64 bits are reported as *RangeError rather than truncated.
func ParseSequenceNumber(s string) (uint64, error) {
	seqnum, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return 0, &RangeError{Value: s, Max: ^uint64(0)}
		}
		return 0, fmt.Errorf("invalid sequence number %q: %w", s, err)
	}
	return seqnum, nil
}

// oracle marshals sequence-number queries into a native handle, checking
// every argument against the width the handle declares.
type oracle struct {
	raw native.Handle
}

func (o oracle) marshal(seqnum uint64) (uint64, error) {
	if limit := o.raw.MaxSeqnum(); seqnum > limit {
		return 0, &RangeError{Value: strconv.FormatUint(seqnum, 10), Max: limit}
	}
	return seqnum, nil
}

func (o oracle) kernel() uint64 {
	return o.raw.KernelSeqnum()
}

func (o oracle) udev() uint64 {
	return o.raw.UdevSeqnum()
}

func (o oracle) finished(seqnum uint64) (bool, error) {
	seqnum, err := o.marshal(seqnum)
	if err != nil {
		return false, err
	}
	return o.raw.SeqnumIsFinished(seqnum), nil
}

// rangeFinished treats (start, end) as an unordered inclusive interval.
func (o oracle) rangeFinished(start, end uint64) (bool, error) {
	start, err := o.marshal(start)
	if err != nil {
		return false, err
	}
	end, err = o.marshal(end)
	if err != nil {
		return false, err
	}
	if start > end {
		start, end = end, start
	}
	return o.raw.SeqnumSequenceIsFinished(start, end), nil
}
