// Package timeslice records how long each assembler phase takes. Records are
// streamed in a compact binary form to a writer and summarised later.
//
// A recording is a header, a JSON table of the registered kinds and then a
// sequence of fixed size (kind, nanoseconds) pairs.
package timeslice

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const (
	Magic   uint32 = 0x4a54534c // "JTSL"
	Version uint32 = 1
)

type header struct {
	Magic      uint32
	Version    uint32
	KindsBytes uint32
}

type TimesliceID uint64

const InvalidTimesliceID = TimesliceID(0)

type SliceFlags uint32

const (
	// SliceFlagNative marks time spent running generated code.
	SliceFlagNative SliceFlags = 1 << iota
	// SliceFlagSetup marks one-off setup such as loading a program file.
	SliceFlagSetup
)

func (f SliceFlags) String() string {
	var names []string
	if f&SliceFlagNative != 0 {
		names = append(names, "native")
	}
	if f&SliceFlagSetup != 0 {
		names = append(names, "setup")
	}
	return strings.Join(names, ",")
}

// kind is one row of the table written ahead of the records.
type kind struct {
	ID    TimesliceID `json:"id"`
	Name  string      `json:"name"`
	Flags SliceFlags  `json:"flags,omitempty"`
}

var (
	kindsMu sync.Mutex
	kinds   []kind
)

// RegisterKind declares a named phase. Call it from package level variable
// initialisers.
func RegisterKind(name string, flags SliceFlags) TimesliceID {
	kindsMu.Lock()
	defer kindsMu.Unlock()

	id := TimesliceID(len(kinds) + 1)
	kinds = append(kinds, kind{ID: id, Name: name, Flags: flags})
	return id
}

const recordSize = 16

var (
	ErrAlreadyOpen   = errors.New("timeslice: recording already open")
	ErrAlreadyClosed = errors.New("timeslice: recording already closed")
)

// recording owns the background goroutine that encodes records to out.
type recording struct {
	out  *bufio.Writer
	recs chan [2]uint64
	done chan error

	// mu orders sends on recs against Close closing it.
	mu     sync.RWMutex
	closed bool
}

var current atomic.Pointer[recording]

func (r *recording) drain() {
	var buf [recordSize]byte
	var werr error
	for rec := range r.recs {
		// keep draining after a failure so senders never block
		if werr != nil {
			continue
		}
		binary.LittleEndian.PutUint64(buf[0:8], rec[0])
		binary.LittleEndian.PutUint64(buf[8:16], rec[1])
		_, werr = r.out.Write(buf[:])
	}
	if werr == nil {
		werr = r.out.Flush()
	}
	r.done <- werr
}

func (r *recording) send(id TimesliceID, d time.Duration) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return
	}
	r.recs <- [2]uint64{uint64(id), uint64(d.Nanoseconds())}
}

// Close stops the recording and flushes every record sent before it.
func (r *recording) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return ErrAlreadyClosed
	}
	r.closed = true
	close(r.recs)
	r.mu.Unlock()

	current.CompareAndSwap(r, nil)
	if err := <-r.done; err != nil {
		return fmt.Errorf("timeslice: write records: %w", err)
	}
	return nil
}

// Enabled reports whether a recording is in progress.
func Enabled() bool {
	return current.Load() != nil
}

// Recorder measures consecutive phases. It is not safe for concurrent use.
type Recorder struct {
	last time.Time
}

// NewRecorder starts timing from now. It returns nil when nothing is being
// recorded; a nil Recorder ignores Record calls.
func NewRecorder() *Recorder {
	if !Enabled() {
		return nil
	}
	return &Recorder{last: time.Now()}
}

// Record attributes the time since the previous Record (or NewRecorder) to id.
func (r *Recorder) Record(id TimesliceID) {
	if r == nil {
		return
	}
	now := time.Now()
	Record(id, now.Sub(r.last))
	r.last = now
}

// Record adds one record to the open recording, if any. Records that race
// with Close are dropped.
func Record(id TimesliceID, d time.Duration) {
	if r := current.Load(); r != nil {
		r.send(id, d)
	}
}

// StartRecording writes the kind table to w and streams every later record to
// it until the returned Closer is closed.
func StartRecording(w io.Writer) (io.Closer, error) {
	if current.Load() != nil {
		return nil, ErrAlreadyOpen
	}

	kindsMu.Lock()
	table, err := json.Marshal(kinds)
	kindsMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("timeslice: marshal kinds: %w", err)
	}

	out := bufio.NewWriterSize(w, 64<<10)
	hdr := header{Magic: Magic, Version: Version, KindsBytes: uint32(len(table))}
	if err := binary.Write(out, binary.LittleEndian, hdr); err != nil {
		return nil, fmt.Errorf("timeslice: write header: %w", err)
	}
	if _, err := out.Write(table); err != nil {
		return nil, fmt.Errorf("timeslice: write kinds: %w", err)
	}

	r := &recording{
		out:  out,
		recs: make(chan [2]uint64, 4096),
		done: make(chan error, 1),
	}
	if !current.CompareAndSwap(nil, r) {
		return nil, ErrAlreadyOpen
	}
	go r.drain()
	return r, nil
}

// ReadAllRecords decodes a recording and calls fn for each record in order.
func ReadAllRecords(r io.Reader, fn func(id string, flags SliceFlags, duration time.Duration) error) error {
	in := bufio.NewReader(r)

	var hdr header
	if err := binary.Read(in, binary.LittleEndian, &hdr); err != nil {
		return fmt.Errorf("timeslice: read header: %w", err)
	}
	if hdr.Magic != Magic {
		return fmt.Errorf("timeslice: invalid magic 0x%x", hdr.Magic)
	}
	if hdr.Version != Version {
		return fmt.Errorf("timeslice: invalid version %d", hdr.Version)
	}

	var table []kind
	if err := json.NewDecoder(io.LimitReader(in, int64(hdr.KindsBytes))).Decode(&table); err != nil {
		return fmt.Errorf("timeslice: decode kinds: %w", err)
	}
	byID := make(map[TimesliceID]kind, len(table))
	for _, k := range table {
		byID[k.ID] = k
	}

	var buf [recordSize]byte
	for {
		if _, err := io.ReadFull(in, buf[:]); err != nil {
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("timeslice: read record: %w", err)
		}
		id := TimesliceID(binary.LittleEndian.Uint64(buf[0:8]))
		k, ok := byID[id]
		if !ok {
			return fmt.Errorf("timeslice: unknown kind %d", id)
		}
		d := time.Duration(binary.LittleEndian.Uint64(buf[8:16]))
		if err := fn(k.Name, k.Flags, d); err != nil {
			return err
		}
	}
}

// Summary aggregates every record of one kind.
type Summary struct {
	Kind  string
	Flags SliceFlags
	Count int
	Sum   time.Duration
	Min   time.Duration
	Max   time.Duration
}

// Mean returns the average duration.
func (s *Summary) Mean() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Sum / time.Duration(s.Count)
}

func (s *Summary) add(d time.Duration) {
	s.Count++
	s.Sum += d
	if s.Count == 1 || d < s.Min {
		s.Min = d
	}
	if d > s.Max {
		s.Max = d
	}
}

// Summarize reads a recording and aggregates it per kind, sorted by name.
func Summarize(r io.Reader) ([]*Summary, error) {
	byKind := make(map[string]*Summary)
	if err := ReadAllRecords(r, func(id string, flags SliceFlags, d time.Duration) error {
		s, ok := byKind[id]
		if !ok {
			s = &Summary{Kind: id, Flags: flags}
			byKind[id] = s
		}
		s.add(d)
		return nil
	}); err != nil {
		return nil, err
	}

	out := make([]*Summary, 0, len(byKind))
	for _, s := range byKind {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out, nil
}
