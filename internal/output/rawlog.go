// Package output writes run artifacts: the wire record log and the
// per-frame report.
package output

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/grailbio/base/errors"
)

const recordLogMagic = "SOBELRC1"

const recordHeaderSize = 12

// RecordLog captures every envelope a rank sends. It implements
// comm.Recorder.
type RecordLog struct {
	mu   sync.Mutex
	f    *os.File
	w    *bufio.Writer
	path string
}

// NewRecordLog creates <dir>/<timestamp>_<prefix>.bin.
func NewRecordLog(dir, prefix string) (*RecordLog, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	timestamp := time.Now().Format("20060102_150405")
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.bin", timestamp, prefix))
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	w := bufio.NewWriterSize(f, 1024*1024)
	if _, err := w.WriteString(recordLogMagic); err != nil {
		_ = f.Close()
		return nil, err
	}
	return &RecordLog{f: f, w: w, path: path}, nil
}

// Path returns the file the log writes to.
func (r *RecordLog) Path() string { return r.path }

// Record appends one envelope with the current time.
func (r *RecordLog) Record(payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return errors.E(errors.Invalid, "record log is closed")
	}
	var header [recordHeaderSize]byte
	binary.LittleEndian.PutUint64(header[:8], uint64(time.Now().UnixNano()))
	binary.LittleEndian.PutUint32(header[8:12], uint32(len(payload)))
	if _, err := r.w.Write(header[:]); err != nil {
		return err
	}
	_, err := r.w.Write(payload)
	return err
}

// Flush writes buffered records to the file.
func (r *RecordLog) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return nil
	}
	return r.w.Flush()
}

func (r *RecordLog) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.w == nil {
		return nil
	}
	err := r.w.Flush()
	if cerr := r.f.Close(); err == nil {
		err = cerr
	}
	r.w = nil
	return err
}

// Entry is one record read back from a log.
type Entry struct {
	Time    time.Time
	Payload []byte
}

// RecordReader iterates over a record log.
type RecordReader struct {
	r *bufio.Reader
}

// NewRecordReader checks the magic of r.
func NewRecordReader(r io.Reader) (*RecordReader, error) {
	br := bufio.NewReader(r)
	magic := make([]byte, len(recordLogMagic))
	if _, err := io.ReadFull(br, magic); err != nil {
		return nil, errors.E(errors.Invalid, "record log: read magic", err)
	}
	if string(magic) != recordLogMagic {
		return nil, errors.E(errors.Invalid, fmt.Sprintf("record log: bad magic %q", magic))
	}
	return &RecordReader{r: br}, nil
}

// Next returns the next entry, or io.EOF after the last one. A record cut
// short is an Invalid error.
func (rr *RecordReader) Next() (Entry, error) {
	var header [recordHeaderSize]byte
	if _, err := io.ReadFull(rr.r, header[:]); err != nil {
		if err == io.EOF {
			return Entry{}, io.EOF
		}
		return Entry{}, errors.E(errors.Invalid, "record log: truncated header", err)
	}
	ts := int64(binary.LittleEndian.Uint64(header[:8]))
	n := binary.LittleEndian.Uint32(header[8:12])
	payload := make([]byte, n)
	if _, err := io.ReadFull(rr.r, payload); err != nil {
		return Entry{}, errors.E(errors.Invalid, fmt.Sprintf("record log: truncated payload of %d bytes", n), err)
	}
	return Entry{Time: time.Unix(0, ts), Payload: payload}, nil
}
