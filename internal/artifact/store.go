// Package artifact owns the audio files of the assistant: naming, writing,
// reading and merging per-segment WAVs and the merged recording of each
// message. Every path it hands out is relative to the store root, so
// absolute filesystem paths never reach the ledger.
//
// File names:
//
//	{message_id}_{segment_index}.wav   one synthesized segment
//	{message_id}_merged.wav            canonical merged recording
//	temp_{message_id}_*.wav            on-demand merge, removed before return
package artifact

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-audio/audio"
)

var (
	// ErrNotFound is returned when a referenced file is not on disk.
	ErrNotFound = errors.New("artifact not found")
	// ErrInvalidPath rejects identifiers or paths that would escape the root.
	ErrInvalidPath = errors.New("invalid artifact path")
	// ErrNothingToMerge means none of the requested segment files exist.
	ErrNothingToMerge = errors.New("no segment files to merge")
)

// Store reads and writes artifacts under Root.
type Store struct {
	Root string
}

// New creates the root directory if needed and returns a Store for it.
func New(root string) (*Store, error) {
	if strings.TrimSpace(root) == "" {
		return nil, ErrInvalidPath
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{Root: root}, nil
}

// SegmentName returns the file name of one segment.
func SegmentName(messageID string, index int) string {
	return messageID + "_" + strconv.Itoa(index) + ".wav"
}

// MergedName returns the file name of a message's merged recording.
func MergedName(messageID string) string {
	return messageID + "_merged.wav"
}

// WriteSegment persists one segment WAV, overwriting a previous attempt,
// and returns its relative path.
func (s *Store) WriteSegment(messageID string, index int, wavBytes []byte) (string, error) {
	if err := checkID(messageID); err != nil {
		return "", err
	}
	if index < 0 {
		return "", fmt.Errorf("%w: negative segment index", ErrInvalidPath)
	}
	name := SegmentName(messageID, index)
	return name, s.writeAtomic(name, wavBytes)
}

// WriteMerged persists a message's merged WAV and returns its relative path.
func (s *Store) WriteMerged(messageID string, wavBytes []byte) (string, error) {
	if err := checkID(messageID); err != nil {
		return "", err
	}
	name := MergedName(messageID)
	return name, s.writeAtomic(name, wavBytes)
}

// Read returns the bytes stored at rel, or ErrNotFound.
func (s *Store) Read(rel string) ([]byte, error) {
	abs, err := s.abs(rel)
	if err != nil {
		return nil, err
	}
	b, err := os.ReadFile(abs)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, rel)
	}
	return b, err
}

// Exists reports whether rel names a regular file under the root.
func (s *Store) Exists(rel string) bool {
	abs, err := s.abs(rel)
	if err != nil {
		return false
	}
	fi, err := os.Stat(abs)
	return err == nil && fi.Mode().IsRegular()
}

// Remove deletes rel. A missing file is not an error.
func (s *Store) Remove(rel string) error {
	abs, err := s.abs(rel)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Purge removes every path and returns how many were removed along with
// the joined errors of the ones that could not be.
func (s *Store) Purge(paths []string) (int, error) {
	var (
		n    int
		errs []error
	)
	for _, p := range paths {
		if p == "" {
			continue
		}
		if err := s.Remove(p); err != nil {
			errs = append(errs, err)
			continue
		}
		n++
	}
	return n, errors.Join(errs...)
}

// Part is one segment file to merge with the sample rate recorded for it.
type Part struct {
	Path       string
	SampleRate int
}

// Merged is the outcome of concatenating segment files.
type Merged struct {
	WAV        []byte
	SampleRate int
	Samples    int
	Used       int      // segment files merged
	Missing    []string // paths skipped because they were not on disk
}

// Duration is the merged length in seconds.
func (m *Merged) Duration() float64 {
	if m.SampleRate <= 0 {
		return 0
	}
	return float64(m.Samples) / float64(m.SampleRate)
}

// Merge concatenates the sample data of parts in the given order. Missing
// files are skipped and reported in Merged.Missing. The merged rate is the
// first present segment's rate; uniform rates are assumed, not enforced.
func (s *Store) Merge(parts []Part) (*Merged, error) {
	out := &Merged{}
	var data []int
	for _, p := range parts {
		raw, err := s.Read(p.Path)
		if errors.Is(err, ErrNotFound) {
			out.Missing = append(out.Missing, p.Path)
			continue
		}
		if err != nil {
			return nil, err
		}
		buf, err := DecodeWAV(raw)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", p.Path, err)
		}
		if out.Used == 0 {
			out.SampleRate = buf.Format.SampleRate
			if out.SampleRate <= 0 {
				out.SampleRate = p.SampleRate
			}
		}
		data = append(data, buf.Data...)
		out.Used++
	}
	if out.Used == 0 {
		return out, ErrNothingToMerge
	}

	wavBytes, err := EncodeWAV(&audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: out.SampleRate},
		Data:           data,
		SourceBitDepth: BitDepth,
	})
	if err != nil {
		return nil, err
	}
	out.WAV = wavBytes
	out.Samples = len(data)
	return out, nil
}

// MergeToTemp merges parts through a temporary file under the root and
// returns the merged bytes as read back from it. The temporary file is
// removed on every return path.
func (s *Store) MergeToTemp(messageID string, parts []Part) (*Merged, error) {
	if err := checkID(messageID); err != nil {
		return nil, err
	}
	m, err := s.Merge(parts)
	if err != nil {
		return m, err
	}

	f, err := os.CreateTemp(s.Root, "temp_"+messageID+"_*.wav")
	if err != nil {
		return nil, err
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(m.WAV); err != nil {
		_ = f.Close()
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, err
	}
	b, err := os.ReadFile(f.Name())
	if err != nil {
		return nil, err
	}
	m.WAV = b
	return m, nil
}

func (s *Store) writeAtomic(name string, b []byte) error {
	tmp, err := os.CreateTemp(s.Root, ".write_*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(b); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(s.Root, name))
}

func (s *Store) abs(rel string) (string, error) {
	if rel == "" || !filepath.IsLocal(rel) {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, rel)
	}
	return filepath.Join(s.Root, rel), nil
}

func checkID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || strings.Contains(id, "..") {
		return fmt.Errorf("%w: message id %q", ErrInvalidPath, id)
	}
	return nil
}
