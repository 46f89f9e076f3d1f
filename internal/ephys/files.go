package ephys

import (
	"bufio"
	"encoding/binary"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// LoadRawRecording reads a headerless little-endian float32 file with frames
// interleaved across channels (frame0ch0, frame0ch1, ..., frame1ch0, ...).
func LoadRawRecording(path string, numChannels int, samplingFrequency float64) (*MemoryRecording, error) {
	if numChannels <= 0 {
		return nil, fmt.Errorf("%w: channel count %d", ErrBadShape, numChannels)
	}
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open recording: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat recording: %w", err)
	}
	frameBytes := int64(numChannels) * 4
	if info.Size()%frameBytes != 0 {
		return nil, fmt.Errorf("%w: file size %d is not a multiple of %d channels x 4 bytes",
			ErrBadShape, info.Size(), numChannels)
	}
	frames := int(info.Size() / frameBytes)
	return ReadRawRecording(bufio.NewReader(f), numChannels, frames, samplingFrequency)
}

// ReadRawRecording reads frames x numChannels interleaved float32 samples from r.
func ReadRawRecording(r io.Reader, numChannels, frames int, samplingFrequency float64) (*MemoryRecording, error) {
	traces := make([][]float32, numChannels)
	for ch := range traces {
		traces[ch] = make([]float32, frames)
	}
	row := make([]float32, numChannels)
	for i := 0; i < frames; i++ {
		if err := binary.Read(r, binary.LittleEndian, row); err != nil {
			return nil, fmt.Errorf("read frame %d: %w", i, err)
		}
		for ch, v := range row {
			traces[ch][i] = v
		}
	}
	return NewMemoryRecording(traces, samplingFrequency)
}

// WriteRawRecording writes a MemoryRecording in the layout read by ReadRawRecording.
func WriteRawRecording(w io.Writer, rec *MemoryRecording) error {
	row := make([]float32, rec.NumChannels())
	for i := int64(0); i < rec.NumFrames(); i++ {
		for ch := range row {
			row[ch] = rec.traces[ch][i]
		}
		if err := binary.Write(w, binary.LittleEndian, row); err != nil {
			return fmt.Errorf("write frame %d: %w", i, err)
		}
	}
	return nil
}

// ReadSpikeTrainsCSV parses "unit_id,frame" rows into a MemorySorting. A header
// row is accepted when its first field is not numeric. Units appear in the
// order they are first seen.
func ReadSpikeTrainsCSV(r io.Reader) (*MemorySorting, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 2
	cr.TrimLeadingSpace = true

	trains := make(map[UnitID][]int64)
	var order []UnitID
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse spike csv: %w", err)
		}
		id, err := strconv.Atoi(strings.TrimSpace(rec[0]))
		if err != nil {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("line %d: invalid unit id %q: %w", line, rec[0], err)
		}
		frame, err := strconv.ParseInt(strings.TrimSpace(rec[1]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid frame %q: %w", line, rec[1], err)
		}
		uid := UnitID(id)
		if _, seen := trains[uid]; !seen {
			order = append(order, uid)
		}
		trains[uid] = append(trains[uid], frame)
	}

	s := NewMemorySorting()
	for _, id := range order {
		s.AddUnit(id, trains[id])
	}
	return s, nil
}

// WriteSpikeTrainsCSV writes every unit of s as "unit_id,frame" rows with a header.
func WriteSpikeTrainsCSV(w io.Writer, s Sorting) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"unit_id", "frame"}); err != nil {
		return err
	}
	for _, id := range s.UnitIDs() {
		train, err := s.SpikeTrain(id)
		if err != nil {
			return err
		}
		for _, f := range train {
			if err := cw.Write([]string{strconv.Itoa(int(id)), strconv.FormatInt(f, 10)}); err != nil {
				return err
			}
		}
	}
	cw.Flush()
	return cw.Error()
}
