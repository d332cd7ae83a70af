// Package framecodec encodes and decodes the canonical frame sequence
// to and from its fixed-layout binary container.
//
// Layout (little-endian, no padding):
//
//	magic            8 bytes   "RLFRAME\0"
//	version          uint16    = 1
//	frame_count      uint32
//	per frame:
//	  time           float32
//	  delta          float32
//	  ball position  float32 x3
//	  ball rotation  float32 x4
//	  ball velocity  float32 x3
//	  car_count      uint16
//	  per car:
//	    id_len       uint8
//	    id_bytes     [id_len] UTF-8 PlayerKey
//	    position     float32 x3
//	    rotation     float32 x4
//	    boost        uint8
package framecodec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/rlviewer/telemetry/internal/model"
)

// Magic is the 8-byte container signature including the trailing NUL.
const Magic = "RLFRAME\x00"

// Version is the only container version this codec reads or writes.
const Version uint16 = 1

// minFrameSize is the smallest possible encoded frame: time, delta, the
// ball triple, and a zero car count.
const minFrameSize = 4 + 4 + (3+4+3)*4 + 2

var (
	// ErrBadMagic is returned when the container signature is absent.
	ErrBadMagic = errors.New("framecodec: not a frame container (bad magic)")
	// ErrBadVersion is returned for any version other than Version.
	// There is no forward-compat guess-parsing.
	ErrBadVersion = errors.New("framecodec: unsupported container version")
	// ErrTruncated is returned when the stream ends mid-frame.
	ErrTruncated = errors.New("framecodec: truncated frame data")
)

// zeroQuat is an invalid rotation; it marks an absent sample and is
// replaced by the identity quaternion on encode.
var zeroQuat = [4]float64{}

func normalizeRotation(r [4]float64) [4]float64 {
	if r == zeroQuat {
		return model.IdentityRotation
	}
	return r
}

func clampBoost(boost int) uint8 {
	if boost < 0 {
		return 0
	}
	if boost > 255 {
		return 255
	}
	return uint8(boost)
}

func writeFloats(buf *bytes.Buffer, vals ...float64) {
	for _, v := range vals {
		binary.Write(buf, binary.LittleEndian, float32(v))
	}
}

// Encode serializes the frame sequence into the binary layout. Car ids
// longer than 255 bytes are truncated to fit the uint8 length prefix;
// absent rotations and out-of-range boost values fall back to defaults
// rather than failing the write. Cars are written in sorted key order so
// the output is deterministic.
func Encode(frames []model.Frame) []byte {
	buf := &bytes.Buffer{}
	buf.WriteString(Magic)
	binary.Write(buf, binary.LittleEndian, Version)
	binary.Write(buf, binary.LittleEndian, uint32(len(frames)))

	for _, frame := range frames {
		writeFloats(buf, frame.Time, frame.Delta)
		writeFloats(buf, frame.Ball.Position[:]...)
		rot := normalizeRotation(frame.Ball.Rotation)
		writeFloats(buf, rot[:]...)
		writeFloats(buf, frame.Ball.Velocity[:]...)

		keys := make([]string, 0, len(frame.Cars))
		for key := range frame.Cars {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		binary.Write(buf, binary.LittleEndian, uint16(len(keys)))
		for _, key := range keys {
			car := frame.Cars[key]
			id := []byte(key)
			if len(id) > 255 {
				id = id[:255]
			}
			buf.WriteByte(uint8(len(id)))
			buf.Write(id)
			writeFloats(buf, car.Position[:]...)
			carRot := normalizeRotation(car.Rotation)
			writeFloats(buf, carRot[:]...)
			buf.WriteByte(clampBoost(car.Boost))
		}
	}

	return buf.Bytes()
}

type reader struct {
	data []byte
	off  int
}

func (r *reader) take(n int) ([]byte, error) {
	if r.off+n > len(r.data) {
		return nil, ErrTruncated
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) uint8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) uint16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

func (r *reader) uint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) float() (float64, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return float64(math.Float32frombits(binary.LittleEndian.Uint32(b))), nil
}

func (r *reader) floats3() ([3]float64, error) {
	var out [3]float64
	for i := range out {
		v, err := r.float()
		if err != nil {
			return out, err
		}
		out[i] = v
	}
	return out, nil
}

func (r *reader) floats4() ([4]float64, error) {
	var out [4]float64
	for i := range out {
		v, err := r.float()
		if err != nil {
			return out, err
		}
		out[i] = v
	}
	return out, nil
}

// Decode parses a binary frame container. The magic is validated before
// anything else is read; on mismatch an empty frame list and ErrBadMagic
// are returned, never a partial result.
func Decode(data []byte) ([]model.Frame, error) {
	if len(data) < len(Magic) || string(data[:len(Magic)]) != Magic {
		return []model.Frame{}, ErrBadMagic
	}

	r := &reader{data: data, off: len(Magic)}

	version, err := r.uint16()
	if err != nil {
		return []model.Frame{}, err
	}
	if version != Version {
		return []model.Frame{}, fmt.Errorf("%w: %d", ErrBadVersion, version)
	}

	count, err := r.uint32()
	if err != nil {
		return []model.Frame{}, err
	}

	// The declared count is untrusted; cap the preallocation by what the
	// remaining bytes could possibly hold so a corrupt header cannot
	// request an absurd backing array. A short payload still fails with
	// ErrTruncated in the read loop.
	alloc := int(count)
	if max := (len(data) - r.off) / minFrameSize; alloc > max {
		alloc = max
	}
	frames := make([]model.Frame, 0, alloc)
	for i := uint32(0); i < count; i++ {
		frame, err := r.readFrame()
		if err != nil {
			return []model.Frame{}, err
		}
		frames = append(frames, frame)
	}
	return frames, nil
}

func (r *reader) readFrame() (model.Frame, error) {
	var frame model.Frame
	var err error

	if frame.Time, err = r.float(); err != nil {
		return frame, err
	}
	if frame.Delta, err = r.float(); err != nil {
		return frame, err
	}
	if frame.Ball.Position, err = r.floats3(); err != nil {
		return frame, err
	}
	if frame.Ball.Rotation, err = r.floats4(); err != nil {
		return frame, err
	}
	if frame.Ball.Velocity, err = r.floats3(); err != nil {
		return frame, err
	}

	carCount, err := r.uint16()
	if err != nil {
		return frame, err
	}
	frame.Cars = make(map[string]model.CarState, carCount)
	for i := uint16(0); i < carCount; i++ {
		idLen, err := r.uint8()
		if err != nil {
			return frame, err
		}
		id, err := r.take(int(idLen))
		if err != nil {
			return frame, err
		}

		var car model.CarState
		if car.Position, err = r.floats3(); err != nil {
			return frame, err
		}
		if car.Rotation, err = r.floats4(); err != nil {
			return frame, err
		}
		boost, err := r.uint8()
		if err != nil {
			return frame, err
		}
		car.Boost = int(boost)
		frame.Cars[string(id)] = car
	}
	return frame, nil
}
