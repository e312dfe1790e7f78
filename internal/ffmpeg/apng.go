package ffmpeg

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

var pngMagic = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

// apngInfo is the timing of an animated PNG.
type apngInfo struct {
	Frames   int
	Duration float64
}

// FrameRate returns the average frames per second.
func (a apngInfo) FrameRate() float64 {
	if a.Duration <= 0 {
		return 0
	}
	return float64(a.Frames) / a.Duration
}

// readAPNG walks the PNG chunk list and sums the delays of every fcTL chunk.
// A zero delay denominator means hundredths of a second.
func readAPNG(path string) (apngInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return apngInfo{}, err
	}
	defer func() { _ = f.Close() }()
	return parseAPNG(bufio.NewReader(f))
}

func parseAPNG(r io.Reader) (apngInfo, error) {
	magic := make([]byte, len(pngMagic))
	if _, err := io.ReadFull(r, magic); err != nil || !bytes.Equal(magic, pngMagic) {
		return apngInfo{}, errors.New("not a png file")
	}

	var info apngInfo
	header := make([]byte, 8)
	for {
		if _, err := io.ReadFull(r, header); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return apngInfo{}, fmt.Errorf("read chunk header: %w", err)
		}
		length := binary.BigEndian.Uint32(header[:4])
		kind := string(header[4:8])

		if kind == "fcTL" && length >= 26 {
			body := make([]byte, length)
			if _, err := io.ReadFull(r, body); err != nil {
				return apngInfo{}, fmt.Errorf("read fcTL: %w", err)
			}
			num := binary.BigEndian.Uint16(body[20:22])
			den := binary.BigEndian.Uint16(body[22:24])
			if den == 0 {
				den = 100
			}
			info.Frames++
			info.Duration += float64(num) / float64(den)
			if _, err := io.CopyN(io.Discard, r, 4); err != nil {
				return apngInfo{}, fmt.Errorf("read fcTL crc: %w", err)
			}
			continue
		}

		if _, err := io.CopyN(io.Discard, r, int64(length)+4); err != nil {
			return apngInfo{}, fmt.Errorf("skip %s chunk: %w", kind, err)
		}
		if kind == "IEND" {
			break
		}
	}

	if info.Frames == 0 {
		return apngInfo{}, errors.New("png has no animation frames")
	}
	return info, nil
}
