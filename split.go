package dirt

import (
	"bufio"
	"io"

	"github.com/bcongdon/dirt/internal/pkg/dirtfs"
	humanize "github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
)

// maxLineSize bounds the length of a single input record.
const maxLineSize = 16 * 1024 * 1024

// inputSplit is the byte range [StartOffset, EndOffset] of one input file.
//
// A split owns every line that starts after StartOffset and no later than
// EndOffset+1. The line under StartOffset is left to the previous split,
// which reads past its own end to finish it. The first split of a file
// also owns the line at offset 0.
type inputSplit struct {
	Filename    string
	StartOffset int64
	EndOffset   int64 // inclusive
}

// Size returns the number of bytes in the split's range.
func (s inputSplit) Size() int64 {
	return s.EndOffset - s.StartOffset + 1
}

// readLines calls fn with each line s owns. r must be positioned at
// s.StartOffset. It returns the number of bytes consumed from r.
func (s inputSplit) readLines(r io.Reader, fn func(line string)) (int64, error) {
	var consumed int64
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	scanner.Split(countingSplitFunc(bufio.ScanLines, &consumed))

	if s.StartOffset != 0 {
		scanner.Scan()
	}

	// consumed is the offset of the next line relative to StartOffset.
	for consumed <= s.Size() && scanner.Scan() {
		fn(scanner.Text())
	}
	return consumed, scanner.Err()
}

// splitInputFile cuts file into consecutive splits of at most maxSplitSize
// bytes. An empty file has no splits.
func splitInputFile(file dirtfs.FileInfo, maxSplitSize int64) []inputSplit {
	splits := make([]inputSplit, 0)
	for start := int64(0); start < file.Size; start += maxSplitSize {
		end := start + maxSplitSize - 1
		if end >= file.Size {
			end = file.Size - 1
		}
		splits = append(splits, inputSplit{
			Filename:    file.Name,
			StartOffset: start,
			EndOffset:   end,
		})
	}
	return splits
}

// packInputSplits groups splits, in order, into map tasks of at most
// maxBinSize bytes. A split larger than maxBinSize gets a task of its own.
func packInputSplits(splits []inputSplit, maxBinSize int64) [][]inputSplit {
	bins := make([][]inputSplit, 0)
	var binSize, totalSize int64
	for _, split := range splits {
		last := len(bins) - 1
		if last < 0 || binSize+split.Size() > maxBinSize {
			bins = append(bins, []inputSplit{split})
			binSize = split.Size()
		} else {
			bins[last] = append(bins[last], split)
			binSize += split.Size()
		}
		totalSize += split.Size()
	}

	if len(bins) > 0 {
		log.Debugf("Packed %d splits into %d map tasks of %s on average",
			len(splits), len(bins), humanize.Bytes(uint64(totalSize/int64(len(bins)))))
	}
	return bins
}

// countingSplitFunc wraps split and adds the bytes it advances over to
// *bytesRead.
func countingSplitFunc(split bufio.SplitFunc, bytesRead *int64) bufio.SplitFunc {
	return func(data []byte, atEOF bool) (advance int, token []byte, err error) {
		adv, tok, err := split(data, atEOF)
		*bytesRead += int64(adv)
		return adv, tok, err
	}
}
