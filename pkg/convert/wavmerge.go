package convert

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"
)

// MergeWAV concatenates the ordered WAV inputs into output without an
// external converter. All inputs must share one format.
func MergeWAV(orderedInputs []string, output string) error {
	if len(orderedInputs) == 0 {
		return fmt.Errorf("wav merge: no inputs")
	}

	var streamers []beep.Streamer
	var files []*os.File
	var format beep.Format

	closeAll := func() {
		for _, f := range files {
			f.Close()
		}
	}
	defer closeAll()

	for i, path := range orderedInputs {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("wav merge: %w", err)
		}
		files = append(files, f)

		streamer, fmt_, err := wav.Decode(f)
		if err != nil {
			return fmt.Errorf("wav merge: decode %s: %w", filepath.Base(path), err)
		}

		if i == 0 {
			format = fmt_
		} else if fmt_ != format {
			return fmt.Errorf("wav merge: %s format %+v differs from %+v", filepath.Base(path), fmt_, format)
		}
		streamers = append(streamers, streamer)
	}

	out, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("wav merge: %w", err)
	}

	if err := wav.Encode(out, beep.Seq(streamers...), format); err != nil {
		out.Close()
		os.Remove(output)
		return fmt.Errorf("wav merge: encode: %w", err)
	}
	return out.Close()
}
