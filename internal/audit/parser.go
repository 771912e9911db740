package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
)

const maxLineBytes = 2 << 20

// ParseFile reads a JSONL audit log. A missing file yields no entries.
func ParseFile(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	entries, _, err := Read(f)
	return entries, err
}

// Read decodes one Entry per line. Blank lines are ignored; lines that do not
// decode (a torn final write, manual edits) are counted in skipped.
func Read(r io.Reader) (entries []Entry, skipped int, err error) {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64<<10), maxLineBytes)
	for s.Scan() {
		line := bytes.TrimSpace(s.Bytes())
		if len(line) == 0 {
			continue
		}
		var e Entry
		if json.Unmarshal(line, &e) != nil {
			skipped++
			continue
		}
		entries = append(entries, e)
	}
	if err := s.Err(); err != nil {
		return nil, skipped, fmt.Errorf("scan audit log: %w", err)
	}
	return entries, skipped, nil
}
