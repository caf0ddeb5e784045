package diaglog

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// Version is injected at link time from the main package; defaults to "dev".
var Version = "dev"

// DiagBundle is the first line written to the export file (valid NDJSON).
type DiagBundle struct {
	ExportedAt string `json:"exported_at"`
	Version    string `json:"screencap_version"`
	GoVersion  string `json:"go_version"`
	OS         string `json:"os"`
	Arch       string `json:"arch"`
	LogFile    string `json:"log_file"`
	EntryCount int    `json:"entry_count"`
}

// Export copies the NDJSON entries of logPath into
// dest/screencap-diag-<ts>.ndjson behind a DiagBundle header line. It
// returns the written path and the number of entries copied.
func Export(logPath, dest string) (path string, lines int, err error) {
	current, err := readEntries(logPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", 0, fmt.Errorf("log file not found at %s: %w", logPath, os.ErrNotExist)
		}
		return "", 0, fmt.Errorf("log file unreadable: %w", err)
	}
	// The rotated generation, when present, precedes the live file.
	previous, err := readEntries(logPath + previousSuffix)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", 0, fmt.Errorf("rotated log unreadable: %w", err)
	}
	rawLines := append(previous, current...)

	tstamp := time.Now().UTC().Format("20060102T150405")
	outPath := filepath.Join(dest, "screencap-diag-"+tstamp+".ndjson")

	out, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return "", 0, fmt.Errorf("output file could not be created: %w", err)
	}
	defer func() { _ = out.Close() }()

	bundle := DiagBundle{
		ExportedAt: time.Now().UTC().Format(time.RFC3339),
		Version:    Version,
		GoVersion:  runtime.Version(),
		OS:         runtime.GOOS,
		Arch:       runtime.GOARCH,
		LogFile:    logPath,
		EntryCount: len(rawLines),
	}
	header, merr := json.Marshal(bundle)
	if merr != nil {
		return "", 0, merr
	}
	if _, err := out.Write(append(header, '\n')); err != nil {
		return "", 0, err
	}

	w := bufio.NewWriter(out)
	for _, line := range rawLines {
		if _, err := w.Write(append(line, '\n')); err != nil {
			return "", 0, err
		}
	}
	if err := w.Flush(); err != nil {
		return "", 0, err
	}

	return outPath, len(rawLines), nil
}

// readEntries returns the non-blank lines of an NDJSON file.
func readEntries(path string) ([][]byte, error) {
	src, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = src.Close() }()

	var entries [][]byte
	scanner := bufio.NewScanner(src)
	// each generation is capped at 10 MB
	scanner.Buffer(make([]byte, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		if len(scanner.Bytes()) == 0 {
			continue
		}
		entries = append(entries, append([]byte(nil), scanner.Bytes()...))
	}
	return entries, scanner.Err()
}
