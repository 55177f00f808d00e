// Package output writes run results to disk: scraped records as a JSON
// array and collected URLs as a newline-delimited list.
package output

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	jsoniter "github.com/json-iterator/go"

	"github.com/kestrelmoor/harvester-cli/api/schemas"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// WriteRecords writes records to path as an indented JSON array. Fields a
// recipe could not extract appear as explicit nulls; an empty run writes an
// empty array, not an empty file.
func WriteRecords(records []*schemas.Record, path string) error {
	if records == nil {
		records = []*schemas.Record{}
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode records: %w", err)
	}
	data = append(data, '\n')
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write records to %s: %w", path, err)
	}
	return nil
}

// WriteURLList writes one URL per line.
func WriteURLList(urls []string, path string) error {
	var b strings.Builder
	for _, u := range urls {
		b.WriteString(u)
		b.WriteByte('\n')
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write url list to %s: %w", path, err)
	}
	return nil
}

// ReadURLList reads a newline-delimited URL list, skipping blank lines and
// surrounding whitespace.
func ReadURLList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open url list %s: %w", path, err)
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read url list %s: %w", path, err)
	}
	return urls, nil
}
