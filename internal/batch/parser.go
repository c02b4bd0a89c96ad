package batch

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/manash/clickgenius/pkg/models"
)

var ErrNoInstructions = errors.New("no instructions found in file")

// Item is one scripted instruction. An empty Mode keeps the project's mode.
type Item struct {
	Index       int
	Instruction string
	Mode        models.Mode
}

type jsonItem struct {
	Instruction string `json:"instruction"`
	Mode        string `json:"mode,omitempty"`
}

func ParseFile(path string) ([]Item, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		return ParseJSON(file)
	case ".txt", "":
		return ParseText(file)
	default:
		return nil, fmt.Errorf("unsupported file format %q: use .txt or .json", ext)
	}
}

// ParseText reads one instruction per line. Blank lines and lines starting
// with # are skipped.
func ParseText(r io.Reader) ([]Item, error) {
	var items []Item
	scanner := bufio.NewScanner(r)
	index := 0

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		index++
		items = append(items, Item{
			Index:       index,
			Instruction: line,
		})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	if len(items) == 0 {
		return nil, ErrNoInstructions
	}

	return items, nil
}

func ParseJSON(r io.Reader) ([]Item, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var jsonItems []jsonItem
	if err := json.Unmarshal(data, &jsonItems); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}

	if len(jsonItems) == 0 {
		return nil, ErrNoInstructions
	}

	items := make([]Item, len(jsonItems))
	for i, ji := range jsonItems {
		if strings.TrimSpace(ji.Instruction) == "" {
			return nil, fmt.Errorf("item %d has empty instruction", i+1)
		}
		item := Item{Index: i + 1, Instruction: strings.TrimSpace(ji.Instruction)}
		if ji.Mode != "" {
			mode, err := models.ParseMode(ji.Mode)
			if err != nil {
				return nil, fmt.Errorf("item %d: %w", i+1, err)
			}
			item.Mode = mode
		}
		items[i] = item
	}

	return items, nil
}
