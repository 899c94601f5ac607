package corpus

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
	"recipechat/internal/domain"
	"recipechat/internal/port"
)

var _ port.CorpusSource = (*Loader)(nil)

// Loader reads recipe records from the files a Walker finds under root.
// Supported formats: JSON arrays (or a single object), JSON lines and YAML
// lists, chosen by file extension.
type Loader struct {
	root   string
	walker *Walker
	logger *slog.Logger
}

func NewLoader(root string, includes, excludes []string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		root:   root,
		walker: NewWalker(includes, excludes),
		logger: logger.With("component", "corpus"),
	}
}

// Root returns the corpus directory.
func (l *Loader) Root() string {
	return l.root
}

// Recipes loads every record. Duplicate ids keep the last record seen in
// path order.
func (l *Loader) Recipes(ctx context.Context) ([]domain.Recipe, error) {
	files, err := l.walker.Walk(l.root)
	if err != nil {
		return nil, fmt.Errorf("walk corpus %s: %w", l.root, err)
	}

	var recipes []domain.Recipe
	position := make(map[int64]int)
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		records, err := ReadFile(f.Path)
		if err != nil {
			return nil, err
		}
		for _, r := range records {
			if i, ok := position[r.ID]; ok {
				l.logger.Warn("duplicate recipe id", "id", r.ID, "file", f.RelPath)
				recipes[i] = r
				continue
			}
			position[r.ID] = len(recipes)
			recipes = append(recipes, r)
		}
		l.logger.Debug("loaded corpus file", "file", f.RelPath, "records", len(records))
	}

	l.logger.Info("corpus loaded", "files", len(files), "recipes", len(recipes))
	return recipes, nil
}

// ReadFile decodes the recipes in a single file.
func ReadFile(path string) ([]domain.Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var recipes []domain.Recipe
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl", ".ndjson":
		recipes, err = decodeJSONLines(data)
	case ".json":
		recipes, err = decodeJSON(data)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &recipes)
	default:
		return nil, fmt.Errorf("%s: unsupported corpus format", path)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return recipes, nil
}

func decodeJSON(data []byte) ([]domain.Recipe, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	if data[0] == '{' {
		var r domain.Recipe
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, err
		}
		return []domain.Recipe{r}, nil
	}
	var recipes []domain.Recipe
	if err := json.Unmarshal(data, &recipes); err != nil {
		return nil, err
	}
	return recipes, nil
}

func decodeJSONLines(data []byte) ([]domain.Recipe, error) {
	var recipes []domain.Recipe
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		var r domain.Recipe
		if err := json.Unmarshal(text, &r); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		recipes = append(recipes, r)
	}
	return recipes, scanner.Err()
}
