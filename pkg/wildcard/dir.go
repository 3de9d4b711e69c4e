package wildcard

import (
	"bufio"
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/benjaminschreck/go-dynprompts/internal/logging"
)

// DirStore serves wildcards loaded from a directory tree.
//
// A file colors.txt holds one value per line; blank lines and lines
// starting with # are skipped. A YAML or JSON file holding a list
// provides the values of its own name, and a mapping nests names below
// it, so people.yaml with key "names" yields "people/names". Names are
// slash separated paths relative to the root, without extension.
type DirStore struct {
	root string

	mu   sync.RWMutex
	data snapshot
}

// OpenDir loads every wildcard file below root.
func OpenDir(root string) (*DirStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("wildcard directory is required")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open wildcard directory %s", root)
	}
	if !info.IsDir() {
		return nil, errors.Newf("%s is not a directory", root)
	}

	s := &DirStore{root: filepath.Clean(root)}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Root returns the watched directory.
func (s *DirStore) Root() string {
	return s.root
}

func (s *DirStore) GetAllValues(name string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.values(name)
}

func (s *DirStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.names()
}

// Reload reads the directory again and swaps in the new contents. On
// error the previous contents stay in place.
func (s *DirStore) Reload() error {
	data, err := loadDir(s.root)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.data = data
	s.mu.Unlock()

	logging.WithFields(logging.Fields{
		"root":  s.root,
		"names": len(data),
	}).Debug("Loaded wildcard directory")
	return nil
}

func loadDir(root string) (snapshot, error) {
	data := make(snapshot)
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		ext := strings.ToLower(filepath.Ext(p))
		if !isWildcardFile(ext) {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		name := filepath.ToSlash(strings.TrimSuffix(rel, filepath.Ext(rel)))

		content, err := os.ReadFile(p)
		if err != nil {
			return errors.Wrapf(err, "failed to read wildcard file %s", rel)
		}
		if ext == ".txt" {
			data[name] = append(data[name], parseTextValues(content)...)
			return nil
		}
		if err := parseStructuredValues(data, name, content); err != nil {
			return errors.Wrapf(err, "failed to parse wildcard file %s", rel)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load wildcards from %s", root)
	}

	for name, vals := range data {
		if len(vals) == 0 {
			delete(data, name)
		}
	}
	return data, nil
}

func isWildcardFile(ext string) bool {
	switch ext {
	case ".txt", ".yaml", ".yml", ".json":
		return true
	default:
		return false
	}
}

func parseTextValues(content []byte) []string {
	var vals []string
	scanner := bufio.NewScanner(bytes.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		vals = append(vals, line)
	}
	return vals
}

func parseStructuredValues(data snapshot, name string, content []byte) error {
	var doc interface{}
	if err := yaml.Unmarshal(content, &doc); err != nil {
		return err
	}
	return flatten(data, name, doc)
}

func flatten(data snapshot, name string, node interface{}) error {
	switch v := node.(type) {
	case nil:
		return nil
	case []interface{}:
		for i, item := range v {
			switch item.(type) {
			case map[string]interface{}, []interface{}:
				return errors.Newf("%s[%d]: nested collections are not allowed in a value list", name, i)
			}
			if item == nil {
				continue
			}
			data[name] = append(data[name], scalarString(item))
		}
	case map[string]interface{}:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := flatten(data, name+"/"+k, v[k]); err != nil {
				return err
			}
		}
	case map[interface{}]interface{}:
		// yaml.v3 uses this form when a key is not a string
		m := make(map[string]interface{}, len(v))
		for k, val := range v {
			m[fmt.Sprint(k)] = val
		}
		return flatten(data, name, m)
	default:
		data[name] = append(data[name], scalarString(v))
	}
	return nil
}

func scalarString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
