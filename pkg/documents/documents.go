package documents

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/go-go-golems/synthgen/pkg/turns"
	"github.com/mb0/glob"
	"github.com/pkg/errors"
)

const DefaultPattern = "*.md"

// Walk lists the files under root whose base name matches pattern, sorted.
// Hidden directories such as .git or .obsidian are not entered.
func Walk(root string, pattern string) ([]string, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	// Reject malformed patterns before walking.
	if _, err := glob.Match(pattern, ""); err != nil {
		return nil, errors.Wrapf(err, "invalid document pattern %q", pattern)
	}

	ret := []string{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		ok, err := glob.Match(pattern, d.Name())
		if err != nil {
			return err
		}
		if ok {
			ret = append(ret, path)
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "could not walk %s", root)
	}

	sort.Strings(ret)
	return ret, nil
}

// Load reads one document. Its name is the path as given, which is the key
// stored in the resume ledger. HTML files are reduced to their text.
func Load(path string) (turns.Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return turns.Document{}, errors.Wrapf(err, "could not read document %s", path)
	}
	content := string(b)
	if isHTML(path) {
		content, err = htmlText(content)
		if err != nil {
			return turns.Document{}, errors.Wrapf(err, "could not read document %s", path)
		}
	}
	return turns.Document{Name: path, Content: content}, nil
}
