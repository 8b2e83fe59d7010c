package pkg

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Record describes one installed package: which version it is and every file
// the install placed below the prefix. Records are what allows a later install
// of the same package to remove the previous version first.
type Record struct {
	Package   string    `json:"package"`
	Version   string    `json:"version"`
	Installed time.Time `json:"installed"`
	Files     []string  `json:"files"`
}

// RecordDir returns the directory that holds the install records below the
// given prefix root.
func RecordDir(root string) string {
	return filepath.Join(root, "var", "lib", "spkg", "installed")
}

func recordPath(root, name string) string {
	return filepath.Join(RecordDir(root), name+".json")
}

// WriteRecord stores the given record below the prefix root. The record
// directory is created as needed.
func WriteRecord(root string, rec *Record) error {
	dir := RecordDir(root)
	err := os.MkdirAll(dir, os.FileMode(0770))
	if err != nil {
		return eris.Wrapf(err, "Failed to create record directory %s", dir)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return eris.Wrapf(err, "Failed to serialize record for %s", rec.Package)
	}

	dest := recordPath(root, rec.Package)
	err = ioutil.WriteFile(dest, data, os.FileMode(0660))
	if err != nil {
		return eris.Wrapf(err, "Failed to write record %s", dest)
	}

	return nil
}

// ReadRecord loads the install record for the named package. It returns nil
// without an error if no record exists.
func ReadRecord(root, name string) (*Record, error) {
	data, err := ioutil.ReadFile(recordPath(root, name))
	if err != nil {
		if eris.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "Failed to read record for %s", name)
	}

	var rec Record
	err = json.Unmarshal(data, &rec)
	if err != nil {
		return nil, eris.Wrapf(err, "Failed to parse record for %s", name)
	}

	return &rec, nil
}

// ListRecords returns the names of all packages that have an install record
// below the given prefix root.
func ListRecords(root string) ([]string, error) {
	entries, err := ioutil.ReadDir(RecordDir(root))
	if err != nil {
		if eris.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "Failed to list records in %s", RecordDir(root))
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		names = append(names, strings.TrimSuffix(entry.Name(), ".json"))
	}

	sort.Strings(names)
	return names, nil
}

// Snapshot lists every file below the given root as a sorted list of
// slash-separated relative paths. Directories themselves are not recorded; a
// missing root yields an empty list.
func Snapshot(root string) ([]string, error) {
	files := []string{}
	_, err := os.Stat(root)
	if eris.Is(err, os.ErrNotExist) {
		return files, nil
	}
	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, eris.Wrapf(err, "Failed to walk %s", root)
	}

	sort.Strings(files)
	return files, nil
}

// NewFiles returns the entries of after that are not present in before. Both
// lists have to be sorted the way Snapshot returns them.
func NewFiles(before, after []string) []string {
	result := []string{}
	i := 0
	for _, item := range after {
		for i < len(before) && before[i] < item {
			i++
		}

		if i < len(before) && before[i] == item {
			continue
		}
		result = append(result, item)
	}

	return result
}

// RemovePrior deletes every file the previous install of the named package
// placed below the prefix, prunes directories that became empty and drops the
// record. Files that are already gone are not an error. It reports whether a
// prior version was found.
func RemovePrior(root, name string) (bool, error) {
	rec, err := ReadRecord(root, name)
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, nil
	}

	dirs := map[string]bool{}
	for _, rel := range rec.Files {
		dest := filepath.Join(root, filepath.FromSlash(rel))
		if !strings.HasPrefix(dest, root+string(filepath.Separator)) {
			return true, eris.Errorf("Record for %s lists %s which is outside the prefix", name, rel)
		}

		err := os.Remove(dest)
		if err != nil && !eris.Is(err, os.ErrNotExist) {
			return true, eris.Wrapf(err, "Failed to remove %s", dest)
		}

		dirs[filepath.Dir(dest)] = true
	}

	pruneEmptyDirs(root, dirs)

	err = os.Remove(recordPath(root, name))
	if err != nil && !eris.Is(err, os.ErrNotExist) {
		return true, eris.Wrapf(err, "Failed to remove record for %s", name)
	}

	return true, nil
}

// RemoveGlobs deletes everything below the prefix that matches one of the
// given glob patterns. Recipes declare these to clean up installs that predate
// install records.
func RemoveGlobs(root string, patterns []string) error {
	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(root, filepath.FromSlash(pattern)))
		if err != nil {
			return eris.Wrapf(err, "Failed to resolve cleanup pattern %s", pattern)
		}

		for _, match := range matches {
			err := os.RemoveAll(match)
			if err != nil {
				return eris.Wrapf(err, "Failed to remove %s", match)
			}
		}
	}

	return nil
}

func pruneEmptyDirs(root string, dirs map[string]bool) {
	for dir := range dirs {
		for dir != root && strings.HasPrefix(dir, root) {
			err := os.Remove(dir)
			if err != nil {
				break
			}
			dir = filepath.Dir(dir)
		}
	}
}
