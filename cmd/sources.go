package cmd

import (
	"archive/tar"
	"archive/zip"
	"compress/bzip2"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
	"github.com/ulikunitz/xz"
	"gopkg.in/yaml.v3"

	"github.com/sagemath/sage-spkg/pkg"
)

// sourceSpec describes one upstream tarball in a package's checksums.yml.
type sourceSpec struct {
	Condition  string `yaml:"if,omitempty"`
	Rejections string `yaml:"ifNot,omitempty"`
	URL        string
	Dest       string
	Sha256     string
	Strip      int
	MarkExec   []string `yaml:"markExec,omitempty"`
}

type sourceConfig struct {
	Vars    map[string]string
	Sources map[string]sourceSpec
}

const (
	sourceConfigName = "checksums.yml"
	sourceStampsName = ".sources.stamps"
)

// fetchSources downloads, verifies and unpacks every upstream source the
// package declares. Sources whose stamp token is unchanged and whose
// destination still exists are skipped. A package without a checksums.yml has
// no upstream sources and nothing to do.
func fetchSources(pkgRoot string, update bool) error {
	cfg, cfgData, stamps, err := getSourceConfig(pkgRoot)
	if err != nil {
		if eris.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}

	err = downloadAndExtract(cfg, cfgData, stamps, pkgRoot, update)

	stampPath := filepath.Join(pkgRoot, sourceStampsName)
	stampData, jErr := json.Marshal(stamps)
	if jErr != nil {
		pkg.PrintError(jErr.Error())
	} else {
		jErr = ioutil.WriteFile(stampPath, stampData, os.FileMode(0660))
		if jErr != nil {
			pkg.PrintError(jErr.Error())
		}
	}

	return err
}

func getProgressBar(length int64, desc string) *progressbar.ProgressBar {
	if os.Getenv("CI") == "true" {
		return progressbar.NewOptions64(length, progressbar.OptionSetVisibility(false))
	}

	return progressbar.DefaultBytes(length, desc)
}

func getSourceConfig(pkgRoot string) (sourceConfig, string, map[string]string, error) {
	var cfg sourceConfig
	cfgPath := filepath.Join(pkgRoot, sourceConfigName)
	cfgData, err := ioutil.ReadFile(cfgPath)
	if err != nil {
		return cfg, "", nil, eris.Wrapf(err, "Could not open file %s.", cfgPath)
	}

	err = yaml.Unmarshal(cfgData, &cfg)
	if err != nil {
		return cfg, "", nil, eris.Wrapf(err, "Failed to parse %s.", cfgPath)
	}

	stamps := map[string]string{}
	stampPath := filepath.Join(pkgRoot, sourceStampsName)
	stampData, err := ioutil.ReadFile(stampPath)
	if err != nil {
		if !eris.Is(err, os.ErrNotExist) {
			return cfg, "", nil, eris.Wrapf(err, "Failed to read stamps file %s.", stampPath)
		}
	} else {
		err = json.Unmarshal(stampData, &stamps)
		if err != nil {
			return cfg, "", nil, eris.Wrapf(err, "Failed to parse JSON file %s.", stampPath)
		}
	}

	return cfg, string(cfgData), stamps, nil
}

var sourceVarMatcher = regexp.MustCompile(`\{([A-Z0-9_]+)\}`)

// evalConditions expands URL placeholders and reports whether the source
// applies on this platform.
func evalConditions(meta *sourceSpec, vars map[string]string) bool {
	meta.URL = sourceVarMatcher.ReplaceAllStringFunc(meta.URL, func(varName string) string {
		return vars[varName[1:len(varName)-1]]
	})

	for _, condition := range strings.Split(meta.Condition, ",") {
		if condition == "" {
			continue
		}

		value, ok := vars[strings.TrimSpace(condition)]
		if !ok || value == "" {
			return false
		}
	}

	for _, condition := range strings.Split(meta.Rejections, ",") {
		if condition == "" {
			continue
		}

		value, ok := vars[strings.TrimSpace(condition)]
		if ok && value != "" {
			return false
		}
	}
	return true
}

func downloadAndExtract(cfg sourceConfig, cfgData string, stamps map[string]string, pkgRoot string, update bool) error {
	client := &http.Client{
		Timeout: time.Minute * 30,
	}
	buf := make([]byte, 4096)

	vars := cfg.Vars
	if vars == nil {
		vars = map[string]string{}
	}
	vars[runtime.GOARCH] = "true"
	vars[runtime.GOOS] = "true"
	if os.Getenv("CI") == "true" {
		vars["ci"] = "true"
	}

	changes := map[string]string{}
	for name, meta := range cfg.Sources {
		// conditions are evaluated even in update mode because they expand the
		// URL placeholders
		skip := !evalConditions(&meta, vars)
		if skip && !update {
			continue
		}

		destPath := filepath.Join(pkgRoot, meta.Dest)
		destInfo, err := os.Stat(destPath)
		destExists := err == nil

		stampToken := meta.URL + "#" + meta.Sha256
		stamp, ok := stamps[name]
		if ok && stampToken == stamp && destExists {
			continue
		}

		pkg.PrintSubtask(name + ":  " + meta.URL)
		if meta.Sha256 == "" && !update {
			return eris.Errorf("Source %s doesn't have a checksum", name)
		}

		tmpPath := filepath.Join(pkgRoot, "source_dl.tmp")
		arHandle, err := os.Create(tmpPath)
		if err != nil {
			return eris.Wrapf(err, "Failed to create %s", tmpPath)
		}
		defer func() {
			arHandle.Close()
			os.Remove(tmpPath)
		}()

		resp, err := client.Get(meta.URL)
		if err != nil {
			return eris.Wrapf(err, "Failed to start download for %s", meta.URL)
		}
		defer resp.Body.Close()

		hash := sha256.New()
		bar := getProgressBar(resp.ContentLength, "     download")
		for {
			n, err := resp.Body.Read(buf)
			if err != nil && n < 1 {
				if err == io.EOF {
					break
				}
				return eris.Wrapf(err, "Failed during download of %s", meta.URL)
			}

			_, err = hash.Write(buf[:n])
			if err != nil {
				return eris.Wrapf(err, "Failed to calculate checksum for %s", meta.URL)
			}

			_, err = arHandle.Write(buf[:n])
			if err != nil {
				return eris.Wrapf(err, "Failed to write download to file %s", tmpPath)
			}

			bar.Write(buf[:n])
		}
		bar.Finish()
		resp.Body.Close()

		digest := hex.EncodeToString(hash.Sum(nil))
		if digest != meta.Sha256 {
			if update {
				fmt.Println("      Updating checksum")
				changes[name] = digest
			} else {
				return eris.Errorf("Checksum mismatch for %s", meta.URL)
			}
		}

		if skip {
			continue
		}

		if destExists {
			pkg.PrintSubtask(fmt.Sprintf("Remove %s", destPath))
			if destInfo.IsDir() {
				err = os.RemoveAll(destPath)
			} else {
				err = os.Remove(destPath)
			}
			if err != nil {
				return err
			}
		}

		extractor, err := getExtractor(meta.URL)
		if err != nil {
			return err
		}

		arHandle.Seek(0, io.SeekStart)
		bar = getProgressBar(resp.ContentLength, "      extract")
		err = extractor(arHandle, bar, destPath, meta)
		if err != nil {
			return err
		}

		if runtime.GOOS != "windows" {
			// .zip files don't carry permissions which means we have to manually
			// fix permissions for binaries in .zip files
			for _, binPath := range meta.MarkExec {
				binPath = filepath.Join(destPath, binPath)
				fi, err := os.Stat(binPath)
				if err != nil {
					return eris.Wrapf(err, "Failed to read permissions for %s", binPath)
				}

				err = os.Chmod(binPath, fi.Mode()|0700)
				if err != nil {
					return eris.Wrapf(err, "Failed to mark %s as executable", binPath)
				}
			}
		}

		stamps[name] = stampToken
	}

	if update && len(changes) > 0 {
		pkg.PrintTask("Updating " + sourceConfigName)
		generated, err := applyChecksumChanges(cfgData, cfg, changes)
		if err != nil {
			return err
		}

		return ioutil.WriteFile(filepath.Join(pkgRoot, sourceConfigName), []byte(generated), os.FileMode(0660))
	}

	return nil
}

// applyChecksumChanges rewrites the sha256 entries in the raw config text so
// comments and formatting survive an --update run.
func applyChecksumChanges(cfgData string, cfg sourceConfig, changes map[string]string) (string, error) {
	generated := cfgData
	for name, newChecksum := range changes {
		pos := strings.Index(generated, name+":\n")
		if pos == -1 {
			return "", eris.Errorf("Failed to find the section for %s!", name)
		}

		oldChecksum := cfg.Sources[name].Sha256
		subPos := strings.Index(generated[pos:], "sha256: "+oldChecksum)
		if subPos == -1 {
			if oldChecksum != "" {
				return "", eris.Errorf("Couldn't find checksum section for %s.", name)
			}

			start := pos + len(name) + 2
			generated = generated[:start] + "    sha256: " + newChecksum + "\n" + generated[start:]
		} else {
			start := pos + subPos + 8
			end := start + len(oldChecksum)
			generated = generated[:start] + newChecksum + generated[end:]
		}
	}

	return generated, nil
}

type archiveExtractor func(*os.File, *progressbar.ProgressBar, string, sourceSpec) error

func openExtractorDest(destPath string, item string, strip int) (*os.File, string, error) {
	// normalize the path and strip the first elements
	pathParts := strings.Split(filepath.Clean(item), string(filepath.Separator))
	if strip >= len(pathParts) {
		return nil, "/", nil
	}

	dest := filepath.Join(destPath, strings.Join(pathParts[strip:], string(filepath.Separator)))
	if dest == destPath {
		return nil, "/", nil
	}

	destParent := filepath.Dir(dest)
	err := os.MkdirAll(destParent, os.FileMode(0770))
	if err != nil {
		return nil, "", eris.Wrapf(err, "Failed to create directory %s", destParent)
	}

	destHandle, err := os.Create(dest)
	if err != nil {
		return nil, "", eris.Wrapf(err, "Failed to create file %s", dest)
	}

	return destHandle, dest, nil
}

func getExtractor(url string) (archiveExtractor, error) {
	if strings.HasSuffix(url, ".zip") {
		return extractZip, nil
	}

	if strings.HasSuffix(url, ".tar.gz") {
		return func(f *os.File, bar *progressbar.ProgressBar, destPath string, spec sourceSpec) error {
			reader, err := gzip.NewReader(f)
			if err != nil {
				return err
			}
			defer reader.Close()

			return extractTar(reader, f, bar, destPath, spec)
		}, nil
	}

	if strings.HasSuffix(url, ".tar.bz2") {
		return func(f *os.File, bar *progressbar.ProgressBar, destPath string, spec sourceSpec) error {
			return extractTar(bzip2.NewReader(f), f, bar, destPath, spec)
		}, nil
	}

	if strings.HasSuffix(url, ".tar.xz") {
		return func(f *os.File, bar *progressbar.ProgressBar, destPath string, spec sourceSpec) error {
			reader, err := xz.NewReader(f)
			if err != nil {
				return err
			}

			return extractTar(reader, f, bar, destPath, spec)
		}, nil
	}

	return nil, eris.New("Archive format not supported")
}

func extractZip(f *os.File, bar *progressbar.ProgressBar, destPath string, spec sourceSpec) error {
	stat, err := f.Stat()
	if err != nil {
		return err
	}

	archive, err := zip.NewReader(f, stat.Size())
	if err != nil {
		return err
	}

	buf := make([]byte, 4096)
	for _, item := range archive.File {
		if strings.HasSuffix(item.Name, "/") {
			continue
		}

		destHandle, dest, err := openExtractorDest(destPath, item.Name, spec.Strip)
		if err != nil {
			return err
		}

		if destHandle == nil {
			continue
		}

		itemHandle, err := item.Open()
		if err != nil {
			destHandle.Close()
			return eris.Wrap(err, "Failed to open archive entry")
		}

		err = copyExtracted(destHandle, itemHandle, f, bar, buf, item.Name, dest)
		itemHandle.Close()
		destHandle.Close()
		if err != nil {
			return err
		}
	}

	return nil
}

func extractTar(r io.Reader, f *os.File, bar *progressbar.ProgressBar, destPath string, spec sourceSpec) error {
	buf := make([]byte, 4096)
	archive := tar.NewReader(r)

	for {
		item, err := archive.Next()
		if err != nil {
			if err == io.EOF {
				break
			}

			return eris.Wrap(err, "Failed to read archive entry")
		}

		fi := item.FileInfo()
		if fi.IsDir() {
			continue
		}

		destHandle, dest, err := openExtractorDest(destPath, item.Name, spec.Strip)
		if err != nil {
			return err
		}

		if destHandle == nil {
			continue
		}

		if item.Typeflag == tar.TypeSymlink {
			destHandle.Close()
			err := os.Remove(dest)
			if err != nil {
				return eris.Wrapf(err, "Failed to remove placeholder file %s", dest)
			}

			err = os.Symlink(item.Linkname, dest)
			if err != nil {
				return eris.Wrapf(err, "Failed to create symlink %s pointing to %s", dest, item.Linkname)
			}
			continue
		}

		os.Chmod(dest, fi.Mode())

		err = copyExtracted(destHandle, archive, f, bar, buf, item.Name, dest)
		destHandle.Close()
		if err != nil {
			return err
		}
	}

	return nil
}

func copyExtracted(destHandle *os.File, src io.Reader, f *os.File, bar *progressbar.ProgressBar, buf []byte, name, dest string) error {
	for {
		n, err := src.Read(buf)
		if err != nil && n < 1 {
			if err == io.EOF {
				return nil
			}
			return eris.Wrapf(err, "Failed to read archive entry %s", name)
		}

		_, err = destHandle.Write(buf[:n])
		if err != nil {
			return eris.Wrapf(err, "Failed to write extracted file %s", dest)
		}

		pos, err := f.Seek(0, io.SeekCurrent)
		if err == nil {
			bar.Set64(pos)
		}
	}
}
