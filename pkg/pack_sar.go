package pkg

import (
	"bytes"
	"encoding/binary"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"

	"github.com/andybalholm/brotli"
	"github.com/rotisserie/eris"
)

// .sar archives carry pre-built package trees between machines. Every file is
// stored as an individual brotli stream; the directory index sits at the end
// of the archive and is referenced from the 16 byte header.

const sarVersion = 1

var sarMagic = [4]byte{'S', 'P', 'A', 'R'}

type sarFile struct {
	offset  int32
	size    int32
	decSize int32
}

type sarFolder struct {
	folders map[string]*sarFolder
	files   map[string]*sarFile
}

func newSarFolder() *sarFolder {
	return &sarFolder{
		folders: map[string]*sarFolder{},
		files:   map[string]*sarFile{},
	}
}

// SarWriter writes .sar archives
type SarWriter struct {
	hdl      *os.File
	root     *sarFolder
	dirStack []*sarFolder
	current  *sarFolder
	buffer   []byte
}

// NewSarWriter creates a new SarWriter instance and opens it for writing
func NewSarWriter(filename string) (*SarWriter, error) {
	hdl, err := os.Create(filename)
	if err != nil {
		return nil, err
	}

	root := newSarFolder()

	// skip the header which consists of 4 chars and 3 int32s
	_, err = hdl.Seek(int64(4+12), io.SeekStart)
	if err != nil {
		hdl.Close()
		return nil, err
	}

	return &SarWriter{
		hdl:      hdl,
		root:     root,
		dirStack: []*sarFolder{root},
		current:  root,
		buffer:   make([]byte, 4096),
	}, nil
}

// OpenDirectory creates a new directory entry. Anything created until the next
// CloseDirectory() call will be created inside this directory.
func (w *SarWriter) OpenDirectory(dirname string) error {
	dir := newSarFolder()

	w.current.folders[dirname] = dir
	w.dirStack = append(w.dirStack, dir)
	w.current = dir

	return nil
}

// CloseDirectory closes the directory that was last opened
func (w *SarWriter) CloseDirectory() error {
	stackLen := len(w.dirStack)
	if stackLen < 2 {
		return eris.New("No directory left on stack")
	}

	w.dirStack = w.dirStack[:stackLen-1]
	w.current = w.dirStack[stackLen-2]
	return nil
}

// WriteFile creates a new file in the current archive directory
func (w *SarWriter) WriteFile(filename string, reader io.Reader) error {
	item := new(sarFile)
	offset, err := w.hdl.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}

	item.offset = int32(offset)
	brw := brotli.NewWriterLevel(w.hdl, brotli.BestCompression)

	decSize, err := io.CopyBuffer(brw, reader, w.buffer)
	if err != nil {
		return err
	}

	err = brw.Close()
	if err != nil {
		return err
	}

	newPos, err := w.hdl.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}

	item.size = int32(newPos - offset)
	item.decSize = int32(decSize)
	w.current.files[filename] = item

	return nil
}

// Close writes the central index and closes the archive
func (w *SarWriter) Close() error {
	if len(w.dirStack) != 1 {
		w.hdl.Close()
		return eris.New("Open directories left over!")
	}

	items := int32(0)
	buffer := make([]byte, 48)
	tocOffset, err := w.hdl.Seek(0, io.SeekCurrent)
	if err != nil {
		w.hdl.Close()
		return err
	}

	err = writeSarEntries(w.root, w.hdl, &items, buffer)
	if err != nil {
		w.hdl.Close()
		return err
	}

	_, err = w.hdl.Seek(0, io.SeekStart)
	if err != nil {
		w.hdl.Close()
		return err
	}

	copy(buffer[0:4], sarMagic[:])
	binary.LittleEndian.PutUint32(buffer[4:8], sarVersion)
	binary.LittleEndian.PutUint32(buffer[8:12], uint32(tocOffset))
	binary.LittleEndian.PutUint32(buffer[12:16], uint32(items))

	_, err = w.hdl.Write(buffer[:16])
	if err != nil {
		w.hdl.Close()
		return err
	}

	return w.hdl.Close()
}

func writeSarEntry(hdl *os.File, buffer []byte, item sarFile, name string) error {
	binary.LittleEndian.PutUint32(buffer[:4], uint32(item.offset))
	binary.LittleEndian.PutUint32(buffer[4:8], uint32(item.size))
	binary.LittleEndian.PutUint32(buffer[8:12], uint32(item.decSize))
	binary.LittleEndian.PutUint16(buffer[12:14], uint16(len(name)))

	_, err := hdl.Write(buffer[:14])
	if err != nil {
		return err
	}

	_, err = hdl.WriteString(name)
	return err
}

func writeSarEntries(folder *sarFolder, hdl *os.File, items *int32, buffer []byte) error {
	for name, sub := range folder.folders {
		// directory entries carry no offset or sizes
		err := writeSarEntry(hdl, buffer, sarFile{}, name)
		if err != nil {
			return err
		}

		err = writeSarEntries(sub, hdl, items, buffer)
		if err != nil {
			return err
		}

		// ".." closes the directory
		err = writeSarEntry(hdl, buffer, sarFile{}, "..")
		if err != nil {
			return err
		}
	}

	for name, file := range folder.files {
		err := writeSarEntry(hdl, buffer, *file, name)
		if err != nil {
			return err
		}
	}

	*items += int32(len(folder.folders)*2 + len(folder.files))
	return nil
}

// PackDirectory recursively packs the contents of dir into a new .sar archive
func PackDirectory(filename, dir string) error {
	writer, err := NewSarWriter(filename)
	if err != nil {
		return err
	}

	err = packSarDirectory(writer, dir)
	if err != nil {
		writer.hdl.Close()
		return err
	}

	return writer.Close()
}

func packSarDirectory(writer *SarWriter, dir string) error {
	entries, err := ioutil.ReadDir(dir)
	if err != nil {
		return eris.Wrapf(err, "Failed to read dir %s", dir)
	}

	for _, info := range entries {
		itemPath := filepath.Join(dir, info.Name())
		if info.IsDir() {
			writer.OpenDirectory(info.Name())
			err = packSarDirectory(writer, itemPath)
			if err != nil {
				return err
			}
			writer.CloseDirectory()
			continue
		}

		f, err := os.Open(itemPath)
		if err != nil {
			return eris.Wrapf(err, "Failed to open file %s", itemPath)
		}

		err = writer.WriteFile(info.Name(), f)
		f.Close()
		if err != nil {
			return eris.Wrapf(err, "Failed to pack file %s", itemPath)
		}
	}

	return nil
}

// SarReader reads .sar archives
type SarReader struct {
	hdl       *os.File
	tocOffset int64
	items     int
	buffer    []byte
}

// OpenSarArchive opens the given archive and validates its header
func OpenSarArchive(filename string) (*SarReader, error) {
	hdl, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	header := make([]byte, 16)
	_, err = io.ReadFull(hdl, header)
	if err != nil {
		hdl.Close()
		return nil, eris.Wrapf(err, "Failed to read header of %s", filename)
	}

	if !bytes.Equal(header[:4], sarMagic[:]) {
		hdl.Close()
		return nil, eris.Errorf("%s is not a .sar archive", filename)
	}

	version := binary.LittleEndian.Uint32(header[4:8])
	if version != sarVersion {
		hdl.Close()
		return nil, eris.Errorf("%s uses unsupported archive version %d", filename, version)
	}

	return &SarReader{
		hdl:       hdl,
		tocOffset: int64(binary.LittleEndian.Uint32(header[8:12])),
		items:     int(binary.LittleEndian.Uint32(header[12:16])),
		buffer:    make([]byte, 4096),
	}, nil
}

// Close closes the underlying archive file
func (r *SarReader) Close() error {
	return r.hdl.Close()
}

type sarTocEntry struct {
	item sarFile
	name string
}

func (r *SarReader) readToc() ([]sarTocEntry, error) {
	_, err := r.hdl.Seek(r.tocOffset, io.SeekStart)
	if err != nil {
		return nil, err
	}

	toc, err := ioutil.ReadAll(r.hdl)
	if err != nil {
		return nil, eris.Wrap(err, "Failed to read archive index")
	}

	entries := make([]sarTocEntry, 0, r.items)
	pos := 0
	for idx := 0; idx < r.items; idx++ {
		if pos+14 > len(toc) {
			return nil, eris.New("Archive index is truncated")
		}

		entry := sarTocEntry{
			item: sarFile{
				offset:  int32(binary.LittleEndian.Uint32(toc[pos : pos+4])),
				size:    int32(binary.LittleEndian.Uint32(toc[pos+4 : pos+8])),
				decSize: int32(binary.LittleEndian.Uint32(toc[pos+8 : pos+12])),
			},
		}

		nameLen := int(binary.LittleEndian.Uint16(toc[pos+12 : pos+14]))
		pos += 14
		if pos+nameLen > len(toc) {
			return nil, eris.New("Archive index is truncated")
		}

		entry.name = string(toc[pos : pos+nameLen])
		pos += nameLen
		entries = append(entries, entry)
	}

	return entries, nil
}

// Extract unpacks the entire archive into the given directory
func (r *SarReader) Extract(dest string) error {
	entries, err := r.readToc()
	if err != nil {
		return err
	}

	current := dest
	for _, entry := range entries {
		// entries without an offset are directory markers; ".." closes the
		// directory opened last
		if entry.item.offset == 0 && entry.item.size == 0 {
			if entry.name == ".." {
				current = filepath.Dir(current)
				continue
			}

			current = filepath.Join(current, entry.name)
			err = os.MkdirAll(current, os.FileMode(0770))
			if err != nil {
				return eris.Wrapf(err, "Failed to create directory %s", current)
			}
			continue
		}

		err = r.extractFile(entry, filepath.Join(current, entry.name))
		if err != nil {
			return err
		}
	}

	return nil
}

func (r *SarReader) extractFile(entry sarTocEntry, dest string) error {
	err := os.MkdirAll(filepath.Dir(dest), os.FileMode(0770))
	if err != nil {
		return eris.Wrapf(err, "Failed to create directory %s", filepath.Dir(dest))
	}

	_, err = r.hdl.Seek(int64(entry.item.offset), io.SeekStart)
	if err != nil {
		return err
	}

	hdl, err := os.Create(dest)
	if err != nil {
		return eris.Wrapf(err, "Failed to create file %s", dest)
	}
	defer hdl.Close()

	reader := brotli.NewReader(io.LimitReader(r.hdl, int64(entry.item.size)))
	written, err := io.CopyBuffer(hdl, reader, r.buffer)
	if err != nil {
		return eris.Wrapf(err, "Failed to extract %s", dest)
	}

	if written != int64(entry.item.decSize) {
		return eris.Errorf("Extracted %d bytes for %s but expected %d", written, dest, entry.item.decSize)
	}

	return hdl.Close()
}
