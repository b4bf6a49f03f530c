package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	gstorage "cloud.google.com/go/storage"
	"github.com/mholt/archiver"
)

// Extension of a stored file
type Extension string

// Some supported extensions
const (
	NoExtension    Extension = "" // The file has no extension
	ExtensionGTiff Extension = "tif"
	ExtensionZIP   Extension = "zip"
	ExtensionSAFE  Extension = "SAFE" // Sentinel product directory (distributed as a zip)
)

// IsErrNotFound returns true if the error denotes a local or remote file that does not exist
func IsErrNotFound(err error) bool {
	var epath *os.PathError
	return errors.Is(err, gstorage.ErrObjectNotExist) ||
		(errors.As(err, &epath) && os.IsNotExist(epath))
}

// ProductFileName returns the name of the stored product of a scene
func ProductFileName(sourceID string, ext Extension) string {
	if ext == NoExtension {
		return sourceID
	}
	return fmt.Sprintf("%s.%s", sourceID, ext)
}

// Unzip extracts the archive into dstDir, overwriting existing files
func Unzip(src, dstDir string) error {
	zip := archiver.Zip{OverwriteExisting: true, MkdirAll: true}
	if err := zip.Unarchive(src, dstDir); err != nil {
		return fmt.Errorf("Unzip: %w", err)
	}
	return nil
}

// AtomicWriteFile writes data to a temporary file in the destination
// directory, then renames it to filePath. Readers never see a partial file.
func AtomicWriteFile(filePath string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(filePath), "."+filepath.Base(filePath)+".*")
	if err != nil {
		return fmt.Errorf("AtomicWriteFile.CreateTemp: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("AtomicWriteFile.Write: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("AtomicWriteFile.Chmod: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("AtomicWriteFile.Close: %w", err)
	}
	if err := os.Rename(tmp.Name(), filePath); err != nil {
		return fmt.Errorf("AtomicWriteFile.Rename: %w", err)
	}
	return nil
}

// AtomicWriteJSON marshals v as indented JSON and writes it atomically
func AtomicWriteJSON(filePath string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("AtomicWriteJSON.Marshal: %w", err)
	}
	return AtomicWriteFile(filePath, append(data, '\n'), 0644)
}

func GetExt(filePath string) Extension {
	ext := path.Ext(filePath)
	if ext == "" {
		return NoExtension
	}
	return Extension(ext[1:])
}
