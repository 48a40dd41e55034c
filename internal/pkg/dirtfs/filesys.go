package dirtfs

import (
	"bufio"
	"io"
	"strings"
)

// FileSystemType is an identifier for supported FileSystems
type FileSystemType int

// Identifiers for supported FileSystemTypes
const (
	Local FileSystemType = iota
	S3
)

// FileSystem provides the storage backend for pipeline stages.
// Raw corpus lines are read from a file system; shuffle bins, stage
// output and broadcast tables are written to and read back from one.
type FileSystem interface {
	ListFiles(pathGlob string) ([]FileInfo, error)
	Stat(filePath string) (FileInfo, error)
	OpenReader(filePath string, startAt int64) (io.ReadCloser, error)
	OpenWriter(filePath string) (io.WriteCloser, error)
	Delete(filePath string) error
	Join(elem ...string) string
	Init() error
}

// FileInfo provides information about a file
type FileInfo struct {
	Name string // file path
	Size int64  // file size in bytes
}

// InitFilesystem intializes a filesystem of the given type
func InitFilesystem(fsType FileSystemType) FileSystem {
	var fs FileSystem
	switch fsType {
	case Local:
		fs = &LocalFileSystem{}
	case S3:
		fs = &S3FileSystem{}
	}

	fs.Init()
	return fs
}

// InferFilesystem initializes a filesystem by inferring its type from
// a file address.
// For example, locations starting with "s3://" will resolve to an S3
// filesystem.
func InferFilesystem(location string) FileSystem {
	return InitFilesystem(InferType(location))
}

// InferType returns the FileSystemType that serves location.
func InferType(location string) FileSystemType {
	if strings.HasPrefix(location, "s3://") {
		return S3
	}
	return Local
}

// ReadLines calls fn for every line of every file matched by pathGlob.
// Files are read in listing order. Reading stops at the first error
// returned by fn or by the filesystem.
func ReadLines(fs FileSystem, pathGlob string, fn func(line string) error) error {
	files, err := fs.ListFiles(pathGlob)
	if err != nil {
		return err
	}

	for _, file := range files {
		reader, err := fs.OpenReader(file.Name, 0)
		if err != nil {
			return err
		}

		scanner := bufio.NewScanner(reader)
		scanner.Buffer(make([]byte, 64*1024), maxLineSize)
		for scanner.Scan() {
			if err = fn(scanner.Text()); err != nil {
				break
			}
		}
		if err == nil {
			err = scanner.Err()
		}
		reader.Close()
		if err != nil {
			return err
		}
	}
	return nil
}

// maxLineSize bounds the length of a single record line.
const maxLineSize = 16 * 1024 * 1024
