package dirtfs

import (
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	lru "github.com/hashicorp/golang-lru"
	"github.com/mattetti/filebuffer"
	"github.com/pkg/errors"
)

// S3FileSystem abstracts AWS S3 as a filesystem.
type S3FileSystem struct {
	s3Client    s3iface.S3API
	objectCache *lru.Cache
}

const (
	defaultReadChunkSize = 20 * 1024 * 1024 // 20Mb
	objectCacheSize      = 1024
)

func parseS3URI(uri string) (*url.URL, error) {
	parsed, err := url.Parse(uri)
	if err != nil {
		return nil, err
	}

	if parsed.Scheme != "s3" {
		return nil, fmt.Errorf("Invalid s3 uri scheme: %s", parsed.Scheme)
	}
	return parsed, nil
}

// ListFiles lists files that match pathGlob. Only the last path element
// may contain glob metacharacters; a bare prefix lists everything below it.
func (s *S3FileSystem) ListFiles(pathGlob string) ([]FileInfo, error) {
	s3Files := make([]FileInfo, 0)

	parsed, err := parseS3URI(pathGlob)
	if err != nil {
		return nil, err
	}

	baseURI := parsed.Path
	if globRegex.MatchString(parsed.Path) {
		baseURI = globRegex.FindStringSubmatch(parsed.Path)[1]
	}

	params := &s3.ListObjectsInput{
		Bucket: aws.String(parsed.Host),
		Prefix: aws.String(strings.TrimPrefix(baseURI, "/")),
	}

	objectPrefix := fmt.Sprintf("%s://%s/", parsed.Scheme, parsed.Host)
	err = s.s3Client.ListObjectsPages(params,
		func(page *s3.ListObjectsOutput, _ bool) bool {
			for _, object := range page.Contents {
				key := "/" + *object.Key
				if globRegex.MatchString(parsed.Path) {
					if ok, _ := path.Match(parsed.Path, key); !ok {
						continue
					}
				}
				info := FileInfo{
					Name: objectPrefix + *object.Key,
					Size: *object.Size,
				}
				s3Files = append(s3Files, info)
				s.objectCache.Add(info.Name, info)
			}
			return true
		})

	return s3Files, err
}

// OpenReader opens a reader to the file at filePath. The reader
// is initially offset to "startAt" bytes into the file.
func (s *S3FileSystem) OpenReader(filePath string, startAt int64) (io.ReadCloser, error) {
	parsed, err := parseS3URI(filePath)
	if err != nil {
		return nil, err
	}

	objStat, err := s.Stat(filePath)
	if err != nil {
		return nil, err
	}

	reader := &s3Reader{
		client:    s.s3Client,
		bucket:    parsed.Host,
		key:       strings.TrimPrefix(parsed.Path, "/"),
		offset:    startAt,
		chunkSize: defaultReadChunkSize,
		totalSize: objStat.Size,
	}
	if startAt >= objStat.Size {
		reader.chunk = io.NopCloser(strings.NewReader(""))
		return reader, nil
	}
	err = reader.loadNextChunk()
	return reader, err
}

// OpenWriter opens a writer to the file at filePath. The object is
// buffered in memory and uploaded on Close.
func (s *S3FileSystem) OpenWriter(filePath string) (io.WriteCloser, error) {
	parsed, err := parseS3URI(filePath)
	if err != nil {
		return nil, err
	}

	writer := &s3Writer{
		client: s.s3Client,
		bucket: parsed.Host,
		key:    strings.TrimPrefix(parsed.Path, "/"),
		buf:    filebuffer.New(nil),
	}
	s.objectCache.Remove(filePath)
	return writer, nil
}

// Stat returns information about the file at filePath.
func (s *S3FileSystem) Stat(filePath string) (FileInfo, error) {
	if cached, ok := s.objectCache.Get(filePath); ok {
		return cached.(FileInfo), nil
	}

	parsed, err := parseS3URI(filePath)
	if err != nil {
		return FileInfo{}, err
	}

	params := &s3.HeadObjectInput{
		Bucket: aws.String(parsed.Host),
		Key:    aws.String(strings.TrimPrefix(parsed.Path, "/")),
	}
	result, err := s.s3Client.HeadObject(params)
	if err != nil {
		return FileInfo{}, errors.Wrapf(err, "stat %s", filePath)
	}

	info := FileInfo{
		Name: filePath,
		Size: aws.Int64Value(result.ContentLength),
	}
	s.objectCache.Add(filePath, info)
	return info, nil
}

// Init initializes the filesystem.
func (s *S3FileSystem) Init() error {
	sess := session.Must(session.NewSessionWithOptions(session.Options{
		SharedConfigState: session.SharedConfigEnable,
	}))
	s.s3Client = s3.New(sess)

	var err error
	s.objectCache, err = lru.New(objectCacheSize)
	return err
}

// Delete deletes the file at filePath.
func (s *S3FileSystem) Delete(filePath string) error {
	parsed, err := parseS3URI(filePath)
	if err != nil {
		return err
	}

	params := &s3.DeleteObjectInput{
		Bucket: aws.String(parsed.Host),
		Key:    aws.String(strings.TrimPrefix(parsed.Path, "/")),
	}
	_, err = s.s3Client.DeleteObject(params)
	s.objectCache.Remove(filePath)
	return err
}

// Join joins file path elements
func (s *S3FileSystem) Join(elem ...string) string {
	stripped := make([]string, len(elem))
	for i, str := range elem {
		if strings.HasPrefix(str, "/") {
			str = str[1:]
		}
		if i != len(elem)-1 && strings.HasSuffix(str, "/") {
			str = str[:len(str)-1]
		}
		stripped[i] = str
	}
	return strings.Join(stripped, "/")
}
