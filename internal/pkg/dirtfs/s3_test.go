package dirtfs

import (
	"fmt"
	"io/ioutil"
	"sort"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	lru "github.com/hashicorp/golang-lru"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memS3 is an in-memory stand-in for the subset of S3 used by S3FileSystem.
type memS3 struct {
	s3iface.S3API
	objects map[string][]byte
	heads   int
}

func (m *memS3) PutObject(input *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
	body, err := ioutil.ReadAll(input.Body)
	if err != nil {
		return nil, err
	}
	m.objects[*input.Bucket+"/"+*input.Key] = body
	return &s3.PutObjectOutput{}, nil
}

func (m *memS3) HeadObject(input *s3.HeadObjectInput) (*s3.HeadObjectOutput, error) {
	m.heads++
	body, ok := m.objects[*input.Bucket+"/"+*input.Key]
	if !ok {
		return nil, awserr.New("NotFound", "not found", nil)
	}
	return &s3.HeadObjectOutput{ContentLength: aws.Int64(int64(len(body)))}, nil
}

func (m *memS3) GetObject(input *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
	body := m.objects[*input.Bucket+"/"+*input.Key]
	var start, end int
	fmt.Sscanf(*input.Range, "bytes=%d-%d", &start, &end)
	return &s3.GetObjectOutput{
		Body: ioutil.NopCloser(strings.NewReader(string(body[start : end+1]))),
	}, nil
}

func (m *memS3) DeleteObject(input *s3.DeleteObjectInput) (*s3.DeleteObjectOutput, error) {
	delete(m.objects, *input.Bucket+"/"+*input.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func (m *memS3) ListObjectsPages(input *s3.ListObjectsInput, fn func(*s3.ListObjectsOutput, bool) bool) error {
	keys := make([]string, 0)
	for k := range m.objects {
		prefix := *input.Bucket + "/" + *input.Prefix
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	page := &s3.ListObjectsOutput{}
	for _, k := range keys {
		key := strings.TrimPrefix(k, *input.Bucket+"/")
		page.Contents = append(page.Contents, &s3.Object{
			Key:  aws.String(key),
			Size: aws.Int64(int64(len(m.objects[k]))),
		})
	}
	fn(page, true)
	return nil
}

func newMemS3FileSystem(t *testing.T) (*S3FileSystem, *memS3) {
	cache, err := lru.New(objectCacheSize)
	require.Nil(t, err)
	mem := &memS3{objects: make(map[string][]byte)}
	return &S3FileSystem{s3Client: mem, objectCache: cache}, mem
}

func writeObject(t *testing.T, fs *S3FileSystem, path, contents string) {
	writer, err := fs.OpenWriter(path)
	require.Nil(t, err)
	_, err = writer.Write([]byte(contents))
	require.Nil(t, err)
	require.Nil(t, writer.Close())
}

func TestS3ImplementsFileSystem(t *testing.T) {
	var fileSystem FileSystem = &S3FileSystem{}
	assert.NotNil(t, fileSystem)
}

func TestS3ReaderWriter(t *testing.T) {
	fs, _ := newMemS3FileSystem(t)
	writeObject(t, fs, "s3://bucket/testobj", "foo bar baz")

	reader, err := fs.OpenReader("s3://bucket/testobj", 0)
	require.Nil(t, err)
	contents, err := ioutil.ReadAll(reader)
	assert.Nil(t, err)
	assert.Equal(t, "foo bar baz", string(contents))
	assert.Nil(t, reader.Close())

	reader, err = fs.OpenReader("s3://bucket/testobj", 4)
	require.Nil(t, err)
	contents, err = ioutil.ReadAll(reader)
	assert.Nil(t, err)
	assert.Equal(t, "bar baz", string(contents))
}

func TestS3ReaderChunk(t *testing.T) {
	fs, mem := newMemS3FileSystem(t)
	writeObject(t, fs, "s3://bucket/testobj", "foo bar baz")

	reader := &s3Reader{
		client:    mem,
		bucket:    "bucket",
		key:       "testobj",
		chunkSize: 3,
		totalSize: 11,
	}
	require.Nil(t, reader.loadNextChunk())

	// First chunk should advance reader offset by 3 bytes
	assert.Equal(t, int64(3), reader.offset)

	contents, err := ioutil.ReadAll(reader)
	assert.Nil(t, err)
	assert.Equal(t, "foo bar baz", string(contents))
}

func TestS3ListGlob(t *testing.T) {
	fs, _ := newMemS3FileSystem(t)
	for i := 0; i < 3; i++ {
		writeObject(t, fs, fmt.Sprintf("s3://bucket/counting/output-part-%d", i), "x")
	}
	writeObject(t, fs, "s3://bucket/counting/map-bin0-0.out", "{}")

	files, err := fs.ListFiles("s3://bucket/counting/output-*")
	require.Nil(t, err)
	require.Len(t, files, 3)
	for _, file := range files {
		assert.True(t, strings.HasPrefix(file.Name, "s3://bucket/counting/output-part-"))
		assert.Equal(t, int64(1), file.Size)
	}

	files, err = fs.ListFiles("s3://bucket/counting")
	require.Nil(t, err)
	assert.Len(t, files, 4)
}

func TestS3StatCached(t *testing.T) {
	fs, mem := newMemS3FileSystem(t)
	writeObject(t, fs, "s3://bucket/testobj", "foo bar baz")

	info, err := fs.Stat("s3://bucket/testobj")
	require.Nil(t, err)
	assert.Equal(t, int64(11), info.Size)

	_, err = fs.Stat("s3://bucket/testobj")
	require.Nil(t, err)
	assert.Equal(t, 1, mem.heads)

	// Rewriting invalidates the cached entry
	writeObject(t, fs, "s3://bucket/testobj", "foo")
	info, err = fs.Stat("s3://bucket/testobj")
	require.Nil(t, err)
	assert.Equal(t, int64(3), info.Size)
	assert.Equal(t, 2, mem.heads)
}

func TestS3StatMissing(t *testing.T) {
	fs, _ := newMemS3FileSystem(t)
	_, err := fs.Stat("s3://bucket/missing")
	assert.NotNil(t, err)
}

func TestS3Delete(t *testing.T) {
	fs, mem := newMemS3FileSystem(t)
	writeObject(t, fs, "s3://bucket/testobj", "foo")
	assert.Nil(t, fs.Delete("s3://bucket/testobj"))
	assert.Len(t, mem.objects, 0)
}

func TestS3Join(t *testing.T) {
	fs := &S3FileSystem{}

	res := fs.Join("s3://foo", "bar", "baz")
	assert.Equal(t, "s3://foo/bar/baz", res)

	res = fs.Join("s3://foo/", "/bar", "baz/")
	assert.Equal(t, "s3://foo/bar/baz/", res)
}

func TestParseS3URI(t *testing.T) {
	parsed, err := parseS3URI("s3://bucket/a/b")
	require.Nil(t, err)
	assert.Equal(t, "bucket", parsed.Host)
	assert.Equal(t, "/a/b", parsed.Path)

	_, err = parseS3URI("http://bucket/a")
	assert.NotNil(t, err)
}
