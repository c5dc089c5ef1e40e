package artifact

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/layer-3/certify/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n'}

const sampleHash = "9f86d081884c7d659a2feaa0c55ad015a3bf4f1b2b0b822cd15d6c15b0f00a08"

func TestRenderer_ScanCode(t *testing.T) {
	r := NewRenderer()

	png, err := r.ScanCode(sampleHash)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, pngHeader))

	_, err = r.ScanCode("")
	require.Error(t, err)
	assert.Equal(t, core.KindArtifact, core.KindOf(err))
	assert.Equal(t, "file generation failed", core.MessageOf(err))
}

func TestRenderer_Document(t *testing.T) {
	r := NewRenderer()
	png, err := r.ScanCode(sampleHash)
	require.NoError(t, err)

	doc, err := r.Document(core.DocumentData{
		OwnerName:  "Alice Müller",
		CourseName: "CS101",
		IssuerName: "Acme University",
		IssuedAt:   time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC),
		Hash:       sampleHash,
	}, png)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(doc, []byte("%PDF-")))

	_, err = r.Document(core.DocumentData{Hash: sampleHash}, nil)
	assert.Equal(t, core.KindArtifact, core.KindOf(err))

	_, err = r.Document(core.DocumentData{Hash: sampleHash}, []byte("not a png"))
	assert.Equal(t, core.KindArtifact, core.KindOf(err))
}

func TestRenderer_NonLatinText(t *testing.T) {
	r := NewRenderer()
	png, err := r.ScanCode(sampleHash)
	require.NoError(t, err)

	latin := core.DocumentData{
		OwnerName:  "José Núñez",
		CourseName: "Café € Economics",
		IssuerName: "Universität Zürich",
		IssuedAt:   time.Date(2025, 3, 14, 10, 0, 0, 0, time.UTC),
		Hash:       sampleHash,
	}
	require.NoError(t, r.Printable(latin))
	doc, err := r.Document(latin, png)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(doc, []byte("%PDF-")))

	cyrillic := latin
	cyrillic.OwnerName = "Алиса"
	err = r.Printable(cyrillic)
	assert.Equal(t, core.KindValidation, core.KindOf(err))

	_, err = r.Document(cyrillic, png)
	assert.Equal(t, core.KindArtifact, core.KindOf(err))

	cjk := latin
	cjk.CourseName = "数学"
	assert.Error(t, r.Printable(cjk))
}

func TestSplitHash(t *testing.T) {
	a, b := splitHash(sampleHash)
	assert.Len(t, a, 32)
	assert.Len(t, b, 32)
	assert.Equal(t, sampleHash, a+b)
}

func TestLocalStore(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	p, err := s.Save(ctx, "c1.pdf", []byte("%PDF-1.3"))
	require.NoError(t, err)
	assert.Equal(t, "c1.pdf", filepath.Base(p))

	rc, err := s.Open(ctx, p)
	require.NoError(t, err)
	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "%PDF-1.3", string(body))

	require.NoError(t, s.Remove(ctx, p))
	_, err = os.Stat(p)
	assert.True(t, os.IsNotExist(err))
	require.NoError(t, s.Remove(ctx, p), "removing twice is fine")

	_, err = s.Open(ctx, p)
	assert.Equal(t, core.KindNotFound, core.KindOf(err))

	_, err = s.Save(ctx, "../escape.pdf", nil)
	assert.Equal(t, core.KindValidation, core.KindOf(err))
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3Store(t *testing.T) {
	ctx := context.Background()
	fake := &fakeS3{objects: make(map[string][]byte)}
	s := newS3Store(fake, "certs", "/documents/")

	p, err := s.Save(ctx, "c1.pdf", []byte("%PDF-1.3"))
	require.NoError(t, err)
	assert.Equal(t, "s3://certs/documents/c1.pdf", p)
	assert.Contains(t, fake.objects, "certs/documents/c1.pdf")

	rc, err := s.Open(ctx, p)
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	assert.Equal(t, "%PDF-1.3", string(body))

	require.NoError(t, s.Remove(ctx, p))
	_, err = s.Open(ctx, p)
	assert.Equal(t, core.KindNotFound, core.KindOf(err))

	_, err = s.Open(ctx, "s3://other/x.pdf")
	assert.Equal(t, core.KindValidation, core.KindOf(err))
	assert.False(t, strings.HasPrefix(p, "/"))
}
