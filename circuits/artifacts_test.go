package circuits

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
)

var (
	dummyPath       = "dummy.key"
	dummyKeyContent = []byte("dummy content")
)

func testDummyKeyServer() *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, dummyPath, time.Now(), bytes.NewReader(dummyKeyContent))
	}))
}

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "wispy-artifacts-test")
	if err != nil {
		panic(err)
	}
	BaseDir = dir
	code := m.Run()
	if err := os.RemoveAll(BaseDir); err != nil {
		panic(err)
	}
	os.Exit(code)
}

func TestLoadKey(t *testing.T) {
	c := qt.New(t)
	server := testDummyKeyServer()
	defer server.Close()

	remoteURL, err := url.JoinPath(server.URL, dummyPath)
	c.Assert(err, qt.IsNil)
	dummyKey := &Artifact{
		RemoteURL: remoteURL,
		Hash:      ArtifactHash(dummyKeyContent),
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	// not cached yet, downloaded
	c.Assert(dummyKey.Load(ctx), qt.IsNil)
	c.Assert([]byte(dummyKey.Content), qt.DeepEquals, dummyKeyContent)
	// cached
	dummyKey.Content = nil
	dummyKey.RemoteURL = ""
	c.Assert(dummyKey.Load(ctx), qt.IsNil)
	c.Assert([]byte(dummyKey.Content), qt.DeepEquals, dummyKeyContent)
	// wrong hash
	dummyKey.Content = nil
	dummyKey.RemoteURL = remoteURL
	dummyKey.Hash = []byte("wrong hash")
	c.Assert(dummyKey.Load(ctx), qt.IsNotNil)
}

func TestStoreArtifact(t *testing.T) {
	c := qt.New(t)
	content := []byte("verifying key bytes")
	hash, err := StoreArtifact(content)
	c.Assert(err, qt.IsNil)
	c.Assert(hash, qt.DeepEquals, ArtifactHash(content))

	a := NewCircuitArtifacts(0, nil, &Artifact{Hash: hash})
	c.Assert(a.LoadAll(context.Background()), qt.IsNil)
	c.Assert([]byte(a.VerifyingKey()), qt.DeepEquals, content)
	c.Assert(a.ProvingKey(), qt.IsNil)
}
