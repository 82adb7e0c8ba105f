package backup

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// fakeSource serves a fixed listing and in-memory content keyed by locator.
type fakeSource struct {
	name    string
	listing []RemoteFile
	content map[string][]byte
	listErr error
	// openErr, when set, is consulted per locator before serving content.
	openErr map[string]error

	mu    sync.Mutex
	opens int
}

func newFakeSource(name string) *fakeSource {
	return &fakeSource{
		name:    name,
		content: make(map[string][]byte),
		openErr: make(map[string]error),
	}
}

// addFile registers a file in both listing and content store.
func (s *fakeSource) addFile(identity, path string, body []byte, modifiedAt time.Time) {
	s.listing = append(s.listing, RemoteFile{
		Identity:   identity,
		Path:       path,
		Size:       int64(len(body)),
		ModifiedAt: modifiedAt,
		Locator:    identity,
	})
	s.content[identity] = body
}

func (s *fakeSource) removeFile(identity string) {
	for i, f := range s.listing {
		if f.Identity == identity {
			s.listing = append(s.listing[:i], s.listing[i+1:]...)
			break
		}
	}
	delete(s.content, identity)
}

func (s *fakeSource) setModified(identity string, body []byte, modifiedAt time.Time) {
	for i := range s.listing {
		if s.listing[i].Identity == identity {
			s.listing[i].Size = int64(len(body))
			s.listing[i].ModifiedAt = modifiedAt
		}
	}
	s.content[identity] = body
}

func (s *fakeSource) Name() string { return s.name }

func (s *fakeSource) List(ctx context.Context) ([]RemoteFile, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	out := make([]RemoteFile, len(s.listing))
	copy(out, s.listing)
	return out, nil
}

func (s *fakeSource) Open(ctx context.Context, locator string) (io.ReadCloser, error) {
	s.mu.Lock()
	s.opens++
	s.mu.Unlock()

	if err := s.openErr[locator]; err != nil {
		return nil, err
	}
	body, ok := s.content[locator]
	if !ok {
		return nil, fmt.Errorf("%w: locator %s", ErrNotFound, locator)
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

func (s *fakeSource) Check(ctx context.Context) error { return s.listErr }

func (s *fakeSource) openCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opens
}

// fakeDestination records puts and deletes in memory.
type fakeDestination struct {
	name string

	mu      sync.Mutex
	objects map[string][]byte
	deletes []string
	// putErr, when set per key, fails the put. failOnce keys fail a single
	// time then succeed, for retry tests.
	putErr   map[string]error
	failOnce map[string]error
}

func newFakeDestination(name string) *fakeDestination {
	return &fakeDestination{
		name:     name,
		objects:  make(map[string][]byte),
		putErr:   make(map[string]error),
		failOnce: make(map[string]error),
	}
}

func (d *fakeDestination) Name() string { return d.name }

func (d *fakeDestination) Put(ctx context.Context, key string, r io.Reader, size int64) error {
	d.mu.Lock()
	if err, ok := d.failOnce[key]; ok {
		delete(d.failOnce, key)
		d.mu.Unlock()
		// drain the stream so content hashes still compute upstream
		io.Copy(io.Discard, r)
		return err
	}
	if err := d.putErr[key]; err != nil {
		d.mu.Unlock()
		io.Copy(io.Discard, r)
		return err
	}
	d.mu.Unlock()

	body, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.objects[key] = body
	return nil
}

func (d *fakeDestination) Delete(ctx context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.objects, key)
	d.deletes = append(d.deletes, key)
	return nil
}

func (d *fakeDestination) Check(ctx context.Context) error { return nil }

func (d *fakeDestination) object(key string) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	body, ok := d.objects[key]
	return body, ok
}

func (d *fakeDestination) objectCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.objects)
}

// openTestTracker returns an open tracker backed by a temp file.
func openTestTracker(t interface {
	TempDir() string
	Fatalf(format string, args ...any)
	Cleanup(func())
}) *Tracker {
	tracker := NewTracker(t.TempDir() + "/state.db")
	if err := tracker.Open(); err != nil {
		t.Fatalf("open tracker: %v", err)
	}
	t.Cleanup(func() { tracker.Close() })
	return tracker
}
