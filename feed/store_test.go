package feed

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brettboylen/forum-feed/models"
)

var errStoreDown = errors.New("store unavailable")

// fakeStore is an in-memory Store used by the feed tests
type fakeStore struct {
	mutex    sync.Mutex
	posts    map[string]models.Post
	comments []models.Comment

	listErr   error
	readErr   error
	writeErr  error
	createErr error

	// writeGate, when set, blocks UpdatePostLikes until it is closed
	writeGate chan struct{}
	// writeStarted receives once per UpdatePostLikes call when set
	writeStarted chan struct{}

	listCalls  int
	writeCalls int
}

func newFakeStore(posts ...models.Post) *fakeStore {
	fs := &fakeStore{posts: make(map[string]models.Post)}
	for _, p := range posts {
		fs.posts[p.ID] = p
	}
	return fs
}

func (fs *fakeStore) ListPosts(ctx context.Context) ([]models.Post, error) {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()
	fs.listCalls++
	if fs.listErr != nil {
		return nil, fs.listErr
	}
	out := make([]models.Post, 0, len(fs.posts))
	for _, p := range fs.posts {
		p.Likes = append([]string(nil), p.Likes...)
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (fs *fakeStore) GetPostLikes(ctx context.Context, postID string) ([]string, error) {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()
	if fs.readErr != nil {
		return nil, fs.readErr
	}
	p, ok := fs.posts[postID]
	if !ok {
		return nil, ErrPostNotFound
	}
	return append([]string(nil), p.Likes...), nil
}

func (fs *fakeStore) UpdatePostLikes(ctx context.Context, postID string, likes []string) error {
	fs.mutex.Lock()
	started, gate := fs.writeStarted, fs.writeGate
	fs.writeCalls++
	fs.mutex.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if gate != nil {
		<-gate
	}

	fs.mutex.Lock()
	defer fs.mutex.Unlock()
	if fs.writeErr != nil {
		return fs.writeErr
	}
	p, ok := fs.posts[postID]
	if !ok {
		return ErrPostNotFound
	}
	p.Likes = append([]string(nil), likes...)
	fs.posts[postID] = p
	return nil
}

func (fs *fakeStore) ListComments(ctx context.Context, postID, before string, limit int) ([]models.Comment, error) {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()
	if fs.listErr != nil {
		return nil, fs.listErr
	}
	out := []models.Comment{}
	for i := len(fs.comments) - 1; i >= 0 && len(out) < limit; i-- {
		c := fs.comments[i]
		if c.PostID != postID || (before != "" && c.ID >= before) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (fs *fakeStore) CountComments(ctx context.Context, postID string) (int, error) {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()
	if fs.listErr != nil {
		return 0, fs.listErr
	}
	n := 0
	for _, c := range fs.comments {
		if c.PostID == postID {
			n++
		}
	}
	return n, nil
}

func (fs *fakeStore) CreateComment(ctx context.Context, nc models.NewComment) (models.Comment, error) {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()
	if fs.createErr != nil {
		return models.Comment{}, fs.createErr
	}
	c := models.Comment{
		ID:        string(rune('a' + len(fs.comments))),
		PostID:    nc.PostID,
		CreatorID: nc.CreatorID,
		Content:   nc.Content,
		CreatedAt: time.Date(2024, 5, 1, 12, len(fs.comments), 0, 0, time.UTC),
		Likes:     nc.Likes,
	}
	fs.comments = append(fs.comments, c)
	return c, nil
}

func (fs *fakeStore) likesOf(postID string) []string {
	fs.mutex.Lock()
	defer fs.mutex.Unlock()
	return append([]string(nil), fs.posts[postID].Likes...)
}

// recordingNotifier collects every notice it receives
type recordingNotifier struct {
	mutex   sync.Mutex
	notices []Notice
}

func (rn *recordingNotifier) Notify(n Notice) {
	rn.mutex.Lock()
	defer rn.mutex.Unlock()
	rn.notices = append(rn.notices, n)
}

func (rn *recordingNotifier) messages() []string {
	rn.mutex.Lock()
	defer rn.mutex.Unlock()
	out := make([]string, 0, len(rn.notices))
	for _, n := range rn.notices {
		out = append(out, n.Message)
	}
	return out
}

func testLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

var testNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func testClock() time.Time { return testNow }

func strPtr(s string) *string { return &s }

func post(id, label string, age time.Duration, likes ...string) models.Post {
	return models.Post{
		ID:         id,
		Title:      "post " + id,
		Label:      label,
		LabelColor: "#888888",
		CreatedAt:  testNow.Add(-age),
		Likes:      likes,
	}
}

var _ Store = (*fakeStore)(nil)
