package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"

	"multitrack/core/audio"
	"multitrack/core/auth"
	"multitrack/core/ledger"
	"multitrack/core/progress"
	"multitrack/core/workflow"
	"multitrack/model"
	"multitrack/storage"

	"github.com/gorilla/websocket"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeIndex struct {
	records   map[string][]model.PublicationRecord
	following []model.Profile
}

func (f *fakeIndex) Publications(_ context.Context, owner string) ([]model.PublicationRecord, error) {
	return f.records[owner], nil
}

func (f *fakeIndex) Profiles(_ context.Context, address string) ([]model.Profile, error) {
	return []model.Profile{{ID: address, Handle: address}}, nil
}

func (f *fakeIndex) Following(context.Context, string) ([]model.Profile, error) {
	return f.following, nil
}

type memBlobs struct {
	mu    sync.Mutex
	blobs map[string]*storage.Blob
}

func (m *memBlobs) Store(_ context.Context, data []byte, mimeType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cid := storage.ContentID(data)
	m.blobs[cid] = &storage.Blob{Data: data, MimeType: mimeType}
	return cid, nil
}

func (m *memBlobs) Fetch(_ context.Context, cid string) (*storage.Blob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.blobs[cid]
	if !ok {
		return nil, minio.ErrorResponse{Code: "NoSuchKey"}
	}
	return b, nil
}

type fakeLedger struct {
	mu       sync.Mutex
	posts    []ledger.PostRequest
	comments []ledger.CommentRequest
	collects []ledger.CollectRequest
	err      error
}

func (l *fakeLedger) Publish(_ context.Context, req ledger.PostRequest) (ledger.Pending, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return ledger.Pending{}, l.err
	}
	l.posts = append(l.posts, req)
	return ledger.Pending{Ref: "0xpost"}, nil
}

func (l *fakeLedger) PublishComment(_ context.Context, req ledger.CommentRequest) (ledger.Pending, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return ledger.Pending{}, l.err
	}
	l.comments = append(l.comments, req)
	return ledger.Pending{Ref: "0xcomment"}, nil
}

func (l *fakeLedger) Collect(_ context.Context, req ledger.CollectRequest) (ledger.Pending, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.collects = append(l.collects, req)
	return ledger.Pending{Ref: "0xcollect"}, nil
}

func (l *fakeLedger) setErr(err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.err = err
}

func (l *fakeLedger) snapshot() (posts []ledger.PostRequest, comments []ledger.CommentRequest, collects []ledger.CollectRequest) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append(posts, l.posts...), append(comments, l.comments...), append(collects, l.collects...)
}

type fakeMixer struct{}

func (fakeMixer) Combine(_ context.Context, layer, _ audio.Source) (*audio.Buffer, error) {
	return &audio.Buffer{Data: append([]byte("mix:"), layer.Data...), MimeType: layer.MimeType}, nil
}

type recordingCache struct {
	mu          sync.Mutex
	invalidated []string
	following   []string
}

func (c *recordingCache) InvalidateFollowing(_ context.Context, address string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.following = append(c.following, address)
}

func (c *recordingCache) followers() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.following...)
}

type fakeFollower struct {
	mu    sync.Mutex
	edges [][2]string
}

func (f *fakeFollower) Follow(_ context.Context, follower, followee string) error {
	if follower == followee {
		return errors.New("cannot follow yourself")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edges = append(f.edges, [2]string{follower, followee})
	return nil
}

func (c *recordingCache) Invalidate(_ context.Context, owner string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, owner)
}

func (c *recordingCache) owners() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.invalidated...)
}

type harness struct {
	srv    *httptest.Server
	index  *fakeIndex
	blobs  *memBlobs
	ledger *fakeLedger
	cache  *recordingCache
	hub    *progress.Hub
	issuer *auth.Issuer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWith(t, nil)
}

func newHarnessWith(t *testing.T, configure func(*Deps)) *harness {
	t.Helper()
	h := &harness{
		index: &fakeIndex{records: map[string][]model.PublicationRecord{
			"0xa": {
				{ID: "0xa-0x01", Kind: model.KindOriginal, Title: "Drums", MediaRefs: []string{"ipfs://drums"}},
				{ID: "0xa-0x02", Kind: model.KindRemix, ParentID: "0xa-0x01", Title: "Bass", MediaRefs: []string{"ipfs://bass", "ipfs://mix1"}},
				{ID: "0xa-0x03", Kind: model.KindRemix, ParentID: "0xa-0x09", Title: "Lost"},
			},
			"0xb": {
				{ID: "0xb-0x01", Kind: model.KindOriginal, Title: "Pads", MediaRefs: []string{"ipfs://pads"}},
			},
		}},
		blobs:  &memBlobs{blobs: map[string]*storage.Blob{}},
		ledger: &fakeLedger{},
		cache:  &recordingCache{},
		hub:    progress.NewHub(),
		issuer: auth.NewIssuer("test-secret", time.Hour),
	}
	go h.hub.Run()
	t.Cleanup(h.hub.Stop)

	deps := Deps{
		Index:    h.index,
		Cache:    h.cache,
		Blobs:    h.blobs,
		Mixer:    fakeMixer{},
		Ledger:   h.ledger,
		Modules:  ledger.FreeCollect("0x0BE6bD7092ee83D44a6eC1D949626FeE48caB30c"),
		Resolver: storage.Resolver{Scheme: "ipfs", GatewayURL: "https://gw.test"},
		Issuer:   h.issuer,
		Hub:      h.hub,
	}
	if configure != nil {
		configure(&deps)
	}
	s := New(deps)
	h.srv = httptest.NewServer(s.Handler())
	t.Cleanup(h.srv.Close)
	return h
}

func (h *harness) token(t *testing.T, owner string) string {
	t.Helper()
	tok, err := h.issuer.Issue(owner, "")
	require.NoError(t, err)
	return tok
}

func (h *harness) publish(t *testing.T, owner string, fields map[string]string, file []byte) *http.Response {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if file != nil {
		fw, err := mw.CreateFormFile("file", "layer.wav")
		require.NoError(t, err)
		_, err = fw.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, h.srv.URL+"/api/tracks", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if owner != "" {
		req.Header.Set("Authorization", "Bearer "+h.token(t, owner))
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	resp, err := http.Get(h.srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestTracks_Forest(t *testing.T) {
	h := newHarness(t)
	resp, err := http.Get(h.srv.URL + "/api/profiles/0xa/tracks")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var fv forestView
	decode(t, resp, &fv)
	require.Len(t, fv.Roots, 1)
	root := fv.Roots[0]
	assert.Equal(t, "Drums", root.Title)
	assert.Equal(t, "https://gw.test/ipfs/drums", root.AudioURL)
	require.Len(t, root.Children, 1)
	assert.Equal(t, "https://gw.test/ipfs/bass", root.Children[0].AudioURL)
	assert.Equal(t, "https://gw.test/ipfs/mix1", root.Children[0].MixURL)
	require.Len(t, fv.Orphans, 1)
	assert.Equal(t, "0xa-0x03", fv.Orphans[0].ID)
	assert.False(t, fv.Publishing)
}

func TestFeed(t *testing.T) {
	h := newHarness(t)
	h.index.following = []model.Profile{{ID: "0xb", Handle: "bob.test"}}

	req, _ := http.NewRequest(http.MethodGet, h.srv.URL+"/api/feed", nil)
	req.Header.Set("Authorization", "Bearer "+h.token(t, "0xa"))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Profiles []forestView `json:"profiles"`
	}
	decode(t, resp, &body)
	require.Len(t, body.Profiles, 2)
	assert.Equal(t, "0xa", body.Profiles[0].Owner.ID)
	assert.Equal(t, "bob.test", body.Profiles[1].Owner.Handle)
	assert.Equal(t, "Pads", body.Profiles[1].Roots[0].Title)
}

func TestPublish_RequiresAuth(t *testing.T) {
	h := newHarness(t)
	resp := h.publish(t, "", map[string]string{"name": "x"}, []byte("RIFF"))
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPublish_OriginalStreamsProgress(t *testing.T) {
	h := newHarness(t)

	wsURL := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws/progress?token=" + h.token(t, "0xa")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return h.hub.SubscriberCount("0xa") == 1 }, time.Second, time.Millisecond)

	resp := h.publish(t, "0xa", map[string]string{"name": "Guitar", "description": "clean"}, []byte("RIFF-guitar"))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var body publishResponse
	decode(t, resp, &body)
	assert.Equal(t, "done", body.Stage)
	require.NotNil(t, body.Result)
	assert.False(t, body.Result.Remix)
	assert.Equal(t, "0xpost", body.Result.Pending.Ref)

	posts, _, _ := h.ledger.snapshot()
	require.Len(t, posts, 1)
	assert.Equal(t, "0xa", posts[0].ProfileID)
	assert.Equal(t, body.Result.ContentLocator, posts[0].ContentURI)
	assert.Equal(t, []string{"0xa"}, h.cache.owners())

	var stages []string
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)
		var m progress.Message
		require.NoError(t, json.Unmarshal(raw, &m))
		if m.Type == progress.MsgTypeDone {
			break
		}
		stages = append(stages, m.Stage)
	}
	require.NotEmpty(t, stages)
	assert.Equal(t, workflow.StageReadingFile.String(), stages[0])
	assert.NotContains(t, stages, workflow.StageMixing.String())
}

func TestPublish_Remix(t *testing.T) {
	h := newHarness(t)
	resp := h.publish(t, "0xb", map[string]string{"name": "Keys", "parentId": "0xa-0x02"}, []byte("RIFF-keys"))
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	_, comments, _ := h.ledger.snapshot()
	require.Len(t, comments, 1)
	c := comments[0]
	assert.Equal(t, "0xb", c.ProfileID)
	assert.Equal(t, "0xa", c.ProfileIDPointed)
	assert.Equal(t, "0x02", c.PubIDPointed)
}

func TestPublish_Errors(t *testing.T) {
	h := newHarness(t)

	resp := h.publish(t, "0xa", map[string]string{"name": "NoFile"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	var body errorBody
	decode(t, resp, &body)
	assert.Equal(t, workflow.ErrInput.Error(), body.Kind)
	assert.Equal(t, workflow.StageReadingFile.String(), body.Stage)

	resp = h.publish(t, "0xa", map[string]string{"name": "x", "parentId": "0xa-0x77"}, []byte("RIFF"))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = h.publish(t, "0xa", map[string]string{"name": "x", "parentId": "nodash"}, []byte("RIFF"))
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	h.ledger.setErr(assert.AnError)
	resp = h.publish(t, "0xa", map[string]string{"name": "x"}, []byte("RIFF"))
	assert.Equal(t, http.StatusFailedDependency, resp.StatusCode)
	assert.Empty(t, h.cache.owners())
}

func TestPublish_BusyOwner(t *testing.T) {
	h := newHarness(t)
	require.True(t, h.hub.Begin("0xa"))
	defer h.hub.End("0xa")

	resp := h.publish(t, "0xa", map[string]string{"name": "x"}, []byte("RIFF"))
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	tracks, err := http.Get(h.srv.URL + "/api/profiles/0xa/tracks")
	require.NoError(t, err)
	defer tracks.Body.Close()
	var fv forestView
	decode(t, tracks, &fv)
	assert.True(t, fv.Publishing)
}

func TestCollect(t *testing.T) {
	h := newHarness(t)
	req, _ := http.NewRequest(http.MethodPost, h.srv.URL+"/api/publications/0xa-0x01/collect", nil)
	req.Header.Set("Authorization", "Bearer "+h.token(t, "0xb"))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	_, _, collects := h.ledger.snapshot()
	require.Len(t, collects, 1)
	assert.Equal(t, ledger.CollectRequest{CollectorID: "0xb", ProfileID: "0xa", PubID: "0x01"}, collects[0])
}

func TestFollow_NotAvailableWithoutLocalLedger(t *testing.T) {
	h := newHarness(t)
	req, _ := http.NewRequest(http.MethodPost, h.srv.URL+"/api/profiles/0xb/follow", nil)
	req.Header.Set("Authorization", "Bearer "+h.token(t, "0xa"))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)
}

func TestFollow_InvalidatesFollowingSnapshot(t *testing.T) {
	follower := &fakeFollower{}
	h := newHarnessWith(t, func(d *Deps) { d.Follower = follower })

	follow := func(target string) int {
		req, _ := http.NewRequest(http.MethodPost, h.srv.URL+"/api/profiles/"+target+"/follow", nil)
		req.Header.Set("Authorization", "Bearer "+h.token(t, "0xa"))
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		resp.Body.Close()
		return resp.StatusCode
	}

	assert.Equal(t, http.StatusNoContent, follow("0xb"))
	assert.Equal(t, []string{"0xa"}, h.cache.followers())
	assert.Equal(t, [][2]string{{"0xa", "0xb"}}, follower.edges)

	assert.Equal(t, http.StatusBadRequest, follow("0xa"))
	assert.Equal(t, []string{"0xa"}, h.cache.followers())
}

func TestContent(t *testing.T) {
	h := newHarness(t)
	cid, err := h.blobs.Store(context.Background(), []byte("RIFF-data"), "audio/wav")
	require.NoError(t, err)

	resp, err := http.Get(h.srv.URL + "/ipfs/" + cid)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "audio/wav", resp.Header.Get("Content-Type"))
	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "RIFF-data", buf.String())

	missing, err := http.Get(h.srv.URL + "/ipfs/" + storage.ContentID([]byte("nope")))
	require.NoError(t, err)
	defer missing.Body.Close()
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)

	bad, err := http.Get(h.srv.URL + "/ipfs/xyz")
	require.NoError(t, err)
	defer bad.Body.Close()
	assert.Equal(t, http.StatusBadRequest, bad.StatusCode)
}

func TestProgress_RejectsBadToken(t *testing.T) {
	h := newHarness(t)
	resp, err := http.Get(h.srv.URL + "/ws/progress?token=bad")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestStatusOf(t *testing.T) {
	cases := map[error]int{
		&workflow.Error{Kind: workflow.ErrInput}:      http.StatusBadRequest,
		workflow.ErrBusy:                              http.StatusConflict,
		&workflow.Error{Kind: workflow.ErrStorage}:    http.StatusBadGateway,
		&workflow.Error{Kind: workflow.ErrMix}:        http.StatusBadGateway,
		&workflow.Error{Kind: workflow.ErrChainWrite}: http.StatusFailedDependency,
		&workflow.Error{Kind: workflow.ErrInternal}:   http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, statusOf(err), err.Error())
	}
}

func TestMimeOf(t *testing.T) {
	assert.Equal(t, "audio/wav", mimeOf("application/octet-stream", "a.wav"))
	assert.Equal(t, "audio/ogg", mimeOf("audio/ogg", "a.bin"))
	assert.Equal(t, "audio/mpeg", mimeOf("", "A.MP3"))
	assert.Equal(t, "audio/wav", mimeOf("audio/x-wav", "take.bin"))
	assert.Equal(t, "audio/wav", mimeOf("audio/wave", "take"))
	assert.Equal(t, "audio/mpeg", mimeOf("audio/mp3", "take"))
	assert.Equal(t, "audio/wav", mimeOf("audio/m4a", "take.wav"))
}

func TestPublish_BrowserWavAlias(t *testing.T) {
	h := newHarness(t)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("name", "Take"))
	part := textproto.MIMEHeader{}
	part.Set("Content-Disposition", `form-data; name="file"; filename="take.wav"`)
	part.Set("Content-Type", "audio/x-wav")
	fw, err := mw.CreatePart(part)
	require.NoError(t, err)
	_, err = fw.Write([]byte("RIFF-take"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req, err := http.NewRequest(http.MethodPost, h.srv.URL+"/api/tracks", &body)
	require.NoError(t, err)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+h.token(t, "0xa"))
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
}
