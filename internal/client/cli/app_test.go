package cli

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"chatlink/internal/chat"
	"chatlink/internal/config"
	"chatlink/internal/conn"
	"chatlink/internal/lifecycle"
	"chatlink/internal/media"
	"chatlink/internal/notify"
	"chatlink/internal/prefs"
	"chatlink/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSessions struct {
	state session.State
}

func (f *fakeSessions) Login(ctx context.Context, username, password, tenantID string) (session.State, error) {
	return f.state, nil
}
func (f *fakeSessions) Logout(ctx context.Context) error { return nil }
func (f *fakeSessions) Current() session.State           { return f.state }

type fakeConn struct {
	startErrs int
	starts    int
	stops     int
	state     conn.State
}

func (f *fakeConn) Start(ctx context.Context) error {
	f.starts++
	if f.starts <= f.startErrs {
		return errors.New("dial failed")
	}
	return nil
}
func (f *fakeConn) Stop(ctx context.Context) error { f.stops++; return nil }
func (f *fakeConn) State() conn.State              { return f.state }

type fakeChats struct {
	open string
	sent []string
}

func (f *fakeChats) Conversations(ctx context.Context) ([]chat.Conversation, error) { return nil, nil }
func (f *fakeChats) Select(ctx context.Context, id string) ([]chat.Message, error) {
	f.open = id
	return nil, nil
}
func (f *fakeChats) Send(ctx context.Context, id, body string) error {
	f.sent = append(f.sent, body)
	return nil
}
func (f *fakeChats) Open() string { return f.open }

type fakeUploads struct {
	items []media.Item
	err   error
}

func (f *fakeUploads) UploadOne(ctx context.Context, item media.Item) (media.AttachmentRef, error) {
	f.items = append(f.items, item)
	if f.err != nil {
		return media.AttachmentRef{}, f.err
	}
	return media.AttachmentRef{FileName: item.FileName, StorageURL: "https://cdn.example.com/" + item.FileName}, nil
}

type memPrefs struct {
	values map[string]string
}

func (m *memPrefs) Get(ctx context.Context, key string) (string, error) { return m.values[key], nil }
func (m *memPrefs) Set(ctx context.Context, key, value string) error {
	m.values[key] = value
	return nil
}
func (m *memPrefs) Delete(ctx context.Context, key string) error {
	delete(m.values, key)
	return nil
}

func newTestApp(t *testing.T) (*App, *fakeConn, *fakeUploads, *memPrefs, *bytes.Buffer) {
	t.Helper()
	cfg := &config.Config{}
	cfg.LoadDefaults()

	fc := &fakeConn{}
	fu := &fakeUploads{}
	mp := &memPrefs{values: make(map[string]string)}
	out := &bytes.Buffer{}

	app := NewApp(cfg, &fakeSessions{}, fc, &fakeChats{}, fu, notify.NewCenter(10), lifecycle.NewManualSource(), mp, nil)
	app.out = out
	app.retryBase = time.Millisecond
	return app, fc, fu, mp, out
}

func TestStartConnectionRetries(t *testing.T) {
	app, fc, _, _, _ := newTestApp(t)
	fc.startErrs = 2

	require.NoError(t, app.startConnection(context.Background()))
	assert.Equal(t, 3, fc.starts)
}

func TestStartConnectionGivesUp(t *testing.T) {
	app, fc, _, _, _ := newTestApp(t)
	fc.startErrs = 100

	err := app.startConnection(context.Background())
	require.Error(t, err)
	// initial attempt plus four retries
	assert.Equal(t, 5, fc.starts)
}

func TestEnvSwitchPersists(t *testing.T) {
	app, _, _, mp, _ := newTestApp(t)

	app.env(context.Background(), []string{"Development"})

	assert.Equal(t, "Development", app.cfg.Environment)
	assert.Equal(t, "Development", mp.values[prefs.KeyEnvironment])
}

func TestEnvSwitchRejectsUnknown(t *testing.T) {
	app, _, _, mp, out := newTestApp(t)

	app.env(context.Background(), []string{"Production"})

	assert.Equal(t, "QA", app.cfg.Environment)
	assert.Empty(t, mp.values)
	assert.Contains(t, out.String(), "unknown environment")
}

func TestRestoreEnvironment(t *testing.T) {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	mp := &memPrefs{values: map[string]string{prefs.KeyEnvironment: "DevelopmentHost"}}

	RestoreEnvironment(context.Background(), cfg, mp)
	assert.Equal(t, "DevelopmentHost", cfg.Environment)
}

func TestUploadRecompressesImages(t *testing.T) {
	app, _, fu, _, out := newTestApp(t)

	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 8), G: uint8(y * 8), B: 0, A: 255})
		}
	}
	path := filepath.Join(t.TempDir(), "pic.png")
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o600))

	app.upload(context.Background(), path)

	require.Len(t, fu.items, 1)
	// images always go up as recompressed JPEGs
	assert.Equal(t, "image/jpeg", fu.items[0].MIMEType)
	assert.Contains(t, out.String(), "Uploaded")
}

func TestUploadRejectsUnknownExtension(t *testing.T) {
	app, _, fu, _, out := newTestApp(t)

	app.upload(context.Background(), "notes.txt")

	assert.Empty(t, fu.items)
	assert.Contains(t, out.String(), "Unsupported file type")
}

func TestSplitTarget(t *testing.T) {
	cases := []struct {
		in   string
		addr string
		host string
	}{
		{"devbox.local", "devbox.local:443", "devbox.local"},
		{"devbox.local:8443", "devbox.local:8443", "devbox.local"},
		{"10.0.10.21:8443", "10.0.10.21:8443", "10.0.10.21"},
		{"::1", "[::1]:443", "::1"},
		{"[::1]:8443", "[::1]:8443", "::1"},
	}
	for _, tc := range cases {
		addr, host := splitTarget(tc.in)
		assert.Equal(t, tc.addr, addr, tc.in)
		assert.Equal(t, tc.host, host, tc.in)
	}
}

func TestSendRequiresOpenConversation(t *testing.T) {
	app, _, _, _, out := newTestApp(t)

	app.send(context.Background(), "hello")
	assert.Contains(t, out.String(), "No conversation open")
}
