package wsbridge

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mcdev12/wordgame/go/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeController struct {
	mu      sync.Mutex
	actions []string
}

func (f *fakeController) record(a string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.actions = append(f.actions, a)
}

func (f *fakeController) StartGame() { f.record("start") }
func (f *fakeController) SubmitLetterGuess(l string) { f.record("guess:" + l) }
func (f *fakeController) EndRoundEarly() { f.record("end_round") }
func (f *fakeController) ReturnToMenu() { f.record("menu") }
func (f *fakeController) RetryMatchmaking() { f.record("retry") }

func (f *fakeController) Actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.actions...)
}

func startBridge(t *testing.T, control Controller) (*Bridge, *websocket.Conn) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	b := New(DefaultConnectionConfig(), control)
	go b.Start(ctx)

	srv := httptest.NewServer(b.Handler())
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return b.ConnectionCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	return b, conn
}

func TestPublishedNotificationReachesClient(t *testing.T) {
	b, conn := startBridge(t, nil)

	n := notify.New(notify.KindWord, time.Now())
	n.Word = "H______"
	b.Publish(n)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var got notify.Notification
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, notify.KindWord, got.Kind)
	assert.Equal(t, "H______", got.Word)
	assert.Equal(t, n.ID, got.ID)
}

func TestClientCommandsReachController(t *testing.T) {
	control := &fakeController{}
	_, conn := startBridge(t, control)

	for _, cmd := range []Command{
		{Action: ActionStart},
		{Action: ActionGuess, Letter: "a"},
		{Action: "bogus"},
		{Action: ActionEndRound},
		{Action: ActionRetry},
		{Action: ActionMenu},
	} {
		require.NoError(t, conn.WriteJSON(cmd))
	}
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	require.Eventually(t, func() bool { return len(control.Actions()) == 5 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"start", "guess:a", "end_round", "retry", "menu"}, control.Actions())
}

func TestDispatchWithoutController(t *testing.T) {
	b := New(DefaultConnectionConfig(), nil)
	assert.Error(t, b.dispatch(Command{Action: ActionStart}))

	control := &fakeController{}
	b.SetController(control)
	require.NoError(t, b.dispatch(Command{Action: "GUESS", Letter: "z"}))
	assert.Equal(t, []string{"guess:z"}, control.Actions())
}

func TestPublishNeverBlocks(t *testing.T) {
	b := New(DefaultConnectionConfig(), nil)
	done := make(chan struct{})
	go func() {
		for i := 0; i < 2000; i++ {
			b.Publish(notify.New(notify.KindStatus, time.Now()))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked with no broadcaster running")
	}
}
