package scenes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vasu1712/scenyx-narrator/internal/auth"
	"github.com/Vasu1712/scenyx-narrator/internal/dice"
	"github.com/Vasu1712/scenyx-narrator/internal/middleware"
	"github.com/Vasu1712/scenyx-narrator/internal/models"
	"github.com/Vasu1712/scenyx-narrator/internal/narration"
	"github.com/Vasu1712/scenyx-narrator/internal/storage/memory"
	"github.com/Vasu1712/scenyx-narrator/internal/ws"
)

const sceneID = "s1"

type testServer struct {
	srv   *httptest.Server
	hub   *ws.Hub
	store *memory.SceneStore
	authn *auth.Authenticator
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ctx := context.Background()

	store := memory.NewSceneStore()
	characters := []models.Character{
		{ID: "c1", Name: "Mara Voss", OwnerID: "user-a", Willpower: 2, Stats: map[string]int{"dexterity": 3, "firearms": 2}},
		{ID: "c2", Name: "Ilya", OwnerID: "user-b"},
		{ID: "42", Name: "Nameless", OwnerID: "user-a"},
	}
	for _, c := range characters {
		_, err := store.CreateCharacter(ctx, c)
		require.NoError(t, err)
	}
	_, err := store.CreateScene(ctx, models.Scene{ID: sceneID, Name: "Elysium"})
	require.NoError(t, err)
	for _, id := range []string{"c1", "c2"} {
		_, err := store.AddCharacterToScene(ctx, sceneID, id)
		require.NoError(t, err)
	}

	hubCtx, cancel := context.WithCancel(ctx)
	t.Cleanup(cancel)
	hub := ws.NewHub()
	go hub.Run(hubCtx)

	roller, err := dice.NewSeededRoller()
	require.NoError(t, err)
	authn, err := auth.NewAuthenticator("test-secret")
	require.NoError(t, err)

	router := mux.NewRouter()
	RegisterSceneRoutes(router, NewSceneHandler(narration.NewService(store, hub, roller), hub, "http://127.0.0.1:5173"))
	srv := httptest.NewServer(middleware.Authenticate(authn)(router))
	t.Cleanup(srv.Close)

	return &testServer{srv: srv, hub: hub, store: store, authn: authn}
}

func (ts *testServer) token(t *testing.T, userID string, storyteller bool) string {
	t.Helper()
	token, err := ts.authn.Issue(userID, storyteller, time.Hour)
	require.NoError(t, err)
	return token
}

func (ts *testServer) wsURL(scene, token string) string {
	u := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws/scene/" + scene + "/"
	if token != "" {
		u += "?token=" + token
	}
	return u
}

// connect dials the scene as userID and waits until the hub has subscribed
// users distinct users to it.
func (ts *testServer) connect(t *testing.T, userID string, users int) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(ts.wsURL(sceneID, ts.token(t, userID, false)), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	require.Eventually(t, func() bool {
		return ts.hub.ActiveUsers(sceneID) == users
	}, 2*time.Second, 10*time.Millisecond)
	return conn
}

func (ts *testServer) do(t *testing.T, method, path, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.srv.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func send(t *testing.T, conn *websocket.Conn, msg map[string]any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

func chat(t *testing.T, conn *websocket.Conn, characterID any, message string) {
	t.Helper()
	send(t, conn, map[string]any{"type": TypeChatMessage, "character_id": characterID, "message": message})
}

func readEvent(t *testing.T, conn *websocket.Conn) narration.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var event narration.Event
	require.NoError(t, json.Unmarshal(data, &event))
	return event
}

// readUntilClosed drains events until the server ends the connection.
func readUntilClosed(t *testing.T, conn *websocket.Conn) error {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				t.Fatalf("connection was not closed: %v", err)
			}
			return err
		}
	}
}

func TestServeWSRefusesBeforeUpgrade(t *testing.T) {
	ts := newTestServer(t)

	tcs := []struct {
		name   string
		url    string
		status int
	}{
		{name: "no token", url: ts.wsURL(sceneID, ""), status: http.StatusUnauthorized},
		{name: "forged token", url: ts.wsURL(sceneID, "not-a-jwt"), status: http.StatusUnauthorized},
		{name: "unknown scene", url: ts.wsURL("missing", ts.token(t, "user-a", false)), status: http.StatusNotFound},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			conn, resp, err := websocket.DefaultDialer.Dial(tc.url, nil)
			require.ErrorIs(t, err, websocket.ErrBadHandshake)
			assert.Nil(t, conn)
			require.NotNil(t, resp)
			assert.Equal(t, tc.status, resp.StatusCode)
		})
	}
	assert.Zero(t, ts.hub.ActiveUsers(sceneID))
}

func TestServeWSRejectsForeignOrigin(t *testing.T) {
	ts := newTestServer(t)

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(ts.wsURL(sceneID, ts.token(t, "user-a", false)), header)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header = http.Header{"Origin": []string{"http://127.0.0.1:5173"}}
	conn, _, err := websocket.DefaultDialer.Dial(ts.wsURL(sceneID, ts.token(t, "user-a", false)), header)
	require.NoError(t, err)
	_ = conn.Close()
}

func TestChatMessageReachesEverySubscriber(t *testing.T) {
	ts := newTestServer(t)
	a := ts.connect(t, "user-a", 1)
	b := ts.connect(t, "user-b", 2)

	chat(t, a, "c1", "Hello, world!")

	for _, conn := range []*websocket.Conn{a, b} {
		event := readEvent(t, conn)
		assert.Equal(t, narration.TypeNewPost, event.Type)
		require.NotNil(t, event.Post)
		assert.Equal(t, "Hello, world!", event.Post.Message)
		assert.Equal(t, "Mara Voss", event.Post.CharacterName)
	}

	posts, err := ts.store.ListPosts(context.Background(), sceneID)
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.Equal(t, "Hello, world!", posts[0].Message)
}

func TestConcurrentPostsArriveInOneOrder(t *testing.T) {
	ts := newTestServer(t)
	a := ts.connect(t, "user-a", 1)
	b := ts.connect(t, "user-b", 2)

	const perConn = 15
	var wg sync.WaitGroup
	for _, sender := range []struct {
		conn        *websocket.Conn
		characterID string
	}{{a, "c1"}, {b, "c2"}} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perConn {
				msg := map[string]any{"type": TypeChatMessage, "character_id": sender.characterID, "message": fmt.Sprintf("%s line %d", sender.characterID, i)}
				assert.NoError(t, sender.conn.WriteJSON(msg))
			}
		}()
	}
	wg.Wait()

	received := func(conn *websocket.Conn) []string {
		ids := make([]string, 0, 2*perConn)
		var last int64
		for range 2 * perConn {
			event := readEvent(t, conn)
			require.Equal(t, narration.TypeNewPost, event.Type, "got %q", event.Message)
			require.NotNil(t, event.Post)
			assert.Greater(t, event.Post.Sequence, last)
			last = event.Post.Sequence
			ids = append(ids, event.Post.ID)
		}
		return ids
	}
	fromA := received(a)
	fromB := received(b)
	assert.Equal(t, fromA, fromB)

	posts, err := ts.store.ListPosts(context.Background(), sceneID)
	require.NoError(t, err)
	require.Len(t, posts, 2*perConn)
	stored := make([]string, len(posts))
	for i, post := range posts {
		stored[i] = post.ID
	}
	assert.Equal(t, stored, fromA)
}

func TestRejectionGoesToSenderOnly(t *testing.T) {
	ts := newTestServer(t)
	a := ts.connect(t, "user-a", 1)
	b := ts.connect(t, "user-b", 2)

	chat(t, a, "c2", "Pretending to be Ilya")
	event := readEvent(t, a)
	assert.Equal(t, narration.TypeError, event.Type)
	assert.Contains(t, event.Message, "own characters")

	// The connection stays usable and B's next frame is B's own post.
	chat(t, b, "c2", "Ilya waits.")
	for _, conn := range []*websocket.Conn{b, a} {
		event := readEvent(t, conn)
		assert.Equal(t, narration.TypeNewPost, event.Type)
		assert.Equal(t, "Ilya waits.", event.Post.Message)
	}

	posts, err := ts.store.ListPosts(context.Background(), sceneID)
	require.NoError(t, err)
	assert.Len(t, posts, 1)
}

func TestEmptyMessageIsAnError(t *testing.T) {
	ts := newTestServer(t)
	a := ts.connect(t, "user-a", 1)

	chat(t, a, "c1", "   ")
	event := readEvent(t, a)
	assert.Equal(t, narration.TypeError, event.Type)
	assert.Contains(t, strings.ToLower(event.Message), "empty")

	posts, err := ts.store.ListPosts(context.Background(), sceneID)
	require.NoError(t, err)
	assert.Empty(t, posts)
}

func TestStatRollOverTheWire(t *testing.T) {
	ts := newTestServer(t)
	a := ts.connect(t, "user-a", 1)

	chat(t, a, "c1", "Shooting /stat Dexterity + Firearms")
	event := readEvent(t, a)
	require.Equal(t, narration.TypeNewPost, event.Type)
	assert.Contains(t, event.Post.Message, "Dexterity (3)")
	assert.Contains(t, event.Post.Message, "Firearms (2)")
	assert.Contains(t, event.Post.Message, "= 5 dice")
	assert.Contains(t, event.Post.Message, "difficulty 6")

	chat(t, a, "c1", "/stat Brawl")
	event = readEvent(t, a)
	assert.Equal(t, narration.TypeError, event.Type)
	assert.Contains(t, event.Message, "Brawl")
}

func TestMarkupAndQuotesOverTheWire(t *testing.T) {
	ts := newTestServer(t)
	a := ts.connect(t, "user-a", 1)

	markup := `<img src=x onerror="alert('XSS')">`
	chat(t, a, "c1", markup)
	assert.Equal(t, markup, readEvent(t, a).Post.Message)

	chat(t, a, "c1", "‘test’")
	assert.Equal(t, "'test'", readEvent(t, a).Post.Message)

	posts, err := ts.store.ListPosts(context.Background(), sceneID)
	require.NoError(t, err)
	require.Len(t, posts, 2)
	assert.Equal(t, markup, posts[0].Message)
	assert.Equal(t, "'test'", posts[1].Message)
}

func TestStorytellerEscalationIsAcknowledged(t *testing.T) {
	ts := newTestServer(t)
	a := ts.connect(t, "user-a", 1)
	b := ts.connect(t, "user-b", 2)

	chat(t, a, "c1", "@storyteller may I pick the lock?")
	event := readEvent(t, a)
	assert.Equal(t, narration.SystemMessageEvent("Message sent to storyteller"), event)

	chat(t, a, "c1", "Mara waits.")
	assert.Equal(t, "Mara waits.", readEvent(t, b).Post.Message)
	assert.Equal(t, "Mara waits.", readEvent(t, a).Post.Message)

	scene, err := ts.store.GetScene(context.Background(), sceneID)
	require.NoError(t, err)
	assert.True(t, scene.WaitingForStoryteller)
}

func TestAddCharacterWithNumericID(t *testing.T) {
	ts := newTestServer(t)
	a := ts.connect(t, "user-a", 1)
	b := ts.connect(t, "user-b", 2)

	send(t, a, map[string]any{"type": TypeAddCharacter, "character_id": 42})
	for _, conn := range []*websocket.Conn{a, b} {
		event := readEvent(t, conn)
		assert.Equal(t, narration.TypeCharacterAdded, event.Type)
		require.NotNil(t, event.Character)
		assert.Equal(t, "Nameless", event.Character.Name)
	}

	send(t, a, map[string]any{"type": TypeAddCharacter, "character_id": "42"})
	event := readEvent(t, a)
	assert.Equal(t, narration.TypeSystemMessage, event.Type)
	assert.Contains(t, event.Message, "already")

	chat(t, a, 42, "Nameless steps in.")
	event = readEvent(t, a)
	assert.Equal(t, narration.TypeNewPost, event.Type)
	assert.Equal(t, "Nameless", event.Post.CharacterName)

	send(t, b, map[string]any{"type": TypeAddCharacter, "character_id": "c1"})
	event = readEvent(t, b)
	assert.Equal(t, narration.TypeError, event.Type)
	assert.Equal(t, auth.ReasonAddNotOwner, event.Message)
}

func TestUnknownTypeKeepsConnectionOpen(t *testing.T) {
	ts := newTestServer(t)
	a := ts.connect(t, "user-a", 1)

	send(t, a, map[string]any{"type": "dance"})
	event := readEvent(t, a)
	assert.Equal(t, narration.TypeError, event.Type)
	assert.Contains(t, event.Message, "dance")

	chat(t, a, "c1", "Still here.")
	assert.Equal(t, narration.TypeNewPost, readEvent(t, a).Type)
}

func TestInvalidFramesCloseConnection(t *testing.T) {
	ts := newTestServer(t)
	a := ts.connect(t, "user-a", 1)

	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte("not json")))
	event := readEvent(t, a)
	assert.Equal(t, narration.ErrorEvent("Invalid message format"), event)

	// A good frame resets the count.
	chat(t, a, "c1", "ok")
	assert.Equal(t, narration.TypeNewPost, readEvent(t, a).Type)

	for range maxBadFrames {
		require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte("{")))
	}
	err := readUntilClosed(t, a)
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)

	require.Eventually(t, func() bool {
		return ts.hub.ActiveUsers(sceneID) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestFloodingClosesConnection(t *testing.T) {
	ts := newTestServer(t)
	a := ts.connect(t, "user-a", 1)

	frame := []byte(`{"type":"noop"}`)
	for range 5 * framesPerSecond {
		if err := a.WriteMessage(websocket.TextMessage, frame); err != nil {
			break
		}
	}
	err := readUntilClosed(t, a)
	if websocket.IsCloseError(err) {
		assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), "got %v", err)
	}

	require.Eventually(t, func() bool {
		return ts.hub.ActiveUsers(sceneID) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSceneREST(t *testing.T) {
	ts := newTestServer(t)
	a := ts.connect(t, "user-a", 1)
	playerToken := ts.token(t, "user-b", false)
	storytellerToken := ts.token(t, "st", true)

	resp := ts.do(t, http.MethodGet, "/api/v1/scenes/"+sceneID, "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/v1/scenes/missing", playerToken)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = ts.do(t, http.MethodGet, "/api/v1/scenes/"+sceneID, playerToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var scene struct {
		ID           string   `json:"id"`
		Name         string   `json:"name"`
		Finished     bool     `json:"finished"`
		CharacterIDs []string `json:"character_ids"`
		ActiveUsers  int      `json:"active_users"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&scene))
	assert.Equal(t, "Elysium", scene.Name)
	assert.Equal(t, []string{"c1", "c2"}, scene.CharacterIDs)
	assert.Equal(t, 1, scene.ActiveUsers)

	chat(t, a, "c1", "First post")
	require.Equal(t, narration.TypeNewPost, readEvent(t, a).Type)

	resp = ts.do(t, http.MethodGet, "/api/v1/scenes/"+sceneID+"/posts", playerToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var posts []models.Post
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&posts))
	require.Len(t, posts, 1)
	assert.Equal(t, "First post", posts[0].Message)
	assert.Equal(t, int64(1), posts[0].Sequence)

	resp = ts.do(t, http.MethodPost, "/api/v1/scenes/"+sceneID+"/close", playerToken)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = ts.do(t, http.MethodPost, "/api/v1/scenes/"+sceneID+"/close", storytellerToken)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, narration.SystemMessageEvent("The scene has ended"), readEvent(t, a))

	resp = ts.do(t, http.MethodPost, "/api/v1/scenes/"+sceneID+"/close", storytellerToken)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	chat(t, a, "c1", "Too late")
	event := readEvent(t, a)
	assert.Equal(t, narration.TypeError, event.Type)
	assert.Contains(t, event.Message, "finished")

	resp = ts.do(t, http.MethodGet, "/up", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
