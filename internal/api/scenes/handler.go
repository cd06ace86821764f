// Package scenes serves the scene gateway: the per-scene WebSocket endpoint
// and the small REST surface around it.
package scenes

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/Vasu1712/scenyx-narrator/internal/auth"
	"github.com/Vasu1712/scenyx-narrator/internal/models"
	"github.com/Vasu1712/scenyx-narrator/internal/narration"
	"github.com/Vasu1712/scenyx-narrator/internal/storage"
	"github.com/Vasu1712/scenyx-narrator/internal/ws"
)

// SceneHandler holds the dependencies of the scene routes.
type SceneHandler struct {
	Service  *narration.Service
	Hub      *ws.Hub
	upgrader websocket.Upgrader
}

// NewSceneHandler builds a handler whose WebSocket upgrades accept same-host
// requests and requests from allowedOrigin.
func NewSceneHandler(service *narration.Service, hub *ws.Hub, allowedOrigin string) *SceneHandler {
	return &SceneHandler{
		Service: service,
		Hub:     hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" || origin == allowedOrigin {
					return true
				}
				u, err := url.Parse(origin)
				return err == nil && u.Host == r.Host
			},
		},
	}
}

// ServeWS runs one scene connection from handshake to close.
func (h *SceneHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	sceneID := mux.Vars(r)["scene_id"]
	log.Printf("[WS] Connecting: scene %s from %s", sceneID, r.RemoteAddr)

	id, _ := auth.IdentityFrom(r.Context())
	scene, err := h.Service.Guard().AuthorizeConnect(r.Context(), id, sceneID)
	if err != nil {
		status := refusalStatus(err)
		log.Printf("[WS] Refused connection to scene %s: %v", sceneID, err)
		http.Error(w, http.StatusText(status), status)
		return
	}
	log.Printf("[WS] Authorized: user %s for scene %s", id.UserID, scene.ID)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] Failed to upgrade connection for scene %s: %v", scene.ID, err)
		return
	}

	client := ws.NewClient(conn, id.UserID, scene.ID)
	if err := h.Hub.Register(r.Context(), client); err != nil {
		log.Printf("[WS] Failed to subscribe user %s to scene %s: %v", id.UserID, scene.ID, err)
		client.CloseWithReason(websocket.CloseGoingAway, "server shutting down")
		return
	}
	log.Printf("[WS] Subscribed: user %s to scene %s", id.UserID, scene.ID)

	go client.WritePump()

	s := newSession(r.Context(), h, client, id)
	log.Printf("[WS] Active: user %s in scene %s", id.UserID, scene.ID)
	client.ReadPump(s.handle)

	h.Hub.Unregister(client)
	log.Printf("[WS] Closed: user %s in scene %s", id.UserID, scene.ID)
}

func refusalStatus(err error) int {
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrSceneNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

type sceneView struct {
	*models.Scene
	ActiveUsers int `json:"active_users"`
}

// GetScene returns a scene with the number of users connected to it.
func (h *SceneHandler) GetScene(w http.ResponseWriter, r *http.Request) {
	scene, ok := h.loadScene(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, sceneView{Scene: scene, ActiveUsers: h.Hub.ActiveUsers(scene.ID)})
	log.Printf("[Scene] Retrieved scene %s (members: %d)", scene.ID, len(scene.CharacterIDs))
}

// ListPosts returns a scene's post log in order.
func (h *SceneHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	scene, ok := h.loadScene(w, r)
	if !ok {
		return
	}
	posts, err := h.Service.Posts(r.Context(), scene.ID)
	if err != nil {
		log.Printf("[Scene] Failed to list posts for scene %s: %v", scene.ID, err)
		http.Error(w, "Failed to list posts", http.StatusInternalServerError)
		return
	}
	if posts == nil {
		posts = []*models.Post{}
	}
	writeJSON(w, http.StatusOK, posts)
	log.Printf("[Scene] Listed %d posts for scene %s", len(posts), scene.ID)
}

// CloseScene finishes a scene on a storyteller's request.
func (h *SceneHandler) CloseScene(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.IdentityFrom(r.Context())
	scene, err := h.Service.CloseScene(r.Context(), id, mux.Vars(r)["scene_id"])
	switch {
	case errors.Is(err, auth.ErrUnauthenticated):
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	case errors.Is(err, narration.ErrNotStoryteller):
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, "Scene not found", http.StatusNotFound)
		return
	case err != nil:
		log.Printf("[Scene] Failed to close scene %s: %v", mux.Vars(r)["scene_id"], err)
		http.Error(w, "Failed to close scene", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, sceneView{Scene: scene, ActiveUsers: h.Hub.ActiveUsers(scene.ID)})
}

// Up reports liveness.
func (h *SceneHandler) Up(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *SceneHandler) loadScene(w http.ResponseWriter, r *http.Request) (*models.Scene, bool) {
	if _, ok := auth.IdentityFrom(r.Context()); !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return nil, false
	}
	sceneID := mux.Vars(r)["scene_id"]
	scene, err := h.Service.Scene(r.Context(), sceneID)
	if errors.Is(err, storage.ErrNotFound) {
		http.Error(w, "Scene not found", http.StatusNotFound)
		log.Printf("[Scene] Scene not found for ID: %s", sceneID)
		return nil, false
	}
	if err != nil {
		log.Printf("[Scene] Failed to load scene %s: %v", sceneID, err)
		http.Error(w, "Failed to load scene", http.StatusInternalServerError)
		return nil, false
	}
	return scene, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[Scene] Failed to write response: %v", err)
	}
}
