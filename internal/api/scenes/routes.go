package scenes

import (
	"log"
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterSceneRoutes registers the scene gateway and its REST routes.
func RegisterSceneRoutes(r *mux.Router, handler *SceneHandler) {
	r.HandleFunc("/ws/scene/{scene_id}/", handler.ServeWS).Methods(http.MethodGet)
	r.HandleFunc("/ws/scene/{scene_id}", handler.ServeWS).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1/scenes").Subrouter()
	api.HandleFunc("/{scene_id}", logged(handler.GetScene)).Methods(http.MethodGet)
	api.HandleFunc("/{scene_id}/posts", logged(handler.ListPosts)).Methods(http.MethodGet)
	api.HandleFunc("/{scene_id}/close", logged(handler.CloseScene)).Methods(http.MethodPost)

	r.HandleFunc("/up", handler.Up).Methods(http.MethodGet)
}

func logged(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		log.Printf("[Scene] %s %s", r.Method, r.URL.Path)
		next(w, r)
	}
}
