package about

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/zzstop/hw05-final/service/render"
)

type Handler struct {
	render *render.Renderer
}

func NewHandler(rd *render.Renderer) *Handler {
	return &Handler{render: rd}
}

func (h *Handler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/about/author/", h.page("about/author.html")).Methods("GET")
	router.HandleFunc("/about/tech/", h.page("about/tech.html")).Methods("GET")
}

func (h *Handler) page(name string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.render.HTML(w, r, http.StatusOK, name, nil)
	}
}
