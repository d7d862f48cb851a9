package api

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"gorm.io/gorm"

	"github.com/zzstop/hw05-final/cmd/config"
	"github.com/zzstop/hw05-final/cmd/utils"
	"github.com/zzstop/hw05-final/service/about"
	"github.com/zzstop/hw05-final/service/cache"
	"github.com/zzstop/hw05-final/service/follow"
	"github.com/zzstop/hw05-final/service/mail"
	"github.com/zzstop/hw05-final/service/posts"
	"github.com/zzstop/hw05-final/service/render"
	"github.com/zzstop/hw05-final/service/user"
	"github.com/zzstop/hw05-final/service/ws"
)

const shutdownTimeout = 10 * time.Second

type APIServer struct {
	address  string
	db       *gorm.DB
	render   *render.Renderer
	sessions *utils.Sessions
	index    *cache.IndexCache
	images   *utils.ImageStore
	hub      *ws.Hub
	notifier mail.Notifier
}

func NewApiServer(cfg *config.Config, db *gorm.DB) (*APIServer, error) {
	rd, err := render.New()
	if err != nil {
		return nil, err
	}

	return &APIServer{
		address:  ":" + cfg.ServerPort,
		db:       db,
		render:   rd,
		sessions: utils.NewSessions(cfg.SecretKey, cfg.SessionTTL),
		index:    cache.NewIndexCache(cache.NewMemory(time.Minute), cfg.IndexCacheTTL),
		images:   utils.NewImageStore(cfg.MediaRoot),
		hub:      ws.NewHub(),
		notifier: mail.New(cfg),
	}, nil
}

// Router wires every page. Fixed prefixes are registered before the
// /{username}/... patterns so that e.g. /follow/ never reads as a profile.
func (s *APIServer) Router() *mux.Router {
	router := mux.NewRouter().StrictSlash(true)

	session := utils.SessionMiddleware(s.db, s.sessions)
	router.Use(session)
	router.NotFoundHandler = session(http.HandlerFunc(s.render.NotFound))

	router.PathPrefix("/media/").Handler(http.StripPrefix("/media/", s.images.Handler())).Methods("GET")

	ws.NewHandler(s.hub).RegisterRoutes(router)
	about.NewHandler(s.render).RegisterRoutes(router)
	user.NewHandler(s.db, s.render, s.sessions).RegisterRoutes(router)

	postHandler := posts.NewPostHandler(s.db, s.render, s.index, s.images, s.hub, s.notifier)
	followHandler := follow.NewFollowHandler(s.db, s.render, s.notifier)

	postHandler.RegisterRoutes(router)
	followHandler.RegisterRoutes(router)

	followHandler.RegisterAuthorRoutes(router)
	postHandler.RegisterAuthorRoutes(router)

	return router
}

// Handler is the router wrapped in access logging and panic recovery.
func (s *APIServer) Handler() http.Handler {
	var h http.Handler = keepMethodOnSlashRedirect(s.Router())
	h = handlers.CombinedLoggingHandler(os.Stdout, h)
	h = handlers.ProxyHeaders(h)
	h = handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(h)
	return h
}

// keepMethodOnSlashRedirect answers a non-GET request for a path missing its
// trailing slash with 308, so a form POST to /leo/1/comment reaches
// /leo/1/comment/ as a POST. StrictSlash would send 301, which browsers
// replay as GET.
func keepMethodOnSlashRedirect(router *mux.Router) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet || r.Method == http.MethodHead || strings.HasSuffix(r.URL.Path, "/") {
			router.ServeHTTP(w, r)
			return
		}

		slashed := r.Clone(r.Context())
		slashed.URL.Path += "/"
		slashed.URL.RawPath = ""

		var match mux.RouteMatch
		if !router.Match(slashed, &match) || match.MatchErr != nil {
			router.ServeHTTP(w, r)
			return
		}

		target := *slashed.URL
		target.Scheme, target.Host = "", ""
		http.Redirect(w, r, target.String(), http.StatusPermanentRedirect)
	})
}

// Run serves until ctx is cancelled, then drains in-flight requests.
func (s *APIServer) Run(ctx context.Context) error {
	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go s.hub.Run(hubCtx)

	server := &http.Server{
		Addr:              s.address,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Println("Server running at", s.address)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
