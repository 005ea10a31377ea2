package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"multitrack/core/audio"
	"multitrack/core/auth"
	"multitrack/core/index"
	"multitrack/core/ledger"
	"multitrack/core/progress"
	"multitrack/logger"
	"multitrack/storage"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Blobs is the content store the server uploads to and serves from.
type Blobs interface {
	Store(ctx context.Context, data []byte, mimeType string) (string, error)
	Fetch(ctx context.Context, cid string) (*storage.Blob, error)
}

// Invalidator drops cached index reads.
type Invalidator interface {
	Invalidate(ctx context.Context, ownerID string)
	InvalidateFollowing(ctx context.Context, address string)
}

// Follower records follow edges. Only the local ledger has one.
type Follower interface {
	Follow(ctx context.Context, follower, followee string) error
}

// Deps are the server's collaborators.
type Deps struct {
	Index    index.Index
	Cache    Invalidator
	Blobs    Blobs
	Mixer    audio.Mixer
	Ledger   ledger.Ledger
	Modules  ledger.ModuleConfig
	Resolver storage.Resolver
	Issuer   *auth.Issuer
	Hub      *progress.Hub
	Follower Follower

	// MaxUploadBytes caps a track upload. Zero means 64 MiB.
	MaxUploadBytes int64
}

// Server is the HTTP API.
type Server struct {
	deps     Deps
	router   *mux.Router
	upgrader websocket.Upgrader
}

// New builds the router.
func New(deps Deps) *Server {
	if deps.MaxUploadBytes <= 0 {
		deps.MaxUploadBytes = 64 << 20
	}
	s := &Server{
		deps:   deps,
		router: mux.NewRouter(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
	s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	r := s.router
	r.Use(cors)

	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ipfs/{cid}", s.handleContent).Methods(http.MethodGet, http.MethodHead)
	r.HandleFunc("/ws/progress", s.handleProgress).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/profiles/{owner}/tracks", s.handleTracks).Methods(http.MethodGet)
	api.HandleFunc("/profiles/{owner}/follow", s.authMiddleware(s.handleFollow)).Methods(http.MethodPost)
	api.HandleFunc("/feed", s.authMiddleware(s.handleFeed)).Methods(http.MethodGet)
	api.HandleFunc("/tracks", s.authMiddleware(s.handlePublish)).Methods(http.MethodPost)
	api.HandleFunc("/publications/{id}/collect", s.authMiddleware(s.handleCollect)).Methods(http.MethodPost)
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS, HEAD")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Run serves handler on addr until ctx is cancelled, then shuts down,
// waiting up to shutdownTimeout for in-flight requests.
func Run(ctx context.Context, addr string, handler http.Handler, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:        addr,
		Handler:     handler,
		ReadTimeout: 60 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("[Server] 服务启动", logger.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("[Server] 正在关闭服务")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logger.Info("[Server] 服务已停止")
	return nil
}
