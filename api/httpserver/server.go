// Package httpserver exposes the engine over HTTP and a websocket book
// stream.
package httpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"crossbook/adapter/message"
	"crossbook/domain/orderbook"
)

const (
	maxBodyBytes      = 64 << 10
	defaultBookLevels = 50
	maxBookLevels     = 1000
)

// Service is satisfied by *service.OrderService.
type Service interface {
	Submit(body []byte) message.Response
	Depth(limit int) orderbook.Depth
	Stats() orderbook.Stats
	Instrument() string
}

type Config struct {
	// StreamInterval is how often /ws clients are checked for book changes.
	StreamInterval time.Duration
	StreamLevels   int
	AllowedOrigins []string
}

type Server struct {
	svc    Service
	log    *zap.SugaredLogger
	books  *cache.Cache
	hub    *hub
	router chi.Router
}

func New(svc Service, cfg Config, log *zap.SugaredLogger) *Server {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if cfg.StreamInterval <= 0 {
		cfg.StreamInterval = 200 * time.Millisecond
	}
	if cfg.StreamLevels <= 0 {
		cfg.StreamLevels = 20
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = []string{"*"}
	}
	log = log.With("component", "http")

	s := &Server{
		svc:   svc,
		log:   log,
		books: cache.New(5*time.Second, 30*time.Second),
		hub:   newHub(svc, cfg.StreamInterval, cfg.StreamLevels, log),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Post("/orders", s.placeOrder)
	r.Get("/book", s.getBook)
	r.Get("/ws", s.hub.serveWS)
	r.Get("/healthz", s.health)

	s.router = r
	return s
}

func (s *Server) Handler() http.Handler { return s.router }

// Run drives the websocket stream until ctx is done.
func (s *Server) Run(ctx context.Context) {
	s.hub.run(ctx)
}

func (s *Server) placeOrder(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, message.Failure(fmt.Errorf("Message too long")))
		return
	}

	resp := s.svc.Submit(body)
	code := http.StatusOK
	if !resp.OK() {
		code = http.StatusBadRequest
	}
	writeJSON(w, code, resp)
}

func (s *Server) getBook(w http.ResponseWriter, r *http.Request) {
	limit := defaultBookLevels
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n < 0 || n > maxBookLevels {
			writeJSON(w, http.StatusBadRequest, message.Failure(fmt.Errorf("limit must be between 0 and %d", maxBookLevels)))
			return
		}
		limit = n
	}

	// responses are memoized per book version
	version := s.svc.Stats().Version
	if raw, ok := s.books.Get(bookKey(version, limit)); ok {
		writeRaw(w, http.StatusOK, raw.([]byte))
		return
	}

	d := s.svc.Depth(limit)
	raw, err := json.Marshal(message.Book(s.svc.Instrument(), d))
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, message.Failure(err))
		return
	}
	s.books.Set(bookKey(d.Version, limit), raw, cache.DefaultExpiration)
	writeRaw(w, http.StatusOK, raw)
}

func bookKey(version uint64, limit int) string {
	return strconv.FormatUint(version, 10) + "/" + strconv.Itoa(limit)
}

type healthView struct {
	Status     string `json:"status"`
	Instrument string `json:"instrument"`
	Orders     int    `json:"orders"`
	BidLevels  int    `json:"bidLevels"`
	AskLevels  int    `json:"askLevels"`
	Version    uint64 `json:"version"`
	Streams    int    `json:"streams"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	st := s.svc.Stats()
	writeJSON(w, http.StatusOK, healthView{
		Status:     "ok",
		Instrument: s.svc.Instrument(),
		Orders:     st.Orders,
		BidLevels:  st.BidLevels,
		AskLevels:  st.AskLevels,
		Version:    st.Version,
		Streams:    s.hub.size(),
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Debugw("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"took", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeRaw(w, code, raw)
}

func writeRaw(w http.ResponseWriter, code int, raw []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(raw)
}
