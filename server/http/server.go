package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultShutdownDeadline = 10 * time.Second
)

var (
	ErrUnexpected = errors.New("unexpected server error")
)

// RoomService allocates and validates password-protected room
// identifiers. Neither call joins the room; joining happens over the
// websocket afterward.
type RoomService interface {
	CreateRoom() string
	ValidateRoom(password string) bool
}

type JoinRequest struct {
	Password string `json:"password"`
}

type CreateRoomResponse struct {
	Success  bool   `json:"success"`
	Password string `json:"password"`
}

type JoinRoomResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type Server struct {
	logger zerolog.Logger
	svc    RoomService
	*http.Server
}

type Config struct {
	Logger      *zerolog.Logger
	RoomService RoomService
	ListenAddr  string
	// StaticDir enables production static-asset serving when non-empty.
	StaticDir string
}

func NewServer(cfg Config) *Server {
	srv := &Server{
		logger: cfg.Logger.With().Str("component", "api-server").Logger(),
		svc:    cfg.RoomService,
	}

	r := http.NewServeMux()
	r.HandleFunc("POST /create-room", srv.createRoom)
	r.HandleFunc("POST /join-room", srv.joinRoom)
	r.HandleFunc("OPTIONS /", corsHandler)
	if cfg.StaticDir != "" {
		r.Handle("GET /", http.FileServer(http.Dir(cfg.StaticDir)))
	}

	srv.Server = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: r,
	}
	return srv
}

func corsHandler(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")
	w.Header().Set("Access-Control-Max-Age", "86400")
	w.Header().Set("Access-Control-Allow-Credentials", "true")
	w.WriteHeader(http.StatusNoContent)
}

func (srv *Server) createRoom(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")

	password := srv.svc.CreateRoom()
	b, err := json.Marshal(&CreateRoomResponse{Success: true, Password: password})
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeBytes(w, http.StatusCreated, b)
}

func (srv *Server) joinRoom(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	var (
		body    []byte
		joinReq JoinRequest
	)
	body, _ = io.ReadAll(r.Body)
	defer func() {
		_ = r.Body.Close()
	}()
	if err := json.Unmarshal(body, &joinReq); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	srv.logger.Trace().Any("request", joinReq).Msg("got join request")

	if joinReq.Password == "" || !srv.svc.ValidateRoom(joinReq.Password) {
		b, err := json.Marshal(&JoinRoomResponse{Success: false, Message: "room does not exist"})
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		writeBytes(w, http.StatusNotFound, b)
		return
	}

	b, err := json.Marshal(&JoinRoomResponse{Success: true})
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	writeBytes(w, http.StatusOK, b)
}

func writeBytes(w http.ResponseWriter, code int, b []byte) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(code)
	if _, err := w.Write(b); err != nil {
		log.Printf("failed to write response: %v", err)
	}
}

func (srv *Server) Run(ctx context.Context, wg *sync.WaitGroup, errc chan<- error) {
	defer func() {
		srv.logger.Debug().Msg("server stopped")
		wg.Done()
	}()

	hErr := make(chan error)
	go func() {
		hErr <- srv.ListenAndServe()
	}()

	srv.logger.Info().Str("addr", srv.Addr).Msg("server started")

	select {
	case err := <-hErr:
		if !errors.Is(err, http.ErrServerClosed) {
			errc <- errors.Join(ErrUnexpected, err)
		}
	case <-ctx.Done():
		shCtx, shCancel := context.WithTimeout(context.Background(), defaultShutdownDeadline)
		defer shCancel()
		if err := srv.Shutdown(shCtx); err != nil {
			srv.logger.Error().Err(err).Msg("server shutdown failed")
		}
	}
}
