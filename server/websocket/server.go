package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/vmeet/signaling/model"
)

const (
	defaultShutdownDeadline = 10 * time.Second

	defaultSessionCloseTimeout = 2 * time.Second

	defaultWebsocketReadBufferSize     = 10000
	defaultWebsocketWriteBufferSize    = 10000
	defaultWebSocketMaxMessageSize     = 9000
	defaultWebSocketHandshakeTimeout   = 3 * time.Second
	defaultWebSocketCloseWriteDeadline = 2 * time.Second
	defaultWebSocketWriteDeadline      = 5 * time.Second

	// defaultPongWait - defaultPingInterval == is how long we give client to respond
	defaultPingInterval = 5 * time.Second
	defaultPongWait     = 7 * time.Second
)

var (
	ErrUnexpected = errors.New("unexpected server error")
)

type (
	SessionService interface {
		CreateSession(context.Context, string, model.Wire) error
		DeleteSession(context.Context, string) error
	}

	Config struct {
		Logger         *zerolog.Logger
		SessionService SessionService
		ListenAddr     string
	}

	Server struct {
		svc SessionService
		ws  *websocket.Upgrader
		*http.Server

		logger zerolog.Logger
	}
)

func NewServer(cfg Config) *Server {
	srv := &Server{
		logger: cfg.Logger.With().Str("component", "websocket-server").Logger(),
		svc:    cfg.SessionService,
		ws: &websocket.Upgrader{
			HandshakeTimeout: defaultWebSocketHandshakeTimeout,
			ReadBufferSize:   defaultWebsocketReadBufferSize,
			WriteBufferSize:  defaultWebsocketWriteBufferSize,
			CheckOrigin:      func(r *http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", srv.connect)

	srv.Server = &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: mux,
	}
	return srv
}

func (srv *Server) Run(ctx context.Context, wg *sync.WaitGroup, errc chan<- error) {
	defer func() {
		srv.logger.Debug().Msg("server stopped")
		wg.Done()
	}()

	errSrv := make(chan error)
	go func() {
		errSrv <- srv.ListenAndServe()
	}()

	srv.logger.Info().Str("addr", srv.Addr).Msg("server started")

	select {
	case err := <-errSrv:
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

// connect upgrades the transport and creates a signaling session under
// a fresh server-assigned connection id. Room membership is negotiated
// later via join events, not in the URL.
func (srv *Server) connect(w http.ResponseWriter, r *http.Request) {
	conn, err := srv.ws.Upgrade(w, r, nil)
	if err != nil {
		srv.logger.Error().Err(err).Msg("websocket upgrade failed")
		return
	}

	connID := uuid.New().String()
	wire := model.NewWire()

	ctx, cancel := context.WithCancel(context.TODO()) // long-living wire context

	if err = srv.svc.CreateSession(ctx, connID, wire); err != nil {
		srv.logger.Error().Err(err).Msg("failed to create signaling session")
		cancel()
		webSocketCloser(conn, &srv.logger)
		return
	}
	srv.logger.Debug().
		Str("connID", connID).
		Str("remote", r.RemoteAddr).
		Msg("signaling session created")

	go srv.handleWSConn(ctx, cancel, conn, connID, wire)
}

func (srv *Server) destroySession(connID string, logger *zerolog.Logger) {
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(defaultSessionCloseTimeout))
	defer cancel()
	if err := srv.svc.DeleteSession(ctx, connID); err != nil {
		srv.logger.Error().Err(err).Msg("failed to delete signaling session")
		return
	}
	logger.Debug().Str("connID", connID).Msg("signaling session ended")
}

func (srv *Server) handleWSConn(
	ctx context.Context,
	cancel context.CancelFunc,
	conn *websocket.Conn,
	connID string,
	wire model.Wire,
) {
	wg := &sync.WaitGroup{}

	logger := srv.logger.With().Str("connID", connID).Logger()

	wg.Add(2)
	go func() {
		webSocketReceiver(ctx, wg, conn, connID, wire.RX, &logger)
		cancel()
	}()
	go func() {
		webSocketSender(ctx, wg, conn, wire.TX, &logger)
		cancel()
	}()

	wg.Wait()
	webSocketCloser(conn, &logger)
	srv.destroySession(connID, &logger)
}

func webSocketSender(
	ctx context.Context,
	wg *sync.WaitGroup,
	conn *websocket.Conn,
	tx <-chan model.Event,
	logger *zerolog.Logger,
) {
	pingTicker := time.NewTicker(defaultPingInterval)
	defer func() {
		pingTicker.Stop()
		wg.Done()
	}()
SendLoop:
	for {
		select {
		case <-ctx.Done():
			break SendLoop
		case <-pingTicker.C:
			wsErr := conn.SetWriteDeadline(time.Now().Add(defaultWebSocketWriteDeadline))
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to set websocket write deadline")
				break SendLoop
			}
			wsErr = conn.WriteMessage(websocket.PingMessage, []byte{})
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to send ping")
			}
			logger.Trace().Msg("ping sent")

		case ev, ok := <-tx:
			if !ok {
				break SendLoop
			}

			b, wsErr := json.Marshal(&ev)
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to marshall outgoing event")
				break SendLoop
			}

			wsErr = conn.SetWriteDeadline(time.Now().Add(defaultWebSocketWriteDeadline))
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to set websocket write deadline")
				break SendLoop
			}
			wsW, wsErr := conn.NextWriter(websocket.TextMessage)
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to get websocket text writer")
				break SendLoop
			}
			_, wsErr = wsW.Write(b)
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to write outgoing event")
				break SendLoop
			}
			wsErr = wsW.Close()
			if wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to close websocket writer")
				break SendLoop
			}
		}
	}
}

func webSocketReceiver(
	ctx context.Context,
	wg *sync.WaitGroup,
	conn *websocket.Conn,
	connID string,
	rx chan<- model.Event,
	logger *zerolog.Logger,
) {
	defer wg.Done()

	conn.SetReadLimit(defaultWebSocketMaxMessageSize)
	readDeadLineFunc := func(deadline time.Duration) error {
		return conn.SetReadDeadline(time.Now().Add(deadline))
	}
	conn.SetPongHandler(func(string) error {
		logger.Trace().Msg("got pong")
		return readDeadLineFunc(defaultPongWait)
	})
	err := readDeadLineFunc(defaultPongWait)
	if err != nil {
		logger.Error().Err(err).Msg("failed to set websocket read deadline")
		return
	}

RecvLoop:
	for {
		select {
		case <-ctx.Done():
			break RecvLoop
		default:
			_, msg, wsErr := conn.ReadMessage()
			if wsErr != nil {
				if websocket.IsCloseError(wsErr,
					websocket.CloseNormalClosure,
					websocket.CloseGoingAway) {
					logger.Warn().Err(wsErr).Msg("connection closed")
				} else {
					logger.Error().Err(wsErr).Msg("unexpected error during receive")
				}
				break RecvLoop
			}

			var ev model.Event
			if wsErr = json.Unmarshal(msg, &ev); wsErr != nil {
				logger.Error().Err(wsErr).Msg("failed to unmarshall incoming event")
			} else {
				ev.SRC = connID
				select {
				case rx <- ev:
				case <-ctx.Done():
					break RecvLoop
				}
			}
		}
	}
}

func webSocketCloser(conn *websocket.Conn, logger *zerolog.Logger) {
	wsErr := conn.SetWriteDeadline(time.Now().Add(defaultWebSocketCloseWriteDeadline))
	if wsErr != nil {
		logger.Error().Err(wsErr).Msg("failed to set websocket write deadline during closing")
	} else {
		wsErr = conn.WriteMessage(websocket.CloseMessage, []byte{})
		if wsErr != nil {
			logger.Error().Err(wsErr).Msg("failed to close websocket connection")
		}
	}
	wsErr = conn.Close()
	if wsErr != nil {
		logger.Error().Err(wsErr).Msg("failed to close websocket connection")
	}
}
