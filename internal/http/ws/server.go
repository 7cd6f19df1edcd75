// Package ws serves the bidirectional command channel. Clients send JSON
// command frames and receive one reply per frame, interleaved with the
// event stream (progress, complete, error, queueUpdate, throttled).
//
// Every frame is counted by the ingress guard before it is parsed, so
// malformed frames still consume budget under the "unknown" command.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/review-orchestrator/internal/domain"
	"github.com/tbourn/review-orchestrator/internal/http/handlers"
	"github.com/tbourn/review-orchestrator/internal/observability"
	"github.com/tbourn/review-orchestrator/internal/services"
	"github.com/tbourn/review-orchestrator/internal/stream"
	"github.com/tbourn/review-orchestrator/internal/throttle"
)

// Orchestrator is the subset of services.Orchestrator the channel drives.
type Orchestrator interface {
	Start(ctx context.Context, req services.StartRequest) (domain.JobSummary, error)
	ReReview(ctx context.Context, req services.StartRequest, previousEntryID string) (domain.JobSummary, error)
	Cancel(key domain.EntityKey) bool
	Queue() domain.QueueSnapshot
	HistoryList(ctx context.Context, repo string, opts services.ListOptions) ([]domain.HistoryEntry, error)
	HistoryDelete(ctx context.Context, id string) (bool, error)
	Chain(ctx context.Context, key domain.EntityKey) ([]domain.HistoryEntry, error)
	Subscribe(sink stream.Sink) (unsubscribe func())
}

// Gate admits or denies one command. *throttle.Guard satisfies it.
type Gate interface {
	Check(ctx context.Context, c throttle.Client, command string) error
}

// Options tunes connection handling. Zero values take the defaults below.
type Options struct {
	PingInterval   time.Duration // 30s
	PongWait       time.Duration // 60s
	WriteWait      time.Duration // 10s
	CommandTimeout time.Duration // 10s
	MaxFrameBytes  int64         // 64 KiB
	// CheckOrigin defaults to allowing every origin.
	CheckOrigin func(r *http.Request) bool
}

// Server upgrades requests and runs one read loop per connection.
type Server struct {
	orch     Orchestrator
	gate     Gate
	opts     Options
	upgrader websocket.Upgrader

	conns sync.Map // id -> *Conn
}

// NewServer returns a Server. gate may be nil to disable throttling.
func NewServer(orch Orchestrator, gate Gate, opts Options) *Server {
	if opts.PingInterval <= 0 {
		opts.PingInterval = 30 * time.Second
	}
	if opts.PongWait <= opts.PingInterval {
		opts.PongWait = 2 * opts.PingInterval
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = 10 * time.Second
	}
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = 10 * time.Second
	}
	if opts.MaxFrameBytes <= 0 {
		opts.MaxFrameBytes = 64 << 10
	}
	if opts.CheckOrigin == nil {
		opts.CheckOrigin = func(*http.Request) bool { return true }
	}
	return &Server{
		orch: orch,
		gate: gate,
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     opts.CheckOrigin,
		},
	}
}

// Handle is the Gin handler for GET /ws.
func (s *Server) Handle(c *gin.Context) {
	wsc, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn := newConn(uuid.NewString(), c.ClientIP(), wsc, s.opts.WriteWait)
	s.conns.Store(conn.id, conn)
	lg := log.With().Str("conn", conn.id).Str("remote", conn.remote).Logger()
	lg.Info().Msg("websocket client connected")

	unsubscribe := s.orch.Subscribe(conn)
	done := make(chan struct{})
	defer func() {
		close(done)
		unsubscribe()
		s.conns.Delete(conn.id)
		_ = wsc.Close()
		lg.Info().Msg("websocket client disconnected")
	}()
	go s.keepalive(conn, done)

	wsc.SetReadLimit(s.opts.MaxFrameBytes)
	_ = wsc.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	wsc.SetPongHandler(func(string) error {
		return wsc.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	})

	ctx := c.Request.Context()
	for {
		kind, raw, err := wsc.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				lg.Debug().Err(err).Msg("websocket read ended")
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}
		reply := s.handleFrame(ctx, conn, raw)
		if err := conn.writeJSON(reply); err != nil {
			lg.Debug().Err(err).Msg("websocket reply failed")
			return
		}
	}
}

// Shutdown closes every open connection with a going-away close frame.
func (s *Server) Shutdown() {
	s.conns.Range(func(_, v any) bool {
		c := v.(*Conn)
		c.mu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(c.writeWait))
		c.mu.Unlock()
		_ = c.ws.Close()
		return true
	})
}

func (s *Server) keepalive(conn *Conn, done <-chan struct{}) {
	t := time.NewTicker(s.opts.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-t.C:
			if err := conn.ping(); err != nil {
				return
			}
		}
	}
}

// handleFrame gates, decodes and dispatches one frame.
func (s *Server) handleFrame(ctx context.Context, conn *Conn, raw []byte) Reply {
	var f Frame
	command := cmdUnknown
	parseErr := json.Unmarshal(raw, &f)
	if parseErr == nil && f.Command != "" {
		command = f.Command
	}

	if s.gate != nil {
		if err := s.gate.Check(ctx, conn, command); err != nil {
			var denied *throttle.DeniedError
			if errors.As(err, &denied) {
				observability.WSCommands.WithLabelValues(command, handlers.ErrCodeThrottled).Inc()
				return errorReply(f.ID, handlers.ErrCodeThrottled, "too many requests", denied)
			}
		}
	}
	if parseErr != nil {
		observability.WSCommands.WithLabelValues(cmdUnknown, handlers.ErrCodeBadRequest).Inc()
		return errorReply(f.ID, handlers.ErrCodeBadRequest, "frame is not valid JSON", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.CommandTimeout)
	defer cancel()

	data, details, err := s.dispatch(ctx, f)
	if err != nil {
		code, msg := replyCode(err)
		observability.WSCommands.WithLabelValues(metricCommand(f.Command), code).Inc()
		if code == handlers.ErrCodeInternal {
			log.Error().Err(err).Str("conn", conn.id).Str("command", f.Command).Msg("command failed")
		}
		if details != nil {
			return errorReply(f.ID, code, msg, details)
		}
		return errorReply(f.ID, code, msg, nil)
	}
	observability.WSCommands.WithLabelValues(f.Command, "ok").Inc()
	return Reply{Type: "reply", ID: f.ID, OK: true, Data: data}
}

// errUnknownCommand is replied for a command the channel does not know.
var errUnknownCommand = errors.New("unknown command")

func (s *Server) dispatch(ctx context.Context, f Frame) (any, []FieldError, error) {
	switch f.Command {
	case CmdStart:
		var p StartPayload
		if fields, err := decode(f.Payload, &p); err != nil {
			return nil, fields, err
		}
		req, err := startRequest(p)
		if err != nil {
			return nil, nil, err
		}
		return wrap(s.orch.Start(ctx, req))

	case CmdReReviewStart:
		var p ReReviewPayload
		if fields, err := decode(f.Payload, &p); err != nil {
			return nil, fields, err
		}
		req, err := startRequest(p.StartPayload)
		if err != nil {
			return nil, nil, err
		}
		return wrap(s.orch.ReReview(ctx, req, p.PreviousEntryID))

	case CmdCancel:
		var p EntityRef
		if fields, err := decode(f.Payload, &p); err != nil {
			return nil, fields, err
		}
		key, err := p.Key()
		if err != nil {
			return nil, nil, err
		}
		return CancelResult{Cancelled: s.orch.Cancel(key)}, nil, nil

	case CmdHistoryList:
		var p HistoryListPayload
		if fields, err := decode(f.Payload, &p); err != nil {
			return nil, fields, err
		}
		entries, err := s.orch.HistoryList(ctx, p.Repo, services.ListOptions{
			Limit:  p.Limit,
			Kind:   domain.EntityKind(p.Kind),
			Number: p.Entity,
		})
		return wrap(entries, err)

	case CmdHistoryDelete:
		var p HistoryDeletePayload
		if fields, err := decode(f.Payload, &p); err != nil {
			return nil, fields, err
		}
		deleted, err := s.orch.HistoryDelete(ctx, p.ID)
		return wrap(DeleteResult{Deleted: deleted}, err)

	case CmdChain:
		var p EntityRef
		if fields, err := decode(f.Payload, &p); err != nil {
			return nil, fields, err
		}
		key, err := p.Key()
		if err != nil {
			return nil, nil, err
		}
		return wrap(s.orch.Chain(ctx, key))

	case CmdQueue:
		return s.orch.Queue(), nil, nil
	}
	return nil, nil, errUnknownCommand
}

func wrap[T any](v T, err error) (any, []FieldError, error) {
	if err != nil {
		return nil, nil, err
	}
	return v, nil, nil
}

func startRequest(p StartPayload) (services.StartRequest, error) {
	key, err := p.Key()
	if err != nil {
		return services.StartRequest{}, err
	}
	return services.StartRequest{Key: key, RepoPath: p.RepoPath, Profile: p.Profile, HeadSHA: p.HeadSHA}, nil
}

// replyCode maps an error onto the reply code and message. Internal errors
// keep their detail out of the reply.
func replyCode(err error) (string, string) {
	switch {
	case errors.Is(err, errBadPayload):
		return handlers.ErrCodeBadRequest, "invalid payload"
	case errors.Is(err, errUnknownCommand):
		return handlers.ErrCodeBadRequest, err.Error()
	}
	_, code := handlers.ErrorStatus(err)
	if code == handlers.ErrCodeInternal {
		return code, "internal error"
	}
	return code, err.Error()
}

// metricCommand bounds the command label to known values.
func metricCommand(cmd string) string {
	switch cmd {
	case CmdStart, CmdReReviewStart, CmdCancel, CmdHistoryList, CmdHistoryDelete, CmdChain, CmdQueue:
		return cmd
	}
	return cmdUnknown
}

func errorReply(id, code, msg string, details any) Reply {
	return Reply{Type: "reply", ID: id, Error: &ReplyError{Code: code, Message: msg, Details: details}}
}
