package api

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ServerConfig holds configuration for the probe server.
type ServerConfig struct {
	// Auth configures the handshake frame
	Auth AuthConfig
	// IdleTimeout closes connections that send nothing for this long (0 disables)
	IdleTimeout time.Duration
	// Handler processes request frames; nil means NewArrowHandler()
	Handler *ArrowHandler

	Recorder Recorder
	Logger   *zap.Logger
}

// ArrowServer is a TCP server that probes Arrow IPC payloads.
type ArrowServer struct {
	listener    net.Listener
	handler     *ArrowHandler
	auth        *Authenticator
	recorder    Recorder
	logger      *zap.Logger
	idleTimeout time.Duration

	running bool
	mu      sync.Mutex
	quit    chan struct{}
	conns   sync.WaitGroup
}

// NewArrowServer creates a new ArrowServer. A nil config uses defaults
// with auth disabled.
func NewArrowServer(config *ServerConfig) *ArrowServer {
	if config == nil {
		config = &ServerConfig{}
	}
	s := &ArrowServer{
		handler:     config.Handler,
		auth:        NewAuthenticator(config.Auth),
		recorder:    config.Recorder,
		logger:      config.Logger,
		idleTimeout: config.IdleTimeout,
		quit:        make(chan struct{}),
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.recorder == nil {
		s.recorder = nopRecorder{}
	}
	if s.handler == nil {
		s.handler = NewArrowHandler(WithRecorder(s.recorder), WithHandlerLogger(s.logger))
	}
	return s
}

// Authenticator returns the server's authenticator.
func (s *ArrowServer) Authenticator() *Authenticator { return s.auth }

func (s *ArrowServer) listen(address string) (net.Listener, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil, fmt.Errorf("server is already running")
	}

	lis, err := net.Listen("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", address, err)
	}
	s.listener = lis
	s.running = true
	s.logger.Info("probe server listening",
		zap.String("address", lis.Addr().String()),
		zap.Bool("auth", s.auth.IsEnabled()))
	return lis, nil
}

// Start starts the server on address and blocks until it is stopped.
func (s *ArrowServer) Start(address string) error {
	lis, err := s.listen(address)
	if err != nil {
		return err
	}
	defer s.Stop()
	return s.acceptLoop(lis)
}

// StartAsync starts the server in a background goroutine.
func (s *ArrowServer) StartAsync(address string) error {
	lis, err := s.listen(address)
	if err != nil {
		return err
	}
	go func() {
		if err := s.acceptLoop(lis); err != nil {
			s.logger.Error("accept loop stopped", zap.Error(err))
		}
	}()
	return nil
}

func (s *ArrowServer) acceptLoop(lis net.Listener) error {
	for {
		conn, err := lis.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return nil
			default:
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			s.logger.Warn("accept failed", zap.Error(err))
			continue
		}

		s.recorder.RecordConnection()
		s.conns.Add(1)
		go func() {
			defer s.conns.Done()
			s.handleConnection(conn)
		}()
	}
}

// Addr returns the bound address, or "" before the server starts.
func (s *ArrowServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop closes the listener. In-flight connections finish their current
// frame and are closed on their next read.
func (s *ArrowServer) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.running = false
	close(s.quit)
	if s.listener != nil {
		if err := s.listener.Close(); err != nil {
			s.logger.Warn("failed to close listener", zap.Error(err))
		}
	}
	s.logger.Info("probe server stopped")
}

// Wait blocks until every accepted connection has been closed.
func (s *ArrowServer) Wait() { s.conns.Wait() }

func (s *ArrowServer) handleConnection(conn net.Conn) {
	defer conn.Close()
	log := s.logger.With(zap.String("remote", conn.RemoteAddr().String()))

	if err := s.auth.Handshake(conn); err != nil {
		log.Warn("authentication failed", zap.Error(err))
		return
	}

	for {
		select {
		case <-s.quit:
			return
		default:
		}
		if s.idleTimeout > 0 {
			_ = conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
		}

		data, err := ReadMessage(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				log.Debug("read failed", zap.Error(err))
			}
			if errors.Is(err, ErrMessageTooLarge) {
				_ = WriteJSON(conn, ProbeResponse{Error: err.Error()})
			}
			return
		}

		response, err := s.handler.ProcessBatch(data)
		if err != nil {
			log.Error("failed to encode reply", zap.Error(err))
			return
		}

		if err := WriteMessage(conn, response); err != nil {
			log.Debug("write failed", zap.Error(err))
			return
		}
	}
}
