// Package network serves the column probe over ZeroMQ.
//
// This package implements:
//   - ZmqProbe: REP socket answering one IPC payload per request
//   - ZmqClient: the matching REQ side
package network

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"
	"go.uber.org/zap"
)

// Common errors for network operations
var (
	ErrSendFailed  = errors.New("failed to send message")
	ErrEmptyReply  = errors.New("empty reply")
	ErrMultiFrames = errors.New("multi-frame requests are not supported")
)

// Handler turns a request payload into a reply. api.ArrowHandler
// implements it.
type Handler interface {
	ProcessBatch(payload []byte) ([]byte, error)
}

// ZmqProbe answers probe requests on a ZeroMQ REP socket.
type ZmqProbe struct {
	address string
	handler Handler
	logger  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	rep     zmq4.Socket
	running bool
	mu      sync.Mutex
	wg      sync.WaitGroup
}

// NewZmqProbe creates a probe that will bind address (e.g. "tcp://*:5560").
func NewZmqProbe(address string, handler Handler, logger *zap.Logger) *ZmqProbe {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &ZmqProbe{
		address: address,
		handler: handler,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start binds the socket and begins serving requests.
func (p *ZmqProbe) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return errors.New("probe already running")
	}

	p.rep = zmq4.NewRep(p.ctx)
	if err := p.rep.Listen(p.address); err != nil {
		return fmt.Errorf("failed to bind %s: %w", p.address, err)
	}
	p.running = true
	p.logger.Info("zmq probe listening", zap.String("address", p.Addr()))

	p.wg.Add(1)
	go p.serve()
	return nil
}

// Addr returns the bound endpoint as tcp://host:port.
func (p *ZmqProbe) Addr() string {
	if p.rep == nil || p.rep.Addr() == nil {
		return p.address
	}
	return "tcp://" + p.rep.Addr().String()
}

func (p *ZmqProbe) serve() {
	defer p.wg.Done()

	for {
		msg, err := p.rep.Recv()
		if err != nil {
			select {
			case <-p.ctx.Done():
				return
			default:
			}
			p.logger.Warn("zmq receive failed", zap.Error(err))
			time.Sleep(10 * time.Millisecond)
			continue
		}

		reply, err := p.handle(msg)
		if err != nil {
			p.logger.Error("zmq request failed", zap.Error(err))
			reply = []byte(fmt.Sprintf(`{"error":%q}`, err.Error()))
		}
		if err := p.rep.Send(zmq4.NewMsg(reply)); err != nil {
			p.logger.Warn("zmq reply failed", zap.Error(err))
		}
	}
}

func (p *ZmqProbe) handle(msg zmq4.Msg) ([]byte, error) {
	if len(msg.Frames) != 1 {
		return nil, fmt.Errorf("%w: got %d frames", ErrMultiFrames, len(msg.Frames))
	}
	return p.handler.ProcessBatch(msg.Frames[0])
}

// Stop closes the socket and waits for the serving goroutine.
func (p *ZmqProbe) Stop() {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return
	}
	p.running = false
	p.mu.Unlock()

	p.cancel()
	if err := p.rep.Close(); err != nil {
		p.logger.Debug("closing rep socket", zap.Error(err))
	}
	p.wg.Wait()
}

// ZmqClient sends probe requests over a REQ socket. It is not safe for
// concurrent use.
type ZmqClient struct {
	req    zmq4.Socket
	cancel context.CancelFunc
}

// DialZmq connects a REQ socket to address.
func DialZmq(address string) (*ZmqClient, error) {
	ctx, cancel := context.WithCancel(context.Background())
	req := zmq4.NewReq(ctx)
	if err := req.Dial(address); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to dial %s: %w", address, err)
	}
	return &ZmqClient{req: req, cancel: cancel}, nil
}

// Probe sends payload and waits for the reply.
func (c *ZmqClient) Probe(payload []byte) ([]byte, error) {
	if err := c.req.Send(zmq4.NewMsg(payload)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSendFailed, err)
	}
	msg, err := c.req.Recv()
	if err != nil {
		return nil, fmt.Errorf("failed to receive reply: %w", err)
	}
	if len(msg.Frames) == 0 {
		return nil, ErrEmptyReply
	}
	return msg.Frames[0], nil
}

// Close closes the socket.
func (c *ZmqClient) Close() error {
	defer c.cancel()
	return c.req.Close()
}
