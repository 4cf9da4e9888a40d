// Package net is a thin reference TCP adapter over the matching core:
// it decodes wire frames into domain.Order, dispatches them into a
// symbol's matching.Engine, and relays its broadcaster's trade and
// market-data payloads back to connected clients. It holds no matching
// logic of its own.
package net

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
	tomb "gopkg.in/tomb.v2"

	"matchcore/internal/broadcast"
	"matchcore/internal/domain"
	"matchcore/internal/matching"
)

const (
	maxFrameSize       = 4 * 1024
	defaultWorkers     = 10
	defaultConnTimeout = 30 * time.Second
)

var ErrSymbolNotFound = errors.New("symbol not found")

// SymbolEngine bundles one symbol's matching engine with its
// broadcaster, the pair the server needs to dispatch orders and relay
// market data for that symbol.
type SymbolEngine struct {
	Engine      *matching.Engine
	Broadcaster *broadcast.Broadcaster
}

type clientSession struct {
	conn net.Conn
}

type clientMessage struct {
	clientAddress string
	message       Message
}

// Server is the reference TCP gateway: one listener, a bounded worker
// pool reading framed connections, and a single session handler
// dispatching decoded messages into the engine registry so submission
// order across connections stays deterministic.
type Server struct {
	address string
	port    int
	engines map[string]*SymbolEngine
	log     zerolog.Logger

	pool   workerPool
	cancel context.CancelFunc

	sessionsMu sync.Mutex
	sessions   map[string]clientSession

	messages chan clientMessage
}

// New builds a server fronting the given per-symbol engines. It
// subscribes itself to every symbol's broadcaster so confirmed trades
// and market-data updates fan out to every connected client.
func New(address string, port int, engines map[string]*SymbolEngine, log zerolog.Logger) *Server {
	s := &Server{
		address:  address,
		port:     port,
		engines:  engines,
		log:      log,
		pool:     newWorkerPool(defaultWorkers, log),
		sessions: make(map[string]clientSession),
		messages: make(chan clientMessage, 1),
	}
	for _, se := range engines {
		se.Broadcaster.Subscribe(s.broadcastTrade)
		se.Broadcaster.SubscribeMarketData(s.broadcastMarketData)
	}
	return s
}

func (s *Server) Shutdown() {
	s.log.Info().Msg("server shutting down")
	if s.cancel != nil {
		s.cancel()
	}
}

// Run accepts connections until ctx is cancelled. Each connection is
// handed to the worker pool for framed reads; decoded messages flow
// through a single session handler so engine dispatch never races
// across connections.
func (s *Server) Run(ctx context.Context) error {
	defer s.Shutdown()

	ctx, s.cancel = context.WithCancel(ctx)
	t, ctx := tomb.WithContext(ctx)

	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", fmt.Sprintf("%s:%d", s.address, s.port))
	if err != nil {
		return fmt.Errorf("net: listen: %w", err)
	}
	defer listener.Close()

	t.Go(func() error {
		s.pool.setup(t, s.handleConnection)
		return nil
	})
	t.Go(func() error {
		return s.sessionHandler(t)
	})

	s.log.Info().Str("address", listener.Addr().String()).Msg("server listening")

	for {
		select {
		case <-ctx.Done():
			return t.Err()
		default:
			conn, err := listener.Accept()
			if err != nil {
				if ctx.Err() != nil {
					return t.Err()
				}
				s.log.Error().Err(err).Msg("accept failed")
				continue
			}
			s.addSession(conn)
			s.pool.addTask(conn)
		}
	}
}

func (s *Server) addSession(conn net.Conn) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	s.sessions[conn.RemoteAddr().String()] = clientSession{conn: conn}
}

func (s *Server) removeSession(address string) {
	s.sessionsMu.Lock()
	defer s.sessionsMu.Unlock()
	delete(s.sessions, address)
}

// sessionHandler serializes all engine dispatch onto one goroutine, so
// submissions from different connections never interleave in a way
// that could confuse acknowledgment ordering.
func (s *Server) sessionHandler(t *tomb.Tomb) error {
	for {
		select {
		case <-t.Dying():
			return nil
		case msg := <-s.messages:
			s.handleMessage(msg)
		}
	}
}

func (s *Server) handleMessage(msg clientMessage) {
	switch msg.message.GetType() {
	case NewOrder:
		m, ok := msg.message.(NewOrderMessage)
		if !ok {
			s.reportError(msg.clientAddress, "", ErrInvalidMessageType)
			return
		}
		s.handleNewOrder(msg.clientAddress, m)
	case CancelOrder:
		m, ok := msg.message.(CancelOrderMessage)
		if !ok {
			s.reportError(msg.clientAddress, "", ErrInvalidMessageType)
			return
		}
		s.handleCancelOrder(msg.clientAddress, m)
	case LogBook:
		// No-op: book state is served over GetBBO/GetDepth, not this wire
		// protocol.
	default:
		s.reportError(msg.clientAddress, "", ErrInvalidMessageType)
	}
}

func (s *Server) handleNewOrder(clientAddress string, m NewOrderMessage) {
	se, ok := s.engines[m.Symbol]
	if !ok {
		s.reportError(clientAddress, "", fmt.Errorf("%w: %s", ErrSymbolNotFound, m.Symbol))
		return
	}
	order, err := m.Order()
	if err != nil {
		s.reportError(clientAddress, "", err)
		return
	}
	// Assign the id here so the execution report can carry it back to
	// the client; Submit works on its own copy of the order.
	order.OrderID = domain.NewOrderID()
	accepted, status, _ := se.Engine.Submit(order)
	s.reportExecution(clientAddress, order.OrderID, status, accepted)
}

func (s *Server) handleCancelOrder(clientAddress string, m CancelOrderMessage) {
	se, ok := s.engines[m.Symbol]
	if !ok {
		s.reportError(clientAddress, m.OrderID, fmt.Errorf("%w: %s", ErrSymbolNotFound, m.Symbol))
		return
	}
	cancelled, _ := se.Engine.Cancel(m.OrderID)
	if !cancelled {
		s.reportError(clientAddress, m.OrderID, fmt.Errorf("order %s not found or not cancellable", m.OrderID))
		return
	}
	s.reportExecution(clientAddress, m.OrderID, "cancelled", true)
}

func (s *Server) reportExecution(clientAddress, orderID, status string, accepted bool) {
	frame, err := generateExecutionReport(orderID, status, fmt.Sprintf("accepted=%v", accepted))
	if err != nil {
		s.log.Error().Err(err).Msg("failed to build execution report")
		return
	}
	s.writeFrame(clientAddress, frame)
}

func (s *Server) reportError(clientAddress, orderID string, err error) {
	frame, buildErr := generateErrorReport(orderID, err)
	if buildErr != nil {
		s.log.Error().Err(buildErr).Msg("failed to build error report")
		return
	}
	s.writeFrame(clientAddress, frame)
}

// broadcastTrade fans a confirmed trade out to every connected client.
// The reference protocol has no per-client trade subscriptions: any
// connection attached to this server sees every symbol's prints.
func (s *Server) broadcastTrade(payload broadcast.TradePayload) {
	frame, err := generateExecutionReport(payload.TradeID, "trade", fmt.Sprintf("%s %s@%s", payload.Symbol, payload.Quantity, payload.Price))
	if err != nil {
		s.log.Error().Err(err).Msg("failed to build trade frame")
		return
	}
	s.broadcastFrame(frame)
}

func (s *Server) broadcastMarketData(payload broadcast.MarketDataPayload) {
	frame, err := generateExecutionReport("", "book_update", payload.Symbol)
	if err != nil {
		s.log.Error().Err(err).Msg("failed to build market data frame")
		return
	}
	s.broadcastFrame(frame)
}

func (s *Server) broadcastFrame(payload []byte) {
	s.sessionsMu.Lock()
	addresses := make([]string, 0, len(s.sessions))
	for addr := range s.sessions {
		addresses = append(addresses, addr)
	}
	s.sessionsMu.Unlock()

	for _, addr := range addresses {
		s.writeFrame(addr, payload)
	}
}

func (s *Server) writeFrame(clientAddress string, payload []byte) {
	s.sessionsMu.Lock()
	session, ok := s.sessions[clientAddress]
	s.sessionsMu.Unlock()
	if !ok {
		return
	}

	header := make([]byte, 4)
	binary.BigEndian.PutUint32(header, uint32(len(payload)))
	if _, err := session.conn.Write(header); err != nil {
		s.removeSession(clientAddress)
		return
	}
	if _, err := session.conn.Write(payload); err != nil {
		s.removeSession(clientAddress)
	}
}

// handleConnection reads one length-prefixed frame, decodes it, and
// forwards it to the session handler, then re-queues the connection
// for its next frame. Any error here ends that connection but never
// the pool.
func (s *Server) handleConnection(t *tomb.Tomb, task any) error {
	conn, ok := task.(net.Conn)
	if !ok {
		return fmt.Errorf("net: unexpected task type %T", task)
	}

	if err := conn.SetReadDeadline(time.Now().Add(defaultConnTimeout)); err != nil {
		s.log.Error().Err(err).Msg("failed to set read deadline")
		s.removeSession(conn.RemoteAddr().String())
		conn.Close()
		return nil
	}

	header := make([]byte, 4)
	if _, err := io.ReadFull(conn, header); err != nil {
		s.removeSession(conn.RemoteAddr().String())
		conn.Close()
		return nil
	}
	frameLen := binary.BigEndian.Uint32(header)
	if frameLen > maxFrameSize {
		s.log.Error().Uint32("size", frameLen).Msg("frame exceeds maximum size")
		s.removeSession(conn.RemoteAddr().String())
		conn.Close()
		return nil
	}

	body := make([]byte, frameLen)
	if _, err := io.ReadFull(conn, body); err != nil {
		s.removeSession(conn.RemoteAddr().String())
		conn.Close()
		return nil
	}

	message, err := parseMessage(body)
	if err != nil {
		s.log.Error().Err(err).Str("address", conn.RemoteAddr().String()).Msg("failed to parse message")
		s.reportError(conn.RemoteAddr().String(), "", err)
	} else {
		select {
		case s.messages <- clientMessage{clientAddress: conn.RemoteAddr().String(), message: message}:
		case <-t.Dying():
			conn.Close()
			return nil
		}
	}

	s.pool.addTask(conn)
	return nil
}
