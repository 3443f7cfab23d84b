package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/jroosing/dockerdns-gateway/internal/pool"
	"github.com/jroosing/dockerdns-gateway/internal/queue"
)

// recvTimeout bounds each ReadFromUDP call so the listener loop can observe
// context cancellation promptly instead of blocking forever, matching the
// C original's SO_RCVTIMEO {1, 0}.
const recvTimeout = 1 * time.Second

// bufferPool reduces allocations for incoming UDP packets. Each buffer is
// sized for the maximum DNS message this daemon accepts (queue.BufSize,
// matching BUF_SIZE in the C original).
var bufferPool = pool.New(func() *[queue.BufSize]byte {
	return new([queue.BufSize]byte)
})

// Handler processes one dequeued request and returns the response bytes to
// send back to the client, or nil to send nothing.
type Handler interface {
	Handle(ctx context.Context, reqBytes []byte, peer string) []byte
}

// UDPServer is the gateway's listener: a single UDP socket with
// SO_REUSEADDR feeding a bounded queue.Queue, drained by a fixed pool of
// worker goroutines.
//
// Unlike the teacher repo's UDPServer (one SO_REUSEPORT socket per CPU core
// with a channel-backed worker pool per socket), this daemon uses exactly
// one socket and an explicit ring buffer (internal/queue), matching the
// original docker-dns C daemon's single recvfrom loop feeding detached
// worker threads (src/main.c). What is kept from the teacher is the buffer
// pooling idiom (internal/pool) and the graceful-shutdown-with-timeout
// shape of Stop.
type UDPServer struct {
	Logger     *slog.Logger
	Handler    Handler
	NumWorkers int // worker goroutines draining the queue; values <= 0 use 4

	conn  *net.UDPConn
	queue *queue.Queue
	done  chan struct{}
	wg    sync.WaitGroup
}

// Run binds addr (host:port) with SO_REUSEADDR and a 1-second receive
// timeout, then blocks handling queries until ctx is cancelled.
func (s *UDPServer) Run(ctx context.Context, addr string) error {
	conn, err := listenReuseAddr(addr)
	if err != nil {
		return err
	}
	return s.RunOnConn(ctx, conn)
}

// RunOnConn runs the server on an already-bound UDP connection. Useful for
// tests that manage the socket themselves.
func (s *UDPServer) RunOnConn(ctx context.Context, conn *net.UDPConn) error {
	if s.NumWorkers <= 0 {
		s.NumWorkers = 4
	}
	s.conn = conn
	s.queue = queue.New(queue.Capacity)
	s.done = make(chan struct{})

	s.wg.Add(s.NumWorkers)
	for range s.NumWorkers {
		go func() {
			defer s.wg.Done()
			s.workerLoop(ctx)
		}()
	}

	s.recvLoop(ctx)
	return s.Stop(5 * time.Second)
}

// recvLoop reads datagrams off the socket and enqueues them, looping past
// read timeouts and interrupted syscalls exactly as the C original's
// recvfrom loop does for EAGAIN/EWOULDBLOCK/EINTR.
func (s *UDPServer) recvLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		bufPtr := bufferPool.Get()
		_ = s.conn.SetReadDeadline(time.Now().Add(recvTimeout))
		n, peer, err := s.conn.ReadFromUDP(bufPtr[:])
		if err != nil {
			bufferPool.Put(bufPtr)
			if isTimeout(err) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			s.logError("receive failed", err)
			return
		}

		var req queue.Request
		req.Len = n
		req.Addr = peer
		copy(req.Data[:], bufPtr[:n])
		bufferPool.Put(bufPtr)

		s.queue.Enqueue(req)
	}
}

// workerLoop dequeues and processes requests until the queue is closed or
// ctx is cancelled, mirroring the C original's worker_thread loop.
func (s *UDPServer) workerLoop(ctx context.Context) {
	for {
		req, ok := s.queue.Dequeue(ctx)
		if !ok {
			return
		}
		s.handleRequest(ctx, req)
	}
}

func (s *UDPServer) handleRequest(ctx context.Context, req queue.Request) {
	if s.Handler == nil {
		return
	}
	resp := s.Handler.Handle(ctx, req.Data[:req.Len], req.Addr.String())
	if len(resp) == 0 {
		return
	}
	_, _ = s.conn.WriteToUDP(resp, req.Addr)
}

// Stop closes the socket and the queue, then waits up to timeout for
// worker goroutines to finish draining pending requests.
func (s *UDPServer) Stop(timeout time.Duration) error {
	if s.conn != nil {
		_ = s.conn.Close()
	}
	if s.queue != nil {
		s.queue.Close()
	}

	if timeout <= 0 {
		return nil
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		return errors.New("udp server: timeout waiting for shutdown")
	}
}

// Dropped reports how many queued requests were overwritten due to a full
// queue (queue.Queue's overwrite-oldest policy).
func (s *UDPServer) Dropped() uint64 {
	if s.queue == nil {
		return 0
	}
	return s.queue.Dropped()
}

func (s *UDPServer) logError(msg string, err error) {
	if s.Logger != nil {
		s.Logger.Error(msg, "error", err)
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// listenReuseAddr creates a UDP socket with SO_REUSEADDR enabled and binds
// it to addr, matching the C original's socket()/setsockopt(SO_REUSEADDR)/
// bind() sequence.
func listenReuseAddr(addr string) (*net.UDPConn, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}

	lc := net.ListenConfig{
		Control: func(_, _ string, c syscall.RawConn) error {
			var sockErr error
			err := c.Control(func(fd uintptr) {
				sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
			})
			if err != nil {
				return err
			}
			return sockErr
		},
	}

	pc, err := lc.ListenPacket(context.Background(), "udp", udpAddr.String())
	if err != nil {
		return nil, err
	}

	return pc.(*net.UDPConn), nil
}
