// Package redistest provides an in-process node that speaks enough RESP to
// answer role queries, for tests that need real TCP round trips.
package redistest

import (
	"bufio"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/dreamware/replwatch/internal/cluster"
	"github.com/dreamware/replwatch/internal/resp"
)

// Server is a fake replication-group member listening on 127.0.0.1.
type Server struct {
	ln       net.Listener
	conns    map[net.Conn]struct{}
	counts   map[string]int
	addr     cluster.NodeAddress
	master   cluster.NodeAddress
	role     cluster.Role
	infoErr  string
	password string
	wg       sync.WaitGroup
	mu       sync.Mutex
	closed   bool
}

// Start listens on an ephemeral port and serves the given role.
func Start(role cluster.Role) (*Server, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listen: %w", err)
	}
	tcp := ln.Addr().(*net.TCPAddr)
	s := &Server{
		ln:     ln,
		conns:  make(map[net.Conn]struct{}),
		counts: make(map[string]int),
		addr:   cluster.NodeAddress{Host: "127.0.0.1", Port: tcp.Port},
		role:   role,
	}
	s.wg.Add(1)
	go s.serve()
	return s, nil
}

// MustStart is Start for tests; it panics when the listener cannot be opened.
func MustStart(role cluster.Role) *Server {
	s, err := Start(role)
	if err != nil {
		panic(err)
	}
	return s
}

// Addr returns the address clients should dial.
func (s *Server) Addr() cluster.NodeAddress {
	return s.addr
}

// SetRole changes the role reported by subsequent INFO replication replies.
func (s *Server) SetRole(role cluster.Role) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.role = role
}

// SetMaster sets the master a slave reports following.
func (s *Server) SetMaster(addr cluster.NodeAddress) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.master = addr
}

// FailInfo makes INFO reply with the given error; an empty message clears it.
func (s *Server) FailInfo(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.infoErr = msg
}

// RequirePassword makes every command but AUTH fail until authenticated.
func (s *Server) RequirePassword(password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.password = password
}

// Count returns how many times a command (upper case) was received.
func (s *Server) Count(cmd string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[cmd]
}

// Connections returns the number of open client connections.
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Close stops listening and drops every client connection. The address
// becomes unreachable, which is how tests simulate a dead node.
func (s *Server) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.ln.Close()
	for c := range s.conns {
		c.Close()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			conn.Close()
			return
		}
		s.conns[conn] = struct{}{}
		s.mu.Unlock()

		s.wg.Add(1)
		go s.handle(conn)
	}
}

func (s *Server) handle(conn net.Conn) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		conn.Close()
	}()

	rd := bufio.NewReader(conn)
	authed := false
	for {
		req, err := resp.Read(rd)
		if err != nil {
			return
		}
		if req.Type != resp.Array || len(req.Elements) == 0 {
			resp.Write(conn, resp.Err("ERR expected command array"))
			continue
		}
		args := make([]string, len(req.Elements))
		for i, e := range req.Elements {
			args[i] = e.Str
		}
		name := strings.ToUpper(args[0])

		reply, quit := s.dispatch(name, args[1:], &authed)
		if err := resp.Write(conn, reply); err != nil || quit {
			return
		}
	}
}

const noAuthReply = "NOAUTH Authentication required."

func (s *Server) dispatch(name string, args []string, authed *bool) (resp.Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts[name]++

	if name == "AUTH" {
		if len(args) == 0 || args[len(args)-1] != s.password {
			return resp.Err("WRONGPASS invalid username-password pair"), false
		}
		*authed = true
		return resp.Simple("OK"), false
	}
	if s.password != "" && !*authed {
		return resp.Err(noAuthReply), false
	}

	switch name {
	case "PING":
		return resp.Simple("PONG"), false
	case "SELECT":
		return resp.Simple("OK"), false
	case "QUIT":
		return resp.Simple("OK"), true
	case "INFO":
		if s.infoErr != "" {
			return resp.Err(s.infoErr), false
		}
		return resp.Bulk(s.replicationInfoLocked()), false
	default:
		return resp.Err(fmt.Sprintf("ERR unknown command '%s'", strings.ToLower(name))), false
	}
}

func (s *Server) replicationInfoLocked() string {
	var b strings.Builder
	b.WriteString("# Replication\r\n")
	fmt.Fprintf(&b, "role:%s\r\n", s.role)
	if s.role == cluster.RoleSlave && !s.master.IsZero() {
		fmt.Fprintf(&b, "master_host:%s\r\n", s.master.Host)
		fmt.Fprintf(&b, "master_port:%d\r\n", s.master.Port)
		b.WriteString("master_link_status:up\r\n")
	}
	if s.role == cluster.RoleMaster {
		b.WriteString("connected_slaves:0\r\n")
	}
	return b.String()
}
