package ipc

import (
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"runtime"
)

const unixSocketPath = "/tmp/walletd.sock"
const windowsSocketPort = ":7171"

var commandID int
var osType = runtime.GOOS

func generateCommandID() int {
	commandID++
	return commandID
}

// NewServer starts the local control socket and dispatches each received
// command to the handler.
func NewServer(handler Handler) (*Server, error) {
	var listener net.Listener
	var err error

	if osType == "windows" {
		// On Windows, use TCP socket
		listener, err = net.Listen("tcp", windowsSocketPort)
	} else {
		// On Unix-like systems, use Unix socket
		if _, statErr := os.Stat(unixSocketPath); statErr == nil {
			if rmErr := os.Remove(unixSocketPath); rmErr != nil {
				return nil, fmt.Errorf("failed to remove existing socket file: %v", rmErr)
			}
		}
		listener, err = net.Listen("unix", unixSocketPath)
	}

	if err != nil {
		return nil, err
	}

	server := &Server{
		listener: listener,
		handler:  handler,
	}

	go server.accept()

	return server, nil
}

func (s *Server) accept() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mutex.Lock()
			closed := s.closed
			s.mutex.Unlock()
			if closed {
				return
			}
			log.Printf("Error accepting IPC connection: %v", err)
			continue
		}
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	decoder := json.NewDecoder(conn)
	encoder := json.NewEncoder(conn)

	for {
		var cmd Command
		if err := decoder.Decode(&cmd); err != nil {
			if err != io.EOF {
				log.Printf("Error decoding IPC command: %v", err)
			}
			return
		}

		resp := Response{ID: cmd.ID}
		result, err := s.handler(cmd)
		if err != nil {
			resp.Error = err.Error()
		} else {
			resp.Result = result
		}

		if err := encoder.Encode(resp); err != nil {
			log.Printf("Error encoding IPC response: %v", err)
			return
		}
	}
}

// Close shuts the listener down and removes the socket file
func (s *Server) Close() {
	s.mutex.Lock()
	s.closed = true
	s.mutex.Unlock()

	s.listener.Close()
	if osType != "windows" {
		os.Remove(unixSocketPath)
	}
}

// NewClient connects to a running daemon's control socket
func NewClient() (*Client, error) {
	var conn net.Conn
	var err error

	if osType == "windows" {
		conn, err = net.Dial("tcp", windowsSocketPort)
	} else {
		conn, err = net.Dial("unix", unixSocketPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect to walletd control socket: %v", err)
	}
	return &Client{conn: conn}, nil
}

// Send issues one command and waits for its response
func (c *Client) Send(command string, args ...string) (*Response, error) {
	cmd := Command{
		ID:      generateCommandID(),
		Command: command,
		Args:    args,
	}

	if err := json.NewEncoder(c.conn).Encode(cmd); err != nil {
		return nil, fmt.Errorf("failed to send command: %v", err)
	}

	var resp Response
	if err := json.NewDecoder(c.conn).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to read response: %v", err)
	}
	return &resp, nil
}

func (c *Client) Close() {
	c.conn.Close()
}
