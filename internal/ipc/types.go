package ipc

import (
	"net"
	"sync"
)

type Command struct {
	ID      int      `json:"id"`
	Command string   `json:"command"`
	Args    []string `json:"args"`
}

type Response struct {
	ID     int         `json:"id"`
	Error  string      `json:"error,omitempty"`
	Result interface{} `json:"result,omitempty"`
}

// Handler resolves one command into a result or an error
type Handler func(cmd Command) (interface{}, error)

type Server struct {
	listener net.Listener
	handler  Handler
	mutex    sync.Mutex
	closed   bool
}

type Client struct {
	conn net.Conn
}
