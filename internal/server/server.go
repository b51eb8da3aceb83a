package server

import (
	"fmt"

	"github.com/DominicWuest/versect/pkg/versect"
	"github.com/sirupsen/logrus"
)

type ServerType int

const (
	HTTP ServerType = iota
)

// Config holds the collaborators a server drives bisections with.
type Config struct {
	Port int // The port to listen on, or 0 for a free port

	Releases    versect.ReleaseSet
	Executables versect.ExecutableResolver
	Payloads    versect.PayloadResolver

	Headless bool // Whether jobs started through the server run headless

	Log *logrus.Logger
}

type Server interface {
	Init(Config) error
}

func NewServer(serverType ServerType, cfg Config) (Server, error) {
	switch serverType {
	case HTTP:
		server := &httpServer{}
		return server, server.Init(cfg)
	}
	return nil, fmt.Errorf("%d is not a valid server type", serverType)
}
