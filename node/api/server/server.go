// Package server provides a server that can wrap the API and serve it over
// a listener.
package server

import (
	"net"
	"net/http"

	"github.com/uplo-tech/errors"

	"github.com/uplo-tech/chunkfs/node/api"
)

// A Server is essentially a collection of modules and an API server to talk
// to them all.
type Server struct {
	api       *api.API
	apiServer *http.Server
	listener  net.Listener
}

// New creates a new API server listening on addr.
func New(addr string, a *api.API) (*Server, error) {
	// Create the listener.
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, errors.AddContext(err, "unable to create listener")
	}

	srv := &Server{
		api: a,
		apiServer: &http.Server{
			Handler: a,
		},
		listener: listener,
	}
	return srv, nil
}

// Serve starts the HTTP server and blocks until the server is closed.
func (srv *Server) Serve() error {
	err := srv.apiServer.Serve(srv.listener)
	if err != nil && !errors.Contains(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close closes the server's listener, causing the HTTP server to shut down.
func (srv *Server) Close() error {
	return srv.apiServer.Close()
}

// APIAddress returns the underlying node's api address.
func (srv *Server) APIAddress() string {
	return srv.listener.Addr().String()
}
