/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0
*/

package toolsurface

import (
	"context"
	"fmt"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// RunStdio mounts the tool surface on the stdio transport (§4.6.1): one
// JSON-RPC 2.0 stream over stdin/stdout, framed by mcp.StdioTransport as
// newline-delimited messages (no length-prefix framing), the same
// dispatcher and authorization pipeline as the HTTP/SSE transports. It
// blocks until ctx is cancelled or the stream closes.
func (s *Server) RunStdio(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("toolsurface: nil server")
	}
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

// ListenAndServeHTTP mounts the tool surface on the HTTP/SSE transport
// at addr (§4.6.1). It applies no framing, header or body-size limits of
// its own.
func (s *Server) ListenAndServeHTTP(addr string) error {
	return http.ListenAndServe(addr, s.Handler())
}
