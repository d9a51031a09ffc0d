package server

import (
	"context"
	"net"

	"golang.org/x/sys/unix"
)

type connContextKey struct{}

// withConn stashes the accepted net.Conn on the request context so handlers
// can recover peer credentials. http.Server.ConnContext is the only hook
// that exposes the raw connection before it's wrapped for HTTP.
func withConn(ctx context.Context, c net.Conn) context.Context {
	return context.WithValue(ctx, connContextKey{}, c)
}

func connFromContext(ctx context.Context) net.Conn {
	c, _ := ctx.Value(connContextKey{}).(net.Conn)
	return c
}

// peerUID returns the uid of the process on the other end of a local unix
// socket connection. ok is false for anything else (TCP, or a credential
// lookup failure), in which case the caller must treat the request as
// unprivileged.
func peerUID(ctx context.Context) (uint32, bool) {
	conn := connFromContext(ctx)
	if conn == nil {
		return 0, false
	}
	unixConn, ok := conn.(*net.UnixConn)
	if !ok {
		return 0, false
	}

	raw, err := unixConn.SyscallConn()
	if err != nil {
		return 0, false
	}

	var uid uint32
	var ucredErr error
	controlErr := raw.Control(func(fd uintptr) {
		ucred, err := unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
		if err != nil {
			ucredErr = err
			return
		}
		uid = ucred.Uid
	})
	if controlErr != nil || ucredErr != nil {
		return 0, false
	}
	return uid, true
}

// privilegedCommands requires uid 0 on the local socket; everything else is
// always accepted. TCP-originated requests never satisfy this set since
// peerUID only resolves for unix socket connections.
var privilegedCommands = map[string]bool{
	"spawn":        true,
	"stop":         true,
	"start":        true,
	"restart":      true,
	"remove":       true,
	"exec":         true,
	"reconcile":    true,
	"reload":       true,
	"image_pull":   true,
	"stream_exec":  true,
	"stream_shell": true,
}

func (s *Server) authorize(ctx context.Context, command string) bool {
	if !privilegedCommands[command] {
		return true
	}
	uid, ok := peerUID(ctx)
	if !ok {
		return false
	}
	return uid == 0
}
