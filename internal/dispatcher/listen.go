package dispatcher

import (
	"context"
	"net"
	"syscall"
)

// listenConfig returns a net.ListenConfig whose Control callback sets
// SO_REUSEADDR and SO_REUSEPORT on the underlying socket before bind,
// mirroring the original broker's socket setup (both options set on both
// its TCP and UDP sockets) ahead of a single `broker <port>` invocation
// that may be restarted quickly during development.
func listenConfig() net.ListenConfig {
	return net.ListenConfig{
		Control: func(network, address string, c syscall.RawConn) error {
			var setErr error
			err := c.Control(func(fd uintptr) {
				if setErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1); setErr != nil {
					return
				}
				setErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, unixSOReuseport, 1)
			})
			if err != nil {
				return err
			}
			return setErr
		},
	}
}

func listenTCP(ctx context.Context, addr string) (*net.TCPListener, error) {
	lc := listenConfig()
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	return ln.(*net.TCPListener), nil
}

func listenUDP(ctx context.Context, addr string) (*net.UDPConn, error) {
	lc := listenConfig()
	pc, err := lc.ListenPacket(ctx, "udp", addr)
	if err != nil {
		return nil, err
	}
	return pc.(*net.UDPConn), nil
}
