package bootstrap

import (
	"net"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/flux-framework/flux-core-go/pkg/ferror"
	"github.com/flux-framework/flux-core-go/pkg/log"
)

var bootstrapLog = log.WithComponent("bootstrap")

var debugLevel int32

// SetDebugLevel sets the package-wide rendezvous diagnostic verbosity:
// 0 logs only failures, >=2 additionally logs every successful
// handshake's session parameters.
func SetDebugLevel(n int) { atomic.StoreInt32(&debugLevel, int32(n)) }

func currentDebugLevel() int { return int(atomic.LoadInt32(&debugLevel)) }

// ConnectConfig carries the connect_* configuration table governing
// the port-range rendezvous scan.
type ConnectConfig struct {
	ConnectTimeout   time.Duration
	ConnectBackoff   float64
	ConnectSleep     time.Duration
	ConnectTimeLimit time.Duration
}

// DefaultConnectConfig returns the compiled-in connect-retry defaults.
func DefaultConnectConfig() ConnectConfig {
	return ConnectConfig{
		ConnectTimeout:   500 * time.Millisecond,
		ConnectBackoff:   2.0,
		ConnectSleep:     250 * time.Millisecond,
		ConnectTimeLimit: 30 * time.Second,
	}
}

// ListenFirstAvailable binds the first bindable port from ports: each
// participant listens on the first bindable port from its candidate
// list.
func ListenFirstAvailable(host string, ports []int) (net.Listener, int, error) {
	for _, port := range ports {
		ln, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
		if err == nil {
			return ln, port, nil
		}
	}
	return nil, 0, ferror.New(ferror.NoSpace, "no bindable port in range among %d candidates", len(ports))
}

// DialWithBackoff scans host's port list in rounds until a dial succeeds
// or ConnectTimeLimit passes, sleeping ConnectSleep between rounds. Only
// the dial timeout backs off: it is multiplied by cfg.ConnectBackoff
// after each round, with no upper bound. No reply timeout is applied.
func DialWithBackoff(host string, ports []int, cfg ConnectConfig) (net.Conn, error) {
	deadline := time.Now().Add(cfg.ConnectTimeLimit)
	timeout := cfg.ConnectTimeout

	for time.Now().Before(deadline) {
		for _, port := range ports {
			addr := net.JoinHostPort(host, strconv.Itoa(port))
			conn, err := net.DialTimeout("tcp", addr, timeout)
			if err == nil {
				return conn, nil
			}
			bootstrapLog.Debug().Str("addr", addr).Dur("timeout", timeout).Err(err).Msg("bootstrap connect attempt failed")
		}
		timeout = time.Duration(float64(timeout) * cfg.ConnectBackoff)
		time.Sleep(cfg.ConnectSleep)
	}
	return nil, ferror.New(ferror.TimedOut, "exhausted connect time limit dialing %s", host)
}
