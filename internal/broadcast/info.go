package broadcast

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Info describes a broadcast that completed its handshake.
type Info struct {
	SessionID  string    `json:"session_id"`
	Config     Params    `json:"config"`
	ServerHost string    `json:"server_host"`
	ServerPort int       `json:"server_port"`
	StartTime  time.Time `json:"start_time"`
}

// ListenURL returns the URL listeners tune in to
func (i *Info) ListenURL() string {
	return fmt.Sprintf("http://%s%s", net.JoinHostPort(i.ServerHost, strconv.Itoa(i.ServerPort)), i.Config.Mount)
}

// Duration returns how long the broadcast has been on air
func (i *Info) Duration() time.Duration {
	return time.Since(i.StartTime)
}
