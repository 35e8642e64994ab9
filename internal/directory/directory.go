package directory

import (
	"context"
	"errors"
	"net"
	"sort"
	"strconv"
)

var (
	// ErrNotFound means a server requested by name is not listed.
	ErrNotFound = errors.New("broadcast server not found")
	// ErrNoServer means the list is empty.
	ErrNoServer = errors.New("no broadcast server available")
)

// Server is one streaming server entry.
type Server struct {
	Name      string `json:"name" yaml:"name"`
	Host      string `json:"host" yaml:"host"`
	Port      int    `json:"port" yaml:"port"`
	Listeners int    `json:"listeners" yaml:"listeners"`
}

// Addr returns host:port
func (s Server) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// List is a snapshot of a directory.
type List []Server

// SelectLeastLoaded returns the server with the fewest listeners. Ties go to
// the earlier entry.
func (l List) SelectLeastLoaded() (Server, error) {
	if len(l) == 0 {
		return Server{}, ErrNoServer
	}
	best := l[0]
	for _, s := range l[1:] {
		if s.Listeners < best.Listeners {
			best = s
		}
	}
	return best, nil
}

// SelectByName returns the server whose Name or host:port equals name
func (l List) SelectByName(name string) (Server, error) {
	for _, s := range l {
		if s.Name == name || s.Addr() == name {
			return s, nil
		}
	}
	return Server{}, ErrNotFound
}

// Sorted returns a copy ordered by listener count, then name
func (l List) Sorted() List {
	out := append(List(nil), l...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Listeners != out[j].Listeners {
			return out[i].Listeners < out[j].Listeners
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// Fetcher retrieves the current server list.
type Fetcher interface {
	Fetch(ctx context.Context) (List, error)
}

// Static serves a fixed list.
type Static List

// Fetch returns a copy of the list
func (s Static) Fetch(ctx context.Context) (List, error) {
	return append(List(nil), s...), nil
}
