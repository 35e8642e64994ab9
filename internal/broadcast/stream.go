package broadcast

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/google/uuid"

	"github.com/skypro1111/ladiocast/internal/directory"
	"github.com/skypro1111/ladiocast/internal/protocol"
)

const (
	warmupPollInterval    = 10 * time.Millisecond
	warmupMinSleep        = 10 * time.Millisecond
	reconnectPollInterval = 100 * time.Millisecond
)

// runStream performs one network leg. Retryable failures hand over to
// reconnect, which launches a fresh runStream after the backoff.
func (s *session) runStream() {
	defer s.wg.Done()

	ev, err := s.stream()
	if err == nil {
		return
	}

	if s.settings.ReconnectEnabled {
		s.logger.Warn("Stream failed, scheduling reconnect",
			slog.String("event", ev.String()),
			slog.String("error", err.Error()),
		)
		s.notify(ev)
		s.reconnect()
		return
	}
	s.fail(ev, err)
}

// stream returns the event describing a failure, or a nil error when the leg
// ended because the session is stopping.
func (s *session) stream() (Event, error) {
	logger := s.logger.With(slog.String("stage", "stream"))

	server, ev, err := s.resolveServer()
	if err != nil {
		if s.b.state.IsStoppedOrStopping() {
			return 0, nil
		}
		return ev, err
	}

	dialCtx, dialCancel := s.ctx, context.CancelFunc(func() {})
	if s.settings.DialTimeout > 0 {
		dialCtx, dialCancel = context.WithTimeout(s.ctx, s.settings.DialTimeout)
	}
	conn, err := s.b.opts.Dialer.DialContext(dialCtx, "tcp", server.Addr())
	dialCancel()
	if err != nil {
		if s.b.state.IsStoppedOrStopping() {
			return 0, nil
		}
		return EventCreateSocketFailed, fmt.Errorf("failed to connect to %s: %w", server.Addr(), err)
	}
	logger.Info("Connected to streaming server",
		slog.String("server", server.Name),
		slog.String("addr", conn.RemoteAddr().String()),
	)

	// Unblock socket I/O when the session is cancelled.
	stopWatch := context.AfterFunc(s.ctx, func() {
		conn.SetDeadline(time.Now())
	})
	defer func() {
		stopWatch()
		s.b.setInfo(nil)
		if err := conn.Close(); err != nil {
			logger.Warn("Failed to close connection", slog.String("error", err.Error()))
		}
		logger.Info("Disconnected from streaming server", slog.String("addr", server.Addr()))
	}()

	if err := s.waitWarmup(); err != nil {
		if s.b.state.IsStoppedOrStopping() {
			return 0, nil
		}
		return EventInterruptedWaitBeforeSend, err
	}
	if s.b.state.Get() == StateStopping {
		return 0, nil
	}

	if ev, err := s.handshake(conn); err != nil {
		if s.b.state.IsStoppedOrStopping() {
			return 0, nil
		}
		return ev, err
	}

	s.b.setInfo(&Info{
		SessionID:  uuid.New().String(),
		Config:     s.cfg.Params(),
		ServerHost: server.Host,
		ServerPort: server.Port,
		StartTime:  time.Now(),
	})

	if !s.b.state.CompareAndSet(StateConnecting, StateBroadcasting) {
		s.endStream()
		return 0, nil
	}
	logger.Info("Stream started", slog.String("server", server.Addr()))
	s.notify(EventStreamStarted)

	buf := make([]byte, s.settings.SendBufferSize)
	for s.b.state.Get() == StateBroadcasting {
		n, err := s.frames.Read(s.ctx, buf)
		if err != nil {
			if s.b.state.IsStoppedOrStopping() {
				break
			}
			return EventSendStreamFailed, fmt.Errorf("interrupted waiting for frames: %w", err)
		}
		if _, err := conn.Write(buf[:n]); err != nil {
			if s.b.state.IsStoppedOrStopping() {
				break
			}
			return EventSendStreamFailed, fmt.Errorf("failed to send stream data: %w", err)
		}
		s.b.bytesSent.Add(uint64(n))
	}

	logger.Info("Stream ended")
	s.endStream()
	return 0, nil
}

func (s *session) resolveServer() (directory.Server, Event, error) {
	list, err := s.b.opts.Directory.Fetch(s.ctx)
	if err != nil {
		return directory.Server{}, EventFetchServerListFailed, fmt.Errorf("failed to fetch server list: %w", err)
	}

	var server directory.Server
	if name := s.cfg.Server(); name == "" {
		server, err = list.SelectLeastLoaded()
	} else {
		server, err = list.SelectByName(name)
	}
	if err != nil {
		return directory.Server{}, EventBroadcastServerNotFound, err
	}

	s.logger.Info("Selected streaming server",
		slog.String("server", server.Name),
		slog.String("addr", server.Addr()),
		slog.Int("listeners", server.Listeners),
		slog.Int("candidates", len(list)),
	)
	return server, 0, nil
}

// waitWarmup holds the first send until capture has run for Settings.Warmup,
// so the frame ring has a cushion.
func (s *session) waitWarmup() error {
	if s.settings.Warmup <= 0 {
		return nil
	}

	ticker := time.NewTicker(warmupPollInterval)
	defer ticker.Stop()
	for s.recStart.Load() == 0 {
		if !s.b.state.IsConnectingOrBroadcasting() {
			return nil
		}
		select {
		case <-ticker.C:
		case <-s.ctx.Done():
			return s.ctx.Err()
		}
	}
	if !s.b.state.IsConnectingOrBroadcasting() {
		return nil
	}

	wait := s.settings.Warmup - time.Since(time.Unix(0, s.recStart.Load()))
	if wait <= warmupMinSleep {
		return nil
	}
	s.logger.Debug("Waiting before first send", slog.Duration("wait", wait))

	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	}
}

func (s *session) handshake(conn net.Conn) (Event, error) {
	req := &protocol.SourceRequest{
		Mount:       s.cfg.Mount(),
		UserAgent:   s.settings.UserAgent,
		Name:        s.cfg.Title(),
		Genre:       s.cfg.Genre(),
		Description: s.cfg.Description(),
		URL:         s.cfg.URL(),
		DJ:          s.cfg.DJName(),
		Bitrate:     s.cfg.Bitrate(),
		SampleRate:  s.cfg.SampleRate(),
		Channels:    s.cfg.Channels(),
	}
	if err := protocol.WriteSourceRequest(conn, req); err != nil {
		return EventSendHeaderFailed, err
	}

	if s.settings.DialTimeout > 0 {
		conn.SetReadDeadline(time.Now().Add(s.settings.DialTimeout))
		defer conn.SetReadDeadline(time.Time{})
	}
	if err := protocol.ReadResponse(bufio.NewReader(conn)); err != nil {
		return handshakeEvent(err), err
	}
	return 0, nil
}

func handshakeEvent(err error) Event {
	switch {
	case errors.Is(err, protocol.ErrNoResponse):
		return EventRecvHeaderFailed
	case errors.Is(err, protocol.ErrAuthRequired):
		return EventAuthRequired
	case errors.Is(err, protocol.ErrMountpointInUse):
		return EventMountpointInUse
	case errors.Is(err, protocol.ErrMountpointTooLong):
		return EventMountpointTooLong
	case errors.Is(err, protocol.ErrContentTypeNotSupported):
		return EventContentTypeNotSupported
	case errors.Is(err, protocol.ErrTooManySources):
		return EventTooManySources
	default:
		return EventUnknownResponse
	}
}

// reconnect waits out the backoff and launches a new network leg. Capture and
// encode keep running meanwhile.
func (s *session) reconnect() {
	if !s.b.state.SetUnlessStopping(StateConnecting) {
		s.stopWaitReconnect()
		return
	}
	s.b.reconnects.Add(1)

	s.logger.Info("Waiting before reconnect", slog.Duration("interval", s.settings.ReconnectInterval))
	s.notify(EventReconnectStarted)

	deadline := time.Now().Add(s.settings.ReconnectInterval)
	ticker := time.NewTicker(reconnectPollInterval)
	defer ticker.Stop()
	for time.Now().Before(deadline) {
		if s.b.state.IsStoppedOrStopping() {
			s.stopWaitReconnect()
			return
		}
		select {
		case <-ticker.C:
		case <-s.ctx.Done():
			s.stopWaitReconnect()
			return
		}
	}

	s.logger.Info("Reconnecting")
	s.wg.Add(1)
	go s.runStream()
}

// stopWaitReconnect abandons the backoff. The event is reported only for a
// requested stop; a stage failure has already reported its own cause.
func (s *session) stopWaitReconnect() {
	s.b.state.SetUnlessStopping(StateStopping)
	s.cancel()
	if !s.stopRequested.Load() || s.failed.Load() {
		s.logger.Info("Reconnect abandoned after stage failure")
		return
	}
	s.logger.Info("Stopped while waiting to reconnect")
	s.notify(EventStopWaitReconnect)
}
