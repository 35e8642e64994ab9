package broadcast

import "fmt"

// Event is a lifecycle milestone or error reported to observers.
type Event int

const (
	EventNotSupportedRecordingParameters Event = iota
	EventRecStartFailed
	EventRecStarted
	EventAudioRecordError
	EventPCMBufferOverflow
	EventEncodeStarted
	EventAudioEncodeError
	EventFrameBufferOverflow
	EventFetchServerListFailed
	EventBroadcastServerNotFound
	EventCreateSocketFailed
	EventInterruptedWaitBeforeSend
	EventAuthRequired
	EventMountpointInUse
	EventMountpointTooLong
	EventContentTypeNotSupported
	EventTooManySources
	EventUnknownResponse
	EventSendHeaderFailed
	EventRecvHeaderFailed
	EventStreamStarted
	EventSendStreamFailed
	EventStreamEnded
	EventReconnectStarted
	EventStopWaitReconnect
)

var eventNames = [...]string{
	EventNotSupportedRecordingParameters: "not_supported_recording_parameters",
	EventRecStartFailed:                  "rec_start_failed",
	EventRecStarted:                      "rec_started",
	EventAudioRecordError:                "audio_record_error",
	EventPCMBufferOverflow:               "pcm_buffer_overflow",
	EventEncodeStarted:                   "encode_started",
	EventAudioEncodeError:                "audio_encode_error",
	EventFrameBufferOverflow:             "frame_buffer_overflow",
	EventFetchServerListFailed:           "fetch_server_list_failed",
	EventBroadcastServerNotFound:         "broadcast_server_not_found",
	EventCreateSocketFailed:              "create_socket_failed",
	EventInterruptedWaitBeforeSend:       "interrupted_wait_before_send",
	EventAuthRequired:                    "auth_required",
	EventMountpointInUse:                 "mountpoint_in_use",
	EventMountpointTooLong:               "mountpoint_too_long",
	EventContentTypeNotSupported:         "content_type_not_supported",
	EventTooManySources:                  "too_many_sources",
	EventUnknownResponse:                 "unknown_response",
	EventSendHeaderFailed:                "send_header_failed",
	EventRecvHeaderFailed:                "recv_header_failed",
	EventStreamStarted:                   "stream_started",
	EventSendStreamFailed:                "send_stream_failed",
	EventStreamEnded:                     "stream_ended",
	EventReconnectStarted:                "reconnect_started",
	EventStopWaitReconnect:               "stop_wait_reconnect",
}

func (e Event) String() string {
	if e >= 0 && int(e) < len(eventNames) {
		return eventNames[e]
	}
	return fmt.Sprintf("event(%d)", int(e))
}

// IsError reports whether the event reports a failure
func (e Event) IsError() bool {
	switch e {
	case EventRecStarted, EventEncodeStarted, EventStreamStarted, EventStreamEnded,
		EventReconnectStarted, EventStopWaitReconnect:
		return false
	}
	return e >= 0 && int(e) < len(eventNames)
}
