package http2

import (
	"time"

	"github.com/h2conform/engine/http2utils"
)

const FrameSettings FrameType = 0x4

var _ Frame = &Settings{}

// Default values applied to a freshly-constructed Settings and to timing
// knobs elsewhere in the package.
//
// https://tools.ietf.org/html/rfc7540#section-6.5.2
const (
	defaultHeaderTableSize      = 4096
	defaultMaxConcurrentStreams = 100
	defaultMaxWindowSize        = 1 << 20 // 1MiB, same initial window the teacher advertises
	maxFrameSize                = 1 << 14
	defaultMaxHeaderListSize    = 1 << 20
)

// DefaultPingInterval is how often a connection sends a PING to measure RTT
// when no explicit interval is configured.
const DefaultPingInterval = 30 * time.Second

// settingID identifies a single entry of a SETTINGS frame's payload.
//
// https://tools.ietf.org/html/rfc7540#section-6.5.2
type settingID uint16

const (
	settingHeaderTableSize      settingID = 0x1
	settingEnablePush           settingID = 0x2
	settingMaxConcurrentStreams settingID = 0x3
	settingInitialWindowSize    settingID = 0x4
	settingMaxFrameSize         settingID = 0x5
	settingMaxHeaderListSize    settingID = 0x6
)

// Setting is a single, typed (id, value) SETTINGS entry, as returned by
// Settings.Settings(). Exposed so that callers
// inspecting SETTINGS traffic (e.g. conformance tests) don't have to
// re-parse the raw 6-byte tuples themselves.
type Setting struct {
	id    settingID
	value uint32
}

// ID returns the raw SETTINGS identifier.
func (s Setting) ID() uint16 {
	return uint16(s.id)
}

// Value returns the setting's 32-bit value.
func (s Setting) Value() uint32 {
	return s.value
}

// Settings represents the payload of a SETTINGS frame, and doubles as the
// engine's own record of one side's advertised/negotiated parameters.
//
// https://tools.ietf.org/html/rfc7540#section-6.5
type Settings struct {
	ack bool

	headerTableSize   uint32
	push              bool
	maxStreams        uint32
	maxWindowSize     uint32
	frameSize         uint32
	maxHeaderListSize uint32
}

func (st *Settings) Type() FrameType {
	return FrameSettings
}

// Reset sets every field back to this package's defaults: the RFC 7540
// §6.5.2 values for header table size, push and max frame size, and this
// package's own 100 concurrent streams, 1MiB initial window and 1MiB
// header list limit.
func (st *Settings) Reset() {
	st.ack = false
	st.headerTableSize = defaultHeaderTableSize
	st.push = true
	st.maxStreams = defaultMaxConcurrentStreams
	st.maxWindowSize = defaultMaxWindowSize
	st.frameSize = maxFrameSize
	st.maxHeaderListSize = defaultMaxHeaderListSize
}

// CopyTo copies st's fields into st2.
func (st *Settings) CopyTo(st2 *Settings) {
	st2.ack = st.ack
	st2.headerTableSize = st.headerTableSize
	st2.push = st.push
	st2.maxStreams = st.maxStreams
	st2.maxWindowSize = st.maxWindowSize
	st2.frameSize = st.frameSize
	st2.maxHeaderListSize = st.maxHeaderListSize
}

// IsAck reports whether the ACK flag was set on this SETTINGS frame.
func (st *Settings) IsAck() bool {
	return st.ack
}

// SetAck sets or clears the ACK flag.
func (st *Settings) SetAck(ack bool) {
	st.ack = ack
}

// HeaderTableSize returns SETTINGS_HEADER_TABLE_SIZE.
func (st *Settings) HeaderTableSize() uint32 {
	if st.headerTableSize == 0 {
		return defaultHeaderTableSize
	}
	return st.headerTableSize
}

// SetHeaderTableSize sets SETTINGS_HEADER_TABLE_SIZE.
func (st *Settings) SetHeaderTableSize(size uint32) {
	st.headerTableSize = size
}

// Push reports whether server push is enabled (SETTINGS_ENABLE_PUSH).
func (st *Settings) Push() bool {
	return st.push
}

// SetPush enables or disables server push.
func (st *Settings) SetPush(push bool) {
	st.push = push
}

// MaxConcurrentStreams returns SETTINGS_MAX_CONCURRENT_STREAMS.
func (st *Settings) MaxConcurrentStreams() uint32 {
	if st.maxStreams == 0 {
		return defaultMaxConcurrentStreams
	}
	return st.maxStreams
}

// SetMaxConcurrentStreams sets SETTINGS_MAX_CONCURRENT_STREAMS.
func (st *Settings) SetMaxConcurrentStreams(n int) {
	st.maxStreams = uint32(n)
}

// MaxWindowSize returns SETTINGS_INITIAL_WINDOW_SIZE.
func (st *Settings) MaxWindowSize() uint32 {
	if st.maxWindowSize == 0 {
		return defaultMaxWindowSize
	}
	return st.maxWindowSize
}

// SetMaxWindowSize sets SETTINGS_INITIAL_WINDOW_SIZE.
func (st *Settings) SetMaxWindowSize(size uint32) {
	st.maxWindowSize = size
}

// FrameSize returns SETTINGS_MAX_FRAME_SIZE.
func (st *Settings) FrameSize() uint32 {
	if st.frameSize == 0 {
		return maxFrameSize
	}
	return st.frameSize
}

// SetFrameSize sets SETTINGS_MAX_FRAME_SIZE.
func (st *Settings) SetFrameSize(size uint32) {
	st.frameSize = size
}

// MaxHeaderListSize returns SETTINGS_MAX_HEADER_LIST_SIZE.
func (st *Settings) MaxHeaderListSize() uint32 {
	if st.maxHeaderListSize == 0 {
		return defaultMaxHeaderListSize
	}
	return st.maxHeaderListSize
}

// SetMaxHeaderListSize sets SETTINGS_MAX_HEADER_LIST_SIZE.
func (st *Settings) SetMaxHeaderListSize(size uint32) {
	st.maxHeaderListSize = size
}

// Settings returns the non-zero fields, plus ENABLE_PUSH which is always
// included, as typed Setting values, suitable for inspection or for
// re-encoding elsewhere.
func (st *Settings) Settings() []Setting {
	settings := make([]Setting, 0, 6)

	if st.headerTableSize != 0 {
		settings = append(settings, Setting{settingHeaderTableSize, st.headerTableSize})
	}
	settings = append(settings, Setting{settingEnablePush, boolToUint32(st.push)})
	if st.maxStreams != 0 {
		settings = append(settings, Setting{settingMaxConcurrentStreams, st.maxStreams})
	}
	if st.maxWindowSize != 0 {
		settings = append(settings, Setting{settingInitialWindowSize, st.maxWindowSize})
	}
	if st.frameSize != 0 {
		settings = append(settings, Setting{settingMaxFrameSize, st.frameSize})
	}
	if st.maxHeaderListSize != 0 {
		settings = append(settings, Setting{settingMaxHeaderListSize, st.maxHeaderListSize})
	}

	return settings
}

func boolToUint32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

func (st *Settings) Deserialize(frh *FrameHeader) error {
	st.ack = frh.Flags().Has(FlagAck)
	if st.ack {
		return nil
	}

	payload := frh.payload
	if len(payload)%6 != 0 {
		return ErrMissingBytes
	}

	for len(payload) > 0 {
		id := settingID(uint16(payload[0])<<8 | uint16(payload[1]))
		value := http2utils.BytesToUint32(payload[2:6])

		switch id {
		case settingHeaderTableSize:
			st.headerTableSize = value
		case settingEnablePush:
			st.push = value == 1
		case settingMaxConcurrentStreams:
			st.maxStreams = value
		case settingInitialWindowSize:
			st.maxWindowSize = value
		case settingMaxFrameSize:
			st.frameSize = value
		case settingMaxHeaderListSize:
			st.maxHeaderListSize = value
		}

		payload = payload[6:]
	}

	return nil
}

func (st *Settings) Serialize(frh *FrameHeader) {
	if st.ack {
		frh.SetFlags(frh.Flags().Add(FlagAck))
		frh.payload = frh.payload[:0]
		return
	}

	payload := frh.payload[:0]
	for _, s := range st.Settings() {
		payload = append(payload, byte(s.id>>8), byte(s.id))
		payload = http2utils.AppendUint32Bytes(payload, s.value)
	}

	frh.payload = payload
}
