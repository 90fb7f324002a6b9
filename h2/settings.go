package h2

import (
	"sync"

	"golang.org/x/net/http2"
)

// Settings bounds and defaults per RFC 7540 §6.5.2.
const (
	defaultHeaderTableSize   = 4096
	defaultEnablePush        = 1
	defaultInitialWindowSize = 65535
	defaultMaxFrameSize      = 16384
	minMaxFrameSize          = 16384
	maxMaxFrameSize          = 1<<24 - 1
)

// settingsTable holds one side's view of SETTINGS values, defaulted per
// RFC 7540, with callbacks fired when a value changes (Connection uses them
// on the peer's table to resize the HPACK encoder and to apply the peer's
// max header list size). A SETTINGS_INITIAL_WINDOW_SIZE change is fanned
// out to every stream by Connection.Apply, not by a callback.
type settingsTable struct {
	mu       sync.RWMutex
	values   map[http2.SettingID]uint32
	onChange map[http2.SettingID][]func(old, new uint32)
}

func defaultSettingsTable() *settingsTable {
	return &settingsTable{
		values: map[http2.SettingID]uint32{
			http2.SettingHeaderTableSize:      defaultHeaderTableSize,
			http2.SettingEnablePush:           defaultEnablePush,
			http2.SettingMaxConcurrentStreams: 0, // 0 == unbounded, sentinel
			http2.SettingInitialWindowSize:    defaultInitialWindowSize,
			http2.SettingMaxFrameSize:         defaultMaxFrameSize,
			http2.SettingMaxHeaderListSize:    0, // 0 == unbounded, sentinel
		},
		onChange: map[http2.SettingID][]func(old, new uint32){},
	}
}

func (s *settingsTable) Get(id http2.SettingID) uint32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.values[id]
}

func (s *settingsTable) OnChange(id http2.SettingID, f func(old, new uint32)) {
	s.mu.Lock()
	s.onChange[id] = append(s.onChange[id], f)
	s.mu.Unlock()
}

// Set installs a single value and fires any registered callbacks. Used
// both for applying a peer's SETTINGS frame and for a caller configuring
// its own advertised settings before handshake.
func (s *settingsTable) Set(id http2.SettingID, val uint32) {
	s.mu.Lock()
	old := s.values[id]
	s.values[id] = val
	cbs := append([]func(old, new uint32){}, s.onChange[id]...)
	s.mu.Unlock()
	if old != val {
		for _, cb := range cbs {
			cb(old, val)
		}
	}
}

// ApplyFrame applies every setting in a received SETTINGS frame.
func (s *settingsTable) ApplyFrame(f *http2.SettingsFrame) error {
	return f.ForeachSetting(func(set http2.Setting) error {
		if err := set.Valid(); err != nil {
			return err
		}
		s.Set(set.ID, set.Val)
		return nil
	})
}

// MaxFrameSize clamps to the legal [16384, 2^24-1] range.
func (s *settingsTable) MaxFrameSize() uint32 {
	v := s.Get(http2.SettingMaxFrameSize)
	if v == 0 {
		return defaultMaxFrameSize
	}
	if v < minMaxFrameSize {
		return minMaxFrameSize
	}
	if v > maxMaxFrameSize {
		return maxMaxFrameSize
	}
	return v
}

// MaxConcurrentStreams returns 0 to mean unbounded, matching the default.
func (s *settingsTable) MaxConcurrentStreams() uint32 {
	return s.Get(http2.SettingMaxConcurrentStreams)
}

// AsFrameSettings renders the non-zero-sentinel values as a []http2.Setting
// suitable for framer.WriteSettings, the initial SETTINGS frame a
// client or server sends right after the preface.
func (s *settingsTable) AsFrameSettings() []http2.Setting {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]http2.Setting, 0, len(s.values))
	for id := http2.SettingHeaderTableSize; id <= http2.SettingMaxHeaderListSize; id++ {
		v, ok := s.values[id]
		if !ok {
			continue
		}
		if v == 0 && (id == http2.SettingMaxConcurrentStreams || id == http2.SettingMaxHeaderListSize) {
			continue // 0 is the "unbounded" sentinel, not a value to advertise
		}
		set := http2.Setting{ID: id, Val: v}
		if set.Valid() == nil {
			out = append(out, set)
		}
	}
	return out
}
