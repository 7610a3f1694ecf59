// Package memory watches conversation size and captures notable user
// statements into the workspace's daily notes.
//
// The flush monitor fires once per conversation when the estimated
// context size nears the point where history would be compacted. The
// agent then runs one silent round asking the model to write anything
// worth keeping with its memory tools before it is lost.
package memory

import (
	"math"
	"strings"
	"sync"
	"time"
)

// SilentReply is the exact response a model gives to a flush round when
// nothing needs saving.
const SilentReply = "[SILENT]"

// FlushConfig configures a [FlushMonitor].
type FlushConfig struct {
	Enabled              bool
	ContextWindow        int     // total token budget
	CompressionThreshold float64 // fraction of the window where compaction starts
	SoftThresholdTokens  int     // margin before the compaction point
}

// DefaultFlushConfig returns the settings used when none are configured.
func DefaultFlushConfig() FlushConfig {
	return FlushConfig{
		Enabled:              true,
		ContextWindow:        128000,
		CompressionThreshold: 0.8,
		SoftThresholdTokens:  4000,
	}
}

// TriggerPoint is the smallest token estimate at which a flush fires:
// the first whole count at or above window*threshold - soft.
func (c FlushConfig) TriggerPoint() int {
	return int(math.Ceil(float64(c.ContextWindow)*c.CompressionThreshold - float64(c.SoftThresholdTokens)))
}

// FlushStatus is the monitor state reported by the API.
type FlushStatus struct {
	Enabled              bool    `json:"enabled"`
	ContextWindow        int     `json:"context_window"`
	CompressionThreshold float64 `json:"compression_threshold"`
	SoftThresholdTokens  int     `json:"soft_threshold_tokens"`
	TriggerPoint         int     `json:"trigger_point"`
	FlushTriggered       bool    `json:"flush_triggered"`
}

// FlushMonitor is a one-shot latch scoped to one conversation. Use one
// monitor per session; monitors are safe for concurrent use.
type FlushMonitor struct {
	cfg FlushConfig

	mu        sync.Mutex
	triggered bool
}

// NewFlushMonitor returns an armed monitor.
func NewFlushMonitor(cfg FlushConfig) *FlushMonitor {
	return &FlushMonitor{cfg: cfg}
}

// ShouldTrigger reports true the first time tokens reaches the trigger
// point, and false on every call after that until [FlushMonitor.Reset].
func (m *FlushMonitor) ShouldTrigger(tokens int) bool {
	if !m.cfg.Enabled {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.triggered {
		return false
	}
	if tokens < m.cfg.TriggerPoint() {
		return false
	}
	m.triggered = true
	return true
}

// Reset re-arms the monitor. Call it when a session starts over.
func (m *FlushMonitor) Reset() {
	m.mu.Lock()
	m.triggered = false
	m.mu.Unlock()
}

// Status reports configuration and latch state.
func (m *FlushMonitor) Status() FlushStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return FlushStatus{
		Enabled:              m.cfg.Enabled,
		ContextWindow:        m.cfg.ContextWindow,
		CompressionThreshold: m.cfg.CompressionThreshold,
		SoftThresholdTokens:  m.cfg.SoftThresholdTokens,
		TriggerPoint:         m.cfg.TriggerPoint(),
		FlushTriggered:       m.triggered,
	}
}

// FlushPrompt is the instruction sent as the user turn of a flush round.
func FlushPrompt(now time.Time) string {
	return `Pre-compaction memory flush.

The conversation context is about to be compressed. Please save any important memories now.

Guidelines:
- Use memory_add to save notable facts, decisions, or user preferences to memory/` + now.Format("2006-01-02") + `.md
- Use memory_update_longterm for information that should persist across all sessions
- Focus on information that would be valuable for future conversations

If nothing important needs to be stored, reply with exactly: ` + SilentReply
}

// IsSilent reports whether a flush round's reply is the silent sentinel.
func IsSilent(reply string) bool {
	return strings.TrimSpace(reply) == SilentReply
}
