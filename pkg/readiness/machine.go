// Package readiness tracks whether the application can start a conversion
// and publishes state changes to per-topic subscribers. A missing audio
// converter never blocks readiness; it only gates MP3 output.
package readiness

import (
	"log/slog"
	"sync"

	"vocify/pkg/faults"
	"vocify/pkg/resource"
	"vocify/pkg/tts"
)

// Topic identifies a state change channel.
type Topic string

const (
	TopicReadiness Topic = "readiness"
	TopicVoices    Topic = "voices"
	TopicConverter Topic = "converter"
	TopicOutput    Topic = "output"
	TopicAction    Topic = "action"
)

// Snapshot is an immutable view of the machine state.
type Snapshot struct {
	Initializing        bool
	VoicesLoaded        bool
	VoiceCount          int
	VoiceAttempts       int
	VoiceErr            *faults.Record
	ConverterChecked    bool
	ConverterAvailable  bool
	ConverterSource     string
	OutputFolder        string
	DefaultOutputFolder string
	SuggestedAction     faults.Action
	Ready               bool
	MP3Selectable       bool
}

// Listener receives the topic that changed and the state after the change.
type Listener func(Topic, Snapshot)

// Machine is the readiness state machine. It starts in the initializing
// state with nothing loaded.
type Machine struct {
	mu                  sync.Mutex
	initializing        bool
	voicesLoaded        bool
	voiceCount          int
	voiceAttempts       int
	voiceErr            *faults.Record
	converterChecked    bool
	converterAvailable  bool
	converterSource     string
	outputFolder        string
	defaultOutputFolder string
	suggestedAction     faults.Action
	lastReady           bool

	nextID    int
	listeners map[Topic]map[int]Listener
}

// New creates a Machine in the initializing state.
func New() *Machine {
	return &Machine{
		initializing: true,
		listeners:    make(map[Topic]map[int]Listener),
	}
}

// Subscribe registers fn for topic and returns an unsubscribe func.
func (m *Machine) Subscribe(topic Topic, fn Listener) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextID
	m.nextID++
	if m.listeners[topic] == nil {
		m.listeners[topic] = make(map[int]Listener)
	}
	m.listeners[topic][id] = fn

	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.listeners[topic], id)
	}
}

// Snapshot returns the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Ready reports whether a conversion can start. The converter is
// deliberately absent from this formula.
func (m *Machine) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.readyLocked()
}

// MP3Selectable reports whether MP3 output may be offered.
func (m *Machine) MP3Selectable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.converterAvailable
}

// SetInitializing marks the start or end of application initialization.
func (m *Machine) SetInitializing(v bool) {
	m.apply(TopicReadiness, func() {
		m.initializing = v
	})
}

// SetVoices records the outcome of voice detection.
func (m *Machine) SetVoices(voices []tts.Voice, attempts int, err *faults.Record) {
	m.apply(TopicVoices, func() {
		m.voicesLoaded = err == nil && len(voices) > 0
		m.voiceCount = len(voices)
		m.voiceAttempts = attempts
		m.voiceErr = err
	})
}

// SetConverter records the outcome of converter detection.
func (m *Machine) SetConverter(status *resource.Status) {
	m.apply(TopicConverter, func() {
		m.converterChecked = true
		m.converterAvailable = status != nil && status.Available
		if status != nil {
			m.converterSource = status.Source
		}
	})
}

// SetOutputFolder records the user-chosen output folder. Empty clears it.
func (m *Machine) SetOutputFolder(path string) {
	m.apply(TopicOutput, func() {
		m.outputFolder = path
	})
}

// SetDefaultOutputFolder records the fallback output folder.
func (m *Machine) SetDefaultOutputFolder(path string) {
	m.apply(TopicOutput, func() {
		m.defaultOutputFolder = path
	})
}

// SuggestAction publishes the remedial action of a classified record to
// action-topic subscribers, typically to steer the UI (install voices,
// switch to WAV). Nil records and ActionNone are ignored.
func (m *Machine) SuggestAction(rec *faults.Record) {
	if rec == nil || rec.SuggestedAction == faults.ActionNone {
		return
	}
	m.apply(TopicAction, func() {
		m.suggestedAction = rec.SuggestedAction
	})
}

// apply mutates state under the lock, then notifies the changed topic and,
// when the ready verdict flipped, the readiness topic.
func (m *Machine) apply(topic Topic, mutate func()) {
	m.mu.Lock()
	mutate()
	snap := m.snapshotLocked()
	flipped := snap.Ready != m.lastReady
	m.lastReady = snap.Ready

	// The readiness topic is flip-gated; every other topic fires on each
	// change.
	var targets []target
	if topic != TopicReadiness {
		targets = m.collectLocked(topic)
	}
	if flipped {
		targets = append(targets, m.collectLocked(TopicReadiness)...)
	}
	m.mu.Unlock()

	for _, t := range targets {
		notify(t.topic, t.fn, snap)
	}
}

type target struct {
	topic Topic
	fn    Listener
}

func (m *Machine) collectLocked(topic Topic) []target {
	var out []target
	for _, fn := range m.listeners[topic] {
		out = append(out, target{topic: topic, fn: fn})
	}
	return out
}

// notify calls one listener, containing any panic so one faulty subscriber
// cannot take down the others or the publisher.
func notify(topic Topic, fn Listener, snap Snapshot) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("readiness listener panicked", "topic", topic, "panic", r)
		}
	}()
	fn(topic, snap)
}

func (m *Machine) readyLocked() bool {
	return !m.initializing &&
		m.voicesLoaded &&
		(m.outputFolder != "" || m.defaultOutputFolder != "")
}

func (m *Machine) snapshotLocked() Snapshot {
	return Snapshot{
		Initializing:        m.initializing,
		VoicesLoaded:        m.voicesLoaded,
		VoiceCount:          m.voiceCount,
		VoiceAttempts:       m.voiceAttempts,
		VoiceErr:            m.voiceErr,
		ConverterChecked:    m.converterChecked,
		ConverterAvailable:  m.converterAvailable,
		ConverterSource:     m.converterSource,
		OutputFolder:        m.outputFolder,
		DefaultOutputFolder: m.defaultOutputFolder,
		SuggestedAction:     m.suggestedAction,
		Ready:               m.readyLocked(),
		MP3Selectable:       m.converterAvailable,
	}
}
