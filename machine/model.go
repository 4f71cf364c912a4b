package machine

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/mastercactapus/lasergrbl/notify"
)

// UpdateKind says which part of the State an Update was caused by.
type UpdateKind int

const (
	// UpdateSnapshot is delivered once to every new subscriber.
	UpdateSnapshot UpdateKind = iota
	UpdateReport
	UpdateTemperature
	UpdateDigital
	UpdateSettings
)

// Update is published after every change to the Model.
type Update struct {
	Kind UpdateKind `json:"kind"`

	// Name is the digital input or setting that changed, if any.
	Name string `json:"name,omitempty"`

	State State `json:"state"`
}

// Model keeps the latest known machine status. It is safe for concurrent use.
type Model struct {
	log *zap.Logger

	mx     sync.Mutex
	state  State
	source posSource

	hub notify.Hub[Update]
}

func NewModel(log *zap.Logger) *Model {
	if log == nil {
		log = zap.NewNop()
	}
	return &Model{log: log}
}

// Subscribe registers fn for updates. The current snapshot is delivered first.
func (m *Model) Subscribe(fn func(Update)) (cancel func()) {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.hub.SubscribeWith(Update{Kind: UpdateSnapshot, State: m.state.clone()}, fn)
}

// Close stops all subscribers.
func (m *Model) Close() { m.hub.Close() }

// State returns a copy of the current state.
func (m *Model) State() State {
	m.mx.Lock()
	defer m.mx.Unlock()
	return m.state.clone()
}

// publish must be called with mx held, so that updates reach subscribers in
// the order they were applied.
func (m *Model) publish(kind UpdateKind, name string) {
	m.hub.Publish(Update{Kind: kind, Name: name, State: m.state.clone()})
}

// HandleReport applies a status report. Malformed fields are logged and
// skipped, and returned joined together; everything else is applied.
func (m *Model) HandleReport(text string) error {
	m.mx.Lock()
	defer m.mx.Unlock()

	stat, src, errs := parseStatus(m.state.clone(), text)
	for _, err := range errs {
		m.log.Warn("parse status", zap.String("report", text), zap.Error(err))
	}
	var mre *MalformedReportError
	if len(errs) == 1 && errors.As(errs[0], &mre) && mre.Field == "" {
		// not a report at all
		return errs[0]
	}

	if src != sourceNone {
		m.source = src
	}
	stat.derive(m.source)
	m.state = stat
	m.publish(UpdateReport, "")

	return errors.Join(errs...)
}

func (m *Model) UpdateTemperature(v float64) {
	m.mx.Lock()
	defer m.mx.Unlock()
	m.state.Temperature = &v
	m.publish(UpdateTemperature, "")
}

func (m *Model) UpdateDigitalState(name string, v bool) {
	m.mx.Lock()
	defer m.mx.Unlock()
	if m.state.Digital == nil {
		m.state.Digital = make(map[string]bool)
	}
	m.state.Digital[name] = v
	m.publish(UpdateDigital, name)
}

// SetSetting records one controller setting from a `$$` dump.
func (m *Model) SetSetting(name string, v float64) {
	m.mx.Lock()
	defer m.mx.Unlock()
	if m.state.Settings == nil {
		m.state.Settings = make(map[string]float64)
	}
	m.state.Settings[name] = v
	m.publish(UpdateSettings, name)
}
