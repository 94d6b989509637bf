package models

// ChangeAction is what the server has to do with a pending entity
type ChangeAction string

const (
	ActionSave   ChangeAction = "save"
	ActionDelete ChangeAction = "delete"
)

// ChangeRecord marks an entity as not yet acknowledged by the server.
// It never carries the payload: the current payload is read from the
// local store when the record is flushed.
type ChangeRecord struct {
	Action     ChangeAction `json:"action"`
	Type       EntityType   `json:"type"`
	Key        string       `json:"key"`
	ItemKey    string       `json:"item_key"`
	LastChange int64        `json:"last_change"` // LastChange момент изменения (мс, монотонно)
}

// Valid is the admission gate of the change log
func (r ChangeRecord) Valid() bool {
	if r.Action != ActionSave && r.Action != ActionDelete {
		return false
	}
	if !IsChangeType(r.Type) {
		return false
	}
	return r.Key != "" && r.ItemKey != ""
}

// ChangeFor builds a change record for entity e
func ChangeFor(action ChangeAction, e Entity, lastChange int64) ChangeRecord {
	return ChangeRecord{
		Action:     action,
		Type:       e.Type(),
		Key:        e.GetKey(),
		ItemKey:    e.GetItemKey(),
		LastChange: lastChange,
	}
}

// Task holds the settings of the correction task
type Task struct {
	Title         string  `json:"title"`
	Instructions  string  `json:"instructions"`
	CorrectionEnd int64   `json:"correction_end"` // CorrectionEnd unix-время окончания проверки, 0 - без срока
	MaxPoints     float64 `json:"max_points"`
}

// NewTask builds task settings from an untyped payload
func NewTask(p Payload) Task {
	var t Task
	p.readString("title", &t.Title)
	p.readString("instructions", &t.Instructions)
	p.readInt("correction_end", &t.CorrectionEnd)
	p.readFloat("max_points", &t.MaxPoints)
	return t
}

// Payload projects the task settings
func (t Task) Payload() Payload {
	return Payload{
		"title":          t.Title,
		"instructions":   t.Instructions,
		"correction_end": t.CorrectionEnd,
		"max_points":     t.MaxPoints,
	}
}
