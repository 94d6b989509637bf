package models

// Criterion is a rating criterion of the task for a corrector
type Criterion struct {
	Key          string  `json:"key"`
	CorrectorKey string  `json:"corrector_key"`
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	Points       float64 `json:"points"` // Points максимальное количество баллов
}

func NewCriterion(p Payload) Criterion {
	var c Criterion
	p.readString("key", &c.Key)
	p.readString("corrector_key", &c.CorrectorKey)
	p.readString("title", &c.Title)
	p.readString("description", &c.Description)
	p.readFloat("points", &c.Points)
	return c
}

func (c Criterion) Type() EntityType { return TypeCriterion }
func (c Criterion) GetKey() string { return c.Key }
func (c Criterion) GetItemKey() string { return "" }
func (c Criterion) References() []Reference { return nil }

func (c Criterion) WithKey(key string) Entity {
	c.Key = key
	return c
}

func (c Criterion) RemapReference(EntityType, string, *string) (Entity, bool) {
	return c, false
}

func (c Criterion) Payload() Payload {
	return Payload{
		"key":           c.Key,
		"corrector_key": c.CorrectorKey,
		"title":         c.Title,
		"description":   c.Description,
		"points":        c.Points,
	}
}

// Grade is a grade level; Points is the lower bound of the level
type Grade struct {
	Key    string  `json:"key"`
	Grade  string  `json:"grade"`
	Code   string  `json:"code"`
	Points float64 `json:"points"`
	Passed bool    `json:"passed"`
}

func NewGrade(p Payload) Grade {
	var g Grade
	p.readString("key", &g.Key)
	p.readString("grade", &g.Grade)
	p.readString("code", &g.Code)
	p.readFloat("points", &g.Points)
	p.readBool("passed", &g.Passed)
	return g
}

func (g Grade) Type() EntityType { return TypeGrade }
func (g Grade) GetKey() string { return g.Key }
func (g Grade) GetItemKey() string { return "" }
func (g Grade) References() []Reference { return nil }

func (g Grade) WithKey(key string) Entity {
	g.Key = key
	return g
}

func (g Grade) RemapReference(EntityType, string, *string) (Entity, bool) {
	return g, false
}

func (g Grade) Payload() Payload {
	return Payload{
		"key":    g.Key,
		"grade":  g.Grade,
		"code":   g.Code,
		"points": g.Points,
		"passed": g.Passed,
	}
}

// Item is one written work to be corrected
type Item struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Name  string `json:"name"`
	Text  string `json:"text"`
}

func NewItem(p Payload) Item {
	var it Item
	p.readString("key", &it.Key)
	p.readString("title", &it.Title)
	p.readString("name", &it.Name)
	p.readString("text", &it.Text)
	return it
}

func (it Item) Type() EntityType { return TypeItem }
func (it Item) GetKey() string { return it.Key }
func (it Item) GetItemKey() string { return it.Key }
func (it Item) References() []Reference { return nil }

func (it Item) WithKey(key string) Entity {
	it.Key = key
	return it
}

func (it Item) RemapReference(EntityType, string, *string) (Entity, bool) {
	return it, false
}

func (it Item) Payload() Payload {
	return Payload{
		"key":   it.Key,
		"title": it.Title,
		"name":  it.Name,
		"text":  it.Text,
	}
}

// Assignment binds a corrector to an item
type Assignment struct {
	Key          string `json:"key"`
	ItemKey      string `json:"item_key"`
	CorrectorKey string `json:"corrector_key"`
	Position     int64  `json:"position"` // Position 0 - первый корректор, 1 - второй
}

func NewAssignment(p Payload) Assignment {
	var a Assignment
	p.readString("key", &a.Key)
	p.readString("item_key", &a.ItemKey)
	p.readString("corrector_key", &a.CorrectorKey)
	p.readInt("position", &a.Position)
	return a
}

func (a Assignment) Type() EntityType { return TypeAssignment }
func (a Assignment) GetKey() string { return a.Key }
func (a Assignment) GetItemKey() string { return a.ItemKey }

func (a Assignment) References() []Reference {
	if a.ItemKey == "" {
		return nil
	}
	return []Reference{{Type: TypeItem, Field: "item_key", Key: a.ItemKey}}
}

func (a Assignment) WithKey(key string) Entity {
	a.Key = key
	return a
}

func (a Assignment) RemapReference(t EntityType, oldKey string, newKey *string) (Entity, bool) {
	if t != TypeItem {
		return a, false
	}
	changed := remap(&a.ItemKey, oldKey, newKey)
	return a, changed
}

func (a Assignment) Payload() Payload {
	return Payload{
		"key":           a.Key,
		"item_key":      a.ItemKey,
		"corrector_key": a.CorrectorKey,
		"position":      a.Position,
	}
}
