package models

import "fmt"

// Comment ratings
const (
	RatingNone      = ""
	RatingCardinal  = "cardinal"  // cardinal failure
	RatingExcellent = "excellent" // especially good passage
)

// Snippet purposes
const (
	SnippetPurposeComment = "comment"
	SnippetPurposeSummary = "summary"
)

// Comment is an inline comment on a word range of the item text
type Comment struct {
	Key           string  `json:"key"`            // Key идентификатор (temp* до подтверждения сервером)
	ItemKey       string  `json:"item_key"`       // ItemKey проверяемая работа
	CorrectorKey  string  `json:"corrector_key"`  // CorrectorKey автор комментария
	Comment       string  `json:"comment"`        // Comment текст комментария
	Rating        string  `json:"rating"`         // Rating "", "cardinal" или "excellent"
	Label         string  `json:"-"`              // Label отображаемый номер вида "3.2", не сохраняется
	StartPosition int64   `json:"start_position"` // StartPosition первое слово выделения
	EndPosition   int64   `json:"end_position"`   // EndPosition последнее слово выделения
	ParentNumber  int64   `json:"parent_number"`  // ParentNumber номер абзаца
	Points        float64 `json:"points"`         // Points сумма баллов, привязанных к комментарию
}

// NewComment builds a comment from an untyped payload
func NewComment(p Payload) Comment {
	var c Comment
	p.readString("key", &c.Key)
	p.readString("item_key", &c.ItemKey)
	p.readString("corrector_key", &c.CorrectorKey)
	p.readString("comment", &c.Comment)
	p.readEnum("rating", &c.Rating, RatingNone, RatingCardinal, RatingExcellent)
	p.readInt("start_position", &c.StartPosition)
	p.readInt("end_position", &c.EndPosition)
	p.readInt("parent_number", &c.ParentNumber)
	p.readFloat("points", &c.Points)
	return c
}

func (c Comment) Type() EntityType { return TypeComment }
func (c Comment) GetKey() string { return c.Key }
func (c Comment) GetItemKey() string { return c.ItemKey }
func (c Comment) References() []Reference { return nil }

func (c Comment) WithKey(key string) Entity {
	c.Key = key
	return c
}

func (c Comment) RemapReference(EntityType, string, *string) (Entity, bool) {
	return c, false
}

func (c Comment) Payload() Payload {
	return Payload{
		"key":            c.Key,
		"item_key":       c.ItemKey,
		"corrector_key":  c.CorrectorKey,
		"comment":        c.Comment,
		"rating":         c.Rating,
		"start_position": c.StartPosition,
		"end_position":   c.EndPosition,
		"parent_number":  c.ParentNumber,
		"points":         c.Points,
	}
}

// LabelFor builds the display label of the n-th comment in a paragraph
func LabelFor(parentNumber int64, n int) string {
	return fmt.Sprintf("%d.%d", parentNumber, n)
}

// Points is a point allocation for a rating criterion, optionally bound to a comment
type Points struct {
	Key          string  `json:"key"`
	ItemKey      string  `json:"item_key"`
	CorrectorKey string  `json:"corrector_key"`
	CommentKey   string  `json:"comment_key"`
	CriterionKey string  `json:"criterion_key"`
	Points       float64 `json:"points"`
}

// NewPoints builds a point allocation from an untyped payload
func NewPoints(p Payload) Points {
	var pt Points
	p.readString("key", &pt.Key)
	p.readString("item_key", &pt.ItemKey)
	p.readString("corrector_key", &pt.CorrectorKey)
	p.readString("comment_key", &pt.CommentKey)
	p.readString("criterion_key", &pt.CriterionKey)
	p.readFloat("points", &pt.Points)
	return pt
}

func (pt Points) Type() EntityType { return TypePoints }
func (pt Points) GetKey() string { return pt.Key }
func (pt Points) GetItemKey() string { return pt.ItemKey }

func (pt Points) WithKey(key string) Entity {
	pt.Key = key
	return pt
}

func (pt Points) References() []Reference {
	var refs []Reference
	if pt.CommentKey != "" {
		refs = append(refs, Reference{Type: TypeComment, Field: "comment_key", Key: pt.CommentKey})
	}
	if pt.CriterionKey != "" {
		refs = append(refs, Reference{Type: TypeCriterion, Field: "criterion_key", Key: pt.CriterionKey})
	}
	return refs
}

func (pt Points) RemapReference(t EntityType, oldKey string, newKey *string) (Entity, bool) {
	changed := false
	switch t {
	case TypeComment:
		changed = remap(&pt.CommentKey, oldKey, newKey)
	case TypeCriterion:
		changed = remap(&pt.CriterionKey, oldKey, newKey)
	}
	return pt, changed
}

func (pt Points) Payload() Payload {
	return Payload{
		"key":           pt.Key,
		"item_key":      pt.ItemKey,
		"corrector_key": pt.CorrectorKey,
		"comment_key":   pt.CommentKey,
		"criterion_key": pt.CriterionKey,
		"points":        pt.Points,
	}
}

// Snippet is a reusable text block for comments or summaries
type Snippet struct {
	Key     string `json:"key"`
	ItemKey string `json:"item_key"` // ItemKey работа, на которой сниппет был создан
	Purpose string `json:"purpose"`
	Title   string `json:"title"`
	Text    string `json:"text"`
}

// NewSnippet builds a snippet from an untyped payload
func NewSnippet(p Payload) Snippet {
	s := Snippet{Purpose: SnippetPurposeComment}
	p.readString("key", &s.Key)
	p.readString("item_key", &s.ItemKey)
	p.readEnum("purpose", &s.Purpose, SnippetPurposeComment, SnippetPurposeSummary)
	p.readString("title", &s.Title)
	p.readString("text", &s.Text)
	return s
}

func (s Snippet) Type() EntityType { return TypeSnippet }
func (s Snippet) GetKey() string { return s.Key }
func (s Snippet) GetItemKey() string { return s.ItemKey }
func (s Snippet) References() []Reference { return nil }

func (s Snippet) WithKey(key string) Entity {
	s.Key = key
	return s
}

func (s Snippet) RemapReference(EntityType, string, *string) (Entity, bool) {
	return s, false
}

func (s Snippet) Payload() Payload {
	return Payload{
		"key":      s.Key,
		"item_key": s.ItemKey,
		"purpose":  s.Purpose,
		"title":    s.Title,
		"text":     s.Text,
	}
}
