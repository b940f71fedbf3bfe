package model

import "time"

// Collection names used by the application modules.
const (
	CollectionNotes        = "notes"
	CollectionTasks        = "tasks"
	CollectionProjects     = "projects"
	CollectionTransactions = "transactions"
	CollectionHabits       = "habits"
	CollectionGoals        = "goals"
)

// Record is the typed view of a document. Each application module defines one
// concrete record type; the sync client itself only deals in Documents.
type Record interface {
	RecordID() string
	Collection() string
	ToDocument() Document
}

// Meta carries the fields every record gains when written through the client.
type Meta struct {
	ID        string
	OwnerID   string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (m Meta) RecordID() string { return m.ID }

func (m Meta) apply(doc Document) Document {
	if m.ID != "" {
		doc[FieldID] = m.ID
	}
	if m.OwnerID != "" {
		doc[FieldOwnerID] = m.OwnerID
	}
	if !m.CreatedAt.IsZero() {
		doc[FieldCreatedAt] = m.CreatedAt.UnixMilli()
	}
	if !m.UpdatedAt.IsZero() {
		doc[FieldUpdatedAt] = m.UpdatedAt.UnixMilli()
	}
	return doc
}

func metaFromDocument(doc Document) Meta {
	m := Meta{ID: DocID(doc)}
	m.OwnerID, _ = doc[FieldOwnerID].(string)
	if ms := CreatedAt(doc); ms != 0 {
		m.CreatedAt = time.UnixMilli(ms).UTC()
	}
	if ms := UpdatedAt(doc); ms != 0 {
		m.UpdatedAt = time.UnixMilli(ms).UTC()
	}
	return m
}

// Note is a free-form text record.
type Note struct {
	Meta
	Title string
	Body  string
	Tags  []string
}

func (n Note) Collection() string { return CollectionNotes }

func (n Note) ToDocument() Document {
	tags := make([]interface{}, len(n.Tags))
	for i, t := range n.Tags {
		tags[i] = t
	}
	return n.apply(Document{
		"title": n.Title,
		"body":  n.Body,
		"tags":  tags,
	})
}

// NoteFromDocument rebuilds a Note from its stored form.
func NoteFromDocument(doc Document) Note {
	n := Note{Meta: metaFromDocument(doc)}
	n.Title, _ = doc["title"].(string)
	n.Body, _ = doc["body"].(string)
	if raw, ok := doc["tags"].([]interface{}); ok {
		for _, t := range raw {
			if s, ok := t.(string); ok {
				n.Tags = append(n.Tags, s)
			}
		}
	}
	return n
}

// Task is a to-do item.
type Task struct {
	Meta
	Title  string
	Done   bool
	Due    time.Time
	ListID string
}

func (t Task) Collection() string { return CollectionTasks }

func (t Task) ToDocument() Document {
	doc := Document{
		"title":  t.Title,
		"done":   t.Done,
		"listId": t.ListID,
	}
	if !t.Due.IsZero() {
		doc["due"] = t.Due.UnixMilli()
	}
	return t.apply(doc)
}

// TaskFromDocument rebuilds a Task from its stored form.
func TaskFromDocument(doc Document) Task {
	t := Task{Meta: metaFromDocument(doc)}
	t.Title, _ = doc["title"].(string)
	t.Done, _ = doc["done"].(bool)
	t.ListID, _ = doc["listId"].(string)
	if ms := millisField(doc, "due"); ms != 0 {
		t.Due = time.UnixMilli(ms).UTC()
	}
	return t
}

// Project tracks a funded effort.
type Project struct {
	Meta
	Name         string
	Status       string
	TargetAmount float64
	FundedAmount float64
}

func (p Project) Collection() string { return CollectionProjects }

func (p Project) ToDocument() Document {
	return p.apply(Document{
		"name":         p.Name,
		"status":       p.Status,
		"targetAmount": p.TargetAmount,
		"fundedAmount": p.FundedAmount,
	})
}

// ProjectFromDocument rebuilds a Project from its stored form.
func ProjectFromDocument(doc Document) Project {
	p := Project{Meta: metaFromDocument(doc)}
	p.Name, _ = doc["name"].(string)
	p.Status, _ = doc["status"].(string)
	p.TargetAmount, _ = doc["targetAmount"].(float64)
	p.FundedAmount, _ = doc["fundedAmount"].(float64)
	return p
}

// Transaction is a wallet movement.
type Transaction struct {
	Meta
	Amount    float64
	Category  string
	Direction string // "in" or "out"
	WalletID  string
}

func (t Transaction) Collection() string { return CollectionTransactions }

func (t Transaction) ToDocument() Document {
	return t.apply(Document{
		"amount":    t.Amount,
		"category":  t.Category,
		"direction": t.Direction,
		"walletId":  t.WalletID,
	})
}

// TransactionFromDocument rebuilds a Transaction from its stored form.
func TransactionFromDocument(doc Document) Transaction {
	t := Transaction{Meta: metaFromDocument(doc)}
	t.Amount, _ = doc["amount"].(float64)
	t.Category, _ = doc["category"].(string)
	t.Direction, _ = doc["direction"].(string)
	t.WalletID, _ = doc["walletId"].(string)
	return t
}

// Habit tracks a recurring practice.
type Habit struct {
	Meta
	Name     string
	Streak   int
	LastTick time.Time
}

func (h Habit) Collection() string { return CollectionHabits }

func (h Habit) ToDocument() Document {
	doc := Document{
		"name":   h.Name,
		"streak": int64(h.Streak),
	}
	if !h.LastTick.IsZero() {
		doc["lastTick"] = h.LastTick.UnixMilli()
	}
	return h.apply(doc)
}

// HabitFromDocument rebuilds a Habit from its stored form.
func HabitFromDocument(doc Document) Habit {
	h := Habit{Meta: metaFromDocument(doc)}
	h.Name, _ = doc["name"].(string)
	h.Streak = int(millisField(doc, "streak"))
	if ms := millisField(doc, "lastTick"); ms != 0 {
		h.LastTick = time.UnixMilli(ms).UTC()
	}
	return h
}

// Goal is a long-horizon objective.
type Goal struct {
	Meta
	Title    string
	Progress float64 // 0..1
	Deadline time.Time
}

func (g Goal) Collection() string { return CollectionGoals }

func (g Goal) ToDocument() Document {
	doc := Document{
		"title":    g.Title,
		"progress": g.Progress,
	}
	if !g.Deadline.IsZero() {
		doc["deadline"] = g.Deadline.UnixMilli()
	}
	return g.apply(doc)
}

// GoalFromDocument rebuilds a Goal from its stored form.
func GoalFromDocument(doc Document) Goal {
	g := Goal{Meta: metaFromDocument(doc)}
	g.Title, _ = doc["title"].(string)
	g.Progress, _ = doc["progress"].(float64)
	if ms := millisField(doc, "deadline"); ms != 0 {
		g.Deadline = time.UnixMilli(ms).UTC()
	}
	return g
}
