package main

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// AttachmentKind classifies a piece of evidence
type AttachmentKind string

const (
	KindRawImage          AttachmentKind = "raw-image"
	KindSynthesizedVisual AttachmentKind = "synthesized-visual"
	KindTextNote          AttachmentKind = "text-note"
)

// MIME types emitted by the capture pipeline
const (
	mimePNG  = "image/png"
	mimeSVG  = "image/svg+xml"
	mimeHTML = "text/html"
)

// Attachment is one piece of evidence owned by a scenario record. It is
// never modified after newAttachment returns it.
type Attachment struct {
	ID        string         `json:"id"`
	Kind      AttachmentKind `json:"kind"`
	MimeType  string         `json:"mimeType"`
	Payload   []byte         `json:"payload"`
	Label     string         `json:"label"`
	Timestamp time.Time      `json:"timestamp"`
}

func newAttachment(kind AttachmentKind, mimeType, label string, payload []byte, at time.Time) Attachment {
	return Attachment{
		ID:        uuid.NewString(),
		Kind:      kind,
		MimeType:  mimeType,
		Payload:   append([]byte(nil), payload...),
		Label:     label,
		Timestamp: at,
	}
}

// IsVisual reports whether the attachment is an image of the page
func (a Attachment) IsVisual() bool {
	return a.Kind == KindRawImage || a.Kind == KindSynthesizedVisual
}

// attachmentLabel joins prefix and the scenario name with every run of
// whitespace collapsed to a single underscore
func attachmentLabel(prefix, name string) string {
	collapsed := strings.Join(strings.Fields(name), "_")
	if collapsed == "" {
		return prefix
	}
	return prefix + "_" + collapsed
}

// AttachmentSink receives evidence for the scenario currently running
type AttachmentSink interface {
	Attach(a Attachment)
}

// ScenarioRecord is the persisted outcome of one scenario
type ScenarioRecord struct {
	Name        string         `json:"name"`
	Tags        []string       `json:"tags,omitempty"`
	Worker      WorkerID       `json:"worker"`
	Browser     BrowserKind    `json:"browser,omitempty"`
	Status      ScenarioStatus `json:"status"`
	Steps       []StepResult   `json:"steps"`
	StartedAt   time.Time      `json:"startedAt"`
	FinishedAt  time.Time      `json:"finishedAt"`
	Attachments []Attachment   `json:"attachments"`

	mu sync.Mutex
}

// NewScenarioRecord starts a record for a scenario
func NewScenarioRecord(sc Scenario, w WorkerID, startedAt time.Time) *ScenarioRecord {
	return &ScenarioRecord{
		Name:      sc.Name,
		Tags:      sc.Tags,
		Worker:    w,
		Status:    StatusPassed,
		StartedAt: startedAt,
	}
}

// Attach appends an attachment in arrival order
func (r *ScenarioRecord) Attach(a Attachment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Attachments = append(r.Attachments, a)
}

// AttachAll appends every attachment in order
func (r *ScenarioRecord) AttachAll(as []Attachment) {
	for _, a := range as {
		r.Attach(a)
	}
}

// Snapshot returns a copy of the attachments collected so far
func (r *ScenarioRecord) Snapshot() []Attachment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Attachment(nil), r.Attachments...)
}
