package model

import "time"

// DocumentType classifies a source paper.
type DocumentType string

const (
	DocumentTypeExam      DocumentType = "exam"
	DocumentTypeSimulated DocumentType = "simulated"
	DocumentTypeLesson    DocumentType = "lesson"
	DocumentTypeOther     DocumentType = "other"
)

// DocumentMeta is the metadata inferred for a document at import time.
type DocumentMeta struct {
	Type        DocumentType `json:"type"`
	Institution string       `json:"institution,omitempty"`
	Year        int          `json:"year,omitempty"`
}

// Document is one source exam paper. Title is unique.
type Document struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	Type        DocumentType `json:"type"`
	Institution string       `json:"institution,omitempty"`
	Year        int          `json:"year,omitempty"`
	Processed   bool         `json:"processed"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Source is one document handed to the pipeline: raw PDF bytes,
// pre-extracted text, or both.
type Source struct {
	Filename string `json:"filename"`
	Path     string `json:"path,omitempty"`
	PDF      []byte `json:"-"`
	Text     string `json:"-"`
	// DLQID is set when the source is replayed from the dead-letter queue.
	DLQID string `json:"-"`
	// AnswerKey is the official answer sheet, when one was published.
	AnswerKey AnswerKey `json:"-"`
}

// AnswerKey maps question numbers to the official answer letter (A-E).
type AnswerKey map[int]string
