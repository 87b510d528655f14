package session

import "github.com/opencampus/portal-backend/internal/model"

// AnswerBuffer is the transient client state of a running attempt: the
// current answers, the free-text answer for written exams, and local files
// not yet uploaded. It is owned exclusively by one Controller and is not
// safe for concurrent use on its own; the controller serializes access.
type AnswerBuffer struct {
	answers  map[string]string
	text     string
	pending  []AnswerFile
	uploaded []string
	dirty    bool
}

func newAnswerBuffer() *AnswerBuffer {
	return &AnswerBuffer{answers: make(map[string]string)}
}

// restore seeds the buffer from a persisted submission on resume.
func (b *AnswerBuffer) restore(sub *model.Submission) {
	for q, v := range sub.Answers {
		b.answers[q] = v
	}
	if sub.AnswerText != nil {
		b.text = *sub.AnswerText
	}
	b.uploaded = append(b.uploaded[:0], sub.AnswerFiles...)
	b.dirty = false
}

func (b *AnswerBuffer) set(questionID, value string) {
	b.answers[questionID] = value
	b.dirty = true
}

func (b *AnswerBuffer) setText(text string) {
	b.text = text
	b.dirty = true
}

func (b *AnswerBuffer) attach(f AnswerFile, max int) error {
	if len(b.pending)+len(b.uploaded) >= max {
		return ErrTooManyFiles
	}
	b.pending = append(b.pending, f)
	return nil
}

// answersCopy returns a copy so snapshots and persistence calls never
// alias the live map.
func (b *AnswerBuffer) answersCopy() map[string]string {
	out := make(map[string]string, len(b.answers))
	for q, v := range b.answers {
		out[q] = v
	}
	return out
}

func (b *AnswerBuffer) textPtr() *string {
	if b.text == "" {
		return nil
	}
	t := b.text
	return &t
}

func (b *AnswerBuffer) uploadedCopy() []string {
	if len(b.uploaded) == 0 {
		return nil
	}
	return append([]string(nil), b.uploaded...)
}
