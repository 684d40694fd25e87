package runner

// DeltaBuffer accumulates Gemini-style delta message events: partial text
// carrying a role, flushed into one Event when the role changes, a
// non-message event arrives, or the process exits (spec.md §4.4
// "Delta-message accumulation").
type DeltaBuffer struct {
	role string
	text string
	has  bool
}

// Accept folds one delta event into the buffer. If the incoming role
// differs from the buffered one, the previously buffered event is
// flushed first and the return value is non-nil.
func (d *DeltaBuffer) Accept(role, textDelta string) (flushed *Event) {
	if d.has && d.role != role {
		flushed = d.flush()
	}
	d.role = role
	d.text += textDelta
	d.has = true
	return flushed
}

// FlushOnNonMessage flushes any buffered delta ahead of processing a
// non-message event, per spec.md's "a role change or any non-message
// event flushes the pending message".
func (d *DeltaBuffer) FlushOnNonMessage() *Event {
	if !d.has {
		return nil
	}
	return d.flush()
}

// FlushOnExit guarantees a final flush when the underlying process exits,
// even with no role change or trailing non-message event observed.
func (d *DeltaBuffer) FlushOnExit() *Event {
	return d.FlushOnNonMessage()
}

func (d *DeltaBuffer) flush() *Event {
	ev := &Event{Kind: EventAssistant, Role: d.role, Text: d.text}
	d.role = ""
	d.text = ""
	d.has = false
	return ev
}
