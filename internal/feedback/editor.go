package feedback

import "strings"

// SubmitReplyFunc receives the reply exactly as composed. The editor has no
// network responsibility of its own.
type SubmitReplyFunc func(feedbackID string, content string) error

// ReplyEditor holds the in-progress reply for one feedback entry. Submit
// delivers the content to the injected callback; Cancel discards it without
// invoking anything.
type ReplyEditor struct {
	feedbackID string
	content    string
	submit     SubmitReplyFunc
}

// NewReplyEditor opens an editor bound to a feedback entry.
func NewReplyEditor(feedbackID string, submit SubmitReplyFunc) *ReplyEditor {
	return &ReplyEditor{feedbackID: feedbackID, submit: submit}
}

// SetContent replaces the in-progress reply text.
func (e *ReplyEditor) SetContent(content string) {
	e.content = content
}

// Content returns the in-progress reply text.
func (e *ReplyEditor) Content() string {
	return e.content
}

// Submit delivers the composed reply and clears the editor on success.
// Blank input is ignored without invoking the callback.
func (e *ReplyEditor) Submit() error {
	content := strings.TrimSpace(e.content)
	if content == "" {
		return nil
	}
	if e.submit == nil {
		return nil
	}
	if err := e.submit(e.feedbackID, content); err != nil {
		return err
	}
	e.content = ""
	return nil
}

// Cancel clears the in-progress reply without invoking the callback.
func (e *ReplyEditor) Cancel() {
	e.content = ""
}
