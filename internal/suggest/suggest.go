// Package suggest asks an external language model for new list entries.
package suggest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"list-manager/internal/form"
	"list-manager/internal/model"
)

// ErrBusy is returned while a request for the same owner is still in flight.
var ErrBusy = errors.New("a suggestion request is already running")

// Token identifies one request. Only the latest token of an owner is current.
type Token uint64

// Result is delivered once per request.
type Result struct {
	Token Token
	Text  string
	Err   error
}

type ownerState struct {
	busy   bool
	latest Token
}

// Service serializes suggestion requests per owner.
type Service struct {
	client Client

	mu     sync.Mutex
	next   Token
	owners map[string]*ownerState
}

func NewService(client Client) *Service {
	return &Service{client: client, owners: make(map[string]*ownerState)}
}

// Enabled reports whether a client is configured.
func (s *Service) Enabled() bool {
	if s == nil || s.client == nil {
		return false
	}
	if hc, ok := s.client.(*HTTPClient); ok {
		return hc != nil && hc.BaseURL != ""
	}
	return true
}

// Request starts a completion in the background. The returned channel yields
// exactly one Result and is then closed. Errors in the result are
// *model.CollaboratorError.
func (s *Service) Request(ctx context.Context, owner string, req Request) (Token, <-chan Result, error) {
	if !s.Enabled() {
		return 0, nil, &model.CollaboratorError{Op: "suggest", Err: ErrNotConfigured}
	}
	s.mu.Lock()
	st := s.owners[owner]
	if st == nil {
		st = &ownerState{}
		s.owners[owner] = st
	}
	if st.busy {
		s.mu.Unlock()
		return 0, nil, ErrBusy
	}
	s.next++
	tok := s.next
	st.busy = true
	st.latest = tok
	s.mu.Unlock()

	ch := make(chan Result, 1)
	go func() {
		defer close(ch)
		text, err := s.client.Complete(ctx, req)
		if err != nil {
			err = &model.CollaboratorError{Op: "suggest", Err: err}
		}
		s.mu.Lock()
		st.busy = false
		s.mu.Unlock()
		ch <- Result{Token: tok, Text: text, Err: err}
	}()
	return tok, ch, nil
}

// Busy reports whether owner has a request in flight.
func (s *Service) Busy(owner string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.owners[owner]
	return st != nil && st.busy
}

// IsCurrent reports whether tok is the most recent request of owner.
func (s *Service) IsCurrent(owner string, tok Token) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.owners[owner]
	return st != nil && st.latest == tok
}

// Invalidate makes every outstanding token of owner stale.
func (s *Service) Invalidate(owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st := s.owners[owner]; st != nil {
		s.next++
		st.latest = s.next
	}
}

// TitlesPrompt asks for a JSON array of short entry titles.
func TitlesPrompt(schema *model.Schema, goal string) Request {
	title := schema.TitleField()
	return Request{
		System: fmt.Sprintf("You help fill a %q list. Reply with a JSON array of strings only; "+
			"each string is the %s of one new entry. No prose.", schema.Title, title.DisplayName()),
		Prompt: goal,
	}
}

// FieldsPrompt asks for one JSON object describing an entry.
func FieldsPrompt(schema *model.Schema, text string, att *Attachment) Request {
	var b strings.Builder
	fmt.Fprintf(&b, "Extract one %q entry from the user's input. Reply with a single flat JSON object only. Keys:\n", schema.Title)
	for _, f := range schema.Fields {
		fmt.Fprintf(&b, "- %s (%s", f.Name, f.Kind)
		switch f.Kind {
		case model.KindEnum:
			fmt.Fprintf(&b, ", one of %s", strings.Join(f.Values, "|"))
		case model.KindDate:
			b.WriteString(", YYYY-MM-DD")
		case model.KindTags:
			b.WriteString(", array of strings")
		}
		b.WriteString(")\n")
	}
	b.WriteString("Omit keys you cannot infer.")
	return Request{System: b.String(), Prompt: text, Attachment: att}
}

// ParseTitles reads a JSON array of strings, tolerating a markdown code fence.
func ParseTitles(text string) ([]string, error) {
	var raw []any
	if err := json.Unmarshal([]byte(stripFence(text)), &raw); err != nil {
		return nil, &model.CollaboratorError{Op: "suggest", Err: fmt.Errorf("expected a JSON array of strings: %w", err)}
	}
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, &model.CollaboratorError{Op: "suggest", Err: errors.New("no suggestions in response")}
	}
	return out, nil
}

// ParseFields reads a flat JSON object into a draft. Keys the schema does not
// declare are dropped; values still need form.FromDraft.
func ParseFields(schema *model.Schema, text string) (form.Draft, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(stripFence(text)), &raw); err != nil || raw == nil {
		if err == nil {
			err = errors.New("null")
		}
		return nil, &model.CollaboratorError{Op: "suggest", Err: fmt.Errorf("expected a JSON object: %w", err)}
	}
	d := form.ToDraft(schema, nil)
	for k, v := range raw {
		if _, ok := schema.Field(k); !ok {
			continue
		}
		switch val := v.(type) {
		case nil:
		case string:
			d[k] = val
		case float64:
			d[k] = strconv.FormatFloat(val, 'f', -1, 64)
		case bool:
			d[k] = strconv.FormatBool(val)
		case []any:
			parts := make([]string, 0, len(val))
			for _, item := range val {
				if s, ok := item.(string); ok {
					parts = append(parts, s)
				}
			}
			d[k] = strings.Join(parts, ",")
		}
	}
	return d, nil
}

func stripFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
