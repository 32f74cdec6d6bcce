package service

import (
	"context"
	"errors"
	"log"

	"list-manager/internal/form"
	"list-manager/internal/metrics"
	"list-manager/internal/model"
	"list-manager/internal/suggest"
)

// SuggestOutcome is what a suggestion request ended with. Stale is set when a
// newer request for the same owner superseded this one; nothing was applied.
type SuggestOutcome struct {
	Created []model.Record
	Draft   form.Draft
	Stale   bool
	Err     error
}

// SuggestService turns collaborator responses into list changes.
type SuggestService struct {
	client  *suggest.Service
	metrics *metrics.Metrics
}

func NewSuggestService(client *suggest.Service, m *metrics.Metrics) *SuggestService {
	return &SuggestService{client: client, metrics: m}
}

func (s *SuggestService) Enabled() bool { return s != nil && s.client.Enabled() }

// Busy reports whether the owner already has a request in flight.
func (s *SuggestService) Busy(owner string) bool { return s.client.Busy(owner) }

// Cancel marks any in-flight request of owner as stale.
func (s *SuggestService) Cancel(owner string) { s.client.Invalidate(owner) }

// Titles asks for new entry titles and creates one record per title. The
// returned channel yields one outcome.
func (s *SuggestService) Titles(ctx context.Context, sess *Session, goal string) (<-chan SuggestOutcome, error) {
	schema := sess.Schema()
	tok, results, err := s.client.Request(ctx, sess.Owner(), suggest.TitlesPrompt(schema, goal))
	if err != nil {
		return nil, err
	}
	out := make(chan SuggestOutcome, 1)
	go func() {
		defer close(out)
		res := <-results
		if !s.client.IsCurrent(sess.Owner(), tok) {
			s.metrics.Suggestion("stale")
			out <- SuggestOutcome{Stale: true}
			return
		}
		if res.Err != nil {
			out <- s.fail(sess, res.Err)
			return
		}
		titles, err := suggest.ParseTitles(res.Text)
		if err != nil {
			out <- s.fail(sess, err)
			return
		}
		title := schema.TitleField().Name
		entries := make([]map[string]any, 0, len(titles))
		for _, t := range titles {
			entries = append(entries, map[string]any{title: t})
		}
		created, err := sess.CreateMany(ctx, entries)
		if err != nil {
			out <- s.fail(sess, &model.CollaboratorError{Op: "suggest", Err: err})
			return
		}
		s.metrics.Suggestion("ok")
		out <- SuggestOutcome{Created: created}
	}()
	return out, nil
}

// Extract asks for the fields of one entry described by text or an attachment.
// The draft is returned for review; nothing is created.
func (s *SuggestService) Extract(ctx context.Context, sess *Session, text string, att *suggest.Attachment) (<-chan SuggestOutcome, error) {
	schema := sess.Schema()
	tok, results, err := s.client.Request(ctx, sess.Owner(), suggest.FieldsPrompt(schema, text, att))
	if err != nil {
		return nil, err
	}
	out := make(chan SuggestOutcome, 1)
	go func() {
		defer close(out)
		res := <-results
		if !s.client.IsCurrent(sess.Owner(), tok) {
			s.metrics.Suggestion("stale")
			out <- SuggestOutcome{Stale: true}
			return
		}
		if res.Err != nil {
			out <- s.fail(sess, res.Err)
			return
		}
		draft, err := suggest.ParseFields(schema, res.Text)
		if err != nil {
			out <- s.fail(sess, err)
			return
		}
		s.metrics.Suggestion("ok")
		out <- SuggestOutcome{Draft: draft}
	}()
	return out, nil
}

func (s *SuggestService) fail(sess *Session, err error) SuggestOutcome {
	s.metrics.Suggestion("error")
	log.Printf("[warn] suggestion for %s failed: %v", sess.Owner(), err)
	var cerr *model.CollaboratorError
	if !errors.As(err, &cerr) {
		err = &model.CollaboratorError{Op: "suggest", Err: err}
	}
	sess.Notify(NoticeCollaborator, err.Error())
	return SuggestOutcome{Err: err}
}
