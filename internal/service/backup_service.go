package service

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"time"

	"list-manager/internal/backup"
	"list-manager/internal/metrics"
	"list-manager/internal/model"
)

// UserLister returns every known user.
type UserLister interface {
	ListAll(ctx context.Context) ([]model.User, error)
}

// BackupService exports every user's collection to a sink.
type BackupService struct {
	lists   *ListService
	users   UserLister
	sink    backup.Sink
	metrics *metrics.Metrics
}

func NewBackupService(lists *ListService, users UserLister, sink backup.Sink, m *metrics.Metrics) *BackupService {
	return &BackupService{lists: lists, users: users, sink: sink, metrics: m}
}

// BackupKey is the object key of one owner's backup taken at t.
func BackupKey(app, owner string, t time.Time) string {
	return fmt.Sprintf("%s/%s/%s.json", app, t.UTC().Format("2006-01-02"), owner)
}

// Run backs up every user and returns how many uploads succeeded. A failing
// user does not stop the others.
func (s *BackupService) Run(ctx context.Context, now time.Time) (int, error) {
	users, err := s.users.ListAll(ctx)
	if err != nil {
		return 0, fmt.Errorf("list users: %w", err)
	}
	app := s.lists.Schema().Name
	var ok int
	var firstErr error
	for _, u := range users {
		if err := s.One(ctx, u.Owner(), now); err != nil {
			log.Printf("[warn] backup %s via %s: %v", u.Owner(), s.sink.Driver(), err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		ok++
	}
	log.Printf("[info] backup of %s finished: %d/%d via %s", app, ok, len(users), s.sink.Driver())
	return ok, firstErr
}

// One backs up a single owner.
func (s *BackupService) One(ctx context.Context, owner string, now time.Time) error {
	sess := s.lists.Open(ctx, owner)
	var buf bytes.Buffer
	if err := sess.Export(&buf, FormatJSON); err != nil {
		s.metrics.Backup("error")
		return err
	}
	if err := s.sink.Put(ctx, BackupKey(s.lists.Schema().Name, owner, now), &buf, "application/json"); err != nil {
		s.metrics.Backup("error")
		return err
	}
	s.metrics.Backup("ok")
	return nil
}
