package storage

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

func newSession(id string, at time.Time) Session {
	return Session{ID: id, Stage: "vision", RecordJSON: `{"vision":null}`, CreatedAt: at, UpdatedAt: at}
}

func TestSession_SaveGetUpdate(t *testing.T) {
	s := openTestStore(t)
	created := time.Now().UTC().Add(-time.Minute)

	sess := newSession("s-1", created)
	sess.Notice = "something went wrong"
	if err := s.SaveSession(sess, nil, nil); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	got, err := s.GetSession("s-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.Stage != "vision" || got.RecordJSON != sess.RecordJSON || got.Notice != sess.Notice {
		t.Errorf("got %+v", got)
	}
	if !got.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, created)
	}

	sess.Stage, sess.Notice, sess.UpdatedAt = "confirmation", "", time.Now().UTC()
	if err := s.SaveSession(sess, nil, nil); err != nil {
		t.Fatalf("SaveSession update: %v", err)
	}
	got, _ = s.GetSession("s-1")
	if got.Stage != "confirmation" || got.Notice != "" {
		t.Errorf("after update = %+v", got)
	}
	if !got.CreatedAt.Equal(created) || !got.UpdatedAt.Equal(sess.UpdatedAt) {
		t.Errorf("times = %v / %v", got.CreatedAt, got.UpdatedAt)
	}

	if _, err := s.GetSession("nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing session err = %v", err)
	}
}

func TestListSessions_NewestFirst(t *testing.T) {
	s := openTestStore(t)
	base := time.Now().UTC()
	for _, i := range []int{1, 0, 2} {
		if err := s.SaveSession(newSession(fmt.Sprintf("s-%d", i), base.Add(time.Duration(i)*time.Second)), nil, nil); err != nil {
			t.Fatalf("SaveSession: %v", err)
		}
	}

	list, err := s.ListSessions()
	if err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	var ids []string
	for _, sess := range list {
		ids = append(ids, sess.ID)
	}
	if fmt.Sprint(ids) != "[s-2 s-1 s-0]" {
		t.Errorf("order = %v", ids)
	}
}

func TestSaveSession_TurnsAreAppendOnly(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()
	sess := newSession("s-turns", now)

	turns := []Turn{
		{Seq: 0, Role: "assistant", Text: "welcome", CreatedAt: now},
		{Seq: 1, Role: "user", Text: "a cabin", CreatedAt: now},
	}
	if err := s.SaveSession(sess, turns, nil); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	resaved := []Turn{
		{Seq: 0, Role: "assistant", Text: "changed", CreatedAt: now},
		turns[1],
		{Seq: 2, Role: "assistant", Text: "generating", Rhetorical: true, CreatedAt: now},
	}
	if err := s.SaveSession(sess, resaved, nil); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	got, err := s.ListTurns("s-turns")
	if err != nil {
		t.Fatalf("ListTurns: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d turns, want 3", len(got))
	}
	if got[0].Text != "welcome" {
		t.Errorf("stored turn rewritten to %q", got[0].Text)
	}
	if got[1].Rhetorical || !got[2].Rhetorical {
		t.Errorf("rhetorical flags = %v %v", got[1].Rhetorical, got[2].Rhetorical)
	}
}

func TestSaveSession_ImagesReplacedByKind(t *testing.T) {
	s := openTestStore(t)
	sess := newSession("s-img", time.Now().UTC())

	if err := s.SaveSession(sess, nil, []Image{{Kind: ImageFloorPlan, MIMEType: "image/png", Data: []byte("v1")}}); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	if err := s.SaveSession(sess, nil, []Image{
		{Kind: ImageFloorPlan, MIMEType: "image/webp", Data: []byte("v2")},
		{Kind: ImageInspiration, MIMEType: "image/jpeg", Data: []byte("insp")},
	}); err != nil {
		t.Fatalf("SaveSession: %v", err)
	}

	imgs, err := s.ListImages("s-img")
	if err != nil {
		t.Fatalf("ListImages: %v", err)
	}
	byKind := map[string]Image{}
	for _, img := range imgs {
		byKind[img.Kind] = img
	}
	if len(byKind) != 2 {
		t.Fatalf("kinds = %v", byKind)
	}
	if fp := byKind[ImageFloorPlan]; string(fp.Data) != "v2" || fp.MIMEType != "image/webp" {
		t.Errorf("floor plan = %s %q", fp.MIMEType, fp.Data)
	}
}

func TestDeleteSession_RemovesDependents(t *testing.T) {
	s := openTestStore(t)
	now := time.Now().UTC()

	err := s.SaveSession(newSession("s-del", now),
		[]Turn{{Seq: 0, Role: "assistant", Text: "hi", CreatedAt: now}},
		[]Image{{Kind: ImageFloorPlan, MIMEType: "image/png", Data: []byte("x")}})
	if err != nil {
		t.Fatalf("SaveSession: %v", err)
	}
	if err := s.EnqueueJob(Job{ID: "j-del", Type: "generate_design", SessionID: "s-del"}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	if err := s.DeleteSession("s-del"); err != nil {
		t.Fatalf("DeleteSession: %v", err)
	}
	if _, err := s.GetSession("s-del"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetSession after delete: %v", err)
	}
	turns, _ := s.ListTurns("s-del")
	imgs, _ := s.ListImages("s-del")
	if len(turns)+len(imgs) != 0 {
		t.Errorf("leftovers: %d turns, %d images", len(turns), len(imgs))
	}
	if _, err := s.GetJob("j-del"); !errors.Is(err, ErrNotFound) {
		t.Errorf("pending job survived delete: %v", err)
	}
	if err := s.DeleteSession("s-del"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete: %v", err)
	}
}
