package watchlist

import (
	"context"
	"errors"
	"testing"

	"kinobot/internal/content"
	"kinobot/pkg/logx"
)

var errMissing = errors.New("missing")

type pair struct {
	user int64
	code string
}

type fakeStore struct {
	records map[string]content.Record
	saved   map[pair]bool
}

func newFakeStore(recs ...content.Record) *fakeStore {
	fs := &fakeStore{records: map[string]content.Record{}, saved: map[pair]bool{}}
	for _, r := range recs {
		fs.records[r.Code] = r
	}
	return fs
}

func (f *fakeStore) FindByCode(_ context.Context, code string, includeDeleted bool) (content.Record, error) {
	r, ok := f.records[code]
	if !ok || (r.IsDeleted && !includeDeleted) {
		return content.Record{}, errMissing
	}
	return r, nil
}

func (f *fakeStore) AddWatch(_ context.Context, user int64, code string) (bool, error) {
	k := pair{user, code}
	if f.saved[k] {
		return false, nil
	}
	f.saved[k] = true
	return true, nil
}

func (f *fakeStore) RemoveWatch(_ context.Context, user int64, code string) (bool, error) {
	k := pair{user, code}
	if !f.saved[k] {
		return false, nil
	}
	delete(f.saved, k)
	return true, nil
}

func (f *fakeStore) Watchlist(_ context.Context, user int64) ([]content.Record, error) {
	var out []content.Record
	for k := range f.saved {
		if r := f.records[k.code]; k.user == user && !r.IsDeleted {
			out = append(out, r)
		}
	}
	return out, nil
}

func TestAdd(t *testing.T) {
	fs := newFakeStore(
		content.Record{Code: "12", Title: "Heat"},
		content.Record{Code: "13", Title: "Gone", IsDeleted: true},
	)
	s := New(fs, errMissing, logx.Nop())
	ctx := context.Background()

	rec, added, err := s.Add(ctx, 1, "#12")
	if err != nil || !added || rec.Title != "Heat" {
		t.Fatalf("first add: %+v %v %v", rec, added, err)
	}
	if _, added, err = s.Add(ctx, 1, "12"); err != nil || added {
		t.Fatalf("second add: %v %v", added, err)
	}
	if _, _, err = s.Add(ctx, 1, "13"); !errors.Is(err, ErrUnknownCode) {
		t.Fatalf("deleted code: %v", err)
	}
	if _, _, err = s.Add(ctx, 1, "12a"); !errors.Is(err, ErrInvalidCode) {
		t.Fatalf("invalid code: %v", err)
	}
}

func TestRemoveAndList(t *testing.T) {
	fs := newFakeStore(content.Record{Code: "7", Title: "Ran"})
	s := New(fs, errMissing, logx.Nop())
	ctx := context.Background()

	if _, _, err := s.Add(ctx, 5, "7"); err != nil {
		t.Fatal(err)
	}
	list, err := s.List(ctx, 5)
	if err != nil || len(list) != 1 || list[0].Code != "7" {
		t.Fatalf("list = %+v %v", list, err)
	}
	code, removed, err := s.Remove(ctx, 5, " #7 ")
	if err != nil || !removed || code != "7" {
		t.Fatalf("remove = %q %v %v", code, removed, err)
	}
	if _, removed, _ = s.Remove(ctx, 5, "7"); removed {
		t.Fatal("second remove reported removed")
	}
}
