package account

import (
	"context"
	"errors"
	"testing"
)

// fakeLookup implements the lookup interface over in-memory accounts.
type fakeLookup struct {
	byKey         map[Key]*Account
	byUsername    map[string]*Account // key: username + "|" + companyID
	byUsernameAny map[string]*Account
	rebound       []Key
	err           error
}

func (f *fakeLookup) findByKey(_ context.Context, key Key) (*Account, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byKey[key], nil
}

func (f *fakeLookup) findByUsername(_ context.Context, username, companyID string) (*Account, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byUsername[username+"|"+companyID], nil
}

func (f *fakeLookup) findByUsernameAny(_ context.Context, username string) (*Account, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.byUsernameAny[username], nil
}

func (f *fakeLookup) rebind(_ context.Context, id string, key Key) (*Account, error) {
	f.rebound = append(f.rebound, key)
	return &Account{ID: id, UserID: key.UserID, CompanyID: key.CompanyID}, nil
}

func TestResolveByKey(t *testing.T) {
	key := Key{UserID: "user_1", CompanyID: "biz_1"}
	want := &Account{ID: "a1", UserID: "user_1", CompanyID: "biz_1"}
	db := &fakeLookup{byKey: map[Key]*Account{key: want}}

	got, err := resolveByKey(context.Background(), db, key, Profile{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestResolveByKeyMiss(t *testing.T) {
	db := &fakeLookup{byKey: map[Key]*Account{}}
	got, err := resolveByKey(context.Background(), db, Key{UserID: "u", CompanyID: "c"}, Profile{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil on miss, got %+v", got)
	}
}

func TestResolveByUsernameInCompanyRebinds(t *testing.T) {
	key := Key{UserID: "user_new", CompanyID: "biz_1"}
	db := &fakeLookup{
		byUsername: map[string]*Account{
			"alice|biz_1": {ID: "a1", UserID: "user_old", CompanyID: "biz_1", Username: "alice"},
		},
	}

	got, err := resolveByUsernameInCompany(context.Background(), db, key, Profile{Username: "alice"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.UserID != "user_new" {
		t.Fatalf("expected rebound account, got %+v", got)
	}
	if len(db.rebound) != 1 || db.rebound[0] != key {
		t.Errorf("expected rebind to %+v, got %v", key, db.rebound)
	}
}

func TestResolveByUsernameSkipsEmptyUsername(t *testing.T) {
	db := &fakeLookup{
		byUsername:    map[string]*Account{"|biz_1": {ID: "bad"}},
		byUsernameAny: map[string]*Account{"": {ID: "bad"}},
	}
	key := Key{UserID: "u", CompanyID: "biz_1"}

	got, err := resolveByUsernameInCompany(context.Background(), db, key, Profile{})
	if err != nil || got != nil {
		t.Errorf("expected no match without username, got %+v err %v", got, err)
	}

	got, err = resolveByUsernameAnywhere(context.Background(), db, key, Profile{})
	if err != nil || got != nil {
		t.Errorf("expected no match without username, got %+v err %v", got, err)
	}
}

func TestResolveByUsernameAnywhereRebinds(t *testing.T) {
	key := Key{UserID: "user_new", CompanyID: "biz_2"}
	db := &fakeLookup{
		byUsernameAny: map[string]*Account{
			"alice": {ID: "a1", UserID: "user_old", CompanyID: "biz_1", Username: "alice"},
		},
	}

	got, err := resolveByUsernameAnywhere(context.Background(), db, key, Profile{Username: "alice"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got == nil || got.CompanyID != "biz_2" {
		t.Fatalf("expected account rebound into caller's tenant, got %+v", got)
	}
}

func TestResolverOrder(t *testing.T) {
	wantOrder := []string{"by_key", "by_username_in_company", "by_username_anywhere"}
	if len(resolvers) != len(wantOrder) {
		t.Fatalf("expected %d resolvers, got %d", len(wantOrder), len(resolvers))
	}
	for i, r := range resolvers {
		if r.name != wantOrder[i] {
			t.Errorf("resolver %d: got %q, want %q", i, r.name, wantOrder[i])
		}
	}
}

func TestResolveErrorPropagates(t *testing.T) {
	boom := errors.New("boom")
	db := &fakeLookup{err: boom}

	_, err := resolveByKey(context.Background(), db, Key{}, Profile{})
	if !errors.Is(err, boom) {
		t.Errorf("expected error to propagate, got %v", err)
	}
}
