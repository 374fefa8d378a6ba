package account

import "context"

// lookup is the subset of Store used by the resolution strategies. It
// exists so each strategy can be tested against a fake.
type lookup interface {
	findByKey(ctx context.Context, key Key) (*Account, error)
	findByUsername(ctx context.Context, username, companyID string) (*Account, error)
	findByUsernameAny(ctx context.Context, username string) (*Account, error)
	rebind(ctx context.Context, id string, key Key) (*Account, error)
}

// resolveFunc is one account-resolution strategy. It returns (nil, nil)
// when it has no match, letting the next strategy run.
type resolveFunc func(ctx context.Context, db lookup, key Key, p Profile) (*Account, error)

// resolvers is the ordered resolution cascade applied by GetOrCreate.
// Identity providers occasionally reissue user IDs, so an exact key miss
// falls back to username matches, rebinding the recovered record to the
// caller's current key.
var resolvers = []struct {
	name string
	fn   resolveFunc
}{
	{name: "by_key", fn: resolveByKey},
	{name: "by_username_in_company", fn: resolveByUsernameInCompany},
	{name: "by_username_anywhere", fn: resolveByUsernameAnywhere},
}

func resolveByKey(ctx context.Context, db lookup, key Key, _ Profile) (*Account, error) {
	return db.findByKey(ctx, key)
}

func resolveByUsernameInCompany(ctx context.Context, db lookup, key Key, p Profile) (*Account, error) {
	if p.Username == "" {
		return nil, nil
	}
	a, err := db.findByUsername(ctx, p.Username, key.CompanyID)
	if err != nil || a == nil {
		return nil, err
	}
	return db.rebind(ctx, a.ID, key)
}

func resolveByUsernameAnywhere(ctx context.Context, db lookup, key Key, p Profile) (*Account, error) {
	if p.Username == "" {
		return nil, nil
	}
	a, err := db.findByUsernameAny(ctx, p.Username)
	if err != nil || a == nil {
		return nil, err
	}
	return db.rebind(ctx, a.ID, key)
}
