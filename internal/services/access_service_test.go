package services

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/tbourn/flashcard-market/internal/domain"
)

// ----- Fake store -----

type purchaseKey struct{ user, set uint }
type subKey struct{ user, educator uint }

type fakeAccessStore struct {
	sets      map[uint]*domain.Set
	users     map[uint]*domain.User
	purchases map[purchaseKey]bool
	subs      map[subKey]bool

	err error

	// call capture
	purchaseCalls int
	subCalls      int
	userCalls     int
}

func newFakeAccessStore() *fakeAccessStore {
	return &fakeAccessStore{
		sets:      map[uint]*domain.Set{},
		users:     map[uint]*domain.User{},
		purchases: map[purchaseKey]bool{},
		subs:      map[subKey]bool{},
	}
}

func (f *fakeAccessStore) GetSet(ctx context.Context, db *gorm.DB, id uint) (*domain.Set, error) {
	if f.err != nil {
		return nil, f.err
	}
	s, ok := f.sets[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *s
	return &cp, nil
}

func (f *fakeAccessStore) GetUser(ctx context.Context, db *gorm.DB, id uint) (*domain.User, error) {
	f.userCalls++
	u, ok := f.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return u, nil
}

func (f *fakeAccessStore) HasPurchase(ctx context.Context, db *gorm.DB, userID, setID uint) (bool, error) {
	f.purchaseCalls++
	return f.purchases[purchaseKey{userID, setID}], nil
}

func (f *fakeAccessStore) HasSubscription(ctx context.Context, db *gorm.DB, userID, educatorID uint) (bool, error) {
	f.subCalls++
	return f.subs[subKey{userID, educatorID}], nil
}

func id64(v int64) *int64 { return &v }

func (f *fakeAccessStore) addUser(id, role uint) {
	f.users[id] = &domain.User{ID: id, RoleID: role}
}

const (
	educator1 = 1
	educator2 = 2
	member    = 3
	admin     = 4
)

const (
	setFree    = 10
	setPremium = 11
	setSubOnly = 12
	setBoth    = 13
	setHidden  = 14
)

func seededStore() *fakeAccessStore {
	f := newFakeAccessStore()
	f.addUser(educator1, domain.RoleMember)
	f.addUser(educator2, domain.RoleMember)
	f.addUser(member, domain.RoleMember)
	f.addUser(admin, domain.RoleAdmin)

	f.sets[setFree] = &domain.Set{ID: setFree, Title: "A", EducatorID: educator1}
	f.sets[setPremium] = &domain.Set{ID: setPremium, Title: "B", EducatorID: educator1, Price: decimal.RequireFromString("9.99")}
	f.sets[setSubOnly] = &domain.Set{ID: setSubOnly, Title: "C", EducatorID: educator2, IsSubscriberOnly: true}
	f.sets[setBoth] = &domain.Set{ID: setBoth, Title: "D", EducatorID: educator2, IsSubscriberOnly: true, Price: decimal.RequireFromString("5")}
	f.sets[setHidden] = &domain.Set{ID: setHidden, Title: "E", EducatorID: educator1, Hidden: true}
	return f
}

func check(t *testing.T, svc *SetAccessService, setID int64, userID *int64) *domain.AccessVerdict {
	t.Helper()
	v, err := svc.CheckAccess(context.Background(), setID, userID)
	if err != nil {
		t.Fatalf("CheckAccess(%d): %v", setID, err)
	}
	return v
}

func wantAccessCode(t *testing.T, err error, code AccessErrorCode) {
	t.Helper()
	var ae *AccessError
	if !errors.As(err, &ae) {
		t.Fatalf("want *AccessError %s, got %v", code, err)
	}
	if ae.Code != code {
		t.Fatalf("code: want %s, got %s", code, ae.Code)
	}
}

// ----- Tests -----

func TestCheckAccess_FreeForEveryone(t *testing.T) {
	svc := NewSetAccessService(nil, seededStore())

	for _, uid := range []*int64{nil, id64(member), id64(educator2), id64(admin), id64(999)} {
		v := check(t, svc, setFree, uid)
		if !v.HasAccess || v.SetType != domain.SetTypeFree {
			t.Fatalf("user %v: want free grant, got %+v", uid, v)
		}
	}
}

func TestCheckAccess_OwnerBypass(t *testing.T) {
	store := seededStore()
	svc := NewSetAccessService(nil, store)

	for _, tc := range []struct {
		set   int64
		owner int64
	}{{setPremium, educator1}, {setSubOnly, educator2}, {setBoth, educator2}} {
		v := check(t, svc, tc.set, id64(tc.owner))
		if !v.HasAccess || v.SetType != domain.SetTypeOwned {
			t.Fatalf("set %d: want owned, got %+v", tc.set, v)
		}
	}
	if store.purchaseCalls != 0 || store.subCalls != 0 || store.userCalls != 0 {
		t.Fatalf("owner check must not consult other tables: %+v", store)
	}
}

func TestCheckAccess_AdminBypass(t *testing.T) {
	svc := NewSetAccessService(nil, seededStore())

	for _, set := range []int64{setPremium, setSubOnly, setBoth} {
		v := check(t, svc, set, id64(admin))
		if !v.HasAccess || v.SetType != domain.SetTypeAdmin {
			t.Fatalf("set %d: want admin, got %+v", set, v)
		}
	}
}

func TestCheckAccess_AnonymousDenialReasons(t *testing.T) {
	svc := NewSetAccessService(nil, seededStore())

	v := check(t, svc, setPremium, nil)
	if v.HasAccess || v.Reason != domain.ReasonPremium || v.SetType != domain.SetTypePremium {
		t.Fatalf("premium: got %+v", v)
	}
	if v.Price == nil || v.Price.String() != "9.99" {
		t.Fatalf("premium price: got %v", v.Price)
	}
	if v.SetTitle != "B" || v.SetID != setPremium || v.Message == "" {
		t.Fatalf("denial payload incomplete: %+v", v)
	}

	v = check(t, svc, setSubOnly, nil)
	if v.HasAccess || v.Reason != domain.ReasonSubscriberOnly || v.SetType != domain.SetTypeSubscriber {
		t.Fatalf("subscriber-only: got %+v", v)
	}

	// Both gates: subscriber-only wins the reason.
	v = check(t, svc, setBoth, nil)
	if v.HasAccess || v.Reason != domain.ReasonSubscriberOnly {
		t.Fatalf("both gates: got %+v", v)
	}
}

func TestCheckAccess_HiddenEvenForOwnerAndAdmin(t *testing.T) {
	svc := NewSetAccessService(nil, seededStore())

	for _, uid := range []*int64{nil, id64(educator1), id64(admin), id64(member)} {
		_, err := svc.CheckAccess(context.Background(), setHidden, uid)
		wantAccessCode(t, err, AccessSetHidden)
	}
}

func TestCheckAccess_HiddenFreeSetIsHidden(t *testing.T) {
	store := seededStore()
	store.sets[setFree].Hidden = true
	svc := NewSetAccessService(nil, store)

	_, err := svc.CheckAccess(context.Background(), setFree, nil)
	wantAccessCode(t, err, AccessSetHidden)
}

func TestCheckAccess_PurchasePersistence(t *testing.T) {
	store := seededStore()
	store.purchases[purchaseKey{member, setPremium}] = true
	svc := NewSetAccessService(nil, store)

	for i := 0; i < 3; i++ {
		v := check(t, svc, setPremium, id64(member))
		if !v.HasAccess || v.SetType != domain.SetTypePurchased {
			t.Fatalf("call %d: want purchased, got %+v", i, v)
		}
		// Interleave other checks.
		check(t, svc, setSubOnly, id64(member))
		check(t, svc, setFree, nil)
	}
}

func TestCheckAccess_PurchaseOfUnpricedSetIgnored(t *testing.T) {
	store := seededStore()
	store.purchases[purchaseKey{member, setSubOnly}] = true
	svc := NewSetAccessService(nil, store)

	v := check(t, svc, setSubOnly, id64(member))
	if v.HasAccess {
		t.Fatalf("purchase must not open a subscriber-only set: %+v", v)
	}
}

func TestCheckAccess_SubscriptionOpensPricedSubscriberSet(t *testing.T) {
	store := seededStore()
	store.subs[subKey{member, educator2}] = true
	svc := NewSetAccessService(nil, store)

	v := check(t, svc, setBoth, id64(member))
	if !v.HasAccess || v.SetType != domain.SetTypeSubscribed {
		t.Fatalf("want subscribed, got %+v", v)
	}
}

func TestCheckAccess_SubscriptionToOtherEducatorDoesNotCount(t *testing.T) {
	store := seededStore()
	store.subs[subKey{member, educator1}] = true
	svc := NewSetAccessService(nil, store)

	v := check(t, svc, setSubOnly, id64(member))
	if v.HasAccess {
		t.Fatalf("want denial, got %+v", v)
	}
}

func TestCheckAccess_EndToEndScenario(t *testing.T) {
	store := seededStore()
	svc := NewSetAccessService(nil, store)
	u3 := id64(member)

	if v := check(t, svc, setFree, u3); v.SetType != domain.SetTypeFree {
		t.Fatalf("A: %+v", v)
	}
	if v := check(t, svc, setPremium, u3); v.HasAccess || v.Reason != domain.ReasonPremium {
		t.Fatalf("B: %+v", v)
	}
	if v := check(t, svc, setSubOnly, u3); v.HasAccess || v.Reason != domain.ReasonSubscriberOnly {
		t.Fatalf("C: %+v", v)
	}

	store.purchases[purchaseKey{member, setPremium}] = true
	if v := check(t, svc, setPremium, u3); !v.HasAccess || v.SetType != domain.SetTypePurchased {
		t.Fatalf("B after purchase: %+v", v)
	}

	store.subs[subKey{member, educator2}] = true
	if v := check(t, svc, setSubOnly, u3); !v.HasAccess || v.SetType != domain.SetTypeSubscribed {
		t.Fatalf("C after subscribe: %+v", v)
	}
}

func TestCheckAccess_InvalidIDs(t *testing.T) {
	svc := NewSetAccessService(nil, seededStore())

	_, err := svc.CheckAccess(context.Background(), 0, nil)
	wantAccessCode(t, err, AccessInvalidSetID)

	_, err = svc.CheckAccess(context.Background(), -3, nil)
	wantAccessCode(t, err, AccessInvalidSetID)

	_, err = svc.CheckAccess(context.Background(), setFree, id64(0))
	wantAccessCode(t, err, AccessInvalidUserID)
}

func TestCheckAccess_NotFound(t *testing.T) {
	svc := NewSetAccessService(nil, seededStore())

	_, err := svc.CheckAccess(context.Background(), 404, nil)
	wantAccessCode(t, err, AccessSetNotFound)

	// Unknown users are only looked up once a set is gated.
	_, err = svc.CheckAccess(context.Background(), setPremium, id64(999))
	wantAccessCode(t, err, AccessUserNotFound)
}

func TestCheckAccess_StoreErrorPropagates(t *testing.T) {
	store := seededStore()
	boom := errors.New("db down")
	store.err = boom
	svc := NewSetAccessService(nil, store)

	_, err := svc.CheckAccess(context.Background(), setFree, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("want wrapped store error, got %v", err)
	}
	var ae *AccessError
	if errors.As(err, &ae) {
		t.Fatalf("store failure must not become an AccessError: %v", err)
	}
}
