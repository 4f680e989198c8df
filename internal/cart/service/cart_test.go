package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/copperbear/storefront/internal/cart/state"
	"github.com/copperbear/storefront/cart/pkg/request"
	"github.com/copperbear/storefront/cart/pkg/response"
	"github.com/copperbear/storefront/internal/config"
	"github.com/copperbear/storefront/internal/constants"
	"github.com/copperbear/storefront/internal/debounce"
	inErrors "github.com/copperbear/storefront/internal/errors"
	"github.com/copperbear/storefront/internal/guest"
	"github.com/copperbear/storefront/internal/session"
	"github.com/copperbear/storefront/internal/upstream"
)

const testSecret = "test-secret"

func signToken(t *testing.T, userID uuid.UUID) string {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   userID.String(),
		Issuer:    constants.IssuerAccounts,
		Audience:  jwt.ClaimStrings{constants.AudienceStore},
		IssuedAt:  jwt.NewNumericDate(time.Now()),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	require.NoError(t, err)
	return token
}

// fakeUpstream is a minimal cart backend: counts calls per route and serves
// canned carts.
type fakeUpstream struct {
	mu           sync.Mutex
	calls        map[string]int
	failMigrate  bool
	failUpdates  bool
	echoPreview  bool
	servedCart   response.Cart
	lastQuantity int
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		calls: map[string]int{},
		servedCart: response.Cart{
			ID:       uuid.New(),
			Items:    []response.CartLine{},
			Currency: state.Currency,
		},
	}
}

func (f *fakeUpstream) count(route string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[route]
}

func (f *fakeUpstream) handler() http.Handler {
	mux := http.NewServeMux()
	writeCart := func(w http.ResponseWriter) {
		f.mu.Lock()
		cart := f.servedCart
		f.mu.Unlock()
		json.NewEncoder(w).Encode(cart)
	}
	mux.HandleFunc("GET /api/cart", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls["fetch"]++
		f.mu.Unlock()
		writeCart(w)
	})
	mux.HandleFunc("POST /api/cart/items", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls["add"]++
		f.mu.Unlock()
		writeCart(w)
	})
	mux.HandleFunc("PATCH /api/cart/items/{itemId}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls["update"]++
		failing := f.failUpdates
		f.mu.Unlock()
		if failing {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"code": "INTERNAL", "message": "boom"})
			return
		}
		body := map[string]int{}
		json.NewDecoder(r.Body).Decode(&body)
		f.mu.Lock()
		f.lastQuantity = body["quantity"]
		f.mu.Unlock()
		writeCart(w)
	})
	mux.HandleFunc("DELETE /api/cart/items/{itemId}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls["remove"]++
		f.mu.Unlock()
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"code": "ITEM_NOT_FOUND", "message": "gone"})
	})
	mux.HandleFunc("POST /api/cart/guest", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls["preview"]++
		echo := f.echoPreview
		f.mu.Unlock()
		if !echo {
			writeCart(w)
			return
		}
		// Price whatever the agent posted, one line per guest item.
		body := struct {
			Items []guest.CartItem `json:"items"`
		}{}
		json.NewDecoder(r.Body).Decode(&body)
		cart := response.Cart{ID: uuid.New(), Currency: state.Currency}
		subtotal := decimal.Zero
		for _, item := range body.Items {
			price := decimal.NewFromInt(500)
			cart.Items = append(cart.Items, response.CartLine{
				ID:        item.ID,
				ProductID: item.ProductID,
				Quantity:  item.Quantity,
				UnitPrice: price,
			})
			subtotal = subtotal.Add(price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		}
		cart.Totals = response.Totals{Subtotal: subtotal, Total: subtotal}
		json.NewEncoder(w).Encode(cart)
	})
	mux.HandleFunc("POST /api/cart/migrate", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.calls["migrate"]++
		failing := f.failMigrate
		f.mu.Unlock()
		if failing {
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"code": "INTERNAL", "message": "boom"})
			return
		}
		writeCart(w)
	})
	return mux
}

type cartFixture struct {
	service  *CartService
	store    guest.Store
	sessions *session.Manager
	upstream *fakeUpstream
}

func setupCart(t *testing.T) *cartFixture {
	t.Helper()
	fake := newFakeUpstream()
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)

	store, err := guest.NewFileStore(t.TempDir())
	require.NoError(t, err)

	client := upstream.NewClient(config.Upstream{BaseURL: server.URL, TimeoutSeconds: 5})
	sessions := session.NewManager(testSecret)
	svc := NewCartService(
		context.Background(),
		store,
		client,
		sessions,
		debounce.WithWindow(20*time.Millisecond),
	)
	t.Cleanup(svc.Close)
	sessions.Register(session.Handler{OnSignIn: svc.OnSignIn, OnSignOut: svc.OnSignOut})
	return &cartFixture{service: svc, store: store, sessions: sessions, upstream: fake}
}

func TestGuestAddItemPersistsAndPreviews(t *testing.T) {
	fx := setupCart(t)
	c := context.Background()
	productId := uuid.New()

	err := fx.service.AddItem(c, request.AddCartItem{ProductID: &productId, Quantity: 2})
	require.NoError(t, err)

	items, err := fx.store.LoadCart(c)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 2, items[0].Quantity)

	snapshot := fx.service.Snapshot()
	assert.Equal(t, 2, snapshot.TotalQuantity)
	assert.Equal(t, 1, fx.upstream.count("preview"))
	assert.Equal(t, 0, fx.upstream.count("add"))
}

func TestGuestRemoveItemDropsLineFromServedCart(t *testing.T) {
	fx := setupCart(t)
	fx.upstream.echoPreview = true
	c := context.Background()
	productId := uuid.New()

	require.NoError(t, fx.service.AddItem(c, request.AddCartItem{ProductID: &productId, Quantity: 2}))

	snapshot := fx.service.Snapshot()
	require.Len(t, snapshot.Cart.Items, 1, "enriched preview must price the guest line")

	items, err := fx.store.LoadCart(c)
	require.NoError(t, err)
	require.Len(t, items, 1)

	require.NoError(t, fx.service.RemoveItem(c, items[0].ID))

	snapshot = fx.service.Snapshot()
	assert.Empty(t, snapshot.GuestItems)
	assert.Empty(t, snapshot.Cart.Items, "served cart must not keep a removed line")
	assert.True(t, snapshot.Cart.Totals.Total.IsZero(), "totals must not price a removed line")
}

func TestGuestUpdateQuantityRefreshesServedCart(t *testing.T) {
	fx := setupCart(t)
	fx.upstream.echoPreview = true
	c := context.Background()
	productId := uuid.New()

	require.NoError(t, fx.service.AddItem(c, request.AddCartItem{ProductID: &productId, Quantity: 2}))
	items, err := fx.store.LoadCart(c)
	require.NoError(t, err)
	require.Len(t, items, 1)

	require.NoError(t, fx.service.UpdateQuantity(c, items[0].ID, 5))

	snapshot := fx.service.Snapshot()
	require.Len(t, snapshot.Cart.Items, 1)
	assert.Equal(t, 5, snapshot.Cart.Items[0].Quantity, "served cart must reflect the new quantity")
}

func TestSignInMigratesGuestCartOnce(t *testing.T) {
	fx := setupCart(t)
	c := context.Background()
	productId := uuid.New()
	userId := uuid.New()

	require.NoError(t, fx.service.AddItem(c, request.AddCartItem{ProductID: &productId, Quantity: 3}))

	token := signToken(t, userId)
	_, err := fx.sessions.SignIn(c, token)
	require.NoError(t, err)
	// Same token again: no edge, no second migration.
	_, err = fx.sessions.SignIn(c, token)
	require.NoError(t, err)

	assert.Equal(t, 1, fx.upstream.count("migrate"))

	items, err := fx.store.LoadCart(c)
	require.NoError(t, err)
	assert.Empty(t, items, "guest cart must be cleared after successful migration")

	snapshot := fx.service.Snapshot()
	assert.Equal(t, state.MigrationDone, snapshot.Migration)
	assert.Empty(t, snapshot.GuestItems)

	done, err := fx.store.MigrationDone(c, "cart")
	require.NoError(t, err)
	assert.True(t, done)
}

func TestSignInWithEmptyGuestCartSkipsMigration(t *testing.T) {
	fx := setupCart(t)
	c := context.Background()

	_, err := fx.sessions.SignIn(c, signToken(t, uuid.New()))
	require.NoError(t, err)

	assert.Equal(t, 0, fx.upstream.count("migrate"))
	assert.Equal(t, 1, fx.upstream.count("fetch"))
}

func TestMigrationFailureRetainsGuestData(t *testing.T) {
	fx := setupCart(t)
	fx.upstream.failMigrate = true
	c := context.Background()
	productId := uuid.New()

	require.NoError(t, fx.service.AddItem(c, request.AddCartItem{ProductID: &productId, Quantity: 2}))

	_, err := fx.sessions.SignIn(c, signToken(t, uuid.New()))
	require.NoError(t, err)

	assert.Equal(t, 1, fx.upstream.count("migrate"))

	items, err := fx.store.LoadCart(c)
	require.NoError(t, err)
	assert.Len(t, items, 1, "guest cart must survive a failed migration")

	snapshot := fx.service.Snapshot()
	assert.Equal(t, state.MigrationFailed, snapshot.Migration)

	done, err := fx.store.MigrationDone(c, "cart")
	require.NoError(t, err)
	assert.False(t, done)
}

func TestSignOutReturnsToGuestState(t *testing.T) {
	fx := setupCart(t)
	c := context.Background()

	_, err := fx.sessions.SignIn(c, signToken(t, uuid.New()))
	require.NoError(t, err)
	fx.sessions.SignOut(c)

	snapshot := fx.service.Snapshot()
	assert.Equal(t, state.MigrationIdle, snapshot.Migration)
	assert.Empty(t, snapshot.Cart.Items)

	done, err := fx.store.MigrationDone(c, "cart")
	require.NoError(t, err)
	assert.False(t, done, "sign-out must clear the migration flag")
}

func TestAuthenticatedRemoveTreatsNotFoundAsSuccess(t *testing.T) {
	fx := setupCart(t)
	c := context.Background()
	lineId := uuid.New()
	fx.upstream.servedCart.Items = []response.CartLine{
		{ID: lineId, Quantity: 1, UnitPrice: decimal.NewFromInt(100)},
	}

	_, err := fx.sessions.SignIn(c, signToken(t, uuid.New()))
	require.NoError(t, err)
	require.Len(t, fx.service.Snapshot().Cart.Items, 1)

	err = fx.service.RemoveItem(c, lineId)
	require.NoError(t, err, "404 from upstream means the item is already gone")

	snapshot := fx.service.Snapshot()
	assert.Empty(t, snapshot.Cart.Items)
	assert.Equal(t, 1, fx.upstream.count("remove"))
}

func TestUpdateQuantityDebouncesToLatestValue(t *testing.T) {
	fx := setupCart(t)
	c := context.Background()
	lineId := uuid.New()
	fx.upstream.servedCart.Items = []response.CartLine{
		{ID: lineId, Quantity: 1, UnitPrice: decimal.NewFromInt(100)},
	}

	_, err := fx.sessions.SignIn(c, signToken(t, uuid.New()))
	require.NoError(t, err)

	require.NoError(t, fx.service.UpdateQuantity(c, lineId, 2))
	require.NoError(t, fx.service.UpdateQuantity(c, lineId, 3))
	require.NoError(t, fx.service.UpdateQuantity(c, lineId, 4))

	// Optimistic state reflects the latest value immediately.
	snapshot := fx.service.Snapshot()
	require.Len(t, snapshot.Cart.Items, 1)
	assert.Equal(t, 4, snapshot.Cart.Items[0].Quantity)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if fx.upstream.count("update") > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, 1, fx.upstream.count("update"), "rapid updates must coalesce into one write")
	fx.upstream.mu.Lock()
	assert.Equal(t, 4, fx.upstream.lastQuantity)
	fx.upstream.mu.Unlock()
}

func TestUpdateQuantityFailureRevertsByReload(t *testing.T) {
	fx := setupCart(t)
	fx.upstream.failUpdates = true
	c := context.Background()
	lineId := uuid.New()
	fx.upstream.servedCart.Items = []response.CartLine{
		{ID: lineId, Quantity: 1, UnitPrice: decimal.NewFromInt(100)},
	}

	_, err := fx.sessions.SignIn(c, signToken(t, uuid.New()))
	require.NoError(t, err)
	fetchesBefore := fx.upstream.count("fetch")

	require.NoError(t, fx.service.UpdateQuantity(c, lineId, 9))

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if fx.upstream.count("fetch") > fetchesBefore {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	assert.Greater(t, fx.upstream.count("fetch"), fetchesBefore,
		"failed write must trigger an authoritative reload")

	snapshot := fx.service.Snapshot()
	require.Len(t, snapshot.Cart.Items, 1)
	assert.Equal(t, 1, snapshot.Cart.Items[0].Quantity, "optimistic value must be reverted")
}

func TestUpdateQuantityRejectsInvalidQuantity(t *testing.T) {
	fx := setupCart(t)

	err := fx.service.UpdateQuantity(context.Background(), uuid.New(), 0)
	assert.ErrorIs(t, err, inErrors.ErrInvalidQuantity)
}

func TestSubscribeReceivesLatestSnapshot(t *testing.T) {
	fx := setupCart(t)
	c := context.Background()
	productId := uuid.New()

	ch, cancel := fx.service.Subscribe()
	defer cancel()

	require.NoError(t, fx.service.AddItem(c, request.AddCartItem{ProductID: &productId, Quantity: 2}))

	select {
	case snapshot := <-ch:
		assert.NotNil(t, snapshot.GuestItems)
	case <-time.After(time.Second):
		t.Fatal("expected a snapshot on the subscription channel")
	}
}
