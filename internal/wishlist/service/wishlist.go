package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	inErrors "github.com/copperbear/storefront/internal/errors"
	"github.com/copperbear/storefront/internal/guest"
	"github.com/copperbear/storefront/internal/log"
	"github.com/copperbear/storefront/internal/metrics"
	"github.com/copperbear/storefront/internal/otel"
	"github.com/copperbear/storefront/internal/session"
	"github.com/copperbear/storefront/internal/upstream"
	"github.com/copperbear/storefront/internal/wishlist/state"
	"github.com/copperbear/storefront/wishlist/pkg/request"
)

const migrationKind = "wishlist"

// CartChangedFunc is invoked after a move-to-cart succeeds so the cart view
// can reload from its own authoritative source.
type CartChangedFunc func(c context.Context) error

// WishlistService is the wishlist sync orchestrator. Guest mutations hit
// the Guest Store synchronously; authenticated removals are optimistic with
// revert by authoritative reload. Guest data bulk-merges into the account
// exactly once per sign-in.
type WishlistService struct {
	mu            sync.Mutex
	state         state.State
	store         guest.Store
	client        *upstream.Client
	session       *session.Manager
	onCartChanged CartChangedFunc
	migrating     bool

	subMu       sync.Mutex
	subscribers map[int]chan state.State
	nextSub     int
}

func NewWishlistService(
	store guest.Store,
	client *upstream.Client,
	sessions *session.Manager,
	onCartChanged CartChangedFunc,
) *WishlistService {
	return &WishlistService{
		state:         state.NewState(),
		store:         store,
		client:        client,
		session:       sessions,
		onCartChanged: onCartChanged,
		subscribers:   map[int]chan state.State{},
	}
}

func (svc *WishlistService) Snapshot() state.State {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.state
}

// Subscribe returns a stream of state snapshots, latest-wins. The returned
// func cancels the subscription.
func (svc *WishlistService) Subscribe() (<-chan state.State, func()) {
	svc.subMu.Lock()
	defer svc.subMu.Unlock()
	id := svc.nextSub
	svc.nextSub++
	ch := make(chan state.State, 1)
	svc.subscribers[id] = ch
	return ch, func() {
		svc.subMu.Lock()
		defer svc.subMu.Unlock()
		delete(svc.subscribers, id)
	}
}

func (svc *WishlistService) dispatch(action state.Action) state.State {
	svc.mu.Lock()
	svc.state = state.Reduce(svc.state, action)
	snapshot := svc.state
	svc.mu.Unlock()

	svc.subMu.Lock()
	for _, ch := range svc.subscribers {
		select {
		case ch <- snapshot:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- snapshot
		}
	}
	svc.subMu.Unlock()
	return snapshot
}

// IsInWishlist reports whether the product or service is present in the
// current view, regardless of sync mode.
func (svc *WishlistService) IsInWishlist(productID, serviceID *uuid.UUID) bool {
	snapshot := svc.Snapshot()
	for _, item := range snapshot.GuestItems {
		if matches(item.ProductID, item.ServiceID, productID, serviceID) {
			return true
		}
	}
	for _, item := range snapshot.Items {
		if matches(item.ProductID, item.ServiceID, productID, serviceID) {
			return true
		}
	}
	return false
}

func matches(haveProduct, haveService, wantProduct, wantService *uuid.UUID) bool {
	if wantProduct != nil {
		return haveProduct != nil && *haveProduct == *wantProduct
	}
	if wantService != nil {
		return haveService != nil && *haveService == *wantService
	}
	return false
}

// Refresh replaces the cached state with authoritative data: the account
// wishlist when authenticated, the enriched guest view otherwise.
func (svc *WishlistService) Refresh(c context.Context) error {
	c, span := otel.Tracer.Start(c, "WishlistService Refresh")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "WishlistService Refresh").
		Logger()

	_, token, authenticated := svc.session.Current()
	if authenticated {
		logger = logger.With().
			Str(log.KeySyncMode, "authenticated").
			Str(log.KeyProcess, "fetching wishlist").
			Logger()
		logger.Info().Msg("fetching wishlist")
		c = logger.WithContext(c)
		items, err := svc.client.FetchWishlist(c, token)
		if err != nil {
			err = fmt.Errorf("failed fetching wishlist with error=%w", err)
			otel.RecordError(err, span)
			logger.Error().Err(err).Msg(err.Error())
			return err
		}
		svc.dispatch(state.SetWishlist{Items: items})
		logger.Info().Int(log.KeyQuantity, len(items)).Msg("fetched wishlist")
		return nil
	}

	logger = logger.With().
		Str(log.KeySyncMode, "guest").
		Str(log.KeyProcess, "loading guest wishlist").
		Logger()
	logger.Info().Msg("loading guest wishlist")
	c = logger.WithContext(c)
	data, err := svc.store.LoadWishlist(c)
	if err != nil {
		err = fmt.Errorf("failed loading guest wishlist with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	svc.dispatch(state.SetGuestItems{Items: data.Items})
	logger.Info().Int(log.KeyGuestItems, len(data.Items)).Msg("loaded guest wishlist")

	if len(data.Items) == 0 {
		svc.dispatch(state.SetWishlist{Items: nil})
		return nil
	}

	// Enrichment is best effort: the view degrades to the raw guest items
	// when the backend is unreachable.
	logger = logger.With().Str(log.KeyProcess, "enriching guest wishlist").Logger()
	logger.Info().Msg("enriching guest wishlist")
	enriched, err := svc.client.EnrichGuestWishlist(c, data)
	if err != nil {
		err = fmt.Errorf("failed enriching guest wishlist with error=%w", err)
		otel.RecordError(err, span)
		logger.Warn().Err(err).Msg(err.Error())
		return nil
	}
	svc.dispatch(state.SetWishlist{Items: enriched})
	logger.Info().Msg("enriched guest wishlist")
	return nil
}

func (svc *WishlistService) AddItem(c context.Context, param request.AddWishlistItem) error {
	c, span := otel.Tracer.Start(c, "WishlistService AddItem")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "WishlistService AddItem").
		Logger()

	_, token, authenticated := svc.session.Current()
	if !authenticated {
		logger = logger.With().
			Str(log.KeySyncMode, "guest").
			Str(log.KeyProcess, "adding guest wishlist item").
			Logger()
		logger.Info().Msg("adding guest wishlist item")
		c = logger.WithContext(c)
		ok, err := svc.store.AddWishlistItem(c, param.ProductID, param.ServiceID, guest.WishlistItemOptions{
			Notes:     param.Notes,
			Priority:  guest.Priority(param.Priority),
			Tags:      param.Tags,
			AddedFrom: param.AddedFrom,
		})
		if err != nil {
			if errors.Is(err, inErrors.ErrDuplicateItem) {
				otel.RecordError(err, span)
				logger.Warn().Msg("item already in guest wishlist")
				return inErrors.ErrDuplicateItem
			}
			err = fmt.Errorf("failed adding guest wishlist item with error=%w", err)
			otel.RecordError(err, span)
			logger.Error().Err(err).Msg(err.Error())
			return err
		}
		if !ok {
			otel.RecordError(inErrors.ErrWishlistFull, span)
			logger.Warn().Msg("guest wishlist rejected add")
			return inErrors.ErrWishlistFull
		}
		logger.Info().Msg("added guest wishlist item")
		return svc.Refresh(c)
	}

	logger = logger.With().
		Str(log.KeySyncMode, "authenticated").
		Str(log.KeyProcess, "adding wishlist item").
		Logger()
	logger.Info().Msg("adding wishlist item")
	c = logger.WithContext(c)
	item, err := svc.client.AddWishlistItem(c, token, param)
	if err != nil {
		if errors.Is(err, inErrors.ErrDuplicateItem) {
			// The server already has the item. Reconcile by reload and
			// surface the duplicate as a notice rather than a failure.
			logger.Warn().Msg("item already in wishlist, reconciling")
			if refreshErr := svc.Refresh(c); refreshErr != nil {
				logger.Error().Err(refreshErr).Msg("failed reconciling wishlist after duplicate")
			}
			return inErrors.ErrDuplicateItem
		}
		err = fmt.Errorf("failed adding wishlist item with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	svc.dispatch(state.AddServerItem{Item: item})
	logger.Info().Str(log.KeyItemID, item.ID.String()).Msg("added wishlist item")
	return nil
}

func (svc *WishlistService) RemoveItem(c context.Context, itemID uuid.UUID) error {
	c, span := otel.Tracer.Start(c, "WishlistService RemoveItem")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "WishlistService RemoveItem").
		Str(log.KeyItemID, itemID.String()).
		Logger()

	_, token, authenticated := svc.session.Current()
	if !authenticated {
		logger = logger.With().
			Str(log.KeySyncMode, "guest").
			Str(log.KeyProcess, "removing guest wishlist item").
			Logger()
		logger.Info().Msg("removing guest wishlist item")
		c = logger.WithContext(c)
		removed, err := svc.store.RemoveWishlistItem(c, itemID)
		if err != nil {
			err = fmt.Errorf("failed removing guest wishlist item with error=%w", err)
			otel.RecordError(err, span)
			logger.Error().Err(err).Msg(err.Error())
			return err
		}
		svc.dispatch(state.RemoveGuestItem{ID: itemID})
		logger.Info().Bool("removed", removed).Msg("removed guest wishlist item")
		return svc.Refresh(c)
	}

	logger = logger.With().
		Str(log.KeySyncMode, "authenticated").
		Str(log.KeyProcess, "removing wishlist item").
		Logger()
	logger.Info().Msg("removing wishlist item")
	svc.dispatch(state.OptimisticRemoveItem{ID: itemID})
	c = logger.WithContext(c)
	err := svc.client.RemoveWishlistItem(c, token, itemID)
	if err != nil {
		if errors.Is(err, inErrors.ErrItemNotFound) {
			// Already gone upstream; the optimistic removal stands.
			logger.Info().Msg("wishlist item already removed upstream")
			return nil
		}
		err = fmt.Errorf("failed removing wishlist item with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		svc.revert(c, err)
		return err
	}
	logger.Info().Msg("removed wishlist item")
	return nil
}

// UpdateItem patches mutable fields of an account wishlist item. Guest
// items carry no server-managed fields worth patching, so this requires
// authentication.
func (svc *WishlistService) UpdateItem(
	c context.Context,
	itemID uuid.UUID,
	param request.UpdateWishlistItem,
) error {
	c, span := otel.Tracer.Start(c, "WishlistService UpdateItem")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "WishlistService UpdateItem").
		Str(log.KeyItemID, itemID.String()).
		Logger()

	_, token, authenticated := svc.session.Current()
	if !authenticated {
		otel.RecordError(inErrors.ErrNotAuthenticated, span)
		return inErrors.ErrNotAuthenticated
	}

	logger = logger.With().Str(log.KeyProcess, "updating wishlist item").Logger()
	logger.Info().Msg("updating wishlist item")
	c = logger.WithContext(c)
	item, err := svc.client.UpdateWishlistItem(c, token, itemID, param)
	if err != nil {
		err = fmt.Errorf("failed updating wishlist item with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	svc.dispatch(state.ReplaceServerItem{Item: item})
	logger.Info().Msg("updated wishlist item")
	return nil
}

// MoveToCart transfers a wishlist item into the cart upstream, then
// notifies the cart view so it reloads.
func (svc *WishlistService) MoveToCart(
	c context.Context,
	itemID uuid.UUID,
	param request.MoveToCart,
) error {
	c, span := otel.Tracer.Start(c, "WishlistService MoveToCart")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "WishlistService MoveToCart").
		Str(log.KeyItemID, itemID.String()).
		Int(log.KeyQuantity, param.Quantity).
		Logger()

	_, token, authenticated := svc.session.Current()
	if !authenticated {
		otel.RecordError(inErrors.ErrNotAuthenticated, span)
		return inErrors.ErrNotAuthenticated
	}

	logger = logger.With().Str(log.KeyProcess, "moving wishlist item to cart").Logger()
	logger.Info().Msg("moving wishlist item to cart")
	c = logger.WithContext(c)
	err := svc.client.MoveToCart(c, token, itemID, param.Quantity, param.RemoveFromWishlist)
	if err != nil {
		err = fmt.Errorf("failed moving wishlist item to cart with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	if param.RemoveFromWishlist {
		svc.dispatch(state.OptimisticRemoveItem{ID: itemID})
	}
	if svc.onCartChanged != nil {
		if err := svc.onCartChanged(c); err != nil {
			logger.Warn().Err(err).Msg("failed reloading cart after move")
		}
	}
	logger.Info().Msg("moved wishlist item to cart")
	return nil
}

func (svc *WishlistService) Clear(c context.Context) error {
	c, span := otel.Tracer.Start(c, "WishlistService Clear")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "WishlistService Clear").
		Str(log.KeyProcess, "clearing guest wishlist").
		Logger()

	_, _, authenticated := svc.session.Current()
	if authenticated {
		// The account wishlist is cleared item by item on the backend; this
		// endpoint wipes local guest data only.
		otel.RecordError(inErrors.ErrGuestOnly, span)
		return inErrors.ErrGuestOnly
	}

	logger.Info().Msg("clearing guest wishlist")
	c = logger.WithContext(c)
	if err := svc.store.ClearWishlist(c); err != nil {
		err = fmt.Errorf("failed clearing guest wishlist with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	svc.dispatch(state.ClearGuest{})
	svc.dispatch(state.SetWishlist{Items: nil})
	logger.Info().Msg("cleared guest wishlist")
	return nil
}

// OnSignIn bulk-merges guest wishlist data into the account exactly once
// per sign-in edge, then loads the merged authoritative wishlist.
func (svc *WishlistService) OnSignIn(c context.Context, userID uuid.UUID, token string) {
	c, span := otel.Tracer.Start(c, "WishlistService OnSignIn")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "WishlistService OnSignIn").
		Str(log.KeyUserID, userID.String()).
		Logger()

	svc.mu.Lock()
	if svc.migrating {
		svc.mu.Unlock()
		logger.Warn().Msg("migration already in progress, skipping re-entrant trigger")
		return
	}
	svc.migrating = true
	svc.mu.Unlock()
	defer func() {
		svc.mu.Lock()
		svc.migrating = false
		svc.mu.Unlock()
	}()

	logger = logger.With().Str(log.KeyProcess, "checking migration flag").Logger()
	c = logger.WithContext(c)
	done, err := svc.store.MigrationDone(c, migrationKind)
	if err != nil {
		err = fmt.Errorf("failed checking migration flag with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return
	}
	if done {
		logger.Info().Msg("guest wishlist already migrated, refreshing only")
		if err := svc.Refresh(c); err != nil {
			logger.Error().Err(err).Msg("failed refreshing wishlist after sign-in")
		}
		return
	}

	logger = logger.With().Str(log.KeyProcess, "loading guest wishlist").Logger()
	logger.Info().Msg("loading guest wishlist")
	data, err := svc.store.LoadWishlist(c)
	if err != nil {
		err = fmt.Errorf("failed loading guest wishlist with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return
	}
	if len(data.Items) == 0 {
		logger.Info().Msg("guest wishlist empty, nothing to migrate")
		if err := svc.Refresh(c); err != nil {
			logger.Error().Err(err).Msg("failed refreshing wishlist after sign-in")
		}
		return
	}
	logger = logger.With().Int(log.KeyGuestItems, len(data.Items)).Logger()
	logger.Info().Msg("loaded guest wishlist")

	logger = logger.With().Str(log.KeyProcess, "merging guest wishlist").Logger()
	logger.Info().Msg("merging guest wishlist")
	span.AddEvent("merging guest wishlist")
	svc.dispatch(state.SetMigrationStatus{Status: state.MigrationRunning})
	merged, err := svc.client.BulkMergeWishlist(c, token, data.Items)
	if err != nil {
		// Guest data is deliberately retained so nothing is lost; the next
		// sign-in edge retries the same merge.
		err = fmt.Errorf("failed merging guest wishlist with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		metrics.Migrations.WithLabelValues(migrationKind, "failure").Inc()
		svc.dispatch(state.SetMigrationStatus{Status: state.MigrationFailed})
		return
	}
	span.AddEvent("merged guest wishlist")
	logger.Info().Msg("merged guest wishlist")

	logger = logger.With().Str(log.KeyProcess, "clearing guest wishlist").Logger()
	logger.Info().Msg("clearing guest wishlist after successful merge")
	if err := svc.store.ClearWishlist(c); err != nil {
		err = fmt.Errorf("failed clearing guest wishlist with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
	}
	if err := svc.store.SetMigrationDone(c, migrationKind); err != nil {
		err = fmt.Errorf("failed setting migration flag with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
	}
	metrics.Migrations.WithLabelValues(migrationKind, "success").Inc()
	svc.dispatch(state.ClearGuest{})
	svc.dispatch(state.SetWishlist{Items: merged})
	svc.dispatch(state.SetMigrationStatus{Status: state.MigrationDone})
	logger.Info().Msg("cleared guest wishlist")
}

// OnSignOut discards the cached authenticated wishlist and reloads
// whatever guest data remains in the store.
func (svc *WishlistService) OnSignOut(c context.Context) {
	c, span := otel.Tracer.Start(c, "WishlistService OnSignOut")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "WishlistService OnSignOut").
		Str(log.KeyProcess, "discarding cached wishlist").
		Logger()

	logger.Info().Msg("discarding cached wishlist")
	svc.dispatch(state.SetWishlist{Items: nil})
	svc.dispatch(state.SetMigrationStatus{Status: state.MigrationIdle})
	c = logger.WithContext(c)
	if err := svc.store.ClearMigrationDone(c, migrationKind); err != nil {
		logger.Error().Err(err).Msg("failed clearing migration flag")
	}
	if err := svc.Refresh(c); err != nil {
		logger.Error().Err(err).Msg("failed reloading guest wishlist after sign-out")
	}
	logger.Info().Msg("discarded cached wishlist")
}

// revert replaces optimistic state wholesale with a fresh authoritative
// fetch.
func (svc *WishlistService) revert(c context.Context, cause error) {
	c, span := otel.Tracer.Start(c, "WishlistService revert")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "WishlistService revert").
		Logger()

	metrics.OptimisticReverts.Inc()
	logger.Warn().Err(cause).Msg("reverting optimistic wishlist state by authoritative reload")
	c = logger.WithContext(c)
	if err := svc.Refresh(c); err != nil {
		err = fmt.Errorf("failed reloading wishlist during revert with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
	}
}
