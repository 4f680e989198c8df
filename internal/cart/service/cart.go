package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/copperbear/storefront/internal/cart/state"
	"github.com/copperbear/storefront/cart/pkg/request"
	cartRes "github.com/copperbear/storefront/cart/pkg/response"
	"github.com/copperbear/storefront/internal/debounce"
	inErrors "github.com/copperbear/storefront/internal/errors"
	"github.com/copperbear/storefront/internal/guest"
	"github.com/copperbear/storefront/internal/log"
	"github.com/copperbear/storefront/internal/metrics"
	"github.com/copperbear/storefront/internal/otel"
	"github.com/copperbear/storefront/internal/session"
	"github.com/copperbear/storefront/internal/upstream"
)

const migrationKind = "cart"

// CartService is the cart sync orchestrator. Guest mutations hit the Guest
// Store synchronously; authenticated mutations apply an optimistic local
// transition and issue the upstream write, reverting by an authoritative
// reload on failure. Guest data migrates into the account exactly once per
// sign-in.
type CartService struct {
	mu        sync.Mutex
	state     state.State
	store     guest.Store
	client    *upstream.Client
	session   *session.Manager
	queue     *debounce.Queue
	migrating bool

	subMu       sync.Mutex
	subscribers map[int]chan state.State
	nextSub     int
}

func NewCartService(
	c context.Context,
	store guest.Store,
	client *upstream.Client,
	sessions *session.Manager,
	queueOpts ...debounce.Option,
) *CartService {
	svc := &CartService{
		state:       state.NewState(),
		store:       store,
		client:      client,
		session:     sessions,
		subscribers: map[int]chan state.State{},
	}
	opts := append([]debounce.Option{debounce.WithErrorFunc(svc.revert)}, queueOpts...)
	svc.queue = debounce.NewQueue(c, svc.sendQuantity, opts...)
	return svc
}

// Close cancels pending debounce timers and waits for in-flight writes.
func (svc *CartService) Close() {
	svc.queue.Close()
}

func (svc *CartService) Snapshot() state.State {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return svc.state
}

// Subscribe returns a stream of state snapshots, latest-wins. The returned
// func cancels the subscription.
func (svc *CartService) Subscribe() (<-chan state.State, func()) {
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

func (svc *CartService) dispatch(action state.Action) state.State {
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

// Refresh replaces the cached state with authoritative data: the account
// cart when authenticated, the enriched guest preview otherwise.
func (svc *CartService) Refresh(c context.Context) error {
	c, span := otel.Tracer.Start(c, "CartService Refresh")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartService Refresh").
		Logger()

	_, token, authenticated := svc.session.Current()
	if authenticated {
		logger = logger.With().
			Str(log.KeySyncMode, "authenticated").
			Str(log.KeyProcess, "fetching cart").
			Logger()
		logger.Info().Msg("fetching cart")
		c = logger.WithContext(c)
		cart, err := svc.client.FetchCart(c, token)
		if err != nil {
			err = fmt.Errorf("failed fetching cart with error=%w", err)
			otel.RecordError(err, span)
			logger.Error().Err(err).Msg(err.Error())
			return err
		}
		svc.dispatch(state.SetCart{Cart: cart})
		logger.Info().Msg("fetched cart")
		return nil
	}

	logger = logger.With().
		Str(log.KeySyncMode, "guest").
		Str(log.KeyProcess, "loading guest cart").
		Logger()
	logger.Info().Msg("loading guest cart")
	c = logger.WithContext(c)
	items, err := svc.store.LoadCart(c)
	if err != nil {
		err = fmt.Errorf("failed loading guest cart with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	svc.dispatch(state.SetGuestItems{Items: items})
	logger.Info().Int(log.KeyQuantity, len(items)).Msg("loaded guest cart")

	if len(items) == 0 {
		svc.dispatch(state.SetCart{Cart: cartRes.Cart{}})
		return nil
	}

	// Preview enrichment is best effort: display totals degrade to the
	// unpriced guest view when the backend is unreachable.
	logger = logger.With().Str(log.KeyProcess, "previewing guest cart").Logger()
	logger.Info().Msg("previewing guest cart")
	preview, err := svc.client.PreviewGuestCart(c, items)
	if err != nil {
		err = fmt.Errorf("failed previewing guest cart with error=%w", err)
		otel.RecordError(err, span)
		logger.Warn().Err(err).Msg(err.Error())
		return nil
	}
	svc.dispatch(state.SetCart{Cart: preview})
	logger.Info().Msg("previewed guest cart")
	return nil
}

func (svc *CartService) AddItem(c context.Context, param request.AddCartItem) error {
	c, span := otel.Tracer.Start(c, "CartService AddItem")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartService AddItem").
		Int(log.KeyQuantity, param.Quantity).
		Logger()

	_, token, authenticated := svc.session.Current()
	if !authenticated {
		logger = logger.With().
			Str(log.KeySyncMode, "guest").
			Str(log.KeyProcess, "adding guest cart item").
			Logger()
		logger.Info().Msg("adding guest cart item")
		c = logger.WithContext(c)
		ok, err := svc.store.AddCartItem(c, param.ProductID, param.ServiceID, guest.CartItemOptions{
			Quantity:       param.Quantity,
			Customizations: param.Customizations,
			Notes:          param.Notes,
		})
		if err != nil {
			err = fmt.Errorf("failed adding guest cart item with error=%w", err)
			otel.RecordError(err, span)
			logger.Error().Err(err).Msg(err.Error())
			return err
		}
		if !ok {
			otel.RecordError(inErrors.ErrCartFull, span)
			logger.Warn().Msg("guest cart rejected add")
			return inErrors.ErrCartFull
		}
		logger.Info().Msg("added guest cart item")
		return svc.Refresh(c)
	}

	logger = logger.With().
		Str(log.KeySyncMode, "authenticated").
		Str(log.KeyProcess, "adding cart item").
		Logger()
	logger.Info().Msg("adding cart item")
	c = logger.WithContext(c)
	cart, err := svc.client.AddCartItem(c, token, param)
	if err != nil {
		err = fmt.Errorf("failed adding cart item with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	svc.dispatch(state.SetCart{Cart: cart})
	logger.Info().Msg("added cart item")
	return nil
}

func (svc *CartService) UpdateQuantity(c context.Context, itemID uuid.UUID, quantity int) error {
	c, span := otel.Tracer.Start(c, "CartService UpdateQuantity")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartService UpdateQuantity").
		Str(log.KeyItemID, itemID.String()).
		Int(log.KeyQuantity, quantity).
		Logger()

	if quantity < 1 {
		otel.RecordError(inErrors.ErrInvalidQuantity, span)
		return inErrors.ErrInvalidQuantity
	}

	_, _, authenticated := svc.session.Current()
	if !authenticated {
		logger = logger.With().
			Str(log.KeySyncMode, "guest").
			Str(log.KeyProcess, "updating guest quantity").
			Logger()
		logger.Info().Msg("updating guest quantity")
		c = logger.WithContext(c)
		items, err := svc.store.LoadCart(c)
		if err != nil {
			err = fmt.Errorf("failed loading guest cart with error=%w", err)
			otel.RecordError(err, span)
			logger.Error().Err(err).Msg(err.Error())
			return err
		}
		found := false
		for i, item := range items {
			if item.ID == itemID {
				items[i].Quantity = quantity
				found = true
				break
			}
		}
		if !found {
			otel.RecordError(inErrors.ErrItemNotFound, span)
			return inErrors.ErrItemNotFound
		}
		if err := svc.store.SaveCart(c, items); err != nil {
			err = fmt.Errorf("failed saving guest cart with error=%w", err)
			otel.RecordError(err, span)
			logger.Error().Err(err).Msg(err.Error())
			return err
		}
		svc.dispatch(state.UpdateGuestQuantity{ID: itemID, Quantity: quantity})
		logger.Info().Msg("updated guest quantity")
		return svc.Refresh(c)
	}

	// Optimistic local transition now, one coalesced upstream write per
	// debounce window.
	logger = logger.With().
		Str(log.KeySyncMode, "authenticated").
		Str(log.KeyProcess, "scheduling quantity write").
		Logger()
	svc.dispatch(state.OptimisticUpdateItem{ID: itemID, Quantity: quantity})
	c = logger.WithContext(c)
	if err := svc.queue.Schedule(c, itemID, quantity); err != nil {
		err = fmt.Errorf("failed scheduling quantity write with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	logger.Info().Msg("scheduled quantity write")
	return nil
}

func (svc *CartService) RemoveItem(c context.Context, itemID uuid.UUID) error {
	c, span := otel.Tracer.Start(c, "CartService RemoveItem")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartService RemoveItem").
		Str(log.KeyItemID, itemID.String()).
		Logger()

	_, token, authenticated := svc.session.Current()
	if !authenticated {
		logger = logger.With().
			Str(log.KeySyncMode, "guest").
			Str(log.KeyProcess, "removing guest cart item").
			Logger()
		logger.Info().Msg("removing guest cart item")
		c = logger.WithContext(c)
		removed, err := svc.store.RemoveCartItem(c, itemID)
		if err != nil {
			err = fmt.Errorf("failed removing guest cart item with error=%w", err)
			otel.RecordError(err, span)
			logger.Error().Err(err).Msg(err.Error())
			return err
		}
		svc.dispatch(state.RemoveGuestItem{ID: itemID})
		logger.Info().Bool("removed", removed).Msg("removed guest cart item")
		return svc.Refresh(c)
	}

	logger = logger.With().
		Str(log.KeySyncMode, "authenticated").
		Str(log.KeyProcess, "removing cart item").
		Logger()
	logger.Info().Msg("removing cart item")
	svc.dispatch(state.OptimisticRemoveItem{ID: itemID})
	c = logger.WithContext(c)
	err := svc.client.RemoveCartItem(c, token, itemID)
	if err != nil {
		if errors.Is(err, inErrors.ErrItemNotFound) {
			// Already gone upstream; the optimistic removal stands.
			logger.Info().Msg("cart item already removed upstream")
			return nil
		}
		err = fmt.Errorf("failed removing cart item with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		svc.revert(c, itemID, err)
		return err
	}
	logger.Info().Msg("removed cart item")
	return nil
}

func (svc *CartService) Clear(c context.Context) error {
	c, span := otel.Tracer.Start(c, "CartService Clear")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartService Clear").
		Logger()

	_, token, authenticated := svc.session.Current()
	if !authenticated {
		logger = logger.With().
			Str(log.KeySyncMode, "guest").
			Str(log.KeyProcess, "clearing guest cart").
			Logger()
		logger.Info().Msg("clearing guest cart")
		c = logger.WithContext(c)
		if err := svc.store.ClearCart(c); err != nil {
			err = fmt.Errorf("failed clearing guest cart with error=%w", err)
			otel.RecordError(err, span)
			logger.Error().Err(err).Msg(err.Error())
			return err
		}
		svc.dispatch(state.ClearGuestCart{})
		svc.dispatch(state.SetCart{Cart: cartRes.Cart{}})
		logger.Info().Msg("cleared guest cart")
		return nil
	}

	logger = logger.With().
		Str(log.KeySyncMode, "authenticated").
		Str(log.KeyProcess, "clearing cart").
		Logger()
	logger.Info().Msg("clearing cart")
	c = logger.WithContext(c)
	if err := svc.client.ClearCart(c, token); err != nil {
		err = fmt.Errorf("failed clearing cart with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	svc.dispatch(state.SetCart{Cart: cartRes.Cart{}})
	logger.Info().Msg("cleared cart")
	return nil
}

// OnSignIn migrates guest cart data into the account exactly once per
// sign-in edge, then loads the merged authoritative cart.
func (svc *CartService) OnSignIn(c context.Context, userID uuid.UUID, token string) {
	c, span := otel.Tracer.Start(c, "CartService OnSignIn")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartService OnSignIn").
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
		logger.Info().Msg("guest cart already migrated, refreshing only")
		if err := svc.Refresh(c); err != nil {
			logger.Error().Err(err).Msg("failed refreshing cart after sign-in")
		}
		return
	}

	logger = logger.With().Str(log.KeyProcess, "loading guest cart").Logger()
	logger.Info().Msg("loading guest cart")
	items, err := svc.store.LoadCart(c)
	if err != nil {
		err = fmt.Errorf("failed loading guest cart with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return
	}
	if len(items) == 0 {
		logger.Info().Msg("guest cart empty, nothing to migrate")
		if err := svc.Refresh(c); err != nil {
			logger.Error().Err(err).Msg("failed refreshing cart after sign-in")
		}
		return
	}
	logger = logger.With().Int(log.KeyGuestItems, len(items)).Logger()
	logger.Info().Msg("loaded guest cart")

	logger = logger.With().Str(log.KeyProcess, "migrating guest cart").Logger()
	logger.Info().Msg("migrating guest cart")
	span.AddEvent("migrating guest cart")
	svc.dispatch(state.SetMigrationStatus{Status: state.MigrationRunning})
	merged, err := svc.client.MigrateGuestCart(c, token, userID, items)
	if err != nil {
		// Guest data is deliberately retained so nothing is lost; the next
		// sign-in edge retries the same merge.
		err = fmt.Errorf("failed migrating guest cart with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		metrics.Migrations.WithLabelValues(migrationKind, "failure").Inc()
		svc.dispatch(state.SetMigrationStatus{Status: state.MigrationFailed})
		return
	}
	span.AddEvent("migrated guest cart")
	logger.Info().Msg("migrated guest cart")

	logger = logger.With().Str(log.KeyProcess, "clearing guest cart").Logger()
	logger.Info().Msg("clearing guest cart after successful migration")
	if err := svc.store.ClearCart(c); err != nil {
		err = fmt.Errorf("failed clearing guest cart with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
	}
	if err := svc.store.SetMigrationDone(c, migrationKind); err != nil {
		err = fmt.Errorf("failed setting migration flag with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
	}
	metrics.Migrations.WithLabelValues(migrationKind, "success").Inc()
	svc.dispatch(state.ClearGuestCart{})
	svc.dispatch(state.SetCart{Cart: merged})
	svc.dispatch(state.SetMigrationStatus{Status: state.MigrationDone})
	logger.Info().Msg("cleared guest cart")
}

// OnSignOut discards the cached authenticated cart and reloads whatever
// guest data remains in the store.
func (svc *CartService) OnSignOut(c context.Context) {
	c, span := otel.Tracer.Start(c, "CartService OnSignOut")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartService OnSignOut").
		Str(log.KeyProcess, "discarding cached cart").
		Logger()

	logger.Info().Msg("discarding cached cart")
	svc.dispatch(state.SetCart{Cart: cartRes.Cart{}})
	svc.dispatch(state.SetMigrationStatus{Status: state.MigrationIdle})
	c = logger.WithContext(c)
	if err := svc.store.ClearMigrationDone(c, migrationKind); err != nil {
		logger.Error().Err(err).Msg("failed clearing migration flag")
	}
	if err := svc.Refresh(c); err != nil {
		logger.Error().Err(err).Msg("failed reloading guest cart after sign-out")
	}
	logger.Info().Msg("discarded cached cart")
}

// sendQuantity is the debounced write the queue issues with the latest
// value for an item.
func (svc *CartService) sendQuantity(c context.Context, itemID uuid.UUID, quantity int) error {
	_, token, authenticated := svc.session.Current()
	if !authenticated {
		// Signed out while the write was queued; there is no server row to
		// update anymore.
		return nil
	}
	return svc.client.UpdateCartItemQuantity(c, token, itemID, quantity)
}

// revert replaces optimistic state wholesale with a fresh authoritative
// fetch. Deltas are never hand-unwound.
func (svc *CartService) revert(c context.Context, itemID uuid.UUID, cause error) {
	c, span := otel.Tracer.Start(c, "CartService revert")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartService revert").
		Str(log.KeyItemID, itemID.String()).
		Logger()

	metrics.OptimisticReverts.Inc()
	logger.Warn().Err(cause).Msg("reverting optimistic cart state by authoritative reload")
	c = logger.WithContext(c)
	if err := svc.Refresh(c); err != nil {
		err = fmt.Errorf("failed reloading cart during revert with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
	}
}
