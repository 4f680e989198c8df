package guest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	inErrors "github.com/copperbear/storefront/internal/errors"
	"github.com/copperbear/storefront/internal/log"
	"github.com/copperbear/storefront/internal/metrics"
	"github.com/copperbear/storefront/internal/otel"
)

// Store is the single owner of unauthenticated cart/wishlist state. All
// reads self-heal: corrupt payloads are wiped and treated as empty, never
// surfaced as errors to the caller.
type Store interface {
	LoadCart(c context.Context) ([]CartItem, error)
	SaveCart(c context.Context, items []CartItem) error
	AddCartItem(c context.Context, productID, serviceID *uuid.UUID, opts CartItemOptions) (bool, error)
	RemoveCartItem(c context.Context, id uuid.UUID) (bool, error)
	RemoveCartItemByContext(c context.Context, productID, serviceID *uuid.UUID) (bool, error)
	ClearCart(c context.Context) error

	LoadWishlist(c context.Context) (WishlistData, error)
	SaveWishlist(c context.Context, data WishlistData) error
	AddWishlistItem(c context.Context, productID, serviceID *uuid.UUID, opts WishlistItemOptions) (bool, error)
	RemoveWishlistItem(c context.Context, id uuid.UUID) (bool, error)
	RemoveWishlistItemByContext(c context.Context, productID, serviceID *uuid.UUID) (bool, error)
	ClearWishlist(c context.Context) error

	MigrationDone(c context.Context, kind string) (bool, error)
	SetMigrationDone(c context.Context, kind string) error
	ClearMigrationDone(c context.Context, kind string) error
}

// backend is the raw keyed byte persistence a Store runs on.
type backend interface {
	name() string
	read(c context.Context, key string) ([]byte, bool, error)
	write(c context.Context, key string, payload []byte) error
	remove(c context.Context, key string) error
}

type store struct {
	backend     backend
	expiryHours int
	now         func() time.Time
}

type Option func(*store)

func WithExpiryHours(hours int) Option {
	return func(s *store) { s.expiryHours = hours }
}

func WithClock(now func() time.Time) Option {
	return func(s *store) { s.now = now }
}

func newStore(b backend, opts ...Option) *store {
	s := &store{backend: b, expiryHours: DefaultExpiryHours, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *store) LoadCart(c context.Context) ([]CartItem, error) {
	c, span := otel.Tracer.Start(c, "GuestStore LoadCart")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "GuestStore LoadCart").
		Str(log.KeyStoreBackend, s.backend.name()).
		Logger()

	payload, ok, err := s.backend.read(c, keyCart)
	if err != nil {
		err = fmt.Errorf("failed reading guest cart with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return nil, err
	}
	if !ok {
		return []CartItem{}, nil
	}

	items := []CartItem{}
	if err := json.Unmarshal(payload, &items); err != nil {
		logger.Warn().Err(err).Msg("guest cart payload is corrupt, wiping and starting empty")
		metrics.GuestStoreSelfHeals.Inc()
		if err := s.backend.remove(c, keyCart); err != nil {
			err = fmt.Errorf("failed wiping corrupt guest cart with error=%w", err)
			otel.RecordError(err, span)
			logger.Error().Err(err).Msg(err.Error())
			return nil, err
		}
		return []CartItem{}, nil
	}
	return items, nil
}

func (s *store) SaveCart(c context.Context, items []CartItem) error {
	c, span := otel.Tracer.Start(c, "GuestStore SaveCart")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "GuestStore SaveCart").
		Str(log.KeyStoreBackend, s.backend.name()).
		Logger()

	payload, err := json.Marshal(items)
	if err != nil {
		err = fmt.Errorf("failed marshaling guest cart with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	if err := s.backend.write(c, keyCart, payload); err != nil {
		err = fmt.Errorf("failed writing guest cart with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	return nil
}

func (s *store) AddCartItem(
	c context.Context,
	productID, serviceID *uuid.UUID,
	opts CartItemOptions,
) (bool, error) {
	c, span := otel.Tracer.Start(c, "GuestStore AddCartItem")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "GuestStore AddCartItem").
		Str(log.KeyStoreBackend, s.backend.name()).
		Logger()

	if (productID == nil) == (serviceID == nil) {
		otel.RecordError(inErrors.ErrMissingContext, span)
		return false, inErrors.ErrMissingContext
	}
	quantity := opts.Quantity
	if quantity < 1 {
		quantity = 1
	}

	items, err := s.LoadCart(c)
	if err != nil {
		return false, err
	}

	// Duplicate context merges into the existing line, quantity summed.
	for i, item := range items {
		if sameContext(item.ProductID, item.ServiceID, productID, serviceID) {
			items[i].Quantity += quantity
			logger.Info().
				Str(log.KeyItemID, item.ID.String()).
				Int(log.KeyQuantity, items[i].Quantity).
				Msg("merged quantity into existing guest cart line")
			return true, s.SaveCart(c, items)
		}
	}

	if len(items) >= MaxCartItems {
		logger.Warn().Msg("guest cart is full, rejecting add")
		return false, nil
	}

	item := CartItem{
		ID:             uuid.New(),
		ProductID:      productID,
		ServiceID:      serviceID,
		Quantity:       quantity,
		AddedAt:        s.now(),
		Customizations: opts.Customizations,
		Notes:          opts.Notes,
	}
	items = append([]CartItem{item}, items...)
	logger.Info().Str(log.KeyItemID, item.ID.String()).Msg("added guest cart line")
	return true, s.SaveCart(c, items)
}

func (s *store) RemoveCartItem(c context.Context, id uuid.UUID) (bool, error) {
	c, span := otel.Tracer.Start(c, "GuestStore RemoveCartItem")
	defer span.End()

	items, err := s.LoadCart(c)
	if err != nil {
		return false, err
	}
	for i, item := range items {
		if item.ID == id {
			items = append(items[:i], items[i+1:]...)
			return true, s.SaveCart(c, items)
		}
	}
	return false, nil
}

func (s *store) RemoveCartItemByContext(
	c context.Context,
	productID, serviceID *uuid.UUID,
) (bool, error) {
	c, span := otel.Tracer.Start(c, "GuestStore RemoveCartItemByContext")
	defer span.End()

	items, err := s.LoadCart(c)
	if err != nil {
		return false, err
	}
	for i, item := range items {
		if sameContext(item.ProductID, item.ServiceID, productID, serviceID) {
			items = append(items[:i], items[i+1:]...)
			return true, s.SaveCart(c, items)
		}
	}
	return false, nil
}

func (s *store) ClearCart(c context.Context) error {
	c, span := otel.Tracer.Start(c, "GuestStore ClearCart")
	defer span.End()
	return s.backend.remove(c, keyCart)
}

func (s *store) LoadWishlist(c context.Context) (WishlistData, error) {
	c, span := otel.Tracer.Start(c, "GuestStore LoadWishlist")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "GuestStore LoadWishlist").
		Str(log.KeyStoreBackend, s.backend.name()).
		Logger()

	payload, ok, err := s.backend.read(c, keyWishlist)
	if err != nil {
		err = fmt.Errorf("failed reading guest wishlist with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return WishlistData{}, err
	}
	if !ok {
		return emptyWishlist(s.now(), s.expiryHours), nil
	}

	data := WishlistData{}
	if err := json.Unmarshal(payload, &data); err != nil {
		logger.Warn().Err(err).Msg("guest wishlist payload is corrupt, wiping and starting empty")
		metrics.GuestStoreSelfHeals.Inc()
		if err := s.backend.remove(c, keyWishlist); err != nil {
			err = fmt.Errorf("failed wiping corrupt guest wishlist with error=%w", err)
			otel.RecordError(err, span)
			logger.Error().Err(err).Msg(err.Error())
			return WishlistData{}, err
		}
		return emptyWishlist(s.now(), s.expiryHours), nil
	}

	if data.Expired(s.now()) {
		logger.Info().
			Time("lastUpdated", data.LastUpdated).
			Int("expiryHours", data.ExpiryHours).
			Msg("guest wishlist expired, discarding")
		fresh := emptyWishlist(s.now(), s.expiryHours)
		return fresh, s.SaveWishlist(c, fresh)
	}

	if data.SchemaVersion != WishlistSchemaVersion {
		logger.Info().
			Int("from", data.SchemaVersion).
			Int("to", WishlistSchemaVersion).
			Msg("migrating guest wishlist schema in place")
		data = migrateWishlistSchema(data, s.expiryHours)
		return data, s.SaveWishlist(c, data)
	}
	if data.Items == nil {
		data.Items = []WishlistItem{}
	}
	return data, nil
}

// migrateWishlistSchema upgrades v1 payloads (no priority, no expiry
// bookkeeping) to the current shape without touching the items' identity.
func migrateWishlistSchema(data WishlistData, expiryHours int) WishlistData {
	for i, item := range data.Items {
		if item.Priority == "" {
			data.Items[i].Priority = PriorityMedium
		}
	}
	if data.ExpiryHours <= 0 {
		data.ExpiryHours = expiryHours
	}
	if data.Items == nil {
		data.Items = []WishlistItem{}
	}
	data.SchemaVersion = WishlistSchemaVersion
	return data
}

func (s *store) SaveWishlist(c context.Context, data WishlistData) error {
	c, span := otel.Tracer.Start(c, "GuestStore SaveWishlist")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "GuestStore SaveWishlist").
		Str(log.KeyStoreBackend, s.backend.name()).
		Logger()

	data.LastUpdated = s.now()
	data.SchemaVersion = WishlistSchemaVersion
	if data.ExpiryHours <= 0 {
		data.ExpiryHours = s.expiryHours
	}

	payload, err := json.Marshal(data)
	if err != nil {
		err = fmt.Errorf("failed marshaling guest wishlist with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	if err := s.backend.write(c, keyWishlist, payload); err != nil {
		err = fmt.Errorf("failed writing guest wishlist with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	return nil
}

func (s *store) AddWishlistItem(
	c context.Context,
	productID, serviceID *uuid.UUID,
	opts WishlistItemOptions,
) (bool, error) {
	c, span := otel.Tracer.Start(c, "GuestStore AddWishlistItem")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "GuestStore AddWishlistItem").
		Str(log.KeyStoreBackend, s.backend.name()).
		Logger()

	if (productID == nil) == (serviceID == nil) {
		otel.RecordError(inErrors.ErrMissingContext, span)
		return false, inErrors.ErrMissingContext
	}

	data, err := s.LoadWishlist(c)
	if err != nil {
		return false, err
	}

	// Wishlist adds never merge: an equivalent item means the intent is
	// already satisfied.
	for _, item := range data.Items {
		if sameContext(item.ProductID, item.ServiceID, productID, serviceID) {
			logger.Info().Msg("item already in guest wishlist, rejecting add")
			otel.RecordError(inErrors.ErrDuplicateItem, span)
			return false, inErrors.ErrDuplicateItem
		}
	}
	if len(data.Items) >= MaxWishlistItems {
		logger.Warn().Msg("guest wishlist is full, rejecting add")
		return false, nil
	}

	priority := opts.Priority
	if priority == "" {
		priority = PriorityMedium
	}
	item := WishlistItem{
		ID:        uuid.New(),
		ProductID: productID,
		ServiceID: serviceID,
		Notes:     opts.Notes,
		Priority:  priority,
		Tags:      opts.Tags,
		AddedFrom: opts.AddedFrom,
		AddedAt:   s.now(),
	}
	data.Items = append([]WishlistItem{item}, data.Items...)
	logger.Info().Str(log.KeyItemID, item.ID.String()).Msg("added guest wishlist item")
	return true, s.SaveWishlist(c, data)
}

func (s *store) RemoveWishlistItem(c context.Context, id uuid.UUID) (bool, error) {
	c, span := otel.Tracer.Start(c, "GuestStore RemoveWishlistItem")
	defer span.End()

	data, err := s.LoadWishlist(c)
	if err != nil {
		return false, err
	}
	for i, item := range data.Items {
		if item.ID == id {
			data.Items = append(data.Items[:i], data.Items[i+1:]...)
			return true, s.SaveWishlist(c, data)
		}
	}
	return false, nil
}

func (s *store) RemoveWishlistItemByContext(
	c context.Context,
	productID, serviceID *uuid.UUID,
) (bool, error) {
	c, span := otel.Tracer.Start(c, "GuestStore RemoveWishlistItemByContext")
	defer span.End()

	data, err := s.LoadWishlist(c)
	if err != nil {
		return false, err
	}
	for i, item := range data.Items {
		if sameContext(item.ProductID, item.ServiceID, productID, serviceID) {
			data.Items = append(data.Items[:i], data.Items[i+1:]...)
			return true, s.SaveWishlist(c, data)
		}
	}
	return false, nil
}

func (s *store) ClearWishlist(c context.Context) error {
	c, span := otel.Tracer.Start(c, "GuestStore ClearWishlist")
	defer span.End()
	return s.backend.remove(c, keyWishlist)
}

func (s *store) MigrationDone(c context.Context, kind string) (bool, error) {
	c, span := otel.Tracer.Start(c, "GuestStore MigrationDone")
	defer span.End()

	_, ok, err := s.backend.read(c, keyMigration+"."+kind)
	if err != nil {
		return false, fmt.Errorf("failed reading migration flag with error=%w", err)
	}
	return ok, nil
}

func (s *store) SetMigrationDone(c context.Context, kind string) error {
	c, span := otel.Tracer.Start(c, "GuestStore SetMigrationDone")
	defer span.End()

	payload, err := json.Marshal(map[string]interface{}{"migratedAt": s.now()})
	if err != nil {
		return fmt.Errorf("failed marshaling migration flag with error=%w", err)
	}
	return s.backend.write(c, keyMigration+"."+kind, payload)
}

func (s *store) ClearMigrationDone(c context.Context, kind string) error {
	c, span := otel.Tracer.Start(c, "GuestStore ClearMigrationDone")
	defer span.End()
	return s.backend.remove(c, keyMigration+"."+kind)
}
