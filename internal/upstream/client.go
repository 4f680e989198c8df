package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	cartRes "github.com/copperbear/storefront/cart/pkg/response"
	"github.com/copperbear/storefront/internal/config"
	inErrors "github.com/copperbear/storefront/internal/errors"
	"github.com/copperbear/storefront/internal/guest"
	inHttp "github.com/copperbear/storefront/internal/http"
	"github.com/copperbear/storefront/internal/log"
	"github.com/copperbear/storefront/internal/metrics"
	"github.com/copperbear/storefront/internal/otel"
	wishlistRes "github.com/copperbear/storefront/wishlist/pkg/response"
)

// Client speaks the CopperBear commerce REST contract. The backend owns the
// authoritative cart/wishlist; the agent only reads and writes through it.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(cfg config.Upstream) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if cfg.TimeoutSeconds <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(http.DefaultTransport),
			Timeout:   timeout,
		},
	}
}

type envelope struct {
	Success bool               `json:"success"`
	Item    *wishlistRes.Item  `json:"item,omitempty"`
	Items   []wishlistRes.Item `json:"items,omitempty"`
	Code    string             `json:"code,omitempty"`
	Message string             `json:"message,omitempty"`
}

func (cl *Client) FetchCart(c context.Context, token string) (cartRes.Cart, error) {
	cart := cartRes.Cart{}
	err := cl.do(c, "FetchCart", http.MethodGet, "/api/cart", token, nil, &cart)
	return cart, err
}

func (cl *Client) AddCartItem(
	c context.Context,
	token string,
	body interface{},
) (cartRes.Cart, error) {
	cart := cartRes.Cart{}
	err := cl.do(c, "AddCartItem", http.MethodPost, "/api/cart/items", token, body, &cart)
	return cart, err
}

func (cl *Client) UpdateCartItemQuantity(
	c context.Context,
	token string,
	itemID uuid.UUID,
	quantity int,
) error {
	body := map[string]interface{}{"quantity": quantity}
	path := "/api/cart/items/" + itemID.String()
	return cl.do(c, "UpdateCartItemQuantity", http.MethodPatch, path, token, body, nil)
}

func (cl *Client) RemoveCartItem(c context.Context, token string, itemID uuid.UUID) error {
	path := "/api/cart/items/" + itemID.String()
	return cl.do(c, "RemoveCartItem", http.MethodDelete, path, token, nil, nil)
}

func (cl *Client) ClearCart(c context.Context, token string) error {
	return cl.do(c, "ClearCart", http.MethodDelete, "/api/cart", token, nil, nil)
}

// PreviewGuestCart asks the backend to enrich and total a guest cart
// without persisting it.
func (cl *Client) PreviewGuestCart(
	c context.Context,
	items []guest.CartItem,
) (cartRes.Cart, error) {
	cart := cartRes.Cart{}
	body := map[string]interface{}{"items": items}
	err := cl.do(c, "PreviewGuestCart", http.MethodPost, "/api/cart/guest", "", body, &cart)
	return cart, err
}

// MigrateGuestCart merges the guest cart into the user's account cart and
// returns the merged result.
func (cl *Client) MigrateGuestCart(
	c context.Context,
	token string,
	userID uuid.UUID,
	items []guest.CartItem,
) (cartRes.Cart, error) {
	cart := cartRes.Cart{}
	body := map[string]interface{}{"guestCart": items, "userId": userID}
	err := cl.do(c, "MigrateGuestCart", http.MethodPost, "/api/cart/migrate", token, body, &cart)
	return cart, err
}

func (cl *Client) FetchWishlist(c context.Context, token string) ([]wishlistRes.Item, error) {
	env := envelope{}
	err := cl.do(c, "FetchWishlist", http.MethodGet, "/api/wishlist", token, nil, &env)
	if err != nil {
		return nil, err
	}
	return env.Items, nil
}

func (cl *Client) AddWishlistItem(
	c context.Context,
	token string,
	body interface{},
) (wishlistRes.Item, error) {
	env := envelope{}
	err := cl.do(c, "AddWishlistItem", http.MethodPost, "/api/wishlist", token, body, &env)
	if err != nil {
		return wishlistRes.Item{}, err
	}
	if env.Item == nil {
		return wishlistRes.Item{}, fmt.Errorf("missing item in add wishlist response")
	}
	return *env.Item, nil
}

func (cl *Client) RemoveWishlistItem(c context.Context, token string, itemID uuid.UUID) error {
	path := "/api/wishlist/" + itemID.String()
	return cl.do(c, "RemoveWishlistItem", http.MethodDelete, path, token, nil, nil)
}

func (cl *Client) UpdateWishlistItem(
	c context.Context,
	token string,
	itemID uuid.UUID,
	body interface{},
) (wishlistRes.Item, error) {
	env := envelope{}
	path := "/api/wishlist/" + itemID.String()
	err := cl.do(c, "UpdateWishlistItem", http.MethodPatch, path, token, body, &env)
	if err != nil {
		return wishlistRes.Item{}, err
	}
	if env.Item == nil {
		return wishlistRes.Item{}, fmt.Errorf("missing item in update wishlist response")
	}
	return *env.Item, nil
}

func (cl *Client) MoveToCart(
	c context.Context,
	token string,
	itemID uuid.UUID,
	quantity int,
	removeFromWishlist bool,
) error {
	body := map[string]interface{}{
		"quantity":           quantity,
		"removeFromWishlist": removeFromWishlist,
	}
	path := "/api/wishlist/" + itemID.String() + "/move-to-cart"
	return cl.do(c, "MoveToCart", http.MethodPost, path, token, body, nil)
}

// BulkMergeWishlist merges guest wishlist items into the account wishlist.
func (cl *Client) BulkMergeWishlist(
	c context.Context,
	token string,
	items []guest.WishlistItem,
) ([]wishlistRes.Item, error) {
	env := envelope{}
	body := map[string]interface{}{"items": items}
	err := cl.do(c, "BulkMergeWishlist", http.MethodPost, "/api/wishlist/bulk", token, body, &env)
	if err != nil {
		return nil, err
	}
	return env.Items, nil
}

// EnrichGuestWishlist returns catalog-enriched views of guest wishlist
// items without persisting them.
func (cl *Client) EnrichGuestWishlist(
	c context.Context,
	data guest.WishlistData,
) ([]wishlistRes.Item, error) {
	env := envelope{}
	body := map[string]interface{}{"guestWishlist": data}
	err := cl.do(c, "EnrichGuestWishlist", http.MethodPost, "/api/wishlist/unified", "", body, &env)
	if err != nil {
		return nil, err
	}
	return env.Items, nil
}

func (cl *Client) do(
	c context.Context,
	operation, method, path, token string,
	body, out interface{},
) error {
	c, span := otel.Tracer.Start(c, "UpstreamClient "+operation)
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "UpstreamClient "+operation).
		Str(log.KeyUpstreamOperation, operation).
		Str(log.KeyRequestMethod, method).
		Str(log.KeyRequestURL, cl.baseURL+path).
		Logger()

	var reader *bytes.Buffer
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			err = fmt.Errorf("failed marshaling request body with error=%w", err)
			otel.RecordError(err, span)
			logger.Error().Err(err).Msg(err.Error())
			return err
		}
		reader = bytes.NewBuffer(payload)
	} else {
		reader = &bytes.Buffer{}
	}

	req, err := http.NewRequestWithContext(c, method, cl.baseURL+path, reader)
	if err != nil {
		err = fmt.Errorf("failed creating request with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	req.Header.Set(inHttp.KeyHeaderContentType, inHttp.ValueHeaderApplicationJson)
	if requestId := log.RequestIDFromContext(c); requestId != "" {
		req.Header.Set(inHttp.KeyHeaderRequestID, requestId)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	logger.Trace().Msg("sending upstream request")
	resp, err := cl.httpClient.Do(req)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues(operation, "transport_error").Inc()
		err = fmt.Errorf("failed sending upstream request with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		metrics.UpstreamRequests.WithLabelValues(operation, "error").Inc()
		failure := envelope{}
		json.NewDecoder(resp.Body).Decode(&failure)
		statusErr := &StatusError{
			StatusCode: resp.StatusCode,
			Code:       failure.Code,
			Message:    failure.Message,
		}
		otel.RecordError(statusErr, span)
		logger.Error().Err(statusErr).Msg(statusErr.Error())
		return statusErr
	}
	metrics.UpstreamRequests.WithLabelValues(operation, "success").Inc()

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		err = fmt.Errorf("%w: failed decoding body with error=%w", inErrors.ErrUpstreamUnexpected, err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	logger.Trace().Msg("decoded upstream response")
	return nil
}
