package controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	inErrors "github.com/copperbear/storefront/internal/errors"
	inHttp "github.com/copperbear/storefront/internal/http"
	"github.com/copperbear/storefront/internal/log"
	"github.com/copperbear/storefront/internal/otel"
	"github.com/copperbear/storefront/internal/wishlist/service"
	"github.com/copperbear/storefront/wishlist/pkg/request"
)

type WishlistController struct {
	service *service.WishlistService
}

func AttachWishlistController(mux *mux.Router, service *service.WishlistService) {
	controller := WishlistController{service: service}

	router := mux.PathPrefix("/wishlist").Subrouter()
	router.HandleFunc("", controller.GetWishlist).Methods(http.MethodGet)
	router.HandleFunc("", controller.Clear).Methods(http.MethodDelete)
	router.HandleFunc("/refresh", controller.Refresh).Methods(http.MethodPost)
	router.HandleFunc("/items", controller.AddItem).Methods(http.MethodPost)
	router.HandleFunc("/items/{itemId}", controller.UpdateItem).Methods(http.MethodPatch)
	router.HandleFunc("/items/{itemId}", controller.RemoveItem).Methods(http.MethodDelete)
	router.HandleFunc("/items/{itemId}/move-to-cart", controller.MoveToCart).
		Methods(http.MethodPost)
}

func (t WishlistController) GetWishlist(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "WishlistController GetWishlist")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "WishlistController GetWishlist").
		Logger()

	snapshot := t.service.Snapshot()
	logger.Info().Int(log.KeyQuantity, snapshot.ItemsCount).Msg("got wishlist snapshot")

	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     "success",
		"statusCode": http.StatusOK,
		"message":    "wishlist snapshot",
		"data": map[string]interface{}{
			"items":      snapshot.Items,
			"guestItems": snapshot.GuestItems,
			"migration":  snapshot.Migration,
			"itemsCount": snapshot.ItemsCount,
		},
	})
}

func (t WishlistController) Refresh(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "WishlistController Refresh")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "WishlistController Refresh").
		Str(log.KeyProcess, "refreshing wishlist").
		Logger()

	logger.Info().Msg("refreshing wishlist")
	c = logger.WithContext(c)
	if err := t.service.Refresh(c); err != nil {
		err = fmt.Errorf("failed refreshing wishlist with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
			"status":     "failed",
			"statusCode": inHttp.StatusCodeOf(err),
			"message":    err.Error(),
		})
		return
	}
	logger.Info().Msg("refreshed wishlist")

	snapshot := t.service.Snapshot()
	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     "success",
		"statusCode": http.StatusOK,
		"message":    "refreshed wishlist",
		"data": map[string]interface{}{
			"items":      snapshot.Items,
			"guestItems": snapshot.GuestItems,
			"itemsCount": snapshot.ItemsCount,
		},
	})
}

func (t WishlistController) AddItem(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "WishlistController AddItem")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "WishlistController AddItem").
		Logger()

	logger = logger.With().Str(log.KeyProcess, "decoding requestbody").Logger()
	logger.Info().Msg("decoding requestbody")
	reqBody := request.AddWishlistItem{}
	if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
		err = fmt.Errorf("failed decoding request body with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
			"status":     "failed",
			"statusCode": http.StatusBadRequest,
			"message":    err.Error(),
		})
		return
	}
	logger.Info().Msg("decoded request body")

	logger = logger.With().Str(log.KeyProcess, "validating requestbody").Logger()
	logger.Info().Msg("validating request body")
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.StructCtx(c, reqBody); err != nil {
		err = fmt.Errorf("failed validating request body with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
			"status":     "failed",
			"statusCode": http.StatusBadRequest,
			"message":    err.Error(),
		})
		return
	}
	logger.Info().Msg("validated request body")

	logger = logger.With().Str(log.KeyProcess, "adding wishlist item").Logger()
	logger.Info().Msg("adding wishlist item")
	c = logger.WithContext(c)
	err := t.service.AddItem(c, reqBody)
	if err != nil {
		// Duplicates are reported as a notice so the UI can show "already
		// saved" instead of an error banner.
		if errors.Is(err, inErrors.ErrDuplicateItem) {
			logger.Info().Msg("item already in wishlist")
			inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
				"status":     "success",
				"statusCode": http.StatusOK,
				"message":    "item already in wishlist",
				"data": map[string]interface{}{
					"duplicate": true,
				},
			})
			return
		}
		err = fmt.Errorf("failed adding wishlist item with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
			"status":     "failed",
			"statusCode": inHttp.StatusCodeOf(err),
			"message":    err.Error(),
		})
		return
	}
	logger.Info().Msg("added wishlist item")

	snapshot := t.service.Snapshot()
	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     "success",
		"statusCode": http.StatusCreated,
		"message":    "successfully added wishlist item",
		"data": map[string]interface{}{
			"items":      snapshot.Items,
			"guestItems": snapshot.GuestItems,
			"itemsCount": snapshot.ItemsCount,
		},
	})
}

func (t WishlistController) UpdateItem(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "WishlistController UpdateItem")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "WishlistController UpdateItem").
		Str(log.KeyProcess, "validating itemId").
		Logger()

	logger.Info().Msg("validating itemId is valid uuid")
	pathValues := mux.Vars(r)
	itemId, err := uuid.Parse(pathValues["itemId"])
	if err != nil {
		err = fmt.Errorf("failed validating itemId=%s with error=%w", pathValues["itemId"], err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
			"status":     "failed",
			"statusCode": http.StatusBadRequest,
			"message":    err.Error(),
		})
		return
	}
	logger = logger.With().Str(log.KeyItemID, itemId.String()).Logger()
	logger.Info().Msgf("valid itemId=%s", itemId.String())

	logger = logger.With().Str(log.KeyProcess, "decoding requestbody").Logger()
	logger.Info().Msg("decoding requestbody")
	reqBody := request.UpdateWishlistItem{}
	if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
		err = fmt.Errorf("failed decoding request body with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
			"status":     "failed",
			"statusCode": http.StatusBadRequest,
			"message":    err.Error(),
		})
		return
	}
	logger.Info().Msg("decoded request body")

	logger = logger.With().Str(log.KeyProcess, "validating requestbody").Logger()
	logger.Info().Msg("validating request body")
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.StructCtx(c, reqBody); err != nil {
		err = fmt.Errorf("failed validating request body with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
			"status":     "failed",
			"statusCode": http.StatusBadRequest,
			"message":    err.Error(),
		})
		return
	}
	logger.Info().Msg("validated request body")

	logger = logger.With().Str(log.KeyProcess, "updating wishlist item").Logger()
	logger.Info().Msg("updating wishlist item")
	c = logger.WithContext(c)
	if err := t.service.UpdateItem(c, itemId, reqBody); err != nil {
		err = fmt.Errorf("failed updating wishlist item with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
			"status":     "failed",
			"statusCode": inHttp.StatusCodeOf(err),
			"message":    err.Error(),
		})
		return
	}
	logger.Info().Msg("updated wishlist item")

	snapshot := t.service.Snapshot()
	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     "success",
		"statusCode": http.StatusOK,
		"message":    "successfully updated wishlist item",
		"data": map[string]interface{}{
			"items": snapshot.Items,
		},
	})
}

func (t WishlistController) RemoveItem(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "WishlistController RemoveItem")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "WishlistController RemoveItem").
		Str(log.KeyProcess, "validating itemId").
		Logger()

	logger.Info().Msg("validating itemId is valid uuid")
	pathValues := mux.Vars(r)
	itemId, err := uuid.Parse(pathValues["itemId"])
	if err != nil {
		err = fmt.Errorf("failed validating itemId=%s with error=%w", pathValues["itemId"], err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
			"status":     "failed",
			"statusCode": http.StatusBadRequest,
			"message":    err.Error(),
		})
		return
	}
	logger = logger.With().Str(log.KeyItemID, itemId.String()).Logger()
	logger.Info().Msgf("valid itemId=%s", itemId.String())

	logger = logger.With().Str(log.KeyProcess, "removing wishlist item").Logger()
	logger.Info().Msg("removing wishlist item")
	c = logger.WithContext(c)
	if err := t.service.RemoveItem(c, itemId); err != nil {
		err = fmt.Errorf("failed removing wishlist item with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
			"status":     "failed",
			"statusCode": inHttp.StatusCodeOf(err),
			"message":    err.Error(),
		})
		return
	}
	logger.Info().Msg("removed wishlist item")

	snapshot := t.service.Snapshot()
	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     "success",
		"statusCode": http.StatusOK,
		"message":    "successfully removed wishlist item",
		"data": map[string]interface{}{
			"items":      snapshot.Items,
			"guestItems": snapshot.GuestItems,
			"itemsCount": snapshot.ItemsCount,
		},
	})
}

func (t WishlistController) MoveToCart(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "WishlistController MoveToCart")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "WishlistController MoveToCart").
		Str(log.KeyProcess, "validating itemId").
		Logger()

	logger.Info().Msg("validating itemId is valid uuid")
	pathValues := mux.Vars(r)
	itemId, err := uuid.Parse(pathValues["itemId"])
	if err != nil {
		err = fmt.Errorf("failed validating itemId=%s with error=%w", pathValues["itemId"], err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
			"status":     "failed",
			"statusCode": http.StatusBadRequest,
			"message":    err.Error(),
		})
		return
	}
	logger = logger.With().Str(log.KeyItemID, itemId.String()).Logger()
	logger.Info().Msgf("valid itemId=%s", itemId.String())

	logger = logger.With().Str(log.KeyProcess, "decoding requestbody").Logger()
	logger.Info().Msg("decoding requestbody")
	reqBody := request.MoveToCart{}
	if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
		err = fmt.Errorf("failed decoding request body with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
			"status":     "failed",
			"statusCode": http.StatusBadRequest,
			"message":    err.Error(),
		})
		return
	}
	logger.Info().Msg("decoded request body")

	logger = logger.With().Str(log.KeyProcess, "validating requestbody").Logger()
	logger.Info().Msg("validating request body")
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.StructCtx(c, reqBody); err != nil {
		err = fmt.Errorf("failed validating request body with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
			"status":     "failed",
			"statusCode": http.StatusBadRequest,
			"message":    err.Error(),
		})
		return
	}
	logger.Info().Msg("validated request body")

	logger = logger.With().Str(log.KeyProcess, "moving wishlist item to cart").Logger()
	logger.Info().Msg("moving wishlist item to cart")
	c = logger.WithContext(c)
	if err := t.service.MoveToCart(c, itemId, reqBody); err != nil {
		err = fmt.Errorf("failed moving wishlist item to cart with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
			"status":     "failed",
			"statusCode": inHttp.StatusCodeOf(err),
			"message":    err.Error(),
		})
		return
	}
	logger.Info().Msg("moved wishlist item to cart")

	snapshot := t.service.Snapshot()
	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     "success",
		"statusCode": http.StatusOK,
		"message":    "successfully moved wishlist item to cart",
		"data": map[string]interface{}{
			"items":      snapshot.Items,
			"itemsCount": snapshot.ItemsCount,
		},
	})
}

func (t WishlistController) Clear(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "WishlistController Clear")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "WishlistController Clear").
		Str(log.KeyProcess, "clearing wishlist").
		Logger()

	logger.Info().Msg("clearing wishlist")
	c = logger.WithContext(c)
	if err := t.service.Clear(c); err != nil {
		err = fmt.Errorf("failed clearing wishlist with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
			"status":     "failed",
			"statusCode": inHttp.StatusCodeOf(err),
			"message":    err.Error(),
		})
		return
	}
	logger.Info().Msg("cleared wishlist")

	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     "success",
		"statusCode": http.StatusOK,
		"message":    "successfully cleared wishlist",
	})
}
