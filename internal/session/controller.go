package session

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/copperbear/storefront/cart/pkg/request"
	inHttp "github.com/copperbear/storefront/internal/http"
	"github.com/copperbear/storefront/internal/log"
	"github.com/copperbear/storefront/internal/otel"
)

type Controller struct {
	manager *Manager
}

func AttachSessionController(mux *mux.Router, manager *Manager) {
	controller := Controller{manager: manager}

	router := mux.PathPrefix("/session").Subrouter()
	router.HandleFunc("", controller.GetSession).Methods(http.MethodGet)
	router.HandleFunc("", controller.SignIn).Methods(http.MethodPost)
	router.HandleFunc("", controller.SignOut).Methods(http.MethodDelete)
}

func (t Controller) GetSession(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "SessionController GetSession")
	defer span.End()

	userID, _, authenticated := t.manager.Current()
	data := map[string]interface{}{"authenticated": authenticated}
	if authenticated {
		data["userId"] = userID
	}

	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     "success",
		"statusCode": http.StatusOK,
		"message":    "session state",
		"data":       data,
	})
}

func (t Controller) SignIn(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "SessionController SignIn")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "SessionController SignIn").
		Logger()

	logger = logger.With().Str(log.KeyProcess, "decoding requestbody").Logger()
	logger.Info().Msg("decoding requestbody")
	reqBody := request.SignIn{}
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

	logger = logger.With().Str(log.KeyProcess, "signing in").Logger()
	logger.Info().Msg("signing in")
	c = logger.WithContext(c)
	userID, err := t.manager.SignIn(c, reqBody.Token)
	if err != nil {
		err = fmt.Errorf("failed signing in with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
			"status":     "failed",
			"statusCode": http.StatusUnauthorized,
			"message":    err.Error(),
		})
		return
	}
	logger.Info().Str(log.KeyUserID, userID.String()).Msg("signed in")

	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     "success",
		"statusCode": http.StatusOK,
		"message":    "signed in",
		"data": map[string]interface{}{
			"userId": userID,
		},
	})
}

func (t Controller) SignOut(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "SessionController SignOut")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "SessionController SignOut").
		Str(log.KeyProcess, "signing out").
		Logger()

	logger.Info().Msg("signing out")
	c = logger.WithContext(c)
	t.manager.SignOut(c)
	logger.Info().Msg("signed out")

	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     "success",
		"statusCode": http.StatusOK,
		"message":    "signed out",
	})
}
