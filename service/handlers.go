package service

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// createHealthcheckHandler creates a health check handler function that
// will respond 200 ok if the gateway is connected to the upstream node
// and able to reach the rest of it's dependencies
func createHealthcheckHandler(service *GatewayService) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		var combinedErrors error

		service.Debug().Msg("/healthcheck called")

		if err := service.Upstream.Healthcheck(r.Context()); err != nil {
			errMsg := fmt.Errorf("gateway not connected to upstream: %v", err)
			combinedErrors = errors.Join(combinedErrors, errMsg)
		}

		// check that the database is reachable
		if err := service.Database.HealthCheck(r.Context()); err != nil {
			errMsg := fmt.Errorf("gateway unable to connect to database")
			combinedErrors = errors.Join(combinedErrors, errMsg)
		}

		if service.Redis != nil {
			// check that the cache is reachable
			err := service.Redis.Healthcheck(r.Context())
			if err != nil {
				service.Logger.Error().
					Err(err).
					Msg("cache healthcheck failed")

				errMsg := fmt.Errorf("gateway unable to connect to cache: %v", err)
				combinedErrors = errors.Join(combinedErrors, errMsg)
			}
		}

		if combinedErrors != nil {
			w.WriteHeader(http.StatusInternalServerError)

			w.Write([]byte(combinedErrors.Error()))

			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write([]byte("gateway is healthy"))
	}
}

// createServicecheckHandler creates a service check handler function that
// will respond 200 ok if the gateway is running
func createServicecheckHandler(service *GatewayService) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		service.Debug().Msg("/servicecheck called")

		w.WriteHeader(http.StatusOK)

		w.Write([]byte("gateway is in service"))
	}
}

// createMethodsStatusHandler creates a handler responding with the
// chain of every registered method and subscription
func createMethodsStatusHandler(service *GatewayService) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		service.Debug().Msg("/status/methods called")

		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		response := service.Registry.Status(r.Context())

		// return response for client
		if err := MarshalJSONResponse(&response, w); err != nil {
			service.Error().Msg(fmt.Sprintf("error %s encoding %+v to json", err, response))
		}
	}
}

// MarshalJSONResponse marshals an interface into the response body and sets JSON content type headers
func MarshalJSONResponse(obj interface{}, w http.ResponseWriter) error {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(obj); err != nil {
		return err
	}
	return nil
}
