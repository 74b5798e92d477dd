package counter

import (
	"errors"
	"net/http"

	"github.com/datapowersync/counters/internal"
	countershttp "github.com/datapowersync/counters/internal/http"
	"github.com/datapowersync/counters/internal/http/decode"
	"github.com/gorilla/mux"
)

type api struct {
	*Service
}

func (a *api) addHandlers(r *mux.Router) {
	r = countershttp.APIRouter(r)

	r.HandleFunc("/counters", a.create).Methods("POST")
	r.HandleFunc("/counters", a.list).Methods("GET")
	r.HandleFunc("/counters/latest", a.latest).Methods("GET")
	r.HandleFunc("/counters/{id}", a.get).Methods("GET")
	r.HandleFunc("/counters/{id}", a.update).Methods("PATCH")
	r.HandleFunc("/counters/{id}", a.delete).Methods("DELETE")
	r.HandleFunc("/counters/{id}/increment", a.increment).Methods("POST")
}

func (a *api) create(w http.ResponseWriter, r *http.Request) {
	var opts CreateOptions
	if err := decode.JSON(&opts, r); err != nil {
		countershttp.Error(w, err)
		return
	}
	c, err := a.Create(r.Context(), opts)
	if err != nil {
		countershttp.Error(w, err)
		return
	}
	countershttp.JSON(w, http.StatusCreated, c)
}

func (a *api) list(w http.ResponseWriter, r *http.Request) {
	var opts ListOptions
	if err := decode.Query(&opts, r.URL.Query()); err != nil {
		countershttp.Error(w, err)
		return
	}
	counters, err := a.List(r.Context(), opts)
	if err != nil {
		countershttp.Error(w, err)
		return
	}
	// always respond with an array, never null
	if counters == nil {
		counters = []*Counter{}
	}
	countershttp.JSON(w, http.StatusOK, counters)
}

// latest responds with the most recently created counter, or null if there
// are none.
func (a *api) latest(w http.ResponseWriter, r *http.Request) {
	var opts ListOptions
	if err := decode.Query(&opts, r.URL.Query()); err != nil {
		countershttp.Error(w, err)
		return
	}
	c, err := a.Latest(r.Context(), opts)
	if err != nil && !errors.Is(err, internal.ErrResourceNotFound) {
		countershttp.Error(w, err)
		return
	}
	countershttp.JSON(w, http.StatusOK, c)
}

// get responds with the counter, or null if it does not exist.
func (a *api) get(w http.ResponseWriter, r *http.Request) {
	id, err := decode.Param("id", r)
	if err != nil {
		countershttp.Error(w, err)
		return
	}
	c, err := a.Get(r.Context(), id)
	if err != nil && !errors.Is(err, internal.ErrResourceNotFound) {
		countershttp.Error(w, err)
		return
	}
	countershttp.JSON(w, http.StatusOK, c)
}

func (a *api) update(w http.ResponseWriter, r *http.Request) {
	id, err := decode.Param("id", r)
	if err != nil {
		countershttp.Error(w, err)
		return
	}
	var opts UpdateOptions
	if err := decode.JSON(&opts, r); err != nil {
		countershttp.Error(w, err)
		return
	}
	c, err := a.Update(r.Context(), id, opts)
	if err != nil {
		countershttp.Error(w, err)
		return
	}
	countershttp.JSON(w, http.StatusOK, c)
}

func (a *api) increment(w http.ResponseWriter, r *http.Request) {
	id, err := decode.Param("id", r)
	if err != nil {
		countershttp.Error(w, err)
		return
	}
	var opts IncrementOptions
	if err := decode.JSON(&opts, r); err != nil {
		countershttp.Error(w, err)
		return
	}
	c, err := a.Increment(r.Context(), id, opts)
	if err != nil {
		countershttp.Error(w, err)
		return
	}
	countershttp.JSON(w, http.StatusOK, c)
}

func (a *api) delete(w http.ResponseWriter, r *http.Request) {
	id, err := decode.Param("id", r)
	if err != nil {
		countershttp.Error(w, err)
		return
	}
	result, err := a.Delete(r.Context(), id)
	if err != nil {
		countershttp.Error(w, err)
		return
	}
	countershttp.JSON(w, http.StatusOK, result)
}
