package transport

import (
	"io"
	"mime"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/inconshreveable/log15"
	"github.com/spacemonkeygo/errors"
	"gopkg.in/yaml.v3"

	"go.polydawn.net/cohort/def"
)

/*
	The HTTP surface of the coordinator:

		GET    /projects              status of every project
		POST   /projects              create a project (JSON or YAML options)
		DELETE /projects/{projectId}  tear a project down
		GET    /workers               every worker of every project
		GET    /ws                    websocket upgrade, handled by the hub
*/
func NewRouter(svc Service, hub *Hub, log log15.Logger) http.Handler {
	a := &api{svc: svc, log: log}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(a.logRequests)
	r.Get("/projects", a.listProjects)
	r.Post("/projects", a.createProject)
	r.Delete("/projects/{projectId}", a.destroyProject)
	r.Get("/workers", a.listWorkers)
	if hub != nil {
		r.Handle("/ws", hub)
	}
	return r
}

type api struct {
	svc Service
	log log15.Logger
}

type createdResponse struct {
	ProjectID def.ProjectID `json:"projectId"`
}

type errorResponse struct {
	Error string `json:"error"`
	Class string `json:"class"`
}

func (a *api) listProjects(w http.ResponseWriter, r *http.Request) {
	a.reply(w, http.StatusOK, a.svc.Status())
}

func (a *api) listWorkers(w http.ResponseWriter, r *http.Request) {
	a.reply(w, http.StatusOK, a.svc.WorkerStatus())
}

func (a *api) createProject(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxMessageSize))
	if err != nil {
		a.fail(w, def.ValidationError.Wrap(err))
		return
	}
	var opts def.ProjectOptions
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/yaml", "application/x-yaml", "text/yaml":
		err = yaml.Unmarshal(body, &opts)
	default:
		err = Decode(body, &opts)
	}
	if err != nil {
		a.fail(w, def.ValidationError.New("unreadable project options: %s", err))
		return
	}
	id, err := a.svc.CreateProject(opts)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.reply(w, http.StatusCreated, createdResponse{id})
}

func (a *api) destroyProject(w http.ResponseWriter, r *http.Request) {
	id := def.ProjectID(chi.URLParam(r, "projectId"))
	if err := a.svc.DestroyProject(id); err != nil {
		a.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) reply(w http.ResponseWriter, status int, v interface{}) {
	b, err := Encode(v)
	if err != nil {
		a.log.Error("could not encode response", "err", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(b)
}

func (a *api) fail(w http.ResponseWriter, err error) {
	class := errors.GetClass(err)
	status := http.StatusInternalServerError
	switch {
	case class.Is(def.ValidationError), class.Is(def.TransformError):
		status = http.StatusBadRequest
	case class.Is(def.UnknownProjectError):
		status = http.StatusNotFound
	}
	a.reply(w, status, errorResponse{Error: err.Error(), Class: class.String()})
}

func (a *api) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		a.log.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"took", time.Since(start),
			"request", middleware.GetReqID(r.Context()),
		)
	})
}
