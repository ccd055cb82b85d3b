package www

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/visual-alchemy/blackgate-project/srtgw"
	"github.com/visual-alchemy/blackgate-project/views"
)

// pageResponse is the body of every page GET.
type pageResponse struct {
	Page        string               `json:"page"`
	User        string               `json:"user,omitempty"`
	Breadcrumbs []views.Crumb        `json:"breadcrumbs"`
	Flashes     []views.Notification `json:"flashes,omitempty"`
	Data        any                  `json:"data"`
}

// actionResponse is the body of every mutation.
type actionResponse struct {
	OK            bool                 `json:"ok"`
	Notifications []views.Notification `json:"notifications,omitempty"`
	Errors        []fieldError         `json:"errors,omitempty"`
	Data          any                  `json:"data,omitempty"`
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (h *Handlers) jsonOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (h *Handlers) jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (h *Handlers) jsonStatus(w http.ResponseWriter, data any, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

// routeMatch returns the matched chi pattern and its URL parameters.
func routeMatch(r *http.Request) (string, map[string]string) {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path, nil
	}
	params := make(map[string]string, len(rctx.URLParams.Keys))
	for i, k := range rctx.URLParams.Keys {
		params[k] = rctx.URLParams.Values[i]
	}
	return rctx.RoutePattern(), params
}

// renderPage writes a page body with its breadcrumbs and pending flashes.
// names are the loaded route and destination names, when the page has them.
func (h *Handlers) renderPage(w http.ResponseWriter, r *http.Request, page string, data any, names ...string) {
	var routeName, destName string
	if len(names) > 0 {
		routeName = names[0]
	}
	if len(names) > 1 {
		destName = names[1]
	}
	pattern, params := routeMatch(r)
	resp := pageResponse{
		Page:        page,
		User:        h.getUsername(r),
		Breadcrumbs: views.Breadcrumbs(pattern, params, routeName, destName),
		Flashes:     h.popFlashes(w, r),
		Data:        data,
	}
	h.jsonOK(w, resp)
}

// pageError answers a failed page load. A gateway 401 has already ended the
// session, so the browser is sent to the login page.
func (h *Handlers) pageError(w http.ResponseWriter, r *http.Request, err error) {
	if views.IsAuthError(err) {
		http.Redirect(w, r, views.PageLogin, http.StatusSeeOther)
		return
	}
	h.jsonError(w, views.ErrorMessage(err), statusFor(err))
}

// localPath accepts only paths on this console. Browsers read `/\host` like
// "//host", so a slash or backslash after the leading slash is refused.
func localPath(p string) bool {
	if !strings.HasPrefix(p, "/") {
		return false
	}
	if len(p) > 1 && (p[1] == '/' || p[1] == '\\') {
		return false
	}
	return !strings.ContainsAny(p, "\r\n")
}

// respond finishes a mutation. With a ?next= target the notifications become
// flashes and the browser is redirected; otherwise they are returned inline.
func (h *Handlers) respond(w http.ResponseWriter, r *http.Request, n *flashNotifier, data any, err error) {
	items := n.all()
	if next := r.URL.Query().Get("next"); localPath(next) {
		h.saveFlashes(w, r, items)
		if views.IsAuthError(err) {
			next = views.PageLogin
		}
		http.Redirect(w, r, next, http.StatusSeeOther)
		return
	}

	resp := actionResponse{OK: err == nil, Notifications: items, Data: data}
	if err == nil {
		h.jsonOK(w, resp)
		return
	}
	var verr *srtgw.ValidationError
	if errors.As(err, &verr) {
		for _, f := range verr.Fields {
			resp.Errors = append(resp.Errors, fieldError{Field: f.Field, Message: f.Message})
		}
	}
	h.jsonStatus(w, resp, statusFor(err))
}

// statusFor maps a console error onto the status returned to the browser.
func statusFor(err error) int {
	var (
		verr   *srtgw.ValidationError
		apiErr *srtgw.APIError
	)
	switch {
	case views.IsAuthError(err):
		return http.StatusUnauthorized
	case errors.As(err, &verr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, views.ErrNotBackupFile):
		return http.StatusBadRequest
	case errors.As(err, &apiErr) && apiErr.StatusCode >= 400 && apiErr.StatusCode < 500:
		return apiErr.StatusCode
	}
	return http.StatusBadGateway
}

func idParam(r *http.Request, name string) srtgw.ID {
	return srtgw.ID(chi.URLParam(r, name))
}

func chiParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}
