package www

import (
	"context"
	"net/http"

	"github.com/visual-alchemy/blackgate-project/srtgw"
	"github.com/visual-alchemy/blackgate-project/views"
)

const maxBackupUpload = 32 << 20

func (h *Handlers) handleSettings(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, r, "settings", map[string]any{
		"backup_ext": views.BackupExt,
		"api_url":    h.engine.Client().BaseURL(),
	})
}

// linkOpener captures the download link so the browser can open it.
type linkOpener struct {
	url string
}

func (o *linkOpener) Open(_ context.Context, url string) error {
	o.url = url
	return nil
}

func (h *Handlers) download(w http.ResponseWriter, r *http.Request, fn func(*views.SettingsView, context.Context, srtgw.Opener) error) {
	n := &flashNotifier{}
	o := &linkOpener{}
	err := fn(views.NewSettingsView(h.engine.Deps(), n), r.Context(), o)
	if err == nil && r.URL.Query().Get("redirect") != "" {
		http.Redirect(w, r, o.url, http.StatusSeeOther)
		return
	}
	var data any
	if o.url != "" {
		data = map[string]string{"download_url": o.url}
	}
	h.respond(w, r, n, data, err)
}

func (h *Handlers) handleBackupDownload(w http.ResponseWriter, r *http.Request) {
	h.download(w, r, (*views.SettingsView).DownloadBackup)
}

func (h *Handlers) handleExport(w http.ResponseWriter, r *http.Request) {
	h.download(w, r, (*views.SettingsView).Download)
}

func (h *Handlers) handleRestore(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBackupUpload)
	file, header, err := r.FormFile("file")
	if err != nil {
		h.jsonError(w, "missing backup file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	n := &flashNotifier{}
	res, err := views.NewSettingsView(h.engine.Deps(), n).Restore(r.Context(), header.Filename, file)
	h.respond(w, r, n, res, err)
}
