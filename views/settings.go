package views

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"

	"github.com/visual-alchemy/blackgate-project/srtgw"
)

// BackupExt is the only file extension Restore accepts.
const BackupExt = ".backup"

var ErrNotBackupFile = errors.New("You can only upload .backup files!")

// SettingsView covers backup export and restore.
type SettingsView struct {
	deps *Deps
	n    Notifier
}

func NewSettingsView(d *Deps, n Notifier) *SettingsView {
	return &SettingsView{deps: d, n: orNop(n)}
}

// DownloadBackup opens the binary backup link.
func (v *SettingsView) DownloadBackup(ctx context.Context, o srtgw.Opener) error {
	if err := v.deps.Client.DownloadBackup(ctx, o); err != nil {
		notifyFailure(v.n, "Failed to download backup", err)
		return err
	}
	v.n.Notify(Notification{Level: LevelSuccess, Message: "Backup download started"})
	return nil
}

// Download opens the JSON route export link.
func (v *SettingsView) Download(ctx context.Context, o srtgw.Opener) error {
	if err := v.deps.Client.Download(ctx, o); err != nil {
		notifyFailure(v.n, "Failed to export routes", err)
		return err
	}
	v.n.Notify(Notification{Level: LevelSuccess, Message: "Routes export started"})
	return nil
}

// Restore uploads a .backup file. Other files are rejected without a request.
func (v *SettingsView) Restore(ctx context.Context, filename string, r io.Reader) (srtgw.Result, error) {
	if !strings.EqualFold(filepath.Ext(filename), BackupExt) {
		v.n.Notify(Notification{Level: LevelError, Message: ErrNotBackupFile.Error()})
		return nil, ErrNotBackupFile
	}
	res, err := v.deps.Client.Restore(ctx, r)
	if err != nil {
		if !IsAuthError(err) {
			msg := srtgw.RestoreFailedMessage
			var apiErr *srtgw.APIError
			if errors.As(err, &apiErr) && apiErr.Message != "" {
				msg = apiErr.Message
			}
			v.n.Notify(Notification{Level: LevelError, Message: msg})
		}
		return nil, err
	}

	msg, _ := res["message"].(string)
	if msg == "" {
		msg = filename + " backup restored successfully"
	}
	v.deps.logf("views: backup %s restored by %s", filename, v.deps.actor())
	v.deps.emitter().EmitBackupRestored(filename, v.deps.actor())
	v.n.Notify(Notification{Level: LevelSuccess, Message: msg})
	return res, nil
}
