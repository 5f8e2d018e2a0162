// Package platform wraps the OS-specific collaborators the bridge shells out
// to: desktop notifications, the virtual keyboard, and headless Chrome
// detection for the image render path. The implementation for the current OS
// is chosen once at startup.
package platform

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
)

// Notifier shows OS-level notifications.
type Notifier interface {
	Show(ctx context.Context, title, body string) error
}

// NewNotifier returns the notifier for the current OS.
func NewNotifier() Notifier {
	return &execNotifier{goos: runtime.GOOS}
}

type execNotifier struct {
	goos string
}

func (n *execNotifier) Show(ctx context.Context, title, body string) error {
	var cmd *exec.Cmd

	switch n.goos {
	case "darwin":
		script := fmt.Sprintf("display notification %q with title %q", body, title)
		cmd = exec.CommandContext(ctx, "osascript", "-e", script)
	case "windows":
		ps := fmt.Sprintf(
			`[System.Reflection.Assembly]::LoadWithPartialName("System.Windows.Forms") | Out-Null; `+
				`$n = New-Object System.Windows.Forms.NotifyIcon; `+
				`$n.Icon = [System.Drawing.SystemIcons]::Information; `+
				`$n.Visible = $true; `+
				`$n.ShowBalloonTip(5000, %q, %q, "Info"); `+
				`Start-Sleep -Seconds 6; $n.Dispose()`,
			title, body)
		cmd = exec.CommandContext(ctx, "powershell", "-Command", ps)
	default:
		cmd = exec.CommandContext(ctx, "notify-send", title, body)
	}

	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("showing notification: %w (%s)", err, out)
	}
	return nil
}
