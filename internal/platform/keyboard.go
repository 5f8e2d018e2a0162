package platform

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"time"
)

// ErrKeyboardUnsupported is returned on platforms without an on-screen
// keyboard the bridge can drive.
var ErrKeyboardUnsupported = errors.New("virtual keyboard not supported on this platform")

// Keyboard toggles the OS virtual keyboard.
type Keyboard interface {
	Toggle(ctx context.Context, visible bool) error
}

// NewKeyboard returns the keyboard toggler for the current OS.
func NewKeyboard() Keyboard {
	return &execKeyboard{goos: runtime.GOOS}
}

type execKeyboard struct {
	goos string
}

func (k *execKeyboard) Toggle(ctx context.Context, visible bool) error {
	switch k.goos {
	case "windows":
		return k.toggleWindows(ctx, visible)
	case "darwin":
		// No touchscreen Macs; nothing sensible to pop up.
		return ErrKeyboardUnsupported
	default:
		return k.toggleLinux(ctx, visible)
	}
}

func (k *execKeyboard) toggleWindows(ctx context.Context, visible bool) error {
	// TabTip lingers in the background on Windows 11; kill before relaunch
	// so the show request actually brings it to the front.
	_ = exec.CommandContext(ctx, "taskkill", "/IM", "TabTip.exe", "/F").Run()

	if !visible {
		_ = exec.CommandContext(ctx, "taskkill", "/IM", "osk.exe", "/F").Run()
		return nil
	}

	time.Sleep(300 * time.Millisecond)

	programFiles := os.Getenv("ProgramFiles")
	if programFiles == "" {
		programFiles = `C:\Program Files`
	}
	tabtip := filepath.Join(programFiles, "Common Files", "microsoft shared", "ink", "TabTip.exe")
	if _, err := os.Stat(tabtip); err == nil {
		if err := exec.CommandContext(ctx, tabtip).Start(); err != nil {
			return fmt.Errorf("launching touch keyboard: %w", err)
		}
		return nil
	}

	// Legacy on-screen keyboard as fallback.
	if err := exec.CommandContext(ctx, "osk.exe").Start(); err != nil {
		return fmt.Errorf("launching on-screen keyboard: %w", err)
	}
	return nil
}

func (k *execKeyboard) toggleLinux(ctx context.Context, visible bool) error {
	if visible {
		if err := exec.CommandContext(ctx, "onboard").Start(); err != nil {
			return fmt.Errorf("launching onboard: %w", err)
		}
		return nil
	}
	_ = exec.CommandContext(ctx, "pkill", "onboard").Run()
	return nil
}
