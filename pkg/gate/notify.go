package gate

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

const notifyTimeout = 5 * time.Second

// DesktopNotifier returns a Notifier for the host desktop, or nil when the
// platform has no supported notification command.
func DesktopNotifier() Notifier {
	switch runtime.GOOS {
	case "darwin":
		return func(title, message string) bool {
			script := fmt.Sprintf(`display notification "%s" with title "%s" sound name "Glass"`,
				appleScriptEscape(message), appleScriptEscape(title))
			return runNotify("osascript", "-e", script)
		}
	case "linux":
		if _, err := exec.LookPath("notify-send"); err != nil {
			return nil
		}
		return func(title, message string) bool {
			return runNotify("notify-send", title, message)
		}
	}
	return nil
}

func runNotify(name string, args ...string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
	defer cancel()
	return exec.CommandContext(ctx, name, args...).Run() == nil
}

func appleScriptEscape(s string) string {
	return strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(s)
}
