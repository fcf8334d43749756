package platform

import (
	"fmt"
	"os/exec"
)

// ValidateDependencies checks the external binaries before any network
// work starts. The player is always required. The fallback downloader is
// required in manga mode, where background fill and the proxy's lazy
// fetch depend on it; for streaming it only backs up the HTTP client, so
// a missing tool is just a warning.
func ValidateDependencies(player, fallbackTool string, mangaMode bool) error {
	if _, err := exec.LookPath(player); err != nil {
		return fmt.Errorf("player '%s' not found in PATH; install mpv or set ANV_PLAYER", player)
	}

	if _, err := exec.LookPath(fallbackTool); err != nil {
		if mangaMode {
			return fmt.Errorf("required dependency '%s' not found in PATH", fallbackTool)
		}
		fmt.Printf("Info: %s not found. Download fallback will be disabled.\n", fallbackTool)
	}

	return nil
}
