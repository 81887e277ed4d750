package startup

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/thatsimonsguy/climate-controller/internal/config"
)

type ServicePaths struct {
	BootScript     string
	BootService    string
	MainService    string
	User           string
	WorkingDir     string
	ExecCommand    string
	RuntimeEnvFile string
}

// WriteStartupScript writes a script that drives every relay line to its
// inactive level at boot, before the controller runs.
func WriteStartupScript(relays []config.Relay, path string) error {
	var lines []string
	lines = append(lines, "#!/bin/bash", "", "# Climate relay lines inactive at boot", "")

	for _, r := range relays {
		level := 0
		if !r.ActiveHigh {
			level = 1
		}
		lines = append(lines, fmt.Sprintf("# %s", r.Entity))
		lines = append(lines, fmt.Sprintf("gpioset %s %d=%d", r.Chip, r.Line, level))
		lines = append(lines, "")
	}

	contents := strings.Join(lines, "\n") + "\n"
	return os.WriteFile(path, []byte(contents), 0755)
}

func InstallStartupService(p ServicePaths) error {
	unitContents := fmt.Sprintf(`[Unit]
Description=Set climate relays inactive at boot
After=network.target

[Service]
Type=oneshot
Environment=PATH=/usr/local/bin:/usr/bin:/bin
ExecStart=%s
RemainAfterExit=true

[Install]
WantedBy=multi-user.target
`, p.BootScript)

	return os.WriteFile(p.BootService, []byte(unitContents), 0644)
}

func InstallControllerService(p ServicePaths) error {
	bootUnit := filepath.Base(p.BootService)

	env := ""
	if p.RuntimeEnvFile != "" {
		env = fmt.Sprintf("EnvironmentFile=%s\n", p.RuntimeEnvFile)
	}

	unit := fmt.Sprintf(`[Unit]
Description=Climate controller main service
After=%s network-online.target
Wants=%s

[Service]
Type=simple
User=%s
WorkingDirectory=%s
%sExecStart=%s
Restart=on-failure
RestartSec=5s

[Install]
WantedBy=multi-user.target
`, bootUnit, bootUnit, p.User, p.WorkingDir, env, p.ExecCommand)

	return os.WriteFile(p.MainService, []byte(unit), 0644)
}
