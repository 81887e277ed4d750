package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/thatsimonsguy/climate-controller/db"
	"github.com/thatsimonsguy/climate-controller/internal/config"
	"github.com/thatsimonsguy/climate-controller/system/startup"
)

func main() {
	DebugCLI()
}

func DebugCLI() {
	var dbPath, command, entityID, value, unit, configFile string
	var paths startup.ServicePaths
	flag.StringVar(&dbPath, "db", "data/climate.db", "Path to the SQLite database file")
	flag.StringVar(&command, "cmd", "", "Command to run: list-entities, set-entity, list-commands, show-command, install-service")
	flag.StringVar(&unit, "unit", "", "Unit name for show-command")
	flag.StringVar(&entityID, "entity", "", "Entity ID for set-entity")
	flag.StringVar(&value, "value", "", "Raw state value for set-entity")
	flag.StringVar(&configFile, "config", "/etc/climate-controller/config.yaml", "Climate config file for install-service")
	flag.StringVar(&paths.BootScript, "boot-script", "/usr/local/bin/climate-relays.sh", "Relay boot script path")
	flag.StringVar(&paths.BootService, "boot-service", "/etc/systemd/system/climate-relays.service", "Relay boot unit path")
	flag.StringVar(&paths.MainService, "main-service", "/etc/systemd/system/climate-controller.service", "Controller unit path")
	flag.StringVar(&paths.User, "user", "climate", "User the controller runs as")
	flag.StringVar(&paths.WorkingDir, "workdir", "/opt/climate-controller", "Controller working directory")
	flag.StringVar(&paths.ExecCommand, "exec", "/opt/climate-controller/climate-controller", "Controller command line")
	flag.StringVar(&paths.RuntimeEnvFile, "env-file", "", "Optional EnvironmentFile for the controller unit")
	help := flag.Bool("help", false, "Show help")
	flag.Parse()

	if *help || command == "" {
		fmt.Println("\nUsage of climate-debug:")
		fmt.Println("  -db string\tPath to the SQLite database file (default 'data/climate.db')")
		fmt.Println("  -cmd string\tCommand to run: list-entities, set-entity, list-commands, show-command, install-service")
		fmt.Println("  -unit string\tUnit name for show-command")
		fmt.Println("  -entity string\tEntity ID for set-entity")
		fmt.Println("  -value string\tRaw state value for set-entity")
		fmt.Println("  -config string\tClimate config file for install-service")
		fmt.Println("  -help\tShow this help message")
		os.Exit(0)
	}

	var err error
	switch command {
	case "list-entities":
		err = db.ListEntitiesCLI(dbPath, os.Stdout)
	case "set-entity":
		if entityID == "" {
			fmt.Println("Error: entity ID is required")
			os.Exit(1)
		}
		err = db.SetEntityStateCLI(dbPath, entityID, value)
	case "list-commands":
		err = db.ListCommandsCLI(dbPath, os.Stdout)
	case "show-command":
		err = db.ShowCommandCLI(dbPath, unit, os.Stdout)
	case "install-service":
		err = installService(configFile, paths)
	default:
		fmt.Println("Invalid command")
		os.Exit(1)
	}

	if err != nil {
		fmt.Printf("Command %s failed: %v\n", command, err)
		os.Exit(1)
	}
	fmt.Printf("Command %s completed successfully\n", command)
}

func installService(configFile string, paths startup.ServicePaths) error {
	climate, err := config.LoadClimate(configFile)
	if err != nil {
		return err
	}
	if err := startup.WriteStartupScript(climate.Relays, paths.BootScript); err != nil {
		return fmt.Errorf("write boot script: %w", err)
	}
	if err := startup.InstallStartupService(paths); err != nil {
		return fmt.Errorf("install boot service: %w", err)
	}
	if err := startup.InstallControllerService(paths); err != nil {
		return fmt.Errorf("install controller service: %w", err)
	}
	return nil
}
