package db

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/thatsimonsguy/climate-controller/internal/model"
)

func ListEntitiesCLI(dbPath string, w io.Writer) error {
	conn, err := Open(dbPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	records, err := GetEntityStates(conn)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ENTITY\tVALUE\tAVAILABLE\tUPDATED")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%v\t%s\n", r.EntityID, r.State.Value, r.State.Available, r.UpdatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func SetEntityStateCLI(dbPath, entityID, value string) error {
	if entityID == "" {
		return fmt.Errorf("entity id is required")
	}
	conn, err := Open(dbPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	return UpsertEntityState(conn, entityID, model.NewEntityState(value), time.Now())
}

func ListCommandsCLI(dbPath string, w io.Writer) error {
	conn, err := Open(dbPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	records, err := GetUnitCommands(conn)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "UNIT\tDEVICE\tCOMMAND\tEMITTED")
	for _, r := range records {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.Unit, r.Device, describe(r.Command), r.EmittedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

// ShowCommandCLI prints the last accepted command of one unit.
func ShowCommandCLI(dbPath, unit string, w io.Writer) error {
	if unit == "" {
		return fmt.Errorf("unit name is required")
	}
	conn, err := Open(dbPath)
	if err != nil {
		return err
	}
	defer conn.Close()

	rec, err := GetUnitCommand(conn, unit)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "unit:    %s\n", rec.Unit)
	fmt.Fprintf(w, "device:  %s\n", rec.Device)
	fmt.Fprintf(w, "command: %s\n", describe(rec.Command))
	fmt.Fprintf(w, "emitted: %s\n", rec.EmittedAt.Format(time.RFC3339))
	return nil
}

func describe(c model.Command) string {
	if c.Kind == model.DeviceSwitch {
		if c.On {
			return "on"
		}
		return "off"
	}
	return fmt.Sprintf("%.1f %s/%s", c.Setpoint, c.HVACMode, c.PresetMode)
}
