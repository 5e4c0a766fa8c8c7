package db

import (
	"fmt"
	"io"
	"text/tabwriter"
)

// PrintLatestCLI writes the latest recorded setpoints for every zone.
func PrintLatestCLI(dbPath string, w io.Writer) error {
	dbConn, err := Open(dbPath)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	records, err := GetLatestSetpoints(dbConn)
	if err != nil {
		return err
	}
	printRecords(w, records)
	return nil
}

// PrintHistoryCLI writes up to limit history rows for a zone, newest first.
func PrintHistoryCLI(dbPath, zone string, limit int, w io.Writer) error {
	dbConn, err := Open(dbPath)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	records, err := GetSetpointHistory(dbConn, zone, limit)
	if err != nil {
		return err
	}
	printRecords(w, records)
	return nil
}

func printRecords(w io.Writer, records []SetpointRecord) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ZONE\tRECORDED\tNOW\t+30M\t+60M")
	for _, r := range records {
		if !r.HasData {
			fmt.Fprintf(tw, "%s\t%s\t-\t-\t-\n", r.Zone, r.RecordedAt.Format("2006-01-02 15:04:05"))
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%.1f\t%.1f\t%.1f\n", r.Zone, r.RecordedAt.Format("2006-01-02 15:04:05"), r.Now, r.In30, r.In60)
	}
	tw.Flush()
}
