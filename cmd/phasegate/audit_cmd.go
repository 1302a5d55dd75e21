package main

import (
	"flag"
	"fmt"
)

func cmdAudit(args []string) int {
	if len(args) < 1 || args[0] != "list" {
		return usageError("audit requires the list subcommand")
	}

	var (
		root   string
		wave   int
		asJSON bool
	)
	fs := flag.NewFlagSet("audit list", flag.ContinueOnError)
	fs.StringVar(&root, "root", ".", "Workspace root directory")
	fs.IntVar(&wave, "wave", -1, "Wave number")
	fs.BoolVar(&asJSON, "json", false, "Machine-readable output")
	if err := fs.Parse(args[1:]); err != nil {
		return exitUsage
	}
	if wave < 0 {
		return usageError("audit list requires --wave")
	}

	d, err := bootstrap(root, false)
	if err != nil {
		return fail("%v", err)
	}
	defer d.close()

	if d.auditLog == nil {
		return fail("audit history is unavailable")
	}

	events, err := d.auditLog.List(wave)
	if err != nil {
		return fail("failed to list audit events: %v", err)
	}

	if asJSON {
		return printJSON(events)
	}

	if len(events) == 0 {
		fmt.Printf("No recorded transitions for wave %d\n", wave)
		return exitOK
	}
	fmt.Printf("Wave %d transitions:\n", wave)
	for _, ev := range events {
		line := fmt.Sprintf("  %s  %-16s %-19s", ev.CreatedAt.Format("2006-01-02 15:04:05"), ev.PhaseName, ev.Action)
		if ev.Reason != "" {
			line += "  " + ev.Reason
		}
		fmt.Println(line)
	}
	return exitOK
}
