// Command checkpoints lists persisted checkpoints and recent episodes.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/UoA-CARES/pyboy-environment/internal/curriculum"
	"github.com/UoA-CARES/pyboy-environment/internal/store"
)

func main() {
	dbPath := flag.String("db", getenv("DB_PATH", "./episodes.db"), "SQLite database path")
	episodes := flag.Int("episodes", 10, "number of recent episodes to show")
	flag.Parse()

	ctx := context.Background()
	db, err := store.Open(ctx, *dbPath)
	if err != nil {
		log.Fatal(err)
	}
	defer db.Close()

	if err := report(ctx, os.Stdout, db, *episodes, time.Now()); err != nil {
		log.Fatal(err)
	}
}

func report(ctx context.Context, out io.Writer, db *store.Store, episodes int, now time.Time) error {
	cps, err := db.ListCheckpoints(ctx)
	if err != nil {
		return err
	}
	reg := curriculum.NewRegistry(log.New(io.Discard, "", 0))
	reg.Restore(cps)

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "STAGE\tTASK\tSIZE\tSAVED\tPATH\n")
	for _, cp := range reg.Checkpoints() {
		if cp.IsInitial() {
			fmt.Fprintf(w, "%d\t%s\t-\t-\t(power-on)\n", cp.TaskIndex, cp.TaskName)
			continue
		}
		size := "missing"
		if fi, err := os.Stat(cp.Path); err == nil {
			size = humanize.Bytes(uint64(fi.Size()))
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", cp.TaskIndex, cp.TaskName, size, humanize.RelTime(cp.CreatedAt, now, "ago", "from now"), cp.Path)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s checkpoint records, %d stages reachable\n\n", humanize.Comma(int64(len(cps))), reg.Len())

	if episodes <= 0 {
		return nil
	}
	page, err := db.ListEpisodes(ctx, 1, episodes)
	if err != nil {
		return err
	}
	w = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "#\tSTAGES\tSTEPS\tREWARD\tOUTCOME\tSTARTED\n")
	for _, e := range page.Episodes {
		fmt.Fprintf(w, "%d\t%d->%d/%d\t%s\t%s\t%s\t%s\n",
			e.Number, e.StartIndex, e.FinalIndex, e.TaskCount,
			humanize.Comma(int64(e.Steps)),
			humanize.CommafWithDigits(e.TotalReward, 1),
			e.Outcome,
			humanize.RelTime(e.StartedAt, now, "ago", "from now"),
		)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "%s episodes recorded\n", humanize.Comma(int64(page.TotalCount)))
	return nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
