package main

import (
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/mattn/go-isatty"

	"gapscan/internal/report"
	"gapscan/internal/services"
)

const (
	ansiBold  = "\033[1m"
	ansiReset = "\033[0m"
)

func renderCollectionReport(rep *report.CollectionGapReport, colorize bool) string {
	var b strings.Builder
	writeHeading(&b, "Collection gaps: "+rep.Library, colorize)
	writeHeader(&b, rep.Header)

	if len(rep.Collections) == 0 {
		b.WriteString("No incomplete collections\n")
	} else {
		rows := make([][]string, 0, len(rep.Collections))
		for _, gap := range rep.Collections {
			missing := make([]string, 0, len(gap.Missing))
			for _, m := range gap.Missing {
				missing = append(missing, movieLabel(m))
			}
			rows = append(rows, []string{
				gap.Name,
				fmt.Sprintf("%d/%d", gap.OwnedMovies, gap.TotalMovies),
				fmt.Sprintf("%.0f%%", gap.CompletionPercent()),
				strings.Join(missing, "\n"),
			})
		}
		b.WriteString(renderTable([]string{"Collection", "Owned", "Complete", "Missing"}, rows,
			[]columnAlignment{alignLeft, alignRight, alignRight, alignLeft}))
		b.WriteString("\n")
	}

	s := rep.Summary
	fmt.Fprintf(&b, "Movies owned: %d (%d in collections)\n", s.TotalOwned, s.OwnedInCollections)
	fmt.Fprintf(&b, "Collections: %d analyzed, %d complete, %d with gaps\n", s.CollectionsAnalyzed, s.CompleteCollections, s.CollectionsWithGaps)
	fmt.Fprintf(&b, "Missing movies: %d (%.1f%% complete)\n", s.TotalMissing, s.CompletionPercent)
	writeStats(&b, rep.Stats)
	writeFailures(&b, rep.Failures, colorize)
	return b.String()
}

func renderShowReport(rep *report.ShowGapReport, colorize bool) string {
	var b strings.Builder
	writeHeading(&b, "Episode gaps: "+rep.Library, colorize)
	writeHeader(&b, rep.Header)

	if len(rep.Shows) == 0 {
		b.WriteString("No incomplete shows\n")
	} else {
		rows := make([][]string, 0, len(rep.Shows))
		for _, gap := range rep.Shows {
			seasons := make([]string, 0, len(gap.Seasons))
			for _, season := range gap.Seasons {
				codes := make([]string, 0, len(season.Missing))
				for _, m := range season.Missing {
					codes = append(codes, m.Code)
				}
				seasons = append(seasons, strings.Join(codes, " "))
			}
			rows = append(rows, []string{
				gap.Title,
				yesNo(gap.Ended),
				fmt.Sprintf("%d/%d", gap.OwnedEpisodes, gap.TotalEpisodes),
				strconv.Itoa(gap.MissingCount()),
				strings.Join(seasons, "\n"),
			})
		}
		b.WriteString(renderTable([]string{"Show", "Ended", "Owned", "Missing", "Episodes"}, rows,
			[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft}))
		b.WriteString("\n")
	}

	s := rep.Summary
	fmt.Fprintf(&b, "Shows: %d in library, %d analyzed, %d complete, %d with gaps\n", s.TotalShows, s.ShowsAnalyzed, s.CompleteShows, s.ShowsWithGaps)
	fmt.Fprintf(&b, "Missing episodes: %d (%.1f%% complete)\n", s.TotalMissing, s.CompletionPercent)
	writeStats(&b, rep.Stats)
	writeFailures(&b, rep.Failures, colorize)
	return b.String()
}

func writeHeader(b *strings.Builder, h report.Header) {
	fmt.Fprintf(b, "As of %s, scan %s\n", h.AsOf.Format("2006-01-02"), h.ScanID)
	if h.Partial {
		fmt.Fprintf(b, "PARTIAL: scan interrupted after %d of %d items\n", h.Processed, h.Total)
	}
}

func writeStats(b *strings.Builder, stats *services.ScanStats) {
	if stats == nil {
		return
	}
	if total := stats.TotalRequests(); total > 0 {
		parts := make([]string, 0, len(stats.Requests))
		for _, key := range slices.Sorted(maps.Keys(stats.Requests)) {
			parts = append(parts, fmt.Sprintf("%s %d", key, stats.Requests[key]))
		}
		fmt.Fprintf(b, "Upstream requests: %d (%s)\n", total, strings.Join(parts, ", "))
	}
	for _, catalog := range slices.Sorted(maps.Keys(stats.Cache)) {
		c := stats.Cache[catalog]
		fmt.Fprintf(b, "Cache %s: %.0f%% hit rate (%d hits, %d misses)\n", catalog, c.HitRate, c.Hits, c.Misses)
	}
	fmt.Fprintf(b, "Elapsed: %.1fs\n", stats.ElapsedSeconds)
}

func writeFailures(b *strings.Builder, failures []report.Failure, colorize bool) {
	if len(failures) == 0 {
		return
	}
	b.WriteString("\n")
	writeHeading(b, fmt.Sprintf("Not checked (%d)", len(failures)), colorize)
	rows := make([][]string, 0, len(failures))
	for _, f := range failures {
		label := f.ItemID
		if f.Title != "" && f.Title != f.ItemID {
			label = f.Title + " (" + f.ItemID + ")"
		}
		rows = append(rows, []string{label, f.Stage, string(f.Kind), f.Message})
	}
	b.WriteString(renderTable([]string{"Item", "Stage", "Kind", "Reason"}, rows, nil))
	b.WriteString("\n")
}

func writeHeading(b *strings.Builder, title string, colorize bool) {
	if colorize {
		title = ansiBold + title + ansiReset
	}
	b.WriteString(title + "\n")
}

func movieLabel(m report.MissingMovie) string {
	if m.Year > 0 {
		return fmt.Sprintf("%s (%d)", m.Title, m.Year)
	}
	return m.Title
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
