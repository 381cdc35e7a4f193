package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/iconidentify/reelgrab/internal/domain"
)

// progressLine renders batch progress. On a terminal it redraws a single
// line; otherwise it prints one line per finished item.
type progressLine struct {
	w           io.Writer
	total       int
	interactive bool
	done        int
	width       int
}

func newProgressLine(w io.Writer, total int, interactive bool) *progressLine {
	return &progressLine{w: w, total: total, interactive: interactive}
}

// Item receives per-item progress from the batch orchestrator.
func (p *progressLine) Item(ev domain.ProgressEvent) {
	finished := ev.ItemStatus == domain.ItemStatusCompleted ||
		ev.ItemStatus == domain.ItemStatusFailed ||
		ev.ItemStatus == domain.ItemStatusCanceled

	if !p.interactive {
		if finished {
			p.done++
			fmt.Fprintln(p.w, itemLine(p.done, p.total, ev))
		}
		return
	}

	line := itemLine(p.done+1, p.total, ev)
	pad := ""
	if n := p.width - len(line); n > 0 {
		pad = strings.Repeat(" ", n)
	}
	fmt.Fprintf(p.w, "\r%s%s", line, pad)
	p.width = len(line)

	if finished {
		p.done++
		fmt.Fprintln(p.w)
		p.width = 0
	}
}

// Done ends an unfinished terminal line.
func (p *progressLine) Done() {
	if p.interactive && p.width > 0 {
		fmt.Fprintln(p.w)
		p.width = 0
	}
}

func itemLine(n, total int, ev domain.ProgressEvent) string {
	status := string(ev.ItemStatus)
	if status == "" {
		status = string(domain.ItemStatusDownloading)
	}
	return fmt.Sprintf("[%d/%d] %-12s %5.1f%%  batch %5.1f%%  %s",
		n, total, status, ev.ItemPercent, ev.BatchPercent, ev.ItemID)
}

func listingLine(i int, it domain.VideoDescriptor) string {
	title := it.Title
	if title == "" {
		title = it.ID
	}
	dur := ""
	if it.DurationSeconds > 0 {
		dur = " (" + (time.Duration(it.DurationSeconds * float64(time.Second))).Round(time.Second).String() + ")"
	}
	return fmt.Sprintf("%3d. %s%s  %s", i+1, title, dur, it.URL)
}

// summary reports the batch status line and, for local files, the bytes
// written.
func summary(res domain.BatchResult) string {
	var size uint64
	for _, it := range res.Items {
		if it.FilePath == "" {
			continue
		}
		if fi, err := os.Stat(it.FilePath); err == nil {
			size += uint64(fi.Size())
		}
	}
	if size == 0 {
		return res.Status
	}
	return fmt.Sprintf("%s, %s saved", res.Status, humanize.Bytes(size))
}
