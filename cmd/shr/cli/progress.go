// Copyright 2026 The Shrlink Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/x/ansi"
	"github.com/dustin/go-humanize"
	"golang.org/x/term"
)

// progressBarWidth is the bar's width in cells, excluding the label
// and byte counts.
const progressBarWidth = 30

// ProgressBar redraws a one-line byte-count bar in place on a terminal.
// When the destination is not a terminal it draws nothing, so piped
// output carries only the status lines. Not safe for concurrent use.
type ProgressBar struct {
	w           io.Writer
	interactive bool
	label       string
	total       int64
	done        int64
	drawn       int // last drawn whole percent, -1 before the first draw
	bar         progress.Model
}

// NewProgressBar returns a bar for total bytes labeled label, drawing
// to w only if w is a terminal.
func NewProgressBar(w io.Writer, label string, total int64) *ProgressBar {
	file, ok := w.(*os.File)
	return newProgressBar(w, label, total, ok && term.IsTerminal(int(file.Fd())))
}

func newProgressBar(w io.Writer, label string, total int64, interactive bool) *ProgressBar {
	return &ProgressBar{
		w:           w,
		interactive: interactive,
		label:       label,
		total:       total,
		drawn:       -1,
		bar:         progress.New(progress.WithDefaultGradient(), progress.WithWidth(progressBarWidth)),
	}
}

// Add records n more bytes and redraws when the whole percentage
// changes.
func (p *ProgressBar) Add(n int64) {
	p.done += n
	if !p.interactive {
		return
	}
	whole := 100
	if p.total > 0 {
		whole = int(min(p.done, p.total) * 100 / p.total)
	}
	if whole != p.drawn {
		p.drawn = whole
		fmt.Fprintf(p.w, "\r%s %s %s / %s", progressStyle.Render(p.label), p.bar.ViewAs(p.fraction()),
			humanize.IBytes(uint64(p.done)), humanize.IBytes(uint64(p.total)))
	}
}

// Finish erases the bar so the next status line starts on a clean line.
func (p *ProgressBar) Finish() {
	if p.interactive && p.drawn >= 0 {
		fmt.Fprint(p.w, "\r"+ansi.EraseEntireLine)
	}
}

func (p *ProgressBar) fraction() float64 {
	if p.total <= 0 {
		return 1
	}
	return min(float64(p.done)/float64(p.total), 1)
}

// Reader returns r with every byte read counted on the bar.
func (p *ProgressBar) Reader(r io.Reader) io.Reader {
	return &progressReader{reader: r, bar: p}
}

// Writer returns w with every byte written counted on the bar.
func (p *ProgressBar) Writer(w io.Writer) io.Writer {
	return &progressWriter{writer: w, bar: p}
}

type progressReader struct {
	reader io.Reader
	bar    *ProgressBar
}

func (r *progressReader) Read(b []byte) (int, error) {
	n, err := r.reader.Read(b)
	r.bar.Add(int64(n))
	return n, err
}

type progressWriter struct {
	writer io.Writer
	bar    *ProgressBar
}

func (w *progressWriter) Write(b []byte) (int, error) {
	n, err := w.writer.Write(b)
	w.bar.Add(int64(n))
	return n, err
}
