// Package vcd writes Value Change Dump waveforms from kernel signal
// changes.
package vcd

import (
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/delaneyj/deltasim/bits"
	"github.com/delaneyj/deltasim/kernel"
	"github.com/pkg/errors"
	"github.com/valyala/quicktemplate"
)

const Version = "deltasim VCD writer 1.0"

// unboundedWidth is the declared width of signals without a bit limit.
const unboundedWidth = 64

type variable struct {
	scope string
	name  string
	width int
	dir   kernel.Direction
	code  string
}

// Writer implements kernel.Tracer. Definitions are written before the first
// value change, so every signal must be registered by then.
type Writer struct {
	dst       errWriter
	qw        *quicktemplate.Writer
	q         *quicktemplate.QWriter
	timescale kernel.Time
	date      string
	version   string

	vars    []*variable
	codes   map[int]string
	widths  map[string]int
	nextID  int
	started bool
	last    int64
	closed  bool
}

type Option func(*Writer)

// WithTimescale sets the unit of timestamps. Times are truncated to it.
func WithTimescale(t kernel.Time) Option {
	return func(w *Writer) {
		if t > 0 {
			w.timescale = t
		}
	}
}

func WithDate(date string) Option {
	return func(w *Writer) { w.date = date }
}

func WithVersion(v string) Option {
	return func(w *Writer) { w.version = v }
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(p)
	if err != nil {
		e.err = err
	}
	return n, err
}

func New(w io.Writer, opts ...Option) *Writer {
	vw := &Writer{
		timescale: kernel.NS,
		date:      time.Now().Format("2006-01-02 15:04:05"),
		version:   Version,
		codes:     map[int]string{},
		widths:    map[string]int{},
		last:      -1,
	}
	vw.dst.w = w
	for _, o := range opts {
		o(vw)
	}
	vw.qw = quicktemplate.AcquireWriter(&vw.dst)
	vw.q = vw.qw.N()
	return vw
}

// code returns the base-94 identifier of the n-th variable, starting at '!'.
func code(n int) string {
	const first, base = 33, 94
	if n == 0 {
		return string(rune(first))
	}
	var b []byte
	for n > 0 {
		b = append(b, byte(first+n%base))
		n /= base
	}
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
	return string(b)
}

func (w *Writer) Register(id int, scope, name string, width int, dir kernel.Direction) {
	if w.started {
		return
	}
	if width == bits.Unbounded {
		width = unboundedWidth
	}
	c, ok := w.codes[id]
	if !ok {
		c = code(w.nextID)
		w.nextID++
		w.codes[id] = c
		w.widths[c] = width
	}
	w.vars = append(w.vars, &variable{scope: scope, name: name, width: width, dir: dir, code: c})
}

func (w *Writer) Change(at kernel.Time, id int, v bits.Value) {
	if w.closed {
		return
	}
	c, ok := w.codes[id]
	if !ok {
		return
	}
	w.header()
	ts := int64(at / w.timescale)
	if ts > w.last {
		w.q.S("#")
		w.q.S(strconv.FormatInt(ts, 10))
		w.q.S("\n")
		w.last = ts
	}
	w.value(c, v)
}

func (w *Writer) value(c string, v bits.Value) {
	width := w.widths[c]
	if width == 1 {
		if v.Bit(0) == 1 {
			w.q.S("1")
		} else {
			w.q.S("0")
		}
		w.q.S(c)
		w.q.S("\n")
		return
	}
	w.q.S("b")
	w.q.S(v.Resize(width).Binary())
	w.q.S(" ")
	w.q.S(c)
	w.q.S("\n")
}

func (w *Writer) header() {
	if w.started {
		return
	}
	w.started = true
	q := w.q
	q.S("$date\n   ")
	q.S(w.date)
	q.S("\n$end\n$version\n   ")
	q.S(w.version)
	q.S("\n$end\n$timescale ")
	q.S(timescale(w.timescale))
	q.S(" $end\n")
	w.scopes()
	q.S("$enddefinitions $end\n$dumpvars\n")
	done := map[string]bool{}
	for _, v := range w.vars {
		if done[v.code] {
			continue
		}
		done[v.code] = true
		if v.width == 1 {
			q.S("x")
		} else {
			q.S("bx ")
		}
		q.S(v.code)
		q.S("\n")
	}
	q.S("$end\n")
}

// scopes writes nested $scope blocks for the sorted component paths.
func (w *Writer) scopes() {
	byScope := map[string][]*variable{}
	var paths []string
	for _, v := range w.vars {
		if _, ok := byScope[v.scope]; !ok {
			paths = append(paths, v.scope)
		}
		byScope[v.scope] = append(byScope[v.scope], v)
	}
	sort.Strings(paths)

	q := w.q
	var cur []string
	for _, p := range paths {
		parts := strings.Split(p, ".")
		common := 0
		for common < len(cur) && common < len(parts) && cur[common] == parts[common] {
			common++
		}
		for i := len(cur); i > common; i-- {
			q.S("$upscope $end\n")
		}
		for _, name := range parts[common:] {
			q.S("$scope module ")
			q.S(name)
			q.S(" $end\n")
		}
		cur = parts
		for _, v := range byScope[p] {
			kind := "reg"
			if v.dir == kernel.Input {
				kind = "wire"
			}
			q.S("$var ")
			q.S(kind)
			q.S(" ")
			q.D(v.width)
			q.S(" ")
			q.S(v.code)
			q.S(" ")
			q.S(v.name)
			q.S(" $end\n")
		}
	}
	for range cur {
		q.S("$upscope $end\n")
	}
}

func timescale(t kernel.Time) string {
	units := []struct {
		t    kernel.Time
		name string
	}{{kernel.S, "s"}, {kernel.MS, "ms"}, {kernel.US, "us"}, {kernel.NS, "ns"}, {kernel.PS, "ps"}, {kernel.FS, "fs"}}
	for _, u := range units {
		if t >= u.t && t%u.t == 0 {
			return strconv.FormatUint(uint64(t/u.t), 10) + " " + u.name
		}
	}
	return "1 ns"
}

// Close writes the definitions if nothing changed yet and releases the
// writer. It returns the first error of the underlying io.Writer.
func (w *Writer) Close() error {
	if w.closed {
		return w.dst.err
	}
	w.header()
	w.closed = true
	quicktemplate.ReleaseWriter(w.qw)
	w.qw, w.q = nil, nil
	return errors.Wrap(w.dst.err, "write vcd")
}
