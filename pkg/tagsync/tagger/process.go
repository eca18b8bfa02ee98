package tagger

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/ianaindex"
	"golang.org/x/text/transform"

	"github.com/cognicore/tagsync/pkg/tagsync/internalerr"
)

const (
	beginMarker = "<tagsync-begin>"
	endMarker   = "<tagsync-end>"
	padToken    = "."

	// DefaultPadding is the number of filler tokens written after each batch so
	// the tagger's lookahead releases the end marker.
	DefaultPadding = 16

	stopTimeout = 2 * time.Second
	stderrLimit = 4096
)

// RequiredArguments are appended to the configured flags when missing: the
// batch markers rely on SGML passthrough and parsing relies on token+lemma
// columns.
var RequiredArguments = []string{"-sgml", "-token", "-lemma"}

// Process is a Tagger backed by the tree-tagger executable.
type Process struct {
	mu        sync.Mutex
	exe       string
	args      []string
	model     string
	modelFile string
	enc       encoding.Encoding
	padding   int
	logger    *slog.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	stderr *tailBuffer
}

// Option configures a Process.
type Option func(*Process)

// WithExecutable overrides the executable path derived from the home directory.
func WithExecutable(path string) Option {
	return func(p *Process) { p.exe = path }
}

// WithPadding sets the number of filler tokens written after each batch.
func WithPadding(n int) Option {
	return func(p *Process) {
		if n >= 0 {
			p.padding = n
		}
	}
}

// WithLogger sets the logger used for process lifecycle events.
func WithLogger(l *slog.Logger) Option {
	return func(p *Process) { p.logger = l }
}

// NewProcess creates a tagger for the installation at home. The process is
// started lazily by the first Process call.
func NewProcess(home string, opts ...Option) *Process {
	p := &Process{
		exe:     filepath.Join(home, "bin", "tree-tagger"),
		args:    slices.Clone(RequiredArguments),
		padding: DefaultPadding,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Model returns the current model identifier.
func (p *Process) Model() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.model
}

// Arguments returns the effective command-line flags.
func (p *Process) Arguments() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.args)
}

// SetModel implements Tagger. A changed model stops the running process; the
// next batch starts a fresh one.
func (p *Process) SetModel(model string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if model == p.model {
		return nil
	}
	file, encName, err := splitModel(model)
	if err != nil {
		return err
	}
	enc, err := ianaindex.IANA.Encoding(encName)
	if err != nil || enc == nil {
		return internalerr.Configf("model.encoding", "unsupported encoding %q", encName)
	}

	p.stop()
	p.model = model
	p.modelFile = file
	p.enc = enc
	return nil
}

// SetArguments implements Tagger.
func (p *Process) SetArguments(args []string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	next, added := withRequired(args)
	if len(added) > 0 {
		p.logger.Debug("Added required tagger arguments", "added", added, "args", next)
	}
	if slices.Equal(next, p.args) {
		return
	}
	p.stop()
	p.args = next
}

// Process implements Tagger. Any failure kills the process so the next call
// starts from a clean state. A canceled ctx is returned as ctx.Err(), not as a
// TaggerProcessError.
func (p *Process) Process(ctx context.Context, tokens []string) ([]Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	results := make([]Result, len(tokens))
	var sent []int
	lines := make([]string, 0, len(tokens))
	for i, tok := range tokens {
		line := sanitize(tok)
		if line == "" {
			continue
		}
		sent = append(sent, i)
		lines = append(lines, line)
	}
	if len(sent) == 0 {
		return results, nil
	}

	if err := p.ensureStarted(); err != nil {
		return nil, err
	}

	got, err := p.exchange(ctx, lines)
	if err != nil {
		stderr := p.stderr
		// stop waits for the process, which also drains its stderr
		p.stop()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return nil, &internalerr.TaggerProcessError{Op: "process", Err: err}
	}
	if len(got) != len(sent) {
		p.stop()
		return nil, &internalerr.TaggerProcessError{
			Op:  "process",
			Err: fmt.Errorf("sent %d tokens, received %d results", len(sent), len(got)),
		}
	}
	for j, i := range sent {
		results[i] = got[j]
	}
	return results, nil
}

// Close implements Tagger.
func (p *Process) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stop()
	return nil
}

func (p *Process) ensureStarted() error {
	if p.cmd != nil {
		return nil
	}
	if p.modelFile == "" {
		return &internalerr.TaggerProcessError{Op: "start", Err: errors.New("no model set")}
	}

	args := append(slices.Clone(p.args), p.modelFile)
	cmd := exec.Command(p.exe, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return &internalerr.TaggerProcessError{Op: "start", Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return &internalerr.TaggerProcessError{Op: "start", Err: err}
	}
	stderr := &tailBuffer{limit: stderrLimit}
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return &internalerr.TaggerProcessError{Op: "start", Err: err}
	}

	p.cmd = cmd
	p.stdin = stdin
	p.stdout = bufio.NewReader(transform.NewReader(stdout, p.enc.NewDecoder()))
	p.stderr = stderr
	p.logger.Debug("Started tagger process", "exe", p.exe, "args", args, "pid", cmd.Process.Pid)
	return nil
}

// exchange writes one batch and reads back the lines between the markers.
// Writing happens on its own goroutine so a large batch cannot deadlock on a
// full output pipe.
func (p *Process) exchange(ctx context.Context, lines []string) ([]Result, error) {
	payload, err := p.encodeBatch(lines)
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}

	writeErr := make(chan error, 1)
	go func() {
		_, err := p.stdin.Write(payload)
		writeErr <- err
	}()

	done := make(chan struct{})
	defer close(done)
	cmd := p.cmd
	go func() {
		select {
		case <-ctx.Done():
			_ = cmd.Process.Kill()
		case <-done:
		}
	}()

	results := make([]Result, 0, len(lines))
	begun := false
	for {
		line, err := p.stdout.ReadString('\n')
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			select {
			case werr := <-writeErr:
				if werr != nil {
					err = werr
				}
			default:
			}
			return nil, err
		}
		line = strings.TrimRight(line, "\r\n")

		if !begun {
			// leftovers from the previous batch's padding
			begun = line == beginMarker
			continue
		}
		if line == endMarker {
			break
		}
		results = append(results, parseLine(line))
	}

	if err := <-writeErr; err != nil {
		return nil, err
	}
	return results, nil
}

func (p *Process) encodeBatch(lines []string) ([]byte, error) {
	var b strings.Builder
	b.WriteString(beginMarker)
	b.WriteByte('\n')
	for _, l := range lines {
		b.WriteString(l)
		b.WriteByte('\n')
	}
	b.WriteString(endMarker)
	b.WriteByte('\n')
	for i := 0; i < p.padding; i++ {
		b.WriteString(padToken)
		b.WriteByte('\n')
	}
	enc := encoding.ReplaceUnsupported(p.enc.NewEncoder())
	out, err := enc.String(b.String())
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}

// stop terminates the running process, if any. Callers hold p.mu.
func (p *Process) stop() {
	if p.cmd == nil {
		return
	}
	// the tagger exits on end of input
	_ = p.stdin.Close()
	exited := make(chan struct{})
	cmd := p.cmd
	go func() {
		_ = cmd.Wait()
		close(exited)
	}()
	select {
	case <-exited:
	case <-time.After(stopTimeout):
		_ = cmd.Process.Kill()
		<-exited
	}
	p.logger.Debug("Stopped tagger process", "pid", cmd.Process.Pid)
	p.cmd = nil
	p.stdin = nil
	p.stdout = nil
}

// parseLine reads "token\ttag\tlemma". Lines without a tab are SGML
// passthrough and carry no analysis.
func parseLine(line string) Result {
	fields := strings.Split(line, "\t")
	if len(fields) < 2 {
		return Result{}
	}
	r := Result{Tag: fields[1]}
	if len(fields) >= 3 && fields[2] != UnknownLemma {
		r.Lemma = StringPtr(fields[2])
	}
	return r
}

// sanitize keeps one token per line.
func sanitize(token string) string {
	return strings.TrimSpace(strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', '\t':
			return ' '
		}
		return r
	}, token))
}

func splitModel(model string) (file, enc string, err error) {
	i := strings.LastIndex(model, ":")
	if i <= 0 || i == len(model)-1 {
		return "", "", internalerr.Configf("model", "identifier %q is not <file>:<encoding>", model)
	}
	return model[:i], model[i+1:], nil
}

// withRequired appends the missing RequiredArguments to args and reports
// which ones it added.
func withRequired(args []string) (out, added []string) {
	out = slices.Clone(args)
	for _, req := range RequiredArguments {
		if !slices.Contains(out, req) {
			out = append(out, req)
			added = append(added, req)
		}
	}
	return out, added
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (t *tailBuffer) Write(b []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf = append(t.buf, b...)
	if over := len(t.buf) - t.limit; over > 0 {
		t.buf = t.buf[over:]
	}
	return len(b), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(t.buf)
}
