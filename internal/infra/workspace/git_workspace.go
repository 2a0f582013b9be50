// Package workspace drives per-project git checkouts through the git CLI.
package workspace

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"agent-hub/internal/domain/ports/adapter"
	"agent-hub/internal/infra/metrics"
)

var _ adapter.Workspace = (*GitWorkspace)(nil)

// transientMarkers identify git failures worth retrying.
var transientMarkers = []string{
	"index.lock",
	"another git process seems to be running",
	"unable to access",
	"failed to connect",
	"connection reset",
	"operation timed out",
}

const validationOutputTail = 1200

// waitDelay bounds how long a killed command may keep its output pipes open.
const waitDelay = 2 * time.Second

var unsafeDirChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

type Options struct {
	Root           string
	CommandTimeout time.Duration
	// Retries is the number of extra attempts for transient failures.
	Retries   int
	Remote    string
	UserName  string
	UserEmail string
}

// execResult is what one process run produced. ExitCode is -1 when the
// process never started.
type execResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

type execFunc func(ctx context.Context, dir, name string, args ...string) (execResult, error)

// GitWorkspace keeps one checkout per project under Root. Calls for the same
// project are serialized.
type GitWorkspace struct {
	opts  Options
	exec  execFunc
	sleep func(ctx context.Context, d time.Duration)
	locks sync.Map // project id -> *sync.Mutex
	log   *zerolog.Logger
}

func NewGitWorkspace(opts Options, logger *zerolog.Logger) (*GitWorkspace, error) {
	if opts.Root == "" {
		return nil, errors.New("workspace root is required")
	}
	root, err := filepath.Abs(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	opts.Root = root
	if opts.CommandTimeout <= 0 {
		opts.CommandTimeout = 60 * time.Second
	}
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.Remote == "" {
		opts.Remote = "origin"
	}
	if opts.UserName == "" {
		opts.UserName = "Agent Hub Bot"
	}
	if opts.UserEmail == "" {
		opts.UserEmail = "agent-hub@example.local"
	}
	l := logger.With().Str("component", "git_workspace").Logger()
	return &GitWorkspace{opts: opts, exec: runProcess, sleep: sleepCtx, log: &l}, nil
}

// Path is the checkout directory of a project.
func (w *GitWorkspace) Path(projectID string) string {
	return filepath.Join(w.opts.Root, "project-"+unsafeDirChars.ReplaceAllString(projectID, "_"))
}

func (w *GitWorkspace) lock(projectID string) func() {
	v, _ := w.locks.LoadOrStore(projectID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (w *GitWorkspace) EnsureDefaultBranch(ctx context.Context, repo adapter.RepoRef) error {
	defer w.lock(repo.ProjectID)()
	return w.prepare(ctx, repo)
}

func (w *GitWorkspace) CreateBranch(ctx context.Context, repo adapter.RepoRef, branch string) error {
	defer w.lock(repo.ProjectID)()
	dir := w.Path(repo.ProjectID)
	if _, err := w.git(ctx, "checkout", dir, true, "checkout", repo.DefaultBranch); err != nil {
		return err
	}
	// a branch left by an earlier failed attempt is recreated from scratch
	_, _ = w.git(ctx, "branch", dir, false, "branch", "-D", branch)
	_, err := w.git(ctx, "branch", dir, true, "checkout", "-b", branch)
	return err
}

func (w *GitWorkspace) Commit(ctx context.Context, repo adapter.RepoRef, branch, message string, files []adapter.FileChange) (string, error) {
	defer w.lock(repo.ProjectID)()
	dir := w.Path(repo.ProjectID)
	if _, err := w.git(ctx, "checkout", dir, true, "checkout", branch); err != nil {
		return "", err
	}
	for _, f := range files {
		rel, target, err := confine(dir, f.Path)
		if err != nil {
			return "", &adapter.WorkspaceError{Op: "write", Err: err}
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return "", &adapter.WorkspaceError{Op: "write", Err: err}
		}
		content := f.Content
		if !strings.HasSuffix(content, "\n") {
			content += "\n"
		}
		if err := os.WriteFile(target, []byte(content), 0o644); err != nil {
			return "", &adapter.WorkspaceError{Op: "write", Err: err}
		}
		if _, err := w.git(ctx, "add", dir, true, "add", "--", rel); err != nil {
			return "", err
		}
	}
	res, err := w.git(ctx, "commit", dir, false, "commit", "-m", message)
	if err != nil {
		return "", err
	}
	if res.ExitCode != 0 {
		out := strings.TrimSpace(res.Stdout + "\n" + res.Stderr)
		if !strings.Contains(strings.ToLower(out), "nothing to commit") {
			return "", &adapter.WorkspaceError{Op: "commit", Err: fmt.Errorf("commit on %s failed: %s", branch, out)}
		}
	}
	return w.head(ctx, dir)
}

// Validate runs command through the shell inside the checkout. A non-zero
// exit or a timeout is a failed result, not an error.
func (w *GitWorkspace) Validate(ctx context.Context, repo adapter.RepoRef, command string) (adapter.ValidationResult, error) {
	defer w.lock(repo.ProjectID)()
	cctx, cancel := context.WithTimeout(ctx, w.opts.CommandTimeout)
	defer cancel()

	res, err := w.exec(cctx, w.Path(repo.ProjectID), "sh", "-c", command)
	if errors.Is(cctx.Err(), context.DeadlineExceeded) {
		return adapter.ValidationResult{
			ExitCode: -1,
			Output:   fmt.Sprintf("validation command timed out after %s", w.opts.CommandTimeout),
		}, nil
	}
	if err != nil && res.ExitCode < 0 {
		return adapter.ValidationResult{}, &adapter.WorkspaceError{Op: "validate", Err: err}
	}
	out := lastBytes(strings.TrimSpace(strings.TrimSpace(res.Stdout)+"\n"+strings.TrimSpace(res.Stderr)), validationOutputTail)
	return adapter.ValidationResult{Passed: res.ExitCode == 0, ExitCode: res.ExitCode, Output: out}, nil
}

// Merge fast-forwards into when possible and falls back to a merge commit.
func (w *GitWorkspace) Merge(ctx context.Context, repo adapter.RepoRef, branch, into string) (string, error) {
	defer w.lock(repo.ProjectID)()
	dir := w.Path(repo.ProjectID)
	if _, err := w.git(ctx, "checkout", dir, true, "checkout", into); err != nil {
		return "", err
	}
	ff, err := w.git(ctx, "merge", dir, false, "merge", "--ff-only", branch)
	if err != nil {
		return "", err
	}
	if ff.ExitCode != 0 {
		if _, err := w.git(ctx, "merge", dir, true, "merge", "--no-ff", "-m", fmt.Sprintf("Merge %s [agent]", branch), branch); err != nil {
			_, _ = w.git(ctx, "merge", dir, false, "merge", "--abort")
			return "", err
		}
	}
	return w.head(ctx, dir)
}

func (w *GitWorkspace) Push(ctx context.Context, repo adapter.RepoRef, branch string) error {
	defer w.lock(repo.ProjectID)()
	_, err := w.git(ctx, "push", w.Path(repo.ProjectID), true, "push", w.opts.Remote, branch)
	return err
}

func (w *GitWorkspace) prepare(ctx context.Context, repo adapter.RepoRef) error {
	dir := w.Path(repo.ProjectID)
	if err := os.MkdirAll(w.opts.Root, 0o755); err != nil {
		return &adapter.WorkspaceError{Op: "prepare", Err: err}
	}
	switch _, err := os.Stat(dir); {
	case errors.Is(err, os.ErrNotExist):
		if _, err := w.git(ctx, "clone", w.opts.Root, true, "clone", normalizeRepoURL(repo.URL), dir); err != nil {
			return err
		}
	case err != nil:
		return &adapter.WorkspaceError{Op: "prepare", Err: err}
	default:
		if _, err := os.Stat(filepath.Join(dir, ".git")); err != nil {
			return &adapter.WorkspaceError{Op: "prepare", Err: fmt.Errorf("%s exists but is not a git repository", dir)}
		}
	}

	if _, err := w.git(ctx, "config", dir, true, "config", "user.name", w.opts.UserName); err != nil {
		return err
	}
	if _, err := w.git(ctx, "config", dir, true, "config", "user.email", w.opts.UserEmail); err != nil {
		return err
	}
	_, _ = w.git(ctx, "fetch", dir, false, "fetch", "--all", "--prune")

	res, err := w.git(ctx, "checkout", dir, false, "checkout", repo.DefaultBranch)
	if err != nil {
		return err
	}
	if res.ExitCode != 0 {
		if _, err := w.git(ctx, "checkout", dir, true, "checkout", "-b", repo.DefaultBranch, w.opts.Remote+"/"+repo.DefaultBranch); err != nil {
			return err
		}
	}
	_, _ = w.git(ctx, "pull", dir, false, "pull", "--ff-only", w.opts.Remote, repo.DefaultBranch)
	return nil
}

func (w *GitWorkspace) head(ctx context.Context, dir string) (string, error) {
	res, err := w.git(ctx, "rev-parse", dir, true, "rev-parse", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(res.Stdout), nil
}

// git runs one git command with a per-attempt timeout. Transient failures are
// retried with exponential backoff. With check unset a non-zero exit is
// returned as a result instead of an error.
func (w *GitWorkspace) git(ctx context.Context, op, dir string, check bool, args ...string) (execResult, error) {
	attempts := w.opts.Retries + 1
	var last error
	for attempt := 1; ; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, w.opts.CommandTimeout)
		res, err := w.exec(cctx, dir, "git", args...)
		timedOut := errors.Is(cctx.Err(), context.DeadlineExceeded)
		cancel()

		transient := false
		switch {
		case ctx.Err() != nil:
			metrics.IncGitCommand(op, "canceled")
			return res, &adapter.WorkspaceError{Op: op, Err: ctx.Err()}
		case timedOut:
			last = fmt.Errorf("git %s timed out after %s", strings.Join(args, " "), w.opts.CommandTimeout)
			transient = true
		case err != nil && res.ExitCode < 0:
			metrics.IncGitCommand(op, "error")
			return res, &adapter.WorkspaceError{Op: op, Err: err}
		case res.ExitCode == 0 || !check:
			metrics.IncGitCommand(op, "ok")
			return res, nil
		default:
			out := strings.TrimSpace(res.Stderr)
			if out == "" {
				out = strings.TrimSpace(res.Stdout)
			}
			if out == "" {
				out = "no output"
			}
			last = fmt.Errorf("git %s failed: %s", strings.Join(args, " "), out)
			transient = isTransient(out)
		}

		if transient && attempt < attempts {
			metrics.IncGitRetry(op)
			w.log.Warn().Err(last).Str("op", op).Int("attempt", attempt).Msg("transient git failure; retrying")
			w.sleep(ctx, backoff(attempt))
			continue
		}
		metrics.IncGitCommand(op, "error")
		return res, &adapter.WorkspaceError{Op: op, Transient: transient, Err: last}
	}
}

func isTransient(output string) bool {
	text := strings.ToLower(output)
	for _, m := range transientMarkers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}

// backoff is 0.2s doubled per failed attempt.
func backoff(attempt int) time.Duration {
	return 200 * time.Millisecond << (attempt - 1)
}

// confine resolves rel inside dir and rejects anything that escapes it.
func confine(dir, rel string) (string, string, error) {
	clean := filepath.Clean("/" + strings.TrimSpace(rel))
	clean = strings.TrimPrefix(clean, "/")
	if clean == "" || clean == "." {
		return "", "", fmt.Errorf("refusing to write %q: empty path", rel)
	}
	target := filepath.Join(dir, clean)
	if !strings.HasPrefix(target, dir+string(filepath.Separator)) {
		return "", "", fmt.Errorf("refusing to write outside workspace: %q", rel)
	}
	if clean == ".git" || strings.HasPrefix(clean, ".git/") {
		return "", "", fmt.Errorf("refusing to write into .git: %q", rel)
	}
	return clean, target, nil
}

func normalizeRepoURL(url string) string {
	for _, p := range []string{"http://", "https://", "ssh://", "git@", "file://"} {
		if strings.HasPrefix(url, p) {
			return url
		}
	}
	if abs, err := filepath.Abs(url); err == nil {
		if _, err := os.Stat(abs); err == nil {
			return abs
		}
	}
	return url
}

// lastBytes keeps at most n trailing bytes of s as valid UTF-8, starting on a
// rune boundary.
func lastBytes(s string, n int) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	if len(s) <= n {
		return s
	}
	i := len(s) - n
	for i < len(s) && !utf8.RuneStart(s[i]) {
		i++
	}
	return s[i:]
}

func runProcess(ctx context.Context, dir, name string, args ...string) (execResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	killProcessGroup(cmd)
	cmd.WaitDelay = waitDelay
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	res := execResult{Stdout: stdout.String(), Stderr: stderr.String()}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		res.ExitCode = -1
	}
	return res, err
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
