package reconcile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oshokin/dockhand/internal/logger"
	"github.com/oshokin/dockhand/internal/semver"
)

// Binding associates a version value with the file where it is embedded.
type Binding struct {
	// Path is the artifact file carrying an embedded version.
	Path string
	// Rewriter knows how to extract and rewrite the version for this file.
	Rewriter Rewriter
}

// Failure records one binding that could not be brought to the target version.
type Failure struct {
	// Path is the binding's file.
	Path string
	// Reason is a human-readable description of what went wrong.
	Reason string
}

// Report summarizes a reconciliation pass.
// Cross-file atomicity is best-effort: a partially applied set is an
// accepted failure state surfaced through Failed, never swallowed.
type Report struct {
	// Updated lists files rewritten to the target version.
	Updated []string
	// AlreadyCurrent lists files that needed no write.
	AlreadyCurrent []string
	// Failed lists files left at their previous content.
	Failed []Failure
}

// Reconciler rewrites stale version bindings and optionally regenerates
// template-derived artifacts once afterwards.
type Reconciler struct {
	// regenerate, when set, runs once after all bindings are processed
	// so it sees the fully-updated set.
	regenerate func(ctx context.Context) error
}

// Option configures reconciler behaviour.
type Option func(*Reconciler)

// WithRegeneration registers a one-shot step for template-derived artifacts.
func WithRegeneration(step func(ctx context.Context) error) Option {
	return func(r *Reconciler) {
		r.regenerate = step
	}
}

// NewReconciler creates a reconciler.
func NewReconciler(opts ...Option) *Reconciler {
	r := new(Reconciler)
	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Reconcile brings every binding to targetVersion.
//
// One unparsable or unwritable file is recorded as a failure and does not
// abort the rest: stale tooling elsewhere should not block progress.
func (r *Reconciler) Reconcile(ctx context.Context, targetVersion string, bindings []Binding) (*Report, error) {
	if _, err := semver.Parse(targetVersion); err != nil {
		return nil, err
	}

	report := new(Report)

	for _, binding := range bindings {
		r.reconcileBinding(ctx, targetVersion, binding, report)
	}

	for _, failure := range report.Failed {
		logger.WarnKV(ctx, "Binding left at previous content",
			"path", failure.Path, "reason", failure.Reason)
	}

	if r.regenerate != nil {
		if err := r.regenerate(ctx); err != nil {
			return report, fmt.Errorf("regenerate derived artifacts: %w", err)
		}
	}

	return report, nil
}

// reconcileBinding processes a single file and files the result in report.
func (r *Reconciler) reconcileBinding(ctx context.Context, targetVersion string, binding Binding, report *Report) {
	content, err := os.ReadFile(filepath.Clean(binding.Path))
	if err != nil {
		report.Failed = append(report.Failed, Failure{
			Path:   binding.Path,
			Reason: fmt.Sprintf("read: %v", err),
		})

		return
	}

	current, ok := binding.Rewriter.Extract(content)
	if !ok {
		report.Failed = append(report.Failed, Failure{
			Path:   binding.Path,
			Reason: "no embedded version found",
		})

		return
	}

	if current == targetVersion {
		report.AlreadyCurrent = append(report.AlreadyCurrent, binding.Path)
		return
	}

	logger.InfoKV(ctx, "Rewriting stale version binding",
		"path", binding.Path, "from", current, "to", targetVersion)

	if err = r.rewriteFile(binding, content, current, targetVersion); err != nil {
		report.Failed = append(report.Failed, Failure{
			Path:   binding.Path,
			Reason: err.Error(),
		})

		return
	}

	report.Updated = append(report.Updated, binding.Path)
}

// rewriteFile performs the per-file backup, atomic rewrite, re-read
// verification and rollback on failure.
func (r *Reconciler) rewriteFile(binding Binding, content []byte, current, target string) error {
	info, err := os.Stat(binding.Path)
	if err != nil {
		return fmt.Errorf("stat: %w", err)
	}

	backupPath := binding.Path + ".bak"
	if err = os.WriteFile(backupPath, content, info.Mode().Perm()); err != nil {
		return fmt.Errorf("write backup: %w", err)
	}

	rewritten := binding.Rewriter.Rewrite(content, current, target)

	if err = replaceFile(binding.Path, rewritten, info.Mode().Perm()); err != nil {
		_ = os.Remove(backupPath)

		return fmt.Errorf("rewrite: %w", err)
	}

	// Verify by re-reading: the new value must actually be present.
	written, err := os.ReadFile(binding.Path)
	verified := err == nil

	if verified {
		got, ok := binding.Rewriter.Extract(written)
		verified = ok && got == target
	}

	if !verified {
		if restoreErr := os.WriteFile(binding.Path, content, info.Mode().Perm()); restoreErr != nil {
			return fmt.Errorf("verification failed and restore failed: %v", restoreErr)
		}

		_ = os.Remove(backupPath)

		return fmt.Errorf("verification did not find %s after rewrite", target)
	}

	// Success, the backup is no longer needed.
	_ = os.Remove(backupPath)

	return nil
}

// replaceFile writes data through a temporary file and rename so a kill at
// any point leaves either the old or the new content.
func replaceFile(path string, data []byte, mode os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".reconcile-*")
	if err != nil {
		return err
	}

	tmpName := tmp.Name()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)

		return err
	}

	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmpName)

		return err
	}

	if err = os.Chmod(tmpName, mode); err != nil {
		_ = os.Remove(tmpName)

		return err
	}

	if err = os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)

		return err
	}

	return nil
}
