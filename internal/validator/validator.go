// Package validator implements the submission admission pipeline: it
// decides whether a request is accepted or declined and which additional
// reviewers it needs.
package validator

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/Iron-Ham/stagectl/internal/classifier"
	"github.com/Iron-Ham/stagectl/internal/config"
	"github.com/Iron-Ham/stagectl/internal/errors"
	"github.com/Iron-Ham/stagectl/internal/logging"
	"github.com/Iron-Ham/stagectl/internal/request"
	"github.com/Iron-Ham/stagectl/internal/review"
	"github.com/Iron-Ham/stagectl/internal/snapshot"
)

// Rule names carried by policy violations.
const (
	RuleSingleAction = "single-action"
	RuleOwnership    = "ownership"
	RuleIdentity     = "identity"
	RuleAddRole      = "add-role"
	RuleLinkedDelete = "linked-delete"
)

// oldDirName is where the current target state is checked out.
const oldDirName = "_old"

// Directory answers ownership questions about packages.
type Directory interface {
	Devel(ctx context.Context, project, pkg string) (request.DevelRelationship, bool, error)
	IsDevelProject(ctx context.Context, sourceProject, targetProject string) (bool, error)
	Link(ctx context.Context, project, pkg string) (request.LinkTarget, bool, error)
}

// Config wires a Validator to its collaborators.
type Config struct {
	Policy     config.PolicyConfig
	Directory  Directory
	Snapshots  snapshot.Source
	Classifier classifier.Classifier
	// WorkDir holds one scratch directory per request.
	WorkDir     string
	Parallelism int
	Logger      *logging.Logger
}

// Validator runs the admission pipeline for single requests.
type Validator struct {
	policy      config.PolicyConfig
	dir         Directory
	snapshots   snapshot.Source
	classifier  classifier.Classifier
	workDir     string
	parallelism int
	logger      *logging.Logger

	whitelistOnce sync.Once
	whitelist     map[string]bool
	whitelistErr  error
}

// New creates a Validator.
func New(cfg Config) *Validator {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	parallelism := cfg.Parallelism
	if parallelism < 1 {
		parallelism = 1
	}
	return &Validator{
		policy:      cfg.Policy,
		dir:         cfg.Directory,
		snapshots:   cfg.Snapshots,
		classifier:  cfg.Classifier,
		workDir:     cfg.WorkDir,
		parallelism: parallelism,
		logger:      logger,
	}
}

// Magnitude is the size of a change as used for escalation. Unknown
// magnitudes always escalate.
type Magnitude struct {
	Value   int
	Unknown bool
}

// UnknownHigh is the magnitude of changes that cannot be measured.
var UnknownHigh = Magnitude{Unknown: true}

// Exceeds reports whether m is above threshold.
func (m Magnitude) Exceeds(threshold int) bool {
	return m.Unknown || m.Value > threshold
}

func (m Magnitude) String() string {
	if m.Unknown {
		return "unknown"
	}
	return strconv.Itoa(m.Value)
}

// Validate runs the pipeline for req. Declines are returned as verdicts;
// an error means the request could not be decided and must stay pending.
func (v *Validator) Validate(ctx context.Context, req request.Request) (review.Verdict, error) {
	logger := v.logger.WithRequest(req.ID)

	verdict, err := v.check(ctx, req)
	if err != nil {
		if !errors.IsDecline(err) {
			logger.Error("validation failed", "error", err)
			return review.Verdict{}, err
		}
		logger.Info("request declined", "reason", err)
		return review.Decline(declineMessage(err)), nil
	}
	logger.Info("request accepted", "escalations", len(verdict.Escalations))
	return verdict, nil
}

func declineMessage(err error) string {
	var m interface{ Message() string }
	if errors.As(err, &m) {
		return m.Message()
	}
	return err.Error()
}

func (v *Validator) check(ctx context.Context, req request.Request) (review.Verdict, error) {
	if len(req.Actions) != 1 {
		return review.Verdict{}, errors.NewPolicyViolation(RuleSingleAction, "Only one action per request").WithRequestID(req.ID)
	}
	action := req.Actions[0]
	switch action.Type {
	case request.Submit:
		return v.checkSubmission(ctx, req.ID, action)
	case request.AddRole:
		return review.Verdict{}, v.checkAddRole(ctx, req.ID, action)
	case request.Delete:
		return v.checkDelete(ctx, req.ID, action)
	default:
		return review.Accept(fmt.Sprintf("Unhandled request type %s.", action.Type)), nil
	}
}

func (v *Validator) checkAddRole(ctx context.Context, id int64, action request.Action) error {
	message := fmt.Sprintf("Roles to packages are granted in the devel project, not in %s.", action.Target.Project)
	if action.Target.Package != "" {
		rel, ok, err := v.dir.Devel(ctx, action.Target.Project, action.Target.Package)
		if err != nil {
			return errors.NewInfrastructureFailure("devel lookup "+action.Target.String(), err).WithRequestID(id)
		}
		if ok {
			message += fmt.Sprintf(" Please send this request to %s.", rel)
		}
	}
	return errors.NewPolicyViolation(RuleAddRole, message).WithRequestID(id)
}

func (v *Validator) checkDelete(ctx context.Context, id int64, action request.Action) (review.Verdict, error) {
	link, ok, err := v.dir.Link(ctx, action.Target.Project, action.Target.Package)
	if err != nil {
		return review.Verdict{}, errors.NewInfrastructureFailure("link lookup "+action.Target.String(), err).WithRequestID(id)
	}
	if ok {
		return review.Verdict{}, errors.NewPolicyViolation(RuleLinkedDelete,
			fmt.Sprintf("This is an incorrect request, it's a linked package to %s", link)).WithRequestID(id)
	}
	return review.Accept(fmt.Sprintf("Unhandled request type %s", action.Type)), nil
}

func (v *Validator) checkSubmission(ctx context.Context, id int64, action request.Action) (review.Verdict, error) {
	src, tgt := action.Source, action.Target
	if tgt.Package == "" {
		tgt.Package = src.Package
	}

	if !v.policy.IgnoreDevel {
		if err := v.checkOwnership(ctx, id, src, tgt); err != nil {
			return review.Verdict{}, err
		}
	}

	scratch := filepath.Join(v.workDir, strconv.FormatInt(id, 10))
	if _, err := os.Stat(scratch); err == nil {
		v.logger.WithRequest(id).Warn("scratch directory already exists", "dir", scratch)
	}
	if err := os.RemoveAll(scratch); err != nil {
		return review.Verdict{}, errors.NewInfrastructureFailure("clean scratch dir", err).WithRequestID(id)
	}
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return review.Verdict{}, errors.NewInfrastructureFailure("create scratch dir", err).WithRequestID(id)
	}
	defer func() {
		if err := os.RemoveAll(scratch); err != nil {
			v.logger.WithRequest(id).Warn("failed to remove scratch directory", "dir", scratch, "error", err)
		}
	}()

	oldDir := filepath.Join(scratch, oldDirName)
	newDir := filepath.Join(scratch, tgt.Package)

	var oldInfo snapshot.Info
	newPackage := false
	err := v.snapshots.Checkout(ctx, request.Identity{Project: tgt.Project, Package: tgt.Package}, oldDir)
	switch {
	case errors.Is(err, errors.ErrSnapshotNotFound):
		newPackage = true
		v.logger.WithRequest(id).Info("target package does not exist yet", "target", tgt.String())
		if err := os.MkdirAll(oldDir, 0o755); err != nil {
			return review.Verdict{}, errors.NewInfrastructureFailure("create empty baseline", err).WithRequestID(id)
		}
	case err != nil:
		return review.Verdict{}, errors.NewInfrastructureFailure("checkout "+tgt.String(), err).WithRequestID(id)
	default:
		oldInfo, err = parseInfo(oldDir, tgt.Package)
		if err != nil {
			return review.Verdict{}, errors.NewInfrastructureFailure("parse "+tgt.String(), err).WithRequestID(id)
		}
	}

	if err := v.snapshots.Checkout(ctx, src, newDir); err != nil {
		return review.Verdict{}, errors.NewInfrastructureFailure("checkout "+src.String(), err).WithRequestID(id)
	}
	newInfo, err := parseInfo(newDir, tgt.Package)
	if err != nil {
		return review.Verdict{}, errors.NewInfrastructureFailure("parse "+src.String(), err).WithRequestID(id)
	}
	if newInfo.Name != tgt.Package {
		return review.Verdict{}, errors.NewPolicyViolation(RuleIdentity,
			fmt.Sprintf("A package submitted as %s has to build as 'Name: %s' - found Name '%s'", tgt.Package, tgt.Package, newInfo.Name)).WithRequestID(id)
	}

	var newVersion string
	if oldInfo.Version != "" && oldInfo.Version != newInfo.Version {
		newVersion = newInfo.Version
	}
	result, err := v.classifier.Classify(ctx, classifier.Input{
		Dir:        scratch,
		OldDir:     oldDirName,
		NewDir:     tgt.Package,
		NewVersion: newVersion,
	})
	if err != nil {
		return review.Verdict{}, errors.NewInfrastructureFailure("run classifier", err).WithRequestID(id)
	}
	if !result.Succeeded() {
		return review.Verdict{}, errors.NewClassifierFailure(result.ExitCode, result.Output()).WithRequestID(id)
	}

	magnitude := classify(result, newVersion, newPackage)
	v.logger.WithRequest(id).Debug("diff classified", "magnitude", magnitude.String())

	message := "Check script succeeded"
	if len(result.Lines) > 0 {
		message += "\n\nOutput of check script (non-fatal):\n" + result.Output()
	}
	return review.Accept(message, v.escalations(magnitude)...), nil
}

// classify maps a successful classifier run to the magnitude used for
// escalation. Without a version hint the reported count cannot be trusted.
func classify(result classifier.Result, newVersion string, newPackage bool) Magnitude {
	if newPackage || !result.HasMarker || newVersion == "" {
		return UnknownHigh
	}
	return Magnitude{Value: result.Magnitude}
}

func (v *Validator) escalations(m Magnitude) []review.Escalation {
	if v.policy.SkipAddReviews {
		return nil
	}
	var out []review.Escalation
	if m.Exceeds(v.policy.DiffThreshold) && v.policy.ReviewTeam != "" {
		out = append(out, review.Escalation{Target: review.Group(v.policy.ReviewTeam), Message: review.ReviewSourcesMessage})
	}
	if v.policy.RepoChecker != "" {
		out = append(out, review.Escalation{Target: review.User(v.policy.RepoChecker), Message: review.ReviewBuildMessage})
	}
	return out
}

func (v *Validator) checkOwnership(ctx context.Context, id int64, src, tgt request.Identity) error {
	rel, ok, err := v.dir.Devel(ctx, tgt.Project, tgt.Package)
	if err != nil {
		return errors.NewInfrastructureFailure("devel lookup "+tgt.String(), err).WithRequestID(id)
	}
	if ok {
		if src.Project != rel.Project || src.Package != rel.Package {
			return errors.NewPolicyViolation(RuleOwnership,
				fmt.Sprintf("Expected submission from devel package %s", rel)).WithRequestID(id)
		}
		return nil
	}

	known, err := v.isDevelProject(ctx, src.Project, tgt.Project)
	if err != nil {
		return errors.NewInfrastructureFailure("devel project search "+src.Project, err).WithRequestID(id)
	}
	if !known {
		return errors.NewPolicyViolation(RuleOwnership,
			fmt.Sprintf("%s is not a devel project of %s, submit the package to a devel project first", src.Project, tgt.Project)).WithRequestID(id)
	}
	return nil
}

func (v *Validator) isDevelProject(ctx context.Context, sourceProject, targetProject string) (bool, error) {
	whitelist, err := v.loadWhitelist()
	if err != nil {
		return false, err
	}
	if whitelist[sourceProject] {
		return true, nil
	}
	return v.dir.IsDevelProject(ctx, sourceProject, targetProject)
}

func (v *Validator) loadWhitelist() (map[string]bool, error) {
	v.whitelistOnce.Do(func() {
		if v.policy.DevelWhitelistFile == "" {
			return
		}
		f, err := os.Open(v.policy.DevelWhitelistFile)
		if err != nil {
			v.whitelistErr = fmt.Errorf("open devel whitelist: %w", err)
			return
		}
		defer f.Close()

		v.whitelist = make(map[string]bool)
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				v.whitelist[line] = true
			}
		}
		v.whitelistErr = scanner.Err()
	})
	return v.whitelist, v.whitelistErr
}

// A checkout without a spec file declares no name.
func parseInfo(dir, pkg string) (snapshot.Info, error) {
	info, err := snapshot.ParseInfo(dir, pkg)
	if errors.Is(err, errors.ErrSnapshotNotFound) {
		return snapshot.Info{}, nil
	}
	return info, err
}
