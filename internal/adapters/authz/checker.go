// Package authz answers "may this user view this project" with casbin.
// Subjects are "user:<id>", objects are room keys ("project:<id>") and the
// only action is "view". A project no policy object matches is treated as
// gone.
package authz

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/casbin/casbin/v2"
	"github.com/casbin/casbin/v2/model"
	"github.com/casbin/casbin/v2/persist"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
	stringadapter "github.com/casbin/casbin/v2/persist/string-adapter"
	"github.com/casbin/casbin/v2/util"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Board/internal/domain"
)

//go:embed model.conf
var embeddedModel string

//go:embed policy.csv
var embeddedPolicy string

const actionView = "view"

type Checker struct {
	enforcer *casbin.SyncedEnforcer
}

// NewChecker loads policyPath when it exists, otherwise the embedded policy.
func NewChecker(policyPath string) (*Checker, error) {
	var adapter persist.Adapter = stringadapter.NewAdapter(policyText(embeddedPolicy))
	source := "embedded"
	if policyPath != "" && fileExists(policyPath) {
		adapter = fileadapter.NewAdapter(policyPath)
		source = policyPath
	}
	c, err := newChecker(adapter)
	if err != nil {
		return nil, err
	}
	log.Info().Str("module", "adapters.authz").Str("policy", source).Msg("authorization policy loaded")
	return c, nil
}

// NewCheckerFromPolicy builds a checker from inline CSV policy text.
func NewCheckerFromPolicy(policy string) (*Checker, error) {
	text := policyText(policy)
	if text == "" {
		return nil, errors.New("authorization policy has no rules")
	}
	return newChecker(stringadapter.NewAdapter(text))
}

func newChecker(adapter persist.Adapter) (*Checker, error) {
	m, err := model.NewModelFromString(embeddedModel)
	if err != nil {
		return nil, fmt.Errorf("failed to load casbin model: %w", err)
	}
	enforcer, err := casbin.NewSyncedEnforcer(m, adapter)
	if err != nil {
		return nil, fmt.Errorf("failed to create casbin enforcer: %w", err)
	}
	return &Checker{enforcer: enforcer}, nil
}

// policyText drops comments, blank lines and indentation; the string
// adapter reads one rule per line.
func policyText(policy string) string {
	var lines []string
	for _, line := range strings.Split(policy, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func subject(user domain.UserID) string { return "user:" + user.String() }

func (c *Checker) CanAccessProject(_ context.Context, user domain.UserID, project domain.ProjectID) (bool, error) {
	obj := string(project.RoomKey())
	known, err := c.known(obj)
	if err != nil {
		return false, err
	}
	if !known {
		return false, fmt.Errorf("project %s: %w", project, domain.ErrNotFound)
	}
	allowed, err := c.enforcer.Enforce(subject(user), obj, actionView)
	if err != nil {
		return false, fmt.Errorf("enforce: %w", err)
	}
	return allowed, nil
}

func (c *Checker) known(obj string) (bool, error) {
	policies, err := c.enforcer.GetPolicy()
	if err != nil {
		return false, fmt.Errorf("read policy: %w", err)
	}
	for _, p := range policies {
		if len(p) >= 2 && util.KeyMatch(obj, p[1]) {
			return true, nil
		}
	}
	return false, nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
