// Package gitsrc handles "build from git": clone/fetch/checkout a
// per-repo cache directory. It follows the algorithm in the Python
// predecessor's execute_build_image (src/mnb-core/docker_executor.py)
// — same slug scheme, same cache layout, same open-existing-or-init-new
// branching — reimplemented against github.com/go-git/go-git/v5.
package gitsrc

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
)

var nonSlugRun = regexp.MustCompile(`[^A-Za-z0-9.-]+`)

// Slug turns a repository URL into the directory-safe name used under
// .mnb/repo/, replacing every run of characters outside [A-Za-z0-9.-]
// with a single "-", matching the original's
// `re.sub("[^a-zA-Z0-9.-]+", "-", repo)` exactly.
func Slug(repo string) string {
	return nonSlugRun.ReplaceAllString(repo, "-")
}

// EnsureCheckout resolves <cacheRoot>/<slug(repo)>, opening it if it
// already exists and fetching, or initializing it and adding origin if
// it doesn't, then checks out rev. It returns the path to the checked
// out working copy; the build context is this path joined with the
// action's context_path.
func EnsureCheckout(cacheRoot, repo, rev string) (string, error) {
	repoPath := filepath.Join(cacheRoot, Slug(repo))

	var repository *git.Repository
	if _, err := os.Stat(repoPath); err == nil {
		r, err := git.PlainOpen(repoPath)
		if err != nil {
			return "", fmt.Errorf("open existing git cache %s: %w", repoPath, err)
		}
		repository = r

		remote, err := repository.Remote("origin")
		if err != nil {
			return "", fmt.Errorf("get origin remote in %s: %w", repoPath, err)
		}
		if err := remote.Fetch(&git.FetchOptions{RemoteName: "origin", Force: true}); err != nil && err != git.NoErrAlreadyUpToDate {
			return "", fmt.Errorf("fetch origin in %s: %w", repoPath, err)
		}
	} else if os.IsNotExist(err) {
		if err := os.MkdirAll(repoPath, 0o755); err != nil {
			return "", fmt.Errorf("create git cache dir %s: %w", repoPath, err)
		}
		r, err := git.PlainInit(repoPath, false)
		if err != nil {
			return "", fmt.Errorf("init git cache %s: %w", repoPath, err)
		}
		repository = r

		if _, err := repository.CreateRemote(&config.RemoteConfig{
			Name: "origin",
			URLs: []string{repo},
		}); err != nil {
			return "", fmt.Errorf("create origin remote in %s: %w", repoPath, err)
		}

		if err := repository.Fetch(&git.FetchOptions{RemoteName: "origin"}); err != nil && err != git.NoErrAlreadyUpToDate {
			return "", fmt.Errorf("fetch origin in %s: %w", repoPath, err)
		}
	} else {
		return "", fmt.Errorf("stat git cache dir %s: %w", repoPath, err)
	}

	hash, err := repository.ResolveRevision(plumbing.Revision(rev))
	if err != nil {
		return "", fmt.Errorf("resolve revision %s in %s: %w", rev, repoPath, err)
	}

	worktree, err := repository.Worktree()
	if err != nil {
		return "", fmt.Errorf("get worktree in %s: %w", repoPath, err)
	}
	if err := worktree.Checkout(&git.CheckoutOptions{Hash: *hash, Force: true}); err != nil {
		return "", fmt.Errorf("checkout %s in %s: %w", rev, repoPath, err)
	}

	return repoPath, nil
}
