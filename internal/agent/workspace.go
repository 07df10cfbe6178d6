package agent

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/api/types/volume"
	"github.com/docker/docker/client"

	"github.com/google/uuid"
)

const (
	gitImage       = "alpine/git:latest"
	volumeMountDir = "/repo"
	branchPrefix   = "foreman/"
)

// sessionBranch returns the isolated git branch name for a session.
func sessionBranch(sessionID uuid.UUID) string {
	return branchPrefix + sessionID.String()
}

// sessionWorkDir returns the worktree path inside the container for a branch.
func sessionWorkDir(branchName string) string {
	return volumeMountDir + "/.worktrees/" + branchName
}

// projectVolume returns the persistent repo volume name for a project.
func projectVolume(projectID uuid.UUID) string {
	return "foreman-repo-" + projectID.String()
}

// WorkspaceManager prepares per-session git worktrees inside persistent
// Docker volumes so concurrent sessions on the same repo never share a
// working tree.
type WorkspaceManager struct {
	client *client.Client
}

func NewWorkspaceManager(dockerClient *client.Client) *WorkspaceManager {
	return &WorkspaceManager{client: dockerClient}
}

// Prepare ensures the project volume exists with a current clone and creates
// an isolated worktree for the session branch. Returns the worktree path
// inside the container.
func (wm *WorkspaceManager) Prepare(ctx context.Context, volumeName, repoURL, baseBranch, branchName string) (string, error) {
	if err := wm.EnsureVolume(ctx, volumeName); err != nil {
		return "", fmt.Errorf("agent.WorkspaceManager.Prepare: %w", err)
	}
	if err := wm.CloneRepo(ctx, volumeName, repoURL); err != nil {
		return "", fmt.Errorf("agent.WorkspaceManager.Prepare: %w", err)
	}
	if err := wm.FetchRepo(ctx, volumeName); err != nil {
		return "", fmt.Errorf("agent.WorkspaceManager.Prepare: %w", err)
	}
	if baseBranch == "" {
		baseBranch = "main"
	}

	// A resumed session already has its branch and worktree; creating it
	// again would fail and discard work in progress.
	exists, err := wm.BranchExists(ctx, volumeName, branchName)
	if err != nil {
		return "", fmt.Errorf("agent.WorkspaceManager.Prepare: %w", err)
	}
	if !exists {
		if err := wm.CreateBranch(ctx, volumeName, branchName, "origin/"+baseBranch); err != nil {
			return "", fmt.Errorf("agent.WorkspaceManager.Prepare: %w", err)
		}
	}
	return sessionWorkDir(branchName), nil
}

// BranchExists reports whether a local branch exists in the volume's repo.
func (wm *WorkspaceManager) BranchExists(ctx context.Context, volumeName, branchName string) (bool, error) {
	exitCode, err := wm.runGitContainer(ctx, volumeName, []string{"rev-parse", "--verify", "refs/heads/" + branchName})
	if err != nil {
		return false, fmt.Errorf("agent.WorkspaceManager.BranchExists: %w", err)
	}
	return exitCode == 0, nil
}

// EnsureVolume creates a Docker volume if it doesn't exist.
func (wm *WorkspaceManager) EnsureVolume(ctx context.Context, volumeName string) error {
	_, err := wm.client.VolumeCreate(ctx, volume.CreateOptions{
		Name: volumeName,
	})
	if err != nil {
		return fmt.Errorf("agent.WorkspaceManager.EnsureVolume: %w", err)
	}
	return nil
}

// CloneRepo clones a git repo into a volume via a temporary container.
// Only runs if the volume is empty (first use).
func (wm *WorkspaceManager) CloneRepo(ctx context.Context, volumeName, repoURL string) error {
	// Check if already cloned by testing for .git directory.
	exitCode, err := wm.runGitContainer(ctx, volumeName, []string{"rev-parse", "--git-dir"})
	if err != nil {
		return fmt.Errorf("agent.WorkspaceManager.CloneRepo: check existing: %w", err)
	}
	if exitCode == 0 {
		// Already cloned, nothing to do.
		return nil
	}

	exitCode, err = wm.runGitContainer(ctx, volumeName, []string{"clone", repoURL, "."})
	if err != nil {
		return fmt.Errorf("agent.WorkspaceManager.CloneRepo: %w", err)
	}
	if exitCode != 0 {
		return fmt.Errorf("agent.WorkspaceManager.CloneRepo: git clone exited with code %d", exitCode)
	}

	return nil
}

// FetchRepo runs git fetch in the volume via a temporary container.
func (wm *WorkspaceManager) FetchRepo(ctx context.Context, volumeName string) error {
	exitCode, err := wm.runGitContainer(ctx, volumeName, []string{"fetch", "--all", "--prune"})
	if err != nil {
		return fmt.Errorf("agent.WorkspaceManager.FetchRepo: %w", err)
	}
	if exitCode != 0 {
		return fmt.Errorf("agent.WorkspaceManager.FetchRepo: git fetch exited with code %d", exitCode)
	}
	return nil
}

// CreateBranch creates an isolated git worktree for the session branch.
// Worktrees (instead of plain checkouts) let multiple sessions share one repo
// volume without corrupting each other's working tree.
func (wm *WorkspaceManager) CreateBranch(ctx context.Context, volumeName, branchName, baseBranch string) error {
	worktreePath := sessionWorkDir(branchName)
	exitCode, err := wm.runGitContainer(ctx, volumeName, []string{
		"worktree", "add", "-b", branchName, worktreePath, baseBranch,
	})
	if err != nil {
		return fmt.Errorf("agent.WorkspaceManager.CreateBranch: %w", err)
	}
	if exitCode != 0 {
		return fmt.Errorf("agent.WorkspaceManager.CreateBranch: git worktree add exited with code %d", exitCode)
	}
	return nil
}

// RemoveWorktree cleans up a session worktree after the session ends.
func (wm *WorkspaceManager) RemoveWorktree(ctx context.Context, volumeName, branchName string) error {
	worktreePath := sessionWorkDir(branchName)
	exitCode, err := wm.runGitContainer(ctx, volumeName, []string{"worktree", "remove", "--force", worktreePath})
	if err != nil {
		return fmt.Errorf("agent.WorkspaceManager.RemoveWorktree: %w", err)
	}
	if exitCode != 0 {
		return fmt.Errorf("agent.WorkspaceManager.RemoveWorktree: git worktree remove exited with code %d", exitCode)
	}
	return nil
}

// RemoveVolume removes a Docker volume.
func (wm *WorkspaceManager) RemoveVolume(ctx context.Context, volumeName string) error {
	err := wm.client.VolumeRemove(ctx, volumeName, true)
	if err != nil {
		return fmt.Errorf("agent.WorkspaceManager.RemoveVolume: %w", err)
	}
	return nil
}

// runGitContainer runs a git command inside a temporary container that mounts
// the volume. Returns the container exit code.
func (wm *WorkspaceManager) runGitContainer(ctx context.Context, volumeName string, gitArgs []string) (int64, error) {
	cfg := &container.Config{
		Image:      gitImage,
		Cmd:        gitArgs,
		WorkingDir: volumeMountDir,
	}

	hostCfg := &container.HostConfig{
		Mounts: []mount.Mount{
			{
				Type:   mount.TypeVolume,
				Source: volumeName,
				Target: volumeMountDir,
			},
		},
		AutoRemove: true,
	}

	resp, err := wm.client.ContainerCreate(ctx, cfg, hostCfg, &network.NetworkingConfig{}, nil, "")
	if err != nil {
		return -1, fmt.Errorf("create git container: %w", err)
	}

	err = wm.client.ContainerStart(ctx, resp.ID, container.StartOptions{})
	if err != nil {
		// Clean up the created container since AutoRemove only applies to running containers.
		_ = wm.client.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return -1, fmt.Errorf("start git container: %w", err)
	}

	waitCh, errCh := wm.client.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	select {
	case result := <-waitCh:
		if result.Error != nil {
			return result.StatusCode, fmt.Errorf("git container error: %s", result.Error.Message)
		}
		return result.StatusCode, nil
	case waitErr := <-errCh:
		return -1, fmt.Errorf("wait git container: %w", waitErr)
	case <-ctx.Done():
		return -1, fmt.Errorf("wait git container: %w", ctx.Err())
	}
}
