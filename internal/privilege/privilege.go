// Package privilege detects whether uniprof runs with elevated privileges and
// hands files it creates back to the user who invoked sudo.
package privilege

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
)

// UserContext represents the identity of the original user when running under
// privilege escalation.
type UserContext struct {
	Username string
	UID      int
	GID      int
	HomeDir  string
}

// DetectOriginalUser extracts user identity, accounting for sudo execution.
// When running under sudo, it returns the original user's context from
// SUDO_USER/SUDO_UID/SUDO_GID environment variables. Otherwise, returns the
// current user's context.
func DetectOriginalUser() (*UserContext, error) {
	sudoUser := os.Getenv("SUDO_USER")
	if sudoUser == "" {
		return getCurrentUser()
	}

	uidStr := os.Getenv("SUDO_UID")
	gidStr := os.Getenv("SUDO_GID")
	if uidStr == "" || gidStr == "" {
		return nil, fmt.Errorf("SUDO_USER set but SUDO_UID or SUDO_GID missing")
	}

	uid, err := strconv.Atoi(uidStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SUDO_UID: %w", err)
	}
	gid, err := strconv.Atoi(gidStr)
	if err != nil {
		return nil, fmt.Errorf("invalid SUDO_GID: %w", err)
	}

	u, err := user.Lookup(sudoUser)
	if err != nil {
		return nil, fmt.Errorf("failed to lookup user %s: %w", sudoUser, err)
	}

	return &UserContext{
		Username: sudoUser,
		UID:      uid,
		GID:      gid,
		HomeDir:  u.HomeDir,
	}, nil
}

func getCurrentUser() (*UserContext, error) {
	u, err := user.Current()
	if err != nil {
		return nil, fmt.Errorf("failed to get current user: %w", err)
	}

	return &UserContext{
		Username: u.Username,
		UID:      os.Getuid(),
		GID:      os.Getgid(),
		HomeDir:  u.HomeDir,
	}, nil
}

// HomeDir returns the home directory of the invoking user, which under sudo
// is the original user's rather than root's.
func HomeDir() (string, error) {
	userCtx, err := DetectOriginalUser()
	if err == nil && userCtx.HomeDir != "" {
		return userCtx.HomeDir, nil
	}
	return os.UserHomeDir()
}

// IsRoot checks if the current process is running with root privileges (euid
// == 0).
func IsRoot() bool {
	return os.Geteuid() == 0
}

// IsRunningUnderSudo checks if the process is running under sudo by checking
// for the SUDO_USER environment variable.
func IsRunningUnderSudo() bool {
	return os.Getenv("SUDO_USER") != ""
}

// FixFileOwnership changes the ownership of a file to the original user when
// running under sudo. If not running as root or under sudo, this is a no-op.
func FixFileOwnership(path string) error {
	if !IsRoot() || !IsRunningUnderSudo() {
		return nil
	}

	userCtx, err := DetectOriginalUser()
	if err != nil {
		return fmt.Errorf("failed to detect original user: %w", err)
	}

	if err := os.Chown(path, userCtx.UID, userCtx.GID); err != nil {
		return fmt.Errorf("failed to chown %s to %d:%d: %w", path, userCtx.UID, userCtx.GID, err)
	}

	return nil
}

// FixTreeOwnership is FixFileOwnership applied to root and everything below
// it. Used for cache directories created on the user's behalf. A missing root
// is not an error.
func FixTreeOwnership(root string) error {
	if !IsRoot() || !IsRunningUnderSudo() {
		return nil
	}
	if _, err := os.Lstat(root); errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	userCtx, err := DetectOriginalUser()
	if err != nil {
		return fmt.Errorf("failed to detect original user: %w", err)
	}

	return filepath.WalkDir(root, func(path string, _ fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := os.Lchown(path, userCtx.UID, userCtx.GID); err != nil {
			return fmt.Errorf("failed to chown %s: %w", path, err)
		}
		return nil
	})
}
