package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const branchSuffix = ".branch.sql"

// Branch describes one branch snapshot file, the "listing polish" of
// SPEC_FULL.md (structured rows instead of original_source's bare path
// strings).
type Branch struct {
	DBName     string    `json:"db_name"`
	BranchName string    `json:"branch_name"`
	CreatedAt  time.Time `json:"created_at"`
}

func branchFileName(dbName, branchName string) string {
	base := strings.TrimSuffix(dbName, filepath.Ext(dbName))
	return fmt.Sprintf("%s.%s%s", base, branchName, branchSuffix)
}

// BranchFileName exposes the branch-file naming convention to callers (the
// admin branch-delete endpoint needs it to turn a (database, branch) pair
// back into the on-disk file DeleteBranch expects).
func BranchFileName(dbName, branchName string) string {
	return branchFileName(dbName, branchName)
}

// CreateBranch makes a byte-identical copy of dbName via VACUUM INTO,
// refusing if the target branch file already exists. Grounded on
// original_source/crates/server/src/controllers/branch.rs's create_branch.
func CreateBranch(ctx context.Context, dbsPath, dbName, branchName string, secret []byte) (*Branch, error) {
	target := branchFileName(dbName, branchName)
	targetPath := filepath.Join(dbsPath, target)
	if _, err := os.Stat(targetPath); err == nil {
		return nil, fmt.Errorf("branch %s already exists", target)
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("stat %s: %w", targetPath, err)
	}

	db, err := OpenUser(ctx, dbsPath, dbName, secret)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", dbName, err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, "VACUUM INTO ?", targetPath); err != nil {
		return nil, fmt.Errorf("vacuum into %s: %w", target, err)
	}

	return &Branch{DBName: dbName, BranchName: branchName, CreatedAt: time.Now()}, nil
}

// ListBranches enumerates files matching *.branch.sql under dbsPath.
func ListBranches(dbsPath string) ([]Branch, error) {
	entries, err := os.ReadDir(dbsPath)
	if err != nil {
		return nil, fmt.Errorf("read dir %s: %w", dbsPath, err)
	}

	var branches []Branch
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), branchSuffix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		trimmed := strings.TrimSuffix(e.Name(), branchSuffix)
		dbBase, branchName, ok := strings.Cut(trimmed, ".")
		if !ok {
			continue
		}
		branches = append(branches, Branch{
			DBName:     dbBase + ".sql",
			BranchName: branchName,
			CreatedAt:  info.ModTime(),
		})
	}
	return branches, nil
}

// DeleteBranch removes a branch file, refusing any name not ending in
// ".branch.sql".
func DeleteBranch(dbsPath, fileName string) error {
	if !strings.HasSuffix(fileName, branchSuffix) {
		return fmt.Errorf("refusing to delete non-branch file %q", fileName)
	}
	path := filepath.Join(dbsPath, fileName)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("branch file %q not found", fileName)
	}
	return os.Remove(path)
}
