package github

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"net/http"
	"path"
	"strconv"

	"github.com/int-code/git-sleuth/internal/domain"
	"github.com/int-code/git-sleuth/internal/domain/service"
	"github.com/int-code/git-sleuth/pkg/errcodes"
)

//go:embed workflows/*.yaml
var workflowFiles embed.FS

const workflowDir = ".github/workflows"

// Workflows installs and triggers the resolution automation in a repository.
type Workflows struct {
	client             *Client
	resolutionWorkflow string
	applyWorkflow      string
}

func NewWorkflows(client *Client, resolutionWorkflow, applyWorkflow string) *Workflows {
	return &Workflows{
		client:             client,
		resolutionWorkflow: resolutionWorkflow,
		applyWorkflow:      applyWorkflow,
	}
}

// DispatchResolution fires the resolution workflow on the base branch. Anything but 204 is an
// UpstreamError.
func (w *Workflows) DispatchResolution(ctx context.Context, req service.DispatchRequest) error {
	body := map[string]any{
		"ref": req.BaseRef,
		"inputs": map[string]string{
			"head_ref": req.HeadRef,
			"base_ref": req.BaseRef,
			"merge_id": strconv.FormatInt(req.MergeId, 10),
		},
	}
	p := fmt.Sprintf("/repos/%s/actions/workflows/%s/dispatches", req.FullName, w.resolutionWorkflow)

	if _, err := w.client.do(ctx, req.InstallationId, http.MethodPost, p, body, nil, http.StatusNoContent); err != nil {
		return err
	}

	logger(ctx).Info("workflow dispatched",
		slog.String("repo", req.FullName),
		slog.String("workflow", w.resolutionWorkflow),
	)
	return nil
}

type gitObject struct {
	Sha string `json:"sha"`
}

type treeEntry struct {
	Path string `json:"path"`
	Mode string `json:"mode"`
	Type string `json:"type"`
	Sha  string `json:"sha"`
}

// InstallWorkflows commits both workflow files to the default branch in one commit through
// the git data API: blobs, a tree on top of the head tree, a commit, then the ref update.
func (w *Workflows) InstallWorkflows(ctx context.Context, installationId int64, fullName string) error {
	do := func(method, p string, in, out any, want ...int) error {
		_, err := w.client.do(ctx, installationId, method, "/repos/"+fullName+p, in, out, want...)
		return err
	}

	var repo struct {
		DefaultBranch string `json:"default_branch"`
	}
	if err := do(http.MethodGet, "", nil, &repo); err != nil {
		return err
	}
	branch := repo.DefaultBranch
	if branch == "" {
		branch = "main"
	}

	var ref struct {
		Object gitObject `json:"object"`
	}
	if err := do(http.MethodGet, "/git/ref/heads/"+branch, nil, &ref); err != nil {
		return err
	}
	var head struct {
		Tree gitObject `json:"tree"`
	}
	if err := do(http.MethodGet, "/git/commits/"+ref.Object.Sha, nil, &head); err != nil {
		return err
	}

	var entries []treeEntry
	for _, name := range []string{w.resolutionWorkflow, w.applyWorkflow} {
		content, err := workflowFiles.ReadFile(path.Join("workflows", name))
		if err != nil {
			return domain.WrapError(err, errcodes.InternalServerError, "unknown workflow file "+name)
		}

		var blob gitObject
		in := map[string]string{"content": string(content), "encoding": "utf-8"}
		if err := do(http.MethodPost, "/git/blobs", in, &blob, http.StatusCreated); err != nil {
			return err
		}
		entries = append(entries, treeEntry{
			Path: workflowDir + "/" + name,
			Mode: "100644",
			Type: "blob",
			Sha:  blob.Sha,
		})
	}

	var tree gitObject
	if err := do(http.MethodPost, "/git/trees", map[string]any{
		"base_tree": head.Tree.Sha,
		"tree":      entries,
	}, &tree, http.StatusCreated); err != nil {
		return err
	}

	var commit gitObject
	if err := do(http.MethodPost, "/git/commits", map[string]any{
		"message": "Set up git-sleuth merge conflict workflows",
		"tree":    tree.Sha,
		"parents": []string{ref.Object.Sha},
	}, &commit, http.StatusCreated); err != nil {
		return err
	}

	if err := do(http.MethodPatch, "/git/refs/heads/"+branch, map[string]string{"sha": commit.Sha}, nil); err != nil {
		return err
	}

	logger(ctx).Info("workflow files committed",
		slog.String("repo", fullName),
		slog.String("branch", branch),
		slog.String("commit", commit.Sha),
	)
	return nil
}
