package project

import (
	"errors"
	"strings"

	"github.com/wangchj/inflight-sub000/internal/types"
)

// NodeKind distinguishes folders from requests during a walk
type NodeKind = types.ResourceKind

// Node is one entry visited by Walk
type Node struct {
	Kind  NodeKind
	ID    string
	Name  string
	Depth int
	// Path joins the names of the ancestors below the root and the node
	// itself with "/"
	Path string
}

// SkipFolder can be returned from a WalkFunc to skip a folder's children
var SkipFolder = errors.New("skip this folder")

// WalkFunc is called for every node in depth-first order
type WalkFunc func(node Node) error

// Walk visits the tree below the root folder. Within a folder, sub-folders
// come before requests, each in stored order.
func Walk(p *types.Project, fn WalkFunc) error {
	root, ok := p.Folders[p.Tree]
	if !ok {
		return nil
	}
	return walkFolder(p, root, nil, 0, fn)
}

func walkFolder(p *types.Project, folder types.Folder, path []string, depth int, fn WalkFunc) error {
	for _, id := range folder.Folders {
		child, ok := p.Folders[id]
		if !ok {
			continue
		}
		childPath := append(path[:len(path):len(path)], child.Name)
		err := fn(Node{
			Kind:  types.ResourceFolder,
			ID:    id,
			Name:  child.Name,
			Depth: depth,
			Path:  strings.Join(childPath, "/"),
		})
		if errors.Is(err, SkipFolder) {
			continue
		}
		if err != nil {
			return err
		}
		if err := walkFolder(p, child, childPath, depth+1, fn); err != nil {
			return err
		}
	}

	for _, id := range folder.Requests {
		req, ok := p.Requests[id]
		if !ok {
			continue
		}
		reqPath := append(path[:len(path):len(path)], req.Name)
		if err := fn(Node{
			Kind:  types.ResourceRequest,
			ID:    id,
			Name:  req.Name,
			Depth: depth,
			Path:  strings.Join(reqPath, "/"),
		}); err != nil && !errors.Is(err, SkipFolder) {
			return err
		}
	}
	return nil
}
