package resolver

import (
	"context"
	"fmt"
	"path"

	"onedl/internal"
)

// maxFolderEntries bounds a single expansion
const maxFolderEntries = 10000

type folderTask struct {
	ref    string
	prefix string
}

// ExpandFolder lists ref through lister and walks every sub-folder
// breadth first. Each ref is listed at most once, so cyclic listings
// terminate. Returned files are named with their path below the root.
func ExpandFolder(ctx context.Context, lister internal.FolderLister, ref string) ([]internal.RemoteFile, error) {
	var files []internal.RemoteFile
	visited := map[string]bool{ref: true}
	queue := []folderTask{{ref: ref}}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		task := queue[0]
		queue = queue[1:]

		entries, err := lister.ListFolder(ctx, task.ref)
		if err != nil {
			if task.ref == ref {
				return nil, err
			}
			internal.LogWarn("Skipping sub-folder %s: %v", task.prefix, err)
			continue
		}

		for _, entry := range entries {
			name := entry.Name
			if task.prefix != "" {
				name = path.Join(task.prefix, entry.Name)
			}

			if entry.IsFolder {
				if entry.Ref == "" || visited[entry.Ref] {
					continue
				}
				visited[entry.Ref] = true
				queue = append(queue, folderTask{ref: entry.Ref, prefix: name})
				continue
			}

			files = append(files, internal.RemoteFile{
				ID:   entry.Ref,
				Name: name,
				Size: entry.Size,
				Link: entry.Link,
				URL:  entry.URL,
			})
			if len(files) > maxFolderEntries {
				return nil, fmt.Errorf("folder %s has more than %d files", ref, maxFolderEntries)
			}
		}
	}

	return files, nil
}
