package opml

import (
	"context"
	"log/slog"
	"sync"

	"feedsync/internal/fetch"
	"feedsync/internal/icon"
	"feedsync/internal/model"
	"feedsync/internal/store"
)

// Reconciler imports an outline tree into the store, creating only sources
// whose URIs are not yet known.
type Reconciler struct {
	store *store.Store
	icons *icon.Resolver
}

func NewReconciler(st *store.Store, icons *icon.Resolver) *Reconciler {
	return &Reconciler{store: st, icons: icons}
}

// candidate is one flattened feed outline. Folder is set only for feeds
// nested exactly one level under a folder outline.
type candidate struct {
	Title  string
	URL    string
	Folder string
}

// Reconcile flattens outlines, skips feeds whose URI already exists, batches
// the remainder into a single commit, and resolves their icons concurrently.
// It returns the number of newly created sources; re-running with an
// unchanged tree returns zero.
func (r *Reconciler) Reconcile(ctx context.Context, outlines []Outline) (int, error) {
	candidates := flattenOutlines(outlines)

	staged := make([]store.SourceCandidate, 0, len(candidates))
	stagedURIs := make(map[string]struct{})
	stagedFolders := make(map[string]*model.Folder)

	for _, cand := range candidates {
		uri, err := fetch.NormalizeURL(cand.URL)
		if err != nil {
			slog.Warn("reconcile skipping invalid feed URL", "url", cand.URL, "err", err)
			continue
		}

		if _, dup := stagedURIs[uri]; dup {
			continue
		}

		existing, err := r.store.FindSourceByURI(ctx, uri)
		if err != nil {
			return 0, err
		}
		if existing != nil {
			continue
		}

		folder, err := r.stageFolder(ctx, cand.Folder, stagedFolders)
		if err != nil {
			return 0, err
		}

		stagedURIs[uri] = struct{}{}
		staged = append(staged, store.SourceCandidate{
			Source: model.FeedSource{URI: uri, Name: cand.Title},
			Folder: folder,
		})
	}

	if len(staged) == 0 {
		slog.Info("opml reconcile", "outlines", len(candidates), "inserted", 0)
		return 0, nil
	}

	if err := r.store.CreateSources(ctx, staged); err != nil {
		return 0, err
	}

	r.resolveIcons(ctx, staged)

	slog.Info("opml reconcile", "outlines", len(candidates), "inserted", len(staged))

	return len(staged), nil
}

// stageFolder reuses the first folder seen with a given name, whether already
// persisted or staged earlier in this batch.
func (r *Reconciler) stageFolder(ctx context.Context, name string, staged map[string]*model.Folder) (*model.Folder, error) {
	if name == "" {
		return nil, nil
	}

	if folder, ok := staged[name]; ok {
		return folder, nil
	}

	folder, err := r.store.FindFolderByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if folder == nil {
		folder = &model.Folder{Name: name}
	}
	staged[name] = folder

	return folder, nil
}

// resolveIcons fans out icon resolution for every inserted source and joins
// before returning. A candidate's failure is logged and never fails the
// batch; the resolver itself always produces a validated blob.
func (r *Reconciler) resolveIcons(ctx context.Context, staged []store.SourceCandidate) {
	var wg sync.WaitGroup

	for i := range staged {
		source := staged[i].Source

		wg.Add(1)
		go func() {
			defer wg.Done()

			blob := r.icons.Resolve(ctx, &source, "", "")
			if err := r.store.UpdateSourceImage(ctx, source.ID, blob); err != nil {
				slog.Warn("reconcile icon save failed", "uri", source.URI, "err", err)
			}
		}()
	}

	wg.Wait()
}

func flattenOutlines(outlines []Outline) []candidate {
	var out []candidate
	appendOutlines(outlines, "", &out)

	return out
}

// appendOutlines walks the tree depth-first. Folder attribution applies only
// one level deep: feeds nested further keep no folder.
func appendOutlines(outlines []Outline, folder string, out *[]candidate) {
	for i := range outlines {
		node := &outlines[i]

		feedURL := firstTrimmedValue(node.XMLURL, node.XMLURLAlt, node.URL)
		if feedURL != "" {
			title := firstTrimmedValue(node.Title, node.Text)
			if title == "" {
				title = feedURL
			}

			*out = append(*out, candidate{Title: title, URL: feedURL, Folder: folder})
			continue
		}

		childFolder := ""
		if folder == "" {
			childFolder = firstTrimmedValue(node.Title, node.Text)
		}
		appendOutlines(node.Outlines, childFolder, out)
	}
}
