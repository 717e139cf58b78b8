package index

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"github.com/jingkaihe/webskill/pkg/logger"
	"github.com/jingkaihe/webskill/pkg/skills"
)

// DefaultDebounce is how long Watch waits for changes to settle.
const DefaultDebounce = 500 * time.Millisecond

// WatchOptions configure Watch.
type WatchOptions struct {
	Debounce   time.Duration
	IgnoreDirs []string
	// OnBuild is called after every rebuild, successful or not.
	OnBuild func(path string, idx *Index, err error)
}

// isSkillFile reports whether an event path names a skill file.
func isSkillFile(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, skills.FilePrefix) && strings.HasSuffix(base, ".json")
}

func ignored(path string, dirs []string) bool {
	for _, d := range dirs {
		if filepath.Base(path) == d || strings.Contains(path, string(filepath.Separator)+d+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

// Watch builds the index of root, then rebuilds it whenever a skill file
// below root changes. It blocks until ctx is cancelled.
func Watch(ctx context.Context, root string, opts WatchOptions) error {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	log := logger.G(ctx).WithField("root", root)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, "failed to create file watcher")
	}
	defer watcher.Close()

	addTree := func(dir string) error {
		return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				return nil
			}
			if path != dir && ignored(path, opts.IgnoreDirs) {
				return filepath.SkipDir
			}
			log.WithField("directory", path).Debug("adding directory to watcher")
			return watcher.Add(path)
		})
	}
	if err := addTree(root); err != nil {
		return errors.Wrapf(err, "failed to watch %s", root)
	}

	rebuild := func() {
		out, idx, err := BuildAndWrite(ctx, root)
		if err != nil {
			log.WithError(err).Error("failed to rebuild skill index")
		} else {
			log.WithField("skills", len(idx.Skills)).Info("skill index rebuilt")
		}
		if opts.OnBuild != nil {
			opts.OnBuild(out, idx, err)
		}
	}
	rebuild()

	timer := time.NewTimer(opts.Debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Create != 0 && isDir(event.Name) {
				if ignored(event.Name, opts.IgnoreDirs) {
					continue
				}
				if err := addTree(event.Name); err != nil {
					log.WithError(err).WithField("directory", event.Name).Warn("failed to watch new directory")
				}
				// a new directory may already hold skills
				timer.Reset(opts.Debounce)
				continue
			}
			if !isSkillFile(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			log.WithField("file", event.Name).WithField("operation", event.Op.String()).Debug("skill change detected")
			timer.Reset(opts.Debounce)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.WithError(err).Error("error watching skills")
		case <-timer.C:
			rebuild()
		}
	}
}
