package mgen

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"

	"github.com/bokwoon95/mgen/stacktrace"
)

// emitResources mirrors the resources directory of the source tree into the
// res directory of the output. Local output directories are mirrored with
// rsync when it is installed, everything else is copied file by file.
func (gen *Generator) emitResources(ctx context.Context) (int, error) {
	var files []string
	err := fs.WalkDir(gen.SourceFS, SourceResourcesDir, func(filePath string, dirEntry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !dirEntry.IsDir() {
			files = append(files, filePath)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, nil
		}
		return 0, stacktrace.New(err)
	}
	if directoryFS, ok := gen.FS.(*DirectoryFS); ok && gen.Options.Source != "" {
		if rsync, err := exec.LookPath("rsync"); err == nil {
			srcDir := filepath.Join(gen.Options.Source, SourceResourcesDir)
			destDir := filepath.Join(filepath.FromSlash(directoryFS.RootDir), ResourcesDir)
			err := os.MkdirAll(destDir, 0755)
			if err != nil {
				return 0, stacktrace.New(err)
			}
			output, err := exec.CommandContext(ctx, rsync, "-a", srcDir+string(filepath.Separator), destDir+string(filepath.Separator)).CombinedOutput()
			if err != nil {
				return 0, stacktrace.New(errors.New("rsync: " + err.Error() + ": " + strings.TrimSpace(string(output))))
			}
			gen.Logger.Debug("mirrored resources with rsync", slog.String("src", srcDir), slog.String("dest", destDir))
			return len(files), nil
		}
	}
	for _, filePath := range files {
		err := gen.copyResource(filePath)
		if err != nil {
			return 0, err
		}
	}
	return len(files), nil
}

func (gen *Generator) copyResource(filePath string) error {
	file, err := gen.SourceFS.Open(filePath)
	if err != nil {
		return stacktrace.New(err)
	}
	defer file.Close()
	return WriteFile(gen.fsys, path.Join(ResourcesDir, strings.TrimPrefix(filePath, SourceResourcesDir+"/")), file)
}
