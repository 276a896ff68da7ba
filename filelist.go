// (c) Copyright 2016 Hewlett Packard Enterprise Development LP
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sinktracer

import (
	"io/fs"
	"path/filepath"
	"strings"
)

const (
	// maxFileBytes skips oversized files during enumeration.
	maxFileBytes = 50 * 1024 * 1024
	// maxFileLines skips files longer than this at read time.
	maxFileLines = 200000
)

// skipDirs are build and dependency directories excluded from every scan.
var skipDirs = map[string]bool{
	"target":       true,
	"build":        true,
	"dist":         true,
	"out":          true,
	"node_modules": true,
	".git":         true,
}

// EnumerateFiles walks the project tree and returns every eligible file
// path relative to root, applying the skip-directory rules and the size
// limit. Unreadable entries are skipped silently; only a walk failure at
// the root is an error.
func EnumerateFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if skipDirs[name] || (strings.HasPrefix(name, ".") && path != root) {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.Size() > maxFileBytes {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// isJavaFile reports whether the path goes through the source indexer.
func isJavaFile(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".java")
}

// countLines is the cheap line counter backing the oversized-file guard.
func countLines(data []byte) int {
	n := 1
	for _, b := range data {
		if b == '\n' {
			n++
		}
	}
	return n
}
