//go:build mage

// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

// Build targets for fusion.
//
//	mage build           Compile the fusion binary to bin/
//	mage install         Install fusion to GOPATH/bin
//	mage clean           Remove build artifacts
//	mage lint            Run golangci-lint
//	mage test:unit       Run unit tests (SQLite only unless db:up ran)
//	mage test:backends   Start the database containers and run every backend
//	mage db:up / db:down Manage the disposable database containers
package main

import (
	"os"
	"path/filepath"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

const (
	binGo      = "go"
	binaryName = "fusion"
	binaryDir  = "bin"
	cmdDir     = "./cmd/fusion"
)

// Build compiles the fusion binary to bin/.
func Build() error {
	if err := os.MkdirAll(binaryDir, 0o755); err != nil {
		return err
	}
	return sh.RunV(binGo, "build", "-v", "-o", filepath.Join(binaryDir, binaryName), cmdDir)
}

// Clean removes build artifacts and the local SQLite database.
func Clean() error {
	for _, dir := range []string{binaryDir, "data", "logs"} {
		if err := os.RemoveAll(dir); err != nil {
			return err
		}
	}
	return sh.RunV(binGo, "clean")
}

// Install builds and copies the binary to GOPATH/bin.
func Install() error {
	mg.Deps(Build)
	gopath, err := sh.Output(binGo, "env", "GOPATH")
	if err != nil {
		return err
	}
	src := filepath.Join(binaryDir, binaryName)
	dst := filepath.Join(gopath, "bin", binaryName)
	return sh.Copy(dst, src)
}
