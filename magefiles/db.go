//go:build mage

// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"os"
	"os/exec"
	"sort"
	"time"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// DB groups the disposable database containers used by the backend tests.
type DB mg.Namespace

const (
	testDBName     = "fusion_test"
	testDBPassword = "fusion"
	readyTimeout   = 90 * time.Second
)

// testContainer describes one database server container.
type testContainer struct {
	name  string
	image string
	port  string
	env   []string
	// ready is run inside the container until it succeeds.
	ready []string
	// envVar and url tell the tests where to find the server.
	envVar string
	url    string
}

var testContainers = []testContainer{
	{
		name:   "fusion-test-postgres",
		image:  "postgres:16-alpine",
		port:   "55432:5432",
		env:    []string{"POSTGRES_PASSWORD=" + testDBPassword, "POSTGRES_DB=" + testDBName},
		ready:  []string{"pg_isready", "-U", "postgres"},
		envVar: "FUSION_TEST_POSTGRES_DSN",
		url:    "postgres://postgres:" + testDBPassword + "@127.0.0.1:55432/" + testDBName,
	},
	{
		name:   "fusion-test-mysql",
		image:  "mysql:8.4",
		port:   "53306:3306",
		env:    []string{"MYSQL_ROOT_PASSWORD=" + testDBPassword, "MYSQL_DATABASE=" + testDBName},
		ready:  []string{"mysql", "-uroot", "-p" + testDBPassword, "-h127.0.0.1", "-e", "SELECT 1"},
		envVar: "FUSION_TEST_MYSQL_DSN",
		url:    "mysql://root:" + testDBPassword + "@127.0.0.1:53306/" + testDBName,
	},
	{
		name:   "fusion-test-mongo",
		image:  "mongo:7",
		port:   "57017:27017",
		ready:  []string{"mongosh", "--quiet", "--eval", "db.adminCommand('ping')"},
		envVar: "FUSION_TEST_MONGO_URI",
		url:    "mongodb://127.0.0.1:57017/" + testDBName,
	},
}

// containerRuntime returns "podman" or "docker" if a working runtime
// is available, or "" if neither is usable. It checks both that the
// binary exists on PATH and that it can connect to its daemon/machine.
func containerRuntime() string {
	for _, name := range []string{"podman", "docker"} {
		if _, err := exec.LookPath(name); err != nil {
			continue
		}
		if exec.Command(name, "info").Run() != nil {
			fmt.Fprintf(os.Stderr, "WARNING: %s found on PATH but not usable (is the daemon/machine running?)\n", name)
			continue
		}
		return name
	}
	return ""
}

// Up starts the PostgreSQL, MySQL and MongoDB test containers and waits
// until each accepts connections. Running containers are reused.
func (DB) Up() error {
	rt := containerRuntime()
	if rt == "" {
		return fmt.Errorf("no container runtime found (tried podman, docker)")
	}
	for _, c := range testContainers {
		if running(rt, c.name) {
			fmt.Fprintf(os.Stderr, "%s already running\n", c.name)
			continue
		}
		_ = exec.Command(rt, "rm", "-f", c.name).Run()

		args := []string{"run", "-d", "--name", c.name, "-p", c.port}
		for _, e := range c.env {
			args = append(args, "-e", e)
		}
		args = append(args, c.image)
		if err := sh.RunV(rt, args...); err != nil {
			return fmt.Errorf("start %s: %w", c.name, err)
		}
	}
	for _, c := range testContainers {
		if err := waitReady(rt, c); err != nil {
			return err
		}
	}
	return nil
}

// Down removes the test containers.
func (DB) Down() error {
	rt := containerRuntime()
	if rt == "" {
		return fmt.Errorf("no container runtime found (tried podman, docker)")
	}
	for _, c := range testContainers {
		fmt.Fprintf(os.Stderr, "Removing %s...\n", c.name)
		_ = exec.Command(rt, "rm", "-f", c.name).Run()
	}
	return nil
}

// Env prints shell exports pointing the tests at the containers.
func (DB) Env() {
	env := testBackendEnv()
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("export %s=%q\n", k, env[k])
	}
}

func testBackendEnv() map[string]string {
	env := make(map[string]string, len(testContainers))
	for _, c := range testContainers {
		env[c.envVar] = c.url
	}
	return env
}

func running(rt, name string) bool {
	out, err := exec.Command(rt, "inspect", "-f", "{{.State.Running}}", name).Output()
	return err == nil && string(out) == "true\n"
}

func waitReady(rt string, c testContainer) error {
	fmt.Fprintf(os.Stderr, "Waiting for %s...\n", c.name)
	deadline := time.Now().Add(readyTimeout)
	for time.Now().Before(deadline) {
		args := append([]string{"exec", c.name}, c.ready...)
		if exec.Command(rt, args...).Run() == nil {
			return nil
		}
		time.Sleep(time.Second)
	}
	return fmt.Errorf("%s not ready after %s", c.name, readyTimeout)
}
