// SPDX-License-Identifier: MIT

package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// BrokerChecker reports whether the command/event transport is connected.
// Without a broker no command can arrive, so a disconnected broker is unhealthy.
type BrokerChecker struct {
	driver    string
	connected func() bool
}

func NewBrokerChecker(driver string, connected func() bool) *BrokerChecker {
	return &BrokerChecker{driver: driver, connected: connected}
}

func (c *BrokerChecker) Name() string { return "broker" }

func (c *BrokerChecker) Check(context.Context) CheckResult {
	if c.connected() {
		return CheckResult{Status: StatusHealthy, Message: c.driver + " connected"}
	}
	return CheckResult{Status: StatusUnhealthy, Error: c.driver + " not connected"}
}

// SessionsChecker reports how many sessions are registered. It never fails
// readiness: zero sessions is a valid idle state.
type SessionsChecker struct {
	count func() int
}

func NewSessionsChecker(count func() int) *SessionsChecker {
	return &SessionsChecker{count: count}
}

func (c *SessionsChecker) Name() string { return "sessions" }

func (c *SessionsChecker) Check(context.Context) CheckResult {
	return CheckResult{Status: StatusHealthy, Message: fmt.Sprintf("%d registered", c.count())}
}

// DirChecker verifies a directory exists and is writable.
type DirChecker struct {
	name string
	path string
}

func NewDirChecker(name, path string) *DirChecker {
	return &DirChecker{name: name, path: path}
}

func (c *DirChecker) Name() string { return c.name }

func (c *DirChecker) Check(context.Context) CheckResult {
	if err := checkWritableDir(c.path); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error(), Message: c.path}
	}
	return CheckResult{Status: StatusHealthy, Message: "writable"}
}

func checkWritableDir(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", path)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	probe := filepath.Join(path, ".write_test")
	if err := os.WriteFile(probe, []byte("ok"), 0600); err != nil {
		return fmt.Errorf("directory is not writable: %s (error: %v)", path, err)
	}
	_ = os.Remove(probe)
	return nil
}
